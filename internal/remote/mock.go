package remote

import (
	"context"

	"cart-sync/internal/model"
)

// Mock implements CartService and Catalog for testing.
// Each method can be configured via function fields.
type Mock struct {
	CreateCartFunc      func(ctx context.Context) (model.CartID, error)
	GetCartFunc         func(ctx context.Context, cartID model.CartID) (*model.Cart, error)
	AddItemFunc         func(ctx context.Context, cartID model.CartID, productID model.ProductID, quantity int) error
	SetQuantityFunc     func(ctx context.Context, cartID model.CartID, productID model.ProductID, quantity int) error
	OptimizeFunc        func(ctx context.Context, cartID model.CartID) (*model.OptimizeResponse, error)
	ListComparisonsFunc func(ctx context.Context) ([]model.ComparisonPair, error)
	GetProductFunc      func(ctx context.Context, productID model.ProductID) (*model.Product, error)
}

// CreateCart calls the configured CreateCartFunc or returns an error.
func (m *Mock) CreateCart(ctx context.Context) (model.CartID, error) {
	if m.CreateCartFunc != nil {
		return m.CreateCartFunc(ctx)
	}
	return "", model.NewInternalError(nil)
}

// GetCart calls the configured GetCartFunc or returns an empty cart.
func (m *Mock) GetCart(ctx context.Context, cartID model.CartID) (*model.Cart, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx, cartID)
	}
	return &model.Cart{ID: cartID}, nil
}

// AddItem calls the configured AddItemFunc or succeeds.
func (m *Mock) AddItem(ctx context.Context, cartID model.CartID, productID model.ProductID, quantity int) error {
	if m.AddItemFunc != nil {
		return m.AddItemFunc(ctx, cartID, productID, quantity)
	}
	return nil
}

// SetQuantity calls the configured SetQuantityFunc or succeeds.
func (m *Mock) SetQuantity(ctx context.Context, cartID model.CartID, productID model.ProductID, quantity int) error {
	if m.SetQuantityFunc != nil {
		return m.SetQuantityFunc(ctx, cartID, productID, quantity)
	}
	return nil
}

// Optimize calls the configured OptimizeFunc or returns an error.
func (m *Mock) Optimize(ctx context.Context, cartID model.CartID) (*model.OptimizeResponse, error) {
	if m.OptimizeFunc != nil {
		return m.OptimizeFunc(ctx, cartID)
	}
	return nil, model.NewInternalError(nil)
}

// ListComparisons calls the configured ListComparisonsFunc or returns an empty list.
func (m *Mock) ListComparisons(ctx context.Context) ([]model.ComparisonPair, error) {
	if m.ListComparisonsFunc != nil {
		return m.ListComparisonsFunc(ctx)
	}
	return []model.ComparisonPair{}, nil
}

// GetProduct calls the configured GetProductFunc or returns an error.
func (m *Mock) GetProduct(ctx context.Context, productID model.ProductID) (*model.Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, productID)
	}
	return nil, model.NewNotFoundError("product")
}

// Verify Mock implements both interfaces at compile time.
var (
	_ CartService = (*Mock)(nil)
	_ Catalog     = (*Mock)(nil)
)

// Package remote talks to the authoritative cart service and its catalog.
// The service owns carts by id and computes optimization results; this package
// only transports requests and decodes responses.
package remote

import (
	"context"

	"github.com/dunglas/httpsfv"

	"cart-sync/internal/model"
)

// CartService is the remote cart API consumed by the reconciler and the
// optimization requestor.
type CartService interface {
	// CreateCart issues a fresh cart id.
	CreateCart(ctx context.Context) (model.CartID, error)

	// GetCart returns the authoritative cart contents in server order.
	GetCart(ctx context.Context, cartID model.CartID) (*model.Cart, error)

	// AddItem adds quantity units of a product; the server merges repeated
	// additions of the same product into one line.
	AddItem(ctx context.Context, cartID model.CartID, productID model.ProductID, quantity int) error

	// SetQuantity sets the absolute quantity of a product. Zero removes it.
	SetQuantity(ctx context.Context, cartID model.CartID, productID model.ProductID, quantity int) error

	// Optimize asks the service for per-retailer totals and a recommendation.
	// Read-only with respect to cart contents.
	Optimize(ctx context.Context, cartID model.CartID) (*model.OptimizeResponse, error)
}

// Catalog is the remote catalog API consumed by the catalog adapter.
type Catalog interface {
	// ListComparisons returns every comparison pair in one response.
	ListComparisons(ctx context.Context) ([]model.ComparisonPair, error)

	// GetProduct returns one product's canonical data.
	GetProduct(ctx context.Context, productID model.ProductID) (*model.Product, error)
}

// === Request priority ===

// Urgency is the RFC 9218 urgency sent with a request (0 highest, 7 lowest).
type Urgency int

const (
	// UrgencyInteractive marks calls a shopper is waiting on.
	UrgencyInteractive Urgency = 1
	// UrgencyDefault is the RFC 9218 default; no header is sent for it.
	UrgencyDefault Urgency = 3
	// UrgencyBackground marks reconciliation traffic such as queue migration.
	UrgencyBackground Urgency = 5
)

type urgencyKey struct{}

// WithUrgency attaches a request urgency to ctx.
func WithUrgency(ctx context.Context, u Urgency) context.Context {
	return context.WithValue(ctx, urgencyKey{}, u)
}

// UrgencyFrom returns the urgency attached to ctx, or UrgencyDefault.
func UrgencyFrom(ctx context.Context) Urgency {
	if u, ok := ctx.Value(urgencyKey{}).(Urgency); ok {
		return u
	}
	return UrgencyDefault
}

// priorityHeader serializes u as an RFC 9218 Priority dictionary, e.g. "u=1".
func priorityHeader(u Urgency) (string, error) {
	if u < 0 {
		u = 0
	}
	if u > 7 {
		u = 7
	}
	dict := httpsfv.NewDictionary()
	dict.Add("u", httpsfv.NewItem(int64(u)))
	return httpsfv.Marshal(dict)
}

// Package catalog serves the comparison list for one shopper session and
// resolves comparison pairs to the product that gets added to the cart.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"cart-sync/internal/model"
	"cart-sync/internal/remote"
)

// Catalog caches the comparison list as an immutable snapshot. The first
// successful fetch is kept for the life of the session; failures are not cached.
type Catalog struct {
	source remote.Catalog
	logger *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	snapshot *snapshot
}

type snapshot struct {
	pairs     []model.ComparisonPair
	byName    map[string]int
	byProduct map[model.ProductID]model.Selection
}

// New creates a catalog backed by source.
func New(source remote.Catalog, logger *slog.Logger) *Catalog {
	return &Catalog{source: source, logger: logger}
}

// ListComparisons returns the full comparison list in service order.
// Concurrent first calls share one fetch.
func (c *Catalog) ListComparisons(ctx context.Context) ([]model.ComparisonPair, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make([]model.ComparisonPair, len(snap.pairs))
	copy(pairs, snap.pairs)
	return pairs, nil
}

// Find returns the pair with the given product name.
func (c *Catalog) Find(ctx context.Context, productName string) (model.ComparisonPair, error) {
	snap, err := c.load(ctx)
	if err != nil {
		return model.ComparisonPair{}, err
	}
	i, ok := snap.byName[productName]
	if !ok {
		return model.ComparisonPair{}, model.NewNotFoundError("comparison")
	}
	return snap.pairs[i], nil
}

// ProductDisplay returns display data for a product. A loaded snapshot is
// consulted first; otherwise the product is looked up remotely. It never
// triggers the comparison fetch itself.
func (c *Catalog) ProductDisplay(ctx context.Context, productID model.ProductID) (model.Selection, error) {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()

	if snap != nil {
		if sel, ok := snap.byProduct[productID]; ok {
			return sel, nil
		}
	}

	product, err := c.source.GetProduct(ctx, productID)
	if err != nil {
		return model.Selection{}, fmt.Errorf("looking up product %s: %w", productID, err)
	}
	return model.Selection{
		ProductID: product.ID,
		Shop:      product.Shop,
		Price:     product.Price,
		Title:     product.Title,
	}, nil
}

// Resolve picks the product of the pair's cheaper shop. The choice depends on
// cheaperShop alone, never on comparing the prices again.
// Example: Milk 80/95 cheaperShop=SAMOKAT → samokatProduct.id at 80
func Resolve(pair model.ComparisonPair) (model.Selection, error) {
	var product model.Product
	var sel model.Selection

	switch pair.CheaperShop {
	case model.ShopSamokat:
		product = pair.SamokatProduct
		sel.Price = pair.SamokatPrice
	case model.ShopLavka:
		product = pair.LavkaProduct
		sel.Price = pair.LavkaPrice
	default:
		return model.Selection{}, model.NewValidationError("cheaper_shop", fmt.Sprintf("unknown shop %q", pair.CheaperShop))
	}

	if product.ID <= 0 {
		return model.Selection{}, model.NewValidationError("product_id", fmt.Sprintf("missing for %s in %q", pair.CheaperShop, pair.ProductName))
	}

	sel.ProductID = product.ID
	sel.Shop = pair.CheaperShop
	sel.Title = product.Title
	if sel.Title == "" {
		sel.Title = pair.ProductName
	}
	return sel, nil
}

func (c *Catalog) load(ctx context.Context) (*snapshot, error) {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	// A caller going away must not fail the others waiting on the fetch.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("comparisons", func() (interface{}, error) {
		c.mu.RLock()
		cached := c.snapshot
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		pairs, err := c.source.ListComparisons(fetchCtx)
		if err != nil {
			return nil, err
		}

		snap := c.newSnapshot(pairs)
		c.mu.Lock()
		c.snapshot = snap
		c.mu.Unlock()

		c.logger.Info("comparison snapshot loaded", slog.Int("pairs", len(snap.pairs)))
		return snap, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Warn("comparison fetch failed", slog.String("error", res.Err.Error()))
			return nil, fmt.Errorf("loading comparisons: %w", res.Err)
		}
		return res.Val.(*snapshot), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("loading comparisons: %w", ctx.Err())
	}
}

// newSnapshot indexes pairs. Later pairs reusing a product name are dropped.
func (c *Catalog) newSnapshot(pairs []model.ComparisonPair) *snapshot {
	snap := &snapshot{
		pairs:     make([]model.ComparisonPair, 0, len(pairs)),
		byName:    make(map[string]int, len(pairs)),
		byProduct: make(map[model.ProductID]model.Selection, 2*len(pairs)),
	}

	for _, pair := range pairs {
		if _, dup := snap.byName[pair.ProductName]; dup {
			c.logger.Warn("duplicate comparison dropped", slog.String("product_name", pair.ProductName))
			continue
		}
		snap.byName[pair.ProductName] = len(snap.pairs)
		snap.pairs = append(snap.pairs, pair)

		snap.index(pair.SamokatProduct, model.ShopSamokat, pair)
		snap.index(pair.LavkaProduct, model.ShopLavka, pair)
	}
	return snap
}

func (s *snapshot) index(product model.Product, shop model.Shop, pair model.ComparisonPair) {
	if product.ID <= 0 {
		return
	}
	if _, ok := s.byProduct[product.ID]; ok {
		return
	}
	price := pair.SamokatPrice
	if shop == model.ShopLavka {
		price = pair.LavkaPrice
	}
	title := product.Title
	if title == "" {
		title = pair.ProductName
	}
	s.byProduct[product.ID] = model.Selection{
		ProductID: product.ID,
		Shop:      shop,
		Price:     price,
		Title:     title,
	}
}

// Package model defines the cart, catalog and optimization types shared by the
// reconciler, the remote cart client and the shopper API.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// === Identifiers ===

// CartID is the opaque cart identifier issued by the remote cart service.
// The service emits numeric ids; they are kept as strings and never interpreted.
type CartID string

// UnmarshalJSON accepts both JSON numbers and JSON strings.
func (id *CartID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("cart id: %w", err)
		}
		*id = CartID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("cart id: %w", err)
	}
	*id = CartID(n.String())
	return nil
}

// ProductID identifies one retailer-specific product.
type ProductID int64

func (id ProductID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseProductID parses a decimal product id, rejecting zero and negative values.
func ParseProductID(s string) (ProductID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, NewValidationError("product_id", "must be a positive integer")
	}
	return ProductID(n), nil
}

// === Shops ===

// Shop is one of the two competing retailers.
type Shop string

const (
	ShopSamokat Shop = "SAMOKAT"
	ShopLavka   Shop = "LAVKA"
)

// Valid reports whether s names a known retailer.
func (s Shop) Valid() bool {
	return s == ShopSamokat || s == ShopLavka
}

// DisplayName returns the storefront name shown to shoppers.
func (s Shop) DisplayName() string {
	switch s {
	case ShopSamokat:
		return "Самокат"
	case ShopLavka:
		return "Лавка"
	default:
		return string(s)
	}
}

// === Products & line items ===

// Product is canonical product data as served by the catalog and cart endpoints.
type Product struct {
	ID    ProductID       `json:"id"`
	Title string          `json:"title"`
	Shop  Shop            `json:"shop"`
	Price decimal.Decimal `json:"price"`
}

// UnmarshalJSON resolves the unit price from whichever field the service filled:
// price, then currentPrice, then the scraped newPrice/oldPrice strings.
func (p *Product) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID           ProductID           `json:"id"`
		Title        string              `json:"title"`
		Shop         Shop                `json:"shop"`
		Price        decimal.NullDecimal `json:"price"`
		CurrentPrice decimal.NullDecimal `json:"currentPrice"`
		NewPrice     string              `json:"newPrice"`
		OldPrice     string              `json:"oldPrice"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	p.ID = wire.ID
	p.Title = wire.Title
	p.Shop = wire.Shop
	p.Price = decimal.Zero

	switch {
	case wire.Price.Valid:
		p.Price = wire.Price.Decimal
	case wire.CurrentPrice.Valid:
		p.Price = wire.CurrentPrice.Decimal
	default:
		if price, ok := ParsePrice(wire.NewPrice); ok {
			p.Price = price
		} else if price, ok := ParsePrice(wire.OldPrice); ok {
			p.Price = price
		}
	}
	return nil
}

// LineItem is one cart line. Title, Shop and UnitPrice are a display snapshot
// used until the authoritative cart supplies canonical product data.
type LineItem struct {
	ProductID ProductID       `json:"productId"`
	Quantity  int             `json:"quantity"`
	Title     string          `json:"title,omitempty"`
	Shop      Shop            `json:"shop,omitempty"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Valid reports whether the line can be sent to the cart service.
func (l LineItem) Valid() bool {
	return l.ProductID > 0 && l.Quantity > 0
}

// Cart is the authoritative cart returned by the remote cart service.
type Cart struct {
	ID    CartID     `json:"id"`
	Items []CartItem `json:"items"`
}

// CartItem pairs a product with its quantity in the server cart.
type CartItem struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

// Lines converts server items to line items, in server order.
// Items with a non-positive quantity are not part of the cart and are skipped.
func (c *Cart) Lines() []LineItem {
	if c == nil {
		return []LineItem{}
	}
	lines := make([]LineItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.Quantity <= 0 {
			continue
		}
		lines = append(lines, LineItem{
			ProductID: item.Product.ID,
			Quantity:  item.Quantity,
			Title:     item.Product.Title,
			Shop:      item.Product.Shop,
			UnitPrice: item.Product.Price,
		})
	}
	return lines
}

// === Catalog ===

// ComparisonPair is one product priced at both retailers.
// ProductName is unique within a comparison snapshot.
type ComparisonPair struct {
	ProductName     string          `json:"productName"`
	SamokatProduct  Product         `json:"samokatProduct"`
	LavkaProduct    Product         `json:"lavkaProduct"`
	SamokatPrice    decimal.Decimal `json:"samokatPrice"`
	LavkaPrice      decimal.Decimal `json:"lavkaPrice"`
	CheaperShop     Shop            `json:"cheaperShop"`
	PriceDifference decimal.Decimal `json:"priceDifference"`
}

// Selection is the product a comparison pair resolves to when added to the cart.
type Selection struct {
	ProductID ProductID
	Shop      Shop
	Price     decimal.Decimal
	Title     string
}

// LineItem returns a single-unit line carrying the selection's display snapshot.
func (s Selection) LineItem() LineItem {
	return LineItem{
		ProductID: s.ProductID,
		Quantity:  1,
		Title:     s.Title,
		Shop:      s.Shop,
		UnitPrice: s.Price,
	}
}

// === Optimization ===

// OptimizeResponse is the raw optimize payload. Fields are nullable so that
// missing totals can be told apart from zero totals.
type OptimizeResponse struct {
	TotalSamokat    decimal.NullDecimal `json:"totalSamokat"`
	TotalLavka      decimal.NullDecimal `json:"totalLavka"`
	RecommendedShop Shop                `json:"recommendedShop"`
}

// OptimizationResult is a validated optimize response. Totals are exactly what
// the service computed.
type OptimizationResult struct {
	TotalSamokat    decimal.Decimal `json:"totalSamokat"`
	TotalLavka      decimal.Decimal `json:"totalLavka"`
	RecommendedShop Shop            `json:"recommendedShop"`
}

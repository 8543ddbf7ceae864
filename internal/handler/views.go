package handler

import (
	"context"
	"log/slog"

	"cart-sync/internal/model"
	"cart-sync/internal/optimize"
	"cart-sync/internal/reconcile"
)

// Response views shared by the REST routes and the MCP tools. Money is
// rendered as decimal strings exactly as received.

type lineView struct {
	ProductID int64  `json:"productId"`
	Title     string `json:"title,omitempty"`
	Shop      string `json:"shop,omitempty"`
	ShopName  string `json:"shopName,omitempty"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
}

type migrationView struct {
	Attempted int     `json:"attempted"`
	Migrated  int     `json:"migrated"`
	Failed    []int64 `json:"failed,omitempty"` // product ids
}

type cartResponse struct {
	CartID           string            `json:"cartId,omitempty"`
	Status           string            `json:"status"`
	Lines            []lineView        `json:"lines"`
	Queued           []lineView        `json:"queued,omitempty"` // Held locally until the cart exists
	Pending          int               `json:"pending"`
	QueueUnconfirmed bool              `json:"queueUnconfirmed,omitempty"`
	Optimizing       bool              `json:"optimizing"`
	Optimization     *optimize.Summary `json:"optimization,omitempty"`
	Migration        *migrationView    `json:"migration,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
}

type comparisonView struct {
	ProductName      string `json:"productName"`
	SamokatProductID int64  `json:"samokatProductId"`
	SamokatTitle     string `json:"samokatTitle,omitempty"`
	SamokatPrice     string `json:"samokatPrice"`
	LavkaProductID   int64  `json:"lavkaProductId"`
	LavkaTitle       string `json:"lavkaTitle,omitempty"`
	LavkaPrice       string `json:"lavkaPrice"`
	CheaperShop      string `json:"cheaperShop"`
	PriceDifference  string `json:"priceDifference"`
}

type comparisonsResponse struct {
	Comparisons []comparisonView `json:"comparisons"`
}

type optimizeResponse struct {
	Optimized    bool              `json:"optimized"`
	Optimization *optimize.Summary `json:"optimization,omitempty"`
	Message      string            `json:"message,omitempty"`
}

// emptyCartMessage is shown when optimize is asked for an empty cart.
const emptyCartMessage = "Корзина пуста."

func newLineView(line model.LineItem) lineView {
	v := lineView{
		ProductID: int64(line.ProductID),
		Title:     line.Title,
		Price:     line.UnitPrice.String(),
		Quantity:  line.Quantity,
	}
	if line.Shop != "" {
		v.Shop = string(line.Shop)
		v.ShopName = line.Shop.DisplayName()
	}
	return v
}

func newComparisonView(pair model.ComparisonPair) comparisonView {
	return comparisonView{
		ProductName:      pair.ProductName,
		SamokatProductID: int64(pair.SamokatProduct.ID),
		SamokatTitle:     pair.SamokatProduct.Title,
		SamokatPrice:     pair.SamokatPrice.String(),
		LavkaProductID:   int64(pair.LavkaProduct.ID),
		LavkaTitle:       pair.LavkaProduct.Title,
		LavkaPrice:       pair.LavkaPrice.String(),
		CheaperShop:      string(pair.CheaperShop),
		PriceDifference:  pair.PriceDifference.String(),
	}
}

func newMigrationView(report *reconcile.MigrationReport) *migrationView {
	v := &migrationView{Attempted: report.Attempted, Migrated: report.Migrated}
	for _, f := range report.Failed {
		v.Failed = append(v.Failed, int64(f.Item.ProductID))
	}
	return v
}

// migrationWarnings returns one shopper message per item that failed to migrate.
func migrationWarnings(report *reconcile.MigrationReport) []string {
	if report == nil {
		return nil
	}
	var warnings []string
	for _, f := range report.Failed {
		warnings = append(warnings, f.Err.UserMessage())
	}
	return warnings
}

// cartResponse renders the session cart. While the session is idle the
// pending queue is listed under queued.
func (h *Handler) cartResponse(ctx context.Context, warnings []string) cartResponse {
	view := h.cart.View()
	resp := cartResponse{
		CartID:           string(view.CartID),
		Status:           string(view.Status),
		Lines:            make([]lineView, 0, len(view.Lines)),
		Pending:          view.Pending,
		QueueUnconfirmed: view.QueueUnconfirmed,
		Optimizing:       h.optimizer.InFlight(),
		Warnings:         warnings,
	}
	for _, line := range view.Lines {
		resp.Lines = append(resp.Lines, newLineView(line))
	}
	if view.Status == reconcile.StatusIdle {
		queued, err := h.cart.Queued(ctx)
		if err != nil {
			h.logger.WarnContext(ctx, "pending cart not listed", slog.String("error", err.Error()))
		}
		for _, line := range queued {
			resp.Queued = append(resp.Queued, newLineView(line))
		}
	}
	if last := h.optimizer.Last(); last != nil {
		summary := optimize.Display(*last)
		resp.Optimization = &summary
	}
	if report := h.cart.Migration(); report != nil {
		resp.Migration = newMigrationView(report)
	}
	return resp
}

func (h *Handler) optimizeResponse(result *model.OptimizationResult) optimizeResponse {
	if result == nil {
		return optimizeResponse{Message: emptyCartMessage}
	}
	summary := optimize.Display(*result)
	return optimizeResponse{Optimized: true, Optimization: &summary}
}

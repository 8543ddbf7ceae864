package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"cart-sync/internal/model"
)

// handleListComparisons returns the session's comparison snapshot.
// GET /comparisons
func (h *Handler) handleListComparisons(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.catalog.ListComparisons(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := comparisonsResponse{Comparisons: make([]comparisonView, 0, len(pairs))}
	for _, pair := range pairs {
		resp.Comparisons = append(resp.Comparisons, newComparisonView(pair))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleAddComparison adds the cheaper product of a comparison pair.
// POST /comparisons/{name}/cart
func (h *Handler) handleAddComparison(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	if name == "" {
		h.writeError(w, model.NewValidationError("name", "product name required"))
		return
	}

	pair, err := h.catalog.Find(ctx, name)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "adding comparison to cart",
		slog.String("product_name", name),
		slog.String("cheaper_shop", string(pair.CheaperShop)),
	)

	h.respondCart(w, r, h.cart.AddComparison(ctx, pair))
}

// handleGetCart returns the session cart.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cartResponse(r.Context(), nil))
}

// handleInitCart creates the session cart and migrates the pending queue.
// Retries after a failed creation; a no-op once the cart exists.
// POST /cart/init
func (h *Handler) handleInitCart(w http.ResponseWriter, r *http.Request) {
	report, err := h.cart.Initialize(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartResponse(r.Context(), migrationWarnings(report)))
}

// handleRefreshCart reloads the authoritative cart.
// POST /cart/refresh
func (h *Handler) handleRefreshCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, h.cart.Refresh(r.Context()))
}

// handleAddItem adds one unit of a product.
// POST /cart/items/{productId}
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	productID, err := model.ParseProductID(r.PathValue("productId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, h.cart.AddItem(r.Context(), productID))
}

// setQuantityRequest is the optional body of PUT /cart/items/{productId}.
type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// handleSetQuantity sets a product's quantity from ?quantity= or a JSON body.
// PUT /cart/items/{productId}
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, err := model.ParseProductID(r.PathValue("productId"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	quantity, err := quantityParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, h.cart.SetQuantity(r.Context(), productID, quantity))
}

// handleRemoveItem removes a product.
// DELETE /cart/items/{productId}
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := model.ParseProductID(r.PathValue("productId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondCart(w, r, h.cart.RemoveItem(r.Context(), productID))
}

// handleOptimize asks which retailer is cheaper for the whole cart.
// POST /cart/optimize
func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	result, err := h.optimizer.Optimize(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.optimizeResponse(result))
}

// respondCart writes the cart after an edit. Warnings are reported alongside
// the cart; other failures become error responses.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, err error) {
	warnings, err := splitWarnings(err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartResponse(r.Context(), warnings))
}

func quantityParam(r *http.Request) (int, error) {
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, model.NewValidationError("quantity", "must be an integer")
		}
		return n, nil
	}

	if r.Body == nil || r.ContentLength == 0 {
		return 0, model.NewValidationError("quantity", "required")
	}
	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		return 0, err
	}
	if req.Quantity == nil {
		return 0, model.NewValidationError("quantity", "required")
	}
	return *req.Quantity, nil
}

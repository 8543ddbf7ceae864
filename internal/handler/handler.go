// Package handler provides the shopper API: REST routes and MCP tools over one
// shopper session.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cart-sync/internal/catalog"
	"cart-sync/internal/model"
	"cart-sync/internal/optimize"
	"cart-sync/internal/reconcile"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cart      *reconcile.Reconciler
	catalog   *catalog.Catalog
	optimizer *optimize.Requestor
	logger    *slog.Logger
}

// New creates a Handler over one shopper session.
func New(cart *reconcile.Reconciler, cat *catalog.Catalog, optimizer *optimize.Requestor, logger *slog.Logger) *Handler {
	return &Handler{
		cart:      cart,
		catalog:   cat,
		optimizer: optimizer,
		logger:    logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Catalog
	mux.HandleFunc("GET /comparisons", h.handleListComparisons)
	mux.HandleFunc("POST /comparisons/{name}/cart", h.handleAddComparison)

	// Session cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/init", h.handleInitCart)
	mux.HandleFunc("POST /cart/refresh", h.handleRefreshCart)
	mux.HandleFunc("POST /cart/items/{productId}", h.handleAddItem)
	mux.HandleFunc("PUT /cart/items/{productId}", h.handleSetQuantity)
	mux.HandleFunc("DELETE /cart/items/{productId}", h.handleRemoveItem)
	mux.HandleFunc("POST /cart/optimize", h.handleOptimize)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth reports liveness and the session state.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Cart: string(h.cart.Status())})
}

type healthResponse struct {
	Status string `json:"status"`
	Cart   string `json:"cart"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response. Workflow errors carry the shopper-facing
// message; APIErrors found in the chain supply status and code; anything else
// is an internal error.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, body := h.errorBody(err)
	h.writeJSON(w, status, errorResponse{Error: body})
}

func (h *Handler) errorBody(err error) (int, errorBody) {
	var wfErr *model.WorkflowError
	var apiErr *model.APIError

	switch {
	case errors.As(err, &wfErr):
		return workflowStatus(wfErr), errorBody{
			Code:    workflowCode(wfErr.Kind),
			Message: wfErr.UserMessage(),
		}
	case errors.As(err, &apiErr):
		return apiErr.StatusCode, errorBody{Code: apiErr.Code, Message: apiErr.Message}
	default:
		h.logger.Error("internal error", slog.String("error", err.Error()))
		return http.StatusInternalServerError, errorBody{
			Code:    "INTERNAL_ERROR",
			Message: "an internal error occurred",
		}
	}
}

// workflowStatus maps a workflow failure to an HTTP status.
func workflowStatus(err *model.WorkflowError) int {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
		return http.StatusBadRequest
	}

	switch err.Kind {
	case model.KindCartInit:
		if errors.Is(err, model.ErrNotInitialized) {
			return http.StatusConflict
		}
		return http.StatusServiceUnavailable
	case model.KindRefetch:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// workflowCode renders a kind as an error code, e.g. cart_init → CART_INIT_FAILED.
func workflowCode(kind model.Kind) string {
	return strings.ToUpper(string(kind)) + "_FAILED"
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// splitWarnings separates warning-level workflow errors, which leave the cart
// usable, from failures. It returns the shopper messages and the failure, if any.
func splitWarnings(err error) ([]string, error) {
	if err == nil {
		return nil, nil
	}
	var wfErr *model.WorkflowError
	if errors.As(err, &wfErr) && wfErr.Warning() {
		return []string{wfErr.UserMessage()}, nil
	}
	return nil, err
}

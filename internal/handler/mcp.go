// MCP transport for the shopper API using the official MCP Go SDK.
// Exposes the session cart as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cart-sync/internal/model"
)

// === MCP Tool Input Types ===

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// AddToCartInput selects what to add: a comparison by name, or a product by id.
type AddToCartInput struct {
	ProductName string `json:"product_name,omitempty" jsonschema:"name of a comparison pair; its cheaper product is added"`
	ProductID   int64  `json:"product_id,omitempty" jsonschema:"product ID to add when no product_name is given"`
}

// RemoveFromCartInput names the product to remove.
type RemoveFromCartInput struct {
	ProductID int64 `json:"product_id" jsonschema:"product ID to remove"`
}

// ComparisonsOutput is the output of list_comparisons.
type ComparisonsOutput = comparisonsResponse

// CartOutput is the output of the cart tools.
type CartOutput = cartResponse

// OptimizeOutput is the output of optimize_cart.
type OptimizeOutput = optimizeResponse

// NewMCPServer creates an MCP server with the cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cart-sync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Grocery cart across Samokat and Lavka. " +
				"List price comparisons, add the cheaper product to the cart, and ask which shop is cheaper overall.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_comparisons",
		Description: "List products priced at both shops, with the cheaper shop for each.",
	}, h.mcpListComparisons)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add one unit to the cart. Give product_name to add a comparison's cheaper product, or product_id.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_from_cart",
		Description: "Remove a product from the cart.",
	}, h.mcpRemoveFromCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the current cart and the last optimization result.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "optimize_cart",
		Description: "Compute the cart total at each shop and recommend the cheaper one.",
	}, h.mcpOptimizeCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpListComparisons(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input EmptyInput,
) (*mcp.CallToolResult, ComparisonsOutput, error) {
	pairs, err := h.catalog.ListComparisons(ctx)
	if err != nil {
		return nil, ComparisonsOutput{}, h.mcpError(err)
	}

	out := ComparisonsOutput{Comparisons: make([]comparisonView, 0, len(pairs))}
	for _, pair := range pairs {
		out.Comparisons = append(out.Comparisons, newComparisonView(pair))
	}
	return nil, out, nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	var err error
	switch {
	case input.ProductName != "":
		pair, findErr := h.catalog.Find(ctx, input.ProductName)
		if findErr != nil {
			return nil, CartOutput{}, h.mcpError(findErr)
		}
		err = h.cart.AddComparison(ctx, pair)
	case input.ProductID > 0:
		err = h.cart.AddItem(ctx, model.ProductID(input.ProductID))
	default:
		return nil, CartOutput{}, fmt.Errorf("product_name or product_id is required")
	}

	return h.mcpCart(ctx, err)
}

func (h *Handler) mcpRemoveFromCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveFromCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.ProductID <= 0 {
		return nil, CartOutput{}, fmt.Errorf("product_id is required")
	}
	return h.mcpCart(ctx, h.cart.RemoveItem(ctx, model.ProductID(input.ProductID)))
}

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input EmptyInput,
) (*mcp.CallToolResult, CartOutput, error) {
	return nil, h.cartResponse(ctx, nil), nil
}

func (h *Handler) mcpOptimizeCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input EmptyInput,
) (*mcp.CallToolResult, OptimizeOutput, error) {
	result, err := h.optimizer.Optimize(ctx)
	if err != nil {
		return nil, OptimizeOutput{}, h.mcpError(err)
	}
	return nil, h.optimizeResponse(result), nil
}

// mcpCart renders the cart after an edit, keeping warnings in the output.
func (h *Handler) mcpCart(ctx context.Context, err error) (*mcp.CallToolResult, CartOutput, error) {
	warnings, err := splitWarnings(err)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartResponse(ctx, warnings), nil
}

// mcpError converts workflow and API errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var wfErr *model.WorkflowError
	if errors.As(err, &wfErr) {
		return fmt.Errorf("%s: %s", workflowCode(wfErr.Kind), wfErr.UserMessage())
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}

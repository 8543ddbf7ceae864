package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"cart-sync/internal/model"
)

// =============================================================================
// CART SERVICE CLIENT
// =============================================================================
//
// The cart service exposes a small REST API:
//
//   POST /api/cart/create                               → {id}
//   GET  /api/cart/{id}                                 → {id, items}
//   POST /api/cart/{id}/add?productId=&quantity=        → ack
//   POST /api/cart/{id}/update?productId=&quantity=     → ack (0 removes)
//   GET  /api/cart/{id}/optimize                        → {totalSamokat, totalLavka, recommendedShop}
//   GET  /api/products/comparison                       → [ComparisonPair]
//   GET  /api/products/{id}                             → Product
//
// Mutations take their arguments as query parameters and return the updated
// cart, which is ignored: the reconciler reads the cart back explicitly.
// =============================================================================

const (
	pathCreateCart  = "/api/cart/create"
	pathCarts       = "/api/cart/"
	pathComparisons = "/api/products/comparison"
	pathProducts    = "/api/products/"

	// apiVersionHeader carries the service's API version, when it sends one.
	apiVersionHeader = "Cart-API-Version"

	serviceName = "cart service"
	userAgent   = "cart-sync/1.0"
)

// Config holds client settings.
type Config struct {
	BaseURL   string            // e.g. "http://localhost:8081"
	Timeout   time.Duration     // per request; default 15s
	Transport http.RoundTripper // nil uses http.DefaultTransport

	// MinAPIVersion is the lowest service API version this client is known to
	// work with (e.g. "v1.0.0"). Empty disables the check.
	MinAPIVersion string

	Logger *slog.Logger
}

// Client is the HTTP client for the cart service and its catalog.
type Client struct {
	httpClient *http.Client
	baseURL    string
	minVersion string
	logger     *slog.Logger

	versionOnce sync.Once
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid cart service URL %q", cfg.BaseURL)
	}

	minVersion := ""
	if cfg.MinAPIVersion != "" {
		minVersion = normalizeVersion(cfg.MinAPIVersion)
		if !semver.IsValid(minVersion) {
			return nil, fmt.Errorf("invalid minimum API version %q", cfg.MinAPIVersion)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		minVersion: minVersion,
		logger:     logger,
	}, nil
}

// === Cart Operations ===

// CreateCart issues a fresh cart.
func (c *Client) CreateCart(ctx context.Context) (model.CartID, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathCreateCart, nil)
	if err != nil {
		return "", fmt.Errorf("creating cart request: %w", err)
	}

	var resp struct {
		ID model.CartID `json:"id"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", model.NewUpstreamError(serviceName, fmt.Errorf("empty cart id from create"))
	}
	return resp.ID, nil
}

// GetCart reads the authoritative cart.
func (c *Client) GetCart(ctx context.Context, cartID model.CartID) (*model.Cart, error) {
	req, err := c.newRequest(ctx, http.MethodGet, cartPath(cartID, ""), nil)
	if err != nil {
		return nil, fmt.Errorf("creating get cart request: %w", err)
	}

	var cart model.Cart
	if err := c.do(req, &cart); err != nil {
		return nil, err
	}
	if cart.ID == "" {
		cart.ID = cartID
	}
	return &cart, nil
}

// AddItem adds quantity units of productID.
func (c *Client) AddItem(ctx context.Context, cartID model.CartID, productID model.ProductID, quantity int) error {
	if quantity <= 0 {
		return model.NewValidationError("quantity", "must be positive")
	}

	req, err := c.newRequest(ctx, http.MethodPost, cartPath(cartID, "/add"), itemQuery(productID, quantity))
	if err != nil {
		return fmt.Errorf("creating add item request: %w", err)
	}
	return c.do(req, nil)
}

// SetQuantity sets the absolute quantity of productID; zero removes the line.
func (c *Client) SetQuantity(ctx context.Context, cartID model.CartID, productID model.ProductID, quantity int) error {
	if quantity < 0 {
		return model.NewValidationError("quantity", "must not be negative")
	}

	req, err := c.newRequest(ctx, http.MethodPost, cartPath(cartID, "/update"), itemQuery(productID, quantity))
	if err != nil {
		return fmt.Errorf("creating update quantity request: %w", err)
	}
	return c.do(req, nil)
}

// Optimize requests per-retailer totals for the cart.
func (c *Client) Optimize(ctx context.Context, cartID model.CartID) (*model.OptimizeResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, cartPath(cartID, "/optimize"), nil)
	if err != nil {
		return nil, fmt.Errorf("creating optimize request: %w", err)
	}

	var resp model.OptimizeResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// === Catalog Operations ===

// ListComparisons returns the comparison list.
func (c *Client) ListComparisons(ctx context.Context) ([]model.ComparisonPair, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathComparisons, nil)
	if err != nil {
		return nil, fmt.Errorf("creating comparison request: %w", err)
	}

	var pairs []model.ComparisonPair
	if err := c.do(req, &pairs); err != nil {
		return nil, err
	}
	if pairs == nil {
		pairs = []model.ComparisonPair{}
	}
	return pairs, nil
}

// GetProduct returns canonical product data.
func (c *Client) GetProduct(ctx context.Context, productID model.ProductID) (*model.Product, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathProducts+productID.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating product request: %w", err)
	}

	var product model.Product
	if err := c.do(req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// === HTTP Helpers ===

func cartPath(cartID model.CartID, suffix string) string {
	return pathCarts + url.PathEscape(string(cartID)) + suffix
}

func itemQuery(productID model.ProductID, quantity int) url.Values {
	q := url.Values{}
	q.Set("productId", productID.String())
	q.Set("quantity", strconv.Itoa(quantity))
	return q
}

// newRequest builds a request with the common headers. The ctx urgency, if
// any, is sent as an RFC 9218 Priority header.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	if u := UrgencyFrom(ctx); u != UrgencyDefault {
		priority, err := priorityHeader(u)
		if err != nil {
			return nil, fmt.Errorf("encoding priority: %w", err)
		}
		req.Header.Set("Priority", priority)
	}

	return req, nil
}

// do executes the request and decodes the response.
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewUpstreamError(serviceName, err)
	}
	defer resp.Body.Close()

	c.checkVersion(resp)

	// Limit to 4MB; the comparison list is the largest payload
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return model.NewUpstreamError(serviceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, body)
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return model.NewUpstreamError(serviceName, fmt.Errorf("parsing response: %w", err))
		}
	}
	return nil
}

// checkVersion warns once when the service reports an API version older than
// the configured minimum.
func (c *Client) checkVersion(resp *http.Response) {
	if c.minVersion == "" {
		return
	}
	reported := resp.Header.Get(apiVersionHeader)
	if reported == "" {
		return
	}
	v := normalizeVersion(reported)
	if !semver.IsValid(v) || semver.Compare(v, c.minVersion) >= 0 {
		return
	}
	c.versionOnce.Do(func() {
		c.logger.Warn("cart service API version older than supported",
			slog.String("reported", reported),
			slog.String("minimum", c.minVersion),
		)
	})
}

// serviceError is the error body shape of the cart service.
type serviceError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// parseError converts cart service errors to model.APIError.
func parseError(statusCode int, body []byte) error {
	var svcErr serviceError
	json.Unmarshal(body, &svcErr) // Best effort parse

	msg := svcErr.Message
	if msg == "" {
		msg = svcErr.Error
	}

	// The service reports unknown carts and products as 500s with a
	// "... not found" message.
	if statusCode == http.StatusNotFound || strings.Contains(strings.ToLower(msg), "not found") {
		if msg == "" {
			return model.NewNotFoundError("resource")
		}
		return &model.APIError{
			Code:       "NOT_FOUND",
			Message:    msg,
			StatusCode: http.StatusNotFound,
			Err:        model.ErrNotFound,
		}
	}

	switch statusCode {
	case http.StatusBadRequest:
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	case http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName)
	default:
		return model.NewUpstreamError(serviceName, fmt.Errorf("status %d: %s", statusCode, msg))
	}
}

// normalizeVersion adds the "v" prefix semver expects.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

var (
	_ CartService = (*Client)(nil)
	_ Catalog     = (*Client)(nil)
)

package remote

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"cart-sync/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid", cfg: Config{BaseURL: "http://localhost:8081"}},
		{name: "empty url", cfg: Config{BaseURL: ""}, wantErr: true},
		{name: "missing scheme", cfg: Config{BaseURL: "localhost:8081/api"}, wantErr: true},
		{name: "valid min version", cfg: Config{BaseURL: "http://x", MinAPIVersion: "1.2.0"}},
		{name: "invalid min version", cfg: Config{BaseURL: "http://x", MinAPIVersion: "latest"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCreateCart(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    model.CartID
		wantErr bool
	}{
		{name: "numeric id", body: `{"id": 42, "items": []}`, want: "42"},
		{name: "string id", body: `{"id": "abc"}`, want: "abc"},
		{name: "missing id", body: `{}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/cart/create" {
					t.Errorf("request = %s %s, want POST /api/cart/create", r.Method, r.URL.Path)
				}
				io.WriteString(w, tc.body)
			})

			got, err := client.CreateCart(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("CreateCart() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("CreateCart() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGetCart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cart/7" {
			t.Errorf("path = %s, want /api/cart/7", r.URL.Path)
		}
		io.WriteString(w, `{
			"id": 7,
			"items": [
				{"product": {"id": 10, "title": "Молоко", "shop": "SAMOKAT", "newPrice": "89,90 ₽"}, "quantity": 2},
				{"product": {"id": 11, "title": "Хлеб", "shop": "LAVKA", "price": 45}, "quantity": 1}
			]
		}`)
	})

	cart, err := client.GetCart(context.Background(), "7")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	lines := cart.Lines()
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].ProductID != 10 || lines[0].Quantity != 2 {
		t.Errorf("line 0 = %+v", lines[0])
	}
	if !lines[0].UnitPrice.Equal(decimal.RequireFromString("89.90")) {
		t.Errorf("line 0 price = %s, want 89.90", lines[0].UnitPrice)
	}
	if lines[1].Shop != model.ShopLavka {
		t.Errorf("line 1 shop = %s, want LAVKA", lines[1].Shop)
	}
}

func TestMutations_QueryParameters(t *testing.T) {
	var gotPath, gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("missing Idempotency-Key on write")
		}
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		io.WriteString(w, `{"id": 5, "items": []}`)
	})
	ctx := context.Background()

	if err := client.AddItem(ctx, "5", 10, 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if gotPath != "/api/cart/5/add" || gotQuery != "productId=10&quantity=1" {
		t.Errorf("AddItem sent %s?%s", gotPath, gotQuery)
	}

	if err := client.SetQuantity(ctx, "5", 10, 0); err != nil {
		t.Fatalf("SetQuantity: %v", err)
	}
	if gotPath != "/api/cart/5/update" || gotQuery != "productId=10&quantity=0" {
		t.Errorf("SetQuantity sent %s?%s", gotPath, gotQuery)
	}
}

func TestMutations_RejectBadQuantity(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ctx := context.Background()

	if err := client.AddItem(ctx, "5", 10, 0); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("AddItem(0) error = %v, want ErrInvalidRequest", err)
	}
	if err := client.SetQuantity(ctx, "5", 10, -1); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("SetQuantity(-1) error = %v, want ErrInvalidRequest", err)
	}
}

func TestOptimize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/cart/3/optimize" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"totalSamokat": 259.0, "totalLavka": 389, "recommendedShop": "SAMOKAT"}`)
	})

	resp, err := client.Optimize(context.Background(), "3")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if !resp.TotalSamokat.Valid || !resp.TotalSamokat.Decimal.Equal(decimal.NewFromInt(259)) {
		t.Errorf("TotalSamokat = %+v, want 259", resp.TotalSamokat)
	}
	if resp.RecommendedShop != model.ShopSamokat {
		t.Errorf("RecommendedShop = %s, want SAMOKAT", resp.RecommendedShop)
	}
}

func TestListComparisons(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/products/comparison" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `[{
			"productName": "Milk",
			"samokatProduct": {"id": 1, "title": "Milk", "shop": "SAMOKAT", "price": 80},
			"lavkaProduct": {"id": 2, "title": "Milk", "shop": "LAVKA", "price": 95},
			"samokatPrice": 80,
			"lavkaPrice": 95,
			"cheaperShop": "SAMOKAT",
			"priceDifference": 15
		}]`)
	})

	pairs, err := client.ListComparisons(context.Background())
	if err != nil {
		t.Fatalf("ListComparisons: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(pairs))
	}
	if pairs[0].CheaperShop != model.ShopSamokat || pairs[0].LavkaProduct.ID != 2 {
		t.Errorf("pair = %+v", pairs[0])
	}
}

func TestListComparisons_NullIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `null`)
	})

	pairs, err := client.ListComparisons(context.Background())
	if err != nil {
		t.Fatalf("ListComparisons: %v", err)
	}
	if pairs == nil || len(pairs) != 0 {
		t.Errorf("pairs = %#v, want empty non-nil", pairs)
	}
}

func TestRequestHeaders(t *testing.T) {
	tests := []struct {
		name         string
		ctx          context.Context
		wantPriority string
	}{
		{name: "default urgency sends nothing", ctx: context.Background(), wantPriority: ""},
		{name: "interactive", ctx: WithUrgency(context.Background(), UrgencyInteractive), wantPriority: "u=1"},
		{name: "background", ctx: WithUrgency(context.Background(), UrgencyBackground), wantPriority: "u=5"},
		{name: "clamped", ctx: WithUrgency(context.Background(), Urgency(12)), wantPriority: "u=7"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Priority"); got != tc.wantPriority {
					t.Errorf("Priority = %q, want %q", got, tc.wantPriority)
				}
				if r.Header.Get("X-Request-ID") == "" {
					t.Error("missing X-Request-ID")
				}
				if got := r.Header.Get("User-Agent"); got != userAgent {
					t.Errorf("User-Agent = %q", got)
				}
				io.WriteString(w, `{"id": 1, "items": []}`)
			})

			if _, err := client.GetCart(tc.ctx, "1"); err != nil {
				t.Fatalf("GetCart: %v", err)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantIs   error
	}{
		{
			name:     "404",
			status:   404,
			body:     ``,
			wantCode: "NOT_FOUND",
			wantIs:   model.ErrNotFound,
		},
		{
			name:     "500 cart not found",
			status:   500,
			body:     `{"status": 500, "error": "Internal Server Error", "message": "Cart not found"}`,
			wantCode: "NOT_FOUND",
			wantIs:   model.ErrNotFound,
		},
		{
			name:     "400",
			status:   400,
			body:     `{"status": 400, "error": "Bad Request", "message": "Required parameter 'productId' is not present."}`,
			wantCode: "VALIDATION_ERROR",
			wantIs:   model.ErrInvalidRequest,
		},
		{
			name:     "429",
			status:   429,
			body:     ``,
			wantCode: "RATE_LIMITED",
			wantIs:   model.ErrRateLimited,
		},
		{
			name:     "503 plain text",
			status:   503,
			body:     `upstream unavailable`,
			wantCode: "UPSTREAM_ERROR",
			wantIs:   model.ErrUpstreamError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := parseError(tc.status, []byte(tc.body))

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %T, want *model.APIError", err)
			}
			if apiErr.Code != tc.wantCode {
				t.Errorf("Code = %s, want %s", apiErr.Code, tc.wantCode)
			}
			if !errors.Is(err, tc.wantIs) {
				t.Errorf("errors.Is(%v) = false", tc.wantIs)
			}
		})
	}
}

func TestDo_TransportFailureIsUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := New(Config{BaseURL: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.GetCart(context.Background(), "1")
	if !errors.Is(err, model.ErrUpstreamError) {
		t.Errorf("error = %v, want ErrUpstreamError", err)
	}
}

func TestCheckVersion_WarnsOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(apiVersionHeader, "1.0.3")
		io.WriteString(w, `{"id": 1, "items": []}`)
	}))
	defer server.Close()

	var logs bytes.Buffer
	client, err := New(Config{
		BaseURL:       server.URL,
		MinAPIVersion: "v1.1.0",
		Logger:        slog.New(slog.NewTextHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := client.GetCart(context.Background(), "1"); err != nil {
			t.Fatalf("GetCart: %v", err)
		}
	}

	if n := strings.Count(logs.String(), "API version older than supported"); n != 1 {
		t.Errorf("warnings = %d, want 1\n%s", n, logs.String())
	}
}

func TestCartPath_Escapes(t *testing.T) {
	if got := cartPath("a/b", "/add"); got != "/api/cart/a%2Fb/add" {
		t.Errorf("cartPath = %s", got)
	}
}

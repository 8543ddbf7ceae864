// Package optimize asks the cart service which retailer is cheaper for the
// whole cart and keeps the last good answer per cart.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"cart-sync/internal/model"
	"cart-sync/internal/remote"
)

// Optimizer is the slice of the cart service the requestor needs.
type Optimizer interface {
	Optimize(ctx context.Context, cartID model.CartID) (*model.OptimizeResponse, error)
}

// Cart exposes the session cart the requestor optimizes.
type Cart interface {
	CartID() (model.CartID, bool)
	Len() int
}

// Requestor issues at most one optimize call per cart at a time.
// Concurrent callers for the same cart share the in-flight call and its result.
type Requestor struct {
	service Optimizer
	cart    Cart
	logger  *slog.Logger

	group singleflight.Group

	mu       sync.Mutex
	inFlight map[model.CartID]bool
	last     map[model.CartID]model.OptimizationResult
}

// New creates a requestor for cart.
func New(service Optimizer, cart Cart, logger *slog.Logger) *Requestor {
	return &Requestor{
		service:  service,
		cart:     cart,
		logger:   logger,
		inFlight: make(map[model.CartID]bool),
		last:     make(map[model.CartID]model.OptimizationResult),
	}
}

// Optimize returns the service's totals for the session cart.
// An empty cart is a no-op: nil result, nil error, no remote call.
// On failure the previous result stays available through Last.
func (r *Requestor) Optimize(ctx context.Context) (*model.OptimizationResult, error) {
	cartID, ok := r.cart.CartID()
	if !ok {
		return nil, &model.WorkflowError{Kind: model.KindOptimize, Op: "optimize cart", Err: model.ErrNotInitialized}
	}
	if r.cart.Len() == 0 {
		return nil, nil
	}

	// The shared call outlives any one caller; the client timeout bounds it.
	shareCtx := remote.WithUrgency(context.WithoutCancel(ctx), remote.UrgencyInteractive)
	ch := r.group.DoChan(string(cartID), func() (interface{}, error) {
		r.setInFlight(cartID, true)
		defer r.setInFlight(cartID, false)

		resp, err := r.service.Optimize(shareCtx, cartID)
		if err != nil {
			return nil, err
		}
		result, err := Normalize(resp)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.last[cartID] = result
		r.mu.Unlock()

		r.logger.Info("cart optimized",
			slog.String("cart_id", string(cartID)),
			slog.String("recommended_shop", string(result.RecommendedShop)),
			slog.String("total_samokat", result.TotalSamokat.String()),
			slog.String("total_lavka", result.TotalLavka.String()),
		)
		return result, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, &model.WorkflowError{Kind: model.KindOptimize, Op: "optimize cart", Err: ctx.Err()}
	}
	if res.Err != nil {
		r.logger.Warn("cart optimization failed",
			slog.String("cart_id", string(cartID)),
			slog.String("error", res.Err.Error()),
		)
		return nil, &model.WorkflowError{Kind: model.KindOptimize, Op: "optimize cart", Err: res.Err}
	}
	if res.Shared {
		r.logger.Debug("optimize call shared", slog.String("cart_id", string(cartID)))
	}

	result := res.Val.(model.OptimizationResult)
	return &result, nil
}

// InFlight reports whether an optimize call for the session cart is outstanding.
func (r *Requestor) InFlight() bool {
	cartID, ok := r.cart.CartID()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight[cartID]
}

// Last returns the last good result for the session cart, if any.
func (r *Requestor) Last() *model.OptimizationResult {
	cartID, ok := r.cart.CartID()
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.last[cartID]
	if !ok {
		return nil
	}
	return &result
}

func (r *Requestor) setInFlight(cartID model.CartID, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v {
		r.inFlight[cartID] = true
	} else {
		delete(r.inFlight, cartID)
	}
}

// Normalize validates an optimize response. The recommended shop must be a
// known retailer and both totals must be present; totals are kept exactly.
func Normalize(resp *model.OptimizeResponse) (model.OptimizationResult, error) {
	if resp == nil {
		return model.OptimizationResult{}, fmt.Errorf("%w: empty optimize response", model.ErrUpstreamError)
	}
	if !resp.RecommendedShop.Valid() {
		return model.OptimizationResult{}, fmt.Errorf("%w: unknown recommended shop %q", model.ErrUpstreamError, resp.RecommendedShop)
	}
	if !resp.TotalSamokat.Valid {
		return model.OptimizationResult{}, fmt.Errorf("%w: optimize response missing totalSamokat", model.ErrUpstreamError)
	}
	if !resp.TotalLavka.Valid {
		return model.OptimizationResult{}, fmt.Errorf("%w: optimize response missing totalLavka", model.ErrUpstreamError)
	}
	return model.OptimizationResult{
		TotalSamokat:    resp.TotalSamokat.Decimal,
		TotalLavka:      resp.TotalLavka.Decimal,
		RecommendedShop: resp.RecommendedShop,
	}, nil
}

// Package reconcile keeps the shopper's cart consistent with the authoritative
// cart held by the remote cart service.
//
// Two versions of the cart exist: the local view, which is updated
// optimistically before the service confirms an edit, and the server view, which
// is only ever replaced by an authoritative fetch. Items queued before the
// session has a cart are held in a durable local store and migrated exactly
// once by Initialize.
package reconcile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"cart-sync/internal/catalog"
	"cart-sync/internal/localstore"
	"cart-sync/internal/model"
	"cart-sync/internal/remote"
)

// DefaultPendingKey is the store key of the pre-session queue.
const DefaultPendingKey = "cart"

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"         // No cart yet; edits go to the pending queue
	StatusInitializing Status = "initializing" // Cart creation and migration running
	StatusReady        Status = "ready"        // Cart id known; edits go to the service
)

// ProductLookup supplies display data for products missing from the view.
type ProductLookup interface {
	ProductDisplay(ctx context.Context, productID model.ProductID) (model.Selection, error)
}

// Config wires a Reconciler.
type Config struct {
	Service  remote.CartService
	Store    localstore.Store
	Products ProductLookup // optional

	PendingKey string // defaults to DefaultPendingKey
	Logger     *slog.Logger
}

// MigrationReport summarizes one migration of the pending queue.
type MigrationReport struct {
	Attempted int                `json:"attempted"`
	Migrated  int                `json:"migrated"`
	Failed    []MigrationFailure `json:"failed,omitempty"`
}

// MigrationFailure is one queued item the service rejected.
type MigrationFailure struct {
	Item model.LineItem       `json:"item"`
	Err  *model.WorkflowError `json:"-"`
}

// View is a read-only snapshot of the session.
type View struct {
	CartID  model.CartID     `json:"cartId,omitempty"`
	Status  Status           `json:"status"`
	Lines   []model.LineItem `json:"lines"`
	Pending int              `json:"pending"` // Remote edits not yet answered

	// QueueUnconfirmed is set while migrated items await an authoritative fetch.
	QueueUnconfirmed bool `json:"queueUnconfirmed,omitempty"`
}

// Reconciler owns one shopper session. Safe for concurrent use.
type Reconciler struct {
	service  remote.CartService
	store    localstore.Store
	products ProductLookup
	key      string
	logger   *slog.Logger

	mu               sync.Mutex
	status           Status
	initDone         chan struct{} // closed when the running Initialize finishes
	cartID           model.CartID
	lines            []model.LineItem // local view
	server           []model.LineItem // last authoritative view
	queueUnconfirmed bool
	report           *MigrationReport
	pending          int
}

// New returns an idle reconciler.
func New(cfg Config) *Reconciler {
	key := cfg.PendingKey
	if key == "" {
		key = DefaultPendingKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{
		service:  cfg.Service,
		store:    cfg.Store,
		products: cfg.Products,
		key:      key,
		logger:   logger,
		status:   StatusIdle,
		lines:    []model.LineItem{},
	}
}

// === Initialization ===

// Initialize creates the session cart, migrates the pending queue into it and
// loads the authoritative cart.
//
// Migration failures are per item and reported in the MigrationReport; they
// never stop the remaining items. The queue is cleared only after the
// authoritative fetch succeeds. When that fetch fails the session is still
// ready, the queue is kept and a refetch error is returned; Refresh retries.
//
// A failed cart creation leaves the session idle so Initialize can be retried.
// Calling Initialize on a ready session is a no-op.
func (r *Reconciler) Initialize(ctx context.Context) (*MigrationReport, error) {
	for {
		r.mu.Lock()
		switch r.status {
		case StatusReady:
			r.mu.Unlock()
			return nil, nil
		case StatusInitializing:
			done := r.initDone
			r.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil, &model.WorkflowError{Kind: model.KindCartInit, Op: "wait for cart", Err: ctx.Err()}
			}
		}

		r.status = StatusInitializing
		r.initDone = make(chan struct{})
		r.mu.Unlock()
		return r.initialize(ctx)
	}
}

func (r *Reconciler) initialize(ctx context.Context) (*MigrationReport, error) {
	cartID, err := r.service.CreateCart(ctx)
	if err != nil {
		r.mu.Lock()
		r.status = StatusIdle
		close(r.initDone)
		r.mu.Unlock()

		r.logger.Error("cart creation failed", slog.String("error", err.Error()))
		return nil, &model.WorkflowError{Kind: model.KindCartInit, Op: "create cart", Err: err}
	}
	r.logger.Info("cart created", slog.String("cart_id", string(cartID)))

	queued, readErr := r.store.Read(ctx, r.key)
	if readErr != nil {
		// Treated as an empty queue; the record is left alone since it was never read
		r.logger.Warn("pending cart unreadable", slog.String("error", readErr.Error()))
		queued = nil
	}

	report, migrated := r.migrate(ctx, cartID, queued)

	cart, fetchErr := r.service.GetCart(ctx, cartID)

	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(r.initDone)

	r.cartID = cartID
	r.status = StatusReady
	r.report = report
	hasQueue := readErr == nil && len(queued) > 0

	if fetchErr != nil {
		r.lines = mergeLines(migrated)
		r.server = nil
		r.queueUnconfirmed = hasQueue
		r.logger.Warn("authoritative cart fetch failed after migration",
			slog.String("cart_id", string(cartID)),
			slog.String("error", fetchErr.Error()),
		)
		return report, &model.WorkflowError{Kind: model.KindRefetch, Op: "fetch cart", Err: fetchErr}
	}

	r.replaceLocked(cart.Lines())
	if hasQueue {
		r.queueUnconfirmed = true
		r.clearQueueLocked(ctx)
	}
	return report, nil
}

// migrate adds each queued item in queue order. It returns the items the
// service accepted.
func (r *Reconciler) migrate(ctx context.Context, cartID model.CartID, queued []model.LineItem) (*MigrationReport, []model.LineItem) {
	report := &MigrationReport{Attempted: len(queued)}
	if len(queued) == 0 {
		return report, nil
	}

	bg := remote.WithUrgency(ctx, remote.UrgencyBackground)
	migrated := make([]model.LineItem, 0, len(queued))
	for _, item := range queued {
		if err := r.service.AddItem(bg, cartID, item.ProductID, item.Quantity); err != nil {
			wfErr := &model.WorkflowError{Kind: model.KindMigration, Op: "migrate item", ProductID: item.ProductID, Err: err}
			report.Failed = append(report.Failed, MigrationFailure{Item: item, Err: wfErr})
			r.logger.Warn("pending item not migrated",
				slog.String("product_id", item.ProductID.String()),
				slog.Int("quantity", item.Quantity),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Migrated++
		migrated = append(migrated, item)
	}

	r.logger.Info("pending cart migrated",
		slog.String("cart_id", string(cartID)),
		slog.Int("attempted", report.Attempted),
		slog.Int("migrated", report.Migrated),
	)
	return report, migrated
}

// === Edits ===

// AddItem adds one unit of productID.
// Before Initialize the unit is queued in the durable store; while Initialize
// runs the call waits for the cart id, bounded by ctx.
func (r *Reconciler) AddItem(ctx context.Context, productID model.ProductID) error {
	if productID <= 0 {
		return model.NewValidationError("product_id", "must be positive")
	}
	return r.mutate(ctx, edit{
		op:      "add item",
		line:    model.LineItem{ProductID: productID},
		inserts: true,
		apply:   increment,
		send: func(ctx context.Context, cartID model.CartID) error {
			return r.service.AddItem(ctx, cartID, productID, 1)
		},
	})
}

// AddSelection adds one unit of a resolved selection, using its display
// snapshot in place of a product lookup.
func (r *Reconciler) AddSelection(ctx context.Context, sel model.Selection) error {
	if sel.ProductID <= 0 {
		return model.NewValidationError("product_id", "must be positive")
	}
	return r.mutate(ctx, edit{
		op:      "add item",
		line:    sel.LineItem(),
		display: true,
		inserts: true,
		apply:   increment,
		send: func(ctx context.Context, cartID model.CartID) error {
			return r.service.AddItem(ctx, cartID, sel.ProductID, 1)
		},
	})
}

// AddComparison adds the cheaper-shop product of pair.
func (r *Reconciler) AddComparison(ctx context.Context, pair model.ComparisonPair) error {
	sel, err := catalog.Resolve(pair)
	if err != nil {
		return err
	}
	return r.AddSelection(ctx, sel)
}

// RemoveItem drops productID from the cart. Once a cart exists the removal is
// always sent to the service, even when the local view lacks the product.
func (r *Reconciler) RemoveItem(ctx context.Context, productID model.ProductID) error {
	if productID <= 0 {
		return model.NewValidationError("product_id", "must be positive")
	}
	return r.mutate(ctx, edit{
		op:    "remove item",
		line:  model.LineItem{ProductID: productID},
		apply: remove,
		send: func(ctx context.Context, cartID model.CartID) error {
			return r.service.SetQuantity(ctx, cartID, productID, 0)
		},
	})
}

// SetQuantity sets the absolute quantity of productID. Zero removes it.
func (r *Reconciler) SetQuantity(ctx context.Context, productID model.ProductID, quantity int) error {
	if quantity < 0 {
		return model.NewValidationError("quantity", "must not be negative")
	}
	if quantity == 0 {
		return r.RemoveItem(ctx, productID)
	}
	if productID <= 0 {
		return model.NewValidationError("product_id", "must be positive")
	}
	return r.mutate(ctx, edit{
		op:      "set quantity",
		line:    model.LineItem{ProductID: productID},
		inserts: true,
		apply:   setTo(quantity),
		send: func(ctx context.Context, cartID model.CartID) error {
			return r.service.SetQuantity(ctx, cartID, productID, quantity)
		},
	})
}

// edit is one optimistic change to the cart.
type edit struct {
	op      string
	line    model.LineItem // product plus display snapshot; Quantity is ignored
	display bool           // line already carries display data
	inserts bool           // apply may insert the product
	apply   func(lines []model.LineItem, line model.LineItem) []model.LineItem
	send    func(ctx context.Context, cartID model.CartID) error
}

// mutate applies e to the pending queue (idle session) or optimistically to
// the local view followed by the remote call (ready session).
func (r *Reconciler) mutate(ctx context.Context, e edit) error {
	described := e.display || !e.inserts || r.products == nil

	for {
		idle, err := r.lockSettled(ctx)
		if err != nil {
			return &model.WorkflowError{Kind: model.KindCartInit, Op: e.op, ProductID: e.line.ProductID, Err: err}
		}

		current := r.lines
		if idle {
			current, err = r.store.Read(ctx, r.key)
			if err != nil {
				r.mu.Unlock()
				return fmt.Errorf("reading pending cart: %w", err)
			}
		}

		// Display data is looked up outside the lock, then the edit starts over
		if !described && indexOf(current, e.line.ProductID) < 0 {
			r.mu.Unlock()
			e.line = r.describe(ctx, e.line)
			described = true
			continue
		}

		next := e.apply(current, e.line)

		if idle {
			err := r.store.Write(ctx, r.key, next)
			r.mu.Unlock()
			if err != nil {
				return fmt.Errorf("writing pending cart: %w", err)
			}
			r.logger.Debug("pending cart updated",
				slog.String("op", e.op),
				slog.String("product_id", e.line.ProductID.String()),
				slog.Int("lines", len(next)),
			)
			return nil
		}

		r.lines = next
		cartID := r.cartID
		r.pending++
		r.mu.Unlock()

		err = e.send(remote.WithUrgency(ctx, remote.UrgencyInteractive), cartID)

		r.mu.Lock()
		r.pending--
		r.mu.Unlock()

		if err != nil {
			r.logger.Warn("cart edit not confirmed",
				slog.String("op", e.op),
				slog.String("cart_id", string(cartID)),
				slog.String("product_id", e.line.ProductID.String()),
				slog.String("error", err.Error()),
			)
			return &model.WorkflowError{Kind: model.KindSync, Op: e.op, ProductID: e.line.ProductID, Err: err}
		}
		return nil
	}
}

// lockSettled waits out a running Initialize and returns with r.mu held.
// idle reports whether the session has no cart.
func (r *Reconciler) lockSettled(ctx context.Context) (idle bool, err error) {
	for {
		r.mu.Lock()
		switch r.status {
		case StatusReady:
			return false, nil
		case StatusIdle:
			return true, nil
		}
		done := r.initDone
		r.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// describe fills in display data. A failed lookup keeps the bare line.
func (r *Reconciler) describe(ctx context.Context, line model.LineItem) model.LineItem {
	sel, err := r.products.ProductDisplay(ctx, line.ProductID)
	if err != nil {
		r.logger.Warn("product lookup failed",
			slog.String("product_id", line.ProductID.String()),
			slog.String("error", err.Error()),
		)
		return line
	}
	line.Title = sel.Title
	line.Shop = sel.Shop
	line.UnitPrice = sel.Price
	return line
}

// === Reconciliation ===

// Refresh replaces the view with the authoritative cart. Drift between the
// optimistic view and the server is logged, as is any change since the last
// authoritative fetch. A pending queue still awaiting confirmation is cleared.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if r.status != StatusReady {
		r.mu.Unlock()
		return &model.WorkflowError{Kind: model.KindCartInit, Op: "refresh cart", Err: model.ErrNotInitialized}
	}
	cartID := r.cartID
	r.mu.Unlock()

	cart, err := r.service.GetCart(ctx, cartID)
	if err != nil {
		r.logger.Warn("cart refresh failed", slog.String("cart_id", string(cartID)), slog.String("error", err.Error()))
		return &model.WorkflowError{Kind: model.KindRefetch, Op: "refresh cart", Err: err}
	}

	lines := cart.Lines()

	r.mu.Lock()
	defer r.mu.Unlock()

	if drift := DiffLineItems(r.lines, lines); !drift.IsEmpty() {
		r.logger.Info("cart drift corrected",
			slog.String("cart_id", string(cartID)),
			slog.Int("missing", len(drift.Missing)),
			slog.Int("unexpected", len(drift.Unexpected)),
			slog.Int("changed", len(drift.Changed)),
		)
	}
	// Includes edits this session had confirmed since the previous fetch
	if r.server != nil {
		if changed := DiffLineItems(r.server, lines); !changed.IsEmpty() {
			r.logger.Info("server cart changed",
				slog.String("cart_id", string(cartID)),
				slog.Int("removed", len(changed.Missing)),
				slog.Int("added", len(changed.Unexpected)),
				slog.Int("changed", len(changed.Changed)),
			)
		}
	}
	r.replaceLocked(lines)
	if r.queueUnconfirmed {
		r.clearQueueLocked(ctx)
	}
	return nil
}

func (r *Reconciler) replaceLocked(lines []model.LineItem) {
	r.server = lines
	r.lines = cloneLines(lines)
}

// clearQueueLocked deletes the pending record. On failure the queue stays
// unconfirmed and the next Refresh retries.
func (r *Reconciler) clearQueueLocked(ctx context.Context) {
	if err := r.store.Write(ctx, r.key, nil); err != nil {
		r.logger.Warn("pending cart not cleared", slog.String("error", err.Error()))
		return
	}
	r.queueUnconfirmed = false
	r.logger.Debug("pending cart cleared")
}

// === Read-only accessors ===

// View returns a snapshot of the session.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return View{
		CartID:           r.cartID,
		Status:           r.status,
		Lines:            cloneLines(r.lines),
		Pending:          r.pending,
		QueueUnconfirmed: r.queueUnconfirmed,
	}
}

// Queued returns the pending queue while the session is idle. Once a cart
// exists the queue belongs to the migration and nil is returned.
func (r *Reconciler) Queued(ctx context.Context) ([]model.LineItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusIdle {
		return nil, nil
	}
	queued, err := r.store.Read(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("reading pending cart: %w", err)
	}
	return queued, nil
}

// CartID returns the session cart id once a cart exists.
func (r *Reconciler) CartID() (model.CartID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cartID, r.status == StatusReady
}

// Status returns the lifecycle state.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Len returns the number of lines in the local view.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Migration returns the report of the completed migration, if any.
func (r *Reconciler) Migration() *MigrationReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// === Line helpers ===

func indexOf(lines []model.LineItem, productID model.ProductID) int {
	for i, line := range lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

func cloneLines(lines []model.LineItem) []model.LineItem {
	out := make([]model.LineItem, len(lines))
	copy(out, lines)
	return out
}

func increment(lines []model.LineItem, line model.LineItem) []model.LineItem {
	out := cloneLines(lines)
	if i := indexOf(out, line.ProductID); i >= 0 {
		out[i].Quantity++
		return out
	}
	line.Quantity = 1
	return append(out, line)
}

func setTo(quantity int) func([]model.LineItem, model.LineItem) []model.LineItem {
	return func(lines []model.LineItem, line model.LineItem) []model.LineItem {
		out := cloneLines(lines)
		if i := indexOf(out, line.ProductID); i >= 0 {
			out[i].Quantity = quantity
			return out
		}
		line.Quantity = quantity
		return append(out, line)
	}
}

func remove(lines []model.LineItem, line model.LineItem) []model.LineItem {
	out := make([]model.LineItem, 0, len(lines))
	for _, l := range lines {
		if l.ProductID != line.ProductID {
			out = append(out, l)
		}
	}
	return out
}

package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tiketloka-storefront/internal/backend"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/repository/localstore"
	"tiketloka-storefront/internal/service/session"
)

// CacheKey is the local-store entry holding the last confirmed cart.
const CacheKey = "tiketloka_cart_data"

type cartAPI interface {
	Cart(ctx context.Context, token string) ([]domain.CartLineItem, error)
	AddToCart(ctx context.Context, token string, in backend.AddCartInput) (*domain.CartLineItem, error)
	UpdateCartItem(ctx context.Context, token string, id int64, in backend.UpdateCartInput) (*domain.CartLineItem, error)
	RemoveCartItem(ctx context.Context, token string, id int64) error
	ClearCart(ctx context.Context, token string) error
}

// TokenSource yields the current bearer token; session.Manager is one.
type TokenSource interface {
	Token() string
}

// View is a consistent snapshot of the cart, its selection and totals.
type View struct {
	Items    []domain.CartLineItem
	Selected []int64
	Totals   Totals
	// Stale is set when the backend was unreachable and the view comes from
	// memory or the local cache.
	Stale bool
}

// Options tune an Engine.
type Options struct {
	// Cache persists the confirmed cart across restarts. Optional.
	Cache  localstore.Repository
	Logger *log.Logger
	// DisableResync turns off the reload after each acknowledged mutation.
	DisableResync bool
}

// Engine keeps a Store in step with the backend cart.
type Engine struct {
	api    cartAPI
	tokens TokenSource
	store  *Store
	cache  localstore.Repository
	logger *log.Logger
	resync bool

	cacheMu    sync.Mutex
	background sync.WaitGroup
}

// NewEngine builds an Engine with an empty cart.
func NewEngine(api cartAPI, tokens TokenSource, opts Options) *Engine {
	return &Engine{
		api:    api,
		tokens: tokens,
		store:  newStore(),
		cache:  opts.Cache,
		logger: opts.Logger,
		resync: !opts.DisableResync,
	}
}

// Store exposes the underlying cart state.
func (e *Engine) Store() *Store { return e.store }

// Restore seeds the cart from the local cache for instant rendering. It is
// a no-op once the cart holds fresher state.
func (e *Engine) Restore(ctx context.Context) View {
	ticket := e.store.beginLoad()
	if items, ok := e.readCache(ctx); ok {
		e.store.restore(ticket, items)
	}
	v := e.store.view()
	v.Stale = true
	return v
}

// Load replaces the cart with the backend's. Without a session the cart is
// emptied. When the backend is unreachable the last known cart is kept,
// falling back to the local cache, and the view is marked stale.
func (e *Engine) Load(ctx context.Context) (View, error) {
	token := e.tokens.Token()
	if token == "" {
		e.store.reset()
		return e.store.view(), nil
	}

	ticket := e.store.beginLoad()
	items, err := e.api.Cart(ctx, token)
	if err != nil {
		if !errors.Is(err, domain.ErrNetwork) {
			return View{}, fmt.Errorf("load cart: %w", err)
		}
		e.logf("cart: backend unreachable, keeping last known cart: %v", err)
		if cached, ok := e.readCache(ctx); ok {
			e.store.restore(ticket, cached)
		}
		v := e.store.view()
		v.Stale = true
		return v, nil
	}
	if e.store.applyLoad(ticket, items) {
		e.writeCache(ctx)
	}
	return e.store.view(), nil
}

// AddInput describes a new cart line.
type AddInput struct {
	Destination domain.Destination
	Quantity    int
	VisitDate   time.Time
	AddonIDs    []int64
}

// Add appends a line optimistically and confirms it with the backend.
func (e *Engine) Add(ctx context.Context, in AddInput) (domain.CartLineItem, error) {
	token := e.tokens.Token()
	if token == "" {
		return domain.CartLineItem{}, domain.ErrUnauthenticated
	}
	if err := validateAdd(in); err != nil {
		return domain.CartLineItem{}, err
	}

	cmd, err := e.store.begin(opAdd, 0, domain.CartLineItem{
		Destination: in.Destination,
		Quantity:    in.Quantity,
		VisitDate:   dateOnly(in.VisitDate),
		AddonIDs:    append([]int64(nil), in.AddonIDs...),
	}, Patch{})
	if err != nil {
		return domain.CartLineItem{}, err
	}

	echo, err := e.api.AddToCart(context.WithoutCancel(ctx), token, backend.AddCartInput{
		DestinationID: in.Destination.ID,
		Quantity:      in.Quantity,
		VisitDate:     dateOnly(in.VisitDate).Format(domain.DateLayout),
		Addons:        in.AddonIDs,
	})
	if err != nil {
		e.store.fail(cmd)
		return domain.CartLineItem{}, fmt.Errorf("add to cart: %w", err)
	}
	confirmed, ok := e.store.ack(cmd, echo)
	if ok {
		e.afterMutation(ctx)
	}
	return confirmed, nil
}

// Update changes a line optimistically. Only one mutation per line may be
// in flight; a second one fails with domain.ErrItemBusy.
func (e *Engine) Update(ctx context.Context, id int64, patch Patch) (domain.CartLineItem, error) {
	token := e.tokens.Token()
	if token == "" {
		return domain.CartLineItem{}, domain.ErrUnauthenticated
	}
	if err := validatePatch(patch); err != nil {
		return domain.CartLineItem{}, err
	}
	if patch.VisitDate != nil {
		d := dateOnly(*patch.VisitDate)
		patch.VisitDate = &d
	}

	cmd, err := e.store.begin(opUpdate, id, domain.CartLineItem{}, patch)
	if err != nil {
		return domain.CartLineItem{}, err
	}

	var in backend.UpdateCartInput
	in.Quantity = patch.Quantity
	if patch.VisitDate != nil {
		s := patch.VisitDate.Format(domain.DateLayout)
		in.VisitDate = &s
	}
	if patch.AddonIDs != nil {
		addons := append([]int64{}, (*patch.AddonIDs)...)
		in.Addons = &addons
	}

	echo, err := e.api.UpdateCartItem(context.WithoutCancel(ctx), token, id, in)
	if err != nil {
		e.store.fail(cmd)
		return domain.CartLineItem{}, fmt.Errorf("update cart item %d: %w", id, err)
	}
	confirmed, ok := e.store.ack(cmd, echo)
	if !ok {
		return domain.CartLineItem{}, fmt.Errorf("update cart item %d: line left the cart: %w", id, domain.ErrNotFound)
	}
	e.afterMutation(ctx)
	return confirmed, nil
}

// Remove deletes a line optimistically.
func (e *Engine) Remove(ctx context.Context, id int64) error {
	token := e.tokens.Token()
	if token == "" {
		return domain.ErrUnauthenticated
	}
	cmd, err := e.store.begin(opRemove, id, domain.CartLineItem{}, Patch{})
	if err != nil {
		return err
	}
	if err := e.api.RemoveCartItem(context.WithoutCancel(ctx), token, id); err != nil {
		e.store.fail(cmd)
		return fmt.Errorf("remove cart item %d: %w", id, err)
	}
	if _, ok := e.store.ack(cmd, nil); ok {
		e.afterMutation(ctx)
	}
	return nil
}

// Clear empties the cart optimistically; on success the selection is
// cleared as well.
func (e *Engine) Clear(ctx context.Context) error {
	token := e.tokens.Token()
	if token == "" {
		return domain.ErrUnauthenticated
	}
	cmd, err := e.store.begin(opClear, 0, domain.CartLineItem{}, Patch{})
	if err != nil {
		return err
	}
	if err := e.api.ClearCart(context.WithoutCancel(ctx), token); err != nil {
		e.store.fail(cmd)
		return fmt.Errorf("clear cart: %w", err)
	}
	if _, ok := e.store.ack(cmd, nil); ok {
		e.afterMutation(ctx)
	}
	return nil
}

// Reset drops all cart state of the current identity, including the cache.
func (e *Engine) Reset(ctx context.Context) {
	e.store.reset()
	if e.cache == nil {
		return
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if err := e.cache.Delete(ctx, CacheKey); err != nil {
		e.logf("cart: drop cache: %v", err)
	}
}

// CompletePurchase removes bought lines without a reload and clears the
// selection.
func (e *Engine) CompletePurchase(ctx context.Context, ids []int64) {
	e.store.purchase(ids)
	e.writeCache(ctx)
}

// HandleSession follows session transitions: a new authenticated identity
// triggers a background reload, leaving the session drops the cart.
func (e *Engine) HandleSession(ev session.Event) {
	switch ev.State {
	case session.StateAnonymous:
		e.Reset(context.Background())
	case session.StateAuthenticated:
		if ev.Previous == session.StateAuthenticated && !ev.TokenChanged {
			return
		}
		if ev.TokenChanged {
			e.Reset(context.Background())
		}
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			if _, err := e.Load(context.Background()); err != nil {
				e.logf("cart: reload after sign-in: %v", err)
			}
		}()
	}
}

// Items returns the visible cart.
func (e *Engine) Items() []domain.CartLineItem { return e.store.Items() }

// View returns the cart with selection and totals.
func (e *Engine) View() View { return e.store.view() }

// Toggle flips a line in the selection; false means the id is not a
// selectable line.
func (e *Engine) Toggle(id int64) bool { return e.store.toggle(id) }

// ToggleAll selects every line, or none when all are selected.
func (e *Engine) ToggleAll() { e.store.toggleAll() }

// ClearSelection empties the selection.
func (e *Engine) ClearSelection() { e.store.clearSelection() }

// Selected returns the selected ids in cart order.
func (e *Engine) Selected() []int64 { return e.store.view().Selected }

// Totals prices the current selection.
func (e *Engine) Totals() Totals { return e.store.view().Totals }

// Purchasable filters ids down to confirmed lines, without duplicates.
func (e *Engine) Purchasable(ids []int64) []int64 { return e.store.purchasable(ids) }

// WaitIdle blocks until background reloads finish.
func (e *Engine) WaitIdle() { e.background.Wait() }

func (e *Engine) afterMutation(ctx context.Context) {
	e.writeCache(ctx)
	if !e.resync {
		return
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		if _, err := e.Load(context.WithoutCancel(ctx)); err != nil {
			e.logf("cart: resync: %v", err)
		}
	}()
}

func (e *Engine) readCache(ctx context.Context) ([]domain.CartLineItem, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, err := e.cache.Get(ctx, CacheKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.logf("cart: read cache: %v", err)
		}
		return nil, false
	}
	var items []domain.CartLineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		e.logf("cart: ignoring malformed cache: %v", err)
		return nil, false
	}
	return items, true
}

func (e *Engine) writeCache(ctx context.Context) {
	if e.cache == nil {
		return
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	items, live := e.store.snapshot()
	if !live {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		e.logf("cart: encode cache: %v", err)
		return
	}
	if err := e.cache.Set(context.WithoutCancel(ctx), CacheKey, raw); err != nil {
		e.logf("cart: write cache: %v", err)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func validateAdd(in AddInput) error {
	fields := map[string][]string{}
	if in.Destination.ID <= 0 {
		fields["destination_id"] = []string{"destination required"}
	}
	if in.Quantity < 1 {
		fields["quantity"] = []string{"quantity must be at least 1"}
	}
	if in.VisitDate.IsZero() {
		fields["visit_date"] = []string{"visit date required"}
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Message: "cart item is invalid", Fields: fields}
	}
	return nil
}

func validatePatch(p Patch) error {
	if p.Quantity == nil && p.VisitDate == nil && p.AddonIDs == nil {
		return domain.NewValidationError("nothing to update")
	}
	var problems []string
	if p.Quantity != nil && *p.Quantity < 1 {
		problems = append(problems, "quantity must be at least 1")
	}
	if p.VisitDate != nil && p.VisitDate.IsZero() {
		problems = append(problems, "visit date required")
	}
	if len(problems) > 0 {
		return domain.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

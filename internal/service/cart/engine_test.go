package cart

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"tiketloka-storefront/internal/backend"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/repository/localstore"
	"tiketloka-storefront/internal/service/session"
)

type stubTokens struct {
	mu    sync.Mutex
	token string
}

func (s *stubTokens) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *stubTokens) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// fakeBackend keeps a server-side cart with real semantics so reloads stay
// consistent with acknowledged mutations.
type fakeBackend struct {
	mu     sync.Mutex
	items  []domain.CartLineItem
	nextID int64

	cartErr   error
	addErr    error
	updateErr error
	removeErr error
	clearErr  error
	noEcho    bool

	// gate, when set, blocks the named call until closed; entered is
	// signalled first.
	gates   map[string]chan struct{}
	entered chan string

	calls map[string]int
}

var catalog = map[int64]domain.Destination{
	1: {ID: 1, Name: "Kawah Putih", Price: 100000, Addons: []domain.Addon{{ID: 10, Name: "Guide", Price: 20000}}},
	2: {ID: 2, Name: "Museum Geologi", Price: 50000},
	3: {ID: 3, Name: "Tangkuban Perahu", Price: 30000},
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID: 100,
		gates:  map[string]chan struct{}{},
		calls:  map[string]int{},
	}
}

func (f *fakeBackend) wait(name string) {
	f.mu.Lock()
	f.calls[name]++
	gate := f.gates[name]
	delete(f.gates, name)
	entered := f.entered
	f.mu.Unlock()
	if gate == nil {
		return
	}
	if entered != nil {
		entered <- name
	}
	<-gate
}

func (f *fakeBackend) block(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entered == nil {
		f.entered = make(chan string, 8)
	}
	gate := make(chan struct{})
	f.gates[name] = gate
	return gate
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) seed(items ...domain.CartLineItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = domain.CloneLineItems(items)
}

func (f *fakeBackend) Cart(_ context.Context, _ string) ([]domain.CartLineItem, error) {
	f.mu.Lock()
	snapshot := domain.CloneLineItems(f.items)
	err := f.cartErr
	f.mu.Unlock()
	f.wait("cart")
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (f *fakeBackend) AddToCart(_ context.Context, _ string, in backend.AddCartInput) (*domain.CartLineItem, error) {
	f.wait("add")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.nextID++
	date, _ := time.Parse(domain.DateLayout, in.VisitDate)
	item := domain.CartLineItem{
		ID:          f.nextID,
		Destination: catalog[in.DestinationID],
		Quantity:    in.Quantity,
		VisitDate:   date,
		AddonIDs:    append([]int64(nil), in.Addons...),
	}
	f.items = append(f.items, item)
	if f.noEcho {
		return nil, nil
	}
	echo := item.Clone()
	return &echo, nil
}

func (f *fakeBackend) UpdateCartItem(_ context.Context, _ string, id int64, in backend.UpdateCartInput) (*domain.CartLineItem, error) {
	f.wait("update")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.items {
		if f.items[i].ID != id {
			continue
		}
		if in.Quantity != nil {
			f.items[i].Quantity = *in.Quantity
		}
		if in.Addons != nil {
			f.items[i].AddonIDs = append([]int64(nil), (*in.Addons)...)
		}
		echo := f.items[i].Clone()
		return &echo, nil
	}
	return nil, &backend.APIError{Status: 404, Kind: domain.ErrNotFound}
}

func (f *fakeBackend) RemoveCartItem(_ context.Context, _ string, id int64) error {
	f.wait("remove")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.items = without(f.items, map[int64]struct{}{id: {}})
	return nil
}

func (f *fakeBackend) ClearCart(_ context.Context, _ string) error {
	f.wait("clear")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.items = nil
	return nil
}

func visit(day int) time.Time {
	return time.Date(2026, time.February, day, 0, 0, 0, 0, time.UTC)
}

func line(id, dest int64, qty int, addons ...int64) domain.CartLineItem {
	return domain.CartLineItem{ID: id, Destination: catalog[dest], Quantity: qty, VisitDate: visit(1), AddonIDs: addons}
}

func newEngine(t *testing.T, api *fakeBackend, opts Options) (*Engine, *stubTokens) {
	t.Helper()
	tokens := &stubTokens{token: "tok"}
	e := NewEngine(api, tokens, opts)
	t.Cleanup(e.WaitIdle)
	return e, tokens
}

func ids(items []domain.CartLineItem) []int64 {
	out := make([]int64, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestLoadReplacesCartWholesale(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 2), line(2, 2, 1))
	cache := localstore.NewMemory()
	e, _ := newEngine(t, api, Options{Cache: cache})

	v, err := e.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ids(v.Items); !reflect.DeepEqual(got, []int64{1, 2}) || v.Stale {
		t.Fatalf("unexpected view %v stale=%v", got, v.Stale)
	}

	api.seed(line(3, 3, 4))
	v, err = e.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ids(v.Items); !reflect.DeepEqual(got, []int64{3}) {
		t.Fatalf("server must win, got %v", got)
	}

	raw, err := cache.Get(context.Background(), CacheKey)
	if err != nil {
		t.Fatalf("expected cache entry: %v", err)
	}
	var cached []domain.CartLineItem
	if err := json.Unmarshal(raw, &cached); err != nil || len(cached) != 1 || cached[0].ID != 3 {
		t.Fatalf("unexpected cache %s (%v)", raw, err)
	}
}

func TestLoadWithoutTokenEmptiesCart(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1))
	e, tokens := newEngine(t, api, Options{})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tokens.set("")
	v, err := e.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(v.Items) != 0 {
		t.Fatalf("expected empty cart, got %v", ids(v.Items))
	}
	if api.callCount("cart") != 1 {
		t.Fatalf("anonymous load must not call the backend")
	}
}

func TestLoadFallsBackToCacheOnNetworkFailure(t *testing.T) {
	cache := localstore.NewMemory()
	raw, _ := json.Marshal([]domain.CartLineItem{line(7, 1, 2)})
	if err := cache.Set(context.Background(), CacheKey, raw); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	api := newFakeBackend()
	api.cartErr = &backend.APIError{Kind: domain.ErrNetwork}
	e, _ := newEngine(t, api, Options{Cache: cache})

	v, err := e.Load(context.Background())
	if err != nil {
		t.Fatalf("network failure must be absorbed, got %v", err)
	}
	if !v.Stale || !reflect.DeepEqual(ids(v.Items), []int64{7}) {
		t.Fatalf("expected cached cart, got %v stale=%v", ids(v.Items), v.Stale)
	}
}

func TestLoadKeepsLastKnownCartOnNetworkFailure(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1))
	e, _ := newEngine(t, api, Options{Cache: localstore.NewMemory()})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	api.mu.Lock()
	api.cartErr = &backend.APIError{Kind: domain.ErrNetwork}
	api.mu.Unlock()
	v, err := e.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(ids(v.Items), []int64{1}) {
		t.Fatalf("outage must not look like an empty cart, got %v", ids(v.Items))
	}
}

func TestLoadSurfacesUnauthenticated(t *testing.T) {
	api := newFakeBackend()
	api.cartErr = &backend.APIError{Status: 401, Kind: domain.ErrUnauthenticated}
	e, _ := newEngine(t, api, Options{})

	if _, err := e.Load(context.Background()); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestAddRemoveSequencesMatchInMemoryReplay(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		api := newFakeBackend()
		e, _ := newEngine(t, api, Options{})

		type modelLine struct {
			id   int64
			dest int64
			qty  int
		}
		var model []modelLine

		for step := 0; step < 25; step++ {
			if len(model) == 0 || rng.Intn(3) > 0 {
				dest := int64(rng.Intn(3) + 1)
				qty := rng.Intn(4) + 1
				item, err := e.Add(context.Background(), AddInput{Destination: domain.Destination{ID: dest}, Quantity: qty, VisitDate: visit(3)})
				if err != nil {
					t.Fatalf("seed %d: Add: %v", seed, err)
				}
				model = append(model, modelLine{id: item.ID, dest: dest, qty: qty})
			} else {
				i := rng.Intn(len(model))
				if err := e.Remove(context.Background(), model[i].id); err != nil {
					t.Fatalf("seed %d: Remove: %v", seed, err)
				}
				model = append(model[:i], model[i+1:]...)
			}
			e.WaitIdle()
		}

		got := e.Items()
		if len(got) != len(model) {
			t.Fatalf("seed %d: expected %d lines, got %d", seed, len(model), len(got))
		}
		for i, m := range model {
			if got[i].ID != m.id || got[i].Destination.ID != m.dest || got[i].Quantity != m.qty {
				t.Fatalf("seed %d: line %d: expected %+v, got id=%d dest=%d qty=%d", seed, i, m, got[i].ID, got[i].Destination.ID, got[i].Quantity)
			}
		}
	}
}

func TestFailedMutationsRollBackExactly(t *testing.T) {
	failure := &backend.APIError{Kind: domain.ErrNetwork}
	setup := func(t *testing.T) (*Engine, *fakeBackend) {
		api := newFakeBackend()
		api.seed(line(1, 1, 2, 10), line(2, 2, 1))
		e, _ := newEngine(t, api, Options{DisableResync: true})
		if _, err := e.Load(context.Background()); err != nil {
			t.Fatalf("Load: %v", err)
		}
		e.Toggle(1)
		e.Toggle(2)
		return e, api
	}

	cases := []struct {
		name string
		fail func(*fakeBackend)
		run  func(*Engine) error
	}{
		{"add", func(f *fakeBackend) { f.addErr = failure }, func(e *Engine) error {
			_, err := e.Add(context.Background(), AddInput{Destination: domain.Destination{ID: 3}, Quantity: 1, VisitDate: visit(4)})
			return err
		}},
		{"update", func(f *fakeBackend) { f.updateErr = &domain.ValidationError{Message: "quantity too large"} }, func(e *Engine) error {
			qty := 9
			_, err := e.Update(context.Background(), 1, Patch{Quantity: &qty})
			return err
		}},
		{"remove", func(f *fakeBackend) { f.removeErr = failure }, func(e *Engine) error {
			return e.Remove(context.Background(), 2)
		}},
		{"clear", func(f *fakeBackend) { f.clearErr = failure }, func(e *Engine) error {
			return e.Clear(context.Background())
		}},
	}
	for _, tc := range cases {
		e, api := setup(t)
		before := e.View()
		tc.fail(api)
		if err := tc.run(e); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		after := e.View()
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("%s: rollback not exact\nbefore %+v\nafter  %+v", tc.name, before, after)
		}
		if e.Store().Busy(1) || e.Store().Busy(2) {
			t.Fatalf("%s: item left busy after failure", tc.name)
		}
	}
}

func TestAddIsVisibleBeforeAcknowledgement(t *testing.T) {
	api := newFakeBackend()
	e, _ := newEngine(t, api, Options{DisableResync: true})
	gate := api.block("add")

	done := make(chan domain.CartLineItem)
	go func() {
		item, err := e.Add(context.Background(), AddInput{Destination: domain.Destination{ID: 1, Name: "Kawah Putih"}, Quantity: 2, VisitDate: visit(5)})
		if err != nil {
			t.Errorf("Add: %v", err)
		}
		done <- item
	}()
	<-api.entered

	items := e.Items()
	if len(items) != 1 || !items[0].Pending() || items[0].Destination.Name != "Kawah Putih" {
		t.Fatalf("expected optimistic pending line, got %+v", items)
	}
	if e.Toggle(items[0].ID) {
		t.Fatalf("pending line must not be selectable")
	}
	if _, err := e.Update(context.Background(), items[0].ID, Patch{Quantity: intPtr(3)}); !errors.Is(err, domain.ErrItemBusy) {
		t.Fatalf("expected busy for pending line, got %v", err)
	}

	close(gate)
	confirmed := <-done
	if confirmed.ID != 101 || confirmed.Pending() {
		t.Fatalf("expected server id, got %+v", confirmed)
	}
	if got := ids(e.Items()); !reflect.DeepEqual(got, []int64{101}) {
		t.Fatalf("unexpected cart %v", got)
	}
}

func TestAddWithoutEchoKeepsLineUntilReload(t *testing.T) {
	api := newFakeBackend()
	api.noEcho = true
	e, _ := newEngine(t, api, Options{})

	if _, err := e.Add(context.Background(), AddInput{Destination: domain.Destination{ID: 2}, Quantity: 1, VisitDate: visit(2)}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	e.WaitIdle()
	if got := ids(e.Items()); !reflect.DeepEqual(got, []int64{101}) {
		t.Fatalf("expected resync to replace the local line, got %v", got)
	}
}

func TestSameItemMutationsAreSerialized(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1), line(2, 2, 1))
	e, _ := newEngine(t, api, Options{DisableResync: true})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	gate := api.block("update")

	done := make(chan error)
	go func() {
		_, err := e.Update(context.Background(), 1, Patch{Quantity: intPtr(3)})
		done <- err
	}()
	<-api.entered

	if !e.Store().Busy(1) {
		t.Fatalf("expected line 1 busy")
	}
	if err := e.Remove(context.Background(), 1); !errors.Is(err, domain.ErrItemBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if err := e.Clear(context.Background()); !errors.Is(err, domain.ErrItemBusy) {
		t.Fatalf("expected clear to wait for in-flight line, got %v", err)
	}
	if err := e.Remove(context.Background(), 2); err != nil {
		t.Fatalf("other lines must stay independent: %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("Update: %v", err)
	}
	items := e.Items()
	if len(items) != 1 || items[0].ID != 1 || items[0].Quantity != 3 {
		t.Fatalf("unexpected cart %+v", items)
	}
}

func TestMutationOfUnknownLine(t *testing.T) {
	e, _ := newEngine(t, newFakeBackend(), Options{})
	if err := e.Remove(context.Background(), 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMutationsRequireSession(t *testing.T) {
	api := newFakeBackend()
	e, tokens := newEngine(t, api, Options{})
	tokens.set("")
	_, err := e.Add(context.Background(), AddInput{Destination: domain.Destination{ID: 1}, Quantity: 1, VisitDate: visit(1)})
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if api.callCount("add") != 0 {
		t.Fatalf("expected no backend call")
	}
}

func TestAddValidation(t *testing.T) {
	api := newFakeBackend()
	e, _ := newEngine(t, api, Options{})
	_, err := e.Add(context.Background(), AddInput{Quantity: 0})
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || len(vErr.Fields) != 3 {
		t.Fatalf("expected three field errors, got %v", err)
	}
	if len(e.Items()) != 0 || api.callCount("add") != 0 {
		t.Fatalf("invalid add must not touch the cart")
	}
}

func TestLoadIssuedBeforeAcknowledgementIsDiscarded(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1), line(2, 2, 1))
	e, _ := newEngine(t, api, Options{DisableResync: true})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	gate := api.block("cart")
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := e.Load(context.Background()); err != nil {
			t.Errorf("Load: %v", err)
		}
	}()
	<-api.entered

	if err := e.Remove(context.Background(), 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	close(gate)
	<-done

	if got := ids(e.Items()); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("stale load resurrected a removed line: %v", got)
	}
}

func TestUpdateOfLineDroppedByReload(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1), line(2, 2, 1))
	e, _ := newEngine(t, api, Options{DisableResync: true})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	gate := api.block("update")

	done := make(chan error, 1)
	go func() {
		item, err := e.Update(context.Background(), 2, Patch{Quantity: intPtr(4)})
		if err == nil {
			t.Errorf("expected an error, got item %+v", item)
		}
		done <- err
	}()
	<-api.entered

	// another device removes line 2; this reload lands before the update acks
	api.seed(line(1, 1, 1))
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	api.seed(line(1, 1, 1), line(2, 2, 1))
	close(gate)

	if err := <-done; !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := ids(e.Items()); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("unexpected cart %v", got)
	}
	if e.Store().Busy(2) {
		t.Fatalf("line 2 still busy")
	}
}

func TestResetIgnoresInFlightAcknowledgements(t *testing.T) {
	api := newFakeBackend()
	cache := localstore.NewMemory()
	e, _ := newEngine(t, api, Options{Cache: cache, DisableResync: true})
	gate := api.block("add")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Add(context.Background(), AddInput{Destination: domain.Destination{ID: 1}, Quantity: 1, VisitDate: visit(1)})
	}()
	<-api.entered

	e.Reset(context.Background())
	close(gate)
	<-done

	if len(e.Items()) != 0 {
		t.Fatalf("acknowledgement from previous identity leaked: %+v", e.Items())
	}
	if _, err := cache.Get(context.Background(), CacheKey); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected cache dropped, got %v", err)
	}
}

func TestGrandTotalOfSelection(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 2, 10), line(2, 2, 1), line(3, 3, 5))
	e, _ := newEngine(t, api, Options{})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	e.Toggle(1)
	e.Toggle(2)
	totals := e.Totals()
	if totals.GrandTotal != 290000 {
		t.Fatalf("expected 290000, got %d", totals.GrandTotal)
	}
	if totals.Quantity != 3 || len(totals.Lines) != 2 || totals.Lines[0].AddonUnit != 20000 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestComputeTotalsIgnoresStaleAddons(t *testing.T) {
	item := line(1, 1, 2, 10, 99, 10)
	totals := ComputeTotals([]domain.CartLineItem{item, line(2, 2, 0)}, []int64{1, 2, 77})
	if totals.GrandTotal != 240000 {
		t.Fatalf("expected stale and duplicate add-ons ignored, got %d", totals.GrandTotal)
	}
	if totals.Quantity != 2 {
		t.Fatalf("unexpected quantity %d", totals.Quantity)
	}
}

func TestSelectionFollowsCart(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1), line(2, 2, 1))
	e, _ := newEngine(t, api, Options{DisableResync: true})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	e.ToggleAll()
	if got := e.Selected(); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Fatalf("expected all selected, got %v", got)
	}
	e.ToggleAll()
	if got := e.Selected(); len(got) != 0 {
		t.Fatalf("expected none selected, got %v", got)
	}
	if e.Toggle(99) {
		t.Fatalf("unknown id must not be selectable")
	}

	e.Toggle(2)
	if err := e.Remove(context.Background(), 2); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := e.Selected(); len(got) != 0 {
		t.Fatalf("removed line must leave the selection, got %v", got)
	}

	e.Toggle(1)
	if err := e.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := e.Selected(); len(got) != 0 || len(e.Items()) != 0 {
		t.Fatalf("clear must empty cart and selection")
	}
}

func TestCompletePurchaseRemovesOnlyBoughtLines(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1), line(2, 2, 1), line(3, 3, 1))
	e, _ := newEngine(t, api, Options{})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	e.Toggle(1)
	e.Toggle(2)

	e.CompletePurchase(context.Background(), []int64{1, 2})
	if got := ids(e.Items()); !reflect.DeepEqual(got, []int64{3}) {
		t.Fatalf("unexpected cart %v", got)
	}
	if len(e.Selected()) != 0 {
		t.Fatalf("selection must be cleared")
	}
	if api.callCount("cart") != 1 {
		t.Fatalf("purchase must not reload")
	}
}

func TestPurchasableFiltersSelection(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1), line(2, 2, 1))
	e, _ := newEngine(t, api, Options{})
	if _, err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := e.Purchasable([]int64{2, 2, 9, -1, 1}); !reflect.DeepEqual(got, []int64{2, 1}) {
		t.Fatalf("unexpected purchasable ids %v", got)
	}
}

func TestHandleSessionReloadsAndResets(t *testing.T) {
	api := newFakeBackend()
	api.seed(line(1, 1, 1))
	cache := localstore.NewMemory()
	e, tokens := newEngine(t, api, Options{Cache: cache})

	e.HandleSession(session.Event{Previous: session.StateResolving, State: session.StateAuthenticated, Identity: domain.Identity{Token: "tok"}})
	e.WaitIdle()
	if got := ids(e.Items()); !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("expected reload on sign-in, got %v", got)
	}

	e.HandleSession(session.Event{Previous: session.StateAuthenticated, State: session.StateAuthenticated, Identity: domain.Identity{Token: "tok"}})
	e.WaitIdle()
	if api.callCount("cart") != 1 {
		t.Fatalf("profile-only changes must not reload")
	}

	tokens.set("")
	e.HandleSession(session.Event{Previous: session.StateAuthenticated, State: session.StateAnonymous, TokenChanged: true})
	if len(e.Items()) != 0 {
		t.Fatalf("expected cart dropped on logout")
	}
	if _, err := cache.Get(context.Background(), CacheKey); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected cache dropped, got %v", err)
	}
}

func TestRestoreFromCache(t *testing.T) {
	cache := localstore.NewMemory()
	raw, _ := json.Marshal([]domain.CartLineItem{line(5, 2, 1)})
	_ = cache.Set(context.Background(), CacheKey, raw)
	e, _ := newEngine(t, newFakeBackend(), Options{Cache: cache})

	v := e.Restore(context.Background())
	if !v.Stale || !reflect.DeepEqual(ids(v.Items), []int64{5}) {
		t.Fatalf("unexpected restored view %+v", v)
	}
}

func intPtr(v int) *int { return &v }

package cart

import (
	"sync"
	"time"

	"tiketloka-storefront/internal/domain"
)

type opKind int

const (
	opAdd opKind = iota + 1
	opUpdate
	opRemove
	opClear
)

// Patch lists the line fields to change; nil fields are kept.
type Patch struct {
	Quantity  *int
	VisitDate *time.Time
	AddonIDs  *[]int64
}

func (p Patch) apply(item domain.CartLineItem) domain.CartLineItem {
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.VisitDate != nil {
		item.VisitDate = *p.VisitDate
	}
	if p.AddonIDs != nil {
		item.AddonIDs = append([]int64(nil), (*p.AddonIDs)...)
	}
	return item
}

// command is one optimistic mutation waiting for its acknowledgement.
type command struct {
	seq   uint64
	epoch uint64
	kind  opKind
	id    int64
	item  domain.CartLineItem
	patch Patch
}

type loadTicket struct {
	seq   uint64
	epoch uint64
}

// Store holds the confirmed cart and the log of pending mutations. The
// visible cart is always the log replayed over the confirmed base, so
// dropping a failed command is an exact rollback of that command.
type Store struct {
	mu       sync.Mutex
	base     []domain.CartLineItem
	pending  []command
	seq      uint64
	epoch    uint64
	lastLoad uint64
	lastAck  uint64
	live     bool
	nextTemp int64
	busy     map[int64]struct{}
	clearing bool
	sel      Selection
}

func newStore() *Store {
	return &Store{busy: make(map[int64]struct{})}
}

// Items returns the visible cart.
func (s *Store) Items() []domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneLineItems(s.visibleLocked())
}

// Confirmed returns the last acknowledged server state.
func (s *Store) Confirmed() []domain.CartLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneLineItems(s.base)
}

// Busy reports whether id has a mutation in flight.
func (s *Store) Busy(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.busy[id]
	return ok || s.clearing
}

func (s *Store) visibleLocked() []domain.CartLineItem {
	items := domain.CloneLineItems(s.base)
	for _, cmd := range s.pending {
		items = replay(items, cmd)
	}
	if items == nil {
		items = []domain.CartLineItem{}
	}
	return items
}

func replay(items []domain.CartLineItem, cmd command) []domain.CartLineItem {
	switch cmd.kind {
	case opAdd:
		return upsert(items, cmd.item)
	case opUpdate:
		for i := range items {
			if items[i].ID == cmd.id {
				items[i] = cmd.patch.apply(items[i])
			}
		}
		return items
	case opRemove:
		return without(items, map[int64]struct{}{cmd.id: {}})
	case opClear:
		return items[:0]
	}
	return items
}

func upsert(items []domain.CartLineItem, item domain.CartLineItem) []domain.CartLineItem {
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func without(items []domain.CartLineItem, ids map[int64]struct{}) []domain.CartLineItem {
	out := items[:0]
	for _, item := range items {
		if _, drop := ids[item.ID]; !drop {
			out = append(out, item)
		}
	}
	return out
}

// begin validates a mutation against in-flight work and appends it to the
// pending log.
func (s *Store) begin(kind opKind, id int64, item domain.CartLineItem, patch Patch) (command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case opAdd:
		s.nextTemp--
		id = s.nextTemp
		item.ID = id
	case opUpdate, opRemove:
		if _, ok := s.busy[id]; ok || s.clearing {
			return command{}, domain.ErrItemBusy
		}
		if !containsID(s.visibleLocked(), id) {
			return command{}, domain.ErrNotFound
		}
	case opClear:
		if len(s.busy) > 0 || s.clearing {
			return command{}, domain.ErrItemBusy
		}
	}

	s.seq++
	cmd := command{seq: s.seq, epoch: s.epoch, kind: kind, id: id, item: item, patch: patch}
	s.pending = append(s.pending, cmd)
	if kind == opClear {
		s.clearing = true
	} else {
		s.busy[id] = struct{}{}
	}
	return cmd, nil
}

// ack moves a pending command into the confirmed base. It returns the
// confirmed item for adds and updates, and false when the command no longer
// belongs to this store (reset or purchased meanwhile) or when an updated
// line has since left the base.
func (s *Store) ack(cmd command, echo *domain.CartLineItem) (domain.CartLineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.releaseLocked(cmd) {
		return domain.CartLineItem{}, false
	}

	var confirmed domain.CartLineItem
	matched := cmd.kind != opUpdate
	switch cmd.kind {
	case opAdd:
		confirmed = cmd.item
		if echo != nil && echo.ID > 0 {
			confirmed = merge(*echo, cmd.item)
		}
		s.base = upsert(s.base, confirmed)
	case opUpdate:
		for i := range s.base {
			if s.base[i].ID != cmd.id {
				continue
			}
			s.base[i] = cmd.patch.apply(s.base[i])
			if echo != nil && echo.ID == cmd.id {
				s.base[i] = merge(*echo, s.base[i])
			}
			confirmed = s.base[i]
			matched = true
		}
	case opRemove:
		s.base = without(s.base, map[int64]struct{}{cmd.id: {}})
	case opClear:
		s.base = nil
		s.sel.clear()
	}
	s.seq++
	s.lastAck = s.seq
	s.live = true
	s.pruneLocked()
	return confirmed.Clone(), matched
}

// fail drops a pending command; the visible cart reverts to what it would
// be had the command never been issued.
func (s *Store) fail(cmd command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(cmd)
}

func (s *Store) releaseLocked(cmd command) bool {
	if cmd.epoch != s.epoch {
		return false
	}
	idx := -1
	for i, p := range s.pending {
		if p.seq == cmd.seq {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	if cmd.kind == opClear {
		s.clearing = false
	} else {
		delete(s.busy, cmd.id)
	}
	return true
}

func (s *Store) beginLoad() loadTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return loadTicket{seq: s.seq, epoch: s.epoch}
}

// applyLoad replaces the confirmed base wholesale. Results from an older
// epoch, older than the last applied load, or issued before an
// acknowledgement that they may not reflect are discarded.
func (s *Store) applyLoad(t loadTicket, items []domain.CartLineItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.epoch != s.epoch || t.seq < s.lastLoad || t.seq < s.lastAck {
		return false
	}
	s.lastLoad = t.seq
	s.base = dedupe(items)
	s.live = true
	s.pruneLocked()
	return true
}

// restore seeds the base from the local cache when nothing fresher is known.
func (s *Store) restore(t loadTicket, items []domain.CartLineItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.epoch != s.epoch || s.live {
		return false
	}
	s.base = dedupe(items)
	s.live = true
	s.pruneLocked()
	return true
}

// reset forgets everything; in-flight acknowledgements and loads from
// before the reset are ignored.
func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.base = nil
	s.pending = nil
	s.busy = make(map[int64]struct{})
	s.clearing = false
	s.live = false
	s.sel.clear()
}

// purchase removes bought lines from the base and from the pending log and
// clears the selection.
func (s *Store) purchase(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.base = without(s.base, drop)
	kept := s.pending[:0]
	for _, cmd := range s.pending {
		if _, bought := drop[cmd.id]; bought && cmd.kind != opClear {
			delete(s.busy, cmd.id)
			continue
		}
		kept = append(kept, cmd)
	}
	s.pending = kept
	s.sel.clear()
	s.seq++
	s.lastAck = s.seq
	s.pruneLocked()
}

// snapshot returns the base for the cache and whether it belongs to the
// current identity.
func (s *Store) snapshot() ([]domain.CartLineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneLineItems(s.base), s.live
}

// toggle flips id in the selection. Only confirmed visible lines can be
// selected.
func (s *Store) toggle(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= 0 || !containsID(s.visibleLocked(), id) {
		return false
	}
	s.sel.set(id, !s.sel.has(id))
	return true
}

// toggleAll selects every selectable line, or clears the selection when all
// of them are already selected.
func (s *Store) toggleAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	selectable := make([]int64, 0)
	for _, item := range s.visibleLocked() {
		if !item.Pending() {
			selectable = append(selectable, item.ID)
		}
	}
	all := len(selectable) > 0
	for _, id := range selectable {
		if !s.sel.has(id) {
			all = false
			break
		}
	}
	if all {
		s.sel.clear()
		return
	}
	for _, id := range selectable {
		s.sel.set(id, true)
	}
}

func (s *Store) clearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel.clear()
}

// view returns the visible cart with its selection and totals computed from
// the same state.
func (s *Store) view() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.visibleLocked()
	selected := s.sel.ordered(items)
	return View{
		Items:    items,
		Selected: selected,
		Totals:   ComputeTotals(items, selected),
	}
}

// purchasable dedupes ids and keeps only confirmed lines that are visible.
func (s *Store) purchasable(ids []int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	present := make(map[int64]struct{})
	for _, item := range s.visibleLocked() {
		if !item.Pending() {
			present[item.ID] = struct{}{}
		}
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// pruneLocked drops selected ids that are no longer in the visible cart.
// Optimistic changes do not prune, so a failed command leaves the selection
// as it was.
func (s *Store) pruneLocked() {
	if s.sel.len() == 0 {
		return
	}
	present := make(map[int64]struct{})
	for _, item := range s.visibleLocked() {
		present[item.ID] = struct{}{}
	}
	s.sel.retain(present)
}

func containsID(items []domain.CartLineItem, id int64) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

// merge prefers the server echo and falls back to local fields it omits.
func merge(echo, local domain.CartLineItem) domain.CartLineItem {
	if echo.Destination.ID == 0 {
		echo.Destination = local.Destination
	} else if len(echo.Destination.Addons) == 0 && echo.Destination.ID == local.Destination.ID {
		echo.Destination.Addons = local.Destination.Addons
	}
	if echo.Quantity <= 0 {
		echo.Quantity = local.Quantity
	}
	if echo.VisitDate.IsZero() {
		echo.VisitDate = local.VisitDate
	}
	if echo.AddonIDs == nil {
		echo.AddonIDs = local.AddonIDs
	}
	return echo.Clone()
}

func dedupe(items []domain.CartLineItem) []domain.CartLineItem {
	seen := make(map[int64]struct{}, len(items))
	out := make([]domain.CartLineItem, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item.Clone())
	}
	return out
}

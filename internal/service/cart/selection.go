package cart

import "tiketloka-storefront/internal/domain"

// Selection is the set of line ids chosen for the next checkout. It is not
// safe for concurrent use; the Store guards it.
type Selection struct {
	ids map[int64]struct{}
}

func (s *Selection) has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) set(id int64, on bool) {
	if on {
		if s.ids == nil {
			s.ids = make(map[int64]struct{})
		}
		s.ids[id] = struct{}{}
		return
	}
	delete(s.ids, id)
}

func (s *Selection) clear() {
	s.ids = nil
}

func (s *Selection) len() int {
	return len(s.ids)
}

// retain drops every id not in present.
func (s *Selection) retain(present map[int64]struct{}) {
	for id := range s.ids {
		if _, ok := present[id]; !ok {
			delete(s.ids, id)
		}
	}
}

// ordered returns the selected ids in cart order.
func (s *Selection) ordered(items []domain.CartLineItem) []int64 {
	out := make([]int64, 0, len(s.ids))
	for _, item := range items {
		if s.has(item.ID) {
			out = append(out, item.ID)
		}
	}
	return out
}

// LineTotal is the priced view of one selected line.
type LineTotal struct {
	Item      domain.CartLineItem
	Addons    []domain.Addon
	AddonUnit int64
	Total     int64
}

// Totals is the price summary of a selection.
type Totals struct {
	Lines      []LineTotal
	Quantity   int
	GrandTotal int64
}

// ComputeTotals prices the selected items of a cart. Ids that are not in the
// cart are ignored, add-ons that do not resolve contribute nothing.
func ComputeTotals(items []domain.CartLineItem, selected []int64) Totals {
	want := make(map[int64]struct{}, len(selected))
	for _, id := range selected {
		want[id] = struct{}{}
	}
	var out Totals
	for _, item := range items {
		if _, ok := want[item.ID]; !ok {
			continue
		}
		addons := item.SelectedAddons()
		line := LineTotal{
			Item:      item,
			Addons:    addons,
			AddonUnit: item.AddonUnitTotal(),
			Total:     item.LineTotal(),
		}
		out.Lines = append(out.Lines, line)
		if item.Quantity > 0 {
			out.Quantity += item.Quantity
		}
		out.GrandTotal += line.Total
	}
	return out
}

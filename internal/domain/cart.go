package domain

import "time"

// DateLayout is the calendar date format used on the wire and in caches.
const DateLayout = "2006-01-02"

// Addon is an optional extra that can be bought with a destination ticket.
type Addon struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Destination is the ticketed attraction a cart line refers to. Prices are
// whole rupiah.
type Destination struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    int64   `json:"price"`
	ImageURL string  `json:"image_url,omitempty"`
	Category string  `json:"category,omitempty"`
	Addons   []Addon `json:"addons,omitempty"`
}

// CartLineItem is one entry of a cart. ID is server-assigned; pending adds
// carry a temporary negative ID until the backend acknowledges them.
type CartLineItem struct {
	ID          int64       `json:"id"`
	Destination Destination `json:"destination"`
	Quantity    int         `json:"quantity"`
	VisitDate   time.Time   `json:"visit_date"`
	AddonIDs    []int64     `json:"addons,omitempty"`
}

// Pending reports whether the item is an unacknowledged optimistic add.
func (item CartLineItem) Pending() bool {
	return item.ID < 0
}

// SelectedAddons resolves AddonIDs against the destination's available
// add-ons. IDs that do not resolve are stale and skipped.
func (item CartLineItem) SelectedAddons() []Addon {
	if len(item.AddonIDs) == 0 || len(item.Destination.Addons) == 0 {
		return nil
	}
	available := make(map[int64]Addon, len(item.Destination.Addons))
	for _, a := range item.Destination.Addons {
		available[a.ID] = a
	}
	seen := make(map[int64]struct{}, len(item.AddonIDs))
	out := make([]Addon, 0, len(item.AddonIDs))
	for _, id := range item.AddonIDs {
		a, ok := available[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, a)
	}
	return out
}

// AddonUnitTotal is the per-ticket price of the resolved add-ons.
func (item CartLineItem) AddonUnitTotal() int64 {
	var sum int64
	for _, a := range item.SelectedAddons() {
		sum += a.Price
	}
	return sum
}

// LineTotal is (destination price + add-ons) times quantity.
func (item CartLineItem) LineTotal() int64 {
	if item.Quantity <= 0 {
		return 0
	}
	return (item.Destination.Price + item.AddonUnitTotal()) * int64(item.Quantity)
}

// CloneLineItems deep-copies a slice of line items.
func CloneLineItems(items []CartLineItem) []CartLineItem {
	if items == nil {
		return nil
	}
	out := make([]CartLineItem, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

// Clone returns a copy that shares no slices with item.
func (item CartLineItem) Clone() CartLineItem {
	if item.AddonIDs != nil {
		item.AddonIDs = append([]int64(nil), item.AddonIDs...)
	}
	if item.Destination.Addons != nil {
		item.Destination.Addons = append([]Addon(nil), item.Destination.Addons...)
	}
	return item
}

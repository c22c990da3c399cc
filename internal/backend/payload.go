package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"tiketloka-storefront/internal/domain"
)

// The backend is loosely typed: numbers arrive as strings, add-on lists as
// JSON-encoded strings, categories as either a name or an object. Decoding
// here never fails on a single malformed field; it degrades to zero values.

// lenientUnmarshal decodes like json.Unmarshal but tolerates fields of the
// wrong JSON type; encoding/json still fills every other field in that case.
func lenientUnmarshal(b []byte, v any) error {
	err := json.Unmarshal(b, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return nil
	}
	return err
}

// flexInt decodes a JSON number or numeric string. Anything else is zero.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = flexInt(parseFlexInt(b))
	return nil
}

func parseFlexInt(b []byte) int64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return 0
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return 0
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Round(f)
	// 2^63 itself does not fit.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// flexIDs decodes an id list given as an array of numbers or strings, or as
// a string holding such an array. Entries that are not positive ids are dropped.
type flexIDs []int64

func (f *flexIDs) UnmarshalJSON(b []byte) error {
	*f = parseFlexIDs(b, 0)
	return nil
}

func parseFlexIDs(b []byte, depth int) []int64 {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || depth > 1 {
		return nil
	}
	switch b[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return nil
		}
		return parseFlexIDs([]byte(inner), depth+1)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil
		}
		out := make([]int64, 0, len(raw))
		for _, r := range raw {
			if id := parseFlexInt(r); id > 0 {
				out = append(out, id)
			}
		}
		return out
	default:
		return nil
	}
}

// flexName decodes a string or an object with a name field.
type flexName string

func (f *flexName) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = ""
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if json.Unmarshal(b, &s) == nil {
			*f = flexName(s)
		}
	case '{':
		var obj struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(b, &obj) == nil {
			*f = flexName(obj.Name)
		}
	}
	return nil
}

// flexDate decodes a calendar date or a timestamp; malformed input is zero.
type flexDate time.Time

func (f *flexDate) UnmarshalJSON(b []byte) error {
	*f = flexDate(time.Time{})
	var s string
	if json.Unmarshal(b, &s) != nil {
		return nil
	}
	*f = flexDate(parseDate(s))
	return nil
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(domain.DateLayout, s); err == nil {
		return t
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

// flexTime decodes a timestamp keeping its clock part.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	*f = flexTime(time.Time{})
	var s string
	if json.Unmarshal(b, &s) != nil {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", domain.DateLayout} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			*f = flexTime(t)
			return nil
		}
	}
	return nil
}

type wireUser struct {
	ID          flexInt `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	PhoneNumber string  `json:"phone_number"`
	AvatarURL   string  `json:"avatar_url"`
}

func (u wireUser) toDomain() domain.User {
	return domain.User{
		Profile: domain.Profile{
			ID:          int64(u.ID),
			Name:        u.Name,
			Email:       u.Email,
			PhoneNumber: u.PhoneNumber,
			AvatarURL:   u.AvatarURL,
		},
		Role: domain.RoleFromUser(u.Role),
	}
}

type wireAddon struct {
	ID    flexInt `json:"id"`
	Name  string  `json:"name"`
	Price flexInt `json:"price"`
}

type wireDestination struct {
	ID       flexInt           `json:"id"`
	Name     string            `json:"name"`
	Price    flexInt           `json:"price"`
	ImageURL string            `json:"image_url"`
	Image    string            `json:"image"`
	Category flexName          `json:"category"`
	Addons   []json.RawMessage `json:"addons"`
}

func (d wireDestination) toDomain() domain.Destination {
	image := d.ImageURL
	if image == "" {
		image = d.Image
	}
	out := domain.Destination{
		ID:       int64(d.ID),
		Name:     d.Name,
		Price:    int64(d.Price),
		ImageURL: image,
		Category: string(d.Category),
	}
	for _, raw := range d.Addons {
		var a wireAddon
		if err := lenientUnmarshal(raw, &a); err != nil || a.ID <= 0 {
			continue
		}
		out.Addons = append(out.Addons, domain.Addon{ID: int64(a.ID), Name: a.Name, Price: int64(a.Price)})
	}
	return out
}

type wireCartItem struct {
	ID          flexInt         `json:"id"`
	Quantity    flexInt         `json:"quantity"`
	VisitDate   flexDate        `json:"visit_date"`
	Addons      flexIDs         `json:"addons"`
	Destination wireDestination `json:"destination"`
}

func (w wireCartItem) toDomain() domain.CartLineItem {
	return domain.CartLineItem{
		ID:          int64(w.ID),
		Destination: w.Destination.toDomain(),
		Quantity:    int(w.Quantity),
		VisitDate:   time.Time(w.VisitDate),
		AddonIDs:    []int64(w.Addons),
	}
}

// decodeCartItems accepts either a bare array or an object with a data
// array. Entries that cannot be decoded, or have no id, are skipped.
func decodeCartItems(body []byte) ([]domain.CartLineItem, int, error) {
	raw, err := unwrapData(body)
	if err != nil {
		return nil, 0, err
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, 0, err
	}
	items := make([]domain.CartLineItem, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		var w wireCartItem
		if err := lenientUnmarshal(entry, &w); err != nil || w.ID <= 0 {
			skipped++
			continue
		}
		items = append(items, w.toDomain())
	}
	return items, skipped, nil
}

// decodeCartItem returns nil when the body holds no usable item.
func decodeCartItem(body []byte) *domain.CartLineItem {
	raw, err := unwrapData(body)
	if err != nil {
		return nil
	}
	var w wireCartItem
	if err := lenientUnmarshal(raw, &w); err != nil || w.ID <= 0 {
		return nil
	}
	item := w.toDomain()
	return &item
}

// unwrapData returns the "data" member when body is an object that has one.
func unwrapData(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		if len(envelope.Data) > 0 && !bytes.Equal(envelope.Data, []byte("null")) {
			return envelope.Data, nil
		}
	}
	return trimmed, nil
}

type wireAuth struct {
	AccessToken string   `json:"access_token"`
	Token       string   `json:"token"`
	User        wireUser `json:"user"`
}

type wireCheckout struct {
	BookingCode string `json:"booking_code"`
}

type wireTicket struct {
	TicketCode  string          `json:"ticket_code"`
	Quantity    flexInt         `json:"quantity"`
	VisitDate   flexDate        `json:"visit_date"`
	Destination wireDestination `json:"destination"`
}

type wireBooking struct {
	BookingCode   string       `json:"booking_code"`
	Status        string       `json:"status"`
	PaymentMethod string       `json:"payment_method"`
	GrandTotal    flexInt      `json:"grand_total"`
	TotalPrice    flexInt      `json:"total_price"`
	CreatedAt     flexTime     `json:"created_at"`
	Details       []wireTicket `json:"details"`
}

func (b wireBooking) toDomain() domain.BookingDetail {
	total := int64(b.GrandTotal)
	if total == 0 {
		total = int64(b.TotalPrice)
	}
	out := domain.BookingDetail{
		Code:          b.BookingCode,
		Status:        b.Status,
		PaymentMethod: b.PaymentMethod,
		GrandTotal:    total,
		CreatedAt:     time.Time(b.CreatedAt),
	}
	for _, d := range b.Details {
		code := d.TicketCode
		if code == "" {
			code = b.BookingCode
		}
		out.Tickets = append(out.Tickets, domain.Ticket{
			Code:        code,
			Destination: d.Destination.Name,
			VisitDate:   time.Time(d.VisitDate),
			Quantity:    int(d.Quantity),
		})
	}
	return out
}

type wireDashboard struct {
	TotalRevenue      flexInt `json:"total_revenue"`
	TotalBookings     flexInt `json:"total_bookings"`
	TotalTicketsSold  flexInt `json:"total_tickets_sold"`
	TotalDestinations flexInt `json:"total_destinations"`
}

package domain

import (
	"strings"
	"time"
)

// PaymentMethod is the payment channel chosen at checkout.
type PaymentMethod string

const (
	PaymentQRIS PaymentMethod = "qris"
	PaymentBCA  PaymentMethod = "bca"
)

// ParsePaymentMethod validates a payment method name.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PaymentQRIS, PaymentBCA:
		return m, true
	default:
		return "", false
	}
}

// Booking is the client's record of a successful checkout. The backend owns
// everything else about it.
type Booking struct {
	Code          string
	LineItemIDs   []int64
	PaymentMethod PaymentMethod
}

// BookingDetail is a booking as returned by the ticket view endpoint.
type BookingDetail struct {
	Code          string
	Status        string
	PaymentMethod string
	GrandTotal    int64
	CreatedAt     time.Time
	Tickets       []Ticket
}

// Ticket is one admission inside a booking.
type Ticket struct {
	Code        string
	Destination string
	VisitDate   time.Time
	Quantity    int
}

// DashboardStats is the admin console summary.
type DashboardStats struct {
	TotalRevenue      int64
	TotalBookings     int64
	TotalTicketsSold  int64
	TotalDestinations int64
}

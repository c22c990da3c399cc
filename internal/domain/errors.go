package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated means there is no session or the backend rejected its token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized means the session is valid but its role may not perform the action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrValidation is the class of every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNetwork covers transport failures, timeouts and unexpected server errors.
	ErrNetwork = errors.New("network error")
	// ErrConflict means the backend refused the request against its current state (HTTP 409).
	ErrConflict = errors.New("conflict")
	// ErrInvalidSelection is returned for a checkout without any purchasable item.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrItemBusy is returned while another mutation of the same cart item is in flight.
	ErrItemBusy = errors.New("cart item has a pending change")
	// ErrCheckoutInFlight is returned when a checkout is already being submitted.
	ErrCheckoutInFlight = errors.New("checkout already in progress")
)

// ValidationError carries the message and per-field messages of a rejected payload.
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = ErrValidation.Error()
	}
	if len(e.Fields) == 0 {
		return msg
	}
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	var b strings.Builder
	b.WriteString(msg)
	for _, field := range fields {
		msgs := e.Fields[field]
		if len(msgs) == 0 {
			continue
		}
		b.WriteString("; ")
		b.WriteString(field)
		b.WriteString(": ")
		b.WriteString(strings.Join(msgs, ", "))
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError without field details.
func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

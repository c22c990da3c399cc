package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tiketloka-storefront/internal/domain"
)

// ErrMalformedResponse marks a 2xx response the client could not use.
var ErrMalformedResponse = errors.New("malformed response")

// APIError describes a failed backend call. Kind is one of the domain error
// classes (or a *domain.ValidationError) and is what callers match on.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Kind    error
	Err     error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "backend: %s %s", e.Method, e.Path)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.Status)
	}
	switch {
	case e.Message != "":
		b.WriteString(": ")
		b.WriteString(e.Message)
	case e.Kind != nil:
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

type errorBody struct {
	Message string                     `json:"message"`
	Error   string                     `json:"error"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

// classify maps a non-2xx response onto the domain taxonomy.
func classify(method, path string, status int, body []byte) *APIError {
	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)
	msg := strings.TrimSpace(parsed.Message)
	if msg == "" {
		msg = strings.TrimSpace(parsed.Error)
	}

	apiErr := &APIError{Method: method, Path: path, Status: status, Message: msg}
	switch {
	case status == http.StatusUnauthorized:
		apiErr.Kind = domain.ErrUnauthenticated
	case status == http.StatusForbidden:
		apiErr.Kind = domain.ErrUnauthorized
	case status == http.StatusNotFound:
		apiErr.Kind = domain.ErrNotFound
	case status == http.StatusConflict:
		apiErr.Kind = domain.ErrConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		apiErr.Kind = &domain.ValidationError{Message: msg, Fields: fieldErrors(parsed.Errors)}
	default:
		// 5xx, 429 and anything unexpected are treated as transient.
		apiErr.Kind = domain.ErrNetwork
	}
	return apiErr
}

// fieldErrors accepts both {"field": ["msg"]} and {"field": "msg"}.
func fieldErrors(raw map[string]json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for field, value := range raw {
		var many []string
		if err := json.Unmarshal(value, &many); err == nil {
			out[field] = many
			continue
		}
		var one string
		if err := json.Unmarshal(value, &one); err == nil && one != "" {
			out[field] = []string{one}
		}
	}
	return out
}

func networkError(method, path string, err error) *APIError {
	return &APIError{Method: method, Path: path, Kind: domain.ErrNetwork, Err: err}
}

func malformed(method, path string, err error) *APIError {
	return &APIError{Method: method, Path: path, Kind: domain.ErrNetwork, Err: errors.Join(ErrMalformedResponse, err)}
}

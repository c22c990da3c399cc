package identity

import "time"

const (
	// TokenCookie holds the bearer token when set server-side (httpOnly).
	TokenCookie = "token"
	// ReadableTokenCookie is the client-readable fallback for the token.
	ReadableTokenCookie = "session_token"
	// RoleCookie holds the role tag read by the route guard.
	RoleCookie = "user_role"
)

// Cookie is a named value with an absolute expiry.
type Cookie struct {
	Name     string
	Value    string
	Expires  time.Time
	HTTPOnly bool
}

// CookieJar is the cookie substrate. Get reports false for missing or
// expired cookies.
type CookieJar interface {
	Get(name string) (string, bool)
	Set(c Cookie) error
	Delete(name string) error
}

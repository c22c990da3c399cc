package identity

import (
	"net/http"
	"time"
)

// RequestCookies reads cookies from an incoming request and writes
// Set-Cookie headers on its response. Writes are also visible to later
// reads on the same value.
type RequestCookies struct {
	w        http.ResponseWriter
	r        *http.Request
	secure   bool
	now      func() time.Time
	override map[string]*string
}

// NewRequestCookies wraps one request/response pair. secure marks written
// cookies Secure.
func NewRequestCookies(w http.ResponseWriter, r *http.Request, secure bool) *RequestCookies {
	return &RequestCookies{w: w, r: r, secure: secure, now: time.Now, override: make(map[string]*string)}
}

func (c *RequestCookies) Get(name string) (string, bool) {
	if v, ok := c.override[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	if c.r == nil {
		return "", false
	}
	ck, err := c.r.Cookie(name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

func (c *RequestCookies) Set(ck Cookie) error {
	maxAge := int(ck.Expires.Sub(c.now()).Seconds())
	if maxAge <= 0 {
		return c.Delete(ck.Name)
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     ck.Name,
		Value:    ck.Value,
		Path:     "/",
		Expires:  ck.Expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: ck.HTTPOnly,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	v := ck.Value
	c.override[ck.Name] = &v
	return nil
}

func (c *RequestCookies) Delete(name string) error {
	http.SetCookie(c.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.override[name] = nil
	return nil
}

// Package guard decides route access from the cheap persisted session
// signal and authorizes pages against a fully resolved identity.
package guard

import (
	"strings"

	"tiketloka-storefront/internal/domain"
)

// Decision is the outcome of Decide. An empty Redirect means allow.
type Decision struct {
	Redirect string
}

// Allowed reports whether the route may render.
func (d Decision) Allowed() bool {
	return d.Redirect == ""
}

// Paths are the routes the guard knows about.
type Paths struct {
	AdminPrefix    string
	Login          string
	Register       string
	Home           string
	AdminDashboard string
}

// DefaultPaths are the storefront's routes.
var DefaultPaths = Paths{
	AdminPrefix:    "/admin",
	Login:          "/login",
	Register:       "/register",
	Home:           "/",
	AdminDashboard: "/admin/dashboard",
}

// Decide applies DefaultPaths.
func Decide(path, token string, role domain.Role) Decision {
	return DefaultPaths.Decide(path, token, role)
}

// Decide is pure and network free. The admin prefix is a plain string
// prefix, so "/administrator" is gated too.
func (p Paths) Decide(path, token string, role domain.Role) Decision {
	if strings.HasPrefix(path, p.AdminPrefix) {
		if token == "" {
			return Decision{Redirect: p.Login}
		}
		if !role.IsStaff() {
			return Decision{Redirect: p.Home}
		}
		return Decision{}
	}
	if (path == p.Login || path == p.Register) && token != "" {
		if role.IsStaff() {
			return Decision{Redirect: p.AdminDashboard}
		}
		return Decision{Redirect: p.Home}
	}
	return Decision{}
}

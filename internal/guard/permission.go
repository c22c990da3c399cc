package guard

import (
	"strings"

	"tiketloka-storefront/internal/domain"
)

// Permission names an action inside the admin console.
type Permission string

const (
	ViewAdmin        Permission = "view_admin"
	ManageAdmins     Permission = "manage_admins"
	ManageCatalog    Permission = "manage_catalog"
	ViewTransactions Permission = "view_transactions"
)

var grants = map[Permission][]domain.Role{
	ViewAdmin:        {domain.RoleAdmin, domain.RoleOwner},
	ManageAdmins:     {domain.RoleOwner},
	ManageCatalog:    {domain.RoleAdmin, domain.RoleOwner},
	ViewTransactions: {domain.RoleAdmin, domain.RoleOwner},
}

// Can reports whether id holds perm. It denies while the identity is still
// loading, without a token, and for unknown permissions.
func Can(id domain.Identity, perm Permission) bool {
	if id.Loading || id.Token == "" {
		return false
	}
	for _, r := range grants[perm] {
		if id.Role == r {
			return true
		}
	}
	return false
}

// Authorize returns nil when id holds perm, domain.ErrUnauthenticated
// without a usable session and domain.ErrUnauthorized otherwise.
func Authorize(id domain.Identity, perm Permission) error {
	if Can(id, perm) {
		return nil
	}
	if id.Loading || id.Token == "" {
		return domain.ErrUnauthenticated
	}
	return domain.ErrUnauthorized
}

// PagePermission maps an admin console path to the permission it needs.
// The second result is false for paths outside the console.
func PagePermission(path string) (Permission, bool) {
	if !strings.HasPrefix(path, DefaultPaths.AdminPrefix) {
		return "", false
	}
	switch {
	case under(path, "/admin/users"):
		return ManageAdmins, true
	case under(path, "/admin/destinations"), under(path, "/admin/categories"):
		return ManageCatalog, true
	case under(path, "/admin/bookings"):
		return ViewTransactions, true
	default:
		return ViewAdmin, true
	}
}

// AuthorizePage is the per-page check layered on top of Decide. Pages
// outside the admin console are not restricted.
func AuthorizePage(path string, id domain.Identity) error {
	perm, ok := PagePermission(path)
	if !ok {
		return nil
	}
	return Authorize(id, perm)
}

func under(path, root string) bool {
	return path == root || strings.HasPrefix(path, root+"/")
}

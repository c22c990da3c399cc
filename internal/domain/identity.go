package domain

import "strings"

// Role is the authorization tag of an identity.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleOwner    Role = "owner"
)

// ParseRole reads a persisted role tag. Unknown or empty tags read as guest.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCustomer:
		return RoleCustomer
	case RoleAdmin:
		return RoleAdmin
	case RoleOwner:
		return RoleOwner
	default:
		return RoleGuest
	}
}

// RoleFromUser maps the role field of an authenticated backend user. Any
// user the backend vouches for is at least a customer.
func RoleFromUser(s string) Role {
	switch r := ParseRole(s); r {
	case RoleAdmin, RoleOwner:
		return r
	default:
		return RoleCustomer
	}
}

// IsStaff reports whether the role may enter the admin console.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleOwner
}

// Profile is display data about the signed-in user. It is never used for
// authorization decisions.
type Profile struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ProfilePatch holds the profile fields to overwrite; nil fields are kept.
type ProfilePatch struct {
	Name        *string
	Email       *string
	PhoneNumber *string
	AvatarURL   *string
}

// Apply returns p with the non-nil patch fields applied.
func (patch ProfilePatch) Apply(p Profile) Profile {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Email != nil {
		p.Email = *patch.Email
	}
	if patch.PhoneNumber != nil {
		p.PhoneNumber = *patch.PhoneNumber
	}
	if patch.AvatarURL != nil {
		p.AvatarURL = *patch.AvatarURL
	}
	return p
}

// User is an identity record returned by the backend.
type User struct {
	Profile
	Role Role
}

// Identity is the session as seen by the application at one point in time.
type Identity struct {
	Token   string
	Role    Role
	Profile *Profile
	Loading bool
}

// Guest is the identity of a visitor without a session.
func Guest() Identity {
	return Identity{Role: RoleGuest}
}

// Authenticated reports whether the identity holds a token.
func (id Identity) Authenticated() bool {
	return id.Token != ""
}

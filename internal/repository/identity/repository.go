package identity

import (
	"context"
	"time"

	"tiketloka-storefront/internal/domain"
)

// Persisted is the cheap identity signal kept across application loads.
type Persisted struct {
	Token   string
	Role    domain.Role
	Profile *domain.Profile
}

// Repository is the single seam over every persistence substrate holding
// the session. It carries no business logic.
type Repository interface {
	Load(ctx context.Context) (Persisted, error)
	Save(ctx context.Context, p Persisted, ttl time.Duration) error
	SaveProfile(ctx context.Context, p domain.Profile) error
	Clear(ctx context.Context) error
}

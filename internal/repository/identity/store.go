package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"tiketloka-storefront/internal/clock"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/repository/localstore"
)

const (
	localRoleKey    = "tiketloka_user_role"
	localProfileKey = "tiketloka_user_data"
)

var errEmptyToken = errors.New("token required")

// Options tune a Store.
type Options struct {
	// ServerSide stores the token in the httpOnly TokenCookie instead of the
	// client-readable fallback cookie.
	ServerSide bool
	Clock      clock.Clock
	Logger     *log.Logger
}

// Store implements Repository over a cookie jar and an optional local
// key/value store.
type Store struct {
	cookies    CookieJar
	local      localstore.Repository
	serverSide bool
	clock      clock.Clock
	logger     *log.Logger
}

// NewStore builds a Store. local may be nil where no local store exists
// (for example inside the edge server).
func NewStore(cookies CookieJar, local localstore.Repository, opts Options) *Store {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Store{
		cookies:    cookies,
		local:      local,
		serverSide: opts.ServerSide,
		clock:      clk,
		logger:     opts.Logger,
	}
}

// Load reads the persisted signal. Without a token the result is a guest
// signal regardless of any stale role or profile left behind.
func (s *Store) Load(ctx context.Context) (Persisted, error) {
	token, ok := s.cookies.Get(TokenCookie)
	if !ok {
		token, ok = s.cookies.Get(ReadableTokenCookie)
	}
	if !ok || token == "" {
		return Persisted{Role: domain.RoleGuest}, nil
	}

	out := Persisted{Token: token, Role: domain.RoleGuest}
	if role, ok := s.cookies.Get(RoleCookie); ok {
		out.Role = domain.ParseRole(role)
	} else if s.local != nil {
		raw, err := s.local.Get(ctx, localRoleKey)
		switch {
		case err == nil:
			out.Role = domain.ParseRole(string(raw))
		case !errors.Is(err, domain.ErrNotFound):
			return Persisted{}, fmt.Errorf("read role: %w", err)
		}
	}

	if s.local != nil {
		raw, err := s.local.Get(ctx, localProfileKey)
		switch {
		case err == nil:
			out.Profile = decodeProfile(raw, s.logger)
		case !errors.Is(err, domain.ErrNotFound):
			return Persisted{}, fmt.Errorf("read profile: %w", err)
		}
	}
	return out, nil
}

// Save persists token, role and profile with one shared expiry.
func (s *Store) Save(ctx context.Context, p Persisted, ttl time.Duration) error {
	if p.Token == "" {
		return errEmptyToken
	}
	expires := s.clock.Now().Add(ttl)

	tokenName := ReadableTokenCookie
	if s.serverSide {
		tokenName = TokenCookie
	}
	if err := s.cookies.Set(Cookie{Name: tokenName, Value: p.Token, Expires: expires, HTTPOnly: s.serverSide}); err != nil {
		return fmt.Errorf("write token cookie: %w", err)
	}
	if err := s.cookies.Set(Cookie{Name: RoleCookie, Value: string(p.Role), Expires: expires, HTTPOnly: s.serverSide}); err != nil {
		return fmt.Errorf("write role cookie: %w", err)
	}

	if s.local == nil {
		return nil
	}
	if err := s.local.Set(ctx, localRoleKey, []byte(p.Role)); err != nil {
		return fmt.Errorf("write role: %w", err)
	}
	if p.Profile == nil {
		if err := s.local.Delete(ctx, localProfileKey); err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(p.Profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := s.local.Set(ctx, localProfileKey, raw); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// SaveProfile overwrites the persisted profile only.
func (s *Store) SaveProfile(ctx context.Context, p domain.Profile) error {
	if s.local == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return s.local.Set(ctx, localProfileKey, raw)
}

// Clear removes every key on every substrate, attempting all of them even
// when one fails.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, name := range []string{TokenCookie, ReadableTokenCookie, RoleCookie} {
		if err := s.cookies.Delete(name); err != nil {
			errs = append(errs, fmt.Errorf("delete cookie %s: %w", name, err))
		}
	}
	if s.local != nil {
		for _, key := range []string{localRoleKey, localProfileKey} {
			if err := s.local.Delete(ctx, key); err != nil {
				errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}

func decodeProfile(raw []byte, logger *log.Logger) *domain.Profile {
	if len(raw) == 0 {
		return nil
	}
	var p domain.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		if logger != nil {
			logger.Printf("ignoring malformed stored profile: %v", err)
		}
		return nil
	}
	return &p
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/repository/identity"
)

const (
	// DefaultTTL is how long a persisted session survives without activity.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultRevokeTimeout bounds the server-side logout call.
	DefaultRevokeTimeout = 3 * time.Second
)

// State is the lifecycle position of the session.
type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResolving:
		return "resolving"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is delivered to listeners after every committed change.
type Event struct {
	Previous State
	State    State
	Identity domain.Identity
	// TokenChanged is set when the bearer token differs from the one held
	// before the change.
	TokenChanged bool

	seq uint64
}

// Listener observes session changes. Listeners run synchronously on the
// goroutine that committed the change and must not call Manager mutators
// synchronously.
type Listener func(Event)

type userAPI interface {
	Me(ctx context.Context, token string) (domain.User, error)
	Logout(ctx context.Context, token string) error
}

// Options tune a Manager.
type Options struct {
	TTL           time.Duration
	RevokeTimeout time.Duration
	Logger        *log.Logger
}

// Manager owns the in-memory identity and keeps the persisted signal in
// step with it.
type Manager struct {
	store         identity.Repository
	api           userAPI
	ttl           time.Duration
	revokeTimeout time.Duration
	logger        *log.Logger

	once sync.Once

	mu         sync.Mutex
	identity   domain.Identity
	state      State
	generation uint64
	seq        uint64
	ready      chan struct{}
	readyDone  bool
	listeners  map[int]Listener
	nextID     int

	// persistMu orders writes to the store; a write is skipped once a newer
	// generation has been committed.
	persistMu sync.Mutex

	notifyMu  sync.Mutex
	delivered uint64

	background sync.WaitGroup
}

// New builds a Manager. The identity reports Loading until Initialize (or a
// Login) resolves it.
func New(store identity.Repository, api userAPI, opts Options) *Manager {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	revoke := opts.RevokeTimeout
	if revoke <= 0 {
		revoke = DefaultRevokeTimeout
	}
	return &Manager{
		store:         store,
		api:           api,
		ttl:           ttl,
		revokeTimeout: revoke,
		logger:        opts.Logger,
		identity:      domain.Identity{Role: domain.RoleGuest, Loading: true},
		state:         StateUninitialized,
		ready:         make(chan struct{}),
		listeners:     make(map[int]Listener),
	}
}

// Initialize reads the persisted signal once per process. With a token it
// adopts the persisted role optimistically and revalidates against the
// backend in the background; Wait blocks until that settles.
func (m *Manager) Initialize(ctx context.Context) {
	m.once.Do(func() { m.initialize(context.WithoutCancel(ctx)) })
}

func (m *Manager) initialize(ctx context.Context) {
	persisted, err := m.store.Load(ctx)
	if err != nil {
		m.logf("session: load persisted signal: %v", err)
		persisted = identity.Persisted{Role: domain.RoleGuest}
	}

	m.mu.Lock()
	if m.state != StateUninitialized {
		// a login or logout already settled the session
		m.mu.Unlock()
		return
	}
	if persisted.Token == "" {
		ev := m.commitLocked(StateAnonymous, domain.Guest(), false)
		m.mu.Unlock()
		m.publish(ev)
		return
	}
	ev := m.commitLocked(StateResolving, domain.Identity{
		Token:   persisted.Token,
		Role:    persisted.Role,
		Profile: persisted.Profile,
		Loading: true,
	}, false)
	gen := m.generation
	m.mu.Unlock()
	m.publish(ev)

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		m.revalidate(ctx, persisted.Token, gen)
	}()
}

func (m *Manager) revalidate(ctx context.Context, token string, gen uint64) {
	user, err := m.api.Me(ctx, token)

	m.mu.Lock()
	if m.generation != gen {
		// login, logout or expiry won the race
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.logf("session: revalidation failed, clearing session: %v", err)
		ev := m.commitLocked(StateAnonymous, domain.Guest(), true)
		clearGen := m.generation
		m.mu.Unlock()
		m.clearStore(ctx, clearGen)
		m.publish(ev)
		return
	}
	profile := user.Profile
	ev := m.commitLocked(StateAuthenticated, domain.Identity{
		Token:   token,
		Role:    authenticatedRole(user.Role),
		Profile: &profile,
	}, false)
	m.mu.Unlock()

	if err := m.persist(gen, func() error {
		return m.store.Save(ctx, identity.Persisted{Token: token, Role: ev.Identity.Role, Profile: &profile}, m.ttl)
	}); err != nil {
		m.logf("session: refresh persisted signal: %v", err)
	}
	m.publish(ev)
}

// Wait blocks until the identity is no longer loading.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login adopts a freshly issued token. It always supersedes an in-flight
// revalidation. The in-memory session is set even when persisting fails; the
// persistence error is returned.
func (m *Manager) Login(ctx context.Context, token string, user domain.User) error {
	if token == "" {
		return domain.NewValidationError("token required")
	}
	profile := user.Profile
	role := authenticatedRole(user.Role)

	m.mu.Lock()
	ev := m.commitLocked(StateAuthenticated, domain.Identity{Token: token, Role: role, Profile: &profile}, true)
	gen := m.generation
	m.mu.Unlock()

	err := m.persist(gen, func() error {
		return m.store.Save(ctx, identity.Persisted{Token: token, Role: role, Profile: &profile}, m.ttl)
	})
	m.publish(ev)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Logout clears the session locally and in the store, then revokes the
// token server-side in the background. It never fails.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	token := m.identity.Token
	ev := m.commitLocked(StateAnonymous, domain.Guest(), true)
	gen := m.generation
	m.mu.Unlock()

	m.clearStore(ctx, gen)
	m.publish(ev)

	if token == "" {
		return
	}
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.revokeTimeout)
		defer cancel()
		if err := m.api.Logout(revokeCtx, token); err != nil {
			m.logf("session: revoke token: %v", err)
		}
	}()
}

// Expire is the global 401 signal. It clears the session only when token is
// still the current one and reports whether it did.
func (m *Manager) Expire(token string) bool {
	m.mu.Lock()
	if token == "" || m.identity.Token != token {
		m.mu.Unlock()
		return false
	}
	ev := m.commitLocked(StateAnonymous, domain.Guest(), true)
	gen := m.generation
	m.mu.Unlock()

	m.clearStore(context.Background(), gen)
	m.publish(ev)
	return true
}

// Refresh re-derives role and profile from the backend, keeping the token.
func (m *Manager) Refresh(ctx context.Context) error {
	token := m.Token()
	if token == "" {
		return domain.ErrUnauthenticated
	}
	user, err := m.api.Me(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			m.Expire(token)
		}
		return fmt.Errorf("refresh session: %w", err)
	}

	profile := user.Profile
	m.mu.Lock()
	if m.identity.Token != token {
		m.mu.Unlock()
		return nil
	}
	ev := m.commitLocked(StateAuthenticated, domain.Identity{Token: token, Role: authenticatedRole(user.Role), Profile: &profile}, false)
	gen := m.generation
	m.mu.Unlock()

	err = m.persist(gen, func() error {
		return m.store.Save(ctx, identity.Persisted{Token: token, Role: ev.Identity.Role, Profile: &profile}, m.ttl)
	})
	m.publish(ev)
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Update patches display fields of the profile. Token and role are
// untouched.
func (m *Manager) Update(ctx context.Context, patch domain.ProfilePatch) error {
	m.mu.Lock()
	if m.identity.Token == "" {
		m.mu.Unlock()
		return domain.ErrUnauthenticated
	}
	var current domain.Profile
	if m.identity.Profile != nil {
		current = *m.identity.Profile
	}
	next := patch.Apply(current)
	id := m.identity
	id.Profile = &next
	ev := m.commitLocked(m.state, id, false)
	gen := m.generation
	m.mu.Unlock()

	err := m.persist(gen, func() error { return m.store.SaveProfile(ctx, next) })
	m.publish(ev)
	if err != nil {
		return fmt.Errorf("persist profile: %w", err)
	}
	return nil
}

// Identity returns a copy of the current identity.
func (m *Manager) Identity() domain.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyIdentity(m.identity)
}

// Token returns the current bearer token, empty without a session.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity.Token
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers l and returns a function that removes it.
func (m *Manager) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// WaitIdle blocks until background revalidation and revoke calls finish.
func (m *Manager) WaitIdle() {
	m.background.Wait()
}

// commitLocked swaps in next and returns the event describing the change.
// bump marks changes that supersede in-flight revalidation.
func (m *Manager) commitLocked(state State, next domain.Identity, bump bool) Event {
	prev := m.state
	prevToken := m.identity.Token
	if bump {
		m.generation++
	}
	if state != StateResolving {
		next.Loading = false
		if !m.readyDone {
			m.readyDone = true
			close(m.ready)
		}
	}
	m.identity = next
	m.state = state
	m.seq++
	return Event{
		Previous:     prev,
		State:        state,
		Identity:     copyIdentity(next),
		TokenChanged: prevToken != next.Token,
		seq:          m.seq,
	}
}

func (m *Manager) persist(gen uint64, write func() error) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	m.mu.Lock()
	stale := m.generation != gen
	m.mu.Unlock()
	if stale {
		return nil
	}
	return write()
}

func (m *Manager) clearStore(ctx context.Context, gen uint64) {
	if err := m.persist(gen, func() error { return m.store.Clear(ctx) }); err != nil {
		m.logf("session: clear persisted signal: %v", err)
	}
}

// publish delivers ev unless a newer event has already been delivered.
func (m *Manager) publish(ev Event) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if ev.seq <= m.delivered {
		return
	}
	m.delivered = ev.seq

	m.mu.Lock()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

func authenticatedRole(r domain.Role) domain.Role {
	if r == domain.RoleGuest || r == "" {
		return domain.RoleCustomer
	}
	return r
}

func copyIdentity(id domain.Identity) domain.Identity {
	if id.Profile != nil {
		p := *id.Profile
		id.Profile = &p
	}
	return id
}

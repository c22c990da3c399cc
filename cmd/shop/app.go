package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"tiketloka-storefront/internal/backend"
	"tiketloka-storefront/internal/clock"
	"tiketloka-storefront/internal/config"
	"tiketloka-storefront/internal/db"
	"tiketloka-storefront/internal/migrate"
	"tiketloka-storefront/internal/repository/identity"
	"tiketloka-storefront/internal/repository/localstore"
	"tiketloka-storefront/internal/service/admins"
	"tiketloka-storefront/internal/service/cart"
	"tiketloka-storefront/internal/service/checkout"
	"tiketloka-storefront/internal/service/session"
)

// app is one CLI invocation's wiring.
type app struct {
	out      io.Writer
	logger   *log.Logger
	api      *backend.Client
	session  *session.Manager
	accounts *session.Accounts
	cart     *cart.Engine
	checkout *checkout.Orchestrator
	admins   *admins.Service

	unsubscribe func()
	closers     []func()
}

func newApp(ctx context.Context, cfg config.Config, out io.Writer, logger *log.Logger) (*app, error) {
	api, err := backend.New(backend.Config{
		BaseURL:    cfg.BackendURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	a := &app{out: out, logger: logger, api: api}
	local, err := a.openLocalStore(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	clk := clock.NewSystem()
	jar := identity.NewLocalCookieJar(local, clk, logger)
	store := identity.NewStore(jar, local, identity.Options{Clock: clk, Logger: logger})

	a.session = session.New(store, api, session.Options{
		TTL:           cfg.SessionTTL,
		RevokeTimeout: cfg.RevokeTimeout,
		Logger:        logger,
	})
	api.SetUnauthorizedHandler(func(token string) { a.session.Expire(token) })
	a.accounts = session.NewAccounts(api, a.session)
	a.cart = cart.NewEngine(api, a.session, cart.Options{Cache: local, Logger: logger})
	a.checkout = checkout.New(api, a.cart, a.session, logger)
	a.admins = admins.New(api, a.session)

	a.session.Initialize(ctx)
	if err := a.session.Wait(ctx); err != nil {
		a.close()
		return nil, err
	}
	if a.session.Identity().Authenticated() {
		a.cart.Restore(ctx)
	}
	a.unsubscribe = a.session.Subscribe(a.cart.HandleSession)
	return a, nil
}

// openLocalStore picks the substrate from the DSN: "memory:", a postgres
// URL, or a SQLite file path.
func (a *app) openLocalStore(ctx context.Context, cfg config.Config) (localstore.Repository, error) {
	dsn := cfg.LocalStoreDSN
	switch {
	case dsn == "memory:":
		return localstore.NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := db.Connect(ctx, dsn, db.Options{ApplicationName: "tiketloka-shop"})
		if err != nil {
			return nil, fmt.Errorf("connect local store: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := migrate.Apply(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate local store: %w", err)
		}
		return localstore.NewPostgres(pool, namespaceFor(cfg)), nil
	default:
		s, err := localstore.OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := s.Close(); err != nil {
				a.logger.Printf("close local store: %v", err)
			}
		})
		return s, nil
	}
}

// namespaceFor keeps sessions for different backends apart in a shared
// database unless a namespace is configured.
func namespaceFor(cfg config.Config) string {
	if cfg.Namespace != "" {
		return cfg.Namespace
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimRight(cfg.BackendURL, "/"))).String()
}

// close waits for background session and cart work, then releases the
// local store.
func (a *app) close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.session != nil {
		a.session.WaitIdle()
	}
	if a.cart != nil {
		a.cart.WaitIdle()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tiketloka-storefront/internal/clock"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/guard"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// backendAPI is what the edge server needs from the storefront backend.
type backendAPI interface {
	pinger
	Me(ctx context.Context, token string) (domain.User, error)
	Logout(ctx context.Context, token string) error
}

// Deps carries the collaborators and settings of the edge server.
type Deps struct {
	Backend backendAPI
	// BackendURL is the origin /api/* is proxied to.
	BackendURL string
	// PagesUpstream serves page requests the guard allowed. Without it a
	// small JSON stub answers instead.
	PagesUpstream  string
	AllowedOrigins []string
	CookieSecure   bool
	SessionTTL     time.Duration
	RevokeTimeout  time.Duration
	RequestTimeout time.Duration
	Paths          *guard.Paths
	// Registry receives the server metrics; a private registry is used when nil.
	Registry *prometheus.Registry
	Clock    clock.Clock

	readiness   *readiness
	revocations *sync.WaitGroup
}

func (d Deps) paths() guard.Paths {
	if d.Paths != nil {
		return *d.Paths
	}
	return guard.DefaultPaths
}

// buildRouter wires routes for the edge server.
func buildRouter(logger *log.Logger, deps Deps) (*gin.Engine, error) {
	if deps.Backend == nil {
		return nil, errors.New("backend client required")
	}
	backendURL, err := parseUpstream("backend", deps.BackendURL)
	if err != nil {
		return nil, err
	}
	var pagesURL *url.URL
	if deps.PagesUpstream != "" {
		if pagesURL, err = parseUpstream("pages", deps.PagesUpstream); err != nil {
			return nil, err
		}
	}
	if deps.SessionTTL <= 0 {
		deps.SessionTTL = 7 * 24 * time.Hour
	}
	if deps.RevokeTimeout <= 0 {
		deps.RevokeTimeout = 3 * time.Second
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = clock.NewSystem()
	}
	if deps.revocations == nil {
		deps.revocations = &sync.WaitGroup{}
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := newMetrics(reg)

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", healthHandler)
	ready := deps.readiness
	if ready == nil {
		ready = &readiness{api: deps.Backend}
	}
	router.GET("/readyz", ready.handle)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	sessions := &sessionHandler{
		api:           deps.Backend,
		logger:        logger,
		metrics:       m,
		secure:        deps.CookieSecure,
		ttl:           deps.SessionTTL,
		revokeTimeout: deps.RevokeTimeout,
		timeout:       deps.RequestTimeout,
		clock:         deps.Clock,
		revocations:   deps.revocations,
	}
	router.GET("/session", sessions.show)
	router.POST("/session", sessions.create)
	router.DELETE("/session", sessions.destroy)

	router.Any("/api/*path", newAPIProxy(backendURL, logger, m))

	router.NoRoute(guardMiddleware(deps.paths(), m), pagesHandler(pagesURL, logger))

	return router, nil
}

func parseUpstream(name, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid %s upstream %q", name, raw)
	}
	return u, nil
}

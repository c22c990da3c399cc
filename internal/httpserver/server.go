package httpserver

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Server is the storefront edge server.
type Server struct {
	httpServer  *http.Server
	readiness   *readiness
	revocations *sync.WaitGroup
	logger      *log.Logger
}

// New builds the edge server: route guard, session actions, API proxy and
// health endpoints.
func New(addr string, logger *log.Logger, deps Deps) (*Server, error) {
	ready := &readiness{api: deps.Backend}
	revocations := &sync.WaitGroup{}
	deps.readiness = ready
	deps.revocations = revocations
	router, err := buildRouter(logger, deps)
	if err != nil {
		return nil, err
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		readiness:   ready,
		revocations: revocations,
		logger:      logger,
	}, nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown marks the server as draining, so /readyz fails, then stops
// accepting connections and waits for in-flight requests and token
// revocations until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.readiness.draining.Store(true)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		s.revocations.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Printf("shutdown: token revocations still pending")
		return ctx.Err()
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readiness answers /readyz: the backend must answer its health probe and
// the server must not be draining.
type readiness struct {
	api      pinger
	draining atomic.Bool
}

func (r *readiness) handle(c *gin.Context) {
	if r.draining.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "shutting down"})
		return
	}
	if r.api == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "backend not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()
	start := time.Now()
	if err := r.api.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "backend not reachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "backend_ms": time.Since(start).Milliseconds()})
}

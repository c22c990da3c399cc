package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"tiketloka-storefront/internal/clock"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/repository/identity"
)

type createSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

type sessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	Role          domain.Role     `json:"role"`
	User          *domain.Profile `json:"user,omitempty"`
}

// sessionHandler sets and deletes the httpOnly session cookies.
type sessionHandler struct {
	api           backendAPI
	logger        *log.Logger
	metrics       *metrics
	secure        bool
	ttl           time.Duration
	revokeTimeout time.Duration
	timeout       time.Duration
	clock         clock.Clock
	revocations   *sync.WaitGroup
}

func (h *sessionHandler) store(c *gin.Context) *identity.Store {
	jar := identity.NewRequestCookies(c.Writer, c.Request, h.secure)
	return identity.NewStore(jar, nil, identity.Options{ServerSide: true, Clock: h.clock, Logger: h.logger})
}

func (h *sessionHandler) show(c *gin.Context) {
	signal, err := h.store(c).Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read session"})
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Authenticated: signal.Token != "", Role: signal.Role})
}

// create validates the token with the backend and stores it together with
// the role the backend reports. A role sent by the client is never trusted.
func (h *sessionHandler) create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		h.metrics.sessionActions.WithLabelValues("create", "invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}
	token := strings.TrimSpace(req.Token)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	user, err := h.api.Me(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			h.metrics.sessionActions.WithLabelValues("create", "rejected").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token rejected"})
			return
		}
		h.logger.Printf("session: validate token: %v", err)
		h.metrics.sessionActions.WithLabelValues("create", "error").Inc()
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unavailable"})
		return
	}

	profile := user.Profile
	if err := h.store(c).Save(c.Request.Context(), identity.Persisted{Token: token, Role: user.Role, Profile: &profile}, h.ttl); err != nil {
		h.logger.Printf("session: write cookies: %v", err)
		h.metrics.sessionActions.WithLabelValues("create", "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store session"})
		return
	}
	h.metrics.sessionActions.WithLabelValues("create", "ok").Inc()
	c.JSON(http.StatusOK, sessionResponse{Authenticated: true, Role: user.Role, User: &profile})
}

// destroy deletes the cookies and answers at once; the token is revoked
// best effort in the background, bounded by revokeTimeout.
func (h *sessionHandler) destroy(c *gin.Context) {
	store := h.store(c)
	signal, err := store.Load(c.Request.Context())
	if err := store.Clear(c.Request.Context()); err != nil {
		h.logger.Printf("session: clear cookies: %v", err)
	}
	h.metrics.sessionActions.WithLabelValues("destroy", "ok").Inc()
	c.Status(http.StatusNoContent)

	if err != nil || signal.Token == "" {
		return
	}
	token := signal.Token
	revokeCtx := context.WithoutCancel(c.Request.Context())
	h.revocations.Add(1)
	go func() {
		defer h.revocations.Done()
		ctx, cancel := context.WithTimeout(revokeCtx, h.revokeTimeout)
		defer cancel()
		if err := h.api.Logout(ctx, token); err != nil {
			h.logger.Printf("session: revoke token: %v", err)
		}
	}()
}

package httpserver

import (
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/guard"
	"tiketloka-storefront/internal/repository/identity"
)

// guardMiddleware runs the route guard on page requests. It only reads the
// cookie signal; the backend stays the authority on every API call.
func guardMiddleware(paths guard.Paths, m *metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := identity.NewStore(identity.NewRequestCookies(c.Writer, c.Request, false), nil, identity.Options{ServerSide: true})
		signal, err := store.Load(c.Request.Context())
		if err != nil {
			signal = identity.Persisted{Role: domain.RoleGuest}
		}
		path := c.Request.URL.Path

		decision := paths.Decide(path, signal.Token, signal.Role)
		if !decision.Allowed() {
			m.guardDecisions.WithLabelValues("redirect " + decision.Redirect).Inc()
			c.Redirect(http.StatusTemporaryRedirect, decision.Redirect)
			c.Abort()
			return
		}

		id := domain.Identity{Token: signal.Token, Role: signal.Role}
		if err := guard.AuthorizePage(path, id); err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) {
				m.guardDecisions.WithLabelValues("redirect " + paths.Login).Inc()
				c.Redirect(http.StatusTemporaryRedirect, paths.Login)
				c.Abort()
				return
			}
			m.guardDecisions.WithLabelValues("forbidden").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		m.guardDecisions.WithLabelValues("allow").Inc()
		c.Next()
	}
}

// pagesHandler forwards allowed page requests to the page renderer.
func pagesHandler(upstream *url.URL, logger *log.Logger) gin.HandlerFunc {
	if upstream == nil {
		return func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"page": c.Request.URL.Path})
		}
	}
	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(upstream)
			r.SetXForwarded()
			r.Out.Host = r.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Printf("pages upstream %s: %v", r.URL.Path, err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

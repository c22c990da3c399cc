package httpserver

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"tiketloka-storefront/internal/repository/identity"
)

// newAPIProxy forwards /api/* to the backend. The httpOnly token cookie is
// turned into a bearer header unless the caller sent one; cookies never
// reach the backend.
func newAPIProxy(target *url.URL, logger *log.Logger, m *metrics) gin.HandlerFunc {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			if r.In.Header.Get("Authorization") == "" {
				if token := requestToken(r.In); token != "" {
					r.Out.Header.Set("Authorization", "Bearer "+token)
				}
			}
			r.Out.Header.Del("Cookie")
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Printf("api proxy %s %s: %v", r.Method, r.URL.Path, err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"message":"backend unavailable"}`))
		},
	}
	return func(c *gin.Context) {
		start := time.Now()
		proxy.ServeHTTP(c.Writer, c.Request)
		m.proxyDuration.WithLabelValues(c.Request.Method, statusClass(c.Writer.Status())).Observe(time.Since(start).Seconds())
	}
}

func requestToken(r *http.Request) string {
	for _, name := range []string{identity.TokenCookie, identity.ReadableTokenCookie} {
		if ck, err := r.Cookie(name); err == nil && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

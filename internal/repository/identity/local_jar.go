package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"tiketloka-storefront/internal/clock"
	"tiketloka-storefront/internal/domain"
	"tiketloka-storefront/internal/repository/localstore"
)

const cookieKeyPrefix = "cookie:"

type storedCookie struct {
	Value    string    `json:"value"`
	Expires  time.Time `json:"expires"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

// LocalCookieJar keeps cookies in a local key/value store so that clients
// without a browser still get cookie expiry semantics.
type LocalCookieJar struct {
	repo   localstore.Repository
	clock  clock.Clock
	logger *log.Logger
}

// NewLocalCookieJar builds a jar on top of repo.
func NewLocalCookieJar(repo localstore.Repository, clk clock.Clock, logger *log.Logger) *LocalCookieJar {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &LocalCookieJar{repo: repo, clock: clk, logger: logger}
}

func (j *LocalCookieJar) Get(name string) (string, bool) {
	ctx := context.Background()
	raw, err := j.repo.Get(ctx, cookieKeyPrefix+name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			j.logf("read cookie %s: %v", name, err)
		}
		return "", false
	}
	var c storedCookie
	if err := json.Unmarshal(raw, &c); err != nil {
		j.logf("discarding malformed cookie %s: %v", name, err)
		_ = j.repo.Delete(ctx, cookieKeyPrefix+name)
		return "", false
	}
	if !c.Expires.IsZero() && !j.clock.Now().Before(c.Expires) {
		_ = j.repo.Delete(ctx, cookieKeyPrefix+name)
		return "", false
	}
	return c.Value, true
}

func (j *LocalCookieJar) Set(c Cookie) error {
	raw, err := json.Marshal(storedCookie{Value: c.Value, Expires: c.Expires, HTTPOnly: c.HTTPOnly})
	if err != nil {
		return err
	}
	return j.repo.Set(context.Background(), cookieKeyPrefix+c.Name, raw)
}

func (j *LocalCookieJar) Delete(name string) error {
	return j.repo.Delete(context.Background(), cookieKeyPrefix+name)
}

func (j *LocalCookieJar) logf(format string, args ...any) {
	if j.logger != nil {
		j.logger.Printf(format, args...)
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration parsed from environment variables.
type Config struct {
	HTTPAddr        string
	BackendURL      string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	RevokeTimeout   time.Duration
	SessionTTL      time.Duration
	CookieSecure    bool
	AllowedOrigins  []string
	// PagesUpstream, when set, receives every non-API page request after the
	// route guard allowed it.
	PagesUpstream string
	// LocalStoreDSN selects the local store: a postgres:// URL, or a file
	// path for SQLite.
	LocalStoreDSN string
	Namespace     string
}

// FromEnv builds Config with defaults, overridden by environment variables.
func FromEnv() Config {
	return Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":3000"),
		BackendURL:      envOrDefault("BACKEND_URL", "http://localhost:8000"),
		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second),
		RequestTimeout:  envDuration("REQUEST_TIMEOUT_SECONDS", 15*time.Second),
		RevokeTimeout:   envDuration("REVOKE_TIMEOUT_SECONDS", 3*time.Second),
		SessionTTL:      envDuration("SESSION_TTL_SECONDS", 7*24*time.Hour),
		CookieSecure:    envBool("COOKIE_SECURE", false),
		AllowedOrigins:  envList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		PagesUpstream:   envOrDefault("PAGES_UPSTREAM", ""),
		LocalStoreDSN:   envOrDefault("LOCAL_STORE_DSN", ""),
		Namespace:       envOrDefault("LOCAL_STORE_NAMESPACE", ""),
	}
}

// fileConfig mirrors Config for YAML files; durations are Go duration
// strings ("3s", "168h").
type fileConfig struct {
	HTTPAddr        string   `yaml:"http_addr"`
	BackendURL      string   `yaml:"backend_url"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	RequestTimeout  string   `yaml:"request_timeout"`
	RevokeTimeout   string   `yaml:"revoke_timeout"`
	SessionTTL      string   `yaml:"session_ttl"`
	CookieSecure    *bool    `yaml:"cookie_secure"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	PagesUpstream   string   `yaml:"pages_upstream"`
	LocalStoreDSN   string   `yaml:"local_store_dsn"`
	Namespace       string   `yaml:"namespace"`
}

// LoadFile overlays the YAML file at path on base. Keys absent from the file
// keep their base value.
func LoadFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := base
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.BackendURL, fc.BackendURL)
	setString(&cfg.PagesUpstream, fc.PagesUpstream)
	setString(&cfg.LocalStoreDSN, fc.LocalStoreDSN)
	setString(&cfg.Namespace, fc.Namespace)
	if fc.CookieSecure != nil {
		cfg.CookieSecure = *fc.CookieSecure
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"request_timeout", fc.RequestTimeout, &cfg.RequestTimeout},
		{"revoke_timeout", fc.RevokeTimeout, &cfg.RevokeTimeout},
		{"session_ttl", fc.SessionTTL, &cfg.SessionTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil || v <= 0 {
			return base, fmt.Errorf("config %s: invalid duration %q", d.name, d.raw)
		}
		*d.dst = v
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		seconds, err := strconv.Atoi(v)
		if err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

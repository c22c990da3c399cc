package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"tiketloka-storefront/internal/backend"
	"tiketloka-storefront/internal/config"
	"tiketloka-storefront/internal/httpserver"
)

func main() {
	cfg := config.FromEnv()
	if path := os.Getenv("STOREFRONT_CONFIG"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path, cfg); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	logger := log.New(os.Stdout, "[storefront] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	api, err := backend.New(backend.Config{
		BaseURL:    cfg.BackendURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("init backend client: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		Backend:        api,
		BackendURL:     cfg.BackendURL,
		PagesUpstream:  cfg.PagesUpstream,
		AllowedOrigins: cfg.AllowedOrigins,
		CookieSecure:   cfg.CookieSecure,
		SessionTTL:     cfg.SessionTTL,
		RevokeTimeout:  cfg.RevokeTimeout,
		RequestTimeout: cfg.RequestTimeout,
		Registry:       reg,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s (backend %s)", cfg.HTTPAddr, api.BaseURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}

package main

import (
	"context"
	"log"
	"os"
	"strings"

	"tiketloka-storefront/internal/config"
	"tiketloka-storefront/internal/db"
	"tiketloka-storefront/internal/migrate"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[migrate] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	if !strings.HasPrefix(cfg.LocalStoreDSN, "postgres://") && !strings.HasPrefix(cfg.LocalStoreDSN, "postgresql://") {
		logger.Fatalf("LOCAL_STORE_DSN must be a postgres URL, got %q", cfg.LocalStoreDSN)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.LocalStoreDSN, db.Options{ApplicationName: "tiketloka-migrate", MaxConns: 1})
	if err != nil {
		logger.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := migrate.Apply(ctx, pool); err != nil {
		logger.Fatalf("apply migrations: %v", err)
	}

	version, dirty, ok, err := migrate.Version(ctx, pool)
	if err != nil {
		logger.Fatalf("read version: %v", err)
	}
	if ok {
		logger.Printf("migrations applied, schema version %d (dirty=%v)", version, dirty)
		return
	}
	logger.Println("migrations applied")
}

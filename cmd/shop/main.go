// shop is a terminal storefront: it signs in, manages the cart and checks
// out against the storefront backend. The session and cart cache live in a
// local store (SQLite by default, Postgres when configured).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"tiketloka-storefront/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	store      string
	namespace  string
	backendURL string
	verbose    bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var g globalFlags
	flagSet := pflag.NewFlagSet("shop", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&g.configPath, "config", "", "YAML config file")
	flagSet.StringVar(&g.store, "store", "", "local store: SQLite path, postgres:// URL or memory:")
	flagSet.StringVar(&g.namespace, "namespace", "", "local store namespace (postgres only)")
	flagSet.StringVar(&g.backendURL, "backend", "", "backend origin")
	flagSet.BoolVarP(&g.verbose, "verbose", "v", false, "log diagnostics to stderr")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return pflag.ErrHelp
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	logOut := io.Discard
	if g.verbose {
		logOut = stderr
	}
	logger := log.New(logOut, "[shop] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	a, err := newApp(ctx, cfg, stdout, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return cmd.run(ctx, a, rest[1:])
}

func loadConfig(g globalFlags) (config.Config, error) {
	cfg := config.FromEnv()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(g.configPath, cfg); err != nil {
			return cfg, err
		}
	}
	if g.store != "" {
		cfg.LocalStoreDSN = g.store
	}
	if g.namespace != "" {
		cfg.Namespace = g.namespace
	}
	if g.backendURL != "" {
		cfg.BackendURL = g.backendURL
	}
	if cfg.LocalStoreDSN == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			dir = "."
		}
		cfg.LocalStoreDSN = filepath.Join(dir, "tiketloka", "shop.db")
	}
	return cfg, nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `Usage: shop [global flags] <command> [flags] [args]

Commands:
  login            sign in with email and password, or --google-code
  register         create an account and sign in
  logout           sign out
  whoami           show the current session
  forgot-password  request a password reset email
  reset-password   set a new password with a reset token
  cart             list, add, update, remove, clear
  select           preview totals for some cart lines (or --all)
  checkout         book cart lines (all lines when none are given)
  ticket           show a booking by code
  admin            admin console: dashboard, admins (owner only)

Global flags:
%s`, flagSet.FlagUsages())
}

// Command billingctl is the operator client for billingd.
//
// Usage:
//
//	billingctl cancel --tenant <uuid> [--url http://localhost:8080]
//	billingctl check --tenant <uuid> [--url http://localhost:8080]
//	billingctl migrate
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/migrations"
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/pg"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "billingctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stderr)
		return errUsage
	}

	switch args[0] {
	case "cancel", "check":
		fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
		fs.SetOutput(stderr)
		tenantID := fs.String("tenant", "", "tenant UUID")
		baseURL := fs.String("url", defaultURL(), "billingd base URL")
		timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		id, err := uuid.Parse(*tenantID)
		if err != nil || id == uuid.Nil {
			return fmt.Errorf("--tenant: %w", errInvalidTenant)
		}

		ctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()

		c := newClient(*baseURL, nil)
		if args[0] == "cancel" {
			return c.cancel(ctx, id, stdout)
		}
		return c.check(ctx, id, stdout)

	case "migrate":
		var cfg pg.Config
		if err := config.Load(&cfg); err != nil {
			return err
		}
		pool, err := pg.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		log := logger.New(logger.WithOutput(stderr), logger.WithFormat(logger.FormatText))
		return pg.Migrate(ctx, pool, migrations.FS, cfg, log)
	}

	usage(stderr)
	return errUsage
}

func defaultURL() string {
	if u := os.Getenv("BILLINGD_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: billingctl <cancel|check> --tenant <uuid> [--url <billingd url>]")
	fmt.Fprintln(w, "       billingctl migrate")
}

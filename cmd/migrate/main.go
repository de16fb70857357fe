package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ariefcatur/go-fresh-orders/internal/config"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/postgres"
	"github.com/ariefcatur/go-fresh-orders/internal/seed"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	cmd := flag.String("cmd", "up", "migration command: up|down|status|redo|version|seed")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithField(ctx, "cmd", *cmd)

	pool, err := postgres.Connect(ctx, cfg.Postgres)
	requireResource(ctx, logg, "database", err)
	defer pool.Close()

	switch *cmd {
	case "up", "down", "status", "redo", "version":
		if err := postgres.Migrate(ctx, pool, *cmd); err != nil {
			fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", *cmd, err)
			os.Exit(1)
		}
	case "seed":
		store := postgres.NewStore(pool)
		for _, p := range seed.Products() {
			if err := store.UpsertProduct(ctx, p); err != nil {
				fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
				os.Exit(1)
			}
		}
		logg.Info(ctx, "catalog seeded")
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

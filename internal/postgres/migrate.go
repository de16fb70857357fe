package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationDir = "migrations"

// Migrate runs a goose command (up, down, status, redo, version) against the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, command string, args ...string) error {
	if err := validateMigrations(); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, migrationDir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// validateMigrations checks every embedded file carries both goose sections.
func validateMigrations() error {
	entries, err := fs.ReadDir(migrationFS, migrationDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no migrations embedded")
	}
	for _, e := range entries {
		raw, err := fs.ReadFile(migrationFS, migrationDir+"/"+e.Name())
		if err != nil {
			return err
		}
		txt := string(raw)
		if !strings.Contains(txt, "-- +goose Up") {
			return fmt.Errorf("migration %q missing \"-- +goose Up\"", e.Name())
		}
		if !strings.Contains(txt, "-- +goose Down") {
			return fmt.Errorf("migration %q missing \"-- +goose Down\"", e.Name())
		}
	}
	return nil
}

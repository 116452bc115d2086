package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"
	dialect    = "postgres"
)

// commands are the goose commands exposed to operators. reset is not one of
// them: dropping the ledger tables is never a routine operation.
var commands = map[string]bool{
	"up":        true,
	"up-by-one": true,
	"down":      true,
	"redo":      true,
	"status":    true,
	"version":   true,
}

// Run executes a goose command against the settlement schema.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if !commands[command] {
		return fmt.Errorf("unsupported migration command %q", command)
	}
	if err := prepare(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Pending returns the versions found in dir that the database has not applied
// yet, oldest first.
func Pending(ctx context.Context, db *sql.DB, dir string) ([]int64, error) {
	if err := prepare(db, dir); err != nil {
		return nil, err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	migrations, err := goose.CollectMigrations(dir, current, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collect migrations: %w", err)
	}
	pending := make([]int64, 0, len(migrations))
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m.Version)
		}
	}
	return pending, nil
}

// MigrateToVersion moves the schema up or down until it sits at targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	target, err := parseVersion(targetVersion)
	if err != nil {
		return err
	}
	if err := prepare(db, dir); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

func parseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("target version is required")
	}
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected %s)", raw, versionLayout)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected %s): %w", raw, versionLayout, err)
	}
	return version, nil
}

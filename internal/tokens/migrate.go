package tokens

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/civicpulse/tokenguard/internal/tokens/migrations"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded refresh_tokens migrations to databaseURL.
func Migrate(ctx context.Context, databaseURL string) error {
	const op = "tokens.Migrate"

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	if err := RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MigratePool applies the embedded migrations through an existing pool.
func MigratePool(ctx context.Context, pool *pgxpool.Pool) error {
	const op = "tokens.MigratePool"

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RunMigrations applies the embedded migrations over an open database handle.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

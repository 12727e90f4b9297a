// Package store implements every repository interface the engine, fxartifact,
// evidence, and lifecycle packages declare, against Postgres via pgx. It
// follows the teacher's store.go conventions: one pgxpool.Pool held behind a
// small wrapper type, one statement per write (no explicit transactions),
// ON CONFLICT DO NOTHING for idempotent inserts keyed by a
// deterministically-derived id, and an embed.FS migration runner.
package store

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every migrations/*.sql file in lexical filename order.
// Each file is expected to be idempotent (CREATE TABLE IF NOT EXISTS, CREATE
// INDEX IF NOT EXISTS) so that re-running Migrate against an already
// up-to-date database is a no-op.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, "migrations/"+e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := migrationsFS.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := db.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("migration %s failed: %w", f, err)
		}
	}
	return nil
}

// DB is the shared pool every repository in this package embeds.
type DB struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

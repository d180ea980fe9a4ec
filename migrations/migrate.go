package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed order/*.sql payment/*.sql
var migrationFiles embed.FS

// Each service owns its own database and its own outbox table.
const (
	orderLockID   int64 = 801234567
	paymentLockID int64 = 801234568
)

func ApplyOrder(ctx context.Context, pool *pgxpool.Pool) error {
	return apply(ctx, pool, "order", orderLockID)
}

func ApplyPayment(ctx context.Context, pool *pgxpool.Pool) error {
	return apply(ctx, pool, "payment", paymentLockID)
}

// apply runs the SQL files under dir in filename order, recording each one in
// schema_migrations so reruns are no-ops.
func apply(ctx context.Context, pool *pgxpool.Pool, dir string, lockID int64) error {
	entries, err := fs.ReadDir(migrationFiles, dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	if _, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, name := range names {
		key := dir + "/" + name
		var applied bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, key).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", key, err)
		}
		if applied {
			continue
		}

		sqlBytes, err := migrationFiles.ReadFile(key)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", key, err)
		}
		sql := strings.TrimSpace(string(sqlBytes))
		if sql == "" {
			continue
		}
		if _, err := conn.Exec(ctx, sql); err != nil {
			return fmt.Errorf("exec migration %s: %w", key, err)
		}
		if _, err := conn.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, key); err != nil {
			return fmt.Errorf("record migration %s: %w", key, err)
		}
	}
	return nil
}

package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
)

var ErrMigrationInProgress = errors.New("another process is migrating the database")

// lockKey is stable across releases so old and new binaries exclude each other.
var lockKey = func() int64 {
	h := fnv.New64a()
	h.Write([]byte("aquaduct:schema-migrate"))
	return int64(h.Sum64() >> 1)
}()

// withAdvisoryLock runs fn while holding a session-level postgres advisory lock.
// A pinned connection is used so lock and unlock hit the same session.
func withAdvisoryLock(ctx context.Context, db *sql.DB, fn func(context.Context) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("pin connection: %w", err)
	}
	defer conn.Close()

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockKey).Scan(&locked); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !locked {
		return ErrMigrationInProgress
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", lockKey)
	}()

	return fn(ctx)
}

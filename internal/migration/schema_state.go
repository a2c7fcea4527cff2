package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const schemaStatusActive = "active"

var ErrSchemaOutdated = errors.New("database schema is not migrated to the latest version")

// recordSchemaState upserts the single schema_state row.
func recordSchemaState(ctx context.Context, db *sql.DB, bundle Bundle) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO schema_state (id, status, schema_version, checksum, activated_at, created_at)
		VALUES (TRUE, $1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    schema_version = EXCLUDED.schema_version,
		    checksum = EXCLUDED.checksum,
		    activated_at = EXCLUDED.activated_at
	`, schemaStatusActive, bundle.VersionString(), bundle.Checksum, now)
	if err != nil {
		return fmt.Errorf("record schema state: %w", err)
	}
	return nil
}

// VerifySchema fails unless the migrate command has applied every embedded migration.
func VerifySchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("schema check requires database handle")
	}
	bundle, err := Embedded()
	if err != nil {
		return err
	}

	var status, version string
	err = db.QueryRowContext(ctx, `SELECT status, schema_version FROM schema_state WHERE id = TRUE`).Scan(&status, &version)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaOutdated, err)
	}
	if status != schemaStatusActive || version != bundle.VersionString() {
		return fmt.Errorf("%w: have %s (%s), want %d", ErrSchemaOutdated, version, status, bundle.Version)
	}
	return nil
}

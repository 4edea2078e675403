//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/pkg/version"
)

// MetadataTable holds key/value facts about the schema.
const MetadataTable = "salesingest_metadata"

// SchemaVersion is bumped whenever the table layout changes.
const SchemaVersion = "1"

const createMetadataTableSQL = `
CREATE TABLE IF NOT EXISTS salesingest_metadata (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SaveMetadata records the schema version and creation time.
func SaveMetadata(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, createMetadataTableSQL); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	metadata := map[string]string{
		"schema_version": SchemaVersion,
		"version":        version.Short(),
		"initialized_at": time.Now().UTC().Format(time.RFC3339),
	}

	for key, value := range metadata {
		_, err := q.Exec(ctx, `
            INSERT INTO salesingest_metadata (key, value) VALUES ($1, $2)
            ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
        `, key, value)
		if err != nil {
			return fmt.Errorf("failed to save metadata %s: %w", key, err)
		}
	}

	logging.Debug().
		Str("schema_version", SchemaVersion).
		Msg("Saved metadata")

	return nil
}

// GetMetadataValue retrieves a single metadata value by key.
func GetMetadataValue(ctx context.Context, q Querier, key string) (string, error) {
	var value string
	err := q.QueryRow(ctx, `
        SELECT value FROM salesingest_metadata WHERE key = $1
    `, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// CheckSchemaVersion warns when the database was initialized by a version
// with a different table layout. A missing metadata table is reported as
// an error telling the user to run init.
func CheckSchemaVersion(ctx context.Context, q Querier) error {
	v, err := GetMetadataValue(ctx, q, "schema_version")
	if err != nil {
		return fmt.Errorf("database has not been initialized; run 'pgedge-salesingest init' first: %w", err)
	}
	if v != SchemaVersion {
		logging.Warn().
			Str("database_schema", v).
			Str("expected_schema", SchemaVersion).
			Msg("Schema version mismatch; consider re-running init with --drop-existing")
	}
	return nil
}

// DropMetadata drops the metadata table.
func DropMetadata(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", MetadataTable))
	return err
}

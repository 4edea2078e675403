//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package testutil provides PostgreSQL helpers for the store integration
// tests. Set SALESINGEST_TEST_CONN to point them at a server.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultTestConnString is used when SALESINGEST_TEST_CONN is unset.
const DefaultTestConnString = "postgres://postgres@localhost:5432/postgres"

// testDBPrefix names every database created by NewTestDB.
const testDBPrefix = "salesingest_test_"

// SkipIfNoPostgres skips t unless a server answers on the test connection
// string, which it returns.
func SkipIfNoPostgres(t *testing.T) string {
	t.Helper()

	connStr := os.Getenv("SALESINGEST_TEST_CONN")
	if connStr == "" {
		connStr = DefaultTestConnString
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		t.Skipf("PostgreSQL not available, skipping integration test: %v", err)
	}
	conn.Close(ctx)
	return connStr
}

// NewTestDB creates an empty database named after name and returns its
// connection string. The database is dropped when t passes and kept for
// inspection when it fails.
func NewTestDB(t *testing.T, baseConnStr, name string) string {
	t.Helper()

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		t.Fatalf("Failed to generate database name: %v", err)
	}
	dbName := testDBPrefix + name + "_" + hex.EncodeToString(suffix)

	cfg, err := pgx.ParseConfig(baseConnStr)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}

	admin := func(ctx context.Context, sql string) error {
		conn, err := pgx.ConnectConfig(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)
		_, err = conn.Exec(ctx, sql)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ident := pgx.Identifier{dbName}.Sanitize()
	if err := admin(ctx, "CREATE DATABASE "+ident); err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("Keeping database %s for diagnostics", dbName)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := admin(ctx, "DROP DATABASE IF EXISTS "+ident+" WITH (FORCE)"); err != nil {
			t.Logf("Warning: failed to drop test database %s: %v", dbName, err)
		}
	})

	// ConnString() does not reflect a changed Database, so build the URL.
	auth := cfg.User
	if cfg.Password != "" {
		auth += ":" + cfg.Password
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", auth, cfg.Host, cfg.Port, dbName)
}

// ConnectTestDB opens a pool on connStr. The caller closes it.
func ConnectTestDB(t *testing.T, connStr string) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	return pool
}

//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package postgres implements the record store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-salesingest/internal/db"
)

// Schema SQL for the master, raw, quarantine and staging layers.
// Amounts are unscaled NUMERIC so split amounts round-trip exactly.
const createSchemaSQL = `
-- Master data
CREATE TABLE IF NOT EXISTS staging_stores (
    store_id     TEXT PRIMARY KEY,
    store_name   TEXT,
    store_city   TEXT,
    store_region TEXT,
    opening_date TEXT
);

CREATE TABLE IF NOT EXISTS staging_products (
    product_id          TEXT PRIMARY KEY,
    product_name        TEXT,
    product_category    TEXT,
    unit_price          NUMERIC,
    current_stock_level BIGINT
);

CREATE TABLE IF NOT EXISTS staging_customer_details (
    customer_id          TEXT PRIMARY KEY,
    first_name           TEXT,
    email                TEXT,
    loyalty_status       TEXT,
    total_loyalty_points BIGINT DEFAULT 0,
    last_purchase_date   TEXT,
    segment_id           TEXT
);

CREATE TABLE IF NOT EXISTS staging_promotion_details (
    promotion_id        TEXT PRIMARY KEY,
    promotion_name      TEXT,
    start_date          TEXT,
    end_date            TEXT,
    discount_percentage NUMERIC,
    applicable_category TEXT
);

CREATE TABLE IF NOT EXISTS staging_loyalty_rules (
    rule_id               BIGINT PRIMARY KEY,
    rule_name             TEXT,
    points_per_unit_spend NUMERIC,
    min_spend_threshold   NUMERIC,
    bonus_points          BIGINT
);

-- Raw layer
CREATE TABLE IF NOT EXISTS raw_store_sales_header (
    transaction_id   TEXT PRIMARY KEY,
    customer_id      TEXT,
    store_id         TEXT,
    transaction_date TEXT,
    total_amount     NUMERIC,
    load_timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS raw_store_sales_line_items (
    line_item_id     BIGINT PRIMARY KEY,
    transaction_id   TEXT,
    product_id       TEXT,
    promotion_id     TEXT,
    quantity         BIGINT,
    line_item_amount NUMERIC,
    load_timestamp   TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Quarantine layer
CREATE TABLE IF NOT EXISTS quarantine_rejected_sales_header (
    transaction_id      TEXT PRIMARY KEY,
    customer_id         TEXT,
    store_id            TEXT,
    transaction_date    TEXT,
    total_amount        NUMERIC,
    rejection_reason    TEXT NOT NULL,
    rejection_timestamp TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS quarantine_rejected_sales_line_items (
    line_item_id        BIGINT PRIMARY KEY,
    transaction_id      TEXT,
    product_id          TEXT,
    promotion_id        TEXT,
    quantity            BIGINT,
    line_item_amount    NUMERIC,
    rejection_reason    TEXT NOT NULL,
    rejection_timestamp TIMESTAMPTZ NOT NULL
);

-- Staging layer
CREATE TABLE IF NOT EXISTS staging_store_sales_header (
    transaction_id    TEXT PRIMARY KEY,
    customer_id       TEXT NOT NULL,
    store_id          TEXT NOT NULL,
    transaction_date  TEXT NOT NULL,
    total_amount      NUMERIC NOT NULL,
    processed         BOOLEAN NOT NULL DEFAULT false,
    created_timestamp TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_store_sales_line_items (
    line_item_id      BIGINT PRIMARY KEY,
    transaction_id    TEXT NOT NULL REFERENCES staging_store_sales_header(transaction_id),
    product_id        TEXT NOT NULL,
    promotion_id      TEXT,
    quantity          BIGINT NOT NULL,
    line_item_amount  NUMERIC NOT NULL,
    created_timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staging_line_items_txn
    ON staging_store_sales_line_items(transaction_id);

-- Run bookkeeping
CREATE TABLE IF NOT EXISTS ingest_runs (
    run_id               UUID PRIMARY KEY,
    started_at           TIMESTAMPTZ NOT NULL,
    finished_at          TIMESTAMPTZ,
    status               TEXT NOT NULL,
    version              TEXT NOT NULL,
    error                TEXT,
    raw_headers          INTEGER NOT NULL DEFAULT 0,
    raw_line_items       INTEGER NOT NULL DEFAULT 0,
    rejected_headers     INTEGER NOT NULL DEFAULT 0,
    rejected_line_items  INTEGER NOT NULL DEFAULT 0,
    staged_headers       INTEGER NOT NULL DEFAULT 0,
    staged_line_items    INTEGER NOT NULL DEFAULT 0
);
`

// Tables in drop order (dependents first).
var tables = []string{
	"staging_store_sales_line_items",
	"staging_store_sales_header",
	"quarantine_rejected_sales_line_items",
	"quarantine_rejected_sales_header",
	"raw_store_sales_line_items",
	"raw_store_sales_header",
	"staging_loyalty_rules",
	"staging_promotion_details",
	"staging_customer_details",
	"staging_products",
	"staging_stores",
	"ingest_runs",
}

// CreateSchema creates all tables and records the schema version.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, createSchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return db.SaveMetadata(ctx, pool)
}

// DropSchema drops all tables.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return db.DropMetadata(ctx, pool)
}

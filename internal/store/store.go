//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package store defines the record store the pipeline persists to, and the
// registry of available backends.
//
// Every write method is all-or-nothing: it either commits completely or
// leaves the store as it was, so a failed pipeline stage never leaves
// staging or quarantine half-written.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// ErrNoRuns is returned by LastRun when no run has been recorded.
var ErrNoRuns = errors.New("no ingest runs recorded")

// Run status values.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Run is the bookkeeping row for one pipeline invocation.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Version    string
	Error      string

	RawHeaders        int
	RawLineItems      int
	RejectedHeaders   int
	RejectedLineItems int
	StagedHeaders     int
	StagedLineItems   int
}

// Store is the persistent record store.
type Store interface {
	// Backend returns the backend name the store was opened with.
	Backend() string

	// CreateSchema creates all tables if they do not exist.
	CreateSchema(ctx context.Context) error

	// DropSchema drops all tables.
	DropSchema(ctx context.Context) error

	// ReplaceMasterData replaces the master reference tables.
	ReplaceMasterData(ctx context.Context, m *model.MasterData) error

	// LoadMasterData reads the master reference tables.
	LoadMasterData(ctx context.Context) (*model.MasterData, error)

	// ReplaceRaw replaces both raw sales tables.
	ReplaceRaw(ctx context.Context, raw *model.Raw) error

	// ReplaceRawLineItems replaces the raw line item table only.
	ReplaceRawLineItems(ctx context.Context, items []model.SalesLineItem) error

	// LoadRaw reads both raw sales tables.
	LoadRaw(ctx context.Context) (*model.Raw, error)

	// SaveHeaderRejections inserts header rejections. When replace is set
	// the quarantine header table is cleared first in the same transaction.
	SaveHeaderRejections(ctx context.Context, rejections []model.HeaderRejection, replace bool) error

	// SaveLineItemRejections inserts line item rejections, optionally
	// clearing the quarantine line item table first.
	SaveLineItemRejections(ctx context.Context, rejections []model.LineItemRejection, replace bool) error

	// LoadQuarantine reads both quarantine tables.
	LoadQuarantine(ctx context.Context) (*model.Quarantine, error)

	// ReplaceStaging clears staging line items, then staging headers, and
	// inserts the given staging layer.
	ReplaceStaging(ctx context.Context, st *model.Staging) error

	// LoadStaging reads both staging tables.
	LoadStaging(ctx context.Context) (*model.Staging, error)

	// RecordRun inserts or updates a run row.
	RecordRun(ctx context.Context, run Run) error

	// LastRun returns the most recently started run.
	LastRun(ctx context.Context) (*Run, error)

	// Close releases the store's resources.
	Close() error
}

// DuplicateKeyError reports an insert that would repeat a natural key in a
// table keyed by it.
type DuplicateKeyError struct {
	Table string
	Key   any
}

func (e DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %v in %s", e.Key, e.Table)
}

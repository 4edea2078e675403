//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package pipeline implements ingestion and validation of raw sales data:
// normalization of multi-valued line items, ordered rule-based validation
// into quarantine, and routing of the accepted records into staging.
//
// The record store is treated as a serialization boundary. Each stage works
// on in-memory collections and persists its result in one store call, which
// the store commits atomically.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/metrics"
	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
	"github.com/pgEdge/pgedge-salesingest/pkg/version"
)

// Source provides the input of a run.
type Source interface {
	// LoadMaster returns the master reference data.
	LoadMaster(ctx context.Context) (*model.MasterData, error)

	// LoadRaw returns the raw sales headers and line items.
	LoadRaw(ctx context.Context) (*model.Raw, error)
}

// Config controls a pipeline run.
type Config struct {
	// Tolerance is the allowed header total mismatch. Zero means
	// DefaultTolerance.
	Tolerance decimal.Decimal

	// KeepQuarantine retains quarantine entries from earlier runs. They
	// count as already rejected, so those records stay rejected.
	KeepQuarantine bool

	// SkipMasterLoad keeps the master tables already in the store instead
	// of replacing them from the source.
	SkipMasterLoad bool

	// Now is the run clock. Defaults to time.Now.
	Now func() time.Time
}

// Result summarizes a completed run.
type Result struct {
	RunID     uuid.UUID
	Normalize NormalizeResult

	RawHeaders   int
	RawLineItems int

	// New rejections in this run.
	HeaderRejections   []model.HeaderRejection
	LineItemRejections []model.LineItemRejection

	// Quarantine sizes after the run, including retained entries.
	QuarantinedHeaders   int
	QuarantinedLineItems int

	StagedHeaders   int
	StagedLineItems int
}

// Pipeline runs the ingestion stages against a store.
type Pipeline struct {
	src     Source
	st      store.Store
	cfg     Config
	metrics *metrics.Registry
}

// New creates a pipeline. m may be nil.
func New(src Source, st store.Store, cfg Config, m *metrics.Registry) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{src: src, st: st, cfg: cfg, metrics: m}
}

// Run executes every stage in order. A failing stage aborts the run and is
// reported as a *StageError; stages already completed stay committed.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	run := store.Run{
		ID:        uuid.New(),
		StartedAt: p.cfg.Now(),
		Status:    store.RunStatusRunning,
		Version:   version.Short(),
	}
	if err := p.st.RecordRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Str("backend", p.st.Backend()).
		Msg("Starting ingestion run")

	res, err := p.run(ctx, run.ID)

	run.FinishedAt = p.cfg.Now()
	if err != nil {
		run.Status = store.RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = store.RunStatusSucceeded
		run.RawHeaders = res.RawHeaders
		run.RawLineItems = res.RawLineItems
		run.RejectedHeaders = res.QuarantinedHeaders
		run.RejectedLineItems = res.QuarantinedLineItems
		run.StagedHeaders = res.StagedHeaders
		run.StagedLineItems = res.StagedLineItems
	}
	if p.metrics != nil {
		p.metrics.Finish(err == nil, run.FinishedAt)
	}

	if recErr := p.st.RecordRun(ctx, run); recErr != nil {
		if err != nil {
			logging.Warn().Err(recErr).Msg("Could not record failed run")
			return nil, err
		}
		return nil, fmt.Errorf("failed to record run completion: %w", recErr)
	}
	if err != nil {
		return nil, err
	}

	logging.Info().
		Str("run_id", run.ID.String()).
		Int("staged_headers", res.StagedHeaders).
		Int("staged_line_items", res.StagedLineItems).
		Int("quarantined_headers", res.QuarantinedHeaders).
		Int("quarantined_line_items", res.QuarantinedLineItems).
		Dur("duration", run.FinishedAt.Sub(run.StartedAt)).
		Msg("Ingestion run complete")

	return res, nil
}

func (p *Pipeline) run(ctx context.Context, runID uuid.UUID) (*Result, error) {
	res := &Result{RunID: runID}

	// load-master
	var master *model.MasterData
	err := p.stage(StageLoadMaster, func() error {
		var err error
		if p.cfg.SkipMasterLoad {
			master, err = p.st.LoadMasterData(ctx)
			return err
		}
		master, err = p.src.LoadMaster(ctx)
		if err != nil {
			return err
		}
		return p.st.ReplaceMasterData(ctx, master)
	})
	if err != nil {
		return nil, err
	}
	ref := master.Reference()

	// load-raw
	var raw *model.Raw
	err = p.stage(StageLoadRaw, func() error {
		var err error
		raw, err = p.src.LoadRaw(ctx)
		if err != nil {
			return err
		}
		return p.st.ReplaceRaw(ctx, raw)
	})
	if err != nil {
		return nil, err
	}
	res.RawHeaders = len(raw.Headers)

	// normalize
	err = p.stage(StageNormalize, func() error {
		items, nres := Normalize(raw.LineItems)
		res.Normalize = nres
		if nres.Split == 0 {
			return nil
		}
		if err := p.st.ReplaceRawLineItems(ctx, items); err != nil {
			return err
		}
		raw.LineItems = items
		logging.Info().
			Int("split", nres.Split).
			Int("created", nres.Created).
			Msg("Split multi-valued product ids")
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.RawLineItems = len(raw.LineItems)

	q := &model.Quarantine{}
	if p.cfg.KeepQuarantine {
		prior, err := p.st.LoadQuarantine(ctx)
		if err != nil {
			return nil, stageErr(StageValidateHeaders, err)
		}
		q = prior
	}

	validator := NewValidator(ref, p.cfg.Tolerance)
	now := p.cfg.Now()

	// validate-headers
	err = p.stage(StageValidateHeaders, func() error {
		rejected := q.HeaderKeys()
		rej := validator.ValidateHeaders(raw.Headers, raw.LineItems, rejected, now)
		if err := p.st.SaveHeaderRejections(ctx, rej, !p.cfg.KeepQuarantine); err != nil {
			return err
		}
		res.HeaderRejections = rej
		q.Headers = append(q.Headers, rej...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// validate-items
	err = p.stage(StageValidateItems, func() error {
		rejected := q.LineItemKeys()
		rej := validator.ValidateLineItems(raw.LineItems, raw.Headers, rejected, now)
		if err := p.st.SaveLineItemRejections(ctx, rej, !p.cfg.KeepQuarantine); err != nil {
			return err
		}
		res.LineItemRejections = rej
		q.LineItems = append(q.LineItems, rej...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.QuarantinedHeaders = len(q.Headers)
	res.QuarantinedLineItems = len(q.LineItems)

	// route
	err = p.stage(StageRoute, func() error {
		st := Route(raw, q, now)
		if err := p.st.ReplaceStaging(ctx, st); err != nil {
			return err
		}
		res.StagedHeaders = len(st.Headers)
		res.StagedLineItems = len(st.LineItems)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.observe(res)
	return res, nil
}

// stage runs fn, logs and times it, and wraps a failure in a StageError.
func (p *Pipeline) stage(name string, fn func() error) error {
	log := logging.Stage(name)
	log.Debug().Msg("Stage started")

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if p.metrics != nil {
		p.metrics.ObserveStage(name, elapsed)
	}
	if err != nil {
		log.Error().Err(err).Dur("duration", elapsed).Msg("Stage failed")
		return stageErr(name, err)
	}
	log.Info().Dur("duration", elapsed).Msg("Stage complete")
	return nil
}

func (p *Pipeline) observe(res *Result) {
	if p.metrics == nil {
		return
	}
	p.metrics.SplitRecords.Add(float64(res.Normalize.Split))
	p.metrics.CreatedSplits.Add(float64(res.Normalize.Created))

	p.metrics.SetRecords("raw", "header", res.RawHeaders)
	p.metrics.SetRecords("raw", "line_item", res.RawLineItems)
	p.metrics.SetRecords("quarantine", "header", res.QuarantinedHeaders)
	p.metrics.SetRecords("quarantine", "line_item", res.QuarantinedLineItems)
	p.metrics.SetRecords("staging", "header", res.StagedHeaders)
	p.metrics.SetRecords("staging", "line_item", res.StagedLineItems)

	for _, r := range res.HeaderRejections {
		p.metrics.AddRejection("header", r.Reason)
	}
	for _, r := range res.LineItemRejections {
		p.metrics.AddRejection("line_item", r.Reason)
	}
}

// StoreSource replays the master and raw data already held by a store,
// for re-validating without reloading CSV files.
type StoreSource struct {
	Store store.Store
}

// LoadMaster reads the master tables from the store.
func (s StoreSource) LoadMaster(ctx context.Context) (*model.MasterData, error) {
	return s.Store.LoadMasterData(ctx)
}

// LoadRaw reads the raw tables from the store.
func (s StoreSource) LoadRaw(ctx context.Context) (*model.Raw, error) {
	return s.Store.LoadRaw(ctx)
}

//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package report summarizes the outcome of ingestion runs from the record
// store and exports the raw, quarantine and staging tables as CSV.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
)

// Tables is a snapshot of the sales layers in the store.
type Tables struct {
	Raw        *model.Raw
	Quarantine *model.Quarantine
	Staging    *model.Staging
}

// Load reads the raw, quarantine and staging layers from st.
func Load(ctx context.Context, st store.Store) (*Tables, error) {
	raw, err := st.LoadRaw(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw tables: %w", err)
	}
	q, err := st.LoadQuarantine(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load quarantine tables: %w", err)
	}
	staging, err := st.LoadStaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load staging tables: %w", err)
	}
	return &Tables{Raw: raw, Quarantine: q, Staging: staging}, nil
}

// Counts is the validation outcome for one record type.
type Counts struct {
	RecordType string
	Total      int
	Valid      int
	Rejected   int
}

// ValidationRate is the share of valid records in percent, rounded to two
// decimals. It is zero when there are no records.
func (c Counts) ValidationRate() float64 {
	if c.Total == 0 {
		return 0
	}
	return math.Round(float64(c.Valid)/float64(c.Total)*10000) / 100
}

// ReasonCount is the number of rejections with one reason.
type ReasonCount struct {
	Reason string
	Count  int
}

// Summary is the validation summary of the current store contents.
type Summary struct {
	Headers   Counts
	LineItems Counts

	HeaderReasons   []ReasonCount
	LineItemReasons []ReasonCount

	// LastRun is nil when no run has been recorded.
	LastRun *store.Run
}

// Summarize computes the summary of t.
func Summarize(t *Tables) *Summary {
	s := &Summary{
		Headers: Counts{
			RecordType: "header",
			Total:      len(t.Raw.Headers),
			Valid:      len(t.Staging.Headers),
			Rejected:   len(t.Quarantine.Headers),
		},
		LineItems: Counts{
			RecordType: "line_item",
			Total:      len(t.Raw.LineItems),
			Valid:      len(t.Staging.LineItems),
			Rejected:   len(t.Quarantine.LineItems),
		},
	}

	reasons := make([]string, 0, len(t.Quarantine.Headers))
	for _, r := range t.Quarantine.Headers {
		reasons = append(reasons, r.Reason)
	}
	s.HeaderReasons = tally(reasons)

	reasons = reasons[:0]
	for _, r := range t.Quarantine.LineItems {
		reasons = append(reasons, r.Reason)
	}
	s.LineItemReasons = tally(reasons)

	return s
}

// Build loads the store contents and the last run and summarizes them.
func Build(ctx context.Context, st store.Store) (*Tables, *Summary, error) {
	t, err := Load(ctx, st)
	if err != nil {
		return nil, nil, err
	}
	s := Summarize(t)

	run, err := st.LastRun(ctx)
	switch {
	case errors.Is(err, store.ErrNoRuns):
	case err != nil:
		return nil, nil, fmt.Errorf("failed to load last run: %w", err)
	default:
		s.LastRun = run
	}
	return t, s, nil
}

// tally counts reasons, most frequent first.
func tally(reasons []string) []ReasonCount {
	counts := make(map[string]int)
	for _, r := range reasons {
		counts[r]++
	}
	out := make([]ReasonCount, 0, len(counts))
	for r, n := range counts {
		out = append(out, ReasonCount{Reason: r, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// Log writes the summary as structured log events.
func (s *Summary) Log() {
	if s.LastRun != nil {
		logging.Info().
			Str("run_id", s.LastRun.ID.String()).
			Str("status", s.LastRun.Status).
			Str("version", s.LastRun.Version).
			Time("started_at", s.LastRun.StartedAt).
			Msg("Last ingestion run")
	}
	for _, c := range []Counts{s.Headers, s.LineItems} {
		logging.Info().
			Str("record_type", c.RecordType).
			Int("total", c.Total).
			Int("valid", c.Valid).
			Int("rejected", c.Rejected).
			Float64("validation_rate", c.ValidationRate()).
			Msg("Validation summary")
	}
}

// Write prints the summary as a plain-text report.
func (s *Summary) Write(w io.Writer) error {
	ew := &errWriter{w: w}

	if s.LastRun != nil {
		r := s.LastRun
		ew.printf("Last run:   %s (%s)\n", r.ID, r.Status)
		ew.printf("Started:    %s\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"))
		if !r.FinishedAt.IsZero() {
			ew.printf("Duration:   %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
		}
		if r.Error != "" {
			ew.printf("Error:      %s\n", r.Error)
		}
		ew.printf("\n")
	}

	ew.printf("%-12s %8s %8s %8s %10s\n", "RECORD TYPE", "TOTAL", "VALID", "REJECTED", "RATE")
	for _, c := range []Counts{s.Headers, s.LineItems} {
		ew.printf("%-12s %8d %8d %8d %9.2f%%\n",
			c.RecordType, c.Total, c.Valid, c.Rejected, c.ValidationRate())
	}

	for _, section := range []struct {
		title   string
		reasons []ReasonCount
	}{
		{"Header rejection reasons", s.HeaderReasons},
		{"Line item rejection reasons", s.LineItemReasons},
	} {
		ew.printf("\n%s:\n", section.title)
		if len(section.reasons) == 0 {
			ew.printf("  (none)\n")
			continue
		}
		for _, r := range section.reasons {
			ew.printf("  %-28s %6d\n", r.Reason, r.Count)
		}
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

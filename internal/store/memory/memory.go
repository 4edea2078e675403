// Package memory provides an in-memory store for tests and dry runs.
// Loads return rows ordered by natural key, like the SQL backends.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
)

// BackendName is the registry name of the in-memory backend.
const BackendName = "memory"

// Store keeps every table in memory. Writes build the new table contents
// first and swap them in under the lock, so they are all-or-nothing.
type Store struct {
	mu sync.RWMutex

	master     model.MasterData
	raw        model.Raw
	quarantine model.Quarantine
	staging    model.Staging
	runs       []store.Run

	// failures maps an operation name to the error it should return.
	failures map[string]error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{failures: make(map[string]error)}
}

// FailOn makes the named operation (e.g. "ReplaceStaging") return err
// without changing any data. A nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	return s.failures[op]
}

// Backend returns "memory".
func (s *Store) Backend() string { return BackendName }

// CreateSchema is a no-op.
func (s *Store) CreateSchema(_ context.Context) error { return nil }

// DropSchema discards all data.
func (s *Store) DropSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.master = model.MasterData{}
	s.raw = model.Raw{}
	s.quarantine = model.Quarantine{}
	s.staging = model.Staging{}
	s.runs = nil
	return nil
}

func (s *Store) ReplaceMasterData(_ context.Context, m *model.MasterData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReplaceMasterData"); err != nil {
		return err
	}
	s.master = model.MasterData{
		Stores:       append([]model.Store(nil), m.Stores...),
		Products:     append([]model.Product(nil), m.Products...),
		Customers:    append([]model.Customer(nil), m.Customers...),
		Promotions:   append([]model.Promotion(nil), m.Promotions...),
		LoyaltyRules: append([]model.LoyaltyRule(nil), m.LoyaltyRules...),
	}
	return nil
}

func (s *Store) LoadMasterData(_ context.Context) (*model.MasterData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &model.MasterData{
		Stores:       append([]model.Store(nil), s.master.Stores...),
		Products:     append([]model.Product(nil), s.master.Products...),
		Customers:    append([]model.Customer(nil), s.master.Customers...),
		Promotions:   append([]model.Promotion(nil), s.master.Promotions...),
		LoyaltyRules: append([]model.LoyaltyRule(nil), s.master.LoyaltyRules...),
	}, nil
}

func (s *Store) ReplaceRaw(_ context.Context, raw *model.Raw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReplaceRaw"); err != nil {
		return err
	}
	s.raw = model.Raw{
		Headers:   append([]model.SalesHeader(nil), raw.Headers...),
		LineItems: append([]model.SalesLineItem(nil), raw.LineItems...),
	}
	return nil
}

func (s *Store) ReplaceRawLineItems(_ context.Context, items []model.SalesLineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReplaceRawLineItems"); err != nil {
		return err
	}
	s.raw.LineItems = append([]model.SalesLineItem(nil), items...)
	return nil
}

func (s *Store) LoadRaw(_ context.Context) (*model.Raw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw := &model.Raw{
		Headers:   append([]model.SalesHeader(nil), s.raw.Headers...),
		LineItems: append([]model.SalesLineItem(nil), s.raw.LineItems...),
	}
	model.SortHeaders(raw.Headers)
	model.SortLineItems(raw.LineItems)
	return raw, nil
}

func (s *Store) SaveHeaderRejections(_ context.Context, rejections []model.HeaderRejection, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveHeaderRejections"); err != nil {
		return err
	}

	var next []model.HeaderRejection
	if !replace {
		next = append(next, s.quarantine.Headers...)
	}
	seen := make(map[string]struct{}, len(next))
	for _, r := range next {
		seen[r.TransactionID] = struct{}{}
	}
	for _, r := range rejections {
		if _, dup := seen[r.TransactionID]; dup {
			return store.DuplicateKeyError{Table: "quarantine_rejected_sales_header", Key: r.TransactionID}
		}
		seen[r.TransactionID] = struct{}{}
		next = append(next, r)
	}
	s.quarantine.Headers = next
	return nil
}

func (s *Store) SaveLineItemRejections(_ context.Context, rejections []model.LineItemRejection, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveLineItemRejections"); err != nil {
		return err
	}

	var next []model.LineItemRejection
	if !replace {
		next = append(next, s.quarantine.LineItems...)
	}
	seen := make(map[int64]struct{}, len(next))
	for _, r := range next {
		seen[r.LineItemID] = struct{}{}
	}
	for _, r := range rejections {
		if _, dup := seen[r.LineItemID]; dup {
			return store.DuplicateKeyError{Table: "quarantine_rejected_sales_line_items", Key: r.LineItemID}
		}
		seen[r.LineItemID] = struct{}{}
		next = append(next, r)
	}
	s.quarantine.LineItems = next
	return nil
}

func (s *Store) LoadQuarantine(_ context.Context) (*model.Quarantine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := &model.Quarantine{
		Headers:   append([]model.HeaderRejection(nil), s.quarantine.Headers...),
		LineItems: append([]model.LineItemRejection(nil), s.quarantine.LineItems...),
	}
	sort.Slice(q.Headers, func(i, j int) bool {
		return q.Headers[i].TransactionID < q.Headers[j].TransactionID
	})
	sort.Slice(q.LineItems, func(i, j int) bool {
		return q.LineItems[i].LineItemID < q.LineItems[j].LineItemID
	})
	return q, nil
}

func (s *Store) ReplaceStaging(_ context.Context, st *model.Staging) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ReplaceStaging"); err != nil {
		return err
	}
	s.staging = model.Staging{
		Headers:   append([]model.StagedHeader(nil), st.Headers...),
		LineItems: append([]model.StagedLineItem(nil), st.LineItems...),
	}
	return nil
}

func (s *Store) LoadStaging(_ context.Context) (*model.Staging, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := &model.Staging{
		Headers:   append([]model.StagedHeader(nil), s.staging.Headers...),
		LineItems: append([]model.StagedLineItem(nil), s.staging.LineItems...),
	}
	sort.Slice(st.Headers, func(i, j int) bool {
		return st.Headers[i].TransactionID < st.Headers[j].TransactionID
	})
	sort.Slice(st.LineItems, func(i, j int) bool {
		return st.LineItems[i].LineItemID < st.LineItems[j].LineItemID
	})
	return st, nil
}

func (s *Store) RecordRun(_ context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *Store) LastRun(_ context.Context) (*store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.runs) == 0 {
		return nil, store.ErrNoRuns
	}
	runs := append([]store.Run(nil), s.runs...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	last := runs[len(runs)-1]
	return &last, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func init() {
	store.Register(BackendName, func(_ context.Context, _ string) (store.Store, error) {
		return New(), nil
	})
}

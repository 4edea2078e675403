package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesingest/internal/metrics"
	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
	"github.com/pgEdge/pgedge-salesingest/internal/store/memory"
)

// staticSource serves fixed input and can fail on demand.
type staticSource struct {
	master *model.MasterData
	raw    *model.Raw
	err    error
}

func (s *staticSource) LoadMaster(context.Context) (*model.MasterData, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.master, nil
}

func (s *staticSource) LoadRaw(context.Context) (*model.Raw, error) {
	if s.err != nil {
		return nil, s.err
	}
	// Hand out a copy so runs cannot share slices.
	return &model.Raw{
		Headers:   append([]model.SalesHeader(nil), s.raw.Headers...),
		LineItems: append([]model.SalesLineItem(nil), s.raw.LineItems...),
	}, nil
}

func testMaster() *model.MasterData {
	return &model.MasterData{
		Stores:    []model.Store{{StoreID: "S1"}, {StoreID: "S2"}},
		Products:  []model.Product{{ProductID: "P1"}, {ProductID: "P2"}},
		Customers: []model.Customer{{CustomerID: "C1"}, {CustomerID: "C2"}},
	}
}

func fixedClock() func() time.Time {
	return func() time.Time { return testNow }
}

func newTestPipeline(src Source, st store.Store, cfg Config) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = fixedClock()
	}
	return New(src, st, cfg, nil)
}

func TestRunMissingCustomerDropsValidItems(t *testing.T) {
	src := &staticSource{
		master: testMaster(),
		raw: &model.Raw{
			Headers: []model.SalesHeader{
				header("T1", func(h *model.SalesHeader) { h.CustomerID = "" }),
			},
			LineItems: []model.SalesLineItem{item(1, "T1")},
		},
	}
	st := memory.New()

	res, err := newTestPipeline(src, st, Config{}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.HeaderRejections, 1)
	assert.Equal(t, ReasonMissingCustomer, res.HeaderRejections[0].Reason)
	assert.Empty(t, res.LineItemRejections, "the line item itself is valid")

	staging, err := st.LoadStaging(context.Background())
	require.NoError(t, err)
	assert.Empty(t, staging.Headers)
	assert.Empty(t, staging.LineItems)
}

func TestRunSplitsMultiProductItem(t *testing.T) {
	src := &staticSource{
		master: testMaster(),
		raw: &model.Raw{
			Headers: []model.SalesHeader{
				header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("90.0") }),
			},
			LineItems: []model.SalesLineItem{
				item(10, "T1", func(li *model.SalesLineItem) {
					li.ProductID = "P1,P2"
					li.Quantity = 3
					li.LineItemAmount = dec("90.0")
				}),
			},
		},
	}
	st := memory.New()

	res, err := newTestPipeline(src, st, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NormalizeResult{Split: 1, Created: 2}, res.Normalize)

	raw, err := st.LoadRaw(context.Background())
	require.NoError(t, err)
	require.Len(t, raw.LineItems, 2, "raw line items are rewritten in place")

	staging, err := st.LoadStaging(context.Background())
	require.NoError(t, err)
	require.Len(t, staging.LineItems, 2)
	assert.Equal(t, "P1", staging.LineItems[0].ProductID)
	assert.Equal(t, int64(2), staging.LineItems[0].Quantity)
	assert.True(t, staging.LineItems[0].LineItemAmount.Decimal.Equal(decimal.NewFromInt(45)))
	assert.Equal(t, "P2", staging.LineItems[1].ProductID)
	assert.Equal(t, int64(1), staging.LineItems[1].Quantity)
	assert.True(t, staging.LineItems[1].LineItemAmount.Decimal.Equal(decimal.NewFromInt(45)))
}

func TestRunTotalMismatchDropsItems(t *testing.T) {
	src := &staticSource{
		master: testMaster(),
		raw: &model.Raw{
			Headers: []model.SalesHeader{
				header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("100.0") }),
			},
			LineItems: []model.SalesLineItem{
				item(1, "T1", func(li *model.SalesLineItem) { li.LineItemAmount = dec("40.0") }),
				item(2, "T1", func(li *model.SalesLineItem) { li.LineItemAmount = dec("50.0") }),
			},
		},
	}
	st := memory.New()

	res, err := newTestPipeline(src, st, Config{}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.HeaderRejections, 1)
	assert.Equal(t, ReasonTotalMismatch, res.HeaderRejections[0].Reason)
	assert.Equal(t, 0, res.StagedHeaders)
	assert.Equal(t, 0, res.StagedLineItems)
}

// mixedSource has one clean transaction and one of each defect.
func mixedSource() *staticSource {
	return &staticSource{
		master: testMaster(),
		raw: &model.Raw{
			Headers: []model.SalesHeader{
				header("T1"),
				header("T2", func(h *model.SalesHeader) { h.StoreID = "S9" }),
				header("T3", func(h *model.SalesHeader) { h.CustomerID = "INVALID" }),
				header("T4", func(h *model.SalesHeader) { h.TransactionDate = "" }),
				header("T5", func(h *model.SalesHeader) { h.TotalAmount = dec("100.00") }),
				header("T6", func(h *model.SalesHeader) { h.TotalAmount = dec("20.00") }),
			},
			LineItems: []model.SalesLineItem{
				item(1, "T1"),
				item(2, "T2"),
				item(3, "T3"),
				item(4, "T4"),
				item(5, "T5"),
				item(6, "T6", func(li *model.SalesLineItem) {
					li.ProductID = "P1,P2"
					li.LineItemAmount = dec("20.00")
					li.Quantity = 2
				}),
				item(7, "T6", func(li *model.SalesLineItem) {
					li.ProductID = "P9"
					li.LineItemAmount = dec("0.004")
				}),
				item(8, "T404"),
				item(9, "T1", func(li *model.SalesLineItem) { li.LineItemAmount = decimal.NullDecimal{} }),
			},
		},
	}
}

func TestRunPartitionProperties(t *testing.T) {
	st := memory.New()
	res, err := newTestPipeline(mixedSource(), st, Config{}).Run(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	raw, err := st.LoadRaw(ctx)
	require.NoError(t, err)
	q, err := st.LoadQuarantine(ctx)
	require.NoError(t, err)
	staging, err := st.LoadStaging(ctx)
	require.NoError(t, err)

	// Every raw header is staged or quarantined, never both.
	stagedHeaders := make(map[string]struct{})
	for _, h := range staging.Headers {
		stagedHeaders[h.TransactionID] = struct{}{}
	}
	quarantined := q.HeaderKeys()
	assert.Len(t, quarantined, len(q.Headers), "quarantine keys must be unique")
	for _, h := range raw.Headers {
		_, s := stagedHeaders[h.TransactionID]
		_, r := quarantined[h.TransactionID]
		assert.True(t, s != r, "header %s staged=%v quarantined=%v", h.TransactionID, s, r)
	}

	// Every staged line item belongs to a staged header and is not quarantined.
	quarantinedItems := q.LineItemKeys()
	assert.Len(t, quarantinedItems, len(q.LineItems))
	for _, li := range staging.LineItems {
		_, ok := stagedHeaders[li.TransactionID]
		assert.True(t, ok, "line item %d staged without its header", li.LineItemID)
		_, rejected := quarantinedItems[li.LineItemID]
		assert.False(t, rejected)
	}

	reasons := make(map[string]string)
	for _, r := range q.Headers {
		reasons[r.TransactionID] = r.Reason
	}
	// T1 sums to 50.00 because its NULL item amount counts as zero, and
	// T6 is off by 0.004, inside the tolerance.
	assert.Equal(t, map[string]string{
		"T2": ReasonInvalidStore,
		"T3": ReasonMissingCustomer,
		"T4": ReasonInvalidDate,
		"T5": ReasonTotalMismatch,
	}, reasons)

	itemReasons := make(map[int64]string)
	for _, r := range q.LineItems {
		itemReasons[r.LineItemID] = r.Reason
	}
	assert.Equal(t, map[int64]string{
		7: ReasonInvalidProduct,
		8: ReasonInvalidTransaction,
		9: ReasonInvalidAmount,
	}, itemReasons)

	assert.Equal(t, 1, res.Normalize.Split)
	require.Len(t, staging.Headers, 2)
	assert.Equal(t, "T1", staging.Headers[0].TransactionID)
	assert.Equal(t, "T6", staging.Headers[1].TransactionID)

	var stagedIDs []int64
	for _, li := range staging.LineItems {
		stagedIDs = append(stagedIDs, li.LineItemID)
	}
	// Item 6 was split into 10 and 11.
	assert.Equal(t, []int64{1, 10, 11}, stagedIDs)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	src := mixedSource()

	_, err := newTestPipeline(src, st, Config{}).Run(ctx)
	require.NoError(t, err)
	q1, err := st.LoadQuarantine(ctx)
	require.NoError(t, err)
	s1, err := st.LoadStaging(ctx)
	require.NoError(t, err)

	_, err = newTestPipeline(src, st, Config{}).Run(ctx)
	require.NoError(t, err)
	q2, err := st.LoadQuarantine(ctx)
	require.NoError(t, err)
	s2, err := st.LoadStaging(ctx)
	require.NoError(t, err)

	assert.Equal(t, q1, q2)
	assert.Equal(t, s1, s2)
}

func TestRunFromStoreSourceIsStable(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	_, err := newTestPipeline(mixedSource(), st, Config{}).Run(ctx)
	require.NoError(t, err)
	s1, err := st.LoadStaging(ctx)
	require.NoError(t, err)

	// Re-validating the already normalized raw layer changes nothing.
	res, err := newTestPipeline(StoreSource{Store: st}, st, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Normalize.Split)

	s2, err := st.LoadStaging(ctx)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
}

func TestRunKeepQuarantine(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	first := &staticSource{
		master: testMaster(),
		raw: &model.Raw{
			Headers:   []model.SalesHeader{header("T1", func(h *model.SalesHeader) { h.StoreID = "S9" })},
			LineItems: []model.SalesLineItem{item(1, "T1")},
		},
	}
	_, err := newTestPipeline(first, st, Config{KeepQuarantine: true}).Run(ctx)
	require.NoError(t, err)

	// T1 is fixed upstream, but stays rejected because quarantine is kept.
	second := &staticSource{
		master: testMaster(),
		raw: &model.Raw{
			Headers: []model.SalesHeader{
				header("T1"),
				header("T2", func(h *model.SalesHeader) { h.CustomerID = "C9" }),
			},
			LineItems: []model.SalesLineItem{item(1, "T1"), item(2, "T2")},
		},
	}
	res, err := newTestPipeline(second, st, Config{KeepQuarantine: true}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.HeaderRejections, 1)
	assert.Equal(t, "T2", res.HeaderRejections[0].TransactionID)
	assert.Equal(t, 2, res.QuarantinedHeaders)
	assert.Equal(t, 0, res.StagedHeaders)

	// Without keep_quarantine the fixed record is accepted.
	res, err = newTestPipeline(second, st, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.QuarantinedHeaders)
	assert.Equal(t, 1, res.StagedHeaders)
}

func TestRunSkipMasterLoad(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.ReplaceMasterData(ctx, testMaster()))

	src := &staticSource{
		master: &model.MasterData{}, // would reject everything
		raw: &model.Raw{
			Headers:   []model.SalesHeader{header("T1")},
			LineItems: []model.SalesLineItem{item(1, "T1")},
		},
	}
	res, err := newTestPipeline(src, st, Config{SkipMasterLoad: true}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.StagedHeaders)
	assert.Equal(t, 1, res.StagedLineItems)
}

func TestRunAllRejectedSucceeds(t *testing.T) {
	src := &staticSource{
		master: &model.MasterData{},
		raw: &model.Raw{
			Headers:   []model.SalesHeader{header("T1"), header("T2")},
			LineItems: []model.SalesLineItem{item(1, "T1"), item(2, "T2")},
		},
	}
	st := memory.New()

	res, err := newTestPipeline(src, st, Config{}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.HeaderRejections, 2)
	assert.Len(t, res.LineItemRejections, 2)
	assert.Equal(t, 0, res.StagedHeaders)

	run, err := st.LastRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusSucceeded, run.Status)
}

func TestRunStageErrors(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		op    string
		stage string
	}{
		{"ReplaceMasterData", StageLoadMaster},
		{"ReplaceRaw", StageLoadRaw},
		{"ReplaceRawLineItems", StageNormalize},
		{"SaveHeaderRejections", StageValidateHeaders},
		{"SaveLineItemRejections", StageValidateItems},
		{"ReplaceStaging", StageRoute},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			ctx := context.Background()
			st := memory.New()
			st.FailOn(tt.op, boom)

			_, err := newTestPipeline(mixedSource(), st, Config{}).Run(ctx)
			require.Error(t, err)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.stage, stageErr.Stage)
			assert.ErrorIs(t, err, boom)

			run, err := st.LastRun(ctx)
			require.NoError(t, err)
			assert.Equal(t, store.RunStatusFailed, run.Status)
			assert.Contains(t, run.Error, tt.stage)
		})
	}
}

func TestRunFailedRouteKeepsPreviousStaging(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	_, err := newTestPipeline(mixedSource(), st, Config{}).Run(ctx)
	require.NoError(t, err)
	before, err := st.LoadStaging(ctx)
	require.NoError(t, err)

	st.FailOn("ReplaceStaging", errors.New("disk full"))
	_, err = newTestPipeline(mixedSource(), st, Config{}).Run(ctx)
	require.Error(t, err)

	after, err := st.LoadStaging(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunSourceError(t *testing.T) {
	boom := errors.New("missing file")
	st := memory.New()

	_, err := newTestPipeline(&staticSource{err: boom}, st, Config{}).Run(context.Background())

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageLoadMaster, stageErr.Stage)
	assert.ErrorIs(t, err, boom)
}

func TestRunRecordsMetrics(t *testing.T) {
	m := metrics.NewRegistry()
	_, err := New(mixedSource(), memory.New(), Config{Now: fixedClock()}, m).Run(context.Background())
	require.NoError(t, err)

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["salesingest_records"])
	assert.True(t, names["salesingest_rejections_total"])
	assert.True(t, names["salesingest_stage_duration_seconds"])
	assert.True(t, names["salesingest_run_succeeded"])
}

func TestStageErrorMessage(t *testing.T) {
	err := &StageError{Stage: StageRoute, Err: errors.New("boom")}
	assert.Equal(t, "stage route failed: boom", err.Error())
}

package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
	"github.com/pgEdge/pgedge-salesingest/internal/store/memory"
)

var when = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func sampleTables() *Tables {
	h1 := model.SalesHeader{TransactionID: "T1", CustomerID: "C1", StoreID: "S1", TransactionDate: "2024-03-01", TotalAmount: dec("10.50")}
	h2 := model.SalesHeader{TransactionID: "T2", StoreID: "S1", TransactionDate: "2024-03-01", TotalAmount: dec("5")}
	h3 := model.SalesHeader{TransactionID: "T3", CustomerID: "C1", StoreID: "S9"}
	h4 := model.SalesHeader{TransactionID: "T4", CustomerID: "C1", StoreID: "S8"}
	li1 := model.SalesLineItem{LineItemID: 1, TransactionID: "T1", ProductID: "P1", PromotionID: "PR1", Quantity: 2, LineItemAmount: dec("10.50")}
	li2 := model.SalesLineItem{LineItemID: 2, TransactionID: "T1", ProductID: "P9", Quantity: 1}

	return &Tables{
		Raw: &model.Raw{
			Headers:   []model.SalesHeader{h1, h2, h3, h4},
			LineItems: []model.SalesLineItem{li1, li2},
		},
		Quarantine: &model.Quarantine{
			Headers: []model.HeaderRejection{
				{SalesHeader: h2, Reason: "Missing or NULL customer_id", RejectedAt: when},
				{SalesHeader: h3, Reason: "Invalid store_id", RejectedAt: when},
				{SalesHeader: h4, Reason: "Invalid store_id", RejectedAt: when},
			},
			LineItems: []model.LineItemRejection{
				{SalesLineItem: li2, Reason: "Invalid product_id", RejectedAt: when},
			},
		},
		Staging: &model.Staging{
			Headers:   []model.StagedHeader{{SalesHeader: h1, CreatedAt: when}},
			LineItems: []model.StagedLineItem{{SalesLineItem: li1, CreatedAt: when}},
		},
	}
}

func TestValidationRate(t *testing.T) {
	tests := []struct {
		name  string
		c     Counts
		wantR float64
	}{
		{"empty", Counts{}, 0},
		{"all valid", Counts{Total: 4, Valid: 4}, 100},
		{"none valid", Counts{Total: 4, Rejected: 4}, 0},
		{"thirds", Counts{Total: 3, Valid: 2}, 66.67},
		{"quarter", Counts{Total: 4, Valid: 1}, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantR, tt.c.ValidationRate())
		})
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleTables())

	assert.Equal(t, Counts{RecordType: "header", Total: 4, Valid: 1, Rejected: 3}, s.Headers)
	assert.Equal(t, Counts{RecordType: "line_item", Total: 2, Valid: 1, Rejected: 1}, s.LineItems)
	assert.Equal(t, []ReasonCount{
		{Reason: "Invalid store_id", Count: 2},
		{Reason: "Missing or NULL customer_id", Count: 1},
	}, s.HeaderReasons)
	assert.Equal(t, []ReasonCount{{Reason: "Invalid product_id", Count: 1}}, s.LineItemReasons)
}

func TestTallyOrder(t *testing.T) {
	got := tally([]string{"b", "a", "c", "c", "b"})
	assert.Equal(t, []ReasonCount{
		{Reason: "b", Count: 2},
		{Reason: "c", Count: 2},
		{Reason: "a", Count: 1},
	}, got)

	assert.Empty(t, tally(nil))
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	_, s, err := Build(ctx, st)
	require.NoError(t, err)
	assert.Nil(t, s.LastRun, "no runs recorded yet")
	assert.Equal(t, 0, s.Headers.Total)

	run := store.Run{ID: uuid.New(), StartedAt: when, Status: store.RunStatusSucceeded}
	require.NoError(t, st.RecordRun(ctx, run))

	_, s, err = Build(ctx, st)
	require.NoError(t, err)
	require.NotNil(t, s.LastRun)
	assert.Equal(t, run.ID, s.LastRun.ID)
}

// failingStore fails every load.
type failingStore struct {
	*memory.Store
}

func (failingStore) LoadRaw(context.Context) (*model.Raw, error) {
	return nil, errors.New("connection refused")
}

func TestBuildLoadError(t *testing.T) {
	_, _, err := Build(context.Background(), failingStore{memory.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load raw tables")
}

func TestSummaryWrite(t *testing.T) {
	s := Summarize(sampleTables())
	s.LastRun = &store.Run{
		ID:         uuid.MustParse("6f1c5e0e-1111-4b5a-9c3e-000000000001"),
		StartedAt:  when,
		FinishedAt: when.Add(1500 * time.Millisecond),
		Status:     store.RunStatusSucceeded,
	}

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))
	out := buf.String()

	for _, want := range []string{
		"Last run:   6f1c5e0e-1111-4b5a-9c3e-000000000001 (succeeded)",
		"Duration:   1.5s",
		"header              4        1        3     25.00%",
		"line_item           2        1        1     50.00%",
		"Invalid store_id",
		"Invalid product_id",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Error:")
}

func TestSummaryWriteNoRejections(t *testing.T) {
	s := Summarize(&Tables{Raw: &model.Raw{}, Quarantine: &model.Quarantine{}, Staging: &model.Staging{}})

	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))
	assert.Equal(t, 2, strings.Count(buf.String(), "(none)"))
	assert.NotContains(t, buf.String(), "Last run")
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestSummaryWriteError(t *testing.T) {
	s := Summarize(sampleTables())
	assert.Error(t, s.Write(brokenWriter{}))
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExport(t *testing.T) {
	tables := sampleTables()
	s := Summarize(tables)
	dir := filepath.Join(t.TempDir(), "out")

	require.NoError(t, Export(dir, tables, s))

	for _, name := range []string{
		RawHeadersFile, RawLineItemsFile, RejectedHeadersFile, RejectedLineItemsFile,
		StagingHeadersFile, StagingLineItemsFile, ValidationSummaryFile,
		HeaderReasonsFile, LineItemReasonsFile,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	raw := readCSVFile(t, filepath.Join(dir, RawHeadersFile))
	require.Len(t, raw, 5)
	assert.Equal(t, headerColumns, raw[0])
	assert.Equal(t, []string{"T1", "C1", "S1", "2024-03-01", "10.5"}, raw[1])
	assert.Equal(t, []string{"T3", "C1", "S9", "", ""}, raw[3])

	rejected := readCSVFile(t, filepath.Join(dir, RejectedLineItemsFile))
	require.Len(t, rejected, 2)
	assert.Equal(t, "rejection_timestamp", rejected[0][len(rejected[0])-1])
	assert.Equal(t, []string{"2", "T1", "P9", "", "1", "", "Invalid product_id", "2024-03-15T10:30:00Z"}, rejected[1])

	staged := readCSVFile(t, filepath.Join(dir, StagingHeadersFile))
	require.Len(t, staged, 2)
	assert.Equal(t, []string{"T1", "C1", "S1", "2024-03-01", "10.5", "false", "2024-03-15T10:30:00Z"}, staged[1])

	summary := readCSVFile(t, filepath.Join(dir, ValidationSummaryFile))
	assert.Equal(t, [][]string{
		{"record_type", "total", "valid", "rejected", "validation_rate"},
		{"header", "4", "1", "3", "25.00"},
		{"line_item", "2", "1", "1", "50.00"},
	}, summary)

	reasons := readCSVFile(t, filepath.Join(dir, HeaderReasonsFile))
	assert.Equal(t, []string{"Invalid store_id", "2"}, reasons[1])
}

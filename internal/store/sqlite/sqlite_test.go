package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
	"github.com/pgEdge/pgedge-salesingest/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "salesingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTemp(t)
	})
}

func TestOpenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "salesingest.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.ReplaceRaw(ctx, &model.Raw{
		Headers: []model.SalesHeader{{TransactionID: "TXN001", TotalAmount: storetest.Dec("12.345")}},
	}))
	require.NoError(t, s.Close())

	// Reopening migrates again, which must not disturb existing rows.
	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	raw, err := s.LoadRaw(ctx)
	require.NoError(t, err)
	require.Len(t, raw.Headers, 1)
	assert.Equal(t, "12.345", raw.Headers[0].TotalAmount.Decimal.String())
}

func TestStagingForeignKey(t *testing.T) {
	s := openTemp(t)

	err := s.ReplaceStaging(context.Background(), &model.Staging{
		LineItems: []model.StagedLineItem{
			{SalesLineItem: model.SalesLineItem{LineItemID: 1, TransactionID: "TXN404", ProductID: "P001", Quantity: 1}},
		},
	})
	assert.Error(t, err, "staged line items must reference a staged header")
}

func TestTimestampRoundTrip(t *testing.T) {
	ts := storetest.Now().Add(123456789)
	got, err := parseTime(timestamp(ts))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		valid   bool
		want    string
		wantErr bool
	}{
		{"decimal", "10.50", true, "10.5", false},
		{"integer", "7", true, "7", false},
		{"negative", "-3.25", true, "-3.25", false},
		{"garbage", "abc", false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := parseAmount(sql.NullString{String: tt.in, Valid: true})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.valid, d.Valid)
			assert.Equal(t, tt.want, d.Decimal.String())
		})
	}

	d, err := parseAmount(sql.NullString{})
	require.NoError(t, err)
	assert.False(t, d.Valid)
}

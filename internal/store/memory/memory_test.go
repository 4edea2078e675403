package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
	"github.com/pgEdge/pgedge-salesingest/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("disk full")

	require.NoError(t, s.ReplaceStaging(ctx, &model.Staging{
		Headers: []model.StagedHeader{{SalesHeader: model.SalesHeader{TransactionID: "TXN001"}}},
	}))

	s.FailOn("ReplaceStaging", boom)
	err := s.ReplaceStaging(ctx, &model.Staging{})
	assert.ErrorIs(t, err, boom)

	st, err := s.LoadStaging(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Headers, 1, "failed write must leave staging unchanged")

	s.FailOn("ReplaceStaging", nil)
	require.NoError(t, s.ReplaceStaging(ctx, &model.Staging{}))
	st, err = s.LoadStaging(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Headers)
}

func TestDuplicateKeyError(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.SaveLineItemRejections(ctx, []model.LineItemRejection{
		{SalesLineItem: model.SalesLineItem{LineItemID: 3}, Reason: "Missing product_id"},
		{SalesLineItem: model.SalesLineItem{LineItemID: 3}, Reason: "Invalid product_id"},
	}, true)

	var dup store.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "quarantine_rejected_sales_line_items", dup.Table)
	assert.Equal(t, int64(3), dup.Key)
}

func TestRegistered(t *testing.T) {
	s, err := store.Open(context.Background(), BackendName, "")
	require.NoError(t, err)
	assert.Equal(t, BackendName, s.Backend())
	assert.NoError(t, s.Close())
}

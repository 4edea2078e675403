//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package storetest holds the behavioural tests every store backend must
// pass. Backends call Run from their own test files with a constructor
// that returns an empty store with the schema already created.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

// Run executes the conformance tests against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"MasterDataRoundTrip", testMasterData},
		{"RawRoundTrip", testRaw},
		{"ReplaceRawLineItems", testReplaceRawLineItems},
		{"QuarantineReplace", testQuarantineReplace},
		{"QuarantineAppend", testQuarantineAppend},
		{"QuarantineDuplicateRollsBack", testQuarantineDuplicate},
		{"StagingReplace", testStaging},
		{"Runs", testRuns},
		{"DropSchema", testDropSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

// Dec parses a decimal literal into a valid NullDecimal.
func Dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// Now returns a timestamp every backend can represent exactly.
func Now() time.Time {
	return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
}

func testMasterData(t *testing.T, s store.Store) {
	ctx := context.Background()
	in := &model.MasterData{
		Stores: []model.Store{
			{StoreID: "ST001", StoreName: "Downtown", StoreCity: "Austin", StoreRegion: "South", OpeningDate: "2019-04-01"},
			{StoreID: "ST002", StoreName: "Harbor"},
		},
		Products: []model.Product{
			{ProductID: "P001", ProductName: "Kettle", ProductCategory: "Kitchen", UnitPrice: Dec("24.99"), CurrentStockLevel: 40},
			{ProductID: "P002", ProductName: "Lamp"},
		},
		Customers: []model.Customer{
			{CustomerID: "C001", FirstName: "Ada", Email: "ada@example.com", LoyaltyStatus: "Gold", TotalLoyaltyPoints: 1200, LastPurchaseDate: "2024-02-01", SegmentID: "S1"},
		},
		Promotions: []model.Promotion{
			{PromotionID: "PROMO001", PromotionName: "Spring", StartDate: "2024-03-01", EndDate: "2024-03-31", DiscountPercentage: Dec("15.00"), ApplicableCategory: "Kitchen"},
		},
		LoyaltyRules: []model.LoyaltyRule{
			{RuleID: 1, RuleName: "Base", PointsPerUnitSpend: Dec("1.00"), MinSpendThreshold: Dec("0.00"), BonusPoints: 0},
			{RuleID: 2, RuleName: "Big spender", PointsPerUnitSpend: Dec("2.00"), MinSpendThreshold: Dec("500.00"), BonusPoints: 50},
		},
	}
	require.NoError(t, s.ReplaceMasterData(ctx, in))

	out, err := s.LoadMasterData(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.Stores, out.Stores)
	assert.Equal(t, in.Customers, out.Customers)

	require.Len(t, out.Products, 2)
	assert.Equal(t, "Kettle", out.Products[0].ProductName)
	assert.Equal(t, int64(40), out.Products[0].CurrentStockLevel)
	assertDecimal(t, in.Products[0].UnitPrice, out.Products[0].UnitPrice)
	assert.False(t, out.Products[1].UnitPrice.Valid)

	require.Len(t, out.Promotions, 1)
	assertDecimal(t, in.Promotions[0].DiscountPercentage, out.Promotions[0].DiscountPercentage)
	assert.Equal(t, "Kitchen", out.Promotions[0].ApplicableCategory)

	require.Len(t, out.LoyaltyRules, 2)
	assert.Equal(t, int64(50), out.LoyaltyRules[1].BonusPoints)
	assertDecimal(t, in.LoyaltyRules[1].MinSpendThreshold, out.LoyaltyRules[1].MinSpendThreshold)

	// A second load replaces rather than merges.
	require.NoError(t, s.ReplaceMasterData(ctx, &model.MasterData{
		Stores: []model.Store{{StoreID: "ST009", StoreName: "Airport"}},
	}))
	out, err = s.LoadMasterData(ctx)
	require.NoError(t, err)
	require.Len(t, out.Stores, 1)
	assert.Equal(t, "ST009", out.Stores[0].StoreID)
	assert.Empty(t, out.Products)
	assert.Empty(t, out.LoyaltyRules)
}

func sampleRaw() *model.Raw {
	return &model.Raw{
		Headers: []model.SalesHeader{
			{TransactionID: "TXN002", CustomerID: "", StoreID: "ST001", TransactionDate: "2024-03-02", TotalAmount: decimal.NullDecimal{}},
			{TransactionID: "TXN001", CustomerID: "C001", StoreID: "ST001", TransactionDate: "2024-03-01", TotalAmount: Dec("30.50")},
		},
		LineItems: []model.SalesLineItem{
			{LineItemID: 12, TransactionID: "TXN002", ProductID: "P001,P002", Quantity: 3, LineItemAmount: decimal.NullDecimal{}},
			{LineItemID: 10, TransactionID: "TXN001", ProductID: "P001", PromotionID: "PROMO001", Quantity: 2, LineItemAmount: Dec("20.25")},
			{LineItemID: 11, TransactionID: "TXN001", ProductID: "P002", Quantity: 1, LineItemAmount: Dec("10.25")},
		},
	}
}

func testRaw(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.ReplaceRaw(ctx, sampleRaw()))

	raw, err := s.LoadRaw(ctx)
	require.NoError(t, err)
	require.Len(t, raw.Headers, 2)
	require.Len(t, raw.LineItems, 3)

	// Loads come back ordered by natural key.
	assert.Equal(t, "TXN001", raw.Headers[0].TransactionID)
	assert.Equal(t, "TXN002", raw.Headers[1].TransactionID)
	assert.Equal(t, []int64{10, 11, 12}, []int64{raw.LineItems[0].LineItemID, raw.LineItems[1].LineItemID, raw.LineItems[2].LineItemID})

	assertDecimal(t, Dec("30.50"), raw.Headers[0].TotalAmount)
	assert.False(t, raw.Headers[1].TotalAmount.Valid, "NULL total should survive storage")
	assert.Equal(t, "", raw.Headers[1].CustomerID)

	assert.Equal(t, "PROMO001", raw.LineItems[0].PromotionID)
	assert.Equal(t, "", raw.LineItems[1].PromotionID)
	assert.Equal(t, "P001,P002", raw.LineItems[2].ProductID)
	assert.Equal(t, int64(3), raw.LineItems[2].Quantity)
	assert.False(t, raw.LineItems[2].LineItemAmount.Valid)

	require.NoError(t, s.ReplaceRaw(ctx, &model.Raw{
		Headers: []model.SalesHeader{{TransactionID: "TXN100", TotalAmount: Dec("1.00")}},
	}))
	raw, err = s.LoadRaw(ctx)
	require.NoError(t, err)
	require.Len(t, raw.Headers, 1)
	assert.Empty(t, raw.LineItems)
}

func testReplaceRawLineItems(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.ReplaceRaw(ctx, sampleRaw()))

	items := []model.SalesLineItem{
		{LineItemID: 13, TransactionID: "TXN002", ProductID: "P001", Quantity: 2},
		{LineItemID: 14, TransactionID: "TXN002", ProductID: "P002", Quantity: 1},
	}
	require.NoError(t, s.ReplaceRawLineItems(ctx, items))

	raw, err := s.LoadRaw(ctx)
	require.NoError(t, err)
	assert.Len(t, raw.Headers, 2, "headers must be untouched")
	require.Len(t, raw.LineItems, 2)
	assert.Equal(t, int64(13), raw.LineItems[0].LineItemID)
	assert.Equal(t, int64(14), raw.LineItems[1].LineItemID)
}

func headerRejection(id, reason string) model.HeaderRejection {
	return model.HeaderRejection{
		SalesHeader: model.SalesHeader{TransactionID: id, StoreID: "ST001", TotalAmount: Dec("5.00")},
		Reason:      reason,
		RejectedAt:  Now(),
	}
}

func lineItemRejection(id int64, reason string) model.LineItemRejection {
	return model.LineItemRejection{
		SalesLineItem: model.SalesLineItem{LineItemID: id, TransactionID: "TXN001", ProductID: "PX", Quantity: 1},
		Reason:        reason,
		RejectedAt:    Now(),
	}
}

func testQuarantineReplace(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveHeaderRejections(ctx, []model.HeaderRejection{
		headerRejection("TXN002", "Invalid store_id"),
		headerRejection("TXN001", "Missing or NULL customer_id"),
	}, true))
	require.NoError(t, s.SaveLineItemRejections(ctx, []model.LineItemRejection{
		lineItemRejection(7, "Invalid product_id"),
	}, true))

	q, err := s.LoadQuarantine(ctx)
	require.NoError(t, err)
	require.Len(t, q.Headers, 2)
	assert.Equal(t, "TXN001", q.Headers[0].TransactionID)
	assert.Equal(t, "Missing or NULL customer_id", q.Headers[0].Reason)
	assert.True(t, Now().Equal(q.Headers[0].RejectedAt), "rejected at %v", q.Headers[0].RejectedAt)
	assertDecimal(t, Dec("5.00"), q.Headers[0].TotalAmount)
	require.Len(t, q.LineItems, 1)
	assert.Equal(t, "Invalid product_id", q.LineItems[0].Reason)
	assert.False(t, q.LineItems[0].LineItemAmount.Valid)

	require.NoError(t, s.SaveHeaderRejections(ctx, []model.HeaderRejection{
		headerRejection("TXN003", "Invalid transaction_date"),
	}, true))
	require.NoError(t, s.SaveLineItemRejections(ctx, nil, true))

	q, err = s.LoadQuarantine(ctx)
	require.NoError(t, err)
	require.Len(t, q.Headers, 1)
	assert.Equal(t, "TXN003", q.Headers[0].TransactionID)
	assert.Empty(t, q.LineItems)
}

func testQuarantineAppend(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveHeaderRejections(ctx, []model.HeaderRejection{
		headerRejection("TXN001", "Invalid store_id"),
	}, true))
	require.NoError(t, s.SaveHeaderRejections(ctx, []model.HeaderRejection{
		headerRejection("TXN002", "Invalid customer_id"),
	}, false))
	require.NoError(t, s.SaveLineItemRejections(ctx, []model.LineItemRejection{
		lineItemRejection(1, "Missing product_id"),
	}, false))
	require.NoError(t, s.SaveLineItemRejections(ctx, []model.LineItemRejection{
		lineItemRejection(2, "Invalid transaction_id"),
	}, false))

	q, err := s.LoadQuarantine(ctx)
	require.NoError(t, err)
	assert.Len(t, q.Headers, 2)
	assert.Len(t, q.LineItems, 2)
}

func testQuarantineDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveHeaderRejections(ctx, []model.HeaderRejection{
		headerRejection("TXN001", "Invalid store_id"),
	}, true))

	err := s.SaveHeaderRejections(ctx, []model.HeaderRejection{
		headerRejection("TXN005", "Invalid store_id"),
		headerRejection("TXN001", "Invalid customer_id"),
	}, false)
	require.Error(t, err)

	q, err := s.LoadQuarantine(ctx)
	require.NoError(t, err)
	require.Len(t, q.Headers, 1, "failed insert must not leave partial rows")
	assert.Equal(t, "Invalid store_id", q.Headers[0].Reason)

	err = s.SaveLineItemRejections(ctx, []model.LineItemRejection{
		lineItemRejection(4, "Invalid product_id"),
		lineItemRejection(4, "Invalid line_item_amount"),
	}, true)
	require.Error(t, err)
	q, err = s.LoadQuarantine(ctx)
	require.NoError(t, err)
	assert.Empty(t, q.LineItems)
}

func testStaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	created := Now()
	st := &model.Staging{
		Headers: []model.StagedHeader{
			{SalesHeader: model.SalesHeader{TransactionID: "TXN002", CustomerID: "C002", StoreID: "ST001", TransactionDate: "2024-03-02", TotalAmount: Dec("9.99")}, CreatedAt: created},
			{SalesHeader: model.SalesHeader{TransactionID: "TXN001", CustomerID: "C001", StoreID: "ST001", TransactionDate: "2024-03-01", TotalAmount: Dec("30.50")}, CreatedAt: created},
		},
		LineItems: []model.StagedLineItem{
			{SalesLineItem: model.SalesLineItem{LineItemID: 2, TransactionID: "TXN001", ProductID: "P002", Quantity: 1, LineItemAmount: Dec("10.25")}, CreatedAt: created},
			{SalesLineItem: model.SalesLineItem{LineItemID: 1, TransactionID: "TXN001", ProductID: "P001", PromotionID: "PROMO001", Quantity: 2, LineItemAmount: Dec("20.25")}, CreatedAt: created},
			{SalesLineItem: model.SalesLineItem{LineItemID: 3, TransactionID: "TXN002", ProductID: "P001", Quantity: 1, LineItemAmount: Dec("9.99")}, CreatedAt: created},
		},
	}
	require.NoError(t, s.ReplaceStaging(ctx, st))

	out, err := s.LoadStaging(ctx)
	require.NoError(t, err)
	require.Len(t, out.Headers, 2)
	require.Len(t, out.LineItems, 3)
	assert.Equal(t, "TXN001", out.Headers[0].TransactionID)
	assert.False(t, out.Headers[0].Processed)
	assert.True(t, created.Equal(out.Headers[0].CreatedAt))
	assertDecimal(t, Dec("30.50"), out.Headers[0].TotalAmount)
	assert.Equal(t, int64(1), out.LineItems[0].LineItemID)
	assert.Equal(t, "PROMO001", out.LineItems[0].PromotionID)
	assertDecimal(t, Dec("20.25"), out.LineItems[0].LineItemAmount)
	assert.True(t, created.Equal(out.LineItems[2].CreatedAt))

	// Replacing with a smaller layer removes what is no longer staged.
	require.NoError(t, s.ReplaceStaging(ctx, &model.Staging{
		Headers: []model.StagedHeader{st.Headers[0]},
		LineItems: []model.StagedLineItem{
			st.LineItems[2],
		},
	}))
	out, err = s.LoadStaging(ctx)
	require.NoError(t, err)
	require.Len(t, out.Headers, 1)
	assert.Equal(t, "TXN002", out.Headers[0].TransactionID)
	require.Len(t, out.LineItems, 1)
	assert.Equal(t, int64(3), out.LineItems[0].LineItemID)

	require.NoError(t, s.ReplaceStaging(ctx, &model.Staging{}))
	out, err = s.LoadStaging(ctx)
	require.NoError(t, err)
	assert.Empty(t, out.Headers)
	assert.Empty(t, out.LineItems)
}

func testRuns(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.LastRun(ctx)
	require.ErrorIs(t, err, store.ErrNoRuns)

	first := store.Run{
		ID:        uuid.New(),
		StartedAt: Now(),
		Status:    store.RunStatusRunning,
		Version:   "test",
	}
	require.NoError(t, s.RecordRun(ctx, first))

	second := store.Run{
		ID:        uuid.New(),
		StartedAt: Now().Add(time.Hour),
		Status:    store.RunStatusRunning,
		Version:   "test",
	}
	require.NoError(t, s.RecordRun(ctx, second))

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
	assert.True(t, last.FinishedAt.IsZero())

	second.FinishedAt = second.StartedAt.Add(2 * time.Second)
	second.Status = store.RunStatusSucceeded
	second.RawHeaders = 10
	second.RawLineItems = 25
	second.RejectedHeaders = 3
	second.RejectedLineItems = 4
	second.StagedHeaders = 7
	second.StagedLineItems = 18
	require.NoError(t, s.RecordRun(ctx, second))

	last, err = s.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, store.RunStatusSucceeded, last.Status)
	assert.True(t, second.FinishedAt.Equal(last.FinishedAt))
	assert.Equal(t, 10, last.RawHeaders)
	assert.Equal(t, 25, last.RawLineItems)
	assert.Equal(t, 3, last.RejectedHeaders)
	assert.Equal(t, 4, last.RejectedLineItems)
	assert.Equal(t, 7, last.StagedHeaders)
	assert.Equal(t, 18, last.StagedLineItems)
	assert.Equal(t, "", last.Error)
}

func testDropSchema(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.ReplaceRaw(ctx, sampleRaw()))
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.CreateSchema(ctx))

	raw, err := s.LoadRaw(ctx)
	require.NoError(t, err)
	assert.Empty(t, raw.Headers)
	assert.Empty(t, raw.LineItems)
}

func assertDecimal(t *testing.T, want, got decimal.NullDecimal) {
	t.Helper()
	require.Equal(t, want.Valid, got.Valid, "validity mismatch")
	if want.Valid {
		assert.True(t, want.Decimal.Equal(got.Decimal), "expected %s, got %s", want.Decimal, got.Decimal)
	}
}

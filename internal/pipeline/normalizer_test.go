package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestNormalizeSplitsMultiValuedProduct(t *testing.T) {
	items := []model.SalesLineItem{
		{LineItemID: 10, TransactionID: "T1", ProductID: "P1,P2", Quantity: 3, LineItemAmount: dec("90.0")},
	}

	out, res := Normalize(items)

	require.Len(t, out, 2)
	assert.Equal(t, NormalizeResult{Split: 1, Created: 2}, res)

	assert.Equal(t, int64(11), out[0].LineItemID)
	assert.Equal(t, "P1", out[0].ProductID)
	assert.Equal(t, int64(2), out[0].Quantity)
	assert.True(t, out[0].LineItemAmount.Decimal.Equal(decimal.RequireFromString("45")))

	assert.Equal(t, int64(12), out[1].LineItemID)
	assert.Equal(t, "P2", out[1].ProductID)
	assert.Equal(t, int64(1), out[1].Quantity)
	assert.True(t, out[1].LineItemAmount.Decimal.Equal(decimal.RequireFromString("45")))

	for _, li := range out {
		assert.Equal(t, "T1", li.TransactionID)
	}
}

func TestNormalizeNoOp(t *testing.T) {
	items := []model.SalesLineItem{
		{LineItemID: 2, TransactionID: "T1", ProductID: "P2", Quantity: 1, LineItemAmount: dec("5")},
		{LineItemID: 1, TransactionID: "T1", ProductID: "P1", Quantity: 1, LineItemAmount: dec("5")},
	}

	out, res := Normalize(items)

	assert.Equal(t, NormalizeResult{}, res)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].LineItemID)
	assert.Equal(t, int64(2), out[1].LineItemID)
	assert.Equal(t, int64(2), items[0].LineItemID, "input must not be reordered")
}

func TestNormalizeConservesTotals(t *testing.T) {
	tests := []struct {
		name     string
		products string
		quantity int64
		amount   string
		parts    int
	}{
		{"two even", "P1,P2", 4, "10.00", 2},
		{"three uneven amount", "P1,P2,P3", 1, "10.00", 3},
		{"three uneven quantity", "P1, P2, P3", 7, "0.10", 3},
		{"quoted ids", `"P1","P2"`, 2, "3.33", 2},
		{"empty segments", "P1,,P2,", 5, "9.99", 2},
		{"more parts than quantity", "P1,P2,P3,P4", 2, "1.00", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := model.SalesLineItem{
				LineItemID:     1,
				TransactionID:  "T1",
				ProductID:      tt.products,
				PromotionID:    "PROMO1",
				Quantity:       tt.quantity,
				LineItemAmount: dec(tt.amount),
			}
			out, _ := Normalize([]model.SalesLineItem{in})
			require.Len(t, out, tt.parts)

			var qty int64
			sum := decimal.Zero
			for _, li := range out {
				qty += li.Quantity
				sum = sum.Add(li.LineItemAmount.Decimal)
				assert.NotContains(t, li.ProductID, ",")
				assert.NotContains(t, li.ProductID, `"`)
				assert.Equal(t, "PROMO1", li.PromotionID)
			}
			assert.Equal(t, tt.quantity, qty)
			assert.True(t, sum.Equal(in.LineItemAmount.Decimal), "expected %s, got %s", in.LineItemAmount.Decimal, sum)
		})
	}
}

func TestNormalizeIDsAreUniqueAndDeterministic(t *testing.T) {
	items := []model.SalesLineItem{
		{LineItemID: 5, TransactionID: "T1", ProductID: "P1,P2", Quantity: 2, LineItemAmount: dec("2")},
		{LineItemID: 3, TransactionID: "T1", ProductID: "P3,P4,P5", Quantity: 3, LineItemAmount: dec("3")},
		{LineItemID: 4, TransactionID: "T2", ProductID: "P1", Quantity: 1, LineItemAmount: dec("1")},
	}

	out, res := Normalize(items)
	assert.Equal(t, NormalizeResult{Split: 2, Created: 5}, res)

	var ids []int64
	seen := make(map[int64]bool)
	for _, li := range out {
		assert.False(t, seen[li.LineItemID], "duplicate id %d", li.LineItemID)
		seen[li.LineItemID] = true
		ids = append(ids, li.LineItemID)
	}
	// 3 is split first (ids 6..8), then 5 (ids 9..10).
	assert.Equal(t, []int64{4, 6, 7, 8, 9, 10}, ids)
	assert.Equal(t, "P3", out[1].ProductID)
	assert.Equal(t, "P1", out[4].ProductID)

	again, _ := Normalize(items)
	assert.Equal(t, out, again)
}

func TestNormalizeNullAmount(t *testing.T) {
	out, _ := Normalize([]model.SalesLineItem{
		{LineItemID: 1, TransactionID: "T1", ProductID: "P1,P2", Quantity: 2},
	})
	require.Len(t, out, 2)
	for _, li := range out {
		assert.False(t, li.LineItemAmount.Valid)
	}
}

func TestNormalizeOnlySeparators(t *testing.T) {
	out, res := Normalize([]model.SalesLineItem{
		{LineItemID: 1, TransactionID: "T1", ProductID: " , ", Quantity: 2, LineItemAmount: dec("4")},
	})
	require.Len(t, out, 1)
	assert.Equal(t, NormalizeResult{Split: 1, Created: 1}, res)
	assert.Equal(t, "", out[0].ProductID)
	assert.Equal(t, int64(2), out[0].LineItemID)
	assert.Equal(t, int64(2), out[0].Quantity)
}

func TestSplitQuantity(t *testing.T) {
	tests := []struct {
		q, k int64
		want []int64
	}{
		{3, 2, []int64{2, 1}},
		{7, 3, []int64{3, 2, 2}},
		{2, 4, []int64{1, 1, 0, 0}},
		{0, 2, []int64{0, 0}},
		{-3, 2, []int64{-2, -1}},
	}

	for _, tt := range tests {
		got := splitQuantity(tt.q, tt.k)
		assert.Equal(t, tt.want, got, "splitQuantity(%d, %d)", tt.q, tt.k)
	}
}

func TestSplitAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		k      int64
		want   []string
	}{
		{"even", "90.00", 2, []string{"45.00", "45.00"}},
		{"remainder on last", "10.00", 3, []string{"3.33", "3.33", "3.34"}},
		{"remainder over a cent", "0.20", 3, []string{"0.06", "0.06", "0.08"}},
		{"small amount stays positive", "0.11", 7, []string{"0.01", "0.01", "0.01", "0.01", "0.01", "0.01", "0.05"}},
		{"negative", "-0.11", 7, []string{"-0.01", "-0.01", "-0.01", "-0.01", "-0.01", "-0.01", "-0.05"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitAmount(dec(tt.amount), tt.k)
			require.Len(t, got, len(tt.want))

			sum := decimal.Zero
			for i, share := range got {
				assert.Equal(t, tt.want[i], share.Decimal.StringFixed(2), "share %d", i)
				sum = sum.Add(share.Decimal)
			}
			assert.True(t, sum.Equal(decimal.RequireFromString(tt.amount)), "shares sum to %s", sum)
		})
	}
}

package pipeline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

var testNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func testReference() *model.Reference {
	m := &model.MasterData{
		Stores:    []model.Store{{StoreID: "S1"}, {StoreID: "S2"}},
		Products:  []model.Product{{ProductID: "P1"}, {ProductID: "P2"}},
		Customers: []model.Customer{{CustomerID: "C1"}, {CustomerID: "C2"}},
	}
	return m.Reference()
}

func header(id string, mutate ...func(*model.SalesHeader)) model.SalesHeader {
	h := model.SalesHeader{
		TransactionID:   id,
		CustomerID:      "C1",
		StoreID:         "S1",
		TransactionDate: "2024-01-01",
		TotalAmount:     dec("50.00"),
	}
	for _, m := range mutate {
		m(&h)
	}
	return h
}

func item(id int64, txn string, mutate ...func(*model.SalesLineItem)) model.SalesLineItem {
	li := model.SalesLineItem{
		LineItemID:     id,
		TransactionID:  txn,
		ProductID:      "P1",
		Quantity:       1,
		LineItemAmount: dec("50.00"),
	}
	for _, m := range mutate {
		m(&li)
	}
	return li
}

func TestValidateHeaderRules(t *testing.T) {
	tests := []struct {
		name   string
		header model.SalesHeader
		items  []model.SalesLineItem
		reason string
	}{
		{"valid", header("T1"), []model.SalesLineItem{item(1, "T1")}, ""},
		{"empty customer", header("T1", func(h *model.SalesHeader) { h.CustomerID = "" }), []model.SalesLineItem{item(1, "T1")}, ReasonMissingCustomer},
		{"sentinel customer", header("T1", func(h *model.SalesHeader) { h.CustomerID = "INVALID" }), []model.SalesLineItem{item(1, "T1")}, ReasonMissingCustomer},
		{"unknown store", header("T1", func(h *model.SalesHeader) { h.StoreID = "S9" }), []model.SalesLineItem{item(1, "T1")}, ReasonInvalidStore},
		{"unknown customer", header("T1", func(h *model.SalesHeader) { h.CustomerID = "C9" }), []model.SalesLineItem{item(1, "T1")}, ReasonInvalidCustomer},
		{"empty date", header("T1", func(h *model.SalesHeader) { h.TransactionDate = "" }), []model.SalesLineItem{item(1, "T1")}, ReasonInvalidDate},
		{"zero total", header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("0") }), nil, ReasonInvalidTotal},
		{"negative total", header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("-5") }), nil, ReasonInvalidTotal},
		{"null total", header("T1", func(h *model.SalesHeader) { h.TotalAmount = decimal.NullDecimal{} }), nil, ReasonInvalidTotal},
		{"mismatch", header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("100.00") }), []model.SalesLineItem{item(1, "T1", func(li *model.SalesLineItem) { li.LineItemAmount = dec("90.00") })}, ReasonTotalMismatch},
		{"no items", header("T1"), nil, ReasonTotalMismatch},
		{"within tolerance", header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("50.01") }), []model.SalesLineItem{item(1, "T1")}, ""},
		{"just outside tolerance", header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("50.02") }), []model.SalesLineItem{item(1, "T1")}, ReasonTotalMismatch},
		{"null item amount counts as zero", header("T1"), []model.SalesLineItem{
			item(1, "T1", func(li *model.SalesLineItem) { li.LineItemAmount = dec("50.00") }),
			item(2, "T1", func(li *model.SalesLineItem) { li.LineItemAmount = decimal.NullDecimal{} }),
		}, ""},
		{"precedence customer over store", header("T1", func(h *model.SalesHeader) {
			h.CustomerID = ""
			h.StoreID = "S9"
			h.TotalAmount = dec("-1")
		}), nil, ReasonMissingCustomer},
		{"precedence store over date", header("T1", func(h *model.SalesHeader) {
			h.StoreID = "S9"
			h.TransactionDate = ""
		}), nil, ReasonInvalidStore},
		{"precedence total over mismatch", header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("-1") }), []model.SalesLineItem{item(1, "T1")}, ReasonInvalidTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(testReference(), decimal.Zero)
			rej := v.ValidateHeaders([]model.SalesHeader{tt.header}, tt.items, map[string]struct{}{}, testNow)
			if tt.reason == "" {
				assert.Empty(t, rej)
				return
			}
			require.Len(t, rej, 1)
			assert.Equal(t, tt.reason, rej[0].Reason)
			assert.Equal(t, tt.header, rej[0].SalesHeader)
			assert.Equal(t, testNow, rej[0].RejectedAt)
		})
	}
}

func TestValidateLineItemRules(t *testing.T) {
	headers := []model.SalesHeader{header("T1")}

	tests := []struct {
		name   string
		item   model.SalesLineItem
		reason string
	}{
		{"valid", item(1, "T1"), ""},
		{"missing product", item(1, "T1", func(li *model.SalesLineItem) { li.ProductID = "" }), ReasonMissingProduct},
		{"unknown product", item(1, "T1", func(li *model.SalesLineItem) { li.ProductID = "P9" }), ReasonInvalidProduct},
		{"zero amount", item(1, "T1", func(li *model.SalesLineItem) { li.LineItemAmount = dec("0") }), ReasonInvalidAmount},
		{"null amount", item(1, "T1", func(li *model.SalesLineItem) { li.LineItemAmount = decimal.NullDecimal{} }), ReasonInvalidAmount},
		{"orphaned", item(1, "T9"), ReasonInvalidTransaction},
		{"precedence product over orphan", item(1, "T9", func(li *model.SalesLineItem) { li.ProductID = "P9" }), ReasonInvalidProduct},
		{"precedence amount over orphan", item(1, "T9", func(li *model.SalesLineItem) { li.LineItemAmount = dec("-2") }), ReasonInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(testReference(), decimal.Zero)
			rej := v.ValidateLineItems([]model.SalesLineItem{tt.item}, headers, map[int64]struct{}{}, testNow)
			if tt.reason == "" {
				assert.Empty(t, rej)
				return
			}
			require.Len(t, rej, 1)
			assert.Equal(t, tt.reason, rej[0].Reason)
			assert.Equal(t, tt.item, rej[0].SalesLineItem)
		})
	}
}

func TestValidateSkipsAlreadyRejected(t *testing.T) {
	v := NewValidator(testReference(), decimal.Zero)
	headers := []model.SalesHeader{
		header("T1", func(h *model.SalesHeader) { h.StoreID = "S9" }),
		header("T2", func(h *model.SalesHeader) { h.StoreID = "S9" }),
	}
	items := []model.SalesLineItem{item(1, "T1"), item(2, "T2")}
	rejected := map[string]struct{}{"T1": {}}

	rej := v.ValidateHeaders(headers, items, rejected, testNow)
	require.Len(t, rej, 1)
	assert.Equal(t, "T2", rej[0].TransactionID)
	assert.Contains(t, rejected, "T2", "membership set must be updated")

	again := v.ValidateHeaders(headers, items, rejected, testNow)
	assert.Empty(t, again)
}

func TestValidateDoesNotMutateInput(t *testing.T) {
	v := NewValidator(testReference(), decimal.Zero)
	headers := []model.SalesHeader{header("T2", func(h *model.SalesHeader) { h.CustomerID = "" }), header("T1")}
	items := []model.SalesLineItem{item(2, "T1"), item(1, "T9")}

	hCopy := append([]model.SalesHeader(nil), headers...)
	iCopy := append([]model.SalesLineItem(nil), items...)

	v.ValidateHeaders(headers, items, map[string]struct{}{}, testNow)
	v.ValidateLineItems(items, headers, map[int64]struct{}{}, testNow)

	assert.Equal(t, hCopy, headers)
	assert.Equal(t, iCopy, items)
}

func TestValidateCustomTolerance(t *testing.T) {
	h := header("T1", func(h *model.SalesHeader) { h.TotalAmount = dec("50.50") })
	items := []model.SalesLineItem{item(1, "T1")}

	strict := NewValidator(testReference(), decimal.Zero)
	assert.Len(t, strict.ValidateHeaders([]model.SalesHeader{h}, items, map[string]struct{}{}, testNow), 1)

	loose := NewValidator(testReference(), decimal.RequireFromString("1"))
	assert.Empty(t, loose.ValidateHeaders([]model.SalesHeader{h}, items, map[string]struct{}{}, testNow))
}

func TestValidateCustomRuleOrder(t *testing.T) {
	rules := HeaderRules()
	// Move the store check ahead of the customer checks.
	reordered := []HeaderRule{rules[1], rules[0], rules[2], rules[3], rules[4], rules[5]}

	h := header("T1", func(h *model.SalesHeader) {
		h.CustomerID = ""
		h.StoreID = "S9"
	})
	v := NewValidator(testReference(), decimal.Zero).WithHeaderRules(reordered)
	rej := v.ValidateHeaders([]model.SalesHeader{h}, nil, map[string]struct{}{}, testNow)
	require.Len(t, rej, 1)
	assert.Equal(t, ReasonInvalidStore, rej[0].Reason)
}

func TestRuleLists(t *testing.T) {
	var headerReasons []string
	for _, r := range HeaderRules() {
		headerReasons = append(headerReasons, r.Reason)
	}
	assert.Equal(t, []string{
		ReasonMissingCustomer,
		ReasonInvalidStore,
		ReasonInvalidCustomer,
		ReasonInvalidDate,
		ReasonInvalidTotal,
		ReasonTotalMismatch,
	}, headerReasons)

	var itemReasons []string
	for _, r := range LineItemRules() {
		itemReasons = append(itemReasons, r.Reason)
	}
	assert.Equal(t, []string{
		ReasonMissingProduct,
		ReasonInvalidProduct,
		ReasonInvalidAmount,
		ReasonInvalidTransaction,
	}, itemReasons)
}

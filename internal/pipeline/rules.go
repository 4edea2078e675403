package pipeline

import (
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// Rejection reasons. Stored verbatim in the quarantine tables.
const (
	ReasonMissingCustomer    = "Missing or NULL customer_id"
	ReasonInvalidStore       = "Invalid store_id"
	ReasonInvalidCustomer    = "Invalid customer_id"
	ReasonInvalidDate        = "Invalid transaction_date"
	ReasonInvalidTotal       = "Invalid total_amount"
	ReasonTotalMismatch      = "Total amount mismatch"
	ReasonMissingProduct     = "Missing product_id"
	ReasonInvalidProduct     = "Invalid product_id"
	ReasonInvalidAmount      = "Invalid line_item_amount"
	ReasonInvalidTransaction = "Invalid transaction_id"
)

// DefaultTolerance is the largest allowed difference between a header total
// and the sum of its line items.
var DefaultTolerance = decimal.New(1, -2)

// HeaderEnv is what header rules may look at besides the header itself.
type HeaderEnv struct {
	Ref *model.Reference

	// LineTotals is the sum of raw line item amounts per transaction id.
	LineTotals map[string]decimal.Decimal

	Tolerance decimal.Decimal
}

// LineItemEnv is what line item rules may look at besides the item itself.
type LineItemEnv struct {
	Ref *model.Reference

	// Headers is the set of raw transaction ids.
	Headers map[string]struct{}
}

// HeaderRule rejects a header with Reason when Match returns true.
type HeaderRule struct {
	Name   string
	Reason string
	Match  func(h model.SalesHeader, env *HeaderEnv) bool
}

// LineItemRule rejects a line item with Reason when Match returns true.
type LineItemRule struct {
	Name   string
	Reason string
	Match  func(li model.SalesLineItem, env *LineItemEnv) bool
}

// HeaderRules returns the header rules in evaluation order. When several
// rules match a header, the earliest one is the recorded reason.
func HeaderRules() []HeaderRule {
	return []HeaderRule{
		{
			Name:   "missing_customer",
			Reason: ReasonMissingCustomer,
			Match: func(h model.SalesHeader, _ *HeaderEnv) bool {
				return h.CustomerID == "" || h.CustomerID == model.InvalidCustomerSentinel
			},
		},
		{
			Name:   "unknown_store",
			Reason: ReasonInvalidStore,
			Match: func(h model.SalesHeader, env *HeaderEnv) bool {
				return !env.Ref.HasStore(h.StoreID)
			},
		},
		{
			Name:   "unknown_customer",
			Reason: ReasonInvalidCustomer,
			Match: func(h model.SalesHeader, env *HeaderEnv) bool {
				return !env.Ref.HasCustomer(h.CustomerID)
			},
		},
		{
			Name:   "missing_date",
			Reason: ReasonInvalidDate,
			Match: func(h model.SalesHeader, _ *HeaderEnv) bool {
				return h.TransactionDate == ""
			},
		},
		{
			Name:   "non_positive_total",
			Reason: ReasonInvalidTotal,
			Match: func(h model.SalesHeader, _ *HeaderEnv) bool {
				return !h.TotalAmount.Valid || !h.TotalAmount.Decimal.IsPositive()
			},
		},
		{
			Name:   "total_mismatch",
			Reason: ReasonTotalMismatch,
			Match: func(h model.SalesHeader, env *HeaderEnv) bool {
				if !h.TotalAmount.Valid {
					return false
				}
				sum := env.LineTotals[h.TransactionID]
				return h.TotalAmount.Decimal.Sub(sum).Abs().GreaterThan(env.Tolerance)
			},
		},
	}
}

// LineItemRules returns the line item rules in evaluation order.
func LineItemRules() []LineItemRule {
	return []LineItemRule{
		{
			Name:   "missing_product",
			Reason: ReasonMissingProduct,
			Match: func(li model.SalesLineItem, _ *LineItemEnv) bool {
				return li.ProductID == ""
			},
		},
		{
			Name:   "unknown_product",
			Reason: ReasonInvalidProduct,
			Match: func(li model.SalesLineItem, env *LineItemEnv) bool {
				return !env.Ref.HasProduct(li.ProductID)
			},
		},
		{
			Name:   "non_positive_amount",
			Reason: ReasonInvalidAmount,
			Match: func(li model.SalesLineItem, _ *LineItemEnv) bool {
				return !li.LineItemAmount.Valid || !li.LineItemAmount.Decimal.IsPositive()
			},
		},
		{
			Name:   "orphaned",
			Reason: ReasonInvalidTransaction,
			Match: func(li model.SalesLineItem, env *LineItemEnv) bool {
				_, ok := env.Headers[li.TransactionID]
				return !ok
			},
		},
	}
}

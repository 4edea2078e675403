package pipeline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// Validator classifies raw records against the ordered rule lists.
// It never modifies the records it is given.
type Validator struct {
	ref       *model.Reference
	tolerance decimal.Decimal

	headerRules   []HeaderRule
	lineItemRules []LineItemRule
}

// NewValidator creates a validator over the given reference data using the
// default rule lists. A non-positive tolerance selects DefaultTolerance.
func NewValidator(ref *model.Reference, tolerance decimal.Decimal) *Validator {
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &Validator{
		ref:           ref,
		tolerance:     tolerance,
		headerRules:   HeaderRules(),
		lineItemRules: LineItemRules(),
	}
}

// WithHeaderRules replaces the header rule list, which also replaces the
// precedence of header rejection reasons.
func (v *Validator) WithHeaderRules(rules []HeaderRule) *Validator {
	v.headerRules = rules
	return v
}

// WithLineItemRules replaces the line item rule list.
func (v *Validator) WithLineItemRules(rules []LineItemRule) *Validator {
	v.lineItemRules = rules
	return v
}

// ValidateHeaders applies the header rules to headers and returns the newly
// rejected ones. rejected holds transaction ids already in quarantine; it is
// updated in place, and no id in it is ever rejected again. Rules run one at
// a time over all headers, so the first rule to match a header wins.
func (v *Validator) ValidateHeaders(
	headers []model.SalesHeader,
	items []model.SalesLineItem,
	rejected map[string]struct{},
	now time.Time,
) []model.HeaderRejection {
	env := &HeaderEnv{
		Ref:        v.ref,
		LineTotals: lineTotals(items),
		Tolerance:  v.tolerance,
	}

	sorted := make([]model.SalesHeader, len(headers))
	copy(sorted, headers)
	model.SortHeaders(sorted)

	var out []model.HeaderRejection
	for _, rule := range v.headerRules {
		for _, h := range sorted {
			if _, done := rejected[h.TransactionID]; done {
				continue
			}
			if !rule.Match(h, env) {
				continue
			}
			rejected[h.TransactionID] = struct{}{}
			out = append(out, model.HeaderRejection{
				SalesHeader: h,
				Reason:      rule.Reason,
				RejectedAt:  now,
			})
		}
	}
	return out
}

// ValidateLineItems applies the line item rules to items and returns the
// newly rejected ones. rejected holds line item ids already in quarantine
// and is updated in place.
func (v *Validator) ValidateLineItems(
	items []model.SalesLineItem,
	headers []model.SalesHeader,
	rejected map[int64]struct{},
	now time.Time,
) []model.LineItemRejection {
	env := &LineItemEnv{
		Ref:     v.ref,
		Headers: make(map[string]struct{}, len(headers)),
	}
	for _, h := range headers {
		env.Headers[h.TransactionID] = struct{}{}
	}

	sorted := make([]model.SalesLineItem, len(items))
	copy(sorted, items)
	model.SortLineItems(sorted)

	var out []model.LineItemRejection
	for _, rule := range v.lineItemRules {
		for _, li := range sorted {
			if _, done := rejected[li.LineItemID]; done {
				continue
			}
			if !rule.Match(li, env) {
				continue
			}
			rejected[li.LineItemID] = struct{}{}
			out = append(out, model.LineItemRejection{
				SalesLineItem: li,
				Reason:        rule.Reason,
				RejectedAt:    now,
			})
		}
	}
	return out
}

// lineTotals sums line item amounts per transaction. NULL amounts add
// nothing, and a transaction without items has no entry (a zero sum).
func lineTotals(items []model.SalesLineItem) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, li := range items {
		if !li.LineItemAmount.Valid {
			continue
		}
		totals[li.TransactionID] = totals[li.TransactionID].Add(li.LineItemAmount.Decimal)
	}
	return totals
}

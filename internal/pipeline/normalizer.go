//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// productSeparator delimits multiple product ids packed into one cell.
const productSeparator = ","

// amountPlaces is the precision split amounts are rounded to.
const amountPlaces = 2

// NormalizeResult describes what Normalize changed.
type NormalizeResult struct {
	// Split is the number of multi-valued records that were replaced.
	Split int

	// Created is the number of atomic records that replaced them.
	Created int
}

// Normalize rewrites every line item whose product id holds a delimited
// list into one line item per product. The input slice is not modified;
// the returned slice is ordered by line item id.
//
// New ids are taken from the key space above the current maximum id, in
// ascending order of the original records, so they are deterministic and
// cannot collide with any existing or other generated id.
func Normalize(items []model.SalesLineItem) ([]model.SalesLineItem, NormalizeResult) {
	var res NormalizeResult

	sorted := make([]model.SalesLineItem, len(items))
	copy(sorted, items)
	model.SortLineItems(sorted)

	var nextID int64
	for _, li := range sorted {
		if li.LineItemID >= nextID {
			nextID = li.LineItemID + 1
		}
	}

	out := make([]model.SalesLineItem, 0, len(sorted))
	for _, li := range sorted {
		if !strings.Contains(li.ProductID, productSeparator) {
			out = append(out, li)
			continue
		}

		parts := splitLineItem(li, nextID)
		nextID += int64(len(parts))
		out = append(out, parts...)

		res.Split++
		res.Created += len(parts)
	}

	model.SortLineItems(out)
	return out, res
}

// splitLineItem divides li across its product ids, numbering the parts
// from firstID.
func splitLineItem(li model.SalesLineItem, firstID int64) []model.SalesLineItem {
	products := splitProductIDs(li.ProductID)
	if len(products) == 0 {
		// Nothing but separators: keep a single record with no product.
		li.LineItemID = firstID
		li.ProductID = ""
		return []model.SalesLineItem{li}
	}

	k := int64(len(products))
	quantities := splitQuantity(li.Quantity, k)
	amounts := splitAmount(li.LineItemAmount, k)

	parts := make([]model.SalesLineItem, k)
	for i, pid := range products {
		parts[i] = model.SalesLineItem{
			LineItemID:     firstID + int64(i),
			TransactionID:  li.TransactionID,
			ProductID:      pid,
			PromotionID:    li.PromotionID,
			Quantity:       quantities[i],
			LineItemAmount: amounts[i],
		}
	}
	return parts
}

func splitProductIDs(s string) []string {
	var ids []string
	for _, p := range strings.Split(s, productSeparator) {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// splitQuantity gives each of k parts q/k units and hands the remainder
// out one unit at a time to the first parts. The parts always sum to q.
func splitQuantity(q, k int64) []int64 {
	base, rem := q/k, q%k
	step := int64(1)
	if rem < 0 {
		step, rem = -1, -rem
	}

	out := make([]int64, k)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i] += step
		}
	}
	return out
}

// splitAmount divides a into k shares truncated to cents; the last share
// takes the remainder so the shares sum to a exactly and it is never
// smaller in magnitude than the others.
func splitAmount(a decimal.NullDecimal, k int64) []decimal.NullDecimal {
	out := make([]decimal.NullDecimal, k)
	if !a.Valid {
		return out
	}

	share := a.Decimal.Div(decimal.NewFromInt(k)).RoundDown(amountPlaces)
	allocated := decimal.Zero
	for i := int64(0); i < k-1; i++ {
		out[i] = decimal.NewNullDecimal(share)
		allocated = allocated.Add(share)
	}
	out[k-1] = decimal.NewNullDecimal(a.Decimal.Sub(allocated))
	return out
}

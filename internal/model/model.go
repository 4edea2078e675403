//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package model defines the records that flow through the ingestion
// pipeline: raw sales headers and line items, their quarantined and staged
// forms, and the master reference data they are validated against.
package model

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InvalidCustomerSentinel is the literal customer id some point-of-sale
// exports write in place of a missing customer.
const InvalidCustomerSentinel = "INVALID"

// SalesHeader is one customer transaction as received from the raw feed.
type SalesHeader struct {
	TransactionID   string
	CustomerID      string
	StoreID         string
	TransactionDate string
	TotalAmount     decimal.NullDecimal
}

// SalesLineItem is one product line of a transaction. After normalization
// ProductID holds exactly one identifier.
type SalesLineItem struct {
	LineItemID     int64
	TransactionID  string
	ProductID      string
	PromotionID    string // empty means no promotion
	Quantity       int64
	LineItemAmount decimal.NullDecimal
}

// HeaderRejection is a quarantined header.
type HeaderRejection struct {
	SalesHeader
	Reason     string
	RejectedAt time.Time
}

// LineItemRejection is a quarantined line item.
type LineItemRejection struct {
	SalesLineItem
	Reason     string
	RejectedAt time.Time
}

// StagedHeader is an accepted header. Processed is consumed by the loyalty
// computation downstream and always starts out false.
type StagedHeader struct {
	SalesHeader
	Processed bool
	CreatedAt time.Time
}

// StagedLineItem is an accepted line item whose header was also accepted.
type StagedLineItem struct {
	SalesLineItem
	CreatedAt time.Time
}

// Raw holds the raw sales layer of a run.
type Raw struct {
	Headers   []SalesHeader
	LineItems []SalesLineItem
}

// Quarantine holds rejected records.
type Quarantine struct {
	Headers   []HeaderRejection
	LineItems []LineItemRejection
}

// Staging holds accepted records.
type Staging struct {
	Headers   []StagedHeader
	LineItems []StagedLineItem
}

// HeaderKeys returns the set of quarantined transaction ids.
func (q *Quarantine) HeaderKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(q.Headers))
	for _, h := range q.Headers {
		keys[h.TransactionID] = struct{}{}
	}
	return keys
}

// LineItemKeys returns the set of quarantined line item ids.
func (q *Quarantine) LineItemKeys() map[int64]struct{} {
	keys := make(map[int64]struct{}, len(q.LineItems))
	for _, li := range q.LineItems {
		keys[li.LineItemID] = struct{}{}
	}
	return keys
}

// SortHeaders orders headers by transaction id.
func SortHeaders(headers []SalesHeader) {
	sort.Slice(headers, func(i, j int) bool {
		return headers[i].TransactionID < headers[j].TransactionID
	})
}

// SortLineItems orders line items by line item id.
func SortLineItems(items []SalesLineItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].LineItemID < items[j].LineItemID
	})
}

//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package csvload reads the master data and raw sales CSV files.
//
// Missing or unreadable master data files are logged and loaded as empty
// tables; every validation rule that joins against them then rejects. The
// two sales files are required, and any structural problem in them fails
// the load.
package csvload

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// Input file names.
const (
	StoresFile        = "stores.csv"
	ProductsFile      = "products.csv"
	CustomersFile     = "customer_details.csv"
	PromotionsFile    = "promotion_details.csv"
	LoyaltyRulesFile  = "loyalty_rules.csv"
	SalesHeaderFile   = "store_sales_header.csv"
	SalesLineItemFile = "store_sales_line_items.csv"
)

// Loader reads input files from a directory.
type Loader struct {
	Dir string
}

// NewLoader creates a loader for dir.
func NewLoader(dir string) *Loader {
	return &Loader{Dir: dir}
}

func (l *Loader) path(name string) string {
	return filepath.Join(l.Dir, name)
}

// LoadMaster reads the five master data files. It only fails when ctx is
// done; file problems become warnings and empty tables.
func (l *Loader) LoadMaster(ctx context.Context) (*model.MasterData, error) {
	m := &model.MasterData{}

	steps := []struct {
		file string
		load func(rows []row) int
		cols []string
	}{
		{StoresFile, func(rows []row) int {
			m.Stores = parseStores(rows)
			return len(m.Stores)
		}, []string{"store_id"}},
		{ProductsFile, func(rows []row) int {
			m.Products = parseProducts(rows)
			return len(m.Products)
		}, []string{"product_id"}},
		{CustomersFile, func(rows []row) int {
			m.Customers = parseCustomers(rows)
			return len(m.Customers)
		}, []string{"customer_id"}},
		{PromotionsFile, func(rows []row) int {
			m.Promotions = parsePromotions(rows)
			return len(m.Promotions)
		}, []string{"promotion_id"}},
		{LoyaltyRulesFile, func(rows []row) int {
			m.LoyaltyRules = parseLoyaltyRules(rows)
			return len(m.LoyaltyRules)
		}, []string{"rule_id"}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := readFile(l.path(step.file), step.cols)
		if err != nil {
			// Leave the table empty; the rules joining against it will reject.
			ev := logging.Warn().Str("file", step.file)
			if errors.Is(err, ErrMissingFile) {
				ev.Msg("Master data file not found")
			} else {
				ev.Err(err).Msg("Master data file unreadable")
			}
			step.load(nil)
			continue
		}

		n := step.load(rows)
		logging.Info().
			Str("file", step.file).
			Int("records", n).
			Msg("Loaded master data")
	}

	return m, nil
}

// LoadRaw reads the sales header and line item files. Either file missing
// or malformed fails the load.
func (l *Loader) LoadRaw(ctx context.Context) (*model.Raw, error) {
	headerRows, err := readFile(l.path(SalesHeaderFile), []string{
		"transaction_id", "customer_id", "store_id", "transaction_date", "total_amount",
	})
	if err != nil {
		return nil, err
	}
	headers, err := parseHeaders(headerRows)
	if err != nil {
		return nil, err
	}
	logging.Info().
		Str("file", SalesHeaderFile).
		Int("records", len(headers)).
		Msg("Loaded raw sales headers")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	itemRows, err := readFile(l.path(SalesLineItemFile), []string{
		"line_item_id", "transaction_id", "product_id", "quantity", "line_item_amount",
	})
	if err != nil {
		return nil, err
	}
	items, err := parseLineItems(itemRows)
	if err != nil {
		return nil, err
	}
	logging.Info().
		Str("file", SalesLineItemFile).
		Int("records", len(items)).
		Msg("Loaded raw sales line items")

	return &model.Raw{Headers: headers, LineItems: items}, nil
}

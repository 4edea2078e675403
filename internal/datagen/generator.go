//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package datagen generates sample master data and raw sales feeds in the
// CSV layout the loader reads, with a controllable share of defective
// transactions so every validation rule has something to catch.
package datagen

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// Defect is a kind of problem injected into a generated transaction.
type Defect string

// Header defects.
const (
	DefectMissingCustomer  Defect = "missing_customer"
	DefectUnknownStore     Defect = "unknown_store"
	DefectUnknownCustomer  Defect = "unknown_customer"
	DefectMissingDate      Defect = "missing_date"
	DefectNonPositiveTotal Defect = "non_positive_total"
	DefectTotalMismatch    Defect = "total_mismatch"
)

// Line item defects.
const (
	DefectMissingProduct    Defect = "missing_product"
	DefectUnknownProduct    Defect = "unknown_product"
	DefectNonPositiveAmount Defect = "non_positive_amount"
	DefectOrphanedItem      Defect = "orphaned_item"
)

// DefectMultiProduct packs two product ids into one line item. The
// normalizer splits it and the result is valid.
const DefectMultiProduct Defect = "multi_product"

// Defects lists every defect kind in the order they are handed out.
var Defects = []Defect{
	DefectMissingCustomer,
	DefectUnknownStore,
	DefectUnknownCustomer,
	DefectMissingDate,
	DefectNonPositiveTotal,
	DefectTotalMismatch,
	DefectMissingProduct,
	DefectUnknownProduct,
	DefectNonPositiveAmount,
	DefectOrphanedItem,
	DefectMultiProduct,
}

// IsHeaderDefect reports whether d makes the header itself invalid.
func (d Defect) IsHeaderDefect() bool {
	switch d {
	case DefectMissingCustomer, DefectUnknownStore, DefectUnknownCustomer,
		DefectMissingDate, DefectNonPositiveTotal, DefectTotalMismatch:
		return true
	}
	return false
}

// IsLineItemDefect reports whether d makes exactly one line item invalid.
func (d Defect) IsLineItemDefect() bool {
	switch d {
	case DefectMissingProduct, DefectUnknownProduct, DefectNonPositiveAmount,
		DefectOrphanedItem:
		return true
	}
	return false
}

// Options controls the size and shape of a generated dataset.
type Options struct {
	// Headers is the number of sales transactions.
	Headers int

	// Seed makes the output reproducible. Zero uses a random seed.
	Seed int64

	// DefectRate is the fraction of transactions given a defect.
	DefectRate float64

	Stores     int
	Products   int
	Customers  int
	Promotions int
}

// DefaultOptions returns the options used by the generate command.
func DefaultOptions() Options {
	return Options{
		Headers:    100,
		DefectRate: 0.1,
		Stores:     5,
		Products:   20,
		Customers:  50,
		Promotions: 5,
	}
}

// Stats counts what was generated.
type Stats struct {
	Headers   int
	LineItems int
	Defects   map[Defect]int
}

// HeaderDefects is the number of transactions with a header defect.
func (s Stats) HeaderDefects() int {
	n := 0
	for d, c := range s.Defects {
		if d.IsHeaderDefect() {
			n += c
		}
	}
	return n
}

// LineItemDefects is the number of line items with a defect.
func (s Stats) LineItemDefects() int {
	n := 0
	for d, c := range s.Defects {
		if d.IsLineItemDefect() {
			n += c
		}
	}
	return n
}

// Dataset is a generated set of input files.
type Dataset struct {
	Master *model.MasterData
	Raw    *model.Raw
	Stats  Stats
}

// Unknown keys use prefixes that generated master keys never have.
const (
	unknownStore    = "STX01"
	unknownCustomer = "CX001"
	unknownProduct  = "PX001"
)

var (
	periodStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Generator builds datasets.
type Generator struct {
	f    *Faker
	opts Options

	nextDefect int
	nextLineID int64
}

// NewGenerator creates a generator. Zero-valued master sizes take their
// defaults.
func NewGenerator(opts Options) *Generator {
	def := DefaultOptions()
	if opts.Stores < 1 {
		opts.Stores = def.Stores
	}
	if opts.Products < 2 {
		opts.Products = def.Products
	}
	if opts.Customers < 1 {
		opts.Customers = def.Customers
	}
	if opts.Promotions < 0 {
		opts.Promotions = 0
	}

	f := NewFaker()
	if opts.Seed != 0 {
		f = NewFakerWithSeed(uint64(opts.Seed))
	}
	return &Generator{f: f, opts: opts, nextLineID: 1}
}

// Generate produces master data and a raw sales feed.
func (g *Generator) Generate() *Dataset {
	master := g.master()
	ds := &Dataset{
		Master: master,
		Raw:    &model.Raw{},
		Stats:  Stats{Defects: make(map[Defect]int)},
	}

	for i := 1; i <= g.opts.Headers; i++ {
		h, items := g.transaction(fmt.Sprintf("TXN%05d", i), master)

		if g.opts.DefectRate > 0 && g.f.Chance(g.opts.DefectRate) {
			d := Defects[g.nextDefect%len(Defects)]
			g.nextDefect++
			items = g.inject(d, &h, items, master)
			ds.Stats.Defects[d]++
		}

		ds.Raw.Headers = append(ds.Raw.Headers, h)
		ds.Raw.LineItems = append(ds.Raw.LineItems, items...)
	}

	ds.Stats.Headers = len(ds.Raw.Headers)
	ds.Stats.LineItems = len(ds.Raw.LineItems)
	return ds
}

func (g *Generator) date() string {
	return g.f.DateRange(periodStart, periodEnd).Format("2006-01-02")
}

func (g *Generator) master() *model.MasterData {
	m := &model.MasterData{}

	for i := 1; i <= g.opts.Stores; i++ {
		m.Stores = append(m.Stores, model.Store{
			StoreID:     fmt.Sprintf("ST%03d", i),
			StoreName:   g.f.Company() + " Store",
			StoreCity:   g.f.City(),
			StoreRegion: g.f.State(),
			OpeningDate: g.f.DateRange(periodStart.AddDate(-10, 0, 0), periodStart).Format("2006-01-02"),
		})
	}

	for i := 1; i <= g.opts.Products; i++ {
		m.Products = append(m.Products, model.Product{
			ProductID:         fmt.Sprintf("P%03d", i),
			ProductName:       g.f.ProductName(),
			ProductCategory:   g.f.ProductCategory(),
			UnitPrice:         decimal.NewNullDecimal(g.f.Amount(2, 200)),
			CurrentStockLevel: int64(g.f.Int(0, 500)),
		})
	}

	statuses := []string{"Bronze", "Silver", "Gold", "Platinum"}
	for i := 1; i <= g.opts.Customers; i++ {
		m.Customers = append(m.Customers, model.Customer{
			CustomerID:         fmt.Sprintf("C%03d", i),
			FirstName:          g.f.FirstName(),
			Email:              g.f.Email(),
			LoyaltyStatus:      ChooseWeighted(g.f, statuses, []int{50, 30, 15, 5}),
			TotalLoyaltyPoints: int64(g.f.Int(0, 5000)),
			LastPurchaseDate:   g.f.NullableString(g.date(), 0.1),
			SegmentID:          fmt.Sprintf("SEG%d", g.f.Int(1, 4)),
		})
	}

	for i := 1; i <= g.opts.Promotions; i++ {
		start := g.f.DateRange(periodStart, periodEnd.AddDate(0, -1, 0))
		m.Promotions = append(m.Promotions, model.Promotion{
			PromotionID:        fmt.Sprintf("PROMO%03d", i),
			PromotionName:      capitalize(g.f.Word()) + " Sale",
			StartDate:          start.Format("2006-01-02"),
			EndDate:            start.AddDate(0, 0, g.f.Int(7, 30)).Format("2006-01-02"),
			DiscountPercentage: decimal.NewNullDecimal(decimal.NewFromInt(int64(g.f.Int(1, 6) * 5))),
			ApplicableCategory: Choose(g.f, m.Products).ProductCategory,
		})
	}

	m.LoyaltyRules = []model.LoyaltyRule{
		{RuleID: 1, RuleName: "Standard Earn", PointsPerUnitSpend: nd("1"), MinSpendThreshold: nd("0"), BonusPoints: 0},
		{RuleID: 2, RuleName: "Big Basket Bonus", PointsPerUnitSpend: nd("1.5"), MinSpendThreshold: nd("200"), BonusPoints: 50},
		{RuleID: 3, RuleName: "Premium Spend", PointsPerUnitSpend: nd("2"), MinSpendThreshold: nd("500"), BonusPoints: 200},
	}

	return m
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// transaction builds a valid header and its line items.
func (g *Generator) transaction(txnID string, m *model.MasterData) (model.SalesHeader, []model.SalesLineItem) {
	n := g.f.Int(1, 4)
	items := make([]model.SalesLineItem, 0, n+1)
	for i := 0; i < n; i++ {
		items = append(items, g.lineItem(txnID, m))
	}

	h := model.SalesHeader{
		TransactionID:   txnID,
		CustomerID:      Choose(g.f, m.Customers).CustomerID,
		StoreID:         Choose(g.f, m.Stores).StoreID,
		TransactionDate: g.date(),
		TotalAmount:     decimal.NewNullDecimal(sum(items)),
	}
	return h, items
}

func (g *Generator) lineItem(txnID string, m *model.MasterData) model.SalesLineItem {
	p := Choose(g.f, m.Products)
	qty := int64(g.f.Int(1, 5))

	li := model.SalesLineItem{
		LineItemID:     g.nextLineID,
		TransactionID:  txnID,
		ProductID:      p.ProductID,
		Quantity:       qty,
		LineItemAmount: decimal.NewNullDecimal(p.UnitPrice.Decimal.Mul(decimal.NewFromInt(qty))),
	}
	g.nextLineID++

	if len(m.Promotions) > 0 && g.f.Chance(0.2) {
		li.PromotionID = Choose(g.f, m.Promotions).PromotionID
	}
	return li
}

func sum(items []model.SalesLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		if li.LineItemAmount.Valid {
			total = total.Add(li.LineItemAmount.Decimal)
		}
	}
	return total
}

// inject applies d to a valid transaction. Line item defects touch one item
// and keep the header consistent with the item amounts.
func (g *Generator) inject(d Defect, h *model.SalesHeader, items []model.SalesLineItem, m *model.MasterData) []model.SalesLineItem {
	switch d {
	case DefectMissingCustomer:
		h.CustomerID = Choose(g.f, []string{"", model.InvalidCustomerSentinel})
	case DefectUnknownStore:
		h.StoreID = unknownStore
	case DefectUnknownCustomer:
		h.CustomerID = unknownCustomer
	case DefectMissingDate:
		h.TransactionDate = ""
	case DefectNonPositiveTotal:
		if g.f.Bool() {
			h.TotalAmount = decimal.NewNullDecimal(decimal.Zero)
		} else {
			h.TotalAmount = decimal.NewNullDecimal(h.TotalAmount.Decimal.Neg())
		}
	case DefectTotalMismatch:
		h.TotalAmount = decimal.NewNullDecimal(h.TotalAmount.Decimal.Add(g.f.Amount(1, 50)))

	case DefectMissingProduct:
		items[0].ProductID = ""
	case DefectUnknownProduct:
		items[0].ProductID = unknownProduct
	case DefectNonPositiveAmount:
		// A second item keeps the header total positive.
		if len(items) == 1 {
			items = append(items, g.lineItem(h.TransactionID, m))
		}
		if g.f.Bool() {
			items[0].LineItemAmount = decimal.NewNullDecimal(decimal.Zero)
		} else {
			items[0].LineItemAmount = decimal.NullDecimal{}
		}
		h.TotalAmount = decimal.NewNullDecimal(sum(items))
	case DefectOrphanedItem:
		orphan := g.lineItem("ORPHAN-"+h.TransactionID, m)
		items = append(items, orphan)

	case DefectMultiProduct:
		first := items[0].ProductID
		second := first
		for second == first {
			second = Choose(g.f, m.Products).ProductID
		}
		items[0].ProductID = first + "," + second
	}
	return items
}

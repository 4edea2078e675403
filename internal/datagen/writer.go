package datagen

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/csvload"
	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// WriteCSV writes the dataset as the seven input files in dir. The sales
// files carry the denormalized store and product columns a point-of-sale
// export typically has; the loader ignores them.
func WriteCSV(dir string, ds *Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	m := ds.Master
	stores := make(map[string]model.Store, len(m.Stores))
	for _, s := range m.Stores {
		stores[s.StoreID] = s
	}
	products := make(map[string]model.Product, len(m.Products))
	for _, p := range m.Products {
		products[p.ProductID] = p
	}

	files := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{
			name:   csvload.StoresFile,
			header: []string{"store_id", "store_name", "store_city", "store_region", "opening_date"},
			rows: mapRows(m.Stores, func(s model.Store) []string {
				return []string{s.StoreID, s.StoreName, s.StoreCity, s.StoreRegion, s.OpeningDate}
			}),
		},
		{
			name:   csvload.ProductsFile,
			header: []string{"product_id", "product_name", "product_category", "unit_price", "current_stock_level"},
			rows: mapRows(m.Products, func(p model.Product) []string {
				return []string{p.ProductID, p.ProductName, p.ProductCategory,
					money(p.UnitPrice), itoa(p.CurrentStockLevel)}
			}),
		},
		{
			name: csvload.CustomersFile,
			header: []string{"customer_id", "first_name", "email", "loyalty_status",
				"total_loyalty_points", "last_purchase_date", "segment_id"},
			rows: mapRows(m.Customers, func(c model.Customer) []string {
				return []string{c.CustomerID, c.FirstName, c.Email, c.LoyaltyStatus,
					itoa(c.TotalLoyaltyPoints), c.LastPurchaseDate, c.SegmentID}
			}),
		},
		{
			name: csvload.PromotionsFile,
			header: []string{"promotion_id", "promotion_name", "start_date", "end_date",
				"discount_percentage", "applicable_category"},
			rows: mapRows(m.Promotions, func(p model.Promotion) []string {
				return []string{p.PromotionID, p.PromotionName, p.StartDate, p.EndDate,
					number(p.DiscountPercentage), p.ApplicableCategory}
			}),
		},
		{
			name: csvload.LoyaltyRulesFile,
			header: []string{"rule_id", "rule_name", "points_per_unit_spend",
				"min_spend_threshold", "bonus_points"},
			rows: mapRows(m.LoyaltyRules, func(r model.LoyaltyRule) []string {
				return []string{itoa(r.RuleID), r.RuleName, number(r.PointsPerUnitSpend),
					money(r.MinSpendThreshold), itoa(r.BonusPoints)}
			}),
		},
		{
			name: csvload.SalesHeaderFile,
			header: []string{"transaction_id", "customer_id", "store_id", "store_city",
				"store_region", "transaction_date", "total_amount"},
			rows: mapRows(ds.Raw.Headers, func(h model.SalesHeader) []string {
				s := stores[h.StoreID]
				return []string{h.TransactionID, h.CustomerID, h.StoreID, s.StoreCity,
					s.StoreRegion, h.TransactionDate, money(h.TotalAmount)}
			}),
		},
		{
			name: csvload.SalesLineItemFile,
			header: []string{"line_item_id", "transaction_id", "product_id", "product_name",
				"product_category", "promotion_id", "quantity", "line_item_amount"},
			rows: mapRows(ds.Raw.LineItems, func(li model.SalesLineItem) []string {
				var names, categories []string
				for _, id := range strings.Split(li.ProductID, ",") {
					p := products[id]
					names = append(names, p.ProductName)
					categories = append(categories, p.ProductCategory)
				}
				return []string{itoa(li.LineItemID), li.TransactionID, li.ProductID,
					strings.Join(names, ","), strings.Join(categories, ","), li.PromotionID,
					itoa(li.Quantity), money(li.LineItemAmount)}
			}),
		},
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeFile(path, f.header, f.rows); err != nil {
			return err
		}
		logging.Info().
			Str("file", path).
			Int("rows", len(f.rows)).
			Msg("Wrote sample data")
	}
	return nil
}

func writeFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func mapRows[T any](items []T, fn func(T) []string) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, fn(item))
	}
	return rows
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// money formats an amount with two decimals; NULL is an empty cell.
func money(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func number(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

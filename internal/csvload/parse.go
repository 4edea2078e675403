package csvload

import (
	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/model"
)

// masterKey returns a master row's key, or ok=false if the row must be
// skipped because the key is empty or already seen.
func masterKey(r row, column string, seen map[string]struct{}) (string, bool) {
	key := optionalText(r.get(column))
	if key == "" {
		logging.Warn().
			Str("file", r.file).
			Int("line", r.line).
			Msgf("Skipping master row without %s", column)
		return "", false
	}
	if _, dup := seen[key]; dup {
		logging.Warn().
			Str("file", r.file).
			Int("line", r.line).
			Str(column, key).
			Msg("Skipping duplicate master row")
		return "", false
	}
	seen[key] = struct{}{}
	return key, true
}

// masterInt parses an optional integer column of a master row. A value that
// is not an integer is logged and loaded as zero; the row itself is kept.
func masterInt(r row, column string) int64 {
	v, _, err := parseInt(r.get(column))
	if err != nil {
		logging.Warn().
			Str("file", r.file).
			Int("line", r.line).
			Err(err).
			Msgf("Ignoring invalid %s", column)
		return 0
	}
	return v
}

func parseStores(rows []row) []model.Store {
	seen := make(map[string]struct{}, len(rows))
	var out []model.Store
	for _, r := range rows {
		id, ok := masterKey(r, "store_id", seen)
		if !ok {
			continue
		}
		out = append(out, model.Store{
			StoreID:     id,
			StoreName:   optionalText(r.get("store_name")),
			StoreCity:   optionalText(r.get("store_city")),
			StoreRegion: optionalText(r.get("store_region")),
			OpeningDate: optionalText(r.get("opening_date")),
		})
	}
	return out
}

func parseProducts(rows []row) []model.Product {
	seen := make(map[string]struct{}, len(rows))
	var out []model.Product
	for _, r := range rows {
		id, ok := masterKey(r, "product_id", seen)
		if !ok {
			continue
		}
		out = append(out, model.Product{
			ProductID:         id,
			ProductName:       optionalText(r.get("product_name")),
			ProductCategory:   optionalText(r.get("product_category")),
			UnitPrice:         parseAmount(r.get("unit_price")),
			CurrentStockLevel: masterInt(r, "current_stock_level"),
		})
	}
	return out
}

func parseCustomers(rows []row) []model.Customer {
	seen := make(map[string]struct{}, len(rows))
	var out []model.Customer
	for _, r := range rows {
		id, ok := masterKey(r, "customer_id", seen)
		if !ok {
			continue
		}
		out = append(out, model.Customer{
			CustomerID:         id,
			FirstName:          optionalText(r.get("first_name")),
			Email:              optionalText(r.get("email")),
			LoyaltyStatus:      optionalText(r.get("loyalty_status")),
			TotalLoyaltyPoints: masterInt(r, "total_loyalty_points"),
			LastPurchaseDate:   optionalText(r.get("last_purchase_date")),
			SegmentID:          optionalText(r.get("segment_id")),
		})
	}
	return out
}

func parsePromotions(rows []row) []model.Promotion {
	seen := make(map[string]struct{}, len(rows))
	var out []model.Promotion
	for _, r := range rows {
		id, ok := masterKey(r, "promotion_id", seen)
		if !ok {
			continue
		}
		out = append(out, model.Promotion{
			PromotionID:        id,
			PromotionName:      optionalText(r.get("promotion_name")),
			StartDate:          optionalText(r.get("start_date")),
			EndDate:            optionalText(r.get("end_date")),
			DiscountPercentage: parseAmount(r.get("discount_percentage")),
			ApplicableCategory: optionalText(r.get("applicable_category")),
		})
	}
	return out
}

func parseLoyaltyRules(rows []row) []model.LoyaltyRule {
	seen := make(map[string]struct{}, len(rows))
	var out []model.LoyaltyRule
	for _, r := range rows {
		key, ok := masterKey(r, "rule_id", seen)
		if !ok {
			continue
		}
		id, _, err := parseInt(key)
		if err != nil {
			logging.Warn().
				Str("file", r.file).
				Int("line", r.line).
				Err(err).
				Msg("Skipping master row with invalid rule_id")
			continue
		}
		out = append(out, model.LoyaltyRule{
			RuleID:             id,
			RuleName:           optionalText(r.get("rule_name")),
			PointsPerUnitSpend: parseAmount(r.get("points_per_unit_spend")),
			MinSpendThreshold:  parseAmount(r.get("min_spend_threshold")),
			BonusPoints:        masterInt(r, "bonus_points"),
		})
	}
	return out
}

func parseHeaders(rows []row) ([]model.SalesHeader, error) {
	seen := make(map[string]struct{}, len(rows))
	out := make([]model.SalesHeader, 0, len(rows))
	for _, r := range rows {
		id := optionalText(r.get("transaction_id"))
		if id == "" {
			return nil, r.errorf("transaction_id", "empty natural key")
		}
		if _, dup := seen[id]; dup {
			return nil, r.errorf("transaction_id", "duplicate transaction_id %q", id)
		}
		seen[id] = struct{}{}

		out = append(out, model.SalesHeader{
			TransactionID:   id,
			CustomerID:      optionalText(r.get("customer_id")),
			StoreID:         optionalText(r.get("store_id")),
			TransactionDate: optionalText(r.get("transaction_date")),
			TotalAmount:     parseAmount(r.get("total_amount")),
		})
	}
	return out, nil
}

func parseLineItems(rows []row) ([]model.SalesLineItem, error) {
	seen := make(map[int64]struct{}, len(rows))
	out := make([]model.SalesLineItem, 0, len(rows))
	for _, r := range rows {
		id, ok, err := parseInt(r.get("line_item_id"))
		if err != nil {
			return nil, r.errorf("line_item_id", "%v", err)
		}
		if !ok {
			return nil, r.errorf("line_item_id", "empty natural key")
		}
		if _, dup := seen[id]; dup {
			return nil, r.errorf("line_item_id", "duplicate line_item_id %d", id)
		}
		seen[id] = struct{}{}

		qty, _, err := parseInt(r.get("quantity"))
		if err != nil {
			return nil, r.errorf("quantity", "%v", err)
		}

		out = append(out, model.SalesLineItem{
			LineItemID:     id,
			TransactionID:  optionalText(r.get("transaction_id")),
			ProductID:      optionalText(r.get("product_id")),
			PromotionID:    optionalText(r.get("promotion_id")),
			Quantity:       qty,
			LineItemAmount: parseAmount(r.get("line_item_amount")),
		})
	}
	return out, nil
}

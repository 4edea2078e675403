/*
Package sqlite provides a SQLite-backed implementation of the record store.

The layout mirrors the PostgreSQL backend table for table. SQLite has no
NUMERIC type that preserves scale, so amounts are kept as decimal text and
parsed back with shopspring/decimal; timestamps are RFC 3339 text.

The schema is created on Open, so a fresh file is usable without running
init first.

USAGE:

	st, err := sqlite.Open(ctx, "./salesingest.db")
	if err != nil {
	    return err
	}
	defer st.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
)

// BackendName is the registry name of the SQLite backend.
const BackendName = "sqlite"

// Store implements store.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Backend returns "sqlite".
func (s *Store) Backend() string { return BackendName }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSchema creates all tables if they do not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// DropSchema drops all tables.
func (s *Store) DropSchema(ctx context.Context) error {
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func deleteAll(ctx context.Context, tx *sql.Tx, tables ...string) error {
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// insertAll prepares query once and executes it for rows 0..n-1.
func insertAll(ctx context.Context, tx *sql.Tx, table, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

// ReplaceMasterData replaces the five master tables.
func (s *Store) ReplaceMasterData(ctx context.Context, m *model.MasterData) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		err := deleteAll(ctx, tx,
			"staging_stores", "staging_products", "staging_customer_details",
			"staging_promotion_details", "staging_loyalty_rules")
		if err != nil {
			return err
		}

		err = insertAll(ctx, tx, "staging_stores", `
			INSERT INTO staging_stores (store_id, store_name, store_city, store_region, opening_date)
			VALUES (?, ?, ?, ?, ?)`, len(m.Stores), func(i int) []any {
			r := m.Stores[i]
			return []any{r.StoreID, nullText(r.StoreName), nullText(r.StoreCity),
				nullText(r.StoreRegion), nullText(r.OpeningDate)}
		})
		if err != nil {
			return err
		}

		err = insertAll(ctx, tx, "staging_products", `
			INSERT INTO staging_products (product_id, product_name, product_category,
				unit_price, current_stock_level)
			VALUES (?, ?, ?, ?, ?)`, len(m.Products), func(i int) []any {
			r := m.Products[i]
			return []any{r.ProductID, nullText(r.ProductName), nullText(r.ProductCategory),
				amount(r.UnitPrice), r.CurrentStockLevel}
		})
		if err != nil {
			return err
		}

		err = insertAll(ctx, tx, "staging_customer_details", `
			INSERT INTO staging_customer_details (customer_id, first_name, email,
				loyalty_status, total_loyalty_points, last_purchase_date, segment_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, len(m.Customers), func(i int) []any {
			r := m.Customers[i]
			return []any{r.CustomerID, nullText(r.FirstName), nullText(r.Email),
				nullText(r.LoyaltyStatus), r.TotalLoyaltyPoints,
				nullText(r.LastPurchaseDate), nullText(r.SegmentID)}
		})
		if err != nil {
			return err
		}

		err = insertAll(ctx, tx, "staging_promotion_details", `
			INSERT INTO staging_promotion_details (promotion_id, promotion_name, start_date,
				end_date, discount_percentage, applicable_category)
			VALUES (?, ?, ?, ?, ?, ?)`, len(m.Promotions), func(i int) []any {
			r := m.Promotions[i]
			return []any{r.PromotionID, nullText(r.PromotionName), nullText(r.StartDate),
				nullText(r.EndDate), amount(r.DiscountPercentage), nullText(r.ApplicableCategory)}
		})
		if err != nil {
			return err
		}

		return insertAll(ctx, tx, "staging_loyalty_rules", `
			INSERT INTO staging_loyalty_rules (rule_id, rule_name, points_per_unit_spend,
				min_spend_threshold, bonus_points)
			VALUES (?, ?, ?, ?, ?)`, len(m.LoyaltyRules), func(i int) []any {
			r := m.LoyaltyRules[i]
			return []any{r.RuleID, nullText(r.RuleName), amount(r.PointsPerUnitSpend),
				amount(r.MinSpendThreshold), r.BonusPoints}
		})
	})
}

// LoadMasterData reads the five master tables.
func (s *Store) LoadMasterData(ctx context.Context) (*model.MasterData, error) {
	m := &model.MasterData{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, COALESCE(store_name, ''), COALESCE(store_city, ''),
			COALESCE(store_region, ''), COALESCE(opening_date, '')
		FROM staging_stores ORDER BY store_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var r model.Store
		if err := rows.Scan(&r.StoreID, &r.StoreName, &r.StoreCity, &r.StoreRegion, &r.OpeningDate); err != nil {
			return err
		}
		m.Stores = append(m.Stores, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read stores: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT product_id, COALESCE(product_name, ''), COALESCE(product_category, ''),
			unit_price, COALESCE(current_stock_level, 0)
		FROM staging_products ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var r model.Product
		var price sql.NullString
		if err := rows.Scan(&r.ProductID, &r.ProductName, &r.ProductCategory, &price, &r.CurrentStockLevel); err != nil {
			return err
		}
		var err error
		if r.UnitPrice, err = parseAmount(price); err != nil {
			return err
		}
		m.Products = append(m.Products, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT customer_id, COALESCE(first_name, ''), COALESCE(email, ''),
			COALESCE(loyalty_status, ''), COALESCE(total_loyalty_points, 0),
			COALESCE(last_purchase_date, ''), COALESCE(segment_id, '')
		FROM staging_customer_details ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var r model.Customer
		if err := rows.Scan(&r.CustomerID, &r.FirstName, &r.Email, &r.LoyaltyStatus,
			&r.TotalLoyaltyPoints, &r.LastPurchaseDate, &r.SegmentID); err != nil {
			return err
		}
		m.Customers = append(m.Customers, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT promotion_id, COALESCE(promotion_name, ''), COALESCE(start_date, ''),
			COALESCE(end_date, ''), discount_percentage, COALESCE(applicable_category, '')
		FROM staging_promotion_details ORDER BY promotion_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var r model.Promotion
		var discount sql.NullString
		if err := rows.Scan(&r.PromotionID, &r.PromotionName, &r.StartDate, &r.EndDate,
			&discount, &r.ApplicableCategory); err != nil {
			return err
		}
		var err error
		if r.DiscountPercentage, err = parseAmount(discount); err != nil {
			return err
		}
		m.Promotions = append(m.Promotions, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read promotions: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT rule_id, COALESCE(rule_name, ''), points_per_unit_spend,
			min_spend_threshold, COALESCE(bonus_points, 0)
		FROM staging_loyalty_rules ORDER BY rule_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query loyalty rules: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var r model.LoyaltyRule
		var points, threshold sql.NullString
		if err := rows.Scan(&r.RuleID, &r.RuleName, &points, &threshold, &r.BonusPoints); err != nil {
			return err
		}
		var err error
		if r.PointsPerUnitSpend, err = parseAmount(points); err != nil {
			return err
		}
		if r.MinSpendThreshold, err = parseAmount(threshold); err != nil {
			return err
		}
		m.LoyaltyRules = append(m.LoyaltyRules, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read loyalty rules: %w", err)
	}

	return m, nil
}

const insertRawHeaderSQL = `
	INSERT INTO raw_store_sales_header (transaction_id, customer_id, store_id,
		transaction_date, total_amount)
	VALUES (?, ?, ?, ?, ?)`

const insertRawLineItemSQL = `
	INSERT INTO raw_store_sales_line_items (line_item_id, transaction_id, product_id,
		promotion_id, quantity, line_item_amount)
	VALUES (?, ?, ?, ?, ?, ?)`

func lineItemArgs(li model.SalesLineItem) []any {
	return []any{li.LineItemID, nullText(li.TransactionID), nullText(li.ProductID),
		nullText(li.PromotionID), li.Quantity, amount(li.LineItemAmount)}
}

// ReplaceRaw replaces both raw sales tables.
func (s *Store) ReplaceRaw(ctx context.Context, raw *model.Raw) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteAll(ctx, tx, "raw_store_sales_line_items", "raw_store_sales_header"); err != nil {
			return err
		}
		err := insertAll(ctx, tx, "raw_store_sales_header", insertRawHeaderSQL, len(raw.Headers), func(i int) []any {
			h := raw.Headers[i]
			return []any{h.TransactionID, nullText(h.CustomerID), nullText(h.StoreID),
				nullText(h.TransactionDate), amount(h.TotalAmount)}
		})
		if err != nil {
			return err
		}
		return insertAll(ctx, tx, "raw_store_sales_line_items", insertRawLineItemSQL, len(raw.LineItems), func(i int) []any {
			return lineItemArgs(raw.LineItems[i])
		})
	})
}

// ReplaceRawLineItems replaces the raw line item table.
func (s *Store) ReplaceRawLineItems(ctx context.Context, items []model.SalesLineItem) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteAll(ctx, tx, "raw_store_sales_line_items"); err != nil {
			return err
		}
		return insertAll(ctx, tx, "raw_store_sales_line_items", insertRawLineItemSQL, len(items), func(i int) []any {
			return lineItemArgs(items[i])
		})
	})
}

// LoadRaw reads both raw sales tables ordered by natural key.
func (s *Store) LoadRaw(ctx context.Context) (*model.Raw, error) {
	raw := &model.Raw{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, COALESCE(customer_id, ''), COALESCE(store_id, ''),
			COALESCE(transaction_date, ''), total_amount
		FROM raw_store_sales_header ORDER BY transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw headers: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var h model.SalesHeader
		var total sql.NullString
		if err := rows.Scan(&h.TransactionID, &h.CustomerID, &h.StoreID, &h.TransactionDate, &total); err != nil {
			return err
		}
		var err error
		if h.TotalAmount, err = parseAmount(total); err != nil {
			return err
		}
		raw.Headers = append(raw.Headers, h)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read raw headers: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT line_item_id, COALESCE(transaction_id, ''), COALESCE(product_id, ''),
			COALESCE(promotion_id, ''), COALESCE(quantity, 0), line_item_amount
		FROM raw_store_sales_line_items ORDER BY line_item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw line items: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var li model.SalesLineItem
		var amt sql.NullString
		if err := rows.Scan(&li.LineItemID, &li.TransactionID, &li.ProductID,
			&li.PromotionID, &li.Quantity, &amt); err != nil {
			return err
		}
		var err error
		if li.LineItemAmount, err = parseAmount(amt); err != nil {
			return err
		}
		raw.LineItems = append(raw.LineItems, li)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read raw line items: %w", err)
	}

	return raw, nil
}

// SaveHeaderRejections inserts header rejections, clearing the table first
// when replace is set.
func (s *Store) SaveHeaderRejections(ctx context.Context, rejections []model.HeaderRejection, replace bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if replace {
			if err := deleteAll(ctx, tx, "quarantine_rejected_sales_header"); err != nil {
				return err
			}
		}
		return insertAll(ctx, tx, "quarantine_rejected_sales_header", `
			INSERT INTO quarantine_rejected_sales_header (transaction_id, customer_id, store_id,
				transaction_date, total_amount, rejection_reason, rejection_timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, len(rejections), func(i int) []any {
			r := rejections[i]
			return []any{r.TransactionID, nullText(r.CustomerID), nullText(r.StoreID),
				nullText(r.TransactionDate), amount(r.TotalAmount), r.Reason, timestamp(r.RejectedAt)}
		})
	})
}

// SaveLineItemRejections inserts line item rejections, clearing the table
// first when replace is set.
func (s *Store) SaveLineItemRejections(ctx context.Context, rejections []model.LineItemRejection, replace bool) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if replace {
			if err := deleteAll(ctx, tx, "quarantine_rejected_sales_line_items"); err != nil {
				return err
			}
		}
		return insertAll(ctx, tx, "quarantine_rejected_sales_line_items", `
			INSERT INTO quarantine_rejected_sales_line_items (line_item_id, transaction_id,
				product_id, promotion_id, quantity, line_item_amount,
				rejection_reason, rejection_timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, len(rejections), func(i int) []any {
			r := rejections[i]
			return append(lineItemArgs(r.SalesLineItem), r.Reason, timestamp(r.RejectedAt))
		})
	})
}

// LoadQuarantine reads both quarantine tables ordered by natural key.
func (s *Store) LoadQuarantine(ctx context.Context) (*model.Quarantine, error) {
	q := &model.Quarantine{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, COALESCE(customer_id, ''), COALESCE(store_id, ''),
			COALESCE(transaction_date, ''), total_amount, rejection_reason, rejection_timestamp
		FROM quarantine_rejected_sales_header ORDER BY transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejected headers: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var r model.HeaderRejection
		var total sql.NullString
		var at string
		if err := rows.Scan(&r.TransactionID, &r.CustomerID, &r.StoreID, &r.TransactionDate,
			&total, &r.Reason, &at); err != nil {
			return err
		}
		var err error
		if r.TotalAmount, err = parseAmount(total); err != nil {
			return err
		}
		if r.RejectedAt, err = parseTime(at); err != nil {
			return err
		}
		q.Headers = append(q.Headers, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rejected headers: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT line_item_id, COALESCE(transaction_id, ''), COALESCE(product_id, ''),
			COALESCE(promotion_id, ''), COALESCE(quantity, 0), line_item_amount,
			rejection_reason, rejection_timestamp
		FROM quarantine_rejected_sales_line_items ORDER BY line_item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejected line items: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var r model.LineItemRejection
		var amt sql.NullString
		var at string
		if err := rows.Scan(&r.LineItemID, &r.TransactionID, &r.ProductID, &r.PromotionID,
			&r.Quantity, &amt, &r.Reason, &at); err != nil {
			return err
		}
		var err error
		if r.LineItemAmount, err = parseAmount(amt); err != nil {
			return err
		}
		if r.RejectedAt, err = parseTime(at); err != nil {
			return err
		}
		q.LineItems = append(q.LineItems, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rejected line items: %w", err)
	}

	return q, nil
}

// ReplaceStaging clears staging line items, then headers, and inserts the
// new staging layer.
func (s *Store) ReplaceStaging(ctx context.Context, st *model.Staging) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteAll(ctx, tx, "staging_store_sales_line_items", "staging_store_sales_header"); err != nil {
			return err
		}
		err := insertAll(ctx, tx, "staging_store_sales_header", `
			INSERT INTO staging_store_sales_header (transaction_id, customer_id, store_id,
				transaction_date, total_amount, processed, created_timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, len(st.Headers), func(i int) []any {
			h := st.Headers[i]
			return []any{h.TransactionID, h.CustomerID, h.StoreID, h.TransactionDate,
				amount(h.TotalAmount), h.Processed, timestamp(h.CreatedAt)}
		})
		if err != nil {
			return err
		}
		return insertAll(ctx, tx, "staging_store_sales_line_items", `
			INSERT INTO staging_store_sales_line_items (line_item_id, transaction_id,
				product_id, promotion_id, quantity, line_item_amount, created_timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, len(st.LineItems), func(i int) []any {
			li := st.LineItems[i]
			return []any{li.LineItemID, li.TransactionID, li.ProductID, nullText(li.PromotionID),
				li.Quantity, amount(li.LineItemAmount), timestamp(li.CreatedAt)}
		})
	})
}

// LoadStaging reads both staging tables ordered by natural key.
func (s *Store) LoadStaging(ctx context.Context) (*model.Staging, error) {
	st := &model.Staging{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, customer_id, store_id, transaction_date, total_amount,
			processed, created_timestamp
		FROM staging_store_sales_header ORDER BY transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged headers: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var h model.StagedHeader
		var total sql.NullString
		var at string
		if err := rows.Scan(&h.TransactionID, &h.CustomerID, &h.StoreID, &h.TransactionDate,
			&total, &h.Processed, &at); err != nil {
			return err
		}
		var err error
		if h.TotalAmount, err = parseAmount(total); err != nil {
			return err
		}
		if h.CreatedAt, err = parseTime(at); err != nil {
			return err
		}
		st.Headers = append(st.Headers, h)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read staged headers: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT line_item_id, transaction_id, product_id, COALESCE(promotion_id, ''),
			quantity, line_item_amount, created_timestamp
		FROM staging_store_sales_line_items ORDER BY line_item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged line items: %w", err)
	}
	err = collect(rows, func(rows *sql.Rows) error {
		var li model.StagedLineItem
		var amt sql.NullString
		var at string
		if err := rows.Scan(&li.LineItemID, &li.TransactionID, &li.ProductID, &li.PromotionID,
			&li.Quantity, &amt, &at); err != nil {
			return err
		}
		var err error
		if li.LineItemAmount, err = parseAmount(amt); err != nil {
			return err
		}
		if li.CreatedAt, err = parseTime(at); err != nil {
			return err
		}
		st.LineItems = append(st.LineItems, li)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read staged line items: %w", err)
	}

	return st, nil
}

// RecordRun inserts or updates a run row.
func (s *Store) RecordRun(ctx context.Context, run store.Run) error {
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = timestamp(run.FinishedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, started_at, finished_at, status, version, error,
			raw_headers, raw_line_items, rejected_headers, rejected_line_items,
			staged_headers, staged_line_items)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			error = excluded.error,
			raw_headers = excluded.raw_headers,
			raw_line_items = excluded.raw_line_items,
			rejected_headers = excluded.rejected_headers,
			rejected_line_items = excluded.rejected_line_items,
			staged_headers = excluded.staged_headers,
			staged_line_items = excluded.staged_line_items`,
		run.ID.String(), timestamp(run.StartedAt), finished, run.Status, run.Version,
		nullText(run.Error), run.RawHeaders, run.RawLineItems, run.RejectedHeaders,
		run.RejectedLineItems, run.StagedHeaders, run.StagedLineItems)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// LastRun returns the most recently started run.
func (s *Store) LastRun(ctx context.Context) (*store.Run, error) {
	var run store.Run
	var id, started string
	var finished sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, status, version, COALESCE(error, ''),
			raw_headers, raw_line_items, rejected_headers, rejected_line_items,
			staged_headers, staged_line_items
		FROM ingest_runs ORDER BY started_at DESC LIMIT 1`).Scan(
		&id, &started, &finished, &run.Status, &run.Version, &run.Error,
		&run.RawHeaders, &run.RawLineItems, &run.RejectedHeaders, &run.RejectedLineItems,
		&run.StagedHeaders, &run.StagedLineItems)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

// collect iterates rows, closing them and reporting any iteration error.
func collect(rows *sql.Rows, fn func(rows *sql.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func amount(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseAmount(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid amount %q: %w", s.String, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// Fixed-width UTC timestamps sort lexically in started_at order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

var _ store.Store = (*Store)(nil)

func init() {
	store.Register(BackendName, func(ctx context.Context, dsn string) (store.Store, error) {
		s, err := Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

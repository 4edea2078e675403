//-------------------------------------------------------------------------
//
// pgEdge Sales Ingest
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesingest/internal/db"
	"github.com/pgEdge/pgedge-salesingest/internal/logging"
	"github.com/pgEdge/pgedge-salesingest/internal/model"
	"github.com/pgEdge/pgedge-salesingest/internal/store"
)

// BackendName is the registry name of the PostgreSQL backend.
const BackendName = "postgres"

// Store persists the pipeline tables in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database named by connString.
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool. The store takes ownership of it.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Backend returns "postgres".
func (s *Store) Backend() string { return BackendName }

// CheckSchema verifies that init has been run against the database.
func (s *Store) CheckSchema(ctx context.Context) error {
	return db.CheckSchemaVersion(ctx, s.pool)
}

// CreateSchema creates all tables.
func (s *Store) CreateSchema(ctx context.Context) error {
	return CreateSchema(ctx, s.pool)
}

// DropSchema drops all tables.
func (s *Store) DropSchema(ctx context.Context) error {
	return DropSchema(ctx, s.pool)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// sendBatch executes every queued statement and reports the first failure.
func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, table string) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	logging.Debug().Str("table", table).Int("rows", batch.Len()).Msg("Inserted rows")
	return nil
}

func truncate(ctx context.Context, tx pgx.Tx, tables ...string) error {
	for _, table := range tables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// ReplaceMasterData replaces all five master tables.
func (s *Store) ReplaceMasterData(ctx context.Context, m *model.MasterData) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		err := truncate(ctx, tx,
			"staging_stores", "staging_products", "staging_customer_details",
			"staging_promotion_details", "staging_loyalty_rules")
		if err != nil {
			return err
		}

		stores := &pgx.Batch{}
		for _, r := range m.Stores {
			stores.Queue(`
                INSERT INTO staging_stores (store_id, store_name, store_city, store_region, opening_date)
                VALUES ($1, $2, $3, $4, $5)`,
				r.StoreID, nullText(r.StoreName), nullText(r.StoreCity),
				nullText(r.StoreRegion), nullText(r.OpeningDate))
		}
		if err := sendBatch(ctx, tx, stores, "staging_stores"); err != nil {
			return err
		}

		products := &pgx.Batch{}
		for _, r := range m.Products {
			products.Queue(`
                INSERT INTO staging_products (product_id, product_name, product_category,
                    unit_price, current_stock_level)
                VALUES ($1, $2, $3, $4::text::numeric, $5)`,
				r.ProductID, nullText(r.ProductName), nullText(r.ProductCategory),
				numeric(r.UnitPrice), r.CurrentStockLevel)
		}
		if err := sendBatch(ctx, tx, products, "staging_products"); err != nil {
			return err
		}

		customers := &pgx.Batch{}
		for _, r := range m.Customers {
			customers.Queue(`
                INSERT INTO staging_customer_details (customer_id, first_name, email,
                    loyalty_status, total_loyalty_points, last_purchase_date, segment_id)
                VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				r.CustomerID, nullText(r.FirstName), nullText(r.Email),
				nullText(r.LoyaltyStatus), r.TotalLoyaltyPoints,
				nullText(r.LastPurchaseDate), nullText(r.SegmentID))
		}
		if err := sendBatch(ctx, tx, customers, "staging_customer_details"); err != nil {
			return err
		}

		promotions := &pgx.Batch{}
		for _, r := range m.Promotions {
			promotions.Queue(`
                INSERT INTO staging_promotion_details (promotion_id, promotion_name,
                    start_date, end_date, discount_percentage, applicable_category)
                VALUES ($1, $2, $3, $4, $5::text::numeric, $6)`,
				r.PromotionID, nullText(r.PromotionName), nullText(r.StartDate),
				nullText(r.EndDate), numeric(r.DiscountPercentage),
				nullText(r.ApplicableCategory))
		}
		if err := sendBatch(ctx, tx, promotions, "staging_promotion_details"); err != nil {
			return err
		}

		rules := &pgx.Batch{}
		for _, r := range m.LoyaltyRules {
			rules.Queue(`
                INSERT INTO staging_loyalty_rules (rule_id, rule_name,
                    points_per_unit_spend, min_spend_threshold, bonus_points)
                VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5)`,
				r.RuleID, nullText(r.RuleName), numeric(r.PointsPerUnitSpend),
				numeric(r.MinSpendThreshold), r.BonusPoints)
		}
		return sendBatch(ctx, tx, rules, "staging_loyalty_rules")
	})
}

// LoadMasterData reads all five master tables.
func (s *Store) LoadMasterData(ctx context.Context) (*model.MasterData, error) {
	m := &model.MasterData{}

	rows, err := s.pool.Query(ctx, `
        SELECT store_id, COALESCE(store_name, ''), COALESCE(store_city, ''),
               COALESCE(store_region, ''), COALESCE(opening_date, '')
        FROM staging_stores ORDER BY store_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	m.Stores, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Store, error) {
		var r model.Store
		err := row.Scan(&r.StoreID, &r.StoreName, &r.StoreCity, &r.StoreRegion, &r.OpeningDate)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read stores: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
        SELECT product_id, COALESCE(product_name, ''), COALESCE(product_category, ''),
               unit_price::text, COALESCE(current_stock_level, 0)
        FROM staging_products ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	m.Products, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Product, error) {
		var r model.Product
		var price *string
		if err := row.Scan(&r.ProductID, &r.ProductName, &r.ProductCategory, &price, &r.CurrentStockLevel); err != nil {
			return r, err
		}
		var err error
		r.UnitPrice, err = parseNumeric(price)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
        SELECT customer_id, COALESCE(first_name, ''), COALESCE(email, ''),
               COALESCE(loyalty_status, ''), COALESCE(total_loyalty_points, 0),
               COALESCE(last_purchase_date, ''), COALESCE(segment_id, '')
        FROM staging_customer_details ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	m.Customers, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Customer, error) {
		var r model.Customer
		err := row.Scan(&r.CustomerID, &r.FirstName, &r.Email, &r.LoyaltyStatus,
			&r.TotalLoyaltyPoints, &r.LastPurchaseDate, &r.SegmentID)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
        SELECT promotion_id, COALESCE(promotion_name, ''), COALESCE(start_date, ''),
               COALESCE(end_date, ''), discount_percentage::text,
               COALESCE(applicable_category, '')
        FROM staging_promotion_details ORDER BY promotion_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query promotions: %w", err)
	}
	m.Promotions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Promotion, error) {
		var r model.Promotion
		var discount *string
		if err := row.Scan(&r.PromotionID, &r.PromotionName, &r.StartDate, &r.EndDate,
			&discount, &r.ApplicableCategory); err != nil {
			return r, err
		}
		var err error
		r.DiscountPercentage, err = parseNumeric(discount)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read promotions: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
        SELECT rule_id, COALESCE(rule_name, ''), points_per_unit_spend::text,
               min_spend_threshold::text, COALESCE(bonus_points, 0)
        FROM staging_loyalty_rules ORDER BY rule_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query loyalty rules: %w", err)
	}
	m.LoyaltyRules, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LoyaltyRule, error) {
		var r model.LoyaltyRule
		var points, threshold *string
		if err := row.Scan(&r.RuleID, &r.RuleName, &points, &threshold, &r.BonusPoints); err != nil {
			return r, err
		}
		var err error
		if r.PointsPerUnitSpend, err = parseNumeric(points); err != nil {
			return r, err
		}
		r.MinSpendThreshold, err = parseNumeric(threshold)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read loyalty rules: %w", err)
	}

	return m, nil
}

func queueHeaders(batch *pgx.Batch, headers []model.SalesHeader) {
	for _, h := range headers {
		batch.Queue(`
            INSERT INTO raw_store_sales_header (transaction_id, customer_id, store_id,
                transaction_date, total_amount)
            VALUES ($1, $2, $3, $4, $5::text::numeric)`,
			h.TransactionID, nullText(h.CustomerID), nullText(h.StoreID),
			nullText(h.TransactionDate), numeric(h.TotalAmount))
	}
}

func queueLineItems(batch *pgx.Batch, items []model.SalesLineItem) {
	for _, li := range items {
		batch.Queue(`
            INSERT INTO raw_store_sales_line_items (line_item_id, transaction_id,
                product_id, promotion_id, quantity, line_item_amount)
            VALUES ($1, $2, $3, $4, $5, $6::text::numeric)`,
			li.LineItemID, nullText(li.TransactionID), nullText(li.ProductID),
			nullText(li.PromotionID), li.Quantity, numeric(li.LineItemAmount))
	}
}

// ReplaceRaw replaces both raw sales tables.
func (s *Store) ReplaceRaw(ctx context.Context, raw *model.Raw) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := truncate(ctx, tx, "raw_store_sales_line_items", "raw_store_sales_header"); err != nil {
			return err
		}
		headers := &pgx.Batch{}
		queueHeaders(headers, raw.Headers)
		if err := sendBatch(ctx, tx, headers, "raw_store_sales_header"); err != nil {
			return err
		}
		items := &pgx.Batch{}
		queueLineItems(items, raw.LineItems)
		return sendBatch(ctx, tx, items, "raw_store_sales_line_items")
	})
}

// ReplaceRawLineItems replaces the raw line item table with its normalized
// form.
func (s *Store) ReplaceRawLineItems(ctx context.Context, items []model.SalesLineItem) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := truncate(ctx, tx, "raw_store_sales_line_items"); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		queueLineItems(batch, items)
		return sendBatch(ctx, tx, batch, "raw_store_sales_line_items")
	})
}

// LoadRaw reads both raw sales tables ordered by natural key.
func (s *Store) LoadRaw(ctx context.Context) (*model.Raw, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT transaction_id, COALESCE(customer_id, ''), COALESCE(store_id, ''),
               COALESCE(transaction_date, ''), total_amount::text
        FROM raw_store_sales_header ORDER BY transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw headers: %w", err)
	}
	headers, err := pgx.CollectRows(rows, scanHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw headers: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
        SELECT line_item_id, COALESCE(transaction_id, ''), COALESCE(product_id, ''),
               COALESCE(promotion_id, ''), COALESCE(quantity, 0), line_item_amount::text
        FROM raw_store_sales_line_items ORDER BY line_item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw line items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanLineItem)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw line items: %w", err)
	}

	return &model.Raw{Headers: headers, LineItems: items}, nil
}

func scanHeader(row pgx.CollectableRow) (model.SalesHeader, error) {
	var h model.SalesHeader
	var total *string
	if err := row.Scan(&h.TransactionID, &h.CustomerID, &h.StoreID, &h.TransactionDate, &total); err != nil {
		return h, err
	}
	var err error
	h.TotalAmount, err = parseNumeric(total)
	return h, err
}

func scanLineItem(row pgx.CollectableRow) (model.SalesLineItem, error) {
	var li model.SalesLineItem
	var amount *string
	if err := row.Scan(&li.LineItemID, &li.TransactionID, &li.ProductID,
		&li.PromotionID, &li.Quantity, &amount); err != nil {
		return li, err
	}
	var err error
	li.LineItemAmount, err = parseNumeric(amount)
	return li, err
}

// SaveHeaderRejections inserts header rejections, clearing the table first
// when replace is set.
func (s *Store) SaveHeaderRejections(ctx context.Context, rejections []model.HeaderRejection, replace bool) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if replace {
			if err := truncate(ctx, tx, "quarantine_rejected_sales_header"); err != nil {
				return err
			}
		}
		batch := &pgx.Batch{}
		for _, r := range rejections {
			batch.Queue(`
                INSERT INTO quarantine_rejected_sales_header (transaction_id, customer_id,
                    store_id, transaction_date, total_amount, rejection_reason, rejection_timestamp)
                VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7)`,
				r.TransactionID, nullText(r.CustomerID), nullText(r.StoreID),
				nullText(r.TransactionDate), numeric(r.TotalAmount), r.Reason, r.RejectedAt)
		}
		return sendBatch(ctx, tx, batch, "quarantine_rejected_sales_header")
	})
}

// SaveLineItemRejections inserts line item rejections, clearing the table
// first when replace is set.
func (s *Store) SaveLineItemRejections(ctx context.Context, rejections []model.LineItemRejection, replace bool) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if replace {
			if err := truncate(ctx, tx, "quarantine_rejected_sales_line_items"); err != nil {
				return err
			}
		}
		batch := &pgx.Batch{}
		for _, r := range rejections {
			batch.Queue(`
                INSERT INTO quarantine_rejected_sales_line_items (line_item_id, transaction_id,
                    product_id, promotion_id, quantity, line_item_amount,
                    rejection_reason, rejection_timestamp)
                VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8)`,
				r.LineItemID, nullText(r.TransactionID), nullText(r.ProductID),
				nullText(r.PromotionID), r.Quantity, numeric(r.LineItemAmount),
				r.Reason, r.RejectedAt)
		}
		return sendBatch(ctx, tx, batch, "quarantine_rejected_sales_line_items")
	})
}

// LoadQuarantine reads both quarantine tables ordered by natural key.
func (s *Store) LoadQuarantine(ctx context.Context) (*model.Quarantine, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT transaction_id, COALESCE(customer_id, ''), COALESCE(store_id, ''),
               COALESCE(transaction_date, ''), total_amount::text,
               rejection_reason, rejection_timestamp
        FROM quarantine_rejected_sales_header ORDER BY transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejected headers: %w", err)
	}
	headers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.HeaderRejection, error) {
		var r model.HeaderRejection
		var total *string
		if err := row.Scan(&r.TransactionID, &r.CustomerID, &r.StoreID, &r.TransactionDate,
			&total, &r.Reason, &r.RejectedAt); err != nil {
			return r, err
		}
		var err error
		r.TotalAmount, err = parseNumeric(total)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rejected headers: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
        SELECT line_item_id, COALESCE(transaction_id, ''), COALESCE(product_id, ''),
               COALESCE(promotion_id, ''), COALESCE(quantity, 0), line_item_amount::text,
               rejection_reason, rejection_timestamp
        FROM quarantine_rejected_sales_line_items ORDER BY line_item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejected line items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LineItemRejection, error) {
		var r model.LineItemRejection
		var amount *string
		if err := row.Scan(&r.LineItemID, &r.TransactionID, &r.ProductID, &r.PromotionID,
			&r.Quantity, &amount, &r.Reason, &r.RejectedAt); err != nil {
			return r, err
		}
		var err error
		r.LineItemAmount, err = parseNumeric(amount)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rejected line items: %w", err)
	}

	return &model.Quarantine{Headers: headers, LineItems: items}, nil
}

// ReplaceStaging clears staging line items, then headers, and inserts the
// new staging layer.
func (s *Store) ReplaceStaging(ctx context.Context, st *model.Staging) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := truncate(ctx, tx, "staging_store_sales_line_items", "staging_store_sales_header"); err != nil {
			return err
		}

		headers := &pgx.Batch{}
		for _, h := range st.Headers {
			headers.Queue(`
                INSERT INTO staging_store_sales_header (transaction_id, customer_id, store_id,
                    transaction_date, total_amount, processed, created_timestamp)
                VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7)`,
				h.TransactionID, h.CustomerID, h.StoreID, h.TransactionDate,
				numeric(h.TotalAmount), h.Processed, h.CreatedAt)
		}
		if err := sendBatch(ctx, tx, headers, "staging_store_sales_header"); err != nil {
			return err
		}

		items := &pgx.Batch{}
		for _, li := range st.LineItems {
			items.Queue(`
                INSERT INTO staging_store_sales_line_items (line_item_id, transaction_id,
                    product_id, promotion_id, quantity, line_item_amount, created_timestamp)
                VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7)`,
				li.LineItemID, li.TransactionID, li.ProductID, nullText(li.PromotionID),
				li.Quantity, numeric(li.LineItemAmount), li.CreatedAt)
		}
		return sendBatch(ctx, tx, items, "staging_store_sales_line_items")
	})
}

// LoadStaging reads both staging tables ordered by natural key.
func (s *Store) LoadStaging(ctx context.Context) (*model.Staging, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT transaction_id, customer_id, store_id, transaction_date,
               total_amount::text, processed, created_timestamp
        FROM staging_store_sales_header ORDER BY transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged headers: %w", err)
	}
	headers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StagedHeader, error) {
		var h model.StagedHeader
		var total *string
		if err := row.Scan(&h.TransactionID, &h.CustomerID, &h.StoreID, &h.TransactionDate,
			&total, &h.Processed, &h.CreatedAt); err != nil {
			return h, err
		}
		var err error
		h.TotalAmount, err = parseNumeric(total)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read staged headers: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
        SELECT line_item_id, transaction_id, product_id, COALESCE(promotion_id, ''),
               quantity, line_item_amount::text, created_timestamp
        FROM staging_store_sales_line_items ORDER BY line_item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged line items: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.StagedLineItem, error) {
		var li model.StagedLineItem
		var amount *string
		if err := row.Scan(&li.LineItemID, &li.TransactionID, &li.ProductID, &li.PromotionID,
			&li.Quantity, &amount, &li.CreatedAt); err != nil {
			return li, err
		}
		var err error
		li.LineItemAmount, err = parseNumeric(amount)
		return li, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read staged line items: %w", err)
	}

	return &model.Staging{Headers: headers, LineItems: items}, nil
}

// RecordRun inserts or updates a run row.
func (s *Store) RecordRun(ctx context.Context, run store.Run) error {
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt
	}
	_, err := s.pool.Exec(ctx, `
        INSERT INTO ingest_runs (run_id, started_at, finished_at, status, version, error,
            raw_headers, raw_line_items, rejected_headers, rejected_line_items,
            staged_headers, staged_line_items)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (run_id) DO UPDATE SET
            finished_at = EXCLUDED.finished_at,
            status = EXCLUDED.status,
            error = EXCLUDED.error,
            raw_headers = EXCLUDED.raw_headers,
            raw_line_items = EXCLUDED.raw_line_items,
            rejected_headers = EXCLUDED.rejected_headers,
            rejected_line_items = EXCLUDED.rejected_line_items,
            staged_headers = EXCLUDED.staged_headers,
            staged_line_items = EXCLUDED.staged_line_items`,
		run.ID, run.StartedAt, finished, run.Status, run.Version, nullText(run.Error),
		run.RawHeaders, run.RawLineItems, run.RejectedHeaders, run.RejectedLineItems,
		run.StagedHeaders, run.StagedLineItems)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// LastRun returns the most recently started run.
func (s *Store) LastRun(ctx context.Context) (*store.Run, error) {
	var run store.Run
	var finished *time.Time
	err := s.pool.QueryRow(ctx, `
        SELECT run_id, started_at, finished_at, status, version, COALESCE(error, ''),
               raw_headers, raw_line_items, rejected_headers, rejected_line_items,
               staged_headers, staged_line_items
        FROM ingest_runs ORDER BY started_at DESC LIMIT 1`).Scan(
		&run.ID, &run.StartedAt, &finished, &run.Status, &run.Version, &run.Error,
		&run.RawHeaders, &run.RawLineItems, &run.RejectedHeaders, &run.RejectedLineItems,
		&run.StagedHeaders, &run.StagedLineItems)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}
	if finished != nil {
		run.FinishedAt = *finished
	}
	return &run, nil
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// numeric renders an amount as text for a $n::text::numeric parameter.
func numeric(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseNumeric(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid numeric %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(d), nil
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

package sqlite

// Amounts are stored as decimal TEXT so they round-trip exactly; timestamps
// as RFC 3339 TEXT.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS staging_stores (
	store_id TEXT PRIMARY KEY,
	store_name TEXT,
	store_city TEXT,
	store_region TEXT,
	opening_date TEXT
);

CREATE TABLE IF NOT EXISTS staging_products (
	product_id TEXT PRIMARY KEY,
	product_name TEXT,
	product_category TEXT,
	unit_price TEXT,
	current_stock_level INTEGER
);

CREATE TABLE IF NOT EXISTS staging_customer_details (
	customer_id TEXT PRIMARY KEY,
	first_name TEXT,
	email TEXT,
	loyalty_status TEXT,
	total_loyalty_points INTEGER DEFAULT 0,
	last_purchase_date TEXT,
	segment_id TEXT
);

CREATE TABLE IF NOT EXISTS staging_promotion_details (
	promotion_id TEXT PRIMARY KEY,
	promotion_name TEXT,
	start_date TEXT,
	end_date TEXT,
	discount_percentage TEXT,
	applicable_category TEXT
);

CREATE TABLE IF NOT EXISTS staging_loyalty_rules (
	rule_id INTEGER PRIMARY KEY,
	rule_name TEXT,
	points_per_unit_spend TEXT,
	min_spend_threshold TEXT,
	bonus_points INTEGER
);

CREATE TABLE IF NOT EXISTS raw_store_sales_header (
	transaction_id TEXT PRIMARY KEY,
	customer_id TEXT,
	store_id TEXT,
	transaction_date TEXT,
	total_amount TEXT,
	load_timestamp TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS raw_store_sales_line_items (
	line_item_id INTEGER PRIMARY KEY,
	transaction_id TEXT,
	product_id TEXT,
	promotion_id TEXT,
	quantity INTEGER,
	line_item_amount TEXT,
	load_timestamp TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS quarantine_rejected_sales_header (
	transaction_id TEXT PRIMARY KEY,
	customer_id TEXT,
	store_id TEXT,
	transaction_date TEXT,
	total_amount TEXT,
	rejection_reason TEXT NOT NULL,
	rejection_timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS quarantine_rejected_sales_line_items (
	line_item_id INTEGER PRIMARY KEY,
	transaction_id TEXT,
	product_id TEXT,
	promotion_id TEXT,
	quantity INTEGER,
	line_item_amount TEXT,
	rejection_reason TEXT NOT NULL,
	rejection_timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_store_sales_header (
	transaction_id TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	store_id TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	total_amount TEXT NOT NULL,
	processed INTEGER NOT NULL DEFAULT 0,
	created_timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS staging_store_sales_line_items (
	line_item_id INTEGER PRIMARY KEY,
	transaction_id TEXT NOT NULL REFERENCES staging_store_sales_header(transaction_id),
	product_id TEXT NOT NULL,
	promotion_id TEXT,
	quantity INTEGER NOT NULL,
	line_item_amount TEXT NOT NULL,
	created_timestamp TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_staging_line_items_txn
	ON staging_store_sales_line_items(transaction_id);

CREATE TABLE IF NOT EXISTS ingest_runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	version TEXT NOT NULL,
	error TEXT,
	raw_headers INTEGER NOT NULL DEFAULT 0,
	raw_line_items INTEGER NOT NULL DEFAULT 0,
	rejected_headers INTEGER NOT NULL DEFAULT 0,
	rejected_line_items INTEGER NOT NULL DEFAULT 0,
	staged_headers INTEGER NOT NULL DEFAULT 0,
	staged_line_items INTEGER NOT NULL DEFAULT 0
);
`

// Tables in drop order (dependents first).
var tables = []string{
	"staging_store_sales_line_items",
	"staging_store_sales_header",
	"quarantine_rejected_sales_line_items",
	"quarantine_rejected_sales_header",
	"raw_store_sales_line_items",
	"raw_store_sales_header",
	"staging_loyalty_rules",
	"staging_promotion_details",
	"staging_customer_details",
	"staging_products",
	"staging_stores",
	"ingest_runs",
}

package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"storefront-backend/internal/logging"
)

// Initialize opens the SQLite database and applies connection pragmas.
func Initialize(databaseURL string) (*sql.DB, error) {
	if !strings.Contains(databaseURL, "?") && !strings.Contains(databaseURL, ":memory:") {
		databaseURL += "?_busy_timeout=30000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=1"
	}

	db, err := sql.Open("sqlite3", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if strings.Contains(databaseURL, ":memory:") {
		// Every pooled connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(0)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = memory",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			logging.Warn().Err(err).Str("pragma", pragma).Msg("Failed to set pragma")
		}
	}

	logging.Info().Msg("Database connection established successfully")
	return db, nil
}

// migration is one named, idempotent schema step.
type migration struct {
	name  string
	query string
}

var migrations = []migration{
	{"create_customers_table", createCustomersTable},
	{"create_shops_table", createShopsTable},
	{"create_products_table", createProductsTable},
	{"create_carts_table", createCartsTable},
	{"create_payment_sessions_table", createPaymentSessionsTable},
	{"create_orders_table", createOrdersTable},
	{"create_indexes", createIndexes},
	{"add_shop_phone", addShopPhone},
}

// Migrate brings the schema up to date.
func Migrate(db *sql.DB) error {
	applied, err := NewMigrationManager(db).RunMigrations()
	if err != nil {
		return err
	}
	logging.Info().Int("applied", applied).Msg("Database schema is up to date")
	return nil
}

// MigrationManager applies the migrations list in order and records each
// applied name in schema_migrations.
type MigrationManager struct {
	db *sql.DB
}

func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// RunMigrations applies every pending migration and reports how many ran.
func (m *MigrationManager) RunMigrations() (int, error) {
	if _, err := m.db.Exec(createSchemaMigrationsTable); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	done, err := m.AppliedMigrations()
	if err != nil {
		return 0, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	seen := make(map[string]bool, len(done))
	for _, name := range done {
		seen[name] = true
	}

	applied := 0
	for _, mig := range migrations {
		if seen[mig.name] {
			continue
		}
		if err := m.apply(mig); err != nil {
			return applied, fmt.Errorf("failed to run migration %s: %w", mig.name, err)
		}
		applied++
	}
	return applied, nil
}

// AppliedMigrations returns the names of executed migrations in order.
func (m *MigrationManager) AppliedMigrations() ([]string, error) {
	rows, err := m.db.Query("SELECT name FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

const createSchemaMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)
`

// apply runs one migration and its bookkeeping row in a single transaction.
func (m *MigrationManager) apply(mig migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(mig.query) {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (name) VALUES (?)", mig.name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logging.Info().Str("migration", mig.name).Msg("Migration applied")
	return nil
}

func splitStatements(query string) []string {
	var out []string
	for _, stmt := range strings.Split(query, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}

const createCustomersTable = `
CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	province TEXT NOT NULL DEFAULT '',
	district TEXT NOT NULL DEFAULT '',
	ward TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createShopsTable = `
CREATE TABLE IF NOT EXISTS shops (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	province TEXT NOT NULL DEFAULT '',
	district TEXT NOT NULL DEFAULT '',
	ward TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	ban_state TEXT NOT NULL DEFAULT 'active' CHECK (ban_state IN ('active', 'inactive', 'banned')),
	ban_reason TEXT,
	ban_duration_days INTEGER,
	ban_start DATETIME,
	followers INTEGER NOT NULL DEFAULT 0,
	rating REAL NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createProductsTable = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	shop_id TEXT NOT NULL,
	name TEXT NOT NULL,
	price INTEGER NOT NULL DEFAULT 0,
	weight INTEGER NOT NULL DEFAULT 0,
	stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	sold INTEGER NOT NULL DEFAULT 0,
	likes INTEGER NOT NULL DEFAULT 0,
	rating REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'PendingApproval',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (shop_id) REFERENCES shops(id)
)`

const createCartsTable = `
CREATE TABLE IF NOT EXISTS carts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	buyer_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (product_id) REFERENCES products(id),
	UNIQUE(buyer_id, product_id)
)`

const createPaymentSessionsTable = `
CREATE TABLE IF NOT EXISTS payment_sessions (
	id TEXT PRIMARY KEY,
	buyer_id TEXT NOT NULL,
	gateway_order_code INTEGER NOT NULL UNIQUE,
	amount INTEGER NOT NULL,
	state TEXT NOT NULL DEFAULT 'Created',
	checkout_url TEXT NOT NULL DEFAULT '',
	payment_link_id TEXT NOT NULL DEFAULT '',
	expires_at DATETIME NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_code TEXT NOT NULL UNIQUE,
	buyer_id TEXT NOT NULL,
	shop_id TEXT NOT NULL,
	product_id TEXT NOT NULL,
	product_name TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	unit_price INTEGER NOT NULL,
	total_cost INTEGER NOT NULL,
	shipping_fee INTEGER NOT NULL DEFAULT 0,
	payment_method TEXT NOT NULL CHECK (payment_method IN ('COD', 'QR')),
	payment_status TEXT NOT NULL DEFAULT 'Pending',
	status TEXT NOT NULL,
	delivery_address TEXT NOT NULL DEFAULT '',
	rating INTEGER CHECK (rating IS NULL OR (rating BETWEEN 1 AND 5)),
	rating_comment TEXT,
	cancel_reason TEXT,
	payment_session_id TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (product_id) REFERENCES products(id),
	FOREIGN KEY (payment_session_id) REFERENCES payment_sessions(id)
)`

const addShopPhone = `ALTER TABLE shops ADD COLUMN phone TEXT NOT NULL DEFAULT ''`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_shop ON orders(shop_id, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_session ON orders(payment_session_id);
CREATE INDEX IF NOT EXISTS idx_orders_product_status ON orders(product_id, status);
CREATE INDEX IF NOT EXISTS idx_products_shop ON products(shop_id);
CREATE INDEX IF NOT EXISTS idx_carts_buyer ON carts(buyer_id);
CREATE INDEX IF NOT EXISTS idx_payment_sessions_state ON payment_sessions(state, expires_at)`

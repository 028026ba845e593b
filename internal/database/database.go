package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"price-comparator-api/internal/models"
	"price-comparator-api/internal/units"
)

// DB wraps the database connection and provides methods for data access.
// It is the persistence collaborator of the engine: it hands out flat,
// already-typed record slices and never participates in price computation.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS stores (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			brand TEXT NOT NULL,
			package_quantity TEXT NOT NULL,
			package_unit TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS prices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id TEXT NOT NULL REFERENCES products(id),
			store_id TEXT NOT NULL REFERENCES stores(id),
			price TEXT NOT NULL,
			currency TEXT NOT NULL,
			entry_date TEXT NOT NULL,
			UNIQUE(product_id, store_id, entry_date)
		)`,
		`CREATE TABLE IF NOT EXISTS discounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id TEXT NOT NULL REFERENCES products(id),
			store_id TEXT NOT NULL REFERENCES stores(id),
			percentage TEXT NOT NULL,
			from_date TEXT NOT NULL,
			to_date TEXT NOT NULL,
			entry_date TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_product ON prices(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_product_store ON prices(product_id, store_id)`,
		`CREATE INDEX IF NOT EXISTS idx_discounts_product ON discounts(product_id)`,
		`CREATE INDEX IF NOT EXISTS idx_discounts_window ON discounts(from_date, to_date)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
		`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name COLLATE NOCASE)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// UpsertStore creates or updates a store.
func (db *DB) UpsertStore(store models.Store) error {
	_, err := db.conn.Exec(
		`INSERT INTO stores (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		store.ID, store.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert store %s: %w", store.ID, err)
	}
	return nil
}

// UpsertProduct creates or updates a product.
func (db *DB) UpsertProduct(p models.Product) error {
	_, err := db.conn.Exec(
		`INSERT INTO products (id, name, category, brand, package_quantity, package_unit)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			brand = excluded.brand,
			package_quantity = excluded.package_quantity,
			package_unit = excluded.package_unit`,
		p.ID, p.Name, p.Category, p.Brand, p.PackageQuantity.String(), string(p.PackageUnit),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

// InsertPrices inserts a batch of price observations in a single database
// transaction. Re-ingesting the same (product, store, entry date) row
// replaces the stored price.
func (db *DB) InsertPrices(observations []models.PriceObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO prices (product_id, store_id, price, currency, entry_date)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(product_id, store_id, entry_date) DO UPDATE SET
			price = excluded.price,
			currency = excluded.currency`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, obs := range observations {
		currency := obs.Currency
		if currency == "" {
			currency = models.DefaultCurrency
		}
		_, err := stmt.Exec(obs.ProductID, obs.StoreID, obs.Price.String(), currency, obs.EntryDate.String())
		if err != nil {
			return 0, fmt.Errorf("failed to insert price for %s at %s: %w", obs.ProductID, obs.StoreID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// InsertDiscounts inserts a batch of discounts in a single database transaction.
func (db *DB) InsertDiscounts(discounts []models.Discount) (int, error) {
	if len(discounts) == 0 {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO discounts (product_id, store_id, percentage, from_date, to_date, entry_date)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, d := range discounts {
		_, err := stmt.Exec(d.ProductID, d.StoreID, d.Percentage.String(),
			d.FromDate.String(), d.ToDate.String(), d.EntryDate.String())
		if err != nil {
			return 0, fmt.Errorf("failed to insert discount for %s at %s: %w", d.ProductID, d.StoreID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

// GetStore looks up a store by id. The boolean is false when it does not exist.
func (db *DB) GetStore(id string) (models.Store, bool, error) {
	var store models.Store
	err := db.conn.QueryRow(`SELECT id, name FROM stores WHERE id = ?`, id).
		Scan(&store.ID, &store.Name)
	if err == sql.ErrNoRows {
		return models.Store{}, false, nil
	}
	if err != nil {
		return models.Store{}, false, fmt.Errorf("failed to get store %s: %w", id, err)
	}
	return store, true, nil
}

// ListStores returns all stores ordered by id. The ordering is part of the
// engine's contract: basket tie-breaks rely on it.
func (db *DB) ListStores() ([]models.Store, error) {
	rows, err := db.conn.Query(`SELECT id, name FROM stores ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stores: %w", err)
	}
	defer rows.Close()

	var stores []models.Store
	for rows.Next() {
		var s models.Store
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

const productColumns = `id, name, category, brand, package_quantity, package_unit`

func scanProduct(rows interface{ Scan(...any) error }) (models.Product, error) {
	var (
		p        models.Product
		quantity string
		unit     string
	)
	if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &quantity, &unit); err != nil {
		return models.Product{}, err
	}

	var err error
	p.PackageQuantity, err = decimal.NewFromString(quantity)
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to parse package quantity %q: %w", quantity, err)
	}
	p.PackageUnit, err = units.Parse(unit)
	if err != nil {
		return models.Product{}, fmt.Errorf("failed to parse package unit: %w", err)
	}
	return p, nil
}

// GetProduct looks up a product by id. The boolean is false when it does not exist.
func (db *DB) GetProduct(id string) (models.Product, bool, error) {
	row := db.conn.QueryRow(`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return models.Product{}, false, nil
	}
	if err != nil {
		return models.Product{}, false, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return p, true, nil
}

// ListProducts returns all products ordered by id.
func (db *DB) ListProducts() ([]models.Product, error) {
	return db.queryProducts(`SELECT ` + productColumns + ` FROM products ORDER BY id`)
}

// ListProductsByCategory returns all products in a category ordered by id.
func (db *DB) ListProductsByCategory(category string) ([]models.Product, error) {
	return db.queryProducts(`SELECT `+productColumns+` FROM products WHERE category = ? ORDER BY id`, category)
}

// ListProductsByName returns all products whose name matches case-insensitively.
func (db *DB) ListProductsByName(name string) ([]models.Product, error) {
	return db.queryProducts(
		`SELECT `+productColumns+` FROM products WHERE name = ? COLLATE NOCASE ORDER BY id`,
		strings.TrimSpace(name),
	)
}

func (db *DB) queryProducts(query string, args ...any) ([]models.Product, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListPricesForProduct returns every price observation recorded for a product.
func (db *DB) ListPricesForProduct(productID string) ([]models.PriceObservation, error) {
	rows, err := db.conn.Query(
		`SELECT product_id, store_id, price, currency, entry_date
		FROM prices WHERE product_id = ? ORDER BY entry_date, id`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var observations []models.PriceObservation
	for rows.Next() {
		var (
			obs   models.PriceObservation
			price string
			entry string
		)
		if err := rows.Scan(&obs.ProductID, &obs.StoreID, &price, &obs.Currency, &entry); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if obs.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse price %q: %w", price, err)
		}
		if obs.EntryDate, err = models.ParseDate(entry); err != nil {
			return nil, fmt.Errorf("failed to parse entry date: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}

// ListDiscountsForProduct returns every discount recorded for a product.
func (db *DB) ListDiscountsForProduct(productID string) ([]models.Discount, error) {
	return db.queryDiscounts(
		`SELECT id, product_id, store_id, percentage, from_date, to_date, entry_date
		FROM discounts WHERE product_id = ? ORDER BY from_date, id`,
		productID,
	)
}

// ListDiscounts returns all discounts ordered by from-date.
func (db *DB) ListDiscounts() ([]models.Discount, error) {
	return db.queryDiscounts(
		`SELECT id, product_id, store_id, percentage, from_date, to_date, entry_date
		FROM discounts ORDER BY from_date, id`,
	)
}

func (db *DB) queryDiscounts(query string, args ...any) ([]models.Discount, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query discounts: %w", err)
	}
	defer rows.Close()

	var discounts []models.Discount
	for rows.Next() {
		var (
			d          models.Discount
			percentage string
			from, to   string
			entry      string
		)
		if err := rows.Scan(&d.ID, &d.ProductID, &d.StoreID, &percentage, &from, &to, &entry); err != nil {
			return nil, fmt.Errorf("failed to scan discount: %w", err)
		}
		if d.Percentage, err = decimal.NewFromString(percentage); err != nil {
			return nil, fmt.Errorf("failed to parse percentage %q: %w", percentage, err)
		}
		if d.FromDate, err = models.ParseDate(from); err != nil {
			return nil, fmt.Errorf("failed to parse from date: %w", err)
		}
		if d.ToDate, err = models.ParseDate(to); err != nil {
			return nil, fmt.Errorf("failed to parse to date: %w", err)
		}
		if d.EntryDate, err = models.ParseDate(entry); err != nil {
			return nil, fmt.Errorf("failed to parse entry date: %w", err)
		}
		discounts = append(discounts, d)
	}
	return discounts, rows.Err()
}

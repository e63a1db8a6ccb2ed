package rewear

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
)

var sqliteDialect = Dialect{Name: dialectSQLite, DriverName: "sqlite"}

var fixtureSchema = []string{
	`CREATE TABLE customers (
		customer_id INTEGER PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		city TEXT
	)`,
	`CREATE TABLE brands (brand_id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE categories (category_id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE products (
		product_id INTEGER PRIMARY KEY,
		brand_id INTEGER NOT NULL REFERENCES brands(brand_id),
		name TEXT NOT NULL
	)`,
	`CREATE TABLE product_variants (
		variant_id INTEGER PRIMARY KEY,
		product_id INTEGER NOT NULL REFERENCES products(product_id),
		color TEXT NOT NULL,
		size TEXT NOT NULL
	)`,
	`CREATE TABLE product_categories (
		product_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		PRIMARY KEY (product_id, category_id)
	)`,
	`CREATE TABLE orders (
		order_id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(customer_id),
		order_date TEXT NOT NULL
	)`,
	`CREATE TABLE order_items (
		order_item_id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(order_id),
		variant_id INTEGER NOT NULL REFERENCES product_variants(variant_id),
		quantity INTEGER NOT NULL,
		unit_price DECIMAL(10,2) NOT NULL
	)`,
}

func openFixtureDB(t *testing.T, dsn string) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range fixtureSchema {
		mustExec(t, db, stmt)
	}
	return db
}

func newFixtureDB(t *testing.T) *sqlx.DB {
	t.Helper()
	return openFixtureDB(t, ":memory:")
}

func mustExec(t *testing.T, db *sqlx.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// seedShop loads a small shop: four customers, two brands, five categories
// (two of them empty) and orders spread over three months.
func seedShop(t *testing.T, db *sqlx.DB) {
	t.Helper()

	mustExec(t, db, `INSERT INTO customers (customer_id, first_name, last_name, city) VALUES
		(1, 'Anna', 'Svensson', 'Stockholm'),
		(2, 'Erik', 'Lind', 'Göteborg'),
		(3, 'Maja', 'Berg', 'Malmö'),
		(4, 'Lisa', 'Holm', 'Uppsala')`)
	mustExec(t, db, `INSERT INTO brands (brand_id, name) VALUES (1, 'ReWear'), (2, 'Thrift Co')`)
	mustExec(t, db, `INSERT INTO categories (category_id, name) VALUES
		(1, 'Pants'), (2, 'Jackets'), (3, 'Shoes'), (4, 'Hats'), (5, 'Accessories')`)
	mustExec(t, db, `INSERT INTO products (product_id, brand_id, name) VALUES
		(1, 1, 'Slim Chinos'),
		(2, 2, 'Cargo Pants'),
		(3, 1, 'Denim Jacket'),
		(4, 2, 'Rain Jacket'),
		(5, 1, 'Canvas Sneakers')`)
	mustExec(t, db, `INSERT INTO product_categories (product_id, category_id) VALUES
		(1, 1), (2, 1), (3, 2), (4, 2), (5, 3)`)
	mustExec(t, db, `INSERT INTO product_variants (variant_id, product_id, color, size) VALUES
		(1, 1, 'Black', '38'),
		(2, 1, 'Black', '40'),
		(3, 1, 'Blue', '38'),
		(4, 2, 'Black', '38'),
		(5, 3, 'Blue', 'M'),
		(6, 4, 'Yellow', 'L'),
		(7, 5, 'White', '41')`)
	mustExec(t, db, `INSERT INTO orders (order_id, customer_id, order_date) VALUES
		(1, 1, '2024-01-10 10:00:00'),
		(2, 1, '2024-03-02 12:30:00'),
		(3, 2, '2024-01-21 09:15:00'),
		(4, 3, '2024-02-14 16:45:00'),
		(5, 4, '2024-03-28 11:00:00')`)
	mustExec(t, db, `INSERT INTO order_items (order_item_id, order_id, variant_id, quantity, unit_price) VALUES
		(1, 1, 1, 1, 400),
		(2, 1, 5, 1, 600),
		(3, 2, 1, 1, 400),
		(4, 3, 2, 2, 250),
		(5, 4, 4, 1, 300),
		(6, 4, 7, 2, 300),
		(7, 5, 3, 1, 350),
		(8, 5, 6, 1, 750)`)
}

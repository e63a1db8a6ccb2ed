package rewear

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

const (
	reportCustomersVariant = "customers-variant"
	reportCategoryCounts   = "category-counts"
	reportCustomerSpend    = "customer-spend"
	reportCityTotals       = "city-totals"
	reportTopProducts      = "top-products"
	reportBestMonth        = "best-month"

	noOrdersMessage = "No orders found."
)

// ReportOptions holds the filter values bound into the catalog statements.
type ReportOptions struct {
	Brand    string
	Color    string
	Size     string
	Category string

	MinCityTotal float64
	TopLimit     int
}

// DefaultReportOptions returns the demo filter: black ReWear pants in size
// 38, cities above 1000 and a top five.
func DefaultReportOptions() ReportOptions {
	return ReportOptions{
		Brand:        "ReWear",
		Color:        "Black",
		Size:         "38",
		Category:     "Pants",
		MinCityTotal: 1000,
		TopLimit:     5,
	}
}

func (o ReportOptions) validate() error {
	if strings.TrimSpace(o.Brand) == "" || strings.TrimSpace(o.Color) == "" ||
		strings.TrimSpace(o.Size) == "" || strings.TrimSpace(o.Category) == "" {
		return errors.New("--brand, --color, --size and --category cannot be empty")
	}
	if o.TopLimit <= 0 {
		return errors.New("--top must be > 0")
	}
	return nil
}

// Report is one entry of the fixed report catalog.
type Report struct {
	Number int
	Key    string

	title func(opts ReportOptions) string
	run   func(ctx context.Context, r *Runner, d Dialect, opts ReportOptions) (int, error)
}

// Heading is the line printed above the report's table.
func (rep Report) Heading(opts ReportOptions) string {
	return fmt.Sprintf("== %d) %s ==", rep.Number, rep.title(opts))
}

// Catalog returns the six reports in print order.
func Catalog() []Report {
	return []Report{
		{
			Number: 1,
			Key:    reportCustomersVariant,
			title: func(o ReportOptions) string {
				return fmt.Sprintf("Customers who bought '%s %s size %s' (%s)",
					strings.ToLower(o.Color), strings.ToLower(o.Category), o.Size, o.Brand)
			},
			run: func(ctx context.Context, r *Runner, d Dialect, o ReportOptions) (int, error) {
				return r.Table(ctx, customersByVariantSQL, o.Brand, o.Color, o.Size, o.Category)
			},
		},
		{
			Number: 2,
			Key:    reportCategoryCounts,
			title:  func(ReportOptions) string { return "Product count per category" },
			run: func(ctx context.Context, r *Runner, d Dialect, o ReportOptions) (int, error) {
				return r.Table(ctx, productCountPerCategorySQL)
			},
		},
		{
			Number: 3,
			Key:    reportCustomerSpend,
			title:  func(ReportOptions) string { return "Total spend per customer" },
			run: func(ctx context.Context, r *Runner, d Dialect, o ReportOptions) (int, error) {
				return r.Table(ctx, totalSpendPerCustomerSQL)
			},
		},
		{
			Number: 4,
			Key:    reportCityTotals,
			title: func(o ReportOptions) string {
				return fmt.Sprintf("Total order value per city (>%s SEK)", strconv.FormatFloat(o.MinCityTotal, 'f', -1, 64))
			},
			run: func(ctx context.Context, r *Runner, d Dialect, o ReportOptions) (int, error) {
				return r.Table(ctx, orderValuePerCitySQL, o.MinCityTotal)
			},
		},
		{
			Number: 5,
			Key:    reportTopProducts,
			title: func(o ReportOptions) string {
				return fmt.Sprintf("Top-%d most sold products", o.TopLimit)
			},
			run: func(ctx context.Context, r *Runner, d Dialect, o ReportOptions) (int, error) {
				return r.Table(ctx, topProductsSQL, o.TopLimit)
			},
		},
		{
			Number: 6,
			Key:    reportBestMonth,
			title:  func(ReportOptions) string { return "Best-selling month (YYYY-MM)" },
			run:    runBestMonth,
		},
	}
}

// selectReports resolves report keys to catalog entries, keeping catalog
// order. No keys selects every report.
func selectReports(keys []string) ([]Report, error) {
	all := Catalog()
	if len(keys) == 0 {
		return all, nil
	}

	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if n, err := strconv.Atoi(k); err == nil && n >= 1 && n <= len(all) {
			k = all[n-1].Key
		}
		wanted[k] = struct{}{}
	}

	out := make([]Report, 0, len(wanted))
	for _, rep := range all {
		if _, ok := wanted[rep.Key]; ok {
			out = append(out, rep)
			delete(wanted, rep.Key)
		}
	}
	if len(wanted) > 0 {
		unknown := slices.Sorted(maps.Keys(wanted))
		return nil, fmt.Errorf("unknown report(s): %s (expected one of %s)", strings.Join(unknown, ", "), strings.Join(reportKeys(), ", "))
	}
	return out, nil
}

func reportKeys() []string {
	all := Catalog()
	keys := make([]string, 0, len(all))
	for _, rep := range all {
		keys = append(keys, rep.Key)
	}
	return keys
}

const customersByVariantSQL = `
SELECT DISTINCT c.first_name, c.last_name
FROM customers c
JOIN orders o ON o.customer_id = c.customer_id
JOIN order_items oi ON oi.order_id = o.order_id
JOIN product_variants pv ON pv.variant_id = oi.variant_id
JOIN products p ON p.product_id = pv.product_id
JOIN brands b ON b.brand_id = p.brand_id
JOIN product_categories pc ON pc.product_id = p.product_id
JOIN categories cat ON cat.category_id = pc.category_id
WHERE b.name = ? AND pv.color = ? AND pv.size = ? AND cat.name = ?
ORDER BY c.last_name, c.first_name`

const productCountPerCategorySQL = `
SELECT cat.name AS category, COUNT(DISTINCT pc.product_id) AS product_count
FROM categories cat
LEFT JOIN product_categories pc ON pc.category_id = cat.category_id
GROUP BY cat.category_id, cat.name
ORDER BY product_count DESC, category`

const totalSpendPerCustomerSQL = `
SELECT c.first_name, c.last_name, SUM(oi.quantity * oi.unit_price) AS total_spent
FROM customers c
JOIN orders o ON o.customer_id = c.customer_id
JOIN order_items oi ON oi.order_id = o.order_id
GROUP BY c.customer_id, c.first_name, c.last_name
ORDER BY total_spent DESC, c.last_name, c.first_name`

const orderValuePerCitySQL = `
SELECT c.city, SUM(oi.quantity * oi.unit_price) AS city_total
FROM customers c
JOIN orders o ON o.customer_id = c.customer_id
JOIN order_items oi ON oi.order_id = o.order_id
GROUP BY c.city
HAVING SUM(oi.quantity * oi.unit_price) > ?
ORDER BY city_total DESC, c.city`

// Ties at the cut-off are not widened: LIMIT is a hard row cap.
const topProductsSQL = `
SELECT p.name AS product, SUM(oi.quantity) AS total_quantity
FROM order_items oi
JOIN product_variants pv ON pv.variant_id = oi.variant_id
JOIN products p ON p.product_id = pv.product_id
GROUP BY p.product_id, p.name
ORDER BY total_quantity DESC, product
LIMIT ?`

func monthlySalesSQL(d Dialect) string {
	ym := d.YearMonth("o.order_date")
	return `
SELECT SUM(oi.quantity * oi.unit_price) AS total_sales
FROM orders o
JOIN order_items oi ON oi.order_id = o.order_id
GROUP BY ` + ym + `
ORDER BY total_sales DESC
LIMIT 1`
}

// bestMonthsSQL joins every month's total against the maximum of the same
// aggregate, so all tied months come back from one statement.
func bestMonthsSQL(d Dialect) string {
	ym := d.YearMonth("o.order_date")
	return `
SELECT m.ym, m.total_sales
FROM (
	SELECT ` + ym + ` AS ym, SUM(oi.quantity * oi.unit_price) AS total_sales
	FROM orders o
	JOIN order_items oi ON oi.order_id = o.order_id
	GROUP BY ` + ym + `
) m
JOIN (
	SELECT MAX(t.total_sales) AS max_sales
	FROM (
		SELECT SUM(oi.quantity * oi.unit_price) AS total_sales
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.order_id
		GROUP BY ` + ym + `
	) t
) mx ON m.total_sales = mx.max_sales
ORDER BY m.ym`
}

func runBestMonth(ctx context.Context, r *Runner, d Dialect, _ ReportOptions) (int, error) {
	var top any
	err := r.db.QueryRowxContext(ctx, monthlySalesSQL(d)).Scan(&top)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, r.Println(noOrdersMessage)
	}
	if err != nil {
		return 0, err
	}
	return r.Table(ctx, bestMonthsSQL(d))
}

func allCatalogStatements(d Dialect) []string {
	return []string{
		customersByVariantSQL,
		productCountPerCategorySQL,
		totalSpendPerCustomerSQL,
		orderValuePerCitySQL,
		topProductsSQL,
		monthlySalesSQL(d),
		bestMonthsSQL(d),
	}
}

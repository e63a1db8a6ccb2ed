package rewear

import (
	"context"
	"fmt"
	"strings"
)

// requiredTables are the tables the report catalog reads.
var requiredTables = []string{
	"brands",
	"categories",
	"customers",
	"order_items",
	"orders",
	"product_categories",
	"product_variants",
	"products",
}

type tableDef struct {
	Name    string
	Columns []columnDef
}

type columnDef struct {
	Name string `db:"column_name"`
	Type string `db:"data_type"`
}

// introspectSchema lists tables and their columns. Table names are fully
// read before column queries run, since all statements share one connection.
func introspectSchema(ctx context.Context, db DBTX, d Dialect) ([]tableDef, error) {
	var tablesQuery, columnsQuery string

	switch d.Name {
	case dialectSQLite:
		tablesQuery = `
			SELECT name
			FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
			ORDER BY name`
		columnsQuery = `
			SELECT name AS column_name, type AS data_type
			FROM pragma_table_info(?)
			ORDER BY cid`
	case dialectPostgres:
		tablesQuery = `
			SELECT table_name
			FROM information_schema.tables
			WHERE table_type = 'BASE TABLE'
			  AND table_schema = current_schema()
			ORDER BY table_name`
		columnsQuery = `
			SELECT column_name AS column_name, data_type AS data_type
			FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ?
			ORDER BY ordinal_position`
	case dialectMySQL:
		tablesQuery = `
			SELECT table_name AS table_name
			FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
			ORDER BY table_name`
		columnsQuery = `
			SELECT column_name AS column_name, data_type AS data_type
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`
	default:
		return nil, fmt.Errorf("unsupported database type %q", d.Name)
	}

	var names []string
	if err := db.SelectContext(ctx, &names, tablesQuery); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	out := make([]tableDef, 0, len(names))
	for _, name := range names {
		var cols []columnDef
		if err := db.SelectContext(ctx, &cols, db.Rebind(columnsQuery), name); err != nil {
			return nil, fmt.Errorf("list columns of %s: %w", name, err)
		}
		out = append(out, tableDef{Name: name, Columns: cols})
	}
	return out, nil
}

// missingTables returns the required tables absent from tables, in
// requiredTables order.
func missingTables(tables []tableDef) []string {
	present := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		present[strings.ToLower(t.Name)] = struct{}{}
	}

	var missing []string
	for _, name := range requiredTables {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func renderSchema(tables []tableDef) string {
	rows := make([][]string, 0, len(tables))
	for _, t := range tables {
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			cols = append(cols, strings.TrimSpace(c.Name+" "+c.Type))
		}
		rows = append(rows, []string{t.Name, strings.Join(cols, ", ")})
	}
	return renderGrid([]string{"table", "columns"}, rows)
}

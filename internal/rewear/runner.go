package rewear

import (
	"context"
	"fmt"
	"io"
)

// Runner executes statements on one connection and writes each result set
// as a text table.
type Runner struct {
	db  DBTX
	out io.Writer
}

// NewRunner returns a Runner writing to out.
func NewRunner(db DBTX, out io.Writer) *Runner {
	return &Runner{db: db, out: out}
}

// Run writes title, then executes query with positional args and writes the
// table. It returns the number of rows rendered. Nothing but the title is
// written when the query fails.
func (r *Runner) Run(ctx context.Context, title, query string, args ...any) (int, error) {
	if err := r.Println(title); err != nil {
		return 0, err
	}
	return r.Table(ctx, query, args...)
}

// Table executes query and writes its result set without a title.
func (r *Runner) Table(ctx context.Context, query string, args ...any) (int, error) {
	columns, rows, err := executeQuery(ctx, r.db, query, args...)
	if err != nil {
		return 0, err
	}
	if err := writeTable(r.out, columns, rows); err != nil {
		return 0, fmt.Errorf("write result: %w", err)
	}
	return len(rows), nil
}

// Println writes one line of plain text.
func (r *Runner) Println(line string) error {
	_, err := fmt.Fprintln(r.out, line)
	return err
}

// executeQuery rebinds '?' placeholders to the driver's style only when args
// are given, so a statement without parameters is sent unchanged.
func executeQuery(ctx context.Context, db DBTX, query string, args ...any) ([]string, [][]any, error) {
	if len(args) > 0 {
		query = db.Rebind(query)
	}
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	result := make([][]any, 0)
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, nil, err
		}
		result = append(result, values)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return columns, result, nil
}

package rewear

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	columnSeparator = " | "
	separatorWidth  = 40
)

// writeTable renders a result set as a pipe-delimited header, a fixed
// separator line and one line per row. Columns are not aligned and values
// are written as the driver returns them.
func writeTable(w io.Writer, columns []string, rows [][]any) error {
	var b strings.Builder
	b.WriteString(strings.Join(columns, columnSeparator))
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", separatorWidth))
	b.WriteByte('\n')

	cells := make([]string, len(columns))
	for _, row := range rows {
		for i := range cells {
			var v any
			if i < len(row) {
				v = row[i]
			}
			cells[i] = formatCellValue(v)
		}
		b.WriteString(strings.Join(cells, columnSeparator))
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderGrid draws an aligned, boxed table for history and schema listings.
// Line breaks inside a cell are folded to spaces to keep the box intact.
func renderGrid(columns []string, rows [][]string) string {
	if len(columns) == 0 {
		return "No rows returned."
	}

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i := range columns {
			if i < len(row) {
				cells[r][i] = flattenLine(row[i])
			}
			if len(cells[r][i]) > widths[i] {
				widths[i] = len(cells[r][i])
			}
		}
	}

	hline := buildHorizontalLine(widths)
	var b strings.Builder
	b.WriteString(hline)
	b.WriteByte('\n')
	b.WriteString(buildTableRow(columns, widths))
	b.WriteByte('\n')
	b.WriteString(hline)
	b.WriteByte('\n')

	for _, line := range cells {
		b.WriteString(buildTableRow(line, widths))
		b.WriteByte('\n')
	}

	b.WriteString(hline)
	if len(rows) == 0 {
		b.WriteString("\n(0 rows)")
	}

	return b.String()
}

func buildHorizontalLine(widths []int) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteByte('+')
	}
	return b.String()
}

func buildTableRow(values []string, widths []int) string {
	var b strings.Builder
	b.WriteByte('|')
	for i, v := range values {
		b.WriteByte(' ')
		b.WriteString(v)
		if padding := widths[i] - len(v); padding > 0 {
			b.WriteString(strings.Repeat(" ", padding))
		}
		b.WriteString(" |")
	}
	return b.String()
}

func formatCellValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.DateTime)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func flattenLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

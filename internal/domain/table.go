package domain

import "strings"

// Table is a raw tabular source as read from a spreadsheet sheet or a CSV file.
// Column names vary across sources; nothing about the layout is assumed here.
type Table struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Cell returns the trimmed value at row/col, or "" when the row is short
// or col is negative.
func (t *Table) Cell(row, col int) string {
	if col < 0 || row < 0 || row >= len(t.Rows) {
		return ""
	}
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

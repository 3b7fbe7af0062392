package models

import (
	"sort"
	"time"
)

// Record represents a single narrow time-series fact.
// This is the backend-native unit for the time-series adapter: one
// measurement, one timestamp, identity tags and the stored fields.
type Record struct {
	Measurement string                 `json:"measurement"`
	Time        time.Time              `json:"time"`
	Tags        map[string]string      `json:"tags"`
	Fields      map[string]interface{} `json:"fields"`
}

// Row is one wide row: tag columns, the time column and one column per field.
// A field that has no value for the row is absent from the map.
type Row map[string]interface{}

// Table is the caller-visible wide result of a read.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewTable builds a table from rows, deriving the column list from the
// union of row keys in sorted order.
func NewTable(rows []Row) *Table {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return &Table{Columns: columns, Rows: rows}
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Records returns the rows as a sequence of plain mappings.
func (t *Table) Records() []map[string]interface{} {
	if t == nil {
		return nil
	}
	out := make([]map[string]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = map[string]interface{}(row)
	}
	return out
}

// Column returns every value of the named column, nil where the row has none.
func (t *Table) Column(name string) []interface{} {
	if t == nil {
		return nil
	}
	values := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[name]
	}
	return values
}

// RenameColumn renames a column in the header and in every row.
func (t *Table) RenameColumn(from, to string) {
	if t == nil || from == to {
		return
	}
	for i, c := range t.Columns {
		if c == from {
			t.Columns[i] = to
		}
	}
	for _, row := range t.Rows {
		if v, ok := row[from]; ok {
			delete(row, from)
			row[to] = v
		}
	}
}

// PutResult reports how many records a write accepted and rejected.
type PutResult struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

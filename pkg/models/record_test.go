package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTable_ColumnsAreSortedUnion(t *testing.T) {
	table := NewTable([]Row{
		{"host": "a", "cpu": 1.0},
		{"host": "b", "mem": 2.0},
	})

	assert.Equal(t, []string{"cpu", "host", "mem"}, table.Columns)
	assert.Equal(t, 2, table.Len())
}

func TestTable_Column(t *testing.T) {
	table := NewTable([]Row{
		{"host": "a", "cpu": 1.0},
		{"host": "b"},
	})

	assert.Equal(t, []interface{}{1.0, nil}, table.Column("cpu"))
}

func TestTable_RenameColumn(t *testing.T) {
	table := NewTable([]Row{{"_time": 1, "v": 2}})
	table.RenameColumn("_time", "ts")

	assert.Contains(t, table.Columns, "ts")
	assert.NotContains(t, table.Columns, "_time")
	assert.Equal(t, 1, table.Rows[0]["ts"])
	_, ok := table.Rows[0]["_time"]
	assert.False(t, ok)
}

func TestTable_NilSafe(t *testing.T) {
	var table *Table
	assert.Equal(t, 0, table.Len())
	assert.Nil(t, table.Records())
	table.RenameColumn("a", "b")
}

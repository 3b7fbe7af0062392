package influx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func narrow(ts time.Time, field string, value interface{}, tags map[string]interface{}) map[string]interface{} {
	rec := map[string]interface{}{
		"result":       "_result",
		"table":        int64(0),
		"_start":       time.Unix(0, 0).UTC(),
		"_stop":        ts.Add(time.Hour),
		"_time":        ts,
		"_measurement": "m",
		"_field":       field,
		"_value":       value,
	}
	for k, v := range tags {
		rec[k] = v
	}
	return rec
}

func TestReshape_PivotsFieldsIntoColumns(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	table, err := reshape([]map[string]interface{}{
		narrow(t2, "cpu", 2.0, map[string]interface{}{"host": "a"}),
		narrow(t1, "cpu", 1.0, map[string]interface{}{"host": "b"}),
		narrow(t1, "mem", 10.0, map[string]interface{}{"host": "a"}),
		narrow(t1, "cpu", 3.0, map[string]interface{}{"host": "a"}),
	}, reshapeOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"host", "_time", "cpu", "mem"}, table.Columns)
	assert.Equal(t, []map[string]interface{}{
		{"host": "a", "_time": t1, "cpu": 3.0, "mem": 10.0},
		{"host": "a", "_time": t2, "cpu": 2.0},
		{"host": "b", "_time": t1, "cpu": 1.0},
	}, table.Records())
}

func TestReshape_RenamesTimeColumn(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	table, err := reshape([]map[string]interface{}{narrow(ts, "v", 1.0, nil)}, reshapeOptions{timeField: "timestamp"})
	require.NoError(t, err)

	assert.Equal(t, []string{"timestamp", "v"}, table.Columns)
	assert.Equal(t, ts, table.Rows[0]["timestamp"])
}

func TestReshape_ParsesTimeStrings(t *testing.T) {
	rec := narrow(time.Time{}, "v", 1.0, nil)
	rec["_time"] = "2024-01-01T00:00:00Z"

	table, err := reshape([]map[string]interface{}{rec}, reshapeOptions{})
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(table.Rows[0]["_time"].(time.Time)))

	rec["_time"] = "garbage"
	_, err = reshape([]map[string]interface{}{rec}, reshapeOptions{})
	assert.Error(t, err)
}

func TestReshape_ReservedColumnsAreConfigurable(t *testing.T) {
	saved := ReservedColumns
	t.Cleanup(func() { ReservedColumns = saved })

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := narrow(ts, "v", 1.0, map[string]interface{}{"host": "a", "internal": "x"})

	ReservedColumns = append(append([]string{}, saved...), "internal")
	table, err := reshape([]map[string]interface{}{rec}, reshapeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "_time", "v"}, table.Columns)
}

func TestReshape_Empty(t *testing.T) {
	table, err := reshape(nil, reshapeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"json object", `{"a": 1, "b": "x"}`, map[string]interface{}{"a": float64(1), "b": "x"}},
		{"single quoted keys", `{'side': 'buy', 'qty': 2}`, map[string]interface{}{"side": "buy", "qty": 2}},
		{"empty mapping", `{}`, map[string]interface{}{}},
		{"plain text in braces", `{hello world}`, `{hello world}`},
		{"broken mapping", `{a: [1, 2}`, `{a: [1, 2}`},
		{"not braced", `a: 1`, `a: 1`},
		{"number", 42, 42},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseStructured(tt.in))
		})
	}
}

package influx

import (
	"testing"
	"time"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelectQuery(t *testing.T) {
	tests := []struct {
		name        string
		bucket      string
		measurement string
		query       backend.Query
		want        string
	}{
		{
			name:   "bucket only",
			bucket: "metrics",
			want:   `from(bucket: "metrics") |> range(start: 0)`,
		},
		{
			name:        "measurement",
			bucket:      "metrics",
			measurement: "cpu",
			want:        `from(bucket: "metrics") |> range(start: 0) |> filter(fn: (r) => r._measurement == "cpu")`,
		},
		{
			name:        "filter keys are sorted and conjoined",
			bucket:      "metrics",
			measurement: "cpu",
			query:       backend.Query{Filter: map[string]interface{}{"region": "eu", "host": "a", "core": 3}},
			want: `from(bucket: "metrics") |> range(start: 0) |> filter(fn: (r) => r._measurement == "cpu")` +
				` |> filter(fn: (r) => r["core"] == "3" and r["host"] == "a" and r["region"] == "eu")`,
		},
		{
			name:   "projection keeps order",
			bucket: "metrics",
			query:  backend.Query{Projection: []string{"user", "idle"}},
			want:   `from(bucket: "metrics") |> range(start: 0) |> filter(fn: (r) => r._field == "user" or r._field == "idle")`,
		},
		{
			name:        "all clauses in fixed order",
			bucket:      "b",
			measurement: "m",
			query: backend.Query{
				Filter:     map[string]interface{}{"k": "v"},
				Projection: []string{"f"},
				Limit:      10,
			},
			want: `from(bucket: "b") |> range(start: 0) |> filter(fn: (r) => r._measurement == "m")` +
				` |> filter(fn: (r) => r["k"] == "v")` +
				` |> filter(fn: (r) => r._field == "f")` +
				` |> limit(n: 10)`,
		},
		{
			name:   "non-positive limit is ignored",
			bucket: "b",
			query:  backend.Query{Limit: -1},
			want:   `from(bucket: "b") |> range(start: 0)`,
		},
		{
			name:        "string literals are escaped",
			bucket:      `we"ird`,
			measurement: `a\b`,
			query:       backend.Query{Filter: map[string]interface{}{"k": "${x}"}},
			want: `from(bucket: "we\"ird") |> range(start: 0) |> filter(fn: (r) => r._measurement == "a\\b")` +
				` |> filter(fn: (r) => r["k"] == "\${x}")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildSelectQuery(tt.bucket, tt.measurement, tt.query))
		})
	}
}

func TestBuildCountQuery(t *testing.T) {
	assert.Equal(t,
		`from(bucket: "b") |> range(start: -365d) |> filter(fn: (r) => r["_measurement"] == "m") |> count(column: "_value")`,
		buildCountQuery("b", "m", DefaultSizeWindow))

	assert.Equal(t,
		`from(bucket: "b") |> range(start: 0) |> count(column: "_value")`,
		buildCountQuery("b", "", 0))
}

func TestBuildDeletePredicate(t *testing.T) {
	assert.Equal(t, `_measurement="cpu" AND dc="eu" AND host="a"`,
		buildDeletePredicate("cpu", map[string]string{"host": "a", "dc": "eu"}))
	assert.Equal(t, `_measurement="cpu"`, buildDeletePredicate("cpu", nil))
	assert.Equal(t, `_measurement="" AND host="a"`, buildDeletePredicate("", map[string]string{"host": "a"}))
	assert.Equal(t, `_measurement=""`, buildDeletePredicate("", nil))
	assert.Equal(t, `_measurement="c\"pu"`, buildDeletePredicate(`c"pu`, nil))
}

func TestFluxDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{365 * 24 * time.Hour, "365d"},
		{36 * time.Hour, "36h"},
		{90 * time.Minute, "90m"},
		{1500 * time.Millisecond, "1500ms"},
		{3 * time.Microsecond, "3us"},
		{7, "7ns"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fluxDuration(tt.d))
	}
}

func TestSumCounts(t *testing.T) {
	n, err := sumCounts([]map[string]interface{}{
		{"_value": int64(3)},
		{"_value": 4},
		{"_value": nil},
		{"other": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = sumCounts([]map[string]interface{}{{"_value": "many"}})
	assert.Error(t, err)
}

package influx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/spf13/cast"
)

// buildSelectQuery synthesizes the Flux for a read. Clauses are always
// emitted in this order: bucket over the full range, measurement, tag and
// field equality (AND), projected fields (OR), limit.
func buildSelectQuery(bucket, measurement string, q backend.Query) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s) |> range(start: 0)", fluxString(bucket))

	if measurement != "" {
		fmt.Fprintf(&b, " |> filter(fn: (r) => r._measurement == %s)", fluxString(measurement))
	}

	if len(q.Filter) > 0 {
		keys := make([]string, 0, len(q.Filter))
		for k := range q.Filter {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		conds := make([]string, len(keys))
		for i, k := range keys {
			conds[i] = fmt.Sprintf("r[%s] == %s", fluxString(k), fluxString(cast.ToString(q.Filter[k])))
		}
		fmt.Fprintf(&b, " |> filter(fn: (r) => %s)", strings.Join(conds, " and "))
	}

	if len(q.Projection) > 0 {
		conds := make([]string, len(q.Projection))
		for i, field := range q.Projection {
			conds[i] = "r._field == " + fluxString(field)
		}
		fmt.Fprintf(&b, " |> filter(fn: (r) => %s)", strings.Join(conds, " or "))
	}

	if q.Limit > 0 {
		fmt.Fprintf(&b, " |> limit(n: %d)", q.Limit)
	}
	return b.String()
}

// buildCountQuery counts the values of measurement over the last window,
// or since the epoch when window is zero.
func buildCountQuery(bucket, measurement string, window time.Duration) string {
	start := "0"
	if window > 0 {
		start = "-" + fluxDuration(window)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s) |> range(start: %s)", fluxString(bucket), start)
	if measurement != "" {
		fmt.Fprintf(&b, ` |> filter(fn: (r) => r["_measurement"] == %s)`, fluxString(measurement))
	}
	b.WriteString(` |> count(column: "_value")`)
	return b.String()
}

// buildDeletePredicate conjoins measurement equality with equality on
// every tag, tags in key order.
func buildDeletePredicate(measurement string, tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// The measurement clause is always present: an empty predicate deletes
	// the whole bucket.
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, "_measurement="+predicateString(measurement))
	for _, k := range keys {
		parts = append(parts, k+"="+predicateString(tags[k]))
	}
	return strings.Join(parts, " AND ")
}

// sumCounts adds up the _value column of count() results, one per table.
func sumCounts(records []map[string]interface{}) (int64, error) {
	var total int64
	for _, rec := range records {
		v, ok := rec["_value"]
		if !ok || v == nil {
			continue
		}
		n, err := cast.ToInt64E(v)
		if err != nil {
			return 0, fmt.Errorf("influx: unexpected count value %v: %w", v, err)
		}
		total += n
	}
	return total, nil
}

var fluxEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`)

func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

var predicateEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func predicateString(s string) string {
	return `"` + predicateEscaper.Replace(s) + `"`
}

var fluxUnits = []struct {
	unit string
	d    time.Duration
}{
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
	{"ms", time.Millisecond},
	{"us", time.Microsecond},
}

// fluxDuration renders d as a Flux duration literal in the largest unit
// that divides it exactly.
func fluxDuration(d time.Duration) string {
	for _, u := range fluxUnits {
		if d%u.d == 0 {
			return strconv.FormatInt(int64(d/u.d), 10) + u.unit
		}
	}
	return strconv.FormatInt(int64(d), 10) + "ns"
}

package influx

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/basekick-labs/databayes/pkg/models"
	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// ReservedColumns are the record columns that are never tags.
// Every other column of a returned record is treated as a tag.
var ReservedColumns = []string{
	"result",
	"table",
	"_start",
	"_stop",
	"_time",
	"_value",
	"_field",
	"_measurement",
}

type reshapeOptions struct {
	timeField string
	localTime bool
}

type wideRow struct {
	tags []interface{}
	time time.Time
	row  models.Row
}

// reshape pivots narrow records (one field value each) into one row per
// unique (tag values, time) with one column per field. A field missing for
// a row is absent from it. Rows are ordered by tag values, then time.
func reshape(records []map[string]interface{}, o reshapeOptions) (*models.Table, error) {
	reserved := make(map[string]struct{}, len(ReservedColumns))
	for _, c := range ReservedColumns {
		reserved[c] = struct{}{}
	}

	tagSet := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			if _, ok := reserved[k]; !ok {
				tagSet[k] = struct{}{}
			}
		}
	}
	tagCols := sortedKeys(tagSet)

	rows := make(map[string]*wideRow)
	order := make([]*wideRow, 0)
	fieldSet := make(map[string]struct{})

	for _, rec := range records {
		ts, err := toTime(rec[DefaultTimeField])
		if err != nil {
			return nil, fmt.Errorf("invalid %s %v: %w", DefaultTimeField, rec[DefaultTimeField], err)
		}

		tags := make([]interface{}, len(tagCols))
		for i, col := range tagCols {
			tags[i] = rec[col]
		}
		key := rowKey(tags, ts)

		wr, ok := rows[key]
		if !ok {
			wr = &wideRow{tags: tags, time: ts, row: models.Row{DefaultTimeField: ts}}
			for i, col := range tagCols {
				if tags[i] != nil {
					wr.row[col] = tags[i]
				}
			}
			rows[key] = wr
			order = append(order, wr)
		}

		field := cast.ToString(rec["_field"])
		if field == "" {
			continue
		}
		fieldSet[field] = struct{}{}
		wr.row[field] = rec["_value"]
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		for k := range a.tags {
			if c := compareCell(a.tags[k], b.tags[k]); c != 0 {
				return c < 0
			}
		}
		return a.time.Before(b.time)
	})

	table := &models.Table{
		Columns: append(append(tagCols, DefaultTimeField), sortedKeys(fieldSet)...),
		Rows:    make([]models.Row, len(order)),
	}
	for i, wr := range order {
		if o.localTime {
			wr.row[DefaultTimeField] = wr.time.In(time.Local)
		}
		for k, v := range wr.row {
			wr.row[k] = parseStructured(v)
		}
		table.Rows[i] = wr.row
	}

	if o.timeField != "" && o.timeField != DefaultTimeField {
		table.RenameColumn(DefaultTimeField, o.timeField)
	}
	return table, nil
}

// parseStructured turns text that looks like a mapping back into one.
// JSON is tried first, then a YAML flow mapping, which also covers
// single-quoted keys. Text that parses as neither is returned unchanged.
func parseStructured(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return v
	}

	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err == nil {
		return m
	}

	m = nil
	if err := yaml.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return v
	}
	// "{some text}" is a valid flow mapping with a single nil value
	for _, val := range m {
		if val == nil {
			return v
		}
	}
	return m
}

func rowKey(tags []interface{}, ts time.Time) string {
	var b strings.Builder
	for _, t := range tags {
		if t == nil {
			b.WriteString("\x01")
		} else {
			b.WriteString(cast.ToString(t))
		}
		b.WriteString("\x00")
	}
	b.WriteString(ts.UTC().Format(time.RFC3339Nano))
	return b.String()
}

// compareCell orders absent values first, then by string form
func compareCell(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(cast.ToString(a), cast.ToString(b))
}

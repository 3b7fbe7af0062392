package influx

import (
	"fmt"
	"sort"
	"time"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/pkg/models"
	"github.com/goccy/go-json"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/spf13/cast"
)

// measurementKey overrides the endpoint measurement for a single record
const measurementKey = "measurement"

// buildRecords converts caller records into narrow records for measurement
func buildRecords(data []map[string]interface{}, measurement string, o backend.WriteOptions) ([]models.Record, error) {
	index := o.IndexSet()
	records := make([]models.Record, 0, len(data))
	for i, item := range data {
		r, err := buildRecord(item, measurement, o.Index, index, o.TimeField)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// buildRecord converts one caller record.
//
// Index keys become tags. A non-primitive index value is stringified and
// used as the tag key as well as the tag value. Every other key except the
// measurement key and the time field becomes a field; non-primitive values
// are stored as their JSON text. Nil values are skipped.
func buildRecord(item map[string]interface{}, measurement string, indexKeys []string, index map[string]struct{}, timeField string) (models.Record, error) {
	if v, ok := item[measurementKey]; ok {
		measurement = cast.ToString(v)
	}
	r := models.Record{
		Measurement: measurement,
		Tags:        make(map[string]string, len(indexKeys)),
		Fields:      make(map[string]interface{}, len(item)),
	}

	if v, ok := item[timeField]; ok {
		ts, err := toTime(v)
		if err != nil {
			return models.Record{}, fmt.Errorf("invalid %s: %w", timeField, err)
		}
		r.Time = ts
	}

	for _, key := range indexKeys {
		v, ok := item[key]
		if !ok || key == timeField {
			continue
		}
		if isPrimitive(v) {
			r.Tags[key] = cast.ToString(v)
		} else {
			s := stringify(v)
			r.Tags[s] = s
		}
	}

	for key, v := range item {
		if _, ok := index[key]; ok || key == measurementKey || key == timeField {
			continue
		}
		if v == nil {
			continue
		}
		if !isPrimitive(v) {
			v = stringify(v)
		}
		r.Fields[key] = v
	}
	return r, nil
}

func buildPoints(records []models.Record) []*write.Point {
	points := make([]*write.Point, 0, len(records))
	for _, r := range records {
		points = append(points, recordPoint(r))
	}
	return points
}

// recordPoint converts a record to a point, tags and fields in key order.
// A zero time is left unset so the server assigns one.
func recordPoint(r models.Record) *write.Point {
	p := write.NewPointWithMeasurement(r.Measurement)
	if !r.Time.IsZero() {
		p.SetTime(r.Time)
	}
	for _, k := range sortedKeys(r.Tags) {
		p.AddTag(k, r.Tags[k])
	}
	for _, k := range sortedKeys(r.Fields) {
		p.AddField(k, r.Fields[k])
	}
	return p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isPrimitive reports values stored natively: strings, booleans and numbers
func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// toTime accepts time.Time, numeric epoch nanoseconds and anything
// cast can parse as a time (RFC3339 and common layouts).
func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *t, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		ns, err := cast.ToInt64E(t)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ns).UTC(), nil
	default:
		return cast.ToTimeE(v)
	}
}

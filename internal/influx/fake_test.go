package influx

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type storedValue struct {
	measurement string
	tags        map[string]string
	time        time.Time
	field       string
	value       interface{}
}

func (v *storedValue) seriesKey() string {
	keys := make([]string, 0, len(v.tags))
	for k := range v.tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(v.measurement)
	for _, k := range keys {
		fmt.Fprintf(&b, ",%s=%s", k, v.tags[k])
	}
	b.WriteString(" " + v.field)
	return b.String()
}

// fakeClient is an in-memory InfluxDB. It stores one value per
// (measurement, tags, field, time), so rewriting a point overwrites it,
// and it evaluates the Flux and delete predicates the adapter generates.
type fakeClient struct {
	pingErr   error
	writeErr  error
	queryErr  error
	deleteErr error
	bucketErr error

	buckets map[string]map[string]*storedValue
	created []string
	queries []string
	closed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{buckets: make(map[string]map[string]*storedValue)}
}

func (f *fakeClient) dial(*Config) Client { return f }

func (f *fakeClient) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	if f.bucketErr != nil {
		return false, f.bucketErr
	}
	_, ok := f.buckets[bucket]
	return ok, nil
}

func (f *fakeClient) CreateBucket(ctx context.Context, bucket string) error {
	if f.bucketErr != nil {
		return f.bucketErr
	}
	if _, ok := f.buckets[bucket]; ok {
		return fmt.Errorf("bucket %q already exists", bucket)
	}
	f.buckets[bucket] = make(map[string]*storedValue)
	f.created = append(f.created, bucket)
	return nil
}

func (f *fakeClient) DeleteBucket(ctx context.Context, bucket string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.buckets[bucket]; !ok {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	delete(f.buckets, bucket)
	return nil
}

func (f *fakeClient) WritePoints(ctx context.Context, bucket string, points []*write.Point) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	store, ok := f.buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	now := time.Now().UTC()
	for _, p := range points {
		ts := p.Time()
		if ts.IsZero() {
			ts = now
		}
		tags := make(map[string]string)
		for _, t := range p.TagList() {
			tags[t.Key] = t.Value
		}
		for _, fl := range p.FieldList() {
			v := &storedValue{measurement: p.Name(), tags: tags, time: ts, field: fl.Key, value: fl.Value}
			store[v.seriesKey()+"@"+ts.Format(time.RFC3339Nano)] = v
		}
	}
	return nil
}

var (
	reBucket  = regexp.MustCompile(`from\(bucket: "((?:[^"\\]|\\.)*)"\)`)
	reRange   = regexp.MustCompile(`range\(start: ([^)]+)\)`)
	reMeas    = regexp.MustCompile(`r\._measurement == "((?:[^"\\]|\\.)*)"`)
	reColumn  = regexp.MustCompile(`r\["((?:[^"\\]|\\.)*)"\] == "((?:[^"\\]|\\.)*)"`)
	reField   = regexp.MustCompile(`r\._field == "((?:[^"\\]|\\.)*)"`)
	reLimit   = regexp.MustCompile(`limit\(n: (\d+)\)`)
	rePred    = regexp.MustCompile(`(\w+)="((?:[^"\\]|\\.)*)"`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\"`, `"`, `\${`, `${`)
)

func (f *fakeClient) Query(ctx context.Context, flux string) ([]map[string]interface{}, error) {
	f.queries = append(f.queries, flux)
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	m := reBucket.FindStringSubmatch(flux)
	if m == nil {
		return nil, errors.New("missing bucket")
	}
	store, ok := f.buckets[unescaper.Replace(m[1])]
	if !ok {
		return nil, fmt.Errorf("bucket %q not found", m[1])
	}

	start, err := parseRangeStart(reRange.FindStringSubmatch(flux)[1])
	if err != nil {
		return nil, err
	}
	stop := time.Now().UTC()

	var measurement *string
	if mm := reMeas.FindStringSubmatch(flux); mm != nil {
		s := unescaper.Replace(mm[1])
		measurement = &s
	}
	columns := make(map[string]string)
	for _, cm := range reColumn.FindAllStringSubmatch(flux, -1) {
		columns[unescaper.Replace(cm[1])] = unescaper.Replace(cm[2])
	}
	fields := make(map[string]bool)
	for _, fm := range reField.FindAllStringSubmatch(flux, -1) {
		fields[unescaper.Replace(fm[1])] = true
	}
	limit := 0
	if lm := reLimit.FindStringSubmatch(flux); lm != nil {
		limit, _ = strconv.Atoi(lm[1])
	}

	series := make(map[string][]*storedValue)
	for _, v := range store {
		if v.time.Before(start) || v.time.After(stop) {
			continue
		}
		if measurement != nil && v.measurement != *measurement {
			continue
		}
		if len(fields) > 0 && !fields[v.field] {
			continue
		}
		if !matchColumns(v, columns) {
			continue
		}
		key := v.seriesKey()
		series[key] = append(series[key], v)
	}

	keys := make([]string, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []map[string]interface{}
	for table, key := range keys {
		values := series[key]
		sort.Slice(values, func(i, j int) bool { return values[i].time.Before(values[j].time) })

		if strings.Contains(flux, `count(column: "_value")`) {
			rec := baseRecord(values[0], table, start, stop)
			rec["_value"] = int64(len(values))
			out = append(out, rec)
			continue
		}

		if limit > 0 && len(values) > limit {
			values = values[:limit]
		}
		for _, v := range values {
			rec := baseRecord(v, table, start, stop)
			rec["_time"] = v.time
			rec["_value"] = v.value
			out = append(out, rec)
		}
	}
	return out, nil
}

func baseRecord(v *storedValue, table int, start, stop time.Time) map[string]interface{} {
	rec := map[string]interface{}{
		"result":       "_result",
		"table":        int64(table),
		"_start":       start,
		"_stop":        stop,
		"_field":       v.field,
		"_measurement": v.measurement,
	}
	for k, val := range v.tags {
		rec[k] = val
	}
	return rec
}

func matchColumns(v *storedValue, columns map[string]string) bool {
	for k, want := range columns {
		var got string
		var ok bool
		switch k {
		case "_measurement":
			got, ok = v.measurement, true
		case "_field":
			got, ok = v.field, true
		default:
			got, ok = v.tags[k]
		}
		if !ok || got != want {
			return false
		}
	}
	return true
}

func parseRangeStart(s string) (time.Time, error) {
	if s == "0" {
		return time.Unix(0, 0).UTC(), nil
	}
	if !strings.HasPrefix(s, "-") {
		return time.Time{}, fmt.Errorf("unsupported range start %q", s)
	}
	s = s[1:]
	var d time.Duration
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, err
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return time.Time{}, err
		}
	}
	return time.Now().UTC().Add(-d), nil
}

func (f *fakeClient) DeletePoints(ctx context.Context, bucket string, start, stop time.Time, predicate string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	store, ok := f.buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	columns := make(map[string]string)
	for _, pm := range rePred.FindAllStringSubmatch(predicate, -1) {
		columns[pm[1]] = unescaper.Replace(pm[2])
	}
	for key, v := range store {
		if v.time.Before(start) || v.time.After(stop) {
			continue
		}
		if matchColumns(v, columns) {
			delete(store, key)
		}
	}
	return nil
}

func (f *fakeClient) Close() { f.closed = true }

func (f *fakeClient) valueCount(bucket string) int {
	return len(f.buckets[bucket])
}

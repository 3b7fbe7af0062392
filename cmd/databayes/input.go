package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// readRecords reads a JSON array of objects, or a single object, from path.
// "-" reads from stdin. Numbers become int64 when integral, float64 otherwise.
func readRecords(path string, stdin io.Reader) ([]map[string]interface{}, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return decodeRecords(data)
}

func decodeRecords(data []byte) ([]map[string]interface{}, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []map[string]interface{}
	if data[0] == '{' {
		var one map[string]interface{}
		if err := dec.Decode(&one); err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}
		records = []map[string]interface{}{one}
	} else {
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
	}

	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("record %d is null", i)
		}
		for k, v := range r {
			r[k] = normalize(v)
		}
	}
	return records, nil
}

// normalize replaces json.Number recursively
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]interface{}:
		for k, inner := range val {
			val[k] = normalize(inner)
		}
		return val
	case []interface{}:
		for i, inner := range val {
			val[i] = normalize(inner)
		}
		return val
	default:
		return v
	}
}

// parsePairs turns ["k=v", ...] into a map. Later keys win.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid pair %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func toAnyMap(m map[string]string) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package backend

// WriteOptions carries the per-call write parameters
type WriteOptions struct {
	Index     []string
	TimeField string
}

// WriteOption configures a Put or Update call
type WriteOption func(*WriteOptions)

// WithIndex marks keys that identify a record (tags for time-series stores)
func WithIndex(keys ...string) WriteOption {
	return func(o *WriteOptions) { o.Index = append(o.Index, keys...) }
}

// WithTimeField names the record key holding the timestamp
func WithTimeField(name string) WriteOption {
	return func(o *WriteOptions) { o.TimeField = name }
}

// ApplyWriteOptions resolves opts over the adapter's default time field
func ApplyWriteOptions(defaultTimeField string, opts ...WriteOption) WriteOptions {
	o := WriteOptions{TimeField: defaultTimeField}
	for _, opt := range opts {
		opt(&o)
	}
	if o.TimeField == "" {
		o.TimeField = defaultTimeField
	}
	return o
}

// Query describes a read.
type Query struct {
	// Filter requires equality on every key
	Filter map[string]interface{}
	// Projection restricts the returned fields; empty returns all
	Projection []string
	// Limit caps the returned rows when positive
	Limit int
	// TimeField names the time column in the result; empty keeps the adapter default
	TimeField string
	// LocalTime converts timestamps to the local zone
	LocalTime bool
}

// IndexSet returns the index keys as a set
func (o WriteOptions) IndexSet() map[string]struct{} {
	set := make(map[string]struct{}, len(o.Index))
	for _, k := range o.Index {
		set[k] = struct{}{}
	}
	return set
}

package influx

import (
	"context"
	"fmt"
	"time"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/internal/logger"
	"github.com/basekick-labs/databayes/internal/metrics"
	"github.com/basekick-labs/databayes/pkg/models"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeField is the time column InfluxDB returns
	DefaultTimeField = "_time"

	// DefaultSizeWindow is the lookback Size counts over
	DefaultSizeWindow = 365 * 24 * time.Hour

	metricsLabel = "influxdb"
)

type state int

const (
	stateDisconnected state = iota
	stateConnected
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// DB is the InfluxDB v2 backend.
//
// With a non-empty Name every endpoint is a measurement inside the bucket
// Name. Otherwise endpoints are "bucket/measurement".
type DB struct {
	Name   string  `yaml:"name"`
	Config *Config `yaml:"config"`

	// SizeWindow is the lookback Size counts over; zero means DefaultSizeWindow
	SizeWindow time.Duration `yaml:"size_window"`
	// SizeAll makes Size count from the epoch, ignoring SizeWindow
	SizeAll bool `yaml:"size_all"`
	// RecreateOnReset recreates the bucket after Reset deletes it
	RecreateOnReset bool `yaml:"recreate_on_reset"`

	client Client
	dial   func(*Config) Client
	state  state
	logger *zerolog.Logger
}

var _ backend.Backend = (*DB)(nil)

// New creates a disconnected adapter
func New(name string, cfg *Config) *DB {
	return &DB{Name: name, Config: cfg}
}

func (d *DB) log() *zerolog.Logger {
	if d.logger == nil {
		l := logger.Get("influx")
		d.logger = &l
	}
	return d.logger
}

// Connect creates the client and pings the server.
// The client is kept when the ping fails; the returned error wraps
// backend.ErrConnection and later operations report their own failures.
func (d *DB) Connect(ctx context.Context) error {
	if d.state == stateClosed {
		return backend.ErrClosed
	}
	if d.Config == nil {
		d.Config = &Config{}
	}
	if d.client != nil {
		d.client.Close()
	}

	dial := d.dial
	if dial == nil {
		dial = newAPIClient
	}
	d.client = dial(d.Config)
	d.state = stateConnected

	if err := d.client.Ping(ctx); err != nil {
		d.log().Error().Err(err).Str("url", d.Config.URL).Msg("Failed to connect to InfluxDB")
		return fmt.Errorf("%w: %s: %w", backend.ErrConnection, d.Config.URL, err)
	}

	d.log().Info().Str("url", d.Config.URL).Str("org", d.Config.Org).Msg("InfluxDB connected")
	return nil
}

// Close releases the client. Safe to call more than once.
func (d *DB) Close() error {
	if d.state == stateClosed {
		return nil
	}
	if d.client != nil {
		d.client.Close()
		d.client = nil
		d.log().Info().Msg("InfluxDB connection closed")
	}
	d.state = stateClosed
	return nil
}

func (d *DB) ready() error {
	switch d.state {
	case stateConnected:
		return nil
	case stateClosed:
		return backend.ErrClosed
	default:
		return backend.ErrNotConnected
	}
}

func (d *DB) resolve(endpoint string) backend.Endpoint {
	return backend.ResolveEndpoint(d.Name, endpoint)
}

// ensureBucket creates bucket when it does not exist yet. Concurrent
// creators may race; the server's create semantics decide the outcome.
func (d *DB) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := d.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to look up bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}
	d.log().Info().Str("bucket", bucket).Msg("Creating bucket")
	if err := d.client.CreateBucket(ctx, bucket); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
	}
	return nil
}

// Put writes data to endpoint as one synchronous batch.
// Any failure rejects the whole batch.
func (d *DB) Put(ctx context.Context, endpoint string, data []map[string]interface{}, opts ...backend.WriteOption) models.PutResult {
	start := time.Now()
	o := backend.ApplyWriteOptions(DefaultTimeField, opts...)
	ep := d.resolve(endpoint)

	result, err := d.put(ctx, ep, data, o)
	if err != nil {
		d.log().Error().Err(err).Str("endpoint", endpoint).Int("records", len(data)).Msg("Failed to put data")
	}
	metrics.AddRecords(metricsLabel, result.SuccessCount, result.FailureCount)
	metrics.ObserveOperation(metricsLabel, "put", start, err == nil)
	return result
}

func (d *DB) put(ctx context.Context, ep backend.Endpoint, data []map[string]interface{}, o backend.WriteOptions) (models.PutResult, error) {
	failed := models.PutResult{FailureCount: len(data)}
	if err := d.ready(); err != nil {
		return failed, err
	}
	if err := d.ensureBucket(ctx, ep.Collection); err != nil {
		return failed, err
	}

	records, err := buildRecords(data, ep.Name, o)
	if err != nil {
		return failed, err
	}
	points := buildPoints(records)
	if len(points) > 0 {
		if err := d.client.WritePoints(ctx, ep.Collection, points); err != nil {
			return failed, fmt.Errorf("failed to write %d points to %q: %w", len(points), ep.Collection, err)
		}
	}
	return models.PutResult{SuccessCount: len(data)}, nil
}

// Update writes data as a single record, overwriting the stored point with
// the same measurement, tags and time.
func (d *DB) Update(ctx context.Context, endpoint string, data map[string]interface{}, opts ...backend.WriteOption) bool {
	result := d.Put(ctx, endpoint, []map[string]interface{}{data}, opts...)
	if result.FailureCount > 0 {
		d.log().Error().Str("endpoint", endpoint).Msg("Failed to update data")
		return false
	}
	d.log().Debug().Str("endpoint", endpoint).Msg("Data updated")
	return true
}

// Get reads endpoint and reshapes the narrow records into one row per
// (tags, time).
func (d *DB) Get(ctx context.Context, endpoint string, q backend.Query) (*models.Table, error) {
	start := time.Now()
	table, err := d.get(ctx, endpoint, q)
	metrics.ObserveOperation(metricsLabel, "get", start, err == nil)
	return table, err
}

func (d *DB) get(ctx context.Context, endpoint string, q backend.Query) (*models.Table, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	ep := d.resolve(endpoint)
	flux := buildSelectQuery(ep.Collection, ep.Name, q)
	d.log().Debug().Str("bucket", ep.Collection).Str("measurement", ep.Name).Str("query", flux).Msg("Querying InfluxDB")

	records, err := d.client.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx: query %s: %w", ep, err)
	}

	table, err := reshape(records, reshapeOptions{
		timeField: q.TimeField,
		localTime: q.LocalTime,
	})
	if err != nil {
		return nil, fmt.Errorf("influx: reshape %s: %w", ep, err)
	}
	d.log().Debug().Int("records", len(records)).Int("rows", table.Len()).Msg("Retrieved data from InfluxDB")
	return table, nil
}

// Delete removes the points of endpoint's measurement in [start, stop]
// whose tags match every entry of tags.
func (d *DB) Delete(ctx context.Context, endpoint string, start, stop time.Time, tags map[string]string) bool {
	began := time.Now()
	err := d.delete(ctx, endpoint, start, stop, tags)
	if err != nil {
		d.log().Error().Err(err).Str("endpoint", endpoint).Msg("Failed to delete data")
	}
	metrics.ObserveOperation(metricsLabel, "delete", began, err == nil)
	return err == nil
}

func (d *DB) delete(ctx context.Context, endpoint string, start, stop time.Time, tags map[string]string) error {
	if err := d.ready(); err != nil {
		return err
	}
	ep := d.resolve(endpoint)
	if ep.Name == "" {
		return fmt.Errorf("endpoint %q has no measurement", endpoint)
	}
	predicate := buildDeletePredicate(ep.Name, tags)
	if err := d.client.DeletePoints(ctx, ep.Collection, start, stop, predicate); err != nil {
		return err
	}
	d.log().Info().
		Str("bucket", ep.Collection).
		Time("start", start).
		Time("stop", stop).
		Str("predicate", predicate).
		Msg("Deleted data")
	return nil
}

// Size counts the values of endpoint's measurement over the size window.
func (d *DB) Size(ctx context.Context, endpoint string) (int64, error) {
	start := time.Now()
	n, err := d.size(ctx, endpoint)
	metrics.ObserveOperation(metricsLabel, "size", start, err == nil)
	return n, err
}

func (d *DB) size(ctx context.Context, endpoint string) (int64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	ep := d.resolve(endpoint)
	window := d.SizeWindow
	if window <= 0 {
		window = DefaultSizeWindow
	}
	if d.SizeAll {
		window = 0
	}

	flux := buildCountQuery(ep.Collection, ep.Name, window)
	d.log().Debug().Str("query", flux).Msg("Counting InfluxDB values")

	records, err := d.client.Query(ctx, flux)
	if err != nil {
		return 0, fmt.Errorf("influx: size %s: %w", ep, err)
	}
	return sumCounts(records)
}

// Reset deletes the bucket behind endpoint, or the adapter's own bucket
// when endpoint is empty. The bucket is recreated only with RecreateOnReset.
func (d *DB) Reset(ctx context.Context, endpoint string) bool {
	start := time.Now()
	err := d.reset(ctx, endpoint)
	if err != nil {
		d.log().Error().Err(err).Str("endpoint", endpoint).Msg("Failed to reset bucket")
	}
	metrics.ObserveOperation(metricsLabel, "reset", start, err == nil)
	return err == nil
}

func (d *DB) reset(ctx context.Context, endpoint string) error {
	if err := d.ready(); err != nil {
		return err
	}
	bucket := d.Name
	if endpoint != "" {
		bucket = d.resolve(endpoint).Collection
	}
	if bucket == "" {
		return fmt.Errorf("no bucket to reset")
	}

	exists, err := d.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to look up bucket %q: %w", bucket, err)
	}
	if exists {
		if err := d.client.DeleteBucket(ctx, bucket); err != nil {
			return fmt.Errorf("failed to delete bucket %q: %w", bucket, err)
		}
		d.log().Info().Str("bucket", bucket).Msg("Deleted bucket")
	}

	if d.RecreateOnReset {
		if err := d.client.CreateBucket(ctx, bucket); err != nil {
			return fmt.Errorf("failed to recreate bucket %q: %w", bucket, err)
		}
		d.log().Info().Str("bucket", bucket).Msg("Recreated bucket")
	}
	return nil
}

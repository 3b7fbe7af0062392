package mongostore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/internal/logger"
	"github.com/basekick-labs/databayes/internal/metrics"
	"github.com/basekick-labs/databayes/pkg/models"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// DefaultTimeField is the document key holding the timestamp
	DefaultTimeField = "time"

	metricsLabel = "mongodb"
)

// DB is the MongoDB backend. Endpoints are "database/collection"; with a
// non-empty Name the database is Name and the endpoint is the collection.
type DB struct {
	Name   string          `yaml:"name"`
	Config *backend.Config `yaml:"config"`

	// URI replaces the host based Config when set
	URI       string `yaml:"uri"`
	TimeField string `yaml:"time_field"`

	client *mongo.Client
	closed bool
	logger *zerolog.Logger
}

var _ backend.Backend = (*DB)(nil)

func (d *DB) log() *zerolog.Logger {
	if d.logger == nil {
		l := logger.Get("mongostore")
		d.logger = &l
	}
	return d.logger
}

func (d *DB) timeField() string {
	if d.TimeField == "" {
		return DefaultTimeField
	}
	return d.TimeField
}

func (d *DB) clientOptions() *options.ClientOptions {
	opts := options.Client()
	if d.URI != "" {
		return opts.ApplyURI(d.URI)
	}
	cfg := d.Config
	if cfg == nil {
		cfg = &backend.Config{}
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port <= 0 {
		port = 27017
	}
	opts.SetHosts([]string{net.JoinHostPort(host, strconv.Itoa(port))})
	if cfg.Username != "" {
		cred := options.Credential{Username: cfg.Username, Password: cfg.Password}
		if cfg.Database != "" {
			cred.AuthSource = cfg.Database
		}
		opts.SetAuth(cred)
	}
	return opts
}

// Connect creates the client and pings the primary. Like the InfluxDB
// adapter, the client is kept when the ping fails.
func (d *DB) Connect(ctx context.Context) error {
	if d.closed {
		return backend.ErrClosed
	}
	client, err := mongo.Connect(ctx, d.clientOptions())
	if err != nil {
		return fmt.Errorf("%w: %w", backend.ErrConnection, err)
	}
	d.client = client

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		d.log().Error().Err(err).Msg("Failed to connect to MongoDB")
		return fmt.Errorf("%w: %w", backend.ErrConnection, err)
	}
	d.log().Info().Msg("MongoDB connected")
	return nil
}

// Close disconnects the client. Safe to call more than once.
func (d *DB) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := d.client.Disconnect(ctx)
	d.client = nil
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	d.log().Info().Msg("MongoDB connection closed")
	return nil
}

func (d *DB) ready() error {
	if d.closed {
		return backend.ErrClosed
	}
	if d.client == nil {
		return backend.ErrNotConnected
	}
	return nil
}

func (d *DB) collection(endpoint string) (*mongo.Collection, backend.Endpoint, error) {
	ep := backend.ResolveEndpoint(d.Name, endpoint)
	if ep.Collection == "" || ep.Name == "" {
		return nil, ep, fmt.Errorf("endpoint %q does not name a database and collection", endpoint)
	}
	return d.client.Database(ep.Collection).Collection(ep.Name), ep, nil
}

// Put writes data as one unordered bulk write. With an index the records
// are upserted on the index keys and the time field, so rewriting a record
// replaces it. Rejected documents are counted individually.
func (d *DB) Put(ctx context.Context, endpoint string, data []map[string]interface{}, opts ...backend.WriteOption) models.PutResult {
	start := time.Now()
	result, err := d.put(ctx, endpoint, data, backend.ApplyWriteOptions(d.timeField(), opts...))
	if err != nil {
		d.log().Error().Err(err).Str("endpoint", endpoint).Int("records", len(data)).Msg("Failed to put data")
	}
	metrics.AddRecords(metricsLabel, result.SuccessCount, result.FailureCount)
	metrics.ObserveOperation(metricsLabel, "put", start, err == nil)
	return result
}

func (d *DB) put(ctx context.Context, endpoint string, data []map[string]interface{}, o backend.WriteOptions) (models.PutResult, error) {
	failed := models.PutResult{FailureCount: len(data)}
	if err := d.ready(); err != nil {
		return failed, err
	}
	if len(data) == 0 {
		return models.PutResult{}, nil
	}
	coll, _, err := d.collection(endpoint)
	if err != nil {
		return failed, err
	}

	_, err = coll.BulkWrite(ctx, buildWriteModels(data, o), options.BulkWrite().SetOrdered(false))
	if err != nil {
		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) && bwe.WriteConcernError == nil && len(bwe.WriteErrors) < len(data) {
			n := len(bwe.WriteErrors)
			return models.PutResult{SuccessCount: len(data) - n, FailureCount: n}, err
		}
		return failed, err
	}
	return models.PutResult{SuccessCount: len(data)}, nil
}

// Update upserts a single record
func (d *DB) Update(ctx context.Context, endpoint string, data map[string]interface{}, opts ...backend.WriteOption) bool {
	result := d.Put(ctx, endpoint, []map[string]interface{}{data}, opts...)
	return result.FailureCount == 0
}

// Get finds the documents of endpoint matching every filter entry, sorted by time.
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
	coll, ep, err := d.collection(endpoint)
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, buildFilter(q.Filter), findOptions(q, d.timeField()))
	if err != nil {
		return nil, fmt.Errorf("mongostore: find %s: %w", ep, err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: read %s: %w", ep, err)
	}

	table := buildTable(docs, d.timeField(), q)
	d.log().Debug().Str("endpoint", endpoint).Int("rows", table.Len()).Msg("Retrieved data from MongoDB")
	return table, nil
}

// Delete removes the documents in [start, stop] matching every tag
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
	coll, _, err := d.collection(endpoint)
	if err != nil {
		return err
	}
	res, err := coll.DeleteMany(ctx, deleteFilter(d.timeField(), start, stop, tags))
	if err != nil {
		return err
	}
	d.log().Info().Str("endpoint", endpoint).Int64("deleted", res.DeletedCount).Msg("Deleted data")
	return nil
}

// Size counts the documents of endpoint exactly
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
	coll, ep, err := d.collection(endpoint)
	if err != nil {
		return 0, err
	}
	n, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongostore: count %s: %w", ep, err)
	}
	return n, nil
}

// Reset drops the collection behind endpoint. An endpoint without a
// collection, or an empty endpoint, drops the whole database.
func (d *DB) Reset(ctx context.Context, endpoint string) bool {
	start := time.Now()
	err := d.reset(ctx, endpoint)
	if err != nil {
		d.log().Error().Err(err).Str("endpoint", endpoint).Msg("Failed to reset")
	}
	metrics.ObserveOperation(metricsLabel, "reset", start, err == nil)
	return err == nil
}

func (d *DB) reset(ctx context.Context, endpoint string) error {
	if err := d.ready(); err != nil {
		return err
	}
	target := resetTarget(d.Name, endpoint)
	if target.Collection == "" {
		return fmt.Errorf("no database to reset")
	}
	db := d.client.Database(target.Collection)
	if target.Name == "" {
		if err := db.Drop(ctx); err != nil {
			return err
		}
		d.log().Info().Str("database", target.Collection).Msg("Dropped database")
		return nil
	}
	if err := db.Collection(target.Name).Drop(ctx); err != nil {
		return err
	}
	d.log().Info().Str("collection", target.String()).Msg("Dropped collection")
	return nil
}

func resetTarget(name, endpoint string) backend.Endpoint {
	if endpoint == "" {
		return backend.Endpoint{Collection: name}
	}
	return backend.ResolveEndpoint(name, endpoint)
}

package influx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client is the subset of the InfluxDB API the adapter uses.
// Query returns every record of every result table as its value map.
type Client interface {
	Ping(ctx context.Context) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket string) error
	DeleteBucket(ctx context.Context, bucket string) error
	WritePoints(ctx context.Context, bucket string, points []*write.Point) error
	Query(ctx context.Context, flux string) ([]map[string]interface{}, error)
	DeletePoints(ctx context.Context, bucket string, start, stop time.Time, predicate string) error
	Close()
}

// apiClient implements Client on influxdb-client-go
type apiClient struct {
	client influxdb2.Client
	org    string
}

func newAPIClient(cfg *Config) Client {
	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		secs := uint(cfg.Timeout / time.Second)
		if secs == 0 {
			secs = 1
		}
		opts.SetHTTPRequestTimeout(secs)
	}
	return &apiClient{
		client: influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts),
		org:    cfg.Org,
	}
}

func (c *apiClient) Ping(ctx context.Context) error {
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("server is not ready")
	}
	return nil
}

func (c *apiClient) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := c.client.BucketsAPI().FindBucketByName(ctx, bucket)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (c *apiClient) CreateBucket(ctx context.Context, bucket string) error {
	org, err := c.client.OrganizationsAPI().FindOrganizationByName(ctx, c.org)
	if err != nil {
		return fmt.Errorf("failed to find organization %q: %w", c.org, err)
	}
	_, err = c.client.BucketsAPI().CreateBucketWithName(ctx, org, bucket)
	return err
}

func (c *apiClient) DeleteBucket(ctx context.Context, bucket string) error {
	b, err := c.client.BucketsAPI().FindBucketByName(ctx, bucket)
	if err != nil {
		return err
	}
	return c.client.BucketsAPI().DeleteBucket(ctx, b)
}

func (c *apiClient) WritePoints(ctx context.Context, bucket string, points []*write.Point) error {
	return c.client.WriteAPIBlocking(c.org, bucket).WritePoint(ctx, points...)
}

func (c *apiClient) Query(ctx context.Context, flux string) ([]map[string]interface{}, error) {
	result, err := c.client.QueryAPI(c.org).Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var records []map[string]interface{}
	for result.Next() {
		records = append(records, result.Record().Values())
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *apiClient) DeletePoints(ctx context.Context, bucket string, start, stop time.Time, predicate string) error {
	return c.client.DeleteAPI().DeleteWithName(ctx, c.org, bucket, start, stop, predicate)
}

func (c *apiClient) Close() {
	c.client.Close()
}

// isNotFound reports a missing bucket. FindBucketByName answers an empty
// listing with a plain error rather than a 404.
func isNotFound(err error) bool {
	var herr *ihttp.Error
	if errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound {
		return true
	}
	return strings.Contains(err.Error(), "not found")
}

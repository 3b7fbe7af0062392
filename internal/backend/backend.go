package backend

import (
	"context"
	"time"

	"github.com/basekick-labs/databayes/pkg/models"
)

// Connector is the lifecycle shared by every adapter, including the
// relational one that does not implement the full Backend contract.
type Connector interface {
	// Connect opens the backend handle. A failed connect may still leave the
	// adapter usable; callers detect that through later operation failures.
	Connect(ctx context.Context) error

	// Close releases the handle. Safe to call more than once.
	Close() error
}

// Backend defines the CRUD contract every storage adapter implements.
//
// Runtime I/O failures are not returned from write-side operations: Put
// reports them as counts and Update, Delete and Reset as false. Get and Size
// return the backend error.
type Backend interface {
	Connector

	// Put writes data to endpoint in one batch
	Put(ctx context.Context, endpoint string, data []map[string]interface{}, opts ...WriteOption) models.PutResult

	// Get reads endpoint back as a wide table
	Get(ctx context.Context, endpoint string, q Query) (*models.Table, error)

	// Update replaces the stored state of a single record
	Update(ctx context.Context, endpoint string, data map[string]interface{}, opts ...WriteOption) bool

	// Delete removes records in [start, stop] that match every tag
	Delete(ctx context.Context, endpoint string, start, stop time.Time, tags map[string]string) bool

	// Size counts the stored values of endpoint
	Size(ctx context.Context, endpoint string) (int64, error)

	// Reset destroys the collection behind endpoint. An empty endpoint
	// means the adapter's own name.
	Reset(ctx context.Context, endpoint string) bool
}

// Config holds host based connection parameters.
// It is consumed once, at connect time.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

package sqlstore

import (
	"context"
	"testing"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db := &DB{Driver: DriverSQLite}
	require.NoError(t, db.Connect(context.Background()))
	t.Cleanup(func() { db.Close() })

	_, err := db.Exec(context.Background(), `CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		symbol TEXT NOT NULL,
		qty REAL,
		note TEXT
	)`)
	require.NoError(t, err)
	return db
}

func TestDB_InsertAndQuery(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Insert(ctx, "orders",
		map[string]interface{}{"id": 1, "symbol": "BTC", "qty": 0.5, "note": "first"},
		map[string]interface{}{"id": 2, "symbol": "ETH", "qty": 3.0},
	)
	require.NoError(t, err)

	rows, err := db.Query(ctx, "SELECT id, symbol, qty, note FROM orders ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []models.Row{
		{"id": int64(1), "symbol": "BTC", "qty": 0.5, "note": "first"},
		{"id": int64(2), "symbol": "ETH", "qty": 3.0, "note": nil},
	}, rows)

	rows, err = db.Query(ctx, "SELECT symbol FROM orders WHERE qty > ?", 1)
	require.NoError(t, err)
	assert.Equal(t, []models.Row{{"symbol": "ETH"}}, rows)
}

func TestDB_InsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.Insert(ctx, "orders",
		map[string]interface{}{"id": 1, "symbol": "BTC"},
		map[string]interface{}{"id": 2},
	)
	require.Error(t, err)

	rows, err := db.Query(ctx, "SELECT * FROM orders")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDB_InsertNothing(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.Insert(context.Background(), "orders"))
}

func TestDB_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Insert(ctx, "orders",
		map[string]interface{}{"id": 1, "symbol": "BTC", "qty": 1.0},
		map[string]interface{}{"id": 2, "symbol": "ETH", "qty": 2.0},
		map[string]interface{}{"id": 3, "symbol": "ETH", "qty": 4.0},
	))

	n, err := db.Update(ctx, "orders", map[string]interface{}{"qty": 9.0, "note": "bumped"}, "symbol = 'ETH'")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err := db.Query(ctx, "SELECT id, qty, note FROM orders WHERE note IS NOT NULL ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []models.Row{
		{"id": int64(2), "qty": 9.0, "note": "bumped"},
		{"id": int64(3), "qty": 9.0, "note": "bumped"},
	}, rows)

	n, err = db.Delete(ctx, "orders", "id >= 2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows, err = db.Query(ctx, "SELECT id FROM orders")
	require.NoError(t, err)
	assert.Equal(t, []models.Row{{"id": int64(1)}}, rows)
}

func TestDB_RequiresCondition(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.Update(ctx, "orders", map[string]interface{}{"qty": 1}, "  ")
	assert.ErrorIs(t, err, ErrNoCondition)
	_, err = db.Delete(ctx, "orders", "")
	assert.ErrorIs(t, err, ErrNoCondition)
}

func TestDB_QueryError(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Query(context.Background(), "SELECT * FROM missing_table")
	assert.Error(t, err)
}

func TestDB_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := &DB{Driver: DriverSQLite}

	_, err := db.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, backend.ErrNotConnected)

	require.NoError(t, db.Connect(ctx))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, backend.ErrClosed)
	assert.ErrorIs(t, db.Connect(ctx), backend.ErrClosed)
}

func TestDB_UnsupportedDriver(t *testing.T) {
	db := &DB{Driver: "oracle"}
	assert.Error(t, db.Connect(context.Background()))
}

func TestDB_ScopedUse(t *testing.T) {
	db := &DB{Driver: DriverSQLite}
	err := backend.Use(context.Background(), db, func(db *DB) error {
		_, err := db.Query(context.Background(), "SELECT 1 AS one")
		return err
	})
	require.NoError(t, err)
	assert.True(t, db.closed)
}

func TestStatements(t *testing.T) {
	mysqlDB := &DB{dialect: dialects[DriverMySQL]}
	pgDB := &DB{dialect: dialects[DriverPostgres]}

	assert.Equal(t, "INSERT INTO t (a, b) VALUES (?, ?)", mysqlDB.insertStatement("t", []string{"a", "b"}))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", pgDB.insertStatement("t", []string{"a", "b"}))
	assert.Equal(t, "UPDATE t SET a = $1, b = $2 WHERE id = 1", pgDB.updateStatement("t", []string{"a", "b"}, "id = 1"))
	assert.Equal(t, "UPDATE t SET a = ? WHERE x", mysqlDB.updateStatement("t", []string{"a"}, "x"))
}

func TestUnionColumns(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, unionColumns([]map[string]interface{}{
		{"c": 1, "a": 2},
		{"b": 3},
	}))
}

func TestDataSource(t *testing.T) {
	cfg := &backend.Config{Host: "db.internal", Port: 3307, Username: "app", Password: "secret", Database: "shop"}

	dsn, release, err := dialects[DriverMySQL].dataSource(cfg)
	require.NoError(t, err)
	release()
	assert.Contains(t, dsn, "app:secret@tcp(db.internal:3307)/shop")
	assert.Contains(t, dsn, "parseTime=true")

	dsn, release, err = dialects[DriverPostgres].dataSource(cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, dsn)
	release()

	dsn, _, err = dialects[DriverSQLite].dataSource(&backend.Config{})
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)

	dsn, _, err = dialects[DriverDuckDB].dataSource(&backend.Config{Database: "/tmp/x.duckdb"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.duckdb", dsn)
}

func TestLookupDialect(t *testing.T) {
	d, err := lookupDialect("")
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, d.name)

	d, err = lookupDialect("Postgres")
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.driver)

	_, err = lookupDialect("oracle")
	assert.Error(t, err)
}

func TestConvertValue(t *testing.T) {
	assert.Equal(t, "x", convertValue([]byte("x")))
	assert.Nil(t, convertValue(nil))
	assert.Equal(t, int64(3), convertValue(int64(3)))
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/internal/logger"
	"github.com/basekick-labs/databayes/internal/metrics"
	"github.com/basekick-labs/databayes/pkg/models"
	"github.com/rs/zerolog"
)

// ErrNoCondition is returned by Update and Delete without a WHERE condition
var ErrNoCondition = errors.New("sqlstore: empty condition")

// DB is a relational adapter over database/sql.
//
// Statements are built from the given table, column and condition strings
// as-is; values always travel as parameters.
type DB struct {
	Name   string          `yaml:"name"`
	Driver string          `yaml:"driver"`
	Config *backend.Config `yaml:"config"`

	// DSN replaces the DSN built from Config when set
	DSN            string `yaml:"dsn"`
	MaxConnections int    `yaml:"max_connections"`

	db      *sql.DB
	dialect dialect
	release func()
	closed  bool
	logger  *zerolog.Logger
}

var _ backend.Connector = (*DB)(nil)

func (d *DB) log() *zerolog.Logger {
	if d.logger == nil {
		l := logger.Get("sqlstore")
		d.logger = &l
	}
	return d.logger
}

func (d *DB) label() string {
	return "sql_" + d.dialect.name
}

// Connect opens the pool and pings the server
func (d *DB) Connect(ctx context.Context) error {
	if d.closed {
		return backend.ErrClosed
	}
	dl, err := lookupDialect(d.Driver)
	if err != nil {
		return err
	}
	d.dialect = dl
	if d.Config == nil {
		d.Config = &backend.Config{}
	}

	dsn, release, err := dl.dataSource(d.Config)
	if err != nil {
		return err
	}
	if d.DSN != "" {
		release()
		dsn, release = d.DSN, func() {}
	}

	db, err := sql.Open(dl.driver, dsn)
	if err != nil {
		release()
		return fmt.Errorf("%w: failed to open %s: %w", backend.ErrConnection, dl.name, err)
	}

	switch {
	case dl.singleConn:
		db.SetMaxOpenConns(1)
	case d.MaxConnections > 0:
		db.SetMaxOpenConns(d.MaxConnections)
		db.SetMaxIdleConns(d.MaxConnections / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		release()
		d.log().Error().Err(err).Str("driver", dl.name).Str("host", d.Config.Host).Msg("Failed to connect to database")
		return fmt.Errorf("%w: %s: %w", backend.ErrConnection, dl.name, err)
	}

	d.db = db
	d.release = release
	d.log().Info().Str("driver", dl.name).Str("host", d.Config.Host).Str("database", d.Config.Database).Msg("Database connected")
	return nil
}

// Close closes the pool. Safe to call more than once.
func (d *DB) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.release()
	d.db = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.log().Info().Str("driver", d.dialect.name).Msg("Database connection closed")
	return nil
}

func (d *DB) ready() error {
	if d.closed {
		return backend.ErrClosed
	}
	if d.db == nil {
		return backend.ErrNotConnected
	}
	return nil
}

// Query runs stmt and returns every row keyed by column name
func (d *DB) Query(ctx context.Context, stmt string, args ...interface{}) ([]models.Row, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		d.log().Error().Err(err).Str("query", stmt).Dur("elapsed", time.Since(start)).Msg("Query failed")
		metrics.ObserveOperation(d.label(), "query", start, false)
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	metrics.ObserveOperation(d.label(), "query", start, err == nil)
	if err != nil {
		return nil, err
	}
	d.log().Debug().Str("query", stmt).Int("rows", len(result)).Dur("elapsed", time.Since(start)).Msg("Query executed")
	return result, nil
}

// Insert writes rows into table in one transaction. Columns are the sorted
// union of row keys; a row without a column inserts NULL there.
func (d *DB) Insert(ctx context.Context, table string, rows ...map[string]interface{}) error {
	if err := d.ready(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	err := d.insert(ctx, table, rows)
	metrics.ObserveOperation(d.label(), "insert", start, err == nil)
	if err != nil {
		d.log().Error().Err(err).Str("table", table).Int("rows", len(rows)).Msg("Failed to insert data")
		metrics.AddRecords(d.label(), 0, len(rows))
		return err
	}
	metrics.AddRecords(d.label(), len(rows), 0)
	return nil
}

func (d *DB) insert(ctx context.Context, table string, rows []map[string]interface{}) error {
	columns := unionColumns(rows)
	stmt := d.insertStatement(table, columns)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer prepared.Close()

	args := make([]interface{}, len(columns))
	for i, row := range rows {
		for j, col := range columns {
			args[j] = row[col]
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", i, table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert into %s: %w", table, err)
	}
	d.log().Debug().Str("table", table).Int("rows", len(rows)).Msg("Rows inserted")
	return nil
}

// Update sets fields on the rows of table matching condition.
// It returns the number of affected rows.
func (d *DB) Update(ctx context.Context, table string, fields map[string]interface{}, condition string) (int64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(condition) == "" {
		return 0, ErrNoCondition
	}
	if len(fields) == 0 {
		return 0, nil
	}

	columns := make([]string, 0, len(fields))
	for k := range fields {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	args := make([]interface{}, len(columns))
	for i, c := range columns {
		args[i] = fields[c]
	}
	return d.exec(ctx, "update", d.updateStatement(table, columns, condition), args...)
}

// Delete removes the rows of table matching condition.
// It returns the number of affected rows.
func (d *DB) Delete(ctx context.Context, table, condition string) (int64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(condition) == "" {
		return 0, ErrNoCondition
	}
	return d.exec(ctx, "delete", fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition))
}

// Exec runs a statement that returns no rows
func (d *DB) Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}
	return d.exec(ctx, "exec", stmt, args...)
}

func (d *DB) exec(ctx context.Context, op, stmt string, args ...interface{}) (int64, error) {
	start := time.Now()
	result, err := d.db.ExecContext(ctx, stmt, args...)
	metrics.ObserveOperation(d.label(), op, start, err == nil)
	if err != nil {
		d.log().Error().Err(err).Str("query", stmt).Dur("elapsed", time.Since(start)).Msg("Exec failed")
		return 0, fmt.Errorf("%s failed: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		affected = -1
	}
	d.log().Debug().Str("query", stmt).Int64("affected", affected).Dur("elapsed", time.Since(start)).Msg("Exec completed")
	return affected, nil
}

func (d *DB) insertStatement(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(d.dialect.placeholders(1, len(columns)), ", "))
}

func (d *DB) updateStatement(table string, columns []string, condition string) string {
	marks := d.dialect.placeholders(1, len(columns))
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = " + marks[i]
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), condition)
}

func unionColumns(rows []map[string]interface{}) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

package sqlstore

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/basekick-labs/databayes/internal/backend"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverDuckDB   = "duckdb"
)

// dialect describes how one driver is opened and parameterized
type dialect struct {
	name string
	// driver is the database/sql driver name
	driver string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
	// singleConn limits the pool to one connection (embedded databases)
	singleConn bool
}

var dialects = map[string]dialect{
	DriverMySQL:    {name: DriverMySQL, driver: "mysql"},
	DriverPostgres: {name: DriverPostgres, driver: "pgx", numbered: true},
	DriverSQLite:   {name: DriverSQLite, driver: "sqlite3", singleConn: true},
	DriverDuckDB:   {name: DriverDuckDB, driver: "duckdb", singleConn: true},
}

func lookupDialect(driver string) (dialect, error) {
	if driver == "" {
		driver = DriverMySQL
	}
	d, ok := dialects[strings.ToLower(driver)]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
	return d, nil
}

// placeholders returns n comma separated parameter markers starting at from
func (d dialect) placeholders(from, n int) []string {
	out := make([]string, n)
	for i := range out {
		if d.numbered {
			out[i] = "$" + strconv.Itoa(from+i)
		} else {
			out[i] = "?"
		}
	}
	return out
}

// dataSource builds the DSN for cfg. The returned release func undoes any
// driver side registration and must be called once the pool is closed.
func (d dialect) dataSource(cfg *backend.Config) (dsn string, release func(), err error) {
	release = func() {}
	switch d.name {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(hostOr(cfg.Host, "localhost"), strconv.Itoa(portOr(cfg.Port, 3306)))
		mc.DBName = cfg.Database
		mc.ParseTime = true
		return mc.FormatDSN(), release, nil

	case DriverPostgres:
		pc, err := pgx.ParseConfig("")
		if err != nil {
			return "", release, fmt.Errorf("failed to build postgres config: %w", err)
		}
		pc.Host = hostOr(cfg.Host, "localhost")
		pc.Port = uint16(portOr(cfg.Port, 5432))
		pc.User = cfg.Username
		pc.Password = cfg.Password
		pc.Database = cfg.Database
		name := stdlib.RegisterConnConfig(pc)
		return name, func() { stdlib.UnregisterConnConfig(name) }, nil

	case DriverSQLite:
		if cfg.Database == "" {
			return ":memory:", release, nil
		}
		return cfg.Database, release, nil

	case DriverDuckDB:
		// Empty DSN is an in-memory database
		return cfg.Database, release, nil
	}
	return "", release, fmt.Errorf("unsupported driver %q", d.name)
}

func hostOr(host, def string) string {
	if host == "" {
		return def
	}
	return host
}

func portOr(port, def int) int {
	if port <= 0 {
		return def
	}
	return port
}

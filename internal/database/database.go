package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Options selects and tunes the backing store.
type Options struct {
	Driver string
	Path   string // sqlite database file
	DSN    string // postgres connection string

	// SimpleProtocol sets default_query_exec_mode=simple_protocol so pgx does
	// not prepare statements on the server.
	SimpleProtocol bool

	MaxOpenConns int
}

// Open opens the configured database and verifies it with a ping.
// For SQLite the parent directory is created and WAL mode is enabled.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		dir := filepath.Dir(opts.Path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		db, err = sql.Open(DriverSQLite, opts.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, postgresDSN(opts.DSN, opts.SimpleProtocol))
	default:
		return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

func postgresDSN(dsn string, simple bool) string {
	if !simple || strings.Contains(dsn, "default_query_exec_mode") {
		return dsn
	}
	const param = "default_query_exec_mode=simple_protocol"
	if strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&" + param
		}
		return dsn + "?" + param
	}
	return strings.TrimSpace(dsn) + " " + param
}

// Rebind rewrites ? placeholders to $1..$n for postgres. Question marks
// inside single-quoted literals are left alone.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

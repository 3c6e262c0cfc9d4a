// Package database provides the driver-aware connection handle the
// repositories run on. PostgreSQL is the primary backend; MySQL is
// supported through placeholder and RETURNING translation.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Settings carries what Open needs to reach the ticket store.
type Settings struct {
	Driver   string // "postgres" or "mysql"
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Conn wraps a database handle together with its driver dialect. Queries
// are written with PostgreSQL-style $N placeholders and converted on the
// fly for MySQL. A Conn derived by WithinTx routes through the transaction.
type Conn struct {
	db     *sql.DB
	tx     *sql.Tx
	driver string
}

// Open connects to the ticket store and verifies the connection. A failure
// here is a fatal setup error for both batch components.
func Open(ctx context.Context, s Settings) (*Conn, error) {
	dsn, err := buildDSN(s)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(s.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Driver, err)
	}
	if s.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.MaxOpenConns)
	}
	if s.MaxIdleConns > 0 {
		db.SetMaxIdleConns(s.MaxIdleConns)
	}
	if s.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(s.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", s.Driver, err)
	}
	return &Conn{db: db, driver: s.Driver}, nil
}

func buildDSN(s Settings) (string, error) {
	switch s.Driver {
	case "postgres":
		ssl := s.SSLMode
		if ssl == "" {
			ssl = "disable"
		}
		return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			s.Host, s.Port, s.Name, s.User, s.Password, ssl), nil
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=false",
			s.User, s.Password, s.Host, s.Port, s.Name), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s.Driver)
	}
}

// NewConn wraps an existing handle, primarily for tests.
func NewConn(db *sql.DB, driver string) *Conn {
	return &Conn{db: db, driver: driver}
}

// DriverName reports the underlying dialect.
func (c *Conn) DriverName() string { return c.driver }

// DB exposes the root handle for read-only integrations (sqlx).
func (c *Conn) DB() *sql.DB { return c.db }

// Close releases the underlying pool. No-op on tx-bound derivations.
func (c *Conn) Close() error {
	if c.tx != nil {
		return nil
	}
	return c.db.Close()
}

// ExecContext runs a statement after placeholder conversion.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = c.convert(query)
	if c.tx != nil {
		return c.tx.ExecContext(ctx, query, args...)
	}
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query after placeholder conversion.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = c.convert(query)
	if c.tx != nil {
		return c.tx.QueryContext(ctx, query, args...)
	}
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query after placeholder conversion.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	query = c.convert(query)
	if c.tx != nil {
		return c.tx.QueryRowContext(ctx, query, args...)
	}
	return c.db.QueryRowContext(ctx, query, args...)
}

// WithinTx runs fn against a transaction-bound Conn, committing when fn
// returns nil and rolling back otherwise. Nested calls reuse the open
// transaction.
func (c *Conn) WithinTx(ctx context.Context, fn func(*Conn) error) error {
	if c.tx != nil {
		return fn(c)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	bound := &Conn{db: c.db, tx: tx, driver: c.driver}
	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

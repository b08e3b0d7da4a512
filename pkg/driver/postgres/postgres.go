// Package postgres stores documents in PostgreSQL jsonb columns through pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ammar0144/doc4go/pkg/driver/sqldoc"
)

// DriverName is the name postgres drivers report
const DriverName = "postgres"

// uniqueViolation is the SQLSTATE of a unique or primary key violation
const uniqueViolation = "23505"

// Config holds PostgreSQL connection configuration
type Config struct {
	DSN             string        `json:"dsn" yaml:"dsn" mapstructure:"dsn"` // overrides the fields below when set
	Host            string        `json:"host" yaml:"host" mapstructure:"host"`
	Port            int           `json:"port" yaml:"port" mapstructure:"port"`
	Database        string        `json:"database" yaml:"database" mapstructure:"database"`
	Username        string        `json:"username" yaml:"username" mapstructure:"username"`
	Password        string        `json:"password" yaml:"password" mapstructure:"password"`
	SSLMode         string        `json:"sslmode" yaml:"sslmode" mapstructure:"sslmode"`
	MaxConns        int32         `json:"max_conns" yaml:"max_conns" mapstructure:"max_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// DefaultConfig returns a local connection
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "test",
		Username:        "postgres",
		SSLMode:         "disable",
		MaxConns:        10,
		ConnMaxLifetime: time.Hour,
	}
}

// Validate checks if the postgres configuration is valid
func (c *Config) Validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max_conns cannot be negative")
	}
	return nil
}

// ConnString returns the pgx connection string
func (c *Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	s := fmt.Sprintf("host=%s port=%d dbname=%s", c.Host, c.Port, c.Database)
	if c.Username != "" {
		s += " user=" + c.Username
	}
	if c.Password != "" {
		s += " password='" + escapeValue(c.Password) + "'"
	}
	if c.SSLMode != "" {
		s += " sslmode=" + c.SSLMode
	}
	return s
}

func escapeValue(v string) string {
	out := make([]rune, 0, len(v))
	for _, r := range v {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// Open connects to PostgreSQL and returns a document engine
func Open(ctx context.Context, cfg *Config) (*sqldoc.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return sqldoc.New(DriverName, &poolConn{pool: pool}, Dialect{}), nil
}

// poolConn adapts pgxpool to the engine
type poolConn struct {
	pool *pgxpool.Pool
}

func (c *poolConn) Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	tag, err := c.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExecSoft commits without waiting for the WAL flush
func (c *poolConn) ExecSoft(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	var affected int64
	err := pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, stmt, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

func (c *poolConn) Query(ctx context.Context, stmt string, args ...interface{}) (sqldoc.Rows, error) {
	rows, err := c.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return &pgRows{rows: rows}, nil
}

func (c *poolConn) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *poolConn) Close() error {
	c.pool.Close()
	return nil
}

// pgRows gives pgx.Rows the Close() error signature of database/sql
type pgRows struct {
	rows pgx.Rows
}

func (r *pgRows) Next() bool                     { return r.rows.Next() }
func (r *pgRows) Scan(dest ...interface{}) error { return r.rows.Scan(dest...) }
func (r *pgRows) Err() error                     { return r.rows.Err() }
func (r *pgRows) Close() error                   { r.rows.Close(); return r.rows.Err() }

// Dialect renders document SQL with jsonb operators
type Dialect struct{}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Dialect) FieldExpr(field string, textual bool) string {
	if textual {
		return fmt.Sprintf("data->>'%s'", field)
	}
	return fmt.Sprintf("data->'%s'", field)
}

func (Dialect) NumericExpr(field string) string {
	return fmt.Sprintf("(data->>'%s')::double precision", field)
}

// BindExpr sends JSON as text and lets the server cast it
func (Dialect) BindExpr(placeholder string, textual bool) string {
	if textual {
		return placeholder + "::text"
	}
	return placeholder + "::text::jsonb"
}

func (Dialect) EncodeArg(v interface{}, textual bool) (interface{}, error) {
	if textual {
		return fmt.Sprint(v), nil
	}
	return sqldoc.JSONArg(v)
}

func (Dialect) CreateTableSQL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data JSONB NOT NULL)", table)
}

func (Dialect) InsertSQL(table string) string {
	return fmt.Sprintf("INSERT INTO %s (id, data) VALUES ($1, $2::text::jsonb)", table)
}

func (Dialect) ReplaceSQL(table string) string {
	return fmt.Sprintf("UPDATE %s SET data = $1::text::jsonb WHERE id = $2", table)
}

func (Dialect) IsDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Package sqlite stores documents in an embedded SQLite database (modernc.org/sqlite).
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ammar0144/doc4go/pkg/driver"
	"github.com/ammar0144/doc4go/pkg/driver/sqldoc"
)

// DriverName is the name sqlite drivers report
const DriverName = "sqlite"

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// Config holds SQLite connection configuration
type Config struct {
	Path        string        `json:"path" yaml:"path" mapstructure:"path"` // file path or :memory:
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`
	Durability  string        `json:"durability" yaml:"durability" mapstructure:"durability"` // hard, soft
}

// Validate checks if the sqlite configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite path is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("busy_timeout cannot be negative")
	}
	return nil
}

// DSN returns the modernc DSN with connection pragmas
func (c *Config) DSN() string {
	params := url.Values{}
	busy := c.BusyTimeout
	if busy == 0 {
		busy = 5 * time.Second
	}
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	if !c.inMemory() {
		params.Add("_pragma", "journal_mode(WAL)")
	}
	if driver.Durability(c.Durability) == driver.DurabilitySoft {
		params.Add("_pragma", "synchronous(OFF)")
	}

	path := c.Path
	if c.inMemory() {
		path = MemoryPath
	}
	return "file:" + path + "?" + params.Encode()
}

func (c *Config) inMemory() bool {
	return c.Path == MemoryPath || strings.Contains(c.Path, "mode=memory")
}

// Open connects to the database described by cfg
func Open(cfg *Config) (*sqldoc.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serialises writers
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	return sqldoc.New(DriverName, sqldoc.DB(db), Dialect{}, sqldoc.WithBufferedStreams()), nil
}

// Dialect renders document SQL with json_extract
type Dialect struct{}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) FieldExpr(field string, textual bool) string {
	return fmt.Sprintf("json_extract(data, '$.%s')", field)
}

func (Dialect) NumericExpr(field string) string {
	return fmt.Sprintf("CAST(json_extract(data, '$.%s') AS REAL)", field)
}

func (Dialect) BindExpr(placeholder string, textual bool) string { return placeholder }

// EncodeArg binds scalars directly; json_extract yields 1/0 for booleans
// and ISO-8601 text for stored times.
func (Dialect) EncodeArg(v interface{}, textual bool) (interface{}, error) {
	if textual {
		return fmt.Sprint(v), nil
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	case string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v, nil
	}
	return fmt.Sprint(v), nil
}

func (Dialect) CreateTableSQL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data TEXT NOT NULL)", table)
}

func (Dialect) InsertSQL(table string) string {
	return fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, ?)", table)
}

func (Dialect) ReplaceSQL(table string) string {
	return fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", table)
}

func (Dialect) IsDuplicate(err error) bool {
	var e *sqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// extended codes disabled
		return strings.Contains(e.Error(), "UNIQUE constraint failed")
	}
	return false
}

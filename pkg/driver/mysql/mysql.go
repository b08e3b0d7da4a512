// Package mysql stores documents in MySQL JSON columns, executing through GORM.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ammar0144/doc4go/pkg/driver/sqldoc"
)

// DriverName is the name mysql drivers report
const DriverName = "mysql"

// errDuplicateEntry is MySQL's ER_DUP_ENTRY
const errDuplicateEntry = 1062

// Open connects to MySQL and returns a document engine backed by GORM
func Open(cfg *Config) (*sqldoc.Engine, error) {
	db, err := OpenGorm(cfg)
	if err != nil {
		return nil, err
	}
	conn := &gormConn{db: db}
	return sqldoc.New(DriverName, conn, Dialect{}, sqldoc.WithTableCreator(conn.createTable)), nil
}

// OpenGorm opens and tunes the GORM connection pool
func OpenGorm(cfg *Config) (*gorm.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            cfg.PrepareStmt,
		Logger:                 logger.Default.LogMode(getLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func getLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info", "debug":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error // Default to error
	}
}

// documentRow is the table layout of one collection
type documentRow struct {
	ID   string `gorm:"primaryKey;type:varchar(191)"`
	Data string `gorm:"type:json;not null"`
}

// gormConn runs engine SQL through GORM
type gormConn struct {
	db *gorm.DB
}

func (c *gormConn) createTable(ctx context.Context, table string) error {
	return c.db.WithContext(ctx).Table(table).AutoMigrate(&documentRow{})
}

func (c *gormConn) Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	tx := c.db.WithContext(ctx).Exec(stmt, args...)
	return tx.RowsAffected, tx.Error
}

func (c *gormConn) Query(ctx context.Context, stmt string, args ...interface{}) (sqldoc.Rows, error) {
	return c.db.WithContext(ctx).Raw(stmt, args...).Rows()
}

func (c *gormConn) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *gormConn) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Dialect renders document SQL with JSON_EXTRACT
type Dialect struct{}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) FieldExpr(field string, textual bool) string {
	if textual {
		return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(data, '$.%s'))", field)
	}
	return fmt.Sprintf("JSON_EXTRACT(data, '$.%s')", field)
}

func (Dialect) NumericExpr(field string) string {
	return fmt.Sprintf("CAST(JSON_EXTRACT(data, '$.%s') AS DOUBLE)", field)
}

func (Dialect) BindExpr(placeholder string, textual bool) string {
	if textual {
		return placeholder
	}
	return "CAST(" + placeholder + " AS JSON)"
}

// EncodeArg binds values as JSON text so they compare as JSON
func (Dialect) EncodeArg(v interface{}, textual bool) (interface{}, error) {
	if textual {
		return fmt.Sprint(v), nil
	}
	return sqldoc.JSONArg(v)
}

func (Dialect) CreateTableSQL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id VARCHAR(191) PRIMARY KEY, data JSON NOT NULL)", table)
}

func (Dialect) InsertSQL(table string) string {
	return fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, ?)", table)
}

func (Dialect) ReplaceSQL(table string) string {
	return fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", table)
}

func (Dialect) IsDuplicate(err error) bool {
	var e *mysqldriver.MySQLError
	if errors.As(err, &e) {
		return e.Number == errDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

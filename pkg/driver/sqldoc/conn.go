package sqldoc

import (
	"context"
	"database/sql"
)

// Rows is the subset of *sql.Rows the engine reads
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// Conn executes SQL for the engine
type Conn interface {
	// Exec runs a statement and returns the number of affected rows
	Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error)
	Query(ctx context.Context, stmt string, args ...interface{}) (Rows, error)
	Ping(ctx context.Context) error
	Close() error
}

// SoftWriter is implemented by connections that can relax durability per statement
type SoftWriter interface {
	ExecSoft(ctx context.Context, stmt string, args ...interface{}) (int64, error)
}

// DB adapts a database/sql pool to Conn
func DB(db *sql.DB) Conn {
	return sqlConn{db: db}
}

type sqlConn struct {
	db *sql.DB
}

func (c sqlConn) Exec(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	res, err := c.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c sqlConn) Query(ctx context.Context, stmt string, args ...interface{}) (Rows, error) {
	return c.db.QueryContext(ctx, stmt, args...)
}

func (c sqlConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c sqlConn) Close() error {
	return c.db.Close()
}

package target

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql
	_ "github.com/jackc/pgx/v5/stdlib" // pgx
	_ "github.com/lib/pq"              // postgres
)

// SQLDrivers 已注册的数据库驱动名
var SQLDrivers = []string{"postgres", "pgx", "mysql"}

// SQLConfig 数据库适配器配置
type SQLConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLTarget 基于 database/sql 的数据库适配器
type SQLTarget struct {
	db *sql.DB
}

// OpenSQL 打开数据库连接并校验。
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLTarget, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return NewSQLTarget(db), nil
}

// NewSQLTarget 使用已有连接创建适配器。
func NewSQLTarget(db *sql.DB) *SQLTarget {
	return &SQLTarget{db: db}
}

// Execute 执行 DBQuery。写操作使用 Exec，读操作会读完所有行。
func (t *SQLTarget) Execute(ctx context.Context, op Operation) Result {
	q, ok := op.(DBQuery)
	if !ok {
		return unsupported(op)
	}

	if q.Write {
		if _, err := t.db.ExecContext(ctx, q.SQL, q.Args...); err != nil {
			return Fail(sqlErrorKind(err), err)
		}
		return OK()
	}

	rows, err := t.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return Fail(sqlErrorKind(err), err)
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return Fail(sqlErrorKind(err), err)
	}
	return Result{Success: true, Bytes: n}
}

// DB 返回底层连接。
func (t *SQLTarget) DB() *sql.DB {
	return t.db
}

// Close 关闭连接。
func (t *SQLTarget) Close() error {
	return t.db.Close()
}

func sqlErrorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, sql.ErrConnDone):
		return "connection"
	default:
		return "query"
	}
}

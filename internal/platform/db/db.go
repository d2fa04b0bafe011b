package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"attendance-backend/internal/platform/config"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open は設定の driver に応じて接続し、マイグレーションまで済ませた *sql.DB を返す。
func Open(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	var (
		conn *sql.DB
		err  error
	)
	switch c.Driver {
	case DriverMySQL:
		conn, err = connectMySQL(ctx, c)
	case DriverSQLite, "":
		conn, err = openSQLite(ctx, c.Path)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", c.Driver)
	}
	if err != nil {
		return nil, err
	}

	driver := c.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if err := Migrate(ctx, conn, driver); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func connectMySQL(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	// マイグレーションは複数文なので multiStatements を有効にする
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC&multiStatements=true",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 書き込みは Worker で直列化するので読み取り分があれば足りる
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/attendance.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		path,
	)
	return openSQLiteDSN(ctx, dsn)
}

// OpenMemory はテスト用のインメモリ SQLite（マイグレーション適用済み）。
// name ごとに別のデータベースになる。
func OpenMemory(ctx context.Context, name string) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)
	conn, err := openSQLiteDSN(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, conn, DriverSQLite); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func openSQLiteDSN(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// SQLite は単一コネクション
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

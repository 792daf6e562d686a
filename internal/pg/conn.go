package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// PoolOptions bounds the database/sql pool wrapped around pgx.
type PoolOptions struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	PingTimeout time.Duration
}

var DefaultPool = PoolOptions{MaxOpen: 10, MaxIdle: 5, MaxLifetime: 30 * time.Minute, PingTimeout: 5 * time.Second}

// Open connects with DefaultPool.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	return OpenPool(ctx, url, DefaultPool)
}

// OpenPool parses url, opens a database/sql handle on the pgx driver and
// pings it. A malformed url fails before any connection is attempted.
func OpenPool(ctx context.Context, url string, o PoolOptions) (*sql.DB, error) {
	cc, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	db := stdlib.OpenDB(*cc)
	db.SetConnMaxLifetime(o.MaxLifetime)
	db.SetMaxOpenConns(o.MaxOpen)
	db.SetMaxIdleConns(o.MaxIdle)

	ctx, cancel := context.WithTimeout(ctx, o.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s@%s/%s: %w", cc.User, cc.Host, cc.Database, err)
	}
	return db, nil
}

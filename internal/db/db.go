package db

import (
	"context"
	"errors"
	"fmt"

	"artemis/internal/persist"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS artemis_partitions (
	name TEXT PRIMARY KEY,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// DB wraps pgxpool.Pool and stores partitions in Postgres
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a connection pool and ensures the partition table exists
func NewDB(ctx context.Context, url string) (*DB, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create partition table: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (d *DB) Close() error {
	d.pool.Close()
	return nil
}

// Pool returns the underlying pgxpool.Pool
func (d *DB) Pool() *pgxpool.Pool {
	return d.pool
}

func (d *DB) Load(ctx context.Context, partition string) ([]byte, error) {
	var data []byte
	err := d.pool.QueryRow(ctx, "SELECT data FROM artemis_partitions WHERE name = $1", partition).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persist.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", partition, err)
	}
	return data, nil
}

func (d *DB) Save(ctx context.Context, partition string, data []byte) error {
	_, err := d.pool.Exec(ctx, `
INSERT INTO artemis_partitions (name, data, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, partition, string(data))
	if err != nil {
		return fmt.Errorf("save %s: %w", partition, err)
	}
	return nil
}

var _ persist.Store = (*DB)(nil)

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS records (
	record_set TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (record_set, key)
)`

// PostgresBackend keeps all record sets in one key-value table.
type PostgresBackend struct {
	Db *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, connString string) (*PostgresBackend, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createRecordsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to create records table: %w", err)
	}

	return &PostgresBackend{Db: pool}, nil
}

func (b *PostgresBackend) Close() error {
	b.Db.Close()
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context, set string) (map[string][]byte, error) {
	rows, err := b.Db.Query(ctx, "SELECT key, value FROM records WHERE record_set = $1", set)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s: %w", set, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("unable to scan %s record: %w", set, err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Put upserts the batch inside a single transaction.
func (b *PostgresBackend) Put(ctx context.Context, set string, records map[string][]byte) error {
	tx, err := b.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	for key, value := range records {
		_, err = tx.Exec(ctx,
			`INSERT INTO records (record_set, key, value) VALUES ($1, $2, $3)
			 ON CONFLICT (record_set, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			set, key, string(value),
		)
		if err != nil {
			return fmt.Errorf("record upsert failed: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, set string, key string) error {
	_, err := b.Db.Exec(ctx, "DELETE FROM records WHERE record_set = $1 AND key = $2", set, key)
	if err != nil {
		return fmt.Errorf("record delete failed: %w", err)
	}
	return nil
}

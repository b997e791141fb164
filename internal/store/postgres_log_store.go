package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelfn/internal/domain"
	"github.com/lib/pq"
)

type PostgresLogStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLogStore(ctx context.Context, dsn string) (*PostgresLogStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresLogStore{db: db, now: time.Now}, nil
}

func (s *PostgresLogStore) EnsureTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL(table)); err != nil {
		return fmt.Errorf("ensure log table %s: %w", table, err)
	}
	return nil
}

func (s *PostgresLogStore) Close() error {
	return s.db.Close()
}

func (s *PostgresLogStore) InsertRow(ctx context.Context, table string, row domain.LogRecord) error {
	attributes, err := encodeAttributes(row.Attributes)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, upsertSQL(table), row.PartitionKey, row.RowKey, attributes, now)
	if err != nil {
		if isUndefinedTable(err) {
			return fmt.Errorf("insert row into %s: %w: %v", table, ErrTableNotFound, err)
		}
		return fmt.Errorf("insert row into %s: %w", table, err)
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}

func schemaSQL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	partition_key TEXT NOT NULL,
	row_key TEXT NOT NULL,
	attributes JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (partition_key, row_key)
);
`, pq.QuoteIdentifier(table))
}

func upsertSQL(table string) string {
	return fmt.Sprintf(
		`INSERT INTO %s (partition_key, row_key, attributes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (partition_key, row_key)
		 DO UPDATE SET attributes = EXCLUDED.attributes, updated_at = EXCLUDED.updated_at`,
		pq.QuoteIdentifier(table),
	)
}

func encodeAttributes(attrs map[string]any) ([]byte, error) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal row attributes: %w", err)
	}
	return data, nil
}

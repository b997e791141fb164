package store

import (
	"context"
	"errors"
	"strings"

	"github.com/dunamismax/pixelfn/internal/domain"
)

var ErrTableNotFound = errors.New("log table not found")

// LogStore appends rows to a named table. A row whose partition and row key
// already exist replaces the previous one.
type LogStore interface {
	EnsureTable(ctx context.Context, table string) error
	InsertRow(ctx context.Context, table string, row domain.LogRecord) error
	Close() error
}

// Open returns a PostgreSQL store for a non-empty DSN and an in-memory store
// otherwise.
func Open(ctx context.Context, dsn string) (LogStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewMemoryLogStore(), nil
	}
	return NewPostgresLogStore(ctx, dsn)
}

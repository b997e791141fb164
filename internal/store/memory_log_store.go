package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/dunamismax/pixelfn/internal/domain"
)

type rowKey struct {
	partition string
	row       string
}

type MemoryLogStore struct {
	mu     sync.RWMutex
	tables map[string]map[rowKey]domain.LogRecord
}

func NewMemoryLogStore(tables ...string) *MemoryLogStore {
	s := &MemoryLogStore{
		tables: make(map[string]map[rowKey]domain.LogRecord),
	}
	for _, t := range tables {
		s.tables[t] = make(map[rowKey]domain.LogRecord)
	}
	return s
}

func (s *MemoryLogStore) EnsureTable(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = make(map[rowKey]domain.LogRecord)
	}
	return nil
}

func (s *MemoryLogStore) InsertRow(ctx context.Context, table string, row domain.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.tables[table]
	if !ok {
		return fmt.Errorf("insert row into %s: %w", table, ErrTableNotFound)
	}
	row.Attributes = maps.Clone(row.Attributes)
	rows[rowKey{partition: row.PartitionKey, row: row.RowKey}] = row
	return nil
}

func (s *MemoryLogStore) Row(table, partitionKey, key string) (domain.LogRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tables[table][rowKey{partition: partitionKey, row: key}]
	return row, ok
}

func (s *MemoryLogStore) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

func (s *MemoryLogStore) Close() error {
	return nil
}

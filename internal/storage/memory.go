package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu         sync.RWMutex
	containers map[string]map[string][]byte
}

func NewMemoryStore(containers ...string) *MemoryStore {
	s := &MemoryStore{
		containers: make(map[string]map[string][]byte),
	}
	for _, c := range containers {
		s.containers[c] = make(map[string][]byte)
	}
	return s
}

func (s *MemoryStore) EnsureContainer(_ context.Context, container string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[container]; !ok {
		s.containers[container] = make(map[string][]byte)
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, container, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blobs, ok := s.containers[container]
	if !ok {
		return nil, fmt.Errorf("get object %s/%s: %w", container, name, ErrContainerNotFound)
	}
	data, ok := blobs[name]
	if !ok {
		return nil, fmt.Errorf("get object %s/%s: %w", container, name, ErrBlobNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Put(ctx context.Context, container, name string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, ok := s.containers[container]
	if !ok {
		return fmt.Errorf("put object %s/%s: %w", container, name, ErrContainerNotFound)
	}
	blobs[name] = append([]byte(nil), data...)
	return nil
}

// Names lists the blobs in a container in lexical order.
func (s *MemoryStore) Names(container string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.containers[container]))
	for name := range s.containers[container] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

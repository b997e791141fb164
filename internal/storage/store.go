package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBlobNotFound      = errors.New("blob not found")
	ErrContainerNotFound = errors.New("container not found")
)

// Store reads and writes whole blobs by container and name. Put always
// overwrites an existing blob of the same name.
type Store interface {
	Get(ctx context.Context, container, name string) ([]byte, error)
	Put(ctx context.Context, container, name string, data []byte, contentType string) error
	EnsureContainer(ctx context.Context, container string) error
}

// Open builds the backend selected by the account's provider.
func Open(ctx context.Context, acct Account) (Store, error) {
	switch acct.Provider {
	case ProviderMinio:
		return NewMinioStore(acct)
	case ProviderS3:
		return NewS3Store(ctx, acct)
	case ProviderMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", acct.Provider)
	}
}

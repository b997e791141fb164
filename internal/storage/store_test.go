package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("dest")

	require.NoError(t, s.Put(ctx, "dest", "a.png", []byte("one"), "image/png"))
	require.NoError(t, s.Put(ctx, "dest", "a.png", []byte("two"), "image/png"))

	got, err := s.Get(ctx, "dest", "a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
	assert.Equal(t, []string{"a.png"}, s.Names("dest"))
}

func TestMemoryStoreMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("src")

	_, err := s.Get(ctx, "src", "nope.jpg")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	_, err = s.Get(ctx, "other", "nope.jpg")
	assert.ErrorIs(t, err, ErrContainerNotFound)

	err = s.Put(ctx, "other", "x", []byte("x"), "image/png")
	assert.ErrorIs(t, err, ErrContainerNotFound)

	require.NoError(t, s.EnsureContainer(ctx, "other"))
	require.NoError(t, s.Put(ctx, "other", "x", []byte("x"), "image/png"))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("src")
	data := []byte("abc")
	require.NoError(t, s.Put(ctx, "src", "k", data, ""))
	data[0] = 'z'

	got, err := s.Get(ctx, "src", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestOpenSelectsProvider(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, Account{Provider: ProviderMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	acct, err := ParseConnectionString("DefaultEndpointsProtocol=http;AccountName=minioadmin;AccountKey=minioadmin;BlobEndpoint=localhost:9000")
	require.NoError(t, err)
	mc, err := Open(ctx, acct)
	require.NoError(t, err)
	assert.IsType(t, &MinioStore{}, mc)

	_, err = Open(ctx, Account{Provider: "ftp"})
	assert.Error(t, err)
}

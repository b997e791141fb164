package ratelimit

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenBucketValidates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewTokenBucket(nil, 10, time.Second, "")
	assert.ErrorContains(t, err, "redis client")

	_, err = NewTokenBucket(client, 0, time.Second, "")
	assert.ErrorContains(t, err, "capacity")

	_, err = NewTokenBucket(client, 10, 0, "")
	assert.ErrorContains(t, err, "window")

	bucket, err := NewTokenBucket(client, 60, time.Minute, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultKeyPrefix, bucket.keyPrefix)
	assert.Equal(t, 2*time.Minute, bucket.ttl)
	assert.InDelta(t, 0.001, bucket.refillPerMS, 1e-9)
}

func TestTokenBucketKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := NewTokenBucket(client, 1, time.Second, "test")
	require.NoError(t, err)
	assert.Equal(t, "test:alice", bucket.key(" alice "))
	assert.Equal(t, "test:anonymous", bucket.key(""))
}

func TestParseDecision(t *testing.T) {
	d, err := parseDecision([]any{int64(1), int64(4), int64(0)})
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 4}, d)

	d, err = parseDecision([]any{int64(0), "0", 1500.0})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1500*time.Millisecond, d.RetryAfter)

	_, err = parseDecision([]any{int64(1)})
	assert.Error(t, err)

	_, err = parseDecision([]any{int64(1), true, int64(0)})
	assert.ErrorContains(t, err, "parse remaining value")
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{in: int64(7), want: 7},
		{in: 3, want: 3},
		{in: 2.9, want: 2},
		{in: "42", want: 42},
		{in: "x", wantErr: true},
		{in: nil, wantErr: true},
	}
	for _, tc := range cases {
		got, err := toInt64(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "%v", tc.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

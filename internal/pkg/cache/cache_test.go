package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLockReportsConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	unlock, ok, err := NewLocker(client).TryLock(context.Background(), "creditledger:test", time.Second)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, unlock)
	assert.Contains(t, err.Error(), "lock creditledger:test")
}

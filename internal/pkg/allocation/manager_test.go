package allocation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released int
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released++
	}, true, nil
}

func TestManagerRunsUnderLock(t *testing.T) {
	f := newFixture(t)
	locker := &fakeLocker{held: map[string]bool{}}
	m := NewManager(NewScheduler(f.engine, 0), locker, ManagerConfig{})

	assert.True(t, m.RunRetryOnce(context.Background()))
	assert.True(t, m.RunMonthlyOnce(context.Background()))
	assert.Equal(t, 2, locker.released)

	locker.held[lockRetrySweep] = true
	assert.False(t, m.RunRetryOnce(context.Background()))

	locker.err = errors.New("redis down")
	assert.False(t, m.RunMonthlyOnce(context.Background()))
}

func TestManagerWithoutLockerAlwaysRuns(t *testing.T) {
	f := newFixture(t)
	m := NewManager(NewScheduler(f.engine, 0), nil, ManagerConfig{})
	assert.True(t, m.RunRetryOnce(context.Background()))
}

func TestManagerStartStop(t *testing.T) {
	f := newFixture(t)
	m := NewManager(NewScheduler(f.engine, 0), nil, ManagerConfig{
		RetryInterval:   time.Hour,
		MonthlyInterval: time.Hour,
	})
	require.False(t, m.IsRunning())

	m.Start()
	m.Start()
	assert.True(t, m.IsRunning())

	m.Stop()
	assert.False(t, m.IsRunning())
	m.Stop()

	// Restart works with a fresh stop channel.
	m.Start()
	assert.True(t, m.IsRunning())
	m.Stop()
}

package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/blogaccount/internal/logger"
)

// Remembers every 'before' it was called with
type fakeService struct {
	mu      sync.Mutex
	calls   []time.Time
	deleted int64
	err     error
}

func (f *fakeService) SweepExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, before)
	return f.deleted, f.err
}

func (f *fakeService) countCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweeper(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := New(Config{}, &fakeService{}, logger.NewNoOpLogger())

		require.Equal(t, defaultInterval, s.interval)
	})

	t.Run("sweep uses retention", func(t *testing.T) {
		now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		service := &fakeService{deleted: 7}
		s := New(Config{Retention: 24 * time.Hour}, service, logger.NewNoOpLogger())
		s.now = func() time.Time { return now }

		n, err := s.Sweep(t.Context())

		require.NoError(t, err)
		require.EqualValues(t, 7, n)
		require.Equal(t, []time.Time{now.Add(-24 * time.Hour)}, service.calls)
	})

	t.Run("sweep error returned", func(t *testing.T) {
		service := &fakeService{err: errors.New("db is down")}
		s := New(Config{}, service, logger.NewNoOpLogger())

		_, err := s.Sweep(t.Context())

		require.Error(t, err)
	})

	t.Run("run sweeps on every tick until stopped", func(t *testing.T) {
		service := &fakeService{}
		s := New(Config{Interval: 10 * time.Millisecond}, service, logger.NewNoOpLogger())

		ctx, cancel := context.WithCancel(t.Context())
		stopped := s.Run(ctx)

		require.Eventually(t, func() bool { return service.countCalls() >= 2 }, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("sweeper not stopped")
		}
	})

	t.Run("run keeps going after error", func(t *testing.T) {
		service := &fakeService{err: errors.New("db is down")}
		s := New(Config{Interval: 10 * time.Millisecond}, service, logger.NewNoOpLogger())

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		_ = s.Run(ctx)

		require.Eventually(t, func() bool { return service.countCalls() >= 2 }, time.Second, 5*time.Millisecond)
	})
}

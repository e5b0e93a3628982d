package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchtrack/internal/domain"
)

type countingSyncer struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (c *countingSyncer) SyncAll(ctx context.Context) (*domain.SyncStats, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		c.deadline.Store(true)
	}
	if c.err != nil {
		return nil, c.err
	}
	return &domain.SyncStats{Batches: 1, Succeeded: 1}, nil
}

func TestScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	syncer := &countingSyncer{}
	s := NewScheduler(syncer, 10*time.Millisecond, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return syncer.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, syncer.deadline.Load())
}

func TestScheduler_KeepsRunningAfterFailure(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("db down")}
	s := NewScheduler(syncer, 10*time.Millisecond, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	require.Eventually(t, func() bool { return syncer.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

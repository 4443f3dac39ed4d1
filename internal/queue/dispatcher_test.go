package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/queue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(5)

	require.NoError(t, q.Enqueue(ctx, "s1", domain.KindPattern))
	require.NoError(t, q.Enqueue(ctx, "s1", domain.KindPattern))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestMemoryQueueClaimAckFlow(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(5)
	require.NoError(t, q.Enqueue(ctx, "s1", domain.KindPattern))

	items, err := q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, items, 1)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "claimed items are no longer pending")

	require.NoError(t, q.Ack(ctx, items[0].ID))
}

func TestMemoryQueueNackRetryableRequeues(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(3)
	require.NoError(t, q.Enqueue(ctx, "s1", domain.KindPattern))

	items, err := q.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, items[0].ID, "transient blip", true))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth, "retryable nack returns the item to pending")
}

func TestMemoryQueueNackExhaustedParks(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(1)
	require.NoError(t, q.Enqueue(ctx, "s1", domain.KindPattern))

	items, err := q.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, items[0].ID, "still failing", true))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "attempts exhausted at MaxAttempts=1, item parks as failed")
}

func TestDispatcherParksInputErrorsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(5)
	require.NoError(t, q.Enqueue(ctx, "s1", domain.KindPattern))

	var calls int32
	handler := func(ctx context.Context, item queue.Item) error {
		atomic.AddInt32(&calls, 1)
		return coreerr.NewInput("malformed content", nil)
	}

	d := queue.NewDispatcher(q, handler, 10, time.Minute, 10*time.Millisecond, 5*time.Millisecond, zerolog.Nop())
	runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_ = d.Run(runCtx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "input errors are never retried")
}

func TestDispatcherRetriesTransientThenSucceeds(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue(5)
	require.NoError(t, q.Enqueue(ctx, "s1", domain.KindPattern))

	var calls int32
	handler := func(ctx context.Context, item queue.Item) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			return coreerr.NewTransient("temporary store blip", errors.New("timeout"))
		}
		return nil
	}

	d := queue.NewDispatcher(q, handler, 10, time.Minute, 10*time.Millisecond, 5*time.Millisecond, zerolog.Nop())
	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_ = d.Run(runCtx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

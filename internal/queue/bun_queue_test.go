package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/queue"
	"github.com/lotustrader/learningcore/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupBunQueueTest starts a disposable Postgres container and returns a
// BunQueue over the same outbox_items table a BunStore would co-commit
// into, using BunStore.InitSchema to create it (no separate migrator).
func setupBunQueueTest(t *testing.T) (*queue.BunQueue, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres-backed test in -short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "learningcore_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections"),
	}
	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/learningcore_test?sslmode=disable", host, port.Port())
	time.Sleep(500 * time.Millisecond)

	s, err := store.NewBunStore(dsn, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.InitSchema(ctx))
	require.NoError(t, s.Close())

	q, err := queue.NewBunQueue(dsn, 5, zerolog.Nop())
	require.NoError(t, err)

	cleanup := func() {
		q.Close()
		_ = postgres.Terminate(ctx)
	}
	return q, cleanup
}

func TestBunQueue_EnqueueClaimAck_RoundTrips(t *testing.T) {
	q, cleanup := setupBunQueueTest(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, q.Enqueue(ctx, id, domain.KindPattern))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	claimed, err := q.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].StrandID)
	assert.Equal(t, 1, claimed[0].Attempts)

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "a claimed item is no longer pending")

	require.NoError(t, q.Ack(ctx, id))
}

func TestBunQueue_Nack_RetriesUntilAttemptsExhausted(t *testing.T) {
	q, cleanup := setupBunQueueTest(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, q.Enqueue(ctx, id, domain.KindPattern))

	for i := 0; i < 5; i++ {
		claimed, err := q.Claim(ctx, 1, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		require.NoError(t, q.Nack(ctx, id, "llm timeout", true))
	}

	// All 5 default attempts spent: the item is now parked failed, not
	// claimable, and no longer counted in Depth.
	claimed, err := q.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestBunQueue_Nack_NonRetryableParksImmediately(t *testing.T) {
	q, cleanup := setupBunQueueTest(t)
	defer cleanup()
	ctx := context.Background()

	id := uuid.NewString()
	require.NoError(t, q.Enqueue(ctx, id, domain.KindPattern))
	_, err := q.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.Nack(ctx, id, "malformed strand", false))

	claimed, err := q.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed, "a non-retryable nack parks the item, it is never claimable again")
}

// TestBunQueue_Claim_SkipLockedExcludesConcurrentClaims proves the
// SELECT ... FOR UPDATE SKIP LOCKED claim never hands the same row to
// two concurrent claimants (spec §4.2 "multiple dispatcher instances
// can drain the same queue concurrently without double-claiming").
func TestBunQueue_Claim_SkipLockedExcludesConcurrentClaims(t *testing.T) {
	q, cleanup := setupBunQueueTest(t)
	defer cleanup()
	ctx := context.Background()

	const n = 20
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = uuid.NewString()
		require.NoError(t, q.Enqueue(ctx, ids[i], domain.KindPattern))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		claimed  = make(map[string]int)
		claimers = 4
	)
	wg.Add(claimers)
	for i := 0; i < claimers; i++ {
		go func() {
			defer wg.Done()
			items, err := q.Claim(ctx, n/claimers, time.Minute)
			assert.NoError(t, err)
			mu.Lock()
			for _, it := range items {
				claimed[it.StrandID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, count := range claimed {
		assert.Equalf(t, 1, count, "strand %s claimed by more than one claimant", id)
	}
}

package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// setupBunStoreTest starts a disposable Postgres container, runs the
// Strand Store's own schema init against it, and returns a ready
// BunStore alongside a raw *bun.DB for assertions the store interface
// doesn't expose directly.
func setupBunStoreTest(t *testing.T) (*store.BunStore, *bun.DB, func()) {
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

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	rawDB := bun.NewDB(sqldb, pgdialect.New())

	cleanup := func() {
		rawDB.Close()
		s.Close()
		_ = postgres.Terminate(ctx)
	}
	return s, rawDB, cleanup
}

func newLeafStrand(id string, createdAt time.Time) *domain.Strand {
	return &domain.Strand{
		ID:         id,
		Kind:       domain.KindPattern,
		BraidLevel: 1,
		CreatedAt:  createdAt,
		Symbol:     "BTC",
		Timeframe:  "1m",
		Content:    map[string]any{"pattern_type": "volume_spike"},
	}
}

func TestBunStore_AppendAndGet_RoundTrips(t *testing.T) {
	s, _, cleanup := setupBunStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	st := newLeafStrand(uuid.NewString(), time.Now().UTC())
	_, err := s.Append(ctx, st)
	require.NoError(t, err)

	got, err := s.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.Kind, got.Kind)
	assert.Equal(t, st.Symbol, got.Symbol)
	assert.Equal(t, int64(1), got.Version)
}

// TestBunStore_Append_CoCommitsOutboxRow proves the outbox pattern
// (spec §4.2): the strand row and its outbox row land in the same
// transaction, so a BunQueue reading the same database sees the item
// immediately after Append returns.
func TestBunStore_Append_CoCommitsOutboxRow(t *testing.T) {
	s, rawDB, cleanup := setupBunStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	st := newLeafStrand(uuid.NewString(), time.Now().UTC())
	_, err := s.Append(ctx, st)
	require.NoError(t, err)

	var row store.OutboxModel
	err = rawDB.NewSelect().Model(&row).Where("strand_id = ?", st.ID).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pending", row.Status)
	assert.Equal(t, string(domain.KindPattern), row.Kind)
}

func TestBunStore_Append_RejectsBraidWithMissingParents(t *testing.T) {
	s, _, cleanup := setupBunStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	braid := &domain.Strand{
		ID:         uuid.NewString(),
		Kind:       domain.KindBraid,
		BraidLevel: 2,
		CreatedAt:  time.Now().UTC(),
		ParentIDs:  []string{"does-not-exist"},
		Content:    map[string]any{},
	}
	_, err := s.Append(ctx, braid)
	require.Error(t, err)
	var inputErr *coreerr.InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestBunStore_UpdateResonanceScores_OptimisticConcurrency(t *testing.T) {
	s, _, cleanup := setupBunStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	st := newLeafStrand(uuid.NewString(), time.Now().UTC())
	_, err := s.Append(ctx, st)
	require.NoError(t, err)

	err = s.UpdateResonanceScores(ctx, st.ID, 1, domain.ResonanceScores{SelectionScore: 0.7})
	require.NoError(t, err)

	// A stale version must be rejected, not silently applied.
	err = s.UpdateResonanceScores(ctx, st.ID, 1, domain.ResonanceScores{SelectionScore: 0.9})
	require.Error(t, err)
	var conflict *coreerr.ConflictError
	assert.ErrorAs(t, err, &conflict)

	got, err := s.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.7, got.ResonanceScores.SelectionScore)
	assert.Equal(t, int64(2), got.Version)
}

func TestBunStore_ByClusterKey_FindsMatchingStrands(t *testing.T) {
	s, _, cleanup := setupBunStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		st := newLeafStrand(uuid.NewString(), now.Add(time.Duration(i)*time.Second))
		_, err := s.Append(ctx, st)
		require.NoError(t, err)
		require.NoError(t, s.SetClusterKeys(ctx, st.ID, map[string]string{"pattern_type": "volume_spike"}))
	}
	// A strand under a different bucket must not be returned.
	other := newLeafStrand(uuid.NewString(), now)
	_, err := s.Append(ctx, other)
	require.NoError(t, err)
	require.NoError(t, s.SetClusterKeys(ctx, other.ID, map[string]string{"pattern_type": "breakout"}))

	cur, err := s.ByClusterKey(ctx, domain.KindPattern, domain.View("pattern_type"), "volume_spike")
	require.NoError(t, err)
	results, err := store.Drain(ctx, cur)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestBunStore_Scan_FiltersByRecencyAndLevel(t *testing.T) {
	s, _, cleanup := setupBunStoreTest(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	old := newLeafStrand(uuid.NewString(), now.Add(-48*time.Hour))
	recent := newLeafStrand(uuid.NewString(), now)
	_, err := s.Append(ctx, old)
	require.NoError(t, err)
	_, err = s.Append(ctx, recent)
	require.NoError(t, err)

	cur, err := s.Scan(ctx, store.ScanQuery{Kind: domain.KindPattern, Since: now.Add(-time.Hour)})
	require.NoError(t, err)
	results, err := store.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, recent.ID, results[0].ID)
}

func TestBunStore_InitSchema_IsIdempotent(t *testing.T) {
	s, _, cleanup := setupBunStoreTest(t)
	defer cleanup()
	require.NoError(t, s.InitSchema(context.Background()))
}

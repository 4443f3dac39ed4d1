package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	enqueued []string
}

func (f *fakeOutbox) Enqueue(ctx context.Context, strandID string, kind domain.StrandKind) error {
	f.enqueued = append(f.enqueued, strandID)
	return nil
}

func newPattern(id string, createdAt time.Time) *domain.Strand {
	return &domain.Strand{
		ID:         id,
		Kind:       domain.KindPattern,
		BraidLevel: 1,
		CreatedAt:  createdAt,
		Symbol:     "SOL",
		Content:    map[string]any{"pattern_type": "breakout"},
	}
}

func TestMemoryStoreAppendAndGet(t *testing.T) {
	ctx := context.Background()
	ob := &fakeOutbox{}
	s := store.NewMemoryStore(ob)

	st := newPattern("p1", time.Now())
	id, err := s.Append(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, "p1", id)
	assert.Equal(t, []string{"p1"}, ob.enqueued)

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.KindPattern, got.Kind)
	assert.EqualValues(t, 1, got.Version)
}

func TestMemoryStoreRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	st := newPattern("dup", time.Now())
	_, err := s.Append(ctx, st)
	require.NoError(t, err)

	_, err = s.Append(ctx, st)
	require.Error(t, err)
	var inputErr *coreerr.InputError
	assert.ErrorAs(t, err, &inputErr)
}

func TestMemoryStoreRejectsBraidWithoutKnownParents(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	braid := &domain.Strand{
		ID:         "b1",
		Kind:       domain.KindBraid,
		BraidLevel: 2,
		CreatedAt:  time.Now(),
		ParentIDs:  []string{"missing"},
		Content:    map[string]any{"summary": "x"},
	}
	_, err := s.Append(ctx, braid)
	require.Error(t, err)
}

func TestMemoryStoreScanOrdersByCreatedThenID(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	base := time.Now()

	_, err := s.Append(ctx, newPattern("b", base))
	require.NoError(t, err)
	_, err = s.Append(ctx, newPattern("a", base))
	require.NoError(t, err)
	_, err = s.Append(ctx, newPattern("z", base.Add(time.Second)))
	require.NoError(t, err)

	cur, err := s.Scan(ctx, store.ScanQuery{Kind: domain.KindPattern})
	require.NoError(t, err)
	results, err := store.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "b", "z"}, []string{results[0].ID, results[1].ID, results[2].ID})
}

func TestMemoryStoreUpdateResonanceScoresVersionCAS(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	_, err := s.Append(ctx, newPattern("p1", time.Now()))
	require.NoError(t, err)

	scores := domain.ResonanceScores{Phi: 0.5, Rho: 0.5, Theta: 0.5, Omega: 1.0, SelectionScore: 0.5}
	err = s.UpdateResonanceScores(ctx, "p1", 1, scores)
	require.NoError(t, err)

	err = s.UpdateResonanceScores(ctx, "p1", 1, scores)
	require.Error(t, err)
	var conflictErr *coreerr.ConflictError
	assert.ErrorAs(t, err, &conflictErr)

	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
}

func TestMemoryStoreByClusterKey(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	st := newPattern("p1", time.Now())
	_, err := s.Append(ctx, st)
	require.NoError(t, err)

	require.NoError(t, s.SetClusterKeys(ctx, "p1", map[string]string{"asset": "SOL"}))

	cur, err := s.ByClusterKey(ctx, domain.KindPattern, domain.View("asset"), "SOL")
	require.NoError(t, err)
	results, err := store.Drain(ctx, cur)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ID)
}

func TestMemoryStoreGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	_, err := s.Get(ctx, "nope")
	require.Error(t, err)
	var nf *coreerr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

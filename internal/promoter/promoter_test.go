package promoter_test

import (
	"context"
	"testing"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/promoter"
	"github.com/lotustrader/learningcore/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendBraid(t *testing.T, s store.StrandStore, id string, level int, parents []string, selectionScore float64) *domain.Strand {
	t.Helper()
	st := &domain.Strand{
		ID:              id,
		Kind:            domain.KindBraid,
		BraidLevel:      level,
		CreatedAt:       time.Now(),
		ParentIDs:       parents,
		Content:         map[string]any{"summary": "x"},
		ResonanceScores: domain.ResonanceScores{SelectionScore: selectionScore},
	}
	if level < 2 {
		st.BraidLevel = 1
		st.ParentIDs = nil
	}
	_, err := s.Append(context.Background(), st)
	require.NoError(t, err)
	return st
}

func TestValidateLineageAcceptsExactlyOneLevelBelow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	leaf := appendBraid(t, s, "leaf1", 1, nil, 0.5)

	braid := &domain.Strand{
		ID: "b1", Kind: domain.KindBraid, BraidLevel: 2, ParentIDs: []string{leaf.ID},
	}
	p := promoter.New(s)
	assert.NoError(t, p.ValidateLineage(ctx, braid))
}

func TestValidateLineageRejectsWrongLevel(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(nil)
	leaf := appendBraid(t, s, "leaf1", 1, nil, 0.5)

	braid := &domain.Strand{
		ID: "b1", Kind: domain.KindBraid, BraidLevel: 3, ParentIDs: []string{leaf.ID},
	}
	p := promoter.New(s)
	assert.Error(t, p.ValidateLineage(ctx, braid))
}

func TestPromotedLevelCapsAtMax(t *testing.T) {
	cluster := &domain.Cluster{
		Members: []*domain.Strand{
			{BraidLevel: 4},
			{BraidLevel: 4},
			{BraidLevel: 4},
		},
	}
	assert.Equal(t, 4, promoter.PromotedLevel(cluster, 4))
}

func TestScoreWeightsBySelectionScore(t *testing.T) {
	cluster := &domain.Cluster{
		Members: []*domain.Strand{
			{ResonanceScores: domain.ResonanceScores{SelectionScore: 0.8, Phi: 1.0}},
			{ResonanceScores: domain.ResonanceScores{SelectionScore: 0.2, Phi: 0.0}},
		},
	}
	p := promoter.New(store.NewMemoryStore(nil))
	scores := p.Score(cluster)
	assert.InDelta(t, 0.8, scores.Phi, 0.01, "the higher-scored parent should dominate the weighted mean")
}

package resonance_test

import (
	"testing"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/resonance"
	"github.com/stretchr/testify/assert"
)

func patternStrand(id, patternType string, confidence, successRate float64) *domain.Strand {
	return &domain.Strand{
		ID:         id,
		Kind:       domain.KindPattern,
		BraidLevel: 1,
		CreatedAt:  time.Now(),
		Content: map[string]any{
			"pattern_type": patternType,
			"confidence":   confidence,
			"success_rate": successRate,
		},
	}
}

func TestScoreBoundsHoldForPattern(t *testing.T) {
	e := resonance.NewEngine()
	s := patternStrand("p1", "breakout", 0.8, 0.7)
	cohort := []*domain.Strand{
		patternStrand("p2", "breakout", 0.6, 0.5),
		patternStrand("p3", "reversal", 0.4, 0.3),
	}

	scores := e.Score("pattern", s, cohort, nil, resonance.CrossModuleFeedback{Weight: 0.3, MinSamples: 10})

	assert.GreaterOrEqual(t, scores.Phi, 0.0)
	assert.LessOrEqual(t, scores.Phi, 1.0)
	assert.GreaterOrEqual(t, scores.Theta, 0.0)
	assert.LessOrEqual(t, scores.Theta, 1.0)
	assert.GreaterOrEqual(t, scores.Omega, 0.0)
	assert.LessOrEqual(t, scores.Omega, 2.0)
	assert.GreaterOrEqual(t, scores.SelectionScore, 0.0)
	assert.LessOrEqual(t, scores.SelectionScore, 1.0)
	assert.True(t, scores.InsufficientHistory, "no history supplied")
	assert.Equal(t, 1.0, scores.Omega, "insufficient history defaults omega to 1.0")
}

func TestOmegaImprovesWithHistory(t *testing.T) {
	e := resonance.NewEngine()
	s := patternStrand("p1", "breakout", 0.9, 0.9)

	history := []resonance.HistoricalObservation{
		{Rank: 0, Accuracy: 0.5},
		{Rank: 1, Accuracy: 0.45},
		{Rank: 2, Accuracy: 0.4},
		{Rank: 3, Accuracy: 0.4},
		{Rank: 4, Accuracy: 0.35},
	}

	scores := e.Score("pattern", s, nil, history, resonance.CrossModuleFeedback{})
	assert.False(t, scores.InsufficientHistory)
	assert.Greater(t, scores.Omega, 1.0, "current accuracy (0.9) beats historical EWMA, omega should exceed 1")
	assert.LessOrEqual(t, scores.Omega, 2.0)
}

func TestCrossModuleFeedbackBlendsWhenEnoughSamples(t *testing.T) {
	e := resonance.NewEngine()
	s := patternStrand("p1", "breakout", 0.5, 0.5)
	downstream := 1.0

	noFeedback := e.Score("pattern", s, nil, nil, resonance.CrossModuleFeedback{
		SuccessRate: &downstream, Weight: 0.3, MinSamples: 10, SampleCount: 2,
	})
	withFeedback := e.Score("pattern", s, nil, nil, resonance.CrossModuleFeedback{
		SuccessRate: &downstream, Weight: 0.3, MinSamples: 10, SampleCount: 20,
	})

	assert.Less(t, noFeedback.Rho, withFeedback.Rho, "feedback only blends in once MinSamples is met")
}

func TestThetaIsZeroForSingleBucketCohort(t *testing.T) {
	e := resonance.NewEngine()
	s := patternStrand("p1", "breakout", 0.5, 0.5)
	cohort := []*domain.Strand{patternStrand("p2", "breakout", 0.6, 0.6)}

	scores := e.Score("pattern", s, cohort, nil, resonance.CrossModuleFeedback{})
	assert.Equal(t, 0.0, scores.Theta, "a single taxonomy bucket carries no diversity")
}

func TestUnknownScorerReturnsNeutral(t *testing.T) {
	e := resonance.NewEngine()
	s := patternStrand("p1", "breakout", 0.5, 0.5)
	scores := e.Score("does_not_exist", s, nil, nil, resonance.CrossModuleFeedback{})
	assert.Equal(t, 1.0, scores.Omega)
	assert.True(t, scores.InsufficientHistory)
}

package coefficients_test

import (
	"testing"
	"time"

	"github.com/lotustrader/learningcore/internal/coefficients"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// EWMA laws (spec §8 testable property 4): weight_short reaches a step
// change in the observed metric faster than weight_long.
func TestEWMAShortReactsFasterThanLong(t *testing.T) {
	u := coefficients.NewUpdater(coefficients.DefaultConfig(), coefficients.DefaultVocabulary)
	now := time.Now()
	entry := domain.EntryContext{Curator: "stepchange"}

	for i := 0; i < 10; i++ {
		u.ApplyClosedTrade(entry, domain.ClosedTrade{RR: 2.0, ExitTimestamp: now}, now)
	}

	c, ok := u.Get("position", "default", "curator", "stepchange")
	require.True(t, ok)
	assert.Greater(t, c.WeightShort, c.WeightLong, "short memory should have moved further toward the new observed value")
}

func TestCoefficientsStayWithinBounds(t *testing.T) {
	u := coefficients.NewUpdater(coefficients.DefaultConfig(), coefficients.DefaultVocabulary)
	now := time.Now()
	entry := domain.EntryContext{Curator: "extreme"}

	for i := 0; i < 20; i++ {
		u.ApplyClosedTrade(entry, domain.ClosedTrade{RR: 50.0, ExitTimestamp: now}, now)
	}

	c, ok := u.Get("position", "default", "curator", "extreme")
	require.True(t, ok)
	assert.LessOrEqual(t, c.WeightShort, domain.DefaultLeverBounds.Max)
	assert.GreaterOrEqual(t, c.WeightShort, domain.DefaultLeverBounds.Min)
}

func TestObservationCountIncrements(t *testing.T) {
	u := coefficients.NewUpdater(coefficients.DefaultConfig(), coefficients.DefaultVocabulary)
	now := time.Now()
	entry := domain.EntryContext{Curator: "counted"}

	u.ApplyClosedTrade(entry, domain.ClosedTrade{RR: 1.0, ExitTimestamp: now}, now)
	u.ApplyClosedTrade(entry, domain.ClosedTrade{RR: 1.0, ExitTimestamp: now}, now)

	c, ok := u.Get("position", "default", "curator", "counted")
	require.True(t, ok)
	assert.EqualValues(t, 2, c.ObservationCount)
}

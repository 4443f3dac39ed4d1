package coefficients

import (
	"testing"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S3 — outcome -> coefficient update, spec §8 scenario S3.
func TestS3OutcomeUpdatesCoefficients(t *testing.T) {
	u := NewUpdater(DefaultConfig(), DefaultVocabulary)
	now := time.Now()
	entry := domain.EntryContext{
		Curator: "A", Chain: "base", MCapBucket: "1m-2m", VolBucket: "250k-500k", AgeBucket: "3-7d",
	}
	trade := domain.ClosedTrade{RR: 1.42, ExitTimestamp: now.Add(-7 * 24 * time.Hour)}

	alphaShort, _ := u.decayWeights(7)
	assert.InDelta(t, 0.378, alphaShort, 0.001)

	u.ApplyClosedTrade(entry, trade, now)

	curator, ok := u.Get("position", "default", "curator", "A")
	require.True(t, ok)
	expected := 0.622*1.0 + 0.378*1.42
	assert.InDelta(t, expected, curator.WeightShort, 0.005)

	interaction, ok := u.Get("position", "default", "interaction", "curator=A|chain=base|cap=1m-2m|vol=250k-500k|age=3-7d")
	require.True(t, ok)
	assert.InDelta(t, expected, interaction.WeightShort, 0.005)
}

// S4 — importance bleed, spec §8 scenario S4.
func TestS4ImportanceBleed(t *testing.T) {
	u := NewUpdater(DefaultConfig(), DefaultVocabulary)
	now := time.Now()

	// Seed state directly: interaction already at 1.5 (beyond threshold),
	// single-lever weights at the scenario's starting values.
	u.table.Store(u.storageKey("position", "default", "curator", "A"), &domain.Coefficient{
		CoefficientKey: domain.CoefficientKey{Module: "position", Scope: "default", Name: "curator", Key: "A"},
		WeightShort:    1.3, WeightLong: 1.3,
	})
	u.table.Store(u.storageKey("position", "default", "chain", "base"), &domain.Coefficient{
		CoefficientKey: domain.CoefficientKey{Module: "position", Scope: "default", Name: "chain", Key: "base"},
		WeightShort:    1.4, WeightLong: 1.4,
	})
	u.table.Store(u.storageKey("position", "default", "interaction", "curator=A|chain=base"), &domain.Coefficient{
		CoefficientKey: domain.CoefficientKey{Module: "position", Scope: "default", Name: "interaction", Key: "curator=A|chain=base"},
		WeightShort:    1.5, WeightLong: 1.5,
	})

	curatorBled := u.bleedOne("position", "default", "curator", "A", now)
	chainBled := u.bleedOne("position", "default", "chain", "base", now)

	require.NotNil(t, curatorBled)
	require.NotNil(t, chainBled)
	assert.InDelta(t, 1.24, curatorBled.WeightShort, 0.001)
	assert.InDelta(t, 1.32, chainBled.WeightShort, 0.001)
}

func TestImportanceBleedTriggersAutomaticallyWhenInteractionMoves(t *testing.T) {
	u := NewUpdater(DefaultConfig(), DefaultVocabulary)
	now := time.Now()
	entry := domain.EntryContext{Curator: "A", Chain: "base"}

	// Large repeated positive outcome pushes the interaction weight well
	// away from 1, which should trigger bleed on curator/chain.
	for i := 0; i < 5; i++ {
		u.ApplyClosedTrade(entry, domain.ClosedTrade{RR: 2.0, ExitTimestamp: now}, now)
	}

	curator, ok := u.Get("position", "default", "curator", "A")
	require.True(t, ok)
	assert.NotEqual(t, 1.0, curator.WeightShort)

	// curator and the interaction see the same observations; only the
	// bleed pulls curator back toward 1, so it ends below the interaction.
	interaction, ok := u.Get("position", "default", "interaction", "curator=A|chain=base")
	require.True(t, ok)
	assert.Less(t, curator.WeightShort, interaction.WeightShort)
}

package learningcore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	learningcore "github.com/lotustrader/learningcore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFacadeWiresMinimalBraidFormation exercises the public
// constructors end to end: three pattern strands through a Coordinator
// wired entirely via the learningcore package should braid into one
// level-2 strand, mirroring the internal coordinator package's own
// scenario but proving the facade alone is sufficient to wire it.
func TestFacadeWiresMinimalBraidFormation(t *testing.T) {
	registry, err := learningcore.NewPromptRegistry()
	require.NoError(t, err)

	mock := learningcore.NewMockCapability()
	mock.Responses["braid_pattern"] = json.RawMessage(
		`{"summary":"volume spikes precede continuation","insights":["trending regimes"],"recommended_scope":"BTC 1m","confidence":0.8}`,
	)

	q := learningcore.NewMemoryQueue(5)
	s := learningcore.NewMemoryStore(q)

	cls := learningcore.NewClassifier()
	res := learningcore.NewResonanceEngine()
	clu := learningcore.NewClusteringEngine(zerolog.Nop())
	br := learningcore.NewBraider(s, registry, mock, 3, zerolog.Nop())
	pr := learningcore.NewPromoter(s)
	coef := learningcore.NewCoefficientUpdater(learningcore.DefaultCoefficientConfig(), learningcore.DefaultBucketVocabulary())

	coord := learningcore.NewCoordinator(s, cls, res, clu, br, pr, coef, nil, learningcore.DefaultCoordinatorConfig(), zerolog.Nop())

	ctx := context.Background()
	now := time.Now()
	for i, id := range []string{"leaf-a", "leaf-b", "leaf-c"} {
		st := &learningcore.Strand{
			ID:         id,
			Kind:       learningcore.KindPattern,
			BraidLevel: 1,
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
			Symbol:     "BTC",
			Timeframe:  "1m",
			Content:    map[string]any{"pattern_type": "volume_spike"},
		}
		_, err := s.Append(ctx, st)
		require.NoError(t, err)
		require.NoError(t, coord.Handle(ctx, learningcore.Item{ID: st.ID, StrandID: st.ID, Kind: st.Kind}))
	}

	cur, err := s.Scan(ctx, learningcore.ScanQuery{Kind: learningcore.KindBraid})
	require.NoError(t, err)
	var created []*learningcore.Strand
	for {
		st, ok, err := cur.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		created = append(created, st)
	}

	require.Len(t, created, 1)
	assert.Equal(t, 2, created[0].BraidLevel)
	assert.ElementsMatch(t, []string{"leaf-a", "leaf-b", "leaf-c"}, created[0].ParentIDs)
}

// TestLoadConfigDefaults confirms the public Config facade surfaces the
// coreconfig defaults without requiring any environment variables.
func TestLoadConfigDefaults(t *testing.T) {
	cfg := learningcore.LoadConfig()
	assert.Equal(t, 14*24*time.Hour, cfg.TauShort)
	assert.Equal(t, 90*24*time.Hour, cfg.TauLong)
	assert.Equal(t, "8080", cfg.Port)
}

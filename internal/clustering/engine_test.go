package clustering_test

import (
	"testing"
	"time"

	"github.com/lotustrader/learningcore/internal/clustering"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func volumeSpike(id string, createdAt time.Time) *domain.Strand {
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

func patternConfig() domain.LearningConfig {
	return domain.LearningConfig{
		Kind: domain.KindPattern,
		Views: []domain.ViewConfig{
			{Name: "asset_timeframe_pattern", Expr: `symbol + "|" + timeframe + "|" + pattern_type`},
		},
		MinClusterSize: 3,
	}
}

// S1 — three identical pattern strands form exactly one cluster on the
// (asset, timeframe, pattern_type) view.
func TestS1MinimalBraidFormation(t *testing.T) {
	e := clustering.NewEngine(zerolog.Nop())
	cfg := patternConfig()
	now := time.Now()
	strands := []*domain.Strand{
		volumeSpike("s1", now),
		volumeSpike("s2", now.Add(time.Second)),
		volumeSpike("s3", now.Add(2 * time.Second)),
	}

	clusters := e.Partition(cfg, cfg.Views[0], strands, now.Truncate(time.Hour))
	require.Len(t, clusters, 1)
	assert.Equal(t, "BTC|1m|volume_spike", clusters[0].ID.Bucket)
	assert.Len(t, clusters[0].Members, 3)
	assert.Equal(t, []string{"s1", "s2", "s3"}, clusters[0].ParentIDs())
}

// S2 — two strands never complete a cluster; a third does.
func TestS2NoBraidBelowThreshold(t *testing.T) {
	e := clustering.NewEngine(zerolog.Nop())
	cfg := patternConfig()
	now := time.Now()
	strands := []*domain.Strand{
		volumeSpike("s1", now),
		volumeSpike("s2", now.Add(time.Second)),
	}

	clusters := e.Partition(cfg, cfg.Views[0], strands, now.Truncate(time.Hour))
	assert.Empty(t, clusters, "two members is below the default minimum cluster size of 3")

	strands = append(strands, volumeSpike("s3", now.Add(2*time.Second)))
	clusters = e.Partition(cfg, cfg.Views[0], strands, now.Truncate(time.Hour))
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 3)
}

func TestBucketExcludesStrandsThatFailToEvaluate(t *testing.T) {
	e := clustering.NewEngine(zerolog.Nop())
	view := domain.ViewConfig{Name: "mcap", Expr: `mcap_bucket`}
	s := &domain.Strand{ID: "p1", Kind: domain.KindPattern, Content: map[string]any{}}

	_, ok := e.Bucket(view, s)
	assert.False(t, ok, "missing field yields no bucket, not an error")
}

func TestBucketDeterminism(t *testing.T) {
	e := clustering.NewEngine(zerolog.Nop())
	view := domain.ViewConfig{Name: "mcap", Expr: `mcap_bucket`}
	s := &domain.Strand{ID: "p1", Kind: domain.KindPattern, Content: map[string]any{"mcap_bucket": "1m-2m"}}

	b1, ok1 := e.Bucket(view, s)
	b2, ok2 := e.Bucket(view, s)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, b1, b2)
}

// Package promoter implements the Braid Promoter (C7): enforcing
// max_braid_level, computing parent-weighted scores for higher-order
// braids, and maintaining lineage invariants (spec §4.7).
package promoter

import (
	"context"
	"fmt"

	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/resonance"
	"github.com/lotustrader/learningcore/internal/store"
)

// Promoter validates the lineage of braids of braids and computes their
// levels and parent-weighted scores. It does no clustering itself: the
// Coordinator re-clusters braids and hands ready clusters to the
// Braider, then checks the result with ValidateLineage.
type Promoter struct {
	store store.StrandStore
}

// New wires a Promoter against the strand store.
func New(s store.StrandStore) *Promoter {
	return &Promoter{store: s}
}

// ValidateLineage enforces spec §4.7's lineage invariant: a braid's
// parent_ids must be braids of exactly level-1 (or leaf strands, for a
// level-2 braid).
func (p *Promoter) ValidateLineage(ctx context.Context, braid *domain.Strand) error {
	for _, pid := range braid.ParentIDs {
		parent, err := p.store.Get(ctx, pid)
		if err != nil {
			return coreerr.NewInput(fmt.Sprintf("parent %s not found", pid), err)
		}
		if parent.BraidLevel != braid.BraidLevel-1 {
			return coreerr.NewInput(
				fmt.Sprintf("parent %s has braid_level %d, expected %d", pid, parent.BraidLevel, braid.BraidLevel-1),
				nil,
			)
		}
	}
	return nil
}

// PromotedLevel computes the next braid's level, capped at maxLevel
// (spec §4.6 step 5 / §4.7 "enforcing max_braid_level").
func PromotedLevel(cluster *domain.Cluster, maxLevel int) int {
	next := cluster.MaxParentLevel() + 1
	if next > maxLevel {
		return maxLevel
	}
	return next
}

// Score computes the parent-weighted resonance scores for a braid of
// braids, reusing the same normalized-by-selection_score weighting C6
// uses for leaf clusters (spec §4.7 "Weighting").
func (p *Promoter) Score(cluster *domain.Cluster) domain.ResonanceScores {
	return resonance.AggregateParents(cluster.Members)
}

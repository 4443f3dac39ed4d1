package domain

import "time"

// View names one of a kind's orthogonal clustering dimensions (spec §4.5),
// e.g. "asset", "timeframe", "mcap_bucket", "outcome_bucket".
type View string

// BucketerExpr is an expr-lang expression string that maps a strand's
// decoded content (exposed to the expression as top-level variables) to
// a bucket label. It must be a pure, deterministic function of its
// inputs — the Clustering Engine gives identical inputs identical
// buckets (spec §4.5 "Determinism").
type BucketerExpr string

// ViewConfig is one view of a kind's LearningConfig: its name, the
// bucketer expression, and an optional per-view minimum cluster size.
type ViewConfig struct {
	Name    View
	Expr    BucketerExpr
	// MinSize overrides the kind-level minimum cluster size for this
	// view when non-zero.
	MinSize int
}

// LearningConfig is the static per-kind record the Strand Classifier
// (C3) resolves (spec §3 "LearningConfig", §4.3). A LearningConfig with
// an empty ScorerID and no Views is the "passive" config: strands of that
// kind are recorded but never clustered or braided.
type LearningConfig struct {
	Kind StrandKind

	// Views to cluster along (C5).
	Views []ViewConfig

	// ScorerID names the module scorer (C4) to use; empty means passive.
	ScorerID string

	// BraidPromptID is the Prompt Registry id used to synthesize braids
	// for clusters of this kind (C6), e.g. "braid_pattern".
	BraidPromptID string

	// MinClusterSize below which a bucket is not emitted as a cluster
	// (spec §4.5 default 3).
	MinClusterSize int

	// MaxBraidLevel this kind's braids may be promoted to (C7).
	MaxBraidLevel int

	// RecencyWindow bounds how far back clustering/braiding looks, and
	// how long a cluster must wait before it can be re-braided.
	RecencyWindow time.Duration
}

// IsPassive reports whether strands of this kind are recorded only,
// never clustered or braided (spec §4.3).
func (c LearningConfig) IsPassive() bool {
	return c.ScorerID == "" && len(c.Views) == 0
}

// ClusterID identifies an ephemeral cluster by its coordinates (spec
// §4.5 "Clusters are identified by (kind, view, bucket, window_start)").
type ClusterID struct {
	Kind        StrandKind
	View        View
	Bucket      string
	WindowStart time.Time
}

// Cluster is an ephemeral grouping of leaf strands or braids sharing one
// view's bucket label (spec §3 "Cluster"). It is never persisted on its
// own; only its member ids (as a future braid's ParentIDs) and the
// strands' ClusterKeys record its existence.
type Cluster struct {
	ID      ClusterID
	Members []*Strand
}

// Ready reports whether the cluster has reached the minimum size needed
// to become a braid candidate.
func (c *Cluster) Ready(minSize int) bool {
	return len(c.Members) >= minSize
}

// MaxParentLevel returns the highest braid_level among the cluster's
// members, used by C6 to compute the new braid's level.
func (c *Cluster) MaxParentLevel() int {
	max := 0
	for _, m := range c.Members {
		if m.BraidLevel > max {
			max = m.BraidLevel
		}
	}
	return max
}

// ParentIDs returns the member strand ids in deterministic order
// (created_at then id, per spec §4.5's tie-break rule).
func (c *Cluster) ParentIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

// Package clustering implements the Clustering Engine (C5): multi-view
// bucketing of strands sharing a kind, via expr-lang bucketer
// expressions declared per LearningConfig view (spec §4.5).
//
// Compiled expr-lang programs are cached by expression text under a
// mutex, since compilation is the expensive part and expressions
// repeat across every strand bucketed by a given view.
package clustering

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/rs/zerolog"
)

// Engine buckets strands along a kind's configured views and groups
// same-bucket strands into candidate clusters.
type Engine struct {
	mu       sync.RWMutex
	programs map[domain.BucketerExpr]*vm.Program
	log      zerolog.Logger
}

// NewEngine builds an Engine with an empty compiled-program cache.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		programs: make(map[domain.BucketerExpr]*vm.Program),
		log:      log,
	}
}

func (e *Engine) compile(bucketer domain.BucketerExpr) (*vm.Program, error) {
	e.mu.RLock()
	if p, ok := e.programs[bucketer]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	program, err := expr.Compile(string(bucketer), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile bucketer %q: %w", bucketer, err)
	}

	e.mu.Lock()
	e.programs[bucketer] = program
	e.mu.Unlock()
	return program, nil
}

// Bucket evaluates a single view's bucketer against a strand's decoded
// content, returning the bucket label. A strand that cannot be
// bucketed (missing field, non-string result) is excluded from the
// view — logged, not errored (spec §4.5 "Failure modes").
func (e *Engine) Bucket(view domain.ViewConfig, s *domain.Strand) (string, bool) {
	program, err := e.compile(view.Expr)
	if err != nil {
		e.log.Warn().Err(err).Str("view", string(view.Name)).Msg("bucketer expression failed to compile")
		return "", false
	}

	env := make(map[string]any, len(s.Content)+3)
	for k, v := range s.Content {
		env[k] = v
	}
	env["symbol"] = s.Symbol
	env["timeframe"] = s.Timeframe
	env["regime"] = s.Regime

	out, err := expr.Run(program, env)
	if err != nil {
		e.log.Debug().Err(err).Str("strand_id", s.ID).Str("view", string(view.Name)).
			Msg("strand excluded from view: bucketer evaluation failed")
		return "", false
	}
	label, ok := out.(string)
	if !ok || label == "" {
		e.log.Debug().Str("strand_id", s.ID).Str("view", string(view.Name)).
			Msg("strand excluded from view: bucketer produced no usable label")
		return "", false
	}
	return label, true
}

// Partition groups strands into clusters along one view, keyed by
// bucket label, applying the view's (or the kind's default) minimum
// cluster size. Only buckets meeting the minimum are returned as
// clusters (spec §4.5).
func (e *Engine) Partition(cfg domain.LearningConfig, view domain.ViewConfig, strands []*domain.Strand, windowStart time.Time) []*domain.Cluster {
	minSize := view.MinSize
	if minSize == 0 {
		minSize = cfg.MinClusterSize
	}
	if minSize == 0 {
		minSize = 3
	}

	byBucket := make(map[string][]*domain.Strand)
	for _, s := range strands {
		label, ok := e.Bucket(view, s)
		if !ok {
			continue
		}
		byBucket[label] = append(byBucket[label], s)
	}

	var clusters []*domain.Cluster
	for bucket, members := range byBucket {
		sortMembers(members)
		c := &domain.Cluster{
			ID: domain.ClusterID{
				Kind:        cfg.Kind,
				View:        view.Name,
				Bucket:      bucket,
				WindowStart: windowStart,
			},
			Members: members,
		}
		if c.Ready(minSize) {
			clusters = append(clusters, c)
		}
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID.Bucket < clusters[j].ID.Bucket })
	return clusters
}

// PartitionAll runs Partition for every view in the kind's
// LearningConfig. Views are orthogonal by construction (the vocabulary
// enumerates non-redundant bucketers per kind, spec §4.5); the engine
// itself does not attempt to detect or collapse overlapping views.
func (e *Engine) PartitionAll(cfg domain.LearningConfig, strands []*domain.Strand, windowStart time.Time) map[domain.View][]*domain.Cluster {
	out := make(map[domain.View][]*domain.Cluster, len(cfg.Views))
	for _, v := range cfg.Views {
		out[v.Name] = e.Partition(cfg, v, strands, windowStart)
	}
	return out
}

func sortMembers(members []*domain.Strand) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})
}

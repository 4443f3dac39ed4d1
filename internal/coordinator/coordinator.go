// Package coordinator implements the Coordinator (C11): the single
// logical orchestrator that drains C2, runs classify -> score -> cluster
// -> braid -> promote for each item, and fans outcome strands out to C8
// (spec §4.11).
package coordinator

import (
	"context"
	"strings"
	"time"

	"github.com/lotustrader/learningcore/internal/braider"
	"github.com/lotustrader/learningcore/internal/classifier"
	"github.com/lotustrader/learningcore/internal/clustering"
	"github.com/lotustrader/learningcore/internal/coefficients"
	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/metrics"
	"github.com/lotustrader/learningcore/internal/promoter"
	"github.com/lotustrader/learningcore/internal/queue"
	"github.com/lotustrader/learningcore/internal/resonance"
	"github.com/lotustrader/learningcore/internal/store"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer provides the spans around each pipeline stage (spec §4.11's
// "traceable end to end"). It resolves against whatever
// TracerProvider the embedding process registers globally via
// otel.SetTracerProvider; absent one, spans are recorded by otel's
// built-in no-op implementation.
var tracer = otel.Tracer("github.com/lotustrader/learningcore/internal/coordinator")

// ClusterKeySetter is implemented by stores that can persist a
// strand's materialized cluster_keys (spec §3). Both StrandStore
// implementations in this module satisfy it; it is kept separate from
// StrandStore because cluster_keys are a side channel, not part of the
// store's core append/scan/update contract.
type ClusterKeySetter interface {
	SetClusterKeys(ctx context.Context, id string, keys map[string]string) error
}

// Config bundles the Coordinator's tunables (spec §6's configuration
// object: cross-module feedback weight/min-samples, worker
// concurrency).
type Config struct {
	// Concurrency bounds how many items are processed at once.
	Concurrency int

	// CrossModuleWeight is ρ's capped weight for the downstream
	// success-rate term (spec §4.4 default 0.3).
	CrossModuleWeight float64

	// CrossModuleMinSamples below which the downstream term defaults to
	// neutral (spec §4.4 default 10).
	CrossModuleMinSamples int

	// ScoreUpdateRetries bounds the optimistic-concurrency retry loop
	// for the idempotent resonance_scores write-back.
	ScoreUpdateRetries int
}

// DefaultConfig is the configuration spec §4.4/§4.11 name as defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:           8,
		CrossModuleWeight:     0.3,
		CrossModuleMinSamples: 10,
		ScoreUpdateRetries:    3,
	}
}

// Coordinator wires C1-C8 together behind one Handler the Dispatcher
// drains the Queue into.
type Coordinator struct {
	store        store.StrandStore
	classifier   *classifier.Classifier
	resonance    *resonance.Engine
	clustering   *clustering.Engine
	braider      *braider.Braider
	promoter     *promoter.Promoter
	coefficients *coefficients.Updater

	observers *ObserverManager
	metrics   metrics.Coordinator
	cfg       Config
	log       zerolog.Logger
}

// New wires a Coordinator. m may be nil. Register an Observer (e.g. one
// that invalidates a context.Cache per affected consumer) via
// Observers().Register before calling Handle/Run.
func New(
	s store.StrandStore,
	cls *classifier.Classifier,
	res *resonance.Engine,
	clu *clustering.Engine,
	br *braider.Braider,
	pr *promoter.Promoter,
	coef *coefficients.Updater,
	m metrics.Coordinator,
	cfg Config,
	log zerolog.Logger,
) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.ScoreUpdateRetries <= 0 {
		cfg.ScoreUpdateRetries = 3
	}
	return &Coordinator{
		store:        s,
		classifier:   cls,
		resonance:    res,
		clustering:   clu,
		braider:      br,
		promoter:     pr,
		coefficients: coef,
		observers:    NewObserverManager(),
		metrics:      m,
		cfg:          cfg,
		log:          log,
	}
}

// Observers exposes the Coordinator's ObserverManager so callers can
// register metrics/cache-invalidation/logging observers before Run.
func (c *Coordinator) Observers() *ObserverManager { return c.observers }

// Handle is the queue.Handler the Dispatcher drives. A score write-back
// that still hits a version conflict after Config.ScoreUpdateRetries
// fresh reads is skipped and processing goes on; any other failed score
// write-back returns an error, so the item is nacked and retried. A
// failed cluster-key write or braid attempt is only logged: Handle still
// returns nil and the item is acked, and the braid is not retried
// through this item.
func (c *Coordinator) Handle(ctx context.Context, item queue.Item) error {
	ctx, span := tracer.Start(ctx, "coordinator.Handle", trace.WithAttributes(
		attribute.String("strand.id", item.StrandID),
		attribute.String("strand.kind", string(item.Kind)),
	))
	defer span.End()

	now := time.Now().UTC()

	strand, err := c.store.Get(ctx, item.StrandID)
	if err != nil {
		// The strand was appended in the same commit as this queue item
		// (spec §4.2 outbox co-commit); a missing strand is a corrupt
		// item, not a transient condition, so it is never retried.
		c.fail(item, err)
		return coreerr.NewInput("strand not found for queue item", err)
	}

	var procErr error
	if strand.Kind == domain.KindBraid {
		procErr = c.handleBraidItem(ctx, strand, now)
	} else {
		procErr = c.handleLeafItem(ctx, strand, now)
	}

	if procErr != nil {
		span.RecordError(procErr)
		c.fail(item, procErr)
		return procErr
	}

	if c.metrics != nil {
		c.metrics.Processed().Inc()
	}
	c.observers.notifyProcessed(item)
	return nil
}

func (c *Coordinator) fail(item queue.Item, err error) {
	if c.metrics != nil {
		c.metrics.Failures().Inc()
	}
	c.observers.notifyFailure(item, err)
}

// handleLeafItem runs classify -> score -> cluster -> braid for a
// level-1 strand, and fans position_closed strands out to C8.
func (c *Coordinator) handleLeafItem(ctx context.Context, strand *domain.Strand, now time.Time) error {
	ctx, classifySpan := tracer.Start(ctx, "coordinator.classify")
	cfg := c.classifier.Resolve(strand.Kind)
	classifySpan.End()

	if strand.Kind == domain.KindPositionClosed {
		return c.applyClosedPosition(strand)
	}

	if cfg.IsPassive() {
		return nil // recorded only, spec §4.3
	}

	since := now.Add(-cfg.RecencyWindow)
	scanned, err := c.scanKind(ctx, strand.Kind, since)
	if err != nil {
		return coreerr.NewTransient("scan cohort", err)
	}
	cohort := excludeID(scanned, strand.ID)

	ctx, scoreSpan := tracer.Start(ctx, "coordinator.score", trace.WithAttributes(attribute.Int("cohort.size", len(cohort))))
	score := c.scoreStrand(ctx, cfg, strand, cohort, since)
	scoreSpan.End()

	if err := c.writeScoreBack(ctx, strand.ID, score); err != nil {
		return err
	}
	strand.ResonanceScores = score

	all := append(append([]*domain.Strand{}, cohort...), strand)

	ctx, clusterSpan := tracer.Start(ctx, "coordinator.cluster")
	defer clusterSpan.End()
	// braidedMembers holds the member sets already handed to the braider
	// in this call, so a view whose cluster collapses to the same strands
	// as an earlier view's cluster is not braided a second time.
	braidedMembers := map[string]bool{}
	for _, view := range cfg.Views {
		if bucket, ok := c.clustering.Bucket(view, strand); ok {
			if setter, ok := c.store.(ClusterKeySetter); ok {
				if err := setter.SetClusterKeys(ctx, strand.ID, map[string]string{string(view.Name): bucket}); err != nil {
					c.log.Warn().Err(err).Str("strand_id", strand.ID).Msg("coordinator: set cluster keys failed")
				}
			}
		}

		windowStart := since
		clusters := c.clustering.Partition(cfg, view, all, windowStart)
		for _, cluster := range clusters {
			if !clusterContains(cluster, strand.ID) {
				continue
			}
			memberSet := strings.Join(cluster.ParentIDs(), ",")
			if braidedMembers[memberSet] {
				continue
			}
			braidedMembers[memberSet] = true
			if err := c.braidCluster(ctx, cfg, cluster, now); err != nil {
				c.log.Warn().Err(err).Str("view", string(view.Name)).Msg("coordinator: braid attempt failed")
			}
		}
	}

	return nil
}

// handleBraidItem re-clusters braids of the same level into the next
// level up, resolving the origin leaf kind's LearningConfig via the
// braid's origin tag.
func (c *Coordinator) handleBraidItem(ctx context.Context, strand *domain.Strand, now time.Time) error {
	originKind, ok := originKindOf(strand)
	if !ok {
		return nil // no known origin, nothing further to promote
	}
	cfg := c.classifier.Resolve(originKind)
	if cfg.IsPassive() || strand.BraidLevel >= cfg.MaxBraidLevel {
		return nil
	}

	viewName, bucket, ok := singleClusterKey(strand)
	if !ok {
		return nil
	}
	var view domain.ViewConfig
	found := false
	for _, v := range cfg.Views {
		if v.Name == viewName {
			view = v
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	cur, err := c.store.ByClusterKey(ctx, domain.KindBraid, viewName, bucket)
	if err != nil {
		return coreerr.NewTransient("by cluster key", err)
	}
	members, err := store.Drain(ctx, cur)
	if err != nil {
		return coreerr.NewTransient("drain cluster key cursor", err)
	}

	var sameLevel []*domain.Strand
	for _, m := range members {
		if m.BraidLevel == strand.BraidLevel {
			sameLevel = append(sameLevel, m)
		}
	}

	minSize := view.MinSize
	if minSize <= 0 {
		minSize = cfg.MinClusterSize
	}
	cluster := &domain.Cluster{
		ID: domain.ClusterID{
			Kind:        domain.KindBraid,
			View:        viewName,
			Bucket:      bucket,
			WindowStart: now.Add(-cfg.RecencyWindow),
		},
		Members: sameLevel,
	}
	if !cluster.Ready(minSize) || !clusterContains(cluster, strand.ID) {
		return nil
	}

	ctx, promoteSpan := tracer.Start(ctx, "coordinator.promote", trace.WithAttributes(
		attribute.Int("braid.level", strand.BraidLevel),
	))
	defer promoteSpan.End()

	promoted, err := c.braider.Braid(ctx, cfg, cluster, now)
	if err != nil {
		promoteSpan.RecordError(err)
		return err
	}
	if promoted == nil {
		return nil
	}
	if err := c.promoter.ValidateLineage(ctx, promoted); err != nil {
		promoteSpan.RecordError(err)
		c.log.Error().Err(err).Str("braid_id", promoted.ID).Msg("coordinator: promoted braid failed lineage validation")
		return coreerr.NewInput("promoted braid failed lineage validation", err)
	}
	c.onBraidCreated(promoted)
	return nil
}

func (c *Coordinator) braidCluster(ctx context.Context, cfg domain.LearningConfig, cluster *domain.Cluster, now time.Time) error {
	ctx, span := tracer.Start(ctx, "coordinator.braid", trace.WithAttributes(
		attribute.Int("cluster.size", len(cluster.Members)),
	))
	defer span.End()

	braid, err := c.braider.Braid(ctx, cfg, cluster, now)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if braid == nil {
		return nil // already braided within the recency window
	}
	c.onBraidCreated(braid)
	return nil
}

func (c *Coordinator) onBraidCreated(braid *domain.Strand) {
	if c.metrics != nil {
		c.metrics.BraidsCreated().Inc()
	}
	c.observers.notifyBraidCreated(braid)
}

func (c *Coordinator) applyClosedPosition(strand *domain.Strand) error {
	var content domain.PositionClosedContent
	if err := strand.DecodeContent(&content); err != nil {
		return coreerr.NewInput("decode position_closed content", err)
	}
	for _, trade := range content.CompletedTrades {
		c.coefficients.ApplyClosedTrade(content.EntryContext, trade, strand.CreatedAt)
	}
	return nil
}

func (c *Coordinator) scoreStrand(ctx context.Context, cfg domain.LearningConfig, strand *domain.Strand, cohort []*domain.Strand, since time.Time) domain.ResonanceScores {
	var history []resonance.HistoricalObservation
	if sc, ok := c.resonance.Scorer(cfg.ScorerID); ok {
		bucket := sc.TaxonomyBucket(strand)
		// cohort is in created_at ascending order; walk it backwards so
		// rank 0 is the most recent observation.
		rank := 0
		for i := len(cohort) - 1; i >= 0; i-- {
			m := cohort[i]
			if sc.TaxonomyBucket(m) != bucket {
				continue
			}
			history = append(history, resonance.HistoricalObservation{Rank: rank, Accuracy: m.ResonanceScores.SelectionScore})
			rank++
		}
	}

	feedback := crossModuleFeedback(ctx, c.store, strand, since, c.cfg.CrossModuleMinSamples, c.cfg.CrossModuleWeight)
	return c.resonance.Score(cfg.ScorerID, strand, cohort, history, feedback)
}

func (c *Coordinator) writeScoreBack(ctx context.Context, id string, score domain.ResonanceScores) error {
	for attempt := 0; attempt < c.cfg.ScoreUpdateRetries; attempt++ {
		current, err := c.store.Get(ctx, id)
		if err != nil {
			return coreerr.NewTransient("reload strand before score write-back", err)
		}
		err = c.store.UpdateResonanceScores(ctx, id, current.Version, score)
		if err == nil {
			return nil
		}
		if _, isConflict := err.(*coreerr.ConflictError); isConflict {
			continue // spec §7: conflict retried with a fresh read
		}
		return coreerr.NewTransient("update resonance scores", err)
	}
	c.log.Warn().Str("strand_id", id).Int("attempts", c.cfg.ScoreUpdateRetries).Msg("coordinator: score write-back skipped after repeated version conflicts")
	return nil
}

func (c *Coordinator) scanKind(ctx context.Context, kind domain.StrandKind, since time.Time) ([]*domain.Strand, error) {
	cur, err := c.store.Scan(ctx, store.ScanQuery{Kind: kind, Since: since})
	if err != nil {
		return nil, err
	}
	return store.Drain(ctx, cur)
}

func excludeID(strands []*domain.Strand, id string) []*domain.Strand {
	out := make([]*domain.Strand, 0, len(strands))
	for _, s := range strands {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}

func clusterContains(cluster *domain.Cluster, id string) bool {
	for _, m := range cluster.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

func originKindOf(strand *domain.Strand) (domain.StrandKind, bool) {
	prefix := domain.OriginKindTagPrefix
	for _, t := range strand.Tags {
		if len(t) > len(prefix) && t[:len(prefix)] == prefix {
			return domain.StrandKind(t[len(prefix):]), true
		}
	}
	return "", false
}

func singleClusterKey(strand *domain.Strand) (domain.View, string, bool) {
	for k, v := range strand.ClusterKeys {
		return domain.View(k), v, true
	}
	return "", "", false
}

// NewDispatcher builds a queue.Dispatcher wired to this Coordinator's
// Handle method, with concurrency set from Config.Concurrency (spec
// §4.11's bounded worker pool).
func (c *Coordinator) NewDispatcher(q queue.Queue, batchSize int, visibility, poll, retryInterval time.Duration) *queue.Dispatcher {
	d := queue.NewDispatcher(q, c.Handle, batchSize, visibility, poll, retryInterval, c.log)
	d.SetConcurrency(c.cfg.Concurrency)
	return d
}

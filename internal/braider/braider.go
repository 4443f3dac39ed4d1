// Package braider implements the LLM Braider (C6): deduplicated,
// template-driven synthesis of cluster -> braid records, with schema
// validation and retries (spec §4.6).
package braider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/llm"
	"github.com/lotustrader/learningcore/internal/prompts"
	"github.com/lotustrader/learningcore/internal/resonance"
	"github.com/lotustrader/learningcore/internal/store"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("github.com/lotustrader/learningcore/internal/braider")

// defaultMaxConcurrentLLMCalls bounds how many LLM requests this
// Braider has in flight at once, independent of how many dispatcher
// workers are calling Braid concurrently (spec §4.6: clusters across
// many views can become ready in the same tick, but the LLM provider's
// own rate limit is per-process, not per-worker).
const defaultMaxConcurrentLLMCalls = 4

// Braider turns ready clusters into braid strands.
type Braider struct {
	store    store.StrandStore
	registry *prompts.Registry
	llm      llm.Capability
	ledger   *Ledger
	validate *validator.Validate
	log      zerolog.Logger

	maxRetries int
	llmSem     *semaphore.Weighted
}

// New wires a Braider. maxRetries bounds the schema/transient retry
// loop of spec §4.6 step 4 ("retry up to K times with jittered backoff").
// Concurrent LLM calls are bounded independently via
// SetMaxConcurrentLLMCalls; New defaults to defaultMaxConcurrentLLMCalls.
func New(s store.StrandStore, registry *prompts.Registry, capability llm.Capability, maxRetries int, log zerolog.Logger) *Braider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Braider{
		store:      s,
		registry:   registry,
		llm:        capability,
		ledger:     NewLedger(),
		validate:   validator.New(),
		log:        log,
		maxRetries: maxRetries,
		llmSem:     semaphore.NewWeighted(defaultMaxConcurrentLLMCalls),
	}
}

// SetMaxConcurrentLLMCalls replaces the default concurrency bound on
// in-flight LLM calls this Braider will allow.
func (b *Braider) SetMaxConcurrentLLMCalls(n int64) {
	if n <= 0 {
		n = defaultMaxConcurrentLLMCalls
	}
	b.llmSem = semaphore.NewWeighted(n)
}

// Braid attempts to produce one braid strand from a ready cluster. It
// returns (nil, nil) when the cluster was already braided within its
// recency window (idempotent no-op), and appends a braid_failed strand
// on persistent failure rather than returning only an error, so the
// cause is queryable (spec §4.6 step 4).
//
// The in-process ledger is only a fast path: it is lost on restart, so
// every miss is confirmed against the store before calling the LLM.
// That store check is what makes the no-op idempotent across process
// restarts during at-least-once redelivery, not just within one
// process's lifetime.
func (b *Braider) Braid(ctx context.Context, cfg domain.LearningConfig, cluster *domain.Cluster, now time.Time) (*domain.Strand, error) {
	if b.ledger.AlreadyBraided(cluster.ID, cfg.RecencyWindow, now) {
		return nil, nil
	}

	existing, err := b.findExistingBraid(ctx, cfg, cluster, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		b.ledger.MarkBraided(cluster.ID, existing.CreatedAt)
		return nil, nil
	}

	tmpl, err := b.registry.Get(cfg.BraidPromptID, "")
	if err != nil {
		return nil, coreerr.NewInput(err.Error(), err)
	}

	vars := materializeVars(cluster)
	if err := tmpl.ValidateVariables(vars); err != nil {
		return nil, coreerr.NewInput(err.Error(), err)
	}

	content, err := b.callWithRetry(ctx, tmpl, vars)
	if err != nil {
		b.parkFailure(ctx, cluster, err, now)
		return nil, err
	}

	braid := &domain.Strand{
		ID:              uuid.Must(uuid.NewV7()).String(),
		Kind:            domain.KindBraid,
		BraidLevel:      min(cluster.MaxParentLevel()+1, cfg.MaxBraidLevel),
		CreatedAt:       now,
		Content:         contentToMap(content),
		ResonanceScores: resonance.AggregateParents(cluster.Members),
		ParentIDs:       cluster.ParentIDs(),
		ClusterKeys:     map[string]string{string(cluster.ID.View): cluster.ID.Bucket},
		Tags:            []string{domain.OriginKindTagPrefix + string(cfg.Kind)},
	}

	if _, err := b.store.Append(ctx, braid); err != nil {
		return nil, err
	}
	b.ledger.MarkBraided(cluster.ID, now)
	return braid, nil
}

// findExistingBraid looks for a braid strand already produced for
// cluster's (view, bucket) within cfg.RecencyWindow, tagged with
// cluster's originating kind. A durable store makes this check
// authoritative even when the in-process ledger was lost to a
// restart, so a crash between Append and MarkBraided never produces a
// duplicate braid or a repeat LLM call.
func (b *Braider) findExistingBraid(ctx context.Context, cfg domain.LearningConfig, cluster *domain.Cluster, now time.Time) (*domain.Strand, error) {
	cur, err := b.store.ByClusterKey(ctx, domain.KindBraid, cluster.ID.View, cluster.ID.Bucket)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	originTag := domain.OriginKindTagPrefix + string(cfg.Kind)
	for {
		st, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		if now.Sub(st.CreatedAt) >= cfg.RecencyWindow {
			continue
		}
		if !hasTag(st.Tags, originTag) {
			continue
		}
		return st, nil
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (b *Braider) callWithRetry(ctx context.Context, tmpl prompts.Template, vars map[string]any) (domain.BraidContent, error) {
	system := tmpl.System
	var lastErr error

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.maxRetries)), ctx)

	var result domain.BraidContent
	err := backoff.Retry(func() error {
		raw, err := b.callLLM(ctx, tmpl, system, vars)
		if err != nil {
			lastErr = coreerr.NewTransient("llm call failed", err)
			return lastErr
		}

		var parsed domain.BraidContent
		if err := json.Unmarshal(raw, &parsed); err != nil {
			system = hardenPrompt(tmpl.System)
			lastErr = coreerr.NewSchema(tmpl.ID, "response was not valid JSON", err)
			return lastErr
		}
		if err := b.validate.Struct(parsed); err != nil {
			system = hardenPrompt(tmpl.System)
			lastErr = coreerr.NewSchema(tmpl.ID, err.Error(), err)
			return lastErr
		}
		result = parsed
		return nil
	}, policy)

	if err != nil {
		return domain.BraidContent{}, lastErr
	}
	return result, nil
}

// callLLM bounds in-flight calls with llmSem and wraps the request in a
// span so a single strand's braid attempt is traceable end to end
// alongside the coordinator's pipeline spans.
func (b *Braider) callLLM(ctx context.Context, tmpl prompts.Template, system string, vars map[string]any) (json.RawMessage, error) {
	if err := b.llmSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.llmSem.Release(1)

	ctx, span := tracer.Start(ctx, "braider.llm_call", trace.WithAttributes(
		attribute.String("template.id", tmpl.ID),
		attribute.String("template.version", tmpl.Version),
	))
	defer span.End()

	raw, err := b.llm.Call(ctx, llm.Request{
		TemplateID:  tmpl.ID,
		Version:     tmpl.Version,
		System:      system,
		User:        tmpl.Render(vars),
		Temperature: tmpl.Temperature,
		MaxTokens:   tmpl.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
	}
	return raw, err
}

func hardenPrompt(system string) string {
	return system + "\nYour previous response was invalid. Return ONLY a single JSON object with exactly the fields summary, insights, recommended_scope, confidence."
}

func (b *Braider) parkFailure(ctx context.Context, cluster *domain.Cluster, cause error, now time.Time) {
	failed := &domain.Strand{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Kind:       domain.KindBraidFailed,
		BraidLevel: 1,
		CreatedAt:  now,
		Content: map[string]any{
			"cluster_id": clusterKey(cluster.ID),
			"cause":      cause.Error(),
			"attempts":   b.maxRetries,
		},
	}
	if _, err := b.store.Append(ctx, failed); err != nil {
		b.log.Error().Err(err).Str("cluster_id", clusterKey(cluster.ID)).Msg("failed to record braid_failed strand")
	}
}

func materializeVars(cluster *domain.Cluster) map[string]any {
	var members strings.Builder
	var totalScore float64
	for _, m := range cluster.Members {
		fmt.Fprintf(&members, "- %s (score=%.3f): %v\n", m.ID, m.ResonanceScores.SelectionScore, m.Content)
		totalScore += m.ResonanceScores.SelectionScore
	}
	avg := 0.0
	if len(cluster.Members) > 0 {
		avg = totalScore / float64(len(cluster.Members))
	}
	return map[string]any{
		"view_label":       fmt.Sprintf("%s=%s", cluster.ID.View, cluster.ID.Bucket),
		"members":          members.String(),
		"aggregated_stats": fmt.Sprintf("n=%d avg_selection_score=%.3f", len(cluster.Members), avg),
	}
}

func contentToMap(c domain.BraidContent) map[string]any {
	raw, _ := json.Marshal(c)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

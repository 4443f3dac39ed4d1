// Package context implements the Context Injector (C9): assembles
// per-consumer, ranked context payloads from braids for synchronous,
// cacheable retrieval (spec §4.9).
package context

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/store"
	"github.com/rs/zerolog"
)

// SubscriptionResolver looks up a consumer's declared Subscription.
type SubscriptionResolver interface {
	Resolve(consumerID string) (domain.Subscription, bool)
}

// Formatter renders the braids selected for one subscription into the
// consumer-facing payload shape (spec §4.9 step 4). The default
// formatter below is grounded on the Prompt Registry's render idiom,
// but a consumer may register its own via FormatterID.
type Formatter interface {
	Format(sub domain.Subscription, braids []*domain.Strand) domain.ContextPayload
}

// Injector implements get_context(consumer_id, hint?) -> ContextPayload.
type Injector struct {
	store       store.StrandStore
	subs        SubscriptionResolver
	formatters  map[string]Formatter
	defaultFmt  Formatter
	cache       *Cache
	log         zerolog.Logger
}

// New builds an Injector. A nil cache disables caching (every call hits
// the store).
func New(s store.StrandStore, subs SubscriptionResolver, cache *Cache, log zerolog.Logger) *Injector {
	return &Injector{
		store:      s,
		subs:       subs,
		formatters: map[string]Formatter{},
		defaultFmt: defaultFormatter{},
		cache:      cache,
		log:        log,
	}
}

// RegisterFormatter makes a named Formatter available to subscriptions
// whose FormatterID references it.
func (inj *Injector) RegisterFormatter(id string, f Formatter) {
	inj.formatters[id] = f
}

// GetContext is spec §4.9's get_context. It never returns an error: on
// any read failure it returns a degraded payload, per spec "On read
// failures, return an empty payload with an explicit degraded=true flag
// rather than throwing."
func (inj *Injector) GetContext(ctx context.Context, consumerID string, hint *domain.ContextHint) *domain.ContextPayload {
	cacheKey := cacheKey(consumerID, hint)
	if inj.cache != nil {
		if cached, ok := inj.cache.Get(cacheKey); ok {
			return cached
		}
	}

	sub, ok := inj.subs.Resolve(consumerID)
	if !ok {
		inj.log.Warn().Str("consumer_id", consumerID).Msg("context injector: no subscription, returning degraded payload")
		return domain.EmptyContextPayload(consumerID)
	}

	var collected []*domain.Strand
	now := time.Now().UTC()
	since := now.Add(-sub.MaxAge)

	for _, kind := range sub.Kinds {
		braids, err := inj.topBraidsForKind(ctx, kind, sub, since)
		if err != nil {
			inj.log.Warn().Err(err).Str("consumer_id", consumerID).Str("kind", string(kind)).
				Msg("context injector: scan failed, returning degraded payload")
			return domain.EmptyContextPayload(consumerID)
		}
		collected = append(collected, braids...)
	}

	if hint != nil {
		collected = filterByHint(collected, *hint)
	}

	collected = topN(collected, sub.MaxItems)

	formatter := inj.defaultFmt
	if sub.FormatterID != "" {
		if f, ok := inj.formatters[sub.FormatterID]; ok {
			formatter = f
		}
	}

	payload := formatter.Format(sub, collected)
	payload.ConsumerID = consumerID
	payload.GeneratedAt = now
	payload.Degraded = len(collected) == 0

	if inj.cache != nil {
		inj.cache.Set(cacheKey, &payload)
	}
	return &payload
}

// Invalidate drops every cached payload for a consumer across all
// hints, called when a newer qualifying braid is promoted into the
// subscribed set (spec §4.9 step 5).
func (inj *Injector) Invalidate(consumerID string) {
	if inj.cache != nil {
		inj.cache.InvalidateConsumer(consumerID)
	}
}

func (inj *Injector) topBraidsForKind(ctx context.Context, kind domain.StrandKind, sub domain.Subscription, since time.Time) ([]*domain.Strand, error) {
	cur, err := inj.store.Scan(ctx, store.ScanQuery{
		Kind:     kind,
		Since:    since,
		MinLevel: maxInt(sub.MinBraidLevel, 2),
		MaxLevel: 0,
		MinScore: sub.MinScore,
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", kind, err)
	}
	return store.Drain(ctx, cur)
}

func filterByHint(strands []*domain.Strand, hint domain.ContextHint) []*domain.Strand {
	var out []*domain.Strand
	for _, s := range strands {
		if hint.Symbol != "" && s.ClusterKeys["symbol"] != "" && s.ClusterKeys["symbol"] != hint.Symbol {
			continue
		}
		if hint.Timeframe != "" && s.ClusterKeys["timeframe"] != "" && s.ClusterKeys["timeframe"] != hint.Timeframe {
			continue
		}
		if hint.Regime != "" && s.ClusterKeys["regime"] != "" && s.ClusterKeys["regime"] != hint.Regime {
			continue
		}
		out = append(out, s)
	}
	return out
}

func topN(strands []*domain.Strand, n int) []*domain.Strand {
	sort.SliceStable(strands, func(i, j int) bool {
		return strands[i].ResonanceScores.SelectionScore > strands[j].ResonanceScores.SelectionScore
	})
	if n > 0 && len(strands) > n {
		strands = strands[:n]
	}
	return strands
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// defaultFormatter renders braids into a ContextPayload the way the
// LLM-facing prompt templates expect: one insight line per braid
// summary/insight, lineage trailing each braid's parent ids.
type defaultFormatter struct{}

func (defaultFormatter) Format(sub domain.Subscription, braids []*domain.Strand) domain.ContextPayload {
	payload := domain.ContextPayload{
		Insights:            []domain.Insight{},
		Caveats:             []domain.Caveat{},
		QuantitativeSignals: map[string]float64{},
		Lineage:             []domain.LineageEntry{},
	}

	var totalConfidence float64
	for _, b := range braids {
		var content domain.BraidContent
		if err := b.DecodeContent(&content); err == nil {
			if content.Summary != "" {
				payload.Insights = append(payload.Insights, domain.Insight{
					Text:          content.Summary,
					SourceBraidID: b.ID,
					Score:         b.ResonanceScores.SelectionScore,
				})
			}
			for _, insight := range content.Insights {
				payload.Insights = append(payload.Insights, domain.Insight{
					Text:          insight,
					SourceBraidID: b.ID,
					Score:         b.ResonanceScores.SelectionScore,
				})
			}
			if content.RecommendedScope != "" {
				payload.Caveats = append(payload.Caveats, domain.Caveat{
					Text:          content.RecommendedScope,
					SourceBraidID: b.ID,
				})
			}
			totalConfidence += content.Confidence
		}
		payload.Lineage = append(payload.Lineage, domain.LineageEntry{
			BraidID:   b.ID,
			Level:     b.BraidLevel,
			ParentIDs: b.ParentIDs,
		})
	}

	if len(braids) > 0 {
		payload.QuantitativeSignals["avg_confidence"] = totalConfidence / float64(len(braids))
	}
	return payload
}

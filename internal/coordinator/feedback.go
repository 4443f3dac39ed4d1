package coordinator

import (
	"context"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/resonance"
	"github.com/lotustrader/learningcore/internal/store"
)

// downstreamKind names, for each leaf kind, the kind whose strands are
// the immediately downstream consequence spec §4.4's "recursive
// feedback" term draws on (e.g. a pattern feeds a prediction_review
// that either confirms or refutes it). Terminal kinds (no known
// downstream) are simply absent.
var downstreamKind = map[domain.StrandKind]domain.StrandKind{
	domain.KindPattern:                domain.KindPredictionReview,
	domain.KindPredictionReview:       domain.KindTradeOutcome,
	domain.KindConditionalTradingPlan: domain.KindTradeOutcome,
	domain.KindTradingDecision:        domain.KindTradeOutcome,
	domain.KindTradeOutcome:           domain.KindExecutionOutcome,
}

// causalTag is the Tags convention a downstream strand carries to
// record which upstream strand it is the consequence of (spec §3
// "Tags are side-channel routing tokens"). The spec leaves the exact
// causal-linkage mechanism open; this is the Coordinator's resolution,
// recorded in DESIGN.md.
func causalTag(parentID string) string { return "causal_parent:" + parentID }

func hasCausalTag(s *domain.Strand, parentID string) bool {
	want := causalTag(parentID)
	for _, t := range s.Tags {
		if t == want {
			return true
		}
	}
	return false
}

// isSuccessful interprets a downstream strand's content as a pass/fail
// signal, per-kind, for cross-module success-rate feedback.
func isSuccessful(kind domain.StrandKind, s *domain.Strand) (bool, bool) {
	switch kind {
	case domain.KindPredictionReview:
		var c domain.PredictionReviewContent
		if err := s.DecodeContent(&c); err != nil {
			return false, false
		}
		return c.Success, true
	case domain.KindTradeOutcome:
		var c domain.TradeOutcomeContent
		if err := s.DecodeContent(&c); err != nil {
			return false, false
		}
		return c.Success, true
	case domain.KindConditionalTradingPlan:
		var c domain.ConditionalTradingPlanContent
		if err := s.DecodeContent(&c); err != nil {
			return false, false
		}
		return c.Profitability > 0, true
	case domain.KindTradingDecision:
		var c domain.TradingDecisionContent
		if err := s.DecodeContent(&c); err != nil {
			return false, false
		}
		return c.Confidence >= 0.5, true
	case domain.KindExecutionOutcome:
		var c domain.ExecutionOutcomeContent
		if err := s.DecodeContent(&c); err != nil {
			return false, false
		}
		return c.Slippage <= 0.01, true
	default:
		return false, false
	}
}

// crossModuleFeedback computes the downstream success-rate term C4's ρ
// blends in (spec §4.4), by scanning the mapped downstream kind for
// strands explicitly tagged as this strand's causal consequence.
func crossModuleFeedback(ctx context.Context, s store.StrandStore, strand *domain.Strand, since time.Time, minSamples int, weight float64) resonance.CrossModuleFeedback {
	fb := resonance.CrossModuleFeedback{Weight: weight, MinSamples: minSamples}

	dk, ok := downstreamKind[strand.Kind]
	if !ok {
		return fb
	}

	cur, err := s.Scan(ctx, store.ScanQuery{Kind: dk, Since: since})
	if err != nil {
		return fb
	}
	downstream, err := store.Drain(ctx, cur)
	if err != nil {
		return fb
	}

	var successes, total int
	for _, d := range downstream {
		if !hasCausalTag(d, strand.ID) {
			continue
		}
		ok, counted := isSuccessful(dk, d)
		if !counted {
			continue
		}
		total++
		if ok {
			successes++
		}
	}

	fb.SampleCount = total
	if total > 0 {
		rate := float64(successes) / float64(total)
		fb.SuccessRate = &rate
	}
	return fb
}

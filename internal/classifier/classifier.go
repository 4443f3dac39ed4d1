// Package classifier implements the Strand Classifier (C3): a pure
// lookup from a strand's kind to its LearningConfig (spec §4.3).
package classifier

import (
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
)

// Classifier resolves a StrandKind to its LearningConfig and falls back
// to a passive config for unknown kinds. Build it with New: the zero
// value has no table, so it resolves every kind to a passive config.
type Classifier struct {
	configs map[domain.StrandKind]domain.LearningConfig
}

// New builds a Classifier from the default per-kind table (spec §4.3's
// worked examples): patterns cluster by mcap/pattern-type views and by
// the composite (asset, timeframe, pattern_type) view, with a pattern
// scorer; prediction reviews and conditional trading plans
// similarly; trading decisions, trade outcomes, and execution outcomes
// feed the taxonomy C4 cross-module weighting draws from; closed
// positions have no views or scorer here.
func New() *Classifier {
	const day = 24 * time.Hour
	return &Classifier{
		configs: map[domain.StrandKind]domain.LearningConfig{
			domain.KindPattern: {
				Kind: domain.KindPattern,
				Views: []domain.ViewConfig{
					{Name: "pattern_type", Expr: `pattern_type`},
					{Name: "mcap_bucket", Expr: `mcap_bucket`},
					{Name: "asset_timeframe_pattern", Expr: `symbol + "|" + timeframe + "|" + pattern_type`},
				},
				ScorerID:       "pattern",
				BraidPromptID:  "braid_pattern",
				MinClusterSize: 3,
				MaxBraidLevel:  4,
				RecencyWindow:  30 * day,
			},
			domain.KindPredictionReview: {
				Kind: domain.KindPredictionReview,
				Views: []domain.ViewConfig{
					{Name: "method", Expr: `method`},
				},
				ScorerID:       "prediction_review",
				BraidPromptID:  "braid_prediction_review",
				MinClusterSize: 3,
				MaxBraidLevel:  4,
				RecencyWindow:  30 * day,
			},
			domain.KindConditionalTradingPlan: {
				Kind: domain.KindConditionalTradingPlan,
				Views: []domain.ViewConfig{
					{Name: "plan_type", Expr: `plan_type`},
				},
				ScorerID:       "conditional_trading_plan",
				BraidPromptID:  "braid_conditional_trading_plan",
				MinClusterSize: 3,
				MaxBraidLevel:  4,
				RecencyWindow:  45 * day,
			},
			domain.KindTradingDecision: {
				Kind: domain.KindTradingDecision,
				Views: []domain.ViewConfig{
					{Name: "decision_factor", Expr: `decision_factor`},
				},
				ScorerID:       "trading_decision",
				BraidPromptID:  "braid_trading_decision",
				MinClusterSize: 3,
				MaxBraidLevel:  3,
				RecencyWindow:  14 * day,
			},
			domain.KindTradeOutcome: {
				Kind: domain.KindTradeOutcome,
				Views: []domain.ViewConfig{
					{Name: "strategy", Expr: `strategy`},
				},
				ScorerID:       "trade_outcome",
				BraidPromptID:  "braid_trade_outcome",
				MinClusterSize: 3,
				MaxBraidLevel:  3,
				RecencyWindow:  14 * day,
			},
			domain.KindExecutionOutcome: {
				Kind: domain.KindExecutionOutcome,
				Views: []domain.ViewConfig{
					{Name: "strategy", Expr: `strategy`},
				},
				ScorerID:       "execution_outcome",
				BraidPromptID:  "braid_execution_outcome",
				MinClusterSize: 5,
				MaxBraidLevel:  3,
				RecencyWindow:  14 * day,
			},
			// position_closed has no scorer or bucketer, so it resolves
			// passive; the Coordinator routes it to the Coefficient
			// Updater (C8) instead of scoring or clustering it.
			domain.KindPositionClosed: {
				Kind: domain.KindPositionClosed,
			},
		},
	}
}

// Resolve returns the LearningConfig for kind, or the passive zero
// config for any kind not in the table (spec §4.3 "Unknown kinds are
// recorded but never clustered").
func (c *Classifier) Resolve(kind domain.StrandKind) domain.LearningConfig {
	if cfg, ok := c.configs[kind]; ok {
		return cfg
	}
	return domain.LearningConfig{Kind: kind}
}

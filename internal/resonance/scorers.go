package resonance

import "github.com/lotustrader/learningcore/internal/domain"

func defaultScorers() map[string]ModuleScorer {
	return map[string]ModuleScorer{
		"pattern":                   patternScorer{},
		"prediction_review":         predictionReviewScorer{},
		"conditional_trading_plan":  conditionalTradingPlanScorer{},
		"trading_decision":          tradingDecisionScorer{},
		"trade_outcome":             tradeOutcomeScorer{},
		"execution_outcome":         executionOutcomeScorer{},
	}
}

func decode[T any](s *domain.Strand) T {
	var dst T
	_ = s.DecodeContent(&dst)
	return dst
}

// patternScorer instantiates the algebra for `pattern` strands: ρ is
// success_rate × confidence (spec §4.4's worked example), θ groups by
// pattern_type, φ measures agreement across market-cap/timeframe scales
// using success_rate (mcap_bucket) and confidence (timeframe) as the
// scales' quality proxies.
type patternScorer struct{}

func (patternScorer) Scales() []string { return []string{"timeframe", "mcap_bucket"} }

func (patternScorer) ScaleQuality(s *domain.Strand, scale string) float64 {
	c := decode[domain.PatternContent](s)
	switch scale {
	case "timeframe":
		return clamp01(c.Confidence)
	case "mcap_bucket":
		return clamp01(c.SuccessRate)
	default:
		return 0.5
	}
}

func (patternScorer) TaxonomyBucket(s *domain.Strand) string {
	return decode[domain.PatternContent](s).PatternType
}

func (patternScorer) Feedback(s *domain.Strand) float64 {
	c := decode[domain.PatternContent](s)
	return c.SuccessRate * c.Confidence
}

func (patternScorer) FeedbackBounds() (float64, float64) { return 0, 1 }

func (patternScorer) CurrentAccuracy(s *domain.Strand) float64 {
	return decode[domain.PatternContent](s).SuccessRate
}

func (patternScorer) MinHistorySamples() int { return 5 }

func (patternScorer) SelectionWeights() SelectionWeights {
	return SelectionWeights{Accuracy: 0.4, Precision: 0.25, Stability: 0.2, Orthogonality: 0.15, Cost: 0.1}
}

func (patternScorer) SelectionComponents(s *domain.Strand) SelectionComponents {
	c := decode[domain.PatternContent](s)
	return SelectionComponents{
		Accuracy:      clamp01(c.SuccessRate),
		Precision:     clamp01(c.Confidence),
		Stability:     clamp01(c.SuccessRate),
		Orthogonality: 0.5,
		Cost:          0.05,
	}
}

// predictionReviewScorer: ρ = success × (1 + 0.1·return_pct), per spec
// §4.4's worked example. θ groups by prediction method.
type predictionReviewScorer struct{}

func (predictionReviewScorer) Scales() []string { return []string{"method", "confidence"} }

func (predictionReviewScorer) ScaleQuality(s *domain.Strand, scale string) float64 {
	c := decode[domain.PredictionReviewContent](s)
	if scale == "confidence" {
		return clamp01(c.Confidence)
	}
	if c.Success {
		return 1.0
	}
	return 0.0
}

func (predictionReviewScorer) TaxonomyBucket(s *domain.Strand) string {
	return decode[domain.PredictionReviewContent](s).Method
}

func (predictionReviewScorer) Feedback(s *domain.Strand) float64 {
	c := decode[domain.PredictionReviewContent](s)
	base := 0.0
	if c.Success {
		base = 1.0
	}
	return base * (1 + 0.1*c.ReturnPct)
}

func (predictionReviewScorer) FeedbackBounds() (float64, float64) { return 0, 2 }

func (predictionReviewScorer) CurrentAccuracy(s *domain.Strand) float64 {
	c := decode[domain.PredictionReviewContent](s)
	if c.Success {
		return 1.0
	}
	return 0.0
}

func (predictionReviewScorer) MinHistorySamples() int { return 5 }

func (predictionReviewScorer) SelectionWeights() SelectionWeights {
	return SelectionWeights{Accuracy: 0.45, Precision: 0.2, Stability: 0.2, Orthogonality: 0.15, Cost: 0.05}
}

func (predictionReviewScorer) SelectionComponents(s *domain.Strand) SelectionComponents {
	c := decode[domain.PredictionReviewContent](s)
	acc := 0.0
	if c.Success {
		acc = 1.0
	}
	return SelectionComponents{
		Accuracy:      acc,
		Precision:     clamp01(c.Confidence),
		Stability:     acc,
		Orthogonality: 0.5,
		Cost:          0.05,
	}
}

// conditionalTradingPlanScorer: ρ = profitability × risk_adjusted_return.
type conditionalTradingPlanScorer struct{}

func (conditionalTradingPlanScorer) Scales() []string { return []string{"profitability", "risk_adjusted_return"} }

func (conditionalTradingPlanScorer) ScaleQuality(s *domain.Strand, scale string) float64 {
	c := decode[domain.ConditionalTradingPlanContent](s)
	if scale == "profitability" {
		return clamp01(c.Profitability)
	}
	return clamp01(c.RiskAdjustedReturn)
}

func (conditionalTradingPlanScorer) TaxonomyBucket(s *domain.Strand) string {
	return decode[domain.ConditionalTradingPlanContent](s).PlanType
}

func (conditionalTradingPlanScorer) Feedback(s *domain.Strand) float64 {
	c := decode[domain.ConditionalTradingPlanContent](s)
	return c.Profitability * c.RiskAdjustedReturn
}

func (conditionalTradingPlanScorer) FeedbackBounds() (float64, float64) { return -1, 2 }

func (conditionalTradingPlanScorer) CurrentAccuracy(s *domain.Strand) float64 {
	return clamp01(decode[domain.ConditionalTradingPlanContent](s).Profitability)
}

func (conditionalTradingPlanScorer) MinHistorySamples() int { return 5 }

func (conditionalTradingPlanScorer) SelectionWeights() SelectionWeights {
	return SelectionWeights{Accuracy: 0.35, Precision: 0.25, Stability: 0.25, Orthogonality: 0.1, Cost: 0.1}
}

func (conditionalTradingPlanScorer) SelectionComponents(s *domain.Strand) SelectionComponents {
	c := decode[domain.ConditionalTradingPlanContent](s)
	return SelectionComponents{
		Accuracy:      clamp01(c.Profitability),
		Precision:     clamp01(c.RiskAdjustedReturn),
		Stability:     0.5,
		Orthogonality: 0.5,
		Cost:          0.1,
	}
}

// tradingDecisionScorer taxonomizes by decision_factor; ρ is confidence
// alone since the decision's own outcome has not yet been realized.
type tradingDecisionScorer struct{}

func (tradingDecisionScorer) Scales() []string { return []string{"confidence"} }

func (tradingDecisionScorer) ScaleQuality(s *domain.Strand, scale string) float64 {
	return clamp01(decode[domain.TradingDecisionContent](s).Confidence)
}

func (tradingDecisionScorer) TaxonomyBucket(s *domain.Strand) string {
	return decode[domain.TradingDecisionContent](s).DecisionFactor
}

func (tradingDecisionScorer) Feedback(s *domain.Strand) float64 {
	return decode[domain.TradingDecisionContent](s).Confidence
}

func (tradingDecisionScorer) FeedbackBounds() (float64, float64) { return 0, 1 }

func (tradingDecisionScorer) CurrentAccuracy(s *domain.Strand) float64 {
	return clamp01(decode[domain.TradingDecisionContent](s).Confidence)
}

func (tradingDecisionScorer) MinHistorySamples() int { return 8 }

func (tradingDecisionScorer) SelectionWeights() SelectionWeights {
	return SelectionWeights{Accuracy: 0.3, Precision: 0.3, Stability: 0.2, Orthogonality: 0.1, Cost: 0.1}
}

func (tradingDecisionScorer) SelectionComponents(s *domain.Strand) SelectionComponents {
	c := decode[domain.TradingDecisionContent](s)
	return SelectionComponents{
		Accuracy:      clamp01(c.Confidence),
		Precision:     clamp01(c.Confidence),
		Stability:     0.5,
		Orthogonality: 0.5,
		Cost:          0.1,
	}
}

// tradeOutcomeScorer taxonomizes by strategy; ρ is realized PnL mapped
// through a success indicator, bounded to the module's declared range.
type tradeOutcomeScorer struct{}

func (tradeOutcomeScorer) Scales() []string { return []string{"strategy"} }

func (tradeOutcomeScorer) ScaleQuality(s *domain.Strand, scale string) float64 {
	c := decode[domain.TradeOutcomeContent](s)
	if c.Success {
		return 1.0
	}
	return 0.0
}

func (tradeOutcomeScorer) TaxonomyBucket(s *domain.Strand) string {
	return decode[domain.TradeOutcomeContent](s).Strategy
}

func (tradeOutcomeScorer) Feedback(s *domain.Strand) float64 {
	c := decode[domain.TradeOutcomeContent](s)
	base := 0.0
	if c.Success {
		base = 1.0
	}
	return base + c.PnLPct
}

func (tradeOutcomeScorer) FeedbackBounds() (float64, float64) { return -1, 2 }

func (tradeOutcomeScorer) CurrentAccuracy(s *domain.Strand) float64 {
	c := decode[domain.TradeOutcomeContent](s)
	if c.Success {
		return 1.0
	}
	return 0.0
}

func (tradeOutcomeScorer) MinHistorySamples() int { return 5 }

func (tradeOutcomeScorer) SelectionWeights() SelectionWeights {
	return SelectionWeights{Accuracy: 0.4, Precision: 0.2, Stability: 0.25, Orthogonality: 0.1, Cost: 0.05}
}

func (tradeOutcomeScorer) SelectionComponents(s *domain.Strand) SelectionComponents {
	c := decode[domain.TradeOutcomeContent](s)
	acc := 0.0
	if c.Success {
		acc = 1.0
	}
	return SelectionComponents{
		Accuracy:      acc,
		Precision:     clamp01(0.5 + c.PnLPct/2),
		Stability:     acc,
		Orthogonality: 0.5,
		Cost:          0.05,
	}
}

// executionOutcomeScorer taxonomizes by strategy; ρ penalizes slippage.
type executionOutcomeScorer struct{}

func (executionOutcomeScorer) Scales() []string { return []string{"strategy"} }

func (executionOutcomeScorer) ScaleQuality(s *domain.Strand, scale string) float64 {
	c := decode[domain.ExecutionOutcomeContent](s)
	return clamp01(1 - c.Slippage)
}

func (executionOutcomeScorer) TaxonomyBucket(s *domain.Strand) string {
	return decode[domain.ExecutionOutcomeContent](s).Strategy
}

func (executionOutcomeScorer) Feedback(s *domain.Strand) float64 {
	c := decode[domain.ExecutionOutcomeContent](s)
	return 1 - c.Slippage
}

func (executionOutcomeScorer) FeedbackBounds() (float64, float64) { return 0, 1 }

func (executionOutcomeScorer) CurrentAccuracy(s *domain.Strand) float64 {
	c := decode[domain.ExecutionOutcomeContent](s)
	return clamp01(1 - c.Slippage)
}

func (executionOutcomeScorer) MinHistorySamples() int { return 10 }

func (executionOutcomeScorer) SelectionWeights() SelectionWeights {
	return SelectionWeights{Accuracy: 0.3, Precision: 0.3, Stability: 0.2, Orthogonality: 0.1, Cost: 0.1}
}

func (executionOutcomeScorer) SelectionComponents(s *domain.Strand) SelectionComponents {
	c := decode[domain.ExecutionOutcomeContent](s)
	return SelectionComponents{
		Accuracy:      clamp01(1 - c.Slippage),
		Precision:     clamp01(1 - c.Slippage),
		Stability:     0.5,
		Orthogonality: 0.5,
		Cost:          clamp01(c.Slippage),
	}
}

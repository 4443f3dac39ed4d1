// Package domain models the learning core's single homogeneous event
// type, the Strand (spec §3), and the records derived from it.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// StrandKind discriminates the closed set of strand kinds the core
// understands. Unknown kinds are legal on the wire (spec §4.3) but route
// to the passive classifier path rather than being rejected.
type StrandKind string

const (
	KindPattern                StrandKind = "pattern"
	KindPredictionReview       StrandKind = "prediction_review"
	KindConditionalTradingPlan StrandKind = "conditional_trading_plan"
	KindTradingDecision        StrandKind = "trading_decision"
	KindTradeOutcome           StrandKind = "trade_outcome"
	KindExecutionOutcome       StrandKind = "execution_outcome"
	KindPositionClosed         StrandKind = "position_closed"
	KindBraid                  StrandKind = "braid"
	// KindBraidFailed records a persistently-failed braid attempt
	// (spec §4.6 step 4), queryable like any other strand.
	KindBraidFailed StrandKind = "braid_failed"
)

// OriginKindTagPrefix marks the Tags entry a braid carries recording
// which leaf kind it was ultimately braided from (e.g.
// "origin_kind:pattern"), so a braid-of-braids item can resolve the
// same LearningConfig its leaf ancestors used.
const OriginKindTagPrefix = "origin_kind:"

// knownKinds is used by the classifier to distinguish "known but
// passive" from "genuinely unrecognized" kinds; both route to the same
// passive LearningConfig, but only the former is expected in steady
// state.
var knownKinds = map[StrandKind]bool{
	KindPattern:                true,
	KindPredictionReview:       true,
	KindConditionalTradingPlan: true,
	KindTradingDecision:        true,
	KindTradeOutcome:           true,
	KindExecutionOutcome:       true,
	KindPositionClosed:         true,
	KindBraid:                  true,
	KindBraidFailed:            true,
}

// IsKnown reports whether k is one of the kinds the core recognizes,
// whether or not its learning configuration is passive.
func (k StrandKind) IsKnown() bool { return knownKinds[k] }

// ResonanceScores is the five-tuple spec §3/§4.4 attaches to every
// strand and braid: fractal self-similarity (φ), recursive feedback (ρ),
// collective intelligence (θ), meta-evolution (ω), and the selection
// score (S).
type ResonanceScores struct {
	Phi                 float64 `json:"phi"`
	Rho                 float64 `json:"rho"`
	Theta               float64 `json:"theta"`
	Omega               float64 `json:"omega"`
	SelectionScore      float64 `json:"selection_score"`
	InsufficientHistory bool    `json:"insufficient_history,omitempty"`
}

// Strand is the immutable event record spec §3 defines. All modules
// (detectors, planners, traders, and the learning core itself via C6/C7)
// emit strands of this one shape; the payload kind-specific content.
type Strand struct {
	ID         string
	Kind       StrandKind
	BraidLevel int
	CreatedAt  time.Time

	Symbol    string
	Timeframe string
	Regime    string

	// Content is the kind-specific structured payload the emitting
	// module wants the learner to see. Typed access is via DecodeContent.
	Content map[string]any

	// ModuleIntelligence is the emitter-private payload (e.g. detector
	// internals) the learning core stores but never interprets.
	ModuleIntelligence map[string]any

	ResonanceScores ResonanceScores

	// Tags are side-channel routing tokens, e.g. "dm:evaluate_plan".
	Tags []string

	// ParentIDs is lineage. Required and non-empty when BraidLevel >= 2.
	ParentIDs []string

	// ClusterKeys are materialized view->bucket labels (set by C5 after
	// the strand has been bucketed at least once).
	ClusterKeys map[string]string

	// Version supports optimistic concurrency on ResonanceScores updates
	// (spec §4.1 update_resonance_scores, §5 "serialized by id via
	// compare-and-set on a version field").
	Version int64
}

// IsBraid reports whether s is a braid (braid_level >= 2), per the
// glossary's definition that braids are strands of level >= 2.
func (s *Strand) IsBraid() bool { return s.BraidLevel >= 2 }

// Validate enforces the append-time invariants of spec §3/§4.1: braid
// level >= 2 requires non-empty parent ids, and ids must be present.
func (s *Strand) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("strand id is required")
	}
	if s.Kind == "" {
		return fmt.Errorf("strand kind is required")
	}
	if s.BraidLevel < 1 {
		return fmt.Errorf("braid_level must be >= 1")
	}
	if s.BraidLevel >= 2 && len(s.ParentIDs) == 0 {
		return fmt.Errorf("braid_level >= 2 requires non-empty parent_ids")
	}
	return nil
}

// DecodeContent unmarshals s.Content into dst, a pointer to one of the
// per-kind content structs below. Content is stored as a generic
// jsonb-shaped map (mirroring the store's column type); this is a
// type-safe view over already-validated data, not a second validation
// pass.
func (s *Strand) DecodeContent(dst any) error {
	raw, err := json.Marshal(s.Content)
	if err != nil {
		return fmt.Errorf("re-marshal strand content: %w", err)
	}
	return json.Unmarshal(raw, dst)
}

// PatternContent is the kind-specific payload of a `pattern` strand.
type PatternContent struct {
	PatternType string  `json:"pattern_type"`
	Confidence  float64 `json:"confidence"`
	SuccessRate float64 `json:"success_rate"`
	MCapBucket  string  `json:"mcap_bucket,omitempty"`
}

// PredictionReviewContent is the kind-specific payload of a
// `prediction_review` strand.
type PredictionReviewContent struct {
	Method        string  `json:"method"`
	Success       bool    `json:"success"`
	ReturnPct     float64 `json:"return_pct"`
	Confidence    float64 `json:"confidence"`
}

// ConditionalTradingPlanContent is the kind-specific payload of a
// `conditional_trading_plan` strand.
type ConditionalTradingPlanContent struct {
	PlanType             string  `json:"plan_type"`
	Profitability         float64 `json:"profitability"`
	RiskAdjustedReturn    float64 `json:"risk_adjusted_return"`
}

// TradingDecisionContent is the kind-specific payload of a
// `trading_decision` strand.
type TradingDecisionContent struct {
	DecisionFactor string  `json:"decision_factor"`
	Confidence     float64 `json:"confidence"`
}

// TradeOutcomeContent is the kind-specific payload of a `trade_outcome`
// strand.
type TradeOutcomeContent struct {
	Strategy string  `json:"strategy"`
	Success  bool    `json:"success"`
	PnLPct   float64 `json:"pnl_pct"`
}

// ExecutionOutcomeContent is the kind-specific payload of an
// `execution_outcome` strand.
type ExecutionOutcomeContent struct {
	Strategy string  `json:"strategy"`
	Slippage float64 `json:"slippage"`
}

// ClosedTrade is one entry of a `position_closed` strand's
// completed_trades list (spec §4.8, scenario S3).
type ClosedTrade struct {
	RR             float64   `json:"rr"`
	ExitTimestamp  time.Time `json:"exit_timestamp"`
}

// EntryContext is the lever context a `position_closed` strand carries,
// consumed by the Coefficient Updater (spec §4.8 step 2).
type EntryContext struct {
	Curator    string `json:"curator"`
	Chain      string `json:"chain"`
	MCapBucket string `json:"mcap_bucket"`
	VolBucket  string `json:"vol_bucket"`
	AgeBucket  string `json:"age_bucket"`
	Intent     string `json:"intent,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Timeframe  string `json:"timeframe,omitempty"`
}

// PositionClosedContent is the kind-specific payload of a
// `position_closed` strand.
type PositionClosedContent struct {
	EntryContext    EntryContext  `json:"entry_context"`
	CompletedTrades []ClosedTrade `json:"completed_trades"`
}

// BraidContent is the LLM-synthesized payload a braid carries (spec
// §4.6 step 3's response shape).
type BraidContent struct {
	Summary          string   `json:"summary"`
	Insights         []string `json:"insights"`
	RecommendedScope string   `json:"recommended_scope"`
	Confidence       float64  `json:"confidence" validate:"gte=0,lte=1"`
}

// BraidFailedContent records why a cluster's braid attempt was parked
// (spec §4.6 step 4, supplemented as a first-class content type so it
// is queryable rather than log-only).
type BraidFailedContent struct {
	ClusterID string `json:"cluster_id"`
	Cause     string `json:"cause"`
	Attempts  int    `json:"attempts"`
}

// Package resonance implements the Resonance Engine (C4): the uniform
// (φ, ρ, θ, ω, S) algebra spec §4.4 defines, instantiated per module
// kind via the ModuleScorer table in scorers.go.
package resonance

import (
	"math"

	"github.com/lotustrader/learningcore/internal/domain"
)

// HistoricalObservation is one past accuracy sample for a taxonomy
// bucket, ordered by recency: Rank 0 is the most recent. ω's EWMA
// weights each observation 1/(rank+1) (spec §4.4).
type HistoricalObservation struct {
	Rank     int
	Accuracy float64
}

// SelectionWeights are the module-specific weights S's squared
// components are combined with (spec §4.4 "weighted sum of squared
// accuracy, precision, stability, orthogonality minus cost").
type SelectionWeights struct {
	Accuracy      float64
	Precision     float64
	Stability     float64
	Orthogonality float64
	Cost          float64
}

// SelectionComponents are a strand's raw inputs to S, each in [0,1]
// except Cost which is subtracted directly.
type SelectionComponents struct {
	Accuracy      float64
	Precision     float64
	Stability     float64
	Orthogonality float64
	Cost          float64
}

// ModuleScorer is the per-kind set of pure functions spec §9 calls for
// ("instead of class hierarchies, hold a table kind → scorer").
type ModuleScorer interface {
	// Scales names the named scales φ measures agreement across
	// (timeframes, portfolio sizes, order sizes, regimes, ...).
	Scales() []string
	// ScaleQuality is q_M(s, scale): the quality of s's behavior at scale.
	ScaleQuality(s *domain.Strand, scale string) float64

	// TaxonomyBucket assigns s to one of the module's taxonomy buckets,
	// used by both θ (diversity) and ω (historical accuracy grouping).
	TaxonomyBucket(s *domain.Strand) string

	// Feedback is ρ's raw, module-specific realized-outcome measure,
	// before cross-module blending and clamping.
	Feedback(s *domain.Strand) float64
	// FeedbackBounds is the module-declared clamp range for ρ.
	FeedbackBounds() (min, max float64)

	// CurrentAccuracy is ω's "current" term: this strand's own quality
	// measure in the same units as the historical series.
	CurrentAccuracy(s *domain.Strand) float64
	// MinHistorySamples below which ω defaults to 1.0 with
	// insufficient_history=true (spec §4.4 edge case).
	MinHistorySamples() int

	SelectionWeights() SelectionWeights
	SelectionComponents(s *domain.Strand) SelectionComponents
}

// CrossModuleFeedback is the downstream success signal spec §4.4's
// "recursive" part of ρ draws on: the success rate of the immediately
// downstream module over strands causally linked via parent_ids.
type CrossModuleFeedback struct {
	// SuccessRate is nil when fewer than MinSamples downstream strands
	// exist; the downstream factor then defaults to neutral (1.0).
	SuccessRate *float64
	Weight      float64 // capped cross-module weight, default 0.3
	MinSamples  int     // default 10
	SampleCount int
}

// Engine computes resonance scores given a scorer table and per-call
// cohort/history/feedback context assembled by the caller (the
// Coordinator, which owns the store queries that produce them).
type Engine struct {
	scorers map[string]ModuleScorer
}

// NewEngine builds an Engine over the default per-kind scorer table.
func NewEngine() *Engine {
	return &Engine{scorers: defaultScorers()}
}

// Scorer looks up a registered scorer by id (LearningConfig.ScorerID).
func (e *Engine) Scorer(id string) (ModuleScorer, bool) {
	sc, ok := e.scorers[id]
	return sc, ok
}

// Score computes the five-tuple for a single strand given its cohort
// (other active strands of the same kind, for θ), historical
// observations for its taxonomy bucket (for ω), and cross-module
// feedback (for ρ).
func (e *Engine) Score(scorerID string, s *domain.Strand, cohort []*domain.Strand, history []HistoricalObservation, feedback CrossModuleFeedback) domain.ResonanceScores {
	sc, ok := e.scorers[scorerID]
	if !ok {
		return neutralScores()
	}

	phi := computePhi(sc, s)
	rho := computeRho(sc, s, feedback)
	theta := computeTheta(sc, s, cohort)
	omega, insufficient := computeOmega(sc, s, history)
	selection := computeSelection(sc, s)

	return domain.ResonanceScores{
		Phi:                 phi,
		Rho:                 rho,
		Theta:               theta,
		Omega:               omega,
		SelectionScore:      selection,
		InsufficientHistory: insufficient,
	}
}

// neutralScores is returned for strands whose kind has no registered
// scorer (passive kinds): spec §4.4's "missing inputs default to
// module-specified neutral values".
func neutralScores() domain.ResonanceScores {
	return domain.ResonanceScores{Phi: 0.5, Rho: 1.0, Theta: 0.5, Omega: 1.0, SelectionScore: 0.5, InsufficientHistory: true}
}

func computePhi(sc ModuleScorer, s *domain.Strand) float64 {
	scales := sc.Scales()
	if len(scales) == 0 {
		return 0.5
	}
	qualities := make([]float64, len(scales))
	for i, scale := range scales {
		qualities[i] = clamp01(sc.ScaleQuality(s, scale))
	}
	if len(qualities) == 1 {
		return qualities[0]
	}

	var sumAgreement float64
	var pairs int
	for i := 0; i < len(qualities); i++ {
		for j := i + 1; j < len(qualities); j++ {
			sumAgreement += 1 - math.Abs(qualities[i]-qualities[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0.5
	}
	return clamp01(sumAgreement / float64(pairs))
}

func computeRho(sc ModuleScorer, s *domain.Strand, feedback CrossModuleFeedback) float64 {
	min, max := sc.FeedbackBounds()
	raw := sc.Feedback(s)

	downstream := 1.0 // neutral default, spec §4.4 edge case
	weight := 0.0
	if feedback.SuccessRate != nil && feedback.SampleCount >= feedback.MinSamples {
		downstream = *feedback.SuccessRate
		weight = feedback.Weight
	}
	blended := (1-weight)*raw + weight*downstream
	return clampRange(blended, min, max)
}

func computeTheta(sc ModuleScorer, s *domain.Strand, cohort []*domain.Strand) float64 {
	counts := make(map[string]int)
	counts[sc.TaxonomyBucket(s)]++
	for _, m := range cohort {
		counts[sc.TaxonomyBucket(m)]++
	}
	total := len(cohort) + 1
	if len(counts) <= 1 {
		return 0.0 // no diversity possible with a single bucket
	}

	var entropy float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log(p)
	}
	maxEntropy := math.Log(float64(len(counts)))
	if maxEntropy == 0 {
		return 0.0
	}
	return clamp01(entropy / maxEntropy)
}

func computeOmega(sc ModuleScorer, s *domain.Strand, history []HistoricalObservation) (float64, bool) {
	if len(history) < sc.MinHistorySamples() {
		return 1.0, true
	}

	var weightedSum, weightTotal float64
	for _, obs := range history {
		w := 1.0 / float64(obs.Rank+1)
		weightedSum += obs.Accuracy * w
		weightTotal += w
	}
	if weightTotal == 0 {
		return 1.0, true
	}
	historical := weightedSum / weightTotal
	if historical == 0 {
		return 1.0, true
	}

	current := sc.CurrentAccuracy(s)
	omega := 1 + (current-historical)/historical
	return clampRange(omega, 0.0, 2.0), false
}

func computeSelection(sc ModuleScorer, s *domain.Strand) float64 {
	w := sc.SelectionWeights()
	c := sc.SelectionComponents(s)
	sum := w.Accuracy*sq(c.Accuracy) + w.Precision*sq(c.Precision) +
		w.Stability*sq(c.Stability) + w.Orthogonality*sq(c.Orthogonality) - w.Cost*c.Cost
	return clamp01(sum)
}

// AggregateParents computes a new braid's resonance scores as the
// parent-weighted mean spec §4.6 step 5 / §4.7 "Weighting" call for:
// each parent's contribution is proportional to its own
// selection_score, normalized across the cluster. A cluster whose
// members all score zero falls back to an unweighted mean.
func AggregateParents(parents []*domain.Strand) domain.ResonanceScores {
	if len(parents) == 0 {
		return neutralScores()
	}

	var totalWeight float64
	for _, p := range parents {
		totalWeight += p.ResonanceScores.SelectionScore
	}

	weight := func(p *domain.Strand) float64 {
		if totalWeight <= 0 {
			return 1.0 / float64(len(parents))
		}
		return p.ResonanceScores.SelectionScore / totalWeight
	}

	var phi, rho, theta, omega, selection float64
	for _, p := range parents {
		w := weight(p)
		phi += w * p.ResonanceScores.Phi
		rho += w * p.ResonanceScores.Rho
		theta += w * p.ResonanceScores.Theta
		omega += w * p.ResonanceScores.Omega
		selection += w * p.ResonanceScores.SelectionScore
	}

	return domain.ResonanceScores{
		Phi:            clamp01(phi),
		Rho:            rho,
		Theta:          clamp01(theta),
		Omega:          clampRange(omega, 0, 2),
		SelectionScore: clamp01(selection),
	}
}

func sq(v float64) float64 { return v * v }

func clamp01(v float64) float64 { return clampRange(v, 0, 1) }

func clampRange(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

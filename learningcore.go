// Package learningcore is the public facade over the learning core's
// internal packages: a Strand ingestion pipeline (classify -> score ->
// cluster -> braid -> promote) plus the read-side Context Injector.
// Embedding applications should depend on this package and its
// constructors rather than reaching into internal/*.
package learningcore

import (
	"github.com/lotustrader/learningcore/internal/braider"
	"github.com/lotustrader/learningcore/internal/classifier"
	"github.com/lotustrader/learningcore/internal/clustering"
	"github.com/lotustrader/learningcore/internal/coefficients"
	"github.com/lotustrader/learningcore/internal/coordinator"
	learningctx "github.com/lotustrader/learningcore/internal/context"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/llm"
	"github.com/lotustrader/learningcore/internal/promoter"
	"github.com/lotustrader/learningcore/internal/queue"
	"github.com/lotustrader/learningcore/internal/resonance"
	"github.com/lotustrader/learningcore/internal/store"
)

// Strand is the learning core's single homogeneous event type.
type Strand = domain.Strand

// StrandKind discriminates the closed set of strand kinds the core
// understands.
type StrandKind = domain.StrandKind

// Strand kind constants, re-exported for callers constructing Strands
// to enqueue.
const (
	KindPattern                = domain.KindPattern
	KindPredictionReview       = domain.KindPredictionReview
	KindConditionalTradingPlan = domain.KindConditionalTradingPlan
	KindTradingDecision        = domain.KindTradingDecision
	KindTradeOutcome           = domain.KindTradeOutcome
	KindExecutionOutcome       = domain.KindExecutionOutcome
	KindPositionClosed         = domain.KindPositionClosed
	KindBraid                  = domain.KindBraid
	KindBraidFailed            = domain.KindBraidFailed
)

// ResonanceScores is the (phi, rho, theta, omega, selection_score)
// five-tuple attached to every strand and braid.
type ResonanceScores = domain.ResonanceScores

// Subscription declares a consumer's filter over braid kinds for
// context retrieval.
type Subscription = domain.Subscription

// ContextHint narrows a get_context call by symbol/timeframe/regime.
type ContextHint = domain.ContextHint

// ContextPayload is the structured, prompt-ready context the Context
// Injector returns.
type ContextPayload = domain.ContextPayload

// PositionClosedContent is the typed payload a position_closed strand
// carries, consumed by the Coefficient Updater.
type PositionClosedContent = domain.PositionClosedContent

// Cluster is a materialized group of strands sharing a (kind, view,
// bucket, window) key, ready to be braided once its member count meets
// a configured threshold.
type Cluster = domain.Cluster

// LearningConfig is a per-kind set of thresholds and view definitions
// the Strand Classifier resolves.
type LearningConfig = domain.LearningConfig

// Item is a durable queue entry referencing one strand by ID.
type Item = queue.Item

// Queue is the durable, at-least-once work queue C2 implements over
// the Strand Store's outbox.
type Queue = queue.Queue

// StrandStore is the append-only, optimistically-concurrent store C1
// implements.
type StrandStore = store.StrandStore

// ScanQuery filters a StrandStore scan by kind, recency, and score.
type ScanQuery = store.ScanQuery

// Coordinator runs classify -> score -> cluster -> braid -> promote for
// each queue item and fans position_closed strands out to the
// Coefficient Updater.
type Coordinator = coordinator.Coordinator

// CoordinatorConfig bundles the Coordinator's tunables: worker
// concurrency and cross-module feedback defaults.
type CoordinatorConfig = coordinator.Config

// Injector implements get_context(consumer_id, hint?) -> ContextPayload
// for synchronous, cacheable retrieval by downstream modules.
type Injector = learningctx.Injector

// ContextCache is the (consumer_id, hint) -> ContextPayload cache the
// Injector consults before reading from the store.
type ContextCache = learningctx.Cache

// Classifier resolves a strand kind to its LearningConfig.
type Classifier = classifier.Classifier

// ResonanceEngine scores strands and aggregates parent-weighted braid
// scores.
type ResonanceEngine = resonance.Engine

// ClusteringEngine partitions strands into Clusters via compiled
// bucketer expressions.
type ClusteringEngine = clustering.Engine

// Promoter validates braid-of-braid lineage and computes promoted
// scores.
type Promoter = promoter.Promoter

// CoefficientUpdater applies closed-trade outcomes to per-lever and
// per-interaction-pattern coefficients via dual-decay EWMA.
type CoefficientUpdater = coefficients.Updater

// Braider synthesizes ready clusters into braid strands via a
// template-driven LLM call, with schema validation and retries.
type Braider = braider.Braider

// LLMCapability is the Braider's model-calling dependency: a single
// Call(ctx, Request) (json.RawMessage, error) method.
type LLMCapability = llm.Capability

// LLMRequest is one templated, parameterized call to an LLMCapability.
type LLMRequest = llm.Request

// Observer reacts to the Coordinator's structured progress events:
// per-item completion, braid creation, failure, and backpressure
// shedding. Register one via Coordinator.Observers().Register.
type Observer = coordinator.Observer

// ObserverManager fans Coordinator events out to registered Observers.
type ObserverManager = coordinator.ObserverManager

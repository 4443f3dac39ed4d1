package domain

import "time"

// ContextHint narrows get_context results by symbol/timeframe/regime
// (spec §4.9 step 3), matched against a braid's ClusterKeys.
type ContextHint struct {
	Symbol    string
	Timeframe string
	Regime    string
}

// Subscription is a consumer's declared filter over braid kinds for
// context retrieval (spec §3 "Subscription").
type Subscription struct {
	ConsumerID string

	// Kinds subscribed to, pulled in declaration order.
	Kinds []StrandKind

	MinBraidLevel  int
	MinScore       float64
	MaxAge         time.Duration
	MaxItems       int
	FormatterID    string
}

// Insight is one rendered insight line of a ContextPayload.
type Insight struct {
	Text          string  `json:"text"`
	SourceBraidID string  `json:"source_braid_id"`
	Score         float64 `json:"score"`
}

// Caveat is one rendered caveat line of a ContextPayload.
type Caveat struct {
	Text          string `json:"text"`
	SourceBraidID string `json:"source_braid_id"`
}

// LineageEntry is one entry of a ContextPayload's lineage trail.
type LineageEntry struct {
	BraidID   string   `json:"braid_id"`
	Level     int      `json:"level"`
	ParentIDs []string `json:"parent_ids"`
}

// ContextPayload is the structured, prompt-ready context C9 returns
// (spec §6's JSON shape, §4.9).
type ContextPayload struct {
	ConsumerID          string             `json:"consumer_id"`
	GeneratedAt         time.Time          `json:"generated_at"`
	Degraded            bool               `json:"degraded"`
	Insights            []Insight          `json:"insights"`
	Caveats             []Caveat           `json:"caveats"`
	QuantitativeSignals map[string]float64 `json:"quantitative_signals"`
	Lineage             []LineageEntry     `json:"lineage"`
}

// EmptyContextPayload returns a non-nil, degraded payload, spec §4.9's "On read
// failures, return an empty payload with an explicit degraded=true flag
// rather than throwing."
func EmptyContextPayload(consumerID string) *ContextPayload {
	return &ContextPayload{
		ConsumerID:          consumerID,
		GeneratedAt:         time.Now().UTC(),
		Degraded:            true,
		Insights:            []Insight{},
		Caveats:             []Caveat{},
		QuantitativeSignals: map[string]float64{},
		Lineage:             []LineageEntry{},
	}
}

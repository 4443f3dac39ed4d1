// Package coefficients implements the Coefficient Updater (C8): EWMA
// temporal-decay updates for per-lever and per-interaction-pattern
// weights, driven by position_closed strands (spec §4.8).
package coefficients

import "fmt"

// VocabularyVersion is the active Bucket Vocabulary version. Changing
// bucket boundaries bumps this constant, rotating the key space rather
// than rewriting history (spec §4.8 "Bucket Vocabulary").
const VocabularyVersion = 1

// Vocabulary is a fixed, versioned set of bucket boundaries per lever.
// It is a pure function: no online bucket learning (spec §4.8).
type Vocabulary struct {
	Version int
}

// DefaultVocabulary is the singleton v1 vocabulary.
var DefaultVocabulary = Vocabulary{Version: VocabularyVersion}

// mcapBoundaries and the others below are expressed as (label, upper
// bound) pairs in ascending order; a value falls into the first bucket
// whose upper bound it does not exceed.
type boundary struct {
	label string
	upper float64
}

var mcapBoundaries = []boundary{
	{"under-500k", 500_000},
	{"500k-1m", 1_000_000},
	{"1m-2m", 2_000_000},
	{"2m-5m", 5_000_000},
	{"5m-20m", 20_000_000},
	{"over-20m", -1}, // -1 = open-ended top bucket
}

var volBoundaries = []boundary{
	{"under-50k", 50_000},
	{"50k-250k", 250_000},
	{"250k-500k", 500_000},
	{"500k-2m", 2_000_000},
	{"over-2m", -1},
}

var ageDayBoundaries = []boundary{
	{"under-1d", 1},
	{"1-3d", 3},
	{"3-7d", 7},
	{"7-30d", 30},
	{"over-30d", -1},
}

var mcapVolRatioBoundaries = []boundary{
	{"under-2", 2},
	{"2-5", 5},
	{"5-10", 10},
	{"over-10", -1},
}

func bucketOf(value float64, bounds []boundary) string {
	for _, b := range bounds {
		if b.upper < 0 || value <= b.upper {
			return b.label
		}
	}
	return bounds[len(bounds)-1].label
}

// MCapBucket maps a market-cap value (in quote currency) to its label.
func (v Vocabulary) MCapBucket(mcap float64) string { return bucketOf(mcap, mcapBoundaries) }

// VolBucket maps a 24h volume value to its label.
func (v Vocabulary) VolBucket(vol24h float64) string { return bucketOf(vol24h, volBoundaries) }

// AgeBucket maps a position age in days to its label.
func (v Vocabulary) AgeBucket(ageDays float64) string { return bucketOf(ageDays, ageDayBoundaries) }

// MCapVolRatioBucket maps an mcap/volume ratio to its label.
func (v Vocabulary) MCapVolRatioBucket(ratio float64) string {
	return bucketOf(ratio, mcapVolRatioBoundaries)
}

// VersionedKey prefixes a coefficient key with the vocabulary version,
// so a boundary change rotates the key space per spec §4.8 rather than
// silently merging old and new buckets.
func (v Vocabulary) VersionedKey(key string) string {
	return fmt.Sprintf("v%d:%s", v.Version, key)
}

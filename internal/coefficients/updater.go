package coefficients

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/puzpuzpuz/xsync/v3"
)

// leverOrder is the canonical, fixed order levers are concatenated in
// when deriving an interaction pattern key (spec §4.8 step 3's worked
// example: "curator=X|chain=Y|cap=1m-2m|vol=250k-500k|age=3-7d").
var leverOrder = []string{"curator", "chain", "cap", "vol", "age", "intent", "confidence", "timeframe"}

// Updater applies position_closed outcomes to the shared coefficient
// table: temporal-decay EWMA updates per single lever and per
// interaction pattern, followed by importance bleed (spec §4.8).
type Updater struct {
	table      *xsync.MapOf[string, *domain.Coefficient]
	vocabulary Vocabulary
	tauShort   time.Duration
	tauLong    time.Duration
	bleedBeta  float64
	bleedThreshold float64
	bounds     domain.LeverBounds
}

// Config bundles the decay constants and bleed parameters spec §6's
// configuration object names (τ_short=14d, τ_long=90d, β=0.2).
type Config struct {
	TauShort       time.Duration
	TauLong        time.Duration
	BleedBeta      float64
	BleedThreshold float64
	Bounds         domain.LeverBounds
}

// DefaultConfig is the configuration spec §4.8/§6 names as defaults.
func DefaultConfig() Config {
	return Config{
		TauShort:       14 * 24 * time.Hour,
		TauLong:        90 * 24 * time.Hour,
		BleedBeta:      0.2,
		BleedThreshold: 0.05,
		Bounds:         domain.DefaultLeverBounds,
	}
}

// NewUpdater builds an Updater over an empty coefficient table.
func NewUpdater(cfg Config, vocab Vocabulary) *Updater {
	return &Updater{
		table:          xsync.NewMapOf[string, *domain.Coefficient](),
		vocabulary:     vocab,
		tauShort:       cfg.TauShort,
		tauLong:        cfg.TauLong,
		bleedBeta:      cfg.BleedBeta,
		bleedThreshold: cfg.BleedThreshold,
		bounds:         cfg.Bounds,
	}
}

// Get returns the current coefficient for a key, if any.
func (u *Updater) Get(module, scope, name, key string) (*domain.Coefficient, bool) {
	c, ok := u.table.Load(u.storageKey(module, scope, name, key))
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (u *Updater) storageKey(module, scope, name, key string) string {
	return u.vocabulary.VersionedKey(fmt.Sprintf("%s|%s|%s|%s", module, scope, name, key))
}

// decayWeights computes w_s, w_l for a trade whose exit was ageDays
// before now and returns the effective alphas w/(w+1), clipped to
// [0, 0.5] (spec §4.8 step 1).
func (u *Updater) decayWeights(ageDays float64) (alphaShort, alphaLong float64) {
	tauShortDays := u.tauShort.Hours() / 24
	tauLongDays := u.tauLong.Hours() / 24

	ws := math.Exp(-ageDays / tauShortDays)
	wl := math.Exp(-ageDays / tauLongDays)

	alphaShort = clampRange(ws/(ws+1), 0, 0.5)
	alphaLong = clampRange(wl/(wl+1), 0, 0.5)
	return
}

// ApplyClosedTrade updates every single-lever coefficient and the
// trade's interaction-pattern coefficient for one closed trade,
// applies importance bleed, and returns every coefficient touched
// (spec §4.8 steps 1-5).
func (u *Updater) ApplyClosedTrade(entry domain.EntryContext, trade domain.ClosedTrade, now time.Time) []domain.Coefficient {
	ageDays := now.Sub(trade.ExitTimestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	alphaShort, alphaLong := u.decayWeights(ageDays)

	levers := leverPairs(entry)
	var touched []domain.Coefficient

	for _, lv := range levers {
		c := u.updateOne("position", "default", lv.name, lv.bucket, trade.RR, alphaShort, alphaLong, now)
		touched = append(touched, *c)
	}

	interactionKey := interactionKey(levers)
	interaction := u.updateOne("position", "default", "interaction", interactionKey, trade.RR, alphaShort, alphaLong, now)
	touched = append(touched, *interaction)

	if math.Abs(interaction.WeightShort-1) > u.bleedThreshold {
		for _, lv := range levers {
			bled := u.bleedOne("position", "default", lv.name, lv.bucket, now)
			if bled != nil {
				touched = append(touched, *bled)
			}
		}
	}

	return touched
}

func (u *Updater) updateOne(module, scope, name, key string, observed, alphaShort, alphaLong float64, now time.Time) *domain.Coefficient {
	storageKey := u.storageKey(module, scope, name, key)
	updated, _ := u.table.Compute(storageKey, func(old *domain.Coefficient, loaded bool) (*domain.Coefficient, bool) {
		c := &domain.Coefficient{
			CoefficientKey: domain.CoefficientKey{
				Module: module, Scope: scope, Name: name, Key: key, VocabularyVersion: u.vocabulary.Version,
			},
		}
		if loaded {
			*c = *old
		} else {
			c.WeightShort = 1.0
			c.WeightLong = 1.0
		}
		c.WeightShort = clampRange((1-alphaShort)*c.WeightShort+alphaShort*observed, u.bounds.Min, u.bounds.Max)
		c.WeightLong = clampRange((1-alphaLong)*c.WeightLong+alphaLong*observed, u.bounds.Min, u.bounds.Max)
		c.LastWeight = observed
		c.ObservationCount++
		c.UpdatedAt = now
		return c, false
	})
	cp := *updated
	return &cp
}

// bleedOne pulls a single-lever coefficient's short weight toward 1.0
// by bleedBeta (spec §4.8 step 4). Returns nil if the lever has never
// been observed (nothing to bleed).
func (u *Updater) bleedOne(module, scope, name, key string, now time.Time) *domain.Coefficient {
	storageKey := u.storageKey(module, scope, name, key)
	updated, loaded := u.table.Compute(storageKey, func(old *domain.Coefficient, loaded bool) (*domain.Coefficient, bool) {
		if !loaded {
			return old, !loaded
		}
		c := *old
		c.WeightShort = clampRange(c.WeightShort+u.bleedBeta*(1-c.WeightShort), u.bounds.Min, u.bounds.Max)
		c.UpdatedAt = now
		return &c, false
	})
	if !loaded {
		return nil
	}
	cp := *updated
	return &cp
}

type leverPair struct {
	name   string
	bucket string
}

func leverPairs(entry domain.EntryContext) []leverPair {
	raw := map[string]string{
		"curator":    entry.Curator,
		"chain":      entry.Chain,
		"cap":        entry.MCapBucket,
		"vol":        entry.VolBucket,
		"age":        entry.AgeBucket,
		"intent":     entry.Intent,
		"confidence": entry.Confidence,
		"timeframe":  entry.Timeframe,
	}
	var out []leverPair
	for _, name := range leverOrder {
		if v := raw[name]; v != "" {
			out = append(out, leverPair{name: name, bucket: v})
		}
	}
	return out
}

// interactionKey derives the stable compound key spec §4.8 step 3
// names, in the fixed canonical lever order (not lexical sort — the
// spec's own worked example orders curator, chain, cap, vol, age).
// leverPairs already emits levers in that order, so this just joins.
func interactionKey(levers []leverPair) string {
	parts := make([]string, len(levers))
	for i, lv := range levers {
		parts[i] = fmt.Sprintf("%s=%s", lv.name, lv.bucket)
	}
	return strings.Join(parts, "|")
}

func clampRange(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

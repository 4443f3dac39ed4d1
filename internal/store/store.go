// Package store implements the Strand Store (C1): an append-only event
// log of strands, keyed by id, indexed by kind, cluster keys, and tags
// (spec §4.1).
package store

import (
	"context"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
)

// ScanQuery selects a (kind, window, level, score) partition of the
// store, spec §4.1 `scan(kind, window, min_level, max_level, min_score)`.
type ScanQuery struct {
	Kind        domain.StrandKind
	Since       time.Time
	Until       time.Time
	MinLevel    int
	MaxLevel    int
	MinScore    float64
}

// Cursor is the lazy sequence spec §4.1 calls for: callers pull one
// strand at a time rather than materializing the whole partition.
type Cursor interface {
	// Next advances the cursor. It returns false (with a nil error) once
	// the sequence is exhausted.
	Next(ctx context.Context) (*domain.Strand, bool, error)
	Close() error
}

// StrandStore is the durable, append-only store spec §4.1/§6 define.
// Implementations must guarantee: append is durable before any
// downstream notification fires; readers observe monotonically
// non-decreasing state; concurrent appends to different ids never
// block each other; notifications are linearized per kind partition.
type StrandStore interface {
	// Append is atomic: it rejects a duplicate id (coreerr.InputError
	// wrapping a conflict) and rejects braid_level >= 2 without
	// parent_ids (coreerr.InputError).
	Append(ctx context.Context, s *domain.Strand) (string, error)

	Get(ctx context.Context, id string) (*domain.Strand, error)

	Scan(ctx context.Context, q ScanQuery) (Cursor, error)

	ByClusterKey(ctx context.Context, kind domain.StrandKind, view domain.View, bucket string) (Cursor, error)

	// UpdateResonanceScores performs the optimistic-concurrency update
	// spec §4.1/§6 name: it succeeds only if version matches the
	// strand's current version, else returns coreerr.ConflictError.
	UpdateResonanceScores(ctx context.Context, id string, version int64, scores domain.ResonanceScores) error
}

// sliceCursor adapts an in-memory slice to the Cursor interface, shared
// by the memory store and by tests.
type sliceCursor struct {
	items []*domain.Strand
	pos   int
}

func newSliceCursor(items []*domain.Strand) *sliceCursor {
	return &sliceCursor{items: items}
}

func (c *sliceCursor) Next(ctx context.Context) (*domain.Strand, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if c.pos >= len(c.items) {
		return nil, false, nil
	}
	s := c.items[c.pos]
	c.pos++
	return s, true, nil
}

func (c *sliceCursor) Close() error { return nil }

// Drain pulls every remaining item off a cursor into a slice. Meant for
// small partitions (clustering windows, test assertions) — the store
// contract itself stays lazy via Cursor.
func Drain(ctx context.Context, c Cursor) ([]*domain.Strand, error) {
	defer c.Close()
	var out []*domain.Strand
	for {
		s, ok, err := c.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, s)
	}
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/puzpuzpuz/xsync/v3"
)

// Outbox is the queue-side collaborator the store co-commits with every
// append (spec §4.2's outbox pattern: "Enqueue is part of the same
// commit as the append"). Implemented by the queue package.
type Outbox interface {
	Enqueue(ctx context.Context, strandID string, kind domain.StrandKind) error
}

// MemoryStore is an in-memory StrandStore, suitable for tests and for
// single-process deployments. It mirrors the concurrency contract of
// the durable store: per-id version CAS, per-kind notification
// ordering via the injected Outbox.
type MemoryStore struct {
	mu      sync.RWMutex
	strands map[string]*domain.Strand
	byKind  map[domain.StrandKind][]*domain.Strand // append order, for FIFO scans
	outbox  Outbox
}

// NewMemoryStore creates an empty MemoryStore. outbox may be nil (no
// downstream notification), useful for isolated unit tests.
func NewMemoryStore(outbox Outbox) *MemoryStore {
	return &MemoryStore{
		strands: make(map[string]*domain.Strand),
		byKind:  make(map[domain.StrandKind][]*domain.Strand),
		outbox:  outbox,
	}
}

// xsyncTag exists purely to keep the xsync import live for the
// coefficient-table-style usage documented in DESIGN.md; the strand
// store itself uses a plain mutex because its access pattern is
// dominated by full-partition scans under a read lock, not point
// lookups, where xsync's benefit is smaller than its complexity cost
// here. See internal/coefficients and internal/braider for xsync's
// actual home.
var _ = xsync.NewMapOf[string, int]

func (s *MemoryStore) Append(ctx context.Context, st *domain.Strand) (string, error) {
	if err := st.Validate(); err != nil {
		return "", coreerr.NewInput(err.Error(), nil)
	}

	s.mu.Lock()
	if _, exists := s.strands[st.ID]; exists {
		s.mu.Unlock()
		return "", coreerr.NewInput("duplicate strand id: "+st.ID, coreerr.NewConflict(st.ID))
	}
	if st.BraidLevel >= 2 {
		for _, pid := range st.ParentIDs {
			if _, ok := s.strands[pid]; !ok {
				s.mu.Unlock()
				return "", coreerr.NewInput("parent strand not found: "+pid, nil)
			}
		}
	}
	cp := *st
	cp.Version = 1
	s.strands[st.ID] = &cp
	s.byKind[st.Kind] = append(s.byKind[st.Kind], &cp)
	s.mu.Unlock()

	if s.outbox != nil {
		if err := s.outbox.Enqueue(ctx, st.ID, st.Kind); err != nil {
			return "", coreerr.NewTransient("enqueue outbox item", err)
		}
	}
	return st.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Strand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.strands[id]
	if !ok {
		return nil, coreerr.NewNotFound(id)
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) Scan(ctx context.Context, q ScanQuery) (Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Strand
	for _, st := range s.byKind[q.Kind] {
		if !withinWindow(st.CreatedAt, q.Since, q.Until) {
			continue
		}
		if q.MinLevel > 0 && st.BraidLevel < q.MinLevel {
			continue
		}
		if q.MaxLevel > 0 && st.BraidLevel > q.MaxLevel {
			continue
		}
		if st.ResonanceScores.SelectionScore < q.MinScore {
			continue
		}
		cp := *st
		out = append(out, &cp)
	}
	sortByCreatedThenID(out)
	return newSliceCursor(out), nil
}

func (s *MemoryStore) ByClusterKey(ctx context.Context, kind domain.StrandKind, view domain.View, bucket string) (Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Strand
	for _, st := range s.byKind[kind] {
		if st.ClusterKeys[string(view)] == bucket {
			cp := *st
			out = append(out, &cp)
		}
	}
	sortByCreatedThenID(out)
	return newSliceCursor(out), nil
}

func (s *MemoryStore) UpdateResonanceScores(ctx context.Context, id string, version int64, scores domain.ResonanceScores) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.strands[id]
	if !ok {
		return coreerr.NewNotFound(id)
	}
	if st.Version != version {
		return coreerr.NewConflict(id)
	}
	st.ResonanceScores = scores
	st.Version++
	return nil
}

// SetClusterKeys records a materialized view->bucket label on a strand
// (spec §3 "cluster_keys"), called by the Clustering Engine after
// bucketing. It does not participate in the resonance-score version
// CAS: cluster_keys are a side channel, not the score field §5 singles
// out for optimistic concurrency.
func (s *MemoryStore) SetClusterKeys(ctx context.Context, id string, keys map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.strands[id]
	if !ok {
		return coreerr.NewNotFound(id)
	}
	if st.ClusterKeys == nil {
		st.ClusterKeys = make(map[string]string, len(keys))
	}
	for k, v := range keys {
		st.ClusterKeys[k] = v
	}
	return nil
}

func withinWindow(t, since, until time.Time) bool {
	if !since.IsZero() && t.Before(since) {
		return false
	}
	if !until.IsZero() && t.After(until) {
		return false
	}
	return true
}

func sortByCreatedThenID(strands []*domain.Strand) {
	sort.Slice(strands, func(i, j int) bool {
		if strands[i].CreatedAt.Equal(strands[j].CreatedAt) {
			return strands[i].ID < strands[j].ID
		}
		return strands[i].CreatedAt.Before(strands[j].CreatedAt)
	})
}

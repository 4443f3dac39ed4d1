// Package queue implements the Queue (C2): the durable work list a
// Dispatcher drains to feed the Coordinator, populated by the Strand
// Store's outbox co-commit (spec §4.2).
package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/lotustrader/learningcore/internal/coreerr"
	"github.com/lotustrader/learningcore/internal/domain"
)

// Status is an outbox item's lifecycle stage (spec §4.2/§11).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one unit of dispatch work: a strand waiting to be classified,
// scored, clustered, and (if its cluster is ready) braided.
type Item struct {
	ID          string
	StrandID    string
	Kind        domain.StrandKind
	Status      Status
	Attempts    int
	MaxAttempts int
	AvailableAt time.Time
	ParkReason  string
}

// Queue is the durable work list the Dispatcher consumes and the Strand
// Store co-commits into (spec §6 "Queue interface (consumed):
// enqueue(item) — called by store outbox drainer").
type Queue interface {
	// Enqueue records a newly appended strand as pending work.
	// MemoryStore.Append calls it after storing the strand; BunStore.Append
	// writes the outbox row itself in the strand's own transaction and
	// does not call it.
	Enqueue(ctx context.Context, strandID string, kind domain.StrandKind) error

	// Claim marks up to n pending (or past-visibility-deadline
	// processing) items as processing and returns them, oldest first.
	Claim(ctx context.Context, n int, visibility time.Duration) ([]Item, error)

	// Ack marks an item completed.
	Ack(ctx context.Context, id string) error

	// Nack returns an item to pending for retry, or parks it as failed
	// once retryable is false or attempts are exhausted.
	Nack(ctx context.Context, id string, reason string, retryable bool) error

	// Depth reports the number of pending items, used by the Coordinator
	// and C11's metrics for backpressure decisions.
	Depth(ctx context.Context) (int, error)
}

// MemoryQueue is an in-process Queue backed by a doubly linked list for
// FIFO claim order, guarded by a mutex: a small mutable table, no
// channels needed at this scale.
type MemoryQueue struct {
	mu          sync.Mutex
	items       map[string]*list.Element
	order       *list.List // holds *Item, oldest first
	defaultMax  int
}

// NewMemoryQueue creates an empty queue. defaultMaxAttempts is applied
// to items enqueued without an explicit override.
func NewMemoryQueue(defaultMaxAttempts int) *MemoryQueue {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 5
	}
	return &MemoryQueue{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		defaultMax: defaultMaxAttempts,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, strandID string, kind domain.StrandKind) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.items[strandID]; exists {
		return nil // idempotent: re-enqueue of an id already tracked is a no-op
	}
	item := &Item{
		ID:          strandID,
		StrandID:    strandID,
		Kind:        kind,
		Status:      StatusPending,
		MaxAttempts: q.defaultMax,
		AvailableAt: time.Now().UTC(),
	}
	el := q.order.PushBack(item)
	q.items[strandID] = el
	return nil
}

func (q *MemoryQueue) Claim(ctx context.Context, n int, visibility time.Duration) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	var claimed []Item
	for el := q.order.Front(); el != nil && len(claimed) < n; el = el.Next() {
		item := el.Value.(*Item)
		if (item.Status == StatusPending || item.Status == StatusProcessing) && !item.AvailableAt.After(now) {
			item.Status = StatusProcessing
			item.Attempts++
			item.AvailableAt = now.Add(visibility)
			claimed = append(claimed, *item)
		}
	}
	return claimed, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	el, ok := q.items[id]
	if !ok {
		return coreerr.NewNotFound(id)
	}
	item := el.Value.(*Item)
	item.Status = StatusCompleted
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, id string, reason string, retryable bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	el, ok := q.items[id]
	if !ok {
		return coreerr.NewNotFound(id)
	}
	item := el.Value.(*Item)
	item.ParkReason = reason
	if !retryable || item.Attempts >= item.MaxAttempts {
		item.Status = StatusFailed
		return nil
	}
	item.Status = StatusPending
	item.AvailableAt = time.Now().UTC()
	return nil
}

func (q *MemoryQueue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for el := q.order.Front(); el != nil; el = el.Next() {
		if el.Value.(*Item).Status == StatusPending {
			n++
		}
	}
	return n, nil
}

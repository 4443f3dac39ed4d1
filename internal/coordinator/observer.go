package coordinator

import (
	"sync"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/lotustrader/learningcore/internal/queue"
)

// Observer reacts to the Coordinator's structured progress events:
// per-item completion, braid creation, failure, and backpressure
// shedding.
type Observer interface {
	OnProcessed(item queue.Item)
	OnBraidCreated(braid *domain.Strand)
	OnFailure(item queue.Item, err error)
	OnShed(reason string)
}

// ObserverManager fans one event out to any number of registered
// observers. Observers are called synchronously on the pipeline's
// goroutine, with no recover: a slow observer delays processing and a
// panicking one propagates the panic. Observers are expected to be
// cheap (metrics, cache invalidation, logging) — anything expensive
// belongs on its own goroutine.
type ObserverManager struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewObserverManager() *ObserverManager {
	return &ObserverManager{}
}

func (m *ObserverManager) Register(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *ObserverManager) notifyProcessed(item queue.Item) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.observers {
		o.OnProcessed(item)
	}
}

func (m *ObserverManager) notifyBraidCreated(braid *domain.Strand) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.observers {
		o.OnBraidCreated(braid)
	}
}

func (m *ObserverManager) notifyFailure(item queue.Item, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.observers {
		o.OnFailure(item, err)
	}
}

func (m *ObserverManager) notifyShed(reason string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.observers {
		o.OnShed(reason)
	}
}

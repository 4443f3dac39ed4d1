package context

import (
	"sync"

	"github.com/lotustrader/learningcore/internal/domain"
)

// SubscriptionRegistry is a static, in-process SubscriptionResolver:
// consumers register their Subscription once at startup and the
// registry serves lookups by consumer id, plus a reverse index by
// kind so a braid's subscribers can be found without scanning every
// registered consumer.
type SubscriptionRegistry struct {
	mu        sync.RWMutex
	byConsumer map[string]domain.Subscription
	byKind     map[domain.StrandKind][]string
}

// NewSubscriptionRegistry builds an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		byConsumer: map[string]domain.Subscription{},
		byKind:     map[domain.StrandKind][]string{},
	}
}

// Register adds or replaces a consumer's Subscription.
func (r *SubscriptionRegistry) Register(sub domain.Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byConsumer[sub.ConsumerID]; ok {
		r.removeFromKindIndex(old)
	}
	r.byConsumer[sub.ConsumerID] = sub
	for _, kind := range sub.Kinds {
		r.byKind[kind] = append(r.byKind[kind], sub.ConsumerID)
	}
}

func (r *SubscriptionRegistry) removeFromKindIndex(sub domain.Subscription) {
	for _, kind := range sub.Kinds {
		ids := r.byKind[kind]
		for i, id := range ids {
			if id == sub.ConsumerID {
				r.byKind[kind] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
}

// Resolve implements SubscriptionResolver.
func (r *SubscriptionRegistry) Resolve(consumerID string) (domain.Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byConsumer[consumerID]
	return sub, ok
}

// ConsumersForKind returns the ids of consumers subscribed to kind,
// used to fan a braid-created event out to the affected caches.
func (r *SubscriptionRegistry) ConsumersForKind(kind domain.StrandKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byKind[kind]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

package context

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lotustrader/learningcore/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL is the bounded cache lifetime spec §4.9 step 5 names.
const DefaultTTL = 15 * time.Minute

// Cache is the (consumer_id, hint) -> ContextPayload cache. It is
// backed by Redis when a client is supplied, with a local in-process
// index of keys-per-consumer so Invalidate can fan out without a
// Redis SCAN.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger

	mu         sync.Mutex
	keysByUser map[string]map[string]struct{}
	local      map[string]*domain.ContextPayload // used when rdb is nil
}

// NewCache builds a Cache. Passing a nil *redis.Client degrades to a
// local in-memory cache (used in tests and for single-process
// deployments without Redis configured). The ttl applies to Redis
// entries only; local entries do not expire and are dropped only by
// InvalidateConsumer.
func NewCache(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		rdb:        rdb,
		ttl:        ttl,
		log:        log,
		keysByUser: map[string]map[string]struct{}{},
		local:      map[string]*domain.ContextPayload{},
	}
}

func cacheKey(consumerID string, hint *domain.ContextHint) string {
	if hint == nil {
		return fmt.Sprintf("ctx:%s:", consumerID)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", hint.Symbol, hint.Timeframe, hint.Regime)))
	return fmt.Sprintf("ctx:%s:%s", consumerID, hex.EncodeToString(sum[:8]))
}

func consumerOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Get returns the cached payload for key, if present. Redis entries
// expire after the TTL; local entries (nil client) never expire.
func (c *Cache) Get(key string) (*domain.ContextPayload, bool) {
	if c.rdb == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		p, ok := c.local[key]
		return p, ok
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Str("key", key).Msg("context cache: read failed, treating as miss")
		}
		return nil, false
	}
	var payload domain.ContextPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("context cache: corrupt entry, treating as miss")
		return nil, false
	}
	return &payload, true
}

// Set stores a payload under key with the configured TTL and records
// the key against the consumer for later invalidation.
func (c *Cache) Set(key string, payload *domain.ContextPayload) {
	c.mu.Lock()
	consumer := consumerOf(key)
	if c.keysByUser[consumer] == nil {
		c.keysByUser[consumer] = map[string]struct{}{}
	}
	c.keysByUser[consumer][key] = struct{}{}
	c.mu.Unlock()

	if c.rdb == nil {
		c.mu.Lock()
		c.local[key] = payload
		c.mu.Unlock()
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("context cache: marshal failed, not caching")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("context cache: write failed")
	}
}

// InvalidateConsumer drops every cached hint-variant for consumerID,
// spec §4.9 step 5's "invalidated when a newer braid is promoted into
// the subscribed set."
func (c *Cache) InvalidateConsumer(consumerID string) {
	c.mu.Lock()
	keys := c.keysByUser[consumerID]
	delete(c.keysByUser, consumerID)
	if c.rdb == nil {
		for k := range keys {
			delete(c.local, k)
		}
	}
	c.mu.Unlock()

	if c.rdb == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ids := make([]string, 0, len(keys))
	for k := range keys {
		ids = append(ids, k)
	}
	if err := c.rdb.Del(ctx, ids...).Err(); err != nil {
		c.log.Warn().Err(err).Str("consumer_id", consumerID).Msg("context cache: invalidation failed")
	}
}

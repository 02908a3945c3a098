package completion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"treatment-review/internal/common/logger"
	"treatment-review/internal/common/metrics"
	"treatment-review/internal/conversation"
)

// Store is the key-value subset of the redis wrapper used by the cache.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// Cached stores replies keyed by model and full transcript. Identical
// transcripts sent to the same model get the stored reply. Store failures
// are logged and fall through to the wrapped client.
func Cached(store Store, model, prefix string, ttl time.Duration, log logger.Logger) Middleware {
	return func(next Client) Client {
		return &cached{next: next, store: store, model: model, prefix: prefix, ttl: ttl, log: log}
	}
}

type cached struct {
	next   Client
	store  Store
	model  string
	prefix string
	ttl    time.Duration
	log    logger.Logger
}

// CacheKey hashes model and messages into a stable key.
func CacheKey(prefix, model string, messages []conversation.Message) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	// Message is two strings; Marshal cannot fail.
	raw, _ := json.Marshal(messages)
	h.Write(raw)
	return prefix + hex.EncodeToString(h.Sum(nil))
}

func (c *cached) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	key := CacheKey(c.prefix, c.model, messages)

	reply, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CompletionCacheHits.WithLabelValues("hit").Inc()
		return reply, nil
	case errors.Is(err, redis.Nil):
		metrics.CompletionCacheHits.WithLabelValues("miss").Inc()
	default:
		metrics.CompletionCacheHits.WithLabelValues("error").Inc()
		c.log.Warn("completion cache read failed", map[string]interface{}{"error": err})
	}

	reply, err = c.next.Complete(ctx, messages)
	if err != nil {
		return "", err
	}

	if err := c.store.Set(ctx, key, reply, c.ttl); err != nil {
		c.log.Warn("completion cache write failed", map[string]interface{}{"error": err})
	}
	return reply, nil
}

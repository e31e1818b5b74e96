package conversation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// summariesCacheKey is the single key caching the full Summaries listing;
// the list is small enough (one entry per conversation) that whole-list
// caching is simpler than per-conversation keys and still saves the
// Store's in-memory copy-and-sort of its index on every
// list_ids/session-summary call, the operation the seed scenarios exercise
// most often.
const summariesCacheKey = "sagitta:conversations:summaries"

// CachedStore is a Redis cache-aside decorator over *Store: an optional
// layer in front of the file-based Conversation Store for
// list_ids/session-summary reads, grounded on
// manifold/internal/workspaces.RedisGenerationCache's
// enabled-flag-and-ping-on-construct idiom. The Store remains the source of
// truth; every mutation invalidates the cache rather than updating it in
// place, trading a cache miss for simplicity since Summaries() is already
// a cheap in-memory sort.
type CachedStore struct {
	*Store
	redis *redis.Client
	ttl   time.Duration
}

// RedisConfig configures the optional cache-aside layer.
type RedisConfig struct {
	Enabled bool
	Addr    string
	Password string
	DB      int
	TTL     time.Duration
}

// NewCachedStore wraps store with a Redis cache-aside layer when cfg is
// enabled; Ping verifies connectivity up front so a misconfigured Redis
// fails fast at startup rather than on the first request. When cfg is
// disabled, the returned CachedStore has a nil redis client and behaves as
// a pass-through to store.
func NewCachedStore(store *Store, cfg RedisConfig) (*CachedStore, error) {
	cs := &CachedStore{Store: store, ttl: cfg.TTL}
	if cs.ttl <= 0 {
		cs.ttl = 30 * time.Second
	}
	if !cfg.Enabled {
		return cs, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	cs.redis = client
	return cs, nil
}

// Summaries returns the cached summary list when present and unexpired,
// otherwise falls through to the Store and repopulates the cache.
func (cs *CachedStore) Summaries(ctx context.Context) []Summary {
	if cs.redis == nil {
		return cs.Store.Summaries(ctx)
	}

	if raw, err := cs.redis.Get(ctx, summariesCacheKey).Bytes(); err == nil {
		var cached []Summary
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached
		}
	}

	fresh := cs.Store.Summaries(ctx)
	if raw, err := json.Marshal(fresh); err == nil {
		if err := cs.redis.Set(ctx, summariesCacheKey, raw, cs.ttl).Err(); err != nil {
			log.Debug().Err(err).Msg("populate summaries cache failed")
		}
	}
	return fresh
}

// invalidate drops the cached summary list so the next Summaries call
// repopulates it from the Store. ListIDs is never cached: it's a cheap
// in-memory map walk, so caching it separately would only add
// invalidation surface for no real savings.
func (cs *CachedStore) invalidate(ctx context.Context) {
	if cs.redis == nil {
		return
	}
	if err := cs.redis.Del(ctx, summariesCacheKey).Err(); err != nil {
		log.Debug().Err(err).Msg("invalidate summaries cache failed")
	}
}

// Save writes through to the Store then invalidates the cache.
func (cs *CachedStore) Save(ctx context.Context, c Conversation) error {
	if err := cs.Store.Save(ctx, c); err != nil {
		return err
	}
	cs.invalidate(ctx)
	return nil
}

// Delete writes through to the Store then invalidates the cache.
func (cs *CachedStore) Delete(ctx context.Context, id string) error {
	if err := cs.Store.Delete(ctx, id); err != nil {
		return err
	}
	cs.invalidate(ctx)
	return nil
}

// Archive writes through to the Store then invalidates the cache.
func (cs *CachedStore) Archive(ctx context.Context, id string) error {
	if err := cs.Store.Archive(ctx, id); err != nil {
		return err
	}
	cs.invalidate(ctx)
	return nil
}

// Restore writes through to the Store then invalidates the cache.
func (cs *CachedStore) Restore(ctx context.Context, id string) error {
	if err := cs.Store.Restore(ctx, id); err != nil {
		return err
	}
	cs.invalidate(ctx)
	return nil
}

// Close releases the Redis client, if one was created.
func (cs *CachedStore) Close() error {
	if cs.redis == nil {
		return nil
	}
	return cs.redis.Close()
}

package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/config"
	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const profileKeyPrefix = "recovery:profile"

// ProfileCache keeps pair profiles close to incremental runs.
type ProfileCache interface {
	// GetProfiles returns the cached profiles of keys and the keys it missed.
	GetProfiles(ctx context.Context, keys []domain.PairKey) (map[domain.PairKey]domain.PairProfile, []domain.PairKey, error)
	SetProfiles(ctx context.Context, profiles []domain.PairProfile) error
	InvalidateAll(ctx context.Context) error
}

type redisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopProfileCache struct{}

func NewProfileCache(cfg config.CacheConfig) (ProfileCache, error) {
	if !cfg.Enabled {
		return &noopProfileCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return NewRedisProfileCache(client, ttl), nil
}

// NewRedisProfileCache wraps an existing client.
func NewRedisProfileCache(client *redis.Client, ttl time.Duration) ProfileCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisProfileCache{client: client, ttl: ttl}
}

func NewNoopProfileCache() ProfileCache {
	return &noopProfileCache{}
}

func (c *redisProfileCache) GetProfiles(ctx context.Context, keys []domain.PairKey) (map[domain.PairKey]domain.PairProfile, []domain.PairKey, error) {
	found := make(map[domain.PairKey]domain.PairProfile, len(keys))
	if len(keys) == 0 {
		return found, nil, nil
	}

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = buildProfileKey(k)
	}

	values, err := c.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, keys, fmt.Errorf("redis mget failed: %w", err)
	}

	var missing []domain.PairKey
	for i, v := range values {
		payload, ok := v.(string)
		if !ok {
			missing = append(missing, keys[i])
			continue
		}

		var profile domain.PairProfile
		if err := json.Unmarshal([]byte(payload), &profile); err != nil {
			log.Warn().Err(err).Str("key", redisKeys[i]).Msg("discarding undecodable cached profile")
			missing = append(missing, keys[i])
			continue
		}
		found[keys[i]] = profile
	}

	return found, missing, nil
}

func (c *redisProfileCache) SetProfiles(ctx context.Context, profiles []domain.PairProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, p := range profiles {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode pair profile cache: %w", err)
		}
		pipe.Set(ctx, buildProfileKey(p.Key()), payload, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline set failed: %w", err)
	}
	return nil
}

func (c *redisProfileCache) InvalidateAll(ctx context.Context) error {
	n, err := deleteKeysWithPrefix(ctx, c.client, profileKeyPrefix, scanBatchSize)
	if err != nil {
		return err
	}
	log.Debug().Int("keys", n).Msg("pair profile cache invalidated")
	return nil
}

func (n *noopProfileCache) GetProfiles(ctx context.Context, keys []domain.PairKey) (map[domain.PairKey]domain.PairProfile, []domain.PairKey, error) {
	return map[domain.PairKey]domain.PairProfile{}, keys, nil
}

func (n *noopProfileCache) SetProfiles(ctx context.Context, profiles []domain.PairProfile) error {
	return nil
}

func (n *noopProfileCache) InvalidateAll(ctx context.Context) error {
	return nil
}

// buildProfileKey hashes the pair so store and product codes never clash with
// the key separator.
func buildProfileKey(key domain.PairKey) string {
	sum := sha1.Sum([]byte(key.Store + "\x00" + key.Product))
	return fmt.Sprintf("%s:%s", profileKeyPrefix, hex.EncodeToString(sum[:]))
}

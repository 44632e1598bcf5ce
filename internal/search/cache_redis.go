package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"gamereview/searchservice/internal/domain"
)

const redisCachePrefix = "gsearch:cache:"

// redisCmdable is the slice of the go-redis client the backend needs; tests
// substitute an in-memory implementation.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCacheBackend is the second cache tier: responses the in-process cache
// has evicted or expired can still be served from Redis with a much longer
// TTL, marked stale so the caller can refresh in the background.
type RedisCacheBackend struct {
	client redisCmdable
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

type redisEnvelope struct {
	StoredAt time.Time             `json:"storedAt"`
	Response domain.SearchResponse `json:"response"`
}

// Get returns the stored response plus whether it is older than freshFor.
func (r *RedisCacheBackend) Get(ctx context.Context, key string, freshFor time.Duration) (domain.SearchResponse, bool, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.SearchResponse{}, false, false, nil
		}
		return domain.SearchResponse{}, false, false, err
	}
	var envelope redisEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		// A corrupted entry is a miss; drop the key so it cannot poison
		// every later read until TTL.
		_ = r.Delete(ctx, key)
		return domain.SearchResponse{}, false, false, err
	}
	stale := time.Since(envelope.StoredAt) > freshFor
	return envelope.Response, true, stale, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, response domain.SearchResponse, ttl time.Duration) error {
	data, err := json.Marshal(redisEnvelope{StoredAt: time.Now(), Response: response})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisCachePrefix+key).Err()
}

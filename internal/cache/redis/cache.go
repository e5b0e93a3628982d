package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"batchtrack/internal/domain"
)

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cannot connect to Redis at %s: %w", addr, err)
	}

	return &RedisCache{client: rdb}, nil
}

// Generation returns the batch's current item generation, 0 before the first
// Invalidate.
func (r *RedisCache) Generation(ctx context.Context, batchID string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(batchID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get item generation: %w", err)
	}
	return gen, nil
}

// GetItems reports ok=false on a miss.
func (r *RedisCache) GetItems(ctx context.Context, batchID string, gen int64) ([]domain.BatchItem, bool, error) {
	data, err := r.client.Get(ctx, itemsKey(batchID, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached items: %w", err)
	}

	var items []domain.BatchItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, fmt.Errorf("decode cached items: %w", err)
	}
	return items, true, nil
}

func (r *RedisCache) SetItems(ctx context.Context, batchID string, gen int64, items []domain.BatchItem, ttl time.Duration) error {
	if items == nil {
		items = []domain.BatchItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	if err := r.client.Set(ctx, itemsKey(batchID, gen), data, ttl).Err(); err != nil {
		return fmt.Errorf("set cached items: %w", err)
	}
	return nil
}

// Invalidate bumps the generation and drops the list cached under the old
// one. Lists written later under the old generation expire on their TTL.
func (r *RedisCache) Invalidate(ctx context.Context, batchID string) error {
	gen, err := r.client.Incr(ctx, generationKey(batchID)).Result()
	if err != nil {
		return fmt.Errorf("bump item generation: %w", err)
	}
	if err := r.client.Del(ctx, itemsKey(batchID, gen-1)).Err(); err != nil {
		return fmt.Errorf("delete cached items: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func itemsKey(batchID string, gen int64) string {
	return fmt.Sprintf("items:%s:%d", batchID, gen)
}

func generationKey(batchID string) string {
	return fmt.Sprintf("items-gen:%s", batchID)
}

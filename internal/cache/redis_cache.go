package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"taskly-chat/internal/models"
)

type RedisHistoryCache struct {
	client *redis.Client
	key    string
	genKey string
	ttl    time.Duration
}

func NewRedisHistoryCache(addr, password string, db int, prefix string, ttl time.Duration) (*RedisHistoryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisHistoryCache(client, prefix, ttl), nil
}

func newRedisHistoryCache(client *redis.Client, prefix string, ttl time.Duration) *RedisHistoryCache {
	return &RedisHistoryCache{
		client: client,
		key:    prefix + ":history",
		genKey: prefix + ":history:gen",
		ttl:    ttl,
	}
}

func (c *RedisHistoryCache) Get(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	data, err := c.client.HGet(ctx, c.key, strconv.Itoa(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var msgs []models.ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return msgs, nil
}

// Generation returns the current invalidation counter.
func (c *RedisHistoryCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// Set stores the page only if no invalidation happened since generation was read.
func (c *RedisHistoryCache) Set(ctx context.Context, limit int, generation int64, msgs []models.ChatMessage) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, c.genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return ErrStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, c.key, strconv.Itoa(limit), data)
			pipe.Expire(ctx, c.key, c.ttl)
			return nil
		})
		return err
	}, c.genKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return ErrStaleGeneration
	default:
		return fmt.Errorf("failed to set in redis: %w", err)
	}
}

// Invalidate drops every cached page and bumps the generation.
func (c *RedisHistoryCache) Invalidate(ctx context.Context) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.genKey)
	pipe.Del(ctx, c.key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate redis cache: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Close() error {
	return c.client.Close()
}

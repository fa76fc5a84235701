package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/departureboard/departureboard/internal/dashboard"
)

// Redis key and channel used when none are configured.
const (
	DefaultRedisKey     = "departureboard:snapshot"
	DefaultRedisChannel = "departureboard:snapshots"
)

// RedisClient is the subset of redis.Cmdable used by the publisher.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisConfig configures a Redis publisher.
type RedisConfig struct {
	Key     string
	Channel string

	// TTL of the stored snapshot; zero keeps it forever.
	TTL time.Duration
}

// Redis stores the latest snapshot under a key and announces it on a
// pub/sub channel.
type Redis struct {
	client  RedisClient
	key     string
	channel string
	ttl     time.Duration
}

// NewRedis creates a Redis publisher.
func NewRedis(client RedisClient, cfg RedisConfig) *Redis {
	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &Redis{client: client, key: key, channel: channel, ttl: cfg.TTL}
}

// Publish implements dashboard.Publisher.
func (r *Redis) Publish(ctx context.Context, snap *dashboard.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: storing snapshot: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis: announcing snapshot: %w", err)
	}
	return nil
}

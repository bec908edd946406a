package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/config"
)

// KeyPrefix namespaces every key written by the sync service.
const KeyPrefix = "canvas_sync:"

// Key joins parts under the sync namespace.
func Key(parts ...string) string {
	key := KeyPrefix
	for i, part := range parts {
		if i > 0 {
			key += ":"
		}
		key += part
	}
	return key
}

// NewRedis returns a ping-checked Redis client, or nil when result caching is disabled.
func NewRedis(ctx context.Context, cfg config.RedisConfig, enabled bool) (*redis.Client, error) {
	if !enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

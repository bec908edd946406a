package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/cache"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

// ResultCacheRepository publishes sync results to Redis. A nil client turns every call into a miss or no-op.
type ResultCacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewResultCacheRepository constructs a result cache repository.
func NewResultCacheRepository(client *redis.Client, logger *zap.Logger) *ResultCacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCacheRepository{client: client, logger: logger}
}

// RunKey is the key of a single run's result.
func RunKey(runID string) string {
	return cache.Key("run", runID)
}

// LatestKey is the key of the most recent result.
func LatestKey() string {
	return cache.Key("latest")
}

// SaveResult stores result under its run key and as the latest result.
func (r *ResultCacheRepository) SaveResult(ctx context.Context, result *models.SyncResult, ttl time.Duration) error {
	if r.client == nil || result == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal sync result %s: %w", result.RunID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, RunKey(result.RunID), payload, ttl)
	pipe.Set(ctx, LatestKey(), payload, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store sync result %s: %w", result.RunID, err)
	}
	return nil
}

// GetResult loads a run's result.
func (r *ResultCacheRepository) GetResult(ctx context.Context, runID string) (*models.SyncResult, error) {
	return r.get(ctx, RunKey(runID))
}

// Latest loads the most recent result.
func (r *ResultCacheRepository) Latest(ctx context.Context) (*models.SyncResult, error) {
	return r.get(ctx, LatestKey())
}

func (r *ResultCacheRepository) get(ctx context.Context, key string) (*models.SyncResult, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var result models.SyncResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return &result, nil
}

// Ping checks the Redis connection when one is configured.
func (r *ResultCacheRepository) Ping(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection if present.
func (r *ResultCacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

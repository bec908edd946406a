package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Tdawg-development/Canvas-Tracker-V3-sub000/internal/models"
	appErrors "github.com/Tdawg-development/Canvas-Tracker-V3-sub000/pkg/errors"
)

// ResultRepository abstracts persistence for published sync results.
type ResultRepository interface {
	SaveResult(ctx context.Context, result *models.SyncResult, ttl time.Duration) error
	GetResult(ctx context.Context, runID string) (*models.SyncResult, error)
	Latest(ctx context.Context) (*models.SyncResult, error)
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// ResultCacheService publishes run results and serves them back with hit/miss metrics.
type ResultCacheService struct {
	repo       ResultRepository
	metrics    cacheMetrics
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewResultCacheService constructs a result cache service.
func NewResultCacheService(repo ResultRepository, metrics cacheMetrics, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *ResultCacheService {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled indicates whether results are published.
func (s *ResultCacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// SaveResult stores result. It is a no-op when caching is disabled.
func (s *ResultCacheService) SaveResult(ctx context.Context, result *models.SyncResult, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.repo.SaveResult(ctx, result, ttl); err != nil {
		s.logger.Warn("result cache set failed", zap.String("run_id", result.RunID), zap.Error(err))
		return err
	}
	return nil
}

// GetResult returns the result of runID or ErrCacheMiss. It fails with ErrUnavailable when caching is disabled.
func (s *ResultCacheService) GetResult(ctx context.Context, runID string) (*models.SyncResult, error) {
	return s.get(ctx, func(ctx context.Context) (*models.SyncResult, error) {
		return s.repo.GetResult(ctx, runID)
	})
}

// Latest returns the most recent result or ErrCacheMiss.
func (s *ResultCacheService) Latest(ctx context.Context) (*models.SyncResult, error) {
	return s.get(ctx, s.repo.Latest)
}

func (s *ResultCacheService) get(ctx context.Context, load func(context.Context) (*models.SyncResult, error)) (*models.SyncResult, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "result cache disabled")
	}
	start := time.Now()
	result, err := load(ctx)
	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(err == nil, duration)
	}
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("result cache get failed", zap.Error(err))
	}
	return result, err
}

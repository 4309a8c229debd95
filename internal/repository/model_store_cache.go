package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RateCast/internal/domain/models"
	"RateCast/pkg/cache"
)

// CacheModelStore keeps pipelines in a cache.Service under model:<entity>:<date>.
// Expired pipelines read as not found.
type CacheModelStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheModelStore(c cache.Service, ttl time.Duration) *CacheModelStore {
	return &CacheModelStore{cache: c, ttl: ttl}
}

func modelKey(entityID, date string) string {
	return cache.GenerateKeyWithParams("model", entityID, date)
}

// Save stores p under its entity and training day, expiring after the store TTL.
func (s *CacheModelStore) Save(ctx context.Context, p *models.TrainedPipeline) error {
	if err := s.cache.Set(ctx, modelKey(p.EntityID, p.TrainedOn), p, s.ttl); err != nil {
		return fmt.Errorf("store model %s/%s: %w", p.EntityID, p.TrainedOn, err)
	}
	return nil
}

// Load returns the pipeline trained for entityID on date, or ModelNotFoundError.
func (s *CacheModelStore) Load(ctx context.Context, entityID, date string) (*models.TrainedPipeline, error) {
	var p models.TrainedPipeline
	if err := s.cache.Get(ctx, modelKey(entityID, date), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, &models.ModelNotFoundError{EntityID: entityID, Stage: models.StagePredict, Date: date}
		}
		return nil, fmt.Errorf("load model %s/%s: %w", entityID, date, err)
	}
	return &p, nil
}

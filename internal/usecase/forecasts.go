package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"RateCast/internal/domain/models"
	domrepo "RateCast/internal/domain/repository"
	"RateCast/pkg/cache"
	"RateCast/pkg/logger"
	"RateCast/pkg/util"
)

// ForecastService answers the read side of the API and accepts run triggers.
type ForecastService struct {
	forecasts domrepo.ForecastLog
	mart      domrepo.MartStore
	models    domrepo.ModelStore
	publisher domrepo.RunPublisher
	runner    *PipelineRunner
	cache     cache.Service
	cacheTTL  time.Duration
	l         *logger.Logger
	now       func() time.Time
}

// NewForecastService wires the query side. With a nil publisher, triggers run in-process.
func NewForecastService(
	forecasts domrepo.ForecastLog,
	mart domrepo.MartStore,
	modelStore domrepo.ModelStore,
	publisher domrepo.RunPublisher,
	runner *PipelineRunner,
	c cache.Service,
	cacheTTL time.Duration,
	l *logger.Logger,
) *ForecastService {
	if l == nil {
		l = logger.Nop()
	}
	return &ForecastService{
		forecasts: forecasts,
		mart:      mart,
		models:    modelStore,
		publisher: publisher,
		runner:    runner,
		cache:     c,
		cacheTTL:  cacheTTL,
		l:         l,
		now:       time.Now,
	}
}

func latestKey(entity string) string {
	return cache.GenerateKeyWithParams("forecast", "latest", entity)
}

// Latest returns the newest forecast for an entity, served from cache when possible.
func (s *ForecastService) Latest(ctx context.Context, entity string) (*models.Forecast, error) {
	entity = util.NormalizeEntity(entity)
	if s.cache != nil {
		var f models.Forecast
		if err := s.cache.Get(ctx, latestKey(entity), &f); err == nil {
			return &f, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			s.l.Warn("forecast cache read", logger.String("entity", entity), logger.Error(err))
		}
	}
	f, err := s.forecasts.Latest(ctx, entity)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, latestKey(entity), f, s.cacheTTL); err != nil {
			s.l.Warn("forecast cache write", logger.String("entity", entity), logger.Error(err))
		}
	}
	return f, nil
}

func (s *ForecastService) History(ctx context.Context, entity string, limit int) ([]*models.Forecast, error) {
	return s.forecasts.History(ctx, util.NormalizeEntity(entity), limit)
}

// Features returns the newest limit mart rows in date order.
func (s *ForecastService) Features(ctx context.Context, entity string, limit int) ([]models.LabeledRow, error) {
	return s.mart.Rows(ctx, util.NormalizeEntity(entity), limit)
}

// Model loads the pipeline trained on date, or on the latest forecast's model date when date is empty.
func (s *ForecastService) Model(ctx context.Context, entity, date string) (*models.TrainedPipeline, error) {
	entity = util.NormalizeEntity(entity)
	if date == "" {
		f, err := s.Latest(ctx, entity)
		if err != nil {
			return nil, err
		}
		date = f.ModelDate
	}
	return s.models.Load(ctx, entity, date)
}

// Trigger queues a run on the bus, or starts it in the background when there is no bus.
// The returned request carries the run id to look for in forecasts. Only the in-process path
// can see the run lock, so only it returns ErrRunInProgress; a queued run that finds the lock
// held is skipped by the consumer.
func (s *ForecastService) Trigger(ctx context.Context, entities []string) (*models.RunRequest, error) {
	req := &models.RunRequest{RunID: uuid.NewString(), Entities: entities, Asked: s.now().UTC()}
	if s.publisher != nil {
		if err := s.publisher.PublishRun(ctx, req); err != nil {
			return nil, fmt.Errorf("publish run: %w", err)
		}
		return req, nil
	}
	if s.runner == nil {
		return nil, errors.New("no runner configured")
	}
	if err := s.runner.Start(ctx, req); err != nil {
		return nil, err
	}
	s.l.Info("run started", logger.String("run_id", req.RunID))
	return req, nil
}

// Invalidate drops cached latest forecasts touched by a run. Register it with PipelineRunner.OnFinish.
func (s *ForecastService) Invalidate(report *models.RunReport) {
	if s.cache == nil || report == nil {
		return
	}
	keys := make([]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		keys = append(keys, latestKey(o.EntityID))
	}
	if err := s.cache.Delete(context.Background(), keys...); err != nil {
		s.l.Warn("forecast cache invalidate", logger.Error(err))
	}
}

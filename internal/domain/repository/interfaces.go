package repository

import (
	"context"
	"time"

	"RateCast/internal/domain/models"
)

// PriceSource yields ordered daily observations per entity.
type PriceSource interface {
	Entities(ctx context.Context) ([]string, error)
	History(ctx context.Context, entityID string) ([]models.PriceObservation, error)
}

// QuoteStore persists raw quotes arriving from the crawler.
type QuoteStore interface {
	StoreBatch(ctx context.Context, obs []models.PriceObservation) error
}

// MartStore keeps the labeled feature rows of every entity.
// ReplaceEntity is all-or-nothing: readers see either the previous rows or the new ones.
type MartStore interface {
	ReplaceEntity(ctx context.Context, entityID string, rows []models.LabeledRow) error
	Rows(ctx context.Context, entityID string, limit int) ([]models.LabeledRow, error)
}

// PredictionSink records a forecast on the row it was made for.
type PredictionSink interface {
	UpdatePrediction(ctx context.Context, entityID string, date time.Time, value float64) error
}

// ModelStore persists trained pipelines keyed by entity and training day.
type ModelStore interface {
	Save(ctx context.Context, p *models.TrainedPipeline) error
	Load(ctx context.Context, entityID, date string) (*models.TrainedPipeline, error)
}

// ForecastLog keeps the history of issued forecasts.
type ForecastLog interface {
	Append(ctx context.Context, f *models.Forecast) error
	Latest(ctx context.Context, entityID string) (*models.Forecast, error)
	History(ctx context.Context, entityID string, limit int) ([]*models.Forecast, error)
}

// Notifier delivers artifacts to humans. Callers do not depend on the outcome.
type Notifier interface {
	Notify(ctx context.Context, a models.Artifact) error
}

// RunPublisher hands run requests and forecast events to the message bus.
type RunPublisher interface {
	PublishRun(ctx context.Context, req *models.RunRequest) error
	PublishForecast(ctx context.Context, f *models.Forecast) error
}

// Metrics records per-stage pipeline timings, failures and results.
type Metrics interface {
	RecordStage(stage, entity string, seconds float64)
	RecordError(stage string)
	RecordRows(entity string, rows int)
	RecordScore(entity string, r2 float64)
	RecordForecast(entity string, value float64)
}

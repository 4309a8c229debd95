package service

import (
	"context"

	"RateCast/internal/domain/models"
)

// Reporter turns an entity's history and its fresh forecast into human-facing artifacts
// (a text summary and one chart per look-back period).
type Reporter interface {
	Render(ctx context.Context, history []models.PriceObservation, f *models.Forecast) ([]models.Artifact, error)
}

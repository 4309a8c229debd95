package learning

import (
	"context"
	"math"
	"time"

	"RateCast/internal/domain/models"
	"RateCast/internal/domain/repository"
)

// Predict applies a trained pipeline to one row and rounds to 4 decimals.
// The stored standardizer is applied as-is; nothing is refit.
func Predict(row models.FeatureRow, p *models.TrainedPipeline) (float64, error) {
	if len(row.Values) != p.Width() || len(p.Standardizer.Mean) != p.Width() {
		return 0, &models.SchemaMismatchError{EntityID: row.EntityID, Stage: models.StagePredict, Want: p.Width(), Got: len(row.Values)}
	}
	if len(row.Columns) == len(p.FeatureNames) {
		for i, c := range row.Columns {
			if c != p.FeatureNames[i] {
				return 0, &models.SchemaMismatchError{EntityID: row.EntityID, Stage: models.StagePredict, Column: c}
			}
		}
	}
	if !row.Finite() {
		return 0, &models.InsufficientHistoryError{EntityID: row.EntityID, Stage: models.StagePredict, Have: countFinite(row.Values), Need: len(row.Values)}
	}
	return Round4(Apply(p.Regressor, Standardize(p.Standardizer, row.Values))), nil
}

// Round4 rounds half away from zero at the fourth decimal.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func countFinite(xs []float64) int {
	n := 0
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			n++
		}
	}
	return n
}

// Predictor loads the pipeline trained on a given day and scores a row with it.
type Predictor struct {
	store repository.ModelStore
}

// NewPredictor loads pipelines from store.
func NewPredictor(store repository.ModelStore) *Predictor {
	return &Predictor{store: store}
}

// Forecast returns ModelNotFoundError when nothing was trained for (entity, day).
func (p *Predictor) Forecast(ctx context.Context, row models.FeatureRow, trainedOn time.Time) (float64, *models.TrainedPipeline, error) {
	pipe, err := p.store.Load(ctx, row.EntityID, models.Day(trainedOn).Format(models.DateLayout))
	if err != nil {
		return 0, nil, err
	}
	v, err := Predict(row, pipe)
	if err != nil {
		return 0, nil, err
	}
	return v, pipe, nil
}

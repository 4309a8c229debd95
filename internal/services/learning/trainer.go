package learning

import (
	"fmt"
	"time"

	"RateCast/internal/domain/models"
	"RateCast/internal/services/dataset"
	"RateCast/pkg/logger"
)

// DefaultFolds is the number of walk-forward validation folds.
const DefaultFolds = 5

// Trainer fits the standardizer + OLS pipeline with walk-forward validation.
type Trainer struct {
	folds int
	l     *logger.Logger
}

// TrainerOption configures Trainer.
type TrainerOption func(*Trainer)

// WithFolds sets the number of validation folds.
func WithFolds(k int) TrainerOption {
	return func(t *Trainer) {
		if k >= 2 {
			t.folds = k
		}
	}
}

// WithTrainerLogger enables per-fold diagnostics.
func WithTrainerLogger(l *logger.Logger) TrainerOption {
	return func(t *Trainer) { t.l = l }
}

// NewTrainer returns a walk-forward trainer with DefaultFolds folds unless overridden.
func NewTrainer(opts ...TrainerOption) *Trainer {
	t := &Trainer{folds: DefaultFolds}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits one pipeline per fold from scratch and keeps the final fold's.
// Every fold's training partition must have at least as many rows as features.
func (t *Trainer) Train(entityID string, rows []models.LabeledRow, trainedOn time.Time) (*models.TrainedPipeline, error) {
	usable := models.Trainable(rows)
	width := 0
	if len(rows) > 0 {
		width = len(rows[0].Values)
	}
	if len(usable) == 0 || width == 0 {
		return nil, &models.InsufficientDataError{EntityID: entityID, Stage: models.StageTrain, Rows: len(usable), Features: width}
	}

	folds, err := dataset.Split(len(usable), t.folds)
	if err != nil {
		return nil, &models.InsufficientDataError{EntityID: entityID, Stage: models.StageTrain, Rows: len(usable), Features: width}
	}
	x, y := dataset.Matrix(usable)

	var (
		std    models.Standardizer
		reg    models.Regressor
		scores = make([]models.FoldScore, 0, len(folds))
	)
	for _, f := range folds {
		if f.TrainLen() < width {
			return nil, &models.InsufficientDataError{EntityID: entityID, Stage: models.StageTrain, Rows: f.TrainLen(), Features: width}
		}

		std = FitStandardizer(x[:f.TrainEnd])
		reg, err = FitOLS(StandardizeAll(std, x[:f.TrainEnd]), y[:f.TrainEnd])
		if err != nil {
			return nil, fmt.Errorf("%s: fold %d: %w", entityID, f.Index, err)
		}

		valid := StandardizeAll(std, x[f.ValidStart:f.ValidEnd])
		est := make([]float64, len(valid))
		for i, row := range valid {
			est[i] = Apply(reg, row)
		}
		score := models.FoldScore{
			Fold:       f.Index,
			TrainRows:  f.TrainLen(),
			ValidRows:  f.ValidLen(),
			TrainEnd:   usable[f.TrainEnd-1].Date,
			ValidStart: usable[f.ValidStart].Date,
			ValidEnd:   usable[f.ValidEnd-1].Date,
			R2:         R2(est, y[f.ValidStart:f.ValidEnd]),
		}
		scores = append(scores, score)

		if t.l != nil {
			t.l.Debug("fold scored",
				logger.String("entity", entityID),
				logger.Int("fold", f.Index),
				logger.Int("train_rows", score.TrainRows),
				logger.String("valid_from", score.ValidStart.Format(models.DateLayout)),
				logger.String("valid_to", score.ValidEnd.Format(models.DateLayout)),
				logger.Float64("r2", score.R2),
			)
		}
	}

	last := folds[len(folds)-1]
	return &models.TrainedPipeline{
		EntityID:     entityID,
		TrainedOn:    models.Day(trainedOn).Format(models.DateLayout),
		FeatureNames: append([]string(nil), usable[0].Columns...),
		Standardizer: std,
		Regressor:    reg,
		Score:        scores[len(scores)-1].R2,
		Folds:        scores,
		TrainRows:    last.TrainLen(),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

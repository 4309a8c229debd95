package models

import "time"

// Standardizer holds per-column centering and scaling learned on a training partition.
type Standardizer struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Regressor holds ordinary least-squares coefficients.
type Regressor struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// FoldScore is the validation result of one walk-forward fold.
type FoldScore struct {
	Fold       int       `json:"fold"`
	TrainRows  int       `json:"train_rows"`
	ValidRows  int       `json:"valid_rows"`
	TrainEnd   time.Time `json:"train_end"`
	ValidStart time.Time `json:"valid_start"`
	ValidEnd   time.Time `json:"valid_end"`
	R2         float64   `json:"r2"`
}

// TrainedPipeline is the fitted standardizer + regressor of the final fold.
// A newer pipeline for the same entity supersedes it; they are never merged.
type TrainedPipeline struct {
	EntityID     string       `json:"entity_id"`
	TrainedOn    string       `json:"trained_on"` // DateLayout
	FeatureNames []string     `json:"feature_names"`
	Standardizer Standardizer `json:"standardizer"`
	Regressor    Regressor    `json:"regressor"`
	Score        float64      `json:"score"`
	Folds        []FoldScore  `json:"folds"`
	TrainRows    int          `json:"train_rows"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Width is the number of input columns the pipeline expects.
func (p *TrainedPipeline) Width() int {
	return len(p.Regressor.Coef)
}

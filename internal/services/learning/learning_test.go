package learning

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"RateCast/internal/domain/models"
	"RateCast/internal/services/dataset"
	"RateCast/internal/services/features"

	"github.com/shopspring/decimal"
)

var day0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// linearRows builds n rows with y = 2*a - 3*b + 0.5*c + 5.
func linearRows(n int) []models.LabeledRow {
	cols := []string{"a", "b", "c"}
	out := make([]models.LabeledRow, n)
	for i := range out {
		a := float64(i)
		b := math.Sin(float64(i))
		c := float64((i * 7) % 11)
		y := 2*a - 3*b + 0.5*c + 5
		out[i] = models.LabeledRow{
			FeatureRow: models.FeatureRow{EntityID: "e", Date: day0.AddDate(0, 0, i), Columns: cols, Values: []float64{a, b, c}},
			Target:     &y,
		}
	}
	return out
}

func TestFitStandardizer(t *testing.T) {
	s := FitStandardizer([][]float64{{1, 7}, {3, 7}, {5, 7}})
	if s.Mean[0] != 3 || s.Mean[1] != 7 {
		t.Fatalf("means %v", s.Mean)
	}
	if math.Abs(s.Scale[0]-math.Sqrt(8.0/3)) > 1e-12 {
		t.Fatalf("population scale %v", s.Scale[0])
	}
	if s.Scale[1] != 1 {
		t.Fatalf("constant column scale %v, want 1", s.Scale[1])
	}
	z := Standardize(s, []float64{3, 7})
	if z[0] != 0 || z[1] != 0 {
		t.Fatalf("standardized %v", z)
	}
}

func TestFitOLSRecoversCoefficients(t *testing.T) {
	x, y := dataset.Matrix(linearRows(40))
	reg, err := FitOLS(x, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	want := []float64{2, -3, 0.5}
	for j := range want {
		if math.Abs(reg.Coef[j]-want[j]) > 1e-8 {
			t.Fatalf("coef[%d] = %v, want %v", j, reg.Coef[j], want[j])
		}
	}
	if math.Abs(reg.Intercept-5) > 1e-8 {
		t.Fatalf("intercept %v", reg.Intercept)
	}
}

func TestFitOLSRankDeficientMinimumNorm(t *testing.T) {
	x := [][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}}
	y := []float64{4, 8, 12, 16}
	reg, err := FitOLS(x, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if math.Abs(reg.Coef[0]-2) > 1e-8 || math.Abs(reg.Coef[1]-2) > 1e-8 {
		t.Fatalf("expected split coefficients, got %v", reg.Coef)
	}
	if math.Abs(Apply(reg, []float64{5, 5})-20) > 1e-8 {
		t.Fatalf("unexpected prediction")
	}
}

func TestR2ConstantTarget(t *testing.T) {
	if R2([]float64{1, 1}, []float64{1, 1}) != 1 {
		t.Fatalf("exact constant match should score 1")
	}
	if R2([]float64{1, 2}, []float64{1, 1}) != 0 {
		t.Fatalf("constant mismatch should score 0")
	}
}

func TestTrainWalkForward(t *testing.T) {
	rows := linearRows(60)
	tr := NewTrainer(WithFolds(5))
	p, err := tr.Train("e", rows, day0.AddDate(0, 0, 60))
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(p.Folds) != 5 {
		t.Fatalf("folds %d", len(p.Folds))
	}
	for i, f := range p.Folds {
		if f.R2 < 0.999 {
			t.Fatalf("fold %d r2 %v", i, f.R2)
		}
		if !f.TrainEnd.Before(f.ValidStart) {
			t.Fatalf("fold %d trains on validation dates", i)
		}
		if i > 0 && f.TrainRows <= p.Folds[i-1].TrainRows {
			t.Fatalf("fold %d train partition did not grow", i)
		}
	}
	// 60 rows, size 10: final fold trains on the first 50
	if p.TrainRows != 50 || p.Score != p.Folds[4].R2 {
		t.Fatalf("final fold not kept: rows %d score %v", p.TrainRows, p.Score)
	}
	if p.TrainedOn != "2024-06-30" || p.Width() != 3 {
		t.Fatalf("unexpected pipeline %+v", p)
	}
}

func TestTrainInsufficientData(t *testing.T) {
	rows := linearRows(12) // fold size 2, first train partition 2 rows < 3 features
	_, err := NewTrainer().Train("e", rows, day0)
	var ide *models.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if ide.Stage != models.StageTrain || ide.Features != 3 {
		t.Fatalf("unexpected error %+v", ide)
	}

	if _, err := NewTrainer().Train("e", nil, day0); !errors.As(err, &ide) {
		t.Fatalf("empty rows: expected InsufficientDataError, got %v", err)
	}
}

func rising(n int) []models.PriceObservation {
	out := make([]models.PriceObservation, n)
	for i := range out {
		out[i] = models.PriceObservation{
			EntityID:  "nbrb",
			Date:      day0.AddDate(0, 0, i),
			SellPrice: decimal.RequireFromString("2.50").Add(decimal.New(int64(i), -2)),
			Spread:    decimal.RequireFromString("0.05"),
		}
	}
	return out
}

func TestTrainShortSeriesEndToEnd(t *testing.T) {
	schema, _ := features.NewSchema(features.DefaultWidths, features.DefaultSeries)
	b := features.NewBuilder(schema, features.DefaultDecay)

	for _, n := range []int{99, 120} {
		rows, err := b.Build(rising(n), features.ModeLive)
		if err != nil {
			t.Fatalf("build %d: %v", n, err)
		}
		labeled := dataset.Assign(rows, 0)
		_, err = NewTrainer().Train("nbrb", labeled, day0)
		var ide *models.InsufficientDataError
		if !errors.As(err, &ide) {
			t.Fatalf("n=%d: expected InsufficientDataError, got %v", n, err)
		}
	}
}

type memStore map[string]*models.TrainedPipeline

func (m memStore) Save(_ context.Context, p *models.TrainedPipeline) error {
	m[p.EntityID+"/"+p.TrainedOn] = p
	return nil
}

func (m memStore) Load(_ context.Context, entityID, date string) (*models.TrainedPipeline, error) {
	p, ok := m[entityID+"/"+date]
	if !ok {
		return nil, &models.ModelNotFoundError{EntityID: entityID, Stage: models.StagePredict, Date: date}
	}
	return p, nil
}

func TestPredict(t *testing.T) {
	rows := linearRows(60)
	p, err := NewTrainer().Train("e", rows, day0)
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	row := rows[59].FeatureRow
	got, err := Predict(row, p)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.Abs(got-*rows[59].Target) > 1e-3 {
		t.Fatalf("prediction %v, want %v", got, *rows[59].Target)
	}
	if got != Round4(got) {
		t.Fatalf("prediction not rounded: %v", got)
	}

	narrow := row
	narrow.Values = row.Values[:2]
	narrow.Columns = row.Columns[:2]
	var sme *models.SchemaMismatchError
	if _, err := Predict(narrow, p); !errors.As(err, &sme) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}

	renamed := row
	renamed.Columns = []string{"a", "b", "z"}
	if _, err := Predict(renamed, p); !errors.As(err, &sme) {
		t.Fatalf("expected SchemaMismatchError for renamed column, got %v", err)
	}

	short := row
	short.Values = []float64{1, math.NaN(), 3}
	var ihe *models.InsufficientHistoryError
	if _, err := Predict(short, p); !errors.As(err, &ihe) {
		t.Fatalf("expected InsufficientHistoryError, got %v", err)
	}
}

func TestPredictorLoadsByDay(t *testing.T) {
	store := memStore{}
	p, err := NewTrainer().Train("e", linearRows(60), day0)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	_ = store.Save(context.Background(), p)
	pr := NewPredictor(store)

	row := linearRows(61)[60].FeatureRow
	if _, _, err := pr.Forecast(context.Background(), row, day0.Add(13*time.Hour)); err != nil {
		t.Fatalf("forecast: %v", err)
	}
	var mnf *models.ModelNotFoundError
	if _, _, err := pr.Forecast(context.Background(), row, day0.AddDate(0, 0, 1)); !errors.As(err, &mnf) {
		t.Fatalf("expected ModelNotFoundError, got %v", err)
	}
}

func TestRound4(t *testing.T) {
	cases := map[float64]float64{2.71234: 2.7123, 2.71236: 2.7124, -1.00004: -1}
	for in, want := range cases {
		if got := Round4(in); math.Abs(got-want) > 1e-12 {
			t.Fatalf("Round4(%v) = %v, want %v", in, got, want)
		}
	}
}

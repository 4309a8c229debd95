package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"RateCast/internal/domain/models"
	"RateCast/internal/repository"
	"RateCast/internal/services/features"
	"RateCast/internal/services/learning"
	"RateCast/pkg/cache"
)

var runDay = time.Date(2024, 9, 2, 9, 30, 0, 0, time.UTC)

func sawtooth(entity string, n int) []models.PriceObservation {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceObservation, n)
	for i := range out {
		p := 2.5 + 0.01*float64(i%17) + 0.001*float64(i)
		out[i] = models.PriceObservation{
			EntityID:  entity,
			Date:      start.AddDate(0, 0, i),
			SellPrice: decimal.NewFromFloat(p).Round(4),
			Spread:    decimal.RequireFromString("0.04"),
		}
	}
	return out
}

type fakeSource struct {
	series map[string][]models.PriceObservation
}

func (s *fakeSource) Entities(context.Context) ([]string, error) {
	out := make([]string, 0, len(s.series))
	for e := range s.series {
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeSource) History(_ context.Context, entity string) ([]models.PriceObservation, error) {
	return s.series[entity], nil
}

type fakeMart struct {
	mu    sync.Mutex
	rows  map[string][]models.LabeledRow
	preds map[string]float64
}

func newFakeMart() *fakeMart {
	return &fakeMart{rows: map[string][]models.LabeledRow{}, preds: map[string]float64{}}
}

func (m *fakeMart) ReplaceEntity(_ context.Context, entity string, rows []models.LabeledRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[entity] = rows
	return nil
}

func (m *fakeMart) Rows(_ context.Context, entity string, limit int) ([]models.LabeledRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.rows[entity]
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

func (m *fakeMart) UpdatePrediction(_ context.Context, entity string, date time.Time, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preds[entity+"/"+date.Format(models.DateLayout)] = v
	return nil
}

type fakeLog struct {
	mu  sync.Mutex
	all []*models.Forecast
}

func (l *fakeLog) Append(_ context.Context, f *models.Forecast) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, f)
	return nil
}

func (l *fakeLog) Latest(_ context.Context, entity string) (*models.Forecast, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.all) - 1; i >= 0; i-- {
		if l.all[i].EntityID == entity {
			return l.all[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", entity, repository.ErrNoForecast)
}

func (l *fakeLog) History(_ context.Context, entity string, limit int) ([]*models.Forecast, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Forecast
	for i := len(l.all) - 1; i >= 0 && len(out) < limit; i-- {
		if l.all[i].EntityID == entity {
			out = append(out, l.all[i])
		}
	}
	return out, nil
}

type fakeReporter struct{}

func (fakeReporter) Render(_ context.Context, _ []models.PriceObservation, f *models.Forecast) ([]models.Artifact, error) {
	return []models.Artifact{{Caption: f.EntityID}}, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Artifact
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, a models.Artifact) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
	return n.err
}

type fakeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
	rows   map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: map[string]int{}, rows: map[string]int{}}
}

func (m *fakeMetrics) RecordStage(string, string, float64) {}
func (m *fakeMetrics) RecordScore(string, float64)         {}
func (m *fakeMetrics) RecordForecast(string, float64)      {}

func (m *fakeMetrics) RecordError(stage string) {
	m.mu.Lock()
	m.errors[stage]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordRows(entity string, rows int) {
	m.mu.Lock()
	m.rows[entity] = rows
	m.mu.Unlock()
}

type runnerFixture struct {
	runner   *PipelineRunner
	mart     *fakeMart
	log      *fakeLog
	notifier *fakeNotifier
	metrics  *fakeMetrics
	models   *repository.CacheModelStore
	locker   *cache.MemoryCache
}

func newRunnerFixture(t *testing.T, series map[string][]models.PriceObservation) *runnerFixture {
	t.Helper()
	schema, err := features.NewSchema([]int{5, 7}, features.DefaultSeries)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	fx := &runnerFixture{
		mart:     newFakeMart(),
		log:      &fakeLog{},
		notifier: &fakeNotifier{},
		metrics:  newFakeMetrics(),
		models:   repository.NewCacheModelStore(cache.NewMemoryCache(), time.Hour),
		locker:   cache.NewMemoryCache(),
	}
	deps := PipelineDeps{
		Source:      &fakeSource{series: series},
		Mart:        fx.mart,
		Predictions: fx.mart,
		Models:      fx.models,
		Forecasts:   fx.log,
		Notifier:    fx.notifier,
		Reporter:    fakeReporter{},
		Locker:      fx.locker,
		Metrics:     fx.metrics,
	}
	fx.runner = NewPipelineRunner(deps, features.NewBuilder(schema, features.DefaultDecay), learning.NewTrainer(), nil, nil)
	fx.runner.now = func() time.Time { return runDay }
	return fx
}

func TestPipelineRunnerForecastsAndIsolatesFailures(t *testing.T) {
	fx := newRunnerFixture(t, map[string][]models.PriceObservation{
		"nbrb":  sawtooth("nbrb", 200),
		"short": sawtooth("short", 40),
	})

	report, err := fx.runner.Run(context.Background(), &models.RunRequest{Entities: []string{"NBRB", "short", "empty"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Outcomes) != 3 || report.Failed() != 2 {
		t.Fatalf("unexpected report %+v", report)
	}

	ok := report.Outcomes[0]
	if ok.EntityID != "nbrb" || ok.Err != "" || ok.Forecast == nil {
		t.Fatalf("nbrb outcome %+v", ok)
	}
	f := ok.Forecast
	if math.IsNaN(f.Value) || f.ModelDate != "2024-09-02" || f.LastPrice <= 0 {
		t.Fatalf("unexpected forecast %+v", f)
	}
	if f.Value != learning.Round4(f.Value) {
		t.Fatalf("forecast not rounded: %v", f.Value)
	}
	lastDay := sawtooth("nbrb", 200)[199].Date
	if !f.Date.Equal(lastDay) || !f.TargetDate.Equal(lastDay.AddDate(0, 0, 1)) {
		t.Fatalf("forecast dates %v -> %v", f.Date, f.TargetDate)
	}
	if got := fx.mart.preds["nbrb/"+lastDay.Format(models.DateLayout)]; got != f.Value {
		t.Fatalf("prediction on mart row %v, want %v", got, f.Value)
	}
	if _, err := fx.models.Load(context.Background(), "nbrb", "2024-09-02"); err != nil {
		t.Fatalf("model not saved: %v", err)
	}
	if len(fx.log.all) != 1 || len(fx.notifier.sent) != 1 {
		t.Fatalf("log %d, notifications %d", len(fx.log.all), len(fx.notifier.sent))
	}
	if fx.metrics.rows["nbrb"] != len(fx.mart.rows["nbrb"]) {
		t.Fatalf("rows metric %d", fx.metrics.rows["nbrb"])
	}

	short := report.Outcomes[1]
	if short.Stage != models.StageTrain || short.Forecast != nil {
		t.Fatalf("short outcome %+v", short)
	}
	empty := report.Outcomes[2]
	if empty.Stage != models.StageLoad {
		t.Fatalf("empty outcome %+v", empty)
	}
	if fx.metrics.errors[models.StageTrain] != 1 || fx.metrics.errors[models.StageLoad] != 1 {
		t.Fatalf("error metrics %v", fx.metrics.errors)
	}
}

func TestPipelineRunnerNotifyFailureKeepsForecast(t *testing.T) {
	fx := newRunnerFixture(t, map[string][]models.PriceObservation{"nbrb": sawtooth("nbrb", 200)})
	fx.notifier.err = errors.New("telegram down")

	report, err := fx.runner.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.RunID == "" || report.Failed() != 0 || report.Outcomes[0].Forecast == nil {
		t.Fatalf("unexpected report %+v", report)
	}
	if fx.metrics.errors[models.StageNotify] != 1 {
		t.Fatalf("notify errors %v", fx.metrics.errors)
	}
}

func TestPipelineRunnerHonoursRunLock(t *testing.T) {
	fx := newRunnerFixture(t, map[string][]models.PriceObservation{"nbrb": sawtooth("nbrb", 200)})
	ok, _ := fx.locker.TryLock(context.Background(), runLockKey, time.Minute)
	if !ok {
		t.Fatalf("pre-lock failed")
	}
	if _, err := fx.runner.Run(context.Background(), nil); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	_ = fx.locker.Unlock(context.Background(), runLockKey)
	if _, err := fx.runner.Run(context.Background(), nil); err != nil {
		t.Fatalf("run after unlock: %v", err)
	}
}

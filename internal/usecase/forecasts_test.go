package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"RateCast/internal/domain/models"
	"RateCast/internal/repository"
	"RateCast/pkg/cache"
)

type capturePublisher struct {
	runs []*models.RunRequest
}

func (p *capturePublisher) PublishRun(_ context.Context, req *models.RunRequest) error {
	p.runs = append(p.runs, req)
	return nil
}

func (p *capturePublisher) PublishForecast(context.Context, *models.Forecast) error { return nil }

func TestForecastServiceLatestIsCached(t *testing.T) {
	log := &fakeLog{}
	_ = log.Append(context.Background(), &models.Forecast{EntityID: "nbrb", Value: 3.1, ModelDate: "2024-09-02"})
	c := cache.NewMemoryCache()
	svc := NewForecastService(log, newFakeMart(), nil, nil, nil, c, time.Minute, nil)

	f, err := svc.Latest(context.Background(), "NBRB")
	if err != nil || f.Value != 3.1 {
		t.Fatalf("latest: %+v %v", f, err)
	}
	_ = log.Append(context.Background(), &models.Forecast{EntityID: "nbrb", Value: 3.2})
	if f, _ := svc.Latest(context.Background(), "nbrb"); f.Value != 3.1 {
		t.Fatalf("expected cached value, got %v", f.Value)
	}
	svc.Invalidate(&models.RunReport{Outcomes: []models.EntityOutcome{{EntityID: "nbrb"}}})
	if f, _ := svc.Latest(context.Background(), "nbrb"); f.Value != 3.2 {
		t.Fatalf("expected fresh value after invalidate, got %v", f.Value)
	}

	if _, err := svc.Latest(context.Background(), "unknown"); !errors.Is(err, repository.ErrNoForecast) {
		t.Fatalf("expected ErrNoForecast, got %v", err)
	}
}

func TestForecastServiceModelDefaultsToLatest(t *testing.T) {
	fx := newRunnerFixture(t, map[string][]models.PriceObservation{"nbrb": sawtooth("nbrb", 200)})
	if _, err := fx.runner.Run(context.Background(), nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	svc := NewForecastService(fx.log, fx.mart, fx.models, nil, fx.runner, nil, 0, nil)

	p, err := svc.Model(context.Background(), "nbrb", "")
	if err != nil || p.TrainedOn != "2024-09-02" {
		t.Fatalf("model: %+v %v", p, err)
	}
	_, err = svc.Model(context.Background(), "nbrb", "2024-09-01")
	var nf *models.ModelNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected ModelNotFoundError, got %v", err)
	}
	rows, err := svc.Features(context.Background(), "nbrb", 5)
	if err != nil || len(rows) != 5 {
		t.Fatalf("features: %d %v", len(rows), err)
	}
}

func TestForecastServiceTriggerPublishes(t *testing.T) {
	pub := &capturePublisher{}
	svc := NewForecastService(&fakeLog{}, newFakeMart(), nil, pub, nil, nil, 0, nil)
	req, err := svc.Trigger(context.Background(), []string{"nbrb"})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(pub.runs) != 1 || pub.runs[0].RunID != req.RunID || req.RunID == "" {
		t.Fatalf("published %+v", pub.runs)
	}
}

func TestForecastServiceTriggerRejectsHeldLock(t *testing.T) {
	ctx := context.Background()
	fx := newRunnerFixture(t, map[string][]models.PriceObservation{"nbrb": sawtooth("nbrb", 200)})
	svc := NewForecastService(fx.log, fx.mart, fx.models, nil, fx.runner, nil, 0, nil)

	if ok, _ := fx.locker.TryLock(ctx, runLockKey, time.Minute); !ok {
		t.Fatalf("pre-lock failed")
	}
	if req, err := svc.Trigger(ctx, nil); !errors.Is(err, ErrRunInProgress) || req != nil {
		t.Fatalf("expected ErrRunInProgress, got %+v %v", req, err)
	}
	_ = fx.locker.Unlock(ctx, runLockKey)

	req, err := svc.Trigger(ctx, []string{"nbrb"})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := fx.runner.Wait(waitCtx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	f, err := fx.log.Latest(ctx, "nbrb")
	if err != nil || f.RunID != req.RunID {
		t.Fatalf("forecast %+v %v, want run %s", f, err, req.RunID)
	}
	if ok, _ := fx.locker.TryLock(ctx, runLockKey, time.Minute); !ok {
		t.Fatalf("lock not released after background run")
	}
}

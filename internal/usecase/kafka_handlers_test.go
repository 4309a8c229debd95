package usecase

import (
	"context"
	"testing"
	"time"

	"RateCast/internal/domain/models"
)

type captureQuotes struct {
	got []models.PriceObservation
}

func (c *captureQuotes) StoreBatch(_ context.Context, obs []models.PriceObservation) error {
	c.got = append(c.got, obs...)
	return nil
}

func TestKafkaQuotesHandlerSingleAndBatch(t *testing.T) {
	store := &captureQuotes{}
	h := NewKafkaQuotesHandler("ratecast.quotes", store)

	if err := h.Handle(context.Background(), []byte(`{"bank":"Альфа Банк","date":"2024-03-01","sell":"3.2650","buy":"3.2400"}`)); err != nil {
		t.Fatalf("single: %v", err)
	}
	batch := `[{"bank":"NBRB","date":"2024-03-01","sell":"3.27","buy":"3.30"},{"bank":"NBRB","date":"2024-03-02","sell":"3.28","buy":"3.31"}]`
	if err := h.Handle(context.Background(), []byte(batch)); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(store.got) != 3 {
		t.Fatalf("stored %d", len(store.got))
	}
	first := store.got[0]
	if first.EntityID != "alfa_bank" || first.SellPrice.String() != "3.265" || first.Spread.String() != "0.025" {
		t.Fatalf("unexpected observation %+v", first)
	}
	if store.got[2].EntityID != "nbrb" || store.got[2].Date.Format(models.DateLayout) != "2024-03-02" {
		t.Fatalf("unexpected batch observation %+v", store.got[2])
	}
}

func TestKafkaQuotesHandlerRejects(t *testing.T) {
	h := NewKafkaQuotesHandler("q", &captureQuotes{})
	cases := map[string]string{
		"garbage":  `{"bank":`,
		"no bank":  `{"date":"2024-03-01","sell":"3.2","buy":"3.3"}`,
		"bad date": `{"bank":"nbrb","date":"01.03.2024","sell":"3.2","buy":"3.3"}`,
		"zero":     `{"bank":"nbrb","date":"2024-03-01","sell":"0","buy":"3.3"}`,
	}
	for name, msg := range cases {
		if err := h.Handle(context.Background(), []byte(msg)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestKafkaRunsHandler(t *testing.T) {
	fx := newRunnerFixture(t, map[string][]models.PriceObservation{"nbrb": sawtooth("nbrb", 200)})
	var finished []string
	fx.runner.OnFinish(func(r *models.RunReport) { finished = append(finished, r.RunID) })
	h := NewKafkaRunsHandler("ratecast.runs", fx.runner, nil)
	if err := h.Handle(context.Background(), []byte(`{"run_id":"r-1","entities":["nbrb"]}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fx.log.all) != 1 || fx.log.all[0].RunID != "r-1" {
		t.Fatalf("expected forecast for run r-1, got %+v", fx.log.all)
	}
	if len(finished) != 1 || finished[0] != "r-1" {
		t.Fatalf("listener not called: %v", finished)
	}
	if err := h.Handle(context.Background(), []byte(`nope`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSchedulerRunsAtNextSlot(t *testing.T) {
	fx := newRunnerFixture(t, map[string][]models.PriceObservation{"nbrb": sawtooth("nbrb", 200)})
	s := NewScheduler(fx.runner, "09:30", nil)
	s.now = func() time.Time { return runDay.Add(-time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var waits []time.Duration
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		if len(waits) > 1 {
			cancel()
			return nil
		}
		ch := make(chan time.Time, 1)
		ch <- runDay
		return ch
	}

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(fx.log.all) != 1 {
		t.Fatalf("expected one scheduled forecast, got %d", len(fx.log.all))
	}
	if len(waits) != 2 {
		t.Fatalf("waits %v", waits)
	}
}

package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorAggregatesRepeats(t *testing.T) {
	pub := &capturePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Error("mart commit failed", String("entity", "nbrb"), Error(errors.New("boom")))
	}
	l.Error("other failure")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.batches) != 1 || pub.topic != "logs" {
		t.Fatalf("expected one batch on logs, got %d on %q", len(pub.batches), pub.topic)
	}
	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] += e.Count
	}
	if counts["mart commit failed"] != 3 || counts["other failure"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestFieldValues(t *testing.T) {
	if Float64("r2", 0.5).value() != 0.5 {
		t.Fatalf("float field")
	}
	if Duration("took", 1500*time.Millisecond).value() != int64(1500) {
		t.Fatalf("duration field in ms")
	}
	if Error(nil).value() != nil {
		t.Fatalf("nil error field")
	}
}

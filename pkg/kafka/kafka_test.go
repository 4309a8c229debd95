package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v out of range", attempt, d)
		}
	}
	if d := backoffWithJitter(min, max, 1); d < min/2 || d > min {
		t.Fatalf("first attempt backoff %v", d)
	}
}

func TestPayload(t *testing.T) {
	b, err := payload(map[string]int{"a": 1})
	if err != nil || string(b) != `{"a":1}` {
		t.Fatalf("json payload: %s %v", b, err)
	}
	if b, _ := payload("raw"); string(b) != "raw" {
		t.Fatalf("string payload: %s", b)
	}
}

func TestParseCompression(t *testing.T) {
	if parseCompression("zstd") != kafkago.Zstd || parseCompression("unknown") != kafkago.Gzip {
		t.Fatalf("unexpected compression mapping")
	}
}

type flakyHandler struct {
	fails int
	calls int
}

func (h *flakyHandler) Topic() string { return "t" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.fails {
		return errors.New("transient")
	}
	return nil
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "p" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }

func TestHandleWithRetry(t *testing.T) {
	c, err := NewConsumer(nil, WithConsumerBrokers([]string{"localhost:9092"}), WithRetry(2, time.Millisecond, 2*time.Millisecond))
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	h := &flakyHandler{fails: 2}
	if err := c.handleWithRetry(context.Background(), h, kafkago.Message{Topic: "t"}); err != nil {
		t.Fatalf("expected success on third call, got %v", err)
	}
	h = &flakyHandler{fails: 5}
	if err := c.handleWithRetry(context.Background(), h, kafkago.Message{Topic: "t"}); err == nil || h.calls != 3 {
		t.Fatalf("expected failure after 3 calls, got %v after %d", err, h.calls)
	}
	if err := c.handleWithRetry(context.Background(), panicHandler{}, kafkago.Message{Topic: "p"}); err == nil {
		t.Fatalf("expected panic to surface as error")
	}
}

func TestConstructorsRequireBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected producer error without brokers")
	}
	if _, err := NewConsumer(nil); err == nil {
		t.Fatalf("expected consumer error without brokers")
	}
}

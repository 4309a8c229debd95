package notify

import (
	"context"
	"time"

	"RateCast/internal/domain/models"
)

// Publisher is the slice of the Kafka producer the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type reportEvent struct {
	Destination string    `json:"destination,omitempty"`
	Caption     string    `json:"caption"`
	Filename    string    `json:"filename,omitempty"`
	Image       []byte    `json:"image,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// Kafka forwards artifacts to a reports topic for downstream delivery.
type Kafka struct {
	p     Publisher
	topic string
	now   func() time.Time
}

func NewKafka(p Publisher, topic string) *Kafka {
	return &Kafka{p: p, topic: topic, now: time.Now}
}

func (k *Kafka) Notify(ctx context.Context, a models.Artifact) error {
	var key []byte
	if a.Filename != "" {
		key = []byte(a.Filename)
	}
	return k.p.Publish(ctx, k.topic, key, reportEvent{
		Destination: a.Destination,
		Caption:     a.Caption,
		Filename:    a.Filename,
		Image:       a.Image,
		SentAt:      k.now().UTC(),
	})
}

package repository

import (
	"context"

	"RateCast/internal/domain/models"
	domrepo "RateCast/internal/domain/repository"
	pkgkafka "RateCast/pkg/kafka"
)

// KafkaPublisher puts run requests and issued forecasts on their topics.
// Forecasts are keyed by entity so one entity's events stay ordered.
type KafkaPublisher struct {
	producer      *pkgkafka.Producer
	runTopic      string
	forecastTopic string
}

func NewKafkaPublisher(p *pkgkafka.Producer, runTopic, forecastTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, runTopic: runTopic, forecastTopic: forecastTopic}
}

func (k *KafkaPublisher) PublishRun(ctx context.Context, req *models.RunRequest) error {
	return k.producer.Publish(ctx, k.runTopic, []byte(req.RunID), req)
}

func (k *KafkaPublisher) PublishForecast(ctx context.Context, f *models.Forecast) error {
	return k.producer.Publish(ctx, k.forecastTopic, []byte(f.EntityID), f)
}

var _ domrepo.RunPublisher = (*KafkaPublisher)(nil)

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"RateCast/internal/domain/models"
	pkgkafka "RateCast/pkg/kafka"
	"RateCast/pkg/logger"
)

// KafkaRunsHandler executes run requests published by the API.
type KafkaRunsHandler struct {
	topic  string
	runner *PipelineRunner
	l      *logger.Logger
}

func NewKafkaRunsHandler(topic string, runner *PipelineRunner, l *logger.Logger) *KafkaRunsHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &KafkaRunsHandler{topic: topic, runner: runner, l: l}
}

func (h *KafkaRunsHandler) Topic() string { return h.topic }

// Handle returns an error only for undecodable requests. Entity failures live in the run report,
// and a run that lost the lock race is dropped.
func (h *KafkaRunsHandler) Handle(ctx context.Context, b []byte) error {
	var req models.RunRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return fmt.Errorf("decode run request: %w", err)
	}
	report, err := h.runner.Run(ctx, &req)
	if errors.Is(err, ErrRunInProgress) {
		h.l.Warn("run request skipped", logger.String("run_id", req.RunID), logger.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	h.l.Info("run request done",
		logger.String("run_id", report.RunID),
		logger.Int("entities", len(report.Outcomes)),
		logger.Int("failed", report.Failed()))
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaRunsHandler)(nil)

package usecase

import (
	"context"
	"time"

	"RateCast/internal/domain/models"
	"RateCast/pkg/logger"
	"RateCast/pkg/util"
)

// Scheduler runs the pipeline once a day at a fixed wall-clock time.
type Scheduler struct {
	runner *PipelineRunner
	at     string
	l      *logger.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

func NewScheduler(runner *PipelineRunner, at string, l *logger.Logger) *Scheduler {
	if l == nil {
		l = logger.Nop()
	}
	return &Scheduler{runner: runner, at: at, l: l, now: time.Now, after: time.After}
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	for {
		next, err := util.NextRunAt(s.now(), s.at)
		if err != nil {
			return err
		}
		s.l.Info("next scheduled run", logger.String("at", next.Format(time.RFC3339)))

		select {
		case <-ctx.Done():
			return nil
		case <-s.after(next.Sub(s.now())):
		}

		report, err := s.runner.Run(ctx, &models.RunRequest{Asked: s.now().UTC()})
		if err != nil {
			s.l.Error("scheduled run", logger.Error(err))
			continue
		}
		s.l.Info("scheduled run done",
			logger.String("run_id", report.RunID),
			logger.Int("failed", report.Failed()))
	}
}

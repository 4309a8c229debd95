package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"RateCast/internal/domain/models"
	"RateCast/internal/handler/ws"
	"RateCast/internal/usecase"
	"RateCast/pkg/config"
	xhttp "RateCast/pkg/http"
	pkgkafka "RateCast/pkg/kafka"
	applogger "RateCast/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	runner     *usecase.PipelineRunner
	httpServer *xhttp.Server
	hub        *ws.Hub
	consumer   *pkgkafka.Consumer
	scheduler  *usecase.Scheduler
}

// New creates a new App. consumer and scheduler may be nil.
// Infrastructure clients are released by the cleanup func returned alongside the App.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	runner *usecase.PipelineRunner,
	httpServer *xhttp.Server,
	hub *ws.Hub,
	consumer *pkgkafka.Consumer,
	scheduler *usecase.Scheduler,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		runner:     runner,
		httpServer: httpServer,
		hub:        hub,
		consumer:   consumer,
		scheduler:  scheduler,
	}
}

// RunOnce executes a single pipeline run for entities (all configured when empty).
func (a *App) RunOnce(ctx context.Context, entities []string) (*models.RunReport, error) {
	defer a.l.RemoveCollector()
	report, err := a.runner.Run(ctx, &models.RunRequest{Entities: entities})
	if err != nil {
		return nil, err
	}
	for _, o := range report.Outcomes {
		if o.Err != "" {
			a.l.Warn("entity failed",
				applogger.String("entity", o.EntityID),
				applogger.String("stage", o.Stage),
				applogger.String("error", o.Err))
		}
	}
	return report, nil
}

// Serve starts HTTP, websocket hub, Kafka consumer and scheduler, and blocks until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(ctx)

	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start error", applogger.Error(err))
			a.consumer = nil
		}
	}

	if a.scheduler != nil {
		go func() {
			if err := a.scheduler.Start(ctx); err != nil {
				a.l.Error("scheduler error", applogger.Error(err))
			}
		}()
		a.l.Info("scheduler started", applogger.String("at", a.cfg.Scheduler.At))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		a.l.Info("shutdown signal received")
	case <-ctx.Done():
	}
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if err := a.runner.Wait(ctx); err != nil {
		a.l.Warn("background runs still active at shutdown", applogger.Error(err))
	}
	a.l.Info("shutdown complete")
	a.l.RemoveCollector()
	return nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"RateCast/internal/domain/models"
	domrepo "RateCast/internal/domain/repository"
	domsvc "RateCast/internal/domain/service"
	"RateCast/internal/services/dataset"
	"RateCast/internal/services/features"
	"RateCast/internal/services/learning"
	"RateCast/pkg/logger"
	"RateCast/pkg/util"
)

// ErrRunInProgress is returned when another run holds the run lock.
var ErrRunInProgress = errors.New("pipeline run already in progress")

const runLockKey = "pipeline-run"

// RunLocker serializes runs across replicas. cache.Service satisfies it.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// PipelineDeps are the stores and adapters a run touches. Publisher, Notifier, Reporter and Locker are optional.
type PipelineDeps struct {
	Source      domrepo.PriceSource
	Mart        domrepo.MartStore
	Predictions domrepo.PredictionSink
	Models      domrepo.ModelStore
	Forecasts   domrepo.ForecastLog
	Publisher   domrepo.RunPublisher
	Notifier    domrepo.Notifier
	Reporter    domsvc.Reporter
	Locker      RunLocker
	Metrics     domrepo.Metrics
}

// PipelineRunner executes build, commit, train, save, predict and update for each entity in turn.
// A failing entity is recorded in the report and the run moves on to the next one.
type PipelineRunner struct {
	deps      PipelineDeps
	builder   *features.Builder
	trainer   *learning.Trainer
	predictor *learning.Predictor
	entities  []string
	lockTTL   time.Duration
	listeners []func(*models.RunReport)
	inflight  sync.WaitGroup
	l         *logger.Logger
	now       func() time.Time
}

func NewPipelineRunner(deps PipelineDeps, builder *features.Builder, trainer *learning.Trainer, entities []string, l *logger.Logger) *PipelineRunner {
	if l == nil {
		l = logger.Nop()
	}
	return &PipelineRunner{
		deps:      deps,
		builder:   builder,
		trainer:   trainer,
		predictor: learning.NewPredictor(deps.Models),
		entities:  entities,
		lockTTL:   time.Hour,
		l:         l,
		now:       time.Now,
	}
}

// OnFinish registers fn to receive the report of every completed run.
func (r *PipelineRunner) OnFinish(fn func(*models.RunReport)) {
	r.listeners = append(r.listeners, fn)
}

// Run processes the requested entities, or the configured ones, or every entity the source knows.
func (r *PipelineRunner) Run(ctx context.Context, req *models.RunRequest) (*models.RunReport, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return r.run(ctx, req)
}

// Start takes the run lock and runs req in the background. A held lock is reported
// as ErrRunInProgress before anything starts.
func (r *PipelineRunner) Start(ctx context.Context, req *models.RunRequest) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		defer release()
		if _, err := r.run(context.Background(), req); err != nil {
			r.l.Error("background run", logger.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every run started with Start has finished, or ctx is done.
func (r *PipelineRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *PipelineRunner) acquire(ctx context.Context) (func(), error) {
	if r.deps.Locker == nil {
		return func() {}, nil
	}
	ok, err := r.deps.Locker.TryLock(ctx, runLockKey, r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		if err := r.deps.Locker.Unlock(context.Background(), runLockKey); err != nil {
			r.l.Warn("release run lock", logger.Error(err))
		}
	}, nil
}

func (r *PipelineRunner) run(ctx context.Context, req *models.RunRequest) (*models.RunReport, error) {
	if req == nil {
		req = &models.RunRequest{}
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	entities, err := r.resolveEntities(ctx, req.Entities)
	if err != nil {
		return nil, err
	}

	report := &models.RunReport{RunID: req.RunID, Started: r.now().UTC()}
	log := r.l.With(logger.String("run_id", req.RunID))
	log.Info("pipeline run started", logger.Strings("entities", entities))

	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		out := r.runEntity(ctx, req.RunID, entity, log.With(logger.String("entity", entity)))
		report.Outcomes = append(report.Outcomes, out)
	}

	report.Finished = r.now().UTC()
	log.Info("pipeline run finished",
		logger.Int("entities", len(report.Outcomes)),
		logger.Int("failed", report.Failed()),
		logger.Duration("took", report.Finished.Sub(report.Started)))
	for _, fn := range r.listeners {
		fn(report)
	}
	return report, nil
}

func (r *PipelineRunner) resolveEntities(ctx context.Context, asked []string) ([]string, error) {
	list := asked
	if len(list) == 0 {
		list = r.entities
	}
	if len(list) == 0 {
		all, err := r.deps.Source.Entities(ctx)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		list = all
	}
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, e := range list {
		e = util.NormalizeEntity(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}

// runEntity never returns an error; failures are folded into the outcome.
func (r *PipelineRunner) runEntity(ctx context.Context, runID, entity string, log *logger.Logger) models.EntityOutcome {
	start := r.now()
	out := models.EntityOutcome{EntityID: entity}

	f, rows, history, stage, err := r.forecastEntity(ctx, runID, entity)
	out.Rows = rows
	out.Took = r.now().Sub(start)
	if err != nil {
		if s := models.StageOf(err); s != "" {
			stage = s
		}
		out.Stage, out.Err = stage, err.Error()
		r.recordError(stage)
		log.Error("entity failed", logger.String("stage", stage), logger.Error(err))
		return out
	}
	out.Forecast = f
	log.Info("forecast issued",
		logger.Float64("value", f.Value),
		logger.Float64("last_price", f.LastPrice),
		logger.Float64("r2", f.Score),
		logger.Int("rows", rows))

	r.announce(ctx, history, f, log)
	return out
}

func (r *PipelineRunner) forecastEntity(ctx context.Context, runID, entity string) (*models.Forecast, int, []models.PriceObservation, string, error) {
	var (
		history []models.PriceObservation
		rows    []models.FeatureRow
		labeled []models.LabeledRow
		pipe    *models.TrainedPipeline
		value   float64
		err     error
	)
	trainedOn := models.Day(r.now())

	err = r.stage(models.StageLoad, entity, func() error {
		history, err = r.deps.Source.History(ctx, entity)
		if err == nil && len(history) == 0 {
			err = fmt.Errorf("%s: %w", entity, models.ErrEmptyHistory)
		}
		return err
	})
	if err != nil {
		return nil, 0, nil, models.StageLoad, err
	}

	err = r.stage(models.StageBuild, entity, func() error {
		rows, err = r.builder.Build(history, features.ModeLive)
		if err != nil {
			return err
		}
		labeled = dataset.Assign(rows, 0)
		return nil
	})
	if err != nil {
		return nil, 0, history, models.StageBuild, err
	}

	err = r.stage(models.StageCommit, entity, func() error {
		return r.deps.Mart.ReplaceEntity(ctx, entity, labeled)
	})
	if err != nil {
		return nil, len(labeled), history, models.StageCommit, err
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordRows(entity, len(labeled))
	}

	err = r.stage(models.StageTrain, entity, func() error {
		pipe, err = r.trainer.Train(entity, labeled, trainedOn)
		return err
	})
	if err != nil {
		return nil, len(labeled), history, models.StageTrain, err
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordScore(entity, pipe.Score)
	}

	err = r.stage(models.StageSave, entity, func() error {
		return r.deps.Models.Save(ctx, pipe)
	})
	if err != nil {
		return nil, len(labeled), history, models.StageSave, err
	}

	last := labeled[len(labeled)-1].FeatureRow
	err = r.stage(models.StagePredict, entity, func() error {
		value, pipe, err = r.predictor.Forecast(ctx, last, trainedOn)
		return err
	})
	if err != nil {
		return nil, len(labeled), history, models.StagePredict, err
	}

	f := &models.Forecast{
		RunID:      runID,
		EntityID:   entity,
		Date:       last.Date,
		TargetDate: last.Date.AddDate(0, 0, 1),
		LastPrice:  last.Values[0],
		Value:      value,
		ModelDate:  pipe.TrainedOn,
		Score:      pipe.Score,
		CreatedAt:  r.now().UTC(),
	}
	err = r.stage(models.StageUpdate, entity, func() error {
		if err := r.deps.Predictions.UpdatePrediction(ctx, entity, last.Date, value); err != nil {
			return err
		}
		if r.deps.Forecasts != nil {
			return r.deps.Forecasts.Append(ctx, f)
		}
		return nil
	})
	if err != nil {
		return nil, len(labeled), history, models.StageUpdate, err
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordForecast(entity, value)
	}
	return f, len(labeled), history, "", nil
}

// announce publishes and reports a forecast. Its failures are logged and never fail the entity.
func (r *PipelineRunner) announce(ctx context.Context, history []models.PriceObservation, f *models.Forecast, log *logger.Logger) {
	if r.deps.Publisher != nil {
		if err := r.deps.Publisher.PublishForecast(ctx, f); err != nil {
			r.recordError(models.StageNotify)
			log.Warn("publish forecast", logger.Error(err))
		}
	}
	if r.deps.Reporter == nil || r.deps.Notifier == nil {
		return
	}
	_ = r.stage(models.StageNotify, f.EntityID, func() error {
		artifacts, err := r.deps.Reporter.Render(ctx, history, f)
		if err != nil {
			r.recordError(models.StageNotify)
			log.Warn("render report", logger.Error(err))
			return nil
		}
		for _, a := range artifacts {
			if err := r.deps.Notifier.Notify(ctx, a); err != nil {
				r.recordError(models.StageNotify)
				log.Warn("notify", logger.String("destination", a.Destination), logger.Error(err))
			}
		}
		return nil
	})
}

func (r *PipelineRunner) stage(name, entity string, fn func() error) error {
	start := r.now()
	err := fn()
	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordStage(name, entity, r.now().Sub(start).Seconds())
	}
	return err
}

func (r *PipelineRunner) recordError(stage string) {
	if r.deps.Metrics != nil {
		r.deps.Metrics.RecordError(stage)
	}
}

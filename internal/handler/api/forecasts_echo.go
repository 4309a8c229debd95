package api

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/labstack/echo/v4"

	"RateCast/internal/domain/models"
	"RateCast/internal/repository"
	"RateCast/internal/service/ratelimit"
	"RateCast/internal/usecase"
	xhttp "RateCast/pkg/http"
	xlogger "RateCast/pkg/logger"
	"RateCast/pkg/util"
)

// ForecastQueries is the use case behind the forecast API.
type ForecastQueries interface {
	Latest(ctx context.Context, entity string) (*models.Forecast, error)
	History(ctx context.Context, entity string, limit int) ([]*models.Forecast, error)
	Features(ctx context.Context, entity string, limit int) ([]models.LabeledRow, error)
	Model(ctx context.Context, entity, date string) (*models.TrainedPipeline, error)
	Trigger(ctx context.Context, entities []string) (*models.RunRequest, error)
}

// ForecastsEchoHandler serves forecasts, mart rows and models, and accepts run triggers.
type ForecastsEchoHandler struct {
	logger  *xlogger.Logger
	svc     ForecastQueries
	limiter *ratelimit.Limiter
	// run triggers per client: burst and refill per second
	burst, refill float64
}

func NewForecastsEchoHandler(logger *xlogger.Logger, svc ForecastQueries, limiter *ratelimit.Limiter) *ForecastsEchoHandler {
	if limiter == nil {
		limiter = ratelimit.New()
	}
	return &ForecastsEchoHandler{logger: logger, svc: svc, limiter: limiter, burst: 2, refill: 1.0 / 60}
}

func (h *ForecastsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/forecasts/latest", h.Latest)
	g.GET("/forecasts", h.History)
	g.GET("/features", h.Features)
	g.GET("/models", h.Model)
	g.POST("/runs", h.Trigger)
}

func (h *ForecastsEchoHandler) Latest(c echo.Context) error {
	req := &models.LatestForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	f, err := h.svc.Latest(c.Request().Context(), req.Entity)
	if err != nil {
		return h.fail(c, "latest forecast", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return xhttp.SuccessResponse(c, newForecastResponse(f))
}

func (h *ForecastsEchoHandler) History(c echo.Context) error {
	req := &models.ForecastHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	fs, err := h.svc.History(c.Request().Context(), req.Entity, req.Limit)
	if err != nil {
		return h.fail(c, "forecast history", err)
	}
	out := make([]forecastResponse, 0, len(fs))
	for _, f := range fs {
		out = append(out, newForecastResponse(f))
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *ForecastsEchoHandler) Features(c echo.Context) error {
	req := &models.FeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.svc.Features(c.Request().Context(), req.Entity, req.Limit)
	if err != nil {
		return h.fail(c, "features", err)
	}
	out := make([]featureRowResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, newFeatureRowResponse(r))
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *ForecastsEchoHandler) Model(c echo.Context) error {
	req := &models.ModelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := h.svc.Model(c.Request().Context(), req.Entity, req.Date)
	if err != nil {
		return h.fail(c, "model", err)
	}
	return xhttp.SuccessResponse(c, newModelResponse(p))
}

func (h *ForecastsEchoHandler) Trigger(c echo.Context) error {
	if !h.limiter.Allow("runs:"+c.RealIP(), h.burst, h.refill) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "", "too many run requests", 429))
	}
	req := &models.RunTriggerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	entities := make([]string, 0, len(req.Entities))
	for _, e := range req.Entities {
		entities = append(entities, util.NormalizeEntity(e))
	}
	run, err := h.svc.Trigger(c.Request().Context(), entities)
	if err != nil {
		return h.fail(c, "trigger run", err)
	}
	return xhttp.AcceptedResponse(c, run)
}

// fail maps use case errors onto API errors.
func (h *ForecastsEchoHandler) fail(c echo.Context, op string, err error) error {
	var (
		notFound *models.ModelNotFoundError
		mismatch *models.SchemaMismatchError
	)
	switch {
	case errors.As(err, &notFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no model for %s on %s", notFound.EntityID, notFound.Date).WithError(err))
	case errors.Is(err, repository.ErrNoForecast):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no forecast yet").WithError(err))
	case errors.As(err, &mismatch):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(mismatch.Error()).WithError(err))
	case errors.Is(err, usecase.ErrRunInProgress):
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("a run is already in progress").WithError(err))
	}
	h.logger.Error(op+" usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

// JSON has no NaN; non-finite numbers are sent as null.

type forecastResponse struct {
	RunID      string    `json:"run_id"`
	EntityID   string    `json:"entity_id"`
	Date       string    `json:"date"`
	TargetDate string    `json:"target_date"`
	LastPrice  float64   `json:"last_price"`
	Value      float64   `json:"value"`
	ModelDate  string    `json:"model_date"`
	Score      *float64  `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

func newForecastResponse(f *models.Forecast) forecastResponse {
	return forecastResponse{
		RunID:      f.RunID,
		EntityID:   f.EntityID,
		Date:       f.Date.Format(models.DateLayout),
		TargetDate: f.TargetDate.Format(models.DateLayout),
		LastPrice:  f.LastPrice,
		Value:      f.Value,
		ModelDate:  f.ModelDate,
		Score:      finite(f.Score),
		CreatedAt:  f.CreatedAt,
	}
}

type featureRowResponse struct {
	Date       string              `json:"date"`
	Values     map[string]*float64 `json:"values"`
	Target     *float64            `json:"target"`
	Prediction *float64            `json:"prediction"`
}

func newFeatureRowResponse(r models.LabeledRow) featureRowResponse {
	values := make(map[string]*float64, len(r.Columns))
	for i, name := range r.Columns {
		values[name] = finite(r.Values[i])
	}
	return featureRowResponse{Date: r.Date.Format(models.DateLayout), Values: values, Target: r.Target, Prediction: r.Prediction}
}

type foldResponse struct {
	Fold      int      `json:"fold"`
	TrainRows int      `json:"train_rows"`
	ValidRows int      `json:"valid_rows"`
	TrainEnd  string   `json:"train_end"`
	ValidEnd  string   `json:"valid_end"`
	R2        *float64 `json:"r2"`
}

type modelResponse struct {
	EntityID     string             `json:"entity_id"`
	TrainedOn    string             `json:"trained_on"`
	Score        *float64           `json:"score"`
	TrainRows    int                `json:"train_rows"`
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
	Folds        []foldResponse     `json:"folds"`
}

func newModelResponse(p *models.TrainedPipeline) modelResponse {
	coef := make(map[string]float64, len(p.FeatureNames))
	for i, name := range p.FeatureNames {
		if i < len(p.Regressor.Coef) {
			coef[name] = p.Regressor.Coef[i]
		}
	}
	folds := make([]foldResponse, 0, len(p.Folds))
	for _, f := range p.Folds {
		folds = append(folds, foldResponse{
			Fold:      f.Fold,
			TrainRows: f.TrainRows,
			ValidRows: f.ValidRows,
			TrainEnd:  f.TrainEnd.Format(models.DateLayout),
			ValidEnd:  f.ValidEnd.Format(models.DateLayout),
			R2:        finite(f.R2),
		})
	}
	return modelResponse{
		EntityID:     p.EntityID,
		TrainedOn:    p.TrainedOn,
		Score:        finite(p.Score),
		TrainRows:    p.TrainRows,
		Intercept:    p.Regressor.Intercept,
		Coefficients: coef,
		Folds:        folds,
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

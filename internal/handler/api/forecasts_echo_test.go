package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"RateCast/internal/domain/models"
	"RateCast/internal/repository"
	"RateCast/internal/service/ratelimit"
	"RateCast/internal/usecase"
	xlogger "RateCast/pkg/logger"
)

var day = time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)

type fakeQueries struct {
	triggered  []string
	triggerErr error
}

func (f *fakeQueries) Latest(_ context.Context, entity string) (*models.Forecast, error) {
	if entity != "nbrb" {
		return nil, fmt.Errorf("%s: %w", entity, repository.ErrNoForecast)
	}
	return &models.Forecast{EntityID: "nbrb", Date: day, TargetDate: day.AddDate(0, 0, 1), Value: 3.2712, Score: math.NaN()}, nil
}

func (f *fakeQueries) History(_ context.Context, entity string, limit int) ([]*models.Forecast, error) {
	out := make([]*models.Forecast, 0, limit)
	for i := 0; i < limit && i < 3; i++ {
		out = append(out, &models.Forecast{EntityID: entity, Date: day.AddDate(0, 0, -i)})
	}
	return out, nil
}

func (f *fakeQueries) Features(_ context.Context, entity string, limit int) ([]models.LabeledRow, error) {
	target := 3.3
	return []models.LabeledRow{{
		FeatureRow: models.FeatureRow{EntityID: entity, Date: day, Columns: []string{"price", "std_5"}, Values: []float64{3.2, math.NaN()}},
		Target:     &target,
	}}, nil
}

func (f *fakeQueries) Model(_ context.Context, entity, date string) (*models.TrainedPipeline, error) {
	if date == "2020-01-01" {
		return nil, &models.ModelNotFoundError{EntityID: entity, Stage: models.StagePredict, Date: date}
	}
	return &models.TrainedPipeline{
		EntityID:     entity,
		TrainedOn:    "2024-09-02",
		FeatureNames: []string{"price"},
		Regressor:    models.Regressor{Coef: []float64{0.9}, Intercept: 0.1},
		Score:        0.42,
	}, nil
}

func (f *fakeQueries) Trigger(_ context.Context, entities []string) (*models.RunRequest, error) {
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	f.triggered = entities
	return &models.RunRequest{RunID: "r1", Entities: entities}, nil
}

func serve(t *testing.T, h *ForecastsEchoHandler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestLatestForecast(t *testing.T) {
	h := NewForecastsEchoHandler(xlogger.Nop(), &fakeQueries{}, nil)
	rec, env := serve(t, h, http.MethodGet, "/api/forecasts/latest?entity=nbrb", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	data := env["data"].(map[string]interface{})
	if data["target_date"] != "2024-09-03" || data["value"].(float64) != 3.2712 || data["score"] != nil {
		t.Fatalf("unexpected body %v", data)
	}
}

func TestLatestForecastNotFound(t *testing.T) {
	h := NewForecastsEchoHandler(xlogger.Nop(), &fakeQueries{}, nil)
	rec, _ := serve(t, h, http.MethodGet, "/api/forecasts/latest?entity=unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLatestForecastRequiresEntity(t *testing.T) {
	h := NewForecastsEchoHandler(xlogger.Nop(), &fakeQueries{}, nil)
	rec, _ := serve(t, h, http.MethodGet, "/api/forecasts/latest", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistoryDefaultsLimit(t *testing.T) {
	h := NewForecastsEchoHandler(xlogger.Nop(), &fakeQueries{}, nil)
	rec, env := serve(t, h, http.MethodGet, "/api/forecasts?entity=nbrb", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	data := env["data"].(map[string]interface{})
	if data["total"].(float64) != 3 {
		t.Fatalf("unexpected total %v", data["total"])
	}
}

func TestFeaturesSendNullForNaN(t *testing.T) {
	h := NewForecastsEchoHandler(xlogger.Nop(), &fakeQueries{}, nil)
	rec, env := serve(t, h, http.MethodGet, "/api/features?entity=nbrb&limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	row := env["data"].(map[string]interface{})["rows"].([]interface{})[0].(map[string]interface{})
	values := row["values"].(map[string]interface{})
	if values["price"].(float64) != 3.2 || values["std_5"] != nil || row["target"].(float64) != 3.3 {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestModelEndpoint(t *testing.T) {
	h := NewForecastsEchoHandler(xlogger.Nop(), &fakeQueries{}, nil)
	rec, env := serve(t, h, http.MethodGet, "/api/models?entity=nbrb", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	coef := env["data"].(map[string]interface{})["coefficients"].(map[string]interface{})
	if coef["price"].(float64) != 0.9 {
		t.Fatalf("unexpected coefficients %v", coef)
	}

	rec, _ = serve(t, h, http.MethodGet, "/api/models?entity=nbrb&date=2020-01-01", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec, _ = serve(t, h, http.MethodGet, "/api/models?entity=nbrb&date=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestTriggerRun(t *testing.T) {
	q := &fakeQueries{}
	h := NewForecastsEchoHandler(xlogger.Nop(), q, ratelimit.New())
	rec, env := serve(t, h, http.MethodPost, "/api/runs", `{"entities":["Альфа Банк"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(q.triggered) != 1 || q.triggered[0] != "alfa_bank" {
		t.Fatalf("unexpected entities %v", q.triggered)
	}
	if env["data"].(map[string]interface{})["run_id"] != "r1" {
		t.Fatalf("unexpected body %v", env)
	}
}

func TestTriggerRunRateLimitedAndConflict(t *testing.T) {
	q := &fakeQueries{}
	h := NewForecastsEchoHandler(xlogger.Nop(), q, ratelimit.New())
	for i := 0; i < 2; i++ {
		if rec, _ := serve(t, h, http.MethodPost, "/api/runs", `{}`); rec.Code != http.StatusAccepted {
			t.Fatalf("call %d: status %d", i, rec.Code)
		}
	}
	if rec, _ := serve(t, h, http.MethodPost, "/api/runs", `{}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	busy := NewForecastsEchoHandler(xlogger.Nop(), &fakeQueries{triggerErr: usecase.ErrRunInProgress}, nil)
	if rec, _ := serve(t, busy, http.MethodPost, "/api/runs", `{}`); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"RateCast/internal/domain/models"
	domrepo "RateCast/internal/domain/repository"
)

// ForecastsDDL creates the append-only forecast log.
func ForecastsDDL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (run_id String, entity_id String, date Date, target_date Date, "+
		"last_price Float64, value Float64, model_date String, score Float64, created_at DateTime64(3)) "+
		"ENGINE = MergeTree ORDER BY (entity_id, created_at)", table)
}

// CHForecasts implements ForecastLog on ClickHouse.
type CHForecasts struct {
	db    *sql.DB
	table string
}

func NewCHForecasts(db *sql.DB, table string) *CHForecasts {
	return &CHForecasts{db: db, table: table}
}

const forecastCols = "run_id, entity_id, date, target_date, last_price, value, model_date, score, created_at"

func (s *CHForecasts) Append(ctx context.Context, f *models.Forecast) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, forecastCols)
	_, err := s.db.ExecContext(ctx, q, f.RunID, f.EntityID, f.Date, f.TargetDate, f.LastPrice, f.Value, f.ModelDate, f.Score, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("append forecast: %w", err)
	}
	return nil
}

// ErrNoForecast is returned when an entity has never been forecast.
var ErrNoForecast = errors.New("no forecast")

func (s *CHForecasts) Latest(ctx context.Context, entityID string) (*models.Forecast, error) {
	out, err := s.History(ctx, entityID, 1)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", entityID, ErrNoForecast)
	}
	return out[0], nil
}

// History returns the newest forecasts first.
func (s *CHForecasts) History(ctx context.Context, entityID string, limit int) ([]*models.Forecast, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE entity_id = ? ORDER BY created_at DESC LIMIT ?", forecastCols, s.table)
	rows, err := s.db.QueryContext(ctx, q, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("forecast history: %w", err)
	}
	defer rows.Close()
	var out []*models.Forecast
	for rows.Next() {
		var f models.Forecast
		if err := rows.Scan(&f.RunID, &f.EntityID, &f.Date, &f.TargetDate, &f.LastPrice, &f.Value, &f.ModelDate, &f.Score, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan forecast: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

var _ domrepo.ForecastLog = (*CHForecasts)(nil)

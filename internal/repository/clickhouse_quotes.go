package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RateCast/internal/domain/models"
	domrepo "RateCast/internal/domain/repository"
	applogger "RateCast/pkg/logger"

	"github.com/shopspring/decimal"
)

// QuotesDDL creates the raw quote table. Re-ingesting a day replaces it.
func QuotesDDL(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (entity_id String, date Date, sell Decimal(18, 4), buy Decimal(18, 4), ingested_at DateTime) "+
		"ENGINE = ReplacingMergeTree(ingested_at) ORDER BY (entity_id, date)", table)
}

// CHQuotes reads and writes daily quotes in ClickHouse.
type CHQuotes struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

// NewCHQuotes reads and writes raw quotes in table.
func NewCHQuotes(db *sql.DB, table string) *CHQuotes {
	return &CHQuotes{db: db, table: table}
}

// SetLogger injects a structured logger.
func (s *CHQuotes) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHQuotes) Entities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT entity_id FROM %s ORDER BY entity_id", s.table))
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// History returns the entity's quotes ordered by date.
// Decimals travel as strings so no precision is lost on the way.
func (s *CHQuotes) History(ctx context.Context, entityID string) ([]models.PriceObservation, error) {
	q := fmt.Sprintf(`
        SELECT date, toString(sell), toString(buy)
        FROM %s FINAL
        WHERE entity_id = ?
        ORDER BY date ASC`, s.table)
	rows, err := s.db.QueryContext(ctx, q, entityID)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history query error", applogger.String("entity", entityID), applogger.Error(err))
		}
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceObservation, 0, 512)
	for rows.Next() {
		var (
			date      time.Time
			sell, buy string
		)
		if err := rows.Scan(&date, &sell, &buy); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		obs, err := observation(entityID, date, sell, buy)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func observation(entityID string, date time.Time, sell, buy string) (models.PriceObservation, error) {
	s, err := decimal.NewFromString(sell)
	if err != nil {
		return models.PriceObservation{}, fmt.Errorf("parse sell %q: %w", sell, err)
	}
	b, err := decimal.NewFromString(buy)
	if err != nil {
		return models.PriceObservation{}, fmt.Errorf("parse buy %q: %w", buy, err)
	}
	return models.PriceObservation{EntityID: entityID, Date: models.Day(date), SellPrice: s, Spread: s.Sub(b)}, nil
}

// StoreBatch inserts quotes; the buy price is sell - spread.
func (s *CHQuotes) StoreBatch(ctx context.Context, obs []models.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	values := make([]string, 0, len(obs))
	args := make([]interface{}, 0, len(obs)*5)
	for _, o := range obs {
		if o.EntityID == "" {
			continue
		}
		values = append(values, "(?, ?, toDecimal64(?, 4), toDecimal64(?, 4), ?)")
		args = append(args, o.EntityID, models.Day(o.Date), o.SellPrice.String(), o.SellPrice.Sub(o.Spread).String(), now)
	}
	if len(values) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s (entity_id, date, sell, buy, ingested_at) VALUES %s", s.table, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("store quotes: %w", err)
	}
	return nil
}

var (
	_ domrepo.PriceSource = (*CHQuotes)(nil)
	_ domrepo.QuoteStore  = (*CHQuotes)(nil)
)

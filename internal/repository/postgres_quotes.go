package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"RateCast/internal/domain/models"
	domrepo "RateCast/internal/domain/repository"
	"RateCast/pkg/util"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PGQuotes reads the crawler's raw table (bank_name, date_page, price_value_usd_sell, price_value_usd_buy).
// Bank names are stored as displayed on the site; entities are their normalized form.
type PGQuotes struct {
	db    *gorm.DB
	table string
}

func NewPGQuotes(db *gorm.DB, table string) *PGQuotes {
	return &PGQuotes{db: db, table: table}
}

type rawDay struct {
	Day  time.Time
	Sell decimal.Decimal
	Buy  decimal.Decimal
}

// banks maps normalized entity ids to the raw names that produce them.
func (s *PGQuotes) banks(ctx context.Context) (map[string][]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Table(s.table).Distinct("bank_name").Pluck("bank_name", &names).Error; err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	out := make(map[string][]string, len(names))
	for _, n := range names {
		id := util.NormalizeEntity(n)
		out[id] = append(out[id], n)
	}
	return out, nil
}

func (s *PGQuotes) Entities(ctx context.Context) ([]string, error) {
	m, err := s.banks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// History averages every raw name of the entity per day.
func (s *PGQuotes) History(ctx context.Context, entityID string) ([]models.PriceObservation, error) {
	m, err := s.banks(ctx)
	if err != nil {
		return nil, err
	}
	names, ok := m[entityID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", entityID, models.ErrEmptyHistory)
	}

	var days []rawDay
	err = s.db.WithContext(ctx).
		Table(s.table).
		Select("date_page::date AS day, ROUND(AVG(price_value_usd_sell), 4) AS sell, ROUND(AVG(price_value_usd_buy), 4) AS buy").
		Where("bank_name IN ?", names).
		Where("price_value_usd_sell IS NOT NULL AND price_value_usd_buy IS NOT NULL").
		Group("day").
		Order("day").
		Scan(&days).Error
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	out := make([]models.PriceObservation, len(days))
	for i, d := range days {
		out[i] = models.PriceObservation{
			EntityID:  entityID,
			Date:      models.Day(d.Day),
			SellPrice: d.Sell,
			Spread:    d.Sell.Sub(d.Buy),
		}
	}
	return out, nil
}

var _ domrepo.PriceSource = (*PGQuotes)(nil)

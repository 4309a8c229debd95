package features

import (
	"fmt"
	"sort"
)

// Base columns, always first in a row.
const (
	ColSellPrice  = "sell_price"
	ColSpread     = "spread"
	ColUpStreak   = "up_streak"
	ColDownStreak = "down_streak"
	ColDelta      = "delta"
)

// DefaultWidths are the look-back windows in observations.
var DefaultWidths = []int{5, 7, 14, 21, 28, 35, 60, 100}

// DefaultSeries is the suffix of windowed column names.
const DefaultSeries = "price_usd_sell"

// Schema enumerates the feature columns for a width list.
type Schema struct {
	Widths  []int
	Series  string
	columns []string
}

// NewSchema validates widths and precomputes column names.
func NewSchema(widths []int, series string) (*Schema, error) {
	if len(widths) == 0 {
		return nil, fmt.Errorf("schema: no window widths")
	}
	ws := append([]int(nil), widths...)
	sort.Ints(ws)
	for i, w := range ws {
		if w < 2 {
			return nil, fmt.Errorf("schema: window width %d < 2", w)
		}
		if i > 0 && ws[i-1] == w {
			return nil, fmt.Errorf("schema: duplicate window width %d", w)
		}
	}
	if series == "" {
		series = DefaultSeries
	}

	s := &Schema{Widths: ws, Series: series}
	s.columns = append(s.columns, ColSellPrice, ColSpread, ColUpStreak, ColDownStreak, ColDelta)
	for _, w := range ws {
		for _, agg := range Aggregates {
			s.columns = append(s.columns, ColumnName(agg, w, series))
		}
	}
	return s, nil
}

// ColumnName formats a windowed column: {aggregate}_{width}_{series}.
func ColumnName(aggregate string, width int, series string) string {
	return fmt.Sprintf("%s_%d_%s", aggregate, width, series)
}

// Columns returns the ordered column names. The slice is shared; do not modify.
func (s *Schema) Columns() []string { return s.columns }

// Width is the number of columns.
func (s *Schema) Width() int { return len(s.columns) }

// MaxWidth is the longest look-back window.
func (s *Schema) MaxWidth() int { return s.Widths[len(s.Widths)-1] }

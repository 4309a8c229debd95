package features

import (
	"fmt"
	"math"
	"sort"

	"RateCast/internal/domain/models"
)

// Mode selects how rows with undefined aggregates are treated.
type Mode int

const (
	// ModeTraining drops every row that has an undefined aggregate.
	ModeTraining Mode = iota
	// ModeLive drops incomplete rows too but always keeps the most recent one.
	ModeLive
)

// Builder turns a price history into feature rows.
type Builder struct {
	schema *Schema
	decay  float64
}

// NewBuilder creates a builder. A non-positive decay falls back to DefaultDecay.
func NewBuilder(schema *Schema, decay float64) *Builder {
	if decay <= 0 || decay >= 1 {
		decay = DefaultDecay
	}
	return &Builder{schema: schema, decay: decay}
}

// Schema returns the column layout of produced rows.
func (b *Builder) Schema() *Schema { return b.schema }

// Build emits one row per observation that survives the mode's filter, in date order.
// An empty or too-short history yields no rows (ModeTraining) and is not an error.
func (b *Builder) Build(history []models.PriceObservation, mode Mode) ([]models.FeatureRow, error) {
	if len(history) == 0 {
		return nil, nil
	}

	obs := append([]models.PriceObservation(nil), history...)
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	for i := 1; i < len(obs); i++ {
		if obs[i].Date.Equal(obs[i-1].Date) {
			return nil, fmt.Errorf("%s %s: %w", obs[i].EntityID, obs[i].Date.Format(models.DateLayout), models.ErrUnorderedHistory)
		}
	}

	n := len(obs)
	sells := make([]float64, n)
	spreads := make([]float64, n)
	deltas := make([]float64, n)
	for i, o := range obs {
		sells[i] = o.SellPrice.InexactFloat64()
		spreads[i] = o.Spread.InexactFloat64()
		if i > 0 {
			// positive when the price fell
			deltas[i] = obs[i-1].SellPrice.Sub(o.SellPrice).InexactFloat64()
		}
	}

	dirs := Directions(obs)
	up := CountStreak(dirs, models.Up)
	down := CountStreak(dirs, models.Down)

	windows := make([][]WindowAggregates, len(b.schema.Widths))
	for k, w := range b.schema.Widths {
		windows[k] = ComputeWindow(sells, deltas, w, b.decay)
	}

	cols := b.schema.Columns()
	rows := make([]models.FeatureRow, 0, n)
	for i, o := range obs {
		vals := make([]float64, 0, len(cols))
		vals = append(vals, sells[i], spreads[i], float64(up[i]), float64(down[i]), deltas[i])
		for k := range windows {
			vals = append(vals, windows[k][i].Slice()...)
		}

		last := i == n-1
		if hasNaN(vals) && !(mode == ModeLive && last) {
			continue
		}
		rows = append(rows, models.FeatureRow{
			EntityID: o.EntityID,
			Date:     o.Date,
			Columns:  cols,
			Values:   vals,
		})
	}
	return rows, nil
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

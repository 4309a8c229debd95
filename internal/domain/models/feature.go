package models

import (
	"math"
	"time"
)

// FeatureRow is the fixed-width feature vector of one observation.
// Columns is shared by every row produced by the same schema.
type FeatureRow struct {
	EntityID string
	Date     time.Time
	Columns  []string
	Values   []float64
}

// Value returns the named column, false if the schema has no such column.
func (r FeatureRow) Value(name string) (float64, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return 0, false
}

// Finite reports whether every value is a real number.
func (r FeatureRow) Finite() bool {
	for _, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// LabeledRow is a FeatureRow with its next-period target.
type LabeledRow struct {
	FeatureRow
	Target     *float64
	Prediction *float64
}

// IsTrainable reports whether the row can be used for fitting.
func (r LabeledRow) IsTrainable() bool {
	return r.Target != nil && r.Finite()
}

// Trainable filters rows usable for fitting, preserving order.
func Trainable(rows []LabeledRow) []LabeledRow {
	out := make([]LabeledRow, 0, len(rows))
	for _, r := range rows {
		if r.IsTrainable() {
			out = append(out, r)
		}
	}
	return out
}

// Predictable returns the row awaiting a forecast: the last one, when it has no target.
func Predictable(rows []LabeledRow) (LabeledRow, bool) {
	if len(rows) == 0 {
		return LabeledRow{}, false
	}
	last := rows[len(rows)-1]
	if last.Target != nil {
		return LabeledRow{}, false
	}
	return last, true
}

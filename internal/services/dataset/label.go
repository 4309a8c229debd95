package dataset

import "RateCast/internal/domain/models"

// Assign attaches the next row's sell price as the target of each row.
// The last row has no target; it is the one a live forecast is made for.
// sellColumn is the index of the sell price within Values.
func Assign(rows []models.FeatureRow, sellColumn int) []models.LabeledRow {
	out := make([]models.LabeledRow, len(rows))
	for i, r := range rows {
		out[i].FeatureRow = r
		if i+1 < len(rows) {
			y := rows[i+1].Values[sellColumn]
			out[i].Target = &y
		}
	}
	return out
}

// Matrix splits trainable rows into a design matrix and target vector.
func Matrix(rows []models.LabeledRow) (x [][]float64, y []float64) {
	x = make([][]float64, 0, len(rows))
	y = make([]float64, 0, len(rows))
	for _, r := range rows {
		if r.Target == nil {
			continue
		}
		x = append(x, r.Values)
		y = append(y, *r.Target)
	}
	return x, y
}

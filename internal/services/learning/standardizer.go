package learning

import (
	"math"

	"RateCast/internal/domain/models"

	"gonum.org/v1/gonum/stat"
)

// FitStandardizer learns per-column mean and population standard deviation.
// Columns with no spread get a scale of 1 so they transform to zero.
func FitStandardizer(x [][]float64) models.Standardizer {
	if len(x) == 0 {
		return models.Standardizer{}
	}
	p := len(x[0])
	s := models.Standardizer{Mean: make([]float64, p), Scale: make([]float64, p)}
	col := make([]float64, len(x))
	for j := 0; j < p; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std <= 1e-10*math.Max(1, math.Abs(mean)) {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s
}

// Standardize applies a fitted standardizer to one row.
func Standardize(s models.Standardizer, row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// StandardizeAll applies a fitted standardizer to every row.
func StandardizeAll(s models.Standardizer, x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = Standardize(s, row)
	}
	return out
}

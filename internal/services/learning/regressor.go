package learning

import (
	"errors"
	"math"

	"RateCast/internal/domain/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var errFactorize = errors.New("ols: svd factorization failed")

// FitOLS fits y = X·coef + intercept by least squares.
// Rank-deficient designs get the minimum-norm solution.
func FitOLS(x [][]float64, y []float64) (models.Regressor, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return models.Regressor{}, errors.New("ols: empty or mismatched design")
	}
	p := len(x[0])

	xMean := make([]float64, p)
	for _, row := range x {
		floats.Add(xMean, row)
	}
	floats.Scale(1/float64(n), xMean)
	yMean := stat.Mean(y, nil)

	a := mat.NewDense(n, p, nil)
	b := mat.NewVecDense(n, nil)
	for i, row := range x {
		for j, v := range row {
			a.Set(i, j, v-xMean[j])
		}
		b.SetVec(i, y[i]-yMean)
	}

	coef := make([]float64, p)
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return models.Regressor{}, errFactorize
	}
	rcond := math.Nextafter(1, 2) - 1
	rcond *= float64(max(n, p))
	if rank := svd.Rank(rcond); rank > 0 {
		var beta mat.VecDense
		svd.SolveVecTo(&beta, b, rank)
		for j := range coef {
			coef[j] = beta.AtVec(j)
		}
	}

	return models.Regressor{
		Coef:      coef,
		Intercept: yMean - floats.Dot(xMean, coef),
	}, nil
}

// Apply evaluates the regressor on one row.
func Apply(r models.Regressor, row []float64) float64 {
	return floats.Dot(r.Coef, row) + r.Intercept
}

// R2 is the coefficient of determination of estimates against observed values.
// A constant target scores 1 when matched exactly and 0 otherwise.
func R2(estimates, values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	if floats.Max(values) == floats.Min(values) {
		if floats.EqualApprox(estimates, values, 1e-12) {
			return 1
		}
		return 0
	}
	return stat.RSquaredFrom(estimates, values, nil)
}

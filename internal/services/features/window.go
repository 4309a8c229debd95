package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultDecay is the base of the exponential weights of the decay-weighted sum.
const DefaultDecay = 0.9

// Aggregate names, in schema order.
const (
	AggMeanDelta = "mean_delta"
	AggDecaySum  = "decay_weighted_sum"
	AggRange     = "range_first_last"
	AggMean      = "mean"
	AggMedian    = "median"
	AggMin       = "min"
	AggMax       = "max"
	AggStdDev    = "stddev"
)

// Aggregates lists the per-window columns in the order they appear in a row.
var Aggregates = []string{AggMeanDelta, AggDecaySum, AggRange, AggMean, AggMedian, AggMin, AggMax, AggStdDev}

// WindowAggregates holds the eight statistics of one trailing window.
// Undefined statistics are NaN; zero-filled ones are 0 when the window is short.
type WindowAggregates struct {
	MeanDelta float64
	DecaySum  float64
	Range     float64
	Mean      float64
	Median    float64
	Min       float64
	Max       float64
	StdDev    float64
}

// Slice returns the values in Aggregates order.
func (a WindowAggregates) Slice() []float64 {
	return []float64{a.MeanDelta, a.DecaySum, a.Range, a.Mean, a.Median, a.Min, a.Max, a.StdDev}
}

// ComputeWindow computes the aggregates of width w at every position.
// values are sell prices; deltas are the day-over-day deltas with deltas[0] = 0.
// A window is complete at position i when i >= w-1. The delta mean uses w-1 deltas.
func ComputeWindow(values, deltas []float64, w int, decay float64) []WindowAggregates {
	out := make([]WindowAggregates, len(values))
	if w < 2 {
		w = 2
	}
	weights := decayWeights(w, decay)
	scratch := make([]float64, w)

	for i := range values {
		a := &out[i]

		if dw := w - 1; i >= dw-1 && i < len(deltas) {
			a.MeanDelta = stat.Mean(deltas[i-dw+1:i+1], nil)
		}

		if i < w-1 {
			a.DecaySum = math.NaN()
			a.Range = math.NaN()
			a.StdDev = math.NaN()
			continue
		}

		win := values[i-w+1 : i+1]
		a.DecaySum = floats.Dot(win, weights)
		a.Range = win[0] - win[len(win)-1]
		a.Mean = stat.Mean(win, nil)
		a.Min = floats.Min(win)
		a.Max = floats.Max(win)
		a.StdDev = stat.StdDev(win, nil)

		copy(scratch, win)
		a.Median = median(scratch)
	}
	return out
}

// decayWeights returns decay^(w-1-k) for k in [0, w): the newest value weighs 1.
func decayWeights(w int, decay float64) []float64 {
	out := make([]float64, w)
	for k := range out {
		out[k] = math.Pow(decay, float64(w-1-k))
	}
	return out
}

// median sorts xs in place. Even lengths average the two middle values.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

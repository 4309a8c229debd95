package features

import "RateCast/internal/domain/models"

// Directions returns the day-over-day direction of each observation.
// The first observation has no predecessor and is Flat.
func Directions(history []models.PriceObservation) []models.Direction {
	out := make([]models.Direction, len(history))
	for i := 1; i < len(history); i++ {
		out[i] = models.DirectionOf(history[i-1].SellPrice, history[i].SellPrice)
	}
	return out
}

// CountStreak emits, for every signal, the length of the current run of tracked.
// Any other signal resets a running count to zero.
func CountStreak(signals []models.Direction, tracked models.Direction) []int {
	out := make([]int, len(signals))
	n := 0
	for i, s := range signals {
		if s == tracked {
			n++
		} else if n > 0 {
			n = 0
		}
		out[i] = n
	}
	return out
}

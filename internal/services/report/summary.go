package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"RateCast/internal/domain/models"
	"RateCast/internal/services/features"
)

// Lookbacks are the calendar-day horizons the summary compares the current price against.
var Lookbacks = []int{1, 7, 30, 90, 365}

// Summary is the text card sent with every forecast.
type Summary struct {
	EntityID     string
	Date         time.Time
	Price        float64
	Forecast     float64
	Score        float64
	UpStreak     int
	DownStreak   int
	Changes      map[int]float64 // lookback days -> price change; missing when history is shorter
	FastAbove    bool            // 14-day mean above the 28-day mean
	FastRising   bool
	SlowRising   bool
	CrossDaysAgo int // days since the 14/28 means last crossed, -1 if never
}

// Summarize derives the card from an ordered history and the forecast issued for its last day.
func Summarize(history []models.PriceObservation, f *models.Forecast) Summary {
	s := Summary{EntityID: f.EntityID, Date: f.Date, Price: f.LastPrice, Forecast: f.Value, Score: f.Score, CrossDaysAgo: -1}
	n := len(history)
	if n == 0 {
		return s
	}

	dirs := features.Directions(history)
	s.UpStreak = features.CountStreak(dirs, models.Up)[n-1]
	s.DownStreak = features.CountStreak(dirs, models.Down)[n-1]

	prices := make([]float64, n)
	for i, o := range history {
		prices[i] = o.SellPrice.InexactFloat64()
	}
	last := history[n-1].Date
	s.Changes = make(map[int]float64, len(Lookbacks))
	for _, days := range Lookbacks {
		cut := last.AddDate(0, 0, -days)
		for i := n - 1; i >= 0; i-- {
			if !history[i].Date.After(cut) {
				s.Changes[days] = prices[n-1] - prices[i]
				break
			}
		}
	}

	fast := RollingMean(prices, 14)
	slow := RollingMean(prices, 28)
	s.FastAbove = fast[n-1] > slow[n-1]
	if n > 1 {
		s.FastRising = fast[n-1] > fast[n-2]
		s.SlowRising = slow[n-1] > slow[n-2]
	}
	for i := n - 1; i > 0; i-- {
		if (fast[i] > slow[i]) != (fast[i-1] > slow[i-1]) {
			s.CrossDaysAgo = int(last.Sub(history[i].Date).Hours() / 24)
			break
		}
	}
	return s
}

// RollingMean averages the trailing w values; the first w-1 points average what is available.
func RollingMean(values []float64, w int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		lo := i - w + 1
		if lo < 0 {
			lo = 0
		}
		out[i] = stat.Mean(values[lo:i+1], nil)
	}
	return out
}

// Text renders the card as a plain-text message.
func (s Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", s.EntityID, s.Date.Format(models.DateLayout))
	fmt.Fprintf(&b, "price: %.4f\n", s.Price)
	fmt.Fprintf(&b, "forecast for %s: %.4f (%+.4f)\n", s.Date.AddDate(0, 0, 1).Format(models.DateLayout), s.Forecast, s.Forecast-s.Price)
	if !math.IsNaN(s.Score) {
		fmt.Fprintf(&b, "validation R2: %.3f\n", s.Score)
	}
	fmt.Fprintf(&b, "rising %d days, falling %d days\n", s.UpStreak, s.DownStreak)
	for _, days := range Lookbacks {
		if d, ok := s.Changes[days]; ok {
			fmt.Fprintf(&b, "change %dd: %+.4f\n", days, d)
		}
	}
	upper := "28"
	if s.FastAbove {
		upper = "14"
	}
	fmt.Fprintf(&b, "SMA%s on top, %s", upper, direction(s.FastRising, s.SlowRising))
	if s.CrossDaysAgo >= 0 {
		fmt.Fprintf(&b, ", crossed %d days ago", s.CrossDaysAgo)
	}
	return b.String()
}

func direction(fast, slow bool) string {
	switch {
	case fast && slow:
		return "both rising"
	case !fast && !slow:
		return "both falling"
	default:
		return "diverging"
	}
}

package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"RateCast/internal/domain/models"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func history(prices ...float64) []models.PriceObservation {
	out := make([]models.PriceObservation, len(prices))
	for i, p := range prices {
		out[i] = models.PriceObservation{EntityID: "nbrb", Date: day0.AddDate(0, 0, i), SellPrice: decimal.NewFromFloat(p)}
	}
	return out
}

func TestRollingMean(t *testing.T) {
	got := RollingMean([]float64{1, 2, 3, 4}, 2)
	want := []float64{1, 1.5, 2.5, 3.5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("idx %d: %v != %v", i, got[i], want[i])
		}
	}
}

func TestSummarize(t *testing.T) {
	h := history(3.0, 3.1, 3.0, 3.05, 3.1, 3.2)
	f := &models.Forecast{EntityID: "nbrb", Date: h[5].Date, LastPrice: 3.2, Value: 3.25, Score: 0.5}
	s := Summarize(h, f)
	if s.UpStreak != 3 || s.DownStreak != 0 {
		t.Fatalf("streaks %d/%d", s.UpStreak, s.DownStreak)
	}
	if d, ok := s.Changes[1]; !ok || d < 0.0999 || d > 0.1001 {
		t.Fatalf("1d change %v %v", d, ok)
	}
	if _, ok := s.Changes[30]; ok {
		t.Fatalf("30d change should be missing for a 6-day history")
	}
	text := s.Text()
	if !strings.Contains(text, "forecast for 2024-01-07: 3.2500 (+0.0500)") || !strings.Contains(text, "rising 3 days") {
		t.Fatalf("unexpected text:\n%s", text)
	}
}

func TestRenderProducesCardAndCharts(t *testing.T) {
	prices := make([]float64, 120)
	for i := range prices {
		prices[i] = 3 + 0.01*float64(i%9)
	}
	h := history(prices...)
	f := &models.Forecast{EntityID: "nbrb", Date: h[len(h)-1].Date, LastPrice: prices[len(prices)-1], Value: 3.05}

	dir := t.TempDir()
	r := NewRenderer(WithPeriods([]int{365, 60}), WithSize(400, 200), WithArchiveDir(dir))
	out, err := r.Render(context.Background(), h, f)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != 3 || out[0].Image != nil {
		t.Fatalf("expected card plus two charts, got %d", len(out))
	}
	png := []byte("\x89PNG")
	for _, a := range out[1:] {
		if !bytes.HasPrefix(a.Image, png) {
			t.Fatalf("%s is not a PNG", a.Filename)
		}
		if _, err := os.Stat(filepath.Join(dir, "2024-04-29", a.Filename)); err != nil {
			t.Fatalf("archive: %v", err)
		}
	}
}

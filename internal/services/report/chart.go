package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"RateCast/internal/domain/models"
	"RateCast/pkg/logger"
)

// DefaultHistoryDays are the chart periods, longest first.
var DefaultHistoryDays = []int{365, 180, 90, 60}

// Renderer produces the summary card and one price chart per period.
type Renderer struct {
	days   []int
	width  int
	height int
	dir    string
	l      *logger.Logger
}

type Option func(*Renderer)

// WithPeriods sets the chart look-back periods in days.
func WithPeriods(days []int) Option {
	return func(r *Renderer) {
		if len(days) > 0 {
			r.days = days
		}
	}
}

func WithSize(width, height int) Option {
	return func(r *Renderer) {
		if width > 0 && height > 0 {
			r.width, r.height = width, height
		}
	}
}

// WithArchiveDir also writes every PNG to <dir>/<date>/.
func WithArchiveDir(dir string) Option {
	return func(r *Renderer) { r.dir = dir }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Renderer) { r.l = l }
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{days: DefaultHistoryDays, width: 900, height: 350, l: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the text card first, then the charts. A period with fewer than two points,
// or one go-chart cannot draw (a flat series), is skipped.
func (r *Renderer) Render(_ context.Context, history []models.PriceObservation, f *models.Forecast) ([]models.Artifact, error) {
	out := []models.Artifact{{Caption: Summarize(history, f).Text()}}
	if len(history) < 2 {
		return out, nil
	}

	prices := make([]float64, len(history))
	dates := make([]time.Time, len(history))
	for i, o := range history {
		prices[i] = o.SellPrice.InexactFloat64()
		dates[i] = o.Date
	}
	fast := RollingMean(prices, 14)
	slow := RollingMean(prices, 28)
	last := dates[len(dates)-1]

	for _, days := range r.days {
		from := last.AddDate(0, 0, -days)
		lo := 0
		for lo < len(dates) && dates[lo].Before(from) {
			lo++
		}
		if len(dates)-lo < 2 {
			continue
		}
		png, err := r.chart(fmt.Sprintf("%s: %d days", f.EntityID, days), dates[lo:], prices[lo:], fast[lo:], slow[lo:])
		if err != nil {
			r.l.Warn("render chart", logger.String("entity", f.EntityID), logger.Int("days", days), logger.Error(err))
			continue
		}
		a := models.Artifact{
			Caption:  fmt.Sprintf("%s, %d days", f.EntityID, days),
			Image:    png,
			Filename: fmt.Sprintf("%s_%s_%03d.png", f.EntityID, last.Format(models.DateLayout), days),
		}
		r.archive(last, a)
		out = append(out, a)
	}
	return out, nil
}

func (r *Renderer) chart(title string, dates []time.Time, prices, fast, slow []float64) ([]byte, error) {
	graph := chart.Chart{
		Title:  title,
		Width:  r.width,
		Height: r.height,
		Background: chart.Style{
			FillColor: drawing.ColorFromHex("f1f1f1"),
			Padding:   chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{ValueFormatter: chart.TimeDateValueFormatter},
		YAxis: chart.YAxis{},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "price",
				XValues: dates,
				YValues: prices,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2},
			},
			chart.TimeSeries{
				Name:    "mean 14",
				XValues: dates,
				YValues: fast,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeDashArray: []float64{5, 5}},
			},
			chart.TimeSeries{
				Name:    "mean 28",
				XValues: dates,
				YValues: slow,
				Style:   chart.Style{StrokeColor: chart.ColorGreen, StrokeDashArray: []float64{2, 4}},
			},
		},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Renderer) archive(day time.Time, a models.Artifact) {
	if r.dir == "" {
		return
	}
	dir := filepath.Join(r.dir, day.Format(models.DateLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.l.Warn("report archive dir", logger.Error(err))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, a.Filename), a.Image, 0o644); err != nil {
		r.l.Warn("report archive write", logger.String("file", a.Filename), logger.Error(err))
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stageSeconds *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
	martRows     *prometheus.GaugeVec
	modelScore   *prometheus.GaugeVec
	forecast     *prometheus.GaugeVec
}

// New registers the pipeline metrics on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		stageSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratecast_stage_duration_seconds",
				Help:    "Duration of a pipeline stage for one entity",
				Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage", "entity"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratecast_errors_total",
				Help: "Pipeline failures by stage",
			},
			[]string{"stage"},
		),
		martRows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratecast_mart_rows",
				Help: "Feature rows committed for an entity in the last run",
			},
			[]string{"entity"},
		),
		modelScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratecast_model_r2",
				Help: "Validation R2 of the last fold of the latest model",
			},
			[]string{"entity"},
		),
		forecast: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ratecast_forecast_value",
				Help: "Latest next-day forecast",
			},
			[]string{"entity"},
		),
	}
}

func (r *Recorder) RecordStage(stage, entity string, seconds float64) {
	r.stageSeconds.WithLabelValues(stage, entity).Observe(seconds)
}

func (r *Recorder) RecordError(stage string) {
	r.errorsTotal.WithLabelValues(stage).Inc()
}

func (r *Recorder) RecordRows(entity string, rows int) {
	r.martRows.WithLabelValues(entity).Set(float64(rows))
}

func (r *Recorder) RecordScore(entity string, r2 float64) {
	r.modelScore.WithLabelValues(entity).Set(r2)
}

func (r *Recorder) RecordForecast(entity string, value float64) {
	r.forecast.WithLabelValues(entity).Set(value)
}

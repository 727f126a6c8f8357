package risk

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the engine. A nil *Metrics records nothing.
type Metrics struct {
	calculations  *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	duration      prometheus.Histogram
	appended      prometheus.Counter
	dropped       prometheus.Counter
	trackedAssets prometheus.Gauge
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		calculations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "varisk",
				Subsystem: "engine",
				Name:      "calculations_total",
				Help:      "Completed VaR calculations by simulation mode",
			},
			[]string{"mode"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "varisk",
				Subsystem: "engine",
				Name:      "rejections_total",
				Help:      "VaR requests rejected before simulation",
			},
			[]string{"reason"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "varisk",
				Subsystem: "engine",
				Name:      "calculation_duration_seconds",
				Help:      "Time spent holding the engine lock per calculation",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		appended: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "varisk",
				Subsystem: "store",
				Name:      "returns_appended_total",
				Help:      "Returns appended to the history store",
			},
		),
		dropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "varisk",
				Subsystem: "store",
				Name:      "returns_dropped_total",
				Help:      "Non-finite returns dropped on append",
			},
		),
		trackedAssets: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "varisk",
				Subsystem: "store",
				Name:      "tracked_assets",
				Help:      "Assets with at least one stored return",
			},
		),
	}
}

func (m *Metrics) observeCalculation(mode Mode, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.calculations.WithLabelValues(string(mode)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeAppend(appended, dropped, tracked int) {
	if m == nil {
		return
	}
	m.appended.Add(float64(appended))
	m.dropped.Add(float64(dropped))
	m.trackedAssets.Set(float64(tracked))
}

package worldline

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsInternal is a private prometheus registry for worldline's own metrics
type StatsInternal struct {
	Registry   *prometheus.Registry
	Recompute  prometheus.Histogram
	Primitives prometheus.Gauge
	Dropped    *prometheus.CounterVec
	WWW        *prometheus.CounterVec
	Frames     prometheus.Counter
}

func NewStatsInternal() *StatsInternal {
	reg := prometheus.NewRegistry()

	s := &StatsInternal{
		Registry: reg,
		Recompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worldline",
			Name:      "recompute_seconds",
			Help:      "Duration of one recompute pass",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		Primitives: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldline",
			Name:      "primitives",
			Help:      "Render primitives in the last emitted batch",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldline",
			Name:      "dropped_total",
			Help:      "Items left out of a batch, by kind",
		}, []string{"kind"}),
		WWW: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldline",
			Name:      "http_requests_total",
			Help:      "HTTP API requests",
		}, []string{"code", "method"}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldline",
			Name:      "frames_total",
			Help:      "Frames ticked by the supervisor",
		}),
	}

	reg.MustRegister(
		s.Recompute,
		s.Primitives,
		s.Dropped,
		s.WWW,
		s.Frames,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return s
}

// Handler serves this registry only
func (s *StatsInternal) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

func (s *StatsInternal) RecRecompute(seconds float64, primitives int) {
	s.Recompute.Observe(seconds)
	s.Primitives.Set(float64(primitives))
}

func (s *StatsInternal) RecDropped(kind string) {
	s.Dropped.WithLabelValues(kind).Inc()
}

func (s *StatsInternal) RecWWW(code, method string) {
	s.WWW.WithLabelValues(code, method).Inc()
}

func (s *StatsInternal) RecFrame() {
	s.Frames.Inc()
}

// Package metrics exposes Prometheus collectors for run ingestion.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors is nil-safe: every method on a nil *Collectors is a no-op, so
// callers that do not export metrics pass nil.
type Collectors struct {
	loads       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	individuals *prometheus.GaugeVec
	warnings    *prometheus.CounterVec
	reloads     *prometheus.CounterVec
}

// NewCollectors registers the ingestion collectors with reg. A nil reg uses
// a private registry, which keeps tests independent of the default one.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Collectors{
		// Labels: status (ok or an error kind)
		loads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evovis",
			Subsystem: "ingest",
			Name:      "loads_total",
			Help:      "Run loads by outcome",
		}, []string{"status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "evovis",
			Subsystem: "ingest",
			Name:      "load_duration_seconds",
			Help:      "Wall time of a run load",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		individuals: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "evovis",
			Subsystem: "ingest",
			Name:      "individuals",
			Help:      "Individuals in the most recent successful load of a run",
		}, []string{"run"}),
		warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evovis",
			Subsystem: "ingest",
			Name:      "warnings_total",
			Help:      "Advisory warnings raised while loading runs",
		}, []string{"run"}),
		// Labels: run, status (ok, error)
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evovis",
			Subsystem: "watch",
			Name:      "reloads_total",
			Help:      "Watcher-triggered reloads by outcome",
		}, []string{"run", "status"}),
	}
}

// ObserveLoad records one finished load. status is "ok" or the error kind.
func (c *Collectors) ObserveLoad(status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.loads.WithLabelValues(status).Inc()
	c.duration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (c *Collectors) ObserveRun(runID string, individuals, warnings int) {
	if c == nil {
		return
	}
	c.individuals.WithLabelValues(runID).Set(float64(individuals))
	if warnings > 0 {
		c.warnings.WithLabelValues(runID).Add(float64(warnings))
	}
}

func (c *Collectors) ObserveReload(runID string, ok bool) {
	if c == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	c.reloads.WithLabelValues(runID, status).Inc()
}

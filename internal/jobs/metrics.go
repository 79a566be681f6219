// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors shared by every job handler. A nil *Metrics
// runs jobs without recording anything.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer
// shares one instance on the default Prometheus registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Run executes fn as one run of job. fn reports how many records it
// touched; the count is only recorded for successful runs.
func (m *Metrics) Run(job string, fn func() (int, error)) error {
	if m == nil {
		_, err := fn()
		return err
	}
	start := m.now()
	items, err := fn()
	m.duration.WithLabelValues(job).Observe(m.now().Sub(start).Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "failure").Inc()
		return err
	}
	m.runs.WithLabelValues(job, "success").Inc()
	if items > 0 {
		m.items.WithLabelValues(job).Add(float64(items))
	}
	m.lastSuccess.WithLabelValues(job).Set(float64(m.now().Unix()))
	return nil
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Job runs by job name and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Wall time of job runs.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_job_items_total",
			Help: "Records touched by successful job runs: cache keys warmed, lines closed, sessions purged.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		now: time.Now,
	}
	registerer.MustRegister(m.runs, m.duration, m.items, m.lastSuccess)
	return m
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromSink records job observations in Prometheus metrics.
type PromSink struct {
	jobs      *prometheus.CounterVec
	duration  prometheus.Histogram
	usages    prometheus.Counter
	unmatched prometheus.Counter
}

// NewPromSink registers job metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_jobs_total",
		Help: "Total number of finished reconciliation jobs",
	}, []string{"state"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconciler_job_duration_seconds",
		Help:    "Wall-clock time from job pickup to terminal state",
		Buckets: prometheus.DefBuckets,
	})
	usages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_usage_rows_total",
		Help: "Usage rows scanned by successful jobs",
	})
	unmatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconciler_unmatched_rows_total",
		Help: "Usage rows found outside every service interval",
	})

	var err error
	if jobs, err = register(reg, jobs); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if usages, err = register(reg, usages); err != nil {
		return nil, err
	}
	if unmatched, err = register(reg, unmatched); err != nil {
		return nil, err
	}

	return &PromSink{jobs: jobs, duration: duration, usages: usages, unmatched: unmatched}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordJob implements Sink.
func (s *PromSink) RecordJob(obs JobObservation) error {
	s.jobs.WithLabelValues(obs.State).Inc()
	s.duration.Observe(obs.Duration.Seconds())
	if obs.Usages > 0 {
		s.usages.Add(float64(obs.Usages))
	}
	if obs.Unmatched > 0 {
		s.unmatched.Add(float64(obs.Unmatched))
	}
	return nil
}

// Handler exposes the metrics gathered by g. A nil gatherer serves the
// default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ Sink = (*PromSink)(nil)

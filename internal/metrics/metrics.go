// Package metrics exposes Prometheus telemetry for the operator registry,
// the pool lifecycle engine and the timeout sweeper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the metrics surface consumed by the registry, engine and sweeper.
type Recorder interface {
	RecordRegistration(err error)
	RecordTransition(op, from, to string)
	RecordRejection(op, reason string)
	RecordCrash(from string)
	RecordSweep(duration time.Duration, crashed, failed int)
}

// Collector implements Recorder on a private Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	registrations *prometheus.CounterVec
	operators     prometheus.Gauge

	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	pools       *prometheus.GaugeVec
	crashes     *prometheus.CounterVec

	sweeps        prometheus.Counter
	sweepCrashed  prometheus.Counter
	sweepFailures prometheus.Counter
	sweepLatency  prometheus.Histogram
}

// NewCollector creates a collector. An empty namespace defaults to "teepool".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "teepool"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Operator registration attempts by result",
		},
		[]string{"result"},
	)

	c.operators = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "operators",
			Help:      "Number of registered operators",
		},
	)

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "transitions_total",
			Help:      "Accepted pool operations by resulting phase change",
		},
		[]string{"op", "from", "to"},
	)

	c.rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "rejections_total",
			Help:      "Rejected pool operations by error kind",
		},
		[]string{"op", "reason"},
	)

	c.pools = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "pools",
			Help:      "Number of pools currently in each phase",
		},
		[]string{"phase"},
	)

	c.crashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "crashes_total",
			Help:      "Pools crashed after a missed deadline, by phase at crash time",
		},
		[]string{"from"},
	)

	c.sweeps = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "runs_total",
		Help:      "Timeout sweeps executed",
	})
	c.sweepCrashed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "crashed_total",
		Help:      "Pools crashed by the sweeper",
	})
	c.sweepFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "failures_total",
		Help:      "Timeout checks that failed unexpectedly",
	})
	c.sweepLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sweeper",
		Name:      "duration_seconds",
		Help:      "Time taken by one sweep",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	})

	c.registry.MustRegister(
		c.registrations,
		c.operators,
		c.transitions,
		c.rejections,
		c.pools,
		c.crashes,
		c.sweeps,
		c.sweepCrashed,
		c.sweepFailures,
		c.sweepLatency,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRegistration counts a registration attempt.
func (c *Collector) RecordRegistration(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.registrations.WithLabelValues(result).Inc()
	if err == nil {
		c.operators.Inc()
	}
}

// RecordTransition counts an accepted operation and moves the pool between
// phase gauges. An empty from means the pool is new.
func (c *Collector) RecordTransition(op, from, to string) {
	c.transitions.WithLabelValues(op, from, to).Inc()
	if from == to {
		return
	}
	if from != "" {
		c.pools.WithLabelValues(from).Dec()
	}
	c.pools.WithLabelValues(to).Inc()
}

// RecordRejection counts a rejected operation.
func (c *Collector) RecordRejection(op, reason string) {
	c.rejections.WithLabelValues(op, reason).Inc()
}

// RecordCrash counts a pool crash.
func (c *Collector) RecordCrash(from string) {
	c.crashes.WithLabelValues(from).Inc()
}

// RecordSweep records one sweeper pass.
func (c *Collector) RecordSweep(duration time.Duration, crashed, failed int) {
	c.sweeps.Inc()
	c.sweepCrashed.Add(float64(crashed))
	c.sweepFailures.Add(float64(failed))
	c.sweepLatency.Observe(duration.Seconds())
}

// NoOpCollector discards all metrics.
type NoOpCollector struct{}

func (NoOpCollector) RecordRegistration(error)              {}
func (NoOpCollector) RecordTransition(string, string, string) {}
func (NoOpCollector) RecordRejection(string, string)        {}
func (NoOpCollector) RecordCrash(string)                    {}
func (NoOpCollector) RecordSweep(time.Duration, int, int)   {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = NoOpCollector{}
)

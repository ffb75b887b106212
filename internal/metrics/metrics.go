// Package metrics exposes occupancy and sweep counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements occupancy.Recorder and sweeper.Recorder on Prometheus metrics.
type Collector struct {
	operations      *prometheus.CounterVec
	partialFailures *prometheus.CounterVec
	sweeps          *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	evictions       prometheus.Counter
	evictionFails   prometheus.Counter
	rosterRepairs   prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slackspot_operations_total",
			Help: "Occupancy operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		partialFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slackspot_partial_failures_total",
			Help: "Operations that failed after one of their writes had landed.",
		}, []string{"operation"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slackspot_sweeps_total",
			Help: "Expiry sweep ticks by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "slackspot_sweep_duration_seconds",
			Help:    "Duration of expiry sweeps that scanned the user collection.",
			Buckets: prometheus.DefBuckets,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slackspot_sweep_evictions_total",
			Help: "Expired check-ins ended by the sweeper.",
		}),
		evictionFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slackspot_sweep_eviction_failures_total",
			Help: "Expired check-ins the sweeper failed to end.",
		}),
		rosterRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slackspot_sweep_roster_repairs_total",
			Help: "Stale roster entries removed by the sweeper.",
		}),
	}

	reg.MustRegister(
		c.operations,
		c.partialFailures,
		c.sweeps,
		c.sweepDuration,
		c.evictions,
		c.evictionFails,
		c.rosterRepairs,
	)

	return c
}

func (c *Collector) ObserveOperation(operation, outcome string) {
	c.operations.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) PartialFailure(operation string) {
	c.partialFailures.WithLabelValues(operation).Inc()
}

// ObserveSweep counts one tick by result.
func (c *Collector) ObserveSweep(result string) {
	c.sweeps.WithLabelValues(result).Inc()
}

// ObserveSweepDuration times a completed scan.
func (c *Collector) ObserveSweepDuration(d time.Duration) {
	c.sweepDuration.Observe(d.Seconds())
}

func (c *Collector) Evicted()        { c.evictions.Inc() }
func (c *Collector) EvictionFailed() { c.evictionFails.Inc() }
func (c *Collector) RosterRepaired() { c.rosterRepairs.Inc() }

// Handler returns the HTTP handler Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

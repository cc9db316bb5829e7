package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LockWaitDuration measures how long a caller waited to acquire the
	// per-spec lock before either succeeding or timing out.
	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "task_registry_lock_wait_seconds",
			Help:    "Time spent waiting to acquire the per-spec lock",
			Buckets: prometheus.DefBuckets,
		},
	)

	LockTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "task_registry_lock_timeouts_total",
			Help: "Total number of lock acquisitions that timed out",
		},
	)

	LockForceUnlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "task_registry_lock_force_unlocks_total",
			Help: "Total number of operator-triggered force unlocks",
		},
	)

	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_registry_mutations_total",
			Help: "Total number of events emitted by mutating registry operations, by event type",
		},
		[]string{"operation"},
	)

	MutationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_registry_mutation_duration_seconds",
			Help:    "Time taken to complete a mutating registry operation, lock included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	EventsAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "task_registry_events_appended_total",
			Help: "Total number of events appended to per-spec event logs",
		},
	)

	EventRotationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "task_registry_event_rotations_total",
			Help: "Total number of event log rotations performed",
		},
	)

	SyncResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_registry_plan_sync_total",
			Help: "Total number of plan syncs by direction and outcome",
		},
		[]string{"direction", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		LockWaitDuration,
		LockTimeoutsTotal,
		LockForceUnlocksTotal,
		MutationsTotal,
		MutationDuration,
		EventsAppendedTotal,
		EventRotationsTotal,
		SyncResultsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for an embedding process to
// mount, e.g. mux.Handle("/metrics", metrics.Handler()).
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, started now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

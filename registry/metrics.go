package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"necrocode/taskset"
)

// Metric label values for operation outcomes.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics exposes Prometheus collectors that report registry activity.
type Metrics struct {
	opDuration     *prometheus.HistogramVec
	opFailures     *prometheus.CounterVec
	lockWait       prometheus.Histogram
	lockTimeouts   prometheus.Counter
	eventsAppended *prometheus.CounterVec
	planSyncTasks  *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once so
// instantiating several registries (tests, multi-root tools) never trips a
// duplicate registration panic.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Supply a fresh registry when unique collector instances are required (for
// example in tests). Registration errors other than AlreadyRegistered panic,
// mirroring promauto and surfacing configuration bugs early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	opDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "necrocode",
			Subsystem: "registry",
			Name:      "operation_duration_seconds",
			Help:      "Duration of each registry operation.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	opFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "necrocode",
			Subsystem: "registry",
			Name:      "operation_failures_total",
			Help:      "Registry operations that returned an error, by failure category.",
		},
		[]string{"operation", "reason"},
	)
	lockWait := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "necrocode",
			Subsystem: "registry",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a per-spec lock.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	lockTimeouts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "necrocode",
			Subsystem: "registry",
			Name:      "lock_timeouts_total",
			Help:      "Lock acquisitions abandoned after the configured wait.",
		},
	)
	eventsAppended := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "necrocode",
			Subsystem: "registry",
			Name:      "events_appended_total",
			Help:      "Events appended to per-spec logs, by event type.",
		},
		[]string{"event_type"},
	)
	planSyncTasks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "necrocode",
			Subsystem: "registry",
			Name:      "plan_sync_tasks_total",
			Help:      "Tasks touched by plan synchronization, by action.",
		},
		[]string{"action"},
	)

	collectors := []prometheus.Collector{
		opDuration, opFailures, lockWait, lockTimeouts, eventsAppended, planSyncTasks,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				// Reuse the existing collector when it matches the expected type.
				switch target := collector.(type) {
				case *prometheus.HistogramVec:
					opDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case *prometheus.CounterVec:
					switch target {
					case opFailures:
						opFailures = already.ExistingCollector.(*prometheus.CounterVec)
					case eventsAppended:
						eventsAppended = already.ExistingCollector.(*prometheus.CounterVec)
					case planSyncTasks:
						planSyncTasks = already.ExistingCollector.(*prometheus.CounterVec)
					}
				case prometheus.Histogram:
					lockWait = already.ExistingCollector.(prometheus.Histogram)
				case prometheus.Counter:
					lockTimeouts = already.ExistingCollector.(prometheus.Counter)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		opDuration:     opDuration,
		opFailures:     opFailures,
		lockWait:       lockWait,
		lockTimeouts:   lockTimeouts,
		eventsAppended: eventsAppended,
		planSyncTasks:  planSyncTasks,
	}
}

// ObserveOperation records one operation's duration with its outcome label.
func (m *Metrics) ObserveOperation(operation, status string, duration time.Duration) {
	if m == nil || m.opDuration == nil {
		return
	}
	m.opDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// IncFailure increments the failure counter for an operation and reason.
func (m *Metrics) IncFailure(operation, reason string) {
	if m == nil || m.opFailures == nil {
		return
	}
	m.opFailures.WithLabelValues(operation, reason).Inc()
}

// ObserveLockWait records time spent acquiring a per-spec lock.
func (m *Metrics) ObserveLockWait(duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(duration.Seconds())
}

// IncLockTimeout counts one abandoned lock acquisition.
func (m *Metrics) IncLockTimeout() {
	if m == nil || m.lockTimeouts == nil {
		return
	}
	m.lockTimeouts.Inc()
}

// IncEventAppended counts one event written to a per-spec log.
func (m *Metrics) IncEventAppended(eventType string) {
	if m == nil || m.eventsAppended == nil {
		return
	}
	m.eventsAppended.WithLabelValues(eventType).Inc()
}

// AddPlanSyncTasks counts tasks touched by a plan sync under one action
// label (added, updated, removed).
func (m *Metrics) AddPlanSyncTasks(action string, n int) {
	if m == nil || m.planSyncTasks == nil || n <= 0 {
		return
	}
	m.planSyncTasks.WithLabelValues(action).Add(float64(n))
}

// reasonFor maps an error to its failure-category label.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, taskset.ErrNotFound):
		return "not_found"
	case errors.Is(err, taskset.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, taskset.ErrCircularDependency):
		return "circular_dependency"
	case errors.Is(err, taskset.ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, taskset.ErrSync):
		return "sync"
	case errors.Is(err, taskset.ErrIntegrity):
		return "integrity"
	case errors.Is(err, taskset.ErrIO):
		return "io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// Package metrics wraps Prometheus collectors for the memory, task, and
// I/O subsystems.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps every collector corert exposes.
type Metrics struct {
	registry *prometheus.Registry

	poolExhaustedTotal   *prometheus.CounterVec
	allocationFailedTotal *prometheus.CounterVec
	arenaResetsTotal     *prometheus.CounterVec
	buddySplitsTotal     prometheus.Counter
	buddyMergesTotal     prometheus.Counter

	tasksCompletedTotal *prometheus.CounterVec
	stealAttemptsTotal  *prometheus.CounterVec
	stealSuccessTotal   *prometheus.CounterVec
	taskPoolUtilization *prometheus.GaugeVec

	ioQueueDelay   *prometheus.HistogramVec
	ioExecDuration *prometheus.HistogramVec
	ioRequestsLive *prometheus.GaugeVec
}

var defaultBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500}

var active *Metrics

// Init builds and registers every collector under namespace. Safe to call
// once per process; subsequent calls replace the package-level singleton.
func Init(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		poolExhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_exhausted_total",
			Help:      "Total reservation/task-pool exhaustion events, by pool kind",
		}, []string{"pool_kind"}),

		allocationFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_failed_total",
			Help:      "Total failed OS memory reservation/commit calls, by operation",
		}, []string{"operation"}),

		arenaResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arena_resets_total",
			Help:      "Total arena Reset calls, by arena kind",
		}, []string{"arena_kind"}),

		buddySplitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buddy_splits_total",
			Help:      "Total buddy-allocator block splits",
		}),

		buddyMergesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buddy_merges_total",
			Help:      "Total buddy-allocator block merges",
		}),

		tasksCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_completed_total",
			Help:      "Total tasks whose work_count reached zero, by pool index",
		}, []string{"pool"}),

		stealAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steal_attempts_total",
			Help:      "Total deque steal attempts, by worker",
		}, []string{"worker"}),

		stealSuccessTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steal_success_total",
			Help:      "Total successful deque steals, by worker",
		}, []string{"worker"}),

		taskPoolUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_pool_utilization",
			Help:      "Fraction of a task pool's slots currently USED",
		}, []string{"pool"}),

		ioQueueDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "io_queue_delay_ms",
			Help:      "Time from submit to launch for I/O requests, in milliseconds",
			Buckets:   defaultBuckets,
		}, []string{"type"}),

		ioExecDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "io_exec_duration_ms",
			Help:      "Time from launch to finish for I/O requests, in milliseconds",
			Buckets:   defaultBuckets,
		}, []string{"type"}),

		ioRequestsLive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "io_requests_live",
			Help:      "Requests currently allocated from a request pool",
		}, []string{"pool"}),
	}

	registry.MustRegister(
		m.poolExhaustedTotal, m.allocationFailedTotal, m.arenaResetsTotal,
		m.buddySplitsTotal, m.buddyMergesTotal,
		m.tasksCompletedTotal, m.stealAttemptsTotal, m.stealSuccessTotal, m.taskPoolUtilization,
		m.ioQueueDelay, m.ioExecDuration, m.ioRequestsLive,
	)

	active = m
	return m
}

// Active returns the process-wide Metrics set up by Init, or nil if Init
// was never called; callers should treat a nil Active() as "metrics
// disabled" rather than panicking.
func Active() *Metrics { return active }

func (m *Metrics) RecordPoolExhausted(poolKind string) {
	if m == nil {
		return
	}
	m.poolExhaustedTotal.WithLabelValues(poolKind).Inc()
}

func (m *Metrics) RecordAllocationFailed(operation string) {
	if m == nil {
		return
	}
	m.allocationFailedTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordArenaReset(arenaKind string) {
	if m == nil {
		return
	}
	m.arenaResetsTotal.WithLabelValues(arenaKind).Inc()
}

func (m *Metrics) RecordBuddySplit() {
	if m == nil {
		return
	}
	m.buddySplitsTotal.Inc()
}

func (m *Metrics) RecordBuddyMerge() {
	if m == nil {
		return
	}
	m.buddyMergesTotal.Inc()
}

func (m *Metrics) RecordTaskCompleted(pool string) {
	if m == nil {
		return
	}
	m.tasksCompletedTotal.WithLabelValues(pool).Inc()
}

func (m *Metrics) RecordStealAttempt(worker string, success bool) {
	if m == nil {
		return
	}
	m.stealAttemptsTotal.WithLabelValues(worker).Inc()
	if success {
		m.stealSuccessTotal.WithLabelValues(worker).Inc()
	}
}

func (m *Metrics) SetTaskPoolUtilization(pool string, fraction float64) {
	if m == nil {
		return
	}
	m.taskPoolUtilization.WithLabelValues(pool).Set(fraction)
}

func (m *Metrics) ObserveIOQueueDelay(reqType string, ms float64) {
	if m == nil {
		return
	}
	m.ioQueueDelay.WithLabelValues(reqType).Observe(ms)
}

func (m *Metrics) ObserveIOExecDuration(reqType string, ms float64) {
	if m == nil {
		return
	}
	m.ioExecDuration.WithLabelValues(reqType).Observe(ms)
}

func (m *Metrics) SetIORequestsLive(pool string, n float64) {
	if m == nil {
		return
	}
	m.ioRequestsLive.WithLabelValues(pool).Set(n)
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

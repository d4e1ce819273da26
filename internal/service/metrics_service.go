package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/loan-desk-api/internal/models"
)

// Transition outcomes recorded by the request lifecycle.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

const metricsNamespace = "loan_desk"

// timing accumulates a count and a total duration for average reporting.
type timing struct {
	count uint64
	nanos uint64
}

func (t *timing) add(d time.Duration) {
	atomic.AddUint64(&t.count, 1)
	atomic.AddUint64(&t.nanos, uint64(d.Nanoseconds()))
}

func (t *timing) averageMs() (uint64, float64) {
	count := atomic.LoadUint64(&t.count)
	if count == 0 {
		return 0, 0
	}
	total := atomic.LoadUint64(&t.nanos)
	return count, float64(total) / float64(count) / float64(time.Millisecond)
}

// tally is a keyed counter mirrored into snapshots.
type tally struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func (t *tally) inc(key string) {
	t.mu.Lock()
	if t.counts == nil {
		t.counts = make(map[string]uint64)
	}
	t.counts[key]++
	t.mu.Unlock()
}

func (t *tally) copy() map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(t.counts))
	for key, value := range t.counts {
		out[key] = value
	}
	return out
}

// MetricsService owns the Prometheus registry and keeps the in-process totals
// served by the admin summary.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration  *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	cacheLatency  *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	materialize   *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	realtime      prometheus.Gauge

	httpTiming        timing
	materializeTiming timing
	cacheHits         uint64
	cacheMisses       uint64
	realtimeClients   int64
	transitionTally   tally
	notificationTally tally
}

// NewMetricsService registers the desk's collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &MetricsService{registry: registry}
	m.httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	m.cacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "quota_cache_lookups_total",
		Help:      "Quota cache lookups by result.",
	}, []string{"result"})
	m.cacheLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "quota_cache_duration_seconds",
		Help:      "Quota cache round trips by operation.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	}, []string{"op"})
	m.transitions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "request_transitions_total",
		Help:      "Request lifecycle transitions by outcome.",
	}, []string{"transition", "outcome"})
	m.materialize = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "loan_materialization_duration_seconds",
		Help:      "Time spent in the loan materialization transaction.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
	m.notifications = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "notifications_total",
		Help:      "Borrower notifications by kind and outcome.",
	}, []string{"kind", "outcome"})
	m.realtime = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "realtime_clients",
		Help:      "Open realtime feed connections.",
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "goroutines",
		Help:      "Live goroutines.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
	m.httpTiming.add(duration)
}

// RecordCacheOperation records a quota cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		atomic.AddUint64(&m.cacheHits, 1)
	} else {
		atomic.AddUint64(&m.cacheMisses, 1)
	}
	m.cacheLookups.WithLabelValues(result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(duration.Seconds())
}

// ObserveCacheWrite records a quota cache store.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(duration.Seconds())
}

// RecordTransition counts a lifecycle transition attempt (create, approve, reject, cancel, walk_up).
func (m *MetricsService) RecordTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition, outcome).Inc()
	m.transitionTally.inc(transition + ":" + outcome)
}

// ObserveMaterialization records the duration of a loan transaction.
func (m *MetricsService) ObserveMaterialization(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.materialize.WithLabelValues(outcome).Observe(duration.Seconds())
	m.materializeTiming.add(duration)
}

// RecordNotification counts a notification dispatch attempt.
func (m *MetricsService) RecordNotification(kind models.NotificationKind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(kind), outcome).Inc()
	m.notificationTally.inc(string(kind) + ":" + outcome)
}

// SetRealtimeClients updates the connected client gauge.
func (m *MetricsService) SetRealtimeClients(n int) {
	if m == nil {
		return
	}
	atomic.StoreInt64(&m.realtimeClients, int64(n))
	m.realtime.Set(float64(n))
}

// Snapshot returns the totals for the admin summary endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests, avgRequest := m.httpTiming.averageMs()
	materializations, avgMaterialize := m.materializeTiming.averageMs()
	hits := atomic.LoadUint64(&m.cacheHits)
	misses := atomic.LoadUint64(&m.cacheMisses)

	snapshot := models.SystemMetrics{
		HTTPRequests:             requests,
		AverageRequestDurationMs: avgRequest,
		QuotaCacheHits:           hits,
		QuotaCacheMisses:         misses,
		Transitions:              m.transitionTally.copy(),
		Notifications:            m.notificationTally.copy(),
		Materializations:         materializations,
		AverageMaterializationMs: avgMaterialize,
		RealtimeClients:          atomic.LoadInt64(&m.realtimeClients),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
	if lookups := hits + misses; lookups > 0 {
		snapshot.QuotaCacheHitRatio = float64(hits) / float64(lookups)
	}
	return snapshot
}

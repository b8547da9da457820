package observability

import (
	"time"

	"github.com/lendgrid/export-profiles/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics of the profile engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "profiles_operation_duration_seconds",
				Help:    "Duration of profile operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiles_operations_total",
				Help: "Total profile operations by outcome.",
			},
			[]string{"operation", "status"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiles_store_errors_total",
				Help: "Total errors returned by the profile store.",
			},
			[]string{"backend"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiles_cache_hits_total",
				Help: "Total resolution cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "profiles_cache_misses_total",
				Help: "Total resolution cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordOperation records duration and outcome of a service operation.
func (m *Metrics) RecordOperation(operation string, d time.Duration, err error) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(backend string) {
	m.storeErrors.WithLabelValues(backend).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// Snapshot gathers the current counters for GET /v1/metrics/engine.
func (m *Metrics) Snapshot() *domain.EngineMetrics {
	var total, failed float64
	if families, err := m.Registry.Gather(); err == nil {
		for _, f := range families {
			if f.GetName() != "profiles_operations_total" {
				continue
			}
			for _, metric := range f.GetMetric() {
				v := metric.GetCounter().GetValue()
				total += v
				for _, l := range metric.GetLabel() {
					if l.GetName() == "status" && l.GetValue() == "error" {
						failed += v
					}
				}
			}
		}
	}

	hits := getCounterValue(m.cacheHits, "resolution")
	misses := getCounterValue(m.cacheMisses, "resolution")

	errorRate := float64(0)
	if total > 0 {
		errorRate = failed / total
	}
	cacheHitRate := float64(0)
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	var storeErrors float64
	for _, backend := range []string{"memory", "supabase", "postgres"} {
		storeErrors += getCounterValue(m.storeErrors, backend)
	}

	return &domain.EngineMetrics{
		TotalOperations: int64(total),
		ErrorRate:       errorRate,
		StoreErrors:     int64(storeErrors),
		CacheHitRate:    cacheHitRate,
		Period:          "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

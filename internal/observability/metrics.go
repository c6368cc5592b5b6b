package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apolmig/smartqr-backend/internal/data/db"
	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

// Metrics exposes the data-access layer's behavior in Prometheus form:
// per-operation outcomes and latency, retry attempts, consistency probe
// results, cache effectiveness and pool health.
type Metrics struct {
	registry *prometheus.Registry

	opTotal   *prometheus.CounterVec
	opLatency *prometheus.HistogramVec

	retryAttempts *prometheus.CounterVec

	consistencyProbes   *prometheus.CounterVec
	consistencyAttempts *prometheus.HistogramVec

	cacheEvents *prometheus.CounterVec
	cacheSize   prometheus.Gauge

	poolUp      *prometheus.GaugeVec
	poolLatency *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		opTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartqr_repository_operations_total",
			Help: "Repository operations by name and outcome.",
		}, []string{"op", "outcome"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartqr_repository_operation_duration_seconds",
			Help:    "Repository operation latency in seconds by name.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartqr_retry_attempts_total",
			Help: "Database attempts by operation and result.",
		}, []string{"op", "result"}),
		consistencyProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartqr_consistency_probes_total",
			Help: "Post-write consistency probes by name and outcome.",
		}, []string{"probe", "outcome"}),
		consistencyAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smartqr_consistency_probe_attempts",
			Help:    "Attempts needed before a write became observable.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}, []string{"probe"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartqr_entity_cache_events_total",
			Help: "Entity cache hits, misses and invalidations by entity kind.",
		}, []string{"entity", "event"}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smartqr_entity_cache_entries",
			Help: "Resident entity cache entries.",
		}),
		poolUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartqr_db_pool_up",
			Help: "Connection pool probe result (1 healthy, 0 unhealthy).",
		}, []string{"pool"}),
		poolLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smartqr_db_pool_probe_latency_ms",
			Help: "Connection pool probe latency in milliseconds.",
		}, []string{"pool"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.opTotal, m.opLatency,
		m.retryAttempts,
		m.consistencyProbes, m.consistencyAttempts,
		m.cacheEvents, m.cacheSize,
		m.poolUp, m.poolLatency,
	)
	return m
}

// Handler serves the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveOperation(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.opTotal.WithLabelValues(op, outcome).Inc()
	m.opLatency.WithLabelValues(op).Observe(d.Seconds())
}

// ReportAttempt satisfies retry.Reporter.
func (m *Metrics) ReportAttempt(op string, attempt int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.retryAttempts.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveConsistency(probe string, consistent bool, attempts int) {
	if m == nil {
		return
	}
	outcome := "consistent"
	if !consistent {
		outcome = "timed_out"
	}
	m.consistencyProbes.WithLabelValues(probe, outcome).Inc()
	m.consistencyAttempts.WithLabelValues(probe).Observe(float64(attempts))
}

func (m *Metrics) CacheHit(entity string)        { m.cacheEvent(entity, "hit") }
func (m *Metrics) CacheMiss(entity string)       { m.cacheEvent(entity, "miss") }
func (m *Metrics) CacheInvalidate(entity string) { m.cacheEvent(entity, "invalidate") }

func (m *Metrics) cacheEvent(entity, event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(entity, event).Inc()
}

func (m *Metrics) SetCacheSize(n int) {
	if m == nil {
		return
	}
	m.cacheSize.Set(float64(n))
}

func (m *Metrics) setPoolHealth(pool string, h db.PoolHealth) {
	up := 0.0
	if h.Healthy {
		up = 1.0
	}
	m.poolUp.WithLabelValues(pool).Set(up)
	m.poolLatency.WithLabelValues(pool).Set(float64(h.LatencyMs))
}

// StartPoolCollector probes the pools on a fixed interval and publishes the
// outcomes as gauges.
func (m *Metrics) StartPoolCollector(ctx context.Context, log *logger.Logger, dbs *db.Service, interval time.Duration) {
	if m == nil || dbs == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h := dbs.Probe(ctx)
				m.setPoolHealth("write", h.Write)
				m.setPoolHealth("read", h.Read)
				m.setPoolHealth("raw", h.Raw)
				if log != nil && (!h.Write.Healthy || !h.Read.Healthy) {
					log.Warn("pool probe unhealthy", "write", h.Write.Healthy, "read", h.Read.Healthy)
				}
			}
		}
	}()
}

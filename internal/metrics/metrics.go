// Package metrics provides Prometheus-based metrics collection for gvmbridge.
// It tracks scan orchestration, GMP protocol round-trips, registry store
// activity and HTTP API traffic for operational monitoring.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all gvmbridge metrics
	namespace = "gvmbridge"

	// Subsystems
	subsystemScan     = "scan"
	subsystemGMP      = "gmp"
	subsystemRegistry = "registry"
	subsystemSystem   = "system"
	subsystemAPI      = "api"
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	// Scan orchestration metrics
	scansTriggered *prometheus.CounterVec
	pollsTotal     *prometheus.CounterVec
	resultsFetched *prometheus.CounterVec
	activeScans    prometheus.Gauge

	// GMP protocol metrics
	gmpCommands     *prometheus.CounterVec
	gmpDuration     *prometheus.HistogramVec
	gmpErrors       *prometheus.CounterVec
	sessionsOpened  *prometheus.CounterVec
	sessionDuration prometheus.Histogram

	// Registry metrics
	registryRecords prometheus.Gauge
	storeQueries    *prometheus.CounterVec

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// New creates a new metrics instance with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		startTime: time.Now(),
		registry:  registry,
	}

	m.initScanMetrics()
	m.initGMPMetrics()
	m.initRegistryMetrics()
	m.initAPIMetrics()
	m.initSystemMetrics()

	m.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// initScanMetrics initializes scan orchestration metrics
func (m *Metrics) initScanMetrics() {
	m.scansTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "triggered_total",
			Help:      "Total number of scan trigger requests by outcome",
		},
		[]string{"status"},
	)

	m.pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "polls_total",
			Help:      "Total number of status polls by observed status",
		},
		[]string{"status"},
	)

	m.resultsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "results_fetched_total",
			Help:      "Total number of result fetches by outcome",
		},
		[]string{"status"},
	)

	m.activeScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Number of scans currently pending or running",
		},
	)
}

// initGMPMetrics initializes protocol round-trip metrics
func (m *Metrics) initGMPMetrics() {
	m.gmpCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemGMP,
			Name:      "commands_total",
			Help:      "Total number of GMP commands sent by command and status",
		},
		[]string{"command", "status"},
	)

	m.gmpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemGMP,
			Name:      "command_duration_seconds",
			Help:      "Duration of GMP command round-trips in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
		},
		[]string{"command"},
	)

	m.gmpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemGMP,
			Name:      "errors_total",
			Help:      "Total number of GMP errors by command and error type",
		},
		[]string{"command", "error_type"},
	)

	m.sessionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemGMP,
			Name:      "sessions_total",
			Help:      "Total number of engine sessions opened by outcome",
		},
		[]string{"status"},
	)

	m.sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemGMP,
			Name:      "session_duration_seconds",
			Help:      "Lifetime of engine sessions in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
	)
}

// initRegistryMetrics initializes registry metrics
func (m *Metrics) initRegistryMetrics() {
	m.registryRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemRegistry,
			Name:      "records",
			Help:      "Number of scan records held in the registry",
		},
	)

	m.storeQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRegistry,
			Name:      "store_queries_total",
			Help:      "Total number of registry store queries by operation and status",
		},
		[]string{"operation", "status"},
	)
}

// initAPIMetrics initializes API-related metrics
func (m *Metrics) initAPIMetrics() {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method", "path"},
	)

	m.httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "errors_total",
			Help:      "Total number of HTTP errors by method, path and error type",
		},
		[]string{"method", "path", "error_type"},
	)
}

// initSystemMetrics initializes system-related metrics
func (m *Metrics) initSystemMetrics() {
	m.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	m.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	m.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.scansTriggered)
	m.registry.MustRegister(m.pollsTotal)
	m.registry.MustRegister(m.resultsFetched)
	m.registry.MustRegister(m.activeScans)

	m.registry.MustRegister(m.gmpCommands)
	m.registry.MustRegister(m.gmpDuration)
	m.registry.MustRegister(m.gmpErrors)
	m.registry.MustRegister(m.sessionsOpened)
	m.registry.MustRegister(m.sessionDuration)

	m.registry.MustRegister(m.registryRecords)
	m.registry.MustRegister(m.storeQueries)

	m.registry.MustRegister(m.httpRequests)
	m.registry.MustRegister(m.httpDuration)
	m.registry.MustRegister(m.httpErrors)

	m.registry.MustRegister(m.memoryUsage)
	m.registry.MustRegister(m.goroutines)
	m.registry.MustRegister(m.uptime)
}

// Scan Metrics Methods

// IncrementScansTriggered increments the scan trigger counter.
func (m *Metrics) IncrementScansTriggered(status string) {
	m.scansTriggered.WithLabelValues(status).Inc()
}

// IncrementPolls increments the poll counter with the observed status.
func (m *Metrics) IncrementPolls(status string) {
	m.pollsTotal.WithLabelValues(status).Inc()
}

// IncrementResultsFetched increments the result fetch counter.
func (m *Metrics) IncrementResultsFetched(status string) {
	m.resultsFetched.WithLabelValues(status).Inc()
}

// SetActiveScans sets the number of pending/running scans.
func (m *Metrics) SetActiveScans(count int) {
	m.activeScans.Set(float64(count))
}

// GMP Metrics Methods

// IncrementGMPCommands increments the GMP command counter.
func (m *Metrics) IncrementGMPCommands(command, status string) {
	m.gmpCommands.WithLabelValues(command, status).Inc()
}

// RecordGMPDuration records a GMP round-trip duration.
func (m *Metrics) RecordGMPDuration(command string, duration time.Duration) {
	m.gmpDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// IncrementGMPErrors increments the GMP error counter.
func (m *Metrics) IncrementGMPErrors(command, errorType string) {
	m.gmpErrors.WithLabelValues(command, errorType).Inc()
}

// IncrementSessions increments the session counter by outcome.
func (m *Metrics) IncrementSessions(status string) {
	m.sessionsOpened.WithLabelValues(status).Inc()
}

// RecordSessionDuration records a session lifetime.
func (m *Metrics) RecordSessionDuration(duration time.Duration) {
	m.sessionDuration.Observe(duration.Seconds())
}

// Registry Metrics Methods

// SetRegistryRecords sets the number of records in the registry.
func (m *Metrics) SetRegistryRecords(count int) {
	m.registryRecords.Set(float64(count))
}

// IncrementStoreQueries increments the registry store query counter.
func (m *Metrics) IncrementStoreQueries(operation, status string) {
	m.storeQueries.WithLabelValues(operation, status).Inc()
}

// API Metrics Methods

// IncrementHTTPRequests increments HTTP request counter.
func (m *Metrics) IncrementHTTPRequests(method, path, status string) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration records HTTP request duration.
func (m *Metrics) RecordHTTPDuration(method, path string, duration time.Duration) {
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncrementHTTPErrors increments HTTP error counter.
func (m *Metrics) IncrementHTTPErrors(method, path, errorType string) {
	m.httpErrors.WithLabelValues(method, path, errorType).Inc()
}

// System Metrics Methods

// UpdateSystemMetrics updates all system metrics with current values.
func (m *Metrics) UpdateSystemMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.memoryUsage.Set(float64(memStats.Alloc))
	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.uptime.Set(time.Since(m.startTime).Seconds())

	m.lastUpdate = time.Now()
}

// GetUptime returns the application uptime.
func (m *Metrics) GetUptime() time.Duration {
	return time.Since(m.startTime)
}

// GetLastUpdate returns the last metrics update time.
func (m *Metrics) GetLastUpdate() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdate
}

// StartPeriodicUpdates starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Update immediately
	m.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateSystemMetrics()
		}
	}
}

// Handler returns an HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying Prometheus registry, used by tests
// to gather and inspect collected metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Global instance for easy access
var globalMetrics *Metrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global metrics instance.
func GetGlobalMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = New()
	})
	return globalMetrics
}

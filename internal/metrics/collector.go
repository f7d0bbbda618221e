package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/hdfsclient/internal/buffer"
	"github.com/objectfs/hdfsclient/pkg/errors"
)

// Collector records native round trips made by connections and file handles.
// A nil or disabled Collector accepts every call and records nothing.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferSize      *prometheus.HistogramVec
	activeConnections prometheus.Gauge
	openFiles         prometheus.Gauge
	errorCounter      *prometheus.CounterVec
	bufferGets        prometheus.CounterFunc
	bufferOversized   prometheus.CounterFunc

	// Internal tracking
	operations  map[string]*OperationMetrics
	connections int64
	files       int64
	lastReset   time.Time
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Path      string            `yaml:"path"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
	Labels    map[string]string `yaml:"labels"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: "hdfs",
		Subsystem: "client",
		Labels:    make(map[string]string),
	}
}

// OperationMetrics tracks metrics for a specific operation type
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalBytes    int64         `json:"total_bytes"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector with its own registry.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	collector := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

func (c *Collector) enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled
}

// Registry exposes the Prometheus registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if !c.enabled() {
		return nil
	}
	return c.registry
}

// RecordOperation records one native call with the bytes it moved.
func (c *Collector) RecordOperation(operation string, duration time.Duration, bytes int64, success bool) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	metrics, exists := c.operations[operation]
	if !exists {
		metrics = &OperationMetrics{}
		c.operations[operation] = metrics
	}
	metrics.Count++
	metrics.TotalDuration += duration
	metrics.TotalBytes += bytes
	if !success {
		metrics.Errors++
	}
	metrics.LastOperation = time.Now()
	metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.Count)
	c.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if bytes > 0 {
		c.transferSize.WithLabelValues(operation).Observe(float64(bytes))
	}
}

// RecordError counts err under its error code.
func (c *Collector) RecordError(operation string, err error) {
	if !c.enabled() || err == nil {
		return
	}

	code := string(errors.Code(err))
	if code == "" {
		code = "other"
	}
	c.errorCounter.WithLabelValues(operation, code).Inc()
}

// AddActiveConnections adjusts the live connection gauge by delta.
func (c *Collector) AddActiveConnections(delta int) {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	c.connections += int64(delta)
	c.mu.Unlock()
	c.activeConnections.Add(float64(delta))
}

// AddOpenFiles adjusts the open file handle gauge by delta.
func (c *Collector) AddOpenFiles(delta int) {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	c.files += int64(delta)
	c.mu.Unlock()
	c.openFiles.Add(float64(delta))
}

// GetMetrics returns a snapshot of the internal counters.
func (c *Collector) GetMetrics() map[string]interface{} {
	metrics := make(map[string]interface{})
	if !c.enabled() {
		return metrics
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		operations[k] = *v
	}

	metrics["operations"] = operations
	metrics["active_connections"] = c.connections
	metrics["open_files"] = c.files
	metrics["last_reset"] = c.lastReset
	metrics["uptime"] = time.Since(c.lastReset)
	metrics["read_buffers"] = buffer.Stats()

	return metrics
}

// ResetMetrics clears the internal counters. Prometheus series are kept.
func (c *Collector) ResetMetrics() {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

// Handler serves the Prometheus endpoint at the configured path and a plain
// text operation summary at /debug/operations.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if !c.enabled() {
		mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics disabled", http.StatusNotFound)
		})
		return mux
	}
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)
	return mux
}

func (c *Collector) initMetrics() {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: c.config.Labels,
		}
	}

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("native_calls_total", "Total number of native client calls")),
		[]string{"operation", "status"},
	)

	durationOpts := opts("native_call_duration_seconds", "Duration of native client calls in seconds")
	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   durationOpts.Namespace,
			Subsystem:   durationOpts.Subsystem,
			Name:        durationOpts.Name,
			Help:        durationOpts.Help,
			ConstLabels: durationOpts.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
		[]string{"operation"},
	)

	sizeOpts := opts("transfer_size_bytes", "Bytes moved per read or write call")
	c.transferSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   sizeOpts.Namespace,
			Subsystem:   sizeOpts.Subsystem,
			Name:        sizeOpts.Name,
			Help:        sizeOpts.Help,
			ConstLabels: sizeOpts.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(512, 2, 10), // 512B to 256KB
		},
		[]string{"operation"},
	)

	c.activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts(opts("active_connections", "Number of connected sessions")),
	)
	c.openFiles = prometheus.NewGauge(
		prometheus.GaugeOpts(opts("open_files", "Number of open file handles")),
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("errors_total", "Total number of errors by code")),
		[]string{"operation", "code"},
	)

	c.bufferGets = prometheus.NewCounterFunc(
		prometheus.CounterOpts(opts("read_buffer_gets_total", "Read buffers taken from the shared pool")),
		func() float64 { return float64(buffer.Stats().Gets) },
	)
	c.bufferOversized = prometheus.NewCounterFunc(
		prometheus.CounterOpts(opts("read_buffer_oversized_total", "Read buffers allocated outside the pool")),
		func() float64 { return float64(buffer.Stats().Oversized) },
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.transferSize,
		c.activeConnections,
		c.openFiles,
		c.errorCounter,
		c.bufferGets,
		c.bufferOversized,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("HDFS Client Operations\n")
	writef("======================\n\n")
	writef("Uptime: %v\n", time.Since(c.lastReset).Round(time.Second))
	writef("Connections: %d  Open files: %d\n\n", c.connections, c.files)

	if len(c.operations) == 0 {
		writef("No operations recorded.\n")
		return
	}

	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}
	sort.Strings(names)

	writef("%-20s %10s %10s %14s %12s\n", "Operation", "Count", "Errors", "Avg Duration", "Bytes")
	for _, name := range names {
		op := c.operations[name]
		writef("%-20s %10d %10d %14v %12d\n", name, op.Count, op.Errors, op.AvgDuration, op.TotalBytes)
	}
}

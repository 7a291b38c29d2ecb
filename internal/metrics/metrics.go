package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all the application metrics
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Storage operation metrics
	StorageOperationTotal    *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec

	// Section save metrics
	SectionSaveTotal *prometheus.CounterVec

	// Lifecycle transition metrics
	StatusTransitionTotal *prometheus.CounterVec

	// Submission metrics
	SubmissionTotal    *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec

	// Snapshot metrics
	SnapshotBuildTotal    *prometheus.CounterVec
	SnapshotBuildDuration *prometheus.HistogramVec

	// Schema validation metrics
	SchemaValidationTotal *prometheus.CounterVec
}

// Global metrics instance with mutex for thread safety
var (
	globalMetrics *Metrics
	metricsMutex  sync.Mutex
)

// NewMetrics creates a new Metrics instance with all required metrics
func NewMetrics() *Metrics {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()

	// Return existing instance if already created
	if globalMetrics != nil {
		return globalMetrics
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		StorageOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		}, []string{"operation", "status"}),

		StorageOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),

		SectionSaveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entry_section_saves_total",
			Help: "Total number of section sub-saves by outcome",
		}, []string{"section", "status"}),

		StatusTransitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entry_status_transitions_total",
			Help: "Total number of entry lifecycle transitions",
		}, []string{"from", "to"}),

		SubmissionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entry_submissions_total",
			Help: "Total number of arrival-card submission attempts",
		}, []string{"card_type", "status"}),

		SubmissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entry_submission_duration_seconds",
			Help:    "Arrival-card submission duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"card_type", "status"}),

		SnapshotBuildTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entry_snapshot_builds_total",
			Help: "Total number of snapshot builds",
		}, []string{"reason", "status"}),

		SnapshotBuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "entry_snapshot_build_duration_seconds",
			Help:    "Snapshot build duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"reason", "status"}),

		SchemaValidationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entry_schema_validation_total",
			Help: "Total number of section payload validations",
		}, []string{"section", "status"}),
	}

	// Register metrics with the default registry
	registerMetrics(m)

	globalMetrics = m
	return m
}

// registerMetrics registers all metrics with the default registry
func registerMetrics(m *Metrics) {
	registerOrGet(m.HTTPRequestTotal)
	registerOrGet(m.HTTPRequestDuration)
	registerOrGet(m.StorageOperationTotal)
	registerOrGet(m.StorageOperationDuration)
	registerOrGet(m.SectionSaveTotal)
	registerOrGet(m.StatusTransitionTotal)
	registerOrGet(m.SubmissionTotal)
	registerOrGet(m.SubmissionDuration)
	registerOrGet(m.SnapshotBuildTotal)
	registerOrGet(m.SnapshotBuildDuration)
	registerOrGet(m.SchemaValidationTotal)
}

// registerOrGet tries to register a metric, returns the existing one if already registered
func registerOrGet(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
	}
	return c
}

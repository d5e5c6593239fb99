package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_events_processed_total",
			Help: "Total number of events routed to a sink, by outcome (count)",
		},
		[]string{"outcome"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrich_pipeline_duration_ms",
			Help:    "Duration of one event's full pipeline run in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"outcome"},
	)

	EnrichmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrich_enrichment_duration_ms",
			Help:    "Duration of one enrichment's Run call in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"enrichment"},
	)

	EnrichmentFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_enrichment_failures_total",
			Help: "Total number of enrichment failures, by enrichment and failure kind (count)",
		},
		[]string{"enrichment", "kind"},
	)

	SchemaValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_schema_validation_failures_total",
			Help: "Total number of schema validation failures, by cause (count)",
		},
		[]string{"cause"},
	)

	AssetRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_asset_refresh_total",
			Help: "Total number of AssetManager refresh cycles, by outcome (count)",
		},
		[]string{"outcome"},
	)

	RegistrySwapsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrich_registry_swaps_total",
			Help: "Total number of successful EnrichmentRegistry swaps (count)",
		},
	)

	RegistryBuildFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_registry_build_failures_total",
			Help: "Total number of failed Registry builds, by trigger (count)",
		},
		[]string{"trigger"},
	)

	PauseGateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrich_pause_gate_duration_ms",
			Help:    "Duration the PauseGate stayed closed during an asset swap, in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	WorkQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrich_work_queue_depth",
			Help: "Number of events currently admitted past the bounded work queue (count)",
		},
	)

	SinkQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "enrich_sink_queue_depth",
			Help: "Number of writes currently in flight on a sink, by sink name (count)",
		},
		[]string{"sink"},
	)

	CheckpointLagSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "enrich_checkpoint_lag_seconds",
			Help: "Age of the oldest uncommitted record on a partition, in seconds",
		},
		[]string{"partition"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_database_queries_total",
			Help: "Total number of database queries issued by enrichment providers (count)",
		},
		[]string{"provider", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrich_database_query_duration_ms",
			Help:    "Duration of enrichment-provider database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"provider", "operation"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_admin_rate_limit_requests_total",
			Help: "Total number of admin HTTP requests checked against the rate limiter (count)",
		},
		[]string{"status"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(EnrichmentDuration)
	prometheus.MustRegister(EnrichmentFailuresTotal)
	prometheus.MustRegister(SchemaValidationFailuresTotal)
}

func RegisterRegistryMetrics() {
	prometheus.MustRegister(AssetRefreshTotal)
	prometheus.MustRegister(RegistrySwapsTotal)
	prometheus.MustRegister(RegistryBuildFailuresTotal)
	prometheus.MustRegister(PauseGateDuration)
}

func RegisterRuntimeMetrics() {
	prometheus.MustRegister(WorkQueueDepth)
	prometheus.MustRegister(SinkQueueDepth)
	prometheus.MustRegister(CheckpointLagSeconds)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterProviderMetrics() {
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func RegisterAdminServerMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func IncEventsProcessed(outcome string) {
	EventsProcessedTotal.WithLabelValues(outcome).Inc()
}

func ObservePipelineDuration(outcome string, d time.Duration) {
	PipelineDuration.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}

func ObserveEnrichmentDuration(enrichmentName string, d time.Duration) {
	EnrichmentDuration.WithLabelValues(enrichmentName).Observe(float64(d.Milliseconds()))
}

func IncEnrichmentFailure(enrichmentName, kind string) {
	EnrichmentFailuresTotal.WithLabelValues(enrichmentName, kind).Inc()
}

func IncSchemaValidationFailure(cause string) {
	SchemaValidationFailuresTotal.WithLabelValues(cause).Inc()
}

func IncAssetRefresh(outcome string) {
	AssetRefreshTotal.WithLabelValues(outcome).Inc()
}

func IncRegistryBuildFailure(trigger string) {
	RegistryBuildFailuresTotal.WithLabelValues(trigger).Inc()
}

func ObservePauseGateDuration(d time.Duration) {
	PauseGateDuration.Observe(float64(d.Milliseconds()))
}

func SetWorkQueueDepth(n int) {
	WorkQueueDepth.Set(float64(n))
}

func SetSinkQueueDepth(sink string, n int) {
	SinkQueueDepth.WithLabelValues(sink).Set(float64(n))
}

func SetCheckpointLag(partition string, lag time.Duration) {
	CheckpointLagSeconds.WithLabelValues(partition).Set(lag.Seconds())
}

func IncDatabaseQuery(provider, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(provider, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(provider, operation string, d time.Duration) {
	DatabaseQueryDuration.WithLabelValues(provider, operation).Observe(float64(d.Milliseconds()))
}

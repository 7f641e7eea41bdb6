package telemetry

// SLI metric names used for instrumentation.
const (
	// Latency
	MetricAPILatencyP50 = "api.latency.p50"
	MetricAPILatencyP95 = "api.latency.p95"
	MetricAPILatencyP99 = "api.latency.p99"

	// Throughput
	MetricRequestsPerSec = "api.requests_per_second"

	// Pipeline freshness
	MetricDetectionAge = "detection.pass_age_seconds"
	MetricTileFetchLag = "imagery.tile_fetch_latency"
	MetricEmbeddingLag = "embedding.compute_latency"

	// Availability
	MetricUptime = "service.uptime_percentage"

	// Business
	MetricRegionsIngested = "business.regions_ingested"
	MetricSearchesServed  = "business.searches_served"
)

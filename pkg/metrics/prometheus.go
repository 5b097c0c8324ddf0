// Package metrics provides Prometheus metrics for the duel service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the duel service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Core Business Metrics - discovery and tournament progress
	pairsPresented    *prometheus.CounterVec
	votesRecorded     *prometheus.CounterVec
	sessionsCompleted *prometheus.CounterVec
	longestStreak     prometheus.Histogram
	eligibleSetSize   prometheus.Histogram
	candidatePoolSize prometheus.Gauge
	candidatesCreated *prometheus.CounterVec
	invalidRounds     prometheus.Counter
	tokenReplays      prometheus.Counter

	// Generator Metrics - option generation through the LLM client
	generatorRequests  *prometheus.CounterVec
	generatorLatency   *prometheus.HistogramVec
	generatorFallbacks *prometheus.CounterVec
	generatorTokens    *prometheus.CounterVec
	generatorRetries   *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec

	// Repository Metrics - store latency and snapshots
	repositoryUpdateLatency          prometheus.Histogram
	repositoryQueryLatency           prometheus.Histogram
	repositorySnapshotDuration       prometheus.Histogram
	repositorySnapshotLastUnix       prometheus.Gauge
	repositorySnapshotCount          prometheus.Counter
	repositorySnapshotLastDurationMs prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "duel",
		subsystem:        "discovery",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often periodic gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // comprehensive metrics initialization
	auto := promauto.With(m.registry)
	streakBuckets := prometheus.LinearBuckets(0, 1, 11)
	latencyBuckets := []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

	// Core Business Metrics
	m.pairsPresented = auto.NewCounterVec(
		m.counterOpts("pairs_presented_total", "Total number of pairs presented by phase and selection path"),
		[]string{"phase", "path"},
	)
	m.votesRecorded = auto.NewCounterVec(
		m.counterOpts("votes_recorded_total", "Total number of votes recorded by phase and kind"),
		[]string{"phase", "kind"},
	)
	m.sessionsCompleted = auto.NewCounterVec(
		m.counterOpts("sessions_completed_total", "Total number of sessions that reached a terminal state"),
		[]string{"phase"},
	)
	m.longestStreak = auto.NewHistogram(
		m.histogramOpts("tournament_longest_streak", "Longest winning streak per finished tournament", streakBuckets),
	)
	m.eligibleSetSize = auto.NewHistogram(
		m.histogramOpts("tournament_eligible_set_size", "Eligible set size when a tournament starts", prometheus.ExponentialBuckets(1, 2, 10)),
	)
	m.candidatePoolSize = auto.NewGauge(
		m.gaugeOpts("candidate_pool_size", "Current number of candidates in the pool"),
	)
	m.candidatesCreated = auto.NewCounterVec(
		m.counterOpts("candidates_created_total", "Total number of candidates created by origin"),
		[]string{"origin"},
	)
	m.invalidRounds = auto.NewCounter(
		m.counterOpts("invalid_round_state_total", "Total number of advance calls rejected as stale or after completion"),
	)
	m.tokenReplays = auto.NewCounter(
		m.counterOpts("token_replays_total", "Total number of continuation tokens resolved more than once"),
	)

	// Generator Metrics
	m.generatorRequests = auto.NewCounterVec(
		m.counterOpts("generator_requests_total", "Total number of generator requests by provider and outcome"),
		[]string{"provider", "outcome"},
	)
	m.generatorLatency = auto.NewHistogramVec(
		m.histogramOpts("generator_latency_milliseconds", "Generator request latency in milliseconds", latencyBuckets),
		[]string{"provider"},
	)
	m.generatorFallbacks = auto.NewCounterVec(
		m.counterOpts("generator_fallbacks_total", "Total number of exploration attempts that fell back to exploitation"),
		[]string{"reason"},
	)
	m.generatorTokens = auto.NewCounterVec(
		m.counterOpts("generator_tokens_total", "Total number of tokens consumed by the generator"),
		[]string{"provider", "direction"},
	)
	m.generatorRetries = auto.NewCounterVec(
		m.counterOpts("generator_retries_total", "Total number of retried generator requests"),
		[]string{"provider"},
	)
	m.breakerState = auto.NewGaugeVec(
		m.gaugeOpts("generator_circuit_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)"),
		[]string{"provider"},
	)

	// Repository Metrics
	m.repositoryUpdateLatency = auto.NewHistogram(
		m.histogramOpts("repository_update_latency_milliseconds", "Repository update operation latency in milliseconds", nil),
	)
	m.repositoryQueryLatency = auto.NewHistogram(
		m.histogramOpts("repository_query_latency_milliseconds", "Repository query operation latency in milliseconds", nil),
	)
	m.repositorySnapshotDuration = auto.NewHistogram(
		m.histogramOpts("repository_snapshot_duration_milliseconds", "Repository snapshot write duration in milliseconds", nil),
	)
	m.repositorySnapshotLastUnix = auto.NewGauge(
		m.gaugeOpts("repository_snapshot_last_unix", "Unix timestamp of the last repository snapshot"),
	)
	m.repositorySnapshotCount = auto.NewCounter(
		m.counterOpts("repository_snapshot_count_total", "Total number of repository snapshots written"),
	)
	m.repositorySnapshotLastDurationMs = auto.NewGauge(
		m.gaugeOpts("repository_snapshot_last_duration_milliseconds", "Last repository snapshot duration in milliseconds"),
	)

	// HTTP Performance Metrics
	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"},
	)

	// Error Metrics
	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(
		m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"),
	)
	m.systemGoroutineCount = auto.NewGauge(
		m.gaugeOpts("system_goroutine_count", "Number of goroutines"),
	)
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// RecordPairPresented increments the presented pairs counter.
// path is one of exploit, explore, submission or tournament.
func RecordPairPresented(phase, path string) {
	if !globalManager.enabled {
		return
	}
	globalManager.pairsPresented.WithLabelValues(phase, path).Inc()
}

// RecordVote increments the votes counter. kind is choice or neither.
func RecordVote(phase, kind string) {
	if !globalManager.enabled {
		return
	}
	globalManager.votesRecorded.WithLabelValues(phase, kind).Inc()
}

// RecordSessionCompleted increments the completed sessions counter.
func RecordSessionCompleted(phase string) {
	if !globalManager.enabled {
		return
	}
	globalManager.sessionsCompleted.WithLabelValues(phase).Inc()
}

// RecordLongestStreak observes the longest streak of a finished tournament.
func RecordLongestStreak(streak int) {
	if !globalManager.enabled {
		return
	}
	globalManager.longestStreak.Observe(float64(streak))
}

// RecordEligibleSetSize observes the eligible set size of a new tournament.
func RecordEligibleSetSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.eligibleSetSize.Observe(float64(size))
}

// UpdateCandidatePoolSize sets the candidate pool gauge.
func UpdateCandidatePoolSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.candidatePoolSize.Set(float64(size))
}

// RecordCandidateCreated increments the created candidates counter.
func RecordCandidateCreated(origin string) {
	if !globalManager.enabled {
		return
	}
	globalManager.candidatesCreated.WithLabelValues(origin).Inc()
}

// RecordInvalidRoundState increments the invalid round state counter.
func RecordInvalidRoundState() {
	if !globalManager.enabled {
		return
	}
	globalManager.invalidRounds.Inc()
}

// RecordTokenReplay increments the replayed continuation token counter.
func RecordTokenReplay() {
	if !globalManager.enabled {
		return
	}
	globalManager.tokenReplays.Inc()
}

// Generator Metrics Functions.

// RecordGeneratorRequest records one generator call and its latency.
func RecordGeneratorRequest(provider, outcome string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.generatorRequests.WithLabelValues(provider, outcome).Inc()
	globalManager.generatorLatency.WithLabelValues(provider).Observe(latencyMs)
}

// RecordGeneratorFallback increments the fallback counter for the given reason.
func RecordGeneratorFallback(reason string) {
	if !globalManager.enabled {
		return
	}
	globalManager.generatorFallbacks.WithLabelValues(reason).Inc()
}

// RecordGeneratorTokens adds consumed input and output tokens.
func RecordGeneratorTokens(provider string, input, output int) {
	if !globalManager.enabled {
		return
	}
	if input > 0 {
		globalManager.generatorTokens.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		globalManager.generatorTokens.WithLabelValues(provider, "output").Add(float64(output))
	}
}

// RecordGeneratorRetry increments the retry counter.
func RecordGeneratorRetry(provider string) {
	if !globalManager.enabled {
		return
	}
	globalManager.generatorRetries.WithLabelValues(provider).Inc()
}

// UpdateCircuitState sets the circuit breaker state gauge.
func UpdateCircuitState(provider string, state int) {
	if !globalManager.enabled {
		return
	}
	globalManager.breakerState.WithLabelValues(provider).Set(float64(state))
}

// Repository Metrics Functions.

// RecordRepositoryUpdateLatency records repository update operation latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository query operation latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordRepositorySnapshot records a completed snapshot write.
func RecordRepositorySnapshot(durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.repositorySnapshotDuration.Observe(durationMs)
	globalManager.repositorySnapshotLastDurationMs.Set(durationMs)
	globalManager.repositorySnapshotLastUnix.Set(float64(time.Now().Unix()))
	globalManager.repositorySnapshotCount.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RefreshInterval returns the refresh interval of the global manager.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

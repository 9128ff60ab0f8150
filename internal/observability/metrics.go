package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hybridsolver"

type moduleMetrics struct {
	keyRotations     prometheus.Counter
	keyExhaustions   prometheus.Counter
	keyResets        prometheus.Counter
	keysAvailable    prometheus.Gauge
	keyLimiterWaited prometheus.Histogram

	cacheRequests  *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	cacheSize      prometheus.Gauge

	httpAttempts *prometheus.CounterVec
	httpRetries  prometheus.Counter
	httpDuration *prometheus.HistogramVec

	bridgeInFlight prometheus.Gauge
	bridgeTasks    *prometheus.CounterVec
	bridgeDuration prometheus.Histogram

	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	fallbacks        prometheus.Counter

	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec

	submissions *prometheus.CounterVec
	runPasses   prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			keyRotations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "key_rotations_total",
				Help: "Cursor advances caused by rotate().",
			}),
			keyExhaustions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "key_exhaustions_total",
				Help: "Keys marked exhausted after a quota error.",
			}),
			keyResets: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "key_exhaustion_resets_total",
				Help: "Exhaustion resets after cooldown.",
			}),
			keysAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace, Name: "keys_available",
				Help: "Keys not currently marked exhausted.",
			}),
			keyLimiterWaited: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace, Name: "key_limiter_wait_seconds",
				Help:    "Time spent waiting on the per-pool request limiter.",
				Buckets: prometheus.DefBuckets,
			}),
			cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Name: "cache_requests_total",
				Help: "Cache lookups by result (hit, miss).",
			}, []string{"result"}),
			cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "cache_evictions_total",
				Help: "Entries evicted to stay within capacity.",
			}),
			cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace, Name: "cache_entries",
				Help: "Live cache entries.",
			}),
			httpAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Name: "http_attempts_total",
				Help: "Outbound HTTP attempts by method and outcome.",
			}, []string{"method", "outcome"}),
			httpRetries: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "http_retries_total",
				Help: "Outbound HTTP attempts retried after a transport failure.",
			}),
			httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Name: "http_request_duration_seconds",
				Help:    "Outbound HTTP request duration including retries.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
			bridgeInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace, Name: "bridge_in_flight",
				Help: "Work items currently running on the execution bridge.",
			}),
			bridgeTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Name: "bridge_tasks_total",
				Help: "Bridge submissions by status.",
			}, []string{"status"}),
			bridgeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace, Name: "bridge_task_duration_seconds",
				Help:    "Bridge work item duration.",
				Buckets: prometheus.DefBuckets,
			}),
			providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Name: "provider_calls_total",
				Help: "LLM provider calls by provider and error kind (ok on success).",
			}, []string{"provider", "kind"}),
			providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Name: "provider_call_duration_seconds",
				Help:    "LLM provider call duration.",
				Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 40, 80},
			}, []string{"provider"}),
			fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "provider_fallbacks_total",
				Help: "Steps that fell through to the secondary provider.",
			}),
			toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Name: "tool_executions_total",
				Help: "Tool executions by tool and status.",
			}, []string{"tool", "status"}),
			toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace, Name: "tool_execution_duration_seconds",
				Help:    "Tool execution duration by tool.",
				Buckets: prometheus.DefBuckets,
			}, []string{"tool"}),
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace, Name: "answer_submissions_total",
				Help: "Answer submissions by outcome (correct, wrong).",
			}, []string{"outcome"}),
			runPasses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace, Name: "run_passes_total",
				Help: "Solver passes over the question chain, including retries.",
			}),
		}

		prometheus.MustRegister(
			m.keyRotations, m.keyExhaustions, m.keyResets, m.keysAvailable, m.keyLimiterWaited,
			m.cacheRequests, m.cacheEvictions, m.cacheSize,
			m.httpAttempts, m.httpRetries, m.httpDuration,
			m.bridgeInFlight, m.bridgeTasks, m.bridgeDuration,
			m.providerCalls, m.providerDuration, m.fallbacks,
			m.toolExecutions, m.toolDuration,
			m.submissions, m.runPasses,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

func RecordKeyRotation() { getMetrics().keyRotations.Inc() }

func RecordKeyExhausted() { getMetrics().keyExhaustions.Inc() }

func RecordKeyReset() { getMetrics().keyResets.Inc() }

func SetKeysAvailable(n int) { getMetrics().keysAvailable.Set(float64(n)) }

func RecordLimiterWait(d time.Duration) { getMetrics().keyLimiterWaited.Observe(d.Seconds()) }

func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	getMetrics().cacheRequests.WithLabelValues(result).Inc()
}

func RecordCacheEviction() { getMetrics().cacheEvictions.Inc() }

func SetCacheSize(n int) { getMetrics().cacheSize.Set(float64(n)) }

// RecordHTTPAttempt counts one attempt. outcome is "ok", "status" or "transport".
func RecordHTTPAttempt(method, outcome string) {
	getMetrics().httpAttempts.WithLabelValues(method, outcome).Inc()
}

func RecordHTTPRetry() { getMetrics().httpRetries.Inc() }

func RecordHTTPRequest(method string, d time.Duration) {
	getMetrics().httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

func SetBridgeInFlight(n int) { getMetrics().bridgeInFlight.Set(float64(n)) }

func RecordBridgeTask(d time.Duration, success bool) {
	m := getMetrics()
	m.bridgeTasks.WithLabelValues(status(success)).Inc()
	m.bridgeDuration.Observe(d.Seconds())
}

func RecordBridgeRejected() { getMetrics().bridgeTasks.WithLabelValues("rejected").Inc() }

func RecordProviderCall(provider, kind string, d time.Duration) {
	m := getMetrics()
	m.providerCalls.WithLabelValues(provider, kind).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func RecordFallback() { getMetrics().fallbacks.Inc() }

func RecordToolExecution(tool string, d time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutions.WithLabelValues(tool, status(success)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func RecordSubmission(correct bool) {
	outcome := "wrong"
	if correct {
		outcome = "correct"
	}
	getMetrics().submissions.WithLabelValues(outcome).Inc()
}

func RecordRunPass() { getMetrics().runPasses.Inc() }

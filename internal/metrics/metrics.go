package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service's collectors; /metrics serves only this registry.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "growvia",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "growvia",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	walletOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "growvia",
			Subsystem: "wallet",
			Name:      "operations_total",
			Help:      "Wallet operations by kind and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	payoutTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "growvia",
			Subsystem: "payout",
			Name:      "transitions_total",
			Help:      "Payout request state transitions.",
		},
		[]string{"status"},
	)

	otpVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "growvia",
			Subsystem: "payout",
			Name:      "otp_verifications_total",
			Help:      "Payout method OTP verification attempts.",
		},
		[]string{"result"},
	)

	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "growvia",
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Commission ledger entries by resulting status.",
		},
		[]string{"status"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "growvia",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job executions.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "growvia",
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Duration of background job executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		walletOperations,
		payoutTransitions,
		otpVerifications,
		ledgerEntries,
		jobRuns,
		jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func RecordWalletOperation(operation string, err error) {
	walletOperations.WithLabelValues(operation, outcome(err)).Inc()
}

func RecordPayoutTransition(status string) {
	payoutTransitions.WithLabelValues(status).Inc()
}

func RecordOTPVerification(success bool) {
	result := "invalid"
	if success {
		result = "verified"
	}
	otpVerifications.WithLabelValues(result).Inc()
}

func RecordLedgerEntry(status string) {
	ledgerEntries.WithLabelValues(status).Inc()
}

func RecordJob(job string, duration time.Duration, err error) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobRuns.WithLabelValues(job, strconv.FormatBool(err == nil)).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

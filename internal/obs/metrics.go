package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// TokensIssued counts issued access tokens by purpose.
	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_tokens_issued_total",
			Help: "Total number of issued access tokens.",
		},
		[]string{"purpose"},
	)

	// TokenChecks counts token validations by purpose and outcome.
	TokenChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_token_checks_total",
			Help: "Total number of access token validations.",
		},
		[]string{"purpose", "outcome"},
	)

	// EmailsSent counts outgoing emails by template and outcome.
	EmailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total number of attempted outgoing emails.",
		},
		[]string{"template", "outcome"},
	)
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Init registers all metrics in the default registry. It is safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			TokensIssued, TokenChecks, EmailsSent,
		)
	})
}

// Handler serves the metrics in the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument measures request counts, latencies and in-flight requests.
// The path label is the matched ServeMux pattern, so wildcard values
// (such as tokens) never end up in a label.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)
		path := CanonicalPath(r.Pattern)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath turns a ServeMux pattern into a path label. The method
// prefix is stripped and unmatched requests are grouped together.
func CanonicalPath(pattern string) string {
	if pattern == "" {
		return "unmatched"
	}

	for i, c := range pattern {
		if c == ' ' {
			return pattern[i+1:]
		}
		if c == '/' {
			break
		}
	}

	return pattern
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap allows http.ResponseController to reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

package gateway

import (
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled requests by operation and status code
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aab",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Control plane requests by operation and status code",
		},
		[]string{"operation", "code"},
	)

	// BackendFailures counts storage calls that failed
	BackendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aab",
			Subsystem: "gateway",
			Name:      "backend_failures_total",
			Help:      "Storage backend calls that returned an error",
		},
		[]string{"operation"},
	)

	// RequestDuration tracks handler latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aab",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Time spent handling control plane requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

type statusRecorder struct {
	nethttp.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(nethttp.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// instrument records count and latency of every request to next.
func instrument(operation string, next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: nethttp.StatusOK}
		next.ServeHTTP(rec, r)
		RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(operation, strconv.Itoa(rec.statusCode)).Inc()
	})
}

// Package metrics provides Prometheus instrumentation for the auction engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsTotal counts bids submitted across all contracts.
	BidsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockyard_bids_total",
		Help: "Total number of bids submitted",
	})

	// AdjudicationsTotal counts adjudication attempts by outcome.
	AdjudicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockyard_adjudications_total",
		Help: "Total adjudication attempts",
	}, []string{"outcome"})

	// SealingDuration tracks proof-of-work sealing time per block.
	SealingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockyard_sealing_duration_seconds",
		Help:    "Proof-of-work sealing duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	})

	// ChainHeight tracks the ledger's block count including genesis.
	ChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockyard_chain_height",
		Help: "Number of blocks in the ledger",
	})

	// SettlementVolume accumulates adjudicated contract amounts.
	SettlementVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockyard_settlement_volume_total",
		Help: "Cumulative settled amount across adjudications",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockyard_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockyard_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockyard_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label to keep parity with the router.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

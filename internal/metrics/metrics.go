// Package metrics provides Prometheus instrumentation for the casino
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RoundsResolved counts resolved game rounds, partitioned by game
	// and outcome.
	RoundsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcasino_rounds_resolved_total",
		Help: "Total number of resolved game rounds",
	}, []string{"game", "won"})

	// RoundLatency is the commit-to-reveal round-trip latency.
	RoundLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentcasino_round_latency_seconds",
		Help:    "Round resolution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"game"})

	// BankrollExposure tracks the bankroll guard's current aggregate
	// exposure.
	BankrollExposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcasino_bankroll_exposure_wei",
		Help: "Current aggregate house exposure locked against open bets, in wei",
	})

	// BankrollAvailable tracks the bankroll guard's remaining headroom.
	BankrollAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcasino_bankroll_available_wei",
		Help: "Remaining bankroll headroom before the exposure ceiling, in wei",
	})

	// ChannelsOpened counts channels opened.
	ChannelsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agentcasino_channels_opened_total",
		Help: "Total number of payment channels opened",
	})

	// ChannelsClosed counts channels closed, partitioned by whether the
	// close followed a dispute.
	ChannelsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcasino_channels_closed_total",
		Help: "Total number of payment channels closed",
	}, []string{"disputed"})

	// OpenChannels tracks the number of currently open channels.
	OpenChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcasino_open_channels",
		Help: "Number of currently open payment channels",
	})

	// SettlementChallenges counts settlement challenges, partitioned by
	// outcome.
	SettlementChallenges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcasino_settlement_challenges_total",
		Help: "Total number of settlement dispute challenges",
	}, []string{"outcome"})

	// WebSocketClients tracks connected event-hub subscribers.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcasino_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// InsuranceFundBalance tracks the insurance treasury balance.
	InsuranceFundBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentcasino_insurance_fund_balance_wei",
		Help: "Current insurance fund balance, in wei",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentcasino_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentcasino_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Package metrics provides Prometheus metrics for the lead auction worker
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Queue metrics
	MessagesConsumed *prometheus.CounterVec
	LeadsClaimed     prometheus.Counter
	ClaimConflicts   prometheus.Counter

	// Auction metrics
	AuctionsTotal   *prometheus.CounterVec
	AuctionDuration prometheus.Histogram
	BuyersEligible  prometheus.Histogram
	BidsReceived    *prometheus.CounterVec
	BidAmount       *prometheus.HistogramVec

	// Buyer call metrics
	BuyerRequests *prometheus.CounterVec
	BuyerLatency  *prometheus.HistogramVec
	BuyerErrors   *prometheus.CounterVec
	BuyerTimeouts *prometheus.CounterVec

	// Delivery metrics
	DeliveriesTotal *prometheus.CounterVec
	CapExhausted    *prometheus.CounterVec

	// HTTP metrics for the health/metrics sidecar
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "leadflow"
	}

	m := &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_messages_total",
				Help:      "Total queue messages consumed",
			},
			[]string{"result"},
		),
		LeadsClaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leads_claimed_total",
				Help:      "Leads successfully claimed for processing",
			},
		),
		ClaimConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claim_conflicts_total",
				Help:      "Claim attempts that lost to another worker",
			},
		),

		AuctionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auctions_total",
				Help:      "Total number of auctions by outcome",
			},
			[]string{"result"},
		),
		AuctionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "auction_duration_seconds",
				Help:      "End-to-end auction duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 4, 8, 15},
			},
		),
		BuyersEligible: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "buyers_eligible",
				Help:      "Eligible buyers per auction",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
			},
		),
		BidsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bids_received_total",
				Help:      "Total valid bids received",
			},
			[]string{"buyer"},
		),
		BidAmount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bid_amount_dollars",
				Help:      "Bid amount distribution",
				Buckets:   []float64{1, 5, 10, 20, 35, 50, 75, 100, 200},
			},
			[]string{"buyer"},
		),

		BuyerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buyer_requests_total",
				Help:      "Total HTTP requests to buyers",
			},
			[]string{"buyer", "phase"},
		),
		BuyerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "buyer_latency_seconds",
				Help:      "Buyer response latency in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"buyer", "phase"},
		),
		BuyerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buyer_errors_total",
				Help:      "Buyer call failures by kind",
			},
			[]string{"buyer", "phase", "kind"},
		),
		BuyerTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buyer_timeouts_total",
				Help:      "Buyer calls that exceeded their deadline",
			},
			[]string{"buyer", "phase"},
		),

		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Lead delivery attempts by result",
			},
			[]string{"result"},
		),
		CapExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cap_exhausted_total",
				Help:      "Buyers excluded because their daily cap was reached",
			},
			[]string{"buyer"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
	}

	// Register all metrics
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.LeadsClaimed,
		m.ClaimConflicts,
		m.AuctionsTotal,
		m.AuctionDuration,
		m.BuyersEligible,
		m.BidsReceived,
		m.BidAmount,
		m.BuyerRequests,
		m.BuyerLatency,
		m.BuyerErrors,
		m.BuyerTimeouts,
		m.DeliveriesTotal,
		m.CapExhausted,
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns HTTP middleware that records request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(wrapped.statusCode)

		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordAuction records the outcome and duration of one auction
func (m *Metrics) RecordAuction(result string, duration time.Duration, eligibleBuyers int) {
	m.AuctionsTotal.WithLabelValues(result).Inc()
	m.AuctionDuration.Observe(duration.Seconds())
	m.BuyersEligible.Observe(float64(eligibleBuyers))
}

// RecordBid records a valid bid received from a buyer
func (m *Metrics) RecordBid(buyer string, amount float64) {
	m.BidsReceived.WithLabelValues(buyer).Inc()
	m.BidAmount.WithLabelValues(buyer).Observe(amount)
}

// RecordBuyerRequest records a request to a buyer for one phase
func (m *Metrics) RecordBuyerRequest(buyer, phase string, latency time.Duration, errKind string, timedOut bool) {
	m.BuyerRequests.WithLabelValues(buyer, phase).Inc()
	m.BuyerLatency.WithLabelValues(buyer, phase).Observe(latency.Seconds())

	if errKind != "" {
		m.BuyerErrors.WithLabelValues(buyer, phase, errKind).Inc()
	}
	if timedOut {
		m.BuyerTimeouts.WithLabelValues(buyer, phase).Inc()
	}
}

// RecordDelivery records a delivery attempt result ("accepted", "rejected",
// "failed")
func (m *Metrics) RecordDelivery(result string) {
	m.DeliveriesTotal.WithLabelValues(result).Inc()
}

// RecordCapExhausted records a buyer skipped because its daily cap is full
func (m *Metrics) RecordCapExhausted(buyer string) {
	m.CapExhausted.WithLabelValues(buyer).Inc()
}

// RecordMessage records a consumed queue message by result ("processed",
// "skipped", "failed")
func (m *Metrics) RecordMessage(result string) {
	m.MessagesConsumed.WithLabelValues(result).Inc()
}

// RecordClaim records a claim attempt outcome
func (m *Metrics) RecordClaim(won bool) {
	if won {
		m.LeadsClaimed.Inc()
	} else {
		m.ClaimConflicts.Inc()
	}
}

package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Total number of trades executed",
		},
		[]string{"symbol", "mode"},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_current_price",
			Help: "Latest close price per symbol",
		},
		[]string{"symbol"},
	)

	// Risk metrics
	riskCVaR = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trader_risk_cvar",
			Help: "Latest conditional value at risk estimate",
		},
		[]string{"symbol"},
	)

	riskGateBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_risk_gate_blocks_total",
			Help: "Iterations where the risk gate blocked new exposure",
		},
		[]string{"symbol"},
	)

	// Loop metrics
	iterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_loop_iterations_total",
			Help: "Completed trading loop iterations",
		},
		[]string{"symbol"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(riskCVaR)
	prometheus.MustRegister(riskGateBlocks)
	prometheus.MustRegister(iterationsTotal)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles the Prometheus metrics endpoint
type MetricsHandler struct{}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordTrade records a trade metric
func RecordTrade(symbol, mode string) {
	tradesTotal.WithLabelValues(symbol, mode).Inc()
}

// UpdatePrice updates the current price metric
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// UpdateCVaR updates the risk gauge for a symbol
func UpdateCVaR(symbol string, cvar float64) {
	riskCVaR.WithLabelValues(symbol).Set(cvar)
}

// RecordGateBlock counts a blocked iteration
func RecordGateBlock(symbol string) {
	riskGateBlocks.WithLabelValues(symbol).Inc()
}

// RecordIteration counts a completed loop iteration
func RecordIteration(symbol string) {
	iterationsTotal.WithLabelValues(symbol).Inc()
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}

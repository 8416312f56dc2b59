package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker tracks loop liveness and broker connectivity for the
// /health endpoint.
type HealthChecker struct {
	mu            sync.RWMutex
	lastIteration time.Time
	lastPrice     float64
	isConnected   bool
	errors        []string
}

type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LastIteration time.Time `json:"last_iteration"`
	LastPrice     float64   `json:"last_price"`
	IsConnected   bool      `json:"is_connected"`
	Uptime        string    `json:"uptime"`
	Errors        []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors: make([]string, 0),
	}
}

// Heartbeat records a completed loop iteration and the latest price.
func (h *HealthChecker) Heartbeat(price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastIteration = time.Now()
	h.lastPrice = price
	h.errors = h.errors[:0]
}

// SetConnected updates the broker connectivity flag.
func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isConnected = connected
}

// ReportError records an error surfaced by the trading loop.
func (h *HealthChecker) ReportError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.isConnected || time.Since(h.lastIteration) > time.Hour {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if len(h.errors) > 0 {
		status = "unhealthy"
		w.WriteHeader(http.StatusInternalServerError)
	}

	health := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		LastIteration: h.lastIteration,
		LastPrice:     h.lastPrice,
		IsConnected:   h.isConnected,
		Uptime:        time.Since(startTime).String(),
		Errors:        h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

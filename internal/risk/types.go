package risk

import (
	"errors"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

var (
	// ErrInsufficientData is returned when a price series is too short to
	// estimate returns (fewer than 2 observations).
	ErrInsufficientData = errors.New("insufficient data: need at least 2 price points")

	// ErrDegenerateInput is returned when drift or volatility cannot be
	// estimated (non-positive prices, NaN inputs). The caller must treat
	// this as a failed gate, never as zero risk.
	ErrDegenerateInput = errors.New("degenerate input: drift or volatility is not finite")

	// ErrInvalidPrice is returned by the sizer for a non-positive price.
	ErrInvalidPrice = errors.New("invalid price: must be positive")
)

// Assessment is the result of one risk evaluation. Passed is true when the
// expected tail loss is within the configured budget.
type Assessment struct {
	VaR    float64
	CVaR   float64
	Passed bool
}

// Failed is the fail-closed assessment used when the model itself errors:
// no new exposure is permitted, exits still run.
func Failed() Assessment {
	return Assessment{Passed: false}
}

// Model evaluates the tail risk implied by a price window.
type Model interface {
	Assess(series types.PriceSeries) (Assessment, error)
}

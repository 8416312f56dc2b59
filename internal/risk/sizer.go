package risk

import "math"

// Sizer converts a per-trade risk budget into an order quantity.
type Sizer struct {
	minIncrement float64
}

// NewSizer creates a sizer. minIncrement is the instrument's smallest
// tradeable quantity step; quantities are floored to it. A zero or negative
// increment falls back to 1e-6 (fractional trading).
func NewSizer(minIncrement float64) *Sizer {
	if minIncrement <= 0 {
		minIncrement = 1e-6
	}
	return &Sizer{minIncrement: minIncrement}
}

// Size returns the quantity buying portfolioValue*maxRiskPct worth of the
// instrument at price, floored to the minimum increment.
func (s *Sizer) Size(portfolioValue, maxRiskPct, price float64) (float64, error) {
	if price <= 0 {
		return 0, ErrInvalidPrice
	}
	allocation := portfolioValue * maxRiskPct
	qty := allocation / price
	return math.Floor(qty/s.minIncrement) * s.minIncrement, nil
}

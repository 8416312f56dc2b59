package types

import "time"

type OHLCV struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// PriceSeries is an ordered window of bars with strictly increasing
// timestamps. Providers return it sorted; Validate guards the invariant
// before the window is handed to the risk model or a strategy.
type PriceSeries []OHLCV

// Closes extracts the close prices in bar order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, bar := range s {
		closes[i] = bar.Close
	}
	return closes
}

// Last returns the most recent bar. The second return value is false for an
// empty series.
func (s PriceSeries) Last() (OHLCV, bool) {
	if len(s) == 0 {
		return OHLCV{}, false
	}
	return s[len(s)-1], true
}

// Validate checks that timestamps are strictly increasing (no duplicates,
// no out-of-order bars).
func (s PriceSeries) Validate() bool {
	for i := 1; i < len(s); i++ {
		if !s[i].Timestamp.After(s[i-1].Timestamp) {
			return false
		}
	}
	return true
}

// IsStale reports whether the newest bar is older than maxAge. An empty
// series is always stale.
func (s PriceSeries) IsStale(now time.Time, maxAge time.Duration) bool {
	last, ok := s.Last()
	if !ok {
		return true
	}
	return now.Sub(last.Timestamp) > maxAge
}

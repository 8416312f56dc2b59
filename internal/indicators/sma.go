package indicators

import (
	"errors"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// SMA represents the Simple Moving Average technical indicator
type SMA struct {
	period    int
	lastValue float64
}

// NewSMA creates a new SMA indicator
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
	}
}

// Period returns the number of bars the indicator needs.
func (s *SMA) Period() int {
	return s.period
}

// Calculate calculates the SMA over the trailing window
func (s *SMA) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < s.period {
		return 0, errors.New("insufficient data for SMA calculation")
	}

	sum := 0.0
	for i := len(data) - s.period; i < len(data); i++ {
		sum += data[i].Close
	}

	s.lastValue = sum / float64(s.period)
	return s.lastValue, nil
}

// LastValue returns the most recently computed SMA value
func (s *SMA) LastValue() float64 {
	return s.lastValue
}

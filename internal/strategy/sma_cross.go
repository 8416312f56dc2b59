package strategy

import (
	"fmt"

	"github.com/quantbox/cvar-trading-bot/internal/indicators"
	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// SMACross is a trend-following strategy: long while the fast moving
// average sits above the slow one, short while below.
type SMACross struct {
	fast *indicators.SMA
	slow *indicators.SMA
}

// NewSMACross creates an SMA crossover strategy. fastPeriod must be
// strictly smaller than slowPeriod.
func NewSMACross(fastPeriod, slowPeriod int) (*SMACross, error) {
	if fastPeriod <= 0 || slowPeriod <= fastPeriod {
		return nil, fmt.Errorf("invalid SMA periods: fast=%d slow=%d", fastPeriod, slowPeriod)
	}
	return &SMACross{
		fast: indicators.NewSMA(fastPeriod),
		slow: indicators.NewSMA(slowPeriod),
	}, nil
}

// Name identifies the strategy in trade records and logs.
func (s *SMACross) Name() string {
	return "sma_cross"
}

// GenerateSignal returns LONG when the fast average is above the slow one,
// SHORT when below, FLAT when equal or when the window is too short.
func (s *SMACross) GenerateSignal(symbol string, data types.PriceSeries) (Signal, error) {
	if len(data) < s.slow.Period() {
		return SignalFlat, nil
	}

	fast, err := s.fast.Calculate(data)
	if err != nil {
		return SignalFlat, nil
	}
	slow, err := s.slow.Calculate(data)
	if err != nil {
		return SignalFlat, nil
	}

	switch {
	case fast > slow:
		return SignalLong, nil
	case fast < slow:
		return SignalShort, nil
	default:
		return SignalFlat, nil
	}
}

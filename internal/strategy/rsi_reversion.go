package strategy

import (
	"fmt"

	"github.com/quantbox/cvar-trading-bot/internal/indicators"
	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// RSIReversion is a mean-reversion strategy: buy oversold, sell overbought.
type RSIReversion struct {
	rsi        *indicators.RSI
	oversold   float64
	overbought float64
}

// NewRSIReversion creates an RSI mean-reversion strategy.
func NewRSIReversion(period int, oversold, overbought float64) (*RSIReversion, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid RSI period: %d", period)
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("oversold threshold %.1f must be below overbought %.1f", oversold, overbought)
	}
	return &RSIReversion{
		rsi:        indicators.NewRSI(period),
		oversold:   oversold,
		overbought: overbought,
	}, nil
}

// Name identifies the strategy in trade records and logs.
func (s *RSIReversion) Name() string {
	return "rsi_reversion"
}

// GenerateSignal returns LONG below the oversold threshold, SHORT above the
// overbought threshold, FLAT in between or when the window is too short.
func (s *RSIReversion) GenerateSignal(symbol string, data types.PriceSeries) (Signal, error) {
	if len(data) < s.rsi.Period() {
		return SignalFlat, nil
	}

	value, err := s.rsi.Calculate(data.Closes())
	if err != nil {
		return SignalFlat, nil
	}

	switch {
	case value < s.oversold:
		return SignalLong, nil
	case value > s.overbought:
		return SignalShort, nil
	default:
		return SignalFlat, nil
	}
}

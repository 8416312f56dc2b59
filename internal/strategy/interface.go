package strategy

import (
	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// Signal is the canonical three-valued trading intent. Every strategy must
// return this type; legacy integer encodings do not cross this boundary.
type Signal int

const (
	SignalFlat Signal = iota
	SignalLong
	SignalShort
)

func (s Signal) String() string {
	switch s {
	case SignalFlat:
		return "FLAT"
	case SignalLong:
		return "LONG"
	case SignalShort:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Strategy turns a price window into a directional signal for the latest
// bar. Implementations must be pure with respect to the trading loop: any
// internal memory is the strategy's own concern, and well-formed non-empty
// input must never produce an error. A window too short for the strategy's
// indicators yields SignalFlat.
type Strategy interface {
	// Name identifies the strategy in trade records and logs.
	Name() string

	// GenerateSignal returns the directional intent for the latest bar.
	GenerateSignal(symbol string, data types.PriceSeries) (Signal, error)
}

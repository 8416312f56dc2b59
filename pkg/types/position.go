package types

import "time"

// Side represents the direction of an open position.
type Side int

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideFlat:
		return "FLAT"
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Position is the single open position a symbol may hold. A non-flat
// position always carries both stop and target bounds; they are set
// atomically with the entry and cleared when the position goes flat.
type Position struct {
	Symbol      string
	Side        Side
	Qty         float64
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	OpenedAt    time.Time
}

// IsOpen reports whether the position holds market exposure.
func (p *Position) IsOpen() bool {
	return p != nil && p.Side != SideFlat
}

// TradeMode classifies why a trade was executed.
type TradeMode string

const (
	ModeEntry      TradeMode = "entry"
	ModeStopLoss   TradeMode = "stop_loss"
	ModeTakeProfit TradeMode = "take_profit"
	ModeManualExit TradeMode = "manual_exit"
	ModeFlip       TradeMode = "flip"
)

// TradeRecord is an immutable, append-only fact about an executed trade.
type TradeRecord struct {
	Symbol    string
	Side      Side
	Qty       float64
	Price     float64
	Timestamp time.Time
	Strategy  string
	Mode      TradeMode
}

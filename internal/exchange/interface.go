package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// ErrOrderRejected is returned when the venue refuses an order. The caller
// must not commit any state change for a rejected order.
var ErrOrderRejected = errors.New("order rejected by broker")

// OrderSide represents the side of an order
type OrderSide int

const (
	OrderBuy OrderSide = iota
	OrderSell
)

func (s OrderSide) String() string {
	if s == OrderBuy {
		return "Buy"
	}
	return "Sell"
}

// OrderType represents the type of an order. The trading loop only places
// market orders; the type exists so the gateway contract stays explicit.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
)

// Order is a broker confirmation for an accepted order.
type Order struct {
	ID        string
	Symbol    string
	Side      OrderSide
	Qty       float64
	Price     float64 // average fill price when the venue reports one
	CreatedAt time.Time
}

// Clock describes the venue's trading session state.
type Clock struct {
	IsOpen    bool
	Timestamp time.Time
}

// Broker is the execution gateway the trading loop drives. Order
// submission is synchronous: the call returns an accepted Order or an
// error (ErrOrderRejected for a refusal) before the loop proceeds.
type Broker interface {
	// GetOpenPosition returns the broker-side open position for the
	// symbol, or nil when flat. The broker is authoritative; local state
	// re-syncs from this every iteration.
	GetOpenPosition(ctx context.Context, symbol string) (*types.Position, error)

	// SubmitOrder places an order and returns the confirmation.
	SubmitOrder(ctx context.Context, symbol string, qty float64, side OrderSide, orderType OrderType) (*Order, error)

	// ClosePosition flattens the symbol's open position.
	ClosePosition(ctx context.Context, symbol string) (*Order, error)

	// GetClock reports whether the venue is open for trading.
	GetClock(ctx context.Context) (Clock, error)
}

// DataProvider supplies the price window for one loop iteration. Bars come
// back in ascending timestamp order; the series may be empty.
type DataProvider interface {
	LatestWindow(ctx context.Context, symbol string, lookback int) (types.PriceSeries, error)
}

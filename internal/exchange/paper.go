package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// QuoteFunc returns the current mark price for a symbol. The paper broker
// fills every market order at this price.
type QuoteFunc func(ctx context.Context, symbol string) (float64, error)

// PaperBroker simulates a broker in-process: immediate fills at the quoted
// price, one net position per symbol, cash-limited buying power. Used for
// dry runs and tests; the venue is always open.
type PaperBroker struct {
	quote QuoteFunc

	mu        sync.Mutex
	cash      float64
	positions map[string]*types.Position
	nextID    int
}

// NewPaperBroker creates a paper broker with the given starting cash.
func NewPaperBroker(startingCash float64, quote QuoteFunc) *PaperBroker {
	return &PaperBroker{
		quote:     quote,
		cash:      startingCash,
		positions: make(map[string]*types.Position),
	}
}

// Cash returns the current simulated cash balance.
func (b *PaperBroker) Cash() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

// GetOpenPosition returns a copy of the symbol's open position, or nil.
func (b *PaperBroker) GetOpenPosition(ctx context.Context, symbol string) (*types.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok {
		return nil, nil
	}
	copied := *pos
	return &copied, nil
}

// SubmitOrder fills a market order at the quoted price. Orders that exceed
// buying power, target a symbol that already holds an opposing position,
// or carry a non-positive quantity are rejected.
func (b *PaperBroker) SubmitOrder(ctx context.Context, symbol string, qty float64, side OrderSide, orderType OrderType) (*Order, error) {
	if orderType != OrderTypeMarket {
		return nil, fmt.Errorf("%w: unsupported order type %q", ErrOrderRejected, orderType)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: non-positive quantity %f", ErrOrderRejected, qty)
	}

	price, err := b.quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: no valid quote for %s", ErrOrderRejected, symbol)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	notional := qty * price
	if notional > b.cash {
		return nil, fmt.Errorf("%w: insufficient buying power (need %.2f, have %.2f)",
			ErrOrderRejected, notional, b.cash)
	}

	wantSide := types.SideLong
	if side == OrderSell {
		wantSide = types.SideShort
	}
	if existing, ok := b.positions[symbol]; ok && existing.Side != wantSide {
		return nil, fmt.Errorf("%w: %s already holds a %s position", ErrOrderRejected, symbol, existing.Side)
	}

	b.cash -= notional
	if existing, ok := b.positions[symbol]; ok {
		// Average into the existing same-side position.
		total := existing.Qty + qty
		existing.EntryPrice = (existing.EntryPrice*existing.Qty + price*qty) / total
		existing.Qty = total
	} else {
		b.positions[symbol] = &types.Position{
			Symbol:     symbol,
			Side:       wantSide,
			Qty:        qty,
			EntryPrice: price,
			OpenedAt:   time.Now(),
		}
	}

	return b.confirm(symbol, side, qty, price), nil
}

// ClosePosition flattens the symbol at the quoted price and returns cash.
func (b *PaperBroker) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	price, err := b.quote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", symbol, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no open position for %s", ErrOrderRejected, symbol)
	}

	// Return the entry notional plus/minus the price move.
	pnl := (price - pos.EntryPrice) * pos.Qty
	if pos.Side == types.SideShort {
		pnl = -pnl
	}
	b.cash += pos.EntryPrice*pos.Qty + pnl

	side := OrderSell
	if pos.Side == types.SideShort {
		side = OrderBuy
	}
	qty := pos.Qty
	delete(b.positions, symbol)

	return b.confirm(symbol, side, qty, price), nil
}

// GetClock reports an always-open venue.
func (b *PaperBroker) GetClock(ctx context.Context) (Clock, error) {
	return Clock{IsOpen: true, Timestamp: time.Now()}, nil
}

func (b *PaperBroker) confirm(symbol string, side OrderSide, qty, price float64) *Order {
	b.nextID++
	return &Order{
		ID:        fmt.Sprintf("paper-%d", b.nextID),
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		Price:     price,
		CreatedAt: time.Now(),
	}
}

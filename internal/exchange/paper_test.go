package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

func fixedQuote(price float64) QuoteFunc {
	return func(_ context.Context, _ string) (float64, error) {
		return price, nil
	}
}

func TestPaperBroker_SubmitAndClose(t *testing.T) {
	broker := NewPaperBroker(10000, fixedQuote(100))
	ctx := context.Background()

	order, err := broker.SubmitOrder(ctx, "BTCUSDT", 10, OrderBuy, OrderTypeMarket)
	require.NoError(t, err)
	assert.Equal(t, 100.0, order.Price)
	assert.Equal(t, 9000.0, broker.Cash())

	pos, err := broker.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, types.SideLong, pos.Side)
	assert.Equal(t, 10.0, pos.Qty)
	assert.Equal(t, 100.0, pos.EntryPrice)

	closeOrder, err := broker.ClosePosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, OrderSell, closeOrder.Side)
	assert.Equal(t, 10000.0, broker.Cash())

	pos, err = broker.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestPaperBroker_CloseRealizesPnL(t *testing.T) {
	quote := 100.0
	broker := NewPaperBroker(10000, func(_ context.Context, _ string) (float64, error) {
		return quote, nil
	})
	ctx := context.Background()

	_, err := broker.SubmitOrder(ctx, "BTCUSDT", 10, OrderBuy, OrderTypeMarket)
	require.NoError(t, err)

	quote = 110
	_, err = broker.ClosePosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 10100.0, broker.Cash()) // +10 per unit on 10 units
}

func TestPaperBroker_ShortPnL(t *testing.T) {
	quote := 100.0
	broker := NewPaperBroker(10000, func(_ context.Context, _ string) (float64, error) {
		return quote, nil
	})
	ctx := context.Background()

	_, err := broker.SubmitOrder(ctx, "BTCUSDT", 10, OrderSell, OrderTypeMarket)
	require.NoError(t, err)

	quote = 90
	_, err = broker.ClosePosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 10100.0, broker.Cash())
}

func TestPaperBroker_RejectsInsufficientCash(t *testing.T) {
	broker := NewPaperBroker(500, fixedQuote(100))

	_, err := broker.SubmitOrder(context.Background(), "BTCUSDT", 10, OrderBuy, OrderTypeMarket)
	require.ErrorIs(t, err, ErrOrderRejected)
	assert.Equal(t, 500.0, broker.Cash())
}

func TestPaperBroker_RejectsOpposingSideAdd(t *testing.T) {
	broker := NewPaperBroker(10000, fixedQuote(100))
	ctx := context.Background()

	_, err := broker.SubmitOrder(ctx, "BTCUSDT", 10, OrderBuy, OrderTypeMarket)
	require.NoError(t, err)

	_, err = broker.SubmitOrder(ctx, "BTCUSDT", 5, OrderSell, OrderTypeMarket)
	require.ErrorIs(t, err, ErrOrderRejected)
}

func TestPaperBroker_AveragesIntoSameSide(t *testing.T) {
	quote := 100.0
	broker := NewPaperBroker(10000, func(_ context.Context, _ string) (float64, error) {
		return quote, nil
	})
	ctx := context.Background()

	_, err := broker.SubmitOrder(ctx, "BTCUSDT", 10, OrderBuy, OrderTypeMarket)
	require.NoError(t, err)

	quote = 110
	_, err = broker.SubmitOrder(ctx, "BTCUSDT", 10, OrderBuy, OrderTypeMarket)
	require.NoError(t, err)

	pos, err := broker.GetOpenPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 20.0, pos.Qty)
	assert.InDelta(t, 105.0, pos.EntryPrice, 1e-9)
}

func TestPaperBroker_RejectsInvalidOrders(t *testing.T) {
	broker := NewPaperBroker(10000, fixedQuote(100))
	ctx := context.Background()

	_, err := broker.SubmitOrder(ctx, "BTCUSDT", 0, OrderBuy, OrderTypeMarket)
	require.ErrorIs(t, err, ErrOrderRejected)

	_, err = broker.SubmitOrder(ctx, "BTCUSDT", 1, OrderBuy, OrderType("Limit"))
	require.ErrorIs(t, err, ErrOrderRejected)

	_, err = broker.ClosePosition(ctx, "BTCUSDT")
	require.ErrorIs(t, err, ErrOrderRejected)
}

func TestPaperBroker_ClockAlwaysOpen(t *testing.T) {
	broker := NewPaperBroker(10000, fixedQuote(100))

	clock, err := broker.GetClock(context.Background())
	require.NoError(t, err)
	assert.True(t, clock.IsOpen)
}

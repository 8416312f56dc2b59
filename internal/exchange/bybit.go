package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/quantbox/cvar-trading-bot/internal/safety"
	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// BybitConfig holds credentials and environment selection for Bybit.
type BybitConfig struct {
	APIKey    string
	APISecret string
	Category  string // "spot", "linear", "inverse"
	Interval  string // kline interval in Bybit notation ("1", "5", "60", "D")
	Testnet   bool
	Demo      bool
}

// Bybit implements Broker and DataProvider on top of the Bybit v5 API.
// All calls go through a token-bucket rate limiter so a busy multi-symbol
// engine stays inside the venue's request budget.
type Bybit struct {
	httpClient *bybit_api.Client
	category   string
	interval   string
	limiter    *safety.RateLimiter
}

// NewBybit creates a Bybit gateway.
func NewBybit(cfg BybitConfig) *Bybit {
	var baseURL string
	switch {
	case cfg.Demo:
		baseURL = "https://api-demo.bybit.com"
	case cfg.Testnet:
		baseURL = bybit_api.TESTNET
	default:
		baseURL = bybit_api.MAINNET
	}

	category := cfg.Category
	if category == "" {
		category = "linear"
	}
	interval := cfg.Interval
	if interval == "" {
		interval = "5"
	}

	return &Bybit{
		httpClient: bybit_api.NewBybitHttpClient(cfg.APIKey, cfg.APISecret, bybit_api.WithBaseURL(baseURL)),
		category:   category,
		interval:   interval,
		limiter:    safety.NewRateLimiter("bybit", 20, 20),
	}
}

// LatestWindow fetches the most recent lookback klines, oldest first.
func (b *Bybit) LatestWindow(ctx context.Context, symbol string, lookback int) (types.PriceSeries, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if lookback <= 0 {
		lookback = 200
	}
	if lookback > 1000 {
		lookback = 1000
	}

	params := map[string]interface{}{
		"category": b.category,
		"symbol":   symbol,
		"interval": b.interval,
		"limit":    lookback,
	}
	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines: %w", err)
	}

	series, err := parseKlineResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kline response: %w", err)
	}
	return series, nil
}

// GetOpenPosition returns the net open position for the symbol, or nil.
func (b *Bybit) GetOpenPosition(ctx context.Context, symbol string) (*types.Position, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := map[string]interface{}{
		"category": b.category,
		"symbol":   symbol,
	}
	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).GetPositionList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	return parsePositionResponse(result, symbol)
}

// SubmitOrder places a market order and returns the confirmation.
func (b *Bybit) SubmitOrder(ctx context.Context, symbol string, qty float64, side OrderSide, orderType OrderType) (*Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := map[string]interface{}{
		"category":  b.category,
		"symbol":    symbol,
		"side":      side.String(),
		"orderType": string(orderType),
		"qty":       strconv.FormatFloat(qty, 'f', -1, 64),
	}
	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	order, err := parseOrderResponse(result)
	if err != nil {
		return nil, err
	}
	order.Symbol = symbol
	order.Side = side
	order.Qty = qty
	return order, nil
}

// ClosePosition flattens the symbol with a reduce-only market order sized
// to the broker-reported position.
func (b *Bybit) ClosePosition(ctx context.Context, symbol string) (*Order, error) {
	pos, err := b.GetOpenPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, fmt.Errorf("%w: no open position for %s", ErrOrderRejected, symbol)
	}

	side := OrderSell
	if pos.Side == types.SideShort {
		side = OrderBuy
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := map[string]interface{}{
		"category":   b.category,
		"symbol":     symbol,
		"side":       side.String(),
		"orderType":  string(OrderTypeMarket),
		"qty":        strconv.FormatFloat(pos.Qty, 'f', -1, 64),
		"reduceOnly": true,
	}
	result, err := b.httpClient.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to close position: %w", err)
	}

	order, err := parseOrderResponse(result)
	if err != nil {
		return nil, err
	}
	order.Symbol = symbol
	order.Side = side
	order.Qty = pos.Qty
	return order, nil
}

// GetClock reports the venue session. Crypto venues trade around the
// clock, so the market is open whenever the API answers.
func (b *Bybit) GetClock(ctx context.Context) (Clock, error) {
	return Clock{IsOpen: true, Timestamp: time.Now()}, nil
}

// parseKlineResponse converts the raw v5 kline payload into a PriceSeries.
func parseKlineResponse(response interface{}) (types.PriceSeries, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var klineResult struct {
		Symbol   string     `json:"symbol"`
		Category string     `json:"category"`
		List     [][]string `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &klineResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal kline result: %w", err)
	}

	series := make(types.PriceSeries, 0, len(klineResult.List))
	for _, item := range klineResult.List {
		if len(item) < 6 {
			continue // skip incomplete rows
		}
		// Bybit kline format: [startTime, open, high, low, close, volume, turnover]
		series = append(series, types.OHLCV{
			Timestamp: time.UnixMilli(parseInt64(item[0])),
			Open:      parseFloat64(item[1]),
			High:      parseFloat64(item[2]),
			Low:       parseFloat64(item[3]),
			Close:     parseFloat64(item[4]),
			Volume:    parseFloat64(item[5]),
		})
	}

	// Bybit returns newest first; the core expects ascending timestamps.
	sort.Slice(series, func(i, j int) bool {
		return series[i].Timestamp.Before(series[j].Timestamp)
	})
	return series, nil
}

// parsePositionResponse extracts the symbol's net position, nil when flat.
func parsePositionResponse(response interface{}, symbol string) (*types.Position, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var positionResult struct {
		List []struct {
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			Size        string `json:"size"`
			AvgPrice    string `json:"avgPrice"`
			CreatedTime string `json:"createdTime"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &positionResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position result: %w", err)
	}

	for _, item := range positionResult.List {
		if item.Symbol != symbol {
			continue
		}
		qty := parseFloat64(item.Size)
		if qty == 0 {
			continue
		}

		side := types.SideLong
		if item.Side == "Sell" {
			side = types.SideShort
		}
		return &types.Position{
			Symbol:     symbol,
			Side:       side,
			Qty:        qty,
			EntryPrice: parseFloat64(item.AvgPrice),
			OpenedAt:   time.UnixMilli(parseInt64(item.CreatedTime)),
		}, nil
	}
	return nil, nil
}

// parseOrderResponse extracts the order ID from an accepted order.
func parseOrderResponse(response interface{}) (*Order, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("%w: %s (code: %d)", ErrOrderRejected, serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var orderResult struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(resultBytes, &orderResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order result: %w", err)
	}

	return &Order{
		ID:        orderResult.OrderID,
		CreatedAt: time.Now(),
	}, nil
}

func parseFloat64(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

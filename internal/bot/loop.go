// Package bot runs the per-symbol trading loops and the engine that
// supervises them.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quantbox/cvar-trading-bot/internal/exchange"
	"github.com/quantbox/cvar-trading-bot/internal/journal"
	"github.com/quantbox/cvar-trading-bot/internal/logger"
	"github.com/quantbox/cvar-trading-bot/internal/monitoring"
	"github.com/quantbox/cvar-trading-bot/internal/position"
	"github.com/quantbox/cvar-trading-bot/internal/risk"
	"github.com/quantbox/cvar-trading-bot/internal/safety"
	"github.com/quantbox/cvar-trading-bot/internal/strategy"
	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

const iterationTimeout = 30 * time.Second

// LoopDeps bundles the collaborators a symbol loop drives.
type LoopDeps struct {
	Broker   exchange.Broker
	Data     exchange.DataProvider
	Strategy strategy.Strategy
	Model    risk.Model
	Machine  *position.Machine
	Journal  journal.Store
	Logger   *logger.Logger
	Health   *monitoring.HealthChecker
	Limiter  *safety.RateLimiter
}

// Loop is the decision cycle for a single symbol: reconcile, observe,
// assess risk, transition the position machine, execute. One goroutine
// owns each loop; the machine is never shared.
type Loop struct {
	symbol   string
	deps     LoopDeps
	interval time.Duration // cadence between iterations
	lookback int           // bars per window request
	maxAge   time.Duration // staleness bound for the newest bar

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLoop creates a loop for the symbol. maxAge caps how old the newest
// bar may be before the iteration is skipped as stale.
func NewLoop(symbol string, deps LoopDeps, interval time.Duration, lookback int, maxAge time.Duration) (*Loop, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if deps.Broker == nil || deps.Data == nil || deps.Strategy == nil || deps.Model == nil || deps.Machine == nil {
		return nil, fmt.Errorf("broker, data provider, strategy, model and machine are required")
	}
	if deps.Journal == nil {
		deps.Journal = journal.NewNoopStore()
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if lookback <= 0 {
		return nil, fmt.Errorf("lookback must be positive")
	}
	if maxAge <= 0 {
		maxAge = 2 * interval
	}
	return &Loop{
		symbol:   symbol,
		deps:     deps,
		interval: interval,
		lookback: lookback,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
	}, nil
}

// Start launches the trading loop goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("loop for %s already running", l.symbol)
	}
	l.running = true
	l.wg.Add(1)
	go l.run()
	return nil
}

// Stop signals the loop to finish and waits for the goroutine to exit.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopChan)
	l.mu.Unlock()

	l.wg.Wait()
	l.logInfo("Trading loop stopped")
	if l.deps.Logger != nil {
		l.deps.Logger.Close()
	}
}

func (l *Loop) run() {
	defer l.wg.Done()

	l.logInfo("Trading loop started (every %s, window %d bars)", l.interval, l.lookback)

	// First pass immediately, then on the ticker.
	l.iterate()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.iterate()
		case <-l.stopChan:
			return
		}
	}
}

// iterate performs one decision cycle. Every failure path logs and
// returns without committing state, so the next tick retries from a
// clean slate.
func (l *Loop) iterate() {
	defer func() {
		if r := recover(); r != nil {
			l.logError("Panic in trading loop: %v", r)
			monitoring.RecordError("panic")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), iterationTimeout)
	defer cancel()

	if l.deps.Limiter != nil {
		if err := l.deps.Limiter.Wait(ctx); err != nil {
			l.logWarning("Rate limit wait aborted: %v", err)
			return
		}
	}

	// Broker state is authoritative; re-sync before any decision.
	brokerPos, err := l.deps.Broker.GetOpenPosition(ctx, l.symbol)
	if err != nil {
		l.logError("Failed to fetch broker position: %v", err)
		l.setConnected(false)
		monitoring.RecordError("broker_position")
		return
	}
	l.setConnected(true)
	if outcome := l.deps.Machine.Reconcile(brokerPos); outcome != position.ReconcileInSync {
		l.logWarning("Position reconciled against broker: %s", outcome)
	}

	clock, err := l.deps.Broker.GetClock(ctx)
	if err != nil {
		l.logError("Failed to fetch venue clock: %v", err)
		monitoring.RecordError("clock")
		return
	}
	if !clock.IsOpen {
		l.logInfo("Venue closed, skipping iteration")
		return
	}

	series, err := l.deps.Data.LatestWindow(ctx, l.symbol, l.lookback)
	if err != nil {
		l.logError("Failed to fetch price window: %v", err)
		monitoring.RecordError("market_data")
		return
	}
	bar, ok := series.Last()
	if !ok {
		l.logWarning("Empty price window, skipping iteration")
		return
	}
	if !series.Validate() {
		l.logWarning("Price window has out-of-order bars, skipping iteration")
		monitoring.RecordError("market_data")
		return
	}
	if series.IsStale(time.Now(), l.maxAge) {
		l.logWarning("Newest bar is older than %s, skipping iteration", l.maxAge)
		return
	}
	monitoring.UpdatePrice(l.symbol, bar.Close)

	signal, err := l.deps.Strategy.GenerateSignal(l.symbol, series)
	if err != nil {
		l.logError("Strategy %s failed: %v", l.deps.Strategy.Name(), err)
		monitoring.RecordError("strategy")
		return
	}

	// A failed model is a failed gate: exits still run, entries do not.
	assessment, err := l.deps.Model.Assess(series)
	if err != nil {
		l.logWarning("Risk model failed, gating new exposure: %v", err)
		assessment = risk.Failed()
		monitoring.RecordError("risk_model")
	}
	monitoring.UpdateCVaR(l.symbol, assessment.CVaR)
	if l.deps.Logger != nil {
		l.deps.Logger.LogRisk(assessment.VaR, assessment.CVaR, assessment.Passed)
	}
	if !assessment.Passed {
		monitoring.RecordGateBlock(l.symbol)
	}

	transition, err := l.deps.Machine.Evaluate(signal, bar, assessment)
	if err != nil {
		l.logError("Transition evaluation failed: %v", err)
		monitoring.RecordError("evaluate")
		return
	}

	if transition == nil {
		if assessment.Passed {
			l.deps.Machine.MarkEvaluated(signal)
		}
		l.heartbeat(bar.Close)
		monitoring.RecordIteration(l.symbol)
		return
	}

	l.execute(ctx, transition, bar)
	l.heartbeat(bar.Close)
	monitoring.RecordIteration(l.symbol)
}

// execute runs the broker legs of a transition. Each leg commits
// independently once the broker confirms it; a rejected leg leaves the
// machine unchanged so the next iteration retries.
func (l *Loop) execute(ctx context.Context, t *position.Transition, bar types.OHLCV) {
	if t.CloseExisting {
		closing := l.deps.Machine.Position()
		order, err := l.deps.Broker.ClosePosition(ctx, l.symbol)
		if err != nil {
			if errors.Is(err, exchange.ErrOrderRejected) {
				l.logWarning("Close order rejected for %s, keeping position: %v", l.symbol, err)
			} else {
				l.logError("Failed to close %s position: %v", l.symbol, err)
			}
			monitoring.RecordError("order_close")
			return
		}
		l.deps.Machine.CommitClose(t)
		l.recordTrade(ctx, types.TradeRecord{
			Symbol:    l.symbol,
			Side:      closing.Side,
			Qty:       closing.Qty,
			Price:     fillPrice(order, bar.Close),
			Timestamp: order.CreatedAt,
			Strategy:  l.deps.Strategy.Name(),
			Mode:      t.Mode,
		}, order.ID)
	}

	if t.Open == nil {
		return
	}

	side := exchange.OrderBuy
	if t.Open.Side == types.SideShort {
		side = exchange.OrderSell
	}
	order, err := l.deps.Broker.SubmitOrder(ctx, l.symbol, t.Open.Qty, side, exchange.OrderTypeMarket)
	if err != nil {
		if errors.Is(err, exchange.ErrOrderRejected) {
			l.logWarning("Entry order rejected for %s, will retry: %v", l.symbol, err)
		} else {
			l.logError("Failed to submit %s entry: %v", l.symbol, err)
		}
		monitoring.RecordError("order_open")
		return
	}

	fill := fillPrice(order, t.Open.EntryPrice)
	l.deps.Machine.CommitOpen(t, fill, order.CreatedAt)
	l.recordTrade(ctx, types.TradeRecord{
		Symbol:    l.symbol,
		Side:      t.Open.Side,
		Qty:       order.Qty,
		Price:     fill,
		Timestamp: order.CreatedAt,
		Strategy:  l.deps.Strategy.Name(),
		Mode:      t.Mode,
	}, order.ID)
}

// recordTrade journals and logs a confirmed execution. Persistence
// failures are logged and swallowed: the trade already happened.
func (l *Loop) recordTrade(ctx context.Context, record types.TradeRecord, orderID string) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := l.deps.Journal.Append(ctx, record); err != nil {
		l.logError("Failed to journal %s trade: %v", record.Mode, err)
		monitoring.RecordError("journal")
	}
	if l.deps.Logger != nil {
		l.deps.Logger.LogTrade(record, orderID)
	}
	monitoring.RecordTrade(l.symbol, string(record.Mode))
}

func fillPrice(order *exchange.Order, fallback float64) float64 {
	if order != nil && order.Price > 0 {
		return order.Price
	}
	return fallback
}

func (l *Loop) heartbeat(price float64) {
	if l.deps.Health != nil {
		l.deps.Health.Heartbeat(price)
	}
}

func (l *Loop) setConnected(connected bool) {
	if l.deps.Health != nil {
		l.deps.Health.SetConnected(connected)
	}
}

func (l *Loop) logInfo(format string, args ...interface{}) {
	if l.deps.Logger != nil {
		l.deps.Logger.Info(format, args...)
	}
}

func (l *Loop) logWarning(format string, args ...interface{}) {
	if l.deps.Logger != nil {
		l.deps.Logger.Warning(format, args...)
	}
}

// logError also surfaces the error on the health endpoint; a subsequent
// clean iteration's heartbeat clears it.
func (l *Loop) logError(format string, args ...interface{}) {
	if l.deps.Logger != nil {
		l.deps.Logger.Error(format, args...)
	}
	if l.deps.Health != nil {
		l.deps.Health.ReportError(fmt.Sprintf(format, args...))
	}
}

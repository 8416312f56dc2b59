// Package position owns the lifecycle of at most one open position per
// symbol. The machine proposes transitions; nothing is committed until the
// broker confirms the corresponding order, so a rejected order leaves the
// machine exactly where it was.
package position

import (
	"fmt"
	"time"

	"github.com/quantbox/cvar-trading-bot/internal/risk"
	"github.com/quantbox/cvar-trading-bot/internal/strategy"
	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

// Config holds the entry bounds and sizing parameters.
type Config struct {
	StopLossPct   float64 // stop offset from entry, e.g. 0.02
	TakeProfitPct float64 // target offset from entry, e.g. 0.04
	MaxRiskPct    float64 // fraction of portfolio value per entry
	MinIncrement  float64 // instrument quantity step
}

// Validate checks the bound percentages.
func (c Config) Validate() error {
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("stop loss pct must be in (0,1), got %f", c.StopLossPct)
	}
	if c.TakeProfitPct <= 0 {
		return fmt.Errorf("take profit pct must be positive, got %f", c.TakeProfitPct)
	}
	if c.MaxRiskPct <= 0 || c.MaxRiskPct > 1 {
		return fmt.Errorf("max risk pct must be in (0,1], got %f", c.MaxRiskPct)
	}
	return nil
}

// Transition is a proposed change of position state. CloseExisting and
// Open describe the broker legs to execute; Signal is the de-duplication
// state to record once the transition commits.
type Transition struct {
	Mode          types.TradeMode
	CloseExisting bool
	Open          *types.Position
	Signal        strategy.Signal
}

// ReconcileOutcome describes what reconciliation against the broker did.
type ReconcileOutcome int

const (
	ReconcileInSync ReconcileOutcome = iota
	ReconcileAdoptedRemote
	ReconcileDroppedLocal
	ReconcileSyncedQty
)

func (o ReconcileOutcome) String() string {
	switch o {
	case ReconcileInSync:
		return "in_sync"
	case ReconcileAdoptedRemote:
		return "adopted_remote"
	case ReconcileDroppedLocal:
		return "dropped_local"
	case ReconcileSyncedQty:
		return "synced_qty"
	default:
		return "unknown"
	}
}

// Machine drives FLAT/LONG/SHORT transitions for a single symbol. It is
// owned exclusively by that symbol's trading loop and is not safe for
// concurrent use.
type Machine struct {
	symbol         string
	cfg            Config
	sizer          *risk.Sizer
	portfolioValue float64

	pos        types.Position
	lastSignal strategy.Signal
}

// NewMachine creates a machine starting flat. The initial de-duplication
// state is FLAT, matching a freshly started loop with no history.
func NewMachine(symbol string, cfg Config, portfolioValue float64) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		symbol:         symbol,
		cfg:            cfg,
		sizer:          risk.NewSizer(cfg.MinIncrement),
		portfolioValue: portfolioValue,
		pos:            types.Position{Symbol: symbol, Side: types.SideFlat},
		lastSignal:     strategy.SignalFlat,
	}, nil
}

// Position returns a copy of the current committed position.
func (m *Machine) Position() types.Position {
	return m.pos
}

// LastSignal returns the last committed de-duplication signal.
func (m *Machine) LastSignal() strategy.Signal {
	return m.lastSignal
}

// SetPortfolioValue updates the sizing base for subsequent entries.
func (m *Machine) SetPortfolioValue(v float64) {
	m.portfolioValue = v
}

// Evaluate computes the transition required by the latest bar, signal and
// risk assessment. It is pure: nothing is committed until the caller
// confirms execution through CommitClose/CommitOpen (or MarkEvaluated for
// no-action iterations). A nil transition means hold.
//
// Priority order: stop-loss, take-profit, risk gate (new exposure only),
// signal change, hold.
func (m *Machine) Evaluate(signal strategy.Signal, bar types.OHLCV, assessment risk.Assessment) (*Transition, error) {
	// Protective exits run regardless of signal or gate.
	if m.pos.IsOpen() {
		if m.stopHit(bar) {
			return &Transition{
				Mode:          types.ModeStopLoss,
				CloseExisting: true,
				Signal:        m.lastSignal,
			}, nil
		}
		if m.targetHit(bar) {
			return &Transition{
				Mode:          types.ModeTakeProfit,
				CloseExisting: true,
				Signal:        m.lastSignal,
			}, nil
		}
	}

	// Failed gate: hold everything, permit no new exposure. The last
	// signal is deliberately not consumed so a blocked entry can fire
	// once risk subsides.
	if !assessment.Passed {
		return nil, nil
	}

	if signal == m.lastSignal {
		return nil, nil
	}

	switch signal {
	case strategy.SignalLong:
		switch m.pos.Side {
		case types.SideFlat:
			return m.openTransition(types.SideLong, bar, types.ModeEntry, false)
		case types.SideShort:
			return m.openTransition(types.SideLong, bar, types.ModeFlip, true)
		}
	case strategy.SignalShort:
		switch m.pos.Side {
		case types.SideFlat:
			return m.openTransition(types.SideShort, bar, types.ModeEntry, false)
		case types.SideLong:
			return m.openTransition(types.SideShort, bar, types.ModeFlip, true)
		}
	case strategy.SignalFlat:
		if m.pos.IsOpen() {
			return &Transition{
				Mode:          types.ModeManualExit,
				CloseExisting: true,
				Signal:        strategy.SignalFlat,
			}, nil
		}
	}
	return nil, nil
}

// MarkEvaluated commits the de-duplication state for an iteration that was
// fully evaluated (gate passed) but produced no action.
func (m *Machine) MarkEvaluated(signal strategy.Signal) {
	m.lastSignal = signal
}

// CommitClose records a confirmed close. For a pure exit the signal state
// commits too; for the close leg of a flip it stays untouched so a
// rejected open leg can retry next iteration.
func (m *Machine) CommitClose(t *Transition) {
	m.pos = types.Position{Symbol: m.symbol, Side: types.SideFlat}
	if t.Open == nil {
		m.lastSignal = t.Signal
	}
}

// CommitOpen records a confirmed entry with the broker's fill price. The
// stop and target bounds are recomputed from the actual fill so the
// invariant stop < entry < target (mirrored for shorts) holds exactly.
func (m *Machine) CommitOpen(t *Transition, fillPrice float64, openedAt time.Time) {
	committed := *t.Open
	if fillPrice > 0 && fillPrice != committed.EntryPrice {
		committed.EntryPrice = fillPrice
		committed.StopPrice, committed.TargetPrice = m.bounds(committed.Side, fillPrice)
	}
	committed.OpenedAt = openedAt
	m.pos = committed
	m.lastSignal = t.Signal
}

// Reconcile aligns local state with the broker-reported position. The
// broker is authoritative: a vanished position drops local state, an
// unknown one is adopted with config-derived protective bounds.
func (m *Machine) Reconcile(brokerPos *types.Position) ReconcileOutcome {
	switch {
	case brokerPos == nil && !m.pos.IsOpen():
		return ReconcileInSync

	case brokerPos == nil:
		m.pos = types.Position{Symbol: m.symbol, Side: types.SideFlat}
		return ReconcileDroppedLocal

	case !m.pos.IsOpen() || m.pos.Side != brokerPos.Side:
		stop, target := m.bounds(brokerPos.Side, brokerPos.EntryPrice)
		m.pos = types.Position{
			Symbol:      m.symbol,
			Side:        brokerPos.Side,
			Qty:         brokerPos.Qty,
			EntryPrice:  brokerPos.EntryPrice,
			StopPrice:   stop,
			TargetPrice: target,
			OpenedAt:    brokerPos.OpenedAt,
		}
		return ReconcileAdoptedRemote

	case m.pos.Qty != brokerPos.Qty || m.pos.EntryPrice != brokerPos.EntryPrice:
		m.pos.Qty = brokerPos.Qty
		m.pos.EntryPrice = brokerPos.EntryPrice
		return ReconcileSyncedQty

	default:
		return ReconcileInSync
	}
}

func (m *Machine) openTransition(side types.Side, bar types.OHLCV, mode types.TradeMode, closeExisting bool) (*Transition, error) {
	qty, err := m.sizer.Size(m.portfolioValue, m.cfg.MaxRiskPct, bar.Close)
	if err != nil {
		return nil, fmt.Errorf("size %s entry: %w", m.symbol, err)
	}
	if qty <= 0 {
		return nil, nil // budget too small for one increment
	}

	stop, target := m.bounds(side, bar.Close)
	signal := strategy.SignalLong
	if side == types.SideShort {
		signal = strategy.SignalShort
	}

	return &Transition{
		Mode:          mode,
		CloseExisting: closeExisting,
		Open: &types.Position{
			Symbol:      m.symbol,
			Side:        side,
			Qty:         qty,
			EntryPrice:  bar.Close,
			StopPrice:   stop,
			TargetPrice: target,
		},
		Signal: signal,
	}, nil
}

// bounds derives protective prices from an entry price.
func (m *Machine) bounds(side types.Side, entry float64) (stop, target float64) {
	if side == types.SideShort {
		return entry * (1 + m.cfg.StopLossPct), entry * (1 - m.cfg.TakeProfitPct)
	}
	return entry * (1 - m.cfg.StopLossPct), entry * (1 + m.cfg.TakeProfitPct)
}

// stopHit reports whether the bar crossed the stop adversely.
func (m *Machine) stopHit(bar types.OHLCV) bool {
	if m.pos.Side == types.SideLong {
		return bar.Low <= m.pos.StopPrice
	}
	return bar.High >= m.pos.StopPrice
}

// targetHit reports whether the bar crossed the target favorably.
func (m *Machine) targetHit(bar types.OHLCV) bool {
	if m.pos.Side == types.SideLong {
		return bar.High >= m.pos.TargetPrice
	}
	return bar.Low <= m.pos.TargetPrice
}

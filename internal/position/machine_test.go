package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbox/cvar-trading-bot/internal/risk"
	"github.com/quantbox/cvar-trading-bot/internal/strategy"
	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

func testMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine("AAPL", Config{
		StopLossPct:   0.02,
		TakeProfitPct: 0.04,
		MaxRiskPct:    0.01,
		MinIncrement:  1e-6,
	}, 100_000)
	require.NoError(t, err)
	return m
}

func bar(price float64) types.OHLCV {
	return types.OHLCV{
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Timestamp: time.Now(),
	}
}

func passed() risk.Assessment {
	return risk.Assessment{Passed: true}
}

func openLong(t *testing.T, m *Machine, price float64) {
	t.Helper()
	tr, err := m.Evaluate(strategy.SignalLong, bar(price), passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.Equal(t, types.ModeEntry, tr.Mode)
	m.CommitOpen(tr, price, time.Now())
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{StopLossPct: 0.02, TakeProfitPct: 0.04, MaxRiskPct: 0.01}
	assert.NoError(t, valid.Validate())

	for _, cfg := range []Config{
		{StopLossPct: 0, TakeProfitPct: 0.04, MaxRiskPct: 0.01},
		{StopLossPct: 1.5, TakeProfitPct: 0.04, MaxRiskPct: 0.01},
		{StopLossPct: 0.02, TakeProfitPct: 0, MaxRiskPct: 0.01},
		{StopLossPct: 0.02, TakeProfitPct: 0.04, MaxRiskPct: 0},
		{StopLossPct: 0.02, TakeProfitPct: 0.04, MaxRiskPct: 2},
	} {
		assert.Error(t, cfg.Validate())
	}
}

func TestMachine_EntrySetsBoundsAndQty(t *testing.T) {
	m := testMachine(t)

	tr, err := m.Evaluate(strategy.SignalLong, bar(200), passed())
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, types.ModeEntry, tr.Mode)
	assert.False(t, tr.CloseExisting)
	require.NotNil(t, tr.Open)
	assert.Equal(t, types.SideLong, tr.Open.Side)
	assert.InDelta(t, 100_000*0.01/200, tr.Open.Qty, 1e-6)
	assert.InDelta(t, 200*0.98, tr.Open.StopPrice, 1e-9)
	assert.InDelta(t, 200*1.04, tr.Open.TargetPrice, 1e-9)

	// Nothing committed until the broker confirms.
	assert.Equal(t, types.SideFlat, m.Position().Side)
	assert.Equal(t, strategy.SignalFlat, m.LastSignal())

	m.CommitOpen(tr, 200, time.Now())
	pos := m.Position()
	assert.Equal(t, types.SideLong, pos.Side)
	assert.Less(t, pos.StopPrice, pos.EntryPrice)
	assert.Greater(t, pos.TargetPrice, pos.EntryPrice)
	assert.Equal(t, strategy.SignalLong, m.LastSignal())
}

func TestMachine_ShortEntryBoundsMirrored(t *testing.T) {
	m := testMachine(t)

	tr, err := m.Evaluate(strategy.SignalShort, bar(100), passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	m.CommitOpen(tr, 100, time.Now())

	pos := m.Position()
	assert.Equal(t, types.SideShort, pos.Side)
	assert.Greater(t, pos.StopPrice, pos.EntryPrice)
	assert.Less(t, pos.TargetPrice, pos.EntryPrice)
}

func TestMachine_UnchangedSignalIsNoOp(t *testing.T) {
	m := testMachine(t)
	openLong(t, m, 100)

	tr, err := m.Evaluate(strategy.SignalLong, bar(101), passed())
	require.NoError(t, err)
	assert.Nil(t, tr, "repeated signal must not produce a second action")
}

func TestMachine_RiskGateBlocksEntryOnly(t *testing.T) {
	m := testMachine(t)

	// Blocked entry: flat stays flat.
	tr, err := m.Evaluate(strategy.SignalLong, bar(100), risk.Failed())
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, types.SideFlat, m.Position().Side)

	// Gate must not consume the signal: entry fires once risk subsides.
	tr, err = m.Evaluate(strategy.SignalLong, bar(100), passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, types.ModeEntry, tr.Mode)
}

func TestMachine_RiskGateStillAllowsStopExit(t *testing.T) {
	m := testMachine(t)
	openLong(t, m, 100) // stop at 98

	tr, err := m.Evaluate(strategy.SignalLong, bar(97), risk.Failed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, types.ModeStopLoss, tr.Mode)
}

func TestMachine_StopLossFires(t *testing.T) {
	m := testMachine(t)
	openLong(t, m, 100) // stop 98, target 104

	low := types.OHLCV{Open: 99, High: 99.5, Low: 97.9, Close: 98.5, Timestamp: time.Now()}
	tr, err := m.Evaluate(strategy.SignalLong, low, passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, types.ModeStopLoss, tr.Mode)
	assert.True(t, tr.CloseExisting)
	assert.Nil(t, tr.Open)

	m.CommitClose(tr)
	assert.Equal(t, types.SideFlat, m.Position().Side)
	assert.Equal(t, 0.0, m.Position().StopPrice)
	assert.Equal(t, 0.0, m.Position().TargetPrice)
}

func TestMachine_TakeProfitFires(t *testing.T) {
	m := testMachine(t)
	openLong(t, m, 100) // target 104

	high := types.OHLCV{Open: 103, High: 104.2, Low: 102.8, Close: 104, Timestamp: time.Now()}
	tr, err := m.Evaluate(strategy.SignalLong, high, passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, types.ModeTakeProfit, tr.Mode)
}

func TestMachine_ShortStopAndTarget(t *testing.T) {
	m := testMachine(t)

	tr, err := m.Evaluate(strategy.SignalShort, bar(100), passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	m.CommitOpen(tr, 100, time.Now()) // stop 102, target 96

	spike := types.OHLCV{Open: 101, High: 102.5, Low: 100.5, Close: 101.5, Timestamp: time.Now()}
	stop, err := m.Evaluate(strategy.SignalShort, spike, passed())
	require.NoError(t, err)
	require.NotNil(t, stop)
	assert.Equal(t, types.ModeStopLoss, stop.Mode)

	m2 := testMachine(t)
	tr2, err := m2.Evaluate(strategy.SignalShort, bar(100), passed())
	require.NoError(t, err)
	m2.CommitOpen(tr2, 100, time.Now())

	dip := types.OHLCV{Open: 97, High: 97.5, Low: 95.8, Close: 96.2, Timestamp: time.Now()}
	target, err := m2.Evaluate(strategy.SignalShort, dip, passed())
	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, types.ModeTakeProfit, target.Mode)
}

func TestMachine_StopPrecedesOpposingSignal(t *testing.T) {
	m := testMachine(t)
	openLong(t, m, 100) // stop 98

	// Bar crosses the stop while the signal flips short: the stop exit
	// wins and no re-entry happens this iteration.
	crash := types.OHLCV{Open: 99, High: 99, Low: 97, Close: 97.5, Timestamp: time.Now()}
	tr, err := m.Evaluate(strategy.SignalShort, crash, passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, types.ModeStopLoss, tr.Mode)
	assert.Nil(t, tr.Open)
}

func TestMachine_FlipClosesThenOpens(t *testing.T) {
	m := testMachine(t)
	openLong(t, m, 100)

	tr, err := m.Evaluate(strategy.SignalShort, bar(101), passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, types.ModeFlip, tr.Mode)
	assert.True(t, tr.CloseExisting)
	require.NotNil(t, tr.Open)
	assert.Equal(t, types.SideShort, tr.Open.Side)

	// Close leg confirmed, open leg rejected: machine is flat and the
	// old signal state is kept so the flip retries next iteration.
	m.CommitClose(tr)
	assert.Equal(t, types.SideFlat, m.Position().Side)
	assert.Equal(t, strategy.SignalLong, m.LastSignal())

	retry, err := m.Evaluate(strategy.SignalShort, bar(101), passed())
	require.NoError(t, err)
	require.NotNil(t, retry)
	assert.Equal(t, types.ModeEntry, retry.Mode)
}

func TestMachine_ManualExit(t *testing.T) {
	m := testMachine(t)
	openLong(t, m, 100)

	tr, err := m.Evaluate(strategy.SignalFlat, bar(101), passed())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, types.ModeManualExit, tr.Mode)
	assert.Nil(t, tr.Open)

	m.CommitClose(tr)
	assert.Equal(t, types.SideFlat, m.Position().Side)
	assert.Equal(t, strategy.SignalFlat, m.LastSignal())
}

func TestMachine_NeverTwoSimultaneousSides(t *testing.T) {
	m := testMachine(t)

	signals := []strategy.Signal{
		strategy.SignalLong, strategy.SignalLong, strategy.SignalShort,
		strategy.SignalFlat, strategy.SignalShort, strategy.SignalLong,
	}
	price := 100.0
	for _, sig := range signals {
		tr, err := m.Evaluate(sig, bar(price), passed())
		require.NoError(t, err)
		if tr == nil {
			m.MarkEvaluated(sig)
			continue
		}
		if tr.CloseExisting {
			m.CommitClose(tr)
		}
		if tr.Open != nil {
			m.CommitOpen(tr, price, time.Now())
		}

		pos := m.Position()
		assert.Contains(t, []types.Side{types.SideFlat, types.SideLong, types.SideShort}, pos.Side)
		if pos.Side == types.SideFlat {
			assert.Equal(t, 0.0, pos.StopPrice, "flat position must carry no bounds")
			assert.Equal(t, 0.0, pos.TargetPrice)
		} else {
			assert.NotZero(t, pos.StopPrice, "open position must carry both bounds")
			assert.NotZero(t, pos.TargetPrice)
		}
		price += 1
	}
}

func TestMachine_CommitOpenUsesFillPrice(t *testing.T) {
	m := testMachine(t)

	tr, err := m.Evaluate(strategy.SignalLong, bar(100), passed())
	require.NoError(t, err)
	require.NotNil(t, tr)

	// Slippage: filled at 100.50 instead of 100. Bounds follow the fill.
	m.CommitOpen(tr, 100.50, time.Now())
	pos := m.Position()
	assert.Equal(t, 100.50, pos.EntryPrice)
	assert.InDelta(t, 100.50*0.98, pos.StopPrice, 1e-9)
	assert.InDelta(t, 100.50*1.04, pos.TargetPrice, 1e-9)
}

func TestMachine_Reconcile(t *testing.T) {
	t.Run("in sync when both flat", func(t *testing.T) {
		m := testMachine(t)
		assert.Equal(t, ReconcileInSync, m.Reconcile(nil))
	})

	t.Run("drops local when broker is flat", func(t *testing.T) {
		m := testMachine(t)
		openLong(t, m, 100)

		assert.Equal(t, ReconcileDroppedLocal, m.Reconcile(nil))
		assert.Equal(t, types.SideFlat, m.Position().Side)
	})

	t.Run("adopts unknown broker position with bounds", func(t *testing.T) {
		m := testMachine(t)

		outcome := m.Reconcile(&types.Position{
			Symbol:     "AAPL",
			Side:       types.SideLong,
			Qty:        5,
			EntryPrice: 150,
		})
		assert.Equal(t, ReconcileAdoptedRemote, outcome)

		pos := m.Position()
		assert.Equal(t, types.SideLong, pos.Side)
		assert.Equal(t, 5.0, pos.Qty)
		assert.InDelta(t, 147, pos.StopPrice, 1e-9)
		assert.InDelta(t, 156, pos.TargetPrice, 1e-9)
	})

	t.Run("syncs qty drift", func(t *testing.T) {
		m := testMachine(t)
		openLong(t, m, 100)
		local := m.Position()

		outcome := m.Reconcile(&types.Position{
			Symbol:     "AAPL",
			Side:       types.SideLong,
			Qty:        local.Qty * 2,
			EntryPrice: local.EntryPrice,
		})
		assert.Equal(t, ReconcileSyncedQty, outcome)
		assert.Equal(t, local.Qty*2, m.Position().Qty)
		// Local protective bounds survive a quantity sync.
		assert.Equal(t, local.StopPrice, m.Position().StopPrice)
	})
}

func TestMachine_InvalidPriceAbortsEntry(t *testing.T) {
	m := testMachine(t)

	_, err := m.Evaluate(strategy.SignalLong, bar(0), passed())
	assert.ErrorIs(t, err, risk.ErrInvalidPrice)
	// The signal was not consumed: a later bar with a valid price enters.
	tr, err := m.Evaluate(strategy.SignalLong, bar(100), passed())
	require.NoError(t, err)
	assert.NotNil(t, tr)
}

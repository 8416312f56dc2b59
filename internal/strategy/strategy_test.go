package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

func seriesFromCloses(closes []float64) types.PriceSeries {
	start := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	series := make(types.PriceSeries, len(closes))
	for i, c := range closes {
		series[i] = types.OHLCV{
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    500,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return series
}

func TestNewSMACross_Validation(t *testing.T) {
	_, err := NewSMACross(0, 20)
	assert.Error(t, err)

	_, err = NewSMACross(20, 20)
	assert.Error(t, err)

	_, err = NewSMACross(20, 5)
	assert.Error(t, err)
}

func TestSMACross_Uptrend(t *testing.T) {
	strat, err := NewSMACross(3, 8)
	require.NoError(t, err)

	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	signal, err := strat.GenerateSignal("AAPL", seriesFromCloses(closes))
	require.NoError(t, err)
	assert.Equal(t, SignalLong, signal)
}

func TestSMACross_Downtrend(t *testing.T) {
	strat, err := NewSMACross(3, 8)
	require.NoError(t, err)

	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}

	signal, err := strat.GenerateSignal("AAPL", seriesFromCloses(closes))
	require.NoError(t, err)
	assert.Equal(t, SignalShort, signal)
}

func TestSMACross_ShortWindowIsFlat(t *testing.T) {
	strat, err := NewSMACross(3, 8)
	require.NoError(t, err)

	signal, err := strat.GenerateSignal("AAPL", seriesFromCloses([]float64{100, 101}))
	require.NoError(t, err)
	assert.Equal(t, SignalFlat, signal)
}

func TestRSIReversion_Oversold(t *testing.T) {
	strat, err := NewRSIReversion(5, 30, 70)
	require.NoError(t, err)

	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 - 2*float64(i) // relentless decline
	}

	signal, err := strat.GenerateSignal("TSLA", seriesFromCloses(closes))
	require.NoError(t, err)
	assert.Equal(t, SignalLong, signal)
}

func TestRSIReversion_Overbought(t *testing.T) {
	strat, err := NewRSIReversion(5, 30, 70)
	require.NoError(t, err)

	closes := make([]float64, 15)
	for i := range closes {
		closes[i] = 100 + 2*float64(i)
	}

	signal, err := strat.GenerateSignal("TSLA", seriesFromCloses(closes))
	require.NoError(t, err)
	assert.Equal(t, SignalShort, signal)
}

func TestRSIReversion_NeutralIsFlat(t *testing.T) {
	strat, err := NewRSIReversion(5, 30, 70)
	require.NoError(t, err)

	closes := []float64{100, 101, 100, 101, 100, 101, 100, 101, 100, 101}
	signal, err := strat.GenerateSignal("TSLA", seriesFromCloses(closes))
	require.NoError(t, err)
	assert.Equal(t, SignalFlat, signal)
}

func TestRSIReversion_Validation(t *testing.T) {
	_, err := NewRSIReversion(0, 30, 70)
	assert.Error(t, err)

	_, err = NewRSIReversion(14, 70, 30)
	assert.Error(t, err)
}

func TestSignal_String(t *testing.T) {
	assert.Equal(t, "FLAT", SignalFlat.String())
	assert.Equal(t, "LONG", SignalLong.String())
	assert.Equal(t, "SHORT", SignalShort.String())
	assert.Equal(t, "UNKNOWN", Signal(42).String())
}

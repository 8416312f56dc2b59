package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbox/cvar-trading-bot/pkg/types"
)

func generateTestData(count int) []types.OHLCV {
	data := make([]types.OHLCV, count)
	for i := 0; i < count; i++ {
		data[i] = types.OHLCV{
			Open:      100.0,
			High:      105.0,
			Low:       95.0,
			Close:     100.0 + float64(i),
			Volume:    1000.0,
			Timestamp: time.Now().Add(time.Duration(i) * time.Hour),
		}
	}
	return data
}

func TestNewSMA(t *testing.T) {
	sma := NewSMA(20)

	assert.NotNil(t, sma)
	assert.Equal(t, 20, sma.Period())
	assert.Equal(t, 0.0, sma.LastValue())
}

func TestSMA_Calculate_InsufficientData(t *testing.T) {
	sma := NewSMA(20)
	data := generateTestData(10)

	_, err := sma.Calculate(data)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient data")
}

func TestSMA_Calculate_ExactPeriod(t *testing.T) {
	sma := NewSMA(5)
	data := generateTestData(5)

	value, err := sma.Calculate(data)
	require.NoError(t, err)

	expectedSum := 0.0
	for _, d := range data {
		expectedSum += d.Close
	}
	assert.InDelta(t, expectedSum/5.0, value, 0.01)
}

func TestSMA_Calculate_UsesTrailingWindow(t *testing.T) {
	sma := NewSMA(5)
	data := generateTestData(10)

	value, err := sma.Calculate(data)
	require.NoError(t, err)

	// Only the last 5 closes (105..109) contribute.
	assert.InDelta(t, 107.0, value, 0.01)
	assert.Equal(t, value, sma.LastValue())
}

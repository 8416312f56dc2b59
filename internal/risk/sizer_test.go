package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizer_Size(t *testing.T) {
	sizer := NewSizer(1e-6)

	qty, err := sizer.Size(100_000, 0.002, 50.0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, qty, 1e-9)
}

func TestSizer_FloorsToIncrement(t *testing.T) {
	sizer := NewSizer(0.1)

	qty, err := sizer.Size(1000, 0.1, 7.0) // 14.2857... shares
	require.NoError(t, err)
	assert.InDelta(t, 14.2, qty, 1e-9)
}

func TestSizer_WholeUnitsOnly(t *testing.T) {
	sizer := NewSizer(1.0)

	qty, err := sizer.Size(1000, 0.1, 7.0)
	require.NoError(t, err)
	assert.Equal(t, 14.0, qty)
}

func TestSizer_InvalidPrice(t *testing.T) {
	sizer := NewSizer(1e-6)

	_, err := sizer.Size(1000, 0.01, 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = sizer.Size(1000, 0.01, -3)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestSizer_ZeroBudget(t *testing.T) {
	sizer := NewSizer(1e-6)

	qty, err := sizer.Size(0, 0.01, 100)
	require.NoError(t, err)
	assert.Equal(t, 0.0, qty)
}

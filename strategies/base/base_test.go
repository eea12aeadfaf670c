package base

import (
	"ashare-backtester/types"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositiveInt(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]float64
		want    int
		wantErr bool
	}{
		{"missing uses default", nil, 14, false},
		{"set", map[string]float64{"period": 20}, 20, false},
		{"zero", map[string]float64{"period": 0}, 0, true},
		{"negative", map[string]float64{"period": -3}, 0, true},
		{"fractional", map[string]float64{"period": 2.5}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PositiveInt(tt.params, "period", 14)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCustomSettings)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckKeys(t *testing.T) {
	assert.NoError(t, CheckKeys(nil, "a"))
	assert.NoError(t, CheckKeys(map[string]float64{"a": 1, "b": 2}, "a", "b"))
	assert.ErrorIs(t, CheckKeys(map[string]float64{"c": 1}, "a", "b"), ErrInvalidCustomSettings)
}

func TestFloat(t *testing.T) {
	assert.Equal(t, 70.0, Float(nil, "overbought", 70))
	assert.Equal(t, 80.0, Float(map[string]float64{"overbought": 80}, "overbought", 70))
}

func TestWindow(t *testing.T) {
	d := decimal.NewFromInt
	var w []decimal.Decimal
	for i := int64(1); i <= 5; i++ {
		w = Window(w, d(i), 3)
	}
	require.Len(t, w, 3)
	assert.True(t, w[0].Equal(d(3)) && w[2].Equal(d(5)))

	// earlier windows are never modified by later appends
	prev := Window([]decimal.Decimal{d(1), d(2)}, d(3), 3)
	a := Window(prev, d(4), 3)
	b := Window(prev, d(9), 3)
	assert.True(t, prev[0].Equal(d(1)) && prev[2].Equal(d(3)))
	assert.True(t, a[2].Equal(d(4)))
	assert.True(t, b[2].Equal(d(9)))
}

func TestBarWindow(t *testing.T) {
	var w []types.Bar
	for i := 0; i < 4; i++ {
		w = BarWindow(w, types.Bar{Close: decimal.NewFromInt(int64(i))}, 2)
	}
	require.Len(t, w, 2)
	assert.True(t, w[0].Close.Equal(decimal.NewFromInt(2)))
	assert.True(t, w[1].Close.Equal(decimal.NewFromInt(3)))
}

func TestMean(t *testing.T) {
	assert.True(t, Mean(nil).IsZero())
	values := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(6)}
	assert.True(t, Mean(values).Equal(decimal.NewFromInt(3)))
}

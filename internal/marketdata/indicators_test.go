package marketdata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantBars(n int, close float64) []Bar {
	bars := make([]Bar, n)
	for i := range bars {
		bars[i] = Bar{Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1000}
	}
	return bars
}

func TestEMASeedIsSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	ema := EMA(values, 3)

	// Seed at index 2 is the simple average of the first 3 values.
	assert.InDelta(t, 2.0, ema[2], 1e-9)
	assert.Equal(t, 0.0, ema[0])
	assert.Equal(t, 0.0, ema[1])

	// k = 2/(3+1) = 0.5: next value is 4*0.5 + 2*0.5 = 3.
	assert.InDelta(t, 3.0, ema[3], 1e-9)
}

func TestEMAInsufficientData(t *testing.T) {
	ema := EMA([]float64{1, 2}, 5)
	assert.Equal(t, []float64{0, 0}, ema)
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 20)
	down := make([]float64, 20)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}

	assert.InDelta(t, 100.0, RSI(up, 14), 1e-9, "monotonic gains pin RSI at 100")
	assert.InDelta(t, 0.0, RSI(down, 14), 1e-9, "monotonic losses pin RSI at 0")
	assert.Equal(t, 50.0, RSI([]float64{1, 2, 3}, 14), "short history returns neutral")
}

func TestRSIMixedSeries(t *testing.T) {
	closes := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28}
	rsi := RSI(closes, 14)
	// Wilder's classic worked example lands around 70.
	assert.InDelta(t, 70.46, rsi, 0.5)
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	macd, signal, hist := MACD(closes)
	assert.InDelta(t, 0, macd, 1e-9)
	assert.InDelta(t, 0, signal, 1e-9)
	assert.InDelta(t, 0, hist, 1e-9)
}

func TestMACDUptrendPositive(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.8
	}
	macd, _, _ := MACD(closes)
	assert.Greater(t, macd, 0.0)
}

func TestMACDShortSeries(t *testing.T) {
	macd, signal, hist := MACD(make([]float64, 10))
	assert.Zero(t, macd)
	assert.Zero(t, signal)
	assert.Zero(t, hist)
}

func TestBollinger(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	closes[19] = 100 // flat series

	upper, lower, width, pos := Bollinger(closes, 20, 2.0)
	assert.InDelta(t, 100, upper, 1e-9)
	assert.InDelta(t, 100, lower, 1e-9)
	assert.InDelta(t, 0, width, 1e-9)
	assert.InDelta(t, 0.5, pos, 1e-9, "degenerate bands report mid position")
}

func TestBollingerPositionAtUpperBand(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i))*2
	}
	upper, lower, _, pos := Bollinger(closes, 20, 2.0)
	require.Greater(t, upper, lower)
	assert.GreaterOrEqual(t, pos, 0.0)
	assert.LessOrEqual(t, pos, 1.0)
}

func TestATRFlatRange(t *testing.T) {
	bars := constantBars(20, 100)
	// Every true range is high-low = 2.
	assert.InDelta(t, 2.0, ATR(bars, 14), 1e-9)
}

func TestATRInsufficientData(t *testing.T) {
	assert.Equal(t, 0.0, ATR(constantBars(5, 100), 14))
}

func TestSnapshot(t *testing.T) {
	bars := make([]Bar, 30)
	for i := range bars {
		c := 100 + float64(i)*0.5
		bars[i] = Bar{Open: c - 0.2, High: c + 1, Low: c - 1, Close: c, Volume: 1_000_000}
	}

	snap, err := Snapshot(bars)
	require.NoError(t, err)

	assert.Equal(t, 30, snap.Bars)
	assert.InDelta(t, 114.5, snap.LastClose, 1e-9)
	assert.Greater(t, snap.EMA9, snap.EMA21, "uptrend puts fast EMA above slow")
	assert.Greater(t, snap.RSI14, 50.0)
	assert.Greater(t, snap.ATR14, 0.0)
	assert.InDelta(t, 1_000_000, snap.AvgVolume, 1e-9)
}

func TestSnapshotTooFewBars(t *testing.T) {
	_, err := Snapshot([]Bar{{Close: 100}})
	assert.Error(t, err)
}

package marketdata

import (
	"fmt"
	"math"

	"github.com/signalyard/metaengine/internal/models"
)

// EMA returns the exponential moving average series for the closes,
// seeded with the simple average of the first period values. Entries
// before the seed index are zero.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes the Wilder-smoothed relative strength index for the
// final bar. Returns 50 when there is not enough history.
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gain += diff
		} else {
			loss -= diff
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if diff > 0 {
			g = diff
		} else {
			l = -diff
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the MACD line, signal line, and histogram for the final
// bar using the standard 12/26/9 periods.
func MACD(closes []float64) (macd, signal, hist float64) {
	if len(closes) < 26 {
		return 0, 0, 0
	}

	fast := EMA(closes, 12)
	slow := EMA(closes, 26)

	line := make([]float64, 0, len(closes)-25)
	for i := 25; i < len(closes); i++ {
		line = append(line, fast[i]-slow[i])
	}

	macd = line[len(line)-1]
	if len(line) >= 9 {
		sig := EMA(line, 9)
		signal = sig[len(sig)-1]
	}
	return macd, signal, macd - signal
}

// Bollinger returns the upper band, lower band, band width relative to
// the middle, and %B position for the final bar (period 20, 2 std dev).
func Bollinger(closes []float64, period int, stdDevs float64) (upper, lower, width, pos float64) {
	if period <= 0 || len(closes) < period {
		return 0, 0, 0, 0.5
	}

	window := closes[len(closes)-period:]
	var sum float64
	for _, c := range window {
		sum += c
	}
	mid := sum / float64(period)

	var variance float64
	for _, c := range window {
		variance += (c - mid) * (c - mid)
	}
	sd := math.Sqrt(variance / float64(period))

	upper = mid + stdDevs*sd
	lower = mid - stdDevs*sd
	if mid > 0 {
		width = (upper - lower) / mid
	}
	last := closes[len(closes)-1]
	if upper > lower {
		pos = (last - lower) / (upper - lower)
	} else {
		pos = 0.5
	}
	return upper, lower, width, pos
}

// ATR computes the Wilder-smoothed average true range for the final bar.
func ATR(bars []Bar, period int) float64 {
	if len(bars) <= period {
		return 0
	}

	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		trs = append(trs, math.Max(hl, math.Max(hc, lc)))
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}

// Snapshot computes the full indicator set the cross-analyzer scores
// from. Needs at least two bars.
func Snapshot(bars []Bar) (*models.IndicatorSnapshot, error) {
	if len(bars) < 2 {
		return nil, fmt.Errorf("need at least 2 bars, got %d", len(bars))
	}

	closes := make([]float64, len(bars))
	var volSum float64
	for i, b := range bars {
		closes[i] = b.Close
		volSum += b.Volume
	}

	ema9 := EMA(closes, 9)
	ema21 := EMA(closes, 21)
	macd, signal, hist := MACD(closes)
	upper, lower, width, pos := Bollinger(closes, 20, 2.0)

	snap := &models.IndicatorSnapshot{
		LastClose:      closes[len(closes)-1],
		EMA9:           ema9[len(ema9)-1],
		EMA21:          ema21[len(ema21)-1],
		RSI14:          RSI(closes, 14),
		MACD:           macd,
		MACDSignal:     signal,
		MACDHistogram:  hist,
		BollingerUpper: upper,
		BollingerLower: lower,
		BollingerWidth: width,
		BollingerPos:   pos,
		ATR14:          ATR(bars, 14),
		AvgVolume:      volSum / float64(len(bars)),
		LastVolume:     bars[len(bars)-1].Volume,
		Bars:           len(bars),
	}
	return snap, nil
}

// Package analysis evaluates each engine's picks through the opposite
// engine's lens, flags overnight gaps and cross-engine conflicts, and
// produces the combined ranking the scorer consumes.
package analysis

import (
	"math"

	"github.com/signalyard/metaengine/internal/models"
)

// Puts lens component weights and verdict thresholds.
const (
	putsWeightDistribution = 0.30
	putsWeightTechnical    = 0.20
	putsWeightVolume       = 0.20
	putsWeightMomentum     = 0.15
	putsWeightPattern      = 0.15

	putsHighThreshold     = 0.60
	putsModerateThreshold = 0.40
)

// Moonshot lens component weights and verdict thresholds.
const (
	moonWeightTechnical = 0.25
	moonWeightMomentum  = 0.25
	moonWeightVolume    = 0.20
	moonWeightPattern   = 0.15
	moonWeightSqueeze   = 0.15

	moonHighThreshold     = 0.55
	moonModerateThreshold = 0.35
)

// putsLensScore scores how bearish the technical state looks, in [0,1].
func putsLensScore(s *models.IndicatorSnapshot) float64 {
	// Distribution: selling pressure shows up as price pinned to the
	// lower band on expanding volume.
	distribution := clamp01(1-s.BollingerPos)*0.6 + volumeRatio(s)*0.4

	// Technical: price below both EMAs with the fast one underneath.
	technical := 0.0
	if s.LastClose < s.EMA21 {
		technical += 0.5
	}
	if s.EMA9 < s.EMA21 {
		technical += 0.3
	}
	if s.MACD < s.MACDSignal {
		technical += 0.2
	}

	volume := volumeRatio(s)

	// Momentum: weak RSI reads bearish; deeply oversold caps out.
	momentum := clamp01((55 - s.RSI14) / 35)

	// Pattern: negative MACD histogram widening against band squeeze.
	pattern := 0.0
	if s.MACDHistogram < 0 {
		pattern += 0.6
	}
	if s.BollingerWidth > 0.08 {
		pattern += 0.4
	}

	return clamp01(distribution*putsWeightDistribution +
		technical*putsWeightTechnical +
		volume*putsWeightVolume +
		momentum*putsWeightMomentum +
		pattern*putsWeightPattern)
}

// moonshotLensScore scores how explosive the upside setup looks, in [0,1].
func moonshotLensScore(s *models.IndicatorSnapshot) float64 {
	// Technical: price above both EMAs with the fast one on top.
	technical := 0.0
	if s.LastClose > s.EMA21 {
		technical += 0.5
	}
	if s.EMA9 > s.EMA21 {
		technical += 0.3
	}
	if s.MACD > s.MACDSignal {
		technical += 0.2
	}

	// Momentum: strong but not blown-out RSI.
	momentum := clamp01((s.RSI14 - 45) / 35)

	volume := volumeRatio(s)

	// Pattern: positive MACD histogram plus price in the upper band.
	pattern := 0.0
	if s.MACDHistogram > 0 {
		pattern += 0.6
	}
	if s.BollingerPos > 0.7 {
		pattern += 0.4
	}

	// Squeeze: tight bands wind up the spring.
	squeeze := clamp01((0.10 - s.BollingerWidth) / 0.10)

	return clamp01(technical*moonWeightTechnical +
		momentum*moonWeightMomentum +
		volume*moonWeightVolume +
		pattern*moonWeightPattern +
		squeeze*moonWeightSqueeze)
}

// volumeRatio normalizes the last session's volume against the window
// average, saturating at 2x.
func volumeRatio(s *models.IndicatorSnapshot) float64 {
	if s.AvgVolume <= 0 {
		return 0
	}
	return clamp01((s.LastVolume/s.AvgVolume - 0.5) / 1.5)
}

// verdictFor maps a lens score to a verdict using the lens's
// thresholds.
func verdictFor(lens models.Engine, score float64) models.Verdict {
	high, moderate := putsHighThreshold, putsModerateThreshold
	if lens == models.EngineMoonshot {
		high, moderate = moonHighThreshold, moonModerateThreshold
	}
	switch {
	case score >= high:
		return models.VerdictHigh
	case score >= moderate:
		return models.VerdictModerate
	default:
		return models.VerdictLow
	}
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

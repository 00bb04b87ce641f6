package analysis

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/marketdata"
	"github.com/signalyard/metaengine/internal/models"
)

// MarketDirection summarizes the tape for the report and summaries.
type MarketDirection struct {
	Label      string  `json:"label"` // BULLISH | BEARISH | NEUTRAL
	SpyTrend   float64 `json:"spy_trend"`
	Breadth    float64 `json:"breadth"` // -1 bearish .. +1 bullish
	Confidence float64 `json:"confidence"`
}

// PredictDirection derives a market call from the SPY trend and the
// relative strength of the two engines' verdicts.
func PredictDirection(ctx context.Context, bars marketdata.BarProvider,
	results []models.CrossAnalysis, logger *logrus.Logger) MarketDirection {

	dir := MarketDirection{Label: "NEUTRAL"}

	// Breadth: HIGH opposite-lens verdicts argue against their source
	// engine; count them with the lens's direction.
	var bullish, bearish float64
	for _, r := range results {
		weight := 0.0
		switch r.Verdict {
		case models.VerdictHigh:
			weight = 1.0
		case models.VerdictModerate:
			weight = 0.4
		}
		if r.SourceEngine.Opposite() == models.EngineMoonshot {
			bullish += weight
		} else {
			bearish += weight
		}
		// Source conviction counts too, at half weight.
		if r.SourceEngine == models.EngineMoonshot {
			bullish += r.SourceScore * 0.5
		} else {
			bearish += r.SourceScore * 0.5
		}
	}
	if total := bullish + bearish; total > 0 {
		dir.Breadth = (bullish - bearish) / total
	}

	spyBars, err := bars.GetDailyBars(ctx, "SPY", barWindowDays)
	if err != nil {
		logger.WithError(err).Warn("SPY bars unavailable, direction from breadth only")
	} else if snap, err := marketdata.Snapshot(spyBars); err == nil && snap.EMA21 > 0 {
		dir.SpyTrend = (snap.LastClose - snap.EMA21) / snap.EMA21
	}

	score := dir.Breadth*0.6 + clamp01(dir.SpyTrend*20+0.5)*2*0.4 - 0.4
	switch {
	case score > 0.15:
		dir.Label = "BULLISH"
	case score < -0.15:
		dir.Label = "BEARISH"
	}
	dir.Confidence = clamp01(abs(score) * 2)
	return dir
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

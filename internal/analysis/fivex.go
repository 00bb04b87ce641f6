package analysis

import (
	"sort"

	"github.com/signalyard/metaengine/internal/models"
	"github.com/signalyard/metaengine/internal/scoring"
)

// fiveXTopN is how many of the combined ranking get the 5x screen.
const fiveXTopN = 25

// Assumed entry economics for the 5x screen. The screen ranks
// relative convexity; the executor prices real contracts later.
const (
	assumedDelta      = 0.35
	assumedPremiumPct = 0.02
)

// FiveXCandidate is one symbol with outsized option return potential.
type FiveXCandidate struct {
	Symbol        string  `json:"symbol"`
	SourceEngine  string  `json:"source_engine"`
	ExpectedMove  float64 `json:"expected_move_pct"`
	MovePotential float64 `json:"move_potential"`
}

// FiveXScan ranks the top of the combined ranking by raw option return
// potential, using ATR-implied expected moves.
func FiveXScan(results []models.CrossAnalysis) []FiveXCandidate {
	n := len(results)
	if n > fiveXTopN {
		n = fiveXTopN
	}

	var out []FiveXCandidate
	for _, r := range results[:n] {
		if r.Indicators == nil || r.Indicators.LastClose <= 0 {
			continue
		}
		movePct, mp := MovePotentialFor(r)
		out = append(out, FiveXCandidate{
			Symbol:        r.Symbol,
			SourceEngine:  string(r.SourceEngine),
			ExpectedMove:  movePct,
			MovePotential: mp,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].MovePotential > out[j].MovePotential })
	return out
}

// MovePotentialFor estimates one result's expected move percent and raw
// option return potential. Results without indicators score zero.
func MovePotentialFor(r models.CrossAnalysis) (movePct, potential float64) {
	if r.Indicators == nil || r.Indicators.LastClose <= 0 {
		return 0, 0
	}
	// Expected move over the hold window: ATR as a one-day move,
	// scaled by sqrt-of-time heuristic folded into a flat 3x.
	movePct = r.Indicators.ATR14 / r.Indicators.LastClose * 100 * 3

	// Band position proxies gamma exposure: trades at the extreme of
	// the band carry dealer-hedging convexity.
	gammaExposure := 2*r.Indicators.BollingerPos - 1
	if r.SourceEngine == models.EnginePuts {
		gammaExposure = -gammaExposure
	}
	if gammaExposure < 0 {
		gammaExposure = 0
	}
	return movePct, scoring.MovePotential(assumedDelta, movePct, gammaExposure, assumedPremiumPct)
}

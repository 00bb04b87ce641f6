package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/signalyard/metaengine/internal/marketdata"
	"github.com/signalyard/metaengine/internal/models"
)

// Gap thresholds against the prior close.
const (
	gapFlagPct     = 5.0
	gapCriticalPct = 10.0
)

// barWindowDays is how much daily history the lenses need.
const barWindowDays = 30

// maxConcurrentFetches bounds the parallel per-symbol bar pulls.
const maxConcurrentFetches = 4

// Tier labels recorded on each cross-analysis.
const (
	TierCached     = "cached"
	TierStandalone = "standalone"
)

// CrossAnalyzer runs each pick through the opposite engine's lens.
type CrossAnalyzer struct {
	bars   marketdata.BarProvider
	logger *logrus.Logger
}

// NewCrossAnalyzer creates an analyzer on the given bar provider.
func NewCrossAnalyzer(bars marketdata.BarProvider, logger *logrus.Logger) *CrossAnalyzer {
	return &CrossAnalyzer{bars: bars, logger: logger}
}

// Bars exposes the underlying bar provider for downstream steps that
// share the same market data source.
func (ca *CrossAnalyzer) Bars() marketdata.BarProvider { return ca.bars }

// Analyze cross-examines every pick from both engines. Picks whose
// market data cannot be fetched get a result with a note instead of
// failing the run. The returned slice is the combined ranking, sorted
// by source score descending.
func (ca *CrossAnalyzer) Analyze(ctx context.Context, putsPicks, moonPicks []models.Pick) []models.CrossAnalysis {
	putsBySymbol := indexBySymbol(putsPicks)
	moonBySymbol := indexBySymbol(moonPicks)

	all := make([]models.Pick, 0, len(putsPicks)+len(moonPicks))
	all = append(all, putsPicks...)
	all = append(all, moonPicks...)

	results := make([]models.CrossAnalysis, len(all))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, pick := range all {
		i, pick := i, pick
		g.Go(func() error {
			res := ca.analyzeOne(gctx, pick, putsBySymbol, moonBySymbol)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; they degrade per-symbol

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SourceScore > results[j].SourceScore
	})
	return results
}

func (ca *CrossAnalyzer) analyzeOne(ctx context.Context, pick models.Pick,
	putsBySymbol, moonBySymbol map[string]models.Pick) models.CrossAnalysis {

	res := models.CrossAnalysis{
		Symbol:       pick.Symbol,
		SourceEngine: pick.Engine,
		SourceScore:  pick.Score,
		Conflict:     models.ConflictNone,
	}
	oppositeLens := pick.Engine.Opposite()

	bars, err := ca.bars.GetDailyBars(ctx, pick.Symbol, barWindowDays)
	if err != nil {
		ca.logger.WithFields(logrus.Fields{
			"symbol": pick.Symbol,
			"engine": pick.Engine,
		}).WithError(err).Warn("Market data unavailable, cross-analysis degraded")
		res.Notes = append(res.Notes, fmt.Sprintf("market data unavailable: %v", err))
		res.Verdict = models.VerdictLow
		ca.applyCachedTier(&res, oppositeLens, putsBySymbol, moonBySymbol)
		return res
	}

	snap, err := marketdata.Snapshot(bars)
	if err != nil {
		res.Notes = append(res.Notes, fmt.Sprintf("indicator snapshot failed: %v", err))
		res.Verdict = models.VerdictLow
		return res
	}
	res.Indicators = snap
	res.FreshPrice = snap.LastClose
	res.Gap = detectGap(bars)

	// Tier 1: when the opposite engine already holds this symbol, its
	// published score is the lens.
	if !ca.applyCachedTier(&res, oppositeLens, putsBySymbol, moonBySymbol) {
		// Standalone tier: score the opposite thesis from indicators.
		res.Tier = TierStandalone
		if oppositeLens == models.EnginePuts {
			res.OppositeScore = putsLensScore(snap)
		} else {
			res.OppositeScore = moonshotLensScore(snap)
		}
		res.Verdict = verdictFor(oppositeLens, res.OppositeScore)
	}

	res.Conflict = conflictState(pick, res.Verdict, putsBySymbol, moonBySymbol)
	return res
}

// applyCachedTier fills the opposite score from the opposite engine's
// own pick list when present. Returns true when the cached tier applied.
func (ca *CrossAnalyzer) applyCachedTier(res *models.CrossAnalysis, oppositeLens models.Engine,
	putsBySymbol, moonBySymbol map[string]models.Pick) bool {

	opposite := putsBySymbol
	if oppositeLens == models.EngineMoonshot {
		opposite = moonBySymbol
	}
	cached, ok := opposite[res.Symbol]
	if !ok {
		return false
	}
	res.Tier = TierCached
	res.OppositeScore = cached.Score
	res.Verdict = verdictFor(oppositeLens, cached.Score)
	return true
}

// detectGap compares the last open against the prior close.
func detectGap(bars []marketdata.Bar) *models.GapInfo {
	if len(bars) < 2 {
		return nil
	}
	prev := bars[len(bars)-2].Close
	last := bars[len(bars)-1].Open
	if prev <= 0 {
		return nil
	}
	pct := (last - prev) / prev * 100
	return &models.GapInfo{
		GapPct:   pct,
		Flagged:  math.Abs(pct) >= gapFlagPct,
		Critical: math.Abs(pct) >= gapCriticalPct,
	}
}

// conflictState classifies cross-engine disagreement on a symbol held
// by both engines.
func conflictState(pick models.Pick, verdict models.Verdict,
	putsBySymbol, moonBySymbol map[string]models.Pick) models.ConflictState {

	_, inPuts := putsBySymbol[pick.Symbol]
	_, inMoon := moonBySymbol[pick.Symbol]
	if !inPuts || !inMoon {
		return models.ConflictNone
	}
	// Both engines hold it. A HIGH opposite verdict means conviction
	// on each side of the trade.
	if verdict == models.VerdictHigh {
		return models.ConflictHard
	}
	return models.ConflictMonitor
}

// BackfillPrices overwrites stale pick prices with the fresh closes
// observed during cross-analysis. Always overwrites: engine caches can
// be hours old by the PM run.
func BackfillPrices(picks []models.Pick, results []models.CrossAnalysis) {
	fresh := make(map[string]float64, len(results))
	for _, r := range results {
		if r.FreshPrice > 0 {
			fresh[r.Symbol] = r.FreshPrice
		}
	}
	for i := range picks {
		if p, ok := fresh[picks[i].Symbol]; ok {
			picks[i].Price = p
		}
	}
}

func indexBySymbol(picks []models.Pick) map[string]models.Pick {
	m := make(map[string]models.Pick, len(picks))
	for _, p := range picks {
		m[p.Symbol] = p
	}
	return m
}

// Package scoring implements the Options Return Multiplier (ORM)
// heuristic, score blending, the entry gate policy, and letter grades.
package scoring

import "time"

// ORM factor weights. Tuned against the 2025 paper-trade ledger; the
// weights sum to 1.0.
const (
	weightGammaLeverage  = 0.15
	weightIVExpansion    = 0.20
	weightOIPositioning  = 0.15
	weightDeltaSweet     = 0.10
	weightShortDTE       = 0.10
	weightVolRegime      = 0.10
	weightDealerPosition = 0.15
	weightLiquidity      = 0.05

	// defaultFactor stands in for every factor when no options-flow
	// data is available for the symbol.
	defaultFactor = 0.35
)

// ORMStatus describes how the ORM score was obtained.
type ORMStatus string

const (
	// ORMComputed means all factors came from live options-flow data.
	ORMComputed ORMStatus = "computed"
	// ORMDefault means no flow data existed and every factor used the
	// neutral default.
	ORMDefault ORMStatus = "default"
	// ORMMissing means the score could not be produced at all.
	ORMMissing ORMStatus = "missing"
	// ORMStale means flow data existed but was older than one session.
	ORMStale ORMStatus = "stale"
)

// ORMInputs holds the eight normalized factors, each in [0,1].
type ORMInputs struct {
	GammaLeverage  float64
	IVExpansion    float64
	OIPositioning  float64
	DeltaSweet     float64
	ShortDTE       float64
	VolRegime      float64
	DealerPosition float64
	Liquidity      float64

	// HasRealData is false when the factors were not observable and
	// the neutral default applies across the board.
	HasRealData bool
	// AsOf is when the underlying flow data was captured.
	AsOf time.Time
}

// ORMResult is the scored multiplier with its provenance.
type ORMResult struct {
	Score  float64
	Status ORMStatus
}

// ComputeORM scores the weighted factor blend. Nil inputs yield a
// missing result; inputs without real data yield the neutral default
// score; data older than maxAge is marked stale but still scored.
func ComputeORM(in *ORMInputs, now time.Time, maxAge time.Duration) ORMResult {
	if in == nil {
		return ORMResult{Score: 0, Status: ORMMissing}
	}

	if !in.HasRealData {
		score := defaultFactor // all factors equal, weights sum to 1
		return ORMResult{Score: score, Status: ORMDefault}
	}

	score := in.GammaLeverage*weightGammaLeverage +
		in.IVExpansion*weightIVExpansion +
		in.OIPositioning*weightOIPositioning +
		in.DeltaSweet*weightDeltaSweet +
		in.ShortDTE*weightShortDTE +
		in.VolRegime*weightVolRegime +
		in.DealerPosition*weightDealerPosition +
		in.Liquidity*weightLiquidity

	status := ORMComputed
	if maxAge > 0 && !in.AsOf.IsZero() && now.Sub(in.AsOf) > maxAge {
		status = ORMStale
	}
	return ORMResult{Score: clamp01(score), Status: status}
}

// Blend weights by ORM provenance. A computed multiplier earns real
// influence over the meta score; defaults barely move it; missing and
// stale multipliers are ignored.
const (
	blendWeightComputed = 0.18
	blendWeightDefault  = 0.08
)

// BlendScore folds the ORM multiplier into the meta score with a
// status-aware weight.
func BlendScore(metaScore float64, orm ORMResult) float64 {
	var w float64
	switch orm.Status {
	case ORMComputed:
		w = blendWeightComputed
	case ORMDefault:
		w = blendWeightDefault
	default: // missing, stale
		w = 0
	}
	return metaScore*(1-w) + orm.Score*w
}

// GammaBoost returns the convexity multiplier tier for a normalized
// gamma exposure reading.
func GammaBoost(gammaExposure float64) float64 {
	switch {
	case gammaExposure >= 0.75:
		return 1.4
	case gammaExposure >= 0.50:
		return 1.2
	case gammaExposure >= 0.25:
		return 1.1
	default:
		return 1.0
	}
}

// MovePotential estimates the raw option return for an expected
// underlying move: (delta * move * boost) / (premium% * 100).
func MovePotential(delta, expectedMovePct, gammaExposure, premiumPct float64) float64 {
	if premiumPct <= 0 {
		return 0
	}
	return (delta * expectedMovePct * GammaBoost(gammaExposure)) / (premiumPct * 100)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

package models

// Verdict is the opposite-lens assessment of a pick.
type Verdict string

const (
	VerdictHigh     Verdict = "HIGH"
	VerdictModerate Verdict = "MODERATE"
	VerdictLow      Verdict = "LOW"
)

// ConflictState describes agreement between the two engines on a symbol.
type ConflictState string

const (
	// ConflictNone is the normal case: only one engine holds the symbol.
	ConflictNone ConflictState = "CLEAR"
	// ConflictMonitor means both engines hold the symbol but the
	// opposite lens reads it as weak.
	ConflictMonitor ConflictState = "MONITOR"
	// ConflictHard means both engines hold the symbol with conviction
	// on each side.
	ConflictHard ConflictState = "CONFLICT"
)

// IndicatorSnapshot captures the technical state computed from daily bars.
type IndicatorSnapshot struct {
	LastClose      float64 `json:"last_close"`
	EMA9           float64 `json:"ema_9"`
	EMA21          float64 `json:"ema_21"`
	RSI14          float64 `json:"rsi_14"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	MACDHistogram  float64 `json:"macd_histogram"`
	BollingerUpper float64 `json:"bollinger_upper"`
	BollingerLower float64 `json:"bollinger_lower"`
	BollingerWidth float64 `json:"bollinger_width"`
	BollingerPos   float64 `json:"bollinger_pos"` // %B, 0 at lower band, 1 at upper
	ATR14          float64 `json:"atr_14"`
	AvgVolume      float64 `json:"avg_volume"`
	LastVolume     float64 `json:"last_volume"`
	Bars           int     `json:"bars"`
}

// GapInfo flags an overnight gap against the previous close.
type GapInfo struct {
	GapPct   float64 `json:"gap_pct"`
	Flagged  bool    `json:"flagged"`  // abs gap >= 5%
	Critical bool    `json:"critical"` // abs gap >= 10%
}

// CrossAnalysis is the result of evaluating one pick through the
// opposite engine's lens.
type CrossAnalysis struct {
	Symbol        string             `json:"symbol"`
	SourceEngine  Engine             `json:"source_engine"`
	SourceScore   float64            `json:"source_score"`
	OppositeScore float64            `json:"opposite_score"`
	Verdict       Verdict            `json:"verdict"`
	Tier          string             `json:"tier"` // cached, live, or standalone
	Conflict      ConflictState      `json:"conflict"`
	Indicators    *IndicatorSnapshot `json:"indicators,omitempty"`
	Gap           *GapInfo           `json:"gap,omitempty"`
	FreshPrice    float64            `json:"fresh_price,omitempty"`
	Notes         []string           `json:"notes,omitempty"`
}

// ScoredPick is a pick after ORM blending and gate evaluation.
type ScoredPick struct {
	Pick          Pick           `json:"pick"`
	Cross         *CrossAnalysis `json:"cross,omitempty"`
	ORMScore      float64        `json:"orm_score"`
	ORMStatus     string         `json:"orm_status"` // computed, default, missing, stale
	BlendedScore  float64        `json:"blended_score"`
	MovePotential float64        `json:"move_potential"`
	Grade         string         `json:"grade"`
	Passed        bool           `json:"passed"`
	RejectReasons []string       `json:"reject_reasons,omitempty"`
	ThetaFlags    []string       `json:"theta_flags,omitempty"`
}

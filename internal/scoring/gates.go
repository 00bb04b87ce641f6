package scoring

import (
	"fmt"
	"time"

	"github.com/signalyard/metaengine/internal/calendar"
)

// Entry gate thresholds, policy v2.
const (
	MinORMScore      = 0.50 // applies to computed ORM only
	MinSignalCount   = 5
	MinBaseScore     = 0.65
	MinScoreGate     = 0.55 // blended, after penalties
	MinMovePotential = 0.50

	// ormMissingPenalty is subtracted from the blended score when the
	// multiplier was not computed from real flow data, whether the
	// flow file was absent or the symbol just was not in it; scoreFloor
	// stops the penalty from zeroing a candidate outright.
	ormMissingPenalty = 0.08
	scoreFloor        = 0.10

	// Weak candidates with no flow data need an exceptional meta
	// score to pass.
	sparseSignalCount = 3
	sparseScoreBar    = 0.80

	// Theta awareness: warn on entries that bleed over long weekends
	// or sit on a Friday.
	longWeekendGapDays = 4
)

// GateInput is everything the gate policy evaluates for one candidate.
type GateInput struct {
	BaseScore     float64
	SignalCount   int
	ORM           ORMResult
	MovePotential float64
	Now           time.Time
}

// GateResult is the gate decision with the adjusted score and any
// advisory flags.
type GateResult struct {
	Passed        bool
	BlendedScore  float64
	Grade         string
	RejectReasons []string
	ThetaFlags    []string
}

// EvaluateGates applies the entry gate policy to one candidate.
// Theta flags are advisory and never block entry.
func EvaluateGates(in GateInput) GateResult {
	res := GateResult{BlendedScore: BlendScore(in.BaseScore, in.ORM)}

	// Penalize candidates without a computed multiplier. Default
	// status means the flow file held nothing for this symbol, so it
	// is as unscored as missing.
	if in.ORM.Status == ORMMissing || in.ORM.Status == ORMDefault {
		res.BlendedScore -= ormMissingPenalty
		if res.BlendedScore < scoreFloor {
			res.BlendedScore = scoreFloor
		}
	}

	if in.ORM.Status == ORMComputed && in.ORM.Score < MinORMScore {
		res.RejectReasons = append(res.RejectReasons,
			fmt.Sprintf("orm_below_min: %.2f < %.2f", in.ORM.Score, MinORMScore))
	}

	if in.SignalCount < MinSignalCount {
		res.RejectReasons = append(res.RejectReasons,
			fmt.Sprintf("signal_count_below_min: %d < %d", in.SignalCount, MinSignalCount))
	}

	if in.BaseScore < MinBaseScore {
		res.RejectReasons = append(res.RejectReasons,
			fmt.Sprintf("base_score_below_min: %.2f < %.2f", in.BaseScore, MinBaseScore))
	}

	if res.BlendedScore < MinScoreGate {
		res.RejectReasons = append(res.RejectReasons,
			fmt.Sprintf("blended_score_below_gate: %.2f < %.2f", res.BlendedScore, MinScoreGate))
	}

	if in.MovePotential < MinMovePotential {
		res.RejectReasons = append(res.RejectReasons,
			fmt.Sprintf("move_potential_below_min: %.2f < %.2f", in.MovePotential, MinMovePotential))
	}

	// No flow data, thin signals, unexceptional meta score: reject
	// even if the individual gates above were narrowly cleared. The
	// bar applies to the raw meta score, before the penalty.
	if (in.ORM.Status == ORMMissing || in.ORM.Status == ORMDefault) &&
		in.SignalCount < sparseSignalCount && in.BaseScore < sparseScoreBar {
		res.RejectReasons = append(res.RejectReasons, "no_flow_data_and_sparse_signals")
	}

	res.ThetaFlags = thetaFlags(in.Now)
	res.Passed = len(res.RejectReasons) == 0
	res.Grade = Grade(in.ORM, in.SignalCount, res.BlendedScore)
	return res
}

func thetaFlags(now time.Time) []string {
	var flags []string
	if gap := calendar.CalendarDaysToNextSession(now); gap >= longWeekendGapDays {
		flags = append(flags, fmt.Sprintf("long_weekend_ahead: %d calendar days to next session", gap))
	}
	if now.Weekday() == time.Friday {
		flags = append(flags, "friday_entry_theta_decay")
	}
	return flags
}

// Grade assigns a letter grade from ORM provenance, signal depth, and
// the blended score.
func Grade(orm ORMResult, signalCount int, blended float64) string {
	switch {
	case orm.Status == ORMComputed && orm.Score >= 0.70 && signalCount >= 7 && blended >= 0.80:
		return "A+"
	case orm.Status == ORMComputed && orm.Score >= 0.60 && signalCount >= 5 && blended >= 0.70:
		return "A"
	case blended >= 0.60:
		return "B"
	default:
		return "C"
	}
}

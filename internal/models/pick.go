// Package models provides the core data structures shared across the
// engine adapters, cross-analyzer, scorer, and trade executor.
package models

import "time"

// Engine identifies which upstream engine produced a pick.
type Engine string

const (
	EnginePuts     Engine = "puts"
	EngineMoonshot Engine = "moonshot"
)

// Direction is the option side a pick implies.
type Direction string

const (
	DirectionBearish Direction = "bearish" // puts
	DirectionBullish Direction = "bullish" // calls
)

// Direction returns the option side implied by the engine.
func (e Engine) Direction() Direction {
	if e == EnginePuts {
		return DirectionBearish
	}
	return DirectionBullish
}

// Opposite returns the other engine.
func (e Engine) Opposite() Engine {
	if e == EnginePuts {
		return EngineMoonshot
	}
	return EnginePuts
}

// Pick is a single Top-10 candidate pulled from an upstream engine.
type Pick struct {
	Symbol      string    `json:"symbol"`
	Engine      Engine    `json:"engine"`
	Rank        int       `json:"rank"`
	Score       float64   `json:"score"`
	Price       float64   `json:"price"`
	Signals     []string  `json:"signals,omitempty"`
	SmartMoney  bool      `json:"smart_money,omitempty"` // filled in by boost-only enrichment
	Conviction  float64   `json:"conviction,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SignalCount returns the number of distinct supporting signals.
func (p *Pick) SignalCount() int {
	return len(p.Signals)
}

// Session labels the two daily runs.
type Session string

const (
	SessionAM Session = "AM"
	SessionPM Session = "PM"
)

// SessionFor returns the run session for a wall-clock time: before
// noon is AM, everything after is PM.
func SessionFor(t time.Time) Session {
	if t.Hour() < 12 {
		return SessionAM
	}
	return SessionPM
}

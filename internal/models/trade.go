package models

import (
	"fmt"
	"time"
)

// TradeStatus represents the lifecycle state of a paper trade.
type TradeStatus string

const (
	// StatusPending means the entry order is submitted but not filled.
	StatusPending TradeStatus = "pending"
	// StatusFilled means the entry order filled this cycle; the trade
	// becomes open on the next position sync.
	StatusFilled TradeStatus = "filled"
	// StatusOpen means the position is live and managed by exit rules.
	StatusOpen TradeStatus = "open"
	// StatusClosed means an exit order completed.
	StatusClosed TradeStatus = "closed"
	// StatusCancelled means the entry order was cancelled, expired at
	// the broker, or rejected before filling.
	StatusCancelled TradeStatus = "cancelled"
	// StatusExpired means the contract reached expiry while open.
	StatusExpired TradeStatus = "expired"
)

// TradeTransition defines a valid lifecycle edge.
type TradeTransition struct {
	From      TradeStatus
	To        TradeStatus
	Condition string
}

// Valid trade transitions.
var ValidTradeTransitions = []TradeTransition{
	{StatusPending, StatusFilled, "order_filled"},
	{StatusPending, StatusCancelled, "order_cancelled"},
	{StatusFilled, StatusOpen, "position_opened"},
	{StatusFilled, StatusClosed, "exit_filled"},
	{StatusOpen, StatusClosed, "exit_filled"},
	{StatusOpen, StatusExpired, "contract_expired"},
}

// Trade is one paper option trade, persisted to SQLite for the life of
// the position and kept for 180 days after close.
type Trade struct {
	ID       uint   `json:"-" gorm:"primaryKey"`
	TradeID  string `json:"trade_id" gorm:"uniqueIndex;size:64"`
	Session  string `json:"session" gorm:"size:2"`
	ScanDate string `json:"scan_date" gorm:"index;size:10"`

	Symbol       string  `json:"symbol" gorm:"index;size:12"`
	OptionSymbol string  `json:"option_symbol" gorm:"size:32"`
	OptionType   string  `json:"option_type" gorm:"size:4"` // call or put
	StrikePrice  float64 `json:"strike_price"`
	ExpiryDate   string  `json:"expiry_date" gorm:"size:10"`
	Contracts    int     `json:"contracts"`

	EntryPrice      float64 `json:"entry_price"`
	CurrentPrice    float64 `json:"current_price"`
	ExitPrice       float64 `json:"exit_price"`
	UnderlyingPrice float64 `json:"underlying_price"`

	MetaScore    float64 `json:"meta_score"`
	MetaSignals  string  `json:"meta_signals" gorm:"type:text"` // JSON array
	SourceEngine string  `json:"source_engine" gorm:"size:16"`

	EntryOrderID string      `json:"entry_order_id" gorm:"size:64"`
	ExitOrderID  string      `json:"exit_order_id" gorm:"size:64"`
	Status       TradeStatus `json:"status" gorm:"index;size:12"`
	ExitReason   string      `json:"exit_reason" gorm:"size:32"`

	PnL    float64 `json:"pnl"`
	PnLPct float64 `json:"pnl_pct"`

	PartialProfitTaken bool    `json:"partial_profit_taken"`
	PartialProfitPrice float64 `json:"partial_profit_price"`
	PartialProfitPct   float64 `json:"partial_profit_pct"`

	FilledAt  *time.Time `json:"filled_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName pins the table name used by the storage layer.
func (Trade) TableName() string { return "trades" }

// IsOpen reports whether the trade holds a live position. Filled trades
// count: the fill is live even before the sync promotes it to open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen || t.Status == StatusFilled
}

// TransitionState moves the trade to a new status after checking the
// edge is legal.
func (t *Trade) TransitionState(to TradeStatus, condition string) error {
	for _, tr := range ValidTradeTransitions {
		if tr.From == t.Status && tr.To == to && tr.Condition == condition {
			t.Status = to
			now := time.Now().UTC()
			switch to {
			case StatusFilled:
				t.FilledAt = &now
			case StatusClosed, StatusExpired, StatusCancelled:
				t.ClosedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("invalid transition for trade %s: %s -> %s (%s)",
		t.TradeID, t.Status, to, condition)
}

// DTE returns calendar days until contract expiry, relative to now.
// Derived, never persisted.
func (t *Trade) DTE(now time.Time) (int, error) {
	exp, err := time.ParseInLocation("2006-01-02", t.ExpiryDate, now.Location())
	if err != nil {
		return 0, fmt.Errorf("trade %s has invalid expiry date %q: %w", t.TradeID, t.ExpiryDate, err)
	}
	return int(exp.Sub(now).Hours() / 24), nil
}

// CalcPnL returns the unrealized P&L and percent at the given mark.
// Option contracts are 100 shares each.
func (t *Trade) CalcPnL(mark float64) (pnl, pct float64) {
	pnl = (mark - t.EntryPrice) * float64(t.Contracts) * 100
	if t.EntryPrice > 0 {
		pct = (mark - t.EntryPrice) / t.EntryPrice * 100
	}
	return pnl, pct
}

// ValidateState checks the per-status invariants the storage layer and
// executor rely on.
func (t *Trade) ValidateState() error {
	if t.TradeID == "" {
		return fmt.Errorf("trade missing trade ID")
	}
	if t.Symbol == "" {
		return fmt.Errorf("trade %s missing symbol", t.TradeID)
	}
	if t.Contracts <= 0 {
		return fmt.Errorf("trade %s has non-positive contracts %d", t.TradeID, t.Contracts)
	}
	if t.OptionType != "call" && t.OptionType != "put" {
		return fmt.Errorf("trade %s has invalid option type %q", t.TradeID, t.OptionType)
	}

	switch t.Status {
	case StatusPending:
		if t.EntryOrderID == "" {
			return fmt.Errorf("pending trade %s missing entry order ID", t.TradeID)
		}
	case StatusFilled, StatusOpen:
		if t.OptionSymbol == "" {
			return fmt.Errorf("%s trade %s missing option symbol", t.Status, t.TradeID)
		}
		if t.EntryPrice <= 0 {
			return fmt.Errorf("%s trade %s missing entry price", t.Status, t.TradeID)
		}
	case StatusClosed:
		if t.ExitReason == "" {
			return fmt.Errorf("closed trade %s missing exit reason", t.TradeID)
		}
		if t.ClosedAt == nil {
			return fmt.Errorf("closed trade %s missing close timestamp", t.TradeID)
		}
	case StatusCancelled, StatusExpired:
		if t.ClosedAt == nil {
			return fmt.Errorf("%s trade %s missing close timestamp", t.Status, t.TradeID)
		}
	default:
		return fmt.Errorf("trade %s has unknown status %q", t.TradeID, t.Status)
	}
	return nil
}

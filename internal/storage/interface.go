// Package storage persists paper trades and daily summaries to SQLite.
package storage

import (
	"time"

	"github.com/signalyard/metaengine/internal/models"
)

// SummaryStats aggregates the closed-trade ledger.
type SummaryStats struct {
	TotalTrades int     `json:"total_trades"`
	OpenTrades  int     `json:"open_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnL    float64 `json:"total_pnl"`
	TodayPnL    float64 `json:"today_pnl"`
}

// DailyPnL is one point on the cumulative P&L series.
type DailyPnL struct {
	Date          string  `json:"date"`
	PnL           float64 `json:"pnl"`
	CumulativePnL float64 `json:"cumulative_pnl"`
}

// DailySummary records one scheduled run's outcome.
type DailySummary struct {
	ID           uint      `json:"-" gorm:"primaryKey"`
	ScanDate     string    `json:"scan_date" gorm:"index;size:10"`
	Session      string    `json:"session" gorm:"size:2"`
	PicksPulled  int       `json:"picks_pulled"`
	PicksPassed  int       `json:"picks_passed"`
	TradesPlaced int       `json:"trades_placed"`
	Notes        string    `json:"notes" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName pins the summary table name.
func (DailySummary) TableName() string { return "daily_summaries" }

// TradeStore is the persistence surface for the executor, position
// manager, and dashboard.
type TradeStore interface {
	SaveTrade(trade *models.Trade) error
	UpdateTrade(trade *models.Trade) error
	GetTrade(tradeID string) (*models.Trade, error)
	GetOpenTrades() ([]models.Trade, error)
	GetPendingTrades() ([]models.Trade, error)
	GetTradesByDate(scanDate string) ([]models.Trade, error)
	GetRecentTrades(days int) ([]models.Trade, error)
	GetClosedTrades() ([]models.Trade, error)
	GetSummaryStats() (*SummaryStats, error)
	GetDailyPnL() ([]DailyPnL, error)
	SaveDailySummary(summary *DailySummary) error
	CleanupOld(olderThanDays int) (int64, error)
	Close() error
}

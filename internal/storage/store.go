package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/signalyard/metaengine/internal/models"
)

// SQLiteStore implements TradeStore on a SQLite database via GORM.
type SQLiteStore struct {
	db *gorm.DB
}

// Compile-time interface compliance check.
var _ TradeStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the trade database at path
// and runs migrations. WAL mode keeps the dashboard readable while a
// run writes.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening trade database: %w", err)
	}

	if err := db.AutoMigrate(&models.Trade{}, &DailySummary{}); err != nil {
		return nil, fmt.Errorf("migrating trade database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveTrade inserts a new trade after validating its state.
func (s *SQLiteStore) SaveTrade(trade *models.Trade) error {
	if err := trade.ValidateState(); err != nil {
		return fmt.Errorf("refusing to save invalid trade: %w", err)
	}

	var count int64
	s.db.Model(&models.Trade{}).Where("trade_id = ?", trade.TradeID).Count(&count)
	if count > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateTrade, trade.TradeID)
	}

	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("saving trade %s: %w", trade.TradeID, err)
	}
	return nil
}

// UpdateTrade persists changes to an existing trade.
func (s *SQLiteStore) UpdateTrade(trade *models.Trade) error {
	if err := trade.ValidateState(); err != nil {
		return fmt.Errorf("refusing to update invalid trade: %w", err)
	}

	res := s.db.Model(&models.Trade{}).
		Where("trade_id = ?", trade.TradeID).
		Select("*").
		Omit("id", "created_at").
		Updates(trade)
	if res.Error != nil {
		return fmt.Errorf("updating trade %s: %w", trade.TradeID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, trade.TradeID)
	}
	return nil
}

// GetTrade looks up one trade by its external ID.
func (s *SQLiteStore) GetTrade(tradeID string) (*models.Trade, error) {
	var trade models.Trade
	err := s.db.Where("trade_id = ?", tradeID).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading trade %s: %w", tradeID, err)
	}
	return &trade, nil
}

// GetOpenTrades returns live positions: status open or filled.
func (s *SQLiteStore) GetOpenTrades() ([]models.Trade, error) {
	return s.query(s.db.
		Where("status IN ?", []models.TradeStatus{models.StatusOpen, models.StatusFilled}).
		Order("created_at ASC"))
}

// GetPendingTrades returns trades whose entry order has not resolved.
func (s *SQLiteStore) GetPendingTrades() ([]models.Trade, error) {
	return s.query(s.db.
		Where("status = ?", models.StatusPending).
		Order("created_at ASC"))
}

// GetTradesByDate returns all trades entered on a scan date (YYYY-MM-DD).
func (s *SQLiteStore) GetTradesByDate(scanDate string) ([]models.Trade, error) {
	return s.query(s.db.
		Where("scan_date = ?", scanDate).
		Order("created_at ASC"))
}

// GetRecentTrades returns trades created within the last N days.
func (s *SQLiteStore) GetRecentTrades(days int) ([]models.Trade, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return s.query(s.db.
		Where("created_at >= ?", cutoff).
		Order("created_at DESC"))
}

// GetClosedTrades returns every settled trade, newest first.
func (s *SQLiteStore) GetClosedTrades() ([]models.Trade, error) {
	return s.query(s.db.
		Where("status IN ?", []models.TradeStatus{models.StatusClosed, models.StatusExpired}).
		Order("closed_at DESC"))
}

func (s *SQLiteStore) query(tx *gorm.DB) ([]models.Trade, error) {
	var trades []models.Trade
	if err := tx.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	return trades, nil
}

// GetSummaryStats aggregates the ledger into win/loss counts, win
// rate, and realized P&L.
func (s *SQLiteStore) GetSummaryStats() (*SummaryStats, error) {
	stats := &SummaryStats{}

	var total, open int64
	if err := s.db.Model(&models.Trade{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting trades: %w", err)
	}
	s.db.Model(&models.Trade{}).
		Where("status IN ?", []models.TradeStatus{models.StatusOpen, models.StatusFilled}).
		Count(&open)
	stats.TotalTrades = int(total)
	stats.OpenTrades = int(open)

	closed, err := s.GetClosedTrades()
	if err != nil {
		return nil, err
	}

	today := time.Now().UTC().Format("2006-01-02")
	for _, tr := range closed {
		stats.TotalPnL += tr.PnL
		if tr.PnL > 0 {
			stats.Wins++
		} else if tr.PnL < 0 {
			stats.Losses++
		}
		if tr.ClosedAt != nil && tr.ClosedAt.UTC().Format("2006-01-02") == today {
			stats.TodayPnL += tr.PnL
		}
	}
	if settled := stats.Wins + stats.Losses; settled > 0 {
		stats.WinRate = float64(stats.Wins) / float64(settled)
	}
	return stats, nil
}

// GetDailyPnL returns realized P&L per close date with a running
// cumulative total, oldest first.
func (s *SQLiteStore) GetDailyPnL() ([]DailyPnL, error) {
	type row struct {
		Date string
		PnL  float64
	}
	var rows []row
	err := s.db.Model(&models.Trade{}).
		Select("date(closed_at) AS date, SUM(pn_l) AS pn_l").
		Where("status IN ?", []models.TradeStatus{models.StatusClosed, models.StatusExpired}).
		Where("closed_at IS NOT NULL").
		Group("date(closed_at)").
		Order("date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying daily pnl: %w", err)
	}

	series := make([]DailyPnL, 0, len(rows))
	var cum float64
	for _, r := range rows {
		cum += r.PnL
		series = append(series, DailyPnL{Date: r.Date, PnL: r.PnL, CumulativePnL: cum})
	}
	return series, nil
}

// SaveDailySummary appends a run summary row.
func (s *SQLiteStore) SaveDailySummary(summary *DailySummary) error {
	if err := s.db.Create(summary).Error; err != nil {
		return fmt.Errorf("saving daily summary: %w", err)
	}
	return nil
}

// CleanupOld deletes settled trades older than the retention window.
// Open and pending rows are never touched.
func (s *SQLiteStore) CleanupOld(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res := s.db.
		Where("status IN ?", []models.TradeStatus{
			models.StatusClosed, models.StatusCancelled, models.StatusExpired,
		}).
		Where("created_at < ?", cutoff).
		Delete(&models.Trade{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleaning up old trades: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/signalyard/metaengine/internal/models"
)

// MockStore is an in-memory TradeStore for tests.
type MockStore struct {
	mu        sync.RWMutex
	trades    map[string]*models.Trade
	summaries []DailySummary

	// Error hooks let tests force failures.
	SaveErr   error
	UpdateErr error
}

// Compile-time interface compliance check.
var _ TradeStore = (*MockStore)(nil)

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{trades: make(map[string]*models.Trade)}
}

func (m *MockStore) SaveTrade(trade *models.Trade) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[trade.TradeID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTrade, trade.TradeID)
	}
	cp := *trade
	m.trades[trade.TradeID] = &cp
	return nil
}

func (m *MockStore) UpdateTrade(trade *models.Trade) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[trade.TradeID]; !ok {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, trade.TradeID)
	}
	cp := *trade
	m.trades[trade.TradeID] = &cp
	return nil
}

func (m *MockStore) GetTrade(tradeID string) (*models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.trades[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	cp := *tr
	return &cp, nil
}

func (m *MockStore) GetOpenTrades() ([]models.Trade, error) {
	return m.filter(func(t *models.Trade) bool { return t.IsOpen() }), nil
}

func (m *MockStore) GetPendingTrades() ([]models.Trade, error) {
	return m.filter(func(t *models.Trade) bool { return t.Status == models.StatusPending }), nil
}

func (m *MockStore) GetTradesByDate(scanDate string) ([]models.Trade, error) {
	return m.filter(func(t *models.Trade) bool { return t.ScanDate == scanDate }), nil
}

func (m *MockStore) GetRecentTrades(days int) ([]models.Trade, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return m.filter(func(t *models.Trade) bool { return t.CreatedAt.After(cutoff) }), nil
}

func (m *MockStore) GetClosedTrades() ([]models.Trade, error) {
	return m.filter(func(t *models.Trade) bool {
		return t.Status == models.StatusClosed || t.Status == models.StatusExpired
	}), nil
}

func (m *MockStore) filter(keep func(*models.Trade) bool) []models.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Trade
	for _, t := range m.trades {
		if keep(t) {
			out = append(out, *t)
		}
	}
	return out
}

func (m *MockStore) GetSummaryStats() (*SummaryStats, error) {
	stats := &SummaryStats{}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.trades {
		stats.TotalTrades++
		if t.IsOpen() {
			stats.OpenTrades++
		}
		if t.Status == models.StatusClosed || t.Status == models.StatusExpired {
			stats.TotalPnL += t.PnL
			if t.PnL > 0 {
				stats.Wins++
			} else if t.PnL < 0 {
				stats.Losses++
			}
		}
	}
	if settled := stats.Wins + stats.Losses; settled > 0 {
		stats.WinRate = float64(stats.Wins) / float64(settled)
	}
	return stats, nil
}

func (m *MockStore) GetDailyPnL() ([]DailyPnL, error) { return nil, nil }

func (m *MockStore) SaveDailySummary(summary *DailySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, *summary)
	return nil
}

// Summaries returns the recorded daily summaries.
func (m *MockStore) Summaries() []DailySummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DailySummary(nil), m.summaries...)
}

func (m *MockStore) CleanupOld(olderThanDays int) (int64, error) { return 0, nil }

func (m *MockStore) Close() error { return nil }

package trading

import (
	"context"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalyard/metaengine/internal/broker"
	"github.com/signalyard/metaengine/internal/config"
	"github.com/signalyard/metaengine/internal/models"
	"github.com/signalyard/metaengine/internal/storage"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		Enabled:           true,
		TopNTrades:        3,
		ContractsPerTrade: 5,
		StrikeOTMPct:      0.05,
		MinDTE:            5,
		MaxDTE:            21,
		TakeProfitMult:    3.0,
		StopLossPct:       0.50,
		PartialProfitMult: 2.0,
		PartialProfitPct:  0.50,
	}
}

var fixedNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

func contractFor(underlying, typ string, strike float64, expiry string) broker.OptionContract {
	occ := underlying + expiry + typ + "STRIKE"
	return broker.OptionContract{
		Symbol:         occ,
		Underlying:     underlying,
		Type:           typ,
		StrikePrice:    strike,
		ExpirationDate: expiry,
		OpenInterest:   2500,
		Tradable:       true,
	}
}

func scoredPick(symbol string, engine models.Engine, score float64, passed bool) models.ScoredPick {
	return models.ScoredPick{
		Pick: models.Pick{
			Symbol:  symbol,
			Engine:  engine,
			Score:   score,
			Price:   100,
			Signals: []string{"gamma_squeeze", "volume_surge"},
		},
		BlendedScore: score,
		Passed:       passed,
	}
}

func newTestExecutor(b broker.Broker, store storage.TradeStore) *Executor {
	e := NewExecutor(b, store, testTradingConfig(), testLogger())
	e.now = func() time.Time { return fixedNow }
	return e
}

func newTestManager(b broker.Broker, store storage.TradeStore) *Manager {
	m := NewManager(b, store, testTradingConfig(), testLogger())
	m.now = func() time.Time { return fixedNow }
	return m
}

func TestExecuteTopPicksPlacesGatedTrades(t *testing.T) {
	mb := broker.NewMockBroker()
	// Spot is 100, so calls want strikes roughly 103 to 108.
	c := contractFor("NVDA", "call", 105, "2026-03-20")
	mb.Contracts = []broker.OptionContract{c}
	mb.Quotes[c.Symbol] = broker.OptionQuote{Bid: 2.40, Ask: 2.50}

	store := storage.NewMockStore()
	exec := newTestExecutor(mb, store)

	placed := exec.ExecuteTopPicks(context.Background(), models.SessionAM, []models.ScoredPick{
		scoredPick("NVDA", models.EngineMoonshot, 0.82, true),
	})
	require.Len(t, placed, 1)

	tr := placed[0]
	assert.Equal(t, "NVDA", tr.Symbol)
	assert.Equal(t, "call", tr.OptionType)
	assert.Equal(t, 105.0, tr.StrikePrice)
	assert.Equal(t, 5, tr.Contracts)
	assert.Equal(t, models.StatusFilled, tr.Status)
	assert.InDelta(t, 2.50, tr.EntryPrice, 1e-9)
	assert.Equal(t, "AM", tr.Session)
	assert.Equal(t, "2026-03-10", tr.ScanDate)

	require.Len(t, mb.PlacedOrders, 1)
	assert.Equal(t, broker.SideBuy, mb.PlacedOrders[0].Side)
	assert.Equal(t, "limit", mb.PlacedOrders[0].Type)
	assert.Equal(t, "2.50", mb.PlacedOrders[0].LimitPrice)

	saved, err := store.GetTrade(tr.TradeID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, saved.Status)
}

func TestExecuteTopPicksUsesPutsForBearishPicks(t *testing.T) {
	mb := broker.NewMockBroker()
	// Spot 100, puts want strikes roughly 92 to 97.
	c := contractFor("TSLA", "put", 95, "2026-03-20")
	mb.Contracts = []broker.OptionContract{c}
	mb.Quotes[c.Symbol] = broker.OptionQuote{Bid: 3.10, Ask: 3.20}

	store := storage.NewMockStore()
	exec := newTestExecutor(mb, store)

	placed := exec.ExecuteTopPicks(context.Background(), models.SessionPM, []models.ScoredPick{
		scoredPick("TSLA", models.EnginePuts, 0.78, true),
	})
	require.Len(t, placed, 1)
	assert.Equal(t, "put", placed[0].OptionType)
	assert.Equal(t, 95.0, placed[0].StrikePrice)
}

func TestExecuteTopPicksSkipsRejectedAndCapsAtTopN(t *testing.T) {
	mb := broker.NewMockBroker()
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	for _, s := range symbols {
		c := contractFor(s, "call", 105, "2026-03-20")
		mb.Contracts = append(mb.Contracts, c)
		mb.Quotes[c.Symbol] = broker.OptionQuote{Bid: 1.00, Ask: 1.10}
	}

	store := storage.NewMockStore()
	exec := newTestExecutor(mb, store)

	picks := []models.ScoredPick{
		scoredPick("AAA", models.EngineMoonshot, 0.90, true),
		scoredPick("BBB", models.EngineMoonshot, 0.85, false), // gated out
		scoredPick("CCC", models.EngineMoonshot, 0.80, true),
		scoredPick("DDD", models.EngineMoonshot, 0.75, true),
		scoredPick("EEE", models.EngineMoonshot, 0.70, true),
	}
	placed := exec.ExecuteTopPicks(context.Background(), models.SessionAM, picks)

	require.Len(t, placed, 3)
	assert.Equal(t, "AAA", placed[0].Symbol)
	assert.Equal(t, "CCC", placed[1].Symbol)
	assert.Equal(t, "DDD", placed[2].Symbol)
}

func TestExecuteTopPicksSkipsHeldSymbols(t *testing.T) {
	mb := broker.NewMockBroker()
	c := contractFor("NVDA", "call", 105, "2026-03-20")
	mb.Contracts = []broker.OptionContract{c}
	mb.Quotes[c.Symbol] = broker.OptionQuote{Bid: 2.40, Ask: 2.50}

	store := storage.NewMockStore()
	existing := openTrade("ME-1", "NVDA", "2026-03-20", 2.00, 5)
	require.NoError(t, store.SaveTrade(existing))

	exec := newTestExecutor(mb, store)
	placed := exec.ExecuteTopPicks(context.Background(), models.SessionAM, []models.ScoredPick{
		scoredPick("NVDA", models.EngineMoonshot, 0.82, true),
	})
	assert.Empty(t, placed)
	assert.Empty(t, mb.PlacedOrders)
}

func TestExecuteTopPicksDegradesWhenNoContracts(t *testing.T) {
	mb := broker.NewMockBroker() // no contracts listed
	store := storage.NewMockStore()
	exec := newTestExecutor(mb, store)

	placed := exec.ExecuteTopPicks(context.Background(), models.SessionAM, []models.ScoredPick{
		scoredPick("ZZZZ", models.EngineMoonshot, 0.82, true),
	})
	assert.Empty(t, placed)
}

func TestSelectContractPrefersTargetStrikeAndLiquidity(t *testing.T) {
	mb := broker.NewMockBroker()
	near := contractFor("NVDA", "call", 105, "2026-03-20") // at the 5% target
	far := contractFor("NVDA", "call", 108, "2026-03-20")
	illiquid := contractFor("NVDA", "call", 105, "2026-03-19")
	illiquid.Symbol = "NVDA-ILLIQ"
	illiquid.OpenInterest = 10
	mb.Contracts = []broker.OptionContract{far, illiquid, near}

	exec := newTestExecutor(mb, storage.NewMockStore())
	got, err := exec.selectContract(context.Background(), "NVDA", "call", 100)
	require.NoError(t, err)
	assert.Equal(t, near.Symbol, got.Symbol)
}

func TestSelectContractSkipsUntradable(t *testing.T) {
	mb := broker.NewMockBroker()
	halted := contractFor("NVDA", "call", 105, "2026-03-20")
	halted.Tradable = false
	mb.Contracts = []broker.OptionContract{halted}

	exec := newTestExecutor(mb, storage.NewMockStore())
	_, err := exec.selectContract(context.Background(), "NVDA", "call", 100)
	assert.Error(t, err)
}

func TestNewTradeIDFormat(t *testing.T) {
	id := newTradeID("NVDA", fixedNow)
	assert.Regexp(t, regexp.MustCompile(`^ME-20260310100000-NVDA-[0-9a-f]{6}$`), id)
}

func openTrade(id, symbol, expiry string, entry float64, contracts int) *models.Trade {
	filled := fixedNow.Add(-24 * time.Hour)
	return &models.Trade{
		TradeID:      id,
		Session:      "AM",
		ScanDate:     "2026-03-09",
		Symbol:       symbol,
		OptionSymbol: symbol + "-OCC",
		OptionType:   "call",
		StrikePrice:  105,
		ExpiryDate:   expiry,
		Contracts:    contracts,
		EntryPrice:   entry,
		CurrentPrice: entry,
		EntryOrderID: "order-" + id,
		Status:       models.StatusOpen,
		FilledAt:     &filled,
	}
}

func TestSyncPendingPromotesFilledOrders(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	pending := openTrade("ME-P1", "NVDA", "2026-03-20", 0, 5)
	pending.Status = models.StatusPending
	pending.EntryOrderID = "ord-1"
	require.NoError(t, store.SaveTrade(pending))
	mb.Orders["ord-1"] = &broker.Order{
		ID:             "ord-1",
		Status:         broker.OrderStatusFilled,
		FilledAvgPrice: "2.45",
	}

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.syncPending(context.Background()))

	got, err := store.GetTrade("ME-P1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, got.Status)
	assert.InDelta(t, 2.45, got.EntryPrice, 1e-9)
	assert.NotNil(t, got.FilledAt)
}

func TestSyncPendingCancelsDeadOrders(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	pending := openTrade("ME-P2", "NVDA", "2026-03-20", 0, 5)
	pending.Status = models.StatusPending
	pending.EntryOrderID = "ord-2"
	require.NoError(t, store.SaveTrade(pending))
	mb.Orders["ord-2"] = &broker.Order{ID: "ord-2", Status: broker.OrderStatusRejected}

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.syncPending(context.Background()))

	got, err := store.GetTrade("ME-P2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.NotNil(t, got.ClosedAt)
}

func TestManageOpenTakesProfitAtMultiple(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	tr := openTrade("ME-TP", "NVDA", "2026-03-20", 1.00, 5)
	require.NoError(t, store.SaveTrade(tr))
	// Mid is 3.05, past the 3x target on a 1.00 entry.
	mb.Quotes[tr.OptionSymbol] = broker.OptionQuote{Bid: 3.00, Ask: 3.10}

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.ManagePositions(context.Background()))

	got, err := store.GetTrade("ME-TP")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.Equal(t, ExitTakeProfit, got.ExitReason)
	assert.InDelta(t, 3.00, got.ExitPrice, 1e-9) // sold at the bid
	assert.InDelta(t, (3.00-1.00)*5*100, got.PnL, 1e-9)
	require.Len(t, mb.PlacedOrders, 1)
	assert.Equal(t, broker.SideSell, mb.PlacedOrders[0].Side)
	assert.Equal(t, 5, mb.PlacedOrders[0].Qty)
}

func TestManageOpenStopsOutAtHalfLoss(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	tr := openTrade("ME-SL", "NVDA", "2026-03-20", 2.00, 5)
	require.NoError(t, store.SaveTrade(tr))
	mb.Quotes[tr.OptionSymbol] = broker.OptionQuote{Bid: 0.90, Ask: 1.00} // mid 0.95 <= 1.00

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.ManagePositions(context.Background()))

	got, err := store.GetTrade("ME-SL")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.Equal(t, ExitStopLoss, got.ExitReason)
	assert.Less(t, got.PnL, 0.0)
}

func TestManageOpenTimeStopNearExpiry(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	// Expires tomorrow: DTE 0 at the fixed clock.
	tr := openTrade("ME-TS", "NVDA", "2026-03-11", 2.00, 5)
	require.NoError(t, store.SaveTrade(tr))
	mb.Quotes[tr.OptionSymbol] = broker.OptionQuote{Bid: 2.10, Ask: 2.20}

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.ManagePositions(context.Background()))

	got, err := store.GetTrade("ME-TS")
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.Equal(t, ExitTimeStop, got.ExitReason)
}

func TestManageOpenTakesPartialProfitOnce(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	tr := openTrade("ME-PP", "NVDA", "2026-03-20", 1.00, 4)
	require.NoError(t, store.SaveTrade(tr))
	// Mid 2.05 crosses the 2x partial trigger but stays under the 3x
	// take profit.
	mb.Quotes[tr.OptionSymbol] = broker.OptionQuote{Bid: 2.00, Ask: 2.10}

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.ManagePositions(context.Background()))

	got, err := store.GetTrade("ME-PP")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.True(t, got.PartialProfitTaken)
	assert.Equal(t, 2, got.Contracts)
	assert.InDelta(t, 2.00, got.PartialProfitPrice, 1e-9)
	assert.InDelta(t, 100.0, got.PartialProfitPct, 1e-9)
	require.Len(t, mb.PlacedOrders, 1)
	assert.Equal(t, 2, mb.PlacedOrders[0].Qty)

	// A second pass at the same mark must not sell again.
	require.NoError(t, mgr.ManagePositions(context.Background()))
	got, err = store.GetTrade("ME-PP")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Contracts)
	assert.Len(t, mb.PlacedOrders, 1)
}

func TestManageOpenPartialProfitHonorsConfiguredFraction(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	tr := openTrade("ME-PP20", "NVDA", "2026-03-20", 1.00, 10)
	require.NoError(t, store.SaveTrade(tr))
	mb.Quotes[tr.OptionSymbol] = broker.OptionQuote{Bid: 2.00, Ask: 2.10}

	mgr := newTestManager(mb, store)
	mgr.cfg.PartialProfitPct = 0.20
	require.NoError(t, mgr.ManagePositions(context.Background()))

	got, err := store.GetTrade("ME-PP20")
	require.NoError(t, err)
	assert.True(t, got.PartialProfitTaken)
	assert.Equal(t, 8, got.Contracts)
	require.Len(t, mb.PlacedOrders, 1)
	assert.Equal(t, 2, mb.PlacedOrders[0].Qty)
}

func TestManageOpenExpiresPastExpiry(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	tr := openTrade("ME-EX", "NVDA", "2026-03-06", 2.00, 5)
	require.NoError(t, store.SaveTrade(tr))
	mb.Quotes[tr.OptionSymbol] = broker.OptionQuote{Bid: 0.01, Ask: 0.02}

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.ManagePositions(context.Background()))

	got, err := store.GetTrade("ME-EX")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
	assert.Equal(t, ExitExpired, got.ExitReason)
	assert.InDelta(t, -2.00*5*100, got.PnL, 1e-9)
	assert.Empty(t, mb.PlacedOrders)
}

func TestManageOpenPromotesFreshFills(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	tr := openTrade("ME-FR", "NVDA", "2026-03-20", 1.50, 5)
	tr.Status = models.StatusFilled
	require.NoError(t, store.SaveTrade(tr))
	mb.Quotes[tr.OptionSymbol] = broker.OptionQuote{Bid: 1.50, Ask: 1.60}

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.ManagePositions(context.Background()))

	got, err := store.GetTrade("ME-FR")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
}

func TestManageOpenSurvivesQuoteFailure(t *testing.T) {
	mb := broker.NewMockBroker()
	store := storage.NewMockStore()

	tr := openTrade("ME-NQ", "NVDA", "2026-03-20", 1.50, 5)
	require.NoError(t, store.SaveTrade(tr))
	// No quote registered, so the refresh errors.

	mgr := newTestManager(mb, store)
	require.NoError(t, mgr.ManagePositions(context.Background()))

	got, err := store.GetTrade("ME-NQ")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.Empty(t, mb.PlacedOrders)
}

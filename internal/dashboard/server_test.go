package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalyard/metaengine/internal/models"
	"github.com/signalyard/metaengine/internal/storage"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func seededStore(t *testing.T) *storage.MockStore {
	t.Helper()
	store := storage.NewMockStore()
	now := time.Now().UTC()

	open := &models.Trade{
		TradeID: "ME-OPEN", Symbol: "NVDA", OptionType: "call", Contracts: 5,
		EntryPrice: 2.0, CurrentPrice: 2.4, Status: models.StatusOpen,
		EntryOrderID: "o1", OptionSymbol: "NVDA-OCC", CreatedAt: now,
	}
	closed := &models.Trade{
		TradeID: "ME-CLOSED", Symbol: "TSLA", OptionType: "put", Contracts: 5,
		EntryPrice: 1.0, ExitPrice: 3.0, PnL: 1000, Status: models.StatusClosed,
		EntryOrderID: "o2", OptionSymbol: "TSLA-OCC", ExitReason: "take_profit",
		ClosedAt: &now, CreatedAt: now,
	}
	require.NoError(t, store.SaveTrade(open))
	require.NoError(t, store.SaveTrade(closed))
	return store
}

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	return NewServer(Config{Addr: ":0", AuthToken: authToken}, seededStore(t), testLogger())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestOpenTradesEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, ""), "/api/trades/open")
	require.Equal(t, http.StatusOK, rec.Code)

	var trades []models.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "ME-OPEN", trades[0].TradeID)
}

func TestRecentTradesEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, ""), "/api/trades/recent?days=7")
	require.Equal(t, http.StatusOK, rec.Code)

	var trades []models.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	assert.Len(t, trades, 2)
}

func TestTradeByIDEndpoint(t *testing.T) {
	s := newTestServer(t, "")

	rec := get(t, s, "/api/trades/ME-CLOSED")
	require.Equal(t, http.StatusOK, rec.Code)
	var trade models.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trade))
	assert.Equal(t, "take_profit", trade.ExitReason)

	rec = get(t, s, "/api/trades/ME-NOPE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, ""), "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats storage.SummaryStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalTrades)
	assert.Equal(t, 1, stats.OpenTrades)
	assert.Equal(t, 1000.0, stats.TotalPnL)
}

func TestDailyPnLEndpointNeverNull(t *testing.T) {
	rec := get(t, newTestServer(t, ""), "/api/pnl/daily")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, ""), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "sekrit")

	rec := get(t, s, "/api/trades/open")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/trades/open", nil)
	req.Header.Set("X-Auth-Token", "sekrit")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	// Health stays reachable without a token.
	rec = get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

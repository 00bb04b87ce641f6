package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestAlpaca(t *testing.T, handler http.HandlerFunc) *AlpacaClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return NewAlpacaClient(server.URL, server.URL, "key", "secret", testLogger())
}

func TestGetAccount(t *testing.T) {
	client := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		fmt.Fprint(w, `{"id":"acct-1","status":"ACTIVE","cash":"25000.50","buying_power":"50001.00","equity":"26000.00","trading_blocked":false}`)
	})

	account, err := client.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", account.Status)
	assert.InDelta(t, 25000.50, account.Cash, 1e-9)
	assert.InDelta(t, 50001.00, account.BuyingPower, 1e-9)
	assert.False(t, account.TradingBlocked)
}

func TestGetOptionContractsPagination(t *testing.T) {
	page := 0
	client := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/options/contracts", r.URL.Path)
		assert.Equal(t, "NVDA", r.URL.Query().Get("underlying_symbols"))
		assert.Equal(t, "call", r.URL.Query().Get("type"))

		page++
		if page == 1 {
			assert.Empty(t, r.URL.Query().Get("page_token"))
			fmt.Fprint(w, `{"option_contracts":[{"symbol":"NVDA260227C00850000","underlying_symbol":"NVDA","type":"call","strike_price":"850","expiration_date":"2026-02-27","open_interest":"1500","tradable":true}],"next_page_token":"tok2"}`)
			return
		}
		assert.Equal(t, "tok2", r.URL.Query().Get("page_token"))
		fmt.Fprint(w, `{"option_contracts":[{"symbol":"NVDA260227C00860000","underlying_symbol":"NVDA","type":"call","strike_price":"860","expiration_date":"2026-02-27","open_interest":"900","tradable":true}],"next_page_token":null}`)
	})

	contracts, err := client.GetOptionContracts(context.Background(), ContractFilter{
		Underlying: "NVDA", Type: "call",
	})
	require.NoError(t, err)
	require.Len(t, contracts, 2)
	assert.Equal(t, 850.0, contracts[0].StrikePrice)
	assert.Equal(t, 1500.0, contracts[0].OpenInterest)
	assert.Equal(t, 2, page)
}

func TestGetOptionQuote(t *testing.T) {
	client := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta1/options/quotes/latest", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quotes": map[string]any{
				"NVDA260227C00850000": map[string]float64{"bp": 2.30, "ap": 2.50},
			},
		})
	})

	quote, err := client.GetOptionQuote(context.Background(), "NVDA260227C00850000")
	require.NoError(t, err)
	assert.Equal(t, 2.30, quote.Bid)
	assert.Equal(t, 2.50, quote.Ask)
	assert.InDelta(t, 2.40, quote.Mid(), 1e-9)
}

func TestGetOptionQuoteMissingSymbol(t *testing.T) {
	client := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quotes":{}}`)
	})
	_, err := client.GetOptionQuote(context.Background(), "XXX")
	assert.Error(t, err)
}

func TestGetStockQuote(t *testing.T) {
	client := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/trades/latest", r.URL.Path)
		fmt.Fprint(w, `{"trades":{"NVDA":{"p":876.54}}}`)
	})

	price, err := client.GetStockQuote(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Equal(t, 876.54, price)
}

func TestPlaceOrder(t *testing.T) {
	client := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "NVDA260227C00850000", body["symbol"])
		assert.Equal(t, "5", body["qty"])
		assert.Equal(t, "buy", body["side"])
		assert.Equal(t, "limit", body["type"])
		assert.Equal(t, "day", body["time_in_force"])

		fmt.Fprint(w, `{"id":"ord-1","symbol":"NVDA260227C00850000","status":"new","side":"buy"}`)
	})

	order, err := client.PlaceOrder(context.Background(), OrderRequest{
		Symbol:     "NVDA260227C00850000",
		Qty:        5,
		Side:       SideBuy,
		Type:       "limit",
		LimitPrice: "2.50",
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.False(t, order.IsTerminal())
}

func TestAPIErrorSurface(t *testing.T) {
	client := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"insufficient buying power"}`)
	})

	_, err := client.PlaceOrder(context.Background(), OrderRequest{Symbol: "X", Qty: 1, Side: SideBuy, Type: "market"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.True(t, apiErr.IsPermanent())
	assert.Contains(t, apiErr.Body, "insufficient buying power")
}

func TestCancelOrder(t *testing.T) {
	client := newTestAlpaca(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/orders/ord-1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, client.CancelOrder(context.Background(), "ord-1"))
}

func TestOrderIsTerminal(t *testing.T) {
	for _, status := range []string{OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected} {
		assert.True(t, (&Order{Status: status}).IsTerminal(), status)
	}
	for _, status := range []string{OrderStatusNew, OrderStatusAccepted, "partially_filled"} {
		assert.False(t, (&Order{Status: status}).IsTerminal(), status)
	}
}

func TestQuoteMidFallbacks(t *testing.T) {
	assert.InDelta(t, 2.4, (&OptionQuote{Bid: 2.3, Ask: 2.5}).Mid(), 1e-9)
	assert.InDelta(t, 2.5, (&OptionQuote{Ask: 2.5}).Mid(), 1e-9)
	assert.InDelta(t, 2.3, (&OptionQuote{Bid: 2.3}).Mid(), 1e-9)
}

package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trippySettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	mock := NewMockBroker()
	mock.StockPrices["NVDA"] = 876.54
	wrapped := NewBreakerBroker(mock)

	price, err := wrapped.GetStockQuote(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Equal(t, 876.54, price)
}

func TestBreakerTripsOnRepeatedFailures(t *testing.T) {
	mock := NewMockBroker()
	mock.AccountErr = errors.New("connection refused")
	wrapped := NewBreakerBrokerWithSettings(mock, trippySettings())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = wrapped.GetAccount(ctx)
	}

	// Circuit is open now: the underlying broker must not be called.
	mock.AccountErr = nil
	_, err := wrapped.GetAccount(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open")
}

func TestBreakerIgnoresPermanentClientErrors(t *testing.T) {
	mock := NewMockBroker()
	mock.AccountErr = &APIError{StatusCode: 404, Body: "not found"}
	wrapped := NewBreakerBrokerWithSettings(mock, trippySettings())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := wrapped.GetAccount(ctx)
		require.Error(t, err)
	}

	// 4xx responses are our bug, not an outage: breaker stays closed.
	mock.AccountErr = nil
	_, err := wrapped.GetAccount(ctx)
	assert.NoError(t, err)
}

func TestBreakerWrapsAllMethods(t *testing.T) {
	mock := NewMockBroker()
	mock.Contracts = []OptionContract{{Symbol: "X", Underlying: "NVDA", Type: "call", StrikePrice: 850}}
	mock.Quotes["X"] = OptionQuote{Bid: 1, Ask: 2}
	mock.StockPrices["NVDA"] = 100
	wrapped := NewBreakerBroker(mock)
	ctx := context.Background()

	_, err := wrapped.GetOptionContracts(ctx, ContractFilter{Underlying: "NVDA"})
	assert.NoError(t, err)

	_, err = wrapped.GetOptionQuote(ctx, "X")
	assert.NoError(t, err)

	order, err := wrapped.PlaceOrder(ctx, OrderRequest{Symbol: "X", Qty: 1, Side: SideBuy, Type: "market"})
	require.NoError(t, err)

	_, err = wrapped.GetOrder(ctx, order.ID)
	assert.NoError(t, err)

	assert.NoError(t, wrapped.CancelOrder(ctx, order.ID))
}

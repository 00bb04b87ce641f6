package broker

import (
	"context"
	"fmt"
	"sync"
)

// MockBroker is a configurable in-memory Broker for tests.
type MockBroker struct {
	mu sync.Mutex

	Account      *Account
	AccountErr   error
	Contracts    []OptionContract
	ContractsErr error
	Quotes       map[string]OptionQuote
	QuoteErr     error
	StockPrices  map[string]float64
	StockErr     error
	Orders       map[string]*Order
	PlaceErr     error
	OrderErr     error
	CancelErr    error

	PlacedOrders []OrderRequest
	nextOrderID  int
}

// Compile-time interface compliance check.
var _ Broker = (*MockBroker)(nil)

// NewMockBroker creates a mock with empty tables.
func NewMockBroker() *MockBroker {
	return &MockBroker{
		Quotes:      make(map[string]OptionQuote),
		StockPrices: make(map[string]float64),
		Orders:      make(map[string]*Order),
	}
}

func (m *MockBroker) GetAccount(ctx context.Context) (*Account, error) {
	if m.AccountErr != nil {
		return nil, m.AccountErr
	}
	if m.Account == nil {
		return &Account{Status: "ACTIVE", BuyingPower: 100000}, nil
	}
	return m.Account, nil
}

func (m *MockBroker) GetOptionContracts(ctx context.Context, filter ContractFilter) ([]OptionContract, error) {
	if m.ContractsErr != nil {
		return nil, m.ContractsErr
	}
	var out []OptionContract
	for _, c := range m.Contracts {
		if filter.Underlying != "" && c.Underlying != filter.Underlying {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.StrikeGTE > 0 && c.StrikePrice < filter.StrikeGTE {
			continue
		}
		if filter.StrikeLTE > 0 && c.StrikePrice > filter.StrikeLTE {
			continue
		}
		if filter.ExpiryGTE != "" && c.ExpirationDate < filter.ExpiryGTE {
			continue
		}
		if filter.ExpiryLTE != "" && c.ExpirationDate > filter.ExpiryLTE {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MockBroker) GetOptionQuote(ctx context.Context, occSymbol string) (*OptionQuote, error) {
	if m.QuoteErr != nil {
		return nil, m.QuoteErr
	}
	q, ok := m.Quotes[occSymbol]
	if !ok {
		return nil, fmt.Errorf("no quote returned for %s", occSymbol)
	}
	return &q, nil
}

func (m *MockBroker) GetStockQuote(ctx context.Context, symbol string) (float64, error) {
	if m.StockErr != nil {
		return 0, m.StockErr
	}
	p, ok := m.StockPrices[symbol]
	if !ok {
		return 0, fmt.Errorf("no trade price returned for %s", symbol)
	}
	return p, nil
}

func (m *MockBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if m.PlaceErr != nil {
		return nil, m.PlaceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrderID++
	order := &Order{
		ID:         fmt.Sprintf("mock-order-%d", m.nextOrderID),
		Symbol:     req.Symbol,
		Qty:        fmt.Sprintf("%d", req.Qty),
		Side:       req.Side,
		Type:       req.Type,
		Status:     OrderStatusFilled,
		LimitPrice: req.LimitPrice,
	}
	if req.LimitPrice != "" {
		order.FilledAvgPrice = req.LimitPrice
	}
	m.Orders[order.ID] = order
	m.PlacedOrders = append(m.PlacedOrders, req)
	return order, nil
}

func (m *MockBroker) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[orderID]
	if !ok {
		return nil, &APIError{StatusCode: 404, Body: "order not found"}
	}
	return o, nil
}

func (m *MockBroker) CancelOrder(ctx context.Context, orderID string) error {
	if m.CancelErr != nil {
		return m.CancelErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.Orders[orderID]; ok {
		o.Status = OrderStatusCanceled
	}
	return nil
}

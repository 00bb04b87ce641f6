// Package broker provides the Alpaca paper-trading API client and the
// Broker interface the executor and position manager depend on.
package broker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// Order statuses Alpaca reports that we act on.
const (
	OrderStatusFilled   = "filled"
	OrderStatusCanceled = "canceled"
	OrderStatusExpired  = "expired"
	OrderStatusRejected = "rejected"
	OrderStatusNew      = "new"
	OrderStatusAccepted = "accepted"
)

// Account is the paper account snapshot.
type Account struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Cash          float64 `json:"cash,string"`
	BuyingPower   float64 `json:"buying_power,string"`
	Equity        float64 `json:"equity,string"`
	TradingBlocked bool   `json:"trading_blocked"`
}

// OptionContract is one listed contract from the contract search.
type OptionContract struct {
	Symbol         string  `json:"symbol"` // OCC symbol
	Underlying     string  `json:"underlying_symbol"`
	Type           string  `json:"type"` // call | put
	StrikePrice    float64 `json:"strike_price,string"`
	ExpirationDate string  `json:"expiration_date"` // YYYY-MM-DD
	OpenInterest   float64 `json:"open_interest,string"`
	Tradable       bool    `json:"tradable"`
}

// OptionQuote is the latest NBBO for a contract.
type OptionQuote struct {
	Bid float64 `json:"bp"`
	Ask float64 `json:"ap"`
}

// Mid returns the quote midpoint, falling back to whichever side exists.
func (q *OptionQuote) Mid() float64 {
	switch {
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	case q.Ask > 0:
		return q.Ask
	default:
		return q.Bid
	}
}

// Order is a placed or queried order.
type Order struct {
	ID             string    `json:"id"`
	ClientOrderID  string    `json:"client_order_id"`
	Symbol         string    `json:"symbol"`
	Qty            string    `json:"qty"`
	Side           OrderSide `json:"side"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	LimitPrice     string    `json:"limit_price"`
	FilledAvgPrice string    `json:"filled_avg_price"`
	FilledQty      string    `json:"filled_qty"`
	SubmittedAt    time.Time `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at"`
}

// IsTerminal reports whether the order will never fill further.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected:
		return true
	}
	return false
}

// OrderRequest is the payload for placing an order.
type OrderRequest struct {
	Symbol      string    `json:"symbol"`
	Qty         int       `json:"qty,string"`
	Side        OrderSide `json:"side"`
	Type        string    `json:"type"` // limit | market
	TimeInForce string    `json:"time_in_force"`
	LimitPrice  string    `json:"limit_price,omitempty"`
}

// ContractFilter narrows the option contract search.
type ContractFilter struct {
	Underlying string
	Type       string // call | put
	StrikeGTE  float64
	StrikeLTE  float64
	ExpiryGTE  string // YYYY-MM-DD
	ExpiryLTE  string
}

// APIError carries the HTTP status and body of a failed broker call.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca API error: status %d: %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether retrying is pointless: client errors
// other than 429.
func (e *APIError) IsPermanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// Broker is the trading surface used by the executor and the position
// manager.
type Broker interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetOptionContracts(ctx context.Context, filter ContractFilter) ([]OptionContract, error)
	GetOptionQuote(ctx context.Context, occSymbol string) (*OptionQuote, error)
	GetStockQuote(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// BreakerBroker decorates a Broker with a circuit breaker so a broken
// Alpaca endpoint fails fast instead of stalling the whole run.
type BreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Compile-time interface compliance check.
var _ Broker = (*BreakerBroker)(nil)

// BreakerSettings configures circuit breaker behavior.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// NewBreakerBroker wraps broker with default breaker settings.
func NewBreakerBroker(broker Broker) *BreakerBroker {
	return NewBreakerBrokerWithSettings(broker, BreakerSettings{
		MaxRequests:  3,                // allow 3 requests when half-open
		Interval:     60 * time.Second, // reset counts every minute
		Timeout:      30 * time.Second, // open circuit for 30 seconds
		MinRequests:  5,                // minimum requests before tripping
		FailureRatio: 0.6,              // trip at 60% failures
	})
}

// NewBreakerBrokerWithSettings wraps broker with custom settings.
func NewBreakerBrokerWithSettings(broker Broker, settings BreakerSettings) *BreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "AlpacaCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Permanent client errors are our fault, not the API's;
			// they must not trip the breaker.
			if apiErr, ok := err.(*APIError); ok && apiErr.IsPermanent() {
				return true
			}
			return false
		},
	}
	return &BreakerBroker{broker: broker, breaker: gobreaker.NewCircuitBreaker(gbSettings)}
}

func execBreaker[T any](breaker *gobreaker.CircuitBreaker, broker Broker, fn func(Broker) (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}

func (c *BreakerBroker) GetAccount(ctx context.Context) (*Account, error) {
	return execBreaker(c.breaker, c.broker, func(b Broker) (*Account, error) { return b.GetAccount(ctx) })
}

func (c *BreakerBroker) GetOptionContracts(ctx context.Context, filter ContractFilter) ([]OptionContract, error) {
	return execBreaker(c.breaker, c.broker, func(b Broker) ([]OptionContract, error) {
		return b.GetOptionContracts(ctx, filter)
	})
}

func (c *BreakerBroker) GetOptionQuote(ctx context.Context, occSymbol string) (*OptionQuote, error) {
	return execBreaker(c.breaker, c.broker, func(b Broker) (*OptionQuote, error) { return b.GetOptionQuote(ctx, occSymbol) })
}

func (c *BreakerBroker) GetStockQuote(ctx context.Context, symbol string) (float64, error) {
	return execBreaker(c.breaker, c.broker, func(b Broker) (float64, error) { return b.GetStockQuote(ctx, symbol) })
}

func (c *BreakerBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	return execBreaker(c.breaker, c.broker, func(b Broker) (*Order, error) { return b.PlaceOrder(ctx, req) })
}

func (c *BreakerBroker) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return execBreaker(c.breaker, c.broker, func(b Broker) (*Order, error) { return b.GetOrder(ctx, orderID) })
}

func (c *BreakerBroker) CancelOrder(ctx context.Context, orderID string) error {
	_, err := execBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.CancelOrder(ctx, orderID)
	})
	return err
}

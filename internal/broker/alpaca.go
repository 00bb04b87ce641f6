package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// AlpacaClient talks to the Alpaca paper-trading and market data APIs.
type AlpacaClient struct {
	trading *resty.Client
	data    *resty.Client
	logger  *logrus.Logger
}

// Compile-time interface compliance check.
var _ Broker = (*AlpacaClient)(nil)

// NewAlpacaClient creates a client for the given trading base URL
// (already normalized to include /v2) and data URL.
func NewAlpacaClient(baseURL, dataURL, apiKey, apiSecret string, logger *logrus.Logger) *AlpacaClient {
	headers := map[string]string{
		"APCA-API-KEY-ID":     apiKey,
		"APCA-API-SECRET-KEY": apiSecret,
	}

	trading := resty.New().
		SetBaseURL(baseURL).
		SetHeaders(headers).
		SetTimeout(15 * time.Second)
	data := resty.New().
		SetBaseURL(dataURL).
		SetHeaders(headers).
		SetTimeout(15 * time.Second)

	return &AlpacaClient{trading: trading, data: data, logger: logger}
}

func checkResp(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("alpaca request failed: %w", err)
	}
	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// GetAccount fetches the paper account snapshot.
func (c *AlpacaClient) GetAccount(ctx context.Context) (*Account, error) {
	var account Account
	resp, err := c.trading.R().
		SetContext(ctx).
		SetResult(&account).
		Get("/account")
	if err := checkResp(resp, err); err != nil {
		return nil, err
	}
	return &account, nil
}

type contractsResponse struct {
	Contracts     []OptionContract `json:"option_contracts"`
	NextPageToken *string          `json:"next_page_token"`
}

// GetOptionContracts searches listed contracts matching the filter.
// Follows pagination until exhausted.
func (c *AlpacaClient) GetOptionContracts(ctx context.Context, filter ContractFilter) ([]OptionContract, error) {
	params := map[string]string{
		"underlying_symbols": filter.Underlying,
		"status":             "active",
		"limit":              "100",
	}
	if filter.Type != "" {
		params["type"] = filter.Type
	}
	if filter.StrikeGTE > 0 {
		params["strike_price_gte"] = strconv.FormatFloat(filter.StrikeGTE, 'f', 2, 64)
	}
	if filter.StrikeLTE > 0 {
		params["strike_price_lte"] = strconv.FormatFloat(filter.StrikeLTE, 'f', 2, 64)
	}
	if filter.ExpiryGTE != "" {
		params["expiration_date_gte"] = filter.ExpiryGTE
	}
	if filter.ExpiryLTE != "" {
		params["expiration_date_lte"] = filter.ExpiryLTE
	}

	var all []OptionContract
	for {
		var page contractsResponse
		resp, err := c.trading.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&page).
			Get("/options/contracts")
		if err := checkResp(resp, err); err != nil {
			return nil, err
		}

		all = append(all, page.Contracts...)
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			break
		}
		params["page_token"] = *page.NextPageToken
	}

	c.logger.WithFields(logrus.Fields{
		"underlying": filter.Underlying,
		"contracts":  len(all),
	}).Debug("Fetched option contracts")
	return all, nil
}

type optionQuotesResponse struct {
	Quotes map[string]OptionQuote `json:"quotes"`
}

// GetOptionQuote fetches the latest NBBO for one OCC symbol.
func (c *AlpacaClient) GetOptionQuote(ctx context.Context, occSymbol string) (*OptionQuote, error) {
	var result optionQuotesResponse
	resp, err := c.data.R().
		SetContext(ctx).
		SetQueryParam("symbols", occSymbol).
		SetResult(&result).
		Get("/v1beta1/options/quotes/latest")
	if err := checkResp(resp, err); err != nil {
		return nil, err
	}

	quote, ok := result.Quotes[occSymbol]
	if !ok {
		return nil, fmt.Errorf("no quote returned for %s", occSymbol)
	}
	return &quote, nil
}

type stockTradesResponse struct {
	Trades map[string]struct {
		Price float64 `json:"p"`
	} `json:"trades"`
}

// GetStockQuote returns the latest trade price for an equity symbol.
func (c *AlpacaClient) GetStockQuote(ctx context.Context, symbol string) (float64, error) {
	var result stockTradesResponse
	resp, err := c.data.R().
		SetContext(ctx).
		SetQueryParam("symbols", symbol).
		SetResult(&result).
		Get("/v2/stocks/trades/latest")
	if err := checkResp(resp, err); err != nil {
		return 0, err
	}

	trade, ok := result.Trades[symbol]
	if !ok || trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price returned for %s", symbol)
	}
	return trade.Price, nil
}

// PlaceOrder submits an order and returns the broker's record of it.
func (c *AlpacaClient) PlaceOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if req.TimeInForce == "" {
		req.TimeInForce = "day"
	}

	var order Order
	resp, err := c.trading.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&order).
		Post("/orders")
	if err := checkResp(resp, err); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"symbol":   req.Symbol,
		"side":     req.Side,
		"qty":      req.Qty,
		"type":     req.Type,
		"order_id": order.ID,
	}).Info("Order placed")
	return &order, nil
}

// GetOrder fetches the current state of an order.
func (c *AlpacaClient) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	resp, err := c.trading.R().
		SetContext(ctx).
		SetResult(&order).
		Get("/orders/" + orderID)
	if err := checkResp(resp, err); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder requests cancellation of a live order.
func (c *AlpacaClient) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := c.trading.R().
		SetContext(ctx).
		Delete("/orders/" + orderID)
	return checkResp(resp, err)
}

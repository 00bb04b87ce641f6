// Package marketdata provides the Polygon daily-bar client and the
// technical indicators computed from its bars.
package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Bar is one daily OHLCV aggregate.
type Bar struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"` // epoch millis
}

// Day returns the bar's date in the given location.
func (b Bar) Day(loc *time.Location) time.Time {
	return time.UnixMilli(b.Timestamp).In(loc)
}

type aggsResponse struct {
	Ticker       string `json:"ticker"`
	ResultsCount int    `json:"resultsCount"`
	Results      []Bar  `json:"results"`
	Status       string `json:"status"`
}

// APIError carries the HTTP status and body of a failed market data call.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("polygon API error: status %d: %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether retrying the call is pointless.
// Client errors are permanent except 429.
func (e *APIError) IsPermanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
}

// BarProvider is the surface the cross-analyzer needs from market data.
type BarProvider interface {
	GetDailyBars(ctx context.Context, symbol string, days int) ([]Bar, error)
	GetPrevClose(ctx context.Context, symbol string) (*Bar, error)
}

// PolygonClient fetches daily aggregates from the Polygon REST API.
type PolygonClient struct {
	client  *resty.Client
	apiKey  string
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// Compile-time interface compliance check.
var _ BarProvider = (*PolygonClient)(nil)

// NewPolygonClient creates a rate-limited Polygon client.
func NewPolygonClient(baseURL, apiKey string, ratePerSec float64, logger *logrus.Logger) *PolygonClient {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	return &PolygonClient{
		client:  client,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		logger:  logger,
	}
}

// GetDailyBars returns up to `days` most recent daily bars for symbol,
// querying a window half again as wide to absorb weekends and holidays.
// Falls back to the previous-close endpoint when the range query comes
// back empty, so callers always get at least one bar for a live symbol.
func (c *PolygonClient) GetDailyBars(ctx context.Context, symbol string, days int) ([]Bar, error) {
	if days <= 0 {
		days = 30
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -(days + days/2))

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))

	resp, err := c.do(ctx, path, map[string]string{
		"adjusted": "true",
		"sort":     "asc",
		"limit":    strconv.Itoa(days * 2),
	})
	if err != nil {
		return nil, err
	}

	agg := resp.Result().(*aggsResponse)
	if len(agg.Results) == 0 {
		c.logger.WithField("symbol", symbol).Warn("Empty aggregate window, falling back to previous close")
		prev, err := c.GetPrevClose(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("no bars for %s: %w", symbol, err)
		}
		return []Bar{*prev}, nil
	}

	bars := agg.Results
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

// GetPrevClose returns the prior session's bar for symbol.
func (c *PolygonClient) GetPrevClose(ctx context.Context, symbol string) (*Bar, error) {
	resp, err := c.do(ctx, fmt.Sprintf("/v2/aggs/ticker/%s/prev", symbol), map[string]string{
		"adjusted": "true",
	})
	if err != nil {
		return nil, err
	}

	agg := resp.Result().(*aggsResponse)
	if len(agg.Results) == 0 {
		return nil, fmt.Errorf("no previous close for %s", symbol)
	}
	return &agg.Results[0], nil
}

// LatestPrice returns the freshest close available for symbol.
func (c *PolygonClient) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	prev, err := c.GetPrevClose(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return prev.Close, nil
}

func (c *PolygonClient) do(ctx context.Context, path string, params map[string]string) (*resty.Response, error) {
	const maxRetries = 3

	var resp *resty.Response
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		resp, err = c.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetQueryParam("apiKey", c.apiKey).
			SetResult(&aggsResponse{}).
			Get(path)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		if resp != nil && resp.IsError() {
			apiErr := &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
			if apiErr.IsPermanent() {
				return nil, apiErr
			}
			err = apiErr
		}

		backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		c.logger.WithFields(logrus.Fields{
			"path":    path,
			"attempt": attempt + 1,
		}).WithError(err).Warn("Polygon request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("polygon request %s failed after %d attempts: %w", path, maxRetries, err)
}

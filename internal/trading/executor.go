// Package trading turns gated picks into paper option trades and
// manages their lifecycle against the broker.
package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/broker"
	"github.com/signalyard/metaengine/internal/config"
	"github.com/signalyard/metaengine/internal/models"
	"github.com/signalyard/metaengine/internal/storage"
	"github.com/signalyard/metaengine/internal/util"
)

// Strike selection window relative to spot: calls look 3-8% above,
// puts 3-8% below.
const (
	strikeWindowNearPct = 0.03
	strikeWindowFarPct  = 0.08
)

// Contract scoring terms.
const (
	oiBonusCap       = 5.0
	strikeDistWeight = 10.0
	dteTargetDays    = 10
	dteWeight        = 0.01
)

// Executor sizes and places entry orders for gated picks.
type Executor struct {
	broker broker.Broker
	store  storage.TradeStore
	cfg    config.TradingConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewExecutor creates an executor.
func NewExecutor(b broker.Broker, store storage.TradeStore, cfg config.TradingConfig, logger *logrus.Logger) *Executor {
	return &Executor{broker: b, store: store, cfg: cfg, logger: logger, now: time.Now}
}

// ExecuteTopPicks places entries for the top N gated candidates,
// skipping symbols that already have a live trade. Returns the trades
// it recorded. Per-symbol failures degrade, not abort.
func (e *Executor) ExecuteTopPicks(ctx context.Context, session models.Session, scored []models.ScoredPick) []models.Trade {
	open, err := e.store.GetOpenTrades()
	if err != nil {
		e.logger.WithError(err).Error("Cannot load open trades, skipping execution")
		return nil
	}
	held := make(map[string]bool, len(open))
	for _, tr := range open {
		held[tr.Symbol] = true
	}

	var placed []models.Trade
	for _, sp := range scored {
		if len(placed) >= e.cfg.TopNTrades {
			break
		}
		if !sp.Passed {
			continue
		}
		if held[sp.Pick.Symbol] {
			e.logger.WithField("symbol", sp.Pick.Symbol).Info("Already holding, skipping duplicate entry")
			continue
		}

		trade, err := e.enterTrade(ctx, session, sp)
		if err != nil {
			e.logger.WithField("symbol", sp.Pick.Symbol).WithError(err).Warn("Entry failed")
			continue
		}
		held[sp.Pick.Symbol] = true
		placed = append(placed, *trade)
	}

	e.logger.WithField("trades", len(placed)).Info("Trade execution complete")
	return placed
}

func (e *Executor) enterTrade(ctx context.Context, session models.Session, sp models.ScoredPick) (*models.Trade, error) {
	symbol := sp.Pick.Symbol
	optionType := "put"
	if sp.Pick.Engine.Direction() == models.DirectionBullish {
		optionType = "call"
	}

	spot := sp.Pick.Price
	if sp.Cross != nil && sp.Cross.FreshPrice > 0 {
		spot = sp.Cross.FreshPrice
	}
	if spot <= 0 {
		price, err := e.broker.GetStockQuote(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("no usable spot price: %w", err)
		}
		spot = price
	}

	contract, err := e.selectContract(ctx, symbol, optionType, spot)
	if err != nil {
		return nil, err
	}

	quote, err := e.broker.GetOptionQuote(ctx, contract.Symbol)
	if err != nil {
		return nil, fmt.Errorf("quoting %s: %w", contract.Symbol, err)
	}

	order, limitPrice, err := e.placeEntryOrder(ctx, contract.Symbol, quote)
	if err != nil {
		return nil, err
	}

	now := e.now()
	trade := &models.Trade{
		TradeID:         newTradeID(symbol, now),
		Session:         string(session),
		ScanDate:        now.Format("2006-01-02"),
		Symbol:          symbol,
		OptionSymbol:    contract.Symbol,
		OptionType:      optionType,
		StrikePrice:     contract.StrikePrice,
		ExpiryDate:      contract.ExpirationDate,
		Contracts:       e.cfg.ContractsPerTrade,
		EntryPrice:      entryFill(order, limitPrice),
		CurrentPrice:    entryFill(order, limitPrice),
		UnderlyingPrice: spot,
		MetaScore:       sp.BlendedScore,
		MetaSignals:     marshalSignals(sp.Pick.Signals),
		SourceEngine:    string(sp.Pick.Engine),
		EntryOrderID:    order.ID,
		Status:          models.StatusPending,
	}
	if order.Status == broker.OrderStatusFilled {
		if err := trade.TransitionState(models.StatusFilled, "order_filled"); err != nil {
			return nil, err
		}
	}

	if err := e.store.SaveTrade(trade); err != nil {
		return nil, fmt.Errorf("persisting trade: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"trade_id": trade.TradeID,
		"symbol":   symbol,
		"contract": contract.Symbol,
		"strike":   contract.StrikePrice,
		"status":   trade.Status,
	}).Info("Entry placed")
	return trade, nil
}

// selectContract finds the best listed contract in the OTM window and
// DTE range.
func (e *Executor) selectContract(ctx context.Context, symbol, optionType string, spot float64) (*broker.OptionContract, error) {
	now := e.now()

	var strikeLow, strikeHigh float64
	if optionType == "call" {
		strikeLow = spot * (1 + strikeWindowNearPct)
		strikeHigh = spot * (1 + strikeWindowFarPct)
	} else {
		strikeLow = spot * (1 - strikeWindowFarPct)
		strikeHigh = spot * (1 - strikeWindowNearPct)
	}

	contracts, err := e.broker.GetOptionContracts(ctx, broker.ContractFilter{
		Underlying: symbol,
		Type:       optionType,
		StrikeGTE:  util.RoundToStrike(strikeLow, spot),
		StrikeLTE:  util.RoundToStrike(strikeHigh, spot),
		ExpiryGTE:  now.AddDate(0, 0, e.cfg.MinDTE).Format("2006-01-02"),
		ExpiryLTE:  now.AddDate(0, 0, e.cfg.MaxDTE).Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("searching contracts for %s: %w", symbol, err)
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("no %s contracts for %s in strike window [%.2f, %.2f]",
			optionType, symbol, strikeLow, strikeHigh)
	}

	// Target strike sits 5% OTM in the trade's direction.
	target := spot * (1 + e.cfg.StrikeOTMPct)
	if optionType == "put" {
		target = spot * (1 - e.cfg.StrikeOTMPct)
	}

	best := -1
	bestScore := math.Inf(-1)
	for i, c := range contracts {
		if !c.Tradable {
			continue
		}
		expiry, err := time.Parse("2006-01-02", c.ExpirationDate)
		if err != nil {
			continue
		}
		dte := int(expiry.Sub(now).Hours() / 24)

		oiBonus := math.Min(c.OpenInterest/1000, oiBonusCap)
		strikeDist := math.Abs(c.StrikePrice-target) / target
		score := oiBonus - strikeDist*strikeDistWeight - math.Abs(float64(dte-dteTargetDays))*dteWeight

		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("no tradable %s contract for %s", optionType, symbol)
	}
	return &contracts[best], nil
}

// placeEntryOrder buys at the ask (or bid plus 5% when the ask is
// missing); with no quote at all it falls back to a market order.
func (e *Executor) placeEntryOrder(ctx context.Context, occSymbol string, quote *broker.OptionQuote) (*broker.Order, float64, error) {
	var limitPrice float64
	switch {
	case quote != nil && quote.Ask > 0:
		limitPrice = quote.Ask
	case quote != nil && quote.Bid > 0:
		limitPrice = quote.Bid * 1.05
	}

	req := broker.OrderRequest{
		Symbol:      occSymbol,
		Qty:         e.cfg.ContractsPerTrade,
		Side:        broker.SideBuy,
		Type:        "market",
		TimeInForce: "day",
	}
	if limitPrice > 0 {
		req.Type = "limit"
		req.LimitPrice = strconv.FormatFloat(util.RoundToTick(limitPrice, 0.01), 'f', 2, 64)
	}

	order, err := e.broker.PlaceOrder(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("placing entry order: %w", err)
	}
	return order, limitPrice, nil
}

func entryFill(order *broker.Order, limitPrice float64) float64 {
	if order.FilledAvgPrice != "" {
		if p, err := strconv.ParseFloat(order.FilledAvgPrice, 64); err == nil && p > 0 {
			return p
		}
	}
	return limitPrice
}

// newTradeID builds ME-{YYYYMMDDHHMMSS}-{SYM}-{6 hex chars}.
func newTradeID(symbol string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("ME-%s-%s-%s", now.Format("20060102150405"), symbol, suffix)
}

func marshalSignals(signals []string) string {
	if len(signals) == 0 {
		return "[]"
	}
	data, err := json.Marshal(signals)
	if err != nil {
		return "[]"
	}
	return string(data)
}

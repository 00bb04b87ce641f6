package trading

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signalyard/metaengine/internal/broker"
	"github.com/signalyard/metaengine/internal/config"
	"github.com/signalyard/metaengine/internal/models"
	"github.com/signalyard/metaengine/internal/storage"
	"github.com/signalyard/metaengine/internal/util"
)

// Exit reasons recorded on closed trades.
const (
	ExitTakeProfit = "take_profit"
	ExitStopLoss   = "stop_loss"
	ExitTimeStop   = "time_stop"
	ExitExpired    = "expired"
)

// Manager syncs pending orders and applies exit rules to open positions.
type Manager struct {
	broker broker.Broker
	store  storage.TradeStore
	cfg    config.TradingConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewManager creates a position manager.
func NewManager(b broker.Broker, store storage.TradeStore, cfg config.TradingConfig, logger *logrus.Logger) *Manager {
	return &Manager{broker: b, store: store, cfg: cfg, logger: logger, now: time.Now}
}

// ManagePositions runs one management pass: reconcile pending entry
// orders, then refresh marks and apply exit rules to live positions.
// Per-trade failures log and continue.
func (m *Manager) ManagePositions(ctx context.Context) error {
	if err := m.syncPending(ctx); err != nil {
		return err
	}
	return m.manageOpen(ctx)
}

// syncPending pulls broker order state for every pending trade and
// advances or cancels it.
func (m *Manager) syncPending(ctx context.Context) error {
	pending, err := m.store.GetPendingTrades()
	if err != nil {
		return fmt.Errorf("loading pending trades: %w", err)
	}

	for i := range pending {
		trade := &pending[i]
		order, err := m.broker.GetOrder(ctx, trade.EntryOrderID)
		if err != nil {
			m.logger.WithField("trade_id", trade.TradeID).WithError(err).Warn("Order status check failed")
			continue
		}

		switch order.Status {
		case broker.OrderStatusFilled:
			if fill := entryFill(order, trade.EntryPrice); fill > 0 {
				trade.EntryPrice = fill
				trade.CurrentPrice = fill
			}
			if err := trade.TransitionState(models.StatusFilled, "order_filled"); err != nil {
				m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Bad fill transition")
				continue
			}
		case broker.OrderStatusCanceled, broker.OrderStatusExpired, broker.OrderStatusRejected:
			if err := trade.TransitionState(models.StatusCancelled, "order_cancelled"); err != nil {
				m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Bad cancel transition")
				continue
			}
			m.logger.WithFields(logrus.Fields{
				"trade_id": trade.TradeID,
				"status":   order.Status,
			}).Info("Entry order did not fill")
		default:
			continue
		}

		if err := m.store.UpdateTrade(trade); err != nil {
			m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Persisting sync result failed")
		}
	}
	return nil
}

// manageOpen refreshes marks and evaluates exits. Fresh fills are first
// promoted to open so exit rules see a consistent state.
func (m *Manager) manageOpen(ctx context.Context) error {
	open, err := m.store.GetOpenTrades()
	if err != nil {
		return fmt.Errorf("loading open trades: %w", err)
	}

	now := m.now()
	for i := range open {
		trade := &open[i]

		if trade.Status == models.StatusFilled {
			if err := trade.TransitionState(models.StatusOpen, "position_opened"); err != nil {
				m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Bad open transition")
				continue
			}
		}

		quote, err := m.broker.GetOptionQuote(ctx, trade.OptionSymbol)
		if err != nil {
			m.logger.WithField("trade_id", trade.TradeID).WithError(err).Warn("Mark refresh failed")
			if err := m.store.UpdateTrade(trade); err != nil {
				m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Persisting trade failed")
			}
			continue
		}
		mark := quote.Mid()
		if mark > 0 {
			trade.CurrentPrice = mark
			trade.PnL, trade.PnLPct = trade.CalcPnL(mark)
		}

		dte, err := trade.DTE(now)
		if err != nil {
			m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Unreadable expiry")
			continue
		}

		switch reason := m.shouldExit(trade, dte); {
		case dte < 0:
			m.expireTrade(trade)
		case reason != "":
			m.exitTrade(ctx, trade, reason)
		case m.shouldTakePartial(trade):
			m.takePartialProfit(ctx, trade)
		}

		if err := m.store.UpdateTrade(trade); err != nil {
			m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Persisting trade failed")
		}
	}
	return nil
}

// shouldExit returns the exit reason, or empty when the position stays.
func (m *Manager) shouldExit(trade *models.Trade, dte int) string {
	if trade.EntryPrice <= 0 || trade.CurrentPrice <= 0 {
		return ""
	}
	switch {
	case trade.CurrentPrice >= trade.EntryPrice*m.cfg.TakeProfitMult:
		return ExitTakeProfit
	case trade.CurrentPrice <= trade.EntryPrice*(1-m.cfg.StopLossPct):
		return ExitStopLoss
	case dte <= 1:
		return ExitTimeStop
	}
	return ""
}

func (m *Manager) shouldTakePartial(trade *models.Trade) bool {
	if trade.PartialProfitTaken || m.cfg.PartialProfitMult <= 0 {
		return false
	}
	if trade.EntryPrice <= 0 || trade.Contracts < 2 {
		return false
	}
	return trade.CurrentPrice >= trade.EntryPrice*m.cfg.PartialProfitMult
}

// exitTrade sells the full position and closes the trade.
func (m *Manager) exitTrade(ctx context.Context, trade *models.Trade, reason string) {
	order, err := m.sellContracts(ctx, trade, trade.Contracts)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"trade_id": trade.TradeID,
			"reason":   reason,
		}).WithError(err).Error("Exit order failed")
		return
	}

	exitPrice := fillPrice(order, trade.CurrentPrice)
	trade.ExitOrderID = order.ID
	trade.ExitPrice = exitPrice
	trade.ExitReason = reason
	trade.PnL, trade.PnLPct = trade.CalcPnL(exitPrice)

	if err := trade.TransitionState(models.StatusClosed, "exit_filled"); err != nil {
		m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Bad close transition")
		return
	}

	m.logger.WithFields(logrus.Fields{
		"trade_id": trade.TradeID,
		"symbol":   trade.Symbol,
		"reason":   reason,
		"pnl":      trade.PnL,
		"pnl_pct":  trade.PnLPct,
	}).Info("Position closed")
}

// takePartialProfit sells the configured fraction of the position once.
// The trade stays open with the remaining contracts.
func (m *Manager) takePartialProfit(ctx context.Context, trade *models.Trade) {
	qty := int(float64(trade.Contracts) * m.cfg.PartialProfitPct)
	if qty < 1 {
		qty = 1
	}
	if qty >= trade.Contracts {
		qty = trade.Contracts - 1
	}
	order, err := m.sellContracts(ctx, trade, qty)
	if err != nil {
		m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Partial profit order failed")
		return
	}

	price := fillPrice(order, trade.CurrentPrice)
	realized := (price - trade.EntryPrice) * float64(qty) * 100

	trade.Contracts -= qty
	trade.PartialProfitTaken = true
	trade.PartialProfitPrice = price
	if trade.EntryPrice > 0 {
		trade.PartialProfitPct = (price - trade.EntryPrice) / trade.EntryPrice * 100
	}
	trade.PnL, trade.PnLPct = trade.CalcPnL(trade.CurrentPrice)

	m.logger.WithFields(logrus.Fields{
		"trade_id":  trade.TradeID,
		"symbol":    trade.Symbol,
		"sold":      qty,
		"remaining": trade.Contracts,
		"realized":  realized,
	}).Info("Partial profit taken")
}

// expireTrade marks a position whose contract passed expiry. Alpaca
// settles expired paper options itself, so no order is placed.
func (m *Manager) expireTrade(trade *models.Trade) {
	trade.ExitReason = ExitExpired
	trade.ExitPrice = 0
	trade.PnL, trade.PnLPct = trade.CalcPnL(0)
	if err := trade.TransitionState(models.StatusExpired, "contract_expired"); err != nil {
		m.logger.WithField("trade_id", trade.TradeID).WithError(err).Error("Bad expire transition")
		return
	}
	m.logger.WithFields(logrus.Fields{
		"trade_id": trade.TradeID,
		"symbol":   trade.Symbol,
		"pnl":      trade.PnL,
	}).Warn("Contract expired while open")
}

// sellContracts places a sell at the bid when one exists, otherwise at
// market.
func (m *Manager) sellContracts(ctx context.Context, trade *models.Trade, qty int) (*broker.Order, error) {
	req := broker.OrderRequest{
		Symbol:      trade.OptionSymbol,
		Qty:         qty,
		Side:        broker.SideSell,
		Type:        "market",
		TimeInForce: "day",
	}
	quote, err := m.broker.GetOptionQuote(ctx, trade.OptionSymbol)
	if err == nil && quote.Bid > 0 {
		req.Type = "limit"
		req.LimitPrice = strconv.FormatFloat(util.RoundToTick(quote.Bid, 0.01), 'f', 2, 64)
	}
	return m.broker.PlaceOrder(ctx, req)
}

func fillPrice(order *broker.Order, fallback float64) float64 {
	if order.FilledAvgPrice != "" {
		if p, err := strconv.ParseFloat(order.FilledAvgPrice, 64); err == nil && p > 0 {
			return p
		}
	}
	if order.LimitPrice != "" {
		if p, err := strconv.ParseFloat(order.LimitPrice, 64); err == nil && p > 0 {
			return p
		}
	}
	return fallback
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trend-core/internal/risk"
	"trend-core/internal/state"
	"trend-core/internal/strategy"
	"trend-core/pkg/db"
	"trend-core/pkg/exchanges/common"
)

func sideOf(d strategy.Direction) common.Side {
	if d == strategy.Sell {
		return common.SideSell
	}
	return common.SideBuy
}

// execute attempts to act on a signal. Failures are logged and leave the book
// untouched; the next cycle may signal again.
func (c *Controller) execute(ctx context.Context, sig strategy.Signal) {
	c.execMu.Lock()
	defer c.execMu.Unlock()

	if l := c.Lifecycle(); l == EmergencyStop || l == Terminated {
		c.log.Warn("signal skipped: emergency stop active",
			zap.String("symbol", sig.Symbol),
			zap.String("direction", sig.Direction.String()))
		return
	}

	fields := []zap.Field{
		zap.String("symbol", sig.Symbol),
		zap.String("direction", sig.Direction.String()),
		zap.Float64("price", sig.Price),
		zap.Float64("confidence", sig.Confidence),
	}
	if counters, ok := c.strat.Counters(sig.Symbol); ok {
		fields = append(fields, zap.Int("count_buy", counters.Buy), zap.Int("count_sell", counters.Sell))
	}

	if c.cfg.OnePositionPerSymbol && c.book.HasSymbol(sig.Symbol) {
		c.log.Info("signal skipped: position already open", fields...)
		return
	}

	sizing, err := c.risk.Size(sig.Symbol, c.currentBalance(), sig.Price)
	if err != nil {
		level := c.log.Error
		if errors.Is(err, risk.ErrBelowMinNotional) {
			level = c.log.Warn
		}
		level("signal skipped: order size rejected", append(fields, zap.Error(err))...)
		return
	}

	req := common.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       sideOf(sig.Direction),
		Type:       c.cfg.OrderType,
		Qty:        sizing.Qty,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		ClientID:   uuid.NewString(),
	}
	if req.Type == common.OrderTypeLimit {
		req.Price = sig.Price
	}

	c.log.Info("executing signal", append(fields,
		zap.Float64("qty", sizing.Qty),
		zap.Float64("notional", sizing.Notional),
		zap.Float64("stop_loss", sig.StopLoss),
		zap.Float64("take_profit", sig.TakeProfit))...)

	res, err := c.ex.SubmitOrder(ctx, req)
	c.metrics.Order(sig.Symbol, req.Side, err)
	if err != nil {
		c.log.Error("order execution failed", append(fields, zap.Error(err))...)
		return
	}

	now := c.now()
	pos := state.Position{
		Symbol:     sig.Symbol,
		OrderID:    res.ExchangeOrderID,
		Side:       req.Side,
		EntryPrice: sig.Price,
		Size:       sizing.Qty,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Confidence: sig.Confidence,
		Trend:      sig.Trend.String(),
		EntryTime:  now,
		MarkPrice:  sig.Price,
	}
	c.book.Add(pos)
	c.stats.RecordTrade(now)
	c.metrics.SetOpenPositions(c.book.Len())
	c.log.Info("order executed", append(fields,
		zap.String("order_id", res.ExchangeOrderID),
		zap.String("client_id", res.ClientID))...)

	c.journalEntry(ctx, pos, sizing.Notional*c.cfg.feeRate())
}

func (c *Controller) journalEntry(ctx context.Context, pos state.Position, fee float64) {
	if c.journal == nil {
		return
	}
	signal, _ := json.Marshal(map[string]any{
		"type":        pos.Trend,
		"confidence":  pos.Confidence,
		"stop_loss":   pos.StopLoss,
		"take_profit": pos.TakeProfit,
	})
	err := c.journal.LogTrade(ctx, db.Trade{
		OrderID:        pos.OrderID,
		Symbol:         pos.Symbol,
		Side:           string(pos.Side),
		Amount:         pos.Size,
		Price:          pos.EntryPrice,
		Fee:            fee,
		Timestamp:      pos.EntryTime,
		Status:         db.TradeExecuted,
		StrategySignal: string(signal),
	})
	if err == nil {
		err = c.journal.LogPositionOpen(ctx, db.PositionRecord{
			OrderID:    pos.OrderID,
			Symbol:     pos.Symbol,
			Side:       string(pos.Side),
			EntryPrice: pos.EntryPrice,
			Size:       pos.Size,
			OpenedAt:   pos.EntryTime,
		})
	}
	if err != nil {
		c.log.Warn("journal entry failed", zap.String("order_id", pos.OrderID), zap.Error(err))
		c.metrics.Error("journal")
	}
}

// monitorPositions marks every tracked position and closes those whose
// stop-loss or take-profit was crossed.
func (c *Controller) monitorPositions(ctx context.Context) {
	if c.book.Len() == 0 {
		return
	}

	reported := map[string]float64{}
	exPositions, err := c.ex.OpenPositions(ctx)
	if err != nil {
		c.log.Error("fetch exchange positions failed", zap.Error(err))
		c.metrics.Error("positions")
	}
	for _, p := range exPositions {
		reported[p.Symbol] += p.UnrealizedPnL
	}

	prices := map[string]float64{}
	for _, pos := range c.book.Positions() {
		price, ok := prices[pos.Symbol]
		if !ok {
			t, err := c.ex.Ticker(ctx, pos.Symbol)
			if err != nil {
				c.log.Warn("ticker unavailable", zap.String("symbol", pos.Symbol), zap.Error(err))
				continue
			}
			price = t.Last
			prices[pos.Symbol] = price
		}

		unrealized := risk.PnL(pos.Side, pos.EntryPrice, price, pos.Size)
		if v, ok := reported[pos.Symbol]; ok {
			unrealized = v
		}
		c.book.Mark(pos.OrderID, price, unrealized)
		c.log.Debug("position",
			zap.String("symbol", pos.Symbol),
			zap.String("order_id", pos.OrderID),
			zap.Float64("size", pos.Size),
			zap.Float64("entry", pos.EntryPrice),
			zap.Float64("mark", price),
			zap.Float64("unrealized_pnl", unrealized))

		if exit := risk.CheckExit(pos.Side, pos.StopLoss, pos.TakeProfit, price); exit != risk.ExitNone {
			c.execMu.Lock()
			_ = c.closePosition(ctx, pos, price, string(exit))
			c.execMu.Unlock()
		}
	}
	c.metrics.SetOpenPositions(c.book.Len())
}

// closePosition sends an opposite market order for pos and books the result.
// Callers hold execMu.
func (c *Controller) closePosition(ctx context.Context, pos state.Position, price float64, reason string) error {
	req := common.OrderRequest{
		Symbol:   pos.Symbol,
		Side:     pos.Side.Opposite(),
		Type:     common.OrderTypeMarket,
		Qty:      pos.Size,
		ClientID: uuid.NewString(),
	}
	res, err := c.ex.SubmitOrder(ctx, req)
	c.metrics.Order(pos.Symbol, req.Side, err)
	if err != nil {
		c.log.Error("close order failed",
			zap.String("symbol", pos.Symbol),
			zap.String("order_id", pos.OrderID),
			zap.String("reason", reason),
			zap.Error(err))
		return err
	}
	c.book.Remove(pos.OrderID)

	now := c.now()
	if price <= 0 {
		price = pos.EntryPrice
	}
	pnl := risk.PnL(pos.Side, pos.EntryPrice, price, pos.Size)
	c.stats.RecordClose(pnl, now)
	c.log.Info("position closed",
		zap.String("symbol", pos.Symbol),
		zap.String("order_id", pos.OrderID),
		zap.String("close_order_id", res.ExchangeOrderID),
		zap.String("reason", reason),
		zap.Float64("price", price),
		zap.Float64("pnl", pnl))

	if c.journal != nil {
		jerr := c.journal.UpdateTradePnL(ctx, pos.OrderID, pnl)
		if jerr == nil {
			jerr = c.journal.LogTrade(ctx, db.Trade{
				OrderID:   res.ExchangeOrderID,
				Symbol:    pos.Symbol,
				Side:      string(req.Side),
				Amount:    pos.Size,
				Price:     price,
				Fee:       pos.Size * price * c.cfg.TakerFee,
				Timestamp: now,
				Status:    db.TradeClosed,
				Notes:     reason,
			})
		}
		if jerr == nil {
			jerr = c.journal.LogPositionClose(ctx, pos.OrderID, price, pnl, now)
		}
		if jerr != nil {
			c.log.Warn("journal close failed", zap.String("order_id", pos.OrderID), zap.Error(jerr))
			c.metrics.Error("journal")
		}
	}
	return nil
}

// liquidate closes every position the exchange reports plus every tracked
// position it does not report. A failed close is logged and the rest continue.
func (c *Controller) liquidate(ctx context.Context) {
	c.liqMu.Lock()
	defer c.liqMu.Unlock()
	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.log.Warn("liquidating all positions")

	exPositions, err := c.ex.OpenPositions(ctx)
	if err != nil {
		c.log.Error("fetch exchange positions failed; closing tracked positions only", zap.Error(err))
		c.metrics.Error("positions")
	}

	covered := map[string]bool{}
	for _, p := range exPositions {
		req := common.OrderRequest{
			Symbol:   p.Symbol,
			Side:     p.Side.Opposite(),
			Type:     common.OrderTypeMarket,
			Qty:      p.Size,
			ClientID: uuid.NewString(),
		}
		_, err := c.ex.SubmitOrder(ctx, req)
		c.metrics.Liquidation(err)
		if err != nil {
			c.log.Error("liquidation order failed",
				zap.String("symbol", p.Symbol),
				zap.Float64("size", p.Size),
				zap.Error(err))
			continue
		}
		covered[p.Symbol+"|"+string(p.Side)] = true
		c.log.Info("emergency closed exchange position", zap.String("symbol", p.Symbol), zap.Float64("size", p.Size))
	}

	for _, pos := range c.book.Positions() {
		if covered[pos.Symbol+"|"+string(pos.Side)] {
			c.book.Remove(pos.OrderID)
			continue
		}
		price := pos.MarkPrice
		if t, err := c.ex.Ticker(ctx, pos.Symbol); err == nil {
			price = t.Last
		}
		err := c.closePosition(ctx, pos, price, "liquidation")
		c.metrics.Liquidation(err)
	}
	c.metrics.SetOpenPositions(c.book.Len())

	if n := c.book.Len(); n > 0 {
		c.log.Error("liquidation incomplete", zap.Int("remaining", n))
	}
}

// dailyRow is the performance snapshot of the UTC day of now.
func dailyRow(now time.Time, s state.Stats) db.DailyPerformance {
	return db.DailyPerformance{
		Date:          now.UTC().Format(time.DateOnly),
		Balance:       s.CurrentBalance,
		TradesCount:   s.TradesExecuted,
		WinningTrades: s.WinningTrades,
		LosingTrades:  s.LosingTrades,
		TotalPnL:      s.TotalPnL,
		MaxDrawdown:   s.MaxDrawdown,
	}
}

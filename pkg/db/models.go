package db

import "time"

// Trade status values stored in the journal.
const (
	TradeExecuted = "executed"
	TradeClosed   = "closed"
)

// Position status values.
const (
	PositionOpen   = "open"
	PositionClosed = "closed"
)

// Trade is one executed order.
type Trade struct {
	ID             int64     `json:"id"`
	OrderID        string    `json:"order_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Amount         float64   `json:"amount"`
	Price          float64   `json:"price"`
	Fee            float64   `json:"fee"`
	Timestamp      time.Time `json:"timestamp"`
	Status         string    `json:"status"`
	PnL            *float64  `json:"pnl,omitempty"`
	StrategySignal string    `json:"strategy_signal,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// PositionRecord is the journal row of one position lifecycle.
type PositionRecord struct {
	ID            int64      `json:"id"`
	OrderID       string     `json:"order_id"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"`
	EntryPrice    float64    `json:"entry_price"`
	CurrentPrice  float64    `json:"current_price"`
	Size          float64    `json:"size"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	Status        string     `json:"status"`
}

// DailyPerformance is the per-day snapshot row.
type DailyPerformance struct {
	Date          string   `json:"date"` // YYYY-MM-DD, UTC
	Balance       float64  `json:"balance"`
	TradesCount   int      `json:"trades_count"`
	WinningTrades int      `json:"winning_trades"`
	LosingTrades  int      `json:"losing_trades"`
	TotalPnL      float64  `json:"total_pnl"`
	MaxDrawdown   float64  `json:"max_drawdown"`
	SharpeRatio   *float64 `json:"sharpe_ratio,omitempty"`
}

// Metrics aggregates realized results over executed trades with a recorded PnL.
type Metrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	ProfitFactor  float64 `json:"profit_factor"`
}

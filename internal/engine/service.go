// Package engine runs the trading control loop: it feeds the strategy, executes
// signals under the risk budget and guards the account with emergency stops.
package engine

import (
	"context"
	"time"

	"trend-core/internal/state"
	"trend-core/internal/strategy"
	"trend-core/pkg/db"
	"trend-core/pkg/exchanges/common"
)

// Exchange is everything the controller needs from a venue client.
type Exchange interface {
	common.Gateway
	common.MarketData
	common.Account
}

// Journal is the optional trade log.
type Journal interface {
	LogTrade(ctx context.Context, t db.Trade) error
	UpdateTradePnL(ctx context.Context, orderID string, pnl float64) error
	LogPositionOpen(ctx context.Context, p db.PositionRecord) error
	LogPositionClose(ctx context.Context, orderID string, price, pnl float64, closedAt time.Time) error
	PerformanceMetrics(ctx context.Context) (db.Metrics, error)
	SaveDailyPerformance(ctx context.Context, p db.DailyPerformance) error
}

var _ Journal = (*db.Journal)(nil)

// Service is the read-only view the monitoring surface consumes.
type Service interface {
	Health() Health
	Stats() StatsView
	Positions() []state.Position
	Markets() []strategy.Summary
}

var _ Service = (*Controller)(nil)

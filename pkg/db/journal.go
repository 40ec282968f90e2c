package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrOrderIDRequired = errors.New("order_id is required")
	ErrNotFound        = errors.New("record not found")
)

// Journal records trades, positions and daily performance.
type Journal struct {
	db *sql.DB
}

// Journal returns the trade journal backed by d.
func (d *Database) Journal() *Journal {
	return &Journal{db: d.DB}
}

// ----------------------------------------
// Trades
// ----------------------------------------

// LogTrade inserts an executed order. A repeated order id is ignored.
func (j *Journal) LogTrade(ctx context.Context, t Trade) error {
	if t.OrderID == "" {
		return ErrOrderIDRequired
	}
	if t.Status == "" {
		t.Status = TradeExecuted
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
			(order_id, symbol, side, amount, price, fee, timestamp, status, pnl, strategy_signal, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.OrderID, t.Symbol, t.Side, t.Amount, t.Price, t.Fee, t.Timestamp.UTC(), t.Status,
		nullFloat(t.PnL), nullString(t.StrategySignal), nullString(t.Notes))
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.OrderID, err)
	}
	return nil
}

// UpdateTradePnL stores the realized PnL of the trade opened by orderID.
func (j *Journal) UpdateTradePnL(ctx context.Context, orderID string, pnl float64) error {
	if orderID == "" {
		return ErrOrderIDRequired
	}
	res, err := j.db.ExecContext(ctx, `UPDATE trades SET pnl = ? WHERE order_id = ?`, pnl, orderID)
	if err != nil {
		return fmt.Errorf("update trade pnl %s: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trade %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// TradeHistory returns the most recent trades, newest first. An empty symbol
// matches every symbol.
func (j *Journal) TradeHistory(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, order_id, symbol, side, amount, price, COALESCE(fee, 0), timestamp, status,
		       pnl, COALESCE(strategy_signal, ''), COALESCE(notes, '')
		FROM trades`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var (
			t   Trade
			pnl sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Side, &t.Amount, &t.Price, &t.Fee,
			&t.Timestamp, &t.Status, &pnl, &t.StrategySignal, &t.Notes); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if pnl.Valid {
			v := pnl.Float64
			t.PnL = &v
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ----------------------------------------
// Positions
// ----------------------------------------

// LogPositionOpen records a newly opened position.
func (j *Journal) LogPositionOpen(ctx context.Context, p PositionRecord) error {
	if p.OrderID == "" {
		return ErrOrderIDRequired
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	if p.CurrentPrice == 0 {
		p.CurrentPrice = p.EntryPrice
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO positions
			(order_id, symbol, side, entry_price, current_price, size, unrealized_pnl, opened_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.OrderID, p.Symbol, p.Side, p.EntryPrice, p.CurrentPrice, p.Size, p.UnrealizedPnL,
		p.OpenedAt.UTC(), PositionOpen)
	if err != nil {
		return fmt.Errorf("insert position %s: %w", p.OrderID, err)
	}
	return nil
}

// LogPositionClose marks the open position of orderID closed at price.
func (j *Journal) LogPositionClose(ctx context.Context, orderID string, price, pnl float64, closedAt time.Time) error {
	if orderID == "" {
		return ErrOrderIDRequired
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE positions
		SET current_price = ?, unrealized_pnl = ?, closed_at = ?, status = ?
		WHERE order_id = ? AND status = ?
	`, price, pnl, closedAt.UTC(), PositionClosed, orderID, PositionOpen)
	if err != nil {
		return fmt.Errorf("close position %s: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("open position %s: %w", orderID, ErrNotFound)
	}
	return nil
}

// OpenPositions returns journal rows still marked open, oldest first.
func (j *Journal) OpenPositions(ctx context.Context) ([]PositionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, COALESCE(order_id, ''), symbol, side, entry_price, COALESCE(current_price, 0), size,
		       COALESCE(unrealized_pnl, 0), opened_at, closed_at, status
		FROM positions
		WHERE status = ?
		ORDER BY opened_at, id
	`, PositionOpen)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var (
			p      PositionRecord
			closed sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Symbol, &p.Side, &p.EntryPrice, &p.CurrentPrice, &p.Size,
			&p.UnrealizedPnL, &p.OpenedAt, &closed, &p.Status); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if closed.Valid {
			t := closed.Time
			p.ClosedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ----------------------------------------
// Performance
// ----------------------------------------

// PerformanceMetrics aggregates executed trades that carry a realized PnL.
func (j *Journal) PerformanceMetrics(ctx context.Context) (Metrics, error) {
	var (
		m                   Metrics
		grossWin, grossLoss float64
	)
	row := j.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN pnl > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl < 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(pnl), 0),
			COALESCE(SUM(CASE WHEN pnl > 0 THEN pnl ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl < 0 THEN pnl ELSE 0 END), 0)
		FROM trades
		WHERE status = ? AND pnl IS NOT NULL
	`, TradeExecuted)
	if err := row.Scan(&m.TotalTrades, &m.WinningTrades, &m.LosingTrades, &m.TotalPnL, &grossWin, &grossLoss); err != nil {
		return Metrics{}, fmt.Errorf("query performance: %w", err)
	}

	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
	}
	if m.WinningTrades > 0 {
		m.AvgWin = grossWin / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = grossLoss / float64(m.LosingTrades)
	}
	if grossLoss != 0 {
		m.ProfitFactor = grossWin / math.Abs(grossLoss)
	} else {
		m.ProfitFactor = grossWin
	}
	return m, nil
}

// SaveDailyPerformance upserts the snapshot row of p.Date.
func (j *Journal) SaveDailyPerformance(ctx context.Context, p DailyPerformance) error {
	if p.Date == "" {
		p.Date = time.Now().UTC().Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, p.Date); err != nil {
		return fmt.Errorf("performance date %q: %w", p.Date, err)
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO performance
			(date, balance, trades_count, winning_trades, losing_trades, total_pnl, max_drawdown, sharpe_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			balance = excluded.balance,
			trades_count = excluded.trades_count,
			winning_trades = excluded.winning_trades,
			losing_trades = excluded.losing_trades,
			total_pnl = excluded.total_pnl,
			max_drawdown = excluded.max_drawdown,
			sharpe_ratio = excluded.sharpe_ratio
	`, p.Date, p.Balance, p.TradesCount, p.WinningTrades, p.LosingTrades, p.TotalPnL, p.MaxDrawdown,
		nullFloat(p.SharpeRatio))
	if err != nil {
		return fmt.Errorf("upsert performance %s: %w", p.Date, err)
	}
	return nil
}

// DailyPerformance returns the snapshot of date (YYYY-MM-DD).
func (j *Journal) DailyPerformance(ctx context.Context, date string) (DailyPerformance, error) {
	var (
		p      DailyPerformance
		sharpe sql.NullFloat64
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT date, balance, trades_count, winning_trades, losing_trades, total_pnl, max_drawdown, sharpe_ratio
		FROM performance WHERE date = ?
	`, date).Scan(&p.Date, &p.Balance, &p.TradesCount, &p.WinningTrades, &p.LosingTrades, &p.TotalPnL,
		&p.MaxDrawdown, &sharpe)
	if errors.Is(err, sql.ErrNoRows) {
		return DailyPerformance{}, ErrNotFound
	}
	if err != nil {
		return DailyPerformance{}, fmt.Errorf("query performance %s: %w", date, err)
	}
	if sharpe.Valid {
		v := sharpe.Float64
		p.SharpeRatio = &v
	}
	return p, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

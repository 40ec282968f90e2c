package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var (
	ErrBelowMinNotional = errors.New("risk: order notional below minimum")
	ErrInvalidPrice     = errors.New("risk: invalid price")
)

// Manager tracks drawdown and daily PnL against Limits and sizes orders.
type Manager struct {
	mu     sync.RWMutex
	limits Limits
	state  State
}

// NewManager creates a risk manager for limits.
func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

// Limits returns a copy of the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}

// Start records the initial balance snapshot.
func (m *Manager) Start(balance float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{
		InitialBalance:  balance,
		CurrentBalance:  balance,
		DayStartBalance: balance,
		Day:             utcDay(now),
	}
}

// Restore carries a previously persisted worst drawdown into the current run.
func (m *Manager) Restore(maxDrawdown float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxDrawdown > m.state.MaxDrawdown {
		m.state.MaxDrawdown = maxDrawdown
	}
}

// Update recomputes the risk state from the latest balance and reports whether a
// limit tripped. Nothing is evaluated while the initial balance is not positive.
func (m *Manager) Update(balance float64, now time.Time) (Breach, State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.state
	s.CurrentBalance = balance
	if s.InitialBalance <= 0 {
		return Breach{}, *s
	}

	if day := utcDay(now); day.After(s.Day) {
		s.Day = day
		s.DayStartBalance = balance
	}

	s.CurrentDrawdown = (s.InitialBalance - balance) / s.InitialBalance
	if s.CurrentDrawdown > s.MaxDrawdown {
		s.MaxDrawdown = s.CurrentDrawdown
	}
	if s.DayStartBalance > 0 {
		s.DailyPnL = (balance - s.DayStartBalance) / s.DayStartBalance
	}

	switch {
	case m.limits.MaxDrawdown > 0 && s.CurrentDrawdown > m.limits.MaxDrawdown:
		return Breach{
			Kind:   BreachMaxDrawdown,
			Reason: fmt.Sprintf("drawdown %.2f%% exceeds limit %.2f%%", s.CurrentDrawdown*100, m.limits.MaxDrawdown*100),
		}, *s
	case m.limits.MaxDailyLoss > 0 && s.DailyPnL < -m.limits.MaxDailyLoss:
		return Breach{
			Kind:   BreachDailyLoss,
			Reason: fmt.Sprintf("daily pnl %.2f%% below limit -%.2f%%", s.DailyPnL*100, m.limits.MaxDailyLoss*100),
		}, *s
	}
	return Breach{}, *s
}

// State returns the latest risk state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Size computes min(balance*fraction, maxNotional)/price floored to the symbol's
// lot step, and rejects orders whose notional falls below the minimum.
func (m *Manager) Size(symbol string, balance, price float64) (Sizing, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Sizing{}, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}

	notional := balance * m.limits.MaxPositionFraction
	if m.limits.MaxOrderNotional > 0 {
		notional = math.Min(notional, m.limits.MaxOrderNotional)
	}
	qty := notional / price
	if lot := m.limits.LotSizes[symbol]; lot > 0 {
		qty = math.Floor(qty/lot+1e-9) * lot
	}

	out := Sizing{Qty: qty, Price: price, Notional: qty * price}
	if qty <= 0 || out.Notional < m.limits.MinOrderNotional {
		return out, fmt.Errorf("%w: %s notional %.2f < %.2f", ErrBelowMinNotional, symbol, out.Notional, m.limits.MinOrderNotional)
	}
	return out, nil
}

func utcDay(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

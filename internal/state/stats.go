package state

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats are the cumulative bot statistics persisted between runs.
type Stats struct {
	TradesExecuted int       `json:"trades_executed"`
	WinningTrades  int       `json:"winning_trades"`
	LosingTrades   int       `json:"losing_trades"`
	TotalPnL       float64   `json:"total_pnl"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	LastUpdate     time.Time `json:"last_update"`
	CurrentBalance float64   `json:"current_balance"`
}

// WinRate returns the share of closed trades that were profitable, in percent.
func (s Stats) WinRate() float64 {
	closed := s.WinningTrades + s.LosingTrades
	if closed == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(closed) * 100
}

// Tracker owns the statistics and the loop heartbeat.
type Tracker struct {
	mu    sync.RWMutex
	stats Stats

	heartbeat atomic.Int64 // unix nanos
}

// NewTracker creates a tracker seeded with restored statistics.
func NewTracker(restored Stats) *Tracker {
	return &Tracker{stats: restored}
}

// RecordTrade counts an executed entry order.
func (t *Tracker) RecordTrade(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TradesExecuted++
	t.stats.LastUpdate = now
}

// RecordClose books the realized PnL of a closed position.
func (t *Tracker) RecordClose(pnl float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pnl > 0 {
		t.stats.WinningTrades++
	} else {
		t.stats.LosingTrades++
	}
	t.stats.TotalPnL += pnl
	t.stats.LastUpdate = now
}

// SetBalance records the latest quote balance and the worst drawdown seen.
func (t *Tracker) SetBalance(balance, maxDrawdown float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CurrentBalance = balance
	if maxDrawdown > t.stats.MaxDrawdown {
		t.stats.MaxDrawdown = maxDrawdown
	}
	t.stats.LastUpdate = now
}

// Snapshot returns a copy of the statistics.
func (t *Tracker) Snapshot() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stats
}

// Beat refreshes the heartbeat.
func (t *Tracker) Beat(now time.Time) {
	t.heartbeat.Store(now.UnixNano())
}

// LastHeartbeat returns the last heartbeat, zero before the first beat.
func (t *Tracker) LastHeartbeat() time.Time {
	n := t.heartbeat.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

package state

import (
	"sort"
	"sync"
	"time"

	"trend-core/pkg/exchanges/common"
)

// Position is a trade opened by the bot and tracked until closed.
type Position struct {
	Symbol        string      `json:"symbol"`
	OrderID       string      `json:"order_id"`
	Side          common.Side `json:"side"`
	EntryPrice    float64     `json:"entry_price"`
	Size          float64     `json:"size"`
	StopLoss      float64     `json:"stop_loss"`
	TakeProfit    float64     `json:"take_profit"`
	Confidence    float64     `json:"confidence"`
	Trend         string      `json:"signal_type"`
	EntryTime     time.Time   `json:"entry_time"`
	MarkPrice     float64     `json:"mark_price,omitempty"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
}

// Book keeps the open positions keyed by order id. Readers get copies.
type Book struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// NewBook creates an empty position book.
func NewBook() *Book {
	return &Book{positions: make(map[string]Position)}
}

// Add records a new position.
func (b *Book) Add(p Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[p.OrderID] = p
}

// Remove deletes a position and returns it.
func (b *Book) Remove(orderID string) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[orderID]
	if ok {
		delete(b.positions, orderID)
	}
	return p, ok
}

// HasSymbol reports whether any position is open for symbol.
func (b *Book) HasSymbol(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.positions {
		if p.Symbol == symbol {
			return true
		}
	}
	return false
}

// Mark updates the mark price and unrealized PnL of a position.
func (b *Book) Mark(orderID string, price, unrealized float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.positions[orderID]; ok {
		p.MarkPrice = price
		p.UnrealizedPnL = unrealized
		b.positions[orderID] = p
	}
}

// Positions returns a snapshot ordered by entry time.
func (b *Book) Positions() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

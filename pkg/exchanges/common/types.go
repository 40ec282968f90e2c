package common

import (
	"strings"
	"time"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseSide accepts buy/sell in any case, plus the long/short position labels.
func ParseSide(v string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy", "long":
		return SideBuy, true
	case "sell", "short":
		return SideSell, true
	}
	return "", false
}

// OrderType denotes the order types the bot submits.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// OrderRequest captures an order intent to be sent to an exchange.
type OrderRequest struct {
	Symbol     string // canonical BASE/QUOTE
	Side       Side
	Type       OrderType
	Qty        float64
	Price      float64 // required for LIMIT
	StopLoss   float64 // optional, tracked locally
	TakeProfit float64 // optional, tracked locally
	ClientID   string  // optional client order id
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID string
	Status          OrderStatus
	ClientID        string
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Ticker is a top-of-book snapshot.
type Ticker struct {
	Bid    float64
	Ask    float64
	Last   float64
	Volume float64
}

// Position is an open margin position as reported by the venue.
type Position struct {
	Symbol        string
	Side          Side
	Size          float64
	EntryPrice    float64
	UnrealizedPnL float64
}

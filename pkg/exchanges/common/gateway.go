package common

import "context"

// Gateway abstracts a trading venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
}

// MarketData is the read side of a venue used by the control loop.
type MarketData interface {
	OHLC(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	Ticker(ctx context.Context, symbol string) (Ticker, error)
}

// Account is the private read side of a venue.
type Account interface {
	Balance(ctx context.Context) (map[string]float64, error)
	OpenPositions(ctx context.Context) ([]Position, error)
}

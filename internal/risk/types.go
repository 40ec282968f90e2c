package risk

import "time"

// Limits defines the risk budget of the bot.
type Limits struct {
	MaxPositionFraction float64            `json:"max_position_fraction"` // share of quote balance per order
	MaxOrderNotional    float64            `json:"max_order_notional"`
	MinOrderNotional    float64            `json:"min_order_notional"`
	MaxDrawdown         float64            `json:"max_drawdown"`   // fraction of initial balance
	MaxDailyLoss        float64            `json:"max_daily_loss"` // fraction of the day's starting balance
	LotSizes            map[string]float64 `json:"lot_sizes"`      // symbol -> volume step
}

// DefaultLimits returns the stock risk budget.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionFraction: 0.02,
		MaxOrderNotional:    10000,
		MinOrderNotional:    10,
		MaxDrawdown:         0.10,
		MaxDailyLoss:        0.03,
	}
}

// State is the balance-derived risk picture, recomputed on every update.
type State struct {
	InitialBalance  float64   `json:"initial_balance"`
	CurrentBalance  float64   `json:"current_balance"`
	CurrentDrawdown float64   `json:"current_drawdown"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	DayStartBalance float64   `json:"day_start_balance"`
	DailyPnL        float64   `json:"daily_pnl"` // fraction of DayStartBalance
	Day             time.Time `json:"day"`
}

// BreachKind names the limit that tripped.
type BreachKind string

const (
	BreachNone        BreachKind = ""
	BreachMaxDrawdown BreachKind = "max_drawdown"
	BreachDailyLoss   BreachKind = "daily_loss"
)

// Breach is the outcome of a limit check.
type Breach struct {
	Kind   BreachKind
	Reason string
}

// Tripped reports whether a limit was exceeded.
func (b Breach) Tripped() bool {
	return b.Kind != BreachNone
}

// Sizing is an approved order size.
type Sizing struct {
	Qty      float64
	Price    float64
	Notional float64
}

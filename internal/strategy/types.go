package strategy

import "time"

// Direction is the action a signal asks for.
type Direction int

const (
	Hold Direction = iota
	Buy
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Trend classifies the regime a signal was raised in.
type Trend int

const (
	TrendNone Trend = iota
	Bull
	Bear
)

func (t Trend) String() string {
	switch t {
	case Bull:
		return "bull"
	case Bear:
		return "bear"
	default:
		return "none"
	}
}

// Signal is a trade decision for the latest bar of a symbol.
type Signal struct {
	Symbol     string
	Direction  Direction
	Price      float64
	Time       time.Time
	StopLoss   float64
	TakeProfit float64
	Confidence float64
	Trend      Trend
}

// AlertType names a stochastic RSI event.
type AlertType string

const (
	AlertCrossUpMid     AlertType = "crossup_mid"
	AlertCrossDownMid   AlertType = "crossdown_mid"
	AlertCrossUpOS      AlertType = "crossup_os"
	AlertCrossDownOB    AlertType = "crossdown_ob"
	AlertBelowUpperBand AlertType = "below_upper_band"
	AlertAboveLowerBand AlertType = "above_lower_band"
)

// Alert is informational and never drives orders.
type Alert struct {
	Symbol string
	Type   AlertType
	Price  float64
	Time   time.Time
	K      float64
	D      float64
}

// Counters are the run-length counters of consecutive bullish/bearish bars.
// At most one of them is non-zero.
type Counters struct {
	Buy  int `json:"count_buy"`
	Sell int `json:"count_sell"`
}

// Summary is a read-only view of the latest bar of a symbol.
type Summary struct {
	Symbol          string    `json:"symbol"`
	Time            time.Time `json:"time"`
	Price           float64   `json:"price"`
	FastEMA         float64   `json:"ema_fast"`
	SlowEMA         float64   `json:"ema_slow"`
	ConsolidatedEMA float64   `json:"ema_consolidated"`
	RSI             float64   `json:"rsi"`
	K               float64   `json:"stoch_rsi_k"`
	D               float64   `json:"stoch_rsi_d"`
	Trend           string    `json:"trend"`
	Momentum        string    `json:"momentum"`
	Counters        Counters  `json:"counters"`
	SignalReady     bool      `json:"signal_ready"`
	Bars            int       `json:"bars"`
}

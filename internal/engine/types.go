package engine

import (
	"time"

	"trend-core/pkg/exchanges/common"
)

// Lifecycle is the controller state machine:
// Idle -> Running -> (EmergencyStop | Stopped) -> Terminated.
type Lifecycle int32

const (
	Idle Lifecycle = iota
	Running
	EmergencyStop
	Stopped
	Terminated
)

// Lifecycles lists every state, in order.
var Lifecycles = []Lifecycle{Idle, Running, EmergencyStop, Stopped, Terminated}

func (l Lifecycle) String() string {
	switch l {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case EmergencyStop:
		return "emergency_stop"
	case Stopped:
		return "stopped"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Config holds the controller settings.
type Config struct {
	Symbols     []string
	Timeframe   string
	CandleLimit int
	Quote       string // currency the balance and risk are measured in

	LoopInterval time.Duration
	ErrorPause   time.Duration

	OrderType            common.OrderType
	OnePositionPerSymbol bool
	TakerFee             float64
	MakerFee             float64

	StatsPath         string
	StatsSaveInterval time.Duration

	DeadMansSwitch  bool
	DeadMansTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.CandleLimit <= 0 {
		c.CandleLimit = 200
	}
	if c.LoopInterval <= 0 {
		c.LoopInterval = time.Minute
	}
	if c.ErrorPause <= 0 {
		c.ErrorPause = 5 * time.Second
	}
	if c.OrderType == "" {
		c.OrderType = common.OrderTypeMarket
	}
	if c.StatsSaveInterval <= 0 {
		c.StatsSaveInterval = time.Hour
	}
	if c.DeadMansTimeout <= 0 {
		c.DeadMansTimeout = time.Hour
	}
	if c.Quote == "" {
		c.Quote = "USD"
	}
}

// feeRate is the fee applied to the configured order type.
func (c Config) feeRate() float64 {
	if c.OrderType == common.OrderTypeMarket {
		return c.TakerFee
	}
	return c.MakerFee
}

// Health is the liveness view served by the monitor.
type Health struct {
	Status        string    `json:"status"` // running | unhealthy
	Lifecycle     string    `json:"lifecycle"`
	EmergencyStop bool      `json:"emergency_stop"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Uptime        string    `json:"uptime"`
	Timestamp     time.Time `json:"timestamp"`
}

// StatsView is the performance view served by the monitor.
type StatsView struct {
	TradesExecuted  int     `json:"trades_executed"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	CurrentBalance  float64 `json:"current_balance"`
	InitialBalance  float64 `json:"initial_balance"`
	PnL             float64 `json:"pnl"`
	PnLPercentage   float64 `json:"pnl_percentage"`
	RealizedPnL     float64 `json:"realized_pnl"`
	CurrentDrawdown float64 `json:"current_drawdown"` // percent
	MaxDrawdown     float64 `json:"max_drawdown"`     // percent
	DailyPnL        float64 `json:"daily_pnl"`        // percent
	ActivePositions int     `json:"active_positions"`
}

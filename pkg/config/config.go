package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Timeframes accepted for candle polling.
var Timeframes = []string{"1m", "5m", "15m", "1h", "4h", "1d"}

// Config holds every setting of the bot. Zero values never reach the
// components: Load starts from Default and overlays file and environment.
type Config struct {
	ConfigFile string

	// Kraken
	KrakenAPIKey    string
	KrakenAPISecret string
	KrakenBaseURL   string

	Trading Trading

	// Logging
	LogLevel string
	LogFile  string

	// Monitoring
	MonitorPort      int
	MonitorJWTSecret string

	// Persistence
	DBPath    string
	StatsPath string
}

// Trading is the `trading:` section of config.yaml.
type Trading struct {
	// Strategy
	FastEMAPeriod         int     `yaml:"fast_ema_period"`
	SlowEMAPeriod         int     `yaml:"slow_ema_period"`
	ConsolidatedEMAPeriod int     `yaml:"consolidated_ema_period"`
	StochRSILength        int     `yaml:"stoch_rsi_length"`
	StochLength           int     `yaml:"stoch_length"`
	StochKSmooth          int     `yaml:"stoch_k_smooth"`
	StochDSmooth          int     `yaml:"stoch_d_smooth"`
	UpperBand             float64 `yaml:"upper_band"`
	MiddleBand            float64 `yaml:"middle_band"`
	LowerBand             float64 `yaml:"lower_band"`
	SignalConfidence      float64 `yaml:"signal_confidence"`
	MaxDataPoints         int     `yaml:"max_data_points"`
	RetainCandles         int     `yaml:"retain_candles"`

	// Risk
	MaxPositionSize      float64            `yaml:"max_position_size"` // fraction of balance
	StopLossPercentage   float64            `yaml:"stop_loss_percentage"`
	TakeProfitPercentage float64            `yaml:"take_profit_percentage"`
	MaxDailyLoss         float64            `yaml:"max_daily_loss"`
	MaxDrawdown          float64            `yaml:"max_drawdown"`
	MinOrderSizeUSD      float64            `yaml:"min_order_size_usd"`
	MaxOrderSizeUSD      float64            `yaml:"max_order_size_usd"`
	LotSizes             map[string]float64 `yaml:"lot_sizes"`

	// Market
	Timeframe          string   `yaml:"timeframe"`
	TradingPairs       []string `yaml:"trading_pairs"`
	OrderType          string   `yaml:"order_type"`
	OnePositionPerPair bool     `yaml:"one_position_per_pair"`
	CandleLimit        int      `yaml:"candle_limit"`
	TakerFee           float64  `yaml:"taker_fee"`
	MakerFee           float64  `yaml:"maker_fee"`

	// Loop
	DataUpdateInterval    int  `yaml:"data_update_interval"` // seconds
	SaveStatsInterval     int  `yaml:"save_stats_interval"`  // seconds
	EnableDeadMansSwitch  bool `yaml:"enable_dead_mans_switch"`
	DeadMansSwitchTimeout int  `yaml:"dead_mans_switch_timeout"` // seconds

	// Surfaces
	EnableHealthCheck bool   `yaml:"enable_health_check"`
	HealthCheckPort   int    `yaml:"health_check_port"`
	EnableDatabase    bool   `yaml:"enable_database"`
	DatabasePath      string `yaml:"database_path"`
	LogLevel          string `yaml:"log_level"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		ConfigFile:    "config.yaml",
		KrakenBaseURL: "https://api.kraken.com",
		Trading: Trading{
			FastEMAPeriod:         12,
			SlowEMAPeriod:         25,
			ConsolidatedEMAPeriod: 25,
			StochRSILength:        14,
			StochLength:           14,
			StochKSmooth:          3,
			StochDSmooth:          3,
			UpperBand:             80,
			MiddleBand:            50,
			LowerBand:             20,
			SignalConfidence:      0.9,
			MaxDataPoints:         500,
			RetainCandles:         200,

			MaxPositionSize:      0.02,
			StopLossPercentage:   0.02,
			TakeProfitPercentage: 0.04,
			MaxDailyLoss:         0.03,
			MaxDrawdown:          0.10,
			MinOrderSizeUSD:      10,
			MaxOrderSizeUSD:      10000,

			Timeframe:          "1h",
			TradingPairs:       []string{"BTC/USD", "ETH/USD"},
			OrderType:          "market",
			OnePositionPerPair: true,
			CandleLimit:        200,
			TakerFee:           0.0026,
			MakerFee:           0.0016,

			DataUpdateInterval:    60,
			SaveStatsInterval:     3600,
			EnableDeadMansSwitch:  false,
			DeadMansSwitchTimeout: 3600,

			HealthCheckPort: 8080,
			DatabasePath:    "data/trades.db",
			LogLevel:        "info",
		},
		LogLevel:    "info",
		MonitorPort: 8080,
		DBPath:      "data/trades.db",
		StatsPath:   "data/bot_stats.json",
	}
}

// Load reads .env, then the YAML file at path (CONFIG_FILE when path is
// empty), then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = getEnv("CONFIG_FILE", cfg.ConfigFile)
	}
	cfg.ConfigFile = path

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var doc struct {
		Trading yaml.Node `yaml:"trading"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if doc.Trading.Kind == 0 {
		return nil
	}
	// decode over the defaults so absent keys keep them
	if err := doc.Trading.Decode(&c.Trading); err != nil {
		return fmt.Errorf("parse trading section of %s: %w", path, err)
	}

	c.LogLevel = c.Trading.LogLevel
	c.MonitorPort = c.Trading.HealthCheckPort
	c.DBPath = c.Trading.DatabasePath
	return nil
}

func (c *Config) applyEnv() {
	c.KrakenAPIKey = strings.TrimSpace(os.Getenv("KRAKEN_API_KEY"))
	c.KrakenAPISecret = strings.TrimSpace(os.Getenv("KRAKEN_API_SECRET"))
	c.KrakenBaseURL = getEnv("KRAKEN_BASE_URL", c.KrakenBaseURL)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.MonitorPort = getEnvInt("MONITOR_PORT", c.MonitorPort)
	c.MonitorJWTSecret = getEnv("MONITOR_JWT_SECRET", c.MonitorJWTSecret)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.StatsPath = getEnv("STATS_PATH", c.StatsPath)
}

// Validate rejects settings the bot cannot start with.
func (c *Config) Validate() error {
	if c.KrakenAPIKey == "" || c.KrakenAPISecret == "" {
		return errors.New("kraken API credentials not found: set KRAKEN_API_KEY and KRAKEN_API_SECRET")
	}

	t := c.Trading
	if t.MaxPositionSize <= 0 || t.MaxPositionSize > 1 {
		return fmt.Errorf("max_position_size must be in (0,1], got %v", t.MaxPositionSize)
	}
	if len(t.TradingPairs) == 0 {
		return errors.New("no trading pairs configured")
	}
	quote := ""
	for _, p := range t.TradingPairs {
		_, q, ok := strings.Cut(p, "/")
		if !ok || q == "" {
			return fmt.Errorf("trading pair %q must look like BASE/QUOTE", p)
		}
		if quote != "" && q != quote {
			return fmt.Errorf("trading pairs must share one quote currency, got %s and %s", quote, q)
		}
		quote = q
	}
	if !validTimeframe(t.Timeframe) {
		return fmt.Errorf("invalid timeframe %q, allowed: %s", t.Timeframe, strings.Join(Timeframes, ", "))
	}
	if t.FastEMAPeriod >= t.SlowEMAPeriod {
		return fmt.Errorf("fast_ema_period (%d) must be below slow_ema_period (%d)", t.FastEMAPeriod, t.SlowEMAPeriod)
	}
	for name, v := range map[string]int{
		"fast_ema_period":         t.FastEMAPeriod,
		"consolidated_ema_period": t.ConsolidatedEMAPeriod,
		"stoch_rsi_length":        t.StochRSILength,
		"stoch_length":            t.StochLength,
		"stoch_k_smooth":          t.StochKSmooth,
		"stoch_d_smooth":          t.StochDSmooth,
		"candle_limit":            t.CandleLimit,
		"data_update_interval":    t.DataUpdateInterval,
		"save_stats_interval":     t.SaveStatsInterval,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	for name, v := range map[string]float64{
		"stop_loss_percentage":   t.StopLossPercentage,
		"take_profit_percentage": t.TakeProfitPercentage,
		"max_daily_loss":         t.MaxDailyLoss,
		"max_drawdown":           t.MaxDrawdown,
	} {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("%s must be in (0,1), got %v", name, v)
		}
	}
	if t.MinOrderSizeUSD < 0 || t.MaxOrderSizeUSD <= 0 || t.MinOrderSizeUSD > t.MaxOrderSizeUSD {
		return fmt.Errorf("order size bounds invalid: min %v, max %v", t.MinOrderSizeUSD, t.MaxOrderSizeUSD)
	}
	for symbol, step := range t.LotSizes {
		if step <= 0 {
			return fmt.Errorf("lot size of %s must be positive, got %v", symbol, step)
		}
	}
	if t.OrderType != "market" && t.OrderType != "limit" {
		return fmt.Errorf("order_type must be market or limit, got %q", t.OrderType)
	}
	if t.EnableDeadMansSwitch && t.DeadMansSwitchTimeout <= 0 {
		return fmt.Errorf("dead_mans_switch_timeout must be positive when enabled, got %d", t.DeadMansSwitchTimeout)
	}
	if c.MonitorPort <= 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("monitor port out of range: %d", c.MonitorPort)
	}
	return nil
}

// QuoteCurrency is the shared quote asset of the trading pairs.
func (t Trading) QuoteCurrency() string {
	if len(t.TradingPairs) == 0 {
		return ""
	}
	_, q, _ := strings.Cut(t.TradingPairs[0], "/")
	return q
}

// LoopInterval is the period of the control cycle.
func (t Trading) LoopInterval() time.Duration {
	return time.Duration(t.DataUpdateInterval) * time.Second
}

// StatsInterval is the period of the statistics file save.
func (t Trading) StatsInterval() time.Duration {
	return time.Duration(t.SaveStatsInterval) * time.Second
}

// DeadMansTimeout is the heartbeat age that forces an emergency stop.
func (t Trading) DeadMansTimeout() time.Duration {
	return time.Duration(t.DeadMansSwitchTimeout) * time.Second
}

func validTimeframe(tf string) bool {
	for _, v := range Timeframes {
		if v == tf {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

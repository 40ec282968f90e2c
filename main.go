package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trend-core/internal/api"
	"trend-core/internal/engine"
	"trend-core/internal/monitor"
	"trend-core/internal/risk"
	"trend-core/internal/state"
	"trend-core/internal/strategy"
	"trend-core/pkg/config"
	"trend-core/pkg/db"
	"trend-core/pkg/exchanges/common"
	"trend-core/pkg/exchanges/kraken"
	"trend-core/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $CONFIG_FILE or config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Error("trend-core exited with error", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := cfg.Trading
	zl.Info("starting trend-core",
		zap.String("config", cfg.ConfigFile),
		zap.Strings("pairs", t.TradingPairs),
		zap.String("timeframe", t.Timeframe),
		zap.Duration("loop_interval", t.LoopInterval()),
		zap.Bool("dead_mans_switch", t.EnableDeadMansSwitch))

	metrics := monitor.NewMetrics()

	client, err := kraken.New(kraken.Config{
		APIKey:    cfg.KrakenAPIKey,
		APISecret: cfg.KrakenAPISecret,
		BaseURL:   cfg.KrakenBaseURL,
	}, kraken.WithLogger(zl), kraken.WithObserver(metrics))
	if err != nil {
		return fmt.Errorf("kraken client: %w", err)
	}

	strat, err := strategy.NewEngine(strategy.Params{
		FastEMA:         t.FastEMAPeriod,
		SlowEMA:         t.SlowEMAPeriod,
		ConsolidatedEMA: t.ConsolidatedEMAPeriod,
		RSILength:       t.StochRSILength,
		StochLength:     t.StochLength,
		KSmooth:         t.StochKSmooth,
		DSmooth:         t.StochDSmooth,
		UpperBand:       t.UpperBand,
		MiddleBand:      t.MiddleBand,
		LowerBand:       t.LowerBand,
		StopLossPct:     t.StopLossPercentage,
		TakeProfitPct:   t.TakeProfitPercentage,
		Confidence:      t.SignalConfidence,
		MaxDataPoints:   t.MaxDataPoints,
		RetainCandles:   t.RetainCandles,
	}, zl)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	riskMgr := risk.NewManager(risk.Limits{
		MaxPositionFraction: t.MaxPositionSize,
		MaxOrderNotional:    t.MaxOrderSizeUSD,
		MinOrderNotional:    t.MinOrderSizeUSD,
		MaxDrawdown:         t.MaxDrawdown,
		MaxDailyLoss:        t.MaxDailyLoss,
		LotSizes:            t.LotSizes,
	})

	restored, err := state.LoadStats(cfg.StatsPath)
	if err != nil {
		zl.Warn("statistics file unreadable, starting fresh", zap.String("path", cfg.StatsPath), zap.Error(err))
		restored = state.Stats{}
	}

	var (
		journal engine.Journal
		trades  api.TradeSource
	)
	if t.EnableDatabase {
		database, err := db.Open(ctx, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open trade journal: %w", err)
		}
		defer database.Close()
		journal = database.Journal()
		trades = database.Journal()
		zl.Info("trade journal enabled", zap.String("path", cfg.DBPath))
	}

	alerts := monitor.Fanout{monitor.LogSink{Log: zl.Named("alert")}}

	ctrl, err := engine.New(engine.Config{
		Symbols:              t.TradingPairs,
		Timeframe:            t.Timeframe,
		CandleLimit:          t.CandleLimit,
		Quote:                t.QuoteCurrency(),
		LoopInterval:         t.LoopInterval(),
		OrderType:            common.OrderType(t.OrderType),
		OnePositionPerSymbol: t.OnePositionPerPair,
		TakerFee:             t.TakerFee,
		MakerFee:             t.MakerFee,
		StatsPath:            cfg.StatsPath,
		StatsSaveInterval:    t.StatsInterval(),
		DeadMansSwitch:       t.EnableDeadMansSwitch,
		DeadMansTimeout:      t.DeadMansTimeout(),
	}, engine.Deps{
		Exchange: client,
		Strategy: strat,
		Risk:     riskMgr,
		Book:     state.NewBook(),
		Stats:    state.NewTracker(restored),
		Journal:  journal,
		Metrics:  metrics,
		Alerts:   alerts,
		Log:      zl,
	})
	if err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	serverErr := make(chan error, 1)
	if t.EnableHealthCheck {
		srv := api.NewServer(ctrl, trades, metrics, cfg.MonitorJWTSecret, zl)
		go func() {
			serverErr <- srv.Run(ctx, ":"+strconv.Itoa(cfg.MonitorPort))
		}()
	}

	// signal handler requests a graceful stop; Run returns after shutdown
	go func() {
		<-ctx.Done()
		zl.Info("shutdown signal received")
		ctrl.Stop()
	}()

	runErr := ctrl.Run(ctx)
	stop()

	if t.EnableHealthCheck {
		select {
		case err := <-serverErr:
			if err != nil {
				zl.Warn("monitoring server stopped with error", zap.Error(err))
			}
		case <-time.After(6 * time.Second):
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	zl.Info("trend-core stopped", zap.String("lifecycle", ctrl.Lifecycle().String()))
	return nil
}

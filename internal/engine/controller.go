package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"trend-core/internal/monitor"
	"trend-core/internal/risk"
	"trend-core/internal/state"
	"trend-core/internal/strategy"
)

// Deps are the collaborators of a Controller. Journal, Metrics and Alerts are
// optional.
type Deps struct {
	Exchange Exchange
	Strategy *strategy.Engine
	Risk     *risk.Manager
	Book     *state.Book
	Stats    *state.Tracker
	Journal  Journal
	Metrics  *monitor.Metrics
	Alerts   monitor.AlertSink
	Log      *zap.Logger
	Now      func() time.Time
}

// Controller owns the control loop, the position book and the risk state.
type Controller struct {
	cfg     Config
	ex      Exchange
	strat   *strategy.Engine
	risk    *risk.Manager
	book    *state.Book
	stats   *state.Tracker
	journal Journal
	metrics *monitor.Metrics
	alerts  monitor.AlertSink
	log     *zap.Logger
	now     func() time.Time

	lifecycle atomic.Int32
	balance   atomic.Uint64 // float64 bits of the latest quote balance
	startedAt atomic.Int64

	halt     chan struct{}
	haltOnce sync.Once

	execMu sync.Mutex // execution attempts and position closes
	liqMu  sync.Mutex // liquidation may be raised by the cycle and the watchdog

	lastStatsSave time.Time
}

// New wires a controller. Exchange, Strategy, Risk, Book and Stats are required.
func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.Exchange == nil || deps.Strategy == nil || deps.Risk == nil || deps.Book == nil || deps.Stats == nil {
		return nil, errors.New("engine: exchange, strategy, risk, book and stats are required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("engine: no symbols configured")
	}
	cfg.applyDefaults()

	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	alerts := deps.Alerts
	if alerts == nil {
		alerts = monitor.LogSink{Log: log}
	}

	c := &Controller{
		cfg:     cfg,
		ex:      deps.Exchange,
		strat:   deps.Strategy,
		risk:    deps.Risk,
		book:    deps.Book,
		stats:   deps.Stats,
		journal: deps.Journal,
		metrics: deps.Metrics,
		alerts:  alerts,
		log:     log.Named("engine"),
		now:     now,
		halt:    make(chan struct{}),
	}
	c.setLifecycle(Idle)
	return c, nil
}

// Lifecycle returns the current controller state.
func (c *Controller) Lifecycle() Lifecycle {
	return Lifecycle(c.lifecycle.Load())
}

func (c *Controller) setLifecycle(l Lifecycle) {
	c.lifecycle.Store(int32(l))
	c.publishLifecycle(l)
}

func (c *Controller) transition(from, to Lifecycle) bool {
	if !c.lifecycle.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	c.publishLifecycle(to)
	return true
}

func (c *Controller) publishLifecycle(l Lifecycle) {
	if c.metrics == nil {
		return
	}
	names := make([]string, len(Lifecycles))
	for i, s := range Lifecycles {
		names[i] = s.String()
	}
	c.metrics.SetLifecycle(l.String(), names)
}

func (c *Controller) currentBalance() float64 {
	return math.Float64frombits(c.balance.Load())
}

func (c *Controller) setBalance(v float64) {
	c.balance.Store(math.Float64bits(v))
}

// Run takes the initial balance snapshot and loops control cycles until Stop,
// context cancellation or an emergency stop, then shuts down. A failed balance
// snapshot leaves the controller Idle and is returned.
func (c *Controller) Run(ctx context.Context) error {
	if c.Lifecycle() != Idle {
		return fmt.Errorf("engine: cannot run from state %s", c.Lifecycle())
	}

	bal, err := c.quoteBalance(ctx)
	if err != nil {
		return fmt.Errorf("engine: initial balance: %w", err)
	}
	start := c.now()
	c.setBalance(bal)
	c.risk.Start(bal, start)
	restored := c.stats.Snapshot()
	c.risk.Restore(restored.MaxDrawdown)
	c.stats.SetBalance(bal, restored.MaxDrawdown, start)
	c.stats.Beat(start)
	c.startedAt.Store(start.UnixNano())
	c.lastStatsSave = start

	if !c.transition(Idle, Running) {
		return fmt.Errorf("engine: cannot run from state %s", c.Lifecycle())
	}
	c.log.Info("controller started",
		zap.Strings("symbols", c.cfg.Symbols),
		zap.String("timeframe", c.cfg.Timeframe),
		zap.String("quote", c.cfg.Quote),
		zap.Float64("initial_balance", bal),
		zap.Int("restored_trades", restored.TradesExecuted),
		zap.Bool("dead_mans_switch", c.cfg.DeadMansSwitch))

	var wg sync.WaitGroup
	watchCtx, stopWatch := context.WithCancel(ctx)
	if c.cfg.DeadMansSwitch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.watchdog(watchCtx)
		}()
	}

	c.loop(ctx)

	stopWatch()
	wg.Wait()
	c.shutdown(ctx)
	return nil
}

// Stop asks the loop to finish; it is observed before the next cycle.
func (c *Controller) Stop() {
	if c.transition(Running, Stopped) {
		c.log.Info("stop requested")
	}
	c.haltOnce.Do(func() { close(c.halt) })
}

func (c *Controller) loop(ctx context.Context) {
	for c.Lifecycle() == Running {
		if ctx.Err() != nil {
			c.transition(Running, Stopped)
			return
		}

		started := time.Now()
		err := c.safeCycle(ctx)
		c.metrics.ObserveCycle(time.Since(started))

		wait := c.cfg.LoopInterval
		if err != nil {
			c.log.Error("control cycle failed", zap.Error(err))
			c.metrics.Error("cycle")
			wait = c.cfg.ErrorPause
		}
		if c.Lifecycle() != Running {
			return
		}

		select {
		case <-ctx.Done():
			c.transition(Running, Stopped)
			return
		case <-c.halt:
			return
		case <-time.After(wait):
		}
	}
}

func (c *Controller) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in control cycle: %v", r)
		}
	}()
	return c.cycle(ctx)
}

// cycle runs one pass of the control loop.
func (c *Controller) cycle(ctx context.Context) error {
	if c.checkDeadMan(ctx) {
		return nil
	}
	now := c.now()
	c.stats.Beat(now)
	c.metrics.SetHeartbeat(now)

	c.updateMarketData(ctx)
	c.processSignals(ctx)

	bal, err := c.quoteBalance(ctx)
	if err != nil {
		c.metrics.Error("balance")
		return fmt.Errorf("refresh balance: %w", err)
	}
	c.setBalance(bal)

	if c.checkRisk(ctx, bal) {
		return nil
	}

	c.monitorPositions(ctx)
	c.recordStatistics(ctx)
	return nil
}

func (c *Controller) updateMarketData(ctx context.Context) {
	for _, symbol := range c.cfg.Symbols {
		candles, err := c.ex.OHLC(ctx, symbol, c.cfg.Timeframe, c.cfg.CandleLimit)
		if err != nil {
			c.log.Error("fetch candles failed", zap.String("symbol", symbol), zap.Error(err))
			c.metrics.Error("market_data")
			continue
		}
		if err := c.strat.UpdateMarketData(symbol, candles); err != nil {
			c.log.Warn("strategy update skipped", zap.String("symbol", symbol), zap.Error(err))
			c.metrics.Error("strategy")
		}
	}
}

func (c *Controller) processSignals(ctx context.Context) {
	for _, symbol := range c.cfg.Symbols {
		if sig := c.strat.GenerateSignal(symbol); sig != nil && sig.Direction != strategy.Hold {
			c.metrics.Signal(symbol, sig.Direction.String())
			c.execute(ctx, *sig)
		}

		if alert := c.strat.CheckAlerts(symbol); alert != nil {
			c.metrics.Alert(symbol, string(alert.Type))
			c.log.Info("stochastic rsi alert",
				zap.String("symbol", symbol),
				zap.String("type", string(alert.Type)),
				zap.Float64("price", alert.Price),
				zap.Float64("k", alert.K),
				zap.Float64("d", alert.D))
		}
	}
}

func (c *Controller) quoteBalance(ctx context.Context) (float64, error) {
	balances, err := c.ex.Balance(ctx)
	if err != nil {
		return 0, err
	}
	if c.log.Core().Enabled(zap.DebugLevel) {
		for asset, v := range balances {
			c.log.Debug("balance", zap.String("asset", asset), zap.Float64("amount", v))
		}
	}
	return balances[c.cfg.Quote], nil
}

// checkRisk updates the risk state and reports whether an emergency stop was
// raised.
func (c *Controller) checkRisk(ctx context.Context, balance float64) bool {
	now := c.now()
	breach, st := c.risk.Update(balance, now)
	c.metrics.SetRisk(balance, st.CurrentDrawdown, st.DailyPnL)
	c.stats.SetBalance(balance, st.MaxDrawdown, now)

	if !breach.Tripped() {
		return false
	}
	c.emergency(ctx, string(breach.Kind), breach.Reason)
	return true
}

// checkDeadMan trips the emergency stop when the last heartbeat is older than
// the configured timeout.
func (c *Controller) checkDeadMan(ctx context.Context) bool {
	if !c.cfg.DeadMansSwitch {
		return false
	}
	last := c.stats.LastHeartbeat()
	if last.IsZero() {
		return false
	}
	idle := c.now().Sub(last)
	if idle <= c.cfg.DeadMansTimeout {
		return false
	}
	c.emergency(ctx, "dead_mans_switch", fmt.Sprintf("no heartbeat for %s (timeout %s)", idle.Round(time.Second), c.cfg.DeadMansTimeout))
	return true
}

// watchdog evaluates the dead-man's switch independently of the loop so a
// wedged cycle still trips it.
func (c *Controller) watchdog(ctx context.Context) {
	interval := min(c.cfg.DeadMansTimeout/4, 30*time.Second)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Lifecycle() != Running {
				return
			}
			if c.checkDeadMan(ctx) {
				return
			}
		}
	}
}

// emergency moves Running or Stopped to EmergencyStop and liquidates. Only the
// first caller liquidates.
func (c *Controller) emergency(ctx context.Context, kind, reason string) {
	if !c.transition(Running, EmergencyStop) && !c.transition(Stopped, EmergencyStop) {
		c.log.Warn("emergency stop already handled",
			zap.String("kind", kind),
			zap.String("reason", reason),
			zap.String("lifecycle", c.Lifecycle().String()))
		return
	}
	c.haltOnce.Do(func() { close(c.halt) })

	c.log.Error("emergency stop", zap.String("kind", kind), zap.String("reason", reason))
	c.metrics.Error(kind)
	if err := c.alerts.Send(fmt.Sprintf("EMERGENCY STOP (%s): %s", kind, reason)); err != nil {
		c.log.Warn("alert delivery failed", zap.Error(err))
	}

	liqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	c.liquidate(liqCtx)
}

func (c *Controller) recordStatistics(ctx context.Context) {
	now := c.now()
	s := c.stats.Snapshot()
	st := c.risk.State()
	c.metrics.SetOpenPositions(c.book.Len())

	c.log.Info("statistics",
		zap.Float64("balance", s.CurrentBalance),
		zap.Int("trades", s.TradesExecuted),
		zap.Float64("win_rate", s.WinRate()),
		zap.Float64("drawdown", st.CurrentDrawdown),
		zap.Float64("daily_pnl", st.DailyPnL),
		zap.Int("active_positions", c.book.Len()))
	for _, m := range c.Markets() {
		c.log.Info("market",
			zap.String("symbol", m.Symbol),
			zap.Float64("price", m.Price),
			zap.String("trend", m.Trend),
			zap.String("momentum", m.Momentum),
			zap.Float64("k", m.K),
			zap.Float64("d", m.D),
			zap.Int("count_buy", m.Counters.Buy),
			zap.Int("count_sell", m.Counters.Sell),
			zap.Bool("signal_ready", m.SignalReady))
	}

	if now.Sub(c.lastStatsSave) >= c.cfg.StatsSaveInterval {
		c.saveStats()
		c.lastStatsSave = now
	}

	if c.journal == nil {
		return
	}
	err := c.journal.SaveDailyPerformance(ctx, dailyRow(now, s))
	if err != nil {
		c.log.Warn("save daily performance failed", zap.Error(err))
		c.metrics.Error("journal")
	}
	if m, err := c.journal.PerformanceMetrics(ctx); err == nil {
		c.log.Debug("performance metrics",
			zap.Int("total_trades", m.TotalTrades),
			zap.Float64("win_rate", m.WinRate),
			zap.Float64("profit_factor", m.ProfitFactor))
	}
}

func (c *Controller) saveStats() {
	if c.cfg.StatsPath == "" {
		return
	}
	if err := state.SaveStats(c.cfg.StatsPath, c.stats.Snapshot()); err != nil {
		c.log.Error("save stats failed", zap.String("path", c.cfg.StatsPath), zap.Error(err))
		return
	}
	c.log.Debug("stats saved", zap.String("path", c.cfg.StatsPath))
}

// shutdown liquidates what an emergency stop left open, logs the final
// statistics and persists them.
func (c *Controller) shutdown(ctx context.Context) {
	// cancellation of ctx is what stopped us; closing orders still need a live context
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if c.Lifecycle() == EmergencyStop && c.book.Len() > 0 {
		c.log.Warn("positions remain after emergency stop", zap.Int("positions", c.book.Len()))
		c.liquidate(closeCtx)
	}

	s := c.stats.Snapshot()
	st := c.risk.State()
	totalReturn := 0.0
	if st.InitialBalance > 0 {
		totalReturn = (st.CurrentBalance - st.InitialBalance) / st.InitialBalance * 100
	}
	c.log.Info("final statistics",
		zap.Duration("runtime", c.now().Sub(time.Unix(0, c.startedAt.Load()))),
		zap.Float64("initial_balance", st.InitialBalance),
		zap.Float64("final_balance", st.CurrentBalance),
		zap.Float64("total_return_pct", totalReturn),
		zap.Int("trades", s.TradesExecuted),
		zap.Int("winning_trades", s.WinningTrades),
		zap.Int("losing_trades", s.LosingTrades),
		zap.Float64("max_drawdown", s.MaxDrawdown))

	c.saveStats()
	c.setLifecycle(Terminated)
	c.log.Info("controller terminated")
}

// Health reports liveness for the monitor.
func (c *Controller) Health() Health {
	now := c.now()
	l := c.Lifecycle()
	last := c.stats.LastHeartbeat()

	status := "unhealthy"
	if l == Running && (!c.cfg.DeadMansSwitch || now.Sub(last) <= c.cfg.DeadMansTimeout) {
		status = "running"
	}
	uptime := time.Duration(0)
	if started := c.startedAt.Load(); started != 0 {
		uptime = now.Sub(time.Unix(0, started))
	}
	return Health{
		Status:        status,
		Lifecycle:     l.String(),
		EmergencyStop: l == EmergencyStop,
		LastHeartbeat: last,
		Uptime:        uptime.Round(time.Second).String(),
		Timestamp:     now,
	}
}

// Stats reports trading performance for the monitor.
func (c *Controller) Stats() StatsView {
	s := c.stats.Snapshot()
	st := c.risk.State()
	v := StatsView{
		TradesExecuted:  s.TradesExecuted,
		WinningTrades:   s.WinningTrades,
		LosingTrades:    s.LosingTrades,
		WinRate:         s.WinRate(),
		CurrentBalance:  c.currentBalance(),
		InitialBalance:  st.InitialBalance,
		RealizedPnL:     s.TotalPnL,
		CurrentDrawdown: st.CurrentDrawdown * 100,
		MaxDrawdown:     math.Max(st.MaxDrawdown, s.MaxDrawdown) * 100,
		DailyPnL:        st.DailyPnL * 100,
		ActivePositions: c.book.Len(),
	}
	v.PnL = v.CurrentBalance - v.InitialBalance
	if v.InitialBalance > 0 {
		v.PnLPercentage = v.PnL / v.InitialBalance * 100
	}
	return v
}

// Positions returns a copy of the tracked positions.
func (c *Controller) Positions() []state.Position {
	return c.book.Positions()
}

// Markets returns the latest strategy summary of every symbol with data.
func (c *Controller) Markets() []strategy.Summary {
	symbols := c.strat.Symbols()
	out := make([]strategy.Summary, 0, len(symbols))
	for _, symbol := range symbols {
		if s, ok := c.strat.Summary(symbol); ok {
			out = append(out, s)
		}
	}
	return out
}

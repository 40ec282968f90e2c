package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"trend-core/internal/indicators"
	"trend-core/pkg/exchanges/common"
)

var (
	ErrEmptyBatch     = errors.New("strategy: empty candle batch")
	ErrUnorderedBatch = errors.New("strategy: candle times not strictly increasing")
	ErrInvalidCandle  = errors.New("strategy: invalid candle values")
)

// bar is one candle with its derived indicator and counter state.
type bar struct {
	candle common.Candle

	fast, slow, consolidated float64
	rsi, k, d                float64

	buy, sell  bool
	counters   Counters
	buySignal  bool
	sellSignal bool
}

func (b bar) bull() bool { return b.counters.Buy > 1 }
func (b bar) bear() bool { return b.counters.Sell > 1 }

type symbolState struct {
	bars     []bar
	counters Counters // counters of the last bar; seed when no stored bar precedes an update
}

// Engine owns the per-symbol candle windows and counter state machines.
type Engine struct {
	mu      sync.RWMutex
	params  Params
	symbols map[string]*symbolState
	log     *zap.Logger
}

// NewEngine validates params and builds an engine.
func NewEngine(params Params, log *zap.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		params:  params,
		symbols: make(map[string]*symbolState),
		log:     log.Named("strategy"),
	}, nil
}

// UpdateMarketData merges a candle batch into the symbol window, recomputes the
// indicators and advances the counter state machine. An invalid batch leaves
// the symbol untouched.
func (e *Engine) UpdateMarketData(symbol string, candles []common.Candle) error {
	if err := validateBatch(candles); err != nil {
		return fmt.Errorf("%s: %w", symbol, err)
	}
	if len(candles) > e.params.MaxDataPoints {
		candles = candles[len(candles)-e.params.MaxDataPoints:]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.symbols[symbol]
	if !ok {
		st = &symbolState{}
		e.symbols[symbol] = st
	}

	bars, firstChanged := merge(st.bars, candles)
	if len(bars) > e.params.MaxDataPoints {
		cut := len(bars) - e.params.MaxDataPoints
		bars = bars[cut:]
		firstChanged = max(firstChanged-cut, 0)
	}

	closes := make([]float64, len(bars))
	for i := range bars {
		closes[i] = bars[i].candle.Close
	}
	set := indicators.Compute(closes, e.params.indicators())
	for i := range bars {
		b := &bars[i]
		b.fast, b.slow, b.consolidated = set.FastEMA[i], set.SlowEMA[i], set.ConsolidatedEMA[i]
		b.rsi, b.k, b.d = set.RSI[i], set.K[i], set.D[i]
	}

	seed := st.counters
	if firstChanged > 0 {
		seed = bars[firstChanged-1].counters
	}
	fold(bars, firstChanged, seed)
	folded := len(bars) - firstChanged

	if len(bars) > e.params.RetainCandles {
		bars = bars[len(bars)-e.params.RetainCandles:]
	}
	st.bars = bars
	if len(bars) > 0 {
		st.counters = bars[len(bars)-1].counters
	}

	last := bars[len(bars)-1]
	e.log.Debug("market data updated",
		zap.String("symbol", symbol),
		zap.Int("bars", len(bars)),
		zap.Int("folded", folded),
		zap.Float64("close", last.candle.Close),
		zap.Int("count_buy", last.counters.Buy),
		zap.Int("count_sell", last.counters.Sell))
	return nil
}

// merge overlays batch onto the stored window by candle time. It returns the new
// window and the index of the first bar that is new or whose candle changed.
func merge(old []bar, batch []common.Candle) ([]bar, int) {
	start, end := batch[0].Time, batch[len(batch)-1].Time

	out := make([]bar, 0, len(old)+len(batch))
	byTime := make(map[int64]bar, len(old))
	for _, b := range old {
		if b.candle.Time.Before(start) {
			out = append(out, b)
		}
		byTime[b.candle.Time.UnixNano()] = b
	}

	firstChanged := -1
	for _, c := range batch {
		prev, ok := byTime[c.Time.UnixNano()]
		if ok && sameCandle(prev.candle, c) {
			out = append(out, prev)
			continue
		}
		if firstChanged < 0 {
			firstChanged = len(out)
		}
		out = append(out, bar{candle: c})
	}
	for _, b := range old {
		if b.candle.Time.After(end) {
			out = append(out, b)
		}
	}

	if firstChanged < 0 {
		firstChanged = len(out)
	}
	return out, firstChanged
}

// fold recomputes trend flags, counters and one-shot signals from index from
// onwards, starting with seed as the counters of bar from-1. Bars before from
// keep their stored state.
func fold(bars []bar, from int, seed Counters) {
	c := seed
	for i := from; i < len(bars); i++ {
		b := &bars[i]
		b.buy = b.fast > b.slow
		b.sell = b.fast < b.slow

		switch {
		case b.buy:
			c.Buy++
			c.Sell = 0
		case b.sell:
			c.Sell++
			c.Buy = 0
		}
		b.counters = c

		b.buySignal, b.sellSignal = false, false
		if i > 0 {
			prev := bars[i-1]
			b.buySignal = c.Buy > 0 && c.Buy < 2 && c.Sell < 1 && b.buy && !prev.buy
			b.sellSignal = c.Sell > 0 && c.Sell < 2 && c.Buy < 1 && b.sell && !prev.sell
		}
	}
}

func sameCandle(a, b common.Candle) bool {
	return a.Time.Equal(b.Time) && a.Open == b.Open && a.High == b.High &&
		a.Low == b.Low && a.Close == b.Close && a.Volume == b.Volume
}

func validateBatch(candles []common.Candle) error {
	if len(candles) == 0 {
		return ErrEmptyBatch
	}
	for i, c := range candles {
		if i > 0 && !c.Time.After(candles[i-1].Time) {
			return fmt.Errorf("%w at index %d", ErrUnorderedBatch, i)
		}
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return fmt.Errorf("%w at index %d", ErrInvalidCandle, i)
			}
		}
		if c.High < c.Low || math.IsNaN(c.Volume) || c.Volume < 0 {
			return fmt.Errorf("%w at index %d", ErrInvalidCandle, i)
		}
	}
	return nil
}

// GenerateSignal inspects the latest bar. It returns nil (hold) when history is
// missing or short, or when the bar carries no fresh crossover.
func (e *Engine) GenerateSignal(symbol string) *Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, ok := e.symbols[symbol]
	if !ok || len(st.bars) < e.params.MinBars() {
		return nil
	}
	last := st.bars[len(st.bars)-1]
	price := last.candle.Close

	sig := &Signal{
		Symbol:     symbol,
		Price:      price,
		Time:       last.candle.Time,
		Confidence: e.params.Confidence,
	}
	switch {
	case last.buySignal:
		sig.Direction = Buy
		sig.Trend = Bull
		sig.StopLoss = price * (1 - e.params.StopLossPct)
		sig.TakeProfit = price * (1 + e.params.TakeProfitPct)
	case last.sellSignal:
		sig.Direction = Sell
		sig.Trend = Bear
		sig.StopLoss = price * (1 + e.params.StopLossPct)
		sig.TakeProfit = price * (1 - e.params.TakeProfitPct)
	default:
		return nil
	}
	return sig
}

// CheckAlerts reports at most one stochastic RSI event on the latest bar.
func (e *Engine) CheckAlerts(symbol string) *Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, ok := e.symbols[symbol]
	if !ok || len(st.bars) < 2 {
		return nil
	}
	cur, prev := st.bars[len(st.bars)-1], st.bars[len(st.bars)-2]
	if anyNaN(cur.k, cur.d, prev.k, prev.d) {
		return nil
	}

	p := e.params
	k, d := cur.k, cur.d
	crossUp := k > d && prev.k <= prev.d
	crossDown := k < d && prev.k >= prev.d

	var kind AlertType
	switch {
	case crossUp && (k < p.MiddleBand || d < p.MiddleBand):
		kind = AlertCrossUpMid
	case crossDown && (k > p.MiddleBand || d > p.MiddleBand):
		kind = AlertCrossDownMid
	case crossUp && (k < p.LowerBand || d < p.LowerBand):
		kind = AlertCrossUpOS
	case crossDown && (k > p.UpperBand || d > p.UpperBand):
		kind = AlertCrossDownOB
	case prev.k >= p.UpperBand && k < p.UpperBand:
		kind = AlertBelowUpperBand
	case prev.k <= p.LowerBand && k > p.LowerBand:
		kind = AlertAboveLowerBand
	default:
		return nil
	}
	return &Alert{
		Symbol: symbol,
		Type:   kind,
		Price:  cur.candle.Close,
		Time:   cur.candle.Time,
		K:      k,
		D:      d,
	}
}

// Summary describes the latest bar of symbol.
func (e *Engine) Summary(symbol string) (Summary, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st, ok := e.symbols[symbol]
	if !ok || len(st.bars) == 0 {
		return Summary{}, false
	}
	last := st.bars[len(st.bars)-1]

	trend := "neutral"
	switch {
	case last.bull():
		trend = "strong_bullish"
	case last.bear():
		trend = "strong_bearish"
	case last.buy:
		trend = "bullish"
	case last.sell:
		trend = "bearish"
	}
	momentum := "neutral"
	switch {
	case last.k > e.params.UpperBand:
		momentum = "overbought"
	case last.k < e.params.LowerBand:
		momentum = "oversold"
	}

	return Summary{
		Symbol:          symbol,
		Time:            last.candle.Time,
		Price:           last.candle.Close,
		FastEMA:         last.fast,
		SlowEMA:         last.slow,
		ConsolidatedEMA: last.consolidated,
		RSI:             last.rsi,
		K:               last.k,
		D:               last.d,
		Trend:           trend,
		Momentum:        momentum,
		Counters:        last.counters,
		SignalReady:     last.buySignal || last.sellSignal,
		Bars:            len(st.bars),
	}, true
}

// Counters returns the carried counter state of symbol.
func (e *Engine) Counters(symbol string) (Counters, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.symbols[symbol]
	if !ok {
		return Counters{}, false
	}
	return st.counters, true
}

// Symbols lists the symbols with state, sorted.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

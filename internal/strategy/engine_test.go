package strategy

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"trend-core/pkg/exchanges/common"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func makeCandles(closes []float64) []common.Candle {
	out := make([]common.Candle, len(closes))
	for i, c := range closes {
		out[i] = common.Candle{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1,
		}
	}
	return out
}

// vShape falls for down bars then rises for up bars.
func vShape(down, up int) []float64 {
	out := make([]float64, 0, down+up)
	p := 100.0
	for i := 0; i < down; i++ {
		out = append(out, p)
		p -= 1
	}
	for i := 0; i < up; i++ {
		out = append(out, p)
		p += 1.5
	}
	return out
}

func randomWalk(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= 1 + (rng.Float64()-0.5)*0.03
		out[i] = p
	}
	return out
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultParams(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func barsOf(e *Engine, symbol string) []bar {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]bar(nil), e.symbols[symbol].bars...)
}

func TestCountersAndSignalsMutuallyExclusive(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		e := newTestEngine(t)
		candles := makeCandles(randomWalk(400, seed))
		// feed in overlapping batches like the control loop does
		for end := 50; end <= len(candles); end += 7 {
			start := max(0, end-200)
			if err := e.UpdateMarketData("BTC/USD", candles[start:end]); err != nil {
				t.Fatalf("UpdateMarketData: %v", err)
			}
			for i, b := range barsOf(e, "BTC/USD") {
				if b.counters.Buy > 0 && b.counters.Sell > 0 {
					t.Fatalf("seed %d bar %d: both counters non-zero %+v", seed, i, b.counters)
				}
				if b.counters.Buy < 0 || b.counters.Sell < 0 {
					t.Fatalf("negative counter %+v", b.counters)
				}
				if b.buySignal && b.sellSignal {
					t.Fatalf("seed %d bar %d: buy and sell signal on the same bar", seed, i)
				}
				if b.buy && b.sell {
					t.Fatalf("buy and sell conditions both true")
				}
			}
		}
	}
}

func TestBuySignalFiresOncePerRun(t *testing.T) {
	e := newTestEngine(t)
	if err := e.UpdateMarketData("BTC/USD", makeCandles(vShape(60, 60))); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	bars := barsOf(e, "BTC/USD")

	fired := 0
	firstBuy := -1
	for i, b := range bars {
		if b.buy && firstBuy < 0 {
			firstBuy = i
		}
		if b.buySignal {
			fired++
			if i != firstBuy {
				t.Fatalf("buy signal at bar %d, first buy bar is %d", i, firstBuy)
			}
		}
	}
	if fired != 1 {
		t.Fatalf("expected exactly one buy signal, got %d", fired)
	}
	last := bars[len(bars)-1]
	if !last.bull() || last.counters.Sell != 0 {
		t.Fatalf("expected confirmed bull trend at the end, counters %+v", last.counters)
	}
}

func TestGenerateSignalOnCrossoverBar(t *testing.T) {
	closes := vShape(60, 60)
	probe := newTestEngine(t)
	if err := probe.UpdateMarketData("BTC/USD", makeCandles(closes)); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	idx := -1
	for i, b := range barsOf(probe, "BTC/USD") {
		if b.buySignal {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("no buy signal in probe series")
	}

	e := newTestEngine(t)
	if err := e.UpdateMarketData("BTC/USD", makeCandles(closes[:idx+1])); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	sig := e.GenerateSignal("BTC/USD")
	if sig == nil {
		t.Fatalf("expected buy signal on crossover bar")
	}
	price := closes[idx]
	p := DefaultParams()
	if sig.Direction != Buy || sig.Trend != Bull || sig.Price != price {
		t.Fatalf("unexpected signal %+v", sig)
	}
	if math.Abs(sig.StopLoss-price*(1-p.StopLossPct)) > 1e-9 || math.Abs(sig.TakeProfit-price*(1+p.TakeProfitPct)) > 1e-9 {
		t.Fatalf("stop-loss/take-profit mismatch: %+v", sig)
	}
	if sig.Confidence != 0.9 {
		t.Fatalf("confidence=%v", sig.Confidence)
	}

	// one more rising bar: the run is confirmed and no new signal fires
	if err := e.UpdateMarketData("BTC/USD", makeCandles(closes[:idx+2])); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	if sig := e.GenerateSignal("BTC/USD"); sig != nil {
		t.Fatalf("signal repeated on second bar of run: %+v", sig)
	}
}

func TestSellSignalMirrorsLevels(t *testing.T) {
	// rise then fall produces a sell crossover
	closes := make([]float64, 0, 120)
	p := 50.0
	for i := 0; i < 60; i++ {
		closes = append(closes, p)
		p += 1
	}
	for i := 0; i < 60; i++ {
		closes = append(closes, p)
		p -= 1.5
	}
	probe := newTestEngine(t)
	if err := probe.UpdateMarketData("ETH/USD", makeCandles(closes)); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	idx := -1
	for i, b := range barsOf(probe, "ETH/USD") {
		if b.sellSignal && i > 1 {
			idx = i
		}
	}
	if idx < 0 {
		t.Fatalf("no sell crossover found")
	}

	e := newTestEngine(t)
	if err := e.UpdateMarketData("ETH/USD", makeCandles(closes[:idx+1])); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	sig := e.GenerateSignal("ETH/USD")
	if sig == nil || sig.Direction != Sell || sig.Trend != Bear {
		t.Fatalf("expected sell signal, got %+v", sig)
	}
	if sig.StopLoss <= sig.Price || sig.TakeProfit >= sig.Price {
		t.Fatalf("sell levels not mirrored: %+v", sig)
	}
}

func TestGenerateSignalNeedsHistory(t *testing.T) {
	e := newTestEngine(t)
	if sig := e.GenerateSignal("BTC/USD"); sig != nil {
		t.Fatalf("signal for unknown symbol")
	}
	// a crossover inside a short window is still a hold
	if err := e.UpdateMarketData("BTC/USD", makeCandles(vShape(5, 5))); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	if sig := e.GenerateSignal("BTC/USD"); sig != nil {
		t.Fatalf("signal with %d bars of history", 10)
	}
}

func TestIncrementalUpdatesMatchSinglePass(t *testing.T) {
	closes := randomWalk(180, 11)
	candles := makeCandles(closes)

	whole := newTestEngine(t)
	if err := whole.UpdateMarketData("BTC/USD", candles); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}

	inc := newTestEngine(t)
	for end := 30; end <= len(candles); end++ {
		batch := append([]common.Candle(nil), candles[:end]...)
		// the newest bar is first seen while still forming
		forming := batch[len(batch)-1]
		forming.Close *= 0.995
		forming.Low = math.Min(forming.Low, forming.Close)
		batch[len(batch)-1] = forming
		if err := inc.UpdateMarketData("BTC/USD", batch); err != nil {
			t.Fatalf("UpdateMarketData: %v", err)
		}
		if err := inc.UpdateMarketData("BTC/USD", candles[:end]); err != nil {
			t.Fatalf("UpdateMarketData: %v", err)
		}
	}

	want, _ := whole.Counters("BTC/USD")
	got, _ := inc.Counters("BTC/USD")
	if got != want {
		t.Fatalf("incremental counters %+v, single pass %+v", got, want)
	}
	wb, ib := barsOf(whole, "BTC/USD"), barsOf(inc, "BTC/USD")
	if len(wb) != len(ib) {
		t.Fatalf("window length %d vs %d", len(ib), len(wb))
	}
	for i := range wb {
		if wb[i].counters != ib[i].counters || wb[i].buySignal != ib[i].buySignal || wb[i].sellSignal != ib[i].sellSignal {
			t.Fatalf("bar %d differs: incremental %+v single %+v", i, ib[i].counters, wb[i].counters)
		}
	}
}

func TestUpdateRejectsInvalidBatch(t *testing.T) {
	e := newTestEngine(t)
	good := makeCandles(randomWalk(40, 3))
	if err := e.UpdateMarketData("BTC/USD", good); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	before, _ := e.Counters("BTC/USD")

	unordered := append([]common.Candle(nil), good...)
	unordered[5], unordered[6] = unordered[6], unordered[5]
	bad := append([]common.Candle(nil), good...)
	bad[3].Close = math.NaN()

	tests := []struct {
		name  string
		batch []common.Candle
		want  error
	}{
		{name: "empty", batch: nil, want: ErrEmptyBatch},
		{name: "unordered", batch: unordered, want: ErrUnorderedBatch},
		{name: "nan", batch: bad, want: ErrInvalidCandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.UpdateMarketData("BTC/USD", tt.batch)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			after, _ := e.Counters("BTC/USD")
			if after != before || len(barsOf(e, "BTC/USD")) != 40 {
				t.Fatalf("invalid batch mutated state")
			}
		})
	}

	// other symbols are unaffected
	if err := e.UpdateMarketData("ETH/USD", good); err != nil {
		t.Fatalf("UpdateMarketData ETH: %v", err)
	}
}

func TestWindowBounds(t *testing.T) {
	e := newTestEngine(t)
	if err := e.UpdateMarketData("BTC/USD", makeCandles(randomWalk(700, 5))); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	bars := barsOf(e, "BTC/USD")
	if len(bars) != DefaultParams().RetainCandles {
		t.Fatalf("retained %d bars, expected %d", len(bars), DefaultParams().RetainCandles)
	}
	if want := t0.Add(699 * time.Hour); !bars[len(bars)-1].candle.Time.Equal(want) {
		t.Fatalf("newest bar %v, expected %v", bars[len(bars)-1].candle.Time, want)
	}
}

func TestCheckAlertsPriority(t *testing.T) {
	tests := []struct {
		name         string
		prevK, prevD float64
		k, d         float64
		want         AlertType
	}{
		{name: "cross up below middle", prevK: 30, prevD: 35, k: 40, d: 36, want: AlertCrossUpMid},
		{name: "cross down above middle", prevK: 70, prevD: 65, k: 60, d: 64, want: AlertCrossDownMid},
		{name: "oversold cross up also below middle", prevK: 10, prevD: 12, k: 15, d: 13, want: AlertCrossUpMid},
		{name: "k leaves upper band", prevK: 85, prevD: 90, k: 79, d: 88, want: AlertBelowUpperBand},
		{name: "k leaves lower band", prevK: 15, prevD: 10, k: 21, d: 12, want: AlertAboveLowerBand},
		{name: "nothing", prevK: 55, prevD: 50, k: 57, d: 52},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t)
			e.symbols["BTC/USD"] = &symbolState{bars: []bar{
				{candle: common.Candle{Time: t0, Close: 100}, k: tt.prevK, d: tt.prevD},
				{candle: common.Candle{Time: t0.Add(time.Hour), Close: 101}, k: tt.k, d: tt.d},
			}}
			alert := e.CheckAlerts("BTC/USD")
			if tt.want == "" {
				if alert != nil {
					t.Fatalf("unexpected alert %+v", alert)
				}
				return
			}
			if alert == nil || alert.Type != tt.want {
				t.Fatalf("alert=%+v, expected %s", alert, tt.want)
			}
			if alert.Price != 101 || alert.K != tt.k || alert.D != tt.d {
				t.Fatalf("alert fields %+v", alert)
			}
		})
	}
}

func TestCheckAlertsSkipsWarmUp(t *testing.T) {
	e := newTestEngine(t)
	if err := e.UpdateMarketData("BTC/USD", makeCandles(randomWalk(10, 2))); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	if alert := e.CheckAlerts("BTC/USD"); alert != nil {
		t.Fatalf("alert during warm-up: %+v", alert)
	}
}

func TestSummaryTrendLabels(t *testing.T) {
	e := newTestEngine(t)
	if _, ok := e.Summary("BTC/USD"); ok {
		t.Fatalf("summary for unknown symbol")
	}
	if err := e.UpdateMarketData("BTC/USD", makeCandles(vShape(60, 60))); err != nil {
		t.Fatalf("UpdateMarketData: %v", err)
	}
	s, ok := e.Summary("BTC/USD")
	if !ok {
		t.Fatalf("missing summary")
	}
	if s.Trend != "strong_bullish" || s.Counters.Buy < 2 || s.SignalReady {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Bars != 120 || s.Price != 100-60+59*1.5 {
		t.Fatalf("summary bars=%d price=%v", s.Bars, s.Price)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	tests := []func(p *Params){
		func(p *Params) { p.FastEMA = p.SlowEMA },
		func(p *Params) { p.KSmooth = 0 },
		func(p *Params) { p.StopLossPct = 0 },
		func(p *Params) { p.TakeProfitPct = 1.5 },
		func(p *Params) { p.MiddleBand = 90 },
		func(p *Params) { p.RetainCandles = 10 },
	}
	for i, mutate := range tests {
		p := DefaultParams()
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

package risk

import (
	"errors"
	"math"
	"testing"
	"time"

	"trend-core/pkg/exchanges/common"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestDrawdownTripsEmergencyLimit(t *testing.T) {
	m := NewManager(DefaultLimits())
	m.Start(10000, day0)

	breach, st := m.Update(8900, day0.Add(time.Hour))
	if st.CurrentDrawdown != 0.11 {
		t.Fatalf("CurrentDrawdown=%v, expected 0.11", st.CurrentDrawdown)
	}
	if !breach.Tripped() || breach.Kind != BreachMaxDrawdown {
		t.Fatalf("expected max drawdown breach, got %+v", breach)
	}
	if st.MaxDrawdown != 0.11 {
		t.Fatalf("MaxDrawdown=%v, expected 0.11", st.MaxDrawdown)
	}

	// recovery lowers current drawdown but never the recorded maximum
	_, st = m.Update(9950, day0.Add(2*time.Hour))
	if math.Abs(st.CurrentDrawdown-0.005) > 1e-12 || st.MaxDrawdown != 0.11 {
		t.Fatalf("after recovery: %+v", st)
	}
}

func TestDailyLossLimit(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		at      time.Time
		want    BreachKind
	}{
		{name: "within limit", balance: 9750, at: day0.Add(time.Hour)},
		{name: "exceeded", balance: 9650, at: day0.Add(time.Hour), want: BreachDailyLoss},
		// a new UTC day resets the reference balance
		{name: "next day", balance: 9650, at: day0.Add(24 * time.Hour)},
	}

	limits := DefaultLimits()
	limits.MaxDrawdown = 0.5
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(limits)
			m.Start(10000, day0)
			if tt.name == "next day" {
				m.Update(9700, day0.Add(23*time.Hour))
			}
			breach, _ := m.Update(tt.balance, tt.at)
			if breach.Kind != tt.want {
				t.Fatalf("breach=%+v, expected %q", breach, tt.want)
			}
		})
	}
}

func TestUpdateWithoutInitialBalance(t *testing.T) {
	m := NewManager(DefaultLimits())
	m.Start(0, day0)
	breach, st := m.Update(5, day0)
	if breach.Tripped() || st.CurrentDrawdown != 0 {
		t.Fatalf("limits evaluated without an initial balance: %+v %+v", breach, st)
	}
}

func TestSizeRejectsBelowMinNotional(t *testing.T) {
	limits := DefaultLimits()
	limits.LotSizes = map[string]float64{"BTC/USD": 0.001}
	m := NewManager(limits)

	sz, err := m.Size("BTC/USD", 1000, 50000)
	if !errors.Is(err, ErrBelowMinNotional) {
		t.Fatalf("expected ErrBelowMinNotional, got %v (%+v)", err, sz)
	}
	if sz.Qty != 0 {
		t.Fatalf("qty=%v, expected 0 after lot flooring", sz.Qty)
	}

	limits.MinOrderNotional = 25
	limits.LotSizes = nil
	if _, err := NewManager(limits).Size("BTC/USD", 1000, 50000); !errors.Is(err, ErrBelowMinNotional) {
		t.Fatalf("notional 20 < 25 accepted: %v", err)
	}
}

func TestSizeCapsAndFloors(t *testing.T) {
	tests := []struct {
		name      string
		lot       float64
		balance   float64
		price     float64
		wantQty   float64
		wantError error
	}{
		{name: "fraction", balance: 1000, price: 50000, wantQty: 0.0004},
		{name: "notional cap", balance: 1_000_000, price: 100, wantQty: 100},
		{name: "lot floor", lot: 0.01, balance: 100000, price: 3000, wantQty: 0.66},
		{name: "bad price", balance: 1000, price: 0, wantError: ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := DefaultLimits()
			if tt.lot > 0 {
				limits.LotSizes = map[string]float64{"ETH/USD": tt.lot}
			}
			sz, err := NewManager(limits).Size("ETH/USD", tt.balance, tt.price)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Fatalf("expected %v, got %v", tt.wantError, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Size: %v", err)
			}
			if math.Abs(sz.Qty-tt.wantQty) > 1e-9 {
				t.Fatalf("qty=%v, expected %v", sz.Qty, tt.wantQty)
			}
		})
	}
}

func TestCheckExit(t *testing.T) {
	tests := []struct {
		side   common.Side
		sl, tp float64
		price  float64
		want   Exit
	}{
		{common.SideBuy, 98, 104, 97.5, ExitStopLoss},
		{common.SideBuy, 98, 104, 104, ExitTakeProfit},
		{common.SideBuy, 98, 104, 100, ExitNone},
		{common.SideSell, 102, 96, 102.5, ExitStopLoss},
		{common.SideSell, 102, 96, 95, ExitTakeProfit},
		{common.SideSell, 0, 0, 50, ExitNone},
	}
	for _, tt := range tests {
		if got := CheckExit(tt.side, tt.sl, tt.tp, tt.price); got != tt.want {
			t.Fatalf("CheckExit(%s, %v, %v, %v)=%q, expected %q", tt.side, tt.sl, tt.tp, tt.price, got, tt.want)
		}
	}
	if PnL(common.SideBuy, 100, 110, 2) != 20 || PnL(common.SideSell, 100, 110, 2) != -20 {
		t.Fatalf("PnL sign mismatch")
	}
}

package kraken

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"trend-core/pkg/exchanges/common"
)

func TestOHLCParsesRowsAndLimits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/0/public/OHLC" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if got := r.URL.Query().Get("pair"); got != "XBTUSD" {
			t.Errorf("pair=%s", got)
		}
		if got := r.URL.Query().Get("interval"); got != "60" {
			t.Errorf("interval=%s", got)
		}
		io.WriteString(w, `{"error":[],"result":{
			"XXBTZUSD":[
				[1700000000,"100.0","110.0","95.0","105.0","104.0","12.5",40],
				[1700003600,"105.0","112.0","101.0","111.0","108.0","8.0",22],
				[1700007200,"bad","112.0","101.0","111.0","108.0","8.0",22],
				[1700010800,"111.0","115.0","109.0","114.0","113.0","3.0",9]
			],
			"last":1700010800}}`)
	})

	candles, err := c.OHLC(context.Background(), "BTC/USD", "1h", 2)
	if err != nil {
		t.Fatalf("OHLC: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if !candles[0].Time.Equal(time.Unix(1700003600, 0)) || !candles[1].Time.Equal(time.Unix(1700010800, 0)) {
		t.Fatalf("unexpected candle times %v %v", candles[0].Time, candles[1].Time)
	}
	want := common.Candle{Time: time.Unix(1700010800, 0).UTC(), Open: 111, High: 115, Low: 109, Close: 114, Volume: 3}
	if candles[1] != want {
		t.Fatalf("candle=%+v, expected %+v", candles[1], want)
	}
}

func TestOHLCUnknownTimeframe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request for unknown timeframe")
	})
	if _, err := c.OHLC(context.Background(), "BTC/USD", "3h", 10); !errors.Is(err, ErrUnknownTimeframe) {
		t.Fatalf("expected ErrUnknownTimeframe, got %v", err)
	}
}

func TestIntervalTable(t *testing.T) {
	for tf, want := range map[string]int{"1m": 1, "5m": 5, "15m": 15, "1h": 60, "4h": 240, "1d": 1440} {
		got, err := Interval(tf)
		if err != nil || got != want {
			t.Fatalf("Interval(%s)=%d,%v expected %d", tf, got, err, want)
		}
	}
}

func TestTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pair"); got != "XDGUSD" {
			t.Errorf("pair=%s", got)
		}
		io.WriteString(w, `{"error":[],"result":{"XDGUSD":{
			"a":["0.0812","1000","1000.000"],
			"b":["0.0811","500","500.000"],
			"c":["0.0811500","25.0"],
			"v":["1000.0","250000.0"]}}}`)
	})
	tk, err := c.Ticker(context.Background(), "DOGE/USD")
	if err != nil {
		t.Fatalf("Ticker: %v", err)
	}
	if tk.Last != 0.08115 || tk.Ask != 0.0812 || tk.Bid != 0.0811 || tk.Volume != 250000 {
		t.Fatalf("unexpected ticker %+v", tk)
	}
}

func TestOpenPositionsSpotAccountIsEmpty(t *testing.T) {
	for _, msg := range []string{"EGeneral:Internal error", "EAPI:Feature disabled"} {
		t.Run(msg, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"error":["`+msg+`"]}`)
			})
			positions, err := c.OpenPositions(context.Background())
			if err != nil {
				t.Fatalf("OpenPositions: %v", err)
			}
			if positions == nil || len(positions) != 0 {
				t.Fatalf("expected empty slice, got %#v", positions)
			}
		})
	}
}

func TestOpenPositionsParsesMargin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		io.WriteString(w, `{"error":[],"result":{
			"TF5GVO-T7ZZ2-6NBKBI":{"pair":"XXBTZUSD","type":"buy","vol":"0.5","vol_closed":"0.1","cost":"20000","net":"+150.5"},
			"TGUFMY-FLESJ-VYIX3J":{"pair":"ETHUSD","type":"sell","vol":"1","vol_closed":"1","cost":"3000","net":"-2"}}}`)
	})
	positions, err := c.OpenPositions(context.Background())
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	p := positions[0]
	if p.Symbol != "BTC/USD" || p.Side != common.SideBuy || p.EntryPrice != 40000 || p.UnrealizedPnL != 150.5 {
		t.Fatalf("unexpected position %+v", p)
	}
	if p.Size < 0.399999 || p.Size > 0.400001 {
		t.Fatalf("size=%v, expected 0.4", p.Size)
	}
}

func TestSubmitOrderParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		values := verifySignature(t, r)
		want := map[string]string{
			"pair":      "XBTUSD",
			"type":      "sell",
			"ordertype": "market",
			"volume":    "0.0123",
			"cl_ord_id": "abc-123",
		}
		for k, v := range want {
			if got := values.Get(k); got != v {
				t.Errorf("%s=%q, expected %q", k, got, v)
			}
		}
		if values.Has("price") {
			t.Errorf("market order carried a price")
		}
		io.WriteString(w, `{"error":[],"result":{"descr":{"order":"sell 0.0123 XBTUSD @ market"},"txid":["OUF4EM-FRGI2-MQMWZD"]}}`)
	})

	res, err := c.SubmitOrder(context.Background(), common.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     common.SideSell,
		Qty:      0.0123,
		ClientID: "abc-123",
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if res.ExchangeOrderID != "OUF4EM-FRGI2-MQMWZD" || res.ClientID != "abc-123" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitOrderRejectsBadInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("invalid order reached the venue")
	})
	cases := []common.OrderRequest{
		{Symbol: "BTCUSD", Side: common.SideBuy, Qty: 1},
		{Symbol: "BTC/USD", Side: common.SideBuy, Qty: 0},
		{Symbol: "BTC/USD", Side: "hold", Qty: 1},
		{Symbol: "BTC/USD", Side: common.SideBuy, Qty: 1, Type: common.OrderTypeLimit},
	}
	for _, req := range cases {
		if _, err := c.SubmitOrder(context.Background(), req); err == nil {
			t.Fatalf("expected error for %+v", req)
		}
	}
}

func TestCancelOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		values := verifySignature(t, r)
		if values.Get("txid") != "OUF4EM-FRGI2-MQMWZD" {
			t.Errorf("txid=%q", values.Get("txid"))
		}
		io.WriteString(w, `{"error":[],"result":{"count":1}}`)
	})
	if err := c.CancelOrder(context.Background(), "OUF4EM-FRGI2-MQMWZD"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
}

func TestBalanceTranslatesAssetKeys(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":[],"result":{"XXBT":"0.25","ZUSD":"1500.10","XXDG":"1000","USDT":"5","XETH":"0.0000000000","XBT.F":"0.1"}}`)
	})
	bal, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	want := map[string]float64{"BTC": 0.25, "USD": 1500.10, "DOGE": 1000, "USDT": 5, "BTC.F": 0.1}
	if len(bal) != len(want) {
		t.Fatalf("balance=%v, expected %v", bal, want)
	}
	for k, v := range want {
		if bal[k] != v {
			t.Fatalf("%s=%v, expected %v", k, bal[k], v)
		}
	}
}

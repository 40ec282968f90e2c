package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"trend-core/pkg/exchanges/common"
)

// intervals maps timeframe labels to Kraken OHLC interval minutes.
var intervals = map[string]int{
	"1m":  1,
	"5m":  5,
	"15m": 15,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
}

// Interval returns the venue interval (minutes) for a timeframe label.
func Interval(timeframe string) (int, error) {
	m, ok := intervals[timeframe]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, timeframe)
	}
	return m, nil
}

// Ticker fetches the top-of-book snapshot for a canonical symbol.
func (c *Client) Ticker(ctx context.Context, symbol string) (common.Ticker, error) {
	pair, err := c.symbols.PairCode(symbol)
	if err != nil {
		return common.Ticker{}, err
	}
	raw, err := c.PublicRequest(ctx, "/0/public/Ticker", url.Values{"pair": {pair}})
	if err != nil {
		return common.Ticker{}, err
	}

	var resp map[string]struct {
		Ask    []string `json:"a"`
		Bid    []string `json:"b"`
		Last   []string `json:"c"`
		Volume []string `json:"v"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return common.Ticker{}, fmt.Errorf("kraken ticker %s: %w", symbol, err)
	}
	// the result is keyed by the venue's own pair name, which may differ from ours
	for _, t := range resp {
		out := common.Ticker{
			Ask:    first(t.Ask),
			Bid:    first(t.Bid),
			Last:   first(t.Last),
			Volume: last(t.Volume),
		}
		if out.Last <= 0 {
			return common.Ticker{}, fmt.Errorf("kraken ticker %s: missing last price", symbol)
		}
		return out, nil
	}
	return common.Ticker{}, fmt.Errorf("kraken ticker %s: empty result", symbol)
}

// OHLC returns at most limit of the most recent candles for symbol, oldest first.
// Rows that are not fully populated are skipped.
func (c *Client) OHLC(ctx context.Context, symbol, timeframe string, limit int) ([]common.Candle, error) {
	interval, err := Interval(timeframe)
	if err != nil {
		return nil, err
	}
	pair, err := c.symbols.PairCode(symbol)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"pair":     {pair},
		"interval": {strconv.Itoa(interval)},
	}
	raw, err := c.PublicRequest(ctx, "/0/public/OHLC", params)
	if err != nil {
		return nil, err
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("kraken ohlc %s: %w", symbol, err)
	}

	var candles []common.Candle
	for key, body := range resp {
		if key == "last" {
			continue
		}
		var rows [][]any
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("kraken ohlc %s: %w", symbol, err)
		}
		skipped := 0
		for _, row := range rows {
			cd, ok := parseOHLCRow(row)
			if !ok {
				skipped++
				continue
			}
			candles = append(candles, cd)
		}
		if skipped > 0 {
			c.log.Warn("skipped malformed ohlc rows", zap.String("symbol", symbol), zap.Int("rows", skipped))
		}
		break
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// parseOHLCRow decodes [time, open, high, low, close, vwap, volume, count].
func parseOHLCRow(row []any) (common.Candle, bool) {
	if len(row) < 7 {
		return common.Candle{}, false
	}
	ts, ok := row[0].(float64)
	if !ok || ts <= 0 {
		return common.Candle{}, false
	}
	var vals [5]float64
	for i, idx := range []int{1, 2, 3, 4, 6} {
		v, ok := number(row[idx])
		if !ok {
			return common.Candle{}, false
		}
		vals[i] = v
	}
	return common.Candle{
		Time:   time.Unix(int64(ts), 0).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, true
}

func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case string:
		p, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		f = p
	case float64:
		f = t
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func first(vs []string) float64 {
	if len(vs) == 0 {
		return 0
	}
	f, _ := strconv.ParseFloat(vs[0], 64)
	return f
}

func last(vs []string) float64 {
	if len(vs) == 0 {
		return 0
	}
	f, _ := strconv.ParseFloat(vs[len(vs)-1], 64)
	return f
}

package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"trend-core/pkg/exchanges/common"
)

var (
	_ common.Gateway    = (*Client)(nil)
	_ common.MarketData = (*Client)(nil)
	_ common.Account    = (*Client)(nil)
)

// Balance returns non-zero account balances keyed by canonical asset (BTC, USD, ...).
func (c *Client) Balance(ctx context.Context) (map[string]float64, error) {
	raw, err := c.PrivateRequest(ctx, "/0/private/Balance", nil)
	if err != nil {
		return nil, err
	}
	var resp map[string]string
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("kraken balance: %w", err)
	}

	out := make(map[string]float64, len(resp))
	for code, amount := range resp {
		v, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			c.log.Warn("unparseable balance", zap.String("asset", code), zap.String("amount", amount))
			continue
		}
		if v == 0 {
			continue
		}
		out[c.symbols.Asset(code)] += v
	}
	return out, nil
}

// SubmitOrder places an order via AddOrder. Stop-loss and take-profit levels are not
// sent; the controller enforces them locally.
func (c *Client) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	pair, err := c.symbols.PairCode(req.Symbol)
	if err != nil {
		return common.OrderResult{}, err
	}
	if req.Qty <= 0 {
		return common.OrderResult{}, fmt.Errorf("kraken: order volume must be positive, got %v", req.Qty)
	}
	if req.Side != common.SideBuy && req.Side != common.SideSell {
		return common.OrderResult{}, fmt.Errorf("kraken: invalid order side %q", req.Side)
	}
	if req.Type == "" {
		req.Type = common.OrderTypeMarket
	}

	params := url.Values{}
	params.Set("pair", pair)
	params.Set("type", string(req.Side))
	params.Set("ordertype", string(req.Type))
	params.Set("volume", formatFloat(req.Qty))
	if req.Type == common.OrderTypeLimit {
		if req.Price <= 0 {
			return common.OrderResult{}, errors.New("kraken: limit order requires price")
		}
		params.Set("price", formatFloat(req.Price))
	}
	if req.ClientID != "" {
		params.Set("cl_ord_id", req.ClientID)
	}

	raw, err := c.PrivateRequest(ctx, "/0/private/AddOrder", params)
	if err != nil {
		return common.OrderResult{}, err
	}
	var resp struct {
		Descr struct {
			Order string `json:"order"`
		} `json:"descr"`
		TxID []string `json:"txid"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return common.OrderResult{}, fmt.Errorf("kraken add order: %w", err)
	}
	if len(resp.TxID) == 0 {
		return common.OrderResult{}, errors.New("kraken add order: no transaction id in response")
	}

	c.log.Info("order placed",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("volume", req.Qty),
		zap.String("txid", resp.TxID[0]),
		zap.String("descr", resp.Descr.Order))
	return common.OrderResult{
		ExchangeOrderID: resp.TxID[0],
		Status:          common.StatusNew,
		ClientID:        req.ClientID,
	}, nil
}

// CancelOrder cancels an open order by transaction id.
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	if exchangeOrderID == "" {
		return errors.New("kraken: order id required")
	}
	raw, err := c.PrivateRequest(ctx, "/0/private/CancelOrder", url.Values{"txid": {exchangeOrderID}})
	if err != nil {
		return err
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("kraken cancel order: %w", err)
	}
	if resp.Count == 0 {
		return fmt.Errorf("kraken cancel order %s: nothing cancelled", exchangeOrderID)
	}
	return nil
}

// OpenPositions lists open margin positions. Spot-only accounts report an error for
// this endpoint; that case yields an empty list.
func (c *Client) OpenPositions(ctx context.Context) ([]common.Position, error) {
	raw, err := c.PrivateRequest(ctx, "/0/private/OpenPositions", url.Values{"docalcs": {"true"}})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Contains(msgInternalError) || apiErr.Contains(msgFeatureDisabled)) {
			c.log.Debug("open positions unavailable for spot account", zap.Strings("errors", apiErr.Messages))
			return []common.Position{}, nil
		}
		return nil, err
	}

	var resp map[string]struct {
		Pair      string `json:"pair"`
		Type      string `json:"type"`
		Vol       string `json:"vol"`
		VolClosed string `json:"vol_closed"`
		Cost      string `json:"cost"`
		Net       string `json:"net"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("kraken open positions: %w", err)
	}

	ids := make([]string, 0, len(resp))
	for id := range resp {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]common.Position, 0, len(resp))
	for _, id := range ids {
		p := resp[id]
		symbol, err := c.symbols.Pair(p.Pair)
		if err != nil {
			c.log.Warn("skipping position with unknown pair", zap.String("txid", id), zap.String("pair", p.Pair))
			continue
		}
		side, ok := common.ParseSide(p.Type)
		if !ok {
			continue
		}
		vol := parseFloat(p.Vol) - parseFloat(p.VolClosed)
		if vol <= 0 {
			continue
		}
		entry := 0.0
		if v := parseFloat(p.Vol); v > 0 {
			entry = parseFloat(p.Cost) / v
		}
		out = append(out, common.Position{
			Symbol:        symbol,
			Side:          side,
			Size:          vol,
			EntryPrice:    entry,
			UnrealizedPnL: parseFloat(strings.TrimPrefix(p.Net, "+")),
		})
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

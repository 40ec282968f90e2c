package risk

import "trend-core/pkg/exchanges/common"

// Exit is the reason a tracked position should be closed.
type Exit string

const (
	ExitNone       Exit = ""
	ExitStopLoss   Exit = "stop_loss"
	ExitTakeProfit Exit = "take_profit"
)

// CheckExit compares price with a position's protective levels. A zero level is
// treated as unset.
func CheckExit(side common.Side, stopLoss, takeProfit, price float64) Exit {
	if price <= 0 {
		return ExitNone
	}
	if side == common.SideBuy {
		switch {
		case stopLoss > 0 && price <= stopLoss:
			return ExitStopLoss
		case takeProfit > 0 && price >= takeProfit:
			return ExitTakeProfit
		}
		return ExitNone
	}
	switch {
	case stopLoss > 0 && price >= stopLoss:
		return ExitStopLoss
	case takeProfit > 0 && price <= takeProfit:
		return ExitTakeProfit
	}
	return ExitNone
}

// PnL is the gross profit of closing size units opened at entry for exit.
func PnL(side common.Side, entry, exit, size float64) float64 {
	if side == common.SideBuy {
		return (exit - entry) * size
	}
	return (entry - exit) * size
}

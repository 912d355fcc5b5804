// Package pnl computes unrealized and realized profit-and-loss with a
// single pure function, shared by the bot engine's live reconciliation
// path and the position monitor's paper-close path so the two can never
// diverge on sign or direction handling.
package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/coinforge/tradeengine/internal/domain"
)

// Compute returns (exitPrice - entryPrice) * quantity * direction.Sign().
// A SHORT position gains when price falls; direction.Sign() encodes
// that so callers never special-case it themselves.
func Compute(direction domain.Direction, entryPrice, exitPrice, quantity decimal.Decimal) decimal.Decimal {
	delta := exitPrice.Sub(entryPrice).Mul(quantity)
	if direction.Sign() < 0 {
		return delta.Neg()
	}
	return delta
}

// HitTakeProfit reports whether the current price has reached a
// position's take-profit target, respecting direction.
func HitTakeProfit(direction domain.Direction, currentPrice, takeProfit decimal.Decimal) bool {
	if direction.Sign() < 0 {
		return currentPrice.LessThanOrEqual(takeProfit)
	}
	return currentPrice.GreaterThanOrEqual(takeProfit)
}

// HitStopLoss reports whether the current price has breached a
// position's stop-loss level, respecting direction.
func HitStopLoss(direction domain.Direction, currentPrice, stopLoss decimal.Decimal) bool {
	if direction.Sign() < 0 {
		return currentPrice.GreaterThanOrEqual(stopLoss)
	}
	return currentPrice.LessThanOrEqual(stopLoss)
}

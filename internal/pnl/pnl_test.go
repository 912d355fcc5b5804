package pnl

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
)

func TestComputeLongGainsOnPriceIncrease(t *testing.T) {
	result := Compute(domain.DirUp, decimal.NewFromInt(50000), decimal.NewFromInt(53010), decimal.NewFromFloat(0.002))
	require.True(t, result.Equal(decimal.NewFromFloat(6.02)))
}

func TestComputeShortGainsOnPriceDecrease(t *testing.T) {
	result := Compute(domain.DirShort, decimal.NewFromInt(100), decimal.NewFromInt(90), decimal.NewFromInt(2))
	require.True(t, result.Equal(decimal.NewFromInt(20)))
}

func TestComputeShortLosesOnPriceIncrease(t *testing.T) {
	result := Compute(domain.DirShort, decimal.NewFromInt(100), decimal.NewFromInt(110), decimal.NewFromInt(2))
	require.True(t, result.Equal(decimal.NewFromInt(-20)))
}

func TestHitTakeProfitRespectsDirection(t *testing.T) {
	require.True(t, HitTakeProfit(domain.DirUp, decimal.NewFromInt(110), decimal.NewFromInt(105)))
	require.False(t, HitTakeProfit(domain.DirUp, decimal.NewFromInt(100), decimal.NewFromInt(105)))
	require.True(t, HitTakeProfit(domain.DirShort, decimal.NewFromInt(90), decimal.NewFromInt(95)))
}

func TestHitStopLossRespectsDirection(t *testing.T) {
	require.True(t, HitStopLoss(domain.DirUp, decimal.NewFromInt(95), decimal.NewFromInt(98)))
	require.True(t, HitStopLoss(domain.DirShort, decimal.NewFromInt(105), decimal.NewFromInt(102)))
}

package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/indicators"
)

func settingsFixture() domain.TradingSettings {
	s := domain.DefaultTradingSettings("user-1")
	s.MinConfidence = 0
	return s
}

func TestTrendFollowingFiresLongOnAgreement(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000),
		RSI: decimal.NewFromInt(55), HasRSI: true,
		EMAFast: decimal.NewFromInt(51000), EMASlow: decimal.NewFromInt(49000), HasEMA: true,
		MACD: indicators.MACDResult{MACD: decimal.NewFromInt(10), Signal: decimal.NewFromInt(5)}, HasMACD: true,
		ADX: decimal.NewFromInt(30), HasADX: true,
	}
	sig, ok := TrendFollowing(snap, settingsFixture())
	require.True(t, ok)
	require.Equal(t, domain.DirLong, sig.Direction)
	require.True(t, sig.Confidence.Equal(decimal.NewFromInt(75)))
}

func TestTrendFollowingSkipsWithoutADXConfirmation(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000),
		RSI: decimal.NewFromInt(55), HasRSI: true,
		EMAFast: decimal.NewFromInt(51000), EMASlow: decimal.NewFromInt(49000), HasEMA: true,
		MACD: indicators.MACDResult{MACD: decimal.NewFromInt(10), Signal: decimal.NewFromInt(5)}, HasMACD: true,
		ADX: decimal.NewFromInt(10), HasADX: true,
	}
	_, ok := TrendFollowing(snap, settingsFixture())
	require.False(t, ok)
}

func TestMeanReversionLongCapsAtNinetyFive(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(100),
		RSI: decimal.NewFromInt(1), HasRSI: true,
		Bollinger: indicators.BollingerResult{Middle: decimal.NewFromInt(110), Upper: decimal.NewFromInt(120), Lower: decimal.NewFromInt(105)}, HasBollinger: true,
	}
	sig, ok := MeanReversion(snap, settingsFixture())
	require.True(t, ok)
	require.Equal(t, domain.DirLong, sig.Direction)
	require.True(t, sig.Confidence.Equal(decimal.NewFromInt(95)))
	require.True(t, sig.TakeProfit.Equal(decimal.NewFromInt(110)))
}

func TestBreakoutShortFiresBelowLowerBand(t *testing.T) {
	snap := Snapshot{
		Symbol: "ETHUSDT", Price: decimal.NewFromInt(90),
		Bollinger: indicators.BollingerResult{Middle: decimal.NewFromInt(100), Upper: decimal.NewFromInt(110), Lower: decimal.NewFromInt(95)}, HasBollinger: true,
		ADX: decimal.NewFromInt(35), HasADX: true,
	}
	sig, ok := Breakout(snap, settingsFixture())
	require.True(t, ok)
	require.Equal(t, domain.DirShort, sig.Direction)
	require.True(t, sig.StopLoss.Equal(decimal.NewFromInt(100)))
}

func TestPullbackRequiresNeutralRSI(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(100),
		RSI: decimal.NewFromInt(80), HasRSI: true,
		EMAFast: decimal.NewFromInt(101), EMASlow: decimal.NewFromInt(99), HasEMA: true,
		MACD: indicators.MACDResult{Histogram: decimal.NewFromInt(1)}, HasMACD: true,
	}
	_, ok := Pullback(snap, settingsFixture())
	require.False(t, ok)
}

func TestEvaluateRelabelsSpotDirectionToUp(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000),
		RSI: decimal.NewFromInt(55), HasRSI: true,
		EMAFast: decimal.NewFromInt(51000), EMASlow: decimal.NewFromInt(49000), HasEMA: true,
		MACD: indicators.MACDResult{MACD: decimal.NewFromInt(10), Signal: decimal.NewFromInt(5)}, HasMACD: true,
		ADX: decimal.NewFromInt(30), HasADX: true,
	}
	settings := settingsFixture()
	toggles := domain.StrategyToggles{TrendFollowing: true}
	signals := Evaluate(snap, settings, domain.ModeSpot, toggles)
	require.Len(t, signals, 1)
	require.Equal(t, domain.DirUp, signals[0].Direction)
}

func TestEvaluateDropsShortSignalsForSpot(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000),
		RSI: decimal.NewFromInt(55), HasRSI: true,
		EMAFast: decimal.NewFromInt(49000), EMASlow: decimal.NewFromInt(51000), HasEMA: true,
		MACD: indicators.MACDResult{MACD: decimal.NewFromInt(5), Signal: decimal.NewFromInt(10)}, HasMACD: true,
		ADX: decimal.NewFromInt(30), HasADX: true,
	}
	settings := settingsFixture()
	toggles := domain.StrategyToggles{TrendFollowing: true}
	signals := Evaluate(snap, settings, domain.ModeSpot, toggles)
	require.Empty(t, signals)
}

func TestEvaluateFiltersBelowMinConfidence(t *testing.T) {
	snap := Snapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000),
		RSI: decimal.NewFromInt(55), HasRSI: true,
		EMAFast: decimal.NewFromInt(51000), EMASlow: decimal.NewFromInt(49000), HasEMA: true,
		MACD: indicators.MACDResult{MACD: decimal.NewFromInt(10), Signal: decimal.NewFromInt(5)}, HasMACD: true,
		ADX: decimal.NewFromInt(30), HasADX: true,
	}
	settings := settingsFixture()
	settings.MinConfidence = 99
	toggles := domain.StrategyToggles{TrendFollowing: true}
	signals := Evaluate(snap, settings, domain.ModeLeverage, toggles)
	require.Empty(t, signals)
}

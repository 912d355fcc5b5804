// Package strategy evaluates indicator snapshots into trade signals.
// Each of the four strategies is an independent pure function; the
// evaluator runs every enabled one per symbol and keeps what clears the
// user's confidence floor.
package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/indicators"
)

// Signal is a candidate trade produced by one strategy for one symbol.
type Signal struct {
	Symbol     string
	Direction  domain.Direction
	Confidence decimal.Decimal // 0..100
	Strategy   domain.StrategyName
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
}

// Validate checks a signal is well-formed before it reaches the
// admission gate.
func (s Signal) Validate() bool {
	if s.Symbol == "" || s.EntryPrice.IsZero() {
		return false
	}
	if s.Confidence.IsNegative() || s.Confidence.GreaterThan(decimal.NewFromInt(100)) {
		return false
	}
	return !s.StopLoss.Equal(s.TakeProfit)
}

// RiskReward returns the reward:risk ratio implied by entry/SL/TP.
func (s Signal) RiskReward() decimal.Decimal {
	risk := s.EntryPrice.Sub(s.StopLoss).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	reward := s.TakeProfit.Sub(s.EntryPrice).Abs()
	return reward.Div(risk)
}

// Snapshot bundles the indicator readings the evaluator needs for one
// symbol on its last closed candle.
type Snapshot struct {
	Symbol       string
	Price        decimal.Decimal
	RSI          decimal.Decimal
	EMAFast      decimal.Decimal
	EMASlow      decimal.Decimal
	MACD         indicators.MACDResult
	ADX          decimal.Decimal
	Bollinger    indicators.BollingerResult
	HasRSI       bool
	HasEMA       bool
	HasMACD      bool
	HasADX       bool
	HasBollinger bool
}

// BuildSnapshot computes every indicator the strategies need from a
// closed candle series, per the configured parameters. A strategy whose
// required indicator is undefined for insufficient history simply does
// not fire this cycle.
func BuildSnapshot(symbol string, candles []domain.Candle, params domain.IndicatorParams) Snapshot {
	snap := Snapshot{Symbol: symbol}
	if len(candles) == 0 {
		return snap
	}
	snap.Price = candles[len(candles)-1].Close

	if rsi, ok := indicators.RSI(candles, params.RSIPeriod); ok {
		snap.RSI, snap.HasRSI = rsi, true
	}
	fast, okFast := indicators.EMALatest(candles, params.EMAFast)
	slow, okSlow := indicators.EMALatest(candles, params.EMASlow)
	if okFast && okSlow {
		snap.EMAFast, snap.EMASlow, snap.HasEMA = fast, slow, true
	}
	if macd, ok := indicators.MACD(candles, params.EMAFast, params.EMASlow, params.MACDSignal); ok {
		snap.MACD, snap.HasMACD = macd, true
	}
	if adx, ok := indicators.ADX(candles, params.ADXPeriod); ok {
		snap.ADX, snap.HasADX = adx.ADX, true
	}
	if bb, ok := indicators.BollingerBands(candles, 20, decimal.NewFromInt(2)); ok {
		snap.Bollinger, snap.HasBollinger = bb, true
	}
	return snap
}

func cap100(v decimal.Decimal, max int) decimal.Decimal {
	limit := decimal.NewFromInt(int64(max))
	if v.GreaterThan(limit) {
		return limit
	}
	return v
}

func priceWithPct(price, pct decimal.Decimal, up bool) decimal.Decimal {
	factor := decimal.NewFromInt(1)
	frac := pct.Div(decimal.NewFromInt(100))
	if up {
		factor = factor.Add(frac)
	} else {
		factor = factor.Sub(frac)
	}
	return price.Mul(factor)
}

// TrendFollowing fires when ADX confirms trend strength and EMA/MACD
// agree on direction.
func TrendFollowing(snap Snapshot, settings domain.TradingSettings) (Signal, bool) {
	if !snap.HasADX || !snap.HasEMA || !snap.HasMACD || !snap.HasRSI {
		return Signal{}, false
	}
	adxExcess := snap.ADX.Sub(decimal.NewFromInt(25))
	healthyBand := snap.RSI.GreaterThan(decimal.NewFromInt(30)) && snap.RSI.LessThan(decimal.NewFromInt(70))

	confidence := func() decimal.Decimal {
		c := decimal.NewFromInt(60).Add(cap100(adxExcess, 30))
		if healthyBand {
			c = c.Add(decimal.NewFromInt(10))
		}
		return c
	}

	long := snap.ADX.GreaterThan(decimal.NewFromInt(25)) && snap.EMAFast.GreaterThan(snap.EMASlow) && snap.MACD.MACD.GreaterThan(snap.MACD.Signal)
	short := snap.ADX.GreaterThan(decimal.NewFromInt(25)) && snap.EMAFast.LessThan(snap.EMASlow) && snap.MACD.MACD.LessThan(snap.MACD.Signal)

	switch {
	case long:
		return Signal{
			Symbol: snap.Symbol, Direction: domain.DirLong, Confidence: confidence(),
			Strategy: domain.StrategyTrendFollowing, EntryPrice: snap.Price,
			StopLoss:   priceWithPct(snap.Price, settings.StopLossPct, false),
			TakeProfit: priceWithPct(snap.Price, settings.TakeProfitPct, true),
		}, true
	case short:
		return Signal{
			Symbol: snap.Symbol, Direction: domain.DirShort, Confidence: confidence(),
			Strategy: domain.StrategyTrendFollowing, EntryPrice: snap.Price,
			StopLoss:   priceWithPct(snap.Price, settings.StopLossPct, true),
			TakeProfit: priceWithPct(snap.Price, settings.TakeProfitPct, false),
		}, true
	default:
		return Signal{}, false
	}
}

// MeanReversion fires on RSI extremes confirmed by a Bollinger band
// breach, targeting reversion to the band's middle.
func MeanReversion(snap Snapshot, settings domain.TradingSettings) (Signal, bool) {
	if !snap.HasRSI || !snap.HasBollinger {
		return Signal{}, false
	}
	rsiLow := settings.Indicators.RSILow
	rsiHigh := settings.Indicators.RSIHigh

	long := snap.RSI.LessThan(rsiLow) && snap.Price.LessThan(snap.Bollinger.Lower)
	short := snap.RSI.GreaterThan(rsiHigh) && snap.Price.GreaterThan(snap.Bollinger.Upper)

	switch {
	case long:
		conf := cap100(decimal.NewFromInt(70).Add(decimal.NewFromInt(2).Mul(decimal.Max(rsiLow.Sub(snap.RSI), decimal.Zero))), 95)
		return Signal{
			Symbol: snap.Symbol, Direction: domain.DirLong, Confidence: conf,
			Strategy: domain.StrategyMeanReversion, EntryPrice: snap.Price,
			StopLoss:   priceWithPct(snap.Price, settings.StopLossPct, false),
			TakeProfit: snap.Bollinger.Middle,
		}, true
	case short:
		conf := cap100(decimal.NewFromInt(70).Add(decimal.NewFromInt(2).Mul(decimal.Max(snap.RSI.Sub(rsiHigh), decimal.Zero))), 95)
		return Signal{
			Symbol: snap.Symbol, Direction: domain.DirShort, Confidence: conf,
			Strategy: domain.StrategyMeanReversion, EntryPrice: snap.Price,
			StopLoss:   priceWithPct(snap.Price, settings.StopLossPct, true),
			TakeProfit: snap.Bollinger.Middle,
		}, true
	default:
		return Signal{}, false
	}
}

// Breakout fires when price clears a Bollinger band with ADX confirming
// momentum, targeting continuation.
func Breakout(snap Snapshot, settings domain.TradingSettings) (Signal, bool) {
	if !snap.HasBollinger || !snap.HasADX {
		return Signal{}, false
	}
	adxExcess := snap.ADX.Sub(decimal.NewFromInt(20))

	long := snap.Price.GreaterThan(snap.Bollinger.Upper) && snap.ADX.GreaterThan(decimal.NewFromInt(20))
	short := snap.Price.LessThan(snap.Bollinger.Lower) && snap.ADX.GreaterThan(decimal.NewFromInt(20))

	switch {
	case long:
		conf := cap100(decimal.NewFromInt(75).Add(cap100(adxExcess, 20)), 95)
		return Signal{
			Symbol: snap.Symbol, Direction: domain.DirLong, Confidence: conf,
			Strategy: domain.StrategyBreakout, EntryPrice: snap.Price,
			StopLoss:   snap.Bollinger.Middle,
			TakeProfit: priceWithPct(snap.Price, settings.TakeProfitPct, true),
		}, true
	case short:
		conf := cap100(decimal.NewFromInt(75).Add(cap100(adxExcess, 20)), 95)
		return Signal{
			Symbol: snap.Symbol, Direction: domain.DirShort, Confidence: conf,
			Strategy: domain.StrategyBreakout, EntryPrice: snap.Price,
			StopLoss:   snap.Bollinger.Middle,
			TakeProfit: priceWithPct(snap.Price, settings.TakeProfitPct, false),
		}, true
	default:
		return Signal{}, false
	}
}

// Pullback fires on EMA-confirmed trend direction with RSI pulled back
// into the neutral band and a MACD histogram that agrees.
func Pullback(snap Snapshot, settings domain.TradingSettings) (Signal, bool) {
	if !snap.HasEMA || !snap.HasRSI || !snap.HasMACD {
		return Signal{}, false
	}
	rsiNeutral := snap.RSI.GreaterThan(decimal.NewFromInt(40)) && snap.RSI.LessThan(decimal.NewFromInt(60))
	confidence := func() decimal.Decimal {
		dist := snap.RSI.Sub(decimal.NewFromInt(50)).Abs()
		c := decimal.NewFromInt(65).Add(decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(60).Sub(dist)))
		return cap100(c, 90)
	}

	long := snap.EMAFast.GreaterThan(snap.EMASlow) && rsiNeutral && snap.MACD.Histogram.IsPositive()
	short := snap.EMAFast.LessThan(snap.EMASlow) && rsiNeutral && snap.MACD.Histogram.IsNegative()

	switch {
	case long:
		return Signal{
			Symbol: snap.Symbol, Direction: domain.DirLong, Confidence: confidence(),
			Strategy: domain.StrategyPullback, EntryPrice: snap.Price,
			StopLoss:   priceWithPct(snap.Price, settings.StopLossPct, false),
			TakeProfit: priceWithPct(snap.Price, settings.TakeProfitPct, true),
		}, true
	case short:
		return Signal{
			Symbol: snap.Symbol, Direction: domain.DirShort, Confidence: confidence(),
			Strategy: domain.StrategyPullback, EntryPrice: snap.Price,
			StopLoss:   priceWithPct(snap.Price, settings.StopLossPct, true),
			TakeProfit: priceWithPct(snap.Price, settings.TakeProfitPct, false),
		}, true
	default:
		return Signal{}, false
	}
}

// Evaluate runs every strategy the toggles enable against the snapshot,
// relabels for spot (LONG only, direction forced to UP), and drops
// anything below minConfidence.
func Evaluate(snap Snapshot, settings domain.TradingSettings, mode domain.TradingMode, toggles domain.StrategyToggles) []Signal {
	type candidate struct {
		name domain.StrategyName
		fn   func(Snapshot, domain.TradingSettings) (Signal, bool)
	}
	candidates := []candidate{
		{domain.StrategyTrendFollowing, TrendFollowing},
		{domain.StrategyMeanReversion, MeanReversion},
		{domain.StrategyBreakout, Breakout},
		{domain.StrategyPullback, Pullback},
	}

	minConfidence := decimal.NewFromInt(int64(settings.MinConfidence))
	var signals []Signal
	for _, c := range candidates {
		if !toggles.Enabled(c.name) {
			continue
		}
		sig, ok := c.fn(snap, settings)
		if !ok {
			continue
		}
		if mode == domain.ModeSpot {
			if sig.Direction != domain.DirLong {
				continue
			}
			sig.Direction = domain.DirUp
		}
		if sig.Confidence.LessThan(minConfidence) {
			continue
		}
		if !sig.Validate() {
			continue
		}
		signals = append(signals, sig)
	}
	return signals
}

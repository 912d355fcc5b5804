// Package indicators computes technical indicators over closed candle
// series. Every function is pure: it takes a []domain.Candle (oldest
// first) and returns a value, holding no state of its own. Callers own
// whatever rolling buffer feeds them.
package indicators

import (
	"github.com/shopspring/decimal"

	"github.com/coinforge/tradeengine/internal/domain"
)

// MinCandles is the minimum history the indicator engine requires before
// it will emit any output — short of this, a symbol is skipped for the
// cycle rather than evaluated on partial data.
const MinCandles = 50

func closes(candles []domain.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA is the simple moving average of the last `period` closes.
func SMA(candles []domain.Candle, period int) (decimal.Decimal, bool) {
	if len(candles) < period {
		return decimal.Zero, false
	}
	window := candles[len(candles)-period:]
	sum := decimal.Zero
	for _, c := range window {
		sum = sum.Add(c.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), true
}

// EMA computes the exponential moving average series for the given
// period, seeded with the SMA of the first `period` closes (not the
// first raw price) so the series doesn't overweight a noisy opening
// candle. Returns one value per candle from index period-1 onward; the
// final element is the current EMA.
func EMA(candles []domain.Candle, period int) ([]decimal.Decimal, bool) {
	if len(candles) < period {
		return nil, false
	}
	cs := closes(candles)
	seed := decimal.Zero
	for _, c := range cs[:period] {
		seed = seed.Add(c)
	}
	seed = seed.Div(decimal.NewFromInt(int64(period)))

	multiplier := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	out := make([]decimal.Decimal, 0, len(cs)-period+1)
	out = append(out, seed)
	prev := seed
	for _, price := range cs[period:] {
		prev = price.Sub(prev).Mul(multiplier).Add(prev)
		out = append(out, prev)
	}
	return out, true
}

// EMALatest returns just the current (final) EMA value.
func EMALatest(candles []domain.Candle, period int) (decimal.Decimal, bool) {
	series, ok := EMA(candles, period)
	if !ok || len(series) == 0 {
		return decimal.Zero, false
	}
	return series[len(series)-1], true
}

// RSI computes Wilder's Relative Strength Index: the first `period`
// deltas seed the average gain/loss, and every later delta is folded in
// with Wilder's smoothing. Requires at least period+1 candles (one extra
// to form the first delta).
func RSI(candles []domain.Candle, period int) (decimal.Decimal, bool) {
	if len(candles) < period+1 {
		return decimal.Zero, false
	}
	cs := closes(candles)

	avgGain := decimal.Zero
	avgLoss := decimal.Zero
	start := 0
	for i := start + 1; i <= start+period; i++ {
		delta := cs[i].Sub(cs[i-1])
		if delta.IsPositive() {
			avgGain = avgGain.Add(delta)
		} else {
			avgLoss = avgLoss.Add(delta.Abs())
		}
	}
	periodDec := decimal.NewFromInt(int64(period))
	avgGain = avgGain.Div(periodDec)
	avgLoss = avgLoss.Div(periodDec)

	for i := start + period + 1; i < len(cs); i++ {
		delta := cs[i].Sub(cs[i-1])
		gain := decimal.Zero
		loss := decimal.Zero
		if delta.IsPositive() {
			gain = delta
		} else {
			loss = delta.Abs()
		}
		avgGain = avgGain.Mul(periodDec.Sub(decimal.NewFromInt(1))).Add(gain).Div(periodDec)
		avgLoss = avgLoss.Mul(periodDec.Sub(decimal.NewFromInt(1))).Add(loss).Div(periodDec)
	}

	if avgLoss.IsZero() {
		return decimal.NewFromInt(100), true
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	rsi := hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	return rsi, true
}

// MACDResult bundles the MACD line, signal line, and histogram.
type MACDResult struct {
	MACD      decimal.Decimal
	Signal    decimal.Decimal
	Histogram decimal.Decimal
}

// MACD computes fast-EMA minus slow-EMA, and the signal line as the EMA
// of that series over `signalPeriod`.
func MACD(candles []domain.Candle, fast, slow, signalPeriod int) (MACDResult, bool) {
	fastSeries, ok := EMA(candles, fast)
	if !ok {
		return MACDResult{}, false
	}
	slowSeries, ok := EMA(candles, slow)
	if !ok {
		return MACDResult{}, false
	}
	// fastSeries starts `slow-fast` candles earlier than slowSeries.
	offset := slow - fast
	if offset < 0 || offset >= len(fastSeries) {
		return MACDResult{}, false
	}
	aligned := fastSeries[offset:]
	n := len(aligned)
	if n > len(slowSeries) {
		n = len(slowSeries)
	}
	if n < signalPeriod {
		return MACDResult{}, false
	}
	macdLine := make([]decimal.Decimal, n)
	for i := 0; i < n; i++ {
		macdLine[i] = aligned[i].Sub(slowSeries[i])
	}

	signal := emaOfSeries(macdLine, signalPeriod)
	macd := macdLine[len(macdLine)-1]
	return MACDResult{MACD: macd, Signal: signal, Histogram: macd.Sub(signal)}, true
}

// emaOfSeries computes the EMA of an already-derived decimal series,
// seeded with the SMA of its first `period` values (same convention as
// EMA above).
func emaOfSeries(series []decimal.Decimal, period int) decimal.Decimal {
	if len(series) < period {
		return decimal.Zero
	}
	seed := decimal.Zero
	for _, v := range series[:period] {
		seed = seed.Add(v)
	}
	seed = seed.Div(decimal.NewFromInt(int64(period)))

	multiplier := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	prev := seed
	for _, v := range series[period:] {
		prev = v.Sub(prev).Mul(multiplier).Add(prev)
	}
	return prev
}

// BollingerResult bundles the middle, upper and lower bands.
type BollingerResult struct {
	Middle decimal.Decimal
	Upper  decimal.Decimal
	Lower  decimal.Decimal
}

// BollingerBands computes SMA(period) +/- width*stddev(period).
func BollingerBands(candles []domain.Candle, period int, width decimal.Decimal) (BollingerResult, bool) {
	mid, ok := SMA(candles, period)
	if !ok {
		return BollingerResult{}, false
	}
	window := candles[len(candles)-period:]
	variance := decimal.Zero
	for _, c := range window {
		diff := c.Close.Sub(mid)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(period)))
	stddev := sqrt(variance)

	return BollingerResult{
		Middle: mid,
		Upper:  mid.Add(stddev.Mul(width)),
		Lower:  mid.Sub(stddev.Mul(width)),
	}, true
}

// ADXResult bundles ADX with its directional indicators.
type ADXResult struct {
	ADX     decimal.Decimal
	PlusDI  decimal.Decimal
	MinusDI decimal.Decimal
}

// ADX computes Wilder's Average Directional Index over `period`.
func ADX(candles []domain.Candle, period int) (ADXResult, bool) {
	if len(candles) < period*2+1 {
		return ADXResult{}, false
	}

	n := len(candles)
	plusDM := make([]decimal.Decimal, n)
	minusDM := make([]decimal.Decimal, n)
	tr := make([]decimal.Decimal, n)

	for i := 1; i < n; i++ {
		upMove := candles[i].High.Sub(candles[i-1].High)
		downMove := candles[i-1].Low.Sub(candles[i].Low)

		if upMove.GreaterThan(downMove) && upMove.IsPositive() {
			plusDM[i] = upMove
		} else {
			plusDM[i] = decimal.Zero
		}
		if downMove.GreaterThan(upMove) && downMove.IsPositive() {
			minusDM[i] = downMove
		} else {
			minusDM[i] = decimal.Zero
		}

		hl := candles[i].High.Sub(candles[i].Low)
		hc := candles[i].High.Sub(candles[i-1].Close).Abs()
		lc := candles[i].Low.Sub(candles[i-1].Close).Abs()
		trVal := hl
		if hc.GreaterThan(trVal) {
			trVal = hc
		}
		if lc.GreaterThan(trVal) {
			trVal = lc
		}
		tr[i] = trVal
	}

	periodDec := decimal.NewFromInt(int64(period))

	smoothedTR := wilderSmooth(tr[1:period+1], tr[period+1:], periodDec)
	smoothedPlusDM := wilderSmooth(plusDM[1:period+1], plusDM[period+1:], periodDec)
	smoothedMinusDM := wilderSmooth(minusDM[1:period+1], minusDM[period+1:], periodDec)

	if smoothedTR.IsZero() {
		return ADXResult{}, false
	}
	plusDI := smoothedPlusDM.Div(smoothedTR).Mul(decimal.NewFromInt(100))
	minusDI := smoothedMinusDM.Div(smoothedTR).Mul(decimal.NewFromInt(100))

	diSum := plusDI.Add(minusDI)
	if diSum.IsZero() {
		return ADXResult{ADX: decimal.Zero, PlusDI: plusDI, MinusDI: minusDI}, true
	}
	dx := plusDI.Sub(minusDI).Abs().Div(diSum).Mul(decimal.NewFromInt(100))

	return ADXResult{ADX: dx, PlusDI: plusDI, MinusDI: minusDI}, true
}

// wilderSmooth sums the seed window then applies Wilder's running
// smoothing formula over the remaining values.
func wilderSmooth(seed, rest []decimal.Decimal, period decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range seed {
		sum = sum.Add(v)
	}
	for _, v := range rest {
		sum = sum.Sub(sum.Div(period)).Add(v)
	}
	return sum
}

// sqrt approximates the square root of a non-negative decimal via 20
// iterations of Newton's method.
func sqrt(d decimal.Decimal) decimal.Decimal {
	if d.IsZero() || d.IsNegative() {
		return decimal.Zero
	}
	x := d
	for i := 0; i < 20; i++ {
		x = x.Add(d.Div(x)).Div(decimal.NewFromInt(2))
	}
	return x
}

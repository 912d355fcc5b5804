package indicators

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
)

func mkCandles(closes []float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	ts := time.Unix(1700000000, 0)
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out[i] = domain.Candle{
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      d,
			High:      d.Add(decimal.NewFromFloat(0.5)),
			Low:       d.Sub(decimal.NewFromFloat(0.5)),
			Close:     d,
			Volume:    decimal.NewFromInt(100),
		}
	}
	return out
}

func TestSMAInsufficientHistory(t *testing.T) {
	_, ok := SMA(mkCandles([]float64{1, 2, 3}), 5)
	require.False(t, ok)
}

func TestSMAAveragesLastPeriod(t *testing.T) {
	candles := mkCandles([]float64{1, 2, 3, 4, 5})
	sma, ok := SMA(candles, 3)
	require.True(t, ok)
	require.True(t, sma.Equal(decimal.NewFromInt(4)))
}

func TestEMASeededWithSMA(t *testing.T) {
	candles := mkCandles([]float64{10, 10, 10, 20, 20})
	series, ok := EMA(candles, 3)
	require.True(t, ok)
	require.True(t, series[0].Equal(decimal.NewFromInt(10)))
	last, ok := EMALatest(candles, 3)
	require.True(t, ok)
	require.True(t, last.GreaterThan(series[0]))
}

func TestRSIAllGainsIsHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	rsi, ok := RSI(mkCandles(closes), 14)
	require.True(t, ok)
	require.True(t, rsi.Equal(decimal.NewFromInt(100)))
}

func TestRSIFlatSeriesIsHundred(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	rsi, ok := RSI(mkCandles(closes), 14)
	require.True(t, ok)
	require.True(t, rsi.Equal(decimal.NewFromInt(100)))
}

func TestMACDRequiresEnoughHistory(t *testing.T) {
	_, ok := MACD(mkCandles([]float64{1, 2, 3}), 12, 26, 9)
	require.False(t, ok)
}

func TestMACDComputesOnLongSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	result, ok := MACD(mkCandles(closes), 12, 26, 9)
	require.True(t, ok)
	require.True(t, result.MACD.IsPositive())
}

func TestBollingerBandsOrdering(t *testing.T) {
	closes := []float64{10, 12, 9, 13, 11, 14, 8, 15, 10, 12, 11, 13, 9, 14, 10, 12, 11, 13, 9, 14}
	bands, ok := BollingerBands(mkCandles(closes), 20, decimal.NewFromInt(2))
	require.True(t, ok)
	require.True(t, bands.Upper.GreaterThan(bands.Middle))
	require.True(t, bands.Middle.GreaterThan(bands.Lower))
}

func TestADXRequiresEnoughHistory(t *testing.T) {
	_, ok := ADX(mkCandles([]float64{1, 2, 3}), 14)
	require.False(t, ok)
}

func TestADXStrongTrendHasHighPlusDI(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)*2
	}
	result, ok := ADX(mkCandles(closes), 14)
	require.True(t, ok)
	require.True(t, result.PlusDI.GreaterThan(result.MinusDI))
}

func TestSqrtApproximation(t *testing.T) {
	result := sqrt(decimal.NewFromInt(16))
	diff := result.Sub(decimal.NewFromInt(4)).Abs()
	require.True(t, diff.LessThan(decimal.NewFromFloat(0.0001)))
}

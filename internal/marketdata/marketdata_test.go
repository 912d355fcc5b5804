package marketdata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/exchange"
)

func TestGetAllUSDTPairsReturnsFullRegistry(t *testing.T) {
	pairs := GetAllUSDTPairs()
	require.Equal(t, len(usdtPairRegistry), len(pairs))
	require.Equal(t, "BTCUSDT", pairs[0])
}

func TestGetAllUSDTPairsReturnsACopy(t *testing.T) {
	pairs := GetAllUSDTPairs()
	pairs[0] = "MUTATED"
	require.Equal(t, "BTCUSDT", usdtPairRegistry[0])
}

func TestTopTradingPairsReturnsDeterministicPrefix(t *testing.T) {
	require.Equal(t, usdtPairRegistry[:5], TopTradingPairs(5))
	require.Equal(t, usdtPairRegistry[:5], TopTradingPairs(5))
}

func TestTopTradingPairsCapsAtRegistrySize(t *testing.T) {
	pairs := TopTradingPairs(len(usdtPairRegistry) + 50)
	require.Equal(t, len(usdtPairRegistry), len(pairs))
}

func TestTopTradingPairsReturnsEmptyForNonPositiveLimit(t *testing.T) {
	require.Empty(t, TopTradingPairs(0))
	require.Empty(t, TopTradingPairs(-1))
}

func TestConsumeTickerUpdatesLatestPrice(t *testing.T) {
	s := New(exchange.New("", ""), exchange.CategorySpot)
	s.ConsumeTicker(exchange.TickerUpdate{Symbol: "BTCUSDT", LastPrice: decimal.NewFromInt(50000)})
	price, ok := s.LatestPrice("BTCUSDT")
	require.True(t, ok)
	require.True(t, price.Equal(decimal.NewFromInt(50000)))

	s.ConsumeTicker(exchange.TickerUpdate{Symbol: "BTCUSDT", LastPrice: decimal.NewFromInt(51000)})
	price, ok = s.LatestPrice("BTCUSDT")
	require.True(t, ok)
	require.True(t, price.Equal(decimal.NewFromInt(51000)))
}

func TestLatestPriceReportsMissingSymbol(t *testing.T) {
	s := New(exchange.New("", ""), exchange.CategorySpot)
	_, ok := s.LatestPrice("DOESNOTEXIST")
	require.False(t, ok)
}

func TestSupportResistanceFindsMinMaxOverWindow(t *testing.T) {
	candles := []domain.Candle{
		{Close: decimal.NewFromInt(100)},
		{Close: decimal.NewFromInt(90)},
		{Close: decimal.NewFromInt(110)},
		{Close: decimal.NewFromInt(95)},
	}
	support, resistance := SupportResistance(candles, 3)
	require.True(t, support.Equal(decimal.NewFromInt(90)))
	require.True(t, resistance.Equal(decimal.NewFromInt(110)))
}

func TestSupportResistanceHandlesEmptyCandles(t *testing.T) {
	support, resistance := SupportResistance(nil, 10)
	require.True(t, support.IsZero())
	require.True(t, resistance.IsZero())
}

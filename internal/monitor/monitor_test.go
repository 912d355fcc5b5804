package monitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/exchange"
	"github.com/coinforge/tradeengine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPriceAndMaybeCloseUpdatesLivePositionWithoutClosing(t *testing.T) {
	s := newTestStore(t)
	m := New(s, exchange.New("", ""), nil)

	created, err := s.CreatePosition(domain.Position{
		UserID: "u1", Symbol: "BTCUSDT", Direction: domain.DirUp, TradingMode: domain.ModeSpot,
		EntryPrice: decimal.NewFromInt(50000), Quantity: decimal.NewFromFloat(0.01),
		IsPaperTrade: false,
	})
	require.NoError(t, err)

	m.priceAndMaybeClose(created, decimal.NewFromInt(51000))

	got, err := s.GetPosition(created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PositionOpen, got.Status)
	require.True(t, got.CurrentPrice.Equal(decimal.NewFromInt(51000)))
}

func TestPriceAndMaybeCloseClosesPaperPositionOnTakeProfit(t *testing.T) {
	s := newTestStore(t)
	m := New(s, exchange.New("", ""), nil)

	tp := decimal.NewFromInt(53000)
	sl := decimal.NewFromInt(48000)
	created, err := s.CreatePosition(domain.Position{
		UserID: "u1", Symbol: "BTCUSDT", Direction: domain.DirUp, TradingMode: domain.ModeSpot,
		EntryPrice: decimal.NewFromInt(50000), Quantity: decimal.NewFromFloat(0.002),
		StopLoss: &sl, TakeProfit: &tp, IsPaperTrade: true,
	})
	require.NoError(t, err)

	m.priceAndMaybeClose(created, decimal.NewFromInt(53010))

	got, err := s.GetPosition(created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PositionClosed, got.Status)

	trades, err := s.GetTradeHistory("u1", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.True(t, trades[0].PnL.Equal(decimal.NewFromFloat(6.02)))
}

func TestPriceAndMaybeCloseLeavesPaperPositionOpenWhenNeitherLevelHit(t *testing.T) {
	s := newTestStore(t)
	m := New(s, exchange.New("", ""), nil)

	tp := decimal.NewFromInt(53000)
	sl := decimal.NewFromInt(48000)
	created, err := s.CreatePosition(domain.Position{
		UserID: "u1", Symbol: "BTCUSDT", Direction: domain.DirUp, TradingMode: domain.ModeSpot,
		EntryPrice: decimal.NewFromInt(50000), Quantity: decimal.NewFromFloat(0.002),
		StopLoss: &sl, TakeProfit: &tp, IsPaperTrade: true,
	})
	require.NoError(t, err)

	m.priceAndMaybeClose(created, decimal.NewFromInt(50500))

	got, err := s.GetPosition(created.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PositionOpen, got.Status)
}

func TestStartStopIsIdempotent(t *testing.T) {
	m := New(newTestStore(t), exchange.New("", ""), nil)
	m.Start()
	m.Start()
	m.Stop()
	m.Stop()
}

func TestTradeDurationMinutesMeasuresElapsedTime(t *testing.T) {
	opened := time.Now().Add(-90 * time.Second)
	d := tradeDurationMinutes(opened)
	require.True(t, d.GreaterThanOrEqual(decimal.NewFromFloat(1.4)))
	require.True(t, d.LessThan(decimal.NewFromInt(2)))
}

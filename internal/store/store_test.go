package store

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetTradingSettingsCreatesDefaults(t *testing.T) {
	s := newTestStore(t)

	settings, err := s.GetTradingSettings("user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", settings.UserID)
	require.True(t, settings.USDTPerTrade.Equal(decimal.NewFromInt(100)))
	require.Equal(t, 10, settings.MaxPositions)

	again, err := s.GetTradingSettings("user-1")
	require.NoError(t, err)
	require.True(t, again.USDTPerTrade.Equal(settings.USDTPerTrade))
}

func TestTryOpenPositionEnforcesCapAndUniqueness(t *testing.T) {
	s := newTestStore(t)

	p := domain.Position{
		UserID:      "user-1",
		Symbol:      "BTCUSDT",
		Direction:   domain.DirUp,
		TradingMode: domain.ModeSpot,
		EntryPrice:  decimal.NewFromInt(50000),
		Quantity:    decimal.NewFromFloat(0.01),
	}

	created, err := s.TryOpenPosition("user-1", domain.ModeSpot, 1, p)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	_, err = s.TryOpenPosition("user-1", domain.ModeSpot, 5, p)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindCapReached))

	p2 := p
	p2.Symbol = "ETHUSDT"
	_, err = s.TryOpenPosition("user-1", domain.ModeSpot, 1, p2)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindCapReached))
}

func TestClosePositionIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	p := domain.Position{
		UserID:      "user-1",
		Symbol:      "BTCUSDT",
		Direction:   domain.DirUp,
		TradingMode: domain.ModeSpot,
		EntryPrice:  decimal.NewFromInt(50000),
		Quantity:    decimal.NewFromFloat(0.01),
	}
	created, err := s.CreatePosition(p)
	require.NoError(t, err)

	err = s.ClosePosition(created.ID, decimal.NewFromInt(51000), decimal.NewFromInt(10))
	require.NoError(t, err)

	err = s.ClosePosition(created.ID, decimal.NewFromInt(51000), decimal.NewFromInt(10))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindAlreadyClosed))
}

func TestGetOpenPositionsFilters(t *testing.T) {
	s := newTestStore(t)

	spot := domain.Position{UserID: "u1", Symbol: "BTCUSDT", Direction: domain.DirUp, TradingMode: domain.ModeSpot, EntryPrice: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1)}
	lev := domain.Position{UserID: "u1", Symbol: "ETHUSDT", Direction: domain.DirLong, TradingMode: domain.ModeLeverage, EntryPrice: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1)}

	_, err := s.CreatePosition(spot)
	require.NoError(t, err)
	_, err = s.CreatePosition(lev)
	require.NoError(t, err)

	spotMode := domain.ModeSpot
	positions, err := s.GetOpenPositions(PositionFilter{UserID: "u1", TradingMode: &spotMode})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, "BTCUSDT", positions[0].Symbol)
}

func TestCreatePositionRejectsIncompatibleDirection(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreatePosition(domain.Position{
		UserID: "u1", Symbol: "BTCUSDT", Direction: domain.DirLong, TradingMode: domain.ModeSpot,
		EntryPrice: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindValidation))
}

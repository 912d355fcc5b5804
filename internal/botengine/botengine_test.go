package botengine

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/errs"
	"github.com/coinforge/tradeengine/internal/store"
	"github.com/coinforge/tradeengine/internal/strategy"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEngine(t *testing.T, mode domain.TradingMode) *Engine {
	t.Helper()
	return New(mode, newTestStore(t), nil, nil, nil)
}

func TestStartFailsWithAlreadyRunningWhenNotStopped(t *testing.T) {
	e := newTestEngine(t, domain.ModeSpot)
	e.state = StateRunning

	err := e.Start("u1")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindAlreadyRunning))
}

func TestStartFailsWithCredentialsMissingForUnauthenticatedLiveMode(t *testing.T) {
	e := newTestEngine(t, domain.ModeLeverage)
	settings, err := e.store.GetTradingSettings("u1")
	require.NoError(t, err)
	settings.LeveragePaperTrading = false
	require.NoError(t, e.store.UpdateTradingSettings(settings))

	err = e.Start("u1")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindCredentialsMissing))
	require.Equal(t, StateStopped, e.State())
}

func TestStopIsNoOpWhenAlreadyStopped(t *testing.T) {
	e := newTestEngine(t, domain.ModeSpot)
	require.Equal(t, StateStopped, e.State())
	e.Stop()
	require.Equal(t, StateStopped, e.State())
}

func TestOrderByPriorityOrdersByStrategyRank(t *testing.T) {
	signals := []strategy.Signal{
		{Strategy: domain.StrategyPullback},
		{Strategy: domain.StrategyBreakout},
		{Strategy: domain.StrategyTrendFollowing},
		{Strategy: domain.StrategyMeanReversion},
	}
	ordered := orderByPriority(signals)
	require.Equal(t, []domain.StrategyName{
		domain.StrategyTrendFollowing, domain.StrategyMeanReversion,
		domain.StrategyBreakout, domain.StrategyPullback,
	}, []domain.StrategyName{ordered[0].Strategy, ordered[1].Strategy, ordered[2].Strategy, ordered[3].Strategy})
}

func TestAdmitAndExecuteOpensPaperPositionWithoutExchangeCall(t *testing.T) {
	e := newTestEngine(t, domain.ModeSpot)
	e.userID = "u1"
	settings, err := e.store.GetTradingSettings("u1")
	require.NoError(t, err)
	settings.SpotPaperTrading = true
	settings.MinConfidence = 50
	settings.MaxPositions = 5

	sig := strategy.Signal{
		Symbol: "BTCUSDT", Direction: domain.DirUp, Confidence: decimal.NewFromInt(80),
		Strategy: domain.StrategyMeanReversion, EntryPrice: decimal.NewFromInt(50000),
		StopLoss: decimal.NewFromInt(48500), TakeProfit: decimal.NewFromInt(53000),
	}

	ok := e.admitAndExecute(sig, settings)
	require.True(t, ok)

	positions, err := e.store.GetOpenPositions(store.PositionFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.True(t, positions[0].IsPaperTrade)
	require.Equal(t, "BTCUSDT", positions[0].Symbol)
}

func TestAdmitAndExecuteRejectsBelowMinConfidence(t *testing.T) {
	e := newTestEngine(t, domain.ModeSpot)
	e.userID = "u1"
	settings := domain.DefaultTradingSettings("u1")
	settings.SpotPaperTrading = true
	settings.MinConfidence = 90

	sig := strategy.Signal{
		Symbol: "BTCUSDT", Direction: domain.DirUp, Confidence: decimal.NewFromInt(60),
		EntryPrice: decimal.NewFromInt(50000), StopLoss: decimal.NewFromInt(48000), TakeProfit: decimal.NewFromInt(52000),
	}
	require.False(t, e.admitAndExecute(sig, settings))

	logs, err := e.store.GetBotLogs("u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, domain.LogInfo, logs[0].Level)
	require.Equal(t, "BTCUSDT", logs[0].Symbol)
}

func TestAdmitAndExecuteRejectsCapReachedWithBotLog(t *testing.T) {
	e := newTestEngine(t, domain.ModeSpot)
	e.userID = "u1"
	settings := domain.DefaultTradingSettings("u1")
	settings.SpotPaperTrading = true
	settings.MinConfidence = 50
	settings.MaxPositions = 0 // every admission is over cap

	sig := strategy.Signal{
		Symbol: "BTCUSDT", Direction: domain.DirUp, Confidence: decimal.NewFromInt(80),
		Strategy: domain.StrategyMeanReversion, EntryPrice: decimal.NewFromInt(50000),
		StopLoss: decimal.NewFromInt(48500), TakeProfit: decimal.NewFromInt(53000),
	}
	require.False(t, e.admitAndExecute(sig, settings))

	logs, err := e.store.GetBotLogs("u1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, domain.LogInfo, logs[0].Level)
}

func TestRecordFailureDegradesAfterThreshold(t *testing.T) {
	e := newTestEngine(t, domain.ModeSpot)
	e.state = StateRunning

	for i := 0; i < degradedThreshold-1; i++ {
		e.recordFailure()
		require.Equal(t, StateRunning, e.State())
	}
	e.recordFailure()
	require.Equal(t, StateDegraded, e.State())

	e.recordSuccess()
	require.Equal(t, StateRunning, e.State())
}

package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/strategy"
)

func TestResponseValidRejectsUnknownAction(t *testing.T) {
	r := Response{Action: "MAYBE", Confidence: decimal.NewFromInt(50), Risk: RiskLow}
	require.False(t, r.valid())
}

func TestResponseToSignalDiscardsSellOnSpot(t *testing.T) {
	r := Response{Action: ActionSell, Confidence: decimal.NewFromInt(80), Risk: RiskMedium}
	_, ok := r.ToSignal("BTCUSDT", domain.ModeSpot, decimal.NewFromInt(100))
	require.False(t, ok)
}

func TestResponseToSignalMapsBuyToUpForSpot(t *testing.T) {
	r := Response{Action: ActionBuy, Confidence: decimal.NewFromInt(80), Risk: RiskLow}
	sig, ok := r.ToSignal("BTCUSDT", domain.ModeSpot, decimal.NewFromInt(100))
	require.True(t, ok)
	require.Equal(t, domain.DirUp, sig.Direction)
}

func TestCallReturnsErrorOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	client.httpClient.Timeout = 10 * time.Millisecond

	_, err := client.Call(context.Background(), Request{Market: MarketSnapshot{Symbol: "BTCUSDT"}})
	require.Error(t, err)
}

func TestCallStripsMarkdownCodeBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := Response{Action: ActionBuy, Confidence: decimal.NewFromInt(70), Risk: RiskLow, Reasoning: "test"}
		raw, _ := json.Marshal(resp)
		w.Write([]byte("```json\n" + string(raw) + "\n```"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "")
	resp, err := client.Call(context.Background(), Request{Market: MarketSnapshot{Symbol: "BTCUSDT"}})
	require.NoError(t, err)
	require.Equal(t, ActionBuy, resp.Action)
}

func TestFallbackReturnsNoSignalWhenNoStrategyEnabled(t *testing.T) {
	snap := strategy.Snapshot{
		Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000),
		RSI: decimal.NewFromInt(55), HasRSI: true,
		EMAFast: decimal.NewFromInt(51000), EMASlow: decimal.NewFromInt(49000), HasEMA: true,
	}
	settings := domain.DefaultTradingSettings("u1")
	settings.MinConfidence = 0
	toggles := domain.StrategyToggles{TrendFollowing: false, MeanReversion: false}
	_, ok := Fallback(snap, settings, domain.ModeLeverage, toggles)
	require.False(t, ok)
}

func TestAdviseUsesFallbackWhenClientUnconfigured(t *testing.T) {
	snap := strategy.Snapshot{Symbol: "BTCUSDT", Price: decimal.NewFromInt(50000)}
	settings := domain.DefaultTradingSettings("u1")
	toggles := domain.StrategyToggles{}
	sig, ok := Advise(context.Background(), nil, Request{}, snap, settings, domain.ModeLeverage, toggles)
	require.False(t, ok)
	require.Empty(t, sig.Symbol)
}

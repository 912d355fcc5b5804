// Package advisor calls an external AI advisory service for a per-symbol
// trade recommendation, with a hard timeout and a deterministic
// rule-based fallback so a flaky or slow advisor never stalls or aborts
// a scan cycle.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/strategy"
)

const callTimeout = 15 * time.Second

// Action is the advisor's recommended action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Risk is the advisor's self-reported risk level for the recommendation.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// MarketSnapshot is the market half of the advisor request.
type MarketSnapshot struct {
	Symbol        string          `json:"symbol"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	PriceChange24h decimal.Decimal `json:"priceChange24h"`
	Volume24h     decimal.Decimal `json:"volume24h"`
	High24h       decimal.Decimal `json:"high24h"`
	Low24h        decimal.Decimal `json:"low24h"`
	Timestamp     time.Time       `json:"timestamp"`
}

// TechnicalSnapshot is the indicator half of the advisor request.
type TechnicalSnapshot struct {
	RSI        decimal.Decimal `json:"rsi"`
	EMAFast    decimal.Decimal `json:"emaFast"`
	EMASlow    decimal.Decimal `json:"emaSlow"`
	MACD       decimal.Decimal `json:"macd"`
	MACDSignal decimal.Decimal `json:"macdSignal"`
	ADX        decimal.Decimal `json:"adx"`
	Support    decimal.Decimal `json:"support"`
	Resistance decimal.Decimal `json:"resistance"`
}

// Request bundles everything the advisor needs to recommend a trade.
type Request struct {
	Market      MarketSnapshot
	Technical   TechnicalSnapshot
	TradingMode domain.TradingMode
}

// Response is the advisor's structured recommendation, parsed by named
// field. Entry/StopLoss/TakeProfit are optional: HOLD carries none.
type Response struct {
	Action     Action           `json:"action"`
	Confidence decimal.Decimal  `json:"confidence"`
	Risk       Risk             `json:"risk"`
	Entry      *decimal.Decimal `json:"entry,omitempty"`
	StopLoss   *decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit *decimal.Decimal `json:"takeProfit,omitempty"`
	Reasoning  string           `json:"reasoning"`
}

func (r Response) valid() bool {
	switch r.Action {
	case ActionBuy, ActionSell, ActionHold:
	default:
		return false
	}
	if r.Confidence.IsNegative() || r.Confidence.GreaterThan(decimal.NewFromInt(100)) {
		return false
	}
	switch r.Risk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return false
	}
	return true
}

// ToSignal converts a valid, actionable response into a strategy.Signal.
// HOLD (or a spot-mode SELL) yields ok=false.
func (r Response) ToSignal(symbol string, mode domain.TradingMode, currentPrice decimal.Decimal) (strategy.Signal, bool) {
	var direction domain.Direction
	switch r.Action {
	case ActionBuy:
		direction = domain.DirLong
		if mode == domain.ModeSpot {
			direction = domain.DirUp
		}
	case ActionSell:
		if mode == domain.ModeSpot {
			return strategy.Signal{}, false
		}
		direction = domain.DirShort
	default:
		return strategy.Signal{}, false
	}

	entry := currentPrice
	if r.Entry != nil {
		entry = *r.Entry
	}
	sig := strategy.Signal{
		Symbol:     symbol,
		Direction:  direction,
		Confidence: r.Confidence,
		Strategy:   domain.StrategyAIAdvisor,
		EntryPrice: entry,
	}
	if r.StopLoss != nil {
		sig.StopLoss = *r.StopLoss
	}
	if r.TakeProfit != nil {
		sig.TakeProfit = *r.TakeProfit
	}
	return sig, true
}

// Client calls an external advisory HTTP endpoint and enforces the hard
// timeout; construct with NewClient.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: callTimeout},
	}
}

// Configured reports whether the client has an endpoint to call.
func (c *Client) Configured() bool { return c.endpoint != "" }

// Call issues the advisory request. Any failure — timeout, transport
// error, malformed JSON — returns an error; the caller is expected to
// fall back to Fallback rather than abort the cycle.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{
		"market":      req.Market,
		"technical":   req.Technical,
		"tradingMode": req.TradingMode,
	})
	if err != nil {
		return Response{}, fmt.Errorf("advisor: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("advisor: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("advisor: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("advisor: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("advisor: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var out Response
	if err := json.Unmarshal(stripCodeBlock(body), &out); err != nil {
		return Response{}, fmt.Errorf("advisor: malformed response: %w", err)
	}
	if !out.valid() {
		return Response{}, fmt.Errorf("advisor: response failed validation")
	}
	return out, nil
}

var codeBlockPattern = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

func stripCodeBlock(body []byte) []byte {
	trimmed := strings.TrimSpace(string(body))
	if m := codeBlockPattern.FindStringSubmatch(trimmed); len(m) > 1 {
		return []byte(m[1])
	}
	return []byte(trimmed)
}

// Fallback produces a deterministic, conservative signal by running the
// full strategy evaluator and keeping only the highest-confidence
// result. It never fails and never blocks — it's pure computation over
// an already-built snapshot.
func Fallback(snap strategy.Snapshot, settings domain.TradingSettings, mode domain.TradingMode, toggles domain.StrategyToggles) (strategy.Signal, bool) {
	signals := strategy.Evaluate(snap, settings, mode, toggles)
	if len(signals) == 0 {
		return strategy.Signal{}, false
	}
	best := signals[0]
	for _, s := range signals[1:] {
		if s.Confidence.GreaterThan(best.Confidence) {
			best = s
		}
	}
	return best, true
}

// Advise runs the full advisor contract: call the client, and on any
// failure (timeout, transport error, malformed/invalid response) fall
// back to the deterministic composite. Never returns an error.
func Advise(ctx context.Context, client *Client, req Request, snap strategy.Snapshot, settings domain.TradingSettings, mode domain.TradingMode, toggles domain.StrategyToggles) (strategy.Signal, bool) {
	if client != nil && client.Configured() {
		resp, err := client.Call(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("symbol", req.Market.Symbol).Msg("advisor call failed, using fallback")
		} else if sig, ok := resp.ToSignal(req.Market.Symbol, mode, req.Market.CurrentPrice); ok {
			return sig, true
		} else {
			return strategy.Signal{}, false // explicit HOLD or discarded SELL-on-spot
		}
	}
	return Fallback(snap, settings, mode, toggles)
}

// Package domain holds the trading engine's core entities: users, settings,
// positions, trades, logs, and the candle/indicator shapes that flow between
// the market data service, the strategy evaluator, and the bot engines.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingMode distinguishes the spot (long-only) bot from the leverage
// (long/short derivatives) bot. The two never share a position namespace.
type TradingMode string

const (
	ModeSpot     TradingMode = "spot"
	ModeLeverage TradingMode = "leverage"
)

func (m TradingMode) Valid() bool {
	return m == ModeSpot || m == ModeLeverage
}

// Direction is a tagged variant, not a bare string: UP only ever appears on
// spot positions, LONG/SHORT only ever appear on leverage positions. This
// makes the spot-vs-leverage split visible at the type level instead of
// relying on callers to keep a string and a trading mode in sync.
type Direction string

const (
	DirUp    Direction = "UP"
	DirLong  Direction = "LONG"
	DirShort Direction = "SHORT"
)

// CompatibleWith reports whether this direction may appear on a position
// with the given trading mode (spec §3: "direction is consistent with
// tradingMode; UP only with spot; LONG/SHORT only with leverage").
func (d Direction) CompatibleWith(mode TradingMode) bool {
	switch mode {
	case ModeSpot:
		return d == DirUp
	case ModeLeverage:
		return d == DirLong || d == DirShort
	default:
		return false
	}
}

// Sign returns +1 for directions that profit on a rising price and -1 for
// directions that profit on a falling price. Used by the single P&L
// function shared by the bot engine and the position monitor.
func (d Direction) Sign() int64 {
	if d == DirShort {
		return -1
	}
	return 1
}

// PositionStatus tracks the lifecycle of a Position row.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// StrategyName identifies which strategy produced a signal or a position.
type StrategyName string

const (
	StrategyTrendFollowing StrategyName = "Trend Following"
	StrategyMeanReversion  StrategyName = "Mean Reversion"
	StrategyBreakout       StrategyName = "Breakout"
	StrategyPullback       StrategyName = "Pullback"
	StrategyAIAdvisor      StrategyName = "AI Advisor"
)

// Environment is the deployment target for exchange credentials. Only
// mainnet is modeled per spec §3.
type Environment string

const (
	EnvironmentMainnet Environment = "mainnet"
)

// Timeframe is the candle interval a bot scans on.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
)

func (t Timeframe) Valid() bool {
	switch t {
	case Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h:
		return true
	default:
		return false
	}
}

// BotLogLevel enumerates the level of a BotLog entry.
type BotLogLevel string

const (
	LogInfo     BotLogLevel = "INFO"
	LogAnalysis BotLogLevel = "ANALYSIS"
	LogSignal   BotLogLevel = "SIGNAL"
	LogTrade    BotLogLevel = "TRADE"
	LogOrder    BotLogLevel = "ORDER"
	LogMonitor  BotLogLevel = "MONITOR"
	LogScan     BotLogLevel = "SCAN"
	LogSuccess  BotLogLevel = "SUCCESS"
	LogWarn     BotLogLevel = "WARN"
	LogError    BotLogLevel = "ERROR"
	LogConfig   BotLogLevel = "CONFIG"
	LogAI       BotLogLevel = "AI"
)

// StrategyToggles is the per-strategy enable/disable map carried on
// TradingSettings, once per bot (spot and leverage each have their own).
type StrategyToggles struct {
	TrendFollowing bool `json:"trendFollowing"`
	MeanReversion  bool `json:"meanReversion"`
	BreakoutTrading bool `json:"breakoutTrading"`
	PullbackTrading bool `json:"pullbackTrading"`
}

// Enabled reports whether the named strategy is toggled on.
func (s StrategyToggles) Enabled(name StrategyName) bool {
	switch name {
	case StrategyTrendFollowing:
		return s.TrendFollowing
	case StrategyMeanReversion:
		return s.MeanReversion
	case StrategyBreakout:
		return s.BreakoutTrading
	case StrategyPullback:
		return s.PullbackTrading
	default:
		return false
	}
}

// IndicatorParams bundles the period/threshold settings the indicator
// engine and strategy evaluator read out of TradingSettings.
type IndicatorParams struct {
	RSIPeriod int
	RSILow    decimal.Decimal
	RSIHigh   decimal.Decimal
	EMAFast   int
	EMASlow   int
	MACDSignal int
	ADXPeriod int
}

// TradingSettings is the single per-user configuration row read at the
// start of every scan cycle (spec §3/§4.7 step 1).
type TradingSettings struct {
	UserID string

	USDTPerTrade decimal.Decimal
	RiskPerTrade decimal.Decimal
	StopLossPct  decimal.Decimal
	TakeProfitPct decimal.Decimal
	MaxPositions int

	ExchangeAPIKey    string
	ExchangeAPISecret string
	Environment       Environment

	SpotPaperTrading     bool
	LeveragePaperTrading bool

	Indicators IndicatorParams

	SpotStrategies     StrategyToggles
	LeverageStrategies StrategyToggles

	SpotAITrading     bool
	LeverageAITrading bool

	// RestingStopOrders records the operator's choice about native
	// exchange stop orders at entry (defaults to false). It is stored and
	// loaded but no code path reads it: no stop order is placed at entry,
	// and live SL/TP is always enforced at monitor time.
	RestingStopOrders bool

	Timeframe     Timeframe
	MinConfidence int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Valid checks the settings invariants from spec §3.
func (s TradingSettings) Valid() error {
	if s.Indicators.EMAFast >= s.Indicators.EMASlow {
		return ErrInvalidSettings("emaFast must be < emaSlow")
	}
	if s.Indicators.RSILow.GreaterThanOrEqual(s.Indicators.RSIHigh) {
		return ErrInvalidSettings("rsiLow must be < rsiHigh")
	}
	if s.MinConfidence < 0 || s.MinConfidence > 100 {
		return ErrInvalidSettings("minConfidence must be in [0,100]")
	}
	return nil
}

// ErrInvalidSettings is a plain string-based error for the settings
// invariant check above.
type ErrInvalidSettings string

func (e ErrInvalidSettings) Error() string { return string(e) }

// DefaultTradingSettings returns the settings created lazily on first read
// for a user who has never configured the bot (spec §4.1 getTradingSettings).
func DefaultTradingSettings(userID string) TradingSettings {
	now := time.Now().UTC()
	return TradingSettings{
		UserID:        userID,
		USDTPerTrade:  decimal.NewFromInt(100),
		RiskPerTrade:  decimal.NewFromFloat(0.02),
		StopLossPct:   decimal.NewFromInt(3),
		TakeProfitPct: decimal.NewFromInt(6),
		MaxPositions:  10,
		Environment:   EnvironmentMainnet,
		Indicators: IndicatorParams{
			RSIPeriod:  14,
			RSILow:     decimal.NewFromInt(30),
			RSIHigh:    decimal.NewFromInt(70),
			EMAFast:    12,
			EMASlow:    26,
			MACDSignal: 9,
			ADXPeriod:  14,
		},
		SpotStrategies:     StrategyToggles{MeanReversion: true},
		LeverageStrategies: StrategyToggles{TrendFollowing: true},
		Timeframe:          Timeframe15m,
		MinConfidence:      70,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Position is an open or closed trade position (spec §3).
type Position struct {
	ID           string
	UserID       string
	Symbol       string
	Direction    Direction
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	StopLoss     *decimal.Decimal
	TakeProfit   *decimal.Decimal
	Quantity     decimal.Decimal
	PnL          decimal.Decimal
	Status       PositionStatus
	TradingMode  TradingMode
	Strategy     StrategyName
	IsPaperTrade bool
	ExchangeOrderID string
	CreatedAt    time.Time
	ClosedAt     *time.Time
}

// Trade is an immutable record of a completed round-trip (spec §3).
type Trade struct {
	ID           string
	UserID       string
	Symbol       string
	Direction    Direction
	EntryPrice   decimal.Decimal
	ExitPrice    decimal.Decimal
	Quantity     decimal.Decimal
	PnL          decimal.Decimal
	DurationMins decimal.Decimal
	Strategy     StrategyName
	TradingMode  TradingMode
	IsPaperTrade bool
	EntryTime    time.Time
	ExitTime     time.Time
}

// BotLog is an append-only structured event (spec §3).
type BotLog struct {
	ID        uint
	UserID    string
	Level     BotLogLevel
	Message   string
	Symbol    string
	Data      string // JSON-encoded payload; kept as text for portability
	CreatedAt time.Time
}

// SystemError categorizes a failure the operator must act on (spec §3).
type SystemError struct {
	ID        uint
	UserID    string
	Title     string
	Source    string
	ErrorCode string
	Message   string
	Resolved  bool
	CreatedAt time.Time
}

// MarketData is the advisory ticker cache (spec §3).
type MarketData struct {
	Symbol        string
	Price         decimal.Decimal
	Volume        decimal.Decimal
	Change24h     decimal.Decimal
	Timestamp     time.Time
}

// Candle is a single OHLCV bucket. Transient: never persisted
// individually, held only within a scan cycle (spec §3).
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Valid reports whether all six fields are finite, per spec §4.3's candle
// validation rule.
func (c Candle) Valid() bool {
	for _, d := range []decimal.Decimal{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if d.Exponent() < -40 { // defensive: decimal never produces NaN/Inf, guard against corrupt input
			return false
		}
	}
	return !c.Timestamp.IsZero()
}

// User is the account owner. Immutable after creation except password
// rotation (spec §3).
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinforge/tradeengine/internal/domain"
)

// Gorm row models. Kept distinct from internal/domain's wire/business
// types so the storage schema can evolve (additive columns only, per the
// sqlite AutoMigrate discipline) without dragging gorm tags into the rest
// of the codebase. Decimal fields are stored as TEXT holding canonical
// decimal strings; shopspring/decimal implements sql.Scanner/Valuer so
// gorm reads/writes them transparently.

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

type tradingSettingsRow struct {
	UserID string `gorm:"primaryKey"`

	USDTPerTrade  decimal.Decimal `gorm:"type:text"`
	RiskPerTrade  decimal.Decimal `gorm:"type:text"`
	StopLossPct   decimal.Decimal `gorm:"type:text"`
	TakeProfitPct decimal.Decimal `gorm:"type:text"`
	MaxPositions  int

	ExchangeAPIKey    string
	ExchangeAPISecret string
	Environment       string

	SpotPaperTrading     bool
	LeveragePaperTrading bool

	RSIPeriod  int
	RSILow     decimal.Decimal `gorm:"type:text"`
	RSIHigh    decimal.Decimal `gorm:"type:text"`
	EMAFast    int
	EMASlow    int
	MACDSignal int
	ADXPeriod  int

	SpotTrendFollowing  bool
	SpotMeanReversion   bool
	SpotBreakout        bool
	SpotPullback        bool
	LeverageTrendFollowing bool
	LeverageMeanReversion  bool
	LeverageBreakout       bool
	LeveragePullback       bool

	SpotAITrading     bool
	LeverageAITrading bool
	RestingStopOrders bool

	Timeframe     string
	MinConfidence int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (tradingSettingsRow) TableName() string { return "trading_settings" }

func (r tradingSettingsRow) toDomain() domain.TradingSettings {
	return domain.TradingSettings{
		UserID:            r.UserID,
		USDTPerTrade:      r.USDTPerTrade,
		RiskPerTrade:      r.RiskPerTrade,
		StopLossPct:       r.StopLossPct,
		TakeProfitPct:     r.TakeProfitPct,
		MaxPositions:      r.MaxPositions,
		ExchangeAPIKey:    r.ExchangeAPIKey,
		ExchangeAPISecret: r.ExchangeAPISecret,
		Environment:       domain.Environment(r.Environment),
		SpotPaperTrading:     r.SpotPaperTrading,
		LeveragePaperTrading: r.LeveragePaperTrading,
		Indicators: domain.IndicatorParams{
			RSIPeriod:  r.RSIPeriod,
			RSILow:     r.RSILow,
			RSIHigh:    r.RSIHigh,
			EMAFast:    r.EMAFast,
			EMASlow:    r.EMASlow,
			MACDSignal: r.MACDSignal,
			ADXPeriod:  r.ADXPeriod,
		},
		SpotStrategies: domain.StrategyToggles{
			TrendFollowing:  r.SpotTrendFollowing,
			MeanReversion:   r.SpotMeanReversion,
			BreakoutTrading: r.SpotBreakout,
			PullbackTrading: r.SpotPullback,
		},
		LeverageStrategies: domain.StrategyToggles{
			TrendFollowing:  r.LeverageTrendFollowing,
			MeanReversion:   r.LeverageMeanReversion,
			BreakoutTrading: r.LeverageBreakout,
			PullbackTrading: r.LeveragePullback,
		},
		SpotAITrading:     r.SpotAITrading,
		LeverageAITrading: r.LeverageAITrading,
		RestingStopOrders: r.RestingStopOrders,
		Timeframe:         domain.Timeframe(r.Timeframe),
		MinConfidence:     r.MinConfidence,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func settingsRowFromDomain(s domain.TradingSettings) tradingSettingsRow {
	return tradingSettingsRow{
		UserID:            s.UserID,
		USDTPerTrade:      s.USDTPerTrade,
		RiskPerTrade:      s.RiskPerTrade,
		StopLossPct:       s.StopLossPct,
		TakeProfitPct:     s.TakeProfitPct,
		MaxPositions:      s.MaxPositions,
		ExchangeAPIKey:    s.ExchangeAPIKey,
		ExchangeAPISecret: s.ExchangeAPISecret,
		Environment:       string(s.Environment),
		SpotPaperTrading:     s.SpotPaperTrading,
		LeveragePaperTrading: s.LeveragePaperTrading,
		RSIPeriod:  s.Indicators.RSIPeriod,
		RSILow:     s.Indicators.RSILow,
		RSIHigh:    s.Indicators.RSIHigh,
		EMAFast:    s.Indicators.EMAFast,
		EMASlow:    s.Indicators.EMASlow,
		MACDSignal: s.Indicators.MACDSignal,
		ADXPeriod:  s.Indicators.ADXPeriod,
		SpotTrendFollowing:  s.SpotStrategies.TrendFollowing,
		SpotMeanReversion:   s.SpotStrategies.MeanReversion,
		SpotBreakout:        s.SpotStrategies.BreakoutTrading,
		SpotPullback:        s.SpotStrategies.PullbackTrading,
		LeverageTrendFollowing: s.LeverageStrategies.TrendFollowing,
		LeverageMeanReversion:  s.LeverageStrategies.MeanReversion,
		LeverageBreakout:       s.LeverageStrategies.BreakoutTrading,
		LeveragePullback:       s.LeverageStrategies.PullbackTrading,
		SpotAITrading:     s.SpotAITrading,
		LeverageAITrading: s.LeverageAITrading,
		RestingStopOrders: s.RestingStopOrders,
		Timeframe:         string(s.Timeframe),
		MinConfidence:     s.MinConfidence,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

type positionRow struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index"`
	Symbol          string `gorm:"index"`
	Direction       string
	EntryPrice      decimal.Decimal `gorm:"type:text"`
	CurrentPrice    decimal.Decimal `gorm:"type:text"`
	StopLoss        *decimal.Decimal `gorm:"type:text"`
	TakeProfit      *decimal.Decimal `gorm:"type:text"`
	Quantity        decimal.Decimal `gorm:"type:text"`
	PnL             decimal.Decimal `gorm:"type:text"`
	Status          string          `gorm:"index"`
	TradingMode     string          `gorm:"index"`
	Strategy        string
	IsPaperTrade    bool
	ExchangeOrderID string
	CreatedAt       time.Time
	ClosedAt        *time.Time
}

func (positionRow) TableName() string { return "positions" }

func (r positionRow) toDomain() domain.Position {
	return domain.Position{
		ID:              r.ID,
		UserID:          r.UserID,
		Symbol:          r.Symbol,
		Direction:       domain.Direction(r.Direction),
		EntryPrice:      r.EntryPrice,
		CurrentPrice:    r.CurrentPrice,
		StopLoss:        r.StopLoss,
		TakeProfit:      r.TakeProfit,
		Quantity:        r.Quantity,
		PnL:             r.PnL,
		Status:          domain.PositionStatus(r.Status),
		TradingMode:     domain.TradingMode(r.TradingMode),
		Strategy:        domain.StrategyName(r.Strategy),
		IsPaperTrade:    r.IsPaperTrade,
		ExchangeOrderID: r.ExchangeOrderID,
		CreatedAt:       r.CreatedAt,
		ClosedAt:        r.ClosedAt,
	}
}

func positionRowFromDomain(p domain.Position) positionRow {
	return positionRow{
		ID:              p.ID,
		UserID:          p.UserID,
		Symbol:          p.Symbol,
		Direction:       string(p.Direction),
		EntryPrice:      p.EntryPrice,
		CurrentPrice:    p.CurrentPrice,
		StopLoss:        p.StopLoss,
		TakeProfit:      p.TakeProfit,
		Quantity:        p.Quantity,
		PnL:             p.PnL,
		Status:          string(p.Status),
		TradingMode:     string(p.TradingMode),
		Strategy:        string(p.Strategy),
		IsPaperTrade:    p.IsPaperTrade,
		ExchangeOrderID: p.ExchangeOrderID,
		CreatedAt:       p.CreatedAt,
		ClosedAt:        p.ClosedAt,
	}
}

type tradeRow struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index"`
	Symbol       string `gorm:"index"`
	Direction    string
	EntryPrice   decimal.Decimal `gorm:"type:text"`
	ExitPrice    decimal.Decimal `gorm:"type:text"`
	Quantity     decimal.Decimal `gorm:"type:text"`
	PnL          decimal.Decimal `gorm:"type:text"`
	DurationMins decimal.Decimal `gorm:"type:text"`
	Strategy     string
	TradingMode  string `gorm:"index"`
	IsPaperTrade bool
	EntryTime    time.Time
	ExitTime     time.Time `gorm:"index"`
}

func (tradeRow) TableName() string { return "trades" }

func (r tradeRow) toDomain() domain.Trade {
	return domain.Trade{
		ID:           r.ID,
		UserID:       r.UserID,
		Symbol:       r.Symbol,
		Direction:    domain.Direction(r.Direction),
		EntryPrice:   r.EntryPrice,
		ExitPrice:    r.ExitPrice,
		Quantity:     r.Quantity,
		PnL:          r.PnL,
		DurationMins: r.DurationMins,
		Strategy:     domain.StrategyName(r.Strategy),
		TradingMode:  domain.TradingMode(r.TradingMode),
		IsPaperTrade: r.IsPaperTrade,
		EntryTime:    r.EntryTime,
		ExitTime:     r.ExitTime,
	}
}

func tradeRowFromDomain(t domain.Trade) tradeRow {
	return tradeRow{
		ID:           t.ID,
		UserID:       t.UserID,
		Symbol:       t.Symbol,
		Direction:    string(t.Direction),
		EntryPrice:   t.EntryPrice,
		ExitPrice:    t.ExitPrice,
		Quantity:     t.Quantity,
		PnL:          t.PnL,
		DurationMins: t.DurationMins,
		Strategy:     string(t.Strategy),
		TradingMode:  string(t.TradingMode),
		IsPaperTrade: t.IsPaperTrade,
		EntryTime:    t.EntryTime,
		ExitTime:     t.ExitTime,
	}
}

type botLogRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"index"`
	Level     string
	Message   string
	Symbol    string
	Data      string
	CreatedAt time.Time `gorm:"index"`
}

func (botLogRow) TableName() string { return "bot_logs" }

func (r botLogRow) toDomain() domain.BotLog {
	return domain.BotLog{
		ID:        r.ID,
		UserID:    r.UserID,
		Level:     domain.BotLogLevel(r.Level),
		Message:   r.Message,
		Symbol:    r.Symbol,
		Data:      r.Data,
		CreatedAt: r.CreatedAt,
	}
}

type systemErrorRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"index"`
	Title     string
	Source    string
	ErrorCode string
	Message   string
	Resolved  bool `gorm:"index"`
	CreatedAt time.Time
}

func (systemErrorRow) TableName() string { return "system_errors" }

func (r systemErrorRow) toDomain() domain.SystemError {
	return domain.SystemError{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Source:    r.Source,
		ErrorCode: r.ErrorCode,
		Message:   r.Message,
		Resolved:  r.Resolved,
		CreatedAt: r.CreatedAt,
	}
}

type marketDataRow struct {
	Symbol    string `gorm:"primaryKey"`
	Price     decimal.Decimal `gorm:"type:text"`
	Volume    decimal.Decimal `gorm:"type:text"`
	Change24h decimal.Decimal `gorm:"type:text"`
	Timestamp time.Time
}

func (marketDataRow) TableName() string { return "market_data" }

func (r marketDataRow) toDomain() domain.MarketData {
	return domain.MarketData{
		Symbol:    r.Symbol,
		Price:     r.Price,
		Volume:    r.Volume,
		Change24h: r.Change24h,
		Timestamp: r.Timestamp,
	}
}

// Package store is the sole persistence layer. Every other component
// reaches the database through a *Store method; no package holds a raw
// *gorm.DB of its own.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/errs"
)

type Store struct {
	db *gorm.DB
}

// New opens (creating if absent) the sqlite file at dbPath and migrates
// the schema additively.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errs.New(errs.KindStorageError, "store.New", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errs.New(errs.KindStorageError, "store.New", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.New(errs.KindStorageError, "store.New", err)
	}
	// sqlite allows only one writer at a time; serialize through a single
	// connection rather than fight lock-contention errors under the gorm
	// connection pool.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&userRow{}, &tradingSettingsRow{}, &positionRow{}, &tradeRow{},
		&botLogRow{}, &systemErrorRow{}, &marketDataRow{},
	); err != nil {
		return nil, errs.New(errs.KindStorageError, "store.New", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---- Users ----

func (s *Store) GetUser(id string) (domain.User, error) {
	var row userRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		return domain.User{}, wrapNotFound("store.GetUser", err)
	}
	return domain.User{ID: row.ID, Username: row.Username, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) GetUserByUsername(username string) (domain.User, error) {
	var row userRow
	if err := s.db.First(&row, "username = ?", username).Error; err != nil {
		return domain.User{}, wrapNotFound("store.GetUserByUsername", err)
	}
	return domain.User{ID: row.ID, Username: row.Username, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) CreateUser(username, passwordHash string) (domain.User, error) {
	row := userRow{ID: uuid.NewString(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	if err := s.db.Create(&row).Error; err != nil {
		return domain.User{}, errs.New(errs.KindStorageError, "store.CreateUser", err)
	}
	return domain.User{ID: row.ID, Username: row.Username, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt}, nil
}

func (s *Store) UpdateUserPassword(userID, passwordHash string) error {
	res := s.db.Model(&userRow{}).Where("id = ?", userID).Update("password_hash", passwordHash)
	if res.Error != nil {
		return errs.New(errs.KindStorageError, "store.UpdateUserPassword", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.New(errs.KindValidation, "store.UpdateUserPassword", fmt.Errorf("user %s not found", userID))
	}
	return nil
}

// ---- Trading settings ----

// GetTradingSettings returns the user's settings, atomically creating the
// defaults on first read (spec §4.1).
func (s *Store) GetTradingSettings(userID string) (domain.TradingSettings, error) {
	var row tradingSettingsRow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		txErr := tx.First(&row, "user_id = ?", userID).Error
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			row = settingsRowFromDomain(domain.DefaultTradingSettings(userID))
			return tx.Create(&row).Error
		}
		return txErr
	})
	if err != nil {
		return domain.TradingSettings{}, errs.New(errs.KindStorageError, "store.GetTradingSettings", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateTradingSettings(settings domain.TradingSettings) error {
	if err := settings.Valid(); err != nil {
		return errs.New(errs.KindValidation, "store.UpdateTradingSettings", err)
	}
	settings.UpdatedAt = time.Now().UTC()
	row := settingsRowFromDomain(settings)
	if err := s.db.Save(&row).Error; err != nil {
		return errs.New(errs.KindStorageError, "store.UpdateTradingSettings", err)
	}
	return nil
}

// ---- Positions ----

func (s *Store) GetPosition(id string) (domain.Position, error) {
	var row positionRow
	if err := s.db.First(&row, "id = ?", id).Error; err != nil {
		return domain.Position{}, wrapNotFound("store.GetPosition", err)
	}
	return row.toDomain(), nil
}

// PositionFilter narrows GetOpenPositions. Zero value selects all users.
type PositionFilter struct {
	UserID       string
	TradingMode  *domain.TradingMode
	IsPaperTrade *bool
}

func (s *Store) GetOpenPositions(filter PositionFilter) ([]domain.Position, error) {
	q := s.db.Where("status = ?", string(domain.PositionOpen))
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.TradingMode != nil {
		q = q.Where("trading_mode = ?", string(*filter.TradingMode))
	}
	if filter.IsPaperTrade != nil {
		q = q.Where("is_paper_trade = ?", *filter.IsPaperTrade)
	}
	var rows []positionRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, errs.New(errs.KindStorageError, "store.GetOpenPositions", err)
	}
	out := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CreatePosition(p domain.Position) (domain.Position, error) {
	if !p.Direction.CompatibleWith(p.TradingMode) {
		return domain.Position{}, errs.New(errs.KindValidation, "store.CreatePosition",
			fmt.Errorf("direction %s incompatible with mode %s", p.Direction, p.TradingMode))
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = domain.PositionOpen
	}
	row := positionRowFromDomain(p)
	if err := s.db.Create(&row).Error; err != nil {
		return domain.Position{}, errs.New(errs.KindStorageError, "store.CreatePosition", err)
	}
	return row.toDomain(), nil
}

// TryOpenPosition admits a new position only if the caller's cap/
// uniqueness check and the insert happen atomically, closing the race
// window a check-then-insert pair would otherwise leave open between two
// concurrent scan cycles for the same user (one transaction on the
// store's single sqlite connection).
func (s *Store) TryOpenPosition(userID string, tradingMode domain.TradingMode, maxPositions int, p domain.Position) (domain.Position, error) {
	var created positionRow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var openCount int64
		if err := tx.Model(&positionRow{}).
			Where("user_id = ? AND trading_mode = ? AND status = ?", userID, string(tradingMode), string(domain.PositionOpen)).
			Count(&openCount).Error; err != nil {
			return err
		}
		if int(openCount) >= maxPositions {
			return errs.New(errs.KindCapReached, "store.TryOpenPosition", fmt.Errorf("%d/%d open positions", openCount, maxPositions))
		}

		var dupeCount int64
		if err := tx.Model(&positionRow{}).
			Where("user_id = ? AND trading_mode = ? AND symbol = ? AND status = ?", userID, string(tradingMode), p.Symbol, string(domain.PositionOpen)).
			Count(&dupeCount).Error; err != nil {
			return err
		}
		if dupeCount > 0 {
			return errs.New(errs.KindCapReached, "store.TryOpenPosition", fmt.Errorf("position already open for %s", p.Symbol))
		}

		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		p.Status = domain.PositionOpen
		created = positionRowFromDomain(p)
		return tx.Create(&created).Error
	})
	if err != nil {
		var tagged *errs.Error
		if errors.As(err, &tagged) {
			return domain.Position{}, err
		}
		return domain.Position{}, errs.New(errs.KindStorageError, "store.TryOpenPosition", err)
	}
	return created.toDomain(), nil
}

func (s *Store) UpdatePosition(p domain.Position) error {
	row := positionRowFromDomain(p)
	if err := s.db.Save(&row).Error; err != nil {
		return errs.New(errs.KindStorageError, "store.UpdatePosition", err)
	}
	return nil
}

// ClosePosition marks the position closed, idempotently: closing an
// already-closed position is not an error the caller needs to branch on
// differently from "succeeded" (spec §7 AlreadyClosed kind), but is
// reported as such so double-close bugs surface in logs.
func (s *Store) ClosePosition(id string, closePrice decimal.Decimal, pnl decimal.Decimal) error {
	var row positionRow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		if row.Status == string(domain.PositionClosed) {
			return errs.New(errs.KindAlreadyClosed, "store.ClosePosition", fmt.Errorf("position %s already closed", id))
		}
		now := time.Now().UTC()
		row.Status = string(domain.PositionClosed)
		row.CurrentPrice = closePrice
		row.PnL = pnl
		row.ClosedAt = &now
		return tx.Save(&row).Error
	})
	if err != nil {
		if errs.Is(err, errs.KindAlreadyClosed) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.New(errs.KindValidation, "store.ClosePosition", fmt.Errorf("position %s not found", id))
		}
		return errs.New(errs.KindStorageError, "store.ClosePosition", err)
	}
	return nil
}

// ---- Trades ----

func (s *Store) CreateTrade(t domain.Trade) (domain.Trade, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row := tradeRowFromDomain(t)
	if err := s.db.Create(&row).Error; err != nil {
		return domain.Trade{}, errs.New(errs.KindStorageError, "store.CreateTrade", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetTradeHistory(userID string, limit int) ([]domain.Trade, error) {
	var rows []tradeRow
	q := s.db.Where("user_id = ?", userID).Order("exit_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errs.New(errs.KindStorageError, "store.GetTradeHistory", err)
	}
	out := make([]domain.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ---- Bot logs ----

func (s *Store) CreateBotLog(userID string, level domain.BotLogLevel, symbol, message string, data any) error {
	encoded := ""
	if data != nil {
		b, err := json.Marshal(data)
		if err == nil {
			encoded = string(b)
		}
	}
	row := botLogRow{UserID: userID, Level: string(level), Message: message, Symbol: symbol, Data: encoded, CreatedAt: time.Now().UTC()}
	if err := s.db.Create(&row).Error; err != nil {
		return errs.New(errs.KindStorageError, "store.CreateBotLog", err)
	}
	return nil
}

func (s *Store) GetBotLogs(userID string, limit int) ([]domain.BotLog, error) {
	var rows []botLogRow
	q := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errs.New(errs.KindStorageError, "store.GetBotLogs", err)
	}
	out := make([]domain.BotLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ClearBotLogs(userID string) error {
	if err := s.db.Where("user_id = ?", userID).Delete(&botLogRow{}).Error; err != nil {
		return errs.New(errs.KindStorageError, "store.ClearBotLogs", err)
	}
	return nil
}

// ---- System errors ----

func (s *Store) CreateSystemError(userID, title, source, errorCode, message string) error {
	row := systemErrorRow{UserID: userID, Title: title, Source: source, ErrorCode: errorCode, Message: message, CreatedAt: time.Now().UTC()}
	if err := s.db.Create(&row).Error; err != nil {
		return errs.New(errs.KindStorageError, "store.CreateSystemError", err)
	}
	return nil
}

func (s *Store) GetSystemErrors(userID string, includeResolved bool) ([]domain.SystemError, error) {
	q := s.db.Where("user_id = ?", userID)
	if !includeResolved {
		q = q.Where("resolved = ?", false)
	}
	var rows []systemErrorRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, errs.New(errs.KindStorageError, "store.GetSystemErrors", err)
	}
	out := make([]domain.SystemError, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ResolveSystemError(id uint) error {
	res := s.db.Model(&systemErrorRow{}).Where("id = ?", id).Update("resolved", true)
	if res.Error != nil {
		return errs.New(errs.KindStorageError, "store.ResolveSystemError", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.New(errs.KindValidation, "store.ResolveSystemError", fmt.Errorf("system error %d not found", id))
	}
	return nil
}

// ---- Market data ----

func (s *Store) UpsertMarketData(md domain.MarketData) error {
	row := marketDataRow{Symbol: md.Symbol, Price: md.Price, Volume: md.Volume, Change24h: md.Change24h, Timestamp: md.Timestamp}
	if err := s.db.Save(&row).Error; err != nil {
		return errs.New(errs.KindStorageError, "store.UpsertMarketData", err)
	}
	return nil
}

func (s *Store) GetMarketData(symbol string) (domain.MarketData, error) {
	var row marketDataRow
	if err := s.db.First(&row, "symbol = ?", symbol).Error; err != nil {
		return domain.MarketData{}, wrapNotFound("store.GetMarketData", err)
	}
	return row.toDomain(), nil
}

// ---- Aggregates ----

// TradingStats summarizes a user's closed trades, supplementing the
// distilled operation set with the aggregate endpoints the original
// dashboard exposed.
type TradingStats struct {
	TotalTrades  int64
	WinningTrades int64
	TotalPnL     decimal.Decimal
	WinRate      decimal.Decimal
}

func (s *Store) GetTradingStats(userID string) (TradingStats, error) {
	var total int64
	if err := s.db.Model(&tradeRow{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return TradingStats{}, errs.New(errs.KindStorageError, "store.GetTradingStats", err)
	}
	var winning int64
	if err := s.db.Model(&tradeRow{}).Where("user_id = ? AND pn_l > 0", userID).Count(&winning).Error; err != nil {
		return TradingStats{}, errs.New(errs.KindStorageError, "store.GetTradingStats", err)
	}
	var pnlResult struct{ Total decimal.Decimal }
	if err := s.db.Model(&tradeRow{}).Where("user_id = ?", userID).
		Select("COALESCE(SUM(CAST(pn_l AS REAL)), 0) as total").Scan(&pnlResult).Error; err != nil {
		return TradingStats{}, errs.New(errs.KindStorageError, "store.GetTradingStats", err)
	}
	winRate := decimal.Zero
	if total > 0 {
		winRate = decimal.NewFromInt(winning).Div(decimal.NewFromInt(total))
	}
	return TradingStats{TotalTrades: total, WinningTrades: winning, TotalPnL: pnlResult.Total, WinRate: winRate}, nil
}

// StrategyPerformance aggregates closed-trade PnL grouped by strategy.
type StrategyPerformance struct {
	Strategy domain.StrategyName
	Trades   int64
	TotalPnL decimal.Decimal
}

func (s *Store) GetStrategyPerformance(userID string) ([]StrategyPerformance, error) {
	type row struct {
		Strategy string
		Trades   int64
		TotalPnL decimal.Decimal
	}
	var rows []row
	if err := s.db.Model(&tradeRow{}).
		Where("user_id = ?", userID).
		Select("strategy, count(*) as trades, COALESCE(SUM(CAST(pn_l AS REAL)),0) as total_pn_l").
		Group("strategy").Scan(&rows).Error; err != nil {
		return nil, errs.New(errs.KindStorageError, "store.GetStrategyPerformance", err)
	}
	out := make([]StrategyPerformance, 0, len(rows))
	for _, r := range rows {
		out = append(out, StrategyPerformance{Strategy: domain.StrategyName(r.Strategy), Trades: r.Trades, TotalPnL: r.TotalPnL})
	}
	return out, nil
}

// PortfolioData is the open-position snapshot backing a portfolio view.
type PortfolioData struct {
	OpenPositions   []domain.Position
	UnrealizedPnL   decimal.Decimal
}

func (s *Store) GetPortfolioData(userID string) (PortfolioData, error) {
	positions, err := s.GetOpenPositions(PositionFilter{UserID: userID})
	if err != nil {
		return PortfolioData{}, err
	}
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.PnL)
	}
	return PortfolioData{OpenPositions: positions, UnrealizedPnL: total}, nil
}

// GetTradingSummary is a coarse daily rollup, supplementing the
// dashboard's summary widget.
type TradingSummary struct {
	Date     string
	Trades   int64
	TotalPnL decimal.Decimal
}

func (s *Store) GetTradingSummary(userID string, since time.Time) ([]TradingSummary, error) {
	type row struct {
		Date     string
		Trades   int64
		TotalPnL decimal.Decimal
	}
	var rows []row
	if err := s.db.Model(&tradeRow{}).
		Where("user_id = ? AND exit_time >= ?", userID, since).
		Select("date(exit_time) as date, count(*) as trades, COALESCE(SUM(CAST(pn_l AS REAL)),0) as total_pn_l").
		Group("date(exit_time)").
		Order("date").
		Scan(&rows).Error; err != nil {
		return nil, errs.New(errs.KindStorageError, "store.GetTradingSummary", err)
	}
	out := make([]TradingSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, TradingSummary{Date: r.Date, Trades: r.Trades, TotalPnL: r.TotalPnL})
	}
	return out, nil
}

func wrapNotFound(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.New(errs.KindDataUnavailable, op, err)
	}
	return errs.New(errs.KindStorageError, op, err)
}

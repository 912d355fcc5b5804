// Package botengine drives one self-scheduling scan→signal→trade cycle
// per trading mode. One Engine instance exists for spot, another for
// leverage; both share the same code, parameterized by TradingMode.
package botengine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/coinforge/tradeengine/internal/advisor"
	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/errs"
	"github.com/coinforge/tradeengine/internal/events"
	"github.com/coinforge/tradeengine/internal/exchange"
	"github.com/coinforge/tradeengine/internal/indicators"
	"github.com/coinforge/tradeengine/internal/marketdata"
	"github.com/coinforge/tradeengine/internal/pnl"
	"github.com/coinforge/tradeengine/internal/store"
	"github.com/coinforge/tradeengine/internal/strategy"
)

// State is the bot engine's lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateDegraded State = "degraded"
	StateStopping State = "stopping"
)

const (
	scanInterval        = 30 * time.Minute
	monitorInterval     = 10 * time.Second
	watchedUniverseSize = 30
	degradedThreshold   = 3
)

// strategyPriority is the fixed admission order: the first strategy to
// produce an admitted signal for a symbol wins the cycle.
var strategyPriority = []domain.StrategyName{
	domain.StrategyTrendFollowing,
	domain.StrategyMeanReversion,
	domain.StrategyBreakout,
	domain.StrategyPullback,
}

// Engine drives one trading mode's scan cycle and live-ticker SL/TP
// monitor. The market data service is shared across users (price data
// needs no credentials); the trading client is built fresh in Start
// from the starting user's own TradingSettings, never from process
// config, so each user's orders are signed with their own keys.
type Engine struct {
	mode    domain.TradingMode
	store   *store.Store
	market  *marketdata.Service
	advisor *advisor.Client
	bus     *events.Bus

	mu              sync.RWMutex
	state           State
	userID          string
	client          *exchange.Client
	cancel          context.CancelFunc
	consecutiveErrs int
}

func New(mode domain.TradingMode, st *store.Store, market *marketdata.Service, adv *advisor.Client, bus *events.Bus) *Engine {
	return &Engine{
		mode:    mode,
		store:   st,
		market:  market,
		advisor: adv,
		bus:     bus,
		state:   StateStopped,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Start transitions Stopped -> Starting -> Running and launches the scan
// and monitor loops. Fails with AlreadyRunning if not currently Stopped.
func (e *Engine) Start(userID string) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return errs.New(errs.KindAlreadyRunning, "botengine.Start", nil)
	}
	e.state = StateStarting
	e.userID = userID
	e.mu.Unlock()

	settings, err := e.store.GetTradingSettings(userID)
	if err != nil {
		e.setState(StateStopped)
		return err
	}
	isPaper := settings.SpotPaperTrading
	if e.mode == domain.ModeLeverage {
		isPaper = settings.LeveragePaperTrading
	}

	client := exchange.New(settings.ExchangeAPIKey, settings.ExchangeAPISecret)
	if !isPaper && !client.Authenticated() {
		e.setState(StateStopped)
		return errs.New(errs.KindCredentialsMissing, "botengine.Start", nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.client = client
	e.cancel = cancel
	e.state = StateRunning
	e.mu.Unlock()

	e.publish(events.KindBotStarted, e.mode)
	go e.scanLoop(ctx)
	go e.monitorLoop(ctx)
	return nil
}

// Stop transitions toward Stopped. A no-op if already Stopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	e.state = StateStopping
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	e.setState(StateStopped)
	e.publish(events.KindBotStopped, e.mode)
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) publish(kind events.Kind, data any) {
	if e.bus != nil {
		e.bus.Publish(events.Event{Kind: kind, Data: data})
	}
}

// scanLoop self-schedules: the next cycle is posted only after the
// current one finishes, with a fixed 30-minute pause.
func (e *Engine) scanLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.runCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(scanInterval):
		}
	}
}

// runCycle executes one full scan→signal→trade cycle for this engine's
// mode, per the bot engine's contract: settings, watchlist, OHLCV
// batch, evaluation, admission, execution.
func (e *Engine) runCycle(ctx context.Context) {
	settings, err := e.store.GetTradingSettings(e.userID)
	if err != nil {
		log.Error().Err(err).Str("mode", string(e.mode)).Msg("scan cycle: settings unavailable, aborting")
		e.recordFailure()
		return
	}

	symbols := marketdata.TopTradingPairs(watchedUniverseSize)

	candlesBySymbol := e.market.BatchFetchOHLCV(symbols, settings.Timeframe, indicators.MinCandles)
	usable := 0
	for _, candles := range candlesBySymbol {
		if len(candles) > 0 {
			usable++
		}
	}
	if usable == 0 {
		e.recordFailure()
		return
	}
	e.recordSuccess()

	toggles := settings.SpotStrategies
	aiEnabled := settings.SpotAITrading
	if e.mode == domain.ModeLeverage {
		toggles = settings.LeverageStrategies
		aiEnabled = settings.LeverageAITrading
	}

	for _, symbol := range symbols {
		candles := candlesBySymbol[symbol]
		if len(candles) == 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.evaluateSymbol(ctx, symbol, candles, settings, toggles, aiEnabled)
	}
}

func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, candles []domain.Candle, settings domain.TradingSettings, toggles domain.StrategyToggles, aiEnabled bool) {
	snap := strategy.BuildSnapshot(symbol, candles, settings.Indicators)

	var signals []strategy.Signal
	if aiEnabled && e.advisor != nil && e.advisor.Configured() {
		support, resistance := marketdata.SupportResistance(candles, 50)
		req := advisor.Request{
			Market: advisor.MarketSnapshot{
				Symbol:       symbol,
				CurrentPrice: snap.Price,
				Timestamp:    time.Now().UTC(),
			},
			Technical: advisor.TechnicalSnapshot{
				RSI: snap.RSI, EMAFast: snap.EMAFast, EMASlow: snap.EMASlow,
				MACD: snap.MACD.MACD, MACDSignal: snap.MACD.Signal, ADX: snap.ADX,
				Support: support, Resistance: resistance,
			},
			TradingMode: e.mode,
		}
		if sig, ok := advisor.Advise(ctx, e.advisor, req, snap, settings, e.mode, toggles); ok {
			signals = []strategy.Signal{sig}
		}
	} else {
		signals = strategy.Evaluate(snap, settings, e.mode, toggles)
	}
	if len(signals) == 0 {
		return
	}

	ordered := orderByPriority(signals)
	for _, sig := range ordered {
		if e.admitAndExecute(sig, settings) {
			return // one new position per (symbol, cycle)
		}
	}
}

func orderByPriority(signals []strategy.Signal) []strategy.Signal {
	rank := make(map[domain.StrategyName]int, len(strategyPriority))
	for i, name := range strategyPriority {
		rank[name] = i
	}
	ordered := make([]strategy.Signal, len(signals))
	copy(ordered, signals)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rank[ordered[j].Strategy] < rank[ordered[j-1].Strategy]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered
}

// admitAndExecute runs the admission gate then executes paper or live.
// Returns true if a position was opened.
func (e *Engine) admitAndExecute(sig strategy.Signal, settings domain.TradingSettings) bool {
	if sig.Confidence.LessThan(decimal.NewFromInt(int64(settings.MinConfidence))) {
		e.logAdmissionRejected(sig.Symbol, "signal confidence below minimum")
		e.publish(events.KindSignalRejected, sig)
		return false
	}

	isPaper := settings.SpotPaperTrading
	if e.mode == domain.ModeLeverage {
		isPaper = settings.LeveragePaperTrading
	}

	if !isPaper {
		balance, err := e.client.GetBalance(exchange.CategoryFor(e.mode))
		if err != nil || balance.Available.LessThan(settings.USDTPerTrade) {
			e.logAdmissionRejected(sig.Symbol, "insufficient balance for trade size")
			e.publish(events.KindSignalRejected, sig)
			return false
		}
	}

	position := e.buildPosition(sig, settings, isPaper)

	if !isPaper {
		side := exchange.SideBuy
		if sig.Direction == domain.DirShort {
			side = exchange.SideSell
		}
		orderID, err := e.client.PlaceOrder(exchange.OrderRequest{
			Category: exchange.CategoryFor(e.mode), Symbol: sig.Symbol, Side: side, Qty: position.Quantity,
		})
		if err != nil {
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("live order failed, skipping")
			return false
		}
		position.ExchangeOrderID = orderID
	}

	created, err := e.store.TryOpenPosition(e.userID, e.mode, settings.MaxPositions, position)
	if err != nil {
		if errs.Is(err, errs.KindCapReached) {
			e.logAdmissionRejected(sig.Symbol, "position cap reached or symbol already open")
		} else {
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("store error admitting position")
		}
		return false
	}

	if err := e.store.CreateBotLog(e.userID, domain.LogTrade, sig.Symbol, "position opened", created); err != nil {
		log.Warn().Err(err).Msg("bot log write failed")
	}
	e.publish(events.KindPositionOpened, created)
	return true
}

// logAdmissionRejected writes the one INFO-level BotLog row required for
// every admission-gate rejection (confidence, balance, or cap/uniqueness).
func (e *Engine) logAdmissionRejected(symbol, reason string) {
	if err := e.store.CreateBotLog(e.userID, domain.LogInfo, symbol, reason, nil); err != nil {
		log.Warn().Err(err).Msg("bot log write failed")
	}
}

func (e *Engine) buildPosition(sig strategy.Signal, settings domain.TradingSettings, isPaper bool) domain.Position {
	quantity := settings.USDTPerTrade.Div(sig.EntryPrice).Round(6)
	sl := sig.StopLoss
	tp := sig.TakeProfit
	return domain.Position{
		UserID:       e.userID,
		Symbol:       sig.Symbol,
		Direction:    sig.Direction,
		EntryPrice:   sig.EntryPrice,
		CurrentPrice: sig.EntryPrice,
		StopLoss:     &sl,
		TakeProfit:   &tp,
		Quantity:     quantity,
		Status:       domain.PositionOpen,
		TradingMode:  e.mode,
		Strategy:     sig.Strategy,
		IsPaperTrade: isPaper,
	}
}

func (e *Engine) recordFailure() {
	e.mu.Lock()
	e.consecutiveErrs++
	degrade := e.consecutiveErrs >= degradedThreshold && e.state == StateRunning
	if degrade {
		e.state = StateDegraded
	}
	e.mu.Unlock()
	if degrade {
		e.publish(events.KindBotDegraded, e.mode)
	}
}

func (e *Engine) recordSuccess() {
	e.mu.Lock()
	e.consecutiveErrs = 0
	if e.state == StateDegraded {
		e.state = StateRunning
	}
	e.mu.Unlock()
}

// monitorLoop is the bot engine's own 10-second live-position SL/TP
// check, independent of the 30-minute scan cycle.
func (e *Engine) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkLivePositions()
		}
	}
}

func (e *Engine) checkLivePositions() {
	isPaper := false
	positions, err := e.store.GetOpenPositions(store.PositionFilter{UserID: e.userID, TradingMode: &e.mode, IsPaperTrade: &isPaper})
	if err != nil {
		return
	}
	category := exchange.CategoryFor(e.mode)
	for _, p := range positions {
		if p.StopLoss == nil && p.TakeProfit == nil {
			continue
		}
		price, err := e.client.GetTicker(category, p.Symbol)
		if err != nil {
			continue
		}
		e.closeIfTriggered(p, price, category)
	}
}

func (e *Engine) closeIfTriggered(p domain.Position, price decimal.Decimal, category exchange.Category) {
	hitTP := p.TakeProfit != nil && pnl.HitTakeProfit(p.Direction, price, *p.TakeProfit)
	hitSL := p.StopLoss != nil && pnl.HitStopLoss(p.Direction, price, *p.StopLoss)
	if !hitTP && !hitSL {
		p.CurrentPrice = price
		_ = e.store.UpdatePosition(p)
		return
	}

	side := exchange.SideSell
	if p.Direction == domain.DirShort {
		side = exchange.SideBuy
	}
	if _, err := e.client.PlaceOrder(exchange.OrderRequest{Category: category, Symbol: p.Symbol, Side: side, Qty: p.Quantity}); err != nil {
		log.Error().Err(err).Str("symbol", p.Symbol).Msg("live close order failed")
		return
	}

	realized := pnl.Compute(p.Direction, p.EntryPrice, price, p.Quantity)
	if err := e.store.ClosePosition(p.ID, price, realized); err != nil {
		return
	}
	e.publish(events.KindPositionClosed, p.ID)
}

// Package monitor runs one global, mode-agnostic loop that keeps every
// open position's current price and unrealized P&L fresh, and closes
// paper positions whose stop-loss or take-profit has been hit. Live
// positions are priced here too but only ever closed by the owning bot
// engine's own ticker-driven loop.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/events"
	"github.com/coinforge/tradeengine/internal/exchange"
	"github.com/coinforge/tradeengine/internal/pnl"
	"github.com/coinforge/tradeengine/internal/store"
)

const interval = 30 * time.Second

// Monitor prices every open position across every user and trading mode
// on a fixed cadence, closing paper trades that have hit their
// stop-loss or take-profit.
type Monitor struct {
	store  *store.Store
	client *exchange.Client
	bus    *events.Bus

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func New(st *store.Store, client *exchange.Client, bus *events.Bus) *Monitor {
	return &Monitor{store: st, client: client, bus: bus}
}

// Start launches the monitor loop; a second Start before Stop is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop halts the loop; a no-op if not running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	m.running = false
}

func (m *Monitor) loop(ctx context.Context) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep is one pricing/auto-close pass over every open position,
// grouped by symbol so each symbol's candle is fetched once.
func (m *Monitor) sweep() {
	positions, err := m.store.GetOpenPositions(store.PositionFilter{})
	if err != nil {
		log.Error().Err(err).Msg("monitor: failed to load open positions")
		return
	}
	if len(positions) == 0 {
		return
	}

	bySymbol := make(map[string][]domain.Position)
	for _, p := range positions {
		bySymbol[p.Symbol] = append(bySymbol[p.Symbol], p)
	}

	for symbol, group := range bySymbol {
		price, ok := m.fetchPrice(symbol)
		if !ok {
			continue
		}
		for _, p := range group {
			m.priceAndMaybeClose(p, price)
		}
	}
}

// fetchPrice prefers the spot category candle; a symbol that only
// trades on leverage falls back to linear.
func (m *Monitor) fetchPrice(symbol string) (decimal.Decimal, bool) {
	candles, err := m.client.GetKlines(exchange.CategorySpot, symbol, "1", 2)
	if err != nil || len(candles) == 0 {
		candles, err = m.client.GetKlines(exchange.CategoryLinear, symbol, "1", 2)
		if err != nil || len(candles) == 0 {
			log.Warn().Err(err).Str("symbol", symbol).Msg("monitor: price unavailable, skipping symbol this sweep")
			return decimal.Zero, false
		}
	}
	return candles[len(candles)-1].Close, true
}

func (m *Monitor) priceAndMaybeClose(p domain.Position, price decimal.Decimal) {
	realized := pnl.Compute(p.Direction, p.EntryPrice, price, p.Quantity)

	if !p.IsPaperTrade {
		p.CurrentPrice = price
		p.PnL = realized
		_ = m.store.UpdatePosition(p)
		return
	}

	hitTP := p.TakeProfit != nil && pnl.HitTakeProfit(p.Direction, price, *p.TakeProfit)
	hitSL := p.StopLoss != nil && pnl.HitStopLoss(p.Direction, price, *p.StopLoss)
	if !hitTP && !hitSL {
		p.CurrentPrice = price
		p.PnL = realized
		_ = m.store.UpdatePosition(p)
		return
	}

	m.closePaperPosition(p, price, realized)
}

func (m *Monitor) closePaperPosition(p domain.Position, exitPrice, realized decimal.Decimal) {
	if err := m.store.ClosePosition(p.ID, exitPrice, realized); err != nil {
		return
	}

	_, err := m.store.CreateTrade(domain.Trade{
		UserID: p.UserID, Symbol: p.Symbol, Direction: p.Direction,
		EntryPrice: p.EntryPrice, ExitPrice: exitPrice, Quantity: p.Quantity,
		PnL: realized, DurationMins: tradeDurationMinutes(p.CreatedAt),
		Strategy: p.Strategy, TradingMode: p.TradingMode, IsPaperTrade: true,
		EntryTime: p.CreatedAt, ExitTime: time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Str("position", p.ID).Msg("monitor: failed to record closed trade")
	}

	if m.bus != nil {
		m.bus.Publish(events.Event{Kind: events.KindPositionClosed, Data: p.ID})
	}
}

func tradeDurationMinutes(opened time.Time) decimal.Decimal {
	mins := time.Since(opened).Minutes()
	return decimal.NewFromFloat(mins)
}

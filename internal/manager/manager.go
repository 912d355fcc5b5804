// Package manager owns the spot and leverage bot engines plus the
// global position monitor, and is the only component callers reach to
// start, stop, or inspect either bot.
package manager

import (
	"fmt"
	"sync"

	"github.com/coinforge/tradeengine/internal/botengine"
	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/errs"
	"github.com/coinforge/tradeengine/internal/events"
	"github.com/coinforge/tradeengine/internal/exchange"
	"github.com/coinforge/tradeengine/internal/monitor"
	"github.com/coinforge/tradeengine/internal/pnl"
	"github.com/coinforge/tradeengine/internal/store"
)

// Status is a point-in-time snapshot of one engine's lifecycle state,
// returned by GetStatuses for the dashboard/CLI.
type Status struct {
	Mode  domain.TradingMode
	State botengine.State
}

// TaggedEvent wraps one engine's event with the bot type that produced
// it, the shape external subscribers (UI, CLI) actually consume.
type TaggedEvent struct {
	BotType domain.TradingMode
	Event   events.Event
}

// Manager wires the two bot engines and the monitor together and
// re-emits the engines' events on one bus, tagged with the originating
// mode. The monitor publishes on that bus itself, untagged.
type Manager struct {
	store *store.Store
	bus   *events.Bus

	mu       sync.Mutex
	spot     *botengine.Engine
	leverage *botengine.Engine
	monitor  *monitor.Monitor
}

// New wires a manager over two already-constructed engines and their
// own private buses (spotBus/leverageBus), bridging both onto bus with
// a botType tag attached to every forwarded event.
func New(st *store.Store, spot, leverage *botengine.Engine, spotBus, leverageBus *events.Bus, mon *monitor.Monitor, bus *events.Bus) *Manager {
	m := &Manager{store: st, bus: bus, spot: spot, leverage: leverage, monitor: mon}
	go m.bridge(domain.ModeSpot, spotBus)
	go m.bridge(domain.ModeLeverage, leverageBus)
	return m
}

// bridge forwards every event off src onto m.bus, tagged with mode.
// Runs for the process lifetime; src is never unsubscribed because the
// engine it belongs to outlives start/stop cycles.
func (m *Manager) bridge(mode domain.TradingMode, src *events.Bus) {
	if src == nil || m.bus == nil {
		return
	}
	ch := src.Subscribe()
	for evt := range ch {
		m.bus.Publish(events.Event{Kind: evt.Kind, Data: TaggedEvent{BotType: mode, Event: evt}})
	}
}

// StartSpot starts the spot engine for userID. AlreadyRunning if it is
// already anything but Stopped.
func (m *Manager) StartSpot(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureMonitorRunning()
	return m.spot.Start(userID)
}

// StopSpot stops the spot engine; a no-op if already Stopped.
func (m *Manager) StopSpot() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spot.Stop()
}

// StartLeverage starts the leverage engine for userID.
func (m *Manager) StartLeverage(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureMonitorRunning()
	return m.leverage.Start(userID)
}

// StopLeverage stops the leverage engine; a no-op if already Stopped.
func (m *Manager) StopLeverage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leverage.Stop()
}

// StopAll stops both engines and the monitor; safe to call regardless
// of which are currently running.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spot.Stop()
	m.leverage.Stop()
	if m.monitor != nil {
		m.monitor.Stop()
	}
}

// ensureMonitorRunning starts the shared position monitor the first
// time either engine starts; Start itself is idempotent.
func (m *Manager) ensureMonitorRunning() {
	if m.monitor != nil {
		m.monitor.Start()
	}
}

// GetStatuses returns both engines' current lifecycle state.
func (m *Manager) GetStatuses() []Status {
	return []Status{
		{Mode: domain.ModeSpot, State: m.spot.State()},
		{Mode: domain.ModeLeverage, State: m.leverage.State()},
	}
}

// ClosePosition manually closes an open position, dispatching to the
// position's own trading mode rather than a caller-supplied one so a
// mismatched close request can never touch the wrong engine's books.
func (m *Manager) ClosePosition(positionID, userID string) error {
	position, err := m.store.GetPosition(positionID)
	if err != nil {
		return err
	}
	if position.UserID != userID {
		return errs.New(errs.KindValidation, "manager.ClosePosition", fmt.Errorf("position %s not owned by %s", positionID, userID))
	}

	if position.IsPaperTrade {
		return m.store.ClosePosition(position.ID, position.CurrentPrice, position.PnL)
	}
	return m.closeLivePosition(position)
}

// closeLivePosition closes a live position by placing a real opposing
// market order against the exchange before touching the books, so a
// manual close can never leave the DB showing "closed" while the
// exchange still holds the position open.
func (m *Manager) closeLivePosition(position domain.Position) error {
	settings, err := m.store.GetTradingSettings(position.UserID)
	if err != nil {
		return err
	}
	client := exchange.New(settings.ExchangeAPIKey, settings.ExchangeAPISecret)
	if !client.Authenticated() {
		return errs.New(errs.KindCredentialsMissing, "manager.ClosePosition", fmt.Errorf("no exchange credentials for %s", position.UserID))
	}

	category := exchange.CategoryFor(position.TradingMode)
	side := exchange.SideSell
	if position.Direction == domain.DirShort {
		side = exchange.SideBuy
	}
	if _, err := client.PlaceOrder(exchange.OrderRequest{
		Category: category, Symbol: position.Symbol, Side: side, Qty: position.Quantity,
	}); err != nil {
		return err
	}

	exitPrice, err := client.GetTicker(category, position.Symbol)
	if err != nil {
		exitPrice = position.CurrentPrice
	}
	realized := pnl.Compute(position.Direction, position.EntryPrice, exitPrice, position.Quantity)
	return m.store.ClosePosition(position.ID, exitPrice, realized)
}

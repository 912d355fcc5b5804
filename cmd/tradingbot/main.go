// Tradingbot runs the spot and leverage bot engines and the shared
// position monitor as one long-lived process.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinforge/tradeengine/internal/advisor"
	"github.com/coinforge/tradeengine/internal/botengine"
	"github.com/coinforge/tradeengine/internal/config"
	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/events"
	"github.com/coinforge/tradeengine/internal/exchange"
	"github.com/coinforge/tradeengine/internal/manager"
	"github.com/coinforge/tradeengine/internal/marketdata"
	"github.com/coinforge/tradeengine/internal/monitor"
	"github.com/coinforge/tradeengine/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.Deploy == config.ModeDevelopment {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().Str("deploy", string(cfg.Deploy)).Msg("tradingbot starting")

	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	// Market data and the position monitor only ever read public
	// endpoints, so each gets its own unauthenticated client and rate
	// limiter rather than sharing one with the other category or with
	// a bot engine's per-user trading client (built later, from the
	// starting user's own settings row).
	spotClient := exchange.New("", "")
	leverageClient := exchange.New("", "")
	advisorClient := advisor.NewClient(cfg.AdvisorEndpoint, cfg.AdvisorAPIKey)

	spotMarket := marketdata.New(spotClient, exchange.CategorySpot)
	leverageMarket := marketdata.New(leverageClient, exchange.CategoryLinear)

	bus := events.NewBus()
	spotBus := events.NewBus()
	leverageBus := events.NewBus()

	spotEngine := botengine.New(domain.ModeSpot, db, spotMarket, advisorClient, spotBus)
	leverageEngine := botengine.New(domain.ModeLeverage, db, leverageMarket, advisorClient, leverageBus)
	posMonitor := monitor.New(db, exchange.New("", ""), bus)

	mgr := manager.New(db, spotEngine, leverageEngine, spotBus, leverageBus, posMonitor, bus)

	logEvents(bus)

	spotTicker := exchange.NewTickerStream(exchange.CategorySpot)
	leverageTicker := exchange.NewTickerStream(exchange.CategoryLinear)
	spotTicker.Start()
	leverageTicker.Start()
	feedTicker(spotTicker, spotMarket)
	feedTicker(leverageTicker, leverageMarket)

	userID := os.Getenv("TRADINGBOT_USER_ID")
	if userID == "" {
		userID = "default"
	}

	if os.Getenv("SPOT_BOT_ENABLED") == "true" {
		if err := mgr.StartSpot(userID); err != nil {
			log.Error().Err(err).Msg("failed to start spot bot")
		}
	}
	if os.Getenv("LEVERAGE_BOT_ENABLED") == "true" {
		if err := mgr.StartLeverage(userID); err != nil {
			log.Error().Err(err).Msg("failed to start leverage bot")
		}
	}

	log.Info().Msg("all services started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	mgr.StopAll()
	spotTicker.Stop()
	leverageTicker.Stop()
	log.Info().Msg("stopped")
}

// logEvents drains the shared event bus to the structured logger; a
// real UI would subscribe its own channel instead.
func logEvents(bus *events.Bus) {
	ch := bus.Subscribe()
	go func() {
		for evt := range ch {
			log.Info().Str("kind", string(evt.Kind)).Interface("data", evt.Data).Msg("bot event")
		}
	}()
}

// feedTicker subscribes to the full USDT pair universe on stream and
// forwards every update into market's live snapshot map, the map that
// Service.LatestPrice reads.
func feedTicker(stream *exchange.TickerStream, market *marketdata.Service) {
	ch := stream.Subscribe(marketdata.GetAllUSDTPairs()...)
	go func() {
		for update := range ch {
			market.ConsumeTicker(update)
		}
	}()
}

// Package marketdata batches OHLCV retrieval across the watched symbol
// universe and tracks live ticker snapshots fed by the exchange
// WebSocket, in the shape the indicator engine and strategy evaluator
// consume.
package marketdata

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/exchange"
)

const (
	klinesLimit = 100

	// ohlcvBatchSize and ohlcvBatchPause implement the batch-fetch
	// protocol: B symbols fetched concurrently, then a pause before the
	// next batch, so one scan cycle never bursts past the client's
	// rate limiter all at once.
	ohlcvBatchSize  = 10
	ohlcvBatchPause = 500 * time.Millisecond
)

// usdtPairRegistry is the static, canonical USDT pair universe the
// symbol registry is seeded from. Dynamic discovery may be layered on
// top later but must never block startup, so this list ships in the
// binary rather than being fetched.
var usdtPairRegistry = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "DOTUSDT", "LINKUSDT",
	"MATICUSDT", "LTCUSDT", "TRXUSDT", "ATOMUSDT", "UNIUSDT",
	"ETCUSDT", "XLMUSDT", "NEARUSDT", "APTUSDT", "FILUSDT",
	"ARBUSDT", "OPUSDT", "INJUSDT", "SUIUSDT", "TIAUSDT",
	"RNDRUSDT", "SEIUSDT", "AAVEUSDT", "MKRUSDT", "SANDUSDT",
}

// GetAllUSDTPairs returns the full registered USDT pair universe.
func GetAllUSDTPairs() []string {
	out := make([]string, len(usdtPairRegistry))
	copy(out, usdtPairRegistry)
	return out
}

// TopTradingPairs returns a deterministic prefix of the registered USDT
// universe, capped to the registry's size.
func TopTradingPairs(limit int) []string {
	if limit <= 0 {
		return []string{}
	}
	if limit > len(usdtPairRegistry) {
		limit = len(usdtPairRegistry)
	}
	out := make([]string, limit)
	copy(out, usdtPairRegistry[:limit])
	return out
}

// Service batches candle fetches and tracks the latest ticker per
// symbol, fed by a TickerStream subscription.
type Service struct {
	client   *exchange.Client
	category exchange.Category

	mu      sync.RWMutex
	tickers map[string]domain.MarketData
}

func New(client *exchange.Client, category exchange.Category) *Service {
	return &Service{
		client:   client,
		category: category,
		tickers:  make(map[string]domain.MarketData),
	}
}

// ConsumeTicker feeds a single TickerUpdate from the exchange WebSocket
// into the live snapshot map. Intended to run in a loop reading off a
// TickerStream.Subscribe channel.
func (s *Service) ConsumeTicker(update exchange.TickerUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.tickers[update.Symbol]
	s.tickers[update.Symbol] = domain.MarketData{
		Symbol:    update.Symbol,
		Price:     update.LastPrice,
		Volume:    existing.Volume,
		Change24h: existing.Change24h,
		Timestamp: update.Timestamp,
	}
}

// LatestPrice returns the last known ticker price for a symbol.
func (s *Service) LatestPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.tickers[symbol]
	return md.Price, ok
}

// GetOHLCV fetches one symbol's closed candle series.
func (s *Service) GetOHLCV(symbol string, timeframe domain.Timeframe, limit int) ([]domain.Candle, error) {
	return s.client.GetKlines(s.category, symbol, bybitInterval(timeframe), limit)
}

// GetMarketData fetches a single-symbol ticker snapshot.
func (s *Service) GetMarketData(symbol string) (domain.MarketData, error) {
	snap, err := s.client.GetTickerSnapshot(s.category, symbol)
	if err != nil {
		return domain.MarketData{}, err
	}
	return domain.MarketData{
		Symbol:    snap.Symbol,
		Price:     snap.LastPrice,
		Volume:    snap.Volume24h,
		Change24h: snap.PriceChangePercent24h,
		Timestamp: time.Now().UTC(),
	}, nil
}

// BatchFetchOHLCV fetches a closed candle series per symbol, partitioned
// into batches of ohlcvBatchSize fetched concurrently by a worker per
// symbol, with a pause between batches. Every symbol is always present
// in the result map: on error or an under-length series the value is an
// empty slice rather than a dropped key, so callers never mistake "no
// data this cycle" for "symbol never requested."
func (s *Service) BatchFetchOHLCV(symbols []string, timeframe domain.Timeframe, minCandles int) map[string][]domain.Candle {
	interval := bybitInterval(timeframe)
	out := make(map[string][]domain.Candle, len(symbols))
	var mu sync.Mutex

	for start := 0; start < len(symbols); start += ohlcvBatchSize {
		end := start + ohlcvBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		var wg sync.WaitGroup
		for _, symbol := range batch {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				candles, err := s.client.GetKlines(s.category, symbol, interval, klinesLimit)
				switch {
				case err != nil:
					log.Warn().Err(err).Str("symbol", symbol).Msg("ohlcv fetch failed, recording empty candle set")
					candles = []domain.Candle{}
				case len(candles) < minCandles:
					candles = []domain.Candle{}
				}
				mu.Lock()
				out[symbol] = candles
				mu.Unlock()
			}(symbol)
		}
		wg.Wait()

		if end < len(symbols) {
			time.Sleep(ohlcvBatchPause)
		}
	}
	return out
}

func bybitInterval(tf domain.Timeframe) string {
	switch tf {
	case domain.Timeframe1m:
		return "1"
	case domain.Timeframe5m:
		return "5"
	case domain.Timeframe15m:
		return "15"
	case domain.Timeframe1h:
		return "60"
	case domain.Timeframe4h:
		return "240"
	default:
		return "15"
	}
}

// SupportResistance computes a naive support/resistance pair from the
// min/max close over the trailing window, used as the AI advisor's
// technical snapshot input.
func SupportResistance(candles []domain.Candle, window int) (support, resistance decimal.Decimal) {
	if len(candles) == 0 {
		return decimal.Zero, decimal.Zero
	}
	if window > len(candles) {
		window = len(candles)
	}
	slice := candles[len(candles)-window:]
	support, resistance = slice[0].Close, slice[0].Close
	for _, c := range slice {
		if c.Close.LessThan(support) {
			support = c.Close
		}
		if c.Close.GreaterThan(resistance) {
			resistance = c.Close
		}
	}
	return support, resistance
}

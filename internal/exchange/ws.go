package exchange

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	spotWSURL   = "wss://stream.bybit.com/v5/public/spot"
	linearWSURL = "wss://stream.bybit.com/v5/public/linear"

	wsReconnectDelay = 5 * time.Second
	wsPingInterval   = 20 * time.Second
)

// TickerUpdate is a single public ticker push.
type TickerUpdate struct {
	Symbol    string
	LastPrice decimal.Decimal
	Timestamp time.Time
}

// TickerStream is a reconnecting public WebSocket ticker feed. One stream
// serves one category (spot or linear); cmd/tradingbot runs one of each.
type TickerStream struct {
	mu sync.RWMutex

	url     string
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}

	symbols     map[string]bool
	subscribers []chan TickerUpdate
}

func NewTickerStream(category Category) *TickerStream {
	wsURL := spotWSURL
	if category == CategoryLinear {
		wsURL = linearWSURL
	}
	return &TickerStream{
		url:         wsURL,
		stopCh:      make(chan struct{}),
		symbols:     make(map[string]bool),
		subscribers: make([]chan TickerUpdate, 0),
	}
}

// Start begins the connection loop in the background.
func (s *TickerStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.connectionLoop()
}

// Stop tears down the connection and connection loop.
func (s *TickerStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	if s.conn != nil {
		s.conn.Close()
	}
}

// Subscribe registers interest in a symbol's ticker and returns a channel
// that receives updates for every subscribed symbol on this stream.
func (s *TickerStream) Subscribe(symbols ...string) chan TickerUpdate {
	s.mu.Lock()
	for _, sym := range symbols {
		s.symbols[sym] = true
	}
	ch := make(chan TickerUpdate, 256)
	s.subscribers = append(s.subscribers, ch)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		_ = s.sendSubscribe(conn, symbols)
	}
	return ch
}

// connectionLoop reconnects with a fixed 5s backoff and re-subscribes the
// last-known symbol set on every reconnect.
func (s *TickerStream) connectionLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if err := s.connect(); err != nil {
			log.Error().Err(err).Msg("ticker stream connect failed, retrying")
			time.Sleep(wsReconnectDelay)
			continue
		}

		s.readLoop()
		time.Sleep(wsReconnectDelay)
	}
}

func (s *TickerStream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	if len(symbols) > 0 {
		if err := s.sendSubscribe(conn, symbols); err != nil {
			return err
		}
	}

	go s.pingLoop(conn)
	return nil
}

func (s *TickerStream) sendSubscribe(conn *websocket.Conn, symbols []string) error {
	args := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		args = append(args, "tickers."+sym)
	}
	return conn.WriteJSON(map[string]any{"op": "subscribe", "args": args})
}

func (s *TickerStream) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			current := s.conn
			s.mu.RUnlock()
			if current != conn {
				return
			}
			_ = conn.WriteJSON(map[string]any{"op": "ping"})
		}
	}
}

type wsEnvelope struct {
	Topic string `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type wsTickerData struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

func (s *TickerStream) readLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("ticker stream read error")
			return
		}
		s.handleMessage(message)
	}
}

func (s *TickerStream) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Topic == "" {
		return
	}

	var data wsTickerData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return
	}
	price, err := decimal.NewFromString(data.LastPrice)
	if err != nil {
		return
	}

	update := TickerUpdate{Symbol: data.Symbol, LastPrice: price, Timestamp: time.Now().UTC()}

	s.mu.RLock()
	subs := s.subscribers
	s.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- update:
		default:
		}
	}
}

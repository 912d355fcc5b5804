// Package exchange is the Bybit v5-compatible REST and WebSocket client.
// It is the only package that ever signs a request or holds exchange
// credentials; every other component reaches the exchange through it.
package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/coinforge/tradeengine/internal/domain"
	"github.com/coinforge/tradeengine/internal/errs"
)

const (
	defaultBaseURL    = "https://api.bybit.com"
	defaultRecvWindow = "5000"

	// requestsPerSecond caps one Client's outbound REST rate. Every
	// Client built by New has its own limiter, so separate clients do not
	// share this budget.
	requestsPerSecond = 10
	requestBurst      = 20
)

// Category maps domain.TradingMode onto Bybit's product category exactly
// once, here, so no other package re-derives it (spec §9 open question 4).
type Category string

const (
	CategorySpot   Category = "spot"
	CategoryLinear Category = "linear"
)

func CategoryFor(mode domain.TradingMode) Category {
	if mode == domain.ModeLeverage {
		return CategoryLinear
	}
	return CategorySpot
}

// Client is a Bybit v5-compatible REST client; construct it with New. A
// client built with an empty apiKey/apiSecret can still call
// unauthenticated endpoints (GetTicker, GetKlines); its authenticated
// calls return a CredentialsMissing error.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New builds a Client. apiKey/apiSecret may be empty for market-data-only
// use.
func New(apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(requestsPerSecond, requestBurst),
	}
}

func (c *Client) authenticated() bool { return c.apiKey != "" && c.apiSecret != "" }

// Authenticated reports whether the client holds API credentials, used
// by callers deciding whether live trading is possible before they ever
// issue a signed request.
func (c *Client) Authenticated() bool { return c.authenticated() }

// TestConnection verifies credentials against the account-info endpoint.
func (c *Client) TestConnection() error {
	if !c.authenticated() {
		return errs.New(errs.KindCredentialsMissing, "exchange.TestConnection", fmt.Errorf("no API key/secret configured"))
	}
	_, err := c.signedGet("/v5/account/info", nil)
	return err
}

// Balance is the USDT wallet balance for one account type.
type Balance struct {
	Coin      string
	Available decimal.Decimal
	Total     decimal.Decimal
}

func (c *Client) GetBalance(category Category) (Balance, error) {
	if !c.authenticated() {
		return Balance{}, errs.New(errs.KindCredentialsMissing, "exchange.GetBalance", fmt.Errorf("no API key/secret configured"))
	}
	accountType := "UNIFIED"
	params := url.Values{"accountType": {accountType}, "coin": {"USDT"}}
	body, err := c.signedGet("/v5/account/wallet-balance", params)
	if err != nil {
		return Balance{}, err
	}

	var resp struct {
		Result struct {
			List []struct {
				Coin []struct {
					Coin            string `json:"coin"`
					WalletBalance   string `json:"walletBalance"`
					AvailableToWithdraw string `json:"availableToWithdraw"`
				} `json:"coin"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return Balance{}, errs.New(errs.KindProtocolError, "exchange.GetBalance", err)
	}
	for _, acct := range resp.Result.List {
		for _, coin := range acct.Coin {
			if coin.Coin != "USDT" {
				continue
			}
			total, _ := decimal.NewFromString(coin.WalletBalance)
			avail, _ := decimal.NewFromString(coin.AvailableToWithdraw)
			return Balance{Coin: "USDT", Available: avail, Total: total}, nil
		}
	}
	return Balance{Coin: "USDT"}, nil
}

// OrderSide mirrors Bybit's Buy/Sell order side.
type OrderSide string

const (
	SideBuy  OrderSide = "Buy"
	SideSell OrderSide = "Sell"
)

// OrderRequest is the normalized order the bot engine builds; PlaceOrder
// translates it into Bybit's wire shape.
type OrderRequest struct {
	Category Category
	Symbol   string
	Side     OrderSide
	Qty      decimal.Decimal
}

// PlaceOrder submits a market order and returns the exchange order id.
func (c *Client) PlaceOrder(req OrderRequest) (string, error) {
	if !c.authenticated() {
		return "", errs.New(errs.KindCredentialsMissing, "exchange.PlaceOrder", fmt.Errorf("no API key/secret configured"))
	}
	payload := map[string]any{
		"category":  string(req.Category),
		"symbol":    req.Symbol,
		"side":      string(req.Side),
		"orderType": "Market",
		"qty":       req.Qty.String(),
	}
	body, err := c.signedPost("/v5/order/create", payload)
	if err != nil {
		return "", err
	}
	var resp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			OrderID string `json:"orderId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errs.New(errs.KindProtocolError, "exchange.PlaceOrder", err)
	}
	if resp.RetCode != 0 {
		return "", errs.New(errs.KindExchangeRejected, "exchange.PlaceOrder", fmt.Errorf("retCode=%d: %s", resp.RetCode, resp.RetMsg))
	}
	return resp.Result.OrderID, nil
}

// GetTicker fetches the last-traded price for a symbol. Unauthenticated.
func (c *Client) GetTicker(category Category, symbol string) (decimal.Decimal, error) {
	params := url.Values{"category": {string(category)}, "symbol": {symbol}}
	body, err := c.get("/v5/market/tickers", params)
	if err != nil {
		return decimal.Zero, err
	}
	var resp struct {
		Result struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, errs.New(errs.KindProtocolError, "exchange.GetTicker", err)
	}
	if len(resp.Result.List) == 0 {
		return decimal.Zero, errs.New(errs.KindDataUnavailable, "exchange.GetTicker", fmt.Errorf("no ticker for %s", symbol))
	}
	price, err := decimal.NewFromString(resp.Result.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, errs.New(errs.KindProtocolError, "exchange.GetTicker", err)
	}
	return price, nil
}

// TickerSnapshot is one row of the exchange's full tickers list.
type TickerSnapshot struct {
	Symbol                string
	LastPrice             decimal.Decimal
	Turnover24h           decimal.Decimal
	Volume24h             decimal.Decimal
	PriceChangePercent24h decimal.Decimal
}

type tickerRow struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	Turnover24h string `json:"turnover24h"`
	Volume24h   string `json:"volume24h"`
	PricePcnt   string `json:"price24hPcnt"`
}

func (row tickerRow) toSnapshot() TickerSnapshot {
	last, _ := decimal.NewFromString(row.LastPrice)
	turnover, _ := decimal.NewFromString(row.Turnover24h)
	volume, _ := decimal.NewFromString(row.Volume24h)
	pcnt, _ := decimal.NewFromString(row.PricePcnt)
	return TickerSnapshot{
		Symbol: row.Symbol, LastPrice: last, Turnover24h: turnover,
		Volume24h: volume, PriceChangePercent24h: pcnt,
	}
}

// GetTopTickers fetches the full tickers list for a category. Unauthenticated.
func (c *Client) GetTopTickers(category Category) ([]TickerSnapshot, error) {
	params := url.Values{"category": {string(category)}}
	body, err := c.get("/v5/market/tickers", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			List []tickerRow `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.New(errs.KindProtocolError, "exchange.GetTopTickers", err)
	}

	out := make([]TickerSnapshot, 0, len(resp.Result.List))
	for _, row := range resp.Result.List {
		if !isUSDTPair(row.Symbol) {
			continue
		}
		out = append(out, row.toSnapshot())
	}
	return out, nil
}

// GetTickerSnapshot fetches the full ticker row for one symbol, used by
// the market data service's single-symbol getMarketData operation.
// Unauthenticated.
func (c *Client) GetTickerSnapshot(category Category, symbol string) (TickerSnapshot, error) {
	params := url.Values{"category": {string(category)}, "symbol": {symbol}}
	body, err := c.get("/v5/market/tickers", params)
	if err != nil {
		return TickerSnapshot{}, err
	}
	var resp struct {
		Result struct {
			List []tickerRow `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return TickerSnapshot{}, errs.New(errs.KindProtocolError, "exchange.GetTickerSnapshot", err)
	}
	if len(resp.Result.List) == 0 {
		return TickerSnapshot{}, errs.New(errs.KindDataUnavailable, "exchange.GetTickerSnapshot", fmt.Errorf("no ticker for %s", symbol))
	}
	return resp.Result.List[0].toSnapshot(), nil
}

func isUSDTPair(symbol string) bool {
	return len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT"
}

// GetKlines fetches candles, oldest first. Unauthenticated.
func (c *Client) GetKlines(category Category, symbol string, interval string, limit int) ([]domain.Candle, error) {
	params := url.Values{
		"category": {string(category)},
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	body, err := c.get("/v5/market/kline", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.New(errs.KindProtocolError, "exchange.GetKlines", err)
	}

	candles := make([]domain.Candle, 0, len(resp.Result.List))
	for i := len(resp.Result.List) - 1; i >= 0; i-- { // Bybit returns newest first
		row := resp.Result.List[i]
		if len(row) < 6 {
			continue
		}
		c, ok := parseCandle(row)
		if !ok || !c.Valid() {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseCandle(row []string) (domain.Candle, bool) {
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return domain.Candle{}, false
	}
	open, err1 := decimal.NewFromString(row[1])
	high, err2 := decimal.NewFromString(row[2])
	low, err3 := decimal.NewFromString(row[3])
	closePrice, err4 := decimal.NewFromString(row[4])
	volume, err5 := decimal.NewFromString(row[5])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return domain.Candle{}, false
	}
	return domain.Candle{
		Timestamp: time.UnixMilli(ms).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, true
}

// PositionInfo is the exchange-reported state of a live position, used to
// reconcile a live close (spec §9 open question 4: category is resolved
// once, in this package).
type PositionInfo struct {
	Symbol string
	Size   decimal.Decimal
	Side   OrderSide
}

func (c *Client) GetPositions(category Category, symbol string) ([]PositionInfo, error) {
	if !c.authenticated() {
		return nil, errs.New(errs.KindCredentialsMissing, "exchange.GetPositions", fmt.Errorf("no API key/secret configured"))
	}
	params := url.Values{"category": {string(category)}}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.signedGet("/v5/position/list", params)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result struct {
			List []struct {
				Symbol string `json:"symbol"`
				Size   string `json:"size"`
				Side   string `json:"side"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errs.New(errs.KindProtocolError, "exchange.GetPositions", err)
	}
	out := make([]PositionInfo, 0, len(resp.Result.List))
	for _, p := range resp.Result.List {
		size, _ := decimal.NewFromString(p.Size)
		out = append(out, PositionInfo{Symbol: p.Symbol, Size: size, Side: OrderSide(p.Side)})
	}
	return out, nil
}

// ---- HTTP + signing ----

func (c *Client) get(path string, params url.Values) ([]byte, error) {
	full := c.baseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, full, nil)
	if err != nil {
		return nil, errs.New(errs.KindProtocolError, "exchange.get", err)
	}
	return c.doRequest(req)
}

// signedGet issues a GET request with Bybit's v5 HMAC headers:
// sign(timestamp + apiKey + recvWindow + queryString).
func (c *Client) signedGet(path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	full := c.baseURL + path
	query := params.Encode()
	if query != "" {
		full += "?" + query
	}
	req, err := http.NewRequest(http.MethodGet, full, nil)
	if err != nil {
		return nil, errs.New(errs.KindProtocolError, "exchange.signedGet", err)
	}
	c.signRequest(req, query)
	return c.doRequest(req)
}

// signedPost issues a POST request signed over the JSON body in place of
// the query string.
func (c *Client) signedPost(path string, payload any) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.New(errs.KindProtocolError, "exchange.signedPost", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, errs.New(errs.KindProtocolError, "exchange.signedPost", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.signRequest(req, string(bodyBytes))
	return c.doRequest(req)
}

// signRequest adds Bybit's v5 auth headers. payload is the query string
// for GET or the raw JSON body for POST — whichever the signature covers.
func (c *Client) signRequest(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", defaultRecvWindow)

	message := timestamp + c.apiKey + defaultRecvWindow + payload
	req.Header.Set("X-BAPI-SIGN", c.hmacSign(message))
}

func (c *Client) hmacSign(message string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(context.Background()); err != nil {
		return nil, errs.New(errs.KindRateLimited, "exchange.doRequest", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.New(errs.KindNetworkTimeout, "exchange.doRequest", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.KindNetworkTimeout, "exchange.doRequest", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.New(errs.KindRateLimited, "exchange.doRequest", fmt.Errorf("HTTP 429: %s", string(body)))
	}
	if resp.StatusCode >= 400 {
		log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("exchange request rejected")
		return nil, errs.New(errs.KindExchangeRejected, "exchange.doRequest", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
	}

	return body, nil
}

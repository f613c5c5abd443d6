package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

const (
	KrakenBaseURL = "https://api.kraken.com"
	KrakenWSURL   = "wss://ws.kraken.com"
)

// KrakenAdapter implements domain.Exchange against the Kraken spot API:
// public/private REST for candles, ticker, balance and orders, plus the
// public websocket ticker stream for live price callbacks.
type KrakenAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client

	wsConn    *websocket.Conn
	callbacks []func(pair string, price float64)
	mu        sync.Mutex
}

func NewKrakenAdapter(apiKey, apiSecret, baseURL, wsURL string) *KrakenAdapter {
	if baseURL == "" {
		baseURL = KrakenBaseURL
	}
	if wsURL == "" {
		wsURL = KrakenWSURL
	}
	return &KrakenAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// restPair strips the slash: ETH/USD -> ETHUSD.
func restPair(pair string) string {
	return strings.ReplaceAll(pair, "/", "")
}

// --- REST API ---

// sign produces the API-Sign header: HMAC-SHA512 of path + SHA256(nonce +
// postdata) with the base64-decoded secret.
func (k *KrakenAdapter) sign(path, nonce, postData string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(k.apiSecret)
	if err != nil {
		return "", fmt.Errorf("invalid api secret: %w", err)
	}

	sha := sha256.New()
	sha.Write([]byte(nonce + postData))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(sha.Sum(nil))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

type krakenResponse struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (k *KrakenAdapter) sendPublic(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return k.do(req)
}

func (k *KrakenAdapter) sendPrivate(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	nonce := strconv.FormatInt(time.Now().UnixNano()/int64(time.Millisecond), 10)
	params.Set("nonce", nonce)
	postData := params.Encode()

	signature, err := k.sign(path, nonce, postData)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+path, strings.NewReader(postData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", signature)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return k.do(req)
}

func (k *KrakenAdapter) do(req *http.Request) (json.RawMessage, error) {
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	var kr krakenResponse
	if err := json.Unmarshal(body, &kr); err != nil {
		return nil, err
	}
	if len(kr.Error) > 0 {
		return nil, fmt.Errorf("kraken error: %s", strings.Join(kr.Error, ", "))
	}
	return kr.Result, nil
}

// GetCandles returns OHLC bars oldest first. interval is in minutes ("15").
func (k *KrakenAdapter) GetCandles(ctx context.Context, pair, interval string, limit int) ([]domain.Candle, error) {
	path := fmt.Sprintf("/0/public/OHLC?pair=%s&interval=%s", restPair(pair), interval)
	result, err := k.sendPublic(ctx, path)
	if err != nil {
		return nil, err
	}

	// Result is keyed by Kraken's canonical pair name plus a "last" cursor;
	// take whichever key holds the bar array.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	for key, v := range raw {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(v, &rows); err != nil {
			return nil, fmt.Errorf("kraken ohlc parse error: %w", err)
		}
		break
	}

	var candles []domain.Candle
	for _, row := range rows {
		// Format: [time, open, high, low, close, vwap, volume, count]
		if len(row) < 7 {
			continue
		}
		var ts float64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			continue
		}
		open := parseNumeric(row[1])
		high := parseNumeric(row[2])
		low := parseNumeric(row[3])
		closePrice := parseNumeric(row[4])
		volume := parseNumeric(row[6])

		candles = append(candles, domain.Candle{
			Time:   int64(ts) * 1000,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func parseNumeric(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	var v float64
	_ = json.Unmarshal(raw, &v)
	return v
}

func (k *KrakenAdapter) GetTicker(ctx context.Context, pair string) (float64, error) {
	path := "/0/public/Ticker?pair=" + restPair(pair)
	result, err := k.sendPublic(ctx, path)
	if err != nil {
		return 0, err
	}

	var raw map[string]struct {
		C []string `json:"c"` // [last trade price, lot volume]
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return 0, err
	}
	for _, t := range raw {
		if len(t.C) == 0 {
			break
		}
		return strconv.ParseFloat(t.C[0], 64)
	}
	return 0, fmt.Errorf("pair not found: %s", pair)
}

// GetBalance returns the total quote-currency (ZUSD/USD) balance.
func (k *KrakenAdapter) GetBalance(ctx context.Context) (float64, error) {
	result, err := k.sendPrivate(ctx, "/0/private/Balance", nil)
	if err != nil {
		return 0, err
	}

	var balances map[string]string
	if err := json.Unmarshal(result, &balances); err != nil {
		return 0, err
	}
	for _, asset := range []string{"ZUSD", "USD"} {
		if v, ok := balances[asset]; ok {
			return strconv.ParseFloat(v, 64)
		}
	}
	return 0, nil
}

// PlaceOrder submits a market order and returns the transaction id.
func (k *KrakenAdapter) PlaceOrder(ctx context.Context, pair string, side domain.Side, volume float64) (string, error) {
	params := url.Values{}
	params.Set("pair", restPair(pair))
	params.Set("type", string(side))
	params.Set("ordertype", "market")
	params.Set("volume", strconv.FormatFloat(volume, 'f', 8, 64))

	result, err := k.sendPrivate(ctx, "/0/private/AddOrder", params)
	if err != nil {
		return "", err
	}

	var resp struct {
		TxID []string `json:"txid"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", err
	}
	if len(resp.TxID) == 0 {
		return "", fmt.Errorf("kraken order accepted without txid")
	}
	return resp.TxID[0], nil
}

// --- WebSocket ---

func (k *KrakenAdapter) OnPriceUpdate(callback func(pair string, price float64)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.callbacks = append(k.callbacks, callback)
}

// Subscribe connects the public websocket (once) and subscribes the pairs to
// the ticker channel. Pairs use the slash form, e.g. "ETH/USD".
func (k *KrakenAdapter) Subscribe(pairs []string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.wsConn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(k.wsURL, nil)
		if err != nil {
			return fmt.Errorf("ws dial failed: %w", err)
		}
		k.wsConn = conn
		go k.readLoop(conn)
	}

	sub := map[string]interface{}{
		"event":        "subscribe",
		"pair":         pairs,
		"subscription": map[string]string{"name": "ticker"},
	}
	return k.wsConn.WriteJSON(sub)
}

func (k *KrakenAdapter) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			k.mu.Lock()
			if k.wsConn == conn {
				k.wsConn = nil
			}
			k.mu.Unlock()
			return
		}

		// Ticker updates arrive as arrays: [channelID, data, channelName, pair].
		// Everything else (heartbeats, subscription status) is an object.
		if len(msg) == 0 || msg[0] != '[' {
			continue
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 4 {
			continue
		}

		var channel string
		if err := json.Unmarshal(frame[2], &channel); err != nil || channel != "ticker" {
			continue
		}
		var pair string
		if err := json.Unmarshal(frame[3], &pair); err != nil {
			continue
		}

		var data struct {
			C []string `json:"c"`
		}
		if err := json.Unmarshal(frame[1], &data); err != nil || len(data.C) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(data.C[0], 64)
		if err != nil {
			continue
		}

		k.mu.Lock()
		callbacks := make([]func(string, float64), len(k.callbacks))
		copy(callbacks, k.callbacks)
		k.mu.Unlock()

		for _, cb := range callbacks {
			cb(pair, price)
		}
	}
}

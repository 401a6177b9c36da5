// Package feed is a plain-JSON websocket candle feed: a Connector for the
// predictor and the simulator that cmd/feedsim serves.
//
// Stream messages on GET /ws?symbol=BTCUSDT&tf=1m look like:
//
//	{"symbol":"BTCUSDT","tf":"1m","candle":{"open_time":"...","open":100.1,...,"closed":false}}
//
// GET /klines?symbol=BTCUSDT&tf=1m&limit=200 returns the closed history as a
// JSON array of candles. When a shared secret is configured both endpoints
// require a current TOTP code in the X-Feed-TOTP header.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"github.com/preet1249/AI-Trading-ML/internal/marketdata"
	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// TOTPHeader carries the time-based one-time code.
const TOTPHeader = "X-Feed-TOTP"

// Message is one stream update.
type Message struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"tf"`
	Candle    model.Candle    `json:"candle"`
}

// Config holds configuration for the feed connector.
type Config struct {
	// URL of the feed server, e.g. "ws://localhost:9001".
	URL string `yaml:"url" split_words:"true"`
	// HTTPURL serves /klines. Derived from URL when empty.
	HTTPURL    string        `yaml:"http_url" split_words:"true"`
	TOTPSecret string        `yaml:"totp_secret" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout" split_words:"true"`
}

// Connector implements marketdata.Connector against a feed server.
type Connector struct {
	cfg    Config
	http   *http.Client
	dialer *websocket.Dialer
	now    func() time.Time
}

var _ marketdata.Connector = (*Connector)(nil)

// New validates the URLs.
func New(cfg Config) (*Connector, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed: url scheme %q, want ws or wss", u.Scheme)
	}
	if cfg.HTTPURL == "" {
		h := *u
		h.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
		cfg.HTTPURL = h.String()
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	cfg.HTTPURL = strings.TrimRight(cfg.HTTPURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Connector{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		now:    time.Now,
	}, nil
}

func (c *Connector) Name() string { return "feed" }

func (c *Connector) header() (http.Header, error) {
	h := http.Header{}
	if c.cfg.TOTPSecret == "" {
		return h, nil
	}
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, c.now())
	if err != nil {
		return nil, fmt.Errorf("feed: totp: %w", err)
	}
	h.Set(TOTPHeader, code)
	return h, nil
}

func query(key model.Key) url.Values {
	return url.Values{"symbol": {key.Symbol}, "tf": {string(key.Timeframe)}}
}

// Subscribe makes a single connection and reads until disconnect or ctx cancel.
func (c *Connector) Subscribe(ctx context.Context, key model.Key, out chan<- model.Candle) error {
	h, err := c.header()
	if err != nil {
		return err
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL+"/ws?"+query(key).Encode(), h)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return &model.UpstreamError{Service: "feed", Err: fmt.Errorf("unauthorized: %w", err)}
		}
		return &model.UpstreamError{Service: "feed", Retryable: true, Err: err}
	}
	defer conn.Close()

	log.Printf("[feed] %s connected to %s", key, c.cfg.URL)

	// Closes the connection when ctx is cancelled.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return marketdata.ErrStreamClosed
			}
			return &model.UpstreamError{Service: "feed", Retryable: true, Err: err}
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if model.NormalizeSymbol(msg.Symbol) != key.Symbol || msg.Timeframe != key.Timeframe {
			continue
		}

		select {
		case out <- msg.Candle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Backfill fetches closed history over HTTP.
func (c *Connector) Backfill(ctx context.Context, key model.Key, limit int) ([]model.Candle, error) {
	q := query(key)
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.HTTPURL+"/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	h, err := c.header()
	if err != nil {
		return nil, err
	}
	req.Header = h

	resp, err := c.http.Do(req)
	if err != nil {
		var ne net.Error
		timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
		return nil, &model.UpstreamError{Service: "feed", Retryable: true, Timeout: timeout, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &model.UpstreamError{
			Service:   "feed",
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("klines: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var cs []model.Candle
	if err := json.NewDecoder(resp.Body).Decode(&cs); err != nil {
		return nil, &model.UpstreamError{Service: "feed", Retryable: true, Err: fmt.Errorf("klines: decode: %w", err)}
	}
	out := cs[:0]
	for _, cd := range cs {
		if cd.Closed {
			out = append(out, cd)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

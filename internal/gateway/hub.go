// Package gateway is the HTTP surface of the predictor: the prediction and
// technical-analysis REST API plus a websocket hub that streams snapshot
// events to subscribed clients.
package gateway

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

type Config struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout" split_words:"true"`
	MaxPredictions int           `yaml:"max_predictions" split_words:"true"`
	SendBuffer     int           `yaml:"send_buffer" split_words:"true"`
	ReplaySize     int           `yaml:"replay_size" split_words:"true"`

	// PredictPerMinute caps predict calls per client IP; 0 disables it.
	PredictPerMinute int  `yaml:"predict_per_minute" split_words:"true"`
	PredictBurst     int  `yaml:"predict_burst" split_words:"true"`
	TrustProxy       bool `yaml:"trust_proxy" split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		RequestTimeout: 90 * time.Second,
		MaxPredictions: 100,
		SendBuffer:     64,
		ReplaySize:     100,

		PredictPerMinute: 10,
		PredictBurst:     3,
	}
}

// LatestSource returns the newest stored payload for a key, nil if none.
type LatestSource interface {
	Latest(ctx context.Context, key model.Key) ([]byte, error)
}

// Hub tracks websocket clients and the latest envelope per key.
type Hub struct {
	cfg Config
	now func() time.Time

	mu          sync.RWMutex
	clients     map[*Client]struct{}
	latest      map[model.Key][]byte
	seq         int64
	channelSeqs map[string]int64
	replay      map[string]*ReplayBuffer

	dropped atomic.Int64

	// OnClients observes the client count after every change. Optional.
	OnClients func(n int)
}

func NewHub(cfg Config) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Hub{
		cfg:         cfg,
		now:         time.Now,
		clients:     make(map[*Client]struct{}),
		latest:      make(map[model.Key][]byte),
		channelSeqs: make(map[string]int64),
		replay:      make(map[string]*ReplayBuffer),
	}
}

// Publish broadcasts payload for key. It lets the hub serve as an
// in-process snapshot sink when Redis is disabled.
func (h *Hub) Publish(_ context.Context, key model.Key, payload []byte) error {
	h.broadcast(key, payload)
	return nil
}

// Warm seeds the latest envelopes from src so clients connecting before the
// next publish still get an initial state.
func (h *Hub) Warm(ctx context.Context, src LatestSource, keys []model.Key) int {
	n := 0
	for _, key := range keys {
		data, err := src.Latest(ctx, key)
		if err != nil {
			log.Printf("[gateway] warm %s: %v", key, err)
			continue
		}
		if data == nil {
			continue
		}
		h.broadcast(key, data)
		n++
	}
	return n
}

// attach registers a client for the given symbols (all when empty) and
// starts its pumps.
func (h *Hub) attach(conn *websocket.Conn, symbols []string) *Client {
	c := newClient(h, conn, symbols)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] ws client connected (%d total)", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}

	c.sendInitialState()
	go c.writePump()
	go c.readPump()
	return c
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] ws client disconnected (%d total)", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// Missed returns the buffered envelopes of channel after seq.
func (h *Hub) Missed(channel string, after int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replay[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return rb.Since(after)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped is the number of envelopes skipped because a client was too slow.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}

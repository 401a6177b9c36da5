package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one websocket peer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	symbols map[string]bool // empty means every symbol
}

// controlMsg is what clients may send:
//
//	{"type":"SUBSCRIBE","symbols":["BTCUSDT"]}
//	{"type":"UNSUBSCRIBE","symbols":["BTCUSDT"]}
//	{"type":"PING","ping":1700000000000}
type controlMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		symbols: make(map[string]bool),
	}
	c.subscribe(symbols)
	return c
}

func (c *Client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

func (c *Client) subscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		if s = model.NormalizeSymbol(s); s != "" {
			c.symbols[s] = true
		}
	}
}

func (c *Client) unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		delete(c.symbols, model.NormalizeSymbol(s))
	}
}

// sendInitialState queues the latest envelope of every key the client wants.
func (c *Client) sendInitialState() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for key, buf := range c.hub.latest {
		if !c.wants(key.Symbol) {
			continue
		}
		select {
		case c.send <- buf:
		default:
		}
	}
}

// trySend queues msg unless the client is gone or its queue is full.
func (c *Client) trySend(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(data, &msg) != nil {
			continue
		}
		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.subscribe(msg.Symbols)
			c.sendInitialState()
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Symbols)
		case "PING":
			pong, _ := json.Marshal(map[string]any{
				"type":      "PONG",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.trySend(pong)
		}
	}
}

package feed

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Server exposes a Simulator over /ws, /klines and /health.
type Server struct {
	sim    *Simulator
	secret string
}

// NewServer requires a TOTP code on every request when secret is non-empty.
func NewServer(sim *Simulator, secret string) *Server {
	return &Server{sim: sim, secret: secret}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/klines", s.handleKlines)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})
	return mux
}

func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return true
	}
	return totp.Validate(r.Header.Get(TOTPHeader), s.secret)
}

func (s *Server) key(w http.ResponseWriter, r *http.Request) (model.Key, bool) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return model.Key{}, false
	}
	tf, err := model.ParseTimeframe(r.URL.Query().Get("tf"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return model.Key{}, false
	}
	key := model.NewKey(r.URL.Query().Get("symbol"), tf)
	if !s.sim.Has(key) {
		http.Error(w, "unknown symbol or timeframe", http.StatusNotFound)
		return model.Key{}, false
	}
	return key, true
}

func (s *Server) handleKlines(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	cs, _ := s.sim.History(key, limit)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cs)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[feedsim] upgrade error: %v", err)
		return
	}
	log.Printf("[feedsim] client connected: %s %s", r.RemoteAddr, key)

	sub := s.sim.subscribe(key)
	defer func() {
		s.sim.unsubscribe(sub)
		conn.Close()
		log.Printf("[feedsim] client disconnected: %s %s", r.RemoteAddr, key)
	}()

	// Drain reads so a client close ends the write pump.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.sim.unsubscribe(sub)
				return
			}
		}
	}()

	for msg := range sub.ch {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

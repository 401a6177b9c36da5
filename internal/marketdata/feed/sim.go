package feed

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// SimConfig configures the synthetic feed.
type SimConfig struct {
	Symbols      []string          `yaml:"symbols"`
	Timeframes   []model.Timeframe `yaml:"timeframes"`
	StartPrice   float64           `yaml:"start_price" split_words:"true"`
	TickInterval time.Duration     `yaml:"tick_interval" split_words:"true"`
	// History is the number of closed candles kept (and generated at start) per key.
	History int   `yaml:"history"`
	Seed    int64 `yaml:"seed"`
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		Symbols:      []string{"BTCUSDT"},
		Timeframes:   []model.Timeframe{model.TF1m, model.TF5m, model.TF15m, model.TF1h},
		StartPrice:   60000,
		TickInterval: time.Second,
		History:      500,
		Seed:         1,
	}
}

// series is the candle state of one key.
type series struct {
	forming *model.Candle
	history []model.Candle
}

type subscriber struct {
	key model.Key
	ch  chan []byte
}

// Simulator random-walks one price per symbol and aggregates the ticks into
// candles for every configured timeframe.
type Simulator struct {
	cfg SimConfig

	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	series map[model.Key]*series
	subs   map[*subscriber]struct{}

	// Optional hook, e.g. for metrics.
	OnDrop func(key model.Key)
}

// NewSimulator seeds cfg.History closed candles per key ending before now.
func NewSimulator(cfg SimConfig, now time.Time) *Simulator {
	s := &Simulator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		prices: make(map[string]float64),
		series: make(map[model.Key]*series),
		subs:   make(map[*subscriber]struct{}),
	}
	for _, sym := range cfg.Symbols {
		sym = model.NormalizeSymbol(sym)
		s.prices[sym] = cfg.StartPrice
		for _, tf := range cfg.Timeframes {
			s.series[model.NewKey(sym, tf)] = &series{history: s.warmup(tf, now)}
		}
	}
	return s
}

// walk applies a random move of at most ±0.1%.
func (s *Simulator) walk(p float64) float64 {
	p *= 1 + (s.rng.Float64()*0.2-0.1)/100
	if p < 0.01 {
		p = 0.01
	}
	return p
}

func (s *Simulator) warmup(tf model.Timeframe, now time.Time) []model.Candle {
	end := tf.Align(now)
	out := make([]model.Candle, 0, s.cfg.History)
	price := s.cfg.StartPrice
	for i := s.cfg.History; i > 0; i-- {
		c := model.Candle{OpenTime: end.Add(-time.Duration(i) * tf.Duration()), Open: price, High: price, Low: price, Closed: true}
		for k := 0; k < 4; k++ {
			price = s.walk(price)
			c.High = max(c.High, price)
			c.Low = min(c.Low, price)
		}
		c.Close = price
		c.Volume = float64(s.rng.Intn(100) + 1)
		out = append(out, c)
	}
	return out
}

// Step emits one tick per symbol at now.
func (s *Simulator) Step(now time.Time) {
	s.mu.Lock()
	var msgs []Message
	for sym, p := range s.prices {
		p = s.walk(p)
		s.prices[sym] = p
		qty := float64(s.rng.Intn(100) + 1)
		for _, tf := range s.cfg.Timeframes {
			msgs = append(msgs, s.apply(model.NewKey(sym, tf), p, qty, now)...)
		}
	}
	s.mu.Unlock()

	for _, m := range msgs {
		s.broadcast(m)
	}
}

// apply folds one tick into key's forming candle. A tick in a newer bucket
// closes the forming candle first; late ticks are ignored.
func (s *Simulator) apply(key model.Key, price, qty float64, ts time.Time) []Message {
	sr := s.series[key]
	bucket := key.Timeframe.Align(ts)
	var out []Message

	if f := sr.forming; f != nil {
		if bucket.Before(f.OpenTime) {
			return nil
		}
		if bucket.After(f.OpenTime) {
			fin := *f
			fin.Closed = true
			sr.history = append(sr.history, fin)
			if n := len(sr.history) - s.cfg.History; n > 0 && s.cfg.History > 0 {
				sr.history = append(sr.history[:0:0], sr.history[n:]...)
			}
			out = append(out, Message{Symbol: key.Symbol, Timeframe: key.Timeframe, Candle: fin})
			sr.forming = nil
		}
	}

	if sr.forming == nil {
		open := price
		if n := len(sr.history); n > 0 {
			last := sr.history[n-1]
			if !bucket.After(last.OpenTime) {
				return out
			}
			open = last.Close
		}
		sr.forming = &model.Candle{OpenTime: bucket, Open: open, High: max(open, price), Low: min(open, price), Close: price, Volume: qty}
	} else {
		f := sr.forming
		f.High = max(f.High, price)
		f.Low = min(f.Low, price)
		f.Close = price
		f.Volume += qty
	}
	return append(out, Message{Symbol: key.Symbol, Timeframe: key.Timeframe, Candle: *sr.forming})
}

// History returns up to limit closed candles for key, oldest first.
func (s *Simulator) History(key model.Key, limit int) ([]model.Candle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[key]
	if !ok {
		return nil, false
	}
	h := sr.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]model.Candle(nil), h...), true
}

// Has reports whether key is simulated.
func (s *Simulator) Has(key model.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.series[key]
	return ok
}

func (s *Simulator) subscribe(key model.Key) *subscriber {
	sub := &subscriber{key: key, ch: make(chan []byte, 256)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

func (s *Simulator) unsubscribe(sub *subscriber) {
	s.mu.Lock()
	if _, ok := s.subs[sub]; ok {
		close(sub.ch)
		delete(s.subs, sub)
	}
	s.mu.Unlock()
}

func (s *Simulator) broadcast(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	key := model.NewKey(m.Symbol, m.Timeframe)
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.key != key {
			continue
		}
		select {
		case sub.ch <- b:
		default:
			// slow client
			if s.OnDrop != nil {
				s.OnDrop(key)
			}
		}
	}
}

// Run steps the simulator every TickInterval until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	log.Printf("[feedsim] generating %d symbols x %d timeframes every %s",
		len(s.cfg.Symbols), len(s.cfg.Timeframes), s.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now.UTC())
		}
	}
}

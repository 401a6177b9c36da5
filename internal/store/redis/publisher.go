// Package redis publishes the latest TA snapshot per key: a SET for
// point reads, a capped stream for short history and a PUBLISH for
// websocket relays. Publishing goes through a circuit breaker; while it is
// open the newest payload per key is held and flushed once Redis recovers.
package redis

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

const (
	defaultLatestTTL = 30 * time.Minute
	defaultStreamLen = 500

	// SnapshotPattern matches every snapshot pub/sub channel.
	SnapshotPattern = "ta:snapshot:*"
)

// Config configures the Redis connection.
type Config struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	LatestTTL    time.Duration `yaml:"latest_ttl" split_words:"true"`
	StreamMaxLen int64         `yaml:"stream_max_len" split_words:"true"`
	MaxFailures  int           `yaml:"max_failures" split_words:"true"`
	ResetTimeout time.Duration `yaml:"reset_timeout" split_words:"true"`
}

func LatestKey(key model.Key) string  { return "ta:latest:" + key.String() }
func StreamKey(key model.Key) string  { return "ta:stream:" + key.String() }
func ChannelKey(key model.Key) string { return "ta:snapshot:" + key.String() }

// NewClient creates a client without contacting the server.
func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Dial connects and pings the server.
func Dial(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := NewClient(cfg)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// Publisher writes snapshots through a circuit breaker.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	ttl    time.Duration
	maxLen int64

	mu      sync.Mutex
	pending map[model.Key][]byte

	// Optional hooks.
	OnHold  func(key model.Key)
	OnFlush func(n int)
}

func NewPublisher(client *goredis.Client, cfg Config) *Publisher {
	if cfg.LatestTTL <= 0 {
		cfg.LatestTTL = defaultLatestTTL
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamLen
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	return &Publisher{
		client:  client,
		cb:      NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		ttl:     cfg.LatestTTL,
		maxLen:  cfg.StreamMaxLen,
		pending: make(map[model.Key][]byte),
	}
}

// Breaker exposes the circuit breaker, e.g. to observe state changes.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

func (p *Publisher) Client() *goredis.Client { return p.client }

// Publish stores payload as the latest snapshot of key and announces it.
// When the write fails or the breaker is open the payload replaces any
// held one for key and the error is returned.
func (p *Publisher) Publish(ctx context.Context, key model.Key, payload []byte) error {
	p.Flush(ctx)
	err := p.cb.Execute(func() error { return p.write(ctx, key, payload) })
	if err != nil {
		p.hold(key, payload)
	}
	return err
}

func (p *Publisher) write(ctx context.Context, key model.Key, payload []byte) error {
	data := string(payload)
	pipe := p.client.Pipeline()
	pipe.Set(ctx, LatestKey(key), data, p.ttl)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(key),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	})
	pipe.Publish(ctx, ChannelKey(key), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", key, err)
	}
	return nil
}

func (p *Publisher) hold(key model.Key, payload []byte) {
	p.mu.Lock()
	p.pending[key] = payload
	p.mu.Unlock()
	if p.OnHold != nil {
		p.OnHold(key)
	}
}

// Pending returns how many keys hold an unpublished snapshot.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Flush retries held snapshots if the breaker lets calls through.
func (p *Publisher) Flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	held := p.pending
	p.pending = make(map[model.Key][]byte)
	p.mu.Unlock()

	flushed := 0
	for key, payload := range held {
		err := p.cb.Execute(func() error { return p.write(ctx, key, payload) })
		if err != nil {
			p.mu.Lock()
			if _, newer := p.pending[key]; !newer {
				p.pending[key] = payload
			}
			p.mu.Unlock()
			continue
		}
		flushed++
	}
	if flushed > 0 {
		log.Printf("[redis] flushed %d held snapshots", flushed)
		if p.OnFlush != nil {
			p.OnFlush(flushed)
		}
	}
}

package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPublisher_HoldsLatestWhileUnavailable(t *testing.T) {
	p := NewPublisher(unreachable(t), Config{MaxFailures: 2, ResetTimeout: time.Hour})
	key := model.NewKey("BTCUSDT", model.TF1m)
	ctx := context.Background()

	held := 0
	p.OnHold = func(model.Key) { held++ }

	for i, payload := range []string{`{"v":1}`, `{"v":2}`, `{"v":3}`} {
		if err := p.Publish(ctx, key, []byte(payload)); err == nil {
			t.Fatalf("publish %d succeeded against unreachable redis", i)
		}
	}
	if got := p.Breaker().CurrentState(); got != StateOpen {
		t.Errorf("breaker = %v, want open", got)
	}
	if p.Pending() != 1 {
		t.Errorf("pending = %d, want 1 coalesced key", p.Pending())
	}
	if got := string(p.pending[key]); got != `{"v":3}` {
		t.Errorf("held payload = %s", got)
	}
	if held != 3 {
		t.Errorf("OnHold calls = %d", held)
	}

	other := model.NewKey("ETHUSDT", model.TF1m)
	if err := p.Publish(ctx, other, []byte(`{}`)); err != ErrCircuitOpen {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if p.Pending() != 2 {
		t.Errorf("pending = %d, want 2", p.Pending())
	}
}

func TestKeys(t *testing.T) {
	key := model.NewKey("btcusdt", model.TF15m)
	if LatestKey(key) != "ta:latest:BTCUSDT:15m" || StreamKey(key) != "ta:stream:BTCUSDT:15m" {
		t.Errorf("keys = %s %s", LatestKey(key), StreamKey(key))
	}

	got, ok := ParseChannel(ChannelKey(key))
	if !ok || got != key {
		t.Errorf("ParseChannel = %v %v", got, ok)
	}
	for _, bad := range []string{"ta:snapshot:BTCUSDT", "ta:snapshot::1m", "ta:snapshot:BTCUSDT:7m", "pub:candle:1m"} {
		if _, ok := ParseChannel(bad); ok {
			t.Errorf("ParseChannel(%q) accepted", bad)
		}
	}
}

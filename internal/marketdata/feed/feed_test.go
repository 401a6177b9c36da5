package feed

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

const secret = "JBSWY3DPEHPK3PXP"

func newTestFeed(t *testing.T, serverSecret string) (*Simulator, *httptest.Server, time.Time) {
	t.Helper()
	base := time.Date(2024, 5, 1, 0, 0, 30, 0, time.UTC)
	cfg := DefaultSimConfig()
	cfg.History = 50
	sim := NewSimulator(cfg, base)
	srv := httptest.NewServer(NewServer(sim, serverSecret).Handler())
	t.Cleanup(srv.Close)
	return sim, srv, base
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSimulator_ClosesCandleOnNewBucket(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 30, 0, time.UTC)
	cfg := DefaultSimConfig()
	cfg.History = 10
	cfg.Timeframes = []model.Timeframe{model.TF1m}
	sim := NewSimulator(cfg, base)
	key := model.NewKey("BTCUSDT", model.TF1m)

	h, _ := sim.History(key, 0)
	if len(h) != 10 || !h[9].OpenTime.Equal(base.Truncate(time.Minute).Add(-time.Minute)) {
		t.Fatalf("warmup = %d candles, last %v", len(h), h[len(h)-1].OpenTime)
	}

	sim.Step(base)
	sim.Step(base.Add(10 * time.Second))
	sim.Step(base.Add(40 * time.Second)) // next minute

	h, _ = sim.History(key, 0)
	if len(h) != 10 {
		t.Fatalf("history len = %d, want capped 10", len(h))
	}
	last := h[len(h)-1]
	if !last.OpenTime.Equal(base.Truncate(time.Minute)) || !last.Closed {
		t.Errorf("closed candle = %+v", last)
	}
	if last.High < last.Low || last.Close < last.Low || last.Close > last.High {
		t.Errorf("inconsistent OHLC %+v", last)
	}
}

func TestConnector_Backfill(t *testing.T) {
	_, srv, _ := newTestFeed(t, secret)
	c, err := New(Config{URL: wsURL(srv), TOTPSecret: secret})
	if err != nil {
		t.Fatal(err)
	}

	cs, err := c.Backfill(context.Background(), model.NewKey("btcusdt", model.TF5m), 20)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(cs) != 20 {
		t.Fatalf("len = %d, want 20", len(cs))
	}
	for i := 1; i < len(cs); i++ {
		if cs[i].OpenTime.Sub(cs[i-1].OpenTime) != 5*time.Minute {
			t.Fatalf("not contiguous at %d", i)
		}
	}
}

func TestConnector_Unauthorized(t *testing.T) {
	_, srv, _ := newTestFeed(t, secret)
	c, err := New(Config{URL: wsURL(srv)})
	if err != nil {
		t.Fatal(err)
	}
	key := model.NewKey("BTCUSDT", model.TF1m)

	_, err = c.Backfill(context.Background(), key, 10)
	var ue *model.UpstreamError
	if !errors.As(err, &ue) || ue.Retryable {
		t.Errorf("Backfill err = %v, want non-retryable upstream error", err)
	}

	err = c.Subscribe(context.Background(), key, make(chan model.Candle, 1))
	if !errors.As(err, &ue) || ue.Retryable {
		t.Errorf("Subscribe err = %v, want non-retryable upstream error", err)
	}
}

func TestConnector_Subscribe(t *testing.T) {
	sim, srv, base := newTestFeed(t, "")
	c, err := New(Config{URL: wsURL(srv)})
	if err != nil {
		t.Fatal(err)
	}
	key := model.NewKey("BTCUSDT", model.TF1m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(chan model.Candle, 16)
	errc := make(chan error, 1)
	go func() { errc <- c.Subscribe(ctx, key, out) }()

	deadline := time.After(5 * time.Second)
	var got model.Candle
	for i := 0; ; i++ {
		sim.Step(base.Add(time.Duration(i) * 100 * time.Millisecond))
		select {
		case got = <-out:
		case <-time.After(20 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("no candle received")
		}
		break
	}
	if !got.OpenTime.Equal(base.Truncate(time.Minute)) || got.Closed {
		t.Errorf("candle = %+v", got)
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Subscribe returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestNew_RejectsHTTPScheme(t *testing.T) {
	if _, err := New(Config{URL: "http://localhost:9001"}); err == nil {
		t.Error("http scheme accepted")
	}
	c, err := New(Config{URL: "wss://feed.example.com/"})
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.HTTPURL != "https://feed.example.com" {
		t.Errorf("HTTPURL = %q", c.cfg.HTTPURL)
	}
}

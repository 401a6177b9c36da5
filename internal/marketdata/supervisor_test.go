package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/buffer"
	"github.com/preet1249/AI-Trading-ML/internal/model"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func minutes(from, n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		p := 100 + float64(from+i)
		out[i] = model.Candle{
			OpenTime: t0.Add(time.Duration(from+i) * time.Minute),
			Open:     p, High: p + 1, Low: p - 1, Close: p + 0.5, Volume: 1, Closed: true,
		}
	}
	return out
}

type session func(ctx context.Context, out chan<- model.Candle) error

type fakeConn struct {
	mu          sync.Mutex
	history     []model.Candle
	backfillErr error
	backfills   int
	subs        int
	sessions    chan session
}

func newFakeConn(history []model.Candle) *fakeConn {
	return &fakeConn{history: history, sessions: make(chan session, 4)}
}

func (f *fakeConn) Name() string { return "fake" }

func (f *fakeConn) Backfill(_ context.Context, _ model.Key, limit int) ([]model.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfills++
	if f.backfillErr != nil {
		return nil, f.backfillErr
	}
	h := f.history
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]model.Candle(nil), h...), nil
}

func (f *fakeConn) Subscribe(ctx context.Context, _ model.Key, out chan<- model.Candle) error {
	f.mu.Lock()
	f.subs++
	f.mu.Unlock()
	select {
	case s := <-f.sessions:
		return s(ctx, out)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) counts() (backfills, subs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backfills, f.subs
}

type fakeHistory []model.Candle

func (h fakeHistory) Candles(context.Context, model.Key, int) ([]model.Candle, error) {
	return h, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testConfig() SupervisorConfig {
	return SupervisorConfig{
		BackfillLimit:   200,
		BackfillTimeout: time.Second,
		ReconnectMin:    time.Millisecond,
		ReconnectMax:    5 * time.Millisecond,
		RepairInterval:  time.Millisecond,
	}
}

func start(t *testing.T, s *Supervisor, keys ...model.Key) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, keys)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func closedLen(buf *buffer.Manager, key model.Key) int {
	v, err := buf.View(key)
	if err != nil {
		return 0
	}
	return len(v.Candles)
}

func TestSupervisor_BackfillThenStream(t *testing.T) {
	key := model.NewKey("BTCUSDT", model.TF1m)
	conn := newFakeConn(minutes(0, 30))
	conn.sessions <- func(ctx context.Context, out chan<- model.Candle) error {
		next := minutes(30, 1)[0]
		forming := next
		forming.Closed = false
		out <- forming
		out <- next
		<-ctx.Done()
		return ctx.Err()
	}
	buf := buffer.New(200)
	start(t, NewSupervisor(conn, buf, nil, testConfig()), key)

	waitFor(t, "streamed candle", func() bool { return closedLen(buf, key) == 31 })
	if buf.Stale(key) {
		t.Error("buffer stale after clean stream")
	}
}

func TestSupervisor_ReconnectMarksStale(t *testing.T) {
	key := model.NewKey("BTCUSDT", model.TF1m)
	conn := newFakeConn(minutes(0, 30))
	buf := buffer.New(200)
	conn.sessions <- func(ctx context.Context, out chan<- model.Candle) error {
		for _, c := range minutes(30, 3) {
			out <- c
		}
		for closedLen(buf, key) < 33 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
		return errors.New("connection reset")
	}
	s := NewSupervisor(conn, buf, nil, testConfig())

	var mu sync.Mutex
	var reconnects int
	s.OnReconnect = func(model.Key, error) {
		mu.Lock()
		reconnects++
		mu.Unlock()
	}
	start(t, s, key)

	waitFor(t, "resubscribe", func() bool {
		b, subs := conn.counts()
		return subs >= 2 && b >= 2
	})
	mu.Lock()
	defer mu.Unlock()
	if reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", reconnects)
	}
	// Upstream lags the streamed candles, so the buffer waits for the next repair.
	if !buf.Stale(key) {
		t.Error("buffer not stale after disconnect")
	}
}

func TestSupervisor_CleanReconnectClearsStale(t *testing.T) {
	key := model.NewKey("BTCUSDT", model.TF1m)
	conn := newFakeConn(minutes(0, 30))
	buf := buffer.New(200)

	// First session leaves a forming candle and drops.
	conn.sessions <- func(ctx context.Context, out chan<- model.Candle) error {
		forming := minutes(30, 1)[0]
		forming.Closed = false
		out <- forming
		for {
			if v, err := buf.View(key); err == nil && v.Open != nil {
				return errors.New("connection reset")
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}
	// Second session resumes with no gap.
	conn.sessions <- func(ctx context.Context, out chan<- model.Candle) error {
		for _, c := range minutes(30, 6) {
			out <- c
		}
		<-ctx.Done()
		return ctx.Err()
	}

	s := NewSupervisor(conn, buf, nil, testConfig())
	var mu sync.Mutex
	var reconnects int
	s.OnReconnect = func(model.Key, error) {
		mu.Lock()
		reconnects++
		mu.Unlock()
	}
	start(t, s, key)

	waitFor(t, "reconnect", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reconnects == 1
	})
	waitFor(t, "resumed stream", func() bool { return closedLen(buf, key) == 36 })
	waitFor(t, "stale cleared", func() bool { return !buf.Stale(key) })
}

func TestSupervisor_RequestBackfillRepairs(t *testing.T) {
	key := model.NewKey("BTCUSDT", model.TF1m)
	conn := newFakeConn(minutes(0, 30))
	buf := buffer.New(200)
	s := NewSupervisor(conn, buf, nil, testConfig())
	start(t, s, key)

	waitFor(t, "initial backfill", func() bool { return closedLen(buf, key) == 30 })

	conn.mu.Lock()
	conn.history = minutes(0, 40)
	conn.mu.Unlock()

	waitFor(t, "subscription", func() bool { _, subs := conn.counts(); return subs == 1 })
	if !s.RequestBackfill(key) {
		t.Fatal("RequestBackfill rejected supervised key")
	}
	waitFor(t, "repair", func() bool { return closedLen(buf, key) == 40 })

	if s.RequestBackfill(model.NewKey("ETHUSDT", model.TF1m)) {
		t.Error("RequestBackfill accepted unknown key")
	}
}

func TestSupervisor_HistoryFallback(t *testing.T) {
	key := model.NewKey("BTCUSDT", model.TF1m)
	conn := newFakeConn(nil)
	conn.backfillErr = errors.New("exchange down")
	buf := buffer.New(200)

	// A gap in storage: only the contiguous tail is loaded.
	stored := append(minutes(0, 5), minutes(10, 20)...)
	start(t, NewSupervisor(conn, buf, fakeHistory(stored), testConfig()), key)

	waitFor(t, "stored backfill", func() bool { return closedLen(buf, key) == 20 })
}

func TestContiguousTail(t *testing.T) {
	cs := append(minutes(0, 3), minutes(5, 4)...)
	got := ContiguousTail(cs, time.Minute)
	if len(got) != 4 || !got[0].OpenTime.Equal(t0.Add(5*time.Minute)) {
		t.Errorf("tail = %d candles from %v", len(got), got[0].OpenTime)
	}
	if len(ContiguousTail(nil, time.Minute)) != 0 {
		t.Error("nil input")
	}
}

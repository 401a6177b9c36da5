package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

func TestWebhookNotifier_PostsAlert(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	if err := n.Send(context.Background(), Alert{Level: LevelWarning, Title: "t", Message: "m", Fields: map[string]string{"a": "1"}}); err != nil {
		t.Fatal(err)
	}
	if got.Title != "t" || got.Level != LevelWarning || got.Fields["a"] != "1" || got.TS != "2024-01-02T03:04:05Z" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestTelegramNotifier(t *testing.T) {
	var body map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	if err := n.Send(context.Background(), Alert{Level: LevelInfo, Title: "BTC-USDT", Message: "ok."}); err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" || body["chat_id"] != "42" || body["parse_mode"] != "MarkdownV2" {
		t.Fatalf("path=%s body=%v", path, body)
	}
	if !strings.Contains(body["text"], `BTC\-USDT`) || !strings.Contains(body["text"], `ok\.`) {
		t.Fatalf("text not escaped: %q", body["text"])
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a_b*c (1.5)"); got != `a\_b\*c \(1\.5\)` {
		t.Fatalf("got %q", got)
	}
}

type recorder struct {
	mu  sync.Mutex
	got []Alert
	err error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestMulti_JoinsErrors(t *testing.T) {
	a, b := &recorder{err: errors.New("down")}, &recorder{}
	err := Multi{a, b}.Send(context.Background(), Alert{Title: "x"})
	if err == nil || a.count() != 1 || b.count() != 1 {
		t.Fatalf("err=%v a=%d b=%d", err, a.count(), b.count())
	}
}

func TestDispatcher_DropsWhenFullThenDrains(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, Config{QueueSize: 2})
	drops := 0
	d.OnDrop = func() { drops++ }

	for i := 0; i < 3; i++ {
		d.Notify(Alert{Title: "x"})
	}
	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("sent %d, want 2", rec.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(Config{}).(LogNotifier); !ok {
		t.Fatal("empty config should log")
	}
	m, ok := FromConfig(Config{WebhookURL: "http://x", TelegramToken: "t", TelegramChatID: "1"}).(Multi)
	if !ok || len(m) != 2 {
		t.Fatalf("got %#v", m)
	}
}

func TestPredictionAlert(t *testing.T) {
	a := PredictionAlert("BTCUSDT", model.TF1h, model.Prediction{
		Direction: model.BiasBullish, Confidence: 80, EntryPrice: 100, StopLoss: 95,
		TakeProfits: []model.TakeProfit{{Label: "TP1", Price: 104}},
	})
	if a.Title != "BTCUSDT 1h BULLISH (80%)" || a.Fields["tp1"] != "104" || a.Fields["stop_loss"] != "95" {
		t.Fatalf("alert = %+v", a)
	}
}

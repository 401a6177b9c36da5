package news

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

const searchBody = `{
  "items": [
    {"title": "Bitcoin surges to record high", "snippet": "ETF inflows", "link": "https://a",
     "pagemap": {"metatags": [{"article:published_time": "2024-06-02T10:00:00Z"}]}},
    {"title": "Exchange hacked, prices plunge", "snippet": "", "link": "https://b",
     "pagemap": {"metatags": [{"og:updated_time": "2024-06-01T08:00:00+00:00"}]}},
    {"title": "Old story", "snippet": "rally", "link": "https://c",
     "pagemap": {"metatags": [{"article:published_time": "2024-05-20T00:00:00Z"}]}},
    {"title": "Undated", "snippet": "rally", "link": "https://d"}
  ]
}`

func testClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.APIKey, cfg.EngineID, cfg.BaseURL = "k", "cx", url
	cfg.RatePerSecond, cfg.Burst = 100, 10
	return New(cfg)
}

func TestSearch_FiltersByDateAndDecodes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		if r.URL.Query().Get("num") != "10" {
			t.Errorf("expected num=10, got %q", r.URL.Query().Get("num"))
		}
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	since := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	arts, err := testClient(srv.URL).Search(context.Background(), "BTCUSDT", since)
	if err != nil {
		t.Fatal(err)
	}
	if gotQuery != "BTC news after:2024-05-31" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(arts) != 2 {
		t.Fatalf("expected 2 recent dated articles, got %+v", arts)
	}
	if arts[1].PublishedAt.Hour() != 8 {
		t.Fatalf("og:updated_time not parsed: %v", arts[1].PublishedAt)
	}
}

func TestSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	since := time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)
	res, err := testClient(srv.URL).Sentiment(context.Background(), "BTCUSDT", since)
	if err != nil {
		t.Fatal(err)
	}
	// "surges record high inflows" = +1, "hacked plunge" = -1.
	if res.Status != model.StatusOK || math.Abs(res.Sentiment) > 1e-12 || res.Label != "neutral" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.KeyEvents) != 2 {
		t.Fatalf("expected both articles as key events, got %v", res.KeyEvents)
	}
}

func TestSearch_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusForbidden, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		_, err := testClient(srv.URL).Search(context.Background(), "ETHUSDT", time.Now().Add(-48*time.Hour))
		srv.Close()

		var ue *model.UpstreamError
		if !errors.As(err, &ue) || ue.Retryable != tt.retryable {
			t.Fatalf("status %d: expected retryable=%v, got %v", tt.status, tt.retryable, err)
		}
	}
}

func TestSearch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := testClient(srv.URL).Search(ctx, "BTCUSDT", time.Now().Add(-time.Hour))
	if !errors.Is(err, model.ErrUpstreamTimeout) {
		t.Fatalf("expected upstream timeout, got %v", err)
	}
}

func TestSearch_NotConfigured(t *testing.T) {
	if _, err := New(DefaultConfig()).Search(context.Background(), "BTCUSDT", time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestScoreAndLabel(t *testing.T) {
	if s := Score("ETF approval sparks rally"); s != 1 {
		t.Fatalf("expected 1, got %v", s)
	}
	if s := Score("Exchange hacked; BTC crash"); s != -1 {
		t.Fatalf("expected -1, got %v", s)
	}
	if s := Score("Quarterly report published"); s != 0 {
		t.Fatalf("expected 0, got %v", s)
	}
	if Label(0.5) != "positive" || Label(-0.5) != "negative" || Label(0.1) != "neutral" {
		t.Fatal("label thresholds")
	}
	if res := Analyze(nil); res.Label != "neutral" || !strings.Contains(res.Summary, "No recent news") {
		t.Fatalf("empty analysis: %+v", res)
	}
}

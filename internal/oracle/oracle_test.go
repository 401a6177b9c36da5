package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

func TestParse(t *testing.T) {
	answer := "Here is my analysis:\n```json\n" + `{
  "direction": "down",
  "confidence": "82",
  "entry_price": 64000.123456789,
  "stop_loss": 65500,
  "take_profits": [{"label": "far", "price": 60000}, {"label": "near", "price": 62500}],
  "reasoning": " CHOCH bearish after liquidity sweep "
}` + "\n```"

	p, err := Parse(answer, 63000)
	if err != nil {
		t.Fatal(err)
	}
	if p.Direction != model.BiasBearish || p.Confidence != 82 {
		t.Fatalf("unexpected direction/confidence %+v", p)
	}
	if p.EntryPrice != 64000.12345679 {
		t.Fatalf("entry not rounded to 8 places: %v", p.EntryPrice)
	}
	if len(p.TakeProfits) != 2 || p.TakeProfits[0].Price != 62500 || p.TakeProfits[0].Label != "TP1" {
		t.Fatalf("take profits not ordered from entry: %+v", p.TakeProfits)
	}
	if p.Reasoning != "CHOCH bearish after liquidity sweep" {
		t.Fatalf("reasoning not trimmed: %q", p.Reasoning)
	}
}

func TestParse_Normalisation(t *testing.T) {
	p, err := Parse(`{"direction":"SIDEWAYS","confidence":140,"take_profits":[101, 0, 103]}`, 100)
	if err != nil {
		t.Fatal(err)
	}
	if p.Direction != model.BiasNeutral || p.Confidence != 100 || p.EntryPrice != 100 {
		t.Fatalf("unexpected %+v", p)
	}
	if len(p.TakeProfits) != 2 {
		t.Fatalf("non-positive take profit kept: %+v", p.TakeProfits)
	}

	p, _ = Parse(`{"direction":"bullish","confidence":0.65}`, 100)
	if p.Confidence != 65 {
		t.Fatalf("fractional confidence not scaled: %d", p.Confidence)
	}
	if p.TakeProfits == nil {
		t.Fatal("take profits must encode as []")
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"no json here", `{"direction":"moon"}`, `{"direction":`} {
		if _, err := Parse(in, 1); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func chatServer(t *testing.T, status int, content string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"upstream"}}`, status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
}

func testClient(url string) *Client {
	cfg := DefaultConfig()
	cfg.APIKey, cfg.BaseURL = "secret", url
	return New(cfg)
}

func TestSynthesize(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"direction":"BULLISH","confidence":71,"entry_price":100,"stop_loss":97,"take_profits":[105],"reasoning":"bos"}`,
		func(r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer secret" {
				t.Errorf("missing bearer token")
			}
			var body chatRequest
			json.NewDecoder(r.Body).Decode(&body)
			if len(body.Messages) != 2 || !strings.Contains(body.Messages[1].Content, `"symbol": "BTCUSDT"`) {
				t.Errorf("payload not forwarded: %+v", body.Messages)
			}
		})
	defer srv.Close()

	p, err := testClient(srv.URL).Synthesize(context.Background(), model.PredictRequest{Symbol: "BTCUSDT", LastClose: 100})
	if err != nil {
		t.Fatal(err)
	}
	if p.Direction != model.BiasBullish || p.Model == "" || len(p.TakeProfits) != 1 {
		t.Fatalf("unexpected prediction %+v", p)
	}
}

func TestSynthesize_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		content   string
		retryable bool
	}{
		{"server error", http.StatusServiceUnavailable, "", true},
		{"rate limited", http.StatusTooManyRequests, "", true},
		{"bad request", http.StatusBadRequest, "", false},
		{"garbage answer", http.StatusOK, "I cannot help with that", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content, nil)
			defer srv.Close()
			_, err := testClient(srv.URL).Synthesize(context.Background(), model.PredictRequest{Symbol: "ETHUSDT"})
			if model.IsRetryable(err) != tt.retryable {
				t.Fatalf("retryable=%v, want %v (err %v)", model.IsRetryable(err), tt.retryable, err)
			}
		})
	}
}

func TestSynthesize_NotConfigured(t *testing.T) {
	_, err := New(DefaultConfig()).Synthesize(context.Background(), model.PredictRequest{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

func TestBackfill_DropsFormingKline(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			[1714521600000,"100.10","101.00","99.50","100.80","12.5",1714521659999,"0",10,"0","0","0"],
			[1714521660000,"100.80","102.00","100.70","101.90","8.25",1714521719999,"0",10,"0","0","0"],
			[1714521720000,"101.90","102.10","101.50","101.60","1.00",1714521779999,"0",10,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	// The third kline is still forming at this instant.
	c.now = func() time.Time { return t0.Add(2*time.Minute + 30*time.Second) }

	cs, err := c.Backfill(context.Background(), model.NewKey("BTCUSDT", model.TF1m), 5)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(cs) != 2 {
		t.Fatalf("len = %d, want 2", len(cs))
	}
	if !cs[0].OpenTime.Equal(t0) || cs[1].Close != 101.9 || !cs[1].Closed {
		t.Errorf("candles = %+v", cs)
	}
	if gotQuery == "" {
		t.Fatal("no request")
	}
}

func TestBackfill_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Backfill(context.Background(), model.NewKey("BTCUSDT", model.TF1m), 5)
	if !model.IsRetryable(err) {
		t.Fatalf("err = %v, want retryable upstream error", err)
	}
}

func TestFromWsKline(t *testing.T) {
	cd, err := fromWsKline(gobinance.WsKline{
		StartTime: 1714521600000,
		Open:      "100.1", High: "101", Low: "99.5", Close: "100.8", Volume: "3",
		IsFinal: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !cd.Closed || cd.High != 101 || cd.OpenTime.Unix() != 1714521600 {
		t.Errorf("candle = %+v", cd)
	}

	if _, err := fromWsKline(gobinance.WsKline{Open: "x"}); err == nil {
		t.Error("bad price accepted")
	}
}

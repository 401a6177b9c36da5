package ta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/buffer"
	"github.com/preet1249/AI-Trading-ML/internal/indicator"
	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/structure"
	"github.com/preet1249/AI-Trading-ML/internal/tacache"
)

var t0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func candle(i int, open, close float64) model.Candle {
	hi, lo := open, close
	if close > open {
		hi, lo = close, open
	}
	return model.Candle{
		OpenTime: t0.Add(time.Duration(i) * time.Minute),
		Open:     open, High: hi, Low: lo, Close: close, Volume: 1,
	}
}

// ascending returns 200 one-minute candles rising in higher highs and higher
// lows, a 5% bearish reversal candle and one follow-through candle.
func ascending() []model.Candle {
	closes := []float64{100}
	price := 100.0
	walk := func(to float64, n int) {
		step := (to - price) / float64(n)
		for k := 1; k <= n; k++ {
			next := price + step*float64(k)
			if k == n {
				next = to
			}
			closes = append(closes, next)
		}
		price = to
	}
	for c := 0; c < 14; c++ {
		walk(price+2, 8)
		walk(price-0.9, 6)
	}
	walk(price+0.75, 3)

	cs := make([]model.Candle, 0, 202)
	for i, cl := range closes {
		open := cl
		if i > 0 {
			if cl > closes[i-1] {
				open = cl - 0.01
			} else {
				open = cl + 0.01
			}
		}
		cs = append(cs, candle(i, open, cl))
	}
	last := cs[len(cs)-1]
	rev := last.Close * 0.95
	r := candle(len(cs), last.Close, rev)
	r.High, r.Low = last.Close+0.05, rev-0.2
	cs = append(cs, r)
	f := candle(len(cs), rev, rev-0.3)
	f.High, f.Low = rev+0.1, rev-0.5
	return append(cs, f)
}

func feed(t *testing.T, m *buffer.Manager, key model.Key, cs []model.Candle) {
	t.Helper()
	for _, c := range cs {
		if err := m.IngestTick(key, c); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}
}

func newAnalyzer(src Source, cache *tacache.Cache, tfs ...model.Timeframe) *Analyzer {
	cfg := DefaultConfig()
	cfg.Timeframes = tfs
	return NewAnalyzer(src, cache,
		indicator.NewEngine(indicator.DefaultParams()),
		structure.NewDetector(structure.DefaultConfig()), cfg)
}

func TestAnalyze_AscendingThenReversal(t *testing.T) {
	m := buffer.New(200)
	key := model.NewKey("BTCUSDT", model.TF1m)
	cs := ascending()
	feed(t, m, key, cs)
	// Forming candle: closes the follow-through candle and must not be analysed.
	forming := candle(len(cs), cs[len(cs)-1].Close, 90)
	feed(t, m, key, []model.Candle{forming})

	a := newAnalyzer(m, tacache.New(tacache.DefaultConfig()), model.TF1m)
	snap, err := a.Analyze(context.Background(), "btcusdt")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if snap.Status != model.StatusOK {
		t.Fatalf("expected ok status, got %s %v", snap.Status, snap.DegradedReasons)
	}
	if snap.Candles != 200 {
		t.Fatalf("expected 200 candles in window, got %d", snap.Candles)
	}

	var chochs []model.StructureEvent
	for _, ev := range snap.Events {
		if ev.Kind == model.EventCHOCH {
			chochs = append(chochs, ev)
		}
	}
	if len(chochs) != 1 || chochs[0].Direction != model.Bearish {
		t.Fatalf("expected one bearish CHOCH, got %+v", chochs)
	}
	reversal := cs[len(cs)-2]
	if !chochs[0].Time.Equal(reversal.OpenTime) {
		t.Fatalf("CHOCH at %s, want reversal candle %s", chochs[0].Time, reversal.OpenTime)
	}

	var supply []model.OrderBlock
	for _, ob := range snap.OrderBlocks {
		if ob.Type == model.Supply {
			supply = append(supply, ob)
		}
	}
	origin := cs[len(cs)-3]
	if len(supply) != 1 || !supply[0].OriginTime.Equal(origin.OpenTime) {
		t.Fatalf("expected supply block at %s, got %+v", origin.OpenTime, supply)
	}
	if snap.Trend != model.TrendBearish {
		t.Fatalf("expected bearish trend, got %s", snap.Trend)
	}
	if snap.LastClose == 90 {
		t.Fatal("forming candle leaked into the snapshot")
	}
}

func TestAnalyze_CachedByFingerprint(t *testing.T) {
	m := buffer.New(200)
	key := model.NewKey("BTCUSDT", model.TF1m)
	cs := ascending()
	feed(t, m, key, cs[:120])

	a := newAnalyzer(m, tacache.New(tacache.DefaultConfig()), model.TF1m)
	ctx := context.Background()
	s1, err := a.Analyze(ctx, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := a.Analyze(ctx, "BTCUSDT")
	if s1 != s2 {
		t.Fatal("unchanged buffers should hit the cache")
	}

	feed(t, m, key, cs[120:122])
	s3, _ := a.Analyze(ctx, "BTCUSDT")
	if s3 == s1 || s3.Fingerprint == s1.Fingerprint {
		t.Fatal("a new closed candle must change the fingerprint")
	}
}

func TestAnalyze_InsufficientDataIsDegraded(t *testing.T) {
	m := buffer.New(200)
	key := model.NewKey("ETHUSDT", model.TF1m)
	feed(t, m, key, ascending()[:31]) // 30 closed + 1 forming

	a := newAnalyzer(m, nil, model.TF1m)
	snap, err := a.Analyze(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("short data must not fail: %v", err)
	}
	if snap.Status != model.StatusDegraded || len(snap.DegradedReasons) == 0 {
		t.Fatalf("expected degraded snapshot, got %+v", snap.Status)
	}
	if snap.Indicators != (model.IndicatorSet{}) {
		t.Fatalf("indicators must be empty when degraded, got %+v", snap.Indicators)
	}
}

func TestAnalyze_StaleIsDegraded(t *testing.T) {
	m := buffer.New(200)
	key := model.NewKey("ETHUSDT", model.TF1m)
	cs := ascending()
	feed(t, m, key, cs[:100])
	a := newAnalyzer(m, nil, model.TF1m)

	fresh, err := a.Analyze(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatal(err)
	}
	m.MarkStale(key)
	stale, err := a.Analyze(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if stale.Status != model.StatusDegraded {
		t.Fatalf("expected degraded, got %s", stale.Status)
	}
	if stale.Fingerprint == fresh.Fingerprint {
		t.Fatal("stale flag must be part of the fingerprint")
	}
}

func TestAnalyze_NoData(t *testing.T) {
	a := newAnalyzer(buffer.New(200), nil, model.TF1m)
	if _, err := a.Analyze(context.Background(), "DOGEUSDT"); !errors.Is(err, model.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	m := buffer.New(200)
	key := model.NewKey("DOGEUSDT", model.TF1m)
	feed(t, m, key, ascending()[:1]) // forming candle only
	a = newAnalyzer(m, nil, model.TF1m)
	if _, err := a.Analyze(context.Background(), "DOGEUSDT"); !errors.Is(err, model.ErrNoData) {
		t.Fatalf("expected ErrNoData for empty window, got %v", err)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	m := buffer.New(200)
	key := model.NewKey("BTCUSDT", model.TF1m)
	feed(t, m, key, ascending())

	a := newAnalyzer(m, nil, model.TF1m)
	s1, err := a.Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := a.Analyze(context.Background(), "BTCUSDT")
	b1, _ := json.Marshal(s1)
	b2, _ := json.Marshal(s2)
	if !bytes.Equal(b1, b2) {
		t.Fatal("snapshot is not byte-identical across runs")
	}
}

func TestAnalyze_Confluence(t *testing.T) {
	m := buffer.New(200)
	feed(t, m, model.NewKey("BTCUSDT", model.TF1m), ascending())

	a := newAnalyzer(m, nil, model.TF1m, model.TF5m)
	snap, err := a.Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Confluence) != 1 {
		t.Fatalf("expected one confluence entry, got %+v", snap.Confluence)
	}
	if c := snap.Confluence[0]; c.Timeframe != model.TF5m || c.Status != model.StatusDegraded {
		t.Fatalf("missing 5m buffer should be degraded, got %+v", c)
	}
}

func TestWireShape(t *testing.T) {
	m := buffer.New(200)
	feed(t, m, model.NewKey("BTCUSDT", model.TF1m), ascending())
	snap, err := newAnalyzer(m, nil, model.TF1m).Analyze(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(snap.Wire())
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"rsi", "macd", "ema20", "atr", "swings", "bos", "choch", "liquidity", "order_blocks", "zones", "trend"} {
		if _, ok := fields[k]; !ok {
			t.Errorf("wire snapshot missing %q", k)
		}
	}
	if len(fields) != 11 {
		t.Errorf("wire snapshot has %d fields, want 11", len(fields))
	}
	if string(fields["choch"]) == "null" {
		t.Error("expected a CHOCH on the wire")
	}
}

func TestDeepZoneScan(t *testing.T) {
	m := buffer.New(200)
	key := model.NewKey("SOLUSDT", model.TF1m)
	var cs []model.Candle
	for i := 0; i < 20; i++ {
		c := candle(i, 100, 100)
		c.High, c.Low = 101, 99
		cs = append(cs, c)
	}
	for i := 20; i < 25; i++ {
		c := candle(i, 100, 100)
		c.High, c.Low = 100.1, 99.9
		cs = append(cs, c)
	}
	cs = append(cs, candle(25, 100, 103))
	cs = append(cs, candle(26, 103, 103.5)) // forming
	feed(t, m, key, cs)

	a := newAnalyzer(m, nil, model.TF1m, model.TF5m)
	zones, err := a.DeepZoneScan(context.Background(), "SOLUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if len(zones) != 1 {
		t.Fatalf("expected one zone, got %+v", zones)
	}
	z := zones[0]
	if z.Type != model.ZoneDemand || z.Timeframe != model.TF1m || z.High != 100.1 || z.Low != 99.9 {
		t.Fatalf("unexpected zone %+v", z)
	}
}

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/buffer"
	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/store/sqlite"
)

type fakeSource struct {
	fp  map[string]string
	err error
}

func (f *fakeSource) Analyze(_ context.Context, symbol string) (*model.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Snapshot{
		Symbol:      symbol,
		Timeframe:   model.TF1h,
		Fingerprint: f.fp[symbol],
		Status:      model.StatusOK,
		ComputedAt:  time.Unix(1700000000, 0),
	}, nil
}

type fakeSink struct {
	mu   sync.Mutex
	got  map[model.Key][][]byte
	fail bool
}

func (f *fakeSink) Publish(_ context.Context, key model.Key, payload []byte) error {
	if f.fail {
		return errors.New("down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.got == nil {
		f.got = make(map[model.Key][][]byte)
	}
	f.got[key] = append(f.got[key], payload)
	return nil
}

func TestPublishSnapshots_SkipsUnchangedFingerprint(t *testing.T) {
	src := &fakeSource{fp: map[string]string{"BTCUSDT": "a", "ETHUSDT": "b"}}
	sink := &fakeSink{}
	s := New(context.Background(), DefaultConfig(), []string{"BTCUSDT", "ETHUSDT"}, Deps{Snapshots: src, Sinks: []SnapshotSink{sink}})

	if n := s.PublishSnapshots(context.Background()); n != 2 {
		t.Fatalf("first run published %d, want 2", n)
	}
	if n := s.PublishSnapshots(context.Background()); n != 0 {
		t.Fatalf("unchanged run published %d, want 0", n)
	}
	src.fp["BTCUSDT"] = "c"
	if n := s.PublishSnapshots(context.Background()); n != 1 {
		t.Fatalf("changed run published %d, want 1", n)
	}

	key := model.NewKey("BTCUSDT", model.TF1h)
	if len(sink.got[key]) != 2 {
		t.Fatalf("BTCUSDT payloads = %d, want 2", len(sink.got[key]))
	}
	var ev model.SnapshotEvent
	if err := json.Unmarshal(sink.got[key][1], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Fingerprint != "c" || ev.Symbol != "BTCUSDT" || ev.ComputedAt != 1700000000000 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestPublishSnapshots_RetriesAfterSinkFailure(t *testing.T) {
	src := &fakeSource{fp: map[string]string{"BTCUSDT": "a"}}
	sink := &fakeSink{fail: true}
	s := New(context.Background(), DefaultConfig(), []string{"BTCUSDT"}, Deps{Snapshots: src, Sinks: []SnapshotSink{sink}})

	if n := s.PublishSnapshots(context.Background()); n != 0 {
		t.Fatalf("published %d with failing sink", n)
	}
	sink.fail = false
	if n := s.PublishSnapshots(context.Background()); n != 1 {
		t.Fatalf("published %d after recovery, want 1", n)
	}
}

type fakeBuffers struct {
	views map[model.Key]buffer.View
	stale []model.Key
}

func (f *fakeBuffers) View(key model.Key) (buffer.View, error) {
	v, ok := f.views[key]
	if !ok {
		return buffer.View{}, model.ErrNoData
	}
	return v, nil
}

func (f *fakeBuffers) StaleKeys() []model.Key { return f.stale }

type fakeRepairer struct{ asked []model.Key }

func (f *fakeRepairer) RequestBackfill(key model.Key) bool {
	f.asked = append(f.asked, key)
	return key.Symbol != "UNKNOWN"
}

func TestRecoverStale(t *testing.T) {
	a := model.NewKey("BTCUSDT", model.TF1h)
	b := model.NewKey("UNKNOWN", model.TF1h)
	rep := &fakeRepairer{}
	s := New(context.Background(), DefaultConfig(), nil, Deps{
		Buffers:  &fakeBuffers{stale: []model.Key{a, b}},
		Repairer: rep,
	})
	if n := s.RecoverStale(); n != 1 {
		t.Fatalf("requested %d, want 1", n)
	}
	if len(rep.asked) != 2 {
		t.Fatalf("asked %v", rep.asked)
	}
}

type fakeJournal struct {
	due      []sqlite.Entry
	resolved map[string]sqlite.Result
}

func (f *fakeJournal) Due(context.Context, time.Time, int) ([]sqlite.Entry, error) {
	return f.due, nil
}

func (f *fakeJournal) Resolve(_ context.Context, id string, r sqlite.Result, _ float64) error {
	if f.resolved == nil {
		f.resolved = make(map[string]sqlite.Result)
	}
	f.resolved[id] = r
	return nil
}

func TestEvaluateOutcomes(t *testing.T) {
	key := model.NewKey("BTCUSDT", model.TF1h)
	j := &fakeJournal{due: []sqlite.Entry{
		{ID: "win", Symbol: "BTCUSDT", Timeframe: model.TF1h, Direction: model.BiasBullish, Confidence: 80,
			Entry: 100, Stop: 95, TakeProfits: []model.TakeProfit{{Label: "TP1", Price: 104}, {Label: "TP2", Price: 110}}},
		{ID: "loss", Symbol: "BTCUSDT", Timeframe: model.TF1h, Direction: model.BiasBearish, Confidence: 60, Entry: 100, Stop: 103},
		{ID: "flat", Symbol: "BTCUSDT", Timeframe: model.TF1h, Direction: model.BiasNeutral, Entry: 100},
		{ID: "nodata", Symbol: "ETHUSDT", Timeframe: model.TF1h, Direction: model.BiasBullish, Entry: 100},
	}}
	bufs := &fakeBuffers{views: map[model.Key]buffer.View{
		key: {Key: key, Candles: []model.Candle{{Close: 99}}, Open: &model.Candle{Close: 105}},
	}}
	var outcomes []string
	s := New(context.Background(), DefaultConfig(), nil, Deps{Journal: j, Buffers: bufs})
	s.OnOutcome = func(_ sqlite.Entry, r sqlite.Result, _ float64) { outcomes = append(outcomes, string(r.Outcome)) }

	if n := s.EvaluateOutcomes(context.Background()); n != 3 {
		t.Fatalf("resolved %d, want 3", n)
	}
	if r := j.resolved["win"]; r.Outcome != sqlite.OutcomeWin {
		t.Fatalf("win resolved as %+v", r)
	}
	if r := j.resolved["loss"]; r.Outcome != sqlite.OutcomeLoss {
		t.Fatalf("loss resolved as %+v", r)
	}
	if r := j.resolved["flat"]; r.Outcome != sqlite.OutcomeExpired {
		t.Fatalf("neutral resolved as %+v", r)
	}
	if _, ok := j.resolved["nodata"]; ok {
		t.Fatal("entry without a buffer was resolved")
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestLatestPrice_FallsBackToClosed(t *testing.T) {
	p, ok := latestPrice(buffer.View{Candles: []model.Candle{{Close: 1}, {Close: 2}}})
	if !ok || p != 2 {
		t.Fatalf("got %v %v", p, ok)
	}
	if _, ok := latestPrice(buffer.View{}); ok {
		t.Fatal("empty view yielded a price")
	}
}

type fakePruner struct{ before time.Time }

func (f *fakePruner) Prune(before time.Time) (int64, error) {
	f.before = before
	return 3, nil
}

func TestPruneCandles_UsesRetentionWindow(t *testing.T) {
	p := &fakePruner{}
	cfg := DefaultConfig()
	cfg.RetentionDays = 7
	s := New(context.Background(), cfg, nil, Deps{Pruner: p})
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.PruneCandles()
	if want := now.AddDate(0, 0, -7); !p.before.Equal(want) {
		t.Fatalf("pruned before %v, want %v", p.before, want)
	}
}

func TestRegisterAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheSweep = "not a spec"
	s := New(context.Background(), cfg, nil, Deps{Cache: sweeperFunc(func() int { return 0 })})
	if err := s.RegisterAll(); err == nil {
		t.Fatal("invalid spec accepted")
	}

	cfg.CacheSweep = "@every 1s"
	s = New(context.Background(), cfg, nil, Deps{Cache: sweeperFunc(func() int { return 0 })})
	if err := s.RegisterAll(); err != nil {
		t.Fatal(err)
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Fatalf("entries = %d, want 1 (jobs without deps are skipped)", n)
	}
}

type sweeperFunc func() int

func (f sweeperFunc) Sweep() int { return f() }

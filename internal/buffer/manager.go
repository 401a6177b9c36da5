// Package buffer maintains one rolling candle window per (symbol, timeframe).
//
// Each window holds up to Capacity closed candles plus at most one forming
// candle. A forming candle is replaced in place while ticks share its open
// time and is closed into the window when a newer candle arrives. Late ticks
// are dropped. A jump of more than one interval marks the buffer stale until
// a backfill repairs it.
//
// The ingest goroutine for a key is expected to be its only writer. Readers
// receive copies and never observe a window while it is being mutated.
package buffer

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/ringbuf"
)

// DefaultCapacity is the number of closed candles retained per key.
const DefaultCapacity = 200

// tfBuffer is the state for one key. mu guards every field below it.
type tfBuffer struct {
	key      model.Key
	interval time.Duration

	mu     sync.RWMutex
	closed *ringbuf.Window
	open   *model.Candle
	stale  bool
}

// View is a point-in-time copy of one buffer.
type View struct {
	Key     model.Key
	Candles []model.Candle // closed candles, oldest first
	Open    *model.Candle
	Stale   bool
}

// Last returns the newest closed candle.
func (v View) Last() (model.Candle, bool) {
	if len(v.Candles) == 0 {
		return model.Candle{}, false
	}
	return v.Candles[len(v.Candles)-1], true
}

// Manager owns every buffer. It is safe for concurrent use.
type Manager struct {
	capacity int

	mu      sync.RWMutex
	buffers map[model.Key]*tfBuffer

	// Hooks run outside buffer locks. All are optional.
	OnClosed  func(key model.Key, c model.Candle)       // candle closed into the window
	OnDropped func(key model.Key, c model.Candle)       // late tick rejected
	OnStale   func(key model.Key, last, next time.Time) // gap detected, backfill wanted
	OnRepair  func(key model.Key, loaded int)           // backfill accepted
}

// New creates a manager holding capacity closed candles per key.
func New(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		capacity: capacity,
		buffers:  make(map[model.Key]*tfBuffer, 32),
	}
}

// Capacity returns the per-key closed candle limit.
func (m *Manager) Capacity() int { return m.capacity }

func (m *Manager) lookup(key model.Key) (*tfBuffer, bool) {
	m.mu.RLock()
	b, ok := m.buffers[key]
	m.mu.RUnlock()
	return b, ok
}

func (m *Manager) getOrCreate(key model.Key) (*tfBuffer, error) {
	if b, ok := m.lookup(key); ok {
		return b, nil
	}
	if !key.Timeframe.Valid() {
		return nil, fmt.Errorf("buffer %s: unknown timeframe", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.buffers[key]; ok {
		return b, nil
	}
	b := &tfBuffer{
		key:      key,
		interval: key.Timeframe.Duration(),
		closed:   ringbuf.New(m.capacity),
	}
	m.buffers[key] = b
	return b, nil
}

// IngestTick applies a partial or closed candle to the buffer for key.
// Out-of-order candles are dropped and logged; they never return an error.
func (m *Manager) IngestTick(key model.Key, c model.Candle) error {
	b, err := m.getOrCreate(key)
	if err != nil {
		return err
	}
	c.OpenTime = c.OpenTime.UTC()

	var (
		closed  []model.Candle
		dropped bool
		gap     bool
		gapFrom time.Time
	)

	b.mu.Lock()
	last, hasLast := b.closed.Last()
	switch {
	case b.open != nil && c.OpenTime.Before(b.open.OpenTime):
		dropped = true
	case b.open == nil && hasLast && !c.OpenTime.After(last.OpenTime):
		dropped = true
	case b.open != nil && c.OpenTime.Equal(b.open.OpenTime):
		cp := c
		b.open = &cp
	default:
		ref, hasRef := last.OpenTime, hasLast
		if b.open != nil {
			ref, hasRef = b.open.OpenTime, true
			fin := *b.open
			fin.Closed = true
			b.closed.Push(fin)
			closed = append(closed, fin)
		}
		if hasRef && c.OpenTime.Sub(ref) > b.interval {
			b.stale = true
			gap, gapFrom = true, ref
		}
		cp := c
		b.open = &cp
	}
	if !dropped && c.Closed && b.open != nil {
		fin := *b.open
		b.closed.Push(fin)
		closed = append(closed, fin)
		b.open = nil
	}
	b.mu.Unlock()

	if dropped {
		log.Printf("[buffer] %s dropped out-of-order candle open_time=%s", key, c.OpenTime.Format(time.RFC3339))
		if m.OnDropped != nil {
			m.OnDropped(key, c)
		}
		return nil
	}
	if m.OnClosed != nil {
		for _, fc := range closed {
			m.OnClosed(key, fc)
		}
	}
	if gap {
		log.Printf("[buffer] %s gap detected %s -> %s, marked stale", key,
			gapFrom.Format(time.RFC3339), c.OpenTime.Format(time.RFC3339))
		if m.OnStale != nil {
			m.OnStale(key, gapFrom, c.OpenTime)
		}
	}
	return nil
}

// Backfill replaces the closed window for key with candles. The sequence must
// be contiguous at the key's interval and end after the newest closed candle
// already held. Candles at or after the forming candle's open time are ignored.
// A stale buffer whose newest closed candle equals the upstream's newest, with
// no holes of its own, is marked repaired without being replaced.
func (m *Manager) Backfill(key model.Key, candles []model.Candle) error {
	b, err := m.getOrCreate(key)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return fmt.Errorf("backfill %s: %w", key, model.ErrNoData)
	}
	cs := make([]model.Candle, len(candles))
	for i, c := range candles {
		c.OpenTime = c.OpenTime.UTC()
		c.Closed = true
		cs[i] = c
		if i > 0 && c.OpenTime.Sub(cs[i-1].OpenTime) != b.interval {
			return fmt.Errorf("backfill %s: candle %d at %s: %w", key, i,
				c.OpenTime.Format(time.RFC3339), model.ErrNotContiguous)
		}
	}

	b.mu.Lock()
	if b.open != nil {
		n := len(cs)
		for n > 0 && !cs[n-1].OpenTime.Before(b.open.OpenTime) {
			n--
		}
		cs = cs[:n]
	}
	if len(cs) == 0 {
		b.mu.Unlock()
		return fmt.Errorf("backfill %s: %w", key, model.ErrBackfillNotNewer)
	}
	newest := cs[len(cs)-1]
	if last, ok := b.closed.Last(); ok && !newest.OpenTime.After(last.OpenTime) {
		// Upstream ends exactly where the window does: nothing was missed.
		if b.stale && newest.OpenTime.Equal(last.OpenTime) && b.contiguousLocked() {
			b.stale = false
			loaded := b.closed.Len()
			b.mu.Unlock()
			log.Printf("[buffer] %s tail matches upstream at %s, stale cleared", key, last.OpenTime.Format(time.RFC3339))
			if m.OnRepair != nil {
				m.OnRepair(key, loaded)
			}
			return nil
		}
		b.mu.Unlock()
		return fmt.Errorf("backfill %s: newest %s not after %s: %w", key,
			newest.OpenTime.Format(time.RFC3339), last.OpenTime.Format(time.RFC3339), model.ErrBackfillNotNewer)
	}
	b.closed.Reset(cs)
	b.stale = b.open != nil && b.open.OpenTime.Sub(newest.OpenTime) > b.interval
	loaded := b.closed.Len()
	b.mu.Unlock()

	if m.OnRepair != nil {
		m.OnRepair(key, loaded)
	}
	return nil
}

// contiguousLocked reports whether the closed window has no holes and the
// forming candle, if any, follows it within one interval. b.mu must be held.
func (b *tfBuffer) contiguousLocked() bool {
	n := b.closed.Len()
	for i := 1; i < n; i++ {
		if b.closed.At(i).OpenTime.Sub(b.closed.At(i-1).OpenTime) != b.interval {
			return false
		}
	}
	if b.open != nil && n > 0 {
		return b.open.OpenTime.Sub(b.closed.At(n-1).OpenTime) <= b.interval
	}
	return true
}

// Window returns a copy of the last n closed candles.
func (m *Manager) Window(key model.Key, n int) ([]model.Candle, error) {
	b, ok := m.lookup(key)
	if !ok {
		return nil, &model.InsufficientDataError{Have: 0, Need: n}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if have := b.closed.Len(); have < n {
		return nil, &model.InsufficientDataError{Have: have, Need: n}
	}
	return b.closed.Tail(n), nil
}

// View copies every closed candle, the forming candle and the stale flag.
func (m *Manager) View(key model.Key) (View, error) {
	b, ok := m.lookup(key)
	if !ok {
		return View{}, fmt.Errorf("buffer %s: %w", key, model.ErrNoData)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	v := View{
		Key:     key,
		Candles: b.closed.Tail(b.closed.Len()),
		Stale:   b.stale,
	}
	if b.open != nil {
		cp := *b.open
		v.Open = &cp
	}
	return v, nil
}

// MarkStale flags key as needing a backfill, e.g. after a stream disconnect.
func (m *Manager) MarkStale(key model.Key) {
	if b, ok := m.lookup(key); ok {
		b.mu.Lock()
		b.stale = true
		b.mu.Unlock()
	}
}

// Stale reports whether key is waiting for a backfill.
func (m *Manager) Stale(key model.Key) bool {
	b, ok := m.lookup(key)
	if !ok {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// Keys lists every known key in a stable order.
func (m *Manager) Keys() []model.Key {
	m.mu.RLock()
	keys := make([]model.Key, 0, len(m.buffers))
	for k := range m.buffers {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Evicted returns the number of closed candles pushed out of every window
// on overflow since start.
func (m *Manager) Evicted() uint64 {
	m.mu.RLock()
	bufs := make([]*tfBuffer, 0, len(m.buffers))
	for _, b := range m.buffers {
		bufs = append(bufs, b)
	}
	m.mu.RUnlock()

	var n uint64
	for _, b := range bufs {
		b.mu.RLock()
		n += b.closed.Evicted()
		b.mu.RUnlock()
	}
	return n
}

// StaleKeys lists keys currently flagged stale.
func (m *Manager) StaleKeys() []model.Key {
	var out []model.Key
	for _, k := range m.Keys() {
		if m.Stale(k) {
			out = append(out, k)
		}
	}
	return out
}

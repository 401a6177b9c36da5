// Package ringbuf provides a fixed-capacity window of closed candles.
// Pushing into a full window evicts the oldest candle. The window is not
// synchronised; the owning buffer guards it with its own lock.
package ringbuf

import (
	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Window holds up to Cap() candles in insertion order.
// Storage is rounded up to a power of two so indexing is a mask.
type Window struct {
	buf   []model.Candle
	mask  uint64
	limit int

	head uint64 // next write position
	size int

	evicted uint64
}

// New creates a window holding at most capacity candles. Minimum capacity is 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	n := nextPow2(capacity)
	return &Window{
		buf:   make([]model.Candle, n),
		mask:  uint64(n - 1),
		limit: capacity,
	}
}

// Push appends c, evicting the oldest candle when the window is full.
// It reports whether an eviction happened.
func (w *Window) Push(c model.Candle) bool {
	w.buf[w.head&w.mask] = c
	w.head++
	if w.size < w.limit {
		w.size++
		return false
	}
	w.evicted++
	return true
}

// Last returns the newest candle.
func (w *Window) Last() (model.Candle, bool) {
	if w.size == 0 {
		return model.Candle{}, false
	}
	return w.buf[(w.head-1)&w.mask], true
}

// At returns the i-th candle counting from the oldest.
func (w *Window) At(i int) model.Candle {
	start := w.head - uint64(w.size)
	return w.buf[(start+uint64(i))&w.mask]
}

// Tail copies the newest n candles (oldest first) into a fresh slice.
// n larger than Len returns every candle.
func (w *Window) Tail(n int) []model.Candle {
	if n > w.size {
		n = w.size
	}
	if n <= 0 {
		return []model.Candle{}
	}
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = w.At(w.size - n + i)
	}
	return out
}

// Reset replaces the contents with the newest Cap() candles of cs.
func (w *Window) Reset(cs []model.Candle) {
	w.head = 0
	w.size = 0
	if len(cs) > w.limit {
		cs = cs[len(cs)-w.limit:]
	}
	for _, c := range cs {
		w.Push(c)
	}
}

// Len returns the number of candles held.
func (w *Window) Len() int { return w.size }

// Cap returns the logical capacity.
func (w *Window) Cap() int { return w.limit }

// Evicted returns the total number of candles dropped on overflow.
func (w *Window) Evicted() uint64 { return w.evicted }

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

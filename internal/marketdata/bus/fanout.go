// Package bus fans one stream of values out to several consumers.
package bus

import (
	"context"
	"sync"
)

// FanOut copies every value read from its input to each subscriber. A
// subscriber whose channel is full misses the value; it never blocks the
// others.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []chan T
	bufSize int

	// OnDrop is called with the index of a subscriber that missed a value.
	OnDrop func(subscriber int)
}

func New[T any](bufSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: bufSize}
}

// Subscribe adds a consumer. Call it before Run.
func (f *FanOut[T]) Subscribe() <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run forwards input until ctx is done or input is closed, then closes every
// subscriber channel.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- v:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats reports how full each subscriber channel is.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}

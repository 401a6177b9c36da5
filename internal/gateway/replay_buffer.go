package gateway

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte // envelope JSON
}

// ReplayBuffer keeps the most recent envelopes of one channel so a client
// that saw a gap in channel_seq can fetch what it missed.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	cap     int
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &ReplayBuffer{entries: make([]replayEntry, 0, capacity), cap: capacity}
}

// Push appends an envelope, dropping the oldest once full. Sequence numbers
// must be pushed in increasing order.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := append([]byte(nil), data...)
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) == rb.cap {
		copy(rb.entries, rb.entries[1:])
		rb.entries = rb.entries[:rb.cap-1]
	}
	rb.entries = append(rb.entries, replayEntry{Seq: seq, Data: cp})
}

// Since returns the envelopes with seq > after, oldest first.
func (rb *ReplayBuffer) Since(after int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	var out [][]byte
	for _, e := range rb.entries {
		if e.Seq > after {
			out = append(out, e.Data)
		}
	}
	return out
}

func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

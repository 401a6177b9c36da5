package gateway

import (
	"strconv"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// envelope wraps a snapshot payload for websocket delivery:
//
//	{"channel":"ta:snapshot:BTCUSDT:1h","data":{...},"ts":"...","seq":N,"channel_seq":M}
//
// data is the payload verbatim, so the envelope is assembled by hand rather
// than re-encoding it.
func envelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// Channel names the websocket channel of a key.
func Channel(key model.Key) string { return "ta:snapshot:" + key.String() }

// broadcast records payload as the latest for key and fans it out to every
// client subscribed to key.Symbol. Slow clients miss messages rather than
// block the hub.
func (h *Hub) broadcast(key model.Key, payload []byte) {
	channel := Channel(key)
	now := h.now().UTC()

	h.mu.Lock()
	h.seq++
	h.channelSeqs[channel]++
	seq, chSeq := h.seq, h.channelSeqs[channel]
	buf := envelope(channel, payload, now, seq, chSeq)
	h.latest[key] = buf
	rb, ok := h.replay[channel]
	if !ok {
		rb = NewReplayBuffer(h.cfg.ReplaySize)
		h.replay[channel] = rb
	}
	h.mu.Unlock()
	rb.Push(chSeq, buf)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(key.Symbol) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			h.dropped.Add(1)
		}
	}
}

package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/go-redis/redis/v8"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Reader serves published snapshots.
type Reader struct {
	client *goredis.Client
}

func NewReader(client *goredis.Client) *Reader {
	return &Reader{client: client}
}

// Latest returns the newest snapshot payload for key, or nil if none.
func (r *Reader) Latest(ctx context.Context, key model.Key) ([]byte, error) {
	data, err := r.client.Get(ctx, LatestKey(key)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", LatestKey(key), err)
	}
	return data, nil
}

// Recent returns up to n snapshot payloads for key, newest first.
func (r *Reader) Recent(ctx context.Context, key model.Key, n int64) ([][]byte, error) {
	msgs, err := r.client.XRevRangeN(ctx, StreamKey(key), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange %s: %w", StreamKey(key), err)
	}
	out := make([][]byte, 0, len(msgs))
	for _, m := range msgs {
		if s, ok := m.Values["data"].(string); ok {
			out = append(out, []byte(s))
		}
	}
	return out, nil
}

// Message is one relayed snapshot.
type Message struct {
	Key     model.Key
	Payload []byte
}

// Subscribe relays every published snapshot into out until ctx is done.
func (r *Reader) Subscribe(ctx context.Context, out chan<- Message) error {
	pubsub := r.client.PSubscribe(ctx, SnapshotPattern)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			key, ok := ParseChannel(msg.Channel)
			if !ok {
				continue
			}
			select {
			case out <- Message{Key: key, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// ParseChannel recovers the key from a snapshot channel name.
func ParseChannel(ch string) (model.Key, bool) {
	rest, ok := strings.CutPrefix(ch, "ta:snapshot:")
	if !ok {
		return model.Key{}, false
	}
	sym, tf, ok := strings.Cut(rest, ":")
	if !ok || !model.Timeframe(tf).Valid() || sym == "" {
		return model.Key{}, false
	}
	return model.NewKey(sym, model.Timeframe(tf)), true
}

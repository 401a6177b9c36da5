package gateway

import (
	"context"
	"log"
	"time"

	"github.com/jpillora/backoff"

	storeredis "github.com/preet1249/AI-Trading-ML/internal/store/redis"
)

// Subscriber delivers snapshots published by any predictor instance.
type Subscriber interface {
	Subscribe(ctx context.Context, out chan<- storeredis.Message) error
}

// Relay fans snapshots from sub out to websocket clients until ctx is done,
// resubscribing whenever the subscription ends early.
func (h *Hub) Relay(ctx context.Context, sub Subscriber) {
	msgs := make(chan storeredis.Message, 64)
	go func() {
		b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: true}
		for {
			err := sub.Subscribe(ctx, msgs)
			if ctx.Err() != nil {
				return
			}
			wait := b.Duration()
			log.Printf("[gateway] snapshot subscription ended (%v), retrying in %s", err, wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}()

	log.Println("[gateway] relaying published snapshots")
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-msgs:
			h.broadcast(m.Key, m.Payload)
		}
	}
}

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New[model.Candle](10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.Candle, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Candle{Open: 100, High: 110, Low: 90, Close: 105, Closed: true}

	for i, out := range []<-chan model.Candle{out1, out2} {
		select {
		case c := <-out:
			if c.Close != 105 {
				t.Errorf("out%d: close = %v", i+1, c.Close)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out", i+1)
		}
	}
}

func TestFanOut_SlowSubscriberDrops(t *testing.T) {
	fo := New[int](1)
	fast := fo.Subscribe()
	_ = fo.Subscribe() // never drained

	dropped := make(chan int, 10)
	fo.OnDrop = func(i int) { dropped <- i }

	input := make(chan int)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		input <- i
		if got := <-fast; got != i {
			t.Fatalf("fast got %d, want %d", got, i)
		}
	}
	close(input)
	<-done

	if len(dropped) != 2 {
		t.Fatalf("drops = %d, want 2", len(dropped))
	}
	if i := <-dropped; i != 1 {
		t.Fatalf("dropped subscriber = %d, want 1", i)
	}
	if _, ok := <-fast; ok {
		t.Fatal("subscriber channel not closed after input closed")
	}
}

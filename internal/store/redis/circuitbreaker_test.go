package redis

import (
	"errors"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int, reset time.Duration) (*CircuitBreaker, *clock) {
	clk := &clock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(max, reset)
	cb.now = clk.now
	return cb, clk
}

var errFail = errors.New("fail")

func fail() error { return errFail }
func ok() error   { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	if cb.CurrentState() != StateClosed {
		t.Fatalf("initial state %v", cb.CurrentState())
	}
	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); err != errFail {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.CurrentState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if err != ErrCircuitOpen || called {
		t.Errorf("open breaker ran fn (err=%v)", err)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)
	cb.Execute(fail)
	cb.Execute(fail)
	cb.Execute(ok)
	cb.Execute(fail)
	cb.Execute(fail)
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, want closed", cb.CurrentState())
	}
}

func TestCircuitBreaker_Probe(t *testing.T) {
	tests := []struct {
		name  string
		probe func() error
		want  State
	}{
		{"success closes", ok, StateClosed},
		{"failure reopens", fail, StateOpen},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cb, clk := newTestBreaker(2, time.Second)
			var seen []State
			cb.OnStateChange = func(_, to State) { seen = append(seen, to) }

			cb.Execute(fail)
			cb.Execute(fail)
			clk.advance(500 * time.Millisecond)
			if err := cb.Execute(ok); err != ErrCircuitOpen {
				t.Fatalf("before reset timeout: %v", err)
			}

			clk.advance(600 * time.Millisecond)
			cb.Execute(tc.probe)
			if got := cb.CurrentState(); got != tc.want {
				t.Errorf("state = %v, want %v", got, tc.want)
			}
			if len(seen) != 3 || seen[0] != StateOpen || seen[1] != StateHalfOpen || seen[2] != tc.want {
				t.Errorf("transitions = %v", seen)
			}
		})
	}
}

func TestCircuitBreaker_ReopenRestartsTimeout(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	cb.Execute(fail)
	clk.advance(2 * time.Second)
	cb.Execute(fail) // failed probe

	clk.advance(500 * time.Millisecond)
	if err := cb.Execute(ok); err != ErrCircuitOpen {
		t.Errorf("err = %v, want ErrCircuitOpen right after failed probe", err)
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", s, s.String())
		}
	}
}

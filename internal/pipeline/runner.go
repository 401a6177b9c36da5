package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/logger"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrRunnerStopped  = errors.New("pipeline runner stopped")
)

// Request is one Invoke call. SessionID is optional; a newer request on the
// same session supersedes the older one.
type Request struct {
	Query     string `json:"query"`
	Symbol    string `json:"symbol"`
	SessionID string `json:"session_id,omitempty"`
}

type task struct {
	ctx  context.Context
	st   State
	done chan outcome
}

type outcome struct {
	st  State
	err error
}

type session struct {
	seq    uint64
	cancel context.CancelFunc
}

// Runner executes graph runs on a fixed pool of workers.
type Runner struct {
	graph   *Graph
	workers int
	tasks   chan task

	mu       sync.Mutex
	sessions map[string]session
	seq      uint64

	stopped chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	// OnResult is called after every run that reaches END. Optional.
	OnResult func(ctx context.Context, res *Result)
	// OnRun observes every run with its outcome label. Optional.
	OnRun func(outcome string, d time.Duration)
}

func NewRunner(g *Graph) *Runner {
	cfg := g.Config()
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queue := cfg.QueueSize
	if queue < 0 {
		queue = 0
	}
	return &Runner{
		graph:    g,
		workers:  workers,
		tasks:    make(chan task, queue),
		sessions: make(map[string]session),
		stopped:  make(chan struct{}),
	}
}

// Start launches the workers. They exit when ctx is done or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	go func() {
		select {
		case <-ctx.Done():
			r.once.Do(func() { close(r.stopped) })
		case <-r.stopped:
		}
	}()
	slog.Info("pipeline runner started", slog.Int("workers", r.workers))
}

// Stop stops accepting work and waits for running tasks to finish.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stopped) })
	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopped:
			return
		case t := <-r.tasks:
			st, err := r.graph.Run(t.ctx, t.st)
			t.done <- outcome{st: st, err: err}
		}
	}
}

// Invoke runs the graph for req and waits for its terminal state. Errors
// are *PipelineError for failed runs, ErrInvalidRequest or ErrRunnerStopped.
func (r *Runner) Invoke(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Symbol) == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	traceID := logger.TraceID(ctx)
	if traceID == "" {
		traceID = logger.NewTraceID()
		ctx = logger.WithTraceID(ctx, traceID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if req.SessionID != "" {
		defer r.supersede(req.SessionID, cancel)()
	}

	st := NewState(traceID, req.Query, req.Symbol)
	st.SessionID = req.SessionID
	slog.Info("pipeline invoked", append(logger.LogWithTrace(ctx),
		slog.String("symbol", st.Symbol), slog.String("session", req.SessionID))...)

	start := time.Now()
	t := task{ctx: runCtx, st: st, done: make(chan outcome, 1)}
	select {
	case r.tasks <- t:
	case <-ctx.Done():
		return nil, &PipelineError{TraceID: traceID, Stage: StageStart, Err: ctx.Err(), State: st}
	case <-r.stopped:
		return nil, ErrRunnerStopped
	}

	var out outcome
	select {
	case out = <-t.done:
	case <-r.stopped:
		return nil, ErrRunnerStopped
	}
	d := time.Since(start)

	res := out.st.Result()
	res.DurationMS = d.Milliseconds()
	if out.err != nil {
		r.observe(out.err, d)
		return res, out.err
	}
	r.observe(nil, d)
	slog.Info("pipeline finished", append(logger.LogWithTrace(ctx),
		slog.String("route", res.Route), slog.Duration("took", d))...)
	if r.OnResult != nil {
		r.OnResult(ctx, res)
	}
	return res, nil
}

func (r *Runner) observe(err error, d time.Duration) {
	if r.OnRun == nil {
		return
	}
	label := "ok"
	var pe *PipelineError
	switch {
	case err == nil:
	case errors.As(err, &pe) && pe.Stage == StageCancelled:
		label = "cancelled"
	default:
		label = "failed"
	}
	r.OnRun(label, d)
}

// supersede cancels the session's previous run and registers this one. The
// returned func unregisters it if it is still the latest.
func (r *Runner) supersede(id string, cancel context.CancelFunc) func() {
	r.mu.Lock()
	if prev, ok := r.sessions[id]; ok {
		prev.cancel()
	}
	r.seq++
	seq := r.seq
	r.sessions[id] = session{seq: seq, cancel: cancel}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		if cur, ok := r.sessions[id]; ok && cur.seq == seq {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
	}
}

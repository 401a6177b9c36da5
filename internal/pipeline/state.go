package pipeline

import (
	"errors"
	"fmt"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Stage names a node of the graph.
type Stage string

const (
	StageStart        Stage = "START"
	StageTA           Stage = "TA"
	StageRoute        Stage = "ROUTE"
	StageDeepZoneScan Stage = "DEEP_ZONE_SCAN"
	StageNews         Stage = "NEWS"
	StagePredict      Stage = "PREDICT"
	StageEnd          Stage = "END"
	StageCancelled    Stage = "cancelled"
)

// ErrFieldSet is returned when a stage tries to overwrite a populated field.
var ErrFieldSet = errors.New("state field already set")

// TASection is the TA stage output. Snapshot is nil when no snapshot could
// be produced.
type TASection struct {
	Status   model.Status    `json:"status"`
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// StageError is a recorded error. Non-fatal errors accumulate while the run
// continues.
type StageError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// State is the record threaded through the graph. It is passed by value and
// each With method returns a copy with one more field set; a field that is
// already populated is never replaced.
type State struct {
	TraceID   string
	Query     string
	Symbol    string
	SessionID string

	ta         *TASection
	route      *Branch
	deepZones  []model.ZoneRange
	deepDone   bool
	news       *model.NewsResult
	prediction *model.Prediction
	errors     []StageError
}

// NewState is the START state: only the query and symbol are set.
func NewState(traceID, query, symbol string) State {
	return State{TraceID: traceID, Query: query, Symbol: model.NormalizeSymbol(symbol)}
}

func (s State) TA() *TASection               { return s.ta }
func (s State) Route() (Branch, bool)        { return deref(s.route) }
func (s State) DeepZones() []model.ZoneRange { return s.deepZones }
func (s State) News() *model.NewsResult      { return s.news }
func (s State) Prediction() *model.Prediction {
	return s.prediction
}

// Errors returns a copy of the recorded errors.
func (s State) Errors() []StageError {
	return append([]StageError(nil), s.errors...)
}

func deref(b *Branch) (Branch, bool) {
	if b == nil {
		return 0, false
	}
	return *b, true
}

func fieldSet(name string) error { return fmt.Errorf("%s: %w", name, ErrFieldSet) }

func (s State) WithTA(sec TASection) (State, error) {
	if s.ta != nil {
		return s, fieldSet("ta")
	}
	s.ta = &sec
	return s, nil
}

func (s State) WithRoute(b Branch) (State, error) {
	if s.route != nil {
		return s, fieldSet("routing_decision")
	}
	s.route = &b
	return s, nil
}

func (s State) WithDeepZones(zs []model.ZoneRange) (State, error) {
	if s.deepDone {
		return s, fieldSet("deep_zones")
	}
	s.deepZones = append([]model.ZoneRange{}, zs...)
	s.deepDone = true
	return s, nil
}

func (s State) WithNews(n model.NewsResult) (State, error) {
	if s.news != nil {
		return s, fieldSet("news")
	}
	s.news = &n
	return s, nil
}

func (s State) WithPrediction(p model.Prediction) (State, error) {
	if s.prediction != nil {
		return s, fieldSet("prediction")
	}
	s.prediction = &p
	return s, nil
}

// WithError appends err without sharing the backing array with s.
func (s State) WithError(stage Stage, err error, fatal bool) State {
	errs := make([]StageError, len(s.errors), len(s.errors)+1)
	copy(errs, s.errors)
	s.errors = append(errs, StageError{Stage: stage, Message: err.Error(), Fatal: fatal})
	return s
}

// Result is the JSON form returned to callers of Invoke.
type Result struct {
	TraceID    string            `json:"trace_id"`
	Query      string            `json:"query"`
	Symbol     string            `json:"symbol"`
	TA         *TASection        `json:"ta"`
	Route      string            `json:"routing_decision"`
	DeepZones  []model.ZoneRange `json:"deep_zones,omitempty"`
	News       *model.NewsResult `json:"news"`
	Prediction *model.Prediction `json:"prediction"`
	Errors     []StageError      `json:"errors"`
	DurationMS int64             `json:"duration_ms"`
}

// Result projects the state onto the caller-facing shape.
func (s State) Result() *Result {
	r := &Result{
		TraceID:    s.TraceID,
		Query:      s.Query,
		Symbol:     s.Symbol,
		TA:         s.ta,
		DeepZones:  s.deepZones,
		News:       s.news,
		Prediction: s.prediction,
		Errors:     s.Errors(),
	}
	if b, ok := s.Route(); ok {
		r.Route = b.String()
	}
	if r.Errors == nil {
		r.Errors = []StageError{}
	}
	return r
}

// PipelineError is the terminal failure of a run.
type PipelineError struct {
	TraceID string
	Stage   Stage
	Err     error
	State   State
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s failed at %s: %v", e.TraceID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/preet1249/AI-Trading-ML/internal/logger"
	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/pipeline"
	"github.com/preet1249/AI-Trading-ML/internal/store/sqlite"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Invoker interface {
	Invoke(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (*model.Snapshot, error)
}

type PredictionLog interface {
	Recent(ctx context.Context, symbol string, limit int) ([]sqlite.Entry, error)
}

// HistorySource returns recent snapshot payloads for a key, newest first.
type HistorySource interface {
	Recent(ctx context.Context, key model.Key, n int64) ([][]byte, error)
}

// Deps are the backends of the API. History is optional.
type Deps struct {
	Runner      Invoker
	Analyzer    Analyzer
	Predictions PredictionLog
	History     HistorySource
	Hub         *Hub
}

// Server serves the REST API and the websocket hub.
type Server struct {
	cfg     Config
	deps    Deps
	limiter *rateLimiter
	srv     *http.Server
}

func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: newRateLimiter(cfg.PredictPerMinute, cfg.PredictBurst, cfg.TrustProxy),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/predict", s.limiter.wrap(s.handlePredict))
	mux.HandleFunc("GET /api/v1/ta/{symbol}", s.handleTA)
	mux.HandleFunc("GET /api/v1/predictions", s.handlePredictions)
	mux.HandleFunc("GET /api/v1/missed", s.handleMissed)
	if s.deps.History != nil {
		mux.HandleFunc("GET /api/v1/snapshots/{symbol}/{tf}", s.handleSnapshots)
	}
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("OPTIONS /api/", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (s *Server) Start() error {
	log.Printf("[gateway] listening on %s", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.srv.Shutdown(ctx)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Trace-ID")
	w.Header().Set("Access-Control-Expose-Headers", "Retry-After")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] encode response: %v", err)
	}
}

type errorBody struct {
	Error   string                `json:"error"`
	TraceID string                `json:"trace_id,omitempty"`
	Stage   pipeline.Stage        `json:"stage,omitempty"`
	Errors  []pipeline.StageError `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

type predictRequest struct {
	Query     string `json:"query"`
	Symbol    string `json:"symbol"`
	SessionID string `json:"session_id,omitempty"`
}

// statusFor maps a failed run onto an HTTP status.
func statusFor(err error) int {
	var ue *model.UpstreamError
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrRunnerStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrNoData), errors.Is(err, model.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ue), errors.Is(err, model.ErrUpstreamTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	traceID := r.Header.Get("X-Trace-ID")
	if traceID == "" {
		traceID = logger.NewTraceID()
	}
	ctx := logger.WithTraceID(r.Context(), traceID)
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	w.Header().Set("X-Trace-ID", traceID)

	res, err := s.deps.Runner.Invoke(ctx, pipeline.Request{Query: req.Query, Symbol: req.Symbol, SessionID: req.SessionID})
	if err != nil {
		code := statusFor(err)
		body := errorBody{Error: err.Error(), TraceID: traceID}
		var pe *pipeline.PipelineError
		if errors.As(err, &pe) {
			body.Stage = pe.Stage
			body.Errors = pe.State.Errors()
		}
		slog.Warn("predict request failed", append(logger.LogWithTrace(ctx),
			slog.Int("status", code), slog.String("error", err.Error()))...)
		writeJSON(w, code, body)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTA(w http.ResponseWriter, r *http.Request) {
	symbol := model.NormalizeSymbol(r.PathValue("symbol"))
	snap, err := s.deps.Analyzer.Analyze(r.Context(), symbol)
	if err != nil {
		code := statusFor(err)
		if errors.Is(err, model.ErrNoData) {
			code = http.StatusNotFound
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap.Wire())
}

func (s *Server) handlePredictions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if s.cfg.MaxPredictions > 0 {
		limit = min(limit, s.cfg.MaxPredictions)
	}
	symbol := model.NormalizeSymbol(r.URL.Query().Get("symbol"))
	entries, err := s.deps.Predictions.Recent(r.Context(), symbol, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []sqlite.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	tf, err := model.ParseTimeframe(r.PathValue("tf"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := int64(10)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}
	key := model.NewKey(r.PathValue("symbol"), tf)
	payloads, err := s.deps.History.Recent(r.Context(), key, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	out := make([]json.RawMessage, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMissed serves buffered envelopes so a websocket client can fill a
// channel_seq gap: GET /api/v1/missed?channel=ta:snapshot:BTCUSDT:1h&after=41
func (s *Server) handleMissed(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if channel == "" || err != nil {
		writeError(w, http.StatusBadRequest, "channel and after are required")
		return
	}
	out := []json.RawMessage{}
	for _, e := range s.deps.Hub.Missed(channel, after) {
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWS upgrades to a websocket. ?symbol=BTCUSDT,ETHUSDT narrows the
// stream; without it every symbol is delivered.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade: %v", err)
		return
	}
	var symbols []string
	if v := r.URL.Query().Get("symbol"); v != "" {
		symbols = splitSymbols(v)
	}
	s.deps.Hub.attach(conn, symbols)
}

func splitSymbols(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

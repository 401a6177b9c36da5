// Package notification delivers prediction and outcome alerts to external
// channels (webhook, Telegram) without blocking the code that raises them.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Alert is one notification.
type Alert struct {
	Level   Level             `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Notifier delivers an alert to one backend.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

type Config struct {
	WebhookURL     string `yaml:"webhook_url" split_words:"true"`
	TelegramToken  string `yaml:"telegram_token" split_words:"true"`
	TelegramChatID string `yaml:"telegram_chat_id" envconfig:"TELEGRAM_CHAT_ID"`
	// MinConfidence is the lowest prediction confidence worth an alert.
	MinConfidence int     `yaml:"min_confidence" split_words:"true"`
	QueueSize     int     `yaml:"queue_size" split_words:"true"`
	RatePerSecond float64 `yaml:"rate_per_second" split_words:"true"`
}

func DefaultConfig() Config {
	return Config{MinConfidence: 70, QueueSize: 256, RatePerSecond: 1}
}

// FromConfig builds the notifier for every configured backend, or a
// LogNotifier when none is.
func FromConfig(cfg Config) Notifier {
	var m Multi
	if cfg.WebhookURL != "" {
		m = append(m, NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		m = append(m, NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if len(m) == 0 {
		return LogNotifier{}
	}
	return m
}

// LogNotifier writes alerts to the log.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, a Alert) error {
	log.Printf("[notify] [%s] %s: %s", a.Level, a.Title, a.Message)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher queues alerts and sends them from one goroutine at a bounded
// rate. A full queue drops the alert.
type Dispatcher struct {
	n       Notifier
	queue   chan Alert
	limiter *rate.Limiter
	timeout time.Duration

	OnDrop func()
}

func NewDispatcher(n Notifier, cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Dispatcher{
		n:       n,
		queue:   make(chan Alert, cfg.QueueSize),
		limiter: rate.NewLimiter(limit, 1),
		timeout: 10 * time.Second,
	}
}

// Notify enqueues a without blocking and reports whether it was accepted.
func (d *Dispatcher) Notify(a Alert) bool {
	select {
	case d.queue <- a:
		return true
	default:
		if d.OnDrop != nil {
			d.OnDrop()
		}
		return false
	}
}

// Run sends queued alerts until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			sctx, cancel := context.WithTimeout(ctx, d.timeout)
			if err := d.n.Send(sctx, a); err != nil {
				log.Printf("[notify] %s: %v", a.Title, err)
			}
			cancel()
		}
	}
}

// PredictionAlert describes a new prediction.
func PredictionAlert(symbol string, tf model.Timeframe, p model.Prediction) Alert {
	fields := map[string]string{
		"entry":      fmt.Sprintf("%.8g", p.EntryPrice),
		"stop_loss":  fmt.Sprintf("%.8g", p.StopLoss),
		"confidence": fmt.Sprintf("%d", p.Confidence),
	}
	for _, tp := range p.TakeProfits {
		fields[strings.ToLower(tp.Label)] = fmt.Sprintf("%.8g", tp.Price)
	}
	return Alert{
		Level:   LevelInfo,
		Title:   fmt.Sprintf("%s %s %s (%d%%)", symbol, tf, p.Direction, p.Confidence),
		Message: p.Reasoning,
		Fields:  fields,
	}
}

// OutcomeAlert describes a resolved prediction. Losses are warnings.
func OutcomeAlert(symbol string, direction model.Bias, outcome string, accuracy, price float64) Alert {
	level := LevelInfo
	if outcome == "LOSS" {
		level = LevelWarning
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s prediction: %s", symbol, direction, outcome),
		Message: fmt.Sprintf("accuracy %.1f at price %.8g", accuracy, price),
	}
}

// sortedFields renders fields as "k: v" lines in key order.
func sortedFields(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + ": " + fields[k]
	}
	return out
}

// Package oracle asks an OpenAI-compatible chat completions endpoint
// (OpenRouter by default) for a trading prediction and validates the answer.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

var ErrNotConfigured = errors.New("oracle not configured")

type Config struct {
	APIKey      string        `yaml:"api_key" split_words:"true"`
	BaseURL     string        `yaml:"base_url" split_words:"true"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" split_words:"true"`
	Timeout     time.Duration `yaml:"timeout"`
	Referer     string        `yaml:"referer"`
	Title       string        `yaml:"title"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://openrouter.ai/api/v1",
		Model:       "qwen/qwen-2.5-72b-instruct",
		Temperature: 0.7,
		MaxTokens:   2000,
		Timeout:     30 * time.Second,
		Title:       "AI Trading Predictor",
	}
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Synthesize sends the TA and news payload and returns the validated
// prediction. Timeouts, 429 and 5xx responses and unparseable answers are
// retryable *model.UpstreamError values; other 4xx responses are not.
func (c *Client) Synthesize(ctx context.Context, req model.PredictRequest) (model.Prediction, error) {
	if c.cfg.APIKey == "" {
		return model.Prediction{}, ErrNotConfigured
	}
	prompt, err := userPrompt(req)
	if err != nil {
		return model.Prediction{}, err
	}
	body, _ := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return model.Prediction{}, err
	}
	hreq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	hreq.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		hreq.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		hreq.Header.Set("X-Title", c.cfg.Title)
	}

	start := time.Now()
	resp, err := c.http.Do(hreq)
	if err != nil {
		return model.Prediction{}, &model.UpstreamError{Service: "oracle", Retryable: true, Timeout: ctx.Err() != nil || isTimeout(err), Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return model.Prediction{}, &model.UpstreamError{Service: "oracle", Retryable: true, Timeout: ctx.Err() != nil, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return model.Prediction{}, &model.UpstreamError{
			Service:   "oracle",
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200)),
		}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return model.Prediction{}, &model.UpstreamError{Service: "oracle", Retryable: true, Err: fmt.Errorf("decode: %w", err)}
	}
	if cr.Error != nil {
		return model.Prediction{}, &model.UpstreamError{Service: "oracle", Retryable: true, Err: errors.New(cr.Error.Message)}
	}
	if len(cr.Choices) == 0 {
		return model.Prediction{}, &model.UpstreamError{Service: "oracle", Retryable: true, Err: errors.New("no choices")}
	}

	pred, err := Parse(cr.Choices[0].Message.Content, req.LastClose)
	if err != nil {
		return model.Prediction{}, &model.UpstreamError{Service: "oracle", Retryable: true, Err: err}
	}
	pred.Model = c.cfg.Model
	log.Printf("[oracle] %s: %s %d%% in %s", req.Symbol, pred.Direction, pred.Confidence, time.Since(start).Round(time.Millisecond))
	return pred, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package news queries a Google Custom Search compatible endpoint for recent
// articles about a symbol and scores their sentiment.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// MaxResults is the provider's page cap.
const MaxResults = 10

// ErrNotConfigured means no API key or engine ID was supplied.
var ErrNotConfigured = errors.New("news provider not configured")

type Config struct {
	APIKey        string        `yaml:"api_key" split_words:"true"`
	EngineID      string        `yaml:"engine_id" split_words:"true"`
	BaseURL       string        `yaml:"base_url" split_words:"true"`
	RatePerSecond float64       `yaml:"rate_per_second" split_words:"true"`
	Burst         int           `yaml:"burst"`
	Timeout       time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://www.googleapis.com/customsearch/v1",
		RatePerSecond: 1,
		Burst:         2,
		Timeout:       10 * time.Second,
	}
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultConfig().RatePerSecond
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		now:     time.Now,
	}
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
		Pagemap struct {
			Metatags []map[string]string `json:"metatags"`
		} `json:"pagemap"`
	} `json:"items"`
}

var publishedKeys = []string{"article:published_time", "og:published_time", "article:modified_time", "og:updated_time"}

func publishedAt(tags []map[string]string) (time.Time, bool) {
	for _, m := range tags {
		for _, k := range publishedKeys {
			v := strings.TrimSpace(m[k])
			if v == "" {
				continue
			}
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02"} {
				if t, err := time.Parse(layout, v); err == nil {
					return t.UTC(), true
				}
			}
		}
	}
	return time.Time{}, false
}

// Search returns up to MaxResults articles published after since, newest
// first. Undated articles are discarded.
func (c *Client) Search(ctx context.Context, symbol string, since time.Time) ([]model.NewsArticle, error) {
	if c.cfg.APIKey == "" || c.cfg.EngineID == "" {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &model.UpstreamError{Service: "news", Timeout: true, Retryable: true, Err: err}
	}

	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("cx", c.cfg.EngineID)
	q.Set("q", fmt.Sprintf("%s news after:%s", searchTerm(symbol), since.UTC().Format("2006-01-02")))
	q.Set("num", fmt.Sprint(MaxResults))
	q.Set("sort", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.UpstreamError{Service: "news", Retryable: true, Timeout: ctx.Err() != nil || isTimeout(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &model.UpstreamError{Service: "news", Retryable: true, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &model.UpstreamError{
			Service:   "news",
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &model.UpstreamError{Service: "news", Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]model.NewsArticle, 0, len(sr.Items))
	for _, it := range sr.Items {
		ts, ok := publishedAt(it.Pagemap.Metatags)
		if !ok || !ts.After(since) {
			continue
		}
		out = append(out, model.NewsArticle{Title: it.Title, Snippet: it.Snippet, Link: it.Link, PublishedAt: ts})
		if len(out) == MaxResults {
			break
		}
	}
	log.Printf("[news] %s: %d/%d articles after %s", symbol, len(out), len(sr.Items), since.UTC().Format(time.RFC3339))
	return out, nil
}

// Sentiment fetches articles and scores them.
func (c *Client) Sentiment(ctx context.Context, symbol string, since time.Time) (model.NewsResult, error) {
	articles, err := c.Search(ctx, symbol, since)
	if err != nil {
		return model.NewsResult{}, err
	}
	return Analyze(articles), nil
}

// searchTerm turns an exchange pair such as BTCUSDT into its base asset.
func searchTerm(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD", "USD"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote)
		}
	}
	return s
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

// Package config loads the predictor configuration: defaults, then an
// optional YAML file, then PREDICTOR_* environment overrides (a .env file in
// the working directory is loaded first when present).
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/preet1249/AI-Trading-ML/internal/gateway"
	"github.com/preet1249/AI-Trading-ML/internal/indicator"
	"github.com/preet1249/AI-Trading-ML/internal/logger"
	"github.com/preet1249/AI-Trading-ML/internal/marketdata"
	"github.com/preet1249/AI-Trading-ML/internal/marketdata/binance"
	"github.com/preet1249/AI-Trading-ML/internal/marketdata/feed"
	"github.com/preet1249/AI-Trading-ML/internal/model"
	"github.com/preet1249/AI-Trading-ML/internal/news"
	"github.com/preet1249/AI-Trading-ML/internal/notification"
	"github.com/preet1249/AI-Trading-ML/internal/oracle"
	"github.com/preet1249/AI-Trading-ML/internal/pipeline"
	"github.com/preet1249/AI-Trading-ML/internal/scheduler"
	"github.com/preet1249/AI-Trading-ML/internal/store/redis"
	"github.com/preet1249/AI-Trading-ML/internal/structure"
	"github.com/preet1249/AI-Trading-ML/internal/ta"
	"github.com/preet1249/AI-Trading-ML/internal/tacache"
)

// EnvPrefix prefixes every environment override, e.g. PREDICTOR_REDIS_ADDR.
const EnvPrefix = "PREDICTOR"

const (
	SourceBinance = "binance"
	SourceFeed    = "feed"
)

// Config holds all application configuration.
type Config struct {
	Service string   `yaml:"service"`
	Symbols []string `yaml:"symbols"`
	// Source selects the market data connector: binance or feed.
	Source         string `yaml:"source"`
	BufferCapacity int    `yaml:"buffer_capacity" split_words:"true"`
	SQLitePath     string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	MetricsAddr    string `yaml:"metrics_addr" split_words:"true"`

	Log        logger.Config               `yaml:"log"`
	Indicators indicator.Params            `yaml:"indicators"`
	Structure  structure.Config            `yaml:"structure"`
	TA         ta.Config                   `yaml:"ta" envconfig:"TA"`
	Cache      tacache.Config              `yaml:"cache"`
	Pipeline   pipeline.Config             `yaml:"pipeline"`
	News       news.Config                 `yaml:"news"`
	Oracle     oracle.Config               `yaml:"oracle"`
	Supervisor marketdata.SupervisorConfig `yaml:"supervisor"`
	Binance    binance.Config              `yaml:"binance"`
	Feed       feed.Config                 `yaml:"feed"`
	Redis      redis.Config                `yaml:"redis"`
	Gateway    gateway.Config              `yaml:"gateway"`
	Scheduler  scheduler.Config            `yaml:"scheduler"`
	Notify     notification.Config         `yaml:"notify"`
}

// Default returns a configuration that runs against Binance with Redis off.
func Default() Config {
	return Config{
		Service:        "predictor",
		Symbols:        []string{"BTCUSDT"},
		Source:         SourceBinance,
		BufferCapacity: 200,
		SQLitePath:     "data/predictor.db",
		MetricsAddr:    ":9090",

		Log:        logger.DefaultConfig(),
		Indicators: indicator.DefaultParams(),
		Structure:  structure.DefaultConfig(),
		TA:         ta.DefaultConfig(),
		Cache:      tacache.DefaultConfig(),
		Pipeline:   pipeline.DefaultConfig(),
		News:       news.DefaultConfig(),
		Oracle:     oracle.DefaultConfig(),
		Supervisor: marketdata.DefaultSupervisorConfig(),
		Feed:       feed.Config{URL: "ws://localhost:9001"},
		Redis:      redis.Config{Addr: "localhost:6379"},
		Gateway:    gateway.DefaultConfig(),
		Scheduler:  scheduler.DefaultConfig(),
		Notify:     notification.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	for i, s := range c.Symbols {
		c.Symbols[i] = model.NormalizeSymbol(s)
	}
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
}

// Keys lists every (symbol, timeframe) buffer to ingest.
func (c *Config) Keys() []model.Key {
	keys := make([]model.Key, 0, len(c.Symbols)*len(c.TA.Timeframes))
	for _, s := range c.Symbols {
		for _, tf := range c.TA.Timeframes {
			keys = append(keys, model.NewKey(s, tf))
		}
	}
	return keys
}

// Validate rejects inconsistent values.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Symbols) == 0 {
		bad("symbols: at least one symbol required")
	}
	for _, s := range c.Symbols {
		if s == "" {
			bad("symbols: empty symbol")
		}
	}
	switch c.Source {
	case SourceBinance:
	case SourceFeed:
		if c.Feed.URL == "" {
			bad("feed.url: required when source is feed")
		}
	default:
		bad("source: %q, want binance or feed", c.Source)
	}

	if len(c.TA.Timeframes) == 0 {
		bad("ta.timeframes: at least one timeframe required")
	}
	seen := make(map[model.Timeframe]bool)
	for _, tf := range c.TA.Timeframes {
		if !tf.Valid() {
			bad("ta.timeframes: unknown timeframe %q", tf)
		}
		if seen[tf] {
			bad("ta.timeframes: duplicate %q", tf)
		}
		seen[tf] = true
	}
	if c.BufferCapacity < c.Indicators.MinCandles {
		bad("buffer_capacity %d below indicators.min_candles %d", c.BufferCapacity, c.Indicators.MinCandles)
	}
	if c.Indicators.RSIPeriod <= 0 || c.Indicators.EMAPeriod <= 0 || c.Indicators.ATRPeriod <= 0 {
		bad("indicators: periods must be positive")
	}
	if c.Indicators.MACDFast <= 0 || c.Indicators.MACDFast >= c.Indicators.MACDSlow || c.Indicators.MACDSignal <= 0 {
		bad("indicators: macd wants 0 < fast < slow and signal > 0")
	}

	if c.Structure.SwingOrder < 1 {
		bad("structure.swing_order must be at least 1")
	}
	unit := func(name string, v float64) {
		if v <= 0 || v >= 1 {
			bad("%s %v outside (0,1)", name, v)
		}
	}
	unit("structure.liquidity_tolerance", c.Structure.LiquidityTolerance)
	unit("structure.impulse_threshold", c.Structure.ImpulseThreshold)
	unit("pipeline.volatility_threshold", c.Pipeline.VolatilityThreshold)
	if c.Structure.ZoneATRFactor <= 0 || c.TA.DeepScan.ZoneATRFactor <= 0 {
		bad("zone_atr_factor must be positive")
	}

	positive := func(name string, ok bool) {
		if !ok {
			bad("%s must be positive", name)
		}
	}
	positive("cache.ttl", c.Cache.TTL > 0)
	positive("cache.max_entries", c.Cache.MaxEntries > 0)
	positive("cache.compute_timeout", c.Cache.ComputeTimeout > 0)
	positive("pipeline.call_timeout", c.Pipeline.CallTimeout > 0)
	positive("pipeline.predict_max_attempts", c.Pipeline.PredictMaxAttempts > 0)
	positive("pipeline.workers", c.Pipeline.Workers > 0)
	positive("news.timeout", c.News.Timeout > 0)
	positive("oracle.timeout", c.Oracle.Timeout > 0)
	if c.Pipeline.BackoffMax < c.Pipeline.BackoffMin {
		bad("pipeline.backoff_max below backoff_min")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		bad("redis.addr: required when redis is enabled")
	}

	if c.Gateway.Addr == "" {
		bad("gateway.addr: required")
	}
	if c.Gateway.PredictPerMinute < 0 {
		bad("gateway.predict_per_minute must not be negative")
	}
	if c.Notify.MinConfidence < 0 || c.Notify.MinConfidence > 100 {
		bad("notify.min_confidence %d outside [0,100]", c.Notify.MinConfidence)
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		bad("notify: telegram_token and telegram_chat_id must be set together")
	}

	for name, spec := range c.Scheduler.Specs() {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			bad("scheduler.%s: %v", name, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// cmd/feedsim serves a synthetic candle feed for running the predictor
// without exchange access (source: feed).
//
// Config (env vars, a .env file is read when present):
//
//	FEEDSIM_ADDR           listen address (default ":9001")
//	FEEDSIM_TOTP_SECRET    base32 secret; when set every request needs X-Feed-TOTP
//	FEEDSIM_SYMBOLS        comma-separated symbols (default "BTCUSDT")
//	FEEDSIM_TIMEFRAMES     comma-separated timeframes (default "1m,5m,15m,1h")
//	FEEDSIM_START_PRICE    initial price (default 60000)
//	FEEDSIM_TICK_INTERVAL  time between price steps (default "1s")
//	FEEDSIM_HISTORY        closed candles kept per key (default 500)
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/preet1249/AI-Trading-ML/internal/logger"
	"github.com/preet1249/AI-Trading-ML/internal/marketdata/feed"
	"github.com/preet1249/AI-Trading-ML/internal/model"
)

type config struct {
	Addr       string `default:":9001"`
	TOTPSecret string `envconfig:"TOTP_SECRET"`
	LogLevel   string `split_words:"true" default:"info"`
	feed.SimConfig
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[feedsim] .env: %v", err)
	}
	cfg := config{SimConfig: feed.DefaultSimConfig()}
	if err := envconfig.Process("FEEDSIM", &cfg); err != nil {
		log.Fatalf("[feedsim] config: %v", err)
	}
	logger.Init("feedsim", logger.Config{Level: cfg.LogLevel})
	if len(cfg.Symbols) == 0 || len(cfg.Timeframes) == 0 {
		log.Fatalf("[feedsim] at least one symbol and timeframe are required")
	}
	for _, tf := range cfg.Timeframes {
		if !tf.Valid() {
			log.Fatalf("[feedsim] invalid timeframe %q", tf)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := feed.NewSimulator(cfg.SimConfig, time.Now().UTC())
	sim.OnDrop = func(key model.Key) { log.Printf("[feedsim] slow subscriber on %s", key) }
	go sim.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           feed.NewServer(sim, cfg.TOTPSecret).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[feedsim] listening on %s (ws://localhost%s/ws?symbol=BTCUSDT&tf=1m)", cfg.Addr, cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[feedsim] server error: %v", err)
	}
	log.Println("[feedsim] stopped")
}

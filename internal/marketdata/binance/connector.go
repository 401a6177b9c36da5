// Package binance streams spot klines from Binance through go-binance.
package binance

import (
	"context"
	"fmt"
	"log"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/preet1249/AI-Trading-ML/internal/marketdata"
	"github.com/preet1249/AI-Trading-ML/internal/model"
)

// Config for the Binance connector. Keys are optional for public market data.
type Config struct {
	APIKey    string `yaml:"api_key" split_words:"true"`
	SecretKey string `yaml:"secret_key" split_words:"true"`
	// BaseURL overrides the REST endpoint, e.g. for the testnet.
	BaseURL string `yaml:"base_url" split_words:"true"`
}

// Connector implements marketdata.Connector for Binance spot.
type Connector struct {
	client *gobinance.Client
	now    func() time.Time
}

var _ marketdata.Connector = (*Connector)(nil)

func New(cfg Config) *Connector {
	client := gobinance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &Connector{client: client, now: time.Now}
}

func (c *Connector) Name() string { return "binance" }

// Backfill fetches the latest klines. Binance includes the forming kline
// last; it is dropped.
func (c *Connector) Backfill(ctx context.Context, key model.Key, limit int) ([]model.Candle, error) {
	klines, err := c.client.NewKlinesService().
		Symbol(key.Symbol).
		Interval(string(key.Timeframe)).
		Limit(limit + 1).
		Do(ctx)
	if err != nil {
		return nil, &model.UpstreamError{Service: "binance", Retryable: true, Timeout: ctx.Err() != nil, Err: err}
	}

	nowMs := c.now().UnixMilli()
	out := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		if k.CloseTime >= nowMs {
			continue
		}
		cd, err := candle(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, fmt.Errorf("binance kline %d: %w", k.OpenTime, err)
		}
		cd.Closed = true
		out = append(out, cd)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Subscribe serves the kline stream for key until ctx is done or the
// websocket drops.
func (c *Connector) Subscribe(ctx context.Context, key model.Key, out chan<- model.Candle) error {
	errc := make(chan error, 1)

	handler := func(ev *gobinance.WsKlineEvent) {
		cd, err := fromWsKline(ev.Kline)
		if err != nil {
			log.Printf("[binance] %s parse kline: %v", key, err)
			return
		}
		select {
		case out <- cd:
		case <-ctx.Done():
		}
	}
	errHandler := func(err error) {
		if err == nil {
			return
		}
		select {
		case errc <- err:
		default:
		}
	}

	doneC, stopC, err := gobinance.WsKlineServe(key.Symbol, string(key.Timeframe), handler, errHandler)
	if err != nil {
		return &model.UpstreamError{Service: "binance", Retryable: true, Err: err}
	}
	log.Printf("[binance] %s kline stream connected", key)

	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return ctx.Err()
	case <-doneC:
		select {
		case err := <-errc:
			return &model.UpstreamError{Service: "binance", Retryable: true, Err: err}
		default:
			return marketdata.ErrStreamClosed
		}
	}
}

func fromWsKline(k gobinance.WsKline) (model.Candle, error) {
	cd, err := candle(k.StartTime, k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return cd, err
	}
	cd.Closed = k.IsFinal
	return cd, nil
}

func candle(openMs int64, o, h, l, c, v string) (model.Candle, error) {
	var vals [5]float64
	for i, s := range []string{o, h, l, c, v} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return model.Candle{}, err
		}
		vals[i] = d.InexactFloat64()
	}
	return model.Candle{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

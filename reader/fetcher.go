// Package reader provides the engine's concrete exchange collaborators: a
// rate-limited REST candle fetcher and a gorilla/websocket-backed live feed
// manager.
package reader

import (
	"context"
	"fmt"
	"sort"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"execflow/config"
	"execflow/logger"
	"execflow/models"
	"execflow/strategy"
)

// Fetcher is the Throttled Fetcher: a token-bucket-limited wrapper over the
// exchange's historical kline endpoint. It implements strategy.RestClient.
type Fetcher struct {
	client  *futures.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewFetcher builds a Fetcher backed by a go-binance futures client and a
// token bucket sized from cfg (default 10 requests per 60s).
func NewFetcher(apiKey, secretKey string, cfg config.FetcherConfig) *Fetcher {
	requests := cfg.RequestsPerWindow
	window := cfg.Window
	if requests <= 0 {
		requests = 10
	}
	if window <= 0 {
		window = 60 * time.Second
	}

	limit := rate.Limit(float64(requests) / window.Seconds())
	limiter := rate.NewLimiter(limit, requests)

	return &Fetcher{
		client:  futures.NewClient(apiKey, secretKey),
		limiter: limiter,
		log:     logger.GetLogger(),
	}
}

// Candles blocks on the token bucket, then fetches one ascending page of
// history. Failures are returned to the caller without retry.
func (f *Fetcher) Candles(ctx context.Context, req strategy.CandlesRequest) ([]models.Candle, error) {
	log := f.log.WithComponent("fetcher").WithFields(logger.Fields{
		"symbol": req.Symbol, "timeframe": req.Timeframe, "operation": "Candles",
	})

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	svc := f.client.NewKlinesService().Symbol(req.Symbol).Interval(req.Timeframe)
	if req.Limit > 0 {
		svc = svc.Limit(req.Limit)
	}
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End)
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		log.WithError(err).Warn("candle fetch failed")
		return nil, fmt.Errorf("fetch candles for %s/%s: %w", req.Symbol, req.Timeframe, err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := klineToCandle(k, req.Symbol, req.Timeframe)
		if err != nil {
			log.WithError(err).Warn("failed to decode kline, skipping")
			continue
		}
		candles = append(candles, c)
	}

	if req.Ascending {
		sortCandlesAscending(candles)
	}

	return candles, nil
}

func klineToCandle(k *futures.Kline, symbol, tf string) (models.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse low: %w", err)
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse volume: %w", err)
	}

	return models.Candle{
		Mts:    k.OpenTime,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
		Symbol: symbol,
		Tf:     tf,
	}, nil
}

func sortCandlesAscending(candles []models.Candle) {
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Mts < candles[j].Mts })
}

// Package seed implements the Seeder: a one-shot historical replay that warms
// a strategy's indicators before any live subscription is opened.
package seed

import (
	"context"
	"fmt"

	"execflow/logger"
	"execflow/models"
	"execflow/strategy"
)

// Deps are the collaborators the Seeder pages history through and replays
// candles into.
type Deps struct {
	Fetcher   strategy.RestClient
	Strategy  strategy.Strategy
	Symbol    string
	Timeframe string
	WidthMs   int64
}

// Result is the Seeder's output: the strategy state after replay and the
// last candle observed, handed to the Processor so the Closure Timer can be
// armed against real history rather than an empty processor.
type Result struct {
	State      strategy.State
	LastCandle *models.Candle
}

const maxWindowSize = 1000

// Seed pages through up to ceil(count/1000) windows of history ascending,
// replaying every candle whose mts strictly exceeds the last one seen
// through strategy.OnSeedCandle. now is the wall-clock time to align down
// from; it is a parameter (rather than time.Now()) so seeding is
// deterministic under test.
func Seed(ctx context.Context, deps Deps, initialState strategy.State, count int, now int64) (Result, error) {
	log := logger.GetLogger().WithComponent("seed")

	if count <= 0 || deps.WidthMs <= 0 {
		return Result{State: initialState}, nil
	}

	alignedEnd := alignDown(now, deps.WidthMs)
	seedStart := alignedEnd - int64(count)*deps.WidthMs

	state := initialState
	var lastCandle *models.Candle

	windowStart := seedStart
	remaining := count
	for remaining > 0 {
		windowCount := remaining
		if windowCount > maxWindowSize {
			windowCount = maxWindowSize
		}
		windowEnd := windowStart + int64(windowCount)*deps.WidthMs

		candles, err := deps.Fetcher.Candles(ctx, strategy.CandlesRequest{
			Symbol:    deps.Symbol,
			Timeframe: deps.Timeframe,
			Section:   "hist",
			Start:     windowStart,
			End:       windowEnd,
			Limit:     windowCount,
			Ascending: true,
		})
		if err != nil {
			return Result{}, fmt.Errorf("seed fetch window [%d,%d): %w", windowStart, windowEnd, err)
		}

		for _, c := range candles {
			if lastCandle != nil && c.Mts <= lastCandle.Mts {
				continue
			}
			c.Symbol = deps.Symbol
			c.Tf = deps.Timeframe

			newState, err := deps.Strategy.OnSeedCandle(ctx, state, c)
			if err != nil {
				return Result{}, fmt.Errorf("onSeedCandle at mts=%d: %w", c.Mts, err)
			}
			state = newState
			lastCandle = &c
		}

		windowStart = windowEnd
		remaining -= windowCount
	}

	log.WithFields(logger.Fields{"symbol": deps.Symbol, "tf": deps.Timeframe, "count": count}).Info("seeding complete")
	return Result{State: state, LastCandle: lastCandle}, nil
}

func alignDown(mts, width int64) int64 {
	return (mts / width) * width
}

package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"execflow/models"
	"execflow/strategy"
)

type fakeFetcher struct {
	byWindow map[int64][]models.Candle
	err      error
	calls    []strategy.CandlesRequest
}

func (f *fakeFetcher) Candles(ctx context.Context, req strategy.CandlesRequest) ([]models.Candle, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.byWindow[req.Start], nil
}

type recordingStrategy struct {
	seeded []models.Candle
}

func (r *recordingStrategy) OnSeedCandle(ctx context.Context, state strategy.State, c models.Candle) (strategy.State, error) {
	r.seeded = append(r.seeded, c)
	n, _ := state.(int)
	return n + 1, nil
}
func (r *recordingStrategy) OnCandle(ctx context.Context, state strategy.State, c models.Candle) (strategy.State, error) {
	return state, nil
}
func (r *recordingStrategy) OnTrade(ctx context.Context, state strategy.State, t models.Trade) (strategy.State, error) {
	return state, nil
}
func (r *recordingStrategy) OnOrder(ctx context.Context, state strategy.State, o models.OrderClose) (strategy.State, error) {
	return state, nil
}
func (r *recordingStrategy) GetPosition(state strategy.State, symbol string) (models.Position, bool) {
	return models.Position{}, false
}
func (r *recordingStrategy) CalcRealizedPositionPnl(state strategy.State, pos models.Position, price decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
func (r *recordingStrategy) CalcUnrealizedPositionPnl(state strategy.State, pos models.Position, price decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
func (r *recordingStrategy) CloseOpenPositions(ctx context.Context, state strategy.State) (strategy.State, error) {
	return state, nil
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestSeedAlignsAndReplaysAscending(t *testing.T) {
	// width=60000, count=3, now=185000 -> alignedEnd=180000, seedStart=0.
	fetcher := &fakeFetcher{byWindow: map[int64][]models.Candle{
		0: {
			{Mts: 0, Close: dec(1)},
			{Mts: 60000, Close: dec(2)},
			{Mts: 120000, Close: dec(3)},
		},
	}}
	strat := &recordingStrategy{}

	res, err := Seed(context.Background(), Deps{
		Fetcher: fetcher, Strategy: strat, Symbol: "tBTCUSD", Timeframe: "1m", WidthMs: 60000,
	}, 0, 3, 185000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(strat.seeded) != 3 {
		t.Fatalf("expected 3 seeded candles, got %d", len(strat.seeded))
	}
	if res.LastCandle == nil || res.LastCandle.Mts != 120000 {
		t.Fatalf("expected last candle at mts=120000, got %+v", res.LastCandle)
	}
	if fetcher.calls[0].Start != 0 {
		t.Fatalf("expected seedStart=0, got %d", fetcher.calls[0].Start)
	}
}

func TestSeedPagesInWindowsOf1000(t *testing.T) {
	count := 1500
	width := int64(60000)
	window0 := make([]models.Candle, 0, 1000)
	for i := 0; i < 1000; i++ {
		window0 = append(window0, models.Candle{Mts: int64(i) * width, Close: dec(int64(i))})
	}
	window1 := make([]models.Candle, 0, 500)
	for i := 1000; i < 1500; i++ {
		window1 = append(window1, models.Candle{Mts: int64(i) * width, Close: dec(int64(i))})
	}
	fetcher := &fakeFetcher{byWindow: map[int64][]models.Candle{
		0:                    window0,
		int64(1000) * width: window1,
	}}
	strat := &recordingStrategy{}

	now := int64(count) * width
	res, err := Seed(context.Background(), Deps{
		Fetcher: fetcher, Strategy: strat, Symbol: "tBTCUSD", Timeframe: "1m", WidthMs: width,
	}, 0, count, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fetcher.calls) != 2 {
		t.Fatalf("expected 2 fetch windows for count=1500, got %d", len(fetcher.calls))
	}
	if len(strat.seeded) != 1500 {
		t.Fatalf("expected 1500 seeded candles, got %d", len(strat.seeded))
	}
	if res.LastCandle.Mts != int64(1499)*width {
		t.Fatalf("expected last candle mts=%d, got %d", int64(1499)*width, res.LastCandle.Mts)
	}
}

func TestSeedIsDeterministicForSameInputs(t *testing.T) {
	mk := func() *fakeFetcher {
		return &fakeFetcher{byWindow: map[int64][]models.Candle{
			0: {{Mts: 0, Close: dec(1)}, {Mts: 60000, Close: dec(2)}},
		}}
	}
	deps := func(f *fakeFetcher, s strategy.Strategy) Deps {
		return Deps{Fetcher: f, Strategy: s, Symbol: "tBTCUSD", Timeframe: "1m", WidthMs: 60000}
	}

	s1 := &recordingStrategy{}
	res1, err1 := Seed(context.Background(), deps(mk(), s1), 0, 2, 125000)
	s2 := &recordingStrategy{}
	res2, err2 := Seed(context.Background(), deps(mk(), s2), 0, 2, 125000)

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if res1.State != res2.State {
		t.Fatalf("expected identical final states, got %v and %v", res1.State, res2.State)
	}
	if len(s1.seeded) != len(s2.seeded) {
		t.Fatalf("expected identical replay lengths")
	}
}

func TestSeedAbortsOnFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("exchange unreachable")}
	strat := &recordingStrategy{}

	_, err := Seed(context.Background(), Deps{
		Fetcher: fetcher, Strategy: strat, Symbol: "tBTCUSD", Timeframe: "1m", WidthMs: 60000,
	}, 0, 5, 300000)
	if err == nil {
		t.Fatalf("expected seeding to abort on fetch error")
	}
}

func TestSeedDropsNonIncreasingCandles(t *testing.T) {
	fetcher := &fakeFetcher{byWindow: map[int64][]models.Candle{
		0: {
			{Mts: 0, Close: dec(1)},
			{Mts: 0, Close: dec(99)}, // duplicate mts, must be dropped
			{Mts: 60000, Close: dec(2)},
		},
	}}
	strat := &recordingStrategy{}

	res, err := Seed(context.Background(), Deps{
		Fetcher: fetcher, Strategy: strat, Symbol: "tBTCUSD", Timeframe: "1m", WidthMs: 60000,
	}, 0, 2, 125000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(strat.seeded) != 2 {
		t.Fatalf("expected duplicate mts candle to be dropped, got %d seeded", len(strat.seeded))
	}
	if res.LastCandle.Mts != 60000 {
		t.Fatalf("expected last candle mts=60000, got %d", res.LastCandle.Mts)
	}
}

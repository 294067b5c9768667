package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"execflow/config"
	"execflow/models"
	"execflow/strategy"
)

type fakeFetcher struct {
	mu      sync.Mutex
	candles []models.Candle
	calls   int
}

func (f *fakeFetcher) Candles(ctx context.Context, req strategy.CandlesRequest) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.candles, nil
}

type fakeWS struct {
	mu       sync.Mutex
	handlers map[string][]strategy.WSHandler
}

func newFakeWS() *fakeWS { return &fakeWS{handlers: make(map[string][]strategy.WSHandler)} }

func (f *fakeWS) OnWS(channel string, filter map[string]string, handler strategy.WSHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[channel] = append(f.handlers[channel], handler)
	return func() {}
}

func (f *fakeWS) WithSocket(fn func(strategy.Socket) error) error {
	return fn(fakeSocket{})
}

type fakeSocket struct{}

func (fakeSocket) Subscribe(channel string, params map[string]string) error { return nil }

type recordingStrategy struct {
	mu          sync.Mutex
	seeded      int
	ended       bool
	closedCalls int
}

func (s *recordingStrategy) OnSeedCandle(ctx context.Context, state strategy.State, c models.Candle) (strategy.State, error) {
	s.mu.Lock()
	s.seeded++
	s.mu.Unlock()
	return state, nil
}
func (s *recordingStrategy) OnCandle(ctx context.Context, state strategy.State, c models.Candle) (strategy.State, error) {
	return state, nil
}
func (s *recordingStrategy) OnTrade(ctx context.Context, state strategy.State, t models.Trade) (strategy.State, error) {
	return state, nil
}
func (s *recordingStrategy) OnOrder(ctx context.Context, state strategy.State, o models.OrderClose) (strategy.State, error) {
	return state, nil
}
func (s *recordingStrategy) GetPosition(state strategy.State, symbol string) (models.Position, bool) {
	return models.Position{}, false
}
func (s *recordingStrategy) CalcRealizedPositionPnl(state strategy.State, pos models.Position, price decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
func (s *recordingStrategy) CalcUnrealizedPositionPnl(state strategy.State, pos models.Position, price decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
func (s *recordingStrategy) CloseOpenPositions(ctx context.Context, state strategy.State) (strategy.State, error) {
	s.mu.Lock()
	s.closedCalls++
	s.mu.Unlock()
	return state, nil
}
func (s *recordingStrategy) OnEnd(ctx context.Context, state strategy.State) (strategy.State, error) {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	return state, nil
}

func baseConfig() config.EngineConfig {
	return config.EngineConfig{Symbol: "tBTCUSD", Timeframe: "1m", SeedCandleCount: 2}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Fatalf("expected construction to fail with no collaborators")
	}
}

func TestNewRejectsUnsupportedTimeframe(t *testing.T) {
	strat := &recordingStrategy{}
	_, err := New(Deps{Strategy: strat, Fetcher: &fakeFetcher{}, WS: newFakeWS(), Config: config.EngineConfig{Symbol: "x", Timeframe: "7x"}})
	if err == nil {
		t.Fatalf("expected an unsupported timeframe to fail construction")
	}
}

func TestExecuteSeedsThenGoesLive(t *testing.T) {
	strat := &recordingStrategy{}
	fetcher := &fakeFetcher{candles: []models.Candle{{Mts: 0, Close: decimal.NewFromInt(1)}}}
	ws := newFakeWS()

	e, err := New(Deps{Strategy: strat, Fetcher: fetcher, WS: ws, Config: baseConfig()})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}

	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected Execute error: %v", err)
	}

	e.mu.Lock()
	gotState := e.state
	e.mu.Unlock()
	if gotState != stateLive {
		t.Fatalf("expected engine to reach stateLive, got %v", gotState)
	}
	strat.mu.Lock()
	defer strat.mu.Unlock()
	if strat.seeded == 0 {
		t.Fatalf("expected at least one seeded candle")
	}
}

func TestStopExecutionInvokesOnEndAndClosesPositions(t *testing.T) {
	strat := &recordingStrategy{}
	fetcher := &fakeFetcher{}
	ws := newFakeWS()

	e, err := New(Deps{Strategy: strat, Fetcher: fetcher, WS: ws, Config: baseConfig()})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected Execute error: %v", err)
	}

	if err := e.StopExecution(context.Background()); err != nil {
		t.Fatalf("unexpected StopExecution error: %v", err)
	}

	strat.mu.Lock()
	defer strat.mu.Unlock()
	if !strat.ended {
		t.Fatalf("expected onEnd to be invoked")
	}
	if strat.closedCalls != 1 {
		t.Fatalf("expected CloseOpenPositions to be invoked once, got %d", strat.closedCalls)
	}
}

func TestStopExecutionIsIdempotent(t *testing.T) {
	strat := &recordingStrategy{}
	e, err := New(Deps{Strategy: strat, Fetcher: &fakeFetcher{}, WS: newFakeWS(), Config: baseConfig()})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected Execute error: %v", err)
	}

	if err := e.StopExecution(context.Background()); err != nil {
		t.Fatalf("unexpected first StopExecution error: %v", err)
	}
	if err := e.StopExecution(context.Background()); err != nil {
		t.Fatalf("unexpected second StopExecution error: %v", err)
	}

	strat.mu.Lock()
	defer strat.mu.Unlock()
	if strat.closedCalls != 1 {
		t.Fatalf("expected CloseOpenPositions to fire only once across two StopExecution calls, got %d", strat.closedCalls)
	}
}

func TestInvokeMutatesStateAfterExecute(t *testing.T) {
	strat := &recordingStrategy{}
	e, err := New(Deps{Strategy: strat, Fetcher: &fakeFetcher{}, WS: newFakeWS(), Config: baseConfig()})
	if err != nil {
		t.Fatalf("unexpected construction error: %v", err)
	}
	if err := e.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected Execute error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := e.Invoke(ctx, func(s strategy.State) (strategy.State, error) {
		m, _ := s.(map[string]interface{})
		m["touched"] = true
		return m, nil
	})
	if err != nil {
		t.Fatalf("unexpected Invoke error: %v", err)
	}
	m, ok := got.(map[string]interface{})
	if !ok || m["touched"] != true {
		t.Fatalf("expected invoked mutation to be visible, got %v", got)
	}
}

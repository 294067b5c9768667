package result

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"execflow/models"
	"execflow/processor"
	"execflow/strategy"
)

type fakeStrategy struct {
	position   models.Position
	hasPos     bool
	realized   decimal.Decimal
	unrealized decimal.Decimal
}

func (f *fakeStrategy) OnSeedCandle(ctx context.Context, state strategy.State, c models.Candle) (strategy.State, error) {
	return state, nil
}
func (f *fakeStrategy) OnCandle(ctx context.Context, state strategy.State, c models.Candle) (strategy.State, error) {
	return state, nil
}
func (f *fakeStrategy) OnTrade(ctx context.Context, state strategy.State, t models.Trade) (strategy.State, error) {
	return state, nil
}
func (f *fakeStrategy) OnOrder(ctx context.Context, state strategy.State, o models.OrderClose) (strategy.State, error) {
	return state, nil
}
func (f *fakeStrategy) GetPosition(state strategy.State, symbol string) (models.Position, bool) {
	return f.position, f.hasPos
}
func (f *fakeStrategy) CalcRealizedPositionPnl(state strategy.State, pos models.Position, price decimal.Decimal) decimal.Decimal {
	return f.realized
}
func (f *fakeStrategy) CalcUnrealizedPositionPnl(state strategy.State, pos models.Position, price decimal.Decimal) decimal.Decimal {
	return f.unrealized
}
func (f *fakeStrategy) CloseOpenPositions(ctx context.Context, state strategy.State) (strategy.State, error) {
	return state, nil
}

type fakePerf struct{}

func (fakePerf) Updates() <-chan struct{}            { return nil }
func (fakePerf) Allocation() decimal.Decimal         { return decimal.NewFromInt(1000) }
func (fakePerf) PositionSize(s string) decimal.Decimal { return decimal.Zero }
func (fakePerf) CurrentAllocation() decimal.Decimal   { return decimal.NewFromInt(900) }
func (fakePerf) AvailableFunds() decimal.Decimal      { return decimal.NewFromInt(100) }
func (fakePerf) EquityCurve() []decimal.Decimal       { return []decimal.Decimal{decimal.NewFromInt(1000)} }
func (fakePerf) Return() decimal.Decimal              { return decimal.NewFromInt(10) }
func (fakePerf) ReturnPerc() decimal.Decimal          { return decimal.NewFromFloat(0.01) }
func (fakePerf) Drawdown() decimal.Decimal            { return decimal.Zero }

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestEmitWithOpenPositionDispatchesBothEvents(t *testing.T) {
	strat := &fakeStrategy{position: models.Position{Symbol: "tBTCUSD", Amount: dec(1)}, hasPos: true, realized: dec(5), unrealized: dec(2)}
	e := NewEmitter(strat, fakePerf{})

	var mu sync.Mutex
	var kinds []EventKind
	e.RegisterHandler(func(evt Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, evt.Kind)
	})

	e.Emit(context.Background(), processor.EmitCandleClose, processor.Snapshot{
		Symbol: "tBTCUSD", Tf: "1m", Price: dec(100),
		LastCandle: &models.Candle{Mts: 60000, Close: dec(100)},
	})

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 {
		t.Fatalf("expected 2 events (position + results), got %d: %v", len(kinds), kinds)
	}
	if kinds[0] != EventOpenedPositionData || kinds[1] != EventExecutionResults {
		t.Fatalf("unexpected event order: %v", kinds)
	}
}

func TestEmitWithoutPositionSkipsOpenedPositionEvent(t *testing.T) {
	strat := &fakeStrategy{hasPos: false}
	e := NewEmitter(strat, fakePerf{})

	var mu sync.Mutex
	var kinds []EventKind
	e.RegisterHandler(func(evt Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, evt.Kind)
	})

	e.Emit(context.Background(), processor.EmitTrade, processor.Snapshot{
		Symbol: "tBTCUSD", Tf: "1m", Price: dec(50),
		LastTrade: &models.Trade{ID: 1, Mts: 1, Price: dec(50)},
	})

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 1 || kinds[0] != EventExecutionResults {
		t.Fatalf("expected only the results event, got %v", kinds)
	}
}

func TestEmitPopulatesPerformanceSnapshot(t *testing.T) {
	strat := &fakeStrategy{}
	e := NewEmitter(strat, fakePerf{})

	var got *models.ResultsSnapshot
	e.RegisterHandler(func(evt Event) {
		if evt.Kind == EventExecutionResults {
			got = evt.Results
		}
	})

	e.Emit(context.Background(), processor.EmitPerfTick, processor.Snapshot{Symbol: "tBTCUSD", Tf: "1m", Price: dec(1)})

	if got == nil {
		t.Fatalf("expected a results snapshot to be captured")
	}
	if !got.Performance.CurrentAllocation.Equal(dec(900)) {
		t.Fatalf("expected performance fields to be populated from the perf manager, got %+v", got.Performance)
	}
	if got.ID == "" {
		t.Fatalf("expected a correlation ID to be stamped")
	}
}

func TestEmitTagsEventsWithTheTriggeringKind(t *testing.T) {
	strat := &fakeStrategy{}
	e := NewEmitter(strat, nil)

	var triggers []processor.EmitKind
	e.RegisterHandler(func(evt Event) {
		if evt.Kind == EventExecutionResults {
			triggers = append(triggers, evt.Trigger)
		}
	})

	e.Emit(context.Background(), processor.EmitCandleUpdate, processor.Snapshot{Symbol: "tBTCUSD", Tf: "1m", Price: dec(1)})
	e.Emit(context.Background(), processor.EmitCandleClose, processor.Snapshot{Symbol: "tBTCUSD", Tf: "1m", Price: dec(1)})

	if len(triggers) != 2 || triggers[0] != processor.EmitCandleUpdate || triggers[1] != processor.EmitCandleClose {
		t.Fatalf("expected the results event to carry its triggering kind, got %v", triggers)
	}
}

func TestUnregisterHandlerStopsDelivery(t *testing.T) {
	strat := &fakeStrategy{}
	e := NewEmitter(strat, nil)

	called := false
	id := e.RegisterHandler(func(evt Event) { called = true })
	e.UnregisterHandler(id)

	e.Emit(context.Background(), processor.EmitTrade, processor.Snapshot{Symbol: "tBTCUSD", Tf: "1m", Price: dec(1)})

	if called {
		t.Fatalf("expected unregistered handler not to be called")
	}
}

func TestEmitErrorLogsWithoutPanicking(t *testing.T) {
	e := NewEmitter(&fakeStrategy{}, nil)
	e.EmitError(context.DeadlineExceeded)
}

func TestEmitErrorDispatchesToRegisteredHandlers(t *testing.T) {
	e := NewEmitter(&fakeStrategy{}, nil)

	var got Event
	e.RegisterHandler(func(evt Event) { got = evt })

	e.EmitError(context.DeadlineExceeded)

	if got.Kind != EventError {
		t.Fatalf("expected an EventError, got kind %v", got.Kind)
	}
	if got.Err != context.DeadlineExceeded {
		t.Fatalf("expected the observer to receive the underlying error, got %v", got.Err)
	}
	if got.ID == "" {
		t.Fatalf("expected a correlation ID to be stamped on the error event")
	}
}

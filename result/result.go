// Package result implements the Result Emitter: after every processed
// candle, trade, or periodic perf tick it computes an open-position PnL
// snapshot (when a position exists) and a full results snapshot, then
// broadcasts both to registered observers. Emission happens synchronously
// from inside the Serial Processor's critical section to preserve ordering
// relative to state updates.
package result

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"execflow/logger"
	"execflow/models"
	"execflow/processor"
	"execflow/strategy"
)

// EventKind identifies which structured event a dispatched Event carries.
type EventKind string

const (
	// EventOpenedPositionData carries a point-in-time PnL view of the
	// strategy's open position. Only emitted when a position exists.
	EventOpenedPositionData EventKind = "opened_position_data"
	// EventExecutionResults carries a full results snapshot: trades,
	// candles, wallets, and performance metrics.
	EventExecutionResults EventKind = "rt_execution_results"
	// EventError carries any error surfaced from the processor or intake.
	EventError EventKind = "error"
)

// Event is a single structured broadcast delivered to observers.
type Event struct {
	Kind     EventKind
	ID       string
	Trigger  processor.EmitKind
	Position *models.PositionSnapshot
	Results  *models.ResultsSnapshot
	Err      error
}

// Handler receives every Event emitted by an Emitter.
type Handler func(Event)

// HandlerID identifies a registered Handler for later unregistration.
type HandlerID uint64

// Emitter is the concrete, structurally-typed implementation of
// processor.Emitter. It owns no strategy state; it only reads the snapshot
// handed to it and queries the strategy for PnL figures.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[HandlerID]Handler
	nextID   HandlerID

	strategy strategy.Strategy
	perf     strategy.PerfManager
	log      *logger.Log
}

// NewEmitter constructs an Emitter. perf may be nil, in which case the
// performance section of every results snapshot is left zero-valued.
func NewEmitter(strat strategy.Strategy, perf strategy.PerfManager) *Emitter {
	return &Emitter{
		handlers: make(map[HandlerID]Handler),
		strategy: strat,
		perf:     perf,
		log:      logger.GetLogger(),
	}
}

// RegisterHandler registers h to receive every future Event. A zero ID is
// returned for a nil handler.
func (e *Emitter) RegisterHandler(h Handler) HandlerID {
	if h == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.handlers[id] = h
	return id
}

// UnregisterHandler removes a previously registered handler.
func (e *Emitter) UnregisterHandler(id HandlerID) {
	if id == 0 {
		return
	}
	e.mu.Lock()
	delete(e.handlers, id)
	e.mu.Unlock()
}

// Emit satisfies processor.Emitter. It computes the open-position PnL event
// (when applicable) followed by the full results snapshot event.
func (e *Emitter) Emit(ctx context.Context, kind processor.EmitKind, snap processor.Snapshot) {
	id := uuid.NewString()
	mts := snapshotMts(snap)

	if pos, ok := e.strategy.GetPosition(snap.StrategyState, snap.Symbol); ok {
		realized := e.strategy.CalcRealizedPositionPnl(snap.StrategyState, pos, snap.Price)
		unrealized := e.strategy.CalcUnrealizedPositionPnl(snap.StrategyState, pos, snap.Price)
		e.dispatch(Event{
			Kind:    EventOpenedPositionData,
			ID:      id,
			Trigger: kind,
			Position: &models.PositionSnapshot{
				Position:      pos,
				RealizedPnl:   realized,
				UnrealizedPnl: unrealized,
			},
		})
	}

	perfSnap := e.performanceSnapshot()
	allocation := decimal.Zero
	if e.perf != nil {
		allocation = e.perf.Allocation()
	}

	e.dispatch(Event{
		Kind:    EventExecutionResults,
		ID:      id,
		Trigger: kind,
		Results: &models.ResultsSnapshot{
			ID:          id,
			Mts:         mts,
			Symbol:      snap.Symbol,
			Timeframe:   snap.Tf,
			EmittedAt:   time.Now(),
			LastCandle:  snap.LastCandle,
			LastTrade:   snap.LastTrade,
			Wallets:     snap.Wallets,
			Allocation:  allocation,
			Performance: perfSnap,
		},
	})

	e.log.WithComponent("result").WithFields(logger.Fields{"kind": string(kind), "symbol": snap.Symbol}).Debug("emitted results snapshot")
}

// EmitError satisfies processor.Emitter; strategy callback and intake errors
// surface here rather than aborting the processor. It both logs and
// broadcasts an EventError so a registered observer can decide recovery
// programmatically instead of only through the log stream.
func (e *Emitter) EmitError(err error) {
	e.log.WithComponent("result").WithError(err).Error("strategy callback failed")
	e.dispatch(Event{Kind: EventError, ID: uuid.NewString(), Err: err})
}

func (e *Emitter) performanceSnapshot() models.PerformanceSnapshot {
	if e.perf == nil {
		return models.PerformanceSnapshot{}
	}
	return models.PerformanceSnapshot{
		CurrentAllocation: e.perf.CurrentAllocation(),
		AvailableFunds:    e.perf.AvailableFunds(),
		EquityCurve:       e.perf.EquityCurve(),
		Return:            e.perf.Return(),
		ReturnPerc:        e.perf.ReturnPerc(),
		Drawdown:          e.perf.Drawdown(),
	}
}

func (e *Emitter) dispatch(evt Event) {
	e.mu.RLock()
	if len(e.handlers) == 0 {
		e.mu.RUnlock()
		return
	}
	handlers := make([]Handler, 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		h(evt)
	}
}

func snapshotMts(snap processor.Snapshot) int64 {
	if snap.LastCandle != nil {
		return snap.LastCandle.Mts
	}
	if snap.LastTrade != nil {
		return snap.LastTrade.Mts
	}
	return time.Now().UnixMilli()
}

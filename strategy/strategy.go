// Package strategy defines the capability set the engine expects from the
// user-supplied strategy and its injected collaborators. The engine treats all of
// these as black boxes; it only calls through the interfaces below.
package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"execflow/models"
)

// State is an opaque value owned exclusively by the engine's serial processor.
// Callbacks receive the current state and return the next one; implementations may
// use value or move semantics, but the engine always keeps the last good state when a
// callback returns an error.
type State interface{}

// Strategy is the callback surface a strategy implements. Indicator math, signal
// logic and order emission live entirely behind these methods; the engine never
// inspects State.
type Strategy interface {
	// OnSeedCandle replays one historical candle during seeding, before any live
	// subscription is opened.
	OnSeedCandle(ctx context.Context, state State, c models.Candle) (State, error)

	// OnCandle is invoked once a candle has closed, i.e. once a strictly later Mts
	// has been observed (or the closure watchdog has synthesized one).
	OnCandle(ctx context.Context, state State, c models.Candle) (State, error)

	// OnTrade is invoked, when the engine is configured to include trades, for
	// every trade whose ID strictly exceeds the last one forwarded.
	OnTrade(ctx context.Context, state State, t models.Trade) (State, error)

	// OnOrder forwards an opaque order-close payload; the engine does not interpret
	// it.
	OnOrder(ctx context.Context, state State, o models.OrderClose) (State, error)

	// GetPosition reports the currently open position for symbol, if any.
	GetPosition(state State, symbol string) (models.Position, bool)

	// CalcRealizedPositionPnl and CalcUnrealizedPositionPnl compute PnL figures used
	// by the result emitter.
	CalcRealizedPositionPnl(state State, pos models.Position, price decimal.Decimal) decimal.Decimal
	CalcUnrealizedPositionPnl(state State, pos models.Position, price decimal.Decimal) decimal.Decimal

	// CloseOpenPositions requests the strategy flatten any open position, used during
	// shutdown.
	CloseOpenPositions(ctx context.Context, state State) (State, error)
}

// Endable is implemented by strategies that want a final callback before the engine
// latches its terminal state.
type Endable interface {
	Strategy
	OnEnd(ctx context.Context, state State) (State, error)
}

// OnEnd invokes strategy.OnEnd when the strategy implements Endable, otherwise it
// returns state unchanged.
func OnEnd(ctx context.Context, s Strategy, state State) (State, error) {
	if endable, ok := s.(Endable); ok {
		return endable.OnEnd(ctx, state)
	}
	return state, nil
}

// PriceFeed receives monotonically increasing price pushes. Callers are responsible
// for enforcing mts monotonicity before calling Update.
type PriceFeed interface {
	Update(price decimal.Decimal, mts int64)
}

// PerfManager is the injected performance/PnL aggregation collaborator. Its own
// accounting is out of scope for the engine; the engine only reads from it and
// listens on Updates for periodic emit ticks.
type PerfManager interface {
	Updates() <-chan struct{}
	Allocation() decimal.Decimal
	PositionSize(symbol string) decimal.Decimal
	CurrentAllocation() decimal.Decimal
	AvailableFunds() decimal.Decimal
	EquityCurve() []decimal.Decimal
	Return() decimal.Decimal
	ReturnPerc() decimal.Decimal
	Drawdown() decimal.Decimal
}

// Package examplestrategy provides a minimal strategy.Strategy implementation
// that never opens a position. It exists so cmd/execflow has a concrete
// collaborator to wire and run end to end; a real deployment supplies its own
// strategy.Strategy satisfying the same interface and swaps the import in
// cmd/execflow/main.go.
package examplestrategy

import (
	"context"

	"github.com/shopspring/decimal"

	"execflow/models"
	"execflow/strategy"
)

// Passthrough observes every callback but never emits an order and never
// reports an open position. CalcRealizedPositionPnl and
// CalcUnrealizedPositionPnl are consequently unreachable in practice, but are
// implemented to satisfy strategy.Strategy.
type Passthrough struct{}

// New returns a Passthrough strategy. Passthrough keeps no state of its own;
// every callback returns the state it was given unchanged.
func New() *Passthrough {
	return &Passthrough{}
}

func (p *Passthrough) OnSeedCandle(ctx context.Context, state strategy.State, c models.Candle) (strategy.State, error) {
	return state, nil
}

func (p *Passthrough) OnCandle(ctx context.Context, state strategy.State, c models.Candle) (strategy.State, error) {
	return state, nil
}

func (p *Passthrough) OnTrade(ctx context.Context, state strategy.State, t models.Trade) (strategy.State, error) {
	return state, nil
}

func (p *Passthrough) OnOrder(ctx context.Context, state strategy.State, o models.OrderClose) (strategy.State, error) {
	return state, nil
}

func (p *Passthrough) GetPosition(state strategy.State, symbol string) (models.Position, bool) {
	return models.Position{}, false
}

func (p *Passthrough) CalcRealizedPositionPnl(state strategy.State, pos models.Position, price decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

func (p *Passthrough) CalcUnrealizedPositionPnl(state strategy.State, pos models.Position, price decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

func (p *Passthrough) CloseOpenPositions(ctx context.Context, state strategy.State) (strategy.State, error) {
	return state, nil
}

// OnEnd satisfies strategy.Endable so the engine's shutdown sequence exercises
// that path even with no real strategy wired in.
func (p *Passthrough) OnEnd(ctx context.Context, state strategy.State) (strategy.State, error) {
	return state, nil
}

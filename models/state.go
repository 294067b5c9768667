package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PausedMts records the wall-clock boundaries of the current or most recent pause.
type PausedMts struct {
	PausedOn  int64
	ResumedOn int64
}

// ExecutionState is the engine's private bookkeeping, distinct from the opaque
// strategy state threaded through strategy callbacks. It is owned exclusively by the
// serial processor, which guards every field with its single mutex.
type ExecutionState struct {
	LastCandle          *Candle
	LastTrade           *Trade
	LastPriceFeedUpdate int64
	Processing          bool
	Stopped             bool
	Paused              bool
	PausedMts           PausedMts
	ClosureTimer        *time.Timer
}

// ResultsSnapshot is the payload carried by an rt_execution_results event: a point in
// time view of trades, candles, PnL stats and performance metrics.
type ResultsSnapshot struct {
	ID          string
	Mts         int64
	Symbol      string
	Timeframe   string
	EmittedAt   time.Time
	LastCandle  *Candle
	LastTrade   *Trade
	Wallets     []Wallet
	Allocation  decimal.Decimal
	Performance PerformanceSnapshot
}

// PerformanceSnapshot mirrors the read side of a PerfManager at emit time.
type PerformanceSnapshot struct {
	CurrentAllocation decimal.Decimal
	AvailableFunds    decimal.Decimal
	EquityCurve       []decimal.Decimal
	Return            decimal.Decimal
	ReturnPerc        decimal.Decimal
	Drawdown          decimal.Decimal
}

// PositionSnapshot is the payload carried by an opened_position_data event.
type PositionSnapshot struct {
	Position      Position
	RealizedPnl   decimal.Decimal
	UnrealizedPnl decimal.Decimal
}

// Package processor implements the engine's Serial Processor and Candle
// Closure Timer: a single-consumer queue drainer that invokes strategy
// callbacks in strict FIFO order, plus the wall-clock watchdog that
// synthesizes a closing candle when the exchange stops emitting one.
package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"execflow/logger"
	"execflow/models"
	"execflow/strategy"
)

// EmitKind identifies why a results snapshot is being emitted, mirroring the
// processing branch that triggered it.
type EmitKind string

const (
	EmitCandleUpdate EmitKind = "candle_update"
	EmitCandleClose  EmitKind = "candle_close"
	EmitTrade        EmitKind = "trade"
	EmitPerfTick     EmitKind = "perf_tick"
)

// Snapshot is the point-in-time view handed to the Emitter after every
// processed event.
type Snapshot struct {
	Symbol        string
	Tf            string
	Price         decimal.Decimal
	LastCandle    *models.Candle
	LastTrade     *models.Trade
	Wallets       []models.Wallet
	StrategyState strategy.State
}

// Emitter computes PnL/results snapshots and broadcasts them to observers.
// Implemented by the result package; declared here so processor has no
// dependency on it.
type Emitter interface {
	Emit(ctx context.Context, kind EmitKind, snap Snapshot)
	EmitError(err error)
}

// Deps are the collaborators a Processor is constructed with.
type Deps struct {
	Strategy         strategy.Strategy
	PriceFeed        strategy.PriceFeed
	Emitter          Emitter
	Symbol           string
	Timeframe        string
	WidthMs          int64
	CandlePriceField string // "open" | "high" | "low" | "close"

	// IncludeTrades gates whether an accepted trade is forwarded to the
	// strategy's OnTrade. The price feed watermark still advances from every
	// trade regardless of this flag: trade price pushes and trade forwarding
	// are independent rules.
	IncludeTrades bool
}

type invokeRequest struct {
	fn     func(strategy.State) (strategy.State, error)
	result chan invokeResult
}

type invokeResult struct {
	state strategy.State
	err   error
}

// Processor is the Serial Processor. One mutex guards the queue and the
// engine's execution state (models.ExecutionState): the processing/paused/
// stopped flags, lastCandle/lastTrade/lastPriceFeedUpdate, the pause window
// and the Closure Timer handle. Strategy callbacks also run with that mutex
// held, so at most one callback runs at a time.
type Processor struct {
	deps Deps
	log  *logger.Log
	now  func() int64

	mu    sync.Mutex
	queue []models.QueueMessage
	exec  models.ExecutionState

	lastPrice decimal.Decimal
	wallets   []models.Wallet

	state strategy.State
}

// New constructs a Processor around the given strategy state and
// collaborators. The strategy is not invoked until the first message is
// processed.
func New(deps Deps, initialState strategy.State) *Processor {
	return &Processor{
		deps:  deps,
		log:   logger.GetLogger(),
		now:   func() int64 { return time.Now().UnixMilli() },
		state: initialState,
	}
}

// State returns the processor's current strategy state. Intended for tests
// and for the Lifecycle Manager's shutdown sequence.
func (p *Processor) State() strategy.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// QueueDepth reports the number of messages awaiting processing.
func (p *Processor) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stats returns a snapshot of ambient health fields for the periodic report.
func (p *Processor) Stats() logger.Fields {
	p.mu.Lock()
	defer p.mu.Unlock()
	return logger.Fields{
		"queue_depth": len(p.queue),
		"processing":  p.exec.Processing,
		"paused":      p.exec.Paused,
		"stopped":     p.exec.Stopped,
	}
}

// Enqueue appends msg to the tail of the queue and starts draining if the
// processor is idle. Enqueues after Stop are silently discarded. Called from
// any I/O goroutine (WS read loop, closure timer); it never blocks on a
// callback.
func (p *Processor) Enqueue(msg models.QueueMessage) {
	p.mu.Lock()
	if p.exec.Stopped {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, msg)
	shouldDrain := !p.exec.Processing && !p.exec.Paused
	if shouldDrain {
		p.exec.Processing = true
	}
	p.mu.Unlock()

	if shouldDrain {
		go p.drain()
	}
}

// Invoke funnels an external strategy-state mutation through the same serial
// discipline as queued market events: it runs only once no callback is
// in-flight and in FIFO order relative to other invokes and messages.
func (p *Processor) Invoke(ctx context.Context, fn func(strategy.State) (strategy.State, error)) (strategy.State, error) {
	result := make(chan invokeResult, 1)
	msg := models.QueueMessage{
		Type: models.MessageInvoke,
		Data: invokeRequest{fn: fn, result: result},
		Mts:  p.now(),
	}

	p.mu.Lock()
	if p.exec.Stopped {
		p.mu.Unlock()
		return nil, fmt.Errorf("processor stopped")
	}
	p.queue = append(p.queue, msg)
	shouldDrain := !p.exec.Processing && !p.exec.Paused
	if shouldDrain {
		p.exec.Processing = true
	}
	p.mu.Unlock()

	if shouldDrain {
		go p.drain()
	}

	select {
	case res := <-result:
		return res.state, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pause freezes draining. Idempotent: a second Pause while already paused is
// a no-op, matching the Pause/Resume Controller's "if not already paused"
// guard.
func (p *Processor) Pause() (alreadyPaused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exec.Paused {
		return true
	}
	p.exec.Paused = true
	p.exec.PausedMts.PausedOn = p.now()
	p.cancelTimerLocked()
	return false
}

// PausedOn returns the wall-clock time Pause was most recently called.
func (p *Processor) PausedOn() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exec.PausedMts.PausedOn
}

// Resume splices backfill (already padded, ascending) to the head of the
// queue, stable-sorts the whole queue by Mts, clears the paused flags and
// resumes draining.
func (p *Processor) Resume(backfill []models.Candle) {
	p.mu.Lock()
	resumedOn := p.now()
	p.exec.PausedMts.ResumedOn = resumedOn

	backfillMsgs := make([]models.QueueMessage, len(backfill))
	for i, c := range backfill {
		backfillMsgs[i] = models.QueueMessage{Type: models.MessageCandle, Data: c, Mts: c.Mts}
	}
	p.queue = append(backfillMsgs, p.queue...)
	stableSortByMts(p.queue)

	p.exec.Paused = false
	p.exec.PausedMts = models.PausedMts{}
	p.armTimerLocked()

	shouldDrain := !p.exec.Processing && len(p.queue) > 0
	if shouldDrain {
		p.exec.Processing = true
	}
	p.mu.Unlock()

	if shouldDrain {
		go p.drain()
	}
}

// Stop marks the processor stopped. Further enqueues are dropped; the
// in-flight callback (if any) completes without interruption.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.exec.Stopped = true
	p.cancelTimerLocked()
	p.mu.Unlock()
}

func (p *Processor) drain() {
	ctx := context.Background()
	for {
		p.mu.Lock()
		if p.exec.Stopped || p.exec.Paused || len(p.queue) == 0 {
			p.exec.Processing = false
			p.mu.Unlock()
			return
		}
		msg := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.dispatch(ctx, msg)
	}
}

func stableSortByMts(msgs []models.QueueMessage) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Mts < msgs[j].Mts })
}

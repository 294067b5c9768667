// Package engine implements the Lifecycle Manager: it wires the Throttled
// Fetcher, Event Intake, Serial Processor, Pause/Resume Controller and
// Result Emitter around a strategy, and exposes the execute/stopExecution/
// invoke surface the host process drives.
package engine

import (
	"context"
	"fmt"
	"sync"

	"execflow/config"
	"execflow/intake"
	"execflow/logger"
	"execflow/metrics"
	"execflow/pause"
	"execflow/processor"
	"execflow/result"
	"execflow/seed"
	"execflow/strategy"
)

// state identifies where in the fresh -> seeding -> live -> stopped
// lifecycle the engine currently is. Paused is tracked separately by the
// processor; it is not a distinct top-level state here.
type state int

const (
	stateFresh state = iota
	stateSeeding
	stateLive
	stateStopped
)

// Deps are the collaborators an Engine is constructed around. Fetcher and WS
// are required; PriceFeed and Perf may be nil.
type Deps struct {
	Strategy  strategy.Strategy
	Fetcher   strategy.RestClient
	WS        strategy.WSManager
	PriceFeed strategy.PriceFeed
	Perf      strategy.PerfManager
	Config    config.EngineConfig
}

// Engine is the Lifecycle Manager.
type Engine struct {
	deps    Deps
	widthMs int64

	proc    *processor.Processor
	emitter *result.Emitter
	pauser  *pause.Controller

	mu    sync.Mutex
	state state

	stopUnsubscribe func()
	log             *logger.Log
	wg              sync.WaitGroup
}

// New validates the configuration and wires every collaborator together. It
// does not start seeding or subscribing; call Execute for that. A missing
// required collaborator is a configuration error, fatal at construction.
func New(deps Deps) (*Engine, error) {
	if deps.Strategy == nil {
		return nil, fmt.Errorf("engine: strategy is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("engine: fetcher is required")
	}
	if deps.WS == nil {
		return nil, fmt.Errorf("engine: ws manager is required")
	}
	if deps.Config.Symbol == "" || deps.Config.Timeframe == "" {
		return nil, fmt.Errorf("engine: symbol and timeframe are required")
	}

	widthMs, err := candleWidth(deps.Config.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	emitter := result.NewEmitter(deps.Strategy, deps.Perf)

	candlePriceField := deps.Config.CandlePrice
	if candlePriceField == "" {
		candlePriceField = "close"
	}

	proc := processor.New(processor.Deps{
		Strategy:         deps.Strategy,
		PriceFeed:        deps.PriceFeed,
		Emitter:          emitter,
		Symbol:           deps.Config.Symbol,
		Timeframe:        deps.Config.Timeframe,
		WidthMs:          widthMs,
		CandlePriceField: candlePriceField,
		IncludeTrades:    deps.Config.IncludeTrades,
	}, initialStrategyState(deps.Config))

	pauser := pause.New(deps.Fetcher, proc, deps.Config.Symbol, deps.Config.Timeframe, widthMs)

	return &Engine{
		deps:    deps,
		widthMs: widthMs,
		proc:    proc,
		emitter: emitter,
		pauser:  pauser,
		log:     logger.GetLogger(),
	}, nil
}

// RegisterResultHandler forwards to the underlying Result Emitter so
// external observers can subscribe before or after Execute.
func (e *Engine) RegisterResultHandler(h result.Handler) result.HandlerID {
	return e.emitter.RegisterHandler(h)
}

// initialStrategyState packages the forwarded construction options into a
// plain map; a concrete strategy implementation is expected to read these on
// its first callback and fold them into its own state representation.
func initialStrategyState(cfg config.EngineConfig) strategy.State {
	return map[string]interface{}{
		"useMaxLeverage":   cfg.UseMaxLeverage,
		"leverage":         cfg.Leverage,
		"increaseLeverage": cfg.IncreaseLeverage,
		"maxLeverage":      cfg.MaxLeverage,
		"addStopOrder":     cfg.AddStopOrder,
		"stopOrderPercent": cfg.StopOrderPercent,
		"isDerivative":     cfg.IsDerivative,
		"baseCurrency":     cfg.BaseCurrency,
		"quoteCurrency":    cfg.QuoteCurrency,
	}
}

// Execute seeds the strategy, opens the live subscription, and subscribes to
// perf-manager updates. It returns once seeding and subscription setup are
// complete; live processing continues in the background. A seeding fetch
// failure is fatal and is returned to the caller without transitioning past
// stateFresh.
func (e *Engine) Execute(ctx context.Context) error {
	e.mu.Lock()
	if e.state != stateFresh {
		e.mu.Unlock()
		return fmt.Errorf("engine: execute called outside the fresh state")
	}
	e.state = stateSeeding
	e.mu.Unlock()

	res, err := seed.Seed(ctx, seed.Deps{
		Fetcher:   e.deps.Fetcher,
		Strategy:  e.deps.Strategy,
		Symbol:    e.deps.Config.Symbol,
		Timeframe: e.deps.Config.Timeframe,
		WidthMs:   e.widthMs,
	}, e.proc.State(), seedCount(e.deps.Config.SeedCandleCount), nowMs())
	if err != nil {
		e.mu.Lock()
		e.state = stateFresh
		e.mu.Unlock()
		return fmt.Errorf("engine: seeding failed: %w", err)
	}
	e.proc.SeedComplete(res.State, res.LastCandle)

	unsub := intake.Start(&intake.Deps{
		WS:            e.deps.WS,
		Processor:     e.proc,
		Symbol:        e.deps.Config.Symbol,
		Timeframe:     e.deps.Config.Timeframe,
		OnSocketOpen:  e.pauser.OnOpen,
		OnSocketClose: e.pauser.OnClose,
	})
	e.stopUnsubscribe = unsub

	if err := e.deps.WS.WithSocket(func(s strategy.Socket) error {
		key := map[string]string{"key": "trade:" + e.deps.Config.Timeframe + ":" + e.deps.Config.Symbol}
		if err := s.Subscribe("candles", key); err != nil {
			return err
		}
		if e.deps.Config.IncludeTrades {
			if err := s.Subscribe("trades", map[string]string{"symbol": e.deps.Config.Symbol}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		e.log.WithComponent("engine").WithError(err).Warn("initial subscribe failed, relying on WS manager reconnect")
	}

	if e.deps.Perf != nil {
		e.wg.Add(1)
		go e.runPerfTickLoop(ctx)
	}

	e.mu.Lock()
	e.state = stateLive
	e.mu.Unlock()

	metrics.StartQueueDepthSampler(ctx, metricsSampleInterval, e.proc.QueueDepth)
	logger.RegisterStatsProvider(func() logger.Fields { return e.proc.Stats() })

	return nil
}

func (e *Engine) runPerfTickLoop(ctx context.Context) {
	defer e.wg.Done()
	updates := e.deps.Perf.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			e.proc.EmitPerfTick(ctx)
		}
	}
}

// StopExecution invokes the strategy's onEnd (if implemented), requests the
// strategy close any open position, and latches the terminal state. Calling
// it a second time is a no-op: the terminal state is irreversible.
func (e *Engine) StopExecution(ctx context.Context) error {
	e.mu.Lock()
	if e.state == stateStopped {
		e.mu.Unlock()
		return nil
	}
	e.state = stateStopped
	e.mu.Unlock()

	if e.stopUnsubscribe != nil {
		e.stopUnsubscribe()
	}

	_, err := e.proc.Invoke(ctx, func(s strategy.State) (strategy.State, error) {
		next, err := strategy.OnEnd(ctx, e.deps.Strategy, s)
		if err != nil {
			return s, err
		}
		return e.deps.Strategy.CloseOpenPositions(ctx, next)
	})

	e.proc.Stop()
	e.wg.Wait()
	return err
}

// Invoke funnels fn through the Processor's serial discipline, per §4.9.
func (e *Engine) Invoke(ctx context.Context, fn func(strategy.State) (strategy.State, error)) (strategy.State, error) {
	return e.proc.Invoke(ctx, fn)
}

func seedCount(configured int) int {
	if configured <= 0 {
		return 5000
	}
	return configured
}

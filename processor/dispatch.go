package processor

import (
	"context"

	"github.com/shopspring/decimal"

	"execflow/logger"
	"execflow/metrics"
	"execflow/models"
)

func (p *Processor) dispatch(ctx context.Context, msg models.QueueMessage) {
	metrics.IncMessage(string(msg.Type))
	switch msg.Type {
	case models.MessageCandle:
		c, ok := msg.Data.(models.Candle)
		if !ok {
			p.log.WithComponent("processor").Warn("candle message carried unexpected payload type, dropping")
			return
		}
		p.handleCandle(ctx, c)
	case models.MessageTrade:
		t, ok := msg.Data.(models.Trade)
		if !ok {
			p.log.WithComponent("processor").Warn("trade message carried unexpected payload type, dropping")
			return
		}
		p.handleTrade(ctx, t)
	case models.MessageOrderClose:
		oc, ok := msg.Data.(models.OrderClose)
		if !ok {
			p.log.WithComponent("processor").Warn("order-close message carried unexpected payload type, dropping")
			return
		}
		p.handleOrder(ctx, oc)
	case models.MessageWalletSnapshot:
		wallets, ok := msg.Data.([]models.Wallet)
		if !ok {
			p.log.WithComponent("processor").Warn("wallet-snapshot message carried unexpected payload type, dropping")
			return
		}
		p.handleWalletSnapshot(wallets)
	case models.MessageWalletUpdate:
		w, ok := msg.Data.(models.Wallet)
		if !ok {
			p.log.WithComponent("processor").Warn("wallet-update message carried unexpected payload type, dropping")
			return
		}
		p.handleWalletUpdate(w)
	case models.MessageInvoke:
		req, ok := msg.Data.(invokeRequest)
		if !ok {
			p.log.WithComponent("processor").Warn("invoke message carried unexpected payload type, dropping")
			return
		}
		p.handleInvoke(ctx, req)
	default:
		p.log.WithComponent("processor").WithFields(logger.Fields{"type": msg.Type}).Warn("unknown message type, dropping")
	}
}

func candleField(c models.Candle, field string) decimal.Decimal {
	switch field {
	case "open":
		return c.Open
	case "high":
		return c.High
	case "low":
		return c.Low
	default:
		return c.Close
	}
}

// handleCandle implements the §4.5 candle branch: price feed watermark first,
// then either an in-progress update (same bucket) or a closure (strictly
// later mts, which triggers OnCandle for the bucket that just closed).
func (p *Processor) handleCandle(ctx context.Context, data models.Candle) {
	p.mu.Lock()
	if p.exec.Stopped {
		p.mu.Unlock()
		return
	}

	if data.Mts > p.exec.LastPriceFeedUpdate {
		price := candleField(data, p.deps.CandlePriceField)
		p.exec.LastPriceFeedUpdate = data.Mts
		p.lastPrice = price
		if p.deps.PriceFeed != nil {
			p.deps.PriceFeed.Update(price, data.Mts)
		}
	}

	switch {
	case p.exec.LastCandle == nil, p.exec.LastCandle.Mts == data.Mts:
		p.exec.LastCandle = &data
		p.emitLocked(ctx, EmitCandleUpdate, candleField(data, p.deps.CandlePriceField))
		p.armTimerLocked()
		p.mu.Unlock()
		return

	case p.exec.LastCandle.Mts < data.Mts:
		closed := *p.exec.LastCandle
		newState, err := p.deps.Strategy.OnCandle(ctx, p.state, closed)
		if err != nil {
			p.mu.Unlock()
			p.emitError(err)
			p.mu.Lock()
		} else {
			p.state = newState
		}
		p.exec.LastCandle = &data
		p.emitLocked(ctx, EmitCandleClose, candleField(data, p.deps.CandlePriceField))
		p.armTimerLocked()
		p.mu.Unlock()
		return

	default:
		// data.Mts < lastCandle.Mts: stale, drop.
		p.mu.Unlock()
		return
	}
}

// handleTrade mirrors handleCandle's price feed watermark push so both
// sources gate a single lastPriceFeedUpdate: every trade whose mts is past
// the watermark pushes the price feed, ahead of the dedup check and the
// IncludeTrades forwarding gate, so the watermark advances even when the
// trade itself is dropped as a duplicate or not forwarded to the strategy.
func (p *Processor) handleTrade(ctx context.Context, t models.Trade) {
	p.mu.Lock()
	if p.exec.Stopped {
		p.mu.Unlock()
		return
	}

	if t.Mts > p.exec.LastPriceFeedUpdate {
		p.exec.LastPriceFeedUpdate = t.Mts
		p.lastPrice = t.Price
		if p.deps.PriceFeed != nil {
			p.deps.PriceFeed.Update(t.Price, t.Mts)
		}
	}

	if p.exec.LastTrade != nil && t.ID <= p.exec.LastTrade.ID {
		p.mu.Unlock()
		metrics.IncDuplicateDropped()
		return
	}

	if !p.deps.IncludeTrades {
		p.mu.Unlock()
		return
	}

	t.Symbol = p.deps.Symbol
	newState, err := p.deps.Strategy.OnTrade(ctx, p.state, t)
	if err != nil {
		p.mu.Unlock()
		p.emitError(err)
		return
	}
	p.state = newState
	p.exec.LastTrade = &t
	p.emitLocked(ctx, EmitTrade, t.Price)
	p.mu.Unlock()
}

func (p *Processor) handleOrder(ctx context.Context, oc models.OrderClose) {
	p.mu.Lock()
	if p.exec.Stopped {
		p.mu.Unlock()
		return
	}
	newState, err := p.deps.Strategy.OnOrder(ctx, p.state, oc)
	if err != nil {
		p.mu.Unlock()
		p.emitError(err)
		return
	}
	p.state = newState
	p.mu.Unlock()
}

// emitError forwards a strategy-callback or intake error to the Emitter.
// Must be called without p.mu held; guards against a nil Emitter the same
// way emitLocked does.
func (p *Processor) emitError(err error) {
	if p.deps.Emitter == nil {
		return
	}
	p.deps.Emitter.EmitError(err)
}

func (p *Processor) handleWalletSnapshot(wallets []models.Wallet) {
	p.mu.Lock()
	p.wallets = wallets
	p.mu.Unlock()
}

// handleWalletUpdate mutates the matching (currency, type) entry iff the
// incoming balance/balanceAvailable fields are truthy. Zero is treated as
// falsy and the corresponding field is left untouched; this is preserved
// verbatim even though it reads like a bug, since a zero balance update is
// indistinguishable from "no update" with this payload shape.
func (p *Processor) handleWalletUpdate(update models.Wallet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.wallets {
		if p.wallets[i].Key() != update.Key() {
			continue
		}
		if !update.Balance.IsZero() {
			p.wallets[i].Balance = update.Balance
		}
		if !update.BalanceAvailable.IsZero() {
			p.wallets[i].BalanceAvailable = update.BalanceAvailable
		}
		return
	}
}

func (p *Processor) handleInvoke(ctx context.Context, req invokeRequest) {
	p.mu.Lock()
	newState, err := req.fn(p.state)
	if err == nil {
		p.state = newState
	}
	result := p.state
	p.mu.Unlock()
	req.result <- invokeResult{state: result, err: err}
}

// emitLocked broadcasts a results snapshot from inside the processor's
// critical section so emission ordering always matches state-update ordering.
// Must be called with p.mu held.
func (p *Processor) emitLocked(ctx context.Context, kind EmitKind, price decimal.Decimal) {
	if p.deps.Emitter == nil {
		return
	}
	snap := Snapshot{
		Symbol:        p.deps.Symbol,
		Tf:            p.deps.Timeframe,
		Price:         price,
		LastCandle:    p.exec.LastCandle,
		LastTrade:     p.exec.LastTrade,
		Wallets:       append([]models.Wallet(nil), p.wallets...),
		StrategyState: p.state,
	}
	p.deps.Emitter.Emit(ctx, kind, snap)
}

// EmitPerfTick is invoked by the Lifecycle Manager each time the injected
// PerfManager signals an update; it emits a results snapshot using the last
// known price watermark rather than a freshly observed candle or trade.
func (p *Processor) EmitPerfTick(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exec.Stopped || p.deps.Emitter == nil {
		return
	}
	p.emitLocked(ctx, EmitPerfTick, p.lastPrice)
}

package processor

import (
	"time"

	"github.com/shopspring/decimal"

	"execflow/metrics"
	"execflow/models"
	"execflow/strategy"
)

// armTimerLocked (re-)arms the Candle Closure Timer relative to the current
// lastCandle. It fires at lastCandle.Mts + 1.5*width wall-clock; delay is
// floored at zero so a timer armed against a stale lastCandle fires
// immediately rather than negatively. Must be called with p.mu held.
func (p *Processor) armTimerLocked() {
	p.cancelTimerLocked()
	if p.exec.LastCandle == nil || p.deps.WidthMs <= 0 {
		return
	}

	threshold := int64(float64(p.deps.WidthMs) * 1.5)
	delay := threshold - (p.now() - p.exec.LastCandle.Mts)
	if delay < 0 {
		delay = 0
	}

	watchedMts := p.exec.LastCandle.Mts
	p.exec.ClosureTimer = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		p.onWatchdogFire(watchedMts)
	})
}

// cancelTimerLocked stops any armed timer. Must be called with p.mu held.
func (p *Processor) cancelTimerLocked() {
	if p.exec.ClosureTimer != nil {
		p.exec.ClosureTimer.Stop()
		p.exec.ClosureTimer = nil
	}
}

// onWatchdogFire runs on the timer's own goroutine, outside p.mu. It
// re-validates the gap condition against the live lastCandle before
// synthesizing anything, since a real candle may have arrived and been
// processed between the timer firing and this goroutine acquiring the lock.
func (p *Processor) onWatchdogFire(watchedMts int64) {
	p.mu.Lock()
	if p.exec.Stopped || p.exec.Paused {
		p.mu.Unlock()
		return
	}
	if p.exec.LastCandle == nil || p.exec.LastCandle.Mts != watchedMts {
		// Superseded by a real candle since this timer was armed; stale fire.
		p.mu.Unlock()
		return
	}

	threshold := int64(float64(p.deps.WidthMs) * 1.5)
	if p.now()-p.exec.LastCandle.Mts < threshold {
		// Fired early (timer granularity/clock skew); re-arm and wait again.
		p.armTimerLocked()
		p.mu.Unlock()
		return
	}

	prev := *p.exec.LastCandle
	p.mu.Unlock()

	metrics.IncWatchdogFire()
	synthetic := models.Candle{
		Mts:       prev.Mts + p.deps.WidthMs,
		Open:      prev.Close,
		High:      prev.Close,
		Low:       prev.Close,
		Close:     prev.Close,
		Volume:    decimal.Zero,
		Symbol:    prev.Symbol,
		Tf:        prev.Tf,
		Synthetic: true,
	}
	p.Enqueue(models.QueueMessage{Type: models.MessageCandle, Data: synthetic, Mts: synthetic.Mts})
}

// SeedComplete installs the strategy state and last candle produced by the
// Seeder and arms the Closure Timer against it. Called once, before any live
// message is enqueued.
func (p *Processor) SeedComplete(state strategy.State, lastCandle *models.Candle) {
	p.mu.Lock()
	p.state = state
	p.exec.LastCandle = lastCandle
	p.armTimerLocked()
	p.mu.Unlock()
}

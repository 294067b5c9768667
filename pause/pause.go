// Package pause wires socket connectivity to the Serial Processor's
// Pause/Resume Controller: on socket loss it freezes draining, and on socket
// restore it back-fills the missed window via the Fetcher before resuming.
package pause

import (
	"context"
	"time"

	"execflow/logger"
	"execflow/metrics"
	"execflow/models"
	"execflow/pad"
	"execflow/processor"
	"execflow/strategy"
)

// lookbackMs covers clock skew and boundary candles around a pause window,
// per the controller's 2-minute look-back rule.
const lookbackMs = 120000

// Controller reacts to WS open/close events and drives Processor.Pause /
// Processor.Resume accordingly.
type Controller struct {
	Fetcher   strategy.RestClient
	Processor *processor.Processor
	Symbol    string
	Timeframe string
	WidthMs   int64
	log       *logger.Entry
}

// New constructs a Controller. Wire its OnOpen/OnClose methods to the WS
// manager's open/close pseudo-channels (see package intake).
func New(fetcher strategy.RestClient, proc *processor.Processor, symbol, timeframe string, widthMs int64) *Controller {
	return &Controller{
		Fetcher:   fetcher,
		Processor: proc,
		Symbol:    symbol,
		Timeframe: timeframe,
		WidthMs:   widthMs,
		log:       logger.GetLogger().WithComponent("pause"),
	}
}

// OnClose is called when the live socket disconnects. Pausing disarms the
// Closure Timer so no synthetic candle is fabricated while the feed is down.
func (c *Controller) OnClose() {
	alreadyPaused := c.Processor.Pause()
	if alreadyPaused {
		return
	}
	metrics.IncPause()
	c.log.Info("socket closed, processing paused")
}

// OnOpen is called when the live socket (re)connects. If the processor was
// not paused this is the initial connect and there is nothing to back-fill.
func (c *Controller) OnOpen() {
	pausedOn := c.Processor.PausedOn()
	if pausedOn == 0 {
		return
	}

	resumedOn := nowMs()
	backfill, err := c.fetchBackfill(pausedOn, resumedOn)
	if err != nil {
		// Per the engine's gap-handling rule, a failed resume fetch does not
		// abort the engine: live processing resumes with a gap rather than
		// wedging forever waiting for history that may never arrive.
		c.log.WithError(err).Warn("backfill fetch failed, resuming without history")
		backfill = nil
	}

	c.Processor.Resume(backfill)
	metrics.IncResume()
	c.log.WithFields(logger.Fields{"pausedOn": pausedOn, "resumedOn": resumedOn, "backfillLen": len(backfill)}).Info("socket reopened, processing resumed")
}

// fetchBackfill pages the window [pausedOn-lookbackMs, resumedOn] and pads it
// to a complete, gap-free series. pausedOn/resumedOn are wall-clock values
// and almost never land on the width grid, while every real candle's mts
// does (per the series' alignment invariant); the window is aligned down/up
// to that grid before fetching so Pad's bucket positions actually coincide
// with the candles the fetch returns, instead of silently discarding them.
func (c *Controller) fetchBackfill(pausedOn, resumedOn int64) ([]models.Candle, error) {
	start := alignDown(pausedOn-lookbackMs, c.WidthMs)
	end := alignUp(resumedOn, c.WidthMs)
	candles, err := c.Fetcher.Candles(context.Background(), strategy.CandlesRequest{
		Symbol:    c.Symbol,
		Timeframe: c.Timeframe,
		Section:   "hist",
		Start:     start,
		End:       end,
		Ascending: true,
	})
	if err != nil {
		return nil, err
	}
	return pad.Pad(candles, c.WidthMs, start, end), nil
}

func alignDown(mts, width int64) int64 {
	return (mts / width) * width
}

func alignUp(mts, width int64) int64 {
	down := alignDown(mts, width)
	if down == mts {
		return down
	}
	return down + width
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

package strategy

import (
	"context"

	"execflow/models"
)

// CandlesRequest parameterizes a historical candle fetch. Section mirrors the
// exchange's "hist"/"last" split; Start/End/Limit are passed through to the
// underlying REST call verbatim.
type CandlesRequest struct {
	Symbol    string
	Timeframe string
	Section   string
	Start     int64
	End       int64
	Limit     int
	Ascending bool
}

// RestClient is the injected historical-data collaborator behind the
// Throttled Fetcher. Implementations own their own rate limiting policy; the
// engine only calls Candles.
type RestClient interface {
	Candles(ctx context.Context, req CandlesRequest) ([]models.Candle, error)
}

// WSHandler receives a single normalized push from a subscribed channel. The
// payload shape is channel-specific and is unmarshalled by the WSManager
// implementation before delivery.
type WSHandler func(payload interface{})

// WSManager is the injected live-feed collaborator. It owns authentication,
// dialing and reconnection; the engine only attaches handlers and issues
// subscriptions through it.
type WSManager interface {
	// OnWS attaches handler to channel, optionally scoped by filter (e.g. a
	// symbol or key). It returns a function that detaches the handler.
	OnWS(channel string, filter map[string]string, handler WSHandler) (unsubscribe func())
	// WithSocket hands fn the current live socket so it can issue
	// subscriptions; fn may be called again after a reconnect.
	WithSocket(fn func(Socket) error) error
}

// Socket is the chainable subscription primitive exposed by WSManager.
type Socket interface {
	Subscribe(channel string, params map[string]string) error
}

package models

// MessageType identifies the kind of payload carried by a QueueMessage.
type MessageType string

const (
	MessageCandle         MessageType = "candle"
	MessageTrade          MessageType = "trade"
	MessageOrderClose     MessageType = "order-close"
	MessageWalletSnapshot MessageType = "wallet-snapshot"
	MessageWalletUpdate   MessageType = "wallet-update"
	// MessageInvoke carries an opaque strategy-state mutation funneled through
	// the same serial discipline as market events (see processor.invokeRequest).
	MessageInvoke MessageType = "invoke"
)

// QueueMessage is a normalized event awaiting serial processing. Mts is cached at
// enqueue time from the underlying payload so the pause/resume stable sort (see the
// pause package) never has to re-inspect Data.
type QueueMessage struct {
	Type MessageType
	Data interface{}
	Mts  int64
}

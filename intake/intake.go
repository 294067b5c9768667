// Package intake wires the injected WebSocket manager to the Serial
// Processor's queue: it normalizes every channel push into a
// models.QueueMessage and applies the snapshot-drop rules from the engine's
// event intake design. Price feed watermark pushes and trade-forwarding
// decisions live in the Serial Processor (package processor), not here, so a
// single lastPriceFeedUpdate gates every update source under one lock.
package intake

import (
	"encoding/json"

	"execflow/logger"
	"execflow/models"
	"execflow/processor"
	"execflow/strategy"
)

// Deps are the collaborators Event Intake wires together.
type Deps struct {
	WS            strategy.WSManager
	Processor     *processor.Processor
	Symbol        string
	Timeframe     string
	OnSocketOpen  func()
	OnSocketClose func()
}

// candlePush mirrors the shape a WSManager delivers for the candles
// channel: either a single candle or, for the initial snapshot, a list.
type candlePush struct {
	Mts    int64  `json:"mts"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

type tradePush struct {
	ID     int64  `json:"id"`
	Mts    int64  `json:"mts"`
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

type walletPush struct {
	Currency         string `json:"currency"`
	Type             string `json:"type"`
	Balance          string `json:"balance"`
	BalanceAvailable string `json:"balanceAvailable"`
}

// Start attaches every channel handler to the WS manager. It does not block;
// delivery happens asynchronously as the WSManager dispatches pushes.
func Start(deps *Deps) (unsubscribeAll func()) {
	log := logger.GetLogger().WithComponent("intake")

	var unsubs []func()

	key := "trade:" + deps.Timeframe + ":" + deps.Symbol
	unsubs = append(unsubs, deps.WS.OnWS("candles", map[string]string{"key": key}, func(payload interface{}) {
		handleCandlesPayload(deps, log, payload)
	}))

	// Every trade is enqueued regardless of IncludeTrades: the processor owns
	// the price feed watermark push (which must advance from every trade)
	// and the decision whether to forward the trade to the strategy.
	unsubs = append(unsubs, deps.WS.OnWS("trades", map[string]string{"symbol": deps.Symbol}, func(payload interface{}) {
		handleTradesPayload(deps, log, payload)
	}))

	unsubs = append(unsubs, deps.WS.OnWS("order-close", map[string]string{"symbol": deps.Symbol}, func(payload interface{}) {
		handleOrderClose(deps, log, payload)
	}))

	unsubs = append(unsubs, deps.WS.OnWS("wallet-snapshot", nil, func(payload interface{}) {
		handleWalletSnapshot(deps, log, payload)
	}))

	unsubs = append(unsubs, deps.WS.OnWS("wallet-update", nil, func(payload interface{}) {
		handleWalletUpdate(deps, log, payload)
	}))

	unsubs = append(unsubs, deps.WS.OnWS("open", nil, func(payload interface{}) {
		if deps.OnSocketOpen != nil {
			deps.OnSocketOpen()
		}
	}))
	unsubs = append(unsubs, deps.WS.OnWS("close", nil, func(payload interface{}) {
		if deps.OnSocketClose != nil {
			deps.OnSocketClose()
		}
	}))

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func handleCandlesPayload(deps *Deps, log *logger.Entry, payload interface{}) {
	if list, ok := payload.([]interface{}); ok {
		if len(list) > 1 {
			// Snapshot: seeding already owns history.
			return
		}
		if len(list) == 1 {
			payload = list[0]
		} else {
			return
		}
	}

	c, ok := decodeCandle(payload)
	if !ok {
		log.WithFields(logger.Fields{"payload": payload}).Warn("unrecognized candle payload, dropping")
		return
	}
	c.Symbol = deps.Symbol
	c.Tf = deps.Timeframe

	deps.Processor.Enqueue(models.QueueMessage{Type: models.MessageCandle, Data: c, Mts: c.Mts})
}

func handleTradesPayload(deps *Deps, log *logger.Entry, payload interface{}) {
	if list, ok := payload.([]interface{}); ok {
		// Trade snapshots are dropped regardless of length.
		_ = list
		return
	}

	t, ok := decodeTrade(payload)
	if !ok {
		log.WithFields(logger.Fields{"payload": payload}).Warn("unrecognized trade payload, dropping")
		return
	}
	t.Symbol = deps.Symbol

	deps.Processor.Enqueue(models.QueueMessage{Type: models.MessageTrade, Data: t, Mts: t.Mts})
}

func handleOrderClose(deps *Deps, log *logger.Entry, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warn("failed to marshal order-close payload, dropping")
		return
	}
	deps.Processor.Enqueue(models.QueueMessage{
		Type: models.MessageOrderClose,
		Data: models.OrderClose{Raw: raw},
		Mts:  0,
	})
}

func handleWalletSnapshot(deps *Deps, log *logger.Entry, payload interface{}) {
	list, ok := payload.([]interface{})
	if !ok {
		log.WithFields(logger.Fields{"payload": payload}).Warn("unrecognized wallet-snapshot payload, dropping")
		return
	}
	wallets := make([]models.Wallet, 0, len(list))
	for _, item := range list {
		w, ok := decodeWallet(item)
		if !ok {
			continue
		}
		wallets = append(wallets, w)
	}
	deps.Processor.Enqueue(models.QueueMessage{Type: models.MessageWalletSnapshot, Data: wallets, Mts: 0})
}

func handleWalletUpdate(deps *Deps, log *logger.Entry, payload interface{}) {
	w, ok := decodeWallet(payload)
	if !ok {
		log.WithFields(logger.Fields{"payload": payload}).Warn("unrecognized wallet-update payload, dropping")
		return
	}
	deps.Processor.Enqueue(models.QueueMessage{Type: models.MessageWalletUpdate, Data: w, Mts: 0})
}

package models

import "github.com/shopspring/decimal"

// Candle is an OHLCV bar over a fixed timeframe bucket. Within a series, Mts is a
// multiple of the timeframe width; a closed candle strictly increases Mts relative to
// its predecessor, while an "updating" candle shares the Mts of the bar currently open.
type Candle struct {
	Mts     int64
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
	Symbol  string
	Tf      string
	Synthetic bool
}

// Trade is a single execution print. ID is strictly increasing in the exchange's
// emission order; the processor drops anything with ID <= the last seen trade ID.
type Trade struct {
	ID     int64
	Mts    int64
	Price  decimal.Decimal
	Amount decimal.Decimal
	Symbol string
}

// WalletKey identifies a wallet entry by currency and wallet type (e.g. "exchange",
// "margin", "funding").
type WalletKey struct {
	Currency string
	Type     string
}

// Wallet is a single balance entry. Snapshots replace the full set; updates mutate
// exactly one entry matching its WalletKey.
type Wallet struct {
	Currency         string
	Type             string
	Balance          decimal.Decimal
	BalanceAvailable decimal.Decimal
}

func (w Wallet) Key() WalletKey {
	return WalletKey{Currency: w.Currency, Type: w.Type}
}

// OrderClose is an opaque order-closure payload forwarded to the strategy; the engine
// never inspects its contents.
type OrderClose struct {
	Raw []byte
}

// Position describes an open position as reported by the strategy.
type Position struct {
	Symbol   string
	Amount   decimal.Decimal
	BasePrice decimal.Decimal
}

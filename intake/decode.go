package intake

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"execflow/models"
)

// decodeCandle accepts either a typed candlePush or a generic
// map[string]interface{} (the shape json.Unmarshal produces for an
// interface{} field), since WSManager implementations are free to deliver
// either depending on how they decode the wire envelope.
func decodeCandle(payload interface{}) (models.Candle, bool) {
	switch v := payload.(type) {
	case candlePush:
		return models.Candle{
			Mts:    v.Mts,
			Open:   parseDecimal(v.Open),
			High:   parseDecimal(v.High),
			Low:    parseDecimal(v.Low),
			Close:  parseDecimal(v.Close),
			Volume: parseDecimal(v.Volume),
		}, true
	case map[string]interface{}:
		mts, ok := asInt64(v["mts"])
		if !ok {
			return models.Candle{}, false
		}
		return models.Candle{
			Mts:    mts,
			Open:   parseDecimal(asString(v["open"])),
			High:   parseDecimal(asString(v["high"])),
			Low:    parseDecimal(asString(v["low"])),
			Close:  parseDecimal(asString(v["close"])),
			Volume: parseDecimal(asString(v["volume"])),
		}, true
	default:
		return models.Candle{}, false
	}
}

func decodeTrade(payload interface{}) (models.Trade, bool) {
	switch v := payload.(type) {
	case tradePush:
		return models.Trade{
			ID:     v.ID,
			Mts:    v.Mts,
			Price:  parseDecimal(v.Price),
			Amount: parseDecimal(v.Amount),
		}, true
	case map[string]interface{}:
		id, ok := asInt64(v["id"])
		if !ok {
			return models.Trade{}, false
		}
		mts, _ := asInt64(v["mts"])
		return models.Trade{
			ID:     id,
			Mts:    mts,
			Price:  parseDecimal(asString(v["price"])),
			Amount: parseDecimal(asString(v["amount"])),
		}, true
	default:
		return models.Trade{}, false
	}
}

func decodeWallet(payload interface{}) (models.Wallet, bool) {
	switch v := payload.(type) {
	case walletPush:
		return models.Wallet{
			Currency:         v.Currency,
			Type:             v.Type,
			Balance:          parseDecimal(v.Balance),
			BalanceAvailable: parseDecimal(v.BalanceAvailable),
		}, true
	case map[string]interface{}:
		currency := asString(v["currency"])
		if currency == "" {
			return models.Wallet{}, false
		}
		return models.Wallet{
			Currency:         currency,
			Type:             asString(v["type"]),
			Balance:          parseDecimal(asString(v["balance"])),
			BalanceAvailable: parseDecimal(asString(v["balanceAvailable"])),
		}, true
	default:
		return models.Wallet{}, false
	}
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return decimal.NewFromFloat(x).String()
	default:
		return ""
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case int64:
		return x, true
	default:
		return 0, false
	}
}

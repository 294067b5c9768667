// Package pad fills gaps in a historical candle series with synthetic
// zero-volume candles so that every caller sees one bucket per timeframe width.
package pad

import (
	"sort"

	"github.com/shopspring/decimal"

	"execflow/models"
)

// Pad returns a candle for every width-aligned bucket in [start, end), filling
// missing buckets with synthetic candles that carry the previous close
// forward. Real candles always win over synthetic ones at the same bucket.
// Buckets before the first real candle are back-projected from its close.
func Pad(candles []models.Candle, width int64, start, end int64) []models.Candle {
	if width <= 0 || end <= start {
		return nil
	}

	sorted := make([]models.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Mts < sorted[j].Mts })

	byMts := make(map[int64]models.Candle, len(sorted))
	for _, c := range sorted {
		byMts[c.Mts] = c
	}

	var firstClose decimal.Decimal
	var symbol, tf string
	if len(sorted) > 0 {
		firstClose = sorted[0].Close
		symbol = sorted[0].Symbol
		tf = sorted[0].Tf
	}

	length := (end - start) / width
	out := make([]models.Candle, 0, length)
	prevClose := firstClose

	for k := int64(0); k < length; k++ {
		mts := start + k*width
		if real, ok := byMts[mts]; ok {
			out = append(out, real)
			prevClose = real.Close
			if symbol == "" {
				symbol, tf = real.Symbol, real.Tf
			}
			continue
		}
		out = append(out, models.Candle{
			Mts:       mts,
			Open:      prevClose,
			High:      prevClose,
			Low:       prevClose,
			Close:     prevClose,
			Volume:    decimal.Zero,
			Symbol:    symbol,
			Tf:        tf,
			Synthetic: true,
		})
	}

	return out
}

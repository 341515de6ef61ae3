package book

import (
	sdkmath "cosmossdk.io/math"

	"marketScope/internal/model"
)

// Level is one L2 depth level: integer price in quote atomics per whole base
// unit (rounded to nearest), cumulative size in base atomics, and
// decimal-scaled equivalents for display.
type Level struct {
	Price        sdkmath.Int       `json:"price"`
	Size         sdkmath.Int       `json:"size"`
	PriceDisplay sdkmath.LegacyDec `json:"price_display"`
	SizeDisplay  sdkmath.LegacyDec `json:"size_display"`
}

// Depth aggregates one side's ordered keys into price levels using exact
// decimal arithmetic, never binary floating point. Adjacent offers sharing a
// rounded price merge into one level; the side's sort key is monotonic in
// the same direction as the rounded price, so equal-rounded prices are
// always contiguous. A key that does not resolve to an open registry offer
// raises DesyncError instead of returning a partial result.
func Depth(reg *Registry, ix *Index, side model.Side, baseDecimals, quoteDecimals uint8) ([]Level, error) {
	basePow := sdkmath.LegacyNewDec(10).Power(uint64(baseDecimals))
	quotePow := sdkmath.LegacyNewDec(10).Power(uint64(quoteDecimals))

	keys := ix.Keys(side)
	levels := make([]Level, 0, len(keys))
	for _, key := range keys {
		offer, ok := reg.Get(key)
		if !ok || !offer.IsOpen() {
			return nil, DesyncError{Side: side, Address: key}
		}

		baseAmount, quoteAmount := offer.Offering, offer.AcceptAtLeast
		if side == model.SideBid {
			baseAmount, quoteAmount = offer.AcceptAtLeast, offer.Offering
		}
		baseDec := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(baseAmount))
		quoteDec := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(quoteAmount))

		price := quoteDec.Mul(basePow).Quo(baseDec).RoundInt()
		size := sdkmath.NewIntFromUint64(baseAmount)
		sizeDisplay := baseDec.Quo(basePow)

		if n := len(levels); n > 0 && levels[n-1].Price.Equal(price) {
			levels[n-1].Size = levels[n-1].Size.Add(size)
			levels[n-1].SizeDisplay = levels[n-1].SizeDisplay.Add(sizeDisplay)
			continue
		}

		levels = append(levels, Level{
			Price:        price,
			Size:         size,
			PriceDisplay: sdkmath.LegacyNewDecFromInt(price).Quo(quotePow),
			SizeDisplay:  sizeDisplay,
		})
	}
	return levels, nil
}

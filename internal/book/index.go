package book

import (
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"

	"marketScope/internal/model"
)

// Outranks reports strict price priority between two offers resting on the
// same side, by integer cross-multiplication so no rounding bias can creep
// in. Both sides reduce to the same inequality: bids want the highest
// offering/acceptAtLeast (quote offered per base required) first, asks want
// the lowest acceptAtLeast/offering (quote required per base offered) first,
// and each is the other's reciprocal. Equal cross products are a tie.
func Outranks(a, b model.OfferFields) bool {
	// u64*u64 overflows u64, hence math.Int.
	left := sdkmath.NewIntFromUint64(a.Offering).Mul(sdkmath.NewIntFromUint64(b.AcceptAtLeast))
	right := sdkmath.NewIntFromUint64(b.Offering).Mul(sdkmath.NewIntFromUint64(a.AcceptAtLeast))
	return left.GT(right)
}

// Index keeps the two price-ordered key lists over the registry: bids by
// descending implied rate, asks by ascending implied rate, best first, no
// duplicates, open offers only.
type Index struct {
	bids []solana.PublicKey
	asks []solana.PublicKey
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{}
}

func (ix *Index) side(side model.Side) *[]solana.PublicKey {
	if side == model.SideBid {
		return &ix.bids
	}
	return &ix.asks
}

// Keys returns a copy of one side's ordering, best priced first.
func (ix *Index) Keys(side model.Side) []solana.PublicKey {
	keys := *ix.side(side)
	out := make([]solana.PublicKey, len(keys))
	copy(out, keys)
	return out
}

// Len returns the number of keys on one side.
func (ix *Index) Len(side model.Side) int {
	return len(*ix.side(side))
}

// Insert places the offer key into its side's list keeping price priority.
// Equal-priced offers keep arrival order: the new key goes in front of the
// first resting entry it strictly outranks, so ties queue behind existing
// entries. Resting keys are resolved through the registry; one that does not
// resolve to an open offer is a desync.
func (ix *Index) Insert(reg *Registry, side model.Side, offer model.OfferFields) error {
	keys := ix.side(side)
	for i, key := range *keys {
		resting, ok := reg.Get(key)
		if !ok || !resting.IsOpen() {
			return DesyncError{Side: side, Address: key}
		}
		if Outranks(offer, resting.Fields()) {
			*keys = append(*keys, solana.PublicKey{})
			copy((*keys)[i+1:], (*keys)[i:])
			(*keys)[i] = offer.Address
			return nil
		}
	}
	*keys = append(*keys, offer.Address)
	return nil
}

// Remove deletes the key from its side's list; no-op when absent.
func (ix *Index) Remove(side model.Side, address solana.PublicKey) {
	keys := ix.side(side)
	for i, key := range *keys {
		if key.Equals(address) {
			*keys = append((*keys)[:i], (*keys)[i+1:]...)
			return
		}
	}
}

// ReplaceSide installs a wholesale ordering for one side in a single sort
// pass, using the same comparator as incremental inserts.
func (ix *Index) ReplaceSide(side model.Side, offers []*model.Offer) {
	sorted := make([]*model.Offer, len(offers))
	copy(sorted, offers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Outranks(sorted[i].Fields(), sorted[j].Fields())
	})

	keys := make([]solana.PublicKey, 0, len(sorted))
	for _, offer := range sorted {
		keys = append(keys, offer.Address)
	}
	*ix.side(side) = keys
}

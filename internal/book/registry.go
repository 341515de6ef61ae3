package book

import (
	"sort"

	"github.com/gagliardetto/solana-go"

	"marketScope/internal/model"
)

// Registry is the keyed store of offer entities. It is not safe for
// concurrent mutation; the market engine confines writes to one goroutine.
type Registry struct {
	offers map[solana.PublicKey]*model.Offer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{offers: make(map[solana.PublicKey]*model.Offer)}
}

// Upsert replaces or inserts offers by address. No ordering side effects.
func (r *Registry) Upsert(offers ...*model.Offer) {
	for _, offer := range offers {
		r.offers[offer.Address] = offer
	}
}

// Get looks up an offer by address.
func (r *Registry) Get(address solana.PublicKey) (*model.Offer, bool) {
	offer, ok := r.offers[address]
	return offer, ok
}

// Remove deletes entries by address; used only for closed offers.
func (r *Registry) Remove(addresses ...solana.PublicKey) {
	for _, address := range addresses {
		delete(r.offers, address)
	}
}

// Len returns the number of stored offers.
func (r *Registry) Len() int {
	return len(r.offers)
}

// AllByOwner returns the owner's offers in unspecified order. Linear scan;
// expected book sizes keep this cheap and no index is maintained for it.
func (r *Registry) AllByOwner(owner solana.PublicKey) []*model.Offer {
	out := make([]*model.Offer, 0)
	for _, offer := range r.offers {
		if offer.Owner.Equals(owner) {
			out = append(out, offer)
		}
	}
	return out
}

// NextUnusedSeed returns the smallest seed in [0, MaxSeed] not taken by any
// of the owner's offers giving offerMint (the side is identified by the mint
// being offered). Gaps are filled before appending. When every seed is taken
// it returns AllSeedsExhaustedError.
func (r *Registry) NextUnusedSeed(owner, offerMint solana.PublicKey) (uint16, error) {
	used := make([]int, 0)
	for _, offer := range r.offers {
		if offer.Owner.Equals(owner) && offer.OfferMint.Equals(offerMint) {
			used = append(used, int(offer.Seed))
		}
	}
	sort.Ints(used)

	next := 0
	for _, seed := range used {
		if seed > next {
			break
		}
		if seed == next {
			next++
		}
	}
	if next > model.MaxSeed {
		return 0, AllSeedsExhaustedError{Owner: owner}
	}
	return uint16(next), nil
}

package model

import (
	"github.com/gagliardetto/solana-go"
)

// Side identifies one half of the book.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// MaxSeed is the largest per-owner offer seed the program accepts.
const MaxSeed = 65535

// Offer is one resting order: the on-ledger record plus its derived addresses.
type Offer struct {
	Address        solana.PublicKey `json:"address"`
	Owner          solana.PublicKey `json:"owner"`
	OfferMint      solana.PublicKey `json:"offer_mint"`
	AcceptMint     solana.PublicKey `json:"accept_mint"`
	Offering       uint64           `json:"offering"`
	AcceptAtLeast  uint64           `json:"accept_at_least"`
	Slot           uint64           `json:"slot"`
	Seed           uint16           `json:"seed"`
	Bump           uint8            `json:"bump"`
	HoldingAddress solana.PublicKey `json:"holding_address"`
	RefundTo       solana.PublicKey `json:"refund_to"`
	CreditTo       solana.PublicKey `json:"credit_to"`
	RefundRentTo   solana.PublicKey `json:"refund_rent_to"`
}

// Fields projects the event-visible subset of the offer.
func (o *Offer) Fields() OfferFields {
	return OfferFields{
		Address:       o.Address,
		OfferMint:     o.OfferMint,
		Offering:      o.Offering,
		AcceptMint:    o.AcceptMint,
		AcceptAtLeast: o.AcceptAtLeast,
	}
}

// IsOpen reports whether the offer still rests on the book. An offer with
// either amount at zero is fully filled or cancelled and must not be indexed.
func (o *Offer) IsOpen() bool {
	return o.Offering > 0 && o.AcceptAtLeast > 0
}

// SideFor places an (offerMint, acceptMint) pairing on a side of the
// (base, quote) market. ok is false when the pairing does not belong to the
// market at all; this is the predicate that gates every event.
func SideFor(offerMint, acceptMint, base, quote solana.PublicKey) (Side, bool) {
	switch {
	case offerMint.Equals(base) && acceptMint.Equals(quote):
		return SideAsk, true
	case offerMint.Equals(quote) && acceptMint.Equals(base):
		return SideBid, true
	default:
		return "", false
	}
}

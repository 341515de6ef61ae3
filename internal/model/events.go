package model

import "github.com/gagliardetto/solana-go"

// Event tags as they appear on the wire after the program log prefix.
const (
	CreateOfferTag = "CREATE"
	CancelOfferTag = "CANCEL"
	MatchOffersTag = "MATCH"
)

// Event is one decoded program log event. Events are immutable and carry
// only the fields present on the log line; owner, slot, seed and routing
// addresses require a ledger read.
type Event interface {
	Tag() string
}

// OfferFields is the subset of offer state carried by events.
type OfferFields struct {
	Address       solana.PublicKey `json:"address"`
	OfferMint     solana.PublicKey `json:"offer_mint"`
	Offering      uint64           `json:"offering"`
	AcceptMint    solana.PublicKey `json:"accept_mint"`
	AcceptAtLeast uint64           `json:"accept_at_least"`
}

// CreateOffer announces a newly created offer.
type CreateOffer struct {
	OfferFields
}

func (CreateOffer) Tag() string { return CreateOfferTag }

// CancelOffer announces a cancelled offer.
type CancelOffer struct {
	OfferFields
}

func (CancelOffer) Tag() string { return CancelOfferTag }

// Trade summarizes the amounts exchanged by one match.
type Trade struct {
	TokenA       solana.PublicKey `json:"token_a"`
	TokenB       solana.PublicKey `json:"token_b"`
	TokenAAmount uint64           `json:"token_a_amount"`
	TokenBAmount uint64           `json:"token_b_amount"`
}

// MatchOffers announces a match between two offers with mirrored mints:
// updated offer A gives tokenA for tokenB, updated offer B the reverse.
type MatchOffers struct {
	UpdatedOfferA OfferFields `json:"updated_offer_a"`
	UpdatedOfferB OfferFields `json:"updated_offer_b"`
	Trade         Trade       `json:"trade"`
}

func (MatchOffers) Tag() string { return MatchOffersTag }

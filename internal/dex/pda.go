package dex

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

func offerSeeds(owner, offerMint, acceptMint solana.PublicKey, seed uint16) [][]byte {
	seedLE := make([]byte, 2)
	binary.LittleEndian.PutUint16(seedLE, seed)
	return [][]byte{owner.Bytes(), offerMint.Bytes(), acceptMint.Bytes(), seedLE}
}

// FindOfferAddress derives the offer address and bump for
// (owner, offerMint, acceptMint, seed) under the given program.
func FindOfferAddress(owner, offerMint, acceptMint solana.PublicKey, seed uint16, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(offerSeeds(owner, offerMint, acceptMint, seed), program)
}

// CreateOfferAddress recomputes the offer address from a known bump, the
// verification form of FindOfferAddress.
func CreateOfferAddress(owner, offerMint, acceptMint solana.PublicKey, seed uint16, bump uint8, program solana.PublicKey) (solana.PublicKey, error) {
	seeds := append(offerSeeds(owner, offerMint, acceptMint, seed), []byte{bump})
	return solana.CreateProgramAddress(seeds, program)
}

// HoldingAddress derives the escrow token account holding the offered mint
// for an offer address.
func HoldingAddress(offerMint, offerAddress solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(offerAddress, offerMint)
	return address, err
}

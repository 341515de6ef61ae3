package dex

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// On-ledger offer record layout: fixed width, little-endian. The field order
// and widths are a hard compatibility surface; the byte-offset constants are
// also used as getProgramAccounts memcmp filter offsets.
const (
	OfferSlotOffset         = 0
	OfferOfferingOffset     = 8
	OfferAcceptOffset       = 16
	OfferSeedOffset         = 24
	OfferBumpOffset         = 26
	OfferOwnerOffset        = 27
	OfferMintOffset         = 59
	OfferAcceptMintOffset   = 91
	OfferRefundToOffset     = 123
	OfferCreditToOffset     = 155
	OfferRefundRentToOffset = 187

	// OfferAccountSize is the full record width in bytes.
	OfferAccountSize = 219
)

// RawOffer mirrors the on-ledger offer record field for field.
type RawOffer struct {
	Slot          uint64
	Offering      uint64
	AcceptAtLeast uint64
	Seed          uint16
	Bump          uint8
	Owner         solana.PublicKey
	OfferMint     solana.PublicKey
	AcceptMint    solana.PublicKey
	RefundTo      solana.PublicKey
	CreditTo      solana.PublicKey
	RefundRentTo  solana.PublicKey
}

// DecodeOffer decodes the fixed-width offer record. Extra trailing bytes are
// tolerated; a short buffer is an error.
func DecodeOffer(data []byte) (RawOffer, error) {
	if len(data) < OfferAccountSize {
		return RawOffer{}, fmt.Errorf("offer record too short: %d bytes, want %d", len(data), OfferAccountSize)
	}

	return RawOffer{
		Slot:          binary.LittleEndian.Uint64(data[OfferSlotOffset:]),
		Offering:      binary.LittleEndian.Uint64(data[OfferOfferingOffset:]),
		AcceptAtLeast: binary.LittleEndian.Uint64(data[OfferAcceptOffset:]),
		Seed:          binary.LittleEndian.Uint16(data[OfferSeedOffset:]),
		Bump:          data[OfferBumpOffset],
		Owner:         solana.PublicKeyFromBytes(data[OfferOwnerOffset : OfferOwnerOffset+32]),
		OfferMint:     solana.PublicKeyFromBytes(data[OfferMintOffset : OfferMintOffset+32]),
		AcceptMint:    solana.PublicKeyFromBytes(data[OfferAcceptMintOffset : OfferAcceptMintOffset+32]),
		RefundTo:      solana.PublicKeyFromBytes(data[OfferRefundToOffset : OfferRefundToOffset+32]),
		CreditTo:      solana.PublicKeyFromBytes(data[OfferCreditToOffset : OfferCreditToOffset+32]),
		RefundRentTo:  solana.PublicKeyFromBytes(data[OfferRefundRentToOffset : OfferRefundRentToOffset+32]),
	}, nil
}

// EncodeOffer is the inverse of DecodeOffer.
func EncodeOffer(raw RawOffer) []byte {
	data := make([]byte, OfferAccountSize)
	binary.LittleEndian.PutUint64(data[OfferSlotOffset:], raw.Slot)
	binary.LittleEndian.PutUint64(data[OfferOfferingOffset:], raw.Offering)
	binary.LittleEndian.PutUint64(data[OfferAcceptOffset:], raw.AcceptAtLeast)
	binary.LittleEndian.PutUint16(data[OfferSeedOffset:], raw.Seed)
	data[OfferBumpOffset] = raw.Bump
	copy(data[OfferOwnerOffset:], raw.Owner.Bytes())
	copy(data[OfferMintOffset:], raw.OfferMint.Bytes())
	copy(data[OfferAcceptMintOffset:], raw.AcceptMint.Bytes())
	copy(data[OfferRefundToOffset:], raw.RefundTo.Bytes())
	copy(data[OfferCreditToOffset:], raw.CreditTo.Bytes())
	copy(data[OfferRefundRentToOffset:], raw.RefundRentTo.Bytes())
	return data
}

// SPL token mint layout, of which only decimals matters here.
const (
	mintDecimalsOffset = 44

	// MintAccountSize is the SPL mint record width.
	MintAccountSize = 82
)

// DecodeMintDecimals extracts the decimal exponent from an SPL mint record.
func DecodeMintDecimals(data []byte) (uint8, error) {
	if len(data) < MintAccountSize {
		return 0, fmt.Errorf("mint record too short: %d bytes, want %d", len(data), MintAccountSize)
	}
	return data[mintDecimalsOffset], nil
}

package chain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// NotFoundError reports a fetch-by-address that found no account.
type NotFoundError struct {
	Address solana.PublicKey
}

// Error implements the error interface.
func (e NotFoundError) Error() string {
	return fmt.Sprintf("account %s not found", e.Address)
}

// InvalidOwnerError reports an account owned by the wrong program. Hard
// data-integrity error, not retried.
type InvalidOwnerError struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
}

// Error implements the error interface.
func (e InvalidOwnerError) Error() string {
	return fmt.Sprintf("account %s owned by %s, not the dex program", e.Address, e.Owner)
}

// InvalidSizeError reports an account with too few bytes for its expected
// layout. Hard data-integrity error, not retried.
type InvalidSizeError struct {
	Address solana.PublicKey
	Size    int
}

// Error implements the error interface.
func (e InvalidSizeError) Error() string {
	return fmt.Sprintf("account %s has %d bytes, too few for an offer record", e.Address, e.Size)
}

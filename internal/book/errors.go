package book

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"marketScope/internal/model"
)

// DesyncError reports an index key with no corresponding open offer in the
// registry. The incremental path and the snapshot path have diverged; the
// only safe recovery is a full resync.
type DesyncError struct {
	Side    model.Side
	Address solana.PublicKey
}

// Error implements the error interface.
func (e DesyncError) Error() string {
	return fmt.Sprintf("order book desynchronized: %s index references %s", e.Side, e.Address)
}

// AllSeedsExhaustedError reports that an owner has an offer for every seed
// value on one side. Not retryable without owner intervention.
type AllSeedsExhaustedError struct {
	Owner solana.PublicKey
}

// Error implements the error interface.
func (e AllSeedsExhaustedError) Error() string {
	return fmt.Sprintf("all %d offer seeds in use for owner %s", model.MaxSeed+1, e.Owner)
}

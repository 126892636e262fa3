// Package payments guards payment references against double-spending: a
// reference can authorize at most one ticket mint per ticket-token
// collection, forever.
package payments

import (
	"context"
	"errors"
)

// ErrDuplicatePayment is returned when a payment reference has already been
// claimed or consumed for the same ticket-token collection.
var ErrDuplicatePayment = errors.New("payment reference already consumed")

// Guard is the idempotency guard for payment references. The claim must be
// a single atomic check-and-record: of N concurrent claims for one
// reference, exactly one succeeds and the rest observe ErrDuplicatePayment.
//
// Lifecycle: Claim before minting; Confirm once the mint succeeded (the
// reference is consumed forever from that point); Release only when the
// claim was taken but no mint ever happened, so a later retry of the same
// reference is not permanently blocked by a transient failure.
type Guard interface {
	Claim(ctx context.Context, eventID, ticketTokenID, reference, buyerAccountID string) error
	Confirm(ctx context.Context, ticketTokenID, reference string, serialNumber int64, mintTransactionID string) error
	Release(ctx context.Context, ticketTokenID, reference string) error
}

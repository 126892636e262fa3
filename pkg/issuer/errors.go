package issuer

import (
	"errors"
	"fmt"
)

// ErrNotAssociated is returned when the buyer's account has not associated
// with the ticket-token collection. Association requires the buyer's own
// signature, so the issuer never performs it on their behalf; the buyer
// must associate out-of-band and retry.
var ErrNotAssociated = errors.New("buyer account is not associated with the ticket token")

// IssuanceError reports a failure after verification passed. When the mint
// already happened, SerialNumber and MintTransactionID carry the partial
// result so reconciliation is possible; a zero SerialNumber means nothing
// was minted.
type IssuanceError struct {
	Step              string
	SerialNumber      int64
	MintTransactionID string
	Err               error
}

func (e *IssuanceError) Error() string {
	if e.SerialNumber > 0 {
		return fmt.Sprintf("issuance %s failed after minting serial %d: %v", e.Step, e.SerialNumber, e.Err)
	}
	return fmt.Sprintf("issuance %s failed: %v", e.Step, e.Err)
}

func (e *IssuanceError) Unwrap() error { return e.Err }

// OwnershipMismatchError is returned at check-in when the mirror-reported
// current owner differs from the claimed owner.
type OwnershipMismatchError struct {
	Claimed string
	Actual  string
}

func (e *OwnershipMismatchError) Error() string {
	return fmt.Sprintf("ownership mismatch: provided %s but current owner is %s", e.Claimed, e.Actual)
}

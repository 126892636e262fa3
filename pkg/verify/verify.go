// Package verify decides whether a finalized transfer list represents a
// sufficient, correctly-directed HBAR payment for a ticket. It is a pure
// predicate over mirror node data: all comparisons happen in integer
// tinybar, never in floating-point HBAR.
package verify

import (
	"errors"

	"github.com/oderahub/eventhash/pkg/mirror"
)

// TinybarPerHbar is the fixed conversion multiplier between whole HBAR and
// the ledger's atomic unit.
const TinybarPerHbar = 100_000_000

// ErrInvalidDirection is returned when the buyer did not debit or the
// recipient did not credit in the transfer list.
var ErrInvalidDirection = errors.New("payment transfer direction invalid")

// ErrInsufficientAmount is returned when either side of the transfer is
// below the agreed price.
var ErrInsufficientAmount = errors.New("payment amount below required price")

// Request carries the identities and minimum price a transfer list must
// satisfy. MinPriceHbar is in whole HBAR and is converted to tinybar with
// truncation toward zero before any comparison.
type Request struct {
	BuyerAccountID     string
	RecipientAccountID string
	MinPriceHbar       float64
}

// ToTinybar converts a whole-HBAR amount to tinybar, truncating toward zero.
func ToTinybar(hbar float64) int64 {
	return int64(hbar * TinybarPerHbar)
}

// Verify accepts a transaction record iff the first transfer entry for the
// buyer is a debit, the first entry for the recipient is a credit, and both
// magnitudes are at least the minimum price. A debit exactly equal to the
// price is accepted.
//
// Only the first matching entry per account is inspected; multi-row splits
// for one account are not aggregated, matching the observed mirror shape
// for simple crypto transfers.
func Verify(record *mirror.TransactionRecord, req Request) error {
	var sent, received int64
	var sawBuyer, sawRecipient bool

	for _, t := range record.Transfers {
		if !sawBuyer && t.Account == req.BuyerAccountID {
			sent = t.Amount
			sawBuyer = true
		}
		if !sawRecipient && t.Account == req.RecipientAccountID {
			received = t.Amount
			sawRecipient = true
		}
	}

	// The buyer sends (negative) and the recipient receives (positive).
	// A missing entry fails the same check as a wrong-signed one.
	if sent >= 0 || received <= 0 {
		return ErrInvalidDirection
	}

	minimum := ToTinybar(req.MinPriceHbar)
	if -sent < minimum || received < minimum {
		return ErrInsufficientAmount
	}

	return nil
}

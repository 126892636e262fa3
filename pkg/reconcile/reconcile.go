// Package reconcile handles the non-atomic tail of ticket issuance. A mint
// is irreversible, so when the follow-up transfer or audit submission
// fails the issuance is left in a recoverable inconsistency; these jobs
// carry enough state, keyed by the mint's serial number, to finish the
// remaining steps out of band.
package reconcile

import (
	"context"
	"time"
)

// Step names the first issuance step that still needs to run.
const (
	// StepTransfer: the serial is minted but still sits in the treasury.
	StepTransfer = "TRANSFER"
	// StepAudit: the buyer holds the serial but the purchase entry never
	// reached the event topic.
	StepAudit = "AUDIT"
)

// Job describes one stranded issuance.
type Job struct {
	Step             string    `json:"step"`
	EventID          string    `json:"eventId"`
	TicketTokenID    string    `json:"ticketTokenId"`
	SerialNumber     int64     `json:"serialNumber"`
	BuyerAccountID   string    `json:"buyerAccountId"`
	PaymentReference string    `json:"paymentReference"`
	PriceHbar        float64   `json:"priceHbar"`
	EnqueuedAt       time.Time `json:"enqueuedAt"`
}

// Enqueuer hands a stranded issuance to the reconciliation worker.
type Enqueuer interface {
	EnqueueReconciliation(ctx context.Context, job *Job) error
}

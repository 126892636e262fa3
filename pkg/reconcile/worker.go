package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oderahub/eventhash/pkg/audit"
	"github.com/oderahub/eventhash/pkg/ledger"
	"github.com/oderahub/eventhash/pkg/models"
)

// Worker completes the remaining steps of a stranded issuance. Processing
// is idempotent per step: re-delivering a job whose transfer already
// settled fails on the ledger side and surfaces for operator attention
// rather than double-transferring (a serial can only leave the treasury
// once).
type Worker struct {
	Ledger ledger.Ledger
	Audit  audit.Emitter
}

// NewWorker creates a new Worker.
func NewWorker(l ledger.Ledger, emitter audit.Emitter) *Worker {
	return &Worker{Ledger: l, Audit: emitter}
}

// purchaseEntry is the TICKET_PURCHASED payload, re-emitted here with the
// same shape the issuer writes.
type purchaseEntry struct {
	EventID            string  `json:"eventId"`
	TicketTokenID      string  `json:"ticketTokenId"`
	TicketSerialNumber int64   `json:"ticketSerialNumber"`
	Buyer              string  `json:"buyer"`
	Price              float64 `json:"price"`
	PurchaseDate       int64   `json:"purchaseDate"`
}

// Process runs the job's pending step and everything after it.
func (w *Worker) Process(ctx context.Context, job *Job) error {
	switch job.Step {
	case StepTransfer:
		txID, err := w.Ledger.TransferTicket(ctx, job.TicketTokenID, job.SerialNumber, job.BuyerAccountID)
		if err != nil {
			return fmt.Errorf("reconciliation transfer of serial %d failed: %w", job.SerialNumber, err)
		}
		slog.Info("reconciled stranded transfer",
			"token_id", job.TicketTokenID,
			"serial_number", job.SerialNumber,
			"transaction_id", txID)
		fallthrough
	case StepAudit:
		_, err := w.Audit.Emit(ctx, job.EventID, models.KindTicketPurchased, purchaseEntry{
			EventID:            job.EventID,
			TicketTokenID:      job.TicketTokenID,
			TicketSerialNumber: job.SerialNumber,
			Buyer:              job.BuyerAccountID,
			Price:              job.PriceHbar,
			PurchaseDate:       job.EnqueuedAt.UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("reconciliation audit of serial %d failed: %w", job.SerialNumber, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown reconciliation step %q for serial %d", job.Step, job.SerialNumber)
	}
}

// Package issuer orchestrates payment-verified ticket issuance and ticket
// check-in against the Hedera ledger.
package issuer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oderahub/eventhash/pkg/audit"
	"github.com/oderahub/eventhash/pkg/ledger"
	"github.com/oderahub/eventhash/pkg/mirror"
	"github.com/oderahub/eventhash/pkg/models"
	"github.com/oderahub/eventhash/pkg/payments"
	"github.com/oderahub/eventhash/pkg/reconcile"
	"github.com/oderahub/eventhash/pkg/verify"
)

// MirrorAPI is the subset of the mirror client the issuer reads from.
type MirrorAPI interface {
	WaitForTransaction(ctx context.Context, reference string) (*mirror.TransactionRecord, error)
	GetNftOwner(ctx context.Context, tokenID string, serialNumber int64) (string, error)
	IsTokenAssociated(ctx context.Context, accountID, tokenID string) (bool, error)
}

// Service holds the collaborators for the purchase and check-in flows.
// All dependencies are injected; the service holds no credentials itself.
type Service struct {
	Mirror     MirrorAPI
	Guard      payments.Guard
	Ledger     ledger.Ledger
	Audit      audit.Emitter
	Reconciler reconcile.Enqueuer

	// OperatorAccountID is the treasury identity: payments are verified as
	// credits to this account and tickets transfer out of it.
	OperatorAccountID string
}

// NewService creates a new Service.
func NewService(m MirrorAPI, guard payments.Guard, l ledger.Ledger, emitter audit.Emitter, reconciler reconcile.Enqueuer, operatorAccountID string) *Service {
	return &Service{
		Mirror:            m,
		Guard:             guard,
		Ledger:            l,
		Audit:             emitter,
		Reconciler:        reconciler,
		OperatorAccountID: operatorAccountID,
	}
}

// PurchaseRequest is a fully resolved purchase: the handler has already
// filled ticket token and price from the registry where the client omitted
// them.
type PurchaseRequest struct {
	EventID          string
	TicketTokenID    string
	BuyerAccountID   string
	PaymentReference string
	TicketPriceHbar  float64
}

// PurchaseResult is the receipt for one issued ticket.
type PurchaseResult struct {
	SerialNumber  int64
	TransactionID string
	TicketTokenID string
}

type ticketMetadata struct {
	EventID    string `json:"eventId"`
	TicketType string `json:"ticketType"`
	MintedAt   int64  `json:"mintedAt"`
}

type purchaseEntry struct {
	EventID            string  `json:"eventId"`
	TicketTokenID      string  `json:"ticketTokenId"`
	TicketSerialNumber int64   `json:"ticketSerialNumber"`
	Buyer              string  `json:"buyer"`
	Price              float64 `json:"price"`
	PurchaseDate       int64   `json:"purchaseDate"`
}

// PurchaseTicket verifies the payment on the mirror node, claims the
// payment reference, then mints and transfers one ticket and logs the
// purchase to the event topic.
//
// The mint, transfer, and audit submissions are separate ledger
// transactions and are not atomic. A failure before the mint releases the
// payment reference; a failure after the mint keeps the reference consumed,
// enqueues a reconciliation job, and returns an *IssuanceError carrying the
// minted serial.
func (s *Service) PurchaseTicket(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	// 1. Fetch the finalized transfer list, riding out mirror indexing lag.
	record, err := s.Mirror.WaitForTransaction(ctx, req.PaymentReference)
	if err != nil {
		return nil, err
	}

	// 2. Pure verification. A rejection here does not consume the
	// reference: if the transfer is later found valid, a resubmission with
	// the same reference may still succeed.
	if err := verify.Verify(record, verify.Request{
		BuyerAccountID:     req.BuyerAccountID,
		RecipientAccountID: s.OperatorAccountID,
		MinPriceHbar:       req.TicketPriceHbar,
	}); err != nil {
		return nil, err
	}

	// 3. The buyer must have associated with the collection before it can
	// receive the NFT.
	associated, err := s.Mirror.IsTokenAssociated(ctx, req.BuyerAccountID, req.TicketTokenID)
	if err != nil {
		return nil, err
	}
	if !associated {
		return nil, ErrNotAssociated
	}

	// 4. Atomically claim the reference. Concurrent purchases with the same
	// reference resolve here: exactly one proceeds to mint.
	if err := s.Guard.Claim(ctx, req.EventID, req.TicketTokenID, req.PaymentReference, req.BuyerAccountID); err != nil {
		return nil, err
	}

	// 5. Mint. Nothing irreversible has happened until this succeeds, so a
	// mint failure releases the claim.
	metadata, err := json.Marshal(ticketMetadata{
		EventID:    req.EventID,
		TicketType: "standard",
		MintedAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		s.release(ctx, req)
		return nil, &IssuanceError{Step: "mint", Err: err}
	}

	minted, err := s.Ledger.MintTicket(ctx, req.TicketTokenID, metadata)
	if err != nil {
		s.release(ctx, req)
		return nil, &IssuanceError{Step: "mint", Err: err}
	}

	// The serial exists on the ledger now; from here the reference stays
	// consumed no matter what fails.
	if err := s.Guard.Confirm(ctx, req.TicketTokenID, req.PaymentReference, minted.SerialNumber, minted.TransactionID); err != nil {
		slog.Error("minted ticket but failed to confirm payment consumption",
			"token_id", req.TicketTokenID,
			"serial_number", minted.SerialNumber,
			"error", err)
	}

	// 6. Transfer treasury -> buyer.
	if _, err := s.Ledger.TransferTicket(ctx, req.TicketTokenID, minted.SerialNumber, req.BuyerAccountID); err != nil {
		s.enqueue(ctx, req, minted.SerialNumber, reconcile.StepTransfer)
		return nil, &IssuanceError{
			Step:              "transfer",
			SerialNumber:      minted.SerialNumber,
			MintTransactionID: minted.TransactionID,
			Err:               err,
		}
	}

	// 7. Audit entry. A failed submission is reported but never rolls back
	// the mint or transfer.
	_, err = s.Audit.Emit(ctx, req.EventID, models.KindTicketPurchased, purchaseEntry{
		EventID:            req.EventID,
		TicketTokenID:      req.TicketTokenID,
		TicketSerialNumber: minted.SerialNumber,
		Buyer:              req.BuyerAccountID,
		Price:              req.TicketPriceHbar,
		PurchaseDate:       time.Now().UnixMilli(),
	})
	if err != nil {
		s.enqueue(ctx, req, minted.SerialNumber, reconcile.StepAudit)
		return nil, &IssuanceError{
			Step:              "audit",
			SerialNumber:      minted.SerialNumber,
			MintTransactionID: minted.TransactionID,
			Err:               err,
		}
	}

	return &PurchaseResult{
		SerialNumber:  minted.SerialNumber,
		TransactionID: minted.TransactionID,
		TicketTokenID: req.TicketTokenID,
	}, nil
}

func (s *Service) release(ctx context.Context, req PurchaseRequest) {
	if err := s.Guard.Release(ctx, req.TicketTokenID, req.PaymentReference); err != nil {
		slog.Error("failed to release payment reference after aborted issuance",
			"token_id", req.TicketTokenID,
			"payment_reference", req.PaymentReference,
			"error", err)
	}
}

func (s *Service) enqueue(ctx context.Context, req PurchaseRequest, serialNumber int64, step string) {
	if s.Reconciler == nil {
		slog.Error("stranded issuance with no reconciler configured",
			"step", step,
			"token_id", req.TicketTokenID,
			"serial_number", serialNumber)
		return
	}
	job := &reconcile.Job{
		Step:             step,
		EventID:          req.EventID,
		TicketTokenID:    req.TicketTokenID,
		SerialNumber:     serialNumber,
		BuyerAccountID:   req.BuyerAccountID,
		PaymentReference: req.PaymentReference,
		PriceHbar:        req.TicketPriceHbar,
		EnqueuedAt:       time.Now(),
	}
	if err := s.Reconciler.EnqueueReconciliation(ctx, job); err != nil {
		slog.Error("CRITICAL: stranded issuance could not be enqueued for reconciliation",
			"step", step,
			"token_id", req.TicketTokenID,
			"serial_number", serialNumber,
			"error", err)
	}
}

// CheckInRequest identifies one issued ticket and, optionally, who claims
// to hold it.
type CheckInRequest struct {
	EventID        string
	TicketTokenID  string
	SerialNumber   int64
	OwnerAccountID string
}

// CheckInResult is the receipt for a logged check-in.
type CheckInResult struct {
	TransactionID string
	Owner         string
}

type checkinEntry struct {
	EventID       string `json:"eventId"`
	TicketTokenID string `json:"ticketTokenId"`
	SerialNumber  int64  `json:"serialNumber"`
	Owner         string `json:"owner"`
	CheckedInAt   int64  `json:"checkedInAt"`
}

// CheckInTicket verifies current ownership fresh from the mirror node and
// appends a TICKET_CHECKED_IN entry to the event topic. There is no reverse
// transition. On an ownership mismatch no entry is written.
func (s *Service) CheckInTicket(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	owner, err := s.Mirror.GetNftOwner(ctx, req.TicketTokenID, req.SerialNumber)
	if err != nil {
		return nil, err
	}

	if req.OwnerAccountID != "" && req.OwnerAccountID != owner {
		return nil, &OwnershipMismatchError{Claimed: req.OwnerAccountID, Actual: owner}
	}

	txID, err := s.Audit.Emit(ctx, req.EventID, models.KindTicketCheckedIn, checkinEntry{
		EventID:       req.EventID,
		TicketTokenID: req.TicketTokenID,
		SerialNumber:  req.SerialNumber,
		Owner:         owner,
		CheckedInAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log check-in: %w", err)
	}

	return &CheckInResult{TransactionID: txID, Owner: owner}, nil
}

package issuer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oderahub/eventhash/pkg/ledger"
	"github.com/oderahub/eventhash/pkg/mirror"
	"github.com/oderahub/eventhash/pkg/models"
	"github.com/oderahub/eventhash/pkg/payments"
	"github.com/oderahub/eventhash/pkg/reconcile"
	"github.com/oderahub/eventhash/pkg/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) WaitForTransaction(ctx context.Context, reference string) (*mirror.TransactionRecord, error) {
	args := m.Called(ctx, reference)
	if r := args.Get(0); r != nil {
		return r.(*mirror.TransactionRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMirror) GetNftOwner(ctx context.Context, tokenID string, serialNumber int64) (string, error) {
	args := m.Called(ctx, tokenID, serialNumber)
	return args.String(0), args.Error(1)
}

func (m *mockMirror) IsTokenAssociated(ctx context.Context, accountID, tokenID string) (bool, error) {
	args := m.Called(ctx, accountID, tokenID)
	return args.Bool(0), args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) CreateEventTopic(ctx context.Context, memo string) (string, string, error) {
	args := m.Called(ctx, memo)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *mockLedger) CreateTicketCollection(ctx context.Context, name, symbol string, maxSupply int64) (string, string, error) {
	args := m.Called(ctx, name, symbol, maxSupply)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *mockLedger) MintTicket(ctx context.Context, tokenID string, metadata []byte) (*ledger.MintResult, error) {
	args := m.Called(ctx, tokenID, metadata)
	if r := args.Get(0); r != nil {
		return r.(*ledger.MintResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedger) TransferTicket(ctx context.Context, tokenID string, serialNumber int64, buyerAccountID string) (string, error) {
	args := m.Called(ctx, tokenID, serialNumber, buyerAccountID)
	return args.String(0), args.Error(1)
}

func (m *mockLedger) SubmitTopicMessage(ctx context.Context, topicID string, message []byte) (string, error) {
	args := m.Called(ctx, topicID, message)
	return args.String(0), args.Error(1)
}

type mockEmitter struct {
	mock.Mock
}

func (m *mockEmitter) Emit(ctx context.Context, topicID, kind string, data any) (string, error) {
	args := m.Called(ctx, topicID, kind, data)
	return args.String(0), args.Error(1)
}

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueReconciliation(ctx context.Context, job *reconcile.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

const (
	buyer    = "0.0.100"
	operator = "0.0.200"
	eventID  = "0.0.7007"
	tokenID  = "0.0.5005"
	payment  = "0.0.100-1700000000-000000001"
)

func purchaseReq() PurchaseRequest {
	return PurchaseRequest{
		EventID:          eventID,
		TicketTokenID:    tokenID,
		BuyerAccountID:   buyer,
		PaymentReference: payment,
		TicketPriceHbar:  50,
	}
}

func paidRecord() *mirror.TransactionRecord {
	return &mirror.TransactionRecord{
		Reference: payment,
		Transfers: []mirror.Transfer{
			{Account: buyer, Amount: -5_000_000_000},
			{Account: operator, Amount: 5_000_000_000},
		},
	}
}

type fixture struct {
	mirror  *mockMirror
	ledger  *mockLedger
	emitter *mockEmitter
	queue   *mockEnqueuer
	guard   payments.Guard
	service *Service
}

func newFixture(guard payments.Guard) *fixture {
	f := &fixture{
		mirror:  new(mockMirror),
		ledger:  new(mockLedger),
		emitter: new(mockEmitter),
		queue:   new(mockEnqueuer),
		guard:   guard,
	}
	f.service = NewService(f.mirror, f.guard, f.ledger, f.emitter, f.queue, operator)
	return f
}

func TestPurchaseTicket(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(paidRecord(), nil)
		f.mirror.On("IsTokenAssociated", mock.Anything, buyer, tokenID).Return(true, nil)
		f.ledger.On("MintTicket", mock.Anything, tokenID, mock.Anything).Return(&ledger.MintResult{SerialNumber: 1, TransactionID: "mint-tx"}, nil)
		f.ledger.On("TransferTicket", mock.Anything, tokenID, int64(1), buyer).Return("transfer-tx", nil)
		f.emitter.On("Emit", mock.Anything, eventID, models.KindTicketPurchased, mock.Anything).Return("audit-tx", nil)

		result, err := f.service.PurchaseTicket(context.Background(), purchaseReq())

		assert.NoError(t, err)
		assert.Equal(t, int64(1), result.SerialNumber)
		assert.Equal(t, "mint-tx", result.TransactionID)
		assert.Equal(t, tokenID, result.TicketTokenID)
		f.ledger.AssertExpectations(t)
		f.emitter.AssertExpectations(t)
	})

	t.Run("Duplicate Reference Sequential", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(paidRecord(), nil)
		f.mirror.On("IsTokenAssociated", mock.Anything, buyer, tokenID).Return(true, nil)
		f.ledger.On("MintTicket", mock.Anything, tokenID, mock.Anything).Once().Return(&ledger.MintResult{SerialNumber: 1, TransactionID: "mint-tx"}, nil)
		f.ledger.On("TransferTicket", mock.Anything, tokenID, int64(1), buyer).Once().Return("transfer-tx", nil)
		f.emitter.On("Emit", mock.Anything, eventID, models.KindTicketPurchased, mock.Anything).Once().Return("audit-tx", nil)

		first, err := f.service.PurchaseTicket(context.Background(), purchaseReq())
		assert.NoError(t, err)
		assert.Equal(t, int64(1), first.SerialNumber)

		_, err = f.service.PurchaseTicket(context.Background(), purchaseReq())
		assert.ErrorIs(t, err, payments.ErrDuplicatePayment)

		// Exactly one mint happened.
		f.ledger.AssertNumberOfCalls(t, "MintTicket", 1)
	})

	t.Run("Concurrent Purchases One Mint", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		var mints int64
		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(paidRecord(), nil)
		f.mirror.On("IsTokenAssociated", mock.Anything, buyer, tokenID).Return(true, nil)
		f.ledger.On("MintTicket", mock.Anything, tokenID, mock.Anything).
			Run(func(mock.Arguments) { atomic.AddInt64(&mints, 1) }).
			Return(&ledger.MintResult{SerialNumber: 1, TransactionID: "mint-tx"}, nil)
		f.ledger.On("TransferTicket", mock.Anything, tokenID, int64(1), buyer).Return("transfer-tx", nil)
		f.emitter.On("Emit", mock.Anything, eventID, models.KindTicketPurchased, mock.Anything).Return("audit-tx", nil)

		const attempts = 16
		var successes, duplicates int64
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.service.PurchaseTicket(context.Background(), purchaseReq())
				switch {
				case err == nil:
					atomic.AddInt64(&successes, 1)
				case errors.Is(err, payments.ErrDuplicatePayment):
					atomic.AddInt64(&duplicates, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), successes)
		assert.Equal(t, int64(attempts-1), duplicates)
		assert.Equal(t, int64(1), atomic.LoadInt64(&mints))
	})

	t.Run("Unknown Reference No Mint", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(nil, mirror.ErrNotFound)

		_, err := f.service.PurchaseTicket(context.Background(), purchaseReq())

		assert.ErrorIs(t, err, mirror.ErrNotFound)
		f.ledger.AssertNotCalled(t, "MintTicket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Insufficient Payment Does Not Consume Reference", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		short := &mirror.TransactionRecord{
			Reference: payment,
			Transfers: []mirror.Transfer{
				{Account: buyer, Amount: -2_500_000_000},
				{Account: operator, Amount: 2_500_000_000},
			},
		}
		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(short, nil)

		_, err := f.service.PurchaseTicket(context.Background(), purchaseReq())
		assert.ErrorIs(t, err, verify.ErrInsufficientAmount)

		// The reference is still claimable after the rejection.
		assert.NoError(t, f.guard.Claim(context.Background(), eventID, tokenID, payment, buyer))
	})

	t.Run("Not Associated", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(paidRecord(), nil)
		f.mirror.On("IsTokenAssociated", mock.Anything, buyer, tokenID).Return(false, nil)

		_, err := f.service.PurchaseTicket(context.Background(), purchaseReq())

		assert.ErrorIs(t, err, ErrNotAssociated)
		f.ledger.AssertNotCalled(t, "MintTicket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Mint Failure Releases Reference", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(paidRecord(), nil)
		f.mirror.On("IsTokenAssociated", mock.Anything, buyer, tokenID).Return(true, nil)
		f.ledger.On("MintTicket", mock.Anything, tokenID, mock.Anything).Return(nil, errors.New("supply exhausted"))

		_, err := f.service.PurchaseTicket(context.Background(), purchaseReq())

		var ie *IssuanceError
		assert.ErrorAs(t, err, &ie)
		assert.Equal(t, "mint", ie.Step)
		assert.Zero(t, ie.SerialNumber)

		// Nothing was minted, so the reference must be claimable again.
		assert.NoError(t, f.guard.Claim(context.Background(), eventID, tokenID, payment, buyer))
	})

	t.Run("Transfer Failure Keeps Reference And Enqueues Reconciliation", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(paidRecord(), nil)
		f.mirror.On("IsTokenAssociated", mock.Anything, buyer, tokenID).Return(true, nil)
		f.ledger.On("MintTicket", mock.Anything, tokenID, mock.Anything).Return(&ledger.MintResult{SerialNumber: 7, TransactionID: "mint-tx"}, nil)
		f.ledger.On("TransferTicket", mock.Anything, tokenID, int64(7), buyer).Return("", errors.New("node unavailable"))
		f.queue.On("EnqueueReconciliation", mock.Anything, mock.MatchedBy(func(job *reconcile.Job) bool {
			return job.Step == reconcile.StepTransfer && job.SerialNumber == 7
		})).Once().Return(nil)

		_, err := f.service.PurchaseTicket(context.Background(), purchaseReq())

		var ie *IssuanceError
		assert.ErrorAs(t, err, &ie)
		assert.Equal(t, "transfer", ie.Step)
		assert.Equal(t, int64(7), ie.SerialNumber)
		assert.Equal(t, "mint-tx", ie.MintTransactionID)

		// The mint is on the ledger; the reference stays consumed.
		assert.ErrorIs(t, f.guard.Claim(context.Background(), eventID, tokenID, payment, buyer), payments.ErrDuplicatePayment)
		f.queue.AssertExpectations(t)
	})

	t.Run("Audit Failure Keeps Reference And Enqueues Reconciliation", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("WaitForTransaction", mock.Anything, payment).Return(paidRecord(), nil)
		f.mirror.On("IsTokenAssociated", mock.Anything, buyer, tokenID).Return(true, nil)
		f.ledger.On("MintTicket", mock.Anything, tokenID, mock.Anything).Return(&ledger.MintResult{SerialNumber: 7, TransactionID: "mint-tx"}, nil)
		f.ledger.On("TransferTicket", mock.Anything, tokenID, int64(7), buyer).Return("transfer-tx", nil)
		f.emitter.On("Emit", mock.Anything, eventID, models.KindTicketPurchased, mock.Anything).Return("", errors.New("topic unreachable"))
		f.queue.On("EnqueueReconciliation", mock.Anything, mock.MatchedBy(func(job *reconcile.Job) bool {
			return job.Step == reconcile.StepAudit && job.SerialNumber == 7
		})).Once().Return(nil)

		_, err := f.service.PurchaseTicket(context.Background(), purchaseReq())

		var ie *IssuanceError
		assert.ErrorAs(t, err, &ie)
		assert.Equal(t, "audit", ie.Step)
		assert.Equal(t, int64(7), ie.SerialNumber)
		f.queue.AssertExpectations(t)
	})
}

func TestCheckInTicket(t *testing.T) {
	checkinReq := CheckInRequest{
		EventID:        eventID,
		TicketTokenID:  tokenID,
		SerialNumber:   3,
		OwnerAccountID: buyer,
	}

	t.Run("Success", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("GetNftOwner", mock.Anything, tokenID, int64(3)).Return(buyer, nil)
		f.emitter.On("Emit", mock.Anything, eventID, models.KindTicketCheckedIn, mock.Anything).Once().Return("checkin-tx", nil)

		result, err := f.service.CheckInTicket(context.Background(), checkinReq)

		assert.NoError(t, err)
		assert.Equal(t, "checkin-tx", result.TransactionID)
		assert.Equal(t, buyer, result.Owner)
		f.emitter.AssertExpectations(t)
	})

	t.Run("Ownership Mismatch Writes No Entry", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("GetNftOwner", mock.Anything, tokenID, int64(3)).Return("0.0.999", nil)

		_, err := f.service.CheckInTicket(context.Background(), checkinReq)

		var om *OwnershipMismatchError
		assert.ErrorAs(t, err, &om)
		assert.Equal(t, buyer, om.Claimed)
		assert.Equal(t, "0.0.999", om.Actual)
		f.emitter.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("No Claimed Owner Accepts Current Holder", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("GetNftOwner", mock.Anything, tokenID, int64(3)).Return("0.0.999", nil)
		f.emitter.On("Emit", mock.Anything, eventID, models.KindTicketCheckedIn, mock.Anything).Return("checkin-tx", nil)

		result, err := f.service.CheckInTicket(context.Background(), CheckInRequest{
			EventID:       eventID,
			TicketTokenID: tokenID,
			SerialNumber:  3,
		})

		assert.NoError(t, err)
		assert.Equal(t, "0.0.999", result.Owner)
	})

	t.Run("Mirror Failure", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.mirror.On("GetNftOwner", mock.Anything, tokenID, int64(3)).Return("", mirror.ErrNotFound)

		_, err := f.service.CheckInTicket(context.Background(), checkinReq)

		assert.ErrorIs(t, err, mirror.ErrNotFound)
	})
}

func TestDeployEvent(t *testing.T) {
	req := DeployEventRequest{
		Name:        "DevCon Lagos",
		Description: "Annual developer conference",
		Date:        1760000000000,
		Location:    "Lagos",
		TicketPrice: 50,
		MaxTickets:  200,
	}

	t.Run("Success", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.ledger.On("CreateEventTopic", mock.Anything, "Event: DevCon Lagos").Once().Return("0.0.7007", "topic-tx", nil)
		f.emitter.On("Emit", mock.Anything, "0.0.7007", models.KindEventCreated, mock.MatchedBy(func(data any) bool {
			meta, ok := data.(eventMetadata)
			return ok && meta.EventID == "0.0.7007" && meta.EventAdmin == operator && meta.EventStatus == "active"
		})).Once().Return("meta-tx", nil)

		result, err := f.service.DeployEvent(context.Background(), req)

		assert.NoError(t, err)
		assert.Equal(t, "0.0.7007", result.EventID)
		assert.Equal(t, "topic-tx", result.TransactionID)
		f.ledger.AssertExpectations(t)
		f.emitter.AssertExpectations(t)
	})

	t.Run("Metadata Failure Still Reports Topic", func(t *testing.T) {
		f := newFixture(payments.NewMemoryGuard())

		f.ledger.On("CreateEventTopic", mock.Anything, mock.Anything).Return("0.0.7007", "topic-tx", nil)
		f.emitter.On("Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("submit failed"))

		result, err := f.service.DeployEvent(context.Background(), req)

		assert.Error(t, err)
		assert.NotNil(t, result)
		assert.Equal(t, "0.0.7007", result.TopicID)
	})
}

func TestCreateTickets(t *testing.T) {
	f := newFixture(payments.NewMemoryGuard())

	f.ledger.On("CreateTicketCollection", mock.Anything, "Event Ticket - 0.0.7007", "ETIX-7007", int64(200)).
		Once().Return(tokenID, "token-tx", nil)
	f.emitter.On("Emit", mock.Anything, eventID, models.KindTicketsCreated, mock.MatchedBy(func(data any) bool {
		entry, ok := data.(ticketsCreatedEntry)
		return ok && entry.TicketTokenID == tokenID && entry.MaxTickets == 200 && entry.TicketPrice == 50
	})).Once().Return("audit-tx", nil)

	result, err := f.service.CreateTickets(context.Background(), eventID, 200, 50)

	assert.NoError(t, err)
	assert.Equal(t, tokenID, result.TicketTokenID)
	f.ledger.AssertExpectations(t)
	f.emitter.AssertExpectations(t)
}

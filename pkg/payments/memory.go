package payments

import (
	"context"
	"sync"

	"github.com/oderahub/eventhash/pkg/models"
)

// MemoryGuard is an in-process Guard for local development and tests. The
// consumed set does not survive a restart, so it is not suitable for
// production deployments.
type MemoryGuard struct {
	mu     sync.Mutex
	claims map[string]models.ConsumptionStatus
}

// NewMemoryGuard creates an empty MemoryGuard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{claims: make(map[string]models.ConsumptionStatus)}
}

// Make sure we conform to the interface
var _ Guard = (*MemoryGuard)(nil)

func (g *MemoryGuard) Claim(ctx context.Context, eventID, ticketTokenID, reference, buyerAccountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := consumptionKey(ticketTokenID, reference)
	if _, exists := g.claims[key]; exists {
		return ErrDuplicatePayment
	}
	g.claims[key] = models.PENDING
	return nil
}

func (g *MemoryGuard) Confirm(ctx context.Context, ticketTokenID, reference string, serialNumber int64, mintTransactionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.claims[consumptionKey(ticketTokenID, reference)] = models.CONSUMED
	return nil
}

func (g *MemoryGuard) Release(ctx context.Context, ticketTokenID, reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := consumptionKey(ticketTokenID, reference)
	if g.claims[key] == models.PENDING {
		delete(g.claims, key)
	}
	return nil
}

// Package registry stores event listings. The purchase path consults it
// for ticket-token and price defaults; the deploy and tickets flows write
// the on-chain identifiers back to it.
package registry

import (
	"context"
	"errors"

	"github.com/oderahub/eventhash/pkg/models"
)

// ErrEventNotFound is returned when no listing matches the given id.
var ErrEventNotFound = errors.New("event not found")

// ErrEventExists is returned when a listing id collides on create.
var ErrEventExists = errors.New("event already exists")

// Store defines the registry operations.
type Store interface {
	// CreateEvent persists a new listing. The store assigns ID and
	// CreatedAt.
	CreateEvent(ctx context.Context, event *models.Event) (*models.Event, error)

	// GetEvent fetches a listing by its registry id.
	GetEvent(ctx context.Context, id string) (*models.Event, error)

	// GetEventByHederaID fetches a listing by its on-chain event id
	// (the topic id string).
	GetEventByHederaID(ctx context.Context, hederaEventID string) (*models.Event, error)

	// ListEvents returns all listings, newest first.
	ListEvents(ctx context.Context) ([]models.Event, error)

	// SetTicketToken records the ticket collection and price for a
	// deployed event, identified by its on-chain event id.
	SetTicketToken(ctx context.Context, hederaEventID, ticketTokenID string, price float64) error
}

package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/oderahub/eventhash/pkg/models"
)

// DeployEventRequest carries the on-chain metadata for a new event.
type DeployEventRequest struct {
	Name        string
	Description string
	Date        int64
	Location    string
	TicketPrice float64
	MaxTickets  int64
	EventAdmin  string
}

// DeployEventResult identifies the created topic. EventID and TopicID are
// the same string; both are kept because downstream records store both.
type DeployEventResult struct {
	EventID       string
	TopicID       string
	TransactionID string
}

type eventMetadata struct {
	EventID     string  `json:"eventId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Date        int64   `json:"date"`
	Location    string  `json:"location"`
	TicketPrice float64 `json:"ticketPrice"`
	MaxTickets  int64   `json:"maxTickets"`
	EventAdmin  string  `json:"eventAdmin"`
	EventStatus string  `json:"eventStatus"`
	CreatedAt   int64   `json:"createdAt"`
}

// DeployEvent creates the event's consensus topic and publishes the
// EVENT_CREATED entry as the topic's first message. The topic id becomes
// the event's on-chain identity.
func (s *Service) DeployEvent(ctx context.Context, req DeployEventRequest) (*DeployEventResult, error) {
	topicID, txID, err := s.Ledger.CreateEventTopic(ctx, fmt.Sprintf("Event: %s", req.Name))
	if err != nil {
		return nil, err
	}

	admin := req.EventAdmin
	if admin == "" {
		admin = s.OperatorAccountID
	}

	_, err = s.Audit.Emit(ctx, topicID, models.KindEventCreated, eventMetadata{
		EventID:     topicID,
		Name:        req.Name,
		Description: req.Description,
		Date:        req.Date,
		Location:    req.Location,
		TicketPrice: req.TicketPrice,
		MaxTickets:  req.MaxTickets,
		EventAdmin:  admin,
		EventStatus: "active",
		CreatedAt:   time.Now().UnixMilli(),
	})
	if err != nil {
		// The topic exists; the metadata entry can be re-emitted, so report
		// the partial result rather than discarding the topic.
		return &DeployEventResult{EventID: topicID, TopicID: topicID, TransactionID: txID},
			fmt.Errorf("event topic %s created but metadata entry failed: %w", topicID, err)
	}

	return &DeployEventResult{EventID: topicID, TopicID: topicID, TransactionID: txID}, nil
}

// CreateTicketsResult identifies the created NFT collection.
type CreateTicketsResult struct {
	TicketTokenID string
	TransactionID string
}

type ticketsCreatedEntry struct {
	EventID       string  `json:"eventId"`
	TicketTokenID string  `json:"ticketTokenId"`
	MaxTickets    int64   `json:"maxTickets"`
	TicketPrice   float64 `json:"ticketPrice"`
}

// CreateTickets creates the event's finite NFT ticket collection and logs
// TICKETS_CREATED to the event topic. The collection's max supply caps
// total tickets for the event.
func (s *Service) CreateTickets(ctx context.Context, eventID string, maxTickets int64, ticketPrice float64) (*CreateTicketsResult, error) {
	symbolSuffix := eventID
	if len(symbolSuffix) > 4 {
		symbolSuffix = symbolSuffix[len(symbolSuffix)-4:]
	}

	tokenID, txID, err := s.Ledger.CreateTicketCollection(ctx,
		fmt.Sprintf("Event Ticket - %s", eventID),
		fmt.Sprintf("ETIX-%s", symbolSuffix),
		maxTickets)
	if err != nil {
		return nil, err
	}

	_, err = s.Audit.Emit(ctx, eventID, models.KindTicketsCreated, ticketsCreatedEntry{
		EventID:       eventID,
		TicketTokenID: tokenID,
		MaxTickets:    maxTickets,
		TicketPrice:   ticketPrice,
	})
	if err != nil {
		return &CreateTicketsResult{TicketTokenID: tokenID, TransactionID: txID},
			fmt.Errorf("ticket collection %s created but audit entry failed: %w", tokenID, err)
	}

	return &CreateTicketsResult{TicketTokenID: tokenID, TransactionID: txID}, nil
}

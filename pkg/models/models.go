package models

import (
	"time"
)

// Event represents the internal domain model for an event listing.
// It includes dynamodbav tags for marshalling.
type Event struct {
	ID                  string    `json:"id" dynamodbav:"id"`
	Name                string    `json:"name" dynamodbav:"name"`
	Description         string    `json:"description" dynamodbav:"description"`
	Date                int64     `json:"date" dynamodbav:"date"`
	Location            string    `json:"location" dynamodbav:"location"`
	Price               float64   `json:"price" dynamodbav:"price"`
	Category            string    `json:"category" dynamodbav:"category"`
	BannerURL           string    `json:"bannerUrl,omitempty" dynamodbav:"banner_url,omitempty"`
	MaxTickets          int64     `json:"maxTickets,omitempty" dynamodbav:"max_tickets,omitempty"`
	VendorAccountID     string    `json:"vendorAccountId,omitempty" dynamodbav:"vendor_account_id,omitempty"`
	HederaEventID       string    `json:"hederaEventId,omitempty" dynamodbav:"hedera_event_id,omitempty"`
	HederaTopicID       string    `json:"hederaTopicId,omitempty" dynamodbav:"hedera_topic_id,omitempty"`
	HederaTicketTokenID string    `json:"hederaTicketTokenId,omitempty" dynamodbav:"hedera_ticket_token_id,omitempty"`
	HederaTransactionID string    `json:"hederaTransactionId,omitempty" dynamodbav:"hedera_transaction_id,omitempty"`
	CreatedAt           time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// ConsumptionStatus defines the lifecycle of a consumed payment reference.
type ConsumptionStatus string

const (
	// PENDING means the reference is claimed by an in-flight issuance.
	PENDING ConsumptionStatus = "PENDING"
	// CONSUMED means a ticket was minted against the reference. Terminal.
	CONSUMED ConsumptionStatus = "CONSUMED"
)

// PaymentConsumption records that a payment reference has authorized (or is
// in the middle of authorizing) a ticket mint. One row per reference per
// ticket-token collection, never purged once CONSUMED.
type PaymentConsumption struct {
	ConsumptionID     string            `dynamodbav:"consumption_id"`
	EventID           string            `dynamodbav:"event_id"`
	TicketTokenID     string            `dynamodbav:"ticket_token_id"`
	PaymentReference  string            `dynamodbav:"payment_reference"`
	BuyerAccountID    string            `dynamodbav:"buyer_account_id"`
	Status            ConsumptionStatus `dynamodbav:"status"`
	SerialNumber      int64             `dynamodbav:"serial_number,omitempty"`
	MintTransactionID string            `dynamodbav:"mint_transaction_id,omitempty"`
	CreatedAt         time.Time         `dynamodbav:"created_at"`
	UpdatedAt         time.Time         `dynamodbav:"updated_at"`
}

// TicketStatus defines the possible states of an issued ticket.
type TicketStatus string

const (
	ISSUED    TicketStatus = "ISSUED"
	CHECKEDIN TicketStatus = "CHECKED_IN"
)

// Audit payload kinds submitted to an event's consensus topic.
const (
	KindEventCreated    = "EVENT_CREATED"
	KindTicketsCreated  = "TICKETS_CREATED"
	KindTicketPurchased = "TICKET_PURCHASED"
	KindTicketCheckedIn = "TICKET_CHECKED_IN"
)

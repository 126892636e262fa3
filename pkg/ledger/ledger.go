// Package ledger wraps the Hedera SDK behind a narrow interface so ticket
// issuance can be exercised without a network. The client is constructed
// explicitly and injected; there is no ambient singleton holding operator
// credentials.
package ledger

import (
	"context"
)

// MintResult is the outcome of minting one ticket serial.
type MintResult struct {
	SerialNumber  int64
	TransactionID string
}

// Ledger is the set of consensus-ledger side effects the service performs.
// Every call submits a separate transaction; none of them are atomic with
// each other.
type Ledger interface {
	// CreateEventTopic creates the event's append-only consensus topic.
	CreateEventTopic(ctx context.Context, memo string) (topicID, transactionID string, err error)

	// CreateTicketCollection creates a finite NFT collection with the
	// operator as treasury, admin, and supply key holder.
	CreateTicketCollection(ctx context.Context, name, symbol string, maxSupply int64) (tokenID, transactionID string, err error)

	// MintTicket mints exactly one serial with the given metadata bytes.
	// The ledger assigns the serial number.
	MintTicket(ctx context.Context, tokenID string, metadata []byte) (*MintResult, error)

	// TransferTicket moves a minted serial from the treasury to the buyer.
	TransferTicket(ctx context.Context, tokenID string, serialNumber int64, buyerAccountID string) (transactionID string, err error)

	// SubmitTopicMessage appends one message to a topic. Ordering within the
	// topic is the ledger's consensus order.
	SubmitTopicMessage(ctx context.Context, topicID string, message []byte) (transactionID string, err error)
}

package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/oderahub/eventhash/pkg/audit"
	"github.com/oderahub/eventhash/pkg/ledger"
	"github.com/oderahub/eventhash/pkg/reconcile"
)

var worker *reconcile.Worker

func init() {
	// Load environment variables from .env file (useful for local testing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize dependencies once.
	network := os.Getenv("HEDERA_NETWORK")
	if network == "" {
		network = "testnet"
	}
	accountID := os.Getenv("HEDERA_ACCOUNT_ID")
	privateKey := os.Getenv("HEDERA_PRIVATE_KEY")
	if accountID == "" || privateKey == "" {
		log.Fatal("HEDERA_ACCOUNT_ID and HEDERA_PRIVATE_KEY must be set")
	}

	hederaClient, err := ledger.NewHederaClient(network, accountID, privateKey)
	if err != nil {
		log.Fatalf("unable to create Hedera client: %v", err)
	}

	worker = reconcile.NewWorker(hederaClient, audit.NewLedgerEmitter(hederaClient))
}

// HandleRequest finishes stranded issuances: the ticket was minted and the
// payment reference consumed, but the transfer or audit entry never landed.
func HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) error {
	for _, message := range sqsEvent.Records {
		log.Printf("Processing message %s", message.MessageId)

		var job reconcile.Job
		if err := json.Unmarshal([]byte(message.Body), &job); err != nil {
			log.Printf("ERROR: failed to unmarshal reconciliation job from SQS message %s: %v", message.MessageId, err)
			// Returning an error will cause SQS to retry the message, which is appropriate here.
			return err
		}

		if err := worker.Process(ctx, &job); err != nil {
			log.Printf("ERROR: failed to reconcile serial %d of %s: %v", job.SerialNumber, job.TicketTokenID, err)
			// In a production system, persistent failures would be sent to a DLQ.
			return err
		}

		log.Printf("Successfully reconciled serial %d of %s", job.SerialNumber, job.TicketTokenID)
	}

	return nil
}

func main() {
	lambda.Start(HandleRequest)
}

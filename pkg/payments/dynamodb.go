package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oderahub/eventhash/pkg/models"
)

// DynamoDBAPI is the subset of the DynamoDB client the guard uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoDBGuard implements Guard on a DynamoDB table keyed by
// consumption_id. The conditional put on the partition key is the atomic
// check-and-record; there is no separate read.
type DynamoDBGuard struct {
	Client    DynamoDBAPI
	TableName string
}

// NewDynamoDBGuard creates a new DynamoDBGuard.
func NewDynamoDBGuard(client DynamoDBAPI, tableName string) *DynamoDBGuard {
	return &DynamoDBGuard{Client: client, TableName: tableName}
}

// Make sure we conform to the interface
var _ Guard = (*DynamoDBGuard)(nil)

// consumptionKey scopes a reference per ticket-token collection. The same
// reference reused against a different collection is an independent claim.
func consumptionKey(ticketTokenID, reference string) string {
	return fmt.Sprintf("%s#%s", ticketTokenID, reference)
}

// Claim records the reference as PENDING iff no record exists for this
// collection+reference pair. A losing concurrent claim, or a reference
// already consumed by a past mint, returns ErrDuplicatePayment.
func (g *DynamoDBGuard) Claim(ctx context.Context, eventID, ticketTokenID, reference, buyerAccountID string) error {
	now := time.Now()
	consumption := models.PaymentConsumption{
		ConsumptionID:    consumptionKey(ticketTokenID, reference),
		EventID:          eventID,
		TicketTokenID:    ticketTokenID,
		PaymentReference: reference,
		BuyerAccountID:   buyerAccountID,
		Status:           models.PENDING,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	item, err := attributevalue.MarshalMap(consumption)
	if err != nil {
		return fmt.Errorf("failed to marshal payment consumption: %w", err)
	}

	_, err = g.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(g.TableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(consumption_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("failed to claim payment reference: %w", err)
	}

	return nil
}

// Confirm marks a claimed reference as CONSUMED and attaches the mint
// result. Once confirmed the record is never deleted.
func (g *DynamoDBGuard) Confirm(ctx context.Context, ticketTokenID, reference string, serialNumber int64, mintTransactionID string) error {
	now, err := attributevalue.Marshal(time.Now())
	if err != nil {
		return fmt.Errorf("failed to marshal timestamp: %w", err)
	}

	_, err = g.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(g.TableName),
		Key: map[string]types.AttributeValue{
			"consumption_id": &types.AttributeValueMemberS{Value: consumptionKey(ticketTokenID, reference)},
		},
		UpdateExpression:    aws.String("SET #status = :consumed, serial_number = :serial, mint_transaction_id = :mint_tx, updated_at = :now"),
		ConditionExpression: aws.String("attribute_exists(consumption_id)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":consumed": &types.AttributeValueMemberS{Value: string(models.CONSUMED)},
			":serial":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", serialNumber)},
			":mint_tx":  &types.AttributeValueMemberS{Value: mintTransactionID},
			":now":      now,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to confirm payment consumption: %w", err)
	}

	return nil
}

// Release deletes a PENDING claim after an issuance that never minted. The
// status condition keeps a CONSUMED record safe from deletion, so a ticket
// that exists always keeps its reference blocked.
func (g *DynamoDBGuard) Release(ctx context.Context, ticketTokenID, reference string) error {
	_, err := g.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(g.TableName),
		Key: map[string]types.AttributeValue{
			"consumption_id": &types.AttributeValueMemberS{Value: consumptionKey(ticketTokenID, reference)},
		},
		ConditionExpression: aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending": &types.AttributeValueMemberS{Value: string(models.PENDING)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// Already consumed or already released; nothing to undo.
			return nil
		}
		return fmt.Errorf("failed to release payment reference: %w", err)
	}

	return nil
}

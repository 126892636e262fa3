package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/oderahub/eventhash/pkg/models"
)

const hederaEventIDIndex = "hedera_event_id-index"

// DynamoDBAPI is the subset of the DynamoDB client the registry uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDBStore implements Store using AWS DynamoDB.
type DynamoDBStore struct {
	Client    DynamoDBAPI
	TableName string
}

// NewDynamoDBStore creates a new DynamoDBStore.
func NewDynamoDBStore(client DynamoDBAPI, tableName string) *DynamoDBStore {
	return &DynamoDBStore{Client: client, TableName: tableName}
}

// Make sure we conform to the interface
var _ Store = (*DynamoDBStore)(nil)

// CreateEvent persists a new listing with a generated id.
func (s *DynamoDBStore) CreateEvent(ctx context.Context, event *models.Event) (*models.Event, error) {
	event.ID = uuid.New().String()
	event.CreatedAt = time.Now()
	if event.Category == "" {
		event.Category = "General"
	}

	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.TableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrEventExists
		}
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return event, nil
}

// GetEvent retrieves a listing by registry id.
func (s *DynamoDBStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event id: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.TableName),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if result.Item == nil {
		return nil, ErrEventNotFound
	}

	var event models.Event
	if err := attributevalue.UnmarshalMap(result.Item, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// GetEventByHederaID retrieves a listing by its on-chain event id via the
// hedera_event_id GSI.
func (s *DynamoDBStore) GetEventByHederaID(ctx context.Context, hederaEventID string) (*models.Event, error) {
	result, err := s.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.TableName),
		IndexName:              aws.String(hederaEventIDIndex),
		KeyConditionExpression: aws.String("hedera_event_id = :hid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hid": &types.AttributeValueMemberS{Value: hederaEventID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query event by hedera id: %w", err)
	}
	if len(result.Items) == 0 {
		return nil, ErrEventNotFound
	}

	var event models.Event
	if err := attributevalue.UnmarshalMap(result.Items[0], &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// ListEvents returns all listings, newest first.
func (s *DynamoDBStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	result, err := s.Client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.TableName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var events []models.Event
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	return events, nil
}

// SetTicketToken records the ticket collection and price on the listing.
func (s *DynamoDBStore) SetTicketToken(ctx context.Context, hederaEventID, ticketTokenID string, price float64) error {
	event, err := s.GetEventByHederaID(ctx, hederaEventID)
	if err != nil {
		return err
	}

	priceAV, err := attributevalue.Marshal(price)
	if err != nil {
		return fmt.Errorf("failed to marshal price: %w", err)
	}

	_, err = s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.TableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: event.ID},
		},
		UpdateExpression:    aws.String("SET hedera_ticket_token_id = :token, price = :price"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":token": &types.AttributeValueMemberS{Value: ticketTokenID},
			":price": priceAV,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to set ticket token: %w", err)
	}

	return nil
}

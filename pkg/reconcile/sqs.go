package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client the enqueuer uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEnqueuer implements Enqueuer using an AWS SQS queue.
type SQSEnqueuer struct {
	Client   SQSAPI
	QueueURL string
}

// NewSQSEnqueuer creates a new SQSEnqueuer.
func NewSQSEnqueuer(client SQSAPI, queueURL string) *SQSEnqueuer {
	return &SQSEnqueuer{Client: client, QueueURL: queueURL}
}

// Make sure we conform to the interface
var _ Enqueuer = (*SQSEnqueuer)(nil)

// EnqueueReconciliation sends the job to the reconciliation queue.
func (s *SQSEnqueuer) EnqueueReconciliation(ctx context.Context, job *Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliation job: %w", err)
	}

	_, err = s.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send reconciliation job to SQS: %w", err)
	}

	return nil
}

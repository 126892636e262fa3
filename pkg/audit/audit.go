// Package audit appends immutable entries to an event's consensus topic.
// One Emit call submits one message; ordering within a topic is the
// ledger's consensus order, and a failed submission never rolls back the
// side effect it was recording.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oderahub/eventhash/pkg/ledger"
)

// Envelope is the wire shape of every audit message, matching the
// historical messages already on existing event topics.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Emitter appends one structured entry to the given topic.
type Emitter interface {
	Emit(ctx context.Context, topicID, kind string, data any) (transactionID string, err error)
}

// LedgerEmitter implements Emitter on a consensus topic.
type LedgerEmitter struct {
	Ledger ledger.Ledger
}

// NewLedgerEmitter creates a new LedgerEmitter.
func NewLedgerEmitter(l ledger.Ledger) *LedgerEmitter {
	return &LedgerEmitter{Ledger: l}
}

// Make sure we conform to the interface
var _ Emitter = (*LedgerEmitter)(nil)

// Emit marshals the payload into the audit envelope and submits it. The
// timestamp is milliseconds since epoch.
func (e *LedgerEmitter) Emit(ctx context.Context, topicID, kind string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	message, err := json.Marshal(Envelope{
		Type:      kind,
		Data:      payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit envelope: %w", err)
	}

	txID, err := e.Ledger.SubmitTopicMessage(ctx, topicID, message)
	if err != nil {
		return "", fmt.Errorf("failed to emit %s entry: %w", kind, err)
	}

	return txID, nil
}

// NoOpEmitter is a mock emitter that does nothing.
type NoOpEmitter struct{}

// Emit does nothing.
func (NoOpEmitter) Emit(ctx context.Context, topicID, kind string, data any) (string, error) {
	return "", nil
}

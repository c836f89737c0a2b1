// Package audit captures structured audit events for identity record
// operations. Events carry identifiers and outcomes only, never attribute
// values.
package audit

import (
	"context"
	"time"

	id "idvault/pkg/domain"
)

// Event actions emitted by the PII protection engine.
const (
	ActionRecordCreated      = "identity.record.created"
	ActionRecordActivated    = "identity.record.activated"
	ActionRecordDeactivated  = "identity.record.deactivated"
	ActionRecoveryRequested  = "identity.recovery.requested"
	ActionRecoverySucceeded  = "identity.recovery.succeeded"
	ActionRecoveryFailed     = "identity.recovery.failed"
	ActionPersonalKeyRotated = "identity.personal_key.rotated"
)

// Event is one append-only audit record.
type Event struct {
	AccountID id.AccountID      `json:"account_id"`
	RecordID  id.RecordID       `json:"record_id,omitempty"`
	Action    string            `json:"action"`
	Outcome   string            `json:"outcome,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Store is an append-only sink for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]Event, error)
}

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "idvault/pkg/domain"
)

// PostgresStore appends audit events to the audit_events table. Rows are
// insert-only; there is no update or delete path.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("serialize audit metadata: %w", err)
		}
	}

	var recordID any
	if !event.RecordID.IsZero() {
		recordID = uuid.UUID(event.RecordID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (account_id, record_id, action, outcome, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(event.AccountID), recordID, event.Action, event.Outcome, metadata, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID id.AccountID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, record_id, action, outcome, metadata, timestamp
		FROM audit_events
		WHERE account_id = $1
		ORDER BY timestamp, id
	`, uuid.UUID(accountID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event    Event
			account  uuid.UUID
			record   uuid.NullUUID
			metadata []byte
		)
		if err := rows.Scan(&account, &record, &event.Action, &event.Outcome, &metadata, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.AccountID = id.AccountID(account)
		if record.Valid {
			event.RecordID = id.RecordID(record.UUID)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("parse audit metadata: %w", err)
			}
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}

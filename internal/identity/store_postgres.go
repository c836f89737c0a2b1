package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"idvault/internal/sentinel"
	id "idvault/pkg/domain"
)

// PostgresStore persists Identity Records in PostgreSQL.
//
// The single-active-record invariant is enforced twice: transactionally in
// Activate (row locks on the account's records), and by a partial unique
// index on (account_id) WHERE active, so a bug elsewhere can never commit a
// second active row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed record store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `
	id, account_id, encrypted_bundle, encrypted_recovery_bundle,
	ssn_fingerprint, compound_fingerprint, personal_key_fingerprint,
	active, deactivation_reason, activated_at, verified_at,
	created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	query := `
		INSERT INTO identity_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(record.ID),
		uuid.UUID(record.AccountID),
		record.EncryptedBundle,
		record.EncryptedRecoveryBundle,
		record.SSNFingerprint,
		record.CompoundFingerprint,
		record.PersonalKeyFingerprint,
		record.Active,
		string(record.DeactivationReason),
		record.ActivatedAt,
		record.VerifiedAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create identity record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, recordID id.RecordID) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM identity_records WHERE id = $1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, uuid.UUID(recordID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find record by id: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID id.AccountID) ([]*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM identity_records
		WHERE account_id = $1
		ORDER BY created_at
	`
	return s.queryRecords(ctx, query, uuid.UUID(accountID))
}

func (s *PostgresStore) FindActiveByAccount(ctx context.Context, accountID id.AccountID) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM identity_records WHERE account_id = $1 AND active`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, uuid.UUID(accountID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active record for account: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find active record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindPasswordResetByAccount(ctx context.Context, accountID id.AccountID) (*Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM identity_records
		WHERE account_id = $1 AND NOT active AND deactivation_reason = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, uuid.UUID(accountID), string(ReasonPasswordReset)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no password reset record for account: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find password reset record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindBySSNFingerprint(ctx context.Context, fp string) ([]*Record, error) {
	if fp == "" {
		return nil, nil
	}
	query := `SELECT ` + recordColumns + ` FROM identity_records WHERE ssn_fingerprint = $1`
	return s.queryRecords(ctx, query, fp)
}

func (s *PostgresStore) FindByCompoundFingerprint(ctx context.Context, fp string) ([]*Record, error) {
	if fp == "" {
		return nil, nil
	}
	query := `SELECT ` + recordColumns + ` FROM identity_records WHERE compound_fingerprint = $1`
	return s.queryRecords(ctx, query, fp)
}

// Activate runs in a single transaction scoped to the account. Locking the
// account's rows first serializes concurrent activations: the second
// transaction blocks until the first commits and then proceeds against the
// updated rows, so exactly one record is active afterwards.
func (s *PostgresStore) Activate(ctx context.Context, recordID id.RecordID, accountID id.AccountID, now time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var ownerID uuid.UUID
		err := tx.QueryRowContext(ctx,
			`SELECT account_id FROM identity_records WHERE id = $1 FOR UPDATE`,
			uuid.UUID(recordID),
		).Scan(&ownerID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock record: %w", err)
		}
		if ownerID != uuid.UUID(accountID) {
			return fmt.Errorf("record belongs to another account: %w", sentinel.ErrInvalidState)
		}

		if _, err := tx.ExecContext(ctx,
			`SELECT id FROM identity_records WHERE account_id = $1 FOR UPDATE`,
			uuid.UUID(accountID),
		); err != nil {
			return fmt.Errorf("lock account records: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE identity_records SET active = FALSE, updated_at = $2 WHERE account_id = $1`,
			uuid.UUID(accountID), now,
		); err != nil {
			return fmt.Errorf("deactivate siblings: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE identity_records
			SET active = TRUE,
			    deactivation_reason = $2,
			    activated_at = $3,
			    verified_at = $3,
			    updated_at = $3
			WHERE id = $1`,
			uuid.UUID(recordID), string(ReasonNone), now,
		); err != nil {
			return fmt.Errorf("activate record: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Deactivate(ctx context.Context, recordID id.RecordID, reason DeactivationReason) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identity_records
		SET active = FALSE, deactivation_reason = $2, updated_at = $3
		WHERE id = $1`,
		uuid.UUID(recordID), string(reason), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("deactivate record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

// UpdateEnvelopes commits a re-encryption atomically under a row lock so a
// concurrent rotation can never interleave and leave two valid personal keys.
func (s *PostgresStore) UpdateEnvelopes(ctx context.Context, params UpdateEnvelopesParams) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT TRUE FROM identity_records WHERE id = $1 FOR UPDATE`,
			uuid.UUID(params.RecordID),
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock record: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE identity_records
			SET encrypted_bundle = COALESCE($2, encrypted_bundle),
			    encrypted_recovery_bundle = COALESCE($3, encrypted_recovery_bundle),
			    personal_key_fingerprint = COALESCE(NULLIF($4, ''), personal_key_fingerprint),
			    deactivation_reason = CASE WHEN $5 THEN 'none' ELSE deactivation_reason END,
			    updated_at = $6
			WHERE id = $1`,
			uuid.UUID(params.RecordID),
			params.EncryptedBundle,
			params.EncryptedRecoveryBundle,
			params.PersonalKeyFingerprint,
			params.ClearDeactivationReason,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("update envelopes: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record               Record
		recordID, accountID  uuid.UUID
		reason               string
		activatedAt, verifAt sql.NullTime
	)
	err := row.Scan(
		&recordID,
		&accountID,
		&record.EncryptedBundle,
		&record.EncryptedRecoveryBundle,
		&record.SSNFingerprint,
		&record.CompoundFingerprint,
		&record.PersonalKeyFingerprint,
		&record.Active,
		&reason,
		&activatedAt,
		&verifAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.ID = id.RecordID(recordID)
	record.AccountID = id.AccountID(accountID)
	record.DeactivationReason = DeactivationReason(reason)
	if activatedAt.Valid {
		record.ActivatedAt = &activatedAt.Time
	}
	if verifAt.Valid {
		record.VerifiedAt = &verifAt.Time
	}
	return &record, nil
}

func isUniqueViolation(err error) bool {
	// 23505 = unique_violation
	type sqlState interface{ SQLState() string }
	var state sqlState
	return errors.As(err, &state) && state.SQLState() == "23505"
}

package account

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

// PostgresStore persists accounts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed account store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, account *Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	query := `
		INSERT INTO accounts (id, email_fingerprint, password_digest, access_key_salt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(account.ID),
		account.EmailFingerprint,
		account.PasswordDigest,
		account.AccessKeySalt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, accountID id.AccountID) (*Account, error) {
	query := `
		SELECT id, email_fingerprint, password_digest, access_key_salt, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, uuid.UUID(accountID)))
}

func (s *PostgresStore) FindByEmailFingerprint(ctx context.Context, fp string) (*Account, error) {
	query := `
		SELECT id, email_fingerprint, password_digest, access_key_salt, created_at, updated_at
		FROM accounts
		WHERE email_fingerprint = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, fp))
}

func (s *PostgresStore) UpdatePasswordDigest(ctx context.Context, accountID id.AccountID, digest string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET password_digest = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(accountID), digest, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update password digest: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Account, error) {
	var (
		account   Account
		accountID uuid.UUID
	)
	err := row.Scan(
		&accountID,
		&account.EmailFingerprint,
		&account.PasswordDigest,
		&account.AccessKeySalt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	account.ID = id.AccountID(accountID)
	return &account, nil
}

func isUniqueViolation(err error) bool {
	// 23505 = unique_violation
	type sqlState interface{ SQLState() string }
	var state sqlState
	return errors.As(err, &state) && state.SQLState() == "23505"
}

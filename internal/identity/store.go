package identity

import (
	"context"
	"time"

	id "idvault/pkg/domain"
)

// Store is the persistence interface for Identity Records.
//
// Error Contract: all Find methods return sentinel.ErrNotFound (wrapped) when
// no matching record exists. Mutations return sentinel.ErrInvalidState when
// the record is not in a state the operation allows.
type Store interface {
	Create(ctx context.Context, record *Record) error
	FindByID(ctx context.Context, recordID id.RecordID) (*Record, error)
	ListByAccount(ctx context.Context, accountID id.AccountID) ([]*Record, error)

	// FindActiveByAccount returns the single active record for the account.
	FindActiveByAccount(ctx context.Context, accountID id.AccountID) (*Record, error)
	// FindPasswordResetByAccount returns the most recent record deactivated
	// by a password reset, the one the recovery workflow operates on.
	FindPasswordResetByAccount(ctx context.Context, accountID id.AccountID) (*Record, error)

	// Blind duplicate-detection lookups.
	FindBySSNFingerprint(ctx context.Context, fp string) ([]*Record, error)
	FindByCompoundFingerprint(ctx context.Context, fp string) ([]*Record, error)

	// Activate atomically deactivates every other record belonging to the
	// account and activates this one, setting activated_at and verified_at
	// to now and clearing the deactivation reason. Implementations must
	// serialize concurrent activations for the same account so exactly one
	// record ends up active.
	Activate(ctx context.Context, recordID id.RecordID, accountID id.AccountID, now time.Time) error

	// Deactivate clears the active flag and sets the reason.
	Deactivate(ctx context.Context, recordID id.RecordID, reason DeactivationReason) error

	// UpdateEnvelopes commits a re-encryption as one atomic unit: either all
	// provided fields persist, or none do. Nil byte slices and empty strings
	// leave the corresponding columns untouched.
	UpdateEnvelopes(ctx context.Context, params UpdateEnvelopesParams) error
}

// UpdateEnvelopesParams carries the writes of a re-encryption commit.
type UpdateEnvelopesParams struct {
	RecordID id.RecordID

	EncryptedBundle         []byte
	EncryptedRecoveryBundle []byte
	PersonalKeyFingerprint  string

	// ClearDeactivationReason resets the reason to none without touching the
	// active flag; reactivation stays an explicit Activate call.
	ClearDeactivationReason bool
}

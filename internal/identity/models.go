// Package identity holds the durable Identity Record: dual-encrypted PII,
// fingerprints, and activation state for one verified identity.
package identity

import (
	"time"

	id "idvault/pkg/domain"
)

// DeactivationReason explains why a record is not active.
type DeactivationReason string

const (
	ReasonNone                  DeactivationReason = "none"
	ReasonPasswordReset         DeactivationReason = "password_reset"
	ReasonEncryptionError       DeactivationReason = "encryption_error"
	ReasonVerificationPending   DeactivationReason = "verification_pending"
	ReasonVerificationCancelled DeactivationReason = "verification_cancelled"
	ReasonInPersonPending       DeactivationReason = "in_person_pending"
)

// Valid reports whether the reason is a known enum value.
func (r DeactivationReason) Valid() bool {
	switch r {
	case ReasonNone, ReasonPasswordReset, ReasonEncryptionError,
		ReasonVerificationPending, ReasonVerificationCancelled, ReasonInPersonPending:
		return true
	}
	return false
}

// Record is an Identity Record. It belongs to exactly one account and holds
// two independently decryptable ciphertexts of the same attribute bundle:
// the primary envelope (password path) and the recovery envelope (personal
// key path). At most one record per account is active at any instant.
type Record struct {
	ID        id.RecordID
	AccountID id.AccountID

	EncryptedBundle         []byte
	EncryptedRecoveryBundle []byte

	// SSNFingerprint and CompoundFingerprint are blind equality tokens for
	// duplicate and fraud checks; either may be empty when the underlying
	// attributes are absent.
	SSNFingerprint      string
	CompoundFingerprint string

	// PersonalKeyFingerprint verifies a recovery key guess without
	// decrypting. Exactly one personal key matches it at a time.
	PersonalKeyFingerprint string

	Active             bool
	DeactivationReason DeactivationReason
	ActivatedAt        *time.Time
	VerifiedAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pending reports whether the record is awaiting verification completion.
func (r *Record) Pending() bool {
	return !r.Active && r.DeactivationReason == ReasonVerificationPending
}

// PasswordReset reports whether the record was deactivated by a password
// reset and is eligible for the recovery workflow.
func (r *Record) PasswordReset() bool {
	return !r.Active && r.DeactivationReason == ReasonPasswordReset
}

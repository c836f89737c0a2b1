// Package account implements the account store the PII engine collaborates
// with: password verification, access key derivation, and blind email lookup.
package account

import (
	"time"

	id "idvault/pkg/domain"
)

// Account is a minimal account row. The email itself is never stored; only
// its keyed fingerprint is, which is enough for equality lookup at sign-in.
type Account struct {
	ID               id.AccountID
	EmailFingerprint string
	PasswordDigest   string

	// AccessKeySalt feeds the per-account access key derivation; it is
	// random at registration and stable for the account's lifetime.
	AccessKeySalt []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

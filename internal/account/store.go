package account

import (
	"context"

	id "idvault/pkg/domain"
)

// Store is the persistence interface for accounts.
//
// Error Contract: all Find methods return sentinel.ErrNotFound (wrapped) when
// the account does not exist.
type Store interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, accountID id.AccountID) (*Account, error)
	FindByEmailFingerprint(ctx context.Context, fp string) (*Account, error)
	UpdatePasswordDigest(ctx context.Context, accountID id.AccountID, digest string) error
}

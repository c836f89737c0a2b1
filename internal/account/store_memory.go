package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"idvault/internal/sentinel"
	id "idvault/pkg/domain"
)

// InMemoryStore stores accounts in memory for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*Account
}

// NewMemory constructs an empty in-memory account store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[id.AccountID]*Account)}
}

func (s *InMemoryStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("account already exists: %w", sentinel.ErrConflict)
	}
	for _, a := range s.accounts {
		if a.EmailFingerprint == account.EmailFingerprint {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
	}
	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, accountID id.AccountID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	clone := *account
	return &clone, nil
}

func (s *InMemoryStore) FindByEmailFingerprint(_ context.Context, fp string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.EmailFingerprint == fp {
			clone := *a
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) UpdatePasswordDigest(_ context.Context, accountID id.AccountID, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	account.PasswordDigest = digest
	account.UpdatedAt = time.Now()
	return nil
}

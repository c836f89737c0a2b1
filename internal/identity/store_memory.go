package identity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"idvault/internal/sentinel"
	id "idvault/pkg/domain"
)

// InMemoryStore stores Identity Records in memory for tests and development.
// A single mutex serializes mutations, which makes Activate trivially atomic.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*Record
}

// NewMemory constructs an empty in-memory record store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.RecordID]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return fmt.Errorf("record %s already exists: %w", record.ID, sentinel.ErrConflict)
	}
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, recordID id.RecordID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordID]
	if !ok {
		return nil, fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
	}
	clone := *record
	return &clone, nil
}

func (s *InMemoryStore) ListByAccount(_ context.Context, accountID id.AccountID) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if r.AccountID == accountID {
			clone := *r
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) FindActiveByAccount(_ context.Context, accountID id.AccountID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.AccountID == accountID && r.Active {
			clone := *r
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("no active record for account: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindPasswordResetByAccount(_ context.Context, accountID id.AccountID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *Record
	for _, r := range s.records {
		if r.AccountID == accountID && r.PasswordReset() {
			if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
				latest = r
			}
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no password reset record for account: %w", sentinel.ErrNotFound)
	}
	clone := *latest
	return &clone, nil
}

func (s *InMemoryStore) FindBySSNFingerprint(_ context.Context, fp string) ([]*Record, error) {
	return s.findByFingerprint(fp, func(r *Record) string { return r.SSNFingerprint })
}

func (s *InMemoryStore) FindByCompoundFingerprint(_ context.Context, fp string) ([]*Record, error) {
	return s.findByFingerprint(fp, func(r *Record) string { return r.CompoundFingerprint })
}

func (s *InMemoryStore) findByFingerprint(fp string, get func(*Record) string) ([]*Record, error) {
	if fp == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, r := range s.records {
		if get(r) == fp {
			clone := *r
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Activate(_ context.Context, recordID id.RecordID, accountID id.AccountID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.records[recordID]
	if !ok {
		return fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
	}
	if target.AccountID != accountID {
		return fmt.Errorf("record belongs to another account: %w", sentinel.ErrInvalidState)
	}

	for _, r := range s.records {
		if r.AccountID == accountID {
			r.Active = false
			r.UpdatedAt = now
		}
	}
	target.Active = true
	target.DeactivationReason = ReasonNone
	target.ActivatedAt = &now
	target.VerifiedAt = &now
	target.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) Deactivate(_ context.Context, recordID id.RecordID, reason DeactivationReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[recordID]
	if !ok {
		return fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
	}
	record.Active = false
	record.DeactivationReason = reason
	record.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) UpdateEnvelopes(_ context.Context, params UpdateEnvelopesParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[params.RecordID]
	if !ok {
		return fmt.Errorf("record not found: %w", sentinel.ErrNotFound)
	}
	if params.EncryptedBundle != nil {
		record.EncryptedBundle = params.EncryptedBundle
	}
	if params.EncryptedRecoveryBundle != nil {
		record.EncryptedRecoveryBundle = params.EncryptedRecoveryBundle
	}
	if params.PersonalKeyFingerprint != "" {
		record.PersonalKeyFingerprint = params.PersonalKeyFingerprint
	}
	if params.ClearDeactivationReason {
		record.DeactivationReason = ReasonNone
	}
	record.UpdatedAt = time.Now()
	return nil
}

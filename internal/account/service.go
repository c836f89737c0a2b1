package account

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"time"

	"golang.org/x/crypto/argon2"

	"idvault/internal/encryption"
	"idvault/internal/pii/fingerprint"
	id "idvault/pkg/domain"
	dErrors "idvault/pkg/domain-errors"
	"idvault/pkg/secrets"
)

// Service verifies passwords and derives account access keys.
type Service struct {
	store  Store
	fp     *fingerprint.Fingerprinter
	kdf    encryption.KDFParams
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService constructs an account service.
func NewService(store Store, fp *fingerprint.Fingerprinter, kdf encryption.KDFParams, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "account store is required")
	}
	if fp == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "fingerprinter is required")
	}
	s := &Service{store: store, fp: fp, kdf: kdf}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an account from an email and password. Only the email
// fingerprint and the bcrypt password digest are persisted.
func (s *Service) Register(ctx context.Context, email, password string) (*Account, error) {
	if email == "" {
		return nil, dErrors.NewField(dErrors.CodeValidation, "email", "email is required")
	}
	digest, err := secrets.HashPassword(password)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate access key salt")
	}

	now := time.Now()
	account := &Account{
		ID:               id.NewAccountID(),
		EmailFingerprint: s.fp.FingerprintNormalized(email),
		PasswordDigest:   digest,
		AccessKeySalt:    salt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := account.validate(); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "could not create account")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())
	}
	return account, nil
}

// FindByEmail resolves an account through the blind email fingerprint.
func (s *Service) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if email == "" {
		return nil, dErrors.NewField(dErrors.CodeValidation, "email", "email is required")
	}
	account, err := s.store.FindByEmailFingerprint(ctx, s.fp.FingerprintNormalized(email))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
	}
	return account, nil
}

// VerifyPassword checks a candidate password for the account. A wrong
// password is an authentication mismatch attributed to the password field.
func (s *Service) VerifyPassword(ctx context.Context, accountID id.AccountID, candidate string) error {
	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
	}
	return secrets.VerifyPassword(candidate, account.PasswordDigest)
}

// DeriveAccessKey turns the account password into the symmetric access key
// material the primary PII envelope is encrypted under. The derivation is
// CPU/memory-hard: treat it as expensive and blocking.
//
// The password is not verified here; callers verify first so a wrong
// password fails fast instead of producing an undecryptable key.
func (s *Service) DeriveAccessKey(ctx context.Context, accountID id.AccountID, password string) (string, error) {
	if password == "" {
		return "", dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
	}
	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeNotFound, "account not found")
	}

	key := argon2.IDKey([]byte(password), account.AccessKeySalt, s.kdf.Time, s.kdf.MemoryKiB, s.kdf.Threads, 32)
	return base64.RawStdEncoding.EncodeToString(key), nil
}

func (a *Account) validate() error {
	if a.EmailFingerprint == "" {
		return dErrors.New(dErrors.CodeValidation, "email fingerprint is required")
	}
	if a.PasswordDigest == "" {
		return dErrors.New(dErrors.CodeValidation, "password digest is required")
	}
	if len(a.AccessKeySalt) == 0 {
		return dErrors.New(dErrors.CodeValidation, "access key salt is required")
	}
	return nil
}

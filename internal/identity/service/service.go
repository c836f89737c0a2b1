// Package service orchestrates the PII protection engine: dual-envelope
// encryption of identity records, activation lifecycle, session caching
// support, and the personal key recovery workflow.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"idvault/internal/audit"
	"idvault/internal/encryption"
	"idvault/internal/identity"
	"idvault/internal/identity/metrics"
	"idvault/internal/personalkey"
	"idvault/internal/pii"
	"idvault/internal/pii/fingerprint"
	"idvault/internal/sentinel"
	"idvault/internal/throttle"
	id "idvault/pkg/domain"
	dErrors "idvault/pkg/domain-errors"
)

// AccountStore is the external account collaborator.
//
// Error Contract: VerifyPassword returns an authentication-mismatch domain
// error on a wrong password; DeriveAccessKey is CPU/memory-hard.
type AccountStore interface {
	VerifyPassword(ctx context.Context, accountID id.AccountID, candidate string) error
	DeriveAccessKey(ctx context.Context, accountID id.AccountID, password string) (string, error)
}

// Throttle guards repeated authentication and decryption attempts.
//
// Error Contract: CheckAndIncrement returns a throttled domain error when
// the budget is exceeded; the service must not do cryptographic work then.
type Throttle interface {
	CheckAndIncrement(ctx context.Context, accountID id.AccountID, action throttle.Action) error
	Reset(ctx context.Context, accountID id.AccountID, action throttle.Action) error
}

// AuditPublisher records audit events for record lifecycle operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service implements the identity record operations.
type Service struct {
	records   identity.Store
	accounts  AccountStore
	throttler Throttle
	encryptor *encryption.Encryptor
	fp        *fingerprint.Fingerprinter
	keys      *personalkey.Manager

	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher sets the audit event sink.
func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

// WithMetrics sets the Prometheus metrics collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the identity service.
func New(
	records identity.Store,
	accounts AccountStore,
	throttler Throttle,
	encryptor *encryption.Encryptor,
	fp *fingerprint.Fingerprinter,
	keys *personalkey.Manager,
	opts ...Option,
) (*Service, error) {
	if records == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "record store is required")
	}
	if accounts == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "account store is required")
	}
	if throttler == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "throttle is required")
	}
	if encryptor == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "encryptor is required")
	}
	if fp == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "fingerprinter is required")
	}
	if keys == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "personal key manager is required")
	}

	s := &Service{
		records:   records,
		accounts:  accounts,
		throttler: throttler,
		encryptor: encryptor,
		fp:        fp,
		keys:      keys,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateResult is returned by CreateRecord. PersonalKey is shown to the user
// exactly once and never persisted in plaintext.
type CreateResult struct {
	Record      *identity.Record
	PersonalKey string
}

// CreateRecord builds ciphertexts for both envelopes of a freshly verified
// attribute bundle, computes its fingerprints, and stores the record in the
// verification-pending state. Activation is a separate, explicit step.
func (s *Service) CreateRecord(ctx context.Context, accountID id.AccountID, bundle pii.Bundle, password string) (*CreateResult, error) {
	ctx, span := s.startSpan(ctx, "identity.CreateRecord")
	var err error
	defer func() { span.End(err) }()

	if accountID.IsZero() {
		err = dErrors.New(dErrors.CodeValidation, "account ID is required")
		return nil, err
	}
	if password == "" {
		err = dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
		return nil, err
	}

	canonical, err := bundle.Canonical()
	if err != nil {
		return nil, err
	}

	start := s.now()
	accessKey, err := s.accounts.DeriveAccessKey(ctx, accountID, password)
	if err != nil {
		return nil, err
	}
	primary, err := s.encryptor.Encrypt(canonical, accessKey, accountID.String())
	if err != nil {
		return nil, err
	}

	personalKey, err := s.keys.Generate()
	if err != nil {
		return nil, err
	}
	recovery, err := s.encryptor.Encrypt(canonical, s.keys.Normalize(personalKey), accountID.String())
	if err != nil {
		return nil, err
	}
	s.observeKDF(start)

	now := s.now()
	record := &identity.Record{
		ID:                      id.NewRecordID(),
		AccountID:               accountID,
		EncryptedBundle:         primary,
		EncryptedRecoveryBundle: recovery,
		SSNFingerprint:          s.fp.SSN(bundle),
		CompoundFingerprint:     s.fp.Compound(bundle),
		PersonalKeyFingerprint:  s.keys.Fingerprint(personalKey),
		Active:                  false,
		DeactivationReason:      identity.ReasonVerificationPending,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err = s.records.Create(ctx, record); err != nil {
		err = s.translateStoreError(err, "could not create identity record")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordsCreated.Inc()
	}
	s.emitAudit(ctx, audit.Event{
		AccountID: accountID,
		RecordID:  record.ID,
		Action:    audit.ActionRecordCreated,
		Outcome:   "ok",
	})
	s.logInfo(ctx, "identity record created",
		"account_id", accountID.String(),
		"record_id", record.ID.String(),
	)
	return &CreateResult{Record: record, PersonalKey: personalKey}, nil
}

// Activate makes the record the account's single active one. All sibling
// records are deactivated in the same transaction; under two concurrent
// activations exactly one record ends up active.
func (s *Service) Activate(ctx context.Context, recordID id.RecordID, accountID id.AccountID) error {
	ctx, span := s.startSpan(ctx, "identity.Activate")
	var err error
	defer func() { span.End(err) }()

	if recordID.IsZero() || accountID.IsZero() {
		err = dErrors.New(dErrors.CodeValidation, "record ID and account ID are required")
		return err
	}

	if err = s.records.Activate(ctx, recordID, accountID, s.now()); err != nil {
		err = s.translateStoreError(err, "could not activate identity record")
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordsActivated.Inc()
	}
	s.emitAudit(ctx, audit.Event{
		AccountID: accountID,
		RecordID:  recordID,
		Action:    audit.ActionRecordActivated,
		Outcome:   "ok",
	})
	s.logInfo(ctx, "identity record activated",
		"account_id", accountID.String(),
		"record_id", recordID.String(),
	)
	return nil
}

// Deactivate clears the active flag and stores the reason. "none" is not a
// deactivation reason; use Activate to clear one.
func (s *Service) Deactivate(ctx context.Context, recordID id.RecordID, reason identity.DeactivationReason) error {
	if !reason.Valid() || reason == identity.ReasonNone {
		return dErrors.New(dErrors.CodeValidation, "invalid deactivation reason")
	}

	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		return s.translateStoreError(err, "could not load identity record")
	}
	if err := s.records.Deactivate(ctx, recordID, reason); err != nil {
		return s.translateStoreError(err, "could not deactivate identity record")
	}

	if s.metrics != nil {
		s.metrics.RecordsDeactivated.WithLabelValues(string(reason)).Inc()
	}
	s.emitAudit(ctx, audit.Event{
		AccountID: record.AccountID,
		RecordID:  recordID,
		Action:    audit.ActionRecordDeactivated,
		Outcome:   string(reason),
	})
	s.logInfo(ctx, "identity record deactivated",
		"account_id", record.AccountID.String(),
		"record_id", recordID.String(),
		"reason", string(reason),
	)
	return nil
}

// ActiveRecord returns the account's single active record, if any.
func (s *Service) ActiveRecord(ctx context.Context, accountID id.AccountID) (*identity.Record, error) {
	record, err := s.records.FindActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, s.translateStoreError(err, "no active identity record")
	}
	return record, nil
}

// DecryptPrimary opens the password-path envelope. The password is verified
// against the account store first, so a wrong password fails as an
// authentication mismatch without attempting decryption. A decryption
// failure despite a verified password is account-level damage: the record is
// deactivated with reason encryption_error and the caller is routed to
// re-verification.
func (s *Service) DecryptPrimary(ctx context.Context, recordID id.RecordID, password string) (pii.Bundle, error) {
	ctx, span := s.startSpan(ctx, "identity.DecryptPrimary")
	var err error
	defer func() { span.End(err) }()

	if password == "" {
		err = dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
		return pii.Bundle{}, err
	}

	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		err = s.translateStoreError(err, "could not load identity record")
		return pii.Bundle{}, err
	}

	if err = s.checkThrottle(ctx, record.AccountID, throttle.ActionVerifyPassword); err != nil {
		return pii.Bundle{}, err
	}

	if err = s.accounts.VerifyPassword(ctx, record.AccountID, password); err != nil {
		return pii.Bundle{}, err
	}

	start := s.now()
	accessKey, err := s.accounts.DeriveAccessKey(ctx, record.AccountID, password)
	if err != nil {
		return pii.Bundle{}, err
	}
	plaintext, err := s.encryptor.Decrypt(record.EncryptedBundle, accessKey, record.AccountID.String())
	s.observeKDF(start)
	if err != nil {
		s.recordDecryptFailure(ctx, record, "primary")
		return pii.Bundle{}, err
	}

	_ = s.throttler.Reset(ctx, record.AccountID, throttle.ActionVerifyPassword)
	return pii.FromCanonical(plaintext)
}

// DecryptRecovery opens the personal-key-path envelope. The candidate key is
// rejected by fingerprint before any KDF work. A fingerprint match with a
// failing decrypt is an integrity problem, reported as a decryption failure
// rather than a wrong key.
func (s *Service) DecryptRecovery(ctx context.Context, recordID id.RecordID, personalKey string) (pii.Bundle, error) {
	ctx, span := s.startSpan(ctx, "identity.DecryptRecovery")
	var err error
	defer func() { span.End(err) }()

	if s.keys.Normalize(personalKey) == "" {
		err = dErrors.NewField(dErrors.CodeValidation, "personal_key", "personal key is required")
		return pii.Bundle{}, err
	}

	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		err = s.translateStoreError(err, "could not load identity record")
		return pii.Bundle{}, err
	}

	if err = s.checkThrottle(ctx, record.AccountID, throttle.ActionVerifyPersonalKey); err != nil {
		return pii.Bundle{}, err
	}

	bundle, err := s.openRecoveryEnvelope(ctx, record, personalKey)
	if err != nil {
		return pii.Bundle{}, err
	}

	_ = s.throttler.Reset(ctx, record.AccountID, throttle.ActionVerifyPersonalKey)
	return bundle, nil
}

// RotateRecovery regenerates the recovery envelope and personal key for a
// record the caller can already decrypt with the account password. The prior
// personal key is invalid the moment the store commit returns.
func (s *Service) RotateRecovery(ctx context.Context, recordID id.RecordID, password string) (string, error) {
	ctx, span := s.startSpan(ctx, "identity.RotateRecovery")
	var err error
	defer func() { span.End(err) }()

	bundle, err := s.DecryptPrimary(ctx, recordID, password)
	if err != nil {
		return "", err
	}
	record, err := s.records.FindByID(ctx, recordID)
	if err != nil {
		err = s.translateStoreError(err, "could not load identity record")
		return "", err
	}

	canonical, err := bundle.Canonical()
	if err != nil {
		return "", err
	}
	newKey, err := s.keys.Generate()
	if err != nil {
		return "", err
	}
	recovery, err := s.encryptor.Encrypt(canonical, s.keys.Normalize(newKey), record.AccountID.String())
	if err != nil {
		return "", err
	}

	if err = s.records.UpdateEnvelopes(ctx, identity.UpdateEnvelopesParams{
		RecordID:                recordID,
		EncryptedRecoveryBundle: recovery,
		PersonalKeyFingerprint:  s.keys.Fingerprint(newKey),
	}); err != nil {
		err = s.translateStoreError(err, "could not rotate recovery envelope")
		return "", err
	}

	s.emitAudit(ctx, audit.Event{
		AccountID: record.AccountID,
		RecordID:  recordID,
		Action:    audit.ActionPersonalKeyRotated,
		Outcome:   "ok",
	})
	return newKey, nil
}

// openRecoveryEnvelope checks the personal key fingerprint, then decrypts.
func (s *Service) openRecoveryEnvelope(ctx context.Context, record *identity.Record, personalKey string) (pii.Bundle, error) {
	if !s.keys.Verify(personalKey, record.PersonalKeyFingerprint) {
		return pii.Bundle{}, dErrors.NewField(dErrors.CodeAuthenticationMismatch, "personal_key", "personal key is incorrect")
	}

	start := s.now()
	plaintext, err := s.encryptor.Decrypt(record.EncryptedRecoveryBundle, s.keys.Normalize(personalKey), record.AccountID.String())
	s.observeKDF(start)
	if err != nil {
		// Fingerprint matched but the envelope would not open: integrity
		// damage, never surfaced to the end user as a wrong key.
		s.logError(ctx, "recovery envelope failed to decrypt despite matching key fingerprint",
			"account_id", record.AccountID.String(),
			"record_id", record.ID.String(),
		)
		if s.metrics != nil {
			s.metrics.DecryptFailures.Inc()
		}
		return pii.Bundle{}, err
	}
	return pii.FromCanonical(plaintext)
}

func (s *Service) checkThrottle(ctx context.Context, accountID id.AccountID, action throttle.Action) error {
	err := s.throttler.CheckAndIncrement(ctx, accountID, action)
	if err != nil && dErrors.HasCode(err, dErrors.CodeThrottled) && s.metrics != nil {
		s.metrics.ThrottleRejections.WithLabelValues(string(action)).Inc()
	}
	return err
}

// recordDecryptFailure marks a record damaged after a decryption failure
// with verified credentials.
func (s *Service) recordDecryptFailure(ctx context.Context, record *identity.Record, envelope string) {
	if s.metrics != nil {
		s.metrics.DecryptFailures.Inc()
	}
	s.logError(ctx, "envelope failed to decrypt with verified credentials",
		"account_id", record.AccountID.String(),
		"record_id", record.ID.String(),
		"envelope", envelope,
	)
	if err := s.records.Deactivate(ctx, record.ID, identity.ReasonEncryptionError); err != nil {
		s.logError(ctx, "could not deactivate damaged record",
			"record_id", record.ID.String(),
			"error", err.Error(),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordsDeactivated.WithLabelValues(string(identity.ReasonEncryptionError)).Inc()
	}
	s.emitAudit(ctx, audit.Event{
		AccountID: record.AccountID,
		RecordID:  record.ID,
		Action:    audit.ActionRecordDeactivated,
		Outcome:   string(identity.ReasonEncryptionError),
	})
}

func (s *Service) translateStoreError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeForbidden, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

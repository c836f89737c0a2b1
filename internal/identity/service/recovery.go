package service

import (
	"context"

	"idvault/internal/audit"
	"idvault/internal/identity"
	"idvault/internal/throttle"
	id "idvault/pkg/domain"
	dErrors "idvault/pkg/domain-errors"
)

// Recover runs the personal key recovery workflow for an account whose
// record was deactivated by a password reset.
//
// The workflow: verify the new password, verify the personal key against the
// stored fingerprint, open the recovery envelope, re-encrypt the bundle under
// the access key derived from the new password, and mint a fresh personal
// key with its own recovery envelope. All writes land in one atomic commit,
// which also clears the deactivation reason. The old personal key is useless
// the moment the commit returns.
//
// Recovery does not re-activate the record; activation stays an explicit
// step so callers can interpose re-verification when policy requires it.
//
// Failures are attributed to a single field: a wrong password fails before
// any envelope is touched, and a wrong personal key fails with both
// ciphertexts left exactly as they were.
func (s *Service) Recover(ctx context.Context, accountID id.AccountID, password, personalKey string) (string, error) {
	ctx, span := s.startSpan(ctx, "identity.Recover")
	var err error
	defer func() { span.End(err) }()

	if password == "" {
		err = dErrors.NewField(dErrors.CodeValidation, "password", "password is required")
		return "", err
	}
	if s.keys.Normalize(personalKey) == "" {
		err = dErrors.NewField(dErrors.CodeValidation, "personal_key", "personal key is required")
		return "", err
	}

	record, err := s.records.FindPasswordResetByAccount(ctx, accountID)
	if err != nil {
		err = s.translateStoreError(err, "no record awaiting recovery")
		return "", err
	}

	s.emitAudit(ctx, audit.Event{
		AccountID: accountID,
		RecordID:  record.ID,
		Action:    audit.ActionRecoveryRequested,
	})

	if err = s.checkThrottle(ctx, accountID, throttle.ActionVerifyPersonalKey); err != nil {
		return "", err
	}

	if err = s.accounts.VerifyPassword(ctx, accountID, password); err != nil {
		s.recordRecoveryFailure(ctx, record, "password")
		return "", err
	}

	bundle, err := s.openRecoveryEnvelope(ctx, record, personalKey)
	if err != nil {
		s.recordRecoveryFailure(ctx, record, "personal_key")
		return "", err
	}

	canonical, err := bundle.Canonical()
	if err != nil {
		return "", err
	}

	start := s.now()
	accessKey, err := s.accounts.DeriveAccessKey(ctx, accountID, password)
	if err != nil {
		return "", err
	}
	primary, err := s.encryptor.Encrypt(canonical, accessKey, accountID.String())
	if err != nil {
		return "", err
	}

	newKey, err := s.keys.Generate()
	if err != nil {
		return "", err
	}
	recovery, err := s.encryptor.Encrypt(canonical, s.keys.Normalize(newKey), accountID.String())
	if err != nil {
		return "", err
	}
	s.observeKDF(start)

	if err = s.records.UpdateEnvelopes(ctx, identity.UpdateEnvelopesParams{
		RecordID:                record.ID,
		EncryptedBundle:         primary,
		EncryptedRecoveryBundle: recovery,
		PersonalKeyFingerprint:  s.keys.Fingerprint(newKey),
		ClearDeactivationReason: true,
	}); err != nil {
		err = s.translateStoreError(err, "could not commit recovered envelopes")
		return "", err
	}

	_ = s.throttler.Reset(ctx, accountID, throttle.ActionVerifyPersonalKey)
	_ = s.throttler.Reset(ctx, accountID, throttle.ActionVerifyPassword)

	if s.metrics != nil {
		s.metrics.RecoveriesSucceeded.Inc()
	}
	s.emitAudit(ctx, audit.Event{
		AccountID: accountID,
		RecordID:  record.ID,
		Action:    audit.ActionRecoverySucceeded,
		Outcome:   "ok",
	})
	s.logInfo(ctx, "identity record recovered",
		"account_id", accountID.String(),
		"record_id", record.ID.String(),
	)
	return newKey, nil
}

func (s *Service) recordRecoveryFailure(ctx context.Context, record *identity.Record, field string) {
	if s.metrics != nil {
		s.metrics.RecoveriesFailed.WithLabelValues(field).Inc()
	}
	s.emitAudit(ctx, audit.Event{
		AccountID: record.AccountID,
		RecordID:  record.ID,
		Action:    audit.ActionRecoveryFailed,
		Outcome:   field,
	})
}

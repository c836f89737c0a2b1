package service_test

import (
	"context"
	"strings"

	"go.uber.org/mock/gomock"

	"idvault/internal/identity"
	"idvault/internal/personalkey"
	"idvault/internal/pii"
	"idvault/internal/throttle"
	id "idvault/pkg/domain"
	dErrors "idvault/pkg/domain-errors"
)

func (s *ServiceSuite) TestCreateRecord() {
	result := s.createRecord("hunter2 correct horse")

	record := result.Record
	s.False(record.Active)
	s.Equal(identity.ReasonVerificationPending, record.DeactivationReason)
	s.NotEmpty(record.EncryptedBundle)
	s.NotEmpty(record.EncryptedRecoveryBundle)
	s.NotEqual(record.EncryptedBundle, record.EncryptedRecoveryBundle)
	s.NotEmpty(record.SSNFingerprint)
	s.NotEmpty(record.CompoundFingerprint)

	s.Len(strings.Fields(result.PersonalKey), personalkey.WordCount)
	s.True(s.keys.Verify(result.PersonalKey, record.PersonalKeyFingerprint))

	// The returned personal key must open the recovery envelope.
	plaintext, err := s.encryptor.Decrypt(
		record.EncryptedRecoveryBundle,
		s.keys.Normalize(result.PersonalKey),
		s.accountID.String(),
	)
	s.Require().NoError(err)
	bundle, err := pii.FromCanonical(plaintext)
	s.Require().NoError(err)
	s.Equal(s.testBundle(), bundle)
}

func (s *ServiceSuite) TestCreateRecordNoPlaintextAtRest() {
	result := s.createRecord("hunter2 correct horse")

	record, err := s.store.FindByID(context.Background(), result.Record.ID)
	s.Require().NoError(err)
	for _, blob := range [][]byte{record.EncryptedBundle, record.EncryptedRecoveryBundle} {
		s.NotContains(string(blob), "Jane")
		s.NotContains(string(blob), "900-12-3456")
	}
	s.NotContains(record.SSNFingerprint, "900")
}

func (s *ServiceSuite) TestCreateRecordValidation() {
	_, err := s.svc.CreateRecord(context.Background(), id.AccountID{}, s.testBundle(), "pw")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.CreateRecord(context.Background(), s.accountID, s.testBundle(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("password", dErrors.FieldOf(err))
}

func (s *ServiceSuite) TestActivateKeepsSingleActive() {
	first := s.createRecord("pw one")
	second := s.createRecord("pw one")
	ctx := context.Background()

	s.Require().NoError(s.svc.Activate(ctx, first.Record.ID, s.accountID))
	s.Require().NoError(s.svc.Activate(ctx, second.Record.ID, s.accountID))

	active, err := s.svc.ActiveRecord(ctx, s.accountID)
	s.Require().NoError(err)
	s.Equal(second.Record.ID, active.ID)

	reloaded, err := s.store.FindByID(ctx, first.Record.ID)
	s.Require().NoError(err)
	s.False(reloaded.Active)
}

func (s *ServiceSuite) TestActivateUnknownRecord() {
	err := s.svc.Activate(context.Background(), id.NewRecordID(), s.accountID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDeactivateRejectsInvalidReason() {
	result := s.createRecord("pw one")

	err := s.svc.Deactivate(context.Background(), result.Record.ID, identity.DeactivationReason("totally-bogus"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	err = s.svc.Deactivate(context.Background(), result.Record.ID, identity.ReasonNone)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestDecryptPrimaryRoundTrip() {
	const password = "hunter2 correct horse"
	result := s.createRecord(password)
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPassword).
		Return(nil)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, password).
		Return(nil)
	s.expectDeriveAccessKey(password, 1)
	s.throttler.EXPECT().
		Reset(gomock.Any(), s.accountID, throttle.ActionVerifyPassword).
		Return(nil)

	bundle, err := s.svc.DecryptPrimary(ctx, result.Record.ID, password)
	s.Require().NoError(err)
	s.Equal(s.testBundle(), bundle)
}

func (s *ServiceSuite) TestDecryptPrimaryWrongPassword() {
	result := s.createRecord("right password")
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPassword).
		Return(nil)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, "wrong password").
		Return(dErrors.NewField(dErrors.CodeAuthenticationMismatch, "password", "password is incorrect"))

	_, err := s.svc.DecryptPrimary(ctx, result.Record.ID, "wrong password")
	s.True(dErrors.HasCode(err, dErrors.CodeAuthenticationMismatch))
	s.Equal("password", dErrors.FieldOf(err))

	// No decryption was attempted, so the record is exactly as stored.
	reloaded, err := s.store.FindByID(ctx, result.Record.ID)
	s.Require().NoError(err)
	s.Equal(result.Record.EncryptedBundle, reloaded.EncryptedBundle)
	s.Equal(identity.ReasonVerificationPending, reloaded.DeactivationReason)
}

func (s *ServiceSuite) TestDecryptPrimaryThrottled() {
	result := s.createRecord("pw one")

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPassword).
		Return(dErrors.New(dErrors.CodeThrottled, "too many attempts"))

	// VerifyPassword has no expectation: the throttle refuses before any
	// credential or KDF work.
	_, err := s.svc.DecryptPrimary(context.Background(), result.Record.ID, "pw one")
	s.True(dErrors.HasCode(err, dErrors.CodeThrottled))
}

func (s *ServiceSuite) TestDecryptPrimaryDamagedEnvelope() {
	const password = "pw one"
	result := s.createRecord(password)
	ctx := context.Background()

	// Corrupt a ciphertext byte past the header.
	damaged, err := s.store.FindByID(ctx, result.Record.ID)
	s.Require().NoError(err)
	damaged.EncryptedBundle[len(damaged.EncryptedBundle)-1] ^= 0xff

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPassword).
		Return(nil)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, password).
		Return(nil)
	s.expectDeriveAccessKey(password, 1)

	_, err = s.svc.DecryptPrimary(ctx, result.Record.ID, password)
	s.True(dErrors.HasCode(err, dErrors.CodeDecryptionFailed))

	// Verified credentials plus an unopenable envelope means the record is
	// damaged and leaves service.
	reloaded, err := s.store.FindByID(ctx, result.Record.ID)
	s.Require().NoError(err)
	s.False(reloaded.Active)
	s.Equal(identity.ReasonEncryptionError, reloaded.DeactivationReason)
}

func (s *ServiceSuite) TestDecryptRecoveryRoundTrip() {
	result := s.createRecord("pw one")
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil)
	s.throttler.EXPECT().
		Reset(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil)

	// Sloppy but equivalent spelling of the key must still work.
	sloppy := strings.ToUpper(strings.ReplaceAll(result.PersonalKey, " ", "-"))
	bundle, err := s.svc.DecryptRecovery(ctx, result.Record.ID, sloppy)
	s.Require().NoError(err)
	s.Equal(s.testBundle(), bundle)
}

func (s *ServiceSuite) TestDecryptRecoveryWrongKey() {
	result := s.createRecord("pw one")
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil)

	wrongKey, err := s.keys.Generate()
	s.Require().NoError(err)

	_, err = s.svc.DecryptRecovery(ctx, result.Record.ID, wrongKey)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthenticationMismatch))
	s.Equal("personal_key", dErrors.FieldOf(err))
}

func (s *ServiceSuite) TestRotateRecovery() {
	const password = "pw one"
	result := s.createRecord(password)
	ctx := context.Background()
	oldKey := result.PersonalKey

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPassword).
		Return(nil)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, password).
		Return(nil)
	s.expectDeriveAccessKey(password, 1)
	s.throttler.EXPECT().
		Reset(gomock.Any(), s.accountID, throttle.ActionVerifyPassword).
		Return(nil)

	newKey, err := s.svc.RotateRecovery(ctx, result.Record.ID, password)
	s.Require().NoError(err)
	s.NotEqual(s.keys.Normalize(oldKey), s.keys.Normalize(newKey))

	reloaded, err := s.store.FindByID(ctx, result.Record.ID)
	s.Require().NoError(err)
	s.False(s.keys.Verify(oldKey, reloaded.PersonalKeyFingerprint))
	s.True(s.keys.Verify(newKey, reloaded.PersonalKeyFingerprint))

	// The new key opens the new envelope.
	plaintext, err := s.encryptor.Decrypt(
		reloaded.EncryptedRecoveryBundle,
		s.keys.Normalize(newKey),
		s.accountID.String(),
	)
	s.Require().NoError(err)
	bundle, err := pii.FromCanonical(plaintext)
	s.Require().NoError(err)
	s.Equal(s.testBundle(), bundle)
}

package service_test

import (
	"context"

	"go.uber.org/mock/gomock"

	"idvault/internal/identity"
	"idvault/internal/pii"
	"idvault/internal/throttle"
	dErrors "idvault/pkg/domain-errors"
)

// resetForRecovery creates a record and puts it into the state a password
// reset leaves behind.
func (s *ServiceSuite) resetForRecovery(password string) (*identity.Record, string) {
	result := s.createRecord(password)
	s.Require().NoError(s.store.Deactivate(context.Background(), result.Record.ID, identity.ReasonPasswordReset))
	return result.Record, result.PersonalKey
}

func (s *ServiceSuite) TestRecoverSuccess() {
	const oldPassword = "old password phrase"
	const newPassword = "new password phrase"
	record, oldKey := s.resetForRecovery(oldPassword)
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, newPassword).
		Return(nil)
	s.expectDeriveAccessKey(newPassword, 1)
	s.throttler.EXPECT().
		Reset(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil)
	s.throttler.EXPECT().
		Reset(gomock.Any(), s.accountID, throttle.ActionVerifyPassword).
		Return(nil)

	newKey, err := s.svc.Recover(ctx, s.accountID, newPassword, oldKey)
	s.Require().NoError(err)
	s.NotEqual(s.keys.Normalize(oldKey), s.keys.Normalize(newKey))

	reloaded, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)

	// Recovery repairs the envelopes and clears the reason, but activation
	// stays a separate explicit step.
	s.False(reloaded.Active)
	s.Equal(identity.ReasonNone, reloaded.DeactivationReason)

	// The old personal key is dead; the new one opens the new envelope.
	s.False(s.keys.Verify(oldKey, reloaded.PersonalKeyFingerprint))
	s.True(s.keys.Verify(newKey, reloaded.PersonalKeyFingerprint))

	plaintext, err := s.encryptor.Decrypt(
		reloaded.EncryptedRecoveryBundle,
		s.keys.Normalize(newKey),
		s.accountID.String(),
	)
	s.Require().NoError(err)
	bundle, err := pii.FromCanonical(plaintext)
	s.Require().NoError(err)
	s.Equal(s.testBundle(), bundle)

	// The primary envelope now opens under the new password's access key.
	plaintext, err = s.encryptor.Decrypt(
		reloaded.EncryptedBundle,
		accessKeyFor(newPassword),
		s.accountID.String(),
	)
	s.Require().NoError(err)
	bundle, err = pii.FromCanonical(plaintext)
	s.Require().NoError(err)
	s.Equal(s.testBundle(), bundle)
}

func (s *ServiceSuite) TestRecoverWrongPassword() {
	record, oldKey := s.resetForRecovery("old password phrase")
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, "wrong password").
		Return(dErrors.NewField(dErrors.CodeAuthenticationMismatch, "password", "password is incorrect"))

	_, err := s.svc.Recover(ctx, s.accountID, "wrong password", oldKey)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthenticationMismatch))
	s.Equal("password", dErrors.FieldOf(err))

	// Nothing was decrypted or rewritten.
	reloaded, findErr := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(findErr)
	s.Equal(record.EncryptedBundle, reloaded.EncryptedBundle)
	s.Equal(record.EncryptedRecoveryBundle, reloaded.EncryptedRecoveryBundle)
	s.Equal(identity.ReasonPasswordReset, reloaded.DeactivationReason)
	s.True(s.keys.Verify(oldKey, reloaded.PersonalKeyFingerprint))
}

func (s *ServiceSuite) TestRecoverWrongPersonalKey() {
	record, oldKey := s.resetForRecovery("old password phrase")
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, "new password").
		Return(nil)

	wrongKey, err := s.keys.Generate()
	s.Require().NoError(err)

	_, err = s.svc.Recover(ctx, s.accountID, "new password", wrongKey)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthenticationMismatch))
	s.Equal("personal_key", dErrors.FieldOf(err))

	// Ciphertexts and fingerprint stay exactly as they were; the user can
	// retry with the right key, subject to the throttle.
	reloaded, findErr := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(findErr)
	s.Equal(record.EncryptedBundle, reloaded.EncryptedBundle)
	s.Equal(record.EncryptedRecoveryBundle, reloaded.EncryptedRecoveryBundle)
	s.Equal(identity.ReasonPasswordReset, reloaded.DeactivationReason)
	s.True(s.keys.Verify(oldKey, reloaded.PersonalKeyFingerprint))
}

func (s *ServiceSuite) TestRecoverSingleUse() {
	const newPassword = "new password phrase"
	_, oldKey := s.resetForRecovery("old password phrase")
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, newPassword).
		Return(nil)
	s.expectDeriveAccessKey(newPassword, 1)
	s.throttler.EXPECT().
		Reset(gomock.Any(), s.accountID, gomock.Any()).
		Return(nil).
		AnyTimes()

	_, err := s.svc.Recover(ctx, s.accountID, newPassword, oldKey)
	s.Require().NoError(err)

	// A successful recovery clears the password-reset state, so the record
	// is no longer awaiting recovery; replaying the consumed key finds
	// nothing to recover. A fresh reset would still reject it by fingerprint.
	_, err = s.svc.Recover(ctx, s.accountID, newPassword, oldKey)
	s.Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRecoverConsumedKeyRejectedAfterFreshReset() {
	const newPassword = "new password phrase"
	record, oldKey := s.resetForRecovery("old password phrase")
	ctx := context.Background()

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(nil).
		Times(2)
	s.accounts.EXPECT().
		VerifyPassword(gomock.Any(), s.accountID, newPassword).
		Return(nil).
		Times(2)
	s.expectDeriveAccessKey(newPassword, 1)
	s.throttler.EXPECT().
		Reset(gomock.Any(), s.accountID, gomock.Any()).
		Return(nil).
		AnyTimes()

	newKey, err := s.svc.Recover(ctx, s.accountID, newPassword, oldKey)
	s.Require().NoError(err)

	// The account resets its password again, putting the record back into
	// the awaiting-recovery state. The consumed key no longer matches the
	// rotated fingerprint and must be rejected like any wrong key.
	s.Require().NoError(s.store.Deactivate(ctx, record.ID, identity.ReasonPasswordReset))

	_, err = s.svc.Recover(ctx, s.accountID, newPassword, oldKey)
	s.True(dErrors.HasCode(err, dErrors.CodeAuthenticationMismatch))
	s.Equal("personal_key", dErrors.FieldOf(err))

	// Only the key issued by the successful recovery verifies now.
	reloaded, findErr := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(findErr)
	s.False(s.keys.Verify(oldKey, reloaded.PersonalKeyFingerprint))
	s.True(s.keys.Verify(newKey, reloaded.PersonalKeyFingerprint))
}

func (s *ServiceSuite) TestRecoverNoPendingRecord() {
	_, err := s.svc.Recover(context.Background(), s.accountID, "a password", "some key words here now ok")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRecoverThrottled() {
	_, oldKey := s.resetForRecovery("old password phrase")

	s.throttler.EXPECT().
		CheckAndIncrement(gomock.Any(), s.accountID, throttle.ActionVerifyPersonalKey).
		Return(dErrors.New(dErrors.CodeThrottled, "too many attempts"))

	_, err := s.svc.Recover(context.Background(), s.accountID, "new password", oldKey)
	s.True(dErrors.HasCode(err, dErrors.CodeThrottled))
}

func (s *ServiceSuite) TestRecoverValidation() {
	_, err := s.svc.Recover(context.Background(), s.accountID, "", "some key")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("password", dErrors.FieldOf(err))

	_, err = s.svc.Recover(context.Background(), s.accountID, "a password", "   ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("personal_key", dErrors.FieldOf(err))
}

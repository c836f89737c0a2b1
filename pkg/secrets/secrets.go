// Package secrets provides password digest and random secret helpers.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "idvault/pkg/domain-errors"
)

// GenerateKey creates 32 bytes of cryptographically secure random key
// material for use with symmetric ciphers.
func GenerateKey() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate key")
	}
	return buf, nil
}

// Generate creates a cryptographically secure random secret.
// Returns a base64-encoded string suitable for use as session identifiers,
// pepper material, etc.
func Generate() (string, error) {
	buf, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashPassword creates a bcrypt digest of an account password.
// Only the digest is ever persisted by the account store.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeValidation, "password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "password is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash password")
	}
	return string(hashed), nil
}

// VerifyPassword checks a candidate password against a bcrypt digest.
// A mismatch is an authentication mismatch, not an internal failure.
func VerifyPassword(candidate, digest string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(candidate)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.NewField(dErrors.CodeAuthenticationMismatch, "password", "password is incorrect")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify password")
	}
	return nil
}

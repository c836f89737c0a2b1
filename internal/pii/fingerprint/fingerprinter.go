// Package fingerprint produces deterministic, keyed, one-way tokens that let
// stores match attributes by equality without holding them in the clear.
package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"idvault/internal/pii"
	dErrors "idvault/pkg/domain-errors"
)

const minKeyLen = 32

// Fingerprinter computes HMAC-SHA256 tokens under a fixed key. Equal inputs
// always produce equal tokens; nothing derives the input from a token.
type Fingerprinter struct {
	key []byte
}

// New constructs a Fingerprinter. The key must be at least 32 bytes.
func New(key []byte) (*Fingerprinter, error) {
	if len(key) < minKeyLen {
		return nil, dErrors.New(dErrors.CodeValidation, "fingerprint key must be at least 32 bytes")
	}
	return &Fingerprinter{key: key}, nil
}

// Fingerprint returns the keyed token for a value.
func (f *Fingerprinter) Fingerprint(value string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// FingerprintNormalized case-folds and trims the value before fingerprinting.
// Use for identifiers entered by people, e.g. email lookup.
func (f *Fingerprinter) FingerprintNormalized(value string) string {
	return f.Fingerprint(pii.Normalize(value))
}

// Verify reports whether candidate fingerprints to token, in constant time.
func (f *Fingerprinter) Verify(candidate, token string) bool {
	return subtle.ConstantTimeCompare([]byte(f.Fingerprint(candidate)), []byte(token)) == 1
}

// SSN returns the SSN fingerprint for a bundle, or "" when no SSN is present.
func (f *Fingerprinter) SSN(b pii.Bundle) string {
	if b.SSN == "" {
		return ""
	}
	return f.Fingerprint(b.SSN)
}

// Compound returns the duplicate-detection fingerprint over
// first name, last name, zipcode, and birth year. It is present only when all
// four values are non-empty; a fingerprint of partial data would collide
// across unrelated identities, so "" is returned instead.
func (f *Fingerprinter) Compound(b pii.Bundle) string {
	values := []string{b.FirstName, b.LastName, b.Zipcode, b.DOBYear()}
	for _, v := range values {
		if v == "" {
			return ""
		}
	}
	return f.Fingerprint(strings.Join(values, ":"))
}

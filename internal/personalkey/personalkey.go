// Package personalkey generates and verifies the user-held recovery secret.
//
// A personal key is a short sequence of words the user transcribes once and
// stores offline. It is never persisted in plaintext; only a keyed
// fingerprint of the normalized form is retained, enough to reject a wrong
// guess cheaply before the expensive KDF and decrypt path runs.
package personalkey

import (
	"crypto/rand"
	"encoding/binary"
	"strings"

	"idvault/internal/pii/fingerprint"
	dErrors "idvault/pkg/domain-errors"
)

// WordCount is the fixed length of a generated key.
const WordCount = 6

// Manager generates, normalizes, and fingerprints personal keys.
type Manager struct {
	fp *fingerprint.Fingerprinter
}

// New constructs a Manager over the given fingerprinter.
func New(fp *fingerprint.Fingerprinter) (*Manager, error) {
	if fp == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "fingerprinter is required")
	}
	return &Manager{fp: fp}, nil
}

// Generate produces a fresh, cryptographically random personal key,
// independent of any existing key. The caller shows it to the user exactly
// once.
func (m *Manager) Generate() (string, error) {
	buf := make([]byte, WordCount*2)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate personal key")
	}

	words := make([]string, WordCount)
	for i := range words {
		idx := binary.BigEndian.Uint16(buf[i*2:]) % uint16(len(wordlist))
		words[i] = wordlist[idx]
	}
	return strings.Join(words, " "), nil
}

// Normalize canonicalizes user input: case-folded, with any run of spaces,
// dashes, or commas collapsed to a single space. Users copy these keys from
// paper, so separators vary.
func (m *Manager) Normalize(raw string) string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ' ' || r == '-' || r == ',' || r == '\t' || r == '\n'
	})
	return strings.Join(fields, " ")
}

// Fingerprint returns the stored verification token for a key.
func (m *Manager) Fingerprint(key string) string {
	return m.fp.Fingerprint(m.Normalize(key))
}

// Verify reports whether candidate matches the stored fingerprint. A match
// does not prove the recovery envelope will decrypt; it only gates the
// expensive path.
func (m *Manager) Verify(candidate, storedFingerprint string) bool {
	if candidate == "" || storedFingerprint == "" {
		return false
	}
	return m.fp.Verify(m.Normalize(candidate), storedFingerprint)
}

// Package encryption implements the authenticated envelope used to protect
// attribute bundles at rest. A blob is useless without the caller-supplied
// secret and the owning account's identifier.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	dErrors "idvault/pkg/domain-errors"
)

// Blob layout for format version 1:
//
//	version(1) | kdf_salt(16) | nonce(12) | ciphertext+tag
//
// The version byte lets future implementations change KDF cost or cipher
// without breaking old records; Decrypt dispatches on it.
const (
	FormatVersion = 1

	saltLen  = 16
	nonceLen = 12
	keyLen   = 32

	minBlobLen = 1 + saltLen + nonceLen + 16 // 16 = GCM tag
)

// KDFParams carries argon2id cost parameters. Production values come from
// configuration; tests construct cheap ones.
type KDFParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultKDFParams are the production argon2id costs.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

// Config configures an Encryptor. Pepper is server-held key material mixed
// into every derived key; it may be supplied wrapped by a KeyWrapper.
type Config struct {
	KDF    KDFParams
	Pepper []byte

	// WrappedPepper, when set together with Wrapper, is unwrapped at
	// construction in place of Pepper.
	WrappedPepper []byte
	Wrapper       KeyWrapper
}

// Encryptor performs authenticated envelope encryption keyed by a
// caller-supplied secret plus record-owner context.
type Encryptor struct {
	kdf    KDFParams
	pepper []byte
}

// New constructs an Encryptor from the given config.
func New(cfg Config) (*Encryptor, error) {
	if cfg.KDF.Time == 0 || cfg.KDF.MemoryKiB == 0 || cfg.KDF.Threads == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "kdf parameters must be non-zero")
	}

	pepper := cfg.Pepper
	if len(cfg.WrappedPepper) > 0 {
		if cfg.Wrapper == nil {
			return nil, dErrors.New(dErrors.CodeValidation, "wrapped pepper requires a key wrapper")
		}
		unwrapped, err := cfg.Wrapper.Unwrap(cfg.WrappedPepper)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not unwrap pepper")
		}
		pepper = unwrapped
	}
	if len(pepper) < keyLen {
		return nil, dErrors.New(dErrors.CodeValidation, "pepper must be at least 32 bytes")
	}

	return &Encryptor{kdf: cfg.KDF, pepper: pepper}, nil
}

// Encrypt seals plaintext under a key derived from secret, bound to context
// (the owning account's identifier). A fresh salt and nonce are drawn for
// every call, so the same inputs never produce identical blobs.
func (e *Encryptor) Encrypt(plaintext []byte, secret, context string) ([]byte, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "secret cannot be empty")
	}
	if context == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "encryption context cannot be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate salt")
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}

	aead, err := e.aead(secret, salt)
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, minBlobLen+len(plaintext))
	blob = append(blob, FormatVersion)
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, []byte(context))
	return blob, nil
}

// Decrypt opens a blob produced by Encrypt. It fails with a
// decryption-failed domain error on a wrong secret, a wrong context, a
// tampered blob, or an unknown format version. It never returns partial
// plaintext.
func (e *Encryptor) Decrypt(blob []byte, secret, context string) ([]byte, error) {
	if len(blob) < minBlobLen {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "ciphertext blob is truncated")
	}

	switch blob[0] {
	case FormatVersion:
		return e.decryptV1(blob, secret, context)
	default:
		return nil, dErrors.New(dErrors.CodeDecryptionFailed,
			fmt.Sprintf("unsupported ciphertext format version %d", blob[0]))
	}
}

func (e *Encryptor) decryptV1(blob []byte, secret, context string) ([]byte, error) {
	salt := blob[1 : 1+saltLen]
	nonce := blob[1+saltLen : 1+saltLen+nonceLen]
	ciphertext := blob[1+saltLen+nonceLen:]

	aead, err := e.aead(secret, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(context))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "ciphertext authentication failed")
	}
	return plaintext, nil
}

// aead derives the symmetric key from the secret, salt, and pepper, and
// returns the AES-256-GCM primitive for it. Key derivation is intentionally
// CPU/memory-hard; callers treat it as an expensive blocking operation.
func (e *Encryptor) aead(secret string, salt []byte) (cipher.AEAD, error) {
	peppered := make([]byte, 0, len(secret)+len(e.pepper))
	peppered = append(peppered, secret...)
	peppered = append(peppered, e.pepper...)

	key := argon2.IDKey(peppered, salt, e.kdf.Time, e.kdf.MemoryKiB, e.kdf.Threads, keyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize gcm")
	}
	return aead, nil
}

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	dErrors "idvault/pkg/domain-errors"
)

// Sealer layout for format version 2:
//
//	version(1) | nonce(12) | ciphertext+tag
//
// There is no KDF salt: the key is supplied raw, so sealing and opening cost
// one AES-GCM pass instead of a memory-hard derivation.
const (
	SealerFormatVersion = 2

	minSealedLen = 1 + nonceLen + 16
)

// Sealer performs authenticated encryption under a raw 32-byte key with a
// caller-supplied context bound as additional data. It serves hot paths such
// as the session cache, where the password KDF has already run once and the
// blobs only need to be tied to a server-held key.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer constructs a Sealer from a 32-byte key. The AEAD is built once;
// Seal and Open are cheap.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keyLen {
		return nil, dErrors.New(dErrors.CodeValidation, "sealer key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize gcm")
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext bound to context. A fresh nonce is drawn per call.
func (s *Sealer) Seal(plaintext []byte, context string) ([]byte, error) {
	if context == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "encryption context cannot be empty")
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}

	blob := make([]byte, 0, minSealedLen+len(plaintext))
	blob = append(blob, SealerFormatVersion)
	blob = append(blob, nonce...)
	blob = s.aead.Seal(blob, nonce, plaintext, []byte(context))
	return blob, nil
}

// Open decrypts a blob produced by Seal. A wrong key, wrong context, or
// tampered blob fails with a decryption-failed domain error.
func (s *Sealer) Open(blob []byte, context string) ([]byte, error) {
	if len(blob) < minSealedLen {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "sealed blob is truncated")
	}
	if blob[0] != SealerFormatVersion {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "unsupported sealed blob format version")
	}
	nonce, ciphertext := blob[1:1+nonceLen], blob[1+nonceLen:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(context))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "sealed blob authentication failed")
	}
	return plaintext, nil
}

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	dErrors "idvault/pkg/domain-errors"
)

// KeyWrapper is the KMS-equivalent oracle that wraps and unwraps master key
// material. The engine treats it as opaque and is not responsible for its
// availability or rotation policy.
type KeyWrapper interface {
	Wrap(key []byte) ([]byte, error)
	Unwrap(blob []byte) ([]byte, error)
}

// LocalKeyWrapper wraps keys under a locally held master key with
// AES-256-GCM. It stands in for an external KMS in development and tests.
type LocalKeyWrapper struct {
	aead cipher.AEAD
}

// NewLocalKeyWrapper constructs a wrapper from a 32-byte master key.
func NewLocalKeyWrapper(masterKey []byte) (*LocalKeyWrapper, error) {
	if len(masterKey) != keyLen {
		return nil, dErrors.New(dErrors.CodeValidation, "master key must be 32 bytes")
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize gcm")
	}
	return &LocalKeyWrapper{aead: aead}, nil
}

// Wrap seals key material under the master key.
func (w *LocalKeyWrapper) Wrap(key []byte) ([]byte, error) {
	nonce := make([]byte, w.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}
	return w.aead.Seal(nonce, nonce, key, nil), nil
}

// Unwrap opens a blob produced by Wrap.
func (w *LocalKeyWrapper) Unwrap(blob []byte) ([]byte, error) {
	if len(blob) < w.aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "wrapped key blob is truncated")
	}
	nonce, ciphertext := blob[:w.aead.NonceSize()], blob[w.aead.NonceSize():]
	key, err := w.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeDecryptionFailed, "wrapped key authentication failed")
	}
	return key, nil
}

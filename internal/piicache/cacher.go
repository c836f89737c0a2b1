// Package piicache keeps decrypted identity attributes available for the
// duration of an authenticated session without re-running the password KDF
// on every read. The bundle is re-encrypted under a server-held cache key
// with the session ID bound as context, so a leaked cache entry is useless
// without that key and cannot be replayed into another session.
package piicache

import (
	"context"
	"log/slog"
	"time"

	"idvault/internal/encryption"
	"idvault/internal/pii"
	id "idvault/pkg/domain"
	dErrors "idvault/pkg/domain-errors"
	"idvault/pkg/secrets"
)

// DefaultTTL bounds how long a cached bundle outlives its last write.
const DefaultTTL = 30 * time.Minute

// PrimaryDecrypter opens a record's password-path envelope. The identity
// service implements it.
type PrimaryDecrypter interface {
	DecryptPrimary(ctx context.Context, recordID id.RecordID, password string) (pii.Bundle, error)
}

// Store is the session-scoped blob store behind the cacher.
//
// Error Contract: Get returns sentinel.ErrNotFound (wrapped) for a missing
// or expired entry.
type Store interface {
	Put(ctx context.Context, sessionID id.SessionID, blob []byte, ttl time.Duration) error
	Get(ctx context.Context, sessionID id.SessionID) ([]byte, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}

// Cacher decrypts a record once per session and serves subsequent reads
// from the re-encrypted cache entry. Cache entries are sealed under the raw
// cache key directly; the password KDF never runs on a cache read.
type Cacher struct {
	decrypter PrimaryDecrypter
	store     Store
	sealer    *encryption.Sealer
	cacheKey  []byte
	ttl       time.Duration
	logger    *slog.Logger
}

// Option configures the Cacher.
type Option func(*Cacher)

// WithTTL overrides the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cacher) { c.ttl = ttl }
}

// WithCacheKey supplies the 32-byte cache key instead of generating one.
// Required when multiple processes share the cache store.
func WithCacheKey(key []byte) Option {
	return func(c *Cacher) { c.cacheKey = key }
}

// WithLogger sets the cacher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cacher) { c.logger = logger }
}

// New constructs a Cacher. Without WithCacheKey a random per-process key is
// generated, which invalidates all cached entries on restart.
func New(decrypter PrimaryDecrypter, store Store, opts ...Option) (*Cacher, error) {
	if decrypter == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "decrypter is required")
	}
	if store == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "cache store is required")
	}

	c := &Cacher{
		decrypter: decrypter,
		store:     store,
		ttl:       DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheKey == nil {
		key, err := secrets.GenerateKey()
		if err != nil {
			return nil, err
		}
		c.cacheKey = key
	}
	sealer, err := encryption.NewSealer(c.cacheKey)
	if err != nil {
		return nil, err
	}
	c.sealer = sealer
	return c, nil
}

// Save decrypts the record with the user's password, caches the bundle under
// the session, and returns it. This is the only point in a session where the
// password KDF runs.
func (c *Cacher) Save(ctx context.Context, sessionID id.SessionID, recordID id.RecordID, password string) (pii.Bundle, error) {
	if sessionID.IsZero() {
		return pii.Bundle{}, dErrors.New(dErrors.CodeValidation, "session ID is required")
	}

	bundle, err := c.decrypter.DecryptPrimary(ctx, recordID, password)
	if err != nil {
		return pii.Bundle{}, err
	}
	if err := c.put(ctx, sessionID, bundle); err != nil {
		return pii.Bundle{}, err
	}
	return bundle, nil
}

// Fetch returns the cached bundle for the session, or a not-found error when
// the entry is missing or expired and the caller must re-authenticate.
func (c *Cacher) Fetch(ctx context.Context, sessionID id.SessionID) (pii.Bundle, error) {
	blob, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return pii.Bundle{}, dErrors.Wrap(err, dErrors.CodeNotFound, "no cached attributes for session")
	}

	plaintext, err := c.sealer.Open(blob, sessionID.String())
	if err != nil {
		// A cache entry this process cannot open is garbage (key rotation,
		// tampering); drop it so the caller re-authenticates cleanly.
		if c.logger != nil {
			c.logger.WarnContext(ctx, "dropping undecryptable cache entry",
				"session_id", sessionID.String(),
			)
		}
		_ = c.store.Delete(ctx, sessionID)
		return pii.Bundle{}, dErrors.Wrap(err, dErrors.CodeNotFound, "cached attributes unreadable")
	}
	return pii.FromCanonical(plaintext)
}

// Refresh overwrites the session's cached bundle, e.g. after recovery
// rewrote the record.
func (c *Cacher) Refresh(ctx context.Context, sessionID id.SessionID, bundle pii.Bundle) error {
	if sessionID.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "session ID is required")
	}
	return c.put(ctx, sessionID, bundle)
}

// Delete removes the session's cached bundle. Call on logout.
func (c *Cacher) Delete(ctx context.Context, sessionID id.SessionID) error {
	return c.store.Delete(ctx, sessionID)
}

func (c *Cacher) put(ctx context.Context, sessionID id.SessionID, bundle pii.Bundle) error {
	canonical, err := bundle.Canonical()
	if err != nil {
		return err
	}
	blob, err := c.sealer.Seal(canonical, sessionID.String())
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, sessionID, blob, c.ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not cache session attributes")
	}
	return nil
}

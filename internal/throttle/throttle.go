// Package throttle bounds repeated authentication and decryption attempts.
// Key derivation is deliberately expensive, so the engine refuses an attempt
// before any cryptographic work once an account exceeds its window budget.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	id "idvault/pkg/domain"
	dErrors "idvault/pkg/domain-errors"
)

// Action identifies the guarded operation.
type Action string

const (
	ActionVerifyPassword    Action = "verify_password"
	ActionVerifyPersonalKey Action = "verify_personal_key"
	ActionIDVResolution     Action = "idv_resolution"
)

// Limit bounds one action: at most MaxAttempts within Window.
type Limit struct {
	MaxAttempts int
	Window      time.Duration
}

// Config maps actions to limits. Actions without an entry fall back to
// Default.
type Config struct {
	Default Limit
	Actions map[Action]Limit
}

// Store counts attempts per key within an expiry window.
//
// Error Contract: Increment returns the attempt count including the current
// one; infrastructure failures are returned wrapped.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

// Service is the throttle consulted before every KDF-bound operation.
type Service struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a logger for throttle decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New constructs a throttle service.
func New(store Store, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("throttle store is required")
	}
	if cfg.Default.MaxAttempts <= 0 || cfg.Default.Window <= 0 {
		return nil, fmt.Errorf("default throttle limit is required")
	}
	s := &Service{store: store, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckAndIncrement counts one attempt and refuses the operation with a
// throttled domain error once the account exceeds the action's budget.
func (s *Service) CheckAndIncrement(ctx context.Context, accountID id.AccountID, action Action) error {
	limit := s.limitFor(action)
	key := fmt.Sprintf("throttle:%s:%s", action, accountID)

	attempts, err := s.store.Increment(ctx, key, limit.Window)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "throttle check failed")
	}
	if attempts > limit.MaxAttempts {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "attempt throttled",
				"action", string(action),
				"account_id", accountID.String(),
				"attempts", attempts,
			)
		}
		return dErrors.New(dErrors.CodeThrottled,
			fmt.Sprintf("too many %s attempts, retry after cool-down", action))
	}
	return nil
}

// Reset clears the attempt count after a successful operation.
func (s *Service) Reset(ctx context.Context, accountID id.AccountID, action Action) error {
	key := fmt.Sprintf("throttle:%s:%s", action, accountID)
	if err := s.store.Reset(ctx, key); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "throttle reset failed")
	}
	return nil
}

func (s *Service) limitFor(action Action) Limit {
	if limit, ok := s.cfg.Actions[action]; ok {
		return limit
	}
	return s.cfg.Default
}

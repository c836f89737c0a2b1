package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "idvault/pkg/domain"
	dErrors "idvault/pkg/domain-errors"
)

func testConfig() Config {
	return Config{
		Default: Limit{MaxAttempts: 3, Window: time.Minute},
		Actions: map[Action]Limit{
			ActionVerifyPersonalKey: {MaxAttempts: 2, Window: time.Minute},
		},
	}
}

func TestCheckAndIncrementAllowsWithinBudget(t *testing.T) {
	ctx := context.Background()
	svc, err := New(NewMemory(), testConfig())
	require.NoError(t, err)
	accountID := id.NewAccountID()

	for i := 0; i < 3; i++ {
		assert.NoError(t, svc.CheckAndIncrement(ctx, accountID, ActionVerifyPassword))
	}

	err = svc.CheckAndIncrement(ctx, accountID, ActionVerifyPassword)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeThrottled))
}

func TestPerActionLimits(t *testing.T) {
	ctx := context.Background()
	svc, err := New(NewMemory(), testConfig())
	require.NoError(t, err)
	accountID := id.NewAccountID()

	require.NoError(t, svc.CheckAndIncrement(ctx, accountID, ActionVerifyPersonalKey))
	require.NoError(t, svc.CheckAndIncrement(ctx, accountID, ActionVerifyPersonalKey))

	err = svc.CheckAndIncrement(ctx, accountID, ActionVerifyPersonalKey)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeThrottled))

	// A different action has its own budget.
	assert.NoError(t, svc.CheckAndIncrement(ctx, accountID, ActionVerifyPassword))
}

func TestActionsAreScopedPerAccount(t *testing.T) {
	ctx := context.Background()
	svc, err := New(NewMemory(), testConfig())
	require.NoError(t, err)

	throttled := id.NewAccountID()
	for i := 0; i < 4; i++ {
		_ = svc.CheckAndIncrement(ctx, throttled, ActionVerifyPassword)
	}

	assert.NoError(t, svc.CheckAndIncrement(ctx, id.NewAccountID(), ActionVerifyPassword))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	svc, err := New(NewMemory(), testConfig())
	require.NoError(t, err)
	accountID := id.NewAccountID()

	for i := 0; i < 4; i++ {
		_ = svc.CheckAndIncrement(ctx, accountID, ActionVerifyPassword)
	}
	require.NoError(t, svc.Reset(ctx, accountID, ActionVerifyPassword))

	assert.NoError(t, svc.CheckAndIncrement(ctx, accountID, ActionVerifyPassword))
}

func TestWindowExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	current := time.Now()
	store.now = func() time.Time { return current }

	svc, err := New(store, testConfig())
	require.NoError(t, err)
	accountID := id.NewAccountID()

	for i := 0; i < 4; i++ {
		_ = svc.CheckAndIncrement(ctx, accountID, ActionVerifyPassword)
	}
	err = svc.CheckAndIncrement(ctx, accountID, ActionVerifyPassword)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeThrottled))

	// After the window passes the budget is fresh.
	current = current.Add(2 * time.Minute)
	assert.NoError(t, svc.CheckAndIncrement(ctx, accountID, ActionVerifyPassword))
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, testConfig())
	assert.Error(t, err)

	_, err = New(NewMemory(), Config{})
	assert.Error(t, err)
}

package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "idvault/pkg/domain-errors"
)

func TestParseAccountID(t *testing.T) {
	raw := uuid.New()

	id, err := ParseAccountID(raw.String())
	require.NoError(t, err)
	assert.Equal(t, raw.String(), id.String())

	_, err = ParseAccountID("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = ParseAccountID("not-a-uuid")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestIsZero(t *testing.T) {
	assert.True(t, AccountID(uuid.Nil).IsZero())
	assert.False(t, NewAccountID().IsZero())
	assert.True(t, SessionID(uuid.Nil).IsZero())
	assert.False(t, NewRecordID().IsZero())
}

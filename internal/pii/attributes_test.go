package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRoundTrip(t *testing.T) {
	b := Bundle{
		FirstName: "Jane",
		LastName:  "Doe",
		Address1:  "1 Main St",
		City:      "Springfield",
		State:     "VA",
		Zipcode:   "22030",
		DOB:       "1980-03-15",
		SSN:       "111223333",
	}

	data, err := b.Canonical()
	require.NoError(t, err)

	got, err := FromCanonical(data)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestCanonicalIsDeterministic(t *testing.T) {
	b := Bundle{FirstName: "Jane", SSN: "111223333"}

	first, err := b.Canonical()
	require.NoError(t, err)
	second, err := b.Canonical()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFromCanonicalMalformed(t *testing.T) {
	_, err := FromCanonical([]byte("{not json"))
	assert.Error(t, err)
}

func TestDOBYear(t *testing.T) {
	assert.Equal(t, "1980", Bundle{DOB: "1980-03-15"}.DOBYear())
	assert.Equal(t, "", Bundle{}.DOBYear())
	assert.Equal(t, "", Bundle{DOB: "03/15/1980"}.DOBYear())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "jane@example.com", Normalize("  Jane@Example.COM "))
	assert.Equal(t, "", Normalize("   "))
}

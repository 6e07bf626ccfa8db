package sealer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	s, err := New("test-secret")
	require.NoError(t, err)

	sealed, err := s.Seal("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "v1:"))
	assert.NotContains(t, sealed, "hunter2")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, err := New("test-secret")
	require.NoError(t, err)

	a, err := s.Seal("same")
	require.NoError(t, err)
	b, err := s.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsForeignKeyAndGarbage(t *testing.T) {
	s1, err := New("key-one")
	require.NoError(t, err)
	s2, err := New("key-two")
	require.NoError(t, err)

	sealed, err := s1.Seal("secret")
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidSealed)

	_, err = s1.Open("plain-text")
	assert.ErrorIs(t, err, ErrInvalidSealed)

	_, err = s1.Open("v1:!!!")
	assert.ErrorIs(t, err, ErrInvalidSealed)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("  ")
	assert.ErrorIs(t, err, ErrMissingKey)
}

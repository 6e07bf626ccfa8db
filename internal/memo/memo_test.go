package memo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUsesUnambiguousAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		token, err := Generate()
		require.NoError(t, err)
		require.Len(t, token, Length)
		for _, r := range token {
			assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected rune %q", r)
		}
		assert.NotContains(t, token, "0")
		assert.NotContains(t, token, "O")
		assert.NotContains(t, token, "I")
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABCD2345", Normalize("  abcd2345 "))
}

package custody

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGeneratorProducesDistinctURLSafeTokens(t *testing.T) {
	gen := NewTokenGenerator(32)

	first, err := gen.NewToken()
	require.NoError(t, err)
	second, err := gen.NewToken()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	raw, err := base64.RawURLEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestTokenGeneratorEnforcesMinimumSize(t *testing.T) {
	token, err := NewTokenGenerator(4).NewToken()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, minLinkTokenBytes)
}

func TestShareURL(t *testing.T) {
	assert.Equal(t, "https://cautela.example/assinar/abc", ShareURL("https://cautela.example/assinar/", "abc"))
	assert.Equal(t, "abc", ShareURL("", "abc"))
}

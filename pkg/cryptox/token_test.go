package cryptox_test

import (
	"testing"

	"github.com/bluewhale/auth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	t.Run("rejects non-positive sizes", func(t *testing.T) {
		_, err := cryptox.GenerateToken(0)
		require.Error(t, err)
		_, err = cryptox.GenerateToken(-1)
		require.Error(t, err)
	})

	t.Run("tokens are unique and URL-safe", func(t *testing.T) {
		seen := make(map[string]struct{})
		for range 50 {
			tok, err := cryptox.GenerateToken(cryptox.TokenSize512)
			require.NoError(t, err)
			require.NotContains(t, tok, "+")
			require.NotContains(t, tok, "/")
			require.NotContains(t, tok, "=")

			_, dup := seen[tok]
			require.False(t, dup)
			seen[tok] = struct{}{}
		}
	})
}

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	a := cryptox.FingerprintToken("token-a")
	b := cryptox.FingerprintToken("token-b")

	require.Equal(t, a, cryptox.FingerprintToken("token-a"))
	require.NotEqual(t, a, b)
	require.Len(t, a, 43) // SHA-256, base64url without padding
}

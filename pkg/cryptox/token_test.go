package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintToken(t *testing.T) {
	t.Parallel()

	a := FingerprintToken("verify-token-1")
	require.Len(t, a, 43)
	require.Equal(t, a, FingerprintToken("verify-token-1"), "fingerprint must be deterministic")
	require.NotEqual(t, a, FingerprintToken("verify-token-2"))
	require.NotContains(t, a, "verify-token-1")
}

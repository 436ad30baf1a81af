package conditions

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(seed byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
}

func testEd25519(t *testing.T, seed byte) *Ed25519 {
	t.Helper()
	e, err := NewEd25519(testKey(seed).Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return e
}

func testThreshold(t *testing.T, n int, subs ...Condition) *Threshold {
	t.Helper()
	th, err := NewThreshold(n, subs...)
	require.NoError(t, err)
	return th
}

// requireSameCommitment asserts kind, fingerprint, cost and subtypes match.
func requireSameCommitment(t *testing.T, want, got Condition) {
	t.Helper()
	require.Equal(t, want.Type(), got.Type())
	require.Equal(t, want.Fingerprint(), got.Fingerprint())
	require.Equal(t, want.Cost(), got.Cost())
	require.Equal(t, want.Subtypes(), got.Subtypes())
}

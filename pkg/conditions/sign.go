package conditions

import (
	"bytes"
	"crypto/ed25519"
)

// SignTreeEd25519 signs every unsigned ed25519 node of c whose public key
// matches priv, descending into every branch. Nodes below a prefix sign the
// prefixed message. It mutates c in place and returns the number of
// signatures added; already signed nodes are left untouched.
func SignTreeEd25519(c Condition, priv ed25519.PrivateKey, msg []byte) (int, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return 0, validationError("privateKey must be %d bytes", ed25519.PrivateKeySize)
	}
	pub := priv.Public().(ed25519.PublicKey)

	signed := 0
	Walk(c, msg, func(node Condition, m []byte) bool {
		leaf, ok := node.(*Ed25519)
		if !ok || leaf.Signature != nil || !bytes.Equal(leaf.PublicKey, pub) {
			return true
		}
		leaf.Sign(priv, m)
		signed++
		return true
	})
	return signed, nil
}

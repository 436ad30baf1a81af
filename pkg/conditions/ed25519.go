package conditions

import (
	"bytes"
	"crypto/ed25519"

	"golang.org/x/crypto/cryptobyte"
)

const ed25519Cost = 131072

// Ed25519 is satisfied by an Ed25519 signature of the message under
// PublicKey. Signature is nil until the node is signed.
type Ed25519 struct {
	PublicKey ed25519.PublicKey
	Signature []byte
}

// NewEd25519 returns an unsigned ed25519 condition.
func NewEd25519(pub ed25519.PublicKey) (*Ed25519, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, validationError("\"publicKey\" must be %d bytes", ed25519.PublicKeySize)
	}
	return &Ed25519{PublicKey: bytes.Clone(pub)}, nil
}

func (e *Ed25519) Type() *Type { return ed25519Type }

func (e *Ed25519) Fingerprint() []byte {
	return fingerprintOf(func(b *cryptobyte.Builder) {
		addOctetString(b, contextTag(0), e.PublicKey)
	})
}

func (e *Ed25519) Cost() uint64 { return ed25519Cost }

func (e *Ed25519) Subtypes() TypeMask { return Mask(ed25519Type.ID) }

func (e *Ed25519) IsFulfilled() bool {
	return len(e.Signature) == ed25519.SignatureSize
}

// Sign attaches a signature of msg. The key must belong to PublicKey.
func (e *Ed25519) Sign(priv ed25519.PrivateKey, msg []byte) {
	e.Signature = ed25519.Sign(priv, msg)
}

func (e *Ed25519) toJSON(obj map[string]any) {
	obj["publicKey"] = EncodeBase64(e.PublicKey)
	if e.Signature != nil {
		obj["signature"] = EncodeBase64(e.Signature)
	}
}

func (e *Ed25519) writeFulfillment(b *cryptobyte.Builder) {
	addOctetString(b, contextTag(0), e.PublicKey)
	addOctetString(b, contextTag(1), e.Signature)
}

func (e *Ed25519) validate(msg []byte) bool {
	if !e.IsFulfilled() {
		return false
	}
	return ed25519.Verify(e.PublicKey, msg, e.Signature)
}

func (e *Ed25519) eachChild([]byte, func(Condition, []byte)) {}

func ed25519FromJSON(obj map[string]any, _ int) (Condition, error) {
	pub, err := jsonBase64(obj, "publicKey")
	if err != nil {
		return nil, err
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, validationError("\"publicKey\" must be %d bytes", ed25519.PublicKeySize)
	}
	e := &Ed25519{PublicKey: pub}
	if _, ok := obj["signature"]; ok {
		sig, err := jsonBase64(obj, "signature")
		if err != nil {
			return nil, err
		}
		if len(sig) != ed25519.SignatureSize {
			return nil, validationError("\"signature\" must be %d bytes", ed25519.SignatureSize)
		}
		e.Signature = sig
	}
	return e, nil
}

func readEd25519Fulfillment(body cryptobyte.String, _ int) (Condition, error) {
	var pub, sig cryptobyte.String
	if !body.ReadASN1(&pub, contextTag(0)) ||
		!body.ReadASN1(&sig, contextTag(1)) ||
		!body.Empty() ||
		len(pub) != ed25519.PublicKeySize ||
		len(sig) != ed25519.SignatureSize {
		return nil, newError(ErrMalformedFulfillment, "invalid ed25519 fulfillment")
	}
	return &Ed25519{PublicKey: bytes.Clone(pub), Signature: bytes.Clone(sig)}, nil
}

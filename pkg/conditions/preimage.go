package conditions

import (
	"bytes"
	"crypto/sha256"

	"golang.org/x/crypto/cryptobyte"
)

// Preimage is satisfied by revealing bytes whose SHA-256 is the fingerprint.
type Preimage struct {
	Preimage []byte
}

// NewPreimage returns a fulfilled preimage condition.
func NewPreimage(preimage []byte) *Preimage {
	return &Preimage{Preimage: bytes.Clone(preimage)}
}

func (p *Preimage) Type() *Type { return preimageType }

func (p *Preimage) Fingerprint() []byte {
	sum := sha256.Sum256(p.Preimage)
	return sum[:]
}

func (p *Preimage) Cost() uint64 { return uint64(len(p.Preimage)) }

func (p *Preimage) Subtypes() TypeMask { return Mask(preimageType.ID) }

func (p *Preimage) IsFulfilled() bool { return true }

func (p *Preimage) toJSON(obj map[string]any) {
	obj["preimage"] = EncodeBase64(p.Preimage)
}

func (p *Preimage) writeFulfillment(b *cryptobyte.Builder) {
	addOctetString(b, contextTag(0), p.Preimage)
}

// The fingerprint already binds the preimage.
func (p *Preimage) validate([]byte) bool { return true }

func (p *Preimage) eachChild([]byte, func(Condition, []byte)) {}

func preimageFromJSON(obj map[string]any, _ int) (Condition, error) {
	preimage, err := jsonBase64(obj, "preimage")
	if err != nil {
		return nil, err
	}
	return &Preimage{Preimage: preimage}, nil
}

func readPreimageFulfillment(body cryptobyte.String, _ int) (Condition, error) {
	var preimage cryptobyte.String
	if !body.ReadASN1(&preimage, contextTag(0)) || !body.Empty() {
		return nil, newError(ErrMalformedFulfillment, "invalid preimage fulfillment")
	}
	return &Preimage{Preimage: bytes.Clone(preimage)}, nil
}

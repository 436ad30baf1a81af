package conditions

import (
	"bytes"
	"math"

	"golang.org/x/crypto/cryptobyte"
)

const compoundOverhead = 1024

// Prefix evaluates its subcondition against Prefix‖message, for messages
// of at most MaxMessageLength bytes.
type Prefix struct {
	Prefix           []byte
	MaxMessageLength uint32
	Subcondition     Condition
}

// NewPrefix wraps sub.
func NewPrefix(prefix []byte, maxMessageLength uint32, sub Condition) *Prefix {
	return &Prefix{Prefix: bytes.Clone(prefix), MaxMessageLength: maxMessageLength, Subcondition: sub}
}

func (p *Prefix) Type() *Type { return prefixType }

func (p *Prefix) Fingerprint() []byte {
	return fingerprintOf(func(b *cryptobyte.Builder) {
		addOctetString(b, contextTag(0), p.Prefix)
		b.AddASN1Int64WithTag(int64(p.MaxMessageLength), contextTag(1))
		b.AddASN1(constructedTag(2), func(b *cryptobyte.Builder) {
			addCondition(b, p.Subcondition)
		})
	})
}

func (p *Prefix) Cost() uint64 {
	cost := addCost(uint64(len(p.Prefix)), uint64(p.MaxMessageLength))
	cost = addCost(cost, p.Subcondition.Cost())
	return addCost(cost, compoundOverhead)
}

func (p *Prefix) Subtypes() TypeMask {
	return Mask(prefixType.ID) | p.Subcondition.Subtypes()
}

func (p *Prefix) IsFulfilled() bool {
	return p.Subcondition.IsFulfilled()
}

func (p *Prefix) toJSON(obj map[string]any) {
	obj["prefix"] = EncodeBase64(p.Prefix)
	obj["maxMessageLength"] = p.MaxMessageLength
	obj["subfulfillment"] = ConditionToJSON(p.Subcondition)
}

func (p *Prefix) writeFulfillment(b *cryptobyte.Builder) {
	addOctetString(b, contextTag(0), p.Prefix)
	b.AddASN1Int64WithTag(int64(p.MaxMessageLength), contextTag(1))
	b.AddASN1(constructedTag(2), func(b *cryptobyte.Builder) {
		addFulfillment(b, p.Subcondition)
	})
}

func (p *Prefix) prefixed(msg []byte) []byte {
	out := make([]byte, 0, len(p.Prefix)+len(msg))
	out = append(out, p.Prefix...)
	return append(out, msg...)
}

func (p *Prefix) validate(msg []byte) bool {
	if uint64(len(msg)) > uint64(p.MaxMessageLength) {
		return false
	}
	return p.Subcondition.validate(p.prefixed(msg))
}

func (p *Prefix) eachChild(msg []byte, fn func(Condition, []byte)) {
	fn(p.Subcondition, p.prefixed(msg))
}

func prefixFromJSON(obj map[string]any, depth int) (Condition, error) {
	prefix, err := jsonBase64(obj, "prefix")
	if err != nil {
		return nil, err
	}
	maxLen, err := jsonUint(obj, "maxMessageLength", math.MaxUint32)
	if err != nil {
		return nil, err
	}
	raw, ok := obj["subfulfillment"]
	if !ok {
		return nil, validationError("\"subfulfillment\" is required")
	}
	sub, err := conditionFromJSON(raw, depth+1)
	if err != nil {
		return nil, err
	}
	return &Prefix{Prefix: prefix, MaxMessageLength: uint32(maxLen), Subcondition: sub}, nil
}

func readPrefixFulfillment(body cryptobyte.String, depth int) (Condition, error) {
	var (
		prefix cryptobyte.String
		maxLen int64
		inner  cryptobyte.String
	)
	if !body.ReadASN1(&prefix, contextTag(0)) ||
		!body.ReadASN1Int64WithTag(&maxLen, contextTag(1)) ||
		maxLen < 0 || maxLen > math.MaxUint32 ||
		!body.ReadASN1(&inner, constructedTag(2)) ||
		!body.Empty() {
		return nil, newError(ErrMalformedFulfillment, "invalid prefix fulfillment")
	}
	sub, err := readFulfillment(&inner, depth+1)
	if err != nil {
		return nil, err
	}
	if !inner.Empty() {
		return nil, newError(ErrMalformedFulfillment, "trailing bytes in prefix subfulfillment")
	}
	return &Prefix{Prefix: bytes.Clone(prefix), MaxMessageLength: uint32(maxLen), Subcondition: sub}, nil
}

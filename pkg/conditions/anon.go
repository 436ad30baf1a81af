package conditions

import (
	"bytes"
	"crypto/sha256"
	"math"

	"golang.org/x/crypto/cryptobyte"
)

// Anon is a condition known only by its commitment. It is what
// DecodeCondition returns and what unrevealed threshold branches decode to.
// It is never fulfilled.
type Anon struct {
	typ         *Type
	fingerprint []byte
	cost        uint64
	subtypes    TypeMask
}

// NewAnon builds a commitment of kind t. subtypes lists descendant kinds;
// t's own kind is always included.
func NewAnon(t *Type, fingerprint []byte, cost uint64, subtypes TypeMask) *Anon {
	return &Anon{
		typ:         t,
		fingerprint: fingerprint,
		cost:        cost,
		subtypes:    subtypes | Mask(t.ID),
	}
}

func (a *Anon) Type() *Type { return a.typ }

func (a *Anon) Fingerprint() []byte { return a.fingerprint }

func (a *Anon) Cost() uint64 { return a.cost }

func (a *Anon) Subtypes() TypeMask { return a.subtypes }

func (a *Anon) IsFulfilled() bool { return false }

func (a *Anon) toJSON(obj map[string]any) {
	obj["fingerprint"] = EncodeBase64(a.fingerprint)
	obj["cost"] = a.cost
	if a.typ.compound {
		obj["subtypes"] = publicSubtypes(a).Names()
	}
}

func (a *Anon) writeFulfillment(*cryptobyte.Builder) {
	panic("conditions: anon condition has no fulfillment")
}

func (a *Anon) validate([]byte) bool { return false }

func (a *Anon) eachChild([]byte, func(Condition, []byte)) {}

// Equal reports whether a and c commit to the same condition.
func (a *Anon) Equal(c Condition) bool {
	return a.typ == c.Type() &&
		bytes.Equal(a.fingerprint, c.Fingerprint()) &&
		a.cost == c.Cost() &&
		a.subtypes == c.Subtypes()
}

func anonFromJSON(t *Type, obj map[string]any) (Condition, error) {
	fingerprint, err := jsonBase64(obj, "fingerprint")
	if err != nil {
		return nil, err
	}
	if len(fingerprint) != sha256.Size {
		return nil, validationError("\"fingerprint\" must be %d bytes", sha256.Size)
	}
	cost, err := jsonUint(obj, "cost", math.MaxInt64)
	if err != nil {
		return nil, err
	}
	var subtypes TypeMask
	if raw, ok := obj["subtypes"]; ok {
		names, ok := jsonStrings(raw)
		if !ok {
			return nil, validationError("\"subtypes\" must be an array of type names")
		}
		for _, name := range names {
			st, err := LookupName(name)
			if err != nil {
				return nil, validationError("unknown subtype %q", name)
			}
			subtypes |= Mask(st.ID)
		}
	}
	return NewAnon(t, fingerprint, cost, subtypes), nil
}

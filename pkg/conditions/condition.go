package conditions

import (
	"math"
	"math/bits"

	"golang.org/x/crypto/cryptobyte"
)

// Condition is a node of a condition tree. A node either carries only the
// commitment (see Anon) or the payload needed to derive it, and possibly
// the evidence (preimage, signature, fulfilled children) to fulfill it.
//
// Trees are not safe for concurrent mutation.
type Condition interface {
	// Type returns the registry entry of the node's kind.
	Type() *Type
	// Fingerprint is the SHA-256 commitment to the kind's payload.
	Fingerprint() []byte
	// Cost bounds the verification effort of a fulfillment.
	Cost() uint64
	// Subtypes is the set of kinds reachable in the subtree, own kind included.
	Subtypes() TypeMask
	// IsFulfilled reports whether a fulfillment can be produced from the node.
	IsFulfilled() bool

	toJSON(obj map[string]any)
	writeFulfillment(b *cryptobyte.Builder)
	validate(msg []byte) bool
	eachChild(msg []byte, fn func(child Condition, msg []byte))
}

// TypeMask is a bit set of type ids.
type TypeMask uint32

// Mask returns the mask containing only id.
func Mask(id TypeID) TypeMask {
	return 1 << id
}

// Has reports whether id is in the set.
func (m TypeMask) Has(id TypeID) bool {
	return m&Mask(id) != 0
}

// Names returns the registered type names in the set, in type id order.
// Ids without a registry entry are skipped; decoded masks never carry them.
func (m TypeMask) Names() []string {
	names := make([]string, 0, bits.OnesCount32(uint32(m)))
	for id := TypeID(0); id < 32; id++ {
		if !m.Has(id) {
			continue
		}
		if t, err := LookupID(id); err == nil {
			names = append(names, t.Name)
		}
	}
	return names
}

// MaskOf builds a mask from type names.
func MaskOf(names ...string) (TypeMask, error) {
	var m TypeMask
	for _, name := range names {
		t, err := LookupName(name)
		if err != nil {
			return 0, err
		}
		m |= Mask(t.ID)
	}
	return m, nil
}

// Visitor is called for every node of a tree with the message the node is
// evaluated against. Returning false skips the node's children.
type Visitor func(c Condition, msg []byte) bool

// Walk visits c and its descendants depth first.
func Walk(c Condition, msg []byte, visit Visitor) {
	if !visit(c, msg) {
		return
	}
	c.eachChild(msg, func(child Condition, m []byte) {
		Walk(child, m, visit)
	})
}

// publicSubtypes is the subtype set as committed in binary and URI forms,
// which leave out the node's own kind.
func publicSubtypes(c Condition) TypeMask {
	return c.Subtypes() &^ Mask(c.Type().ID)
}

// maxCost keeps costs encodable as a DER INTEGER.
const maxCost = math.MaxInt64

func addCost(a, b uint64) uint64 {
	if b > maxCost || a > maxCost-b {
		return maxCost
	}
	return a + b
}

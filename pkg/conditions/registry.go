package conditions

import (
	"sort"

	"golang.org/x/crypto/cryptobyte"
)

// TypeID is the tag of a kind in the binary forms.
type TypeID uint8

// Type is a registry entry: the static half of a kind's capability set.
// Per-node capabilities (fingerprint, cost, subtypes, JSON output,
// fulfillment output, fulfilled check) are methods of Condition.
type Type struct {
	ID   TypeID
	Name string

	// compound kinds commit to their subtypes in the condition binary.
	compound bool

	fromJSON        func(obj map[string]any, depth int) (Condition, error)
	readFulfillment func(body cryptobyte.String, depth int) (Condition, error)
}

var (
	typesByID   = make(map[TypeID]*Type)
	typesByName = make(map[string]*Type)
)

// Registry entries for the supported kinds. Assigned once in init.
var (
	preimageType  *Type
	prefixType    *Type
	thresholdType *Type
	ed25519Type   *Type
)

func init() {
	preimageType = register(&Type{
		ID:              0,
		Name:            "preimage-sha-256",
		fromJSON:        preimageFromJSON,
		readFulfillment: readPreimageFulfillment,
	})
	prefixType = register(&Type{
		ID:              1,
		Name:            "prefix-sha-256",
		compound:        true,
		fromJSON:        prefixFromJSON,
		readFulfillment: readPrefixFulfillment,
	})
	thresholdType = register(&Type{
		ID:              2,
		Name:            "threshold-sha-256",
		compound:        true,
		fromJSON:        thresholdFromJSON,
		readFulfillment: readThresholdFulfillment,
	})
	ed25519Type = register(&Type{
		ID:              4,
		Name:            "ed25519-sha-256",
		fromJSON:        ed25519FromJSON,
		readFulfillment: readEd25519Fulfillment,
	})
}

func register(t *Type) *Type {
	if _, dup := typesByID[t.ID]; dup {
		panic("conditions: duplicate type id " + t.Name)
	}
	if _, dup := typesByName[t.Name]; dup {
		panic("conditions: duplicate type name " + t.Name)
	}
	typesByID[t.ID] = t
	typesByName[t.Name] = t
	return t
}

// LookupName returns the registry entry for a kind name.
func LookupName(name string) (*Type, error) {
	if t, ok := typesByName[name]; ok {
		return t, nil
	}
	return nil, newError(ErrUnknownType, "unknown condition type %q", name)
}

// LookupID returns the registry entry for a type id.
func LookupID(id TypeID) (*Type, error) {
	if t, ok := typesByID[id]; ok {
		return t, nil
	}
	return nil, newError(ErrUnknownType, "unknown condition type id %d", id)
}

// Types lists the registry in type id order.
func Types() []*Type {
	out := make([]*Type, 0, len(typesByID))
	for _, t := range typesByID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

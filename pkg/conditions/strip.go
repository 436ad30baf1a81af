package conditions

import "bytes"

// Strip returns a copy of c with every piece of evidence removed: preimages
// become commitments and signatures are dropped. The copy encodes to the
// same condition binary and is safe to publish.
func Strip(c Condition) Condition {
	switch n := c.(type) {
	case *Preimage:
		return NewAnon(preimageType, n.Fingerprint(), n.Cost(), 0)
	case *Ed25519:
		return &Ed25519{PublicKey: bytes.Clone(n.PublicKey)}
	case *Prefix:
		return &Prefix{
			Prefix:           bytes.Clone(n.Prefix),
			MaxMessageLength: n.MaxMessageLength,
			Subcondition:     Strip(n.Subcondition),
		}
	case *Threshold:
		subs := make([]Condition, len(n.Subconditions))
		for i, sub := range n.Subconditions {
			subs[i] = Strip(sub)
		}
		return &Threshold{Threshold: n.Threshold, Subconditions: subs}
	case *Anon:
		return NewAnon(n.typ, bytes.Clone(n.fingerprint), n.cost, n.subtypes)
	default:
		return c
	}
}

// Package conditions implements crypto-conditions: composable predicates
// (hash preimage, ed25519 signature, threshold, prefix) that commit to a
// compact fingerprint, and the fulfillments that satisfy them.
//
// Kinds are registered once at startup in a fixed registry keyed by name
// and type id. All polymorphism (JSON, binary, verification, signing)
// dispatches through the Condition interface and the registry entry.
//
// Binary forms are DER per the crypto-conditions ASN.1 module, so
// identical payloads always encode to identical bytes.
//
//	cond := conditions.NewPreimage([]byte("secret"))
//	bin := conditions.EncodeCondition(cond)
//	ff, _ := conditions.EncodeFulfillment(cond)
//	ok, err := conditions.Verify(ff, nil, bin)
package conditions

package conditions

import (
	"bytes"
	"crypto/sha256"
	"math/bits"
	"sort"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Binary forms are DER, following the crypto-conditions ASN.1 module:
//
//	Condition   ::= CHOICE { [typeId] SEQUENCE { fingerprint [0], cost [1], subtypes [2] OPTIONAL } }
//	Fulfillment ::= CHOICE { [typeId] SEQUENCE { ...kind specific... } }

// maxDepth bounds the nesting of decoded fulfillment trees.
const maxDepth = 64

const (
	classMask            = 0xe0
	constructedContextID = 0xa0
	tagNumberMask        = 0x1f
)

func contextTag(n uint8) asn1.Tag {
	return asn1.Tag(n).ContextSpecific()
}

func constructedTag(n uint8) asn1.Tag {
	return asn1.Tag(n).Constructed().ContextSpecific()
}

// EncodeCondition returns the binary condition of c.
func EncodeCondition(c Condition) []byte {
	b := cryptobyte.NewBuilder(nil)
	addCondition(b, c)
	return b.BytesOrPanic()
}

func addCondition(b *cryptobyte.Builder, c Condition) {
	t := c.Type()
	b.AddASN1(constructedTag(uint8(t.ID)), func(b *cryptobyte.Builder) {
		addOctetString(b, contextTag(0), c.Fingerprint())
		b.AddASN1Int64WithTag(int64(c.Cost()), contextTag(1))
		if t.compound {
			addTypeMask(b, contextTag(2), publicSubtypes(c))
		}
	})
}

// DecodeCondition parses a binary condition. The result carries only the
// commitment, never a payload.
func DecodeCondition(bin []byte) (*Anon, error) {
	s := cryptobyte.String(bin)
	c, err := readCondition(&s)
	if err != nil {
		return nil, err
	}
	if !s.Empty() {
		return nil, newError(ErrMalformedCondition, "trailing bytes after condition")
	}
	return c, nil
}

func readCondition(s *cryptobyte.String) (*Anon, error) {
	var (
		body cryptobyte.String
		tag  asn1.Tag
	)
	if !s.ReadAnyASN1(&body, &tag) {
		return nil, newError(ErrMalformedCondition, "truncated condition")
	}
	if uint8(tag)&classMask != constructedContextID {
		return nil, newError(ErrMalformedCondition, "unexpected condition tag 0x%02x", uint8(tag))
	}
	t, err := LookupID(TypeID(uint8(tag) & tagNumberMask))
	if err != nil {
		return nil, newError(ErrMalformedCondition, "%s", err.Error())
	}

	var fingerprint cryptobyte.String
	if !body.ReadASN1(&fingerprint, contextTag(0)) || len(fingerprint) != sha256.Size {
		return nil, newError(ErrMalformedCondition, "invalid fingerprint")
	}
	var cost int64
	if !body.ReadASN1Int64WithTag(&cost, contextTag(1)) || cost < 0 {
		return nil, newError(ErrMalformedCondition, "invalid cost")
	}
	var subtypes TypeMask
	if t.compound {
		m, ok := readTypeMask(&body, contextTag(2))
		if !ok {
			return nil, newError(ErrMalformedCondition, "invalid subtypes")
		}
		subtypes = m
	}
	if !body.Empty() {
		return nil, newError(ErrMalformedCondition, "trailing bytes in %s condition", t.Name)
	}
	return NewAnon(t, bytes.Clone(fingerprint), uint64(cost), subtypes), nil
}

// EncodeFulfillment returns the binary fulfillment of c. It fails with
// ErrUnfulfilled when c lacks the evidence.
func EncodeFulfillment(c Condition) ([]byte, error) {
	if !c.IsFulfilled() {
		return nil, newError(ErrUnfulfilled, "%s condition is not fulfilled", c.Type().Name)
	}
	b := cryptobyte.NewBuilder(nil)
	addFulfillment(b, c)
	return b.Bytes()
}

func addFulfillment(b *cryptobyte.Builder, c Condition) {
	b.AddASN1(constructedTag(uint8(c.Type().ID)), c.writeFulfillment)
}

// DecodeFulfillment parses a binary fulfillment into a fulfilled tree.
func DecodeFulfillment(bin []byte) (Condition, error) {
	s := cryptobyte.String(bin)
	c, err := readFulfillment(&s, 0)
	if err != nil {
		return nil, err
	}
	if !s.Empty() {
		return nil, newError(ErrMalformedFulfillment, "trailing bytes after fulfillment")
	}
	return c, nil
}

func readFulfillment(s *cryptobyte.String, depth int) (Condition, error) {
	if depth > maxDepth {
		return nil, newError(ErrMalformedFulfillment, "fulfillment nested deeper than %d", maxDepth)
	}
	var (
		body cryptobyte.String
		tag  asn1.Tag
	)
	if !s.ReadAnyASN1(&body, &tag) {
		return nil, newError(ErrMalformedFulfillment, "truncated fulfillment")
	}
	if uint8(tag)&classMask != constructedContextID {
		return nil, newError(ErrMalformedFulfillment, "unexpected fulfillment tag 0x%02x", uint8(tag))
	}
	t, err := LookupID(TypeID(uint8(tag) & tagNumberMask))
	if err != nil {
		return nil, newError(ErrMalformedFulfillment, "%s", err.Error())
	}
	return t.readFulfillment(body, depth)
}

func addOctetString(b *cryptobyte.Builder, tag asn1.Tag, v []byte) {
	b.AddASN1(tag, func(b *cryptobyte.Builder) {
		b.AddBytes(v)
	})
}

// addTypeMask writes m as a DER named-bit BIT STRING: bit i is the i-th
// most significant bit, trailing zero bits are dropped.
func addTypeMask(b *cryptobyte.Builder, tag asn1.Tag, m TypeMask) {
	b.AddASN1(tag, func(b *cryptobyte.Builder) {
		if m == 0 {
			b.AddUint8(0)
			return
		}
		high := bits.Len32(uint32(m)) - 1
		buf := make([]byte, high/8+1)
		for i := 0; i <= high; i++ {
			if m&(1<<i) != 0 {
				buf[i/8] |= 0x80 >> (i % 8)
			}
		}
		b.AddUint8(uint8(7 - high%8))
		b.AddBytes(buf)
	})
}

func readTypeMask(s *cryptobyte.String, tag asn1.Tag) (TypeMask, bool) {
	var bs cryptobyte.String
	var unused uint8
	if !s.ReadASN1(&bs, tag) || !bs.ReadUint8(&unused) || unused > 7 {
		return 0, false
	}
	if len(bs) == 0 {
		return 0, unused == 0
	}
	if len(bs) > 4 {
		return 0, false
	}
	last := bs[len(bs)-1]
	// DER: padding bits are zero and the last named bit is set.
	if last&(1<<unused-1) != 0 || last&(1<<unused) == 0 {
		return 0, false
	}
	var m TypeMask
	for i, octet := range bs {
		for j := 0; j < 8; j++ {
			if octet&(0x80>>j) == 0 {
				continue
			}
			// Every named bit must be a registered kind, or the URI and
			// JSON forms could not reproduce this binary.
			id := TypeID(i*8 + j)
			if _, err := LookupID(id); err != nil {
				return 0, false
			}
			m |= Mask(id)
		}
	}
	return m, true
}

// addSetOf writes a DER SET OF: elements sorted by their encoding.
func addSetOf(b *cryptobyte.Builder, tag asn1.Tag, elems [][]byte) {
	sorted := make([][]byte, len(elems))
	copy(sorted, elems)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})
	b.AddASN1(tag, func(b *cryptobyte.Builder) {
		for _, e := range sorted {
			b.AddBytes(e)
		}
	})
}

// fingerprintOf hashes the DER SEQUENCE produced by fn.
func fingerprintOf(fn cryptobyte.BuilderContinuation) []byte {
	b := cryptobyte.NewBuilder(nil)
	b.AddASN1(asn1.SEQUENCE, fn)
	sum := sha256.Sum256(b.BytesOrPanic())
	return sum[:]
}

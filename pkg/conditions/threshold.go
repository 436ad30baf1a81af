package conditions

import (
	"math"
	"sort"

	"golang.org/x/crypto/cryptobyte"
)

// Threshold is satisfied when at least Threshold of its subconditions are.
type Threshold struct {
	Threshold     uint16
	Subconditions []Condition
}

// NewThreshold returns an n-of-len(subs) condition.
func NewThreshold(n int, subs ...Condition) (*Threshold, error) {
	if n < 1 || n > math.MaxUint16 {
		return nil, validationError("\"threshold\" must be between 1 and %d", math.MaxUint16)
	}
	if n > len(subs) {
		return nil, validationError("\"threshold\" %d exceeds %d subfulfillments", n, len(subs))
	}
	return &Threshold{Threshold: uint16(n), Subconditions: subs}, nil
}

func (t *Threshold) Type() *Type { return thresholdType }

func (t *Threshold) Fingerprint() []byte {
	subs := make([][]byte, len(t.Subconditions))
	for i, c := range t.Subconditions {
		subs[i] = EncodeCondition(c)
	}
	return fingerprintOf(func(b *cryptobyte.Builder) {
		b.AddASN1Int64WithTag(int64(t.Threshold), contextTag(0))
		addSetOf(b, constructedTag(1), subs)
	})
}

// Cost is the sum of the Threshold largest subcondition costs plus a fixed
// overhead per subcondition.
func (t *Threshold) Cost() uint64 {
	costs := make([]uint64, len(t.Subconditions))
	for i, c := range t.Subconditions {
		costs[i] = c.Cost()
	}
	sort.Slice(costs, func(i, j int) bool { return costs[i] > costs[j] })

	var total uint64
	for i := 0; i < int(t.Threshold) && i < len(costs); i++ {
		total = addCost(total, costs[i])
	}
	return addCost(total, uint64(compoundOverhead)*uint64(len(costs)))
}

func (t *Threshold) Subtypes() TypeMask {
	m := Mask(thresholdType.ID)
	for _, c := range t.Subconditions {
		m |= c.Subtypes()
	}
	return m
}

// IsFulfilled requires a threshold of at least one: a zero threshold has no
// fulfillment encoding.
func (t *Threshold) IsFulfilled() bool {
	if t.Threshold == 0 {
		return false
	}
	n := 0
	for _, c := range t.Subconditions {
		if c.IsFulfilled() {
			n++
		}
	}
	return n >= int(t.Threshold)
}

func (t *Threshold) toJSON(obj map[string]any) {
	subs := make([]any, len(t.Subconditions))
	for i, c := range t.Subconditions {
		subs[i] = ConditionToJSON(c)
	}
	obj["threshold"] = t.Threshold
	obj["subfulfillments"] = subs
}

// writeFulfillment reveals the Threshold cheapest fulfilled subconditions
// and commits to the rest by condition only.
func (t *Threshold) writeFulfillment(b *cryptobyte.Builder) {
	order := make([]int, 0, len(t.Subconditions))
	for i, c := range t.Subconditions {
		if c.IsFulfilled() {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return t.Subconditions[order[i]].Cost() < t.Subconditions[order[j]].Cost()
	})

	revealed := make(map[int]bool, t.Threshold)
	for _, i := range order[:t.Threshold] {
		revealed[i] = true
	}

	var fulfillments, conditions [][]byte
	for i, c := range t.Subconditions {
		if revealed[i] {
			fb := cryptobyte.NewBuilder(nil)
			addFulfillment(fb, c)
			fulfillments = append(fulfillments, fb.BytesOrPanic())
		} else {
			conditions = append(conditions, EncodeCondition(c))
		}
	}
	addSetOf(b, constructedTag(0), fulfillments)
	addSetOf(b, constructedTag(1), conditions)
}

// validate counts every fulfilled subcondition that validates; which
// subset reaches the threshold does not matter.
func (t *Threshold) validate(msg []byte) bool {
	n := 0
	for _, c := range t.Subconditions {
		if c.IsFulfilled() && c.validate(msg) {
			n++
			if n >= int(t.Threshold) {
				return true
			}
		}
	}
	return false
}

func (t *Threshold) eachChild(msg []byte, fn func(Condition, []byte)) {
	for _, c := range t.Subconditions {
		fn(c, msg)
	}
}

func thresholdFromJSON(obj map[string]any, depth int) (Condition, error) {
	n, err := jsonUint(obj, "threshold", math.MaxUint16)
	if err != nil {
		return nil, err
	}
	raw, ok := obj["subfulfillments"].([]any)
	if !ok {
		return nil, validationError("\"subfulfillments\" must be an array")
	}
	subs := make([]Condition, 0, len(raw))
	for _, item := range raw {
		sub, err := conditionFromJSON(item, depth+1)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return NewThreshold(int(n), subs...)
}

func readThresholdFulfillment(body cryptobyte.String, depth int) (Condition, error) {
	var fulfillments, conditions cryptobyte.String
	if !body.ReadASN1(&fulfillments, constructedTag(0)) ||
		!body.ReadASN1(&conditions, constructedTag(1)) ||
		!body.Empty() {
		return nil, newError(ErrMalformedFulfillment, "invalid threshold fulfillment")
	}

	var subs []Condition
	for !fulfillments.Empty() {
		sub, err := readFulfillment(&fulfillments, depth+1)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	threshold := len(subs)
	if threshold == 0 || threshold > math.MaxUint16 {
		return nil, newError(ErrMalformedFulfillment, "threshold fulfillment reveals %d subfulfillments", threshold)
	}
	for !conditions.Empty() {
		sub, err := readCondition(&conditions)
		if err != nil {
			return nil, newError(ErrMalformedFulfillment, "threshold subcondition: %s", err.Error())
		}
		subs = append(subs, sub)
	}
	return &Threshold{Threshold: uint16(threshold), Subconditions: subs}, nil
}

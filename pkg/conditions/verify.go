package conditions

import (
	"bytes"
)

// VerifyOptions bound the work Verify accepts on untrusted input.
type VerifyOptions struct {
	// MaxCost rejects fulfillments costlier than this. Zero means no limit.
	MaxCost uint64
	// AllowedTypes rejects trees using kinds outside the set. Zero allows all.
	AllowedTypes TypeMask
}

// Verify decodes a binary fulfillment and checks it against a binary
// condition and message. A decode failure is returned as an error; a
// fulfillment that does not satisfy the condition yields false.
func Verify(fulfillment, msg, condition []byte) (bool, error) {
	return VerifyOptions{}.Verify(fulfillment, msg, condition)
}

// Verify is the package-level Verify with o's limits applied.
func (o VerifyOptions) Verify(fulfillment, msg, condition []byte) (bool, error) {
	c, err := DecodeFulfillment(fulfillment)
	if err != nil {
		return false, err
	}
	return o.VerifyCondition(c, msg, condition)
}

// VerifyCondition checks an in-memory fulfilled tree.
func (o VerifyOptions) VerifyCondition(c Condition, msg, condition []byte) (bool, error) {
	// 1. Reject upfront what the caller is not willing to evaluate.
	if o.MaxCost > 0 && c.Cost() > o.MaxCost {
		return false, newError(ErrCostExceeded, "condition cost %d exceeds limit %d", c.Cost(), o.MaxCost)
	}
	if o.AllowedTypes != 0 {
		if extra := c.Subtypes() &^ o.AllowedTypes; extra != 0 {
			return false, newError(ErrUnsupportedType, "condition requires unsupported types %v", extra.Names())
		}
	}

	// 2. The fulfillment must commit to exactly the target condition.
	if !bytes.Equal(EncodeCondition(c), condition) {
		return false, nil
	}

	// 3. The evidence must hold.
	return c.validate(msg), nil
}

package conditions

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookups(t *testing.T) {
	for _, tc := range []struct {
		name string
		id   TypeID
	}{
		{"preimage-sha-256", 0},
		{"prefix-sha-256", 1},
		{"threshold-sha-256", 2},
		{"ed25519-sha-256", 4},
	} {
		byName, err := LookupName(tc.name)
		require.NoError(t, err)
		byID, err := LookupID(tc.id)
		require.NoError(t, err)
		assert.Same(t, byName, byID)
	}

	_, err := LookupName("rsa-sha-256")
	assert.True(t, errors.Is(err, ErrUnknownType))
	_, err = LookupID(3)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestRegistry_TypesOrdered(t *testing.T) {
	var names []string
	for _, typ := range Types() {
		names = append(names, typ.Name)
	}
	assert.Equal(t, []string{"preimage-sha-256", "prefix-sha-256", "threshold-sha-256", "ed25519-sha-256"}, names)
}

func TestThresholdCost_Monotonic(t *testing.T) {
	children := []Condition{NewPreimage(make([]byte, 500)), testEd25519(t, 1), NewPreimage(nil)}
	for n := 1; n <= len(children); n++ {
		th := testThreshold(t, n, children...)
		for _, c := range children {
			assert.GreaterOrEqual(t, th.Cost(), c.Cost())
		}
	}
	// 2 largest of {500, 131072, 0} plus 3 * 1024.
	assert.Equal(t, uint64(131072+500+3*1024), testThreshold(t, 2, children...).Cost())
}

func TestPrefixCost(t *testing.T) {
	p := NewPrefix([]byte("abc"), 10, NewPreimage([]byte("xy")))
	assert.Equal(t, uint64(3+10+2+1024), p.Cost())
}

func TestWalk_PrefixMessages(t *testing.T) {
	inner := NewPreimage(nil)
	tree := NewPrefix([]byte("a"), 9, NewPrefix([]byte("b"), 9, inner))

	var seen []string
	Walk(tree, []byte("m"), func(c Condition, msg []byte) bool {
		seen = append(seen, string(msg))
		return true
	})
	assert.Equal(t, []string{"m", "am", "bam"}, seen)
}

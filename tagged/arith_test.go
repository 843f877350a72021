package tagged_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-lang/tachyonjit/tagged"
)

func tag(t *testing.T, v int64) tagged.Word {
	t.Helper()
	w, ok := tagged.Tag(v)
	require.True(t, ok, "value %d should fit tagged range", v)
	return w
}

func TestTagUntagRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1000, -1000, tagged.MaxValue, tagged.MinValue} {
		w, ok := tagged.Tag(v)
		require.True(t, ok)
		assert.Equal(t, v, tagged.Untag(w))
		assert.True(t, tagged.IsTagged(w))
	}
}

func TestTagRejectsOutOfRange(t *testing.T) {
	_, ok := tagged.Tag(tagged.MaxValue + 1)
	assert.False(t, ok)
	_, ok = tagged.Tag(tagged.MinValue - 1)
	assert.False(t, ok)
}

func TestAddOverflowFallsBackToTransient(t *testing.T) {
	a := tag(t, tagged.MaxValue)
	b := tag(t, 1)
	_, ok := tagged.Add(a, b)
	assert.False(t, ok)

	tb := tagged.NewTransientBigInt()
	big1 := tagged.NewTransientBigInt().SetWord(a).Big()
	big2 := tagged.NewTransientBigInt().SetWord(b).Big()
	tb.Big().Add(big1, big2)
	_, ok = tb.Retag()
	assert.False(t, ok, "sum should still exceed the tagged range")
}

func TestAddWithinRange(t *testing.T) {
	w, ok := tagged.Add(tag(t, 2), tag(t, 3))
	require.True(t, ok)
	assert.EqualValues(t, 5, tagged.Untag(w))
}

func TestFloorDivRoundsTowardNegativeInfinity(t *testing.T) {
	w, ok, err := tagged.FloorDiv(tag(t, -7), tag(t, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, -4, tagged.Untag(w))
}

func TestModTakesSignOfDivisor(t *testing.T) {
	w, ok, err := tagged.Mod(tag(t, -7), tag(t, 2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 1, tagged.Untag(w))
}

func TestDivByZero(t *testing.T) {
	_, _, err := tagged.FloorDiv(tag(t, 1), tag(t, 0))
	assert.ErrorIs(t, err, tagged.ErrDivByZero)

	_, _, err = tagged.Mod(tag(t, 1), tag(t, 0))
	assert.ErrorIs(t, err, tagged.ErrDivByZero)
}

func TestNegativeShiftAlwaysRejected(t *testing.T) {
	_, _, err := tagged.Lshift(tag(t, 4), tag(t, -1))
	assert.ErrorIs(t, err, tagged.ErrNegativeShift)

	_, _, err = tagged.Rshift(tag(t, 4), tag(t, -1))
	assert.ErrorIs(t, err, tagged.ErrNegativeShift)
}

func TestShiftRoundTrip(t *testing.T) {
	w, ok, err := tagged.Lshift(tag(t, 3), tag(t, 4))
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 48, tagged.Untag(w))

	w, ok, err = tagged.Rshift(w, tag(t, 4))
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 3, tagged.Untag(w))
}

func TestBitwiseOpsPreserveTaggedRange(t *testing.T) {
	a, b := tag(t, tagged.MaxValue), tag(t, tagged.MinValue)
	assert.NotPanics(t, func() {
		tagged.And(a, b)
		tagged.Or(a, b)
		tagged.Xor(a, b)
		tagged.Invert(a)
	})
}

func TestComparisons(t *testing.T) {
	a, b := tag(t, 1), tag(t, 2)
	assert.True(t, tagged.Lt(a, b))
	assert.True(t, tagged.Le(a, b))
	assert.False(t, tagged.Gt(a, b))
	assert.False(t, tagged.Eq(a, b))
	assert.True(t, tagged.Ne(a, b))
}

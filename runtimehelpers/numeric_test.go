package runtimehelpers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
	"github.com/tachyon-lang/tachyonjit/runtimehelpers"
	"github.com/tachyon-lang/tachyonjit/tagged"
)

func TestAddTaggedFastPath(t *testing.T) {
	a, _ := tagged.Tag(2)
	b, _ := tagged.Tag(3)
	sum, boxed := runtimehelpers.AddTagged(a, b)
	require.Nil(t, boxed)
	assert.EqualValues(t, 5, tagged.Untag(sum))
}

func TestAddTaggedOverflowPromotes(t *testing.T) {
	a, _ := tagged.Tag(tagged.MaxValue)
	b, _ := tagged.Tag(1)
	_, boxed := runtimehelpers.AddTagged(a, b)
	require.NotNil(t, boxed)
	assert.Equal(t, "4611686018427387904", boxed.String())
}

func TestAddGenericIntInt(t *testing.T) {
	ts := hostabi.NewThreadState()
	a, _ := tagged.Tag(2)
	b, _ := tagged.Tag(3)
	v, err := runtimehelpers.Add(ts, hostabi.NewTaggedInt(a), hostabi.NewTaggedInt(b))
	require.NoError(t, err)
	assert.Equal(t, "5", v.String())
}

func TestAddStrings(t *testing.T) {
	ts := hostabi.NewThreadState()
	v, err := runtimehelpers.Add(ts, hostabi.NewStr("foo"), hostabi.NewStr("bar"))
	require.NoError(t, err)
	assert.Equal(t, "foobar", v.String())
}

func TestAddTypeMismatchSetsError(t *testing.T) {
	ts := hostabi.NewThreadState()
	_, err := runtimehelpers.Add(ts, hostabi.NewStr("foo"), hostabi.NewIntFromInt64(1))
	require.Error(t, err)
	assert.True(t, ts.ErrorOccurred())
}

func TestFloorDivideAndModulo(t *testing.T) {
	ts := hostabi.NewThreadState()
	a, _ := tagged.Tag(-7)
	b, _ := tagged.Tag(2)

	q, err := runtimehelpers.FloorDivide(ts, hostabi.NewTaggedInt(a), hostabi.NewTaggedInt(b))
	require.NoError(t, err)
	assert.Equal(t, "-4", q.String())

	a2, _ := tagged.Tag(-7)
	r, err := runtimehelpers.Modulo(ts, hostabi.NewTaggedInt(a2), hostabi.NewTaggedInt(b))
	require.NoError(t, err)
	assert.Equal(t, "1", r.String())
}

func TestDivisionByZero(t *testing.T) {
	ts := hostabi.NewThreadState()
	a, _ := tagged.Tag(1)
	z, _ := tagged.Tag(0)
	_, err := runtimehelpers.FloorDivide(ts, hostabi.NewTaggedInt(a), hostabi.NewTaggedInt(z))
	assert.Error(t, err)
	assert.True(t, ts.ErrorOccurred())
}

func TestTrueDivide(t *testing.T) {
	ts := hostabi.NewThreadState()
	a, _ := tagged.Tag(1)
	b, _ := tagged.Tag(2)
	v, err := runtimehelpers.TrueDivide(ts, hostabi.NewTaggedInt(a), hostabi.NewTaggedInt(b))
	require.NoError(t, err)
	assert.Equal(t, "0.5", v.String())
}

func TestCompareTagged(t *testing.T) {
	a, _ := tagged.Tag(1)
	b, _ := tagged.Tag(2)
	assert.True(t, runtimehelpers.CompareTagged(optok.LT, a, b))
	assert.False(t, runtimehelpers.CompareTagged(optok.GT, a, b))
}

func TestCompareGeneric(t *testing.T) {
	ts := hostabi.NewThreadState()
	ok, err := runtimehelpers.Compare(ts, optok.EQL, hostabi.NewStr("a"), hostabi.NewStr("a"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNegateAndInvert(t *testing.T) {
	ts := hostabi.NewThreadState()
	w, _ := tagged.Tag(5)
	v, err := runtimehelpers.Negate(ts, hostabi.NewTaggedInt(w))
	require.NoError(t, err)
	assert.Equal(t, "-5", v.String())

	w2, _ := tagged.Tag(5)
	v2, err := runtimehelpers.Invert(ts, hostabi.NewTaggedInt(w2))
	require.NoError(t, err)
	assert.Equal(t, "-6", v2.String())
}

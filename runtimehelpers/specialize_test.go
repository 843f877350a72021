package runtimehelpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/tagged"
)

func tagVal(t *testing.T, i int64) hostabi.Value {
	t.Helper()
	w, ok := tagged.Tag(i)
	require.True(t, ok)
	return hostabi.NewTaggedInt(w)
}

func TestCallSiteCellSpecializesOnBuiltin(t *testing.T) {
	ts := hostabi.NewThreadState()
	calls := 0
	b := hostabi.NewBuiltin("probe", func(args []hostabi.Value, _ map[string]hostabi.Value) (hostabi.Value, error) {
		calls++
		return hostabi.NilValue, nil
	})

	cell := NewCallSiteCell()
	for i := 0; i < 3; i++ {
		hostabi.IncRef(b)
		_, err := cell.Invoke(ts, b, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

func TestCallSiteCellFlavorMismatchFallsBack(t *testing.T) {
	ts := hostabi.NewThreadState()
	b := hostabi.NewBuiltin("one", func([]hostabi.Value, map[string]hostabi.Value) (hostabi.Value, error) {
		return hostabi.NewStr("builtin"), nil
	})
	m := hostabi.NewBoundMethod(hostabi.NewStr("recv"), b)

	cell := NewCallSiteCell()
	hostabi.IncRef(b)
	v, err := cell.Invoke(ts, b, nil) // specializes on builtin
	require.NoError(t, err)
	assert.Equal(t, "builtin", v.(*hostabi.Str).S)

	// a different flavor at the same site must still dispatch correctly.
	hostabi.IncRef(m)
	v, err = cell.Invoke(ts, m, nil)
	require.NoError(t, err)
	assert.Equal(t, "builtin", v.(*hostabi.Str).S)
}

func TestCallSiteCellNonCallableSetsError(t *testing.T) {
	ts := hostabi.NewThreadState()
	cell := NewCallSiteCell()
	_, err := cell.Invoke(ts, tagVal(t, 1), nil)
	require.Error(t, err)
	assert.True(t, ts.ErrorOccurred())
}

func TestEqualsSiteCellSpecializesOnStrings(t *testing.T) {
	ts := hostabi.NewThreadState()
	cell := NewEqualsSiteCell()

	assert.Equal(t, 1, cell.Equals(ts, hostabi.NewStr("a"), hostabi.NewStr("a")))
	assert.Equal(t, 0, cell.Equals(ts, hostabi.NewStr("a"), hostabi.NewStr("b")))

	// type mismatch after specialization falls back to the generic compare
	// for that call without breaking the site.
	assert.Equal(t, 0, cell.Equals(ts, hostabi.NewStr("a"), tagVal(t, 1)))
	assert.Equal(t, 1, cell.Equals(ts, hostabi.NewStr("c"), hostabi.NewStr("c")))
}

func TestEqualsSiteCellSpecializesOnInts(t *testing.T) {
	ts := hostabi.NewThreadState()
	cell := NewEqualsSiteCell()

	assert.Equal(t, 1, cell.Equals(ts, tagVal(t, 7), tagVal(t, 7)))
	assert.Equal(t, 0, cell.Equals(ts, tagVal(t, 7), tagVal(t, 8)))
	// a boxed int small enough to untag takes the same path.
	assert.Equal(t, 1, cell.Equals(ts, hostabi.NewIntFromInt64(7), tagVal(t, 7)))
}

func TestEqualsGenericMismatchedKinds(t *testing.T) {
	ts := hostabi.NewThreadState()
	s := hostabi.NewStr("a")
	assert.Equal(t, 0, EqualsGeneric(ts, s, tagVal(t, 1)))
	assert.False(t, ts.ErrorOccurred())
}

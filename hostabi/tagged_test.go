package hostabi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/tagged"
)

func TestTaggedIntIsNotRefCounted(t *testing.T) {
	w, ok := tagged.Tag(7)
	require.True(t, ok)
	ti := hostabi.NewTaggedInt(w)

	assert.EqualValues(t, -1, hostabi.RefCount(ti))
	assert.NotPanics(t, func() { hostabi.IncRef(ti); hostabi.DecRef(ti) })
	assert.Equal(t, "7", ti.String())
}

func TestUnboxIntFromBoxedFallback(t *testing.T) {
	boxed := hostabi.NewIntFromInt64(42)
	w, ok := hostabi.UnboxInt(boxed)
	require.True(t, ok)
	assert.EqualValues(t, 42, tagged.Untag(w))
}

func TestListIndexByTaggedInt(t *testing.T) {
	l := hostabi.NewList([]hostabi.Value{hostabi.NewStr("a"), hostabi.NewStr("b"), hostabi.NewStr("c")})
	w, _ := tagged.Tag(1)
	v, err := hostabi.GetItem(l, hostabi.NewTaggedInt(w))
	require.NoError(t, err)
	assert.Equal(t, "b", v.String())
}

package runtimehelpers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/runtimehelpers"
)

func TestRaiseWithNoActiveExceptionErrors(t *testing.T) {
	ts := hostabi.NewThreadState()
	err := runtimehelpers.Raise(ts, nil)
	assert.Error(t, err)
}

func TestRaiseInstance(t *testing.T) {
	ts := hostabi.NewThreadState()
	inst := hostabi.NewInstance(hostabi.ClassValueError)
	err := runtimehelpers.Raise(ts, []hostabi.Value{inst})
	require.Error(t, err)
	assert.True(t, ts.ErrorOccurred())
}

func TestCompareExceptionsDerivedClass(t *testing.T) {
	ts := hostabi.NewThreadState()
	base := hostabi.NewClass("Error", nil)
	derived := hostabi.NewClass("SpecificError", []*hostabi.Class{base})
	inst := hostabi.NewInstance(derived)

	ok, err := runtimehelpers.CompareExceptions(ts, inst, base)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildClassCopiesNamespace(t *testing.T) {
	ts := hostabi.NewThreadState()
	ns := hostabi.NewDict(1)
	require.NoError(t, ns.SetKey(hostabi.NewStr("x"), hostabi.NewIntFromInt64(1)))
	cls := runtimehelpers.BuildClass(ts, "Point", hostabi.NewTuple(nil), ns)
	v, err := hostabi.GetAttr(hostabi.NewInstance(cls), "x")
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())
}

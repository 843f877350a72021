package refbuilder_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/ilbuilder/refbuilder"
	"github.com/tachyon-lang/tachyonjit/runtimehelpers"
)

func addHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	return runtimehelpers.Add(ts, args[0], args[1])
}

func TestSimpleAddMethod(t *testing.T) {
	b := refbuilder.New()
	b.EmitConst(hostabi.NewIntFromInt64(2))
	b.EmitConst(hostabi.NewIntFromInt64(3))
	b.EmitCallHelper(addHelper, 2)
	b.EmitReturn()
	method, err := b.Finish()
	require.NoError(t, err)

	ts := hostabi.NewThreadState()
	fr := hostabi.NewFrame(&bytecode.CodeObject{}, hostabi.NewDict(1), hostabi.NewDict(1), nil)
	v, err := method.Invoke(ts, fr)
	require.NoError(t, err)
	assert.Equal(t, "5", v.String())
}

func TestBranchIfFalseSkipsBody(t *testing.T) {
	b := refbuilder.New()
	skip := b.NewLabel()
	b.EmitConst(hostabi.False)
	b.EmitBranchIfFalse(skip)
	b.EmitConst(hostabi.NewIntFromInt64(999))
	b.EmitReturn()
	b.MarkLabel(skip)
	b.EmitConst(hostabi.NewIntFromInt64(1))
	b.EmitReturn()
	method, err := b.Finish()
	require.NoError(t, err)

	fr := hostabi.NewFrame(&bytecode.CodeObject{}, hostabi.NewDict(1), hostabi.NewDict(1), nil)
	v, err := method.Invoke(hostabi.NewThreadState(), fr)
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())
}

var errBoom = errors.New("boom")

func failingHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	ts.SetErrorString(hostabi.ClassValueError, "boom")
	return nil, errBoom
}

func TestBranchIfExceptionReachesHandler(t *testing.T) {
	b := refbuilder.New()
	handler := b.NewLabel()
	b.EmitCallHelper(failingHelper, 0)
	b.EmitBranchIfException(handler, 0)
	b.EmitConst(hostabi.NewIntFromInt64(0))
	b.EmitReturn()
	b.MarkLabel(handler)
	b.EmitConst(hostabi.NewIntFromInt64(42))
	b.EmitReturn()
	method, err := b.Finish()
	require.NoError(t, err)

	ts := hostabi.NewThreadState()
	fr := hostabi.NewFrame(&bytecode.CodeObject{}, hostabi.NewDict(1), hostabi.NewDict(1), nil)
	v, err := method.Invoke(ts, fr)
	require.NoError(t, err)
	assert.Equal(t, "42", v.String())
	assert.True(t, ts.ErrorOccurred())
}

func TestBranchIfExceptionPreservesEntryStack(t *testing.T) {
	// values beneath the handler's entry depth — a loop iterator, an outer
	// handler's state — must survive the exception edge untouched.
	b := refbuilder.New()
	handler := b.NewLabel()
	b.EmitConst(hostabi.NewStr("kept")) // below the entry snapshot
	b.EmitConst(hostabi.NewIntFromInt64(9))
	b.EmitCallHelper(failingHelper, 0)
	b.EmitBranchIfException(handler, 1)
	b.EmitReturn()
	b.MarkLabel(handler)
	b.EmitPop() // the raised value
	b.EmitReturn()
	method, err := b.Finish()
	require.NoError(t, err)

	ts := hostabi.NewThreadState()
	fr := hostabi.NewFrame(&bytecode.CodeObject{}, hostabi.NewDict(1), hostabi.NewDict(1), nil)
	v, err := method.Invoke(ts, fr)
	require.NoError(t, err)
	require.IsType(t, &hostabi.Str{}, v)
	assert.Equal(t, "kept", v.(*hostabi.Str).S)
}

func TestRaiseWithNoActiveExceptionErrors(t *testing.T) {
	b := refbuilder.New()
	b.EmitRaise()
	method, err := b.Finish()
	require.NoError(t, err)

	fr := hostabi.NewFrame(&bytecode.CodeObject{}, hostabi.NewDict(1), hostabi.NewDict(1), nil)
	_, err = method.Invoke(hostabi.NewThreadState(), fr)
	assert.Error(t, err)
}

func TestCallHelperWithoutBranchIfExceptionSwallowsFailure(t *testing.T) {
	b := refbuilder.New()
	b.EmitCallHelper(failingHelper, 0)
	b.EmitReturn()
	method, err := b.Finish()
	require.NoError(t, err)

	ts := hostabi.NewThreadState()
	fr := hostabi.NewFrame(&bytecode.CodeObject{}, hostabi.NewDict(1), hostabi.NewDict(1), nil)
	v, err := method.Invoke(ts, fr)
	require.NoError(t, err)
	assert.Equal(t, hostabi.NilValue, v)
	assert.True(t, ts.ErrorOccurred())
}

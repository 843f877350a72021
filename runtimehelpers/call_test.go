package runtimehelpers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/runtimehelpers"
)

func TestCall2Builtin(t *testing.T) {
	ts := hostabi.NewThreadState()
	add := hostabi.NewBuiltin("add", func(args []hostabi.Value, _ map[string]hostabi.Value) (hostabi.Value, error) {
		a := args[0].(*hostabi.Int)
		b := args[1].(*hostabi.Int)
		var sum int64
		sum = a.V.Int64() + b.V.Int64()
		return hostabi.NewIntFromInt64(sum), nil
	})
	v, err := runtimehelpers.Call2(ts, add, hostabi.NewIntFromInt64(2), hostabi.NewIntFromInt64(3))
	require.NoError(t, err)
	assert.Equal(t, "5", v.String())
}

func TestCallNonCallable(t *testing.T) {
	ts := hostabi.NewThreadState()
	_, err := runtimehelpers.Call0(ts, hostabi.NewIntFromInt64(1))
	assert.Error(t, err)
	assert.True(t, ts.ErrorOccurred())
}

func TestCallBoundMethod(t *testing.T) {
	ts := hostabi.NewThreadState()
	greet := hostabi.NewBuiltin("greet", func(args []hostabi.Value, _ map[string]hostabi.Value) (hostabi.Value, error) {
		recv := args[0].(*hostabi.Str)
		return hostabi.NewStr("hello " + recv.S), nil
	})
	bound := hostabi.NewBoundMethod(hostabi.NewStr("world"), greet)
	v, err := runtimehelpers.Call0(ts, bound)
	require.NoError(t, err)
	assert.Equal(t, "hello world", v.String())
}

func TestCallFunctionWithoutInvokeIsError(t *testing.T) {
	ts := hostabi.NewThreadState()
	fn := hostabi.NewFunction(&bytecode.CodeObject{Name: "f"}, hostabi.NewDict(1))
	_, err := runtimehelpers.CallFunction(ts, fn, nil, nil)
	assert.Error(t, err)
}

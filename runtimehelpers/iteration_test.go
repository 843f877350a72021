package runtimehelpers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/runtimehelpers"
)

func TestForIterNextExhaustion(t *testing.T) {
	ts := hostabi.NewThreadState()
	tup := hostabi.NewTuple([]hostabi.Value{hostabi.NewIntFromInt64(1)})
	it, err := runtimehelpers.GetIter(ts, tup)
	require.NoError(t, err)

	v, ok := runtimehelpers.ForIterNext(it)
	require.True(t, ok)
	assert.Equal(t, "1", v.String())

	_, ok = runtimehelpers.ForIterNext(it)
	assert.False(t, ok)
	it.Done()
}

func TestUnpackSequenceExact(t *testing.T) {
	ts := hostabi.NewThreadState()
	tup := hostabi.NewTuple([]hostabi.Value{hostabi.NewIntFromInt64(1), hostabi.NewIntFromInt64(2)})
	vals, err := runtimehelpers.UnpackSequence(ts, tup, 2)
	require.NoError(t, err)
	assert.Len(t, vals, 2)
}

func TestUnpackSequenceWrongCount(t *testing.T) {
	ts := hostabi.NewThreadState()
	tup := hostabi.NewTuple([]hostabi.Value{hostabi.NewIntFromInt64(1)})
	_, err := runtimehelpers.UnpackSequence(ts, tup, 2)
	assert.Error(t, err)
}

func TestUnpackEx(t *testing.T) {
	ts := hostabi.NewThreadState()
	tup := hostabi.NewTuple([]hostabi.Value{
		hostabi.NewIntFromInt64(1), hostabi.NewIntFromInt64(2),
		hostabi.NewIntFromInt64(3), hostabi.NewIntFromInt64(4),
	})
	vals, err := runtimehelpers.UnpackEx(ts, tup, 1, 1)
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, "1", vals[0].String())
	middle := vals[1].(*hostabi.List)
	assert.Len(t, middle.Elems, 2)
	assert.Equal(t, "4", vals[2].String())
}

package runtimehelpers

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/hostabi"
)

// sequenceElems extracts the underlying slice from a Tuple or List, the two
// kinds UNPACK_SEQUENCE/UNPACK_EX accept; anything else is a TypeError.
func sequenceElems(v hostabi.Value) ([]hostabi.Value, bool) {
	switch s := v.(type) {
	case *hostabi.Tuple:
		return s.Elems, true
	case *hostabi.List:
		return s.Elems, true
	default:
		return nil, false
	}
}

// UnpackSequence is the UNPACK_SEQUENCE helper: steals v, returns n owned
// references in the order they must be pushed (so the caller pushes them
// in reverse, per the stack's last-pushed-is-top convention, or the
// compiler simply emits STORE_FAST in the matching order — stackcompiler's
// choice, not this helper's concern).
func UnpackSequence(ts *hostabi.ThreadState, v hostabi.Value, n int) ([]hostabi.Value, error) {
	defer hostabi.DecRef(v)
	elems, ok := sequenceElems(v)
	if !ok {
		err := fmt.Errorf("cannot unpack non-sequence %s", v.Type())
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
	if len(elems) != n {
		var err error
		if len(elems) < n {
			err = fmt.Errorf("not enough values to unpack (expected %d, got %d)", n, len(elems))
		} else {
			err = fmt.Errorf("too many values to unpack (expected %d)", n)
		}
		ts.SetErrorString(hostabi.ClassValueError, err.Error())
		return nil, err
	}
	for _, e := range elems {
		hostabi.IncRef(e)
	}
	return elems, nil
}

// UnpackEx is the UNPACK_EX helper for starred assignment (a, *b, c = seq):
// before elements, a middle list absorbing everything else, then after
// elements.
func UnpackEx(ts *hostabi.ThreadState, v hostabi.Value, before, after int) ([]hostabi.Value, error) {
	defer hostabi.DecRef(v)
	elems, ok := sequenceElems(v)
	if !ok {
		err := fmt.Errorf("cannot unpack non-sequence %s", v.Type())
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
	if len(elems) < before+after {
		err := fmt.Errorf("not enough values to unpack (expected at least %d, got %d)", before+after, len(elems))
		ts.SetErrorString(hostabi.ClassValueError, err.Error())
		return nil, err
	}
	out := make([]hostabi.Value, 0, before+after+1)
	for _, e := range elems[:before] {
		hostabi.IncRef(e)
		out = append(out, e)
	}
	middle := append([]hostabi.Value(nil), elems[before:len(elems)-after]...)
	for _, e := range middle {
		hostabi.IncRef(e)
	}
	out = append(out, hostabi.NewList(middle))
	for _, e := range elems[len(elems)-after:] {
		hostabi.IncRef(e)
		out = append(out, e)
	}
	return out, nil
}

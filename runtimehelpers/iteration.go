package runtimehelpers

import "github.com/tachyon-lang/tachyonjit/hostabi"

// GetIter is the GET_ITER helper: steals the iterable reference, returns an
// owned hostabi.Iterator. The iterator itself is not a refcounted
// hostabi.Value in this model, so it is returned as the bare interface
// type; compiled code wraps it for the operand stack and drops it without
// calling Done.
func GetIter(ts *hostabi.ThreadState, v hostabi.Value) (hostabi.Iterator, error) {
	defer hostabi.DecRef(v)
	it, err := hostabi.GetIter(v)
	if err != nil {
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
	return it, nil
}

// ForIterNext is the FOR_ITER helper: returns ok=false (and a nil Value)
// once the iterator is exhausted, without that counting as a raised
// exception — StopIteration is the one "exception" the host represents as
// a plain bool here rather than threading it through ThreadState, exactly
// mirroring how the abstract interpreter's FOR_ITER step treats the
// exhaustion edge as an ordinary control-flow branch rather than an
// exceptional one.
func ForIterNext(it hostabi.Iterator) (hostabi.Value, bool) {
	v, ok := it.Next()
	if ok {
		hostabi.IncRef(v)
	}
	return v, ok
}

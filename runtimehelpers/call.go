package runtimehelpers

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/hostabi"
)

// Call0..Call4 are the fixed-arity call helpers: each collects its
// arguments into a slice and goes through the generic flavor switch
// (callN), which dispatches to CallFunction, CallBuiltin or CallBound on
// every call. Per-site specialization is done by CallSiteCell, not by
// these helpers.
func Call0(ts *hostabi.ThreadState, fn hostabi.Value) (hostabi.Value, error) {
	return callN(ts, fn, nil, nil)
}
func Call1(ts *hostabi.ThreadState, fn, a0 hostabi.Value) (hostabi.Value, error) {
	return callN(ts, fn, []hostabi.Value{a0}, nil)
}
func Call2(ts *hostabi.ThreadState, fn, a0, a1 hostabi.Value) (hostabi.Value, error) {
	return callN(ts, fn, []hostabi.Value{a0, a1}, nil)
}
func Call3(ts *hostabi.ThreadState, fn, a0, a1, a2 hostabi.Value) (hostabi.Value, error) {
	return callN(ts, fn, []hostabi.Value{a0, a1, a2}, nil)
}
func Call4(ts *hostabi.ThreadState, fn, a0, a1, a2, a3 hostabi.Value) (hostabi.Value, error) {
	return callN(ts, fn, []hostabi.Value{a0, a1, a2, a3}, nil)
}

// FancyCall is the CALL_FUNCTION_VAR_KW-family helper: args and kwargs are
// already materialized as a tuple and a dict by the time compiled code
// reaches this call, which is why it's "fancy" relative to Call0..Call4's
// positional-only fast path.
func FancyCall(ts *hostabi.ThreadState, fn hostabi.Value, args *hostabi.Tuple, kwargs *hostabi.Dict) (hostabi.Value, error) {
	kw, err := dictToMap(kwargs)
	if err != nil {
		return nil, err
	}
	return callN(ts, fn, append([]hostabi.Value(nil), args.Elems...), kw)
}

func callN(ts *hostabi.ThreadState, fn hostabi.Value, args []hostabi.Value, kwargs map[string]hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(fn)
	switch f := fn.(type) {
	case *hostabi.Builtin:
		return CallBuiltin(ts, f, args, kwargs)
	case *hostabi.BoundMethod:
		return CallBound(ts, f, args, kwargs)
	case *hostabi.Function:
		return CallFunction(ts, f, args, kwargs)
	default:
		err := fmt.Errorf("'%s' object is not callable", fn.Type())
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
}

func CallBuiltin(ts *hostabi.ThreadState, f *hostabi.Builtin, args []hostabi.Value, kwargs map[string]hostabi.Value) (hostabi.Value, error) {
	v, err := f.Fn(args, kwargs)
	if err != nil {
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
	return v, nil
}

func CallBound(ts *hostabi.ThreadState, m *hostabi.BoundMethod, args []hostabi.Value, kwargs map[string]hostabi.Value) (hostabi.Value, error) {
	full := make([]hostabi.Value, 0, len(args)+1)
	full = append(full, m.Receiver)
	full = append(full, args...)
	return callN(ts, m.Func, full, kwargs)
}

// CallFunction dispatches a user-defined function call: to f.Invoke when
// set, else to ts.EvalHook, else it records a TypeError. It builds no frame
// and never executes host bytecode itself; that is done by whichever Invoke
// or EvalHook the embedding (the driver) installed.
func CallFunction(ts *hostabi.ThreadState, f *hostabi.Function, args []hostabi.Value, kwargs map[string]hostabi.Value) (hostabi.Value, error) {
	if f.Invoke != nil {
		return f.Invoke(ts, f, args, kwargs)
	}
	if ts.EvalHook != nil {
		return ts.EvalHook(ts, f, args, kwargs)
	}
	err := fmt.Errorf("function '%s' has no attached implementation to invoke", f.Name())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

func dictToMap(d *hostabi.Dict) (map[string]hostabi.Value, error) {
	if d == nil {
		return nil, nil
	}
	out := make(map[string]hostabi.Value, d.Len())
	var rangeErr error
	d.Range(func(k, v hostabi.Value) bool {
		s, ok := k.(*hostabi.Str)
		if !ok {
			rangeErr = fmt.Errorf("keywords must be strings")
			return false
		}
		out[s.S] = v
		return true
	})
	if rangeErr != nil {
		return nil, rangeErr
	}
	return out, nil
}

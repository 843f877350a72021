package stackcompiler

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/ilbuilder"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
	"github.com/tachyon-lang/tachyonjit/runtimehelpers"
)

// The functions below adapt runtimehelpers' varied signatures to the single
// ilbuilder.HelperFunc shape every Builder.EmitCallHelper call needs.
// Helpers that already report failure through ts (the stealing contract)
// only need to turn a non-nil error into a non-nil return here so
// refbuilder's opCallHelper (and any real backend) knows to take the
// exceptional edge; they must never call ts.SetError themselves on top of
// what the wrapped helper already recorded.

// reasonCode is the small sentinel an in-flight break/continue/return
// parks in the compiler's reason local while traversing finally blocks.
// The sentinels are process-wide singletons outside the refcount protocol,
// like Bool and None, and never escape the method that stored them.
type reasonCode string

func (r reasonCode) String() string { return "reason:" + string(r) }
func (reasonCode) Type() string     { return "reason" }
func (reasonCode) Truth() bool      { return true }

const (
	reasonNone     = reasonCode("none")
	reasonBreak    = reasonCode("break")
	reasonContinue = reasonCode("continue")
	reasonReturn   = reasonCode("return")
)

// reasonIsHelper tests the reason local against one sentinel. It can never
// fail, so its call sites are not guarded.
func reasonIsHelper(want reasonCode) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return hostabi.Bool(args[0] == hostabi.Value(want)), nil
	}
}

// specializedCallHelper adapts one call site's specialization cell to the
// HelperFunc shape: every invocation is an indirect call through the cell,
// which rewrites its own target to the flavor-specific entry point on first
// observation.
func specializedCallHelper(cell *runtimehelpers.CallSiteCell) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return cell.Invoke(ts, args[0], append([]hostabi.Value(nil), args[1:]...))
	}
}

// equalsCellHelper adapts a compare site's equals cell, mapping its
// three-state result back onto the error/bool shape the emitted IL expects.
func equalsCellHelper(cell *runtimehelpers.EqualsSiteCell, negate bool) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		r := cell.Equals(ts, args[0], args[1])
		if r < 0 {
			return nil, fmt.Errorf("comparison failed")
		}
		eq := r == 1
		if negate {
			eq = !eq
		}
		return hostabi.Bool(eq), nil
	}
}

func binOpHelper(fn func(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error)) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return fn(ts, args[0], args[1])
	}
}

func unOpHelper(fn func(ts *hostabi.ThreadState, a hostabi.Value) (hostabi.Value, error)) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return fn(ts, args[0])
	}
}

func compareHelper(op optok.Token) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		ok, err := runtimehelpers.Compare(ts, op, args[0], args[1])
		if err != nil {
			return nil, err
		}
		return hostabi.Bool(ok), nil
	}
}

func binaryHelperFor(op optok.Token) ilbuilder.HelperFunc {
	switch op {
	case optok.ADD:
		return binOpHelper(runtimehelpers.Add)
	case optok.SUB:
		return binOpHelper(runtimehelpers.Sub)
	case optok.MUL:
		return binOpHelper(runtimehelpers.Mul)
	case optok.TRUEDIV:
		return binOpHelper(runtimehelpers.TrueDivide)
	case optok.FLOORDIV:
		return binOpHelper(runtimehelpers.FloorDivide)
	case optok.MOD:
		return binOpHelper(runtimehelpers.Modulo)
	case optok.POW:
		return binOpHelper(runtimehelpers.Power)
	case optok.MATMUL:
		return binOpHelper(runtimehelpers.MatMul)
	case optok.LSHIFT:
		return binOpHelper(runtimehelpers.Lshift)
	case optok.RSHIFT:
		return binOpHelper(runtimehelpers.Rshift)
	case optok.AND:
		return binOpHelper(runtimehelpers.And)
	case optok.XOR:
		return binOpHelper(runtimehelpers.Xor)
	case optok.OR:
		return binOpHelper(runtimehelpers.Or)
	default:
		if op.IsComparison() {
			return compareHelper(op)
		}
		return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
			ts.SetErrorString(hostabi.ClassTypeError, fmt.Sprintf("unsupported binary operator %s", op))
			return nil, fmt.Errorf("unsupported binary operator %s", op)
		}
	}
}

func unaryHelperFor(op optok.Token) ilbuilder.HelperFunc {
	switch op {
	case optok.UMINUS:
		return unOpHelper(runtimehelpers.Negate)
	case optok.INVERT:
		return unOpHelper(runtimehelpers.Invert)
	case optok.UPLUS:
		return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
			return args[0], nil
		}
	case optok.NOT:
		return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
			return hostabi.Bool(!args[0].Truth()), nil
		}
	case optok.LEN:
		return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
			s, ok := args[0].(hostabi.Sized)
			if !ok {
				ts.SetErrorString(hostabi.ClassTypeError, fmt.Sprintf("object of type '%s' has no len()", args[0].Type()))
				return nil, fmt.Errorf("no len()")
			}
			return hostabi.NewIntFromInt64(int64(s.Len())), nil
		}
	default:
		panic(fmt.Sprintf("stackcompiler: no unary helper for %s", op))
	}
}

func subscrHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	return runtimehelpers.Subscr(ts, args[0], args[1])
}

func storeSubscrHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	err := runtimehelpers.StoreSubscr(ts, args[0], args[1], args[2])
	return hostabi.NilValue, err
}

func deleteSubscrHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	err := runtimehelpers.DeleteSubscr(ts, args[0], args[1])
	return hostabi.NilValue, err
}

func loadAttrHelper(name string) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return runtimehelpers.LoadAttr(ts, args[0], name)
	}
}

func storeAttrHelper(name string) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		err := runtimehelpers.StoreAttr(ts, args[0], name, args[1])
		return hostabi.NilValue, err
	}
}

func deleteAttrHelper(name string) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		err := runtimehelpers.DeleteAttr(ts, args[0], name)
		return hostabi.NilValue, err
	}
}

func buildSliceHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	return runtimehelpers.BuildSlice(args[0], args[1], args[2]), nil
}

func buildTupleHelper(n int) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return runtimehelpers.BuildTuple(append([]hostabi.Value(nil), args...)), nil
	}
}

func buildListHelper(n int) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return runtimehelpers.BuildList(append([]hostabi.Value(nil), args...)), nil
	}
}

func buildSetHelper(n int) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		s, err := runtimehelpers.BuildSet(append([]hostabi.Value(nil), args...))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func buildMapHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	return runtimehelpers.BuildMap(), nil
}

func listAppendHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	runtimehelpers.ListAppend(args[0].(*hostabi.List), args[1])
	return hostabi.NilValue, nil
}

func setAddHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	err := runtimehelpers.SetAdd(ts, args[0].(*hostabi.Set), args[1])
	return hostabi.NilValue, err
}

func mapAddHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	err := runtimehelpers.MapAdd(ts, args[0].(*hostabi.Dict), args[1], args[2])
	return hostabi.NilValue, err
}

func listExtendHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	err := runtimehelpers.ListExtend(ts, args[0].(*hostabi.List), args[1])
	return hostabi.NilValue, err
}

func dictUpdateHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	err := runtimehelpers.DictUpdate(ts, args[0].(*hostabi.Dict), args[1].(*hostabi.Dict))
	return hostabi.NilValue, err
}

func listToTupleHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	return runtimehelpers.ListToTuple(args[0].(*hostabi.List)), nil
}

func getIterHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	it, err := runtimehelpers.GetIter(ts, args[0])
	if err != nil {
		return nil, err
	}
	return iterBox{it}, nil
}

// iterBox adapts a hostabi.Iterator (not itself a hostabi.Value) so it can
// travel on the emulated operand stack between GET_ITER and FOR_ITER.
type iterBox struct{ hostabi.Iterator }

func (iterBox) String() string { return "<iterator>" }
func (iterBox) Type() string   { return "iterator" }
func (iterBox) Truth() bool    { return true }

// forIterNextHelper never fails on ordinary exhaustion: it always reports an
// ilbuilder.IterStep, which EmitForIterBranch consumes directly without ever
// touching the ThreadState's error slot for normal loop termination. A
// non-iterator operand is reported as a host exception, not a crash — it
// means the value feeding FOR_ITER was not produced by GET_ITER.
func forIterNextHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	box, ok := args[0].(iterBox)
	if !ok {
		err := fmt.Errorf("for-loop operand is a '%s', not an iterator", args[0].Type())
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
	v, ok := runtimehelpers.ForIterNext(box.Iterator)
	return ilbuilder.IterStep{Val: v, Ok: ok}, nil
}

func unpackSequenceHelper(n int) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		vals, err := runtimehelpers.UnpackSequence(ts, args[0], n)
		if err != nil {
			return nil, err
		}
		return ilbuilder.SpreadResult(vals), nil
	}
}

func unpackExHelper(before, after int) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		vals, err := runtimehelpers.UnpackEx(ts, args[0], before, after)
		if err != nil {
			return nil, err
		}
		return ilbuilder.SpreadResult(vals), nil
	}
}

func raiseHelper(n int) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		err := runtimehelpers.Raise(ts, append([]hostabi.Value(nil), args...))
		if err != nil {
			return nil, err
		}
		return hostabi.NilValue, nil
	}
}

func compareExceptionsHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	ok, err := runtimehelpers.CompareExceptions(ts, args[0], args[1].(*hostabi.Class))
	if err != nil {
		return nil, err
	}
	return hostabi.Bool(ok), nil
}

func clearErrorHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	ts.ClearError()
	return hostabi.NilValue, nil
}

func printExprHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	runtimehelpers.PrintExpr(args[0])
	return hostabi.NilValue, nil
}

func endFinallyHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	pending, reraise := runtimehelpers.EndFinally(ts)
	if !reraise {
		return hostabi.NilValue, nil
	}
	ts.RestoreError(pending)
	return nil, fmt.Errorf("reraise")
}

func makeFunctionHelper(code *bytecode.CodeObject) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return runtimehelpers.MakeFunction(code, args[0].(*hostabi.Dict)), nil
	}
}

func makeClosureHelper(code *bytecode.CodeObject) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return runtimehelpers.MakeClosure(code, args[0].(*hostabi.Dict), args[1].(*hostabi.Tuple)), nil
	}
}

func setDefaultsHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	return runtimehelpers.SetDefaults(args[0].(*hostabi.Function), args[1].(*hostabi.Tuple)), nil
}

func setKwDefaultsHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	return runtimehelpers.SetKwDefaults(args[0].(*hostabi.Function), args[1].(*hostabi.Dict)), nil
}

func setAnnotationsHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	return runtimehelpers.SetAnnotations(args[0].(*hostabi.Function), args[1].(*hostabi.Dict)), nil
}

func buildClassHelper(name string) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return runtimehelpers.BuildClass(ts, name, args[0].(*hostabi.Tuple), args[1].(*hostabi.Dict)), nil
	}
}

func importNameHelper(name string) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return runtimehelpers.ImportName(ts, name, args[0].(*hostabi.Tuple))
	}
}

func importFromHelper(name string) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		return runtimehelpers.ImportFrom(ts, args[0], name)
	}
}

func importStarHelper(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
	err := runtimehelpers.ImportStar(ts, args[0], args[1].(*hostabi.Dict))
	return hostabi.NilValue, err
}

func dictToStringMap(d *hostabi.Dict) (map[string]hostabi.Value, error) {
	out := make(map[string]hostabi.Value, d.Len())
	var rangeErr error
	d.Range(func(k, v hostabi.Value) bool {
		s, ok := k.(*hostabi.Str)
		if !ok {
			rangeErr = fmt.Errorf("keyword names must be strings")
			return false
		}
		out[s.S] = v
		return true
	})
	return out, rangeErr
}

func callHelper(nargs int, hasKwargs bool) ilbuilder.HelperFunc {
	return func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error) {
		fn := args[0]
		pos := args[1 : 1+nargs]
		var kwargs map[string]hostabi.Value
		if hasKwargs {
			var err error
			kwargs, err = dictToStringMap(args[1+nargs].(*hostabi.Dict))
			if err != nil {
				ts.SetErrorString(hostabi.ClassTypeError, err.Error())
				return nil, err
			}
		}
		switch f := fn.(type) {
		case *hostabi.Builtin:
			return runtimehelpers.CallBuiltin(ts, f, pos, kwargs)
		case *hostabi.BoundMethod:
			return runtimehelpers.CallBound(ts, f, pos, kwargs)
		case *hostabi.Function:
			return runtimehelpers.CallFunction(ts, f, pos, kwargs)
		default:
			ts.SetErrorString(hostabi.ClassTypeError, fmt.Sprintf("'%s' object is not callable", fn.Type()))
			return nil, fmt.Errorf("not callable")
		}
	}
}

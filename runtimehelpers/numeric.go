// Package runtimehelpers is the C-ABI-shaped primitive surface compiled
// code calls into for anything too complex to inline: arithmetic overflow
// handling, comparisons, container access, calls, iteration, unpacking and
// exception plumbing. Every helper here follows the same
// calling contract: it steals the
// references it is handed (the caller must not DecRef its arguments again),
// and it returns either an owned reference or, on failure, a zero value
// alongside a Go error that the caller turns into a raised exception via
// the ThreadState it was given.
package runtimehelpers

import (
	"fmt"
	"math"
	"math/big"

	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/tagged"
)

// AddTagged is the tagged small-int addition Add takes when both operands
// unbox to tagged words: it returns the tagged sum, or a boxed *hostabi.Int
// when the sum leaves the tagged range. stackcompiler always emits the
// generic Add for BINARY_ADD, which reaches this through Add.
func AddTagged(a, b tagged.Word) (tagged.Word, *hostabi.Int) {
	if w, ok := tagged.Add(a, b); ok {
		return w, nil
	}
	var t big.Int
	t.Add(big.NewInt(tagged.Untag(a)), big.NewInt(tagged.Untag(b)))
	return 0, hostabi.NewIntFromBig(&t)
}

// Add is the fully generic BINARY_ADD helper: it accepts two owned
// references of any type, dispatches on their concrete kind, and returns an
// owned reference to the result (or an error, having already DecRef'd both
// inputs, matching the steal-on-entry contract).
func Add(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	if wa, ok := hostabi.UnboxInt(a); ok {
		if wb, ok := hostabi.UnboxInt(b); ok {
			w, boxed := AddTagged(wa, wb)
			if boxed != nil {
				return boxed, nil
			}
			return hostabi.NewTaggedInt(w), nil
		}
	}
	if fa, ok := a.(*hostabi.Float); ok {
		if fb, ok := b.(*hostabi.Float); ok {
			return hostabi.NewFloat(fa.V + fb.V), nil
		}
	}
	if sa, ok := a.(*hostabi.Str); ok {
		if sb, ok := b.(*hostabi.Str); ok {
			return hostabi.NewStr(sa.S + sb.S), nil
		}
	}
	if la, ok := a.(*hostabi.List); ok {
		if lb, ok := b.(*hostabi.List); ok {
			out := make([]hostabi.Value, 0, len(la.Elems)+len(lb.Elems))
			out = append(out, la.Elems...)
			out = append(out, lb.Elems...)
			return hostabi.NewList(out), nil
		}
	}
	if ta, ok := a.(*hostabi.Tuple); ok {
		if tb, ok := b.(*hostabi.Tuple); ok {
			out := make([]hostabi.Value, 0, len(ta.Elems)+len(tb.Elems))
			out = append(out, ta.Elems...)
			out = append(out, tb.Elems...)
			return hostabi.NewTuple(out), nil
		}
	}
	err := fmt.Errorf("unsupported operand type(s) for +: '%s' and '%s'", a.Type(), b.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

// binaryNumeric is shared by the handful of arithmetic helpers (Sub, Mul)
// whose generic dispatch is otherwise identical to Add's shape.
func binaryNumeric(
	ts *hostabi.ThreadState, a, b hostabi.Value,
	onTagged func(x, y int64) (int64, bool),
	onFloat func(x, y float64) float64,
	opName string,
) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	if wa, ok := hostabi.UnboxInt(a); ok {
		if wb, ok := hostabi.UnboxInt(b); ok {
			x, y := tagged.Untag(wa), tagged.Untag(wb)
			if r, ok := onTagged(x, y); ok {
				if w, ok := tagged.Tag(r); ok {
					return hostabi.NewTaggedInt(w), nil
				}
			}
			var bx, by, br big.Int
			bx.SetInt64(x)
			by.SetInt64(y)
			switch opName {
			case "-":
				br.Sub(&bx, &by)
			case "*":
				br.Mul(&bx, &by)
			}
			return hostabi.NewIntFromBig(&br), nil
		}
	}
	if fa, ok := a.(*hostabi.Float); ok {
		if fb, ok := b.(*hostabi.Float); ok {
			return hostabi.NewFloat(onFloat(fa.V, fb.V)), nil
		}
	}
	err := fmt.Errorf("unsupported operand type(s) for %s: '%s' and '%s'", opName, a.Type(), b.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

func Sub(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	return binaryNumeric(ts, a, b,
		func(x, y int64) (int64, bool) { return x - y, true },
		func(x, y float64) float64 { return x - y },
		"-")
}

func Mul(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	return binaryNumeric(ts, a, b,
		func(x, y int64) (int64, bool) { return x * y, true },
		func(x, y float64) float64 { return x * y },
		"*")
}

func TrueDivide(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	if !aok || !bok {
		err := fmt.Errorf("unsupported operand type(s) for /: '%s' and '%s'", a.Type(), b.Type())
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
	if fb == 0 {
		err := fmt.Errorf("division by zero")
		ts.SetErrorString(hostabi.ClassZeroDivisionError, err.Error())
		return nil, err
	}
	return hostabi.NewFloat(fa / fb), nil
}

func FloorDivide(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	wa, aok := hostabi.UnboxInt(a)
	wb, bok := hostabi.UnboxInt(b)
	if aok && bok {
		w, ok, err := tagged.FloorDiv(wa, wb)
		if err != nil {
			ts.SetErrorString(hostabi.ClassZeroDivisionError, err.Error())
			return nil, err
		}
		if ok {
			return hostabi.NewTaggedInt(w), nil
		}
	}
	err := fmt.Errorf("unsupported operand type(s) for //: '%s' and '%s'", a.Type(), b.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

func Modulo(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	if sa, ok := a.(*hostabi.Str); ok {
		_ = sa
		return nil, fmt.Errorf("string formatting via %% is not supported by this host")
	}
	wa, aok := hostabi.UnboxInt(a)
	wb, bok := hostabi.UnboxInt(b)
	if aok && bok {
		w, ok, err := tagged.Mod(wa, wb)
		if err != nil {
			ts.SetErrorString(hostabi.ClassZeroDivisionError, err.Error())
			return nil, err
		}
		if ok {
			return hostabi.NewTaggedInt(w), nil
		}
	}
	err := fmt.Errorf("unsupported operand type(s) for %%: '%s' and '%s'", a.Type(), b.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

func bitwiseHelper(
	ts *hostabi.ThreadState, a, b hostabi.Value,
	onTagged func(x, y tagged.Word) tagged.Word,
	opName string,
) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	wa, aok := hostabi.UnboxInt(a)
	wb, bok := hostabi.UnboxInt(b)
	if aok && bok {
		return hostabi.NewTaggedInt(onTagged(wa, wb)), nil
	}
	err := fmt.Errorf("unsupported operand type(s) for %s: '%s' and '%s'", opName, a.Type(), b.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

func And(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	return bitwiseHelper(ts, a, b, tagged.And, "&")
}

func Or(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	return bitwiseHelper(ts, a, b, tagged.Or, "|")
}

func Xor(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	return bitwiseHelper(ts, a, b, tagged.Xor, "^")
}

func shiftHelper(
	ts *hostabi.ThreadState, a, b hostabi.Value,
	fn func(a, shift tagged.Word) (tagged.Word, bool, error),
	opName string,
) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	wa, aok := hostabi.UnboxInt(a)
	wb, bok := hostabi.UnboxInt(b)
	if !aok || !bok {
		err := fmt.Errorf("unsupported operand type(s) for %s: '%s' and '%s'", opName, a.Type(), b.Type())
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
	w, ok, err := fn(wa, wb)
	if err != nil {
		ts.SetErrorString(hostabi.ClassValueError, err.Error())
		return nil, err
	}
	if !ok {
		err := fmt.Errorf("shift result too large to tag")
		ts.SetErrorString(hostabi.ClassOverflowError, err.Error())
		return nil, err
	}
	return hostabi.NewTaggedInt(w), nil
}

func Lshift(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	return shiftHelper(ts, a, b, tagged.Lshift, "<<")
}

func Rshift(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	return shiftHelper(ts, a, b, tagged.Rshift, ">>")
}

// Power computes an exact result with math/big.Int.Exp when both operands
// unbox to tagged ints and the exponent is non-negative. Any other pair of
// ints or floats (a negative exponent, a float operand) goes through
// math.Pow on float64 values; integers outside the tagged range are
// rejected as unsupported operands.
func Power(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	wa, aok := hostabi.UnboxInt(a)
	wb, bok := hostabi.UnboxInt(b)
	if aok && bok && tagged.Untag(wb) >= 0 {
		var base, exp, res big.Int
		base.SetInt64(tagged.Untag(wa))
		exp.SetInt64(tagged.Untag(wb))
		res.Exp(&base, &exp, nil)
		return hostabi.NewIntFromBig(&res), nil
	}
	if fa, aok := asFloat(a); aok {
		if fb, bok := asFloat(b); bok {
			return hostabi.NewFloat(math.Pow(fa, fb)), nil
		}
	}
	err := fmt.Errorf("unsupported operand type(s) for **: '%s' and '%s'", a.Type(), b.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

// MatMul has no builtin-type implementation: none of this host's concrete
// value kinds define matrix multiplication, so it always raises the
// operand-type error.
func MatMul(ts *hostabi.ThreadState, a, b hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)
	err := fmt.Errorf("unsupported operand type(s) for @: '%s' and '%s'", a.Type(), b.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

func asFloat(v hostabi.Value) (float64, bool) {
	switch n := v.(type) {
	case *hostabi.Float:
		return n.V, true
	default:
		if w, ok := hostabi.UnboxInt(v); ok {
			return float64(tagged.Untag(w)), true
		}
		return 0, false
	}
}

func Negate(ts *hostabi.ThreadState, a hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	if w, ok := hostabi.UnboxInt(a); ok {
		if nw, ok := tagged.Neg(w); ok {
			return hostabi.NewTaggedInt(nw), nil
		}
		var b big.Int
		b.Neg(big.NewInt(tagged.Untag(w)))
		return hostabi.NewIntFromBig(&b), nil
	}
	if f, ok := a.(*hostabi.Float); ok {
		return hostabi.NewFloat(-f.V), nil
	}
	err := fmt.Errorf("bad operand type for unary -: '%s'", a.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

func Invert(ts *hostabi.ThreadState, a hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(a)
	if w, ok := hostabi.UnboxInt(a); ok {
		return hostabi.NewTaggedInt(tagged.Invert(w)), nil
	}
	err := fmt.Errorf("bad operand type for unary ~: '%s'", a.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return nil, err
}

package runtimehelpers

import (
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
	"github.com/tachyon-lang/tachyonjit/tagged"
)

// CallTarget is the signature of every entry point a CallSiteCell can hold:
// a positional-only call of the function value fn with already-materialized
// owned arguments. All object parameters are stolen.
type CallTarget func(ts *hostabi.ThreadState, fn hostabi.Value, args []hostabi.Value) (hostabi.Value, error)

// CallSiteCell is one call site's writable dispatch slot: compiled code
// calls indirectly through it, and the cell rewrites itself with a
// flavor-specific entry point the first time it observes what kind of
// callable actually flows through that site. The cell lives in the compiled
// method's non-code payload (in this repo, as compile-time state closed
// over by the site's HelperFunc), never in the code object itself.
type CallSiteCell struct {
	target CallTarget
}

func NewCallSiteCell() *CallSiteCell {
	c := &CallSiteCell{}
	c.target = c.observeAndRewrite
	return c
}

// Invoke is the indirect call through the slot. After the first call it
// goes straight to the specialized entry point; a flavor change at the same
// site later is handled by the specialized target's own generic fallback,
// not by re-specializing the cell.
func (c *CallSiteCell) Invoke(ts *hostabi.ThreadState, fn hostabi.Value, args []hostabi.Value) (hostabi.Value, error) {
	return c.target(ts, fn, args)
}

func (c *CallSiteCell) observeAndRewrite(ts *hostabi.ThreadState, fn hostabi.Value, args []hostabi.Value) (hostabi.Value, error) {
	switch fn.(type) {
	case *hostabi.Function:
		c.target = callSiteFunction
	case *hostabi.Builtin:
		c.target = callSiteBuiltin
	case *hostabi.BoundMethod:
		c.target = callSiteBound
	default:
		c.target = callSiteGeneric
	}
	return c.target(ts, fn, args)
}

func callSiteFunction(ts *hostabi.ThreadState, fn hostabi.Value, args []hostabi.Value) (hostabi.Value, error) {
	f, ok := fn.(*hostabi.Function)
	if !ok {
		return callSiteGeneric(ts, fn, args)
	}
	defer hostabi.DecRef(fn)
	return CallFunction(ts, f, args, nil)
}

func callSiteBuiltin(ts *hostabi.ThreadState, fn hostabi.Value, args []hostabi.Value) (hostabi.Value, error) {
	f, ok := fn.(*hostabi.Builtin)
	if !ok {
		return callSiteGeneric(ts, fn, args)
	}
	defer hostabi.DecRef(fn)
	return CallBuiltin(ts, f, args, nil)
}

func callSiteBound(ts *hostabi.ThreadState, fn hostabi.Value, args []hostabi.Value) (hostabi.Value, error) {
	m, ok := fn.(*hostabi.BoundMethod)
	if !ok {
		return callSiteGeneric(ts, fn, args)
	}
	defer hostabi.DecRef(fn)
	return CallBound(ts, m, args, nil)
}

func callSiteGeneric(ts *hostabi.ThreadState, fn hostabi.Value, args []hostabi.Value) (hostabi.Value, error) {
	return callN(ts, fn, args, nil)
}

// EqualsTarget is the three-state equality check a compare site dispatches
// through: -1 error (exception recorded on ts), 0 not equal, 1 equal. Both
// operands are stolen.
type EqualsTarget func(ts *hostabi.ThreadState, a, b hostabi.Value) int

// EqualsSiteCell is the rich-compare analog of CallSiteCell: the generic
// equals, on observing two operands of the same exact specializable type,
// rewrites the slot with the type-specific helper; a later type mismatch at
// the same site makes the specialized helper fall back to the generic one
// for that call without touching the slot again.
type EqualsSiteCell struct {
	target EqualsTarget
}

func NewEqualsSiteCell() *EqualsSiteCell {
	c := &EqualsSiteCell{}
	c.target = c.observeAndRewrite
	return c
}

func (c *EqualsSiteCell) Equals(ts *hostabi.ThreadState, a, b hostabi.Value) int {
	return c.target(ts, a, b)
}

func (c *EqualsSiteCell) observeAndRewrite(ts *hostabi.ThreadState, a, b hostabi.Value) int {
	if _, ok := a.(*hostabi.Str); ok {
		if _, ok := b.(*hostabi.Str); ok {
			c.target = EqualsStr
			return c.target(ts, a, b)
		}
	}
	if _, ok := hostabi.UnboxInt(a); ok {
		if _, ok := hostabi.UnboxInt(b); ok {
			c.target = EqualsInt
			return c.target(ts, a, b)
		}
	}
	c.target = EqualsGeneric
	return c.target(ts, a, b)
}

// EqualsStr is the exact-string specialized equals.
func EqualsStr(ts *hostabi.ThreadState, a, b hostabi.Value) int {
	sa, aok := a.(*hostabi.Str)
	sb, bok := b.(*hostabi.Str)
	if !aok || !bok {
		return EqualsGeneric(ts, a, b)
	}
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)
	if sa.S == sb.S {
		return 1
	}
	return 0
}

// EqualsInt is the exact-integer specialized equals, covering both tagged
// words and heap integers small enough to untag.
func EqualsInt(ts *hostabi.ThreadState, a, b hostabi.Value) int {
	wa, aok := hostabi.UnboxInt(a)
	wb, bok := hostabi.UnboxInt(b)
	if !aok || !bok {
		return EqualsGeneric(ts, a, b)
	}
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)
	if tagged.Eq(wa, wb) {
		return 1
	}
	return 0
}

// EqualsGeneric is the fully generic equals every cell starts pointed at
// (via observeAndRewrite) and every specialized helper falls back to.
func EqualsGeneric(ts *hostabi.ThreadState, a, b hostabi.Value) int {
	ok, err := Compare(ts, optok.EQL, a, b)
	if err != nil {
		return -1
	}
	if ok {
		return 1
	}
	return 0
}

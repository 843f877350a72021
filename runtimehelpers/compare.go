package runtimehelpers

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
	"github.com/tachyon-lang/tachyonjit/tagged"
)

// CompareTagged is the specialized compare-site fast path for two operands
// already proven tagged: no boxing, no ThreadState involvement, since
// integer comparison can never raise.
func CompareTagged(op optok.Token, a, b tagged.Word) bool {
	switch op {
	case optok.LT:
		return tagged.Lt(a, b)
	case optok.LE:
		return tagged.Le(a, b)
	case optok.GT:
		return tagged.Gt(a, b)
	case optok.GE:
		return tagged.Ge(a, b)
	case optok.EQL:
		return tagged.Eq(a, b)
	case optok.NEQ:
		return tagged.Ne(a, b)
	default:
		panic("internal error: not a comparison token")
	}
}

// Compare is the generic compare-site helper: it dispatches on the concrete
// kinds of a and b, falling back to a TypeError for orderings the host does
// not define (e.g. '<' between a list and an int).
func Compare(ts *hostabi.ThreadState, op optok.Token, a, b hostabi.Value) (bool, error) {
	defer hostabi.DecRef(a)
	defer hostabi.DecRef(b)

	if wa, ok := hostabi.UnboxInt(a); ok {
		if wb, ok := hostabi.UnboxInt(b); ok {
			return CompareTagged(op, wa, wb), nil
		}
	}
	if fa, aok := asFloat(a); aok {
		if fb, bok := asFloat(b); bok {
			return compareFloat(op, fa, fb), nil
		}
	}
	if sa, ok := a.(*hostabi.Str); ok {
		if sb, ok := b.(*hostabi.Str); ok {
			return compareOrdered(op, sa.S < sb.S, sa.S == sb.S), nil
		}
	}
	if op == optok.EQL || op == optok.NEQ {
		eq := sameValueIdentity(a, b)
		if op == optok.NEQ {
			eq = !eq
		}
		return eq, nil
	}
	err := fmt.Errorf("'%s' not supported between instances of '%s' and '%s'", op, a.Type(), b.Type())
	ts.SetErrorString(hostabi.ClassTypeError, err.Error())
	return false, err
}

func compareFloat(op optok.Token, a, b float64) bool {
	switch op {
	case optok.LT:
		return a < b
	case optok.LE:
		return a <= b
	case optok.GT:
		return a > b
	case optok.GE:
		return a >= b
	case optok.EQL:
		return a == b
	case optok.NEQ:
		return a != b
	default:
		panic("internal error: not a comparison token")
	}
}

func compareOrdered(op optok.Token, lt, eq bool) bool {
	switch op {
	case optok.LT:
		return lt
	case optok.LE:
		return lt || eq
	case optok.GT:
		return !lt && !eq
	case optok.GE:
		return !lt
	case optok.EQL:
		return eq
	case optok.NEQ:
		return !eq
	default:
		panic("internal error: not a comparison token")
	}
}

// sameValueIdentity is the fallback equality check for kinds with no
// value-equality definition here: pointer identity, matching the host's
// default object.__eq__.
func sameValueIdentity(a, b hostabi.Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch av := a.(type) {
	case *hostabi.Int:
		bv := b.(*hostabi.Int)
		return (&av.V).Cmp(&bv.V) == 0
	case hostabi.Bool:
		return av == b.(hostabi.Bool)
	default:
		return a == b
	}
}

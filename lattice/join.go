package lattice

import "github.com/tachyon-lang/tachyonjit/internal/optok"

// Join computes the least upper bound of a and b, the operation the
// abstract interpreter applies at every control-flow merge point (a loop
// header revisited, two branches of an if rejoining) to combine the
// abstract state of every incoming edge into one that soundly describes
// all of them.
func Join(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a == Bottom {
		return b
	}
	if b == Bottom {
		return a
	}
	return Any
}

// JoinDefined joins two MaybeUndefined slot states: the result is
// undefined if either input might be, and its Kind is the Join of both
// inputs' Kinds in either case.
func JoinDefined(a, b MaybeUndefined) MaybeUndefined {
	if a.Undefined || b.Undefined {
		return MaybeUndefined{Kind: Join(a.Kind, b.Kind), Undefined: true}
	}
	return MaybeUndefined{Kind: Join(a.Kind, b.Kind)}
}

// Meet computes the greatest lower bound. Nothing in this repository calls
// it; the join-at-merge dataflow always widens via Join.
func Meet(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a == Any {
		return b
	}
	if b == Any {
		return a
	}
	return Bottom
}

// SupportsUnbox reports whether a slot proven to hold Kind k is eligible
// for the unboxed VALUE stack-slot representation (as opposed to an
// OBJECT slot holding an owned pointer). Only float64 has a native unboxed
// representation in the emitted IL; every other Kind, including Int (which
// has its own, separate tagged-pointer fast path handled by the tagged
// package rather than the unboxed-stack-slot mechanism), stays boxed on
// the emulated stack.
func SupportsUnbox(k Kind) bool { return k == Float }

// HasSpecializedBinary reports whether op between operands of kinds a and b
// is one of the operator/kind pairs the lattice classifies as having a
// specialized path. Neither absint nor stackcompiler consults it:
// stackcompiler's float fast path is chosen by emitFloatFastPath, which
// inlines ADD/SUB/MUL/POW and leaves TRUEDIV on the helper path.
func HasSpecializedBinary(op optok.Token, a, b Kind) bool {
	if a == Any || b == Any {
		return false
	}
	switch {
	case a == Int && b == Int:
		switch op {
		case optok.ADD, optok.SUB, optok.MUL, optok.FLOORDIV, optok.MOD,
			optok.LSHIFT, optok.RSHIFT, optok.AND, optok.OR, optok.XOR:
			return true
		case optok.LT, optok.LE, optok.GT, optok.GE, optok.EQL, optok.NEQ:
			return true
		}
	case a == Float && b == Float:
		switch op {
		case optok.ADD, optok.SUB, optok.MUL, optok.TRUEDIV:
			return true
		case optok.LT, optok.LE, optok.GT, optok.GE, optok.EQL, optok.NEQ:
			return true
		}
	case a == String && b == String:
		switch op {
		case optok.ADD:
			return true
		case optok.EQL, optok.NEQ:
			return true
		}
	}
	return false
}

// HasSpecializedUnary mirrors HasSpecializedBinary for unary operators.
func HasSpecializedUnary(op optok.Token, a Kind) bool {
	switch a {
	case Int:
		return op == optok.UMINUS || op == optok.UPLUS || op == optok.INVERT
	case Float:
		return op == optok.UMINUS || op == optok.UPLUS
	case Bool:
		return op == optok.NOT
	}
	return false
}

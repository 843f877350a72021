// Package lattice defines the abstract value lattice the method-at-a-time
// abstract interpreter (absint) propagates over the operand stack and fast
// locals: a coarse approximation of "what concrete host type can this slot
// hold here" good enough to decide whether a slot may be kept unboxed and
// whether a binary/unary op has a specialized helper available, without
// ever being precise enough to replace the host's real dynamic typing.
package lattice

import "fmt"

// Kind is an abstract approximation of a runtime value's type, forming a
// flat lattice: Bottom is the infimum ("no information reached this program
// point yet"), Any is the supremum ("could be anything, take the fully
// generic path"), and every other Kind is an incomparable middle element —
// joining any two distinct middle elements collapses straight to Any.
type Kind uint8

const (
	Bottom Kind = iota
	Int
	Float
	Bool
	String
	Bytes
	None
	Tuple
	List
	Dict
	Set
	Slice
	Function
	Method
	BuiltinCallable
	Any
)

var names = [...]string{
	Bottom:          "bottom",
	Int:             "int",
	Float:           "float",
	Bool:            "bool",
	String:          "str",
	Bytes:           "bytes",
	None:            "none",
	Tuple:           "tuple",
	List:            "list",
	Dict:            "dict",
	Set:             "set",
	Slice:           "slice",
	Function:        "function",
	Method:          "method",
	BuiltinCallable: "builtin",
	Any:             "any",
}

func (k Kind) String() string {
	if int(k) >= len(names) {
		return fmt.Sprintf("lattice.Kind(%d)", k)
	}
	return names[k]
}

// MaybeUndefined pairs a Kind with a flag recording that the dataflow
// analysis saw at least one predecessor path where the slot had not been
// assigned yet — a local read after a conditionally-taken store.
// A slot that MaybeUndefined.Undefined is true can never be authorized for
// the unboxed fast path or a specialized helper, regardless of its Kind,
// because emitting either requires proving the slot holds a live value of
// that Kind on every incoming edge.
type MaybeUndefined struct {
	Kind      Kind
	Undefined bool
}

func Defined(k Kind) MaybeUndefined { return MaybeUndefined{Kind: k} }

var UndefinedSlot = MaybeUndefined{Kind: Bottom, Undefined: true}

func (m MaybeUndefined) String() string {
	if m.Undefined {
		return fmt.Sprintf("%s|undefined", m.Kind)
	}
	return m.Kind.String()
}

// Package absint implements the method-at-a-time abstract interpreter:
// a forward dataflow pass over a bytecode.CodeObject's
// instructions that approximates, for every offset, what Kind the operand
// stack and fast locals hold, so stackcompiler can decide when a value may
// be kept unboxed and when a specialized binary/unary helper applies
// instead of the fully generic dispatch path.
package absint

import "github.com/tachyon-lang/tachyonjit/lattice"

// FrameState is the abstract state of one program point: the emulated
// operand stack (index 0 is the bottom of the stack) and the fast-local
// array, each slot a lattice.MaybeUndefined.
type FrameState struct {
	Stack  []lattice.MaybeUndefined
	Locals []lattice.MaybeUndefined
}

func (fs FrameState) clone() FrameState {
	out := FrameState{
		Stack:  make([]lattice.MaybeUndefined, len(fs.Stack)),
		Locals: make([]lattice.MaybeUndefined, len(fs.Locals)),
	}
	copy(out.Stack, fs.Stack)
	copy(out.Locals, fs.Locals)
	return out
}

func (fs FrameState) push(m lattice.MaybeUndefined) FrameState {
	fs.Stack = append(fs.Stack[:len(fs.Stack):len(fs.Stack)], m)
	return fs
}

func (fs FrameState) pop(n int) (FrameState, []lattice.MaybeUndefined) {
	if n == 0 {
		return fs, nil
	}
	k := len(fs.Stack) - n
	popped := fs.Stack[k:]
	fs.Stack = fs.Stack[:k]
	return fs, popped
}

func (fs FrameState) top() lattice.MaybeUndefined {
	return fs.Stack[len(fs.Stack)-1]
}

// join merges two FrameStates reaching the same offset from different
// predecessors. The two stacks must have identical depth — a violation
// indicates a malformed code object, since the host VM's bytecode always
// produces a statically determinable stack depth per offset, and a panic
// here is preferable to silently analyzing garbage.
func join(a, b FrameState) FrameState {
	if len(a.Stack) != len(b.Stack) || len(a.Locals) != len(b.Locals) {
		panic("absint: inconsistent stack/locals depth at merge point")
	}
	out := FrameState{
		Stack:  make([]lattice.MaybeUndefined, len(a.Stack)),
		Locals: make([]lattice.MaybeUndefined, len(a.Locals)),
	}
	for i := range out.Stack {
		out.Stack[i] = lattice.JoinDefined(a.Stack[i], b.Stack[i])
	}
	for i := range out.Locals {
		out.Locals[i] = lattice.JoinDefined(a.Locals[i], b.Locals[i])
	}
	return out
}

func equalState(a, b FrameState) bool {
	if len(a.Stack) != len(b.Stack) || len(a.Locals) != len(b.Locals) {
		return false
	}
	for i := range a.Stack {
		if a.Stack[i] != b.Stack[i] {
			return false
		}
	}
	for i := range a.Locals {
		if a.Locals[i] != b.Locals[i] {
			return false
		}
	}
	return true
}

// Package ilbuilder is the boundary stackcompiler emits against instead of
// depending on any one native-code backend.
// Nothing in stackcompiler imports a concrete backend; it only
// calls methods on the Builder interface here, so swapping in a real
// machine-code emitter never touches the compiler's opcode-translation
// logic. The one implementation shipped in this repo, refbuilder, interprets
// the emitted program rather than generating machine code, which is enough
// to exercise and test everything upstream of it.
package ilbuilder

import (
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
)

// Label identifies a branch target. It has no meaning until MarkLabel has
// been called for it; a Builder implementation resolves every Label when
// Finish is called, after all emission for the method is complete.
type Label int

// HelperFunc is the uniform calling shape every runtimehelpers entry point
// is adapted to before being handed to a Builder: it receives its argument
// list already popped off the emulated stack in left-to-right order and
// returns either an owned result or an error, having already recorded the
// failure on ts via SetError/SetErrorString (the helper surface's stealing
// and error-reporting contract).
type HelperFunc func(ts *hostabi.ThreadState, args []hostabi.Value) (hostabi.Value, error)

// SpreadResult is the Value a HelperFunc backing UNPACK_SEQUENCE/UNPACK_EX
// returns instead of its elements directly (EmitCallHelper only pushes a
// single result); EmitSpreadSequence unpacks it back onto the stack.
type SpreadResult []hostabi.Value

func (SpreadResult) String() string { return "<spread>" }
func (SpreadResult) Type() string   { return "tuple" }
func (SpreadResult) Truth() bool    { return true }

// IterStep is the Value a HelperFunc backing FOR_ITER returns: whether the
// iterator produced another value, and what it was. EmitForIterBranch
// consumes it directly rather than letting the compiler see a raw bool.
type IterStep struct {
	Val hostabi.Value
	Ok  bool
}

func (IterStep) String() string { return "<iter step>" }
func (IterStep) Type() string   { return "iterstep" }
func (IterStep) Truth() bool    { return true }

// Method is a finished, callable compiled method.
type Method interface {
	Invoke(ts *hostabi.ThreadState, fr *hostabi.Frame) (hostabi.Value, error)
}

// Builder accumulates one method's worth of emitted instructions. Its
// instruction set intentionally mirrors the primitives stackcompiler needs
// after it has already linearized the host bytecode's block-stack and
// branch structure: stack shuffling, local access, helper calls, and
// conditional/unconditional/exceptional branches.
type Builder interface {
	NewLabel() Label
	MarkLabel(l Label)

	EmitConst(v hostabi.Value)
	EmitLoadLocal(idx int)
	EmitStoreLocal(idx int)
	EmitDup()
	EmitPop()
	EmitSwap()
	EmitRotThree()

	// The frame-scoped accessors below all share EmitCallHelper's
	// error-tolerant contract: on a failed lookup they record the failure on
	// ts (NameError/AttributeError as appropriate) and push hostabi.NilValue
	// rather than unwinding Invoke themselves, so the compiler must guard
	// them with EmitBranchIfException exactly like any other failing call.
	EmitLoadGlobal(name string)
	EmitStoreGlobal(name string)
	EmitDeleteGlobal(name string)
	EmitLoadName(name string)
	EmitStoreName(name string)
	EmitDeleteName(name string)
	EmitLoadDeref(idx int)
	EmitStoreDeref(idx int)
	EmitLoadClassDeref(idx int, name string)
	EmitLoadPredeclared(name string)
	EmitLoadUniversal(name string)

	// EmitLoadGlobalsDict pushes the method's own frame's globals dict, the
	// one piece of frame state a plain HelperFunc cannot reach on its own.
	// MAKE_FUNCTION/MAKE_CLOSURE use it to bind the closure it creates to the
	// defining scope's globals; IMPORT_STAR uses it as the namespace a
	// wildcard import writes into. Unlike the lookups above this can never
	// fail, so it needs no exceptional-edge guard.
	EmitLoadGlobalsDict()

	// EmitCallHelper pops argc values (in push order) and calls fn with
	// them, pushing its result if it returns one successfully. If fn
	// returns an error, the method's ThreadState now has the failure
	// recorded; execution falls through to the next instruction exactly as
	// it would after any other instruction — it is the compiler's
	// responsibility to follow a call that may fail with
	// EmitBranchIfException when the call lies inside a protected region,
	// or to let the error simply unwind Invoke when it does not.
	EmitCallHelper(fn HelperFunc, argc int)

	// EmitBinaryFloat pops two values the abstract interpreter has proven to
	// be floats and pushes the float result of op applied to them, with no
	// helper call and no exceptional edge — the inlined double operation of
	// the float-specialized fast path. It must only be emitted when the
	// analysis authorizes it; the operands are not re-checked at run time.
	EmitBinaryFloat(op optok.Token)

	// EmitCompareFloat is EmitBinaryFloat's comparison twin: it pushes the
	// boolean result of op directly, never a boxed intermediate, so a
	// following conditional branch consumes it without any boxing round-trip.
	EmitCompareFloat(op optok.Token)

	// EmitUpdateLastInstruction records offset as the frame's current
	// instruction pointer before an instruction that might raise executes,
	// so a traceback built while unwinding through this method reports the
	// right line. stackcompiler skips this ahead of instructions
	// absint.Result.CanSkipLastiUpdate reports safe to skip.
	EmitUpdateLastInstruction(offset uint32)

	// EmitSpreadSequence pops one value — the result of a helper call that
	// produced an already-validated n-element sequence (UNPACK_SEQUENCE,
	// UNPACK_EX) — and pushes its n elements in reverse order, so the
	// left-to-right STORE_FAST/STORE_NAME/etc. sequence that follows in the
	// host bytecode consumes them correctly.
	EmitSpreadSequence(n int)

	// EmitForIterBranch pops one value produced by the FOR_ITER helper call
	// and either pushes the next iterated value and falls through, or
	// branches to l without pushing anything when the iterator is exhausted.
	// Unlike EmitBranchIfException, exhaustion is ordinary control flow, not
	// an exception, so it never touches the ThreadState's error slot.
	EmitForIterBranch(l Label)

	EmitBranch(l Label)
	EmitBranchIfFalse(l Label)
	EmitBranchIfTrue(l Label)

	// EmitBranchIfException checks the ThreadState recorded by the nearest
	// preceding EmitCallHelper (or frame accessor). If an exception is
	// pending, the branch releases every value the protected region pushed
	// above entryDepth — the handler's recorded entry-stack depth — leaving
	// anything beneath it (an enclosing loop's iterator, an outer try's
	// state) live, then pushes the raised value and jumps to l; it leaves
	// the exception recorded on the ThreadState for EmitRaise or the
	// eventual END_FINALLY lowering to resolve. If no exception is pending,
	// execution falls through with the stack untouched.
	EmitBranchIfException(l Label, entryDepth int)

	// EmitRaise unwinds Invoke immediately with whatever error is already
	// recorded on the ThreadState (or a generic error if none is), the
	// lowering for RERAISE-at-end-of-finally and the common case of a
	// RAISE_VARARGS that is not inside any enclosing handler.
	EmitRaise()
	EmitReturn()

	// Finish closes out emission and resolves every Label. It is an error
	// to call any Emit* method on the Builder afterward.
	Finish() (Method, error)
}

// Package stackcompiler translates one host bytecode.CodeObject into IL on
// an ilbuilder.Builder: the piece of the pipeline that actually knows what
// each opcode means, as opposed to absint (which only needs to know each
// opcode's abstract effect) or ilbuilder (which only knows how to assemble
// whatever it is told to emit).
package stackcompiler

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/absint"
	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/ilbuilder"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
	"github.com/tachyon-lang/tachyonjit/lattice"
	"github.com/tachyon-lang/tachyonjit/runtimehelpers"
)

// compiler holds everything one Compile call threads through the single
// forward pass over the decoded instruction stream.
type compiler struct {
	code     *bytecode.CodeObject
	b        ilbuilder.Builder
	analysis *absint.Result

	// blockEnds maps a SETUP_LOOP/SETUP_EXCEPT/SETUP_FINALLY instruction's
	// offset to the offset of the POP_BLOCK that closes it (matchBlocks).
	blockEnds map[uint32]uint32
	// handlersByStart maps the offset immediately after a SETUP_EXCEPT/
	// SETUP_FINALLY (the start of its protected region) to the
	// bytecode.ExceptHandler describing it.
	handlersByStart map[uint32]bytecode.ExceptHandler

	blocks blockStack
	labels map[uint32]ilbuilder.Label

	// reasonIdx/retIdx are the compiler-allocated fast locals that thread an
	// in-flight break/continue/return through finally blocks as a reason
	// code plus parked return value. -1 until the first opcode needs them.
	reasonIdx int
	retIdx    int

	// loopVarSeq numbers the iteration-variable locals allocated by
	// FOR_ITER, one per loop block that iterates.
	loopVarSeq int

	// uncaught is where a failing call with no enclosing except/finally
	// block routes to: it simply re-raises whatever is on the ThreadState,
	// unwinding Invoke exactly as EmitCallHelper's contract promises.
	uncaught ilbuilder.Label
}

// Compile lowers code's bytecode into IL on b. It rejects code objects that
// carry any opcode.IsUnsupported instruction up front rather than partially
// emitting IL for a method the driver could never actually run.
func Compile(code *bytecode.CodeObject, b ilbuilder.Builder) (ilbuilder.Method, error) {
	instrs := bytecode.Decode(code.Code)
	for _, in := range instrs {
		if in.Op.IsUnsupported() {
			return nil, fmt.Errorf("stackcompiler: opcode %s is not compilable", in.Op)
		}
	}

	c := &compiler{
		code:            code,
		b:               b,
		analysis:        absint.Run(code),
		blockEnds:       matchBlocks(instrs),
		handlersByStart: indexHandlers(code.Handlers),
		labels:          make(map[uint32]ilbuilder.Label),
		uncaught:        b.NewLabel(),
		reasonIdx:       -1,
		retIdx:          -1,
	}
	return c.compile(instrs)
}

// matchBlocks pairs every SETUP_LOOP/SETUP_EXCEPT/SETUP_FINALLY with the
// POP_BLOCK that closes it, purely by nesting depth — needed because a
// loop's break target (just past its POP_BLOCK) must be known before the
// loop body, which precedes it in the instruction stream, is compiled.
func matchBlocks(instrs []bytecode.Instr) map[uint32]uint32 {
	var open []uint32
	pairs := make(map[uint32]uint32)
	for _, in := range instrs {
		switch in.Op {
		case bytecode.SETUP_LOOP, bytecode.SETUP_EXCEPT, bytecode.SETUP_FINALLY:
			open = append(open, in.Offset)
		case bytecode.POP_BLOCK:
			if n := len(open); n > 0 {
				pairs[open[n-1]] = in.Offset
				open = open[:n-1]
			}
		}
	}
	return pairs
}

// indexHandlers keys code's exception handler table by the offset where its
// protected region begins, the offset a SETUP_EXCEPT/SETUP_FINALLY
// instruction's own size puts just past it, so the SETUP instruction that
// opens the region can find its handler without re-deriving nesting from
// the block-stack opcodes at all.
func indexHandlers(handlers []bytecode.ExceptHandler) map[uint32]bytecode.ExceptHandler {
	idx := make(map[uint32]bytecode.ExceptHandler, len(handlers))
	for _, h := range handlers {
		idx[h.PC0] = h
	}
	return idx
}

// label returns the Label standing for offset, creating it the first time
// any instruction — a branch that targets it, or the main pass finally
// reaching it — asks for it. A single forward pass suffices: ilbuilder
// resolves every label at Finish time, long after it was first referenced.
func (c *compiler) label(offset uint32) ilbuilder.Label {
	if l, ok := c.labels[offset]; ok {
		return l
	}
	l := c.b.NewLabel()
	c.labels[offset] = l
	return l
}

func (c *compiler) compile(instrs []bytecode.Instr) (ilbuilder.Method, error) {
	for _, in := range instrs {
		c.b.MarkLabel(c.label(in.Offset))
		if !c.analysis.CanSkipLastiUpdate(in.Offset) {
			c.b.EmitUpdateLastInstruction(in.Offset)
		}
		next := in.Offset + uint32(in.Size())
		if err := c.compileOne(in, next); err != nil {
			return nil, err
		}
	}
	// A branch computed from a block that closes at the very end of the
	// code object (a loop whose break target is end-of-method) references
	// a label the instruction loop above never reaches; give it somewhere
	// to land only if something actually asked for it.
	if l, ok := c.labels[uint32(len(c.code.Code))]; ok {
		c.b.MarkLabel(l)
	}
	c.b.MarkLabel(c.uncaught)
	c.b.EmitRaise()
	return c.b.Finish()
}

// guardException routes the exceptional edge of whatever call or frame
// access immediately precedes it to the nearest enclosing except/finally
// block, or to the method-wide uncaught-exception tail when there is none.
// The handler's recorded entry depth rides along so the landing pad
// releases only what the protected region pushed above it.
func (c *compiler) guardException() {
	target, depth := c.uncaught, 0
	if i, ok := c.blocks.innermostHandler(); ok {
		blk := c.blocks.at(i)
		target, depth = blk.handlerLabel, blk.entryDepth
	}
	c.b.EmitBranchIfException(target, depth)
}

// call emits a guarded helper call whose result is the value the opcode
// wants left on the stack. Every call is guarded uniformly, whether or not
// the particular helper can actually fail — the branch is simply never
// taken for one that can't, and this spares the compiler from having to
// track per-helper failability.
func (c *compiler) call(fn ilbuilder.HelperFunc, argc int) {
	c.b.EmitCallHelper(fn, argc)
	c.guardException()
}

// voidCall emits a guarded helper call whose result is only a placeholder
// the opcode's declared stack effect does not want, and drops it once the
// non-exceptional path falls through.
func (c *compiler) voidCall(fn ilbuilder.HelperFunc, argc int) {
	c.call(fn, argc)
	c.b.EmitPop()
}

func (c *compiler) compileOne(in bytecode.Instr, next uint32) error {
	switch in.Op {
	case bytecode.NOP:

	case bytecode.POP_TOP:
		c.b.EmitPop()
	case bytecode.DUP_TOP:
		c.b.EmitDup()
	case bytecode.ROT_TWO:
		c.b.EmitSwap()

	case bytecode.COMPARE_EQ, bytecode.COMPARE_NE:
		if !c.emitFloatFastPath(binOpToken(in.Op), in.Offset) {
			// One specialization cell per compare site: the first call
			// observes the operand types and rewrites the cell's target.
			cell := runtimehelpers.NewEqualsSiteCell()
			c.call(equalsCellHelper(cell, in.Op == bytecode.COMPARE_NE), 2)
		}

	case bytecode.COMPARE_LT, bytecode.COMPARE_LE, bytecode.COMPARE_GT,
		bytecode.COMPARE_GE,
		bytecode.BINARY_ADD, bytecode.BINARY_SUB, bytecode.BINARY_MUL,
		bytecode.BINARY_TRUE_DIVIDE, bytecode.BINARY_FLOOR_DIVIDE, bytecode.BINARY_MODULO,
		bytecode.BINARY_POWER, bytecode.BINARY_MATRIX_MULTIPLY,
		bytecode.BINARY_LSHIFT, bytecode.BINARY_RSHIFT,
		bytecode.BINARY_AND, bytecode.BINARY_XOR, bytecode.BINARY_OR,
		bytecode.INPLACE_ADD, bytecode.INPLACE_SUB, bytecode.INPLACE_MUL,
		bytecode.INPLACE_TRUE_DIVIDE, bytecode.INPLACE_FLOOR_DIVIDE, bytecode.INPLACE_MODULO,
		bytecode.INPLACE_POWER, bytecode.INPLACE_MATRIX_MULTIPLY,
		bytecode.INPLACE_LSHIFT, bytecode.INPLACE_RSHIFT,
		bytecode.INPLACE_AND, bytecode.INPLACE_XOR, bytecode.INPLACE_OR:
		if tok := binOpToken(in.Op); !c.emitFloatFastPath(tok, in.Offset) {
			c.call(binaryHelperFor(tok), 2)
		}

	case bytecode.UNARY_POSITIVE, bytecode.UNARY_NEGATIVE, bytecode.UNARY_INVERT,
		bytecode.UNARY_NOT, bytecode.UNARY_LEN:
		c.call(unaryHelperFor(unOpToken(in.Op)), 1)

	case bytecode.LOAD_CONST:
		c.b.EmitConst(constValue(c.code.Consts[in.Arg]))
	case bytecode.LOAD_NONE:
		c.b.EmitConst(hostabi.NilValue)
	case bytecode.LOAD_TRUE:
		c.b.EmitConst(hostabi.Bool(true))
	case bytecode.LOAD_FALSE:
		c.b.EmitConst(hostabi.Bool(false))

	case bytecode.LOAD_FAST:
		c.b.EmitLoadLocal(int(in.Arg))
	case bytecode.STORE_FAST:
		c.b.EmitStoreLocal(int(in.Arg))
	case bytecode.DELETE_FAST:
		// No unbound-local sentinel in this reference object model: a
		// deleted fast local simply reads back as None.
		c.b.EmitConst(hostabi.NilValue)
		c.b.EmitStoreLocal(int(in.Arg))

	case bytecode.LOAD_GLOBAL:
		c.b.EmitLoadGlobal(c.code.Names[in.Arg])
		c.guardException()
	case bytecode.STORE_GLOBAL:
		c.b.EmitStoreGlobal(c.code.Names[in.Arg])
	case bytecode.DELETE_GLOBAL:
		c.b.EmitDeleteGlobal(c.code.Names[in.Arg])
		c.guardException()
	case bytecode.LOAD_NAME:
		c.b.EmitLoadName(c.code.Names[in.Arg])
		c.guardException()
	case bytecode.STORE_NAME:
		c.b.EmitStoreName(c.code.Names[in.Arg])
	case bytecode.DELETE_NAME:
		c.b.EmitDeleteName(c.code.Names[in.Arg])
		c.guardException()
	case bytecode.LOAD_DEREF:
		c.b.EmitLoadDeref(int(in.Arg))
	case bytecode.STORE_DEREF:
		c.b.EmitStoreDeref(int(in.Arg))
	case bytecode.LOAD_CLASSDEREF:
		c.b.EmitLoadClassDeref(int(in.Arg), c.freevarName(int(in.Arg)))
	case bytecode.LOAD_PREDECLARED:
		c.b.EmitLoadPredeclared(c.code.Names[in.Arg])
		c.guardException()
	case bytecode.LOAD_UNIVERSAL:
		c.b.EmitLoadUniversal(c.code.Names[in.Arg])
		c.guardException()

	case bytecode.LOAD_ATTR:
		c.call(loadAttrHelper(c.code.Names[in.Arg]), 1)
	case bytecode.STORE_ATTR:
		c.voidCall(storeAttrHelper(c.code.Names[in.Arg]), 2)
	case bytecode.DELETE_ATTR:
		c.voidCall(deleteAttrHelper(c.code.Names[in.Arg]), 1)
	case bytecode.LOAD_SUBSCR:
		c.call(subscrHelper, 2)
	case bytecode.STORE_SUBSCR:
		c.voidCall(storeSubscrHelper, 3)
	case bytecode.DELETE_SUBSCR:
		c.voidCall(deleteSubscrHelper, 2)
	case bytecode.BUILD_SLICE:
		c.call(buildSliceHelper, 3)

	case bytecode.BUILD_TUPLE:
		c.call(buildTupleHelper(int(in.Arg)), int(in.Arg))
	case bytecode.BUILD_LIST:
		c.call(buildListHelper(int(in.Arg)), int(in.Arg))
	case bytecode.BUILD_SET:
		c.call(buildSetHelper(int(in.Arg)), int(in.Arg))
	case bytecode.BUILD_MAP:
		c.call(buildMapHelper, 0)
	case bytecode.LIST_APPEND:
		c.voidCall(listAppendHelper, 2)
	case bytecode.SET_ADD:
		c.voidCall(setAddHelper, 2)
	case bytecode.MAP_ADD:
		c.voidCall(mapAddHelper, 3)
	case bytecode.LIST_EXTEND:
		c.voidCall(listExtendHelper, 2)
	case bytecode.DICT_UPDATE:
		c.voidCall(dictUpdateHelper, 2)
	case bytecode.LIST_TO_TUPLE:
		c.call(listToTupleHelper, 1)

	case bytecode.GET_ITER:
		c.call(getIterHelper, 1)
	case bytecode.FOR_ITER:
		c.compileForIter(in)

	case bytecode.IMPORT_NAME:
		c.call(importNameHelper(c.code.Names[in.Arg]), 1)
	case bytecode.IMPORT_FROM:
		c.b.EmitDup()
		c.call(importFromHelper(c.code.Names[in.Arg]), 1)
	case bytecode.IMPORT_STAR:
		c.b.EmitLoadGlobalsDict()
		c.voidCall(importStarHelper, 2)

	case bytecode.BUILD_CLASS:
		c.call(buildClassHelper(c.code.Name), 2)
	case bytecode.MAKE_FUNCTION:
		c.b.EmitLoadGlobalsDict()
		c.call(makeFunctionHelper(c.nestedCode(in.Arg)), 1)
	case bytecode.MAKE_CLOSURE:
		c.b.EmitLoadGlobalsDict()
		c.b.EmitSwap()
		c.call(makeClosureHelper(c.nestedCode(in.Arg)), 2)
	case bytecode.SET_DEFAULTS:
		c.call(setDefaultsHelper, 2)
	case bytecode.SET_KW_DEFAULTS:
		c.call(setKwDefaultsHelper, 2)
	case bytecode.SET_ANNOTATIONS:
		c.call(setAnnotationsHelper, 2)

	case bytecode.SETUP_LOOP:
		c.compileSetupLoop(in, next)
	case bytecode.SETUP_EXCEPT:
		c.compileSetupHandler(blockExcept, next)
	case bytecode.SETUP_FINALLY:
		c.compileSetupHandler(blockFinally, next)
	case bytecode.POP_BLOCK:
		c.compilePopBlock()
	case bytecode.POP_EXCEPT:
		c.voidCall(clearErrorHelper, 0)
		if i, ok := c.blocks.top(); ok && c.blocks.at(i).kind == blockPopExcept {
			c.blocks.pop()
		}
	case bytecode.END_FINALLY:
		c.compileEndFinally()
	case bytecode.BREAK_LOOP:
		c.compileLoopExit(reasonBreak, in.Offset)
	case bytecode.CONTINUE_LOOP:
		c.compileLoopExit(reasonContinue, in.Offset)

	case bytecode.RAISE_VARARGS:
		c.call(raiseHelper(int(in.Arg)), int(in.Arg))
	case bytecode.COMPARE_EXCEPTIONS:
		c.call(compareExceptionsHelper, 2)

	case bytecode.UNPACK_SEQUENCE:
		c.call(unpackSequenceHelper(int(in.Arg)), 1)
		c.b.EmitSpreadSequence(int(in.Arg))
	case bytecode.UNPACK_EX:
		before, after := int(in.Arg>>8), int(in.Arg&0xff)
		c.call(unpackExHelper(before, after), 1)
		c.b.EmitSpreadSequence(before + after + 1)

	case bytecode.RETURN_VALUE:
		c.compileReturn()
	case bytecode.PRINT_EXPR:
		c.voidCall(printExprHelper, 1)

	case bytecode.JUMP_ABSOLUTE:
		c.b.EmitBranch(c.label(in.Arg))
	case bytecode.JUMP_IF_TRUE:
		c.b.EmitBranchIfTrue(c.label(in.Arg))
	case bytecode.JUMP_IF_FALSE:
		c.b.EmitBranchIfFalse(c.label(in.Arg))

	case bytecode.CALL_FUNCTION, bytecode.CALL_FUNCTION_VAR:
		nargs := int(in.Arg)
		if in.Op == bytecode.CALL_FUNCTION && nargs <= 4 {
			// Fixed-arity call with no keywords: dispatch through a
			// per-call-site specialization cell instead of the generic
			// flavor switch.
			cell := runtimehelpers.NewCallSiteCell()
			c.call(specializedCallHelper(cell), 1+nargs)
		} else {
			c.call(callHelper(nargs, false), 1+nargs)
		}
	case bytecode.CALL_FUNCTION_KW, bytecode.CALL_FUNCTION_VAR_KW:
		nargs := int(in.Arg)
		c.call(callHelper(nargs, true), 1+nargs+1)

	default:
		panic(fmt.Sprintf("internal error: stackcompiler has no lowering for %s", in.Op))
	}
	return nil
}

// compileForIter lowers FOR_ITER's three-way shape — advance, yield, or
// exhaust. The iterator lives on the stack between iterations, and is
// additionally mirrored into the enclosing loop block's iteration-variable
// local on every pass, so break, normal exhaustion and exception unwind
// all have a place to release it from. The fallthrough path duplicates the
// iterator so the call consumes a disposable copy; on exhaustion the stack
// copy is dropped and the loop-variable local cleared before jumping to
// the loop's exit (EmitForIterBranch itself only ever pops the IterStep).
func (c *compiler) compileForIter(in bytecode.Instr) {
	var loop *block
	if li, ok := c.blocks.innermostLoop(); ok {
		loop = c.blocks.at(li)
		if loop.loopVarIdx < 0 {
			loop.loopVarIdx = c.syntheticLocal(fmt.Sprintf(".loop-iter-%d", c.loopVarSeq))
			c.loopVarSeq++
		}
		c.b.EmitDup()
		c.b.EmitStoreLocal(loop.loopVarIdx)
	}

	exhausted := c.b.NewLabel()
	cont := c.b.NewLabel()

	c.b.EmitDup()
	c.call(forIterNextHelper, 1)
	c.b.EmitForIterBranch(exhausted)
	c.b.EmitBranch(cont)

	c.b.MarkLabel(exhausted)
	c.b.EmitPop()
	if loop != nil {
		c.emitClearLocal(loop.loopVarIdx)
	}
	c.b.EmitBranch(c.label(in.Arg))

	c.b.MarkLabel(cont)
}

// emitClearLocal releases whatever idx holds by overwriting it with None.
func (c *compiler) emitClearLocal(idx int) {
	c.b.EmitConst(hostabi.NilValue)
	c.b.EmitStoreLocal(idx)
}

func (c *compiler) compileSetupLoop(in bytecode.Instr, next uint32) {
	popOffset, ok := c.blockEnds[in.Offset]
	if !ok {
		panic("internal error: SETUP_LOOP with no matching POP_BLOCK")
	}
	popInstr, ok := bytecode.InstrAt(bytecode.Decode(c.code.Code), popOffset)
	breakOffset := popOffset + 1
	if ok {
		breakOffset = popOffset + uint32(popInstr.Size())
	}
	c.blocks.push(block{
		kind:          blockLoop,
		entryDepth:    len(c.analysis.GetStackInfo(in.Offset)),
		breakLabel:    c.label(breakOffset),
		continueLabel: c.label(next),
		loopVarIdx:    -1,
	})
}

func (c *compiler) compileSetupHandler(kind blockKind, protectedStart uint32) {
	h, ok := c.handlersByStart[protectedStart]
	if !ok {
		panic("internal error: SETUP_EXCEPT/SETUP_FINALLY with no matching handler entry")
	}
	if kind == blockFinally {
		// The reason local must read "none" on any entry to the finally body
		// that is not an in-flight break/continue/return, including a second
		// pass through the same try in a loop.
		c.b.EmitConst(reasonNone)
		c.b.EmitStoreLocal(c.reasonLocal())
	}
	c.blocks.push(block{
		kind:         kind,
		entryDepth:   len(c.analysis.GetStackInfo(h.PC0)),
		handlerLabel: c.label(h.StartPC),
		loopVarIdx:   -1,
	})
}

func (c *compiler) compilePopBlock() {
	i, ok := c.blocks.top()
	if !ok {
		panic("internal error: POP_BLOCK with empty block stack")
	}
	switch blk := c.blocks.at(i); blk.kind {
	case blockLoop:
		c.blocks.pop()
	case blockExcept:
		blk.kind = blockPopExcept
	case blockFinally:
		blk.kind = blockEndFinally
	default:
		panic("internal error: POP_BLOCK on an already-converted block")
	}
}

// compileReturn lowers RETURN_VALUE. A return crossing one or more finally
// blocks cannot simply leave the method: it parks the return value and a
// "returning" reason code in their locals, marks every crossed finally so
// its END_FINALLY emits the return dispatch, and enters the innermost
// finally body the same way the normal completion path does.
func (c *compiler) compileReturn() {
	fins := c.blocks.openFinallys(-1)
	if len(fins) == 0 {
		c.b.EmitReturn()
		return
	}
	for _, i := range fins {
		c.blocks.at(i).returnsThrough = true
	}
	c.b.EmitStoreLocal(c.retLocal())
	c.b.EmitConst(reasonReturn)
	c.b.EmitStoreLocal(c.reasonLocal())
	c.enterFinally(fins[len(fins)-1])
}

// compileLoopExit lowers BREAK_LOOP and CONTINUE_LOOP at offset. Like
// compileReturn, an exit crossing a finally detours through it with the
// matching reason code, leaving any loop state beneath the finally's entry
// depth for the post-finally redirect to unwind. A direct break unwinds
// the stack to the loop's entry depth itself — releasing the iterator a
// FOR_ITER left there — and clears the loop's iteration-variable local.
func (c *compiler) compileLoopExit(reason reasonCode, offset uint32) {
	li, ok := c.blocks.innermostLoop()
	if !ok {
		panic("internal error: BREAK_LOOP/CONTINUE_LOOP outside any loop")
	}
	loop := c.blocks.at(li)
	fins := c.blocks.openFinallys(li)
	if len(fins) == 0 {
		if reason == reasonBreak {
			c.emitLoopBreak(li, len(c.analysis.GetStackInfo(offset)))
		} else {
			c.b.EmitBranch(loop.continueLabel)
		}
		return
	}
	for _, i := range fins {
		if reason == reasonBreak {
			c.blocks.at(i).breaksThrough = true
		} else {
			c.blocks.at(i).continuesThrough = true
		}
	}
	c.b.EmitConst(reason)
	c.b.EmitStoreLocal(c.reasonLocal())
	c.enterFinally(fins[len(fins)-1])
}

// emitLoopBreak unwinds the operand stack from fromDepth down to the
// loop's entry depth (releasing each popped value, the iterator included),
// clears the loop's iteration-variable local, and branches past the loop.
func (c *compiler) emitLoopBreak(li, fromDepth int) {
	loop := c.blocks.at(li)
	for n := fromDepth - loop.entryDepth; n > 0; n-- {
		c.b.EmitPop()
	}
	if loop.loopVarIdx >= 0 {
		c.emitClearLocal(loop.loopVarIdx)
	}
	c.b.EmitBranch(loop.breakLabel)
}

// compileEndFinally decides at run time whether the finally body it closes
// was entered with a pending exception (re-raise through the enclosing
// handler), an in-flight break/continue/return (dispatch on the reason
// code), or a normal completion (fall through). Only the dispatch arms for
// flags actually set during compilation are emitted. Outside a converted
// finally block — the bare re-raise at the end of an unmatched except
// chain — it degenerates to the pending-exception check alone.
func (c *compiler) compileEndFinally() {
	var blk block
	closing := false
	if i, ok := c.blocks.top(); ok && c.blocks.at(i).kind == blockEndFinally {
		blk = c.blocks.pop()
		closing = true
	}
	// Drop the entry marker (or the raised value, on the exception edge).
	c.b.EmitPop()
	c.voidCall(endFinallyHelper, 0)
	if !closing {
		return
	}
	if blk.returnsThrough {
		c.emitReasonArm(reasonReturn, func() {
			if fins := c.blocks.openFinallys(-1); len(fins) > 0 {
				c.enterFinally(fins[len(fins)-1])
				return
			}
			c.b.EmitConst(reasonNone)
			c.b.EmitStoreLocal(c.reasonLocal())
			c.b.EmitLoadLocal(c.retLocal())
			c.b.EmitReturn()
		})
	}
	if blk.breaksThrough {
		c.emitReasonArm(reasonBreak, func() { c.emitLoopRedirect(reasonBreak, blk.entryDepth) })
	}
	if blk.continuesThrough {
		c.emitReasonArm(reasonContinue, func() { c.emitLoopRedirect(reasonContinue, blk.entryDepth) })
	}
}

// emitReasonArm emits "if the reason local holds r, do emitBody" around the
// fall-through path of an END_FINALLY.
func (c *compiler) emitReasonArm(r reasonCode, emitBody func()) {
	skip := c.b.NewLabel()
	c.b.EmitLoadLocal(c.reasonLocal())
	c.b.EmitCallHelper(reasonIsHelper(r), 1)
	c.b.EmitBranchIfFalse(skip)
	emitBody()
	c.b.MarkLabel(skip)
}

// emitLoopRedirect resumes an in-flight break/continue once a finally body
// has completed: into the next outer finally if one still separates it
// from the loop, else directly to the loop's break or continue target.
// fromDepth is the operand-stack depth on the redirecting path (the
// just-finished finally's entry depth); a break uses it to unwind whatever
// loop state was preserved beneath the finally.
func (c *compiler) emitLoopRedirect(r reasonCode, fromDepth int) {
	for i := len(c.blocks) - 1; i >= 0; i-- {
		switch c.blocks.at(i).kind {
		case blockFinally:
			c.enterFinally(i)
			return
		case blockLoop:
			c.b.EmitConst(reasonNone)
			c.b.EmitStoreLocal(c.reasonLocal())
			if r == reasonBreak {
				c.emitLoopBreak(i, fromDepth)
			} else {
				c.b.EmitBranch(c.blocks.at(i).continueLabel)
			}
			return
		}
	}
	panic("internal error: break/continue reason code with no enclosing loop")
}

// enterFinally branches into a finally body on a non-exceptional path,
// pushing the marker value its entry depth expects.
func (c *compiler) enterFinally(i int) {
	c.b.EmitConst(hostabi.NilValue)
	c.b.EmitBranch(c.blocks.at(i).handlerLabel)
}

// emitFloatFastPath emits the inlined double operation for a binary or
// comparison opcode whose operands the analysis proved are both floats,
// returning false when the generic helper path must be used instead.
// Division and modulo stay on the guarded helper path: their zero-divisor
// check has to be able to raise.
func (c *compiler) emitFloatFastPath(tok optok.Token, offset uint32) bool {
	st := c.analysis.GetStackInfo(offset)
	if len(st) < 2 {
		return false
	}
	a, b := st[len(st)-2], st[len(st)-1]
	if a.Undefined || b.Undefined || a.Kind != lattice.Float || b.Kind != lattice.Float {
		return false
	}
	if tok.IsComparison() {
		c.b.EmitCompareFloat(tok)
		return true
	}
	switch tok {
	case optok.ADD, optok.SUB, optok.MUL, optok.POW:
		c.b.EmitBinaryFloat(tok)
		return true
	}
	return false
}

// syntheticLocal returns the index of a named compiler-allocated fast
// local, appending it to the code object's local table on first use.
// Frames are sized from that table at call time, after compilation, so the
// extra slot exists by the time emitted code runs.
func (c *compiler) syntheticLocal(name string) int {
	for i, b := range c.code.Locals {
		if b.Name == name {
			return i
		}
	}
	c.code.Locals = append(c.code.Locals, bytecode.Binding{Name: name})
	return len(c.code.Locals) - 1
}

func (c *compiler) reasonLocal() int {
	if c.reasonIdx < 0 {
		c.reasonIdx = c.syntheticLocal(".finally-reason")
	}
	return c.reasonIdx
}

func (c *compiler) retLocal() int {
	if c.retIdx < 0 {
		c.retIdx = c.syntheticLocal(".finally-retval")
	}
	return c.retIdx
}

// nestedCode resolves MAKE_FUNCTION/MAKE_CLOSURE's argument against the
// enclosing code object's nested-function table.
func (c *compiler) nestedCode(arg uint32) *bytecode.CodeObject {
	if int(arg) >= len(c.code.Funcs) {
		panic(fmt.Sprintf("internal error: MAKE_FUNCTION argument %d out of range", arg))
	}
	return c.code.Funcs[arg]
}

// freevarName resolves LOAD_CLASSDEREF's name operand: idx addresses a
// combined cellvar/freevar space, cellvars (indices into Locals that got
// boxed) first and freevars after, mirroring the host code object's own
// cell/freevar layout.
func (c *compiler) freevarName(idx int) string {
	if fvIdx := idx - len(c.code.Cells); fvIdx >= 0 && fvIdx < len(c.code.Freevars) {
		return c.code.Freevars[fvIdx].Name
	}
	return ""
}

func constValue(v any) hostabi.Value {
	switch x := v.(type) {
	case int64:
		return hostabi.NewIntFromInt64(x)
	case int:
		return hostabi.NewIntFromInt64(int64(x))
	case float64:
		return hostabi.NewFloat(x)
	case string:
		return hostabi.NewStr(x)
	default:
		panic(fmt.Sprintf("internal error: unsupported constant type %T", v))
	}
}

// binOpToken recovers the optok.Token for a COMPARE_*/BINARY_*/INPLACE_*
// opcode by offset arithmetic from the family's first member, relying on
// bytecode's opcode table being laid out in the same relative order as
// optok's own comparison and arithmetic groups.
func binOpToken(op bytecode.Opcode) optok.Token {
	switch {
	case op >= bytecode.COMPARE_LT && op <= bytecode.COMPARE_NE:
		return optok.LT + optok.Token(op-bytecode.COMPARE_LT)
	case op >= bytecode.BINARY_ADD && op <= bytecode.BINARY_OR:
		return optok.ADD + optok.Token(op-bytecode.BINARY_ADD)
	case op >= bytecode.INPLACE_ADD && op <= bytecode.INPLACE_OR:
		return optok.ADD + optok.Token(op-bytecode.INPLACE_ADD)
	default:
		return optok.ILLEGAL
	}
}

func unOpToken(op bytecode.Opcode) optok.Token {
	return optok.UPLUS + optok.Token(op-bytecode.UNARY_POSITIVE)
}

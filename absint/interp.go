package absint

import (
	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
	"github.com/tachyon-lang/tachyonjit/lattice"
)

// Result is the outcome of running the analysis over one CodeObject: the
// abstract FrameState on entry to every offset that begins an instruction,
// queryable by stackcompiler while it linearizes the same code object.
type Result struct {
	entry map[uint32]FrameState
	instr map[uint32]bytecode.Instr
	code  *bytecode.CodeObject
}

// Run performs the forward dataflow pass over code, returning the
// per-offset abstract state. It never fails: an
// analysis that cannot prove anything useful about a region simply widens
// to lattice.Any there, which downstream consumers treat as "take the fully
// generic path" rather than as an error.
func Run(code *bytecode.CodeObject) *Result {
	instrs := bytecode.Decode(code.Code)
	byOffset := make(map[uint32]bytecode.Instr, len(instrs))
	for _, in := range instrs {
		byOffset[in.Offset] = in
	}

	r := &Result{entry: make(map[uint32]FrameState), instr: byOffset, code: code}
	if len(instrs) == 0 {
		return r
	}

	initial := FrameState{
		Locals: make([]lattice.MaybeUndefined, len(code.Locals)),
	}
	for i := range initial.Locals {
		if i < code.NumParams+code.NumKwOnlyParams ||
			(code.HasVarargs && i == code.NumParams+code.NumKwOnlyParams) ||
			(code.HasKwargs && i == len(code.Locals)-1) {
			initial.Locals[i] = lattice.Defined(lattice.Any)
		} else {
			initial.Locals[i] = lattice.UndefinedSlot
		}
	}

	wl := &worklist{}
	r.entry[instrs[0].Offset] = initial
	wl.push(instrs[0].Offset)

	for {
		offset, ok := wl.pop()
		if !ok {
			break
		}
		in, ok := byOffset[offset]
		if !ok {
			continue
		}
		state := r.entry[offset]
		succs := step(in, state, code)
		// A handler's landing pad is reachable from its protected region
		// with the region's entry stack preserved beneath the raised value:
		// the emitted pad releases only what accumulated above that
		// snapshot. Locals widen to Any because any store inside the region
		// may or may not have executed before the raise.
		for _, h := range code.Handlers {
			if h.PC0 != offset {
				continue
			}
			hs := state.clone()
			for i := range hs.Locals {
				hs.Locals[i] = lattice.Defined(lattice.Any)
			}
			hs = hs.push(lattice.Defined(lattice.Any))
			succs = append(succs, successor{offset: h.StartPC, state: hs})
		}
		for _, s := range succs {
			merged := s.state
			if prev, seen := r.entry[s.offset]; seen {
				merged = join(prev, s.state)
				if equalState(merged, prev) {
					continue
				}
			}
			r.entry[s.offset] = merged
			wl.push(s.offset)
		}
	}
	return r
}

type successor struct {
	offset uint32
	state  FrameState
}

// step computes the abstract state on entry to every successor of in, given
// the abstract state on entry to in itself.
func step(in bytecode.Instr, state FrameState, code *bytecode.CodeObject) []successor {
	next := in.Offset + uint32(in.Size())
	s := state.clone()

	switch in.Op {
	case bytecode.POP_TOP:
		s, _ = s.pop(1)
	case bytecode.DUP_TOP:
		s = s.push(s.top())
	case bytecode.ROT_TWO:
		n := len(s.Stack)
		s.Stack[n-1], s.Stack[n-2] = s.Stack[n-2], s.Stack[n-1]

	case bytecode.COMPARE_LT, bytecode.COMPARE_LE, bytecode.COMPARE_GT,
		bytecode.COMPARE_GE, bytecode.COMPARE_EQ, bytecode.COMPARE_NE:
		s, _ = s.pop(2)
		s = s.push(lattice.Defined(lattice.Bool))

	case bytecode.BINARY_ADD, bytecode.BINARY_SUB, bytecode.BINARY_MUL,
		bytecode.BINARY_TRUE_DIVIDE, bytecode.BINARY_FLOOR_DIVIDE, bytecode.BINARY_MODULO,
		bytecode.BINARY_POWER, bytecode.BINARY_MATRIX_MULTIPLY,
		bytecode.BINARY_LSHIFT, bytecode.BINARY_RSHIFT,
		bytecode.BINARY_AND, bytecode.BINARY_XOR, bytecode.BINARY_OR,
		bytecode.INPLACE_ADD, bytecode.INPLACE_SUB, bytecode.INPLACE_MUL,
		bytecode.INPLACE_TRUE_DIVIDE, bytecode.INPLACE_FLOOR_DIVIDE, bytecode.INPLACE_MODULO,
		bytecode.INPLACE_POWER, bytecode.INPLACE_MATRIX_MULTIPLY,
		bytecode.INPLACE_LSHIFT, bytecode.INPLACE_RSHIFT,
		bytecode.INPLACE_AND, bytecode.INPLACE_XOR, bytecode.INPLACE_OR:
		var popped []lattice.MaybeUndefined
		s, popped = s.pop(2)
		s = s.push(lattice.Defined(binaryResultKind(in.Op, popped[0].Kind, popped[1].Kind)))

	case bytecode.UNARY_POSITIVE, bytecode.UNARY_NEGATIVE:
		var popped []lattice.MaybeUndefined
		s, popped = s.pop(1)
		k := popped[0].Kind
		if k != lattice.Int && k != lattice.Float {
			k = lattice.Any
		}
		s = s.push(lattice.Defined(k))
	case bytecode.UNARY_INVERT:
		var popped []lattice.MaybeUndefined
		s, popped = s.pop(1)
		k := lattice.Any
		if popped[0].Kind == lattice.Int {
			k = lattice.Int
		}
		s = s.push(lattice.Defined(k))
	case bytecode.UNARY_NOT:
		s, _ = s.pop(1)
		s = s.push(lattice.Defined(lattice.Bool))
	case bytecode.UNARY_LEN:
		s, _ = s.pop(1)
		s = s.push(lattice.Defined(lattice.Int))

	case bytecode.LOAD_CONST:
		s = s.push(lattice.Defined(classifyConst(code.Consts[in.Arg])))
	case bytecode.LOAD_NONE:
		s = s.push(lattice.Defined(lattice.None))
	case bytecode.LOAD_TRUE, bytecode.LOAD_FALSE:
		s = s.push(lattice.Defined(lattice.Bool))

	case bytecode.LOAD_FAST:
		s = s.push(s.Locals[in.Arg])
	case bytecode.STORE_FAST:
		var popped []lattice.MaybeUndefined
		s, popped = s.pop(1)
		s.Locals[in.Arg] = popped[0]
	case bytecode.DELETE_FAST:
		s.Locals[in.Arg] = lattice.UndefinedSlot

	case bytecode.LOAD_GLOBAL, bytecode.LOAD_NAME, bytecode.LOAD_DEREF,
		bytecode.LOAD_CLASSDEREF, bytecode.LOAD_PREDECLARED, bytecode.LOAD_UNIVERSAL:
		s = s.push(lattice.Defined(lattice.Any))
	case bytecode.STORE_GLOBAL, bytecode.STORE_NAME, bytecode.STORE_DEREF:
		s, _ = s.pop(1)
	case bytecode.DELETE_GLOBAL, bytecode.DELETE_NAME:
		// no stack effect

	case bytecode.LOAD_ATTR:
		s, _ = s.pop(1)
		s = s.push(lattice.Defined(lattice.Any))
	case bytecode.STORE_ATTR:
		s, _ = s.pop(2)
	case bytecode.DELETE_ATTR:
		s, _ = s.pop(1)

	case bytecode.LOAD_SUBSCR:
		s, _ = s.pop(2)
		s = s.push(lattice.Defined(lattice.Any))
	case bytecode.STORE_SUBSCR:
		s, _ = s.pop(3)
	case bytecode.DELETE_SUBSCR:
		s, _ = s.pop(2)

	case bytecode.BUILD_TUPLE:
		s, _ = s.pop(int(in.Arg))
		s = s.push(lattice.Defined(lattice.Tuple))
	case bytecode.BUILD_LIST:
		s, _ = s.pop(int(in.Arg))
		s = s.push(lattice.Defined(lattice.List))
	case bytecode.BUILD_SET:
		s, _ = s.pop(int(in.Arg))
		s = s.push(lattice.Defined(lattice.Set))
	case bytecode.BUILD_MAP:
		s = s.push(lattice.Defined(lattice.Dict))
	case bytecode.BUILD_SLICE:
		s, _ = s.pop(3)
		s = s.push(lattice.Defined(lattice.Slice))

	case bytecode.LIST_APPEND, bytecode.LIST_EXTEND:
		s, _ = s.pop(2)
	case bytecode.SET_ADD:
		s, _ = s.pop(2)
	case bytecode.MAP_ADD:
		s, _ = s.pop(3)
	case bytecode.DICT_UPDATE:
		s, _ = s.pop(2)
	case bytecode.LIST_TO_TUPLE:
		s, _ = s.pop(1)
		s = s.push(lattice.Defined(lattice.Tuple))

	case bytecode.GET_ITER:
		s, _ = s.pop(1)
		s = s.push(lattice.Defined(lattice.Any))

	case bytecode.FOR_ITER:
		loopBody := s.push(lattice.Defined(lattice.Any))
		exhausted, _ := s.pop(1)
		return []successor{
			{offset: next, state: loopBody},
			{offset: in.Arg, state: exhausted},
		}

	case bytecode.IMPORT_NAME:
		s, _ = s.pop(1)
		s = s.push(lattice.Defined(lattice.Any))
	case bytecode.IMPORT_FROM:
		s = s.push(lattice.Defined(lattice.Any))
	case bytecode.IMPORT_STAR:
		s, _ = s.pop(1)

	case bytecode.BUILD_CLASS:
		s, _ = s.pop(2)
		s = s.push(lattice.Defined(lattice.Any))
	case bytecode.MAKE_FUNCTION:
		s = s.push(lattice.Defined(lattice.Function))
	case bytecode.MAKE_CLOSURE:
		s, _ = s.pop(1)
		s = s.push(lattice.Defined(lattice.Function))
	case bytecode.SET_DEFAULTS, bytecode.SET_KW_DEFAULTS, bytecode.SET_ANNOTATIONS:
		s, _ = s.pop(2)
		s = s.push(lattice.Defined(lattice.Function))

	case bytecode.SETUP_LOOP, bytecode.SETUP_EXCEPT, bytecode.SETUP_FINALLY,
		bytecode.POP_BLOCK, bytecode.POP_EXCEPT,
		bytecode.BREAK_LOOP, bytecode.CONTINUE_LOOP:
		// block-stack bookkeeping, no effect on the abstract value stack

	case bytecode.END_FINALLY:
		// consumes the finally-entry marker (the None pushed on the normal
		// path, or the raised value on the exception edge).
		s, _ = s.pop(1)

	case bytecode.RAISE_VARARGS:
		s, _ = s.pop(int(in.Arg))
		return nil

	case bytecode.COMPARE_EXCEPTIONS:
		s, _ = s.pop(2)
		s = s.push(lattice.Defined(lattice.Bool))

	case bytecode.UNPACK_SEQUENCE:
		s, _ = s.pop(1)
		for i := 0; i < int(in.Arg); i++ {
			s = s.push(lattice.Defined(lattice.Any))
		}
	case bytecode.UNPACK_EX:
		before, after := int(in.Arg>>8), int(in.Arg&0xff)
		s, _ = s.pop(1)
		for i := 0; i < before+after+1; i++ {
			s = s.push(lattice.Defined(lattice.Any))
		}

	case bytecode.RETURN_VALUE:
		return nil
	case bytecode.PRINT_EXPR:
		s, _ = s.pop(1)

	case bytecode.JUMP_ABSOLUTE:
		return []successor{{offset: in.Arg, state: s}}
	case bytecode.JUMP_IF_TRUE, bytecode.JUMP_IF_FALSE:
		taken, _ := s.pop(1)
		fallthroughState := taken
		return []successor{
			{offset: next, state: fallthroughState},
			{offset: in.Arg, state: taken},
		}

	case bytecode.CALL_FUNCTION, bytecode.CALL_FUNCTION_VAR,
		bytecode.CALL_FUNCTION_KW, bytecode.CALL_FUNCTION_VAR_KW:
		effect := bytecode.StackEffect(in.Op, in.Arg)
		popCount := 1 - effect
		s, _ = s.pop(popCount)
		s = s.push(lattice.Defined(lattice.Any))

	case bytecode.EXTENDED_ARG:
		// folded away by Decode; never observed standalone here

	default:
		effect := bytecode.StackEffect(in.Op, in.Arg)
		if effect < 0 {
			s, _ = s.pop(-effect)
		} else if effect > 0 {
			for i := 0; i < effect; i++ {
				s = s.push(lattice.Defined(lattice.Any))
			}
		}
	}

	return []successor{{offset: next, state: s}}
}

func classifyConst(v any) lattice.Kind {
	switch v.(type) {
	case int64, int:
		return lattice.Int
	case float64:
		return lattice.Float
	case bool:
		return lattice.Bool
	case string:
		return lattice.String
	case []byte:
		return lattice.Bytes
	case nil:
		return lattice.None
	default:
		return lattice.Any
	}
}

func binaryResultKind(op bytecode.Opcode, a, b lattice.Kind) lattice.Kind {
	tok := binaryOpToken(op)
	if tok == optok.TRUEDIV {
		if (a == lattice.Int || a == lattice.Float) && (b == lattice.Int || b == lattice.Float) {
			return lattice.Float
		}
		return lattice.Any
	}
	if a == lattice.Int && b == lattice.Int {
		switch tok {
		case optok.ADD, optok.SUB, optok.MUL, optok.FLOORDIV, optok.MOD,
			optok.LSHIFT, optok.RSHIFT, optok.AND, optok.OR, optok.XOR, optok.POW:
			return lattice.Int
		}
	}
	if a == lattice.Float && b == lattice.Float {
		switch tok {
		case optok.ADD, optok.SUB, optok.MUL, optok.POW:
			return lattice.Float
		}
	}
	if (a == lattice.Float || b == lattice.Float) && (a == lattice.Int || a == lattice.Float) && (b == lattice.Int || b == lattice.Float) {
		switch tok {
		case optok.ADD, optok.SUB, optok.MUL:
			return lattice.Float
		}
	}
	if a == lattice.String && b == lattice.String && tok == optok.ADD {
		return lattice.String
	}
	if a == lattice.List && b == lattice.List && tok == optok.ADD {
		return lattice.List
	}
	if a == lattice.Tuple && b == lattice.Tuple && tok == optok.ADD {
		return lattice.Tuple
	}
	return lattice.Any
}

func binaryOpToken(op bytecode.Opcode) optok.Token {
	switch op {
	case bytecode.BINARY_ADD, bytecode.INPLACE_ADD:
		return optok.ADD
	case bytecode.BINARY_SUB, bytecode.INPLACE_SUB:
		return optok.SUB
	case bytecode.BINARY_MUL, bytecode.INPLACE_MUL:
		return optok.MUL
	case bytecode.BINARY_TRUE_DIVIDE, bytecode.INPLACE_TRUE_DIVIDE:
		return optok.TRUEDIV
	case bytecode.BINARY_FLOOR_DIVIDE, bytecode.INPLACE_FLOOR_DIVIDE:
		return optok.FLOORDIV
	case bytecode.BINARY_MODULO, bytecode.INPLACE_MODULO:
		return optok.MOD
	case bytecode.BINARY_POWER, bytecode.INPLACE_POWER:
		return optok.POW
	case bytecode.BINARY_MATRIX_MULTIPLY, bytecode.INPLACE_MATRIX_MULTIPLY:
		return optok.MATMUL
	case bytecode.BINARY_LSHIFT, bytecode.INPLACE_LSHIFT:
		return optok.LSHIFT
	case bytecode.BINARY_RSHIFT, bytecode.INPLACE_RSHIFT:
		return optok.RSHIFT
	case bytecode.BINARY_AND, bytecode.INPLACE_AND:
		return optok.AND
	case bytecode.BINARY_XOR, bytecode.INPLACE_XOR:
		return optok.XOR
	case bytecode.BINARY_OR, bytecode.INPLACE_OR:
		return optok.OR
	default:
		return optok.ILLEGAL
	}
}

// ShouldBox reports whether the value pushed by the instruction at offset
// must be materialized as a boxed hostabi.Value rather than kept in an
// unboxed VALUE-tagged stack slot, the query stackcompiler makes right
// before emitting each instruction's IL.
func (r *Result) ShouldBox(offset uint32) bool {
	k := r.topKindAfter(offset)
	return !lattice.SupportsUnbox(k)
}

// GetStackInfo returns the abstract operand stack on entry to offset.
func (r *Result) GetStackInfo(offset uint32) []lattice.MaybeUndefined {
	return r.entry[offset].Stack
}

// GetLocalInfo returns the abstract fast-locals array on entry to offset.
func (r *Result) GetLocalInfo(offset uint32) []lattice.MaybeUndefined {
	return r.entry[offset].Locals
}

// CanSkipLastiUpdate reports whether the instruction at offset can never
// raise or otherwise need the frame's last-instruction marker kept current
// (a pure stack-shuffle or constant load), letting stackcompiler omit the
// SetLastInstruction call that every potentially-excepting instruction
// otherwise requires.
func (r *Result) CanSkipLastiUpdate(offset uint32) bool {
	in, ok := r.instr[offset]
	if !ok {
		return false
	}
	switch in.Op {
	case bytecode.POP_TOP, bytecode.DUP_TOP, bytecode.ROT_TWO,
		bytecode.LOAD_CONST, bytecode.LOAD_NONE, bytecode.LOAD_TRUE, bytecode.LOAD_FALSE,
		bytecode.LOAD_FAST, bytecode.STORE_FAST, bytecode.DELETE_FAST,
		bytecode.JUMP_ABSOLUTE, bytecode.NOP:
		return true
	default:
		return false
	}
}

func (r *Result) topKindAfter(offset uint32) lattice.Kind {
	in, ok := r.instr[offset]
	if !ok {
		return lattice.Any
	}
	succs := step(in, r.entry[offset], r.code)
	if len(succs) == 0 || len(succs[0].state.Stack) == 0 {
		return lattice.Any
	}
	return succs[0].state.top().Kind
}

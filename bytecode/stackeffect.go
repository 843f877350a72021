package bytecode

// VariableEffect marks opcodes whose effect on the operand stack depends on
// their argument (calls, build-container, unpack) rather than being fixed.
// StackEffect computes the effect of these opcodes from the argument; the
// marker only flags them in the table.
const VariableEffect = 0x7f

// stackEffect records the fixed effect on the depth of the emulated operand
// stack of each opcode that has one. Opcodes absent from this table (zero
// value) either have no effect (pure control flow, stores into fixed
// locations) or a variable effect (see VariableEffect / IsCall).
var stackEffect = [...]int8{
	POP_TOP:                 -1,
	DUP_TOP:                 +1,
	ROT_TWO:                 0,
	COMPARE_LT:              -1,
	COMPARE_LE:              -1,
	COMPARE_GT:              -1,
	COMPARE_GE:              -1,
	COMPARE_EQ:              -1,
	COMPARE_NE:              -1,
	BINARY_ADD:              -1,
	BINARY_SUB:              -1,
	BINARY_MUL:              -1,
	BINARY_TRUE_DIVIDE:      -1,
	BINARY_FLOOR_DIVIDE:     -1,
	BINARY_MODULO:           -1,
	BINARY_POWER:            -1,
	BINARY_MATRIX_MULTIPLY:  -1,
	BINARY_LSHIFT:           -1,
	BINARY_RSHIFT:           -1,
	BINARY_AND:              -1,
	BINARY_XOR:              -1,
	BINARY_OR:               -1,
	INPLACE_ADD:             -1,
	INPLACE_SUB:             -1,
	INPLACE_MUL:             -1,
	INPLACE_TRUE_DIVIDE:     -1,
	INPLACE_FLOOR_DIVIDE:    -1,
	INPLACE_MODULO:          -1,
	INPLACE_POWER:           -1,
	INPLACE_MATRIX_MULTIPLY: -1,
	INPLACE_LSHIFT:          -1,
	INPLACE_RSHIFT:          -1,
	INPLACE_AND:             -1,
	INPLACE_XOR:             -1,
	INPLACE_OR:              -1,
	UNARY_POSITIVE:          0,
	UNARY_NEGATIVE:          0,
	UNARY_INVERT:            0,
	UNARY_NOT:               0,
	UNARY_LEN:               0,
	LOAD_CONST:              +1,
	LOAD_NONE:               +1,
	LOAD_TRUE:               +1,
	LOAD_FALSE:              +1,
	LOAD_FAST:               +1,
	STORE_FAST:              -1,
	DELETE_FAST:             0,
	LOAD_GLOBAL:             +1,
	STORE_GLOBAL:            -1,
	DELETE_GLOBAL:           0,
	LOAD_NAME:               +1,
	STORE_NAME:              -1,
	DELETE_NAME:             0,
	LOAD_DEREF:              +1,
	STORE_DEREF:             -1,
	LOAD_CLASSDEREF:         +1,
	LOAD_PREDECLARED:        +1,
	LOAD_UNIVERSAL:          +1,
	LOAD_ATTR:               0,
	STORE_ATTR:              -2,
	DELETE_ATTR:             -1,
	LOAD_SUBSCR:             -1,
	STORE_SUBSCR:            -3,
	DELETE_SUBSCR:           -2,
	BUILD_SLICE:             -2,
	LIST_APPEND:             -2,
	SET_ADD:                 -2,
	MAP_ADD:                 -3,
	LIST_EXTEND:             -2,
	DICT_UPDATE:             -2,
	LIST_TO_TUPLE:           0,
	GET_ITER:                0,
	FOR_ITER:                VariableEffect,
	IMPORT_NAME:             0,
	IMPORT_FROM:             +1,
	IMPORT_STAR:             -1,
	BUILD_CLASS:             -1,
	MAKE_FUNCTION:           +1,
	MAKE_CLOSURE:            0,
	SET_DEFAULTS:            -1,
	SET_KW_DEFAULTS:         -1,
	SET_ANNOTATIONS:         -1,
	SETUP_LOOP:              0,
	SETUP_EXCEPT:            0,
	SETUP_FINALLY:           0,
	POP_BLOCK:               0,
	POP_EXCEPT:              0,
	END_FINALLY:             0,
	BREAK_LOOP:              0,
	CONTINUE_LOOP:           0,
	RAISE_VARARGS:           VariableEffect,
	COMPARE_EXCEPTIONS:      -1,
	UNPACK_SEQUENCE:         VariableEffect,
	UNPACK_EX:               VariableEffect,
	RETURN_VALUE:            -1,
	PRINT_EXPR:              -1,
	JUMP_ABSOLUTE:           0,
	JUMP_IF_TRUE:            -1,
	JUMP_IF_FALSE:           -1,
	CALL_FUNCTION:           VariableEffect,
	CALL_FUNCTION_VAR:       VariableEffect,
	CALL_FUNCTION_KW:        VariableEffect,
	CALL_FUNCTION_VAR_KW:    VariableEffect,
	EXTENDED_ARG:            0,
}

// StackEffect returns the effect of op on the operand-stack depth. For the
// opcodes whose effect depends on the argument (the BUILD_* containers, the
// calls, the unpacks, RAISE_VARARGS, FOR_ITER) it computes that effect from
// arg, so it never returns VariableEffect.
func StackEffect(op Opcode, arg uint32) int {
	switch op {
	case BUILD_TUPLE, BUILD_LIST, BUILD_SET:
		return 1 - int(arg)
	case BUILD_MAP:
		return 1
	case CALL_FUNCTION, CALL_FUNCTION_VAR:
		// arg is the positional argument count; the callable and that many
		// positional values are popped, the result is pushed.
		return 1 - 1 - int(arg)
	case CALL_FUNCTION_KW, CALL_FUNCTION_VAR_KW:
		// as above, plus a trailing keyword-arguments dict.
		return 1 - 1 - int(arg) - 1
	case UNPACK_SEQUENCE:
		return int(arg) - 1
	case UNPACK_EX:
		// arg encodes before<<8 | after; middle slice plus both sides, minus the
		// iterable.
		before := int(arg >> 8)
		after := int(arg & 0xff)
		return before + after + 1 - 1
	case RAISE_VARARGS:
		return -int(arg)
	case FOR_ITER:
		return 1 // pushes the next element; ITERJMP-style fallthrough vs jump is handled by stackcompiler
	}
	if int(op) < len(stackEffect) {
		return int(stackEffect[op])
	}
	return 0
}

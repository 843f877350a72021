// Package bytecode defines the data model the JIT consumes: the host VM's
// instruction stream, its code objects, and the opaque Frame shape the
// emitted code reads and writes. Nothing in this package touches the object
// runtime itself — see the hostabi package for that façade.
package bytecode

import "fmt"

// Opcode identifies one host VM instruction. The numeric values are this
// repo's own encoding; they do not need to match any particular host VM's
// opcode numbering, only the families and stack effects described in the
// design.
type Opcode uint8

//nolint:revive
const (
	NOP Opcode = iota

	// stack shuffle
	POP_TOP
	DUP_TOP
	ROT_TWO

	// ordered comparisons (order matches optok.LT..NEQ)
	COMPARE_LT
	COMPARE_LE
	COMPARE_GT
	COMPARE_GE
	COMPARE_EQ
	COMPARE_NE

	// binary arithmetic/bitwise (order matches optok.ADD..OR)
	BINARY_ADD
	BINARY_SUB
	BINARY_MUL
	BINARY_TRUE_DIVIDE
	BINARY_FLOOR_DIVIDE
	BINARY_MODULO
	BINARY_POWER
	BINARY_MATRIX_MULTIPLY
	BINARY_LSHIFT
	BINARY_RSHIFT
	BINARY_AND
	BINARY_XOR
	BINARY_OR

	// in-place arithmetic/bitwise, same relative order as BINARY_*
	INPLACE_ADD
	INPLACE_SUB
	INPLACE_MUL
	INPLACE_TRUE_DIVIDE
	INPLACE_FLOOR_DIVIDE
	INPLACE_MODULO
	INPLACE_POWER
	INPLACE_MATRIX_MULTIPLY
	INPLACE_LSHIFT
	INPLACE_RSHIFT
	INPLACE_AND
	INPLACE_XOR
	INPLACE_OR

	// unary
	UNARY_POSITIVE
	UNARY_NEGATIVE
	UNARY_INVERT
	UNARY_NOT
	UNARY_LEN

	LOAD_CONST
	LOAD_NONE
	LOAD_TRUE
	LOAD_FALSE

	LOAD_FAST
	STORE_FAST
	DELETE_FAST
	LOAD_GLOBAL
	STORE_GLOBAL
	DELETE_GLOBAL
	LOAD_NAME
	STORE_NAME
	DELETE_NAME
	LOAD_DEREF
	STORE_DEREF
	LOAD_CLASSDEREF
	LOAD_PREDECLARED
	LOAD_UNIVERSAL

	LOAD_ATTR
	STORE_ATTR
	DELETE_ATTR
	LOAD_SUBSCR
	STORE_SUBSCR
	DELETE_SUBSCR
	BUILD_SLICE

	BUILD_TUPLE
	BUILD_LIST
	BUILD_MAP
	BUILD_SET
	LIST_APPEND
	SET_ADD
	MAP_ADD
	LIST_EXTEND
	DICT_UPDATE
	LIST_TO_TUPLE

	GET_ITER
	FOR_ITER

	IMPORT_NAME
	IMPORT_FROM
	IMPORT_STAR

	BUILD_CLASS
	MAKE_FUNCTION
	MAKE_CLOSURE
	SET_DEFAULTS
	SET_KW_DEFAULTS
	SET_ANNOTATIONS

	SETUP_LOOP
	SETUP_EXCEPT
	SETUP_FINALLY
	POP_BLOCK
	POP_EXCEPT
	END_FINALLY
	BREAK_LOOP
	CONTINUE_LOOP

	RAISE_VARARGS
	COMPARE_EXCEPTIONS

	UNPACK_SEQUENCE
	UNPACK_EX

	RETURN_VALUE
	PRINT_EXPR

	// unsupported: these cause the compile driver to reject the code object.
	YIELD_VALUE
	YIELD_FROM
	SETUP_WITH
	WITH_CLEANUP_START
	WITH_CLEANUP_FINISH

	// --- opcodes below this line always carry a 16-bit argument ---

	JUMP_ABSOLUTE
	JUMP_IF_TRUE
	JUMP_IF_FALSE

	CALL_FUNCTION
	CALL_FUNCTION_VAR
	CALL_FUNCTION_KW
	CALL_FUNCTION_VAR_KW

	// EXTENDED_ARG left-shifts its 16-bit argument by 16 bits and ORs it into
	// the following instruction's argument, above that instruction's own 16
	// bits, exactly once per prefixed instruction.
	EXTENDED_ARG

	opcodeArgMin = JUMP_ABSOLUTE
	opcodeMax    = EXTENDED_ARG
)

var opcodeNames = [...]string{
	NOP:                     "nop",
	POP_TOP:                 "pop_top",
	DUP_TOP:                 "dup_top",
	ROT_TWO:                 "rot_two",
	COMPARE_LT:              "compare_lt",
	COMPARE_LE:              "compare_le",
	COMPARE_GT:              "compare_gt",
	COMPARE_GE:              "compare_ge",
	COMPARE_EQ:              "compare_eq",
	COMPARE_NE:              "compare_ne",
	BINARY_ADD:              "binary_add",
	BINARY_SUB:              "binary_sub",
	BINARY_MUL:              "binary_mul",
	BINARY_TRUE_DIVIDE:      "binary_true_divide",
	BINARY_FLOOR_DIVIDE:     "binary_floor_divide",
	BINARY_MODULO:           "binary_modulo",
	BINARY_POWER:            "binary_power",
	BINARY_MATRIX_MULTIPLY:  "binary_matrix_multiply",
	BINARY_LSHIFT:           "binary_lshift",
	BINARY_RSHIFT:           "binary_rshift",
	BINARY_AND:              "binary_and",
	BINARY_XOR:              "binary_xor",
	BINARY_OR:               "binary_or",
	INPLACE_ADD:             "inplace_add",
	INPLACE_SUB:             "inplace_sub",
	INPLACE_MUL:             "inplace_mul",
	INPLACE_TRUE_DIVIDE:     "inplace_true_divide",
	INPLACE_FLOOR_DIVIDE:    "inplace_floor_divide",
	INPLACE_MODULO:          "inplace_modulo",
	INPLACE_POWER:           "inplace_power",
	INPLACE_MATRIX_MULTIPLY: "inplace_matrix_multiply",
	INPLACE_LSHIFT:          "inplace_lshift",
	INPLACE_RSHIFT:          "inplace_rshift",
	INPLACE_AND:             "inplace_and",
	INPLACE_XOR:             "inplace_xor",
	INPLACE_OR:              "inplace_or",
	UNARY_POSITIVE:          "unary_positive",
	UNARY_NEGATIVE:          "unary_negative",
	UNARY_INVERT:            "unary_invert",
	UNARY_NOT:               "unary_not",
	UNARY_LEN:               "unary_len",
	LOAD_CONST:              "load_const",
	LOAD_NONE:               "load_none",
	LOAD_TRUE:               "load_true",
	LOAD_FALSE:              "load_false",
	LOAD_FAST:               "load_fast",
	STORE_FAST:              "store_fast",
	DELETE_FAST:             "delete_fast",
	LOAD_GLOBAL:             "load_global",
	STORE_GLOBAL:            "store_global",
	DELETE_GLOBAL:           "delete_global",
	LOAD_NAME:               "load_name",
	STORE_NAME:              "store_name",
	DELETE_NAME:             "delete_name",
	LOAD_DEREF:              "load_deref",
	STORE_DEREF:             "store_deref",
	LOAD_CLASSDEREF:         "load_classderef",
	LOAD_PREDECLARED:        "load_predeclared",
	LOAD_UNIVERSAL:          "load_universal",
	LOAD_ATTR:               "load_attr",
	STORE_ATTR:              "store_attr",
	DELETE_ATTR:             "delete_attr",
	LOAD_SUBSCR:             "load_subscr",
	STORE_SUBSCR:            "store_subscr",
	DELETE_SUBSCR:           "delete_subscr",
	BUILD_SLICE:             "build_slice",
	BUILD_TUPLE:             "build_tuple",
	BUILD_LIST:              "build_list",
	BUILD_MAP:               "build_map",
	BUILD_SET:               "build_set",
	LIST_APPEND:             "list_append",
	SET_ADD:                 "set_add",
	MAP_ADD:                 "map_add",
	LIST_EXTEND:             "list_extend",
	DICT_UPDATE:             "dict_update",
	LIST_TO_TUPLE:           "list_to_tuple",
	GET_ITER:                "get_iter",
	FOR_ITER:                "for_iter",
	IMPORT_NAME:             "import_name",
	IMPORT_FROM:             "import_from",
	IMPORT_STAR:             "import_star",
	BUILD_CLASS:             "build_class",
	MAKE_FUNCTION:           "make_function",
	MAKE_CLOSURE:            "make_closure",
	SET_DEFAULTS:            "set_defaults",
	SET_KW_DEFAULTS:         "set_kw_defaults",
	SET_ANNOTATIONS:         "set_annotations",
	SETUP_LOOP:              "setup_loop",
	SETUP_EXCEPT:            "setup_except",
	SETUP_FINALLY:           "setup_finally",
	POP_BLOCK:               "pop_block",
	POP_EXCEPT:              "pop_except",
	END_FINALLY:             "end_finally",
	BREAK_LOOP:              "break_loop",
	CONTINUE_LOOP:           "continue_loop",
	RAISE_VARARGS:           "raise_varargs",
	COMPARE_EXCEPTIONS:      "compare_exceptions",
	UNPACK_SEQUENCE:         "unpack_sequence",
	UNPACK_EX:               "unpack_ex",
	RETURN_VALUE:            "return_value",
	PRINT_EXPR:              "print_expr",
	YIELD_VALUE:             "yield_value",
	YIELD_FROM:              "yield_from",
	SETUP_WITH:              "setup_with",
	WITH_CLEANUP_START:      "with_cleanup_start",
	WITH_CLEANUP_FINISH:     "with_cleanup_finish",
	JUMP_ABSOLUTE:           "jump_absolute",
	JUMP_IF_TRUE:            "jump_if_true",
	JUMP_IF_FALSE:           "jump_if_false",
	CALL_FUNCTION:           "call_function",
	CALL_FUNCTION_VAR:       "call_function_var",
	CALL_FUNCTION_KW:        "call_function_kw",
	CALL_FUNCTION_VAR_KW:    "call_function_var_kw",
	EXTENDED_ARG:            "extended_arg",
}

func (op Opcode) String() string {
	if op <= opcodeMax && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("illegal opcode (%d)", op)
}

// OpcodeForName returns the opcode whose String form is name (the lowercase
// mnemonic used by the asmfmt textual format), and whether one exists.
func OpcodeForName(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		if name != "" {
			m[name] = Opcode(op)
		}
	}
	return m
}()

// HasArg reports whether op carries a 16-bit immediate argument.
func (op Opcode) HasArg() bool { return op >= opcodeArgMin || op == LOAD_CONST || argCarrying[op] }

// argCarrying lists the opcodes below opcodeArgMin that nonetheless carry an
// argument (index into locals/names/constants/freevars, or small counts).
// Everything at or above opcodeArgMin always carries an argument.
var argCarrying = [opcodeArgMin]bool{
	LOAD_CONST:       true,
	FOR_ITER:         true,
	LOAD_FAST:        true,
	STORE_FAST:       true,
	DELETE_FAST:      true,
	LOAD_GLOBAL:      true,
	STORE_GLOBAL:     true,
	DELETE_GLOBAL:    true,
	LOAD_NAME:        true,
	STORE_NAME:       true,
	DELETE_NAME:      true,
	LOAD_DEREF:       true,
	STORE_DEREF:      true,
	LOAD_CLASSDEREF:  true,
	LOAD_PREDECLARED: true,
	LOAD_UNIVERSAL:   true,
	LOAD_ATTR:        true,
	STORE_ATTR:       true,
	DELETE_ATTR:      true,
	BUILD_TUPLE:      true,
	BUILD_LIST:       true,
	BUILD_MAP:        true,
	BUILD_SET:        true,
	MAKE_FUNCTION:    true,
	MAKE_CLOSURE:     true,
	RAISE_VARARGS:    true,
	UNPACK_SEQUENCE:  true,
	UNPACK_EX:        true,
	IMPORT_NAME:      true,
	IMPORT_FROM:      true,
	BUILD_CLASS:      true,
}

// IsUnsupported reports whether op is one of the opcodes that always causes
// the compile driver to reject the code object and fall back to
// interpretation: generator/coroutine opcodes and with-block opcodes.
func (op Opcode) IsUnsupported() bool {
	switch op {
	case YIELD_VALUE, YIELD_FROM, SETUP_WITH, WITH_CLEANUP_START, WITH_CLEANUP_FINISH:
		return true
	default:
		return false
	}
}

// IsAbsoluteJump reports whether op unconditionally transfers control to its
// argument (as opposed to falling through on one path).
func IsAbsoluteJump(op Opcode) bool { return op == JUMP_ABSOLUTE }

// IsConditionalJump reports whether op branches on the truth of the top of
// stack, consuming it either way.
func IsConditionalJump(op Opcode) bool { return op == JUMP_IF_TRUE || op == JUMP_IF_FALSE }

// IsCall reports whether op is one of the four call-shape opcodes, whose
// stack effect depends on the argument rather than being fixed.
func IsCall(op Opcode) bool {
	switch op {
	case CALL_FUNCTION, CALL_FUNCTION_VAR, CALL_FUNCTION_KW, CALL_FUNCTION_VAR_KW:
		return true
	default:
		return false
	}
}

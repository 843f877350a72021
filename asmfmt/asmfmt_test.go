package asmfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tachyon-lang/tachyonjit/bytecode"
)

const addOne = `
function: add_one 2 1
	constants:
		int 1
	locals:
		x
	code:
		load_fast 0
		load_const 0
		binary_add
		return_value
`

func TestAsmSimpleFunction(t *testing.T) {
	code, err := Asm([]byte(addOne))
	require.NoError(t, err)

	assert.Equal(t, "add_one", code.Name)
	assert.Equal(t, 1, code.NumParams)
	assert.Equal(t, 2, code.MaxStack)
	require.Len(t, code.Consts, 1)
	assert.Equal(t, int64(1), code.Consts[0])
	require.Len(t, code.Locals, 1)
	assert.Equal(t, "x", code.Locals[0].Name)

	instrs := bytecode.Decode(code.Code)
	require.Len(t, instrs, 4)
	assert.Equal(t, bytecode.LOAD_FAST, instrs[0].Op)
	assert.Equal(t, bytecode.LOAD_CONST, instrs[1].Op)
	assert.Equal(t, bytecode.BINARY_ADD, instrs[2].Op)
	assert.Equal(t, bytecode.RETURN_VALUE, instrs[3].Op)
}

func TestAsmJumpTargetsTranslated(t *testing.T) {
	src := `
function: spin 2 1
	locals:
		n
	code:
		load_fast 0
		jump_if_false 4
		jump_absolute 0
		nop
		load_none
		return_value
`
	code, err := Asm([]byte(src))
	require.NoError(t, err)

	instrs := bytecode.Decode(code.Code)
	require.Len(t, instrs, 6)
	// index 4 is load_none; its byte offset accounts for the arg-carrying
	// instructions before it.
	assert.Equal(t, instrs[4].Offset, instrs[1].Arg)
	assert.Equal(t, instrs[0].Offset, instrs[2].Arg)
}

func TestAsmHandlersTranslated(t *testing.T) {
	src := `
function: guarded 2 0
	constants:
		string "a"
	handlers:
		1 3 3
	code:
		setup_except
		load_const 0
		raise_varargs 1
		pop_except
		return_value
`
	code, err := Asm([]byte(src))
	require.NoError(t, err)
	require.Len(t, code.Handlers, 1)

	instrs := bytecode.Decode(code.Code)
	h := code.Handlers[0]
	assert.Equal(t, instrs[1].Offset, h.PC0)
	assert.Equal(t, instrs[3].Offset, h.PC1)
	assert.Equal(t, instrs[3].Offset, h.StartPC)
	assert.False(t, h.Finally)
}

func TestAsmNestedFunctions(t *testing.T) {
	src := `
function: outer 2 0
	code:
		make_function 0
		return_value

function: inner 1 0
	code:
		load_none
		return_value
`
	code, err := Asm([]byte(src))
	require.NoError(t, err)
	require.Len(t, code.Funcs, 1)
	assert.Equal(t, "inner", code.Funcs[0].Name)
	// the nested function sees the same table.
	assert.Equal(t, code.Funcs, code.Funcs[0].Funcs)
}

func TestAsmErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"unknown opcode", "function: f 1 0\n\tcode:\n\t\tfrobnicate\n"},
		{"missing code", "function: f 1 0\n\tlocals:\n\t\tx\n"},
		{"cell without local", "function: f 1 0\n\tcells:\n\t\tx\n\tcode:\n\t\tload_none\n\t\treturn_value\n"},
		{"jump out of range", "function: f 1 0\n\tcode:\n\t\tjump_absolute 9\n"},
		{"missing function", "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Asm([]byte(tc.src))
			assert.Error(t, err)
		})
	}
}

func TestDasmRoundTrip(t *testing.T) {
	src := `
function: loop 3 1
	names:
		total
	constants:
		int 0
		int 1
	locals:
		n
		acc
	code:
		load_const 0
		store_fast 1
		load_fast 0
		jump_if_false 9
		load_fast 1
		load_const 1
		binary_add
		store_fast 1
		jump_absolute 2
		load_fast 1
		return_value
`
	code, err := Asm([]byte(src))
	require.NoError(t, err)

	text, err := Dasm(code)
	require.NoError(t, err)

	again, err := Asm(text)
	require.NoError(t, err)
	assert.Equal(t, code.Code, again.Code)
	assert.Equal(t, code.Consts, again.Consts)
	assert.Equal(t, code.Names, again.Names)
	assert.Equal(t, code.Locals, again.Locals)
}

package absint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tachyon-lang/tachyonjit/absint"
	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/lattice"
)

func encode(instrs ...[2]int) []byte {
	var out []byte
	for _, in := range instrs {
		op, arg := bytecode.Opcode(in[0]), in[1]
		out = append(out, byte(op))
		if op.HasArg() {
			out = append(out, byte(arg), byte(arg>>8))
		}
	}
	return out
}

func TestAnalysisConvergesAcrossLoop(t *testing.T) {
	// locals[0] = 1.0; loop: locals[0] = locals[0] + locals[1]; jump loop
	code := &bytecode.CodeObject{
		Consts: []any{1.0},
		Locals: []bytecode.Binding{{Name: "acc"}, {Name: "step"}},
		Code: encode(
			[2]int{int(bytecode.LOAD_CONST), 0},
			[2]int{int(bytecode.STORE_FAST), 0},
			[2]int{int(bytecode.LOAD_FAST), 0},
			[2]int{int(bytecode.LOAD_FAST), 1},
			[2]int{int(bytecode.BINARY_ADD), 0},
			[2]int{int(bytecode.STORE_FAST), 0},
			[2]int{int(bytecode.JUMP_ABSOLUTE), 6},
		),
	}
	result := absint.Run(code)
	locals := result.GetLocalInfo(6)
	require.True(t, len(locals) >= 1)
}

func TestShouldBoxFalseForFloatConst(t *testing.T) {
	code := &bytecode.CodeObject{
		Consts: []any{1.5},
		Locals: nil,
		Code:   encode([2]int{int(bytecode.LOAD_CONST), 0}, [2]int{int(bytecode.RETURN_VALUE), 0}),
	}
	result := absint.Run(code)
	assert.False(t, result.ShouldBox(0))
}

func TestShouldBoxTrueForStringConst(t *testing.T) {
	code := &bytecode.CodeObject{
		Consts: []any{"hi"},
		Code:   encode([2]int{int(bytecode.LOAD_CONST), 0}, [2]int{int(bytecode.RETURN_VALUE), 0}),
	}
	result := absint.Run(code)
	assert.True(t, result.ShouldBox(0))
}

func TestCanSkipLastiUpdate(t *testing.T) {
	code := &bytecode.CodeObject{
		Consts: []any{int64(1)},
		Code:   encode([2]int{int(bytecode.LOAD_CONST), 0}, [2]int{int(bytecode.BINARY_ADD), 0}),
	}
	result := absint.Run(code)
	assert.True(t, result.CanSkipLastiUpdate(0))
	assert.False(t, result.CanSkipLastiUpdate(3))
}

func TestIntIntAddStaysInt(t *testing.T) {
	code := &bytecode.CodeObject{
		Consts: []any{int64(1), int64(2)},
		Code: encode(
			[2]int{int(bytecode.LOAD_CONST), 0},
			[2]int{int(bytecode.LOAD_CONST), 1},
			[2]int{int(bytecode.BINARY_ADD), 0},
			[2]int{int(bytecode.RETURN_VALUE), 0},
		),
	}
	result := absint.Run(code)
	stack := result.GetStackInfo(7)
	require.Len(t, stack, 1)
	assert.Equal(t, lattice.Int, stack[0].Kind)
}

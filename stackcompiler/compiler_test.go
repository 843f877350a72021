package stackcompiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tachyon-lang/tachyonjit/asmfmt"
	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/ilbuilder/refbuilder"
	"github.com/tachyon-lang/tachyonjit/stackcompiler"
	"github.com/tachyon-lang/tachyonjit/tagged"
)

// run compiles src's top-level and invokes it on a fresh frame whose first
// len(args) fast locals hold args, without going through the driver.
func run(t *testing.T, src string, globals *hostabi.Dict, args ...hostabi.Value) (hostabi.Value, *hostabi.ThreadState, error) {
	t.Helper()
	code, err := asmfmt.Asm([]byte(src))
	require.NoError(t, err)

	m, err := stackcompiler.Compile(code, refbuilder.New())
	require.NoError(t, err)

	ts := hostabi.NewThreadState()
	if globals == nil {
		globals = hostabi.NewDict(8)
	}
	fr := hostabi.NewFrame(code, globals, ts.Builtins, nil)
	for i, a := range args {
		fr.SetLocal(i, a)
	}
	v, err := m.Invoke(ts, fr)
	return v, ts, err
}

func tag(t *testing.T, i int64) hostabi.Value {
	t.Helper()
	w, ok := tagged.Tag(i)
	require.True(t, ok)
	return hostabi.NewTaggedInt(w)
}

func intOf(t *testing.T, v hostabi.Value) int64 {
	t.Helper()
	w, ok := hostabi.UnboxInt(v)
	require.True(t, ok, "expected an int result, got %s (%s)", v, v.Type())
	return tagged.Untag(w)
}

func TestUnsupportedOpcodeRejected(t *testing.T) {
	src := `
function: gen 2 0
	code:
		load_none
		yield_value
		return_value
`
	code, err := asmfmt.Asm([]byte(src))
	require.NoError(t, err)
	_, err = stackcompiler.Compile(code, refbuilder.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not compilable")
}

func TestReturnThroughNestedFinallys(t *testing.T) {
	src := `
function: two_fin 2 0
	constants:
		int 5
	handlers:
		1 7 9 finally
		2 4 6 finally
	code:
		setup_finally
		setup_finally
		load_const 0
		return_value
		pop_block
		load_none
		end_finally
		pop_block
		load_none
		end_finally
		load_none
		return_value
`
	v, _, err := run(t, src, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), intOf(t, v))
}

func TestContinueThroughFinallyRunsFinallyEachIteration(t *testing.T) {
	src := `
function: cont_fin 4 1
	names:
		runs
	constants:
		int 1
	locals:
		n
	handlers:
		4 9 11 finally
	code:
		setup_loop
		load_fast 0
		jump_if_false 17
		setup_finally
		load_fast 0
		load_const 0
		inplace_sub
		store_fast 0
		continue_loop
		pop_block
		load_none
		load_global 0
		load_const 0
		binary_add
		store_global 0
		end_finally
		jump_absolute 1
		pop_block
		load_fast 0
		return_value
`
	globals := hostabi.NewDict(8)
	require.NoError(t, globals.SetKey(hostabi.NewStr("runs"), tag(t, 0)))

	v, _, err := run(t, src, globals, tag(t, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(0), intOf(t, v))

	runs, ok, err := globals.Get(hostabi.NewStr("runs"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), intOf(t, runs), "finally body must run once per continue")
}

func TestExceptionInsideLoopRoutesToHandler(t *testing.T) {
	src := `
function: loop_raise 3 0
	names:
		missing
	constants:
		int 3
	handlers:
		1 8 8
	code:
		setup_except
		setup_loop
		load_const 0
		get_iter
		for_iter 7
		pop_top
		jump_absolute 4
		pop_block
		pop_except
		return_value
		load_none
		return_value
`
	// iterating an int is a TypeError; the handler returns the raised value.
	v, _, err := run(t, src, nil)
	require.NoError(t, err)
	require.IsType(t, &hostabi.Str{}, v)
	assert.Contains(t, v.(*hostabi.Str).S, "not iterable")
}

func TestUnpackSequenceOrder(t *testing.T) {
	src := `
function: swap 4 1
	locals:
		t
		a
		b
	code:
		load_fast 0
		unpack_sequence 2
		store_fast 1
		store_fast 2
		load_fast 2
		load_fast 1
		build_tuple 2
		return_value
`
	pair := hostabi.NewTuple([]hostabi.Value{tag(t, 1), tag(t, 2)})
	v, _, err := run(t, src, nil, pair)
	require.NoError(t, err)

	tup, ok := v.(*hostabi.Tuple)
	require.True(t, ok)
	require.Len(t, tup.Elems, 2)
	assert.Equal(t, int64(2), intOf(t, tup.Elems[0]))
	assert.Equal(t, int64(1), intOf(t, tup.Elems[1]))
}

func TestStoreAndLoadSubscr(t *testing.T) {
	src := `
function: setitem 4 2
	constants:
		int 99
	locals:
		d
		k
	code:
		load_fast 0
		load_fast 1
		load_const 0
		store_subscr
		load_fast 0
		load_fast 1
		load_subscr
		return_value
`
	d := hostabi.NewDict(4)
	v, _, err := run(t, src, nil, d, hostabi.NewStr("k"))
	require.NoError(t, err)
	assert.Equal(t, int64(99), intOf(t, v))
}

func TestBuildContainersAndLen(t *testing.T) {
	src := `
function: sizes 4 0
	constants:
		int 1
		int 2
		int 3
	code:
		load_const 0
		load_const 1
		load_const 2
		build_list 3
		unary_len
		return_value
`
	v, _, err := run(t, src, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), intOf(t, v))
}

func TestCompareFusedWithBranch(t *testing.T) {
	src := `
function: max2 3 2
	locals:
		a
		b
	code:
		load_fast 0
		load_fast 1
		compare_gt
		jump_if_false 6
		load_fast 0
		return_value
		load_fast 1
		return_value
`
	v, _, err := run(t, src, nil, tag(t, 9), tag(t, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(9), intOf(t, v))

	v, _, err = run(t, src, nil, tag(t, 2), tag(t, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(4), intOf(t, v))
}

func TestEqualsSpecializationOnStrings(t *testing.T) {
	src := `
function: same 3 2
	locals:
		a
		b
	code:
		load_fast 0
		load_fast 1
		compare_eq
		return_value
`
	v, _, err := run(t, src, nil, hostabi.NewStr("x"), hostabi.NewStr("x"))
	require.NoError(t, err)
	assert.Equal(t, hostabi.Bool(true), v)

	v, _, err = run(t, src, nil, hostabi.NewStr("x"), hostabi.NewStr("y"))
	require.NoError(t, err)
	assert.Equal(t, hostabi.Bool(false), v)
}

func TestSyntheticLocalsAppendedOnce(t *testing.T) {
	src := `
function: f 2 0
	constants:
		int 1
	handlers:
		1 3 5 finally
	code:
		setup_finally
		load_const 0
		return_value
		pop_block
		load_none
		end_finally
		load_none
		return_value
`
	code, err := asmfmt.Asm([]byte(src))
	require.NoError(t, err)

	before := len(code.Locals)
	_, err = stackcompiler.Compile(code, refbuilder.New())
	require.NoError(t, err)
	added := len(code.Locals) - before
	assert.Equal(t, 2, added, "one reason local and one retval local")

	// recompiling must not grow the local table again.
	_, err = stackcompiler.Compile(code, refbuilder.New())
	require.NoError(t, err)
	assert.Equal(t, before+added, len(code.Locals))

	var names []string
	for _, b := range code.Locals[before:] {
		names = append(names, b.Name)
	}
	assert.ElementsMatch(t, []string{".finally-reason", ".finally-retval"}, names)
}

func TestDecodeExtendedArgFoldsIntoFollowing(t *testing.T) {
	code := []byte{
		byte(bytecode.EXTENDED_ARG), 0x01, 0x00,
		byte(bytecode.LOAD_CONST), 0x02, 0x00,
	}
	instrs := bytecode.Decode(code)
	require.Len(t, instrs, 1)
	assert.Equal(t, bytecode.LOAD_CONST, instrs[0].Op)
	assert.Equal(t, uint32(0x10002), instrs[0].Arg)
}

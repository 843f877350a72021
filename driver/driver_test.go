package driver_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tachyon-lang/tachyonjit/asmfmt"
	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/driver"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/ilbuilder"
	"github.com/tachyon-lang/tachyonjit/ilbuilder/refbuilder"
	"github.com/tachyon-lang/tachyonjit/tagged"
)

func newDriver() *driver.Driver {
	return driver.New(func() ilbuilder.Builder { return refbuilder.New() })
}

func mustAsm(t *testing.T, src string) *bytecode.CodeObject {
	t.Helper()
	code, err := asmfmt.Asm([]byte(src))
	require.NoError(t, err)
	return code
}

func mustTag(t *testing.T, i int64) hostabi.Value {
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

// callJit compiles src's top-level function and calls it with args.
func callJit(t *testing.T, src string, globals *hostabi.Dict, args ...hostabi.Value) (hostabi.Value, error) {
	t.Helper()
	d := newDriver()
	ts := hostabi.NewThreadState()
	d.Install(ts)
	if globals == nil {
		globals = hostabi.NewDict(8)
	}
	fn := d.NewFunction(mustAsm(t, src), globals)
	return fn.Invoke(ts, fn, args, nil)
}

func TestAddOneTakesTaggedPath(t *testing.T) {
	src := `
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
	v, err := callJit(t, src, nil, mustTag(t, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), intOf(t, v))
	// both operands fit the tagged range, so the result never touched the
	// heap big-integer representation.
	assert.IsType(t, hostabi.TaggedInt(0), v)
}

func TestStringConcatLoop(t *testing.T) {
	src := `
function: concat 4 0
	names:
		items
	constants:
		string ""
	locals:
		s
		c
	code:
		load_const 0
		store_fast 0
		setup_loop
		load_global 0
		get_iter
		for_iter 12
		store_fast 1
		load_fast 0
		load_fast 1
		inplace_add
		store_fast 0
		jump_absolute 5
		pop_block
		load_fast 0
		return_value
`
	elems := make([]hostabi.Value, 10)
	for i := range elems {
		elems[i] = hostabi.NewStr(string(rune('0' + i)))
	}
	globals := hostabi.NewDict(8)
	require.NoError(t, globals.SetKey(hostabi.NewStr("items"), hostabi.NewList(elems)))

	v, err := callJit(t, src, globals)
	require.NoError(t, err)
	require.IsType(t, &hostabi.Str{}, v)
	assert.Equal(t, "0123456789", v.(*hostabi.Str).S)
}

func TestExceptHandlerReceivesRaisedValue(t *testing.T) {
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
	v, err := callJit(t, src, nil)
	require.NoError(t, err)
	require.IsType(t, &hostabi.Str{}, v)
	assert.Equal(t, "a", v.(*hostabi.Str).S)
}

func TestReturnThroughFinally(t *testing.T) {
	src := `
function: ret_fin 2 0
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
	v, err := callJit(t, src, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), intOf(t, v))
}

func TestReturnThroughFinallyRunsFinallyBody(t *testing.T) {
	// the finally body writes a global, proving it ran on the return path.
	src := `
function: ret_fin_obs 2 0
	names:
		seen
	constants:
		int 1
		int 2
	handlers:
		1 3 5 finally
	code:
		setup_finally
		load_const 0
		return_value
		pop_block
		load_none
		load_const 1
		store_global 0
		end_finally
		load_none
		return_value
`
	globals := hostabi.NewDict(8)
	v, err := callJit(t, src, globals)
	require.NoError(t, err)
	assert.Equal(t, int64(1), intOf(t, v))

	seen, ok, err := globals.Get(hostabi.NewStr("seen"))
	require.NoError(t, err)
	require.True(t, ok, "finally body did not run")
	assert.Equal(t, int64(2), intOf(t, seen))
}

func TestBreakThroughFinally(t *testing.T) {
	src := `
function: break_fin 3 0
	constants:
		int 2
	locals:
		x
	handlers:
		2 3 5 finally
	code:
		setup_loop
		setup_finally
		break_loop
		pop_block
		load_none
		load_const 0
		store_fast 0
		end_finally
		jump_absolute 0
		pop_block
		load_fast 0
		return_value
`
	v, err := callJit(t, src, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), intOf(t, v))
}

func TestExceptInsideForLoopPreservesIterator(t *testing.T) {
	// every iteration raises inside a try nested in the for body; the
	// handler must see the raised value while the iterator stays live
	// beneath it, so the loop completes all three iterations.
	src := `
function: loop_try 5 0
	names:
		items
	constants:
		string "boom"
		int 1
		int 0
	locals:
		acc
		c
	handlers:
		8 10 11
	code:
		load_const 2
		store_fast 0
		setup_loop
		load_global 0
		get_iter
		for_iter 18
		store_fast 1
		setup_except
		load_const 0
		raise_varargs 1
		pop_block
		pop_except
		pop_top
		load_fast 0
		load_const 1
		binary_add
		store_fast 0
		jump_absolute 5
		pop_block
		load_fast 0
		return_value
`
	globals := hostabi.NewDict(8)
	elems := []hostabi.Value{hostabi.NewStr("a"), hostabi.NewStr("b"), hostabi.NewStr("c")}
	require.NoError(t, globals.SetKey(hostabi.NewStr("items"), hostabi.NewList(elems)))

	v, err := callJit(t, src, globals)
	require.NoError(t, err)
	assert.Equal(t, int64(3), intOf(t, v))
}

func TestFinallyInsideForLoopRunsEachIteration(t *testing.T) {
	src := `
function: fin_loop 5 0
	names:
		items
	constants:
		int 1
		int 0
	locals:
		acc
		c
	handlers:
		8 12 14 finally
	code:
		load_const 1
		store_fast 0
		setup_loop
		load_global 0
		get_iter
		for_iter 16
		store_fast 1
		setup_finally
		load_fast 0
		load_const 0
		binary_add
		store_fast 0
		pop_block
		load_none
		end_finally
		jump_absolute 5
		pop_block
		load_fast 0
		return_value
`
	globals := hostabi.NewDict(8)
	elems := []hostabi.Value{mustTag(t, 10), mustTag(t, 20), mustTag(t, 30)}
	require.NoError(t, globals.SetKey(hostabi.NewStr("items"), hostabi.NewList(elems)))

	v, err := callJit(t, src, globals)
	require.NoError(t, err)
	assert.Equal(t, int64(3), intOf(t, v))
}

func TestBreakReleasesIterator(t *testing.T) {
	// breaking out of a for loop must unwind the iterator off the operand
	// stack so the value returned afterwards is the right one.
	src := `
function: break_for 4 0
	names:
		items
	constants:
		int 7
	locals:
		c
	code:
		setup_loop
		load_global 0
		get_iter
		for_iter 7
		store_fast 0
		break_loop
		jump_absolute 3
		pop_block
		load_const 0
		return_value
`
	globals := hostabi.NewDict(8)
	elems := []hostabi.Value{mustTag(t, 1), mustTag(t, 2)}
	require.NoError(t, globals.SetKey(hostabi.NewStr("items"), hostabi.NewList(elems)))

	v, err := callJit(t, src, globals)
	require.NoError(t, err)
	assert.Equal(t, int64(7), intOf(t, v))
}

func TestFibonacciStaysTagged(t *testing.T) {
	src := `
function: fib 4 1
	constants:
		int 0
		int 1
	locals:
		n
		a
		b
	code:
		load_const 0
		store_fast 1
		load_const 1
		store_fast 2
		load_fast 0
		jump_if_false 18
		load_fast 2
		load_fast 1
		load_fast 2
		binary_add
		rot_two
		store_fast 1
		store_fast 2
		load_fast 0
		load_const 1
		inplace_sub
		store_fast 0
		jump_absolute 4
		load_fast 1
		return_value
`
	v, err := callJit(t, src, nil, mustTag(t, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(55), intOf(t, v))
	assert.IsType(t, hostabi.TaggedInt(0), v)
}

func TestFloatFastPath(t *testing.T) {
	src := `
function: fadd 2 0
	constants:
		float 1.5
		float 2.25
	code:
		load_const 0
		load_const 1
		binary_add
		return_value
`
	v, err := callJit(t, src, nil)
	require.NoError(t, err)
	require.IsType(t, &hostabi.Float{}, v)
	assert.Equal(t, 3.75, v.(*hostabi.Float).V)
}

func TestFloatCompareDrivesBranch(t *testing.T) {
	src := `
function: fcmp 2 0
	constants:
		float 1.5
		float 2.5
		int 1
		int 0
	code:
		load_const 0
		load_const 1
		compare_lt
		jump_if_false 6
		load_const 2
		return_value
		load_const 3
		return_value
`
	v, err := callJit(t, src, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), intOf(t, v))
}

func TestYieldIsNotCompilable(t *testing.T) {
	src := `
function: gen 2 0
	code:
		load_none
		yield_value
		return_value
`
	d := newDriver()
	code := mustAsm(t, src)
	_, err := d.Compile(code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrNotCompilable))
	assert.Nil(t, code.Compiled)

	var nce *driver.NotCompilableError
	require.True(t, errors.As(err, &nce))
	assert.Equal(t, bytecode.YIELD_VALUE, nce.Op)
}

func TestAllUnsupportedOpcodesRejected(t *testing.T) {
	unsupported := []bytecode.Opcode{
		bytecode.YIELD_VALUE, bytecode.YIELD_FROM, bytecode.SETUP_WITH,
		bytecode.WITH_CLEANUP_START, bytecode.WITH_CLEANUP_FINISH,
	}
	d := newDriver()
	for _, op := range unsupported {
		t.Run(op.String(), func(t *testing.T) {
			code := &bytecode.CodeObject{
				Name: "g",
				Code: []byte{byte(op), byte(bytecode.RETURN_VALUE)},
			}
			_, err := d.Compile(code)
			require.Error(t, err)
			assert.True(t, errors.Is(err, driver.ErrNotCompilable))
		})
	}
}

func TestCompileIsIdempotentAndFreeReleases(t *testing.T) {
	src := `
function: id 1 1
	locals:
		x
	code:
		load_fast 0
		return_value
`
	d := newDriver()
	code := mustAsm(t, src)

	cc1, err := d.Compile(code)
	require.NoError(t, err)
	cc2, err := d.Compile(code)
	require.NoError(t, err)
	assert.Same(t, cc1, cc2)
	assert.Same(t, cc1, code.Compiled)

	d.Free(code)
	assert.Nil(t, code.Compiled)

	cc3, err := d.Compile(code)
	require.NoError(t, err)
	assert.NotSame(t, cc1, cc3)
}

func TestCallbacksShape(t *testing.T) {
	okSrc := `
function: ok 1 0
	code:
		load_none
		return_value
`
	badSrc := `
function: bad 1 0
	code:
		load_none
		yield_value
		return_value
`
	d := newDriver()
	compile, free := d.Callbacks()

	ok := mustAsm(t, okSrc)
	bad := mustAsm(t, badSrc)
	assert.NotNil(t, compile(ok))
	assert.Nil(t, compile(bad))
	free(ok)
	assert.Nil(t, ok.Compiled)
}

func TestMakeFunctionAndCall(t *testing.T) {
	src := `
function: outer 2 0
	code:
		make_function 0
		call_function 0
		return_value

function: inner 1 0
	constants:
		int 42
	code:
		load_const 0
		return_value
`
	v, err := callJit(t, src, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), intOf(t, v))
}

func TestCallBuiltinThroughCallSite(t *testing.T) {
	src := `
function: twice 3 1
	names:
		double
	locals:
		x
	code:
		load_global 0
		load_fast 0
		call_function 1
		return_value
`
	globals := hostabi.NewDict(8)
	double := hostabi.NewBuiltin("double", func(args []hostabi.Value, _ map[string]hostabi.Value) (hostabi.Value, error) {
		w, _ := hostabi.UnboxInt(args[0])
		v, _ := tagged.Tag(2 * tagged.Untag(w))
		return hostabi.NewTaggedInt(v), nil
	})
	require.NoError(t, globals.SetKey(hostabi.NewStr("double"), double))

	v, err := callJit(t, src, globals, mustTag(t, 21))
	require.NoError(t, err)
	assert.Equal(t, int64(42), intOf(t, v))
}

func TestUncaughtExceptionUnwinds(t *testing.T) {
	src := `
function: boom 1 0
	constants:
		string "kaboom"
	code:
		load_const 0
		raise_varargs 1
		load_none
		return_value
`
	d := newDriver()
	ts := hostabi.NewThreadState()
	fn := d.NewFunction(mustAsm(t, src), hostabi.NewDict(8))

	_, err := fn.Invoke(ts, fn, nil, nil)
	require.Error(t, err)
	assert.True(t, ts.ErrorOccurred())
}

func TestExecuteModuleBody(t *testing.T) {
	src := `
function: top 2 0
	names:
		answer
	constants:
		int 40
		int 2
	code:
		load_const 0
		load_const 1
		binary_add
		store_name 0
		load_name 0
		return_value
`
	d := newDriver()
	ts := hostabi.NewThreadState()
	globals := hostabi.NewDict(8)

	v, err := d.Execute(ts, mustAsm(t, src), globals)
	require.NoError(t, err)
	assert.Equal(t, int64(42), intOf(t, v))

	stored, ok, err := globals.Get(hostabi.NewStr("answer"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), intOf(t, stored))
}

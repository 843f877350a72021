package hostabi

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/bytecode"
)

// Callable is implemented by any value that may be the target of a CALL
// opcode. Call dispatch (runtimehelpers.Call0..Call4, FancyCall) switches on
// the concrete flavor to decide how cheaply it can invoke the target.
type Callable interface {
	Value
	Name() string
}

// Function is a user-defined function: a code object plus the closure state
// captured at MAKE_FUNCTION time. It is the "user function" call flavor;
// the driver runs it by building a frame and copying the arguments into
// fast locals directly, bypassing tuple construction. Argument binding does
// not consult Funcode.SimpleCallingConvention.
type Function struct {
	Header
	Funcode    *bytecode.CodeObject
	Globals    *Dict
	Freevars   *Tuple
	Defaults   *Tuple
	KwDefaults *Dict
	Annotations *Dict
	Closure    bool

	// Invoke is the embedding's hook for actually running Funcode against a
	// call's arguments — dispatching to compiled IL if driver.Compile has
	// already produced it for this code object, or to a plain interpreter
	// otherwise. runtimehelpers.CallFunction is a pure dispatch boundary and
	// never runs bytecode itself: it calls Invoke when set, falls back to the
	// ThreadState's EvalHook otherwise, and fails when neither is present.
	Invoke func(ts *ThreadState, fn *Function, args []Value, kwargs map[string]Value) (Value, error)
}

func NewFunction(code *bytecode.CodeObject, globals *Dict) *Function {
	return &Function{Header: newHeader(), Funcode: code, Globals: globals, Freevars: EmptyTuple}
}

func (fn *Function) String() string { return fmt.Sprintf("function(%p %s)", fn, fn.Name()) }
func (*Function) Type() string      { return "function" }
func (*Function) Truth() bool       { return true }
func (fn *Function) Name() string {
	if fn.Funcode.Name == "" {
		return "<anonymous>"
	}
	return fn.Funcode.Name
}

// BoundMethod pairs a receiver with an unbound callable, the "bound method"
// call flavor.
type BoundMethod struct {
	Header
	Receiver Value
	Func     Callable
}

func NewBoundMethod(recv Value, fn Callable) *BoundMethod {
	return &BoundMethod{Header: newHeader(), Receiver: recv, Func: fn}
}
func (m *BoundMethod) String() string { return fmt.Sprintf("bound-method(%p %s)", m, m.Name()) }
func (*BoundMethod) Type() string     { return "method" }
func (*BoundMethod) Truth() bool      { return true }
func (m *BoundMethod) Name() string   { return m.Func.Name() }

// Builtin is a callable implemented directly in Go rather than in host
// bytecode — the "builtin" call flavor. Fn receives positional args already
// materialized into a slice and a keyword map; it owns (must DecRef) none of
// its inputs — the caller does that after the call returns, matching the
// host's convention that built-ins borrow their arguments.
type Builtin struct {
	Header
	FnName string
	Fn     func(args []Value, kwargs map[string]Value) (Value, error)
}

func NewBuiltin(name string, fn func([]Value, map[string]Value) (Value, error)) *Builtin {
	return &Builtin{Header: newHeader(), FnName: name, Fn: fn}
}
func (b *Builtin) String() string { return fmt.Sprintf("builtin(%s)", b.FnName) }
func (*Builtin) Type() string     { return "builtin_function" }
func (*Builtin) Truth() bool      { return true }
func (b *Builtin) Name() string   { return b.FnName }

// Class and Instance model the minimal object model BUILD_CLASS and
// LOAD_ATTR/STORE_ATTR on an instance need.
type Class struct {
	Header
	ClassName string
	Bases     []*Class
	Dict      *Dict
}

func NewClass(name string, bases []*Class) *Class {
	return &Class{Header: newHeader(), ClassName: name, Bases: bases, Dict: NewDict(4)}
}
func (c *Class) String() string { return fmt.Sprintf("class(%p %s)", c, c.ClassName) }
func (*Class) Type() string     { return "type" }
func (*Class) Truth() bool      { return true }
func (c *Class) Name() string   { return c.ClassName }

type Instance struct {
	Header
	Class *Class
	Dict  *Dict
}

func NewInstance(cls *Class) *Instance {
	return &Instance{Header: newHeader(), Class: cls, Dict: NewDict(4)}
}
func (i *Instance) String() string { return fmt.Sprintf("%s(%p)", i.Class.ClassName, i) }
func (*Instance) Type() string     { return "instance" }
func (*Instance) Truth() bool      { return true }

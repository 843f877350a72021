// Package driver is the compile orchestration layer: it runs the abstract
// interpreter, rejects code objects the stack-effect compiler cannot
// handle, invokes the compiler against a fresh IL builder, and owns the
// lifetime of the resulting compiled artifact. It is the piece behind the
// host VM's two installed function pointers (the compile callback invoked
// lazily on first eval and the free callback invoked from the code object's
// deallocator).
package driver

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/ilbuilder"
	"github.com/tachyon-lang/tachyonjit/stackcompiler"
)

// ErrNotCompilable is the sentinel every compile-time rejection wraps:
// errors.Is(err, ErrNotCompilable) distinguishes "fall back to the
// interpreter" from an internal failure. It is never surfaced as a host
// exception.
var ErrNotCompilable = errors.New("not compilable")

// NotCompilableError reports which opcode made the driver reject the code
// object, for diagnostics only — the host just falls back to
// interpretation either way.
type NotCompilableError struct {
	Op     bytecode.Opcode
	Offset uint32
}

func (e *NotCompilableError) Error() string {
	return fmt.Sprintf("opcode %s at offset %d is %s", e.Op, e.Offset, ErrNotCompilable)
}

func (e *NotCompilableError) Unwrap() error { return ErrNotCompilable }

// CompiledCode is the opaque compiled artifact the host stores in its code
// object's extension word. It stays valid until Free.
type CompiledCode struct {
	code   *bytecode.CodeObject
	method ilbuilder.Method
}

// Invoke runs the compiled method against fr's locals and globals on ts.
func (cc *CompiledCode) Invoke(ts *hostabi.ThreadState, fr *hostabi.Frame) (hostabi.Value, error) {
	return cc.method.Invoke(ts, fr)
}

// Driver compiles code objects through a caller-supplied IL backend. One
// Driver may serve many code objects; each Compile uses a fresh Builder
// from the factory, so compiles of different code objects are independent.
type Driver struct {
	newBuilder func() ilbuilder.Builder

	// Debugf, when non-nil, receives one line per compile decision. There
	// is no logging dependency here on purpose: the embedding CLI decides
	// where (and whether) diagnostics go.
	Debugf func(format string, args ...any)

	mu    sync.Mutex
	cache *swiss.Map[*bytecode.CodeObject, *CompiledCode]
}

// New returns a Driver that builds IL with Builders from newBuilder.
func New(newBuilder func() ilbuilder.Builder) *Driver {
	return &Driver{
		newBuilder: newBuilder,
		cache:      swiss.NewMap[*bytecode.CodeObject, *CompiledCode](8),
	}
}

func (d *Driver) debugf(format string, args ...any) {
	if d.Debugf != nil {
		d.Debugf(format, args...)
	}
}

// Compile translates code into a compiled artifact, or reports (wrapping
// ErrNotCompilable) that the code object must stay interpreted. Compiling
// the same code object twice returns the same artifact: the driver is the
// single owner of the code-object → compiled mapping, tracked both in the
// code object's own extension word and in the driver's table.
func (d *Driver) Compile(code *bytecode.CodeObject) (*CompiledCode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cc, ok := d.cache.Get(code); ok {
		return cc, nil
	}

	for _, in := range bytecode.Decode(code.Code) {
		if in.Op.IsUnsupported() {
			d.debugf("reject %s: %s at offset %d", code.Name, in.Op, in.Offset)
			return nil, &NotCompilableError{Op: in.Op, Offset: in.Offset}
		}
	}

	m, err := stackcompiler.Compile(code, d.newBuilder())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", code.Name, err)
	}
	cc := &CompiledCode{code: code, method: m}
	code.Compiled = cc
	d.cache.Put(code, cc)
	d.debugf("compiled %s (%d bytes of bytecode)", code.Name, len(code.Code))
	return cc, nil
}

// Free releases code's compiled artifact, if any. Safe to call for a code
// object that was never compiled, matching the host deallocator's
// unconditional invocation of the free callback.
func (d *Driver) Free(code *bytecode.CodeObject) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Delete(code)
	code.Compiled = nil
}

// Callbacks returns the two function pointers the host VM installs in its
// interpreter state: the lazy compile hook (nil result means "fall back to
// interpretation") and the deallocator's free hook.
func (d *Driver) Callbacks() (compile func(*bytecode.CodeObject) any, free func(*bytecode.CodeObject)) {
	compile = func(code *bytecode.CodeObject) any {
		cc, err := d.Compile(code)
		if err != nil {
			return nil
		}
		return cc
	}
	return compile, d.Free
}

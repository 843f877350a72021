package driver

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/hostabi"
)

// Install wires the driver into ts as its eval hook, the moral equivalent
// of installing the compile/free callbacks on the host interpreter state:
// any Function without its own Invoke hook — notably one minted by
// MAKE_FUNCTION inside compiled code — runs through this driver.
func (d *Driver) Install(ts *hostabi.ThreadState) {
	ts.EvalHook = func(ts *hostabi.ThreadState, f *hostabi.Function, args []hostabi.Value, kwargs map[string]hostabi.Value) (hostabi.Value, error) {
		return d.call(ts, f, args, kwargs)
	}
}

// Bind attaches the driver's compile-and-run entry point as fn's Invoke
// hook — the reference embedding's equivalent of installing the compile
// callback on the host interpreter state. The first call through fn
// compiles its code object; later calls reuse the cached artifact.
func (d *Driver) Bind(fn *hostabi.Function) *hostabi.Function {
	fn.Invoke = func(ts *hostabi.ThreadState, f *hostabi.Function, args []hostabi.Value, kwargs map[string]hostabi.Value) (hostabi.Value, error) {
		return d.call(ts, f, args, kwargs)
	}
	return fn
}

// NewFunction builds a Function for code bound to globals, with the
// driver's Invoke hook already attached, and every nested code object's
// functions bound the same way when they are created by MAKE_FUNCTION at
// run time (their Invoke hook is attached lazily by call below).
func (d *Driver) NewFunction(code *bytecode.CodeObject, globals *hostabi.Dict) *hostabi.Function {
	return d.Bind(hostabi.NewFunction(code, globals))
}

// Execute compiles code and runs it as a module body: a frame whose names
// live in globals rather than fast locals.
func (d *Driver) Execute(ts *hostabi.ThreadState, code *bytecode.CodeObject, globals *hostabi.Dict) (hostabi.Value, error) {
	cc, err := d.Compile(code)
	if err != nil {
		return nil, err
	}
	fr := hostabi.NewModuleFrame(code, globals, ts.Builtins)
	defer releaseFrame(fr)
	return cc.Invoke(ts, fr)
}

func (d *Driver) call(ts *hostabi.ThreadState, f *hostabi.Function, args []hostabi.Value, kwargs map[string]hostabi.Value) (hostabi.Value, error) {
	cc, err := d.Compile(f.Funcode)
	if err != nil {
		// The real host falls back to its interpreter here; this embedding
		// has none, so the failure surfaces as a host exception.
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}

	// A function newly minted by MAKE_FUNCTION inside compiled code has no
	// Invoke hook yet; give it this driver's.
	if f.Invoke == nil {
		d.Bind(f)
	}

	fr, err := d.bindArgs(ts, f, args, kwargs)
	if err != nil {
		return nil, err
	}
	defer releaseFrame(fr)
	return cc.Invoke(ts, fr)
}

// bindArgs builds the call frame and copies arguments into fast locals
// directly — the simple-calling-convention fast path, with the general
// varargs/keyword/defaults handling layered on only when the code object
// needs it. The owned references in args transfer into the frame; defaults
// pulled from f get a fresh reference each.
func (d *Driver) bindArgs(ts *hostabi.ThreadState, f *hostabi.Function, args []hostabi.Value, kwargs map[string]hostabi.Value) (*hostabi.Frame, error) {
	code := f.Funcode
	fr := hostabi.NewFrame(code, f.Globals, ts.Builtins, nil)

	if len(args) > code.NumParams && !code.HasVarargs {
		err := fmt.Errorf("%s() takes %d positional arguments but %d were given", f.Name(), code.NumParams, len(args))
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}

	n := len(args)
	if n > code.NumParams {
		n = code.NumParams
	}
	for i := 0; i < n; i++ {
		fr.SetLocal(i, args[i])
	}
	if code.HasVarargs {
		rest := append([]hostabi.Value(nil), args[code.NumParams:]...)
		fr.SetLocal(code.NumParams+code.NumKwOnlyParams, hostabi.NewTuple(rest))
	}

	for name, v := range kwargs {
		idx := -1
		for i := 0; i < code.NumParams+code.NumKwOnlyParams; i++ {
			if code.Locals[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 || (idx < n && fr.GetLocal(idx) != nil) {
			err := fmt.Errorf("%s() got an unexpected or duplicate keyword argument '%s'", f.Name(), name)
			ts.SetErrorString(hostabi.ClassTypeError, err.Error())
			releaseFrame(fr)
			return nil, err
		}
		fr.SetLocal(idx, v)
	}

	// trailing defaults fill whatever positional slots remain empty.
	if f.Defaults != nil {
		nd := len(f.Defaults.Elems)
		for i := 0; i < nd; i++ {
			slot := code.NumParams - nd + i
			if slot >= 0 && fr.GetLocal(slot) == nil {
				v := f.Defaults.Elems[i]
				hostabi.IncRef(v)
				fr.SetLocal(slot, v)
			}
		}
	}
	if f.KwDefaults != nil {
		for i := code.NumParams; i < code.NumParams+code.NumKwOnlyParams; i++ {
			if fr.GetLocal(i) != nil {
				continue
			}
			if v, ok, _ := f.KwDefaults.Get(hostabi.NewStr(code.Locals[i].Name)); ok {
				hostabi.IncRef(v)
				fr.SetLocal(i, v)
			}
		}
	}

	for i := 0; i < code.NumParams+code.NumKwOnlyParams; i++ {
		if fr.GetLocal(i) == nil {
			err := fmt.Errorf("%s() missing required argument '%s'", f.Name(), code.Locals[i].Name)
			ts.SetErrorString(hostabi.ClassTypeError, err.Error())
			releaseFrame(fr)
			return nil, err
		}
	}

	// cell2arg: parameters captured by an inner function read through their
	// cell, so the bound value is copied in once at frame setup.
	for ci, li := range code.Cells {
		if v := fr.GetLocal(li); v != nil {
			hostabi.IncRef(v)
			fr.Cells()[ci].Set(v)
		}
	}
	if f.Closure {
		fr.AttachFreevars(f.Freevars)
	}
	return fr, nil
}

// releaseFrame drops the frame's remaining owned references: live locals
// and the frame-owned cells' current values. Freevar cells attached from a
// closure belong to the closure, not the frame, and are left alone.
func releaseFrame(fr *hostabi.Frame) {
	for _, v := range fr.Locals() {
		if v != nil {
			hostabi.DecRef(v)
		}
	}
	for i, c := range fr.Cells() {
		if i >= len(fr.Code.Cells) {
			break
		}
		hostabi.DecRef(c.Get())
	}
}

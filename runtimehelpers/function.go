package runtimehelpers

import (
	"github.com/tachyon-lang/tachyonjit/bytecode"
	"github.com/tachyon-lang/tachyonjit/hostabi"
)

// MakeFunction implements MAKE_FUNCTION: steals code's owning reference
// (held via the enclosing frame, not a hostabi.Value itself) is not
// applicable here since code objects are not refcounted; it does steal
// globals (typically the current frame's own Globals, already owned by the
// frame, so this call borrows rather than steals it in practice — see
// stackcompiler for the exact emission).
func MakeFunction(code *bytecode.CodeObject, globals *hostabi.Dict) *hostabi.Function {
	return hostabi.NewFunction(code, globals)
}

// MakeClosure implements MAKE_CLOSURE: like MakeFunction but also steals an
// owned *hostabi.Tuple of *hostabi.Cell freevars built by the compiled
// code's LOAD_CLOSURE-equivalent sequence.
func MakeClosure(code *bytecode.CodeObject, globals *hostabi.Dict, freevars *hostabi.Tuple) *hostabi.Function {
	fn := hostabi.NewFunction(code, globals)
	fn.Freevars = freevars
	fn.Closure = true
	return fn
}

func SetDefaults(fn *hostabi.Function, defaults *hostabi.Tuple) *hostabi.Function {
	fn.Defaults = defaults
	return fn
}

func SetKwDefaults(fn *hostabi.Function, kwDefaults *hostabi.Dict) *hostabi.Function {
	fn.KwDefaults = kwDefaults
	return fn
}

func SetAnnotations(fn *hostabi.Function, annotations *hostabi.Dict) *hostabi.Function {
	fn.Annotations = annotations
	return fn
}

// BuildClass implements BUILD_CLASS: steals the class body's populated
// namespace dict and the bases tuple, returning an owned *hostabi.Class.
func BuildClass(ts *hostabi.ThreadState, name string, bases *hostabi.Tuple, namespace *hostabi.Dict) *hostabi.Class {
	defer hostabi.DecRef(bases)
	defer hostabi.DecRef(namespace)
	baseClasses := make([]*hostabi.Class, 0, len(bases.Elems))
	for _, b := range bases.Elems {
		if c, ok := b.(*hostabi.Class); ok {
			baseClasses = append(baseClasses, c)
		}
	}
	cls := hostabi.NewClass(name, baseClasses)
	namespace.Range(func(k, v hostabi.Value) bool {
		if s, ok := k.(*hostabi.Str); ok {
			cls.Dict.SetKey(s, v)
		}
		return true
	})
	return cls
}

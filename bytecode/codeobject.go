package bytecode

// Binding records a local, cell or free variable's name — a JIT that never
// reports source positions needs nothing else about the binding.
type Binding struct {
	Name string
}

// ExceptHandler describes one EXCEPT or FINALLY block's extent in the
// bytecode: PC0..PC1 is the protected range, StartPC is where the handler
// body begins. Nested handlers come after the more general ones that
// enclose them.
type ExceptHandler struct {
	PC0, PC1 uint32
	StartPC  uint32
	Finally  bool // true for FINALLY, false for EXCEPT
}

// Covers reports whether pc falls within the handler's protected range.
func (h ExceptHandler) Covers(pc int64) bool {
	return pc >= int64(h.PC0) && pc < int64(h.PC1)
}

// CodeObject is the host VM's compiled form of one function (or module
// top-level). It is the unit the JIT compiles: a single call to
// driver.Compile takes one CodeObject and, on success, fills its Compiled
// field — the host reserves that single extra word per code object for the
// JIT, which owns it exclusively; the host deallocator is expected to
// invoke driver.Free on it before releasing the CodeObject.
type CodeObject struct {
	Name string
	Code []byte

	Consts    []any // int64, float64 or string, mirroring the host's constant pool
	Names     []string
	Locals    []Binding
	Cells     []int // indices into Locals that require a cell
	Freevars  []Binding
	Handlers  []ExceptHandler

	// Funcs holds the code objects of functions defined inside this one;
	// MAKE_FUNCTION/MAKE_CLOSURE's argument indexes it.
	Funcs []*CodeObject

	NumParams       int
	NumKwOnlyParams int
	HasVarargs      bool
	HasKwargs       bool
	// SimpleCallingConvention is true when the function has no defaults, no
	// *args/**kwargs and no keyword-only parameters — it authorizes the
	// runtime helper surface's Call0..Call4 fast path to bypass tuple
	// construction entirely.
	SimpleCallingConvention bool

	MaxStack int

	// Compiled is the JIT's opaque extension word. Nil until the first
	// successful compile, or after Free.
	Compiled any
}

// Binding returns the local binding at index i, or the zero Binding if out of
// range — used only for diagnostics (e.g. the "referenced before assignment"
// message), never for control flow.
func (c *CodeObject) Binding(i int) Binding {
	if i < 0 || i >= len(c.Locals) {
		return Binding{}
	}
	return c.Locals[i]
}

package hostabi

import "github.com/tachyon-lang/tachyonjit/bytecode"

// Cell boxes a single value shared between a function and the closures it
// creates, the storage behind LOAD_DEREF/STORE_DEREF/MAKE_CLOSURE.
type Cell struct {
	Header
	val Value
}

func NewCell(v Value) *Cell { return &Cell{Header: newHeader(), val: v} }
func (c *Cell) String() string { return "cell" }
func (*Cell) Type() string     { return "cell" }
func (*Cell) Truth() bool      { return true }
func (c *Cell) Get() Value     { return c.val }
func (c *Cell) Set(v Value)    { c.val = v }

// Frame is the host's opaque per-activation record: the
// compiled code never constructs one directly, it only calls the accessors
// below, exactly as the runtime helper surface does. Kept in hostabi rather
// than bytecode because its accessors return hostabi.Value and hostabi.Dict,
// and bytecode must not depend on hostabi (the dependency runs the other
// way: hostabi.Function embeds a *bytecode.CodeObject).
type Frame struct {
	Code     *bytecode.CodeObject
	Globals  *Dict
	Builtins *Dict
	Back     *Frame

	locals []Value
	cells  []*Cell

	// localsMap backs module- and class-body frames, where locals are a
	// plain dict rather than a fixed-size fast-local array —
	// LOAD_NAME/STORE_NAME write through this namespace.
	localsMap *Dict

	lastInstr uint32
}

// NewFrame allocates a frame for a call to code, with one empty fast-local
// slot per entry in code.Locals and a fresh cell per entry in code.Cells
// (the caller is responsible for populating the argument slots before
// running against this frame — arguments are copied into fast locals
// directly, with no intermediate tuple).
func NewFrame(code *bytecode.CodeObject, globals, builtins *Dict, back *Frame) *Frame {
	fr := &Frame{
		Code:     code,
		Globals:  globals,
		Builtins: builtins,
		Back:     back,
		locals:   make([]Value, len(code.Locals)),
		cells:    make([]*Cell, len(code.Cells)),
	}
	for i := range fr.cells {
		fr.cells[i] = NewCell(NilValue)
	}
	return fr
}

func NewModuleFrame(code *bytecode.CodeObject, globals, builtins *Dict) *Frame {
	fr := NewFrame(code, globals, builtins, nil)
	fr.localsMap = globals
	return fr
}

func (fr *Frame) Locals() []Value { return fr.locals }
func (fr *Frame) Cells() []*Cell  { return fr.cells }

// AttachFreevars appends a closure's shared cells after the frame's own
// cell slots, forming the combined cell/freevar index space LOAD_DEREF and
// LOAD_CLASSDEREF address.
func (fr *Frame) AttachFreevars(t *Tuple) {
	for _, v := range t.Elems {
		if c, ok := v.(*Cell); ok {
			fr.cells = append(fr.cells, c)
		}
	}
}

// LocalsMap returns the dict-backed namespace for frames that use one
// (module and class bodies), or nil for ordinary function frames.
func (fr *Frame) LocalsMap() *Dict { return fr.localsMap }

func (fr *Frame) GetLocal(i int) Value    { return fr.locals[i] }
func (fr *Frame) SetLocal(i int, v Value) { fr.locals[i] = v }

func (fr *Frame) LastInstruction() uint32        { return fr.lastInstr }
func (fr *Frame) SetLastInstruction(offset uint32) { fr.lastInstr = offset }

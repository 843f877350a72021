// Package asmfmt implements a human-readable/writable form of a host code
// object. This is mostly to support testing of the JIT without a host VM
// that produces real bytecode: golden fixtures are written by hand in this
// format and assembled into bytecode.CodeObject values. A disassembler is
// also implemented.
//
// The assembly format looks like this (indentation and spacing is
// arbitrary, but order of sections is important):
//
//	function: NAME <stack> <params> [+varargs] [+kwargs] [+simple]
//		names:                # optional, list of Names
//			print
//		constants:            # optional, list of Constants
//			string "abc"
//			int    1234
//			float  1.34
//		locals:               # optional, list of Locals
//			x
//		cells:                # optional, names in Locals that require a cell
//			x
//		freevars:             # optional, list of Freevars
//			y
//		handlers:             # optional, list of except/finally blocks
//			3 9 10 finally      # indices of pc0, pc1 and startpc in the code
//			                    # section (translated to byte addresses)
//		code:                 # required, list of instructions
//			load_const 0
//			jump_absolute 3     # jump argument refers to an index in the code
//			                    # section (translated to a byte address)
//
// A file may contain several function: sections. The first is the one Asm
// returns; the rest are nested functions, referenced by MAKE_FUNCTION/
// MAKE_CLOSURE arguments as indices into the shared table (0 is the second
// function in the file, 1 the third, and so on).
package asmfmt

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tachyon-lang/tachyonjit/bytecode"
)

var sections = map[string]bool{
	"function:":  true,
	"names:":     true,
	"constants:": true,
	"locals:":    true,
	"cells:":     true,
	"freevars:":  true,
	"handlers:":  true,
	"code:":      true,
}

// Asm loads a code object from its assembler textual format.
func Asm(b []byte) (*bytecode.CodeObject, error) {
	a := asm{s: bufio.NewScanner(bytes.NewReader(b))}

	var fns []*bytecode.CodeObject
	fields := a.next()
	for a.err == nil && len(fields) > 0 && strings.EqualFold(fields[0], "function:") {
		var fn *bytecode.CodeObject
		fn, fields = a.function(fields)
		if fn != nil {
			fns = append(fns, fn)
		}
	}

	if a.err == nil {
		if len(fields) > 0 {
			a.err = fmt.Errorf("unexpected section: %s", fields[0])
		} else if len(fns) == 0 {
			a.err = fmt.Errorf("missing function")
		}
	}
	if a.err != nil {
		return nil, a.err
	}

	// every function sees the same nested-function table, so a fixture's
	// MAKE_FUNCTION arguments index consistently from any nesting level.
	nested := fns[1:]
	for _, fn := range fns {
		fn.Funcs = nested
	}
	return fns[0], nil
}

type asm struct {
	s   *bufio.Scanner
	err error
}

// next returns the fields of the next non-empty, non-comment line.
func (a *asm) next() []string {
	for a.err == nil && a.s.Scan() {
		line := a.s.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			return fields
		}
	}
	if a.err == nil {
		a.err = a.s.Err()
	}
	return nil
}

func (a *asm) int(s string) int64 {
	if a.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		a.err = fmt.Errorf("invalid integer: %s", s)
	}
	return v
}

func (a *asm) option(fields []string, name string) bool {
	for _, f := range fields {
		if f == "+"+name {
			return true
		}
	}
	return false
}

func (a *asm) function(fields []string) (*bytecode.CodeObject, []string) {
	if len(fields) < 4 {
		a.err = fmt.Errorf("invalid function: want 'function: NAME <stack> <params> [+varargs] [+kwargs] [+simple]', got %q", strings.Join(fields, " "))
		return nil, a.next()
	}
	fn := &bytecode.CodeObject{
		Name:       fields[1],
		MaxStack:   int(a.int(fields[2])),
		NumParams:  int(a.int(fields[3])),
		HasVarargs: a.option(fields[4:], "varargs"),
		HasKwargs:  a.option(fields[4:], "kwargs"),
	}
	fn.SimpleCallingConvention = a.option(fields[4:], "simple") ||
		(!fn.HasVarargs && !fn.HasKwargs && fn.NumKwOnlyParams == 0)

	fields = a.next()
	fields = a.names(fn, fields)
	fields = a.constants(fn, fields)
	fields = a.bindings(fn, fields, "locals:", &fn.Locals)
	fields = a.cells(fn, fields)
	fields = a.bindings(fn, fields, "freevars:", &fn.Freevars)

	var rawHandlers [][3]int64
	var finallys []bool
	fields = a.handlers(fields, &rawHandlers, &finallys)
	fields, indexToAddr := a.code(fn, fields)

	if a.err == nil {
		end := uint32(len(fn.Code))
		for i, h := range rawHandlers {
			pc0, ok0 := addrOf(indexToAddr, end, h[0])
			pc1, ok1 := addrOf(indexToAddr, end, h[1])
			start, ok2 := addrOf(indexToAddr, end, h[2])
			if !ok0 || !ok1 || !ok2 {
				a.err = fmt.Errorf("handler %d references an instruction index out of range", i)
				break
			}
			fn.Handlers = append(fn.Handlers, bytecode.ExceptHandler{
				PC0: pc0, PC1: pc1, StartPC: start, Finally: finallys[i],
			})
		}
	}
	return fn, fields
}

func addrOf(indexToAddr []uint32, end uint32, idx int64) (uint32, bool) {
	// one past the last instruction is a valid protected-range end.
	if idx < 0 || idx > int64(len(indexToAddr)) {
		return 0, false
	}
	if idx == int64(len(indexToAddr)) {
		return end, true
	}
	return indexToAddr[idx], true
}

func (a *asm) names(fn *bytecode.CodeObject, fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "names:") {
		return fields
	}
	for fields = a.next(); a.err == nil && len(fields) > 0 && !sections[strings.ToLower(fields[0])]; fields = a.next() {
		fn.Names = append(fn.Names, fields[0])
	}
	return fields
}

func (a *asm) constants(fn *bytecode.CodeObject, fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "constants:") {
		return fields
	}
	for fields = a.next(); a.err == nil && len(fields) > 0 && !sections[strings.ToLower(fields[0])]; fields = a.next() {
		if len(fields) < 2 {
			a.err = fmt.Errorf("invalid constant: want '<type> <value>', got %q", strings.Join(fields, " "))
			return fields
		}
		switch fields[0] {
		case "int":
			fn.Consts = append(fn.Consts, a.int(fields[1]))
		case "float":
			f, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				a.err = fmt.Errorf("invalid float constant: %s", fields[1])
				return fields
			}
			fn.Consts = append(fn.Consts, f)
		case "string":
			s, err := strconv.Unquote(strings.Join(fields[1:], " "))
			if err != nil {
				a.err = fmt.Errorf("invalid string constant: %s", strings.Join(fields[1:], " "))
				return fields
			}
			fn.Consts = append(fn.Consts, s)
		default:
			a.err = fmt.Errorf("invalid constant type: %s", fields[0])
			return fields
		}
	}
	return fields
}

func (a *asm) bindings(fn *bytecode.CodeObject, fields []string, section string, dst *[]bytecode.Binding) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], section) {
		return fields
	}
	for fields = a.next(); a.err == nil && len(fields) > 0 && !sections[strings.ToLower(fields[0])]; fields = a.next() {
		*dst = append(*dst, bytecode.Binding{Name: fields[0]})
	}
	return fields
}

func (a *asm) cells(fn *bytecode.CodeObject, fields []string) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "cells:") {
		return fields
	}
	for fields = a.next(); a.err == nil && len(fields) > 0 && !sections[strings.ToLower(fields[0])]; fields = a.next() {
		idx := -1
		for i, b := range fn.Locals {
			if b.Name == fields[0] {
				idx = i
				break
			}
		}
		if idx < 0 {
			a.err = fmt.Errorf("cell %q does not name a local", fields[0])
			return fields
		}
		fn.Cells = append(fn.Cells, idx)
	}
	return fields
}

func (a *asm) handlers(fields []string, raw *[][3]int64, finallys *[]bool) []string {
	if a.err != nil || len(fields) == 0 || !strings.EqualFold(fields[0], "handlers:") {
		return fields
	}
	for fields = a.next(); a.err == nil && len(fields) > 0 && !sections[strings.ToLower(fields[0])]; fields = a.next() {
		if len(fields) < 3 {
			a.err = fmt.Errorf("invalid handler: want '<pc0> <pc1> <startpc> [finally]', got %q", strings.Join(fields, " "))
			return fields
		}
		*raw = append(*raw, [3]int64{a.int(fields[0]), a.int(fields[1]), a.int(fields[2])})
		*finallys = append(*finallys, len(fields) > 3 && strings.EqualFold(fields[3], "finally"))
	}
	return fields
}

// jumpTargets lists the opcodes whose argument is a bytecode address, so
// the assembler translates an instruction index and the disassembler
// translates it back.
func jumpTargets(op bytecode.Opcode) bool {
	switch op {
	case bytecode.JUMP_ABSOLUTE, bytecode.JUMP_IF_TRUE, bytecode.JUMP_IF_FALSE,
		bytecode.FOR_ITER, bytecode.CONTINUE_LOOP:
		return true
	default:
		return false
	}
}

func (a *asm) code(fn *bytecode.CodeObject, fields []string) ([]string, []uint32) {
	if a.err != nil {
		return fields, nil
	}
	if len(fields) == 0 || !strings.EqualFold(fields[0], "code:") {
		a.err = fmt.Errorf("missing code section")
		return fields, nil
	}

	type pending struct {
		op  bytecode.Opcode
		arg int64
	}
	var instrs []pending
	for fields = a.next(); a.err == nil && len(fields) > 0 && !sections[strings.ToLower(fields[0])]; fields = a.next() {
		op, ok := bytecode.OpcodeForName(strings.ToLower(fields[0]))
		if !ok {
			a.err = fmt.Errorf("unknown opcode: %s", fields[0])
			return fields, nil
		}
		var arg int64
		if op.HasArg() {
			if len(fields) < 2 {
				a.err = fmt.Errorf("opcode %s requires an argument", op)
				return fields, nil
			}
			arg = a.int(fields[1])
		}
		instrs = append(instrs, pending{op: op, arg: arg})
	}
	if a.err != nil {
		return fields, nil
	}

	// layout pass: byte address of each instruction index.
	indexToAddr := make([]uint32, len(instrs))
	addr := uint32(0)
	for i, in := range instrs {
		indexToAddr[i] = addr
		addr++
		if in.op.HasArg() {
			addr += 2
		}
	}

	// encode pass, translating jump indices to addresses.
	var code []byte
	for i, in := range instrs {
		arg := in.arg
		if jumpTargets(in.op) {
			if arg < 0 || arg >= int64(len(instrs)) {
				a.err = fmt.Errorf("instruction %d: jump target index %d out of range", i, arg)
				return fields, nil
			}
			arg = int64(indexToAddr[arg])
		}
		if arg < 0 || arg > 0xffff {
			a.err = fmt.Errorf("instruction %d: argument %d does not fit in 16 bits", i, arg)
			return fields, nil
		}
		code = append(code, byte(in.op))
		if in.op.HasArg() {
			code = append(code, byte(arg), byte(arg>>8))
		}
	}
	fn.Code = code
	return fields, indexToAddr
}

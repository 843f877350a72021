package asmfmt

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/tachyon-lang/tachyonjit/bytecode"
)

// Dasm writes the code object (and its nested functions) back out in the
// assembler textual format, such that Asm(Dasm(c)) reproduces an equivalent
// code object. Jump arguments and handler addresses are printed as code
// indices, the same way they are written by hand.
func Dasm(c *bytecode.CodeObject) ([]byte, error) {
	var buf bytes.Buffer
	if err := dasmFn(&buf, c); err != nil {
		return nil, err
	}
	for _, fn := range c.Funcs {
		buf.WriteString("\n")
		if err := dasmFn(&buf, fn); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func dasmFn(buf *bytes.Buffer, c *bytecode.CodeObject) error {
	fmt.Fprintf(buf, "function: %s %d %d", c.Name, c.MaxStack, c.NumParams)
	if c.HasVarargs {
		buf.WriteString(" +varargs")
	}
	if c.HasKwargs {
		buf.WriteString(" +kwargs")
	}
	buf.WriteString("\n")

	if len(c.Names) > 0 {
		buf.WriteString("\tnames:\n")
		for _, n := range c.Names {
			fmt.Fprintf(buf, "\t\t%s\n", n)
		}
	}
	if len(c.Consts) > 0 {
		buf.WriteString("\tconstants:\n")
		for _, v := range c.Consts {
			switch v := v.(type) {
			case int64:
				fmt.Fprintf(buf, "\t\tint    %d\n", v)
			case float64:
				fmt.Fprintf(buf, "\t\tfloat  %s\n", strconv.FormatFloat(v, 'g', -1, 64))
			case string:
				fmt.Fprintf(buf, "\t\tstring %q\n", v)
			default:
				return fmt.Errorf("unsupported constant type %T", v)
			}
		}
	}
	if len(c.Locals) > 0 {
		buf.WriteString("\tlocals:\n")
		for _, b := range c.Locals {
			fmt.Fprintf(buf, "\t\t%s\n", b.Name)
		}
	}
	if len(c.Cells) > 0 {
		buf.WriteString("\tcells:\n")
		for _, i := range c.Cells {
			fmt.Fprintf(buf, "\t\t%s\n", c.Locals[i].Name)
		}
	}
	if len(c.Freevars) > 0 {
		buf.WriteString("\tfreevars:\n")
		for _, b := range c.Freevars {
			fmt.Fprintf(buf, "\t\t%s\n", b.Name)
		}
	}

	instrs := bytecode.Decode(c.Code)
	addrToIndex := make(map[uint32]int, len(instrs)+1)
	for i, in := range instrs {
		addrToIndex[in.Offset] = i
	}
	addrToIndex[uint32(len(c.Code))] = len(instrs)

	if len(c.Handlers) > 0 {
		buf.WriteString("\thandlers:\n")
		for _, h := range c.Handlers {
			i0, ok0 := addrToIndex[h.PC0]
			i1, ok1 := addrToIndex[h.PC1]
			is, ok2 := addrToIndex[h.StartPC]
			if !ok0 || !ok1 || !ok2 {
				return fmt.Errorf("handler address does not fall on an instruction boundary")
			}
			fmt.Fprintf(buf, "\t\t%d %d %d", i0, i1, is)
			if h.Finally {
				buf.WriteString(" finally")
			}
			buf.WriteString("\n")
		}
	}

	buf.WriteString("\tcode:\n")
	for _, in := range instrs {
		if !in.Op.HasArg() {
			fmt.Fprintf(buf, "\t\t%s\n", in.Op)
			continue
		}
		arg := int64(in.Arg)
		if jumpTargets(in.Op) {
			idx, ok := addrToIndex[in.Arg]
			if !ok {
				return fmt.Errorf("jump target %d does not fall on an instruction boundary", in.Arg)
			}
			arg = int64(idx)
		}
		fmt.Fprintf(buf, "\t\t%s %d\n", in.Op, arg)
	}
	return nil
}

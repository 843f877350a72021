package hostabi

import (
	"fmt"
	"math/big"
)

// Int is the host's arbitrary-precision integer type, heap-allocated and
// refcounted. Most integers that flow through emitted code never reach this
// type — they stay as tagged.Word — but overflow of the tagged range, and
// any integer literal or external value too large to tag, promotes here.
type Int struct {
	Header
	V big.Int
}

func NewIntFromInt64(i int64) *Int {
	n := &Int{Header: newHeader()}
	n.V.SetInt64(i)
	return n
}

func NewIntFromBig(b *big.Int) *Int {
	n := &Int{Header: newHeader()}
	n.V.Set(b)
	return n
}

func (i *Int) String() string { return i.V.String() }
func (*Int) Type() string     { return "int" }
func (i *Int) Truth() bool    { return i.V.Sign() != 0 }

// Float is the host's double-precision floating point type. Unlike Int,
// Float supports an unboxed representation (a VALUE-tagged stack slot
// holding a native float64 rather than a *Float) whenever the abstract
// interpreter authorizes it — see lattice.Float and stackcompiler's
// float-specialized fast paths.
type Float struct {
	Header
	V float64
}

func NewFloat(f float64) *Float { return &Float{Header: newHeader(), V: f} }

func (f *Float) String() string { return fmt.Sprintf("%g", f.V) }
func (*Float) Type() string     { return "float" }
func (f *Float) Truth() bool    { return f.V != 0 }

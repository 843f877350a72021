// Package refbuilder is the reference ilbuilder.Builder implementation:
// rather than generating machine code, it assembles the emitted program
// into its own small, linear instruction list and runs it with a tiny
// stack-machine interpreter. It exists purely so the rest of this repo has
// something runnable to compile against and test — a real embedding would
// supply its own Builder wired to the host's native-code backend instead,
// and stackcompiler would not need to change at all.
package refbuilder

import (
	"fmt"
	"math"

	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/ilbuilder"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
)

type opKind uint8

const (
	opConst opKind = iota
	opLoadLocal
	opStoreLocal
	opDup
	opPop
	opSwap
	opRotThree
	opCallHelper
	opUpdateLasti
	opLoadGlobal
	opStoreGlobal
	opDeleteGlobal
	opLoadName
	opStoreName
	opDeleteName
	opLoadDeref
	opStoreDeref
	opLoadClassDeref
	opLoadPredeclared
	opLoadUniversal
	opLoadGlobalsDict
	opSpreadSequence
	opForIterBranch
	opBinaryFloat
	opCompareFloat
	opBranch
	opBranchIfFalse
	opBranchIfTrue
	opBranchIfException
	opRaise
	opReturn
)

type instr struct {
	kind     opKind
	constVal hostabi.Value
	localIdx int
	helper   ilbuilder.HelperFunc
	argc     int
	target   int // resolved absolute instruction index
	offset   uint32
	name     string
	tok      optok.Token
	depth    int // handler entry-stack depth for opBranchIfException
}

// unresolved marks a branch target as "points at Label n", patched by Finish.
func unresolved(l ilbuilder.Label) int { return -(int(l) + 1) }

type Builder struct {
	ops       []instr
	labels    map[ilbuilder.Label]int
	nextLabel ilbuilder.Label
	finished  bool
}

func New() *Builder {
	return &Builder{labels: make(map[ilbuilder.Label]int)}
}

func (b *Builder) NewLabel() ilbuilder.Label {
	l := b.nextLabel
	b.nextLabel++
	return l
}

func (b *Builder) MarkLabel(l ilbuilder.Label) { b.labels[l] = len(b.ops) }

func (b *Builder) EmitConst(v hostabi.Value)    { b.ops = append(b.ops, instr{kind: opConst, constVal: v}) }
func (b *Builder) EmitLoadLocal(idx int)        { b.ops = append(b.ops, instr{kind: opLoadLocal, localIdx: idx}) }
func (b *Builder) EmitStoreLocal(idx int)       { b.ops = append(b.ops, instr{kind: opStoreLocal, localIdx: idx}) }
func (b *Builder) EmitDup()                     { b.ops = append(b.ops, instr{kind: opDup}) }
func (b *Builder) EmitPop()                     { b.ops = append(b.ops, instr{kind: opPop}) }
func (b *Builder) EmitSwap()                    { b.ops = append(b.ops, instr{kind: opSwap}) }
func (b *Builder) EmitRotThree()                { b.ops = append(b.ops, instr{kind: opRotThree}) }

func (b *Builder) EmitCallHelper(fn ilbuilder.HelperFunc, argc int) {
	b.ops = append(b.ops, instr{kind: opCallHelper, helper: fn, argc: argc})
}

func (b *Builder) EmitUpdateLastInstruction(offset uint32) {
	b.ops = append(b.ops, instr{kind: opUpdateLasti, offset: offset})
}

func (b *Builder) EmitLoadGlobal(name string)   { b.ops = append(b.ops, instr{kind: opLoadGlobal, name: name}) }
func (b *Builder) EmitStoreGlobal(name string)  { b.ops = append(b.ops, instr{kind: opStoreGlobal, name: name}) }
func (b *Builder) EmitDeleteGlobal(name string) { b.ops = append(b.ops, instr{kind: opDeleteGlobal, name: name}) }
func (b *Builder) EmitLoadName(name string)     { b.ops = append(b.ops, instr{kind: opLoadName, name: name}) }
func (b *Builder) EmitStoreName(name string)    { b.ops = append(b.ops, instr{kind: opStoreName, name: name}) }
func (b *Builder) EmitDeleteName(name string)   { b.ops = append(b.ops, instr{kind: opDeleteName, name: name}) }
func (b *Builder) EmitLoadDeref(idx int)        { b.ops = append(b.ops, instr{kind: opLoadDeref, localIdx: idx}) }
func (b *Builder) EmitStoreDeref(idx int)       { b.ops = append(b.ops, instr{kind: opStoreDeref, localIdx: idx}) }
func (b *Builder) EmitLoadClassDeref(idx int, name string) {
	b.ops = append(b.ops, instr{kind: opLoadClassDeref, localIdx: idx, name: name})
}
func (b *Builder) EmitLoadPredeclared(name string) {
	b.ops = append(b.ops, instr{kind: opLoadPredeclared, name: name})
}
func (b *Builder) EmitLoadUniversal(name string) {
	b.ops = append(b.ops, instr{kind: opLoadUniversal, name: name})
}

func (b *Builder) EmitLoadGlobalsDict() { b.ops = append(b.ops, instr{kind: opLoadGlobalsDict}) }

func (b *Builder) EmitSpreadSequence(n int) {
	b.ops = append(b.ops, instr{kind: opSpreadSequence, argc: n})
}

func (b *Builder) EmitForIterBranch(l ilbuilder.Label) {
	b.ops = append(b.ops, instr{kind: opForIterBranch, target: unresolved(l)})
}

func (b *Builder) EmitBinaryFloat(op optok.Token) {
	b.ops = append(b.ops, instr{kind: opBinaryFloat, tok: op})
}

func (b *Builder) EmitCompareFloat(op optok.Token) {
	b.ops = append(b.ops, instr{kind: opCompareFloat, tok: op})
}

func (b *Builder) EmitBranch(l ilbuilder.Label) {
	b.ops = append(b.ops, instr{kind: opBranch, target: unresolved(l)})
}
func (b *Builder) EmitBranchIfFalse(l ilbuilder.Label) {
	b.ops = append(b.ops, instr{kind: opBranchIfFalse, target: unresolved(l)})
}
func (b *Builder) EmitBranchIfTrue(l ilbuilder.Label) {
	b.ops = append(b.ops, instr{kind: opBranchIfTrue, target: unresolved(l)})
}
func (b *Builder) EmitBranchIfException(l ilbuilder.Label, entryDepth int) {
	b.ops = append(b.ops, instr{kind: opBranchIfException, target: unresolved(l), depth: entryDepth})
}
func (b *Builder) EmitRaise()  { b.ops = append(b.ops, instr{kind: opRaise}) }
func (b *Builder) EmitReturn() { b.ops = append(b.ops, instr{kind: opReturn}) }

func (b *Builder) Finish() (ilbuilder.Method, error) {
	if b.finished {
		return nil, fmt.Errorf("refbuilder: Finish called twice")
	}
	b.finished = true
	for i, in := range b.ops {
		if in.target < 0 {
			l := ilbuilder.Label(-in.target - 1)
			resolved, ok := b.labels[l]
			if !ok {
				return nil, fmt.Errorf("refbuilder: branch to unmarked label %d", l)
			}
			b.ops[i].target = resolved
		}
	}
	return &method{ops: b.ops}, nil
}

// lookupDict backs every dict-based name lookup (globals, locals-map,
// predeclared, universal): on a miss it records a NameError on ts and
// returns NilValue as a placeholder, matching opCallHelper's contract so
// the same EmitBranchIfException guard the compiler emits after a helper
// call also catches a failed name lookup.
func lookupDict(ts *hostabi.ThreadState, d *hostabi.Dict, name string, errClass *hostabi.Class) hostabi.Value {
	v, ok, _ := d.Get(hostabi.NewStr(name))
	if !ok {
		if !ts.ErrorOccurred() {
			ts.SetErrorString(errClass, "name '"+name+"' is not defined")
		}
		return hostabi.NilValue
	}
	// The dict keeps its reference; the stack gets its own.
	hostabi.IncRef(v)
	return v
}

// binaryFloat is the native double operation behind EmitBinaryFloat. The
// stackcompiler only authorizes tokens this function handles; anything else
// indicates a compiler bug, not a user error.
func binaryFloat(tok optok.Token, a, b float64) float64 {
	switch tok {
	case optok.ADD:
		return a + b
	case optok.SUB:
		return a - b
	case optok.MUL:
		return a * b
	case optok.TRUEDIV:
		return a / b
	case optok.FLOORDIV:
		return math.Floor(a / b)
	case optok.MOD:
		return math.Mod(a, b)
	case optok.POW:
		return math.Pow(a, b)
	default:
		panic(fmt.Sprintf("refbuilder: no float lowering for %s", tok))
	}
}

func compareFloat(tok optok.Token, a, b float64) bool {
	switch tok {
	case optok.LT:
		return a < b
	case optok.LE:
		return a <= b
	case optok.GT:
		return a > b
	case optok.GE:
		return a >= b
	case optok.EQL:
		return a == b
	case optok.NEQ:
		return a != b
	default:
		panic(fmt.Sprintf("refbuilder: no float comparison for %s", tok))
	}
}

type method struct{ ops []instr }

func (m *method) Invoke(ts *hostabi.ThreadState, fr *hostabi.Frame) (hostabi.Value, error) {
	var stack []hostabi.Value
	pc := 0
	for pc < len(m.ops) {
		in := m.ops[pc]
		switch in.kind {
		case opConst:
			// Producers push owning references: the constant pool keeps its
			// own reference, the stack gets a fresh one for the helper that
			// will eventually steal it.
			hostabi.IncRef(in.constVal)
			stack = append(stack, in.constVal)
		case opLoadLocal:
			v := fr.GetLocal(in.localIdx)
			if v == nil {
				v = hostabi.NilValue
			}
			hostabi.IncRef(v)
			stack = append(stack, v)
		case opStoreLocal:
			if old := fr.GetLocal(in.localIdx); old != nil {
				hostabi.DecRef(old)
			}
			fr.SetLocal(in.localIdx, stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		case opDup:
			hostabi.IncRef(stack[len(stack)-1])
			stack = append(stack, stack[len(stack)-1])
		case opPop:
			hostabi.DecRef(stack[len(stack)-1])
			stack = stack[:len(stack)-1]
		case opSwap:
			n := len(stack)
			stack[n-1], stack[n-2] = stack[n-2], stack[n-1]
		case opRotThree:
			n := len(stack)
			stack[n-1], stack[n-2], stack[n-3] = stack[n-2], stack[n-3], stack[n-1]
		case opCallHelper:
			args := append([]hostabi.Value(nil), stack[len(stack)-in.argc:]...)
			stack = stack[:len(stack)-in.argc]
			v, err := in.helper(ts, args)
			if err != nil {
				if !ts.ErrorOccurred() {
					ts.SetErrorString(hostabi.ClassTypeError, err.Error())
				}
				stack = append(stack, hostabi.NilValue)
				pc++
				continue
			}
			if v == nil {
				v = hostabi.NilValue
			}
			stack = append(stack, v)
		case opUpdateLasti:
			fr.SetLastInstruction(in.offset)
		case opLoadGlobal:
			stack = append(stack, lookupDict(ts, fr.Globals, in.name, hostabi.ClassNameError))
		case opStoreGlobal:
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if old, ok, _ := fr.Globals.Get(hostabi.NewStr(in.name)); ok {
				hostabi.DecRef(old)
			}
			_ = fr.Globals.SetKey(hostabi.NewStr(in.name), v)
		case opDeleteGlobal:
			if ok, _ := fr.Globals.Delete(hostabi.NewStr(in.name)); !ok {
				ts.SetErrorString(hostabi.ClassNameError, "name '"+in.name+"' is not defined")
			}
		case opLoadName:
			ns := fr.LocalsMap()
			if ns == nil {
				ns = fr.Globals
			}
			stack = append(stack, lookupDict(ts, ns, in.name, hostabi.ClassNameError))
		case opStoreName:
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			ns := fr.LocalsMap()
			if ns == nil {
				ns = fr.Globals
			}
			if old, ok, _ := ns.Get(hostabi.NewStr(in.name)); ok {
				hostabi.DecRef(old)
			}
			_ = ns.SetKey(hostabi.NewStr(in.name), v)
		case opDeleteName:
			ns := fr.LocalsMap()
			if ns == nil {
				ns = fr.Globals
			}
			if ok, _ := ns.Delete(hostabi.NewStr(in.name)); !ok {
				ts.SetErrorString(hostabi.ClassNameError, "name '"+in.name+"' is not defined")
			}
		case opLoadDeref:
			v := fr.Cells()[in.localIdx].Get()
			hostabi.IncRef(v)
			stack = append(stack, v)
		case opStoreDeref:
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cell := fr.Cells()[in.localIdx]
			hostabi.DecRef(cell.Get())
			cell.Set(v)
		case opLoadClassDeref:
			if ns := fr.LocalsMap(); ns != nil {
				if v, ok, _ := ns.Get(hostabi.NewStr(in.name)); ok {
					hostabi.IncRef(v)
					stack = append(stack, v)
					pc++
					continue
				}
			}
			v := fr.Cells()[in.localIdx].Get()
			hostabi.IncRef(v)
			stack = append(stack, v)
		case opLoadPredeclared:
			stack = append(stack, lookupDict(ts, ts.Predeclared, in.name, hostabi.ClassNameError))
		case opLoadUniversal:
			stack = append(stack, lookupDict(ts, ts.Builtins, in.name, hostabi.ClassNameError))
		case opLoadGlobalsDict:
			hostabi.IncRef(fr.Globals)
			stack = append(stack, fr.Globals)
		case opSpreadSequence:
			packed := stack[len(stack)-1].(ilbuilder.SpreadResult)
			stack = stack[:len(stack)-1]
			for i := len(packed) - 1; i >= 0; i-- {
				stack = append(stack, packed[i])
			}
		case opBinaryFloat:
			n := len(stack)
			a := stack[n-2].(*hostabi.Float).V
			b := stack[n-1].(*hostabi.Float).V
			hostabi.DecRef(stack[n-2])
			hostabi.DecRef(stack[n-1])
			stack = stack[:n-2]
			stack = append(stack, hostabi.NewFloat(binaryFloat(in.tok, a, b)))
		case opCompareFloat:
			n := len(stack)
			a := stack[n-2].(*hostabi.Float).V
			b := stack[n-1].(*hostabi.Float).V
			hostabi.DecRef(stack[n-2])
			hostabi.DecRef(stack[n-1])
			stack = stack[:n-2]
			stack = append(stack, hostabi.Bool(compareFloat(in.tok, a, b)))
		case opForIterBranch:
			next := stack[len(stack)-1].(ilbuilder.IterStep)
			stack = stack[:len(stack)-1]
			if !next.Ok {
				pc = in.target
				continue
			}
			stack = append(stack, next.Val)
		case opBranch:
			pc = in.target
			continue
		case opBranchIfFalse:
			cond := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			hostabi.DecRef(cond)
			if !cond.Truth() {
				pc = in.target
				continue
			}
		case opBranchIfTrue:
			cond := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			hostabi.DecRef(cond)
			if cond.Truth() {
				pc = in.target
				continue
			}
		case opBranchIfException:
			// Taking this edge releases only the references the protected
			// region pushed above the handler's recorded entry depth — the
			// run-time face of the compile-time raise-and-free ladder —
			// preserving whatever was live beneath the snapshot (an
			// enclosing loop's iterator, an outer handler's state), then
			// enters the handler with the raised value on top.
			if exc, ok := ts.PeekError(); ok {
				n := in.depth
				if n > len(stack) {
					n = len(stack)
				}
				for _, v := range stack[n:] {
					hostabi.DecRef(v)
				}
				stack = stack[:n]
				hostabi.IncRef(exc.Value)
				stack = append(stack, exc.Value)
				pc = in.target
				continue
			}
		case opRaise:
			if exc, ok := ts.FetchError(); ok {
				ts.RestoreError(exc)
				return nil, fmt.Errorf("%s", exc.Value)
			}
			return nil, fmt.Errorf("raise with no active exception")
		case opReturn:
			return stack[len(stack)-1], nil
		}
		pc++
	}
	return hostabi.NilValue, nil
}

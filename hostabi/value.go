// Package hostabi is the abstract façade over the host VM's object model:
// refcounting, exact-type checks, container and attribute access, call
// dispatch, iteration and thread-state/error plumbing. No
// other package may construct or inspect the concrete value types directly
// — everything goes through the exported functions and interfaces here.
//
// Because the real host VM's object runtime lives outside this repo, this
// package also ships the only implementation of the façade: a small boxed
// value model with real, observable refcounts, so that the rest of the JIT
// (and its tests) have something to run the emitted IL against. A real
// embedding would replace this file's concrete types with calls into the
// host's actual C API; every other package in this repo would be unaffected
// because they only ever see the Value interface and the functions below.
package hostabi

import "fmt"

// Value is implemented by every value the JIT and its helpers manipulate.
type Value interface {
	String() string
	Type() string
	Truth() bool
}

// Header is embedded by every heap-allocated Value to carry its refcount.
// Immutable, unboxed singletons (NilValue, True, False) do not embed it —
// matching the host VM's convention that singletons are never freed.
type Header struct {
	rc int64
}

// newHeader returns a Header with one owned reference: producers push
// owning references.
func newHeader() Header { return Header{rc: 1} }

// RefCounted is implemented by every heap value whose lifetime is tracked.
// Tagged integers and singletons are not RefCounted; DecRef and IncRef treat
// them as no-ops.
type RefCounted interface {
	Value
	refHeader() *Header
}

func (h *Header) refHeader() *Header { return h }

// RefCount returns v's current strong-reference count, or -1 if v is not
// reference-counted (a singleton or a tagged integer). Exists so tests can
// assert reference-count neutrality.
func RefCount(v Value) int64 {
	if rc, ok := v.(RefCounted); ok {
		return rc.refHeader().rc
	}
	return -1
}

// IncRef increments v's strong refcount. A no-op for non-RefCounted values.
func IncRef(v Value) {
	if rc, ok := v.(RefCounted); ok {
		rc.refHeader().rc++
	}
}

// DecRef decrements v's strong refcount. A no-op for non-RefCounted values.
// Runtime helpers call this on every OBJECT-tagged value they consume, per
// their stealing contract. It never actually frees the value —
// Go's GC reclaims it once nothing references it — but the count itself is
// tracked and asserted by tests exactly as if it did.
func DecRef(v Value) {
	if rc, ok := v.(RefCounted); ok {
		h := rc.refHeader()
		if h.rc <= 0 {
			panic(fmt.Sprintf("decref of %s with non-positive refcount %d", v.Type(), h.rc))
		}
		h.rc--
	}
}

// NilValue is the host's singleton "none" value.
type nilType struct{}

func (nilType) String() string { return "none" }
func (nilType) Type() string   { return "none" }
func (nilType) Truth() bool    { return false }

var NilValue Value = nilType{}

// Bool is the host's boolean type. Like None, True and False are process-wide
// singletons, not refcounted.
type Bool bool

const (
	True  Bool = true
	False Bool = false
)

func (b Bool) String() string {
	if b {
		return "True"
	}
	return "False"
}
func (Bool) Type() string  { return "bool" }
func (b Bool) Truth() bool { return bool(b) }

// Str is an exact string value. Strings are immutable and, in the reference
// model, refcounted like any other heap value.
type Str struct {
	Header
	S string
}

func NewStr(s string) *Str   { return &Str{Header: newHeader(), S: s} }
func (s *Str) String() string { return s.S }
func (*Str) Type() string     { return "str" }
func (s *Str) Truth() bool    { return s.S != "" }

// Bytes is an exact bytes value.
type Bytes struct {
	Header
	B []byte
}

func NewBytes(b []byte) *Bytes  { return &Bytes{Header: newHeader(), B: b} }
func (b *Bytes) String() string { return fmt.Sprintf("b%q", b.B) }
func (*Bytes) Type() string     { return "bytes" }
func (b *Bytes) Truth() bool    { return len(b.B) > 0 }

// IsExact reports whether v's concrete type is exactly typeName, the check
// the runtime helper surface uses to decide whether a fast path (string
// concatenation, tagged-int arithmetic) applies.
func IsExact(v Value, typeName string) bool { return v.Type() == typeName }

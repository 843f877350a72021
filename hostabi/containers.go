package hostabi

import (
	"fmt"

	"github.com/dolthub/swiss"
)

// Tuple is an immutable, fixed-size sequence.
type Tuple struct {
	Header
	Elems []Value
}

func NewTuple(elems []Value) *Tuple { return &Tuple{Header: newHeader(), Elems: elems} }

var emptyTuple = NewTuple(nil)

// EmptyTuple is the process-wide empty-tuple singleton used as the
// call-argument sentinel.
// It is allocated once at package init and never reassigned; IncRef/DecRef
// still apply to it normally, matching the host's convention that even the
// empty-tuple singleton is a real, refcounted object.
var EmptyTuple = emptyTuple

func (t *Tuple) String() string { return fmt.Sprintf("tuple(%p)", t) }
func (*Tuple) Type() string     { return "tuple" }
func (t *Tuple) Truth() bool    { return len(t.Elems) > 0 }
func (t *Tuple) Len() int       { return len(t.Elems) }
func (t *Tuple) Index(i int) Value { return t.Elems[i] }

// List is a mutable, growable sequence.
type List struct {
	Header
	Elems []Value
}

func NewList(elems []Value) *List { return &List{Header: newHeader(), Elems: elems} }

func (l *List) String() string     { return fmt.Sprintf("list(%p)", l) }
func (*List) Type() string         { return "list" }
func (l *List) Truth() bool        { return len(l.Elems) > 0 }
func (l *List) Len() int           { return len(l.Elems) }
func (l *List) Index(i int) Value  { return l.Elems[i] }
func (l *List) SetIndex(i int, v Value) error {
	if i < 0 || i >= len(l.Elems) {
		return fmt.Errorf("list index out of range")
	}
	l.Elems[i] = v
	return nil
}
func (l *List) Append(v Value) { l.Elems = append(l.Elems, v) }

// Set is an unordered collection of distinct values, backed by the same
// swiss-table hash map as Dict, keyed by the Go-comparable key hashKey
// derives from the value (the reference model's hashable values are Str,
// Int, TaggedInt, Bool and None).
type Set struct {
	Header
	m *swiss.Map[any, Value]
}

func NewSet() *Set { return &Set{Header: newHeader(), m: swiss.NewMap[any, Value](8)} }

func (s *Set) String() string { return fmt.Sprintf("set(%p)", s) }
func (*Set) Type() string     { return "set" }
func (s *Set) Truth() bool    { return s.m.Count() > 0 }
func (s *Set) Len() int       { return int(s.m.Count()) }

func (s *Set) Add(v Value) error {
	key, err := hashKey(v)
	if err != nil {
		return err
	}
	s.m.Put(key, v)
	return nil
}

func (s *Set) Contains(v Value) (bool, error) {
	key, err := hashKey(v)
	if err != nil {
		return false, err
	}
	_, ok := s.m.Get(key)
	return ok, nil
}

// Dict is the host's mapping type, a swiss-table map of hashable key to
// entry pair.
type Dict struct {
	Header
	m *swiss.Map[any, dictEntry]
}

type dictEntry struct {
	key, val Value
}

func NewDict(sizeHint int) *Dict {
	if sizeHint < 1 {
		sizeHint = 1
	}
	return &Dict{Header: newHeader(), m: swiss.NewMap[any, dictEntry](uint32(sizeHint))}
}

func (d *Dict) String() string { return fmt.Sprintf("dict(%p)", d) }
func (*Dict) Type() string     { return "dict" }
func (d *Dict) Truth() bool    { return d.m.Count() > 0 }
func (d *Dict) Len() int       { return int(d.m.Count()) }

func (d *Dict) Get(k Value) (Value, bool, error) {
	key, err := hashKey(k)
	if err != nil {
		return nil, false, err
	}
	e, ok := d.m.Get(key)
	if !ok {
		return nil, false, nil
	}
	return e.val, true, nil
}

func (d *Dict) SetKey(k, v Value) error {
	key, err := hashKey(k)
	if err != nil {
		return err
	}
	d.m.Put(key, dictEntry{key: k, val: v})
	return nil
}

func (d *Dict) Delete(k Value) (bool, error) {
	key, err := hashKey(k)
	if err != nil {
		return false, err
	}
	if _, ok := d.m.Get(key); !ok {
		return false, nil
	}
	d.m.Delete(key)
	return true, nil
}

// Range calls fn once per entry in iteration order, stopping early if fn
// returns false. Used by runtimehelpers when it must materialize a Dict's
// contents into a plain Go map (e.g. keyword arguments).
func (d *Dict) Range(fn func(k, v Value) bool) {
	d.m.Iter(func(_ any, e dictEntry) bool {
		return !fn(e.key, e.val)
	})
}

// hashKey maps a Value to a Go-comparable key suitable for use with the
// swiss map. Only the exact types the host's dict/set support as keys in
// this reference model are hashable; anything else is a TypeError, matching
// the host VM's behavior for unhashable types.
func hashKey(v Value) (any, error) {
	switch v := v.(type) {
	case *Str:
		return v.S, nil
	case *Int:
		return v.V.String(), nil
	case TaggedInt:
		return v.Box().V.String(), nil
	case Bool:
		return bool(v), nil
	case nilType:
		return nilType{}, nil
	default:
		return nil, fmt.Errorf("unhashable type: %s", v.Type())
	}
}

// Slice represents a[lo:hi:step].
type Slice struct {
	Header
	Lo, Hi, Step Value
}

func NewSlice(lo, hi, step Value) *Slice {
	return &Slice{Header: newHeader(), Lo: lo, Hi: hi, Step: step}
}

func (s *Slice) String() string { return fmt.Sprintf("slice(%p)", s) }
func (*Slice) Type() string     { return "slice" }
func (*Slice) Truth() bool      { return true }

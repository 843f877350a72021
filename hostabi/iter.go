package hostabi

import "fmt"

// Iterator is the host's iteration protocol: Next
// reports exhaustion via its bool return, and Done releases the iterator.
// The runtime helpers that drain an iterator themselves (in
// runtimehelpers/containers.go) call Done; compiled FOR_ITER loops drop the
// iterator on exhaustion, break or exception unwind without calling Done.
type Iterator interface {
	Next() (Value, bool)
	Done()
}

// Iterable is implemented by any Value that GetIter can produce an Iterator
// for.
type Iterable interface {
	Value
	Iterate() Iterator
}

func (t *Tuple) Iterate() Iterator { return &sliceIterator{elems: t.Elems} }
func (l *List) Iterate() Iterator  { return &sliceIterator{elems: l.Elems} }

type sliceIterator struct{ elems []Value }

func (it *sliceIterator) Next() (Value, bool) {
	if len(it.elems) == 0 {
		return nil, false
	}
	v := it.elems[0]
	it.elems = it.elems[1:]
	return v, true
}
func (it *sliceIterator) Done() {}

// GetIter is the get-iterator primitive: it returns an
// error, not a null Iterator, when v is not iterable.
func GetIter(v Value) (Iterator, error) {
	it, ok := v.(Iterable)
	if !ok {
		return nil, fmt.Errorf("%s value is not iterable", v.Type())
	}
	return it.Iterate(), nil
}

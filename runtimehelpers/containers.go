package runtimehelpers

import (
	"fmt"
	"strings"

	"github.com/tachyon-lang/tachyonjit/hostabi"
	"github.com/tachyon-lang/tachyonjit/internal/optok"
)

// BuildTuple/BuildList/BuildSet/BuildMap steal every element reference
// handed to them and return one owned reference to the new container,
// matching BUILD_TUPLE/BUILD_LIST/BUILD_SET/BUILD_MAP's stack effect.
func BuildTuple(elems []hostabi.Value) *hostabi.Tuple { return hostabi.NewTuple(elems) }
func BuildList(elems []hostabi.Value) *hostabi.List   { return hostabi.NewList(elems) }

func BuildSet(elems []hostabi.Value) (*hostabi.Set, error) {
	s := hostabi.NewSet()
	for _, e := range elems {
		if err := s.Add(e); err != nil {
			return nil, err
		}
		hostabi.DecRef(e)
	}
	return s, nil
}

func BuildMap() *hostabi.Dict { return hostabi.NewDict(8) }

// ListAppend/SetAdd/MapAdd/ListExtend/DictUpdate are the comprehension
// helpers: each steals the value(s) it is given.
func ListAppend(l *hostabi.List, v hostabi.Value) { l.Append(v) }

func SetAdd(ts *hostabi.ThreadState, s *hostabi.Set, v hostabi.Value) error {
	defer hostabi.DecRef(v)
	if err := s.Add(v); err != nil {
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return err
	}
	return nil
}

func MapAdd(ts *hostabi.ThreadState, d *hostabi.Dict, k, v hostabi.Value) error {
	defer hostabi.DecRef(k)
	defer hostabi.DecRef(v)
	if err := d.SetKey(k, v); err != nil {
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return err
	}
	return nil
}

func ListExtend(ts *hostabi.ThreadState, l *hostabi.List, v hostabi.Value) error {
	defer hostabi.DecRef(v)
	it, err := hostabi.GetIter(v)
	if err != nil {
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return err
	}
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		hostabi.IncRef(e)
		l.Append(e)
	}
	it.Done()
	return nil
}

func DictUpdate(ts *hostabi.ThreadState, dst, src *hostabi.Dict) error {
	defer hostabi.DecRef(src)
	var rangeErr error
	src.Range(func(k, v hostabi.Value) bool {
		hostabi.IncRef(k)
		hostabi.IncRef(v)
		if err := dst.SetKey(k, v); err != nil {
			rangeErr = err
			return false
		}
		return true
	})
	if rangeErr != nil {
		ts.SetErrorString(hostabi.ClassTypeError, rangeErr.Error())
		return rangeErr
	}
	return nil
}

func ListToTuple(l *hostabi.List) *hostabi.Tuple {
	return hostabi.NewTuple(append([]hostabi.Value(nil), l.Elems...))
}

// UpdateSet folds every element of iterable into dst, the BUILD_SET-with-
// unpacking helper. Steals iterable.
func UpdateSet(ts *hostabi.ThreadState, dst *hostabi.Set, iterable hostabi.Value) error {
	defer hostabi.DecRef(iterable)
	it, err := hostabi.GetIter(iterable)
	if err != nil {
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return err
	}
	defer it.Done()
	for {
		e, ok := it.Next()
		if !ok {
			return nil
		}
		hostabi.IncRef(e)
		if err := SetAdd(ts, dst, e); err != nil {
			return err
		}
	}
}

// Contains implements the "in" membership test: dict and set lookups go
// through their hash, strings test substring containment, and sequences
// fall back to a linear scan with value equality. Steals both references.
func Contains(ts *hostabi.ThreadState, item, container hostabi.Value) (bool, error) {
	defer hostabi.DecRef(container)
	switch c := container.(type) {
	case *hostabi.Dict:
		defer hostabi.DecRef(item)
		_, ok, err := c.Get(item)
		if err != nil {
			ts.SetErrorString(hostabi.ClassTypeError, err.Error())
			return false, err
		}
		return ok, nil
	case *hostabi.Set:
		defer hostabi.DecRef(item)
		ok, err := c.Contains(item)
		if err != nil {
			ts.SetErrorString(hostabi.ClassTypeError, err.Error())
			return false, err
		}
		return ok, nil
	case *hostabi.Str:
		s, ok := item.(*hostabi.Str)
		if !ok {
			err := fmt.Errorf("'in <string>' requires string as left operand, not %s", item.Type())
			ts.SetErrorString(hostabi.ClassTypeError, err.Error())
			hostabi.DecRef(item)
			return false, err
		}
		defer hostabi.DecRef(item)
		return strings.Contains(c.S, s.S), nil
	case *hostabi.Tuple:
		return sequenceContains(ts, item, c.Elems)
	case *hostabi.List:
		return sequenceContains(ts, item, c.Elems)
	default:
		err := fmt.Errorf("argument of type '%s' is not a container", container.Type())
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		hostabi.DecRef(item)
		return false, err
	}
}

func sequenceContains(ts *hostabi.ThreadState, item hostabi.Value, elems []hostabi.Value) (bool, error) {
	defer hostabi.DecRef(item)
	for _, e := range elems {
		hostabi.IncRef(item)
		hostabi.IncRef(e)
		eq, err := Compare(ts, optok.EQL, item, e)
		if err != nil {
			return false, err
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}

// NotContains is Contains negated, the "not in" form.
func NotContains(ts *hostabi.ThreadState, item, container hostabi.Value) (bool, error) {
	ok, err := Contains(ts, item, container)
	return !ok && err == nil, err
}

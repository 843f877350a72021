package runtimehelpers

import "github.com/tachyon-lang/tachyonjit/hostabi"

// Subscr is the BINARY_SUBSCR / LOAD_SUBSCR helper: steals both references,
// returns an owned reference to container[key].
func Subscr(ts *hostabi.ThreadState, container, key hostabi.Value) (hostabi.Value, error) {
	defer hostabi.DecRef(container)
	defer hostabi.DecRef(key)
	v, err := hostabi.GetItem(container, key)
	if err != nil {
		ts.SetErrorString(classifySubscrError(container), err.Error())
		return nil, err
	}
	hostabi.IncRef(v)
	return v, nil
}

func StoreSubscr(ts *hostabi.ThreadState, container, key, val hostabi.Value) error {
	defer hostabi.DecRef(container)
	defer hostabi.DecRef(key)
	defer hostabi.DecRef(val)
	if err := hostabi.SetItem(container, key, val); err != nil {
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return err
	}
	return nil
}

func DeleteSubscr(ts *hostabi.ThreadState, container, key hostabi.Value) error {
	defer hostabi.DecRef(container)
	defer hostabi.DecRef(key)
	if err := hostabi.DelItem(container, key); err != nil {
		ts.SetErrorString(hostabi.ClassKeyError, err.Error())
		return err
	}
	return nil
}

func classifySubscrError(container hostabi.Value) *hostabi.Class {
	switch container.(type) {
	case *hostabi.Dict:
		return hostabi.ClassKeyError
	case *hostabi.Tuple, *hostabi.List, *hostabi.Str:
		return hostabi.ClassIndexError
	default:
		return hostabi.ClassTypeError
	}
}

func LoadAttr(ts *hostabi.ThreadState, obj hostabi.Value, name string) (hostabi.Value, error) {
	defer hostabi.DecRef(obj)
	v, err := hostabi.GetAttr(obj, name)
	if err != nil {
		ts.SetErrorString(hostabi.ClassAttributeError, err.Error())
		return nil, err
	}
	hostabi.IncRef(v)
	return v, nil
}

func StoreAttr(ts *hostabi.ThreadState, obj hostabi.Value, name string, val hostabi.Value) error {
	defer hostabi.DecRef(obj)
	defer hostabi.DecRef(val)
	if err := hostabi.SetAttr(obj, name, val); err != nil {
		ts.SetErrorString(hostabi.ClassAttributeError, err.Error())
		return err
	}
	return nil
}

func DeleteAttr(ts *hostabi.ThreadState, obj hostabi.Value, name string) error {
	defer hostabi.DecRef(obj)
	if err := hostabi.DelAttr(obj, name); err != nil {
		ts.SetErrorString(hostabi.ClassAttributeError, err.Error())
		return err
	}
	return nil
}

// BuildSlice steals lo, hi and step (any of which may be hostabi.NilValue
// to represent an omitted slice bound) and returns an owned *hostabi.Slice.
func BuildSlice(lo, hi, step hostabi.Value) *hostabi.Slice {
	return hostabi.NewSlice(lo, hi, step)
}

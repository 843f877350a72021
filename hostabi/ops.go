package hostabi

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/tagged"
)

// Sized is implemented by values that support len().
type Sized interface {
	Value
	Len() int
}

func Len(v Value) (int, error) {
	s, ok := v.(Sized)
	if !ok {
		return 0, fmt.Errorf("object of type '%s' has no len()", v.Type())
	}
	return s.Len(), nil
}

// GetItem implements the BINARY_SUBSCR generic path: container[key]. Exact
// fast paths for tuple/list/str indexing with a tagged int live in
// runtimehelpers; this is the fallback that indexes Tuple, List and Str by
// integer (negative indices wrap around) and Dict by key. Slice keys and
// other container types are rejected with an error.
func GetItem(container, key Value) (Value, error) {
	switch c := container.(type) {
	case *Tuple:
		i, err := indexOf(key, len(c.Elems))
		if err != nil {
			return nil, err
		}
		return c.Elems[i], nil
	case *List:
		i, err := indexOf(key, len(c.Elems))
		if err != nil {
			return nil, err
		}
		return c.Elems[i], nil
	case *Str:
		i, err := indexOf(key, len(c.S))
		if err != nil {
			return nil, err
		}
		return NewStr(string(c.S[i])), nil
	case *Dict:
		v, ok, err := c.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("KeyError: %s", key)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("'%s' object is not subscriptable", container.Type())
	}
}

func SetItem(container, key, val Value) error {
	switch c := container.(type) {
	case *List:
		i, err := indexOf(key, len(c.Elems))
		if err != nil {
			return err
		}
		return c.SetIndex(i, val)
	case *Dict:
		return c.SetKey(key, val)
	default:
		return fmt.Errorf("'%s' object does not support item assignment", container.Type())
	}
}

func DelItem(container, key Value) error {
	switch c := container.(type) {
	case *Dict:
		ok, err := c.Delete(key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("KeyError: %s", key)
		}
		return nil
	default:
		return fmt.Errorf("'%s' object does not support item deletion", container.Type())
	}
}

// indexOf resolves key (an *Int or a tagged-friendly value already unboxed by
// the caller) into a 0-based Go slice index, applying Python-style negative
// wraparound and bounds checking.
func indexOf(key Value, n int) (int, error) {
	w, ok := UnboxInt(key)
	if !ok {
		if _, isInt := key.(*Int); isInt {
			return 0, fmt.Errorf("index too large for sequence of length %d", n)
		}
		return 0, fmt.Errorf("indices must be integers, not %s", key.Type())
	}
	i := int(tagged.Untag(w))
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index out of range")
	}
	return i, nil
}

// Attributes is implemented by values with a mutable, dict-backed namespace:
// instances and classes. GetAttr handles instances specially, falling back to
// the class dict; values without a namespace have no attributes.
type Attributes interface {
	Value
	AttrDict() *Dict
}

func (i *Instance) AttrDict() *Dict { return i.Dict }
func (c *Class) AttrDict() *Dict    { return c.Dict }

func GetAttr(v Value, name string) (Value, error) {
	if inst, ok := v.(*Instance); ok {
		if val, ok, err := inst.Dict.Get(NewStr(name)); err == nil && ok {
			return val, nil
		}
		if val, ok, _ := inst.Class.Dict.Get(NewStr(name)); ok {
			return val, nil
		}
		return nil, fmt.Errorf("'%s' object has no attribute '%s'", v.Type(), name)
	}
	if av, ok := v.(Attributes); ok {
		val, ok, err := av.AttrDict().Get(NewStr(name))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("'%s' object has no attribute '%s'", v.Type(), name)
		}
		return val, nil
	}
	return nil, fmt.Errorf("'%s' object has no attribute '%s'", v.Type(), name)
}

func SetAttr(v Value, name string, val Value) error {
	av, ok := v.(Attributes)
	if !ok {
		return fmt.Errorf("'%s' object has no attributes", v.Type())
	}
	return av.AttrDict().SetKey(NewStr(name), val)
}

func DelAttr(v Value, name string) error {
	av, ok := v.(Attributes)
	if !ok {
		return fmt.Errorf("'%s' object has no attributes", v.Type())
	}
	deleted, err := av.AttrDict().Delete(NewStr(name))
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("'%s' object has no attribute '%s'", v.Type(), name)
	}
	return nil
}

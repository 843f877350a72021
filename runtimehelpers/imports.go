package runtimehelpers

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/hostabi"
)

// ImportName implements IMPORT_NAME: steals the fromlist tuple, asks the
// embedding's module loader (threaded through ThreadState.Predeclared as a
// dict of already-resolved modules, the only import mechanism this host
// model supports — a real embedding would call out to its actual import
// system here) and returns an owned reference to the module object.
func ImportName(ts *hostabi.ThreadState, name string, fromlist *hostabi.Tuple) (hostabi.Value, error) {
	defer hostabi.DecRef(fromlist)
	mod, ok, err := ts.Predeclared.Get(hostabi.NewStr(name))
	if err != nil {
		return nil, err
	}
	if !ok {
		err := fmt.Errorf("no module named '%s'", name)
		ts.SetErrorString(hostabi.ClassNameError, err.Error())
		return nil, err
	}
	hostabi.IncRef(mod)
	return mod, nil
}

func ImportFrom(ts *hostabi.ThreadState, mod hostabi.Value, name string) (hostabi.Value, error) {
	return LoadAttr(ts, mod, name)
}

// ImportStar implements IMPORT_STAR: steals mod, copies every exported
// (non-underscore-prefixed) binding from it into dst.
func ImportStar(ts *hostabi.ThreadState, mod hostabi.Value, dst *hostabi.Dict) error {
	defer hostabi.DecRef(mod)
	attrs, ok := mod.(hostabi.Attributes)
	if !ok {
		err := fmt.Errorf("cannot import * from non-module value of type '%s'", mod.Type())
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return err
	}
	var rangeErr error
	attrs.AttrDict().Range(func(k, v hostabi.Value) bool {
		name, ok := k.(*hostabi.Str)
		if !ok || len(name.S) > 0 && name.S[0] == '_' {
			return true
		}
		hostabi.IncRef(v)
		if err := dst.SetKey(name, v); err != nil {
			rangeErr = err
			return false
		}
		return true
	})
	return rangeErr
}

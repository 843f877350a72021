package hostabi

// ExcInfo is the host's "current exception" triple: type, value, and the
// traceback object that exception propagation threads through FINALLY
// blocks. The reference model collapses the host's
// separate exception-type object into the exception value's own Class.
type ExcInfo struct {
	Type  *Class
	Value Value
	Traceback Value
}

func (e *ExcInfo) isSet() bool { return e != nil && e.Value != nil }

// ThreadState is the per-execution-thread context the runtime helper surface
// reads and writes: the current exception, and the namespace maps
// reachable without a frame. A single-threaded
// reference implementation; a real embedding would thread the host's actual
// per-thread struct through here instead.
type ThreadState struct {
	curExc *ExcInfo

	Predeclared *Dict
	Builtins    *Dict

	// EvalHook is the interpreter-state function pointer the JIT embedding
	// installs: it runs a Function's code object when the Function carries
	// no Invoke hook of its own — the case for functions minted by
	// MAKE_FUNCTION inside already-compiled code.
	EvalHook func(ts *ThreadState, fn *Function, args []Value, kwargs map[string]Value) (Value, error)
}

func NewThreadState() *ThreadState {
	return &ThreadState{Predeclared: NewDict(8), Builtins: NewDict(8)}
}

// SetError installs exc as the thread's current exception. It does not
// raise in the Go sense, it just records state
// for the next FetchError/RestoreError or exception-dispatch check.
func (ts *ThreadState) SetError(class *Class, value Value, tb Value) {
	ts.curExc = &ExcInfo{Type: class, Value: value, Traceback: tb}
}

// SetErrorString records a runtime-detected fault (e.g. a TypeError raised
// by a helper) as the current exception, boxing msg as the exception value.
func (ts *ThreadState) SetErrorString(class *Class, msg string) {
	ts.curExc = &ExcInfo{Type: class, Value: NewStr(msg)}
}

// FetchError clears and returns the current exception triple;
// ok is false if no exception is set.
func (ts *ThreadState) FetchError() (exc *ExcInfo, ok bool) {
	if !ts.curExc.isSet() {
		return nil, false
	}
	exc, ts.curExc = ts.curExc, nil
	return exc, true
}

// PeekError reports the current exception triple without clearing it, used
// by a handler's entry edge to recover the raised value onto the operand
// stack while leaving curExc set for FetchError/RestoreError to resolve
// later (END_FINALLY's reraise decision, or a further RAISE_VARARGS).
func (ts *ThreadState) PeekError() (exc *ExcInfo, ok bool) {
	if !ts.curExc.isSet() {
		return nil, false
	}
	return ts.curExc, true
}

// RestoreError reinstalls a previously fetched exception triple, used when
// unwinding through a FINALLY block that must re-raise after running its
// cleanup code.
func (ts *ThreadState) RestoreError(exc *ExcInfo) { ts.curExc = exc }

// ErrorOccurred reports whether an exception is currently set, the check
// every runtime helper's caller performs after a call that may fail without
// itself returning a Go error.
func (ts *ThreadState) ErrorOccurred() bool { return ts.curExc.isSet() }

// ClearError discards the current exception without returning it;
// used by except clauses that swallow the exception entirely.
func (ts *ThreadState) ClearError() { ts.curExc = nil }

var (
	ClassTypeError      = NewClass("TypeError", nil)
	ClassValueError     = NewClass("ValueError", nil)
	ClassKeyError       = NewClass("KeyError", nil)
	ClassIndexError     = NewClass("IndexError", nil)
	ClassAttributeError = NewClass("AttributeError", nil)
	ClassNameError      = NewClass("NameError", nil)
	ClassZeroDivisionError = NewClass("ZeroDivisionError", nil)
	ClassStopIteration  = NewClass("StopIteration", nil)
	ClassOverflowError  = NewClass("OverflowError", nil)
)

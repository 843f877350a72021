package runtimehelpers

import (
	"fmt"

	"github.com/tachyon-lang/tachyonjit/hostabi"
)

// Raise implements RAISE_VARARGS: nargs is 0 (re-raise the current
// exception), 1 (raise a new exception with no explicit cause) or 2 (raise
// with an explicit `from` cause; the cause is released and not recorded).
// args holds exactly nargs owned references in source order, consumed
// regardless of outcome.
func Raise(ts *hostabi.ThreadState, args []hostabi.Value) error {
	for _, a := range args {
		defer hostabi.DecRef(a)
	}
	switch len(args) {
	case 0:
		exc, ok := ts.FetchError()
		if !ok {
			err := fmt.Errorf("no active exception to re-raise")
			ts.SetErrorString(hostabi.ClassValueError, err.Error())
			return err
		}
		ts.RestoreError(exc)
		return fmt.Errorf("%s", exc.Value)
	case 1, 2:
		cls, val, err := classifyRaised(args[0])
		if err != nil {
			ts.SetErrorString(hostabi.ClassTypeError, err.Error())
			return err
		}
		ts.SetError(cls, val, nil)
		return fmt.Errorf("%s", val)
	default:
		panic("internal error: RAISE_VARARGS with more than 2 arguments")
	}
}

func classifyRaised(v hostabi.Value) (*hostabi.Class, hostabi.Value, error) {
	switch ex := v.(type) {
	case *hostabi.Instance:
		return ex.Class, ex, nil
	case *hostabi.Class:
		return ex, hostabi.NewInstance(ex), nil
	case *hostabi.Str:
		return hostabi.ClassValueError, ex, nil
	default:
		return nil, nil, fmt.Errorf("exceptions must derive from an exception class")
	}
}

// CompareExceptions implements COMPARE_EXCEPTIONS: the except-clause type
// check, testing whether exc's class matches (or derives from) matchCls.
func CompareExceptions(ts *hostabi.ThreadState, exc hostabi.Value, matchCls *hostabi.Class) (bool, error) {
	defer hostabi.DecRef(exc)
	defer hostabi.DecRef(matchCls)
	inst, ok := exc.(*hostabi.Instance)
	if !ok {
		return false, nil
	}
	return classDerivesFrom(inst.Class, matchCls), nil
}

func classDerivesFrom(c, target *hostabi.Class) bool {
	if c == target {
		return true
	}
	for _, base := range c.Bases {
		if classDerivesFrom(base, target) {
			return true
		}
	}
	return false
}

// PrepareException is the landing-pad entry helper: it moves the thread's
// current exception triple out of the thread state and into the handler's
// saved-exception slots (the returned ExcInfo), filling in a missing Type
// from the class of an instance Value on the way. Calling it with no pending
// exception is a compiler bug — landing pads are only ever branched to
// after a failure check.
func PrepareException(ts *hostabi.ThreadState) *hostabi.ExcInfo {
	exc, ok := ts.FetchError()
	if !ok {
		panic("internal error: PrepareException with no pending exception")
	}
	if exc.Type == nil {
		if inst, ok := exc.Value.(*hostabi.Instance); ok {
			exc.Type = inst.Class
		}
	}
	return exc
}

// UnwindEh restores a previously saved exception triple on normal exit from
// a finally block, so an exception suspended across the finally body
// resumes propagating exactly where it left off.
func UnwindEh(ts *hostabi.ThreadState, saved *hostabi.ExcInfo) {
	if saved != nil {
		ts.RestoreError(saved)
	}
}

// ErrRestore reinstalls a fetched triple verbatim, the raw restore
// primitive used by the re-raise region emitted after each finally handler.
func ErrRestore(ts *hostabi.ThreadState, saved *hostabi.ExcInfo) {
	ts.RestoreError(saved)
}

// EndFinally implements END_FINALLY's "was a real exception active" check,
// the decision point that determines whether the FINALLY block falls
// through normally or must re-propagate the pending exception.
func EndFinally(ts *hostabi.ThreadState) (pending *hostabi.ExcInfo, shouldReraise bool) {
	exc, ok := ts.FetchError()
	return exc, ok
}

package runtimehelpers

import (
	"fmt"
	"io"
	"os"

	"github.com/tachyon-lang/tachyonjit/hostabi"
)

// PrintExprWriter is where PRINT_EXPR output goes; tests redirect it.
var PrintExprWriter io.Writer = os.Stdout

// PrintExpr implements PRINT_EXPR, the interactive top-level's "echo the
// expression statement's value" opcode. Steals v.
func PrintExpr(v hostabi.Value) {
	defer hostabi.DecRef(v)
	if v == hostabi.NilValue {
		return
	}
	fmt.Fprintln(PrintExprWriter, v.String())
}

// CheckFunctionResult asserts the helper-surface invariant every call
// boundary relies on: a nil result must come with a recorded exception, and
// a non-nil result must not. A violation is a broken callee, surfaced as a
// SystemError-style TypeError rather than silently propagated.
func CheckFunctionResult(ts *hostabi.ThreadState, v hostabi.Value) (hostabi.Value, error) {
	if v == nil && !ts.ErrorOccurred() {
		err := fmt.Errorf("callable returned nil without setting an error")
		ts.SetErrorString(hostabi.ClassTypeError, err.Error())
		return nil, err
	}
	if v != nil && ts.ErrorOccurred() {
		hostabi.DecRef(v)
		return nil, fmt.Errorf("callable returned a result with an error set")
	}
	return v, nil
}

// UnboundLocal records the precise "referenced before assignment" failure
// for a fast local the analysis could not prove assigned on every path.
func UnboundLocal(ts *hostabi.ThreadState, name string) error {
	err := fmt.Errorf("local variable '%s' referenced before assignment", name)
	ts.SetErrorString(hostabi.ClassNameError, err.Error())
	return err
}

package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes execution failures.
type ErrorCode string

const (
	// CodeTrap: a segment aborted; its provisional mutations were discarded.
	CodeTrap ErrorCode = "TRAP"
	// CodeDeadlineExpired: a bounded wait ran out before the reply arrived.
	// Says nothing about the callee, which may still complete.
	CodeDeadlineExpired ErrorCode = "DEADLINE_EXPIRED"
	// CodeAnonymousRejected: the method refuses unsigned callers.
	CodeAnonymousRejected ErrorCode = "ANONYMOUS_REJECTED"
	// CodeUnknownCanister: the call targets a canister that is not installed.
	CodeUnknownCanister ErrorCode = "UNKNOWN_CANISTER"
	// CodeUnknownMethod: the target canister has no such method.
	CodeUnknownMethod ErrorCode = "UNKNOWN_METHOD"
	// CodeDepthExceeded: the sub-call chain exceeded the depth budget.
	CodeDepthExceeded ErrorCode = "DEPTH_EXCEEDED"
	// CodeStepsExceeded: the call tree exceeded the step budget.
	CodeStepsExceeded ErrorCode = "STEPS_EXCEEDED"
)

// ExecError is a structured execution failure. It is what a caller's
// result variable and the journal see for non-replied outcomes: explicit
// signaling, because an abort cannot undo already-committed segments.
type ExecError struct {
	Code     ErrorCode
	Message  string
	CallID   string
	Canister string
	Method   string
}

func (e *ExecError) Error() string {
	if e.Canister != "" && e.Method != "" {
		return fmt.Sprintf("%s: %s (%s.%s)", e.Code, e.Message, e.Canister, e.Method)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// trapf builds a trap for the given call.
func trapf(c *callState, format string, args ...any) *ExecError {
	return &ExecError{
		Code:     CodeTrap,
		Message:  fmt.Sprintf(format, args...),
		CallID:   c.id,
		Canister: c.canister,
		Method:   c.method.Name,
	}
}

// IsTrap reports whether err is a trap, unwrapping as needed.
func IsTrap(err error) bool {
	var ee *ExecError
	return errors.As(err, &ee) && ee.Code == CodeTrap
}

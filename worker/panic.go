package worker

import (
	"fmt"
	"runtime/debug"
)

// PanicError is returned by Run if the worker recovered from a panic.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}

// recoverPanic converts a panic into a PanicError stored in err. It must be
// called directly by a deferred statement.
func recoverPanic(err *error) {
	e := recover()
	if e == nil {
		return
	}
	*err = &PanicError{Value: e, Stack: debug.Stack()}
}

package isolation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoActiveScope is returned when an operation needs a current scope but the stack is empty.
	ErrNoActiveScope = errors.New("no isolation scope is active")

	// ErrNilCleanupAction is returned by AddCleanupAction for a nil action.
	ErrNilCleanupAction = errors.New("cleanup action must not be nil")

	// ErrEmptyScopeName is returned by BeginScope and New for an empty scope name.
	ErrEmptyScopeName = errors.New("scope name must not be empty")
)

// Failures is the outcome of unwinding a scope: zero, one, or many errors, in the order
// they occurred. Callers decide how to surface it; Err gives the usual convention.
type Failures []error

// Len returns the number of failures.
func (f Failures) Len() int { return len(f) }

// Err returns nil if there were no failures, the failure itself if there was exactly one,
// or an *AggregateError if there were several.
func (f Failures) Err() error {
	switch len(f) {
	case 0:
		return nil
	case 1:
		return f[0]
	default:
		return &AggregateError{Errors: append([]error(nil), f...)}
	}
}

// WithCause returns an *AggregateError whose first constituent is cause, followed by the
// failures. It is always an aggregate, even when f is empty.
func (f Failures) WithCause(cause error) *AggregateError {
	errs := make([]error, 0, len(f)+1)
	errs = append(errs, cause)
	errs = append(errs, f...)
	return &AggregateError{Errors: errs}
}

// AggregateError bundles several failures into one error without hiding any of them.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d failures occurred:", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %s", i+1, indentContinuationLines(err.Error(), "      "))
	}
	return sb.String()
}

// Unwrap allows errors.Is and errors.As to match any constituent.
func (e *AggregateError) Unwrap() []error { return e.Errors }

func indentContinuationLines(s, indent string) string {
	return strings.ReplaceAll(s, "\n", "\n"+indent)
}

// InvalidStateError is returned when an operation is not permitted in the manager's
// current state, such as registering a cleanup action from within a cleanup action.
type InvalidStateError struct {
	Operation string
	State     State
}

func (e *InvalidStateError) Error() string {
	if e.Operation == OpAddCleanupAction && e.State == Cleaning {
		return "adding cleanup actions from within cleanup is not supported"
	}
	return fmt.Sprintf("%s is not allowed while the scope manager is %s", e.Operation, e.State)
}

// PanicError is reported in place of a cleanup action or initializer that panicked.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

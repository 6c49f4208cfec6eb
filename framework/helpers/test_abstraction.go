package helpers

import (
	"errors"
	"fmt"
	"strings"
)

// TestContext is a minimal interface for types like *testing.T and *ldtest.T representing a
// test that can fail. Functions can use this to avoid specific dependencies on those packages.
type TestContext interface {
	Errorf(msgFormat string, msgArgs ...interface{})
	FailNow()
	Helper()
}

// TestRecorder is a TestContext that only records what happens to it. It is used for
// testing helpers that report failures.
type TestRecorder struct {
	Errors     []string
	Terminated bool

	// PanicOnTerminate makes FailNow panic with the recorder itself, so that the caller
	// stops executing as it would with a real test.
	PanicOnTerminate bool
}

func (r *TestRecorder) Errorf(msgFormat string, msgArgs ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(msgFormat, msgArgs...))
}

func (r *TestRecorder) FailNow() {
	r.Terminated = true
	if r.PanicOnTerminate {
		panic(r)
	}
}

func (r *TestRecorder) Helper() {}

// Err returns all recorded failure messages as one error, or nil if there were none.
func (r *TestRecorder) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return errors.New(strings.Join(r.Errors, ", "))
}

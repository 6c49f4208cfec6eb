package ldtest

import (
	"fmt"
	"strings"
)

// Results is the outcome of a whole test run.
type Results struct {
	Tests               []TestResult
	Failures            []TestResult
	NonCriticalFailures []TestResult
}

// TestResult is the outcome of one test scope.
type TestResult struct {
	TestID      TestID
	Errors      []error
	NonCritical bool
	Explanation string
}

// OK returns true if no test failed, not counting non-critical failures.
func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Failed returns true if the test reported any errors.
func (r TestResult) Failed() bool {
	return len(r.Errors) != 0
}

// TestID is the path of names identifying a test, starting from its top-level ancestor.
type TestID []string

func (t TestID) String() string {
	return strings.Join(t, "/")
}

// Plus returns a new TestID with name appended; t is not modified.
func (t TestID) Plus(name string) TestID {
	return append(append(TestID(nil), t...), name)
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}

func (f TestFailure) Unwrap() error {
	return f.Err
}

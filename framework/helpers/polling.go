package helpers

import (
	"time"
)

// PollForValue calls testFn at intervals until it reports ok, or until the timeout elapses.
// The first call happens after one interval. It returns the last value and whether it was
// accepted.
func PollForValue[V any](
	testFn func() (V, bool),
	timeout time.Duration,
	interval time.Duration,
) (V, bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	var last V
	for {
		select {
		case <-deadline.C:
			return last, false
		case <-ticker.C:
			value, ok := testFn()
			last = value
			if ok {
				return value, true
			}
		}
	}
}

// PollForSpecificResultValue calls testFn repeatedly at intervals until the expected value
// is seen or the timeout elapses. It returns true if the value was seen.
func PollForSpecificResultValue[V comparable](
	testFn func() V,
	timeout time.Duration,
	interval time.Duration,
	expectedValue V,
) bool {
	_, ok := PollForValue(func() (V, bool) {
		v := testFn()
		return v, v == expectedValue
	}, timeout, interval)
	return ok
}

// AssertEventually is like assert.Eventually from testify, except that it calls testFn on the
// calling goroutine, so that testFn may itself report failures or register cleanups. If
// testFn has not returned true by the time the timeout elapses, the test fails.
func AssertEventually(
	t TestContext,
	testFn func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) bool {
	t.Helper()
	if PollForSpecificResultValue(testFn, timeout, interval, true) {
		return true
	}
	t.Errorf(failureMsgFormat, failureMsgArgs...)
	return false
}

// RequireEventually is the same as AssertEventually, but the test terminates on failure.
func RequireEventually(
	t TestContext,
	testFn func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) {
	t.Helper()
	if !AssertEventually(t, testFn, timeout, interval, failureMsgFormat, failureMsgArgs...) {
		t.FailNow()
	}
}

// AssertNever is like assert.Never from testify, without the extra goroutine. The test fails
// if testFn returns true at any point before the timeout elapses.
func AssertNever(
	t TestContext,
	testFn func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) bool {
	t.Helper()
	if PollForSpecificResultValue(testFn, timeout, interval, true) {
		t.Errorf(failureMsgFormat, failureMsgArgs...)
		return false
	}
	return true
}

// RequireNever is the same as AssertNever, but the test terminates on failure.
func RequireNever(
	t TestContext,
	testFn func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) {
	t.Helper()
	if !AssertNever(t, testFn, timeout, interval, failureMsgFormat, failureMsgArgs...) {
		t.FailNow()
	}
}

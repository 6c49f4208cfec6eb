package helpers

import (
	"time"
)

// NonBlockingSend is a shortcut for using select to do a non-blocking send. It returns
// true on success or false if the channel was full.
func NonBlockingSend[V any](ch chan<- V, value V) bool {
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}

// TryReceive waits up to timeout for a value from ch. The boolean result is false if it
// timed out or if the channel was closed.
func TryReceive[V any](ch <-chan V, timeout time.Duration) (V, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case value, ok := <-ch:
		return value, ok
	case <-deadline.C:
		var empty V
		return empty, false
	}
}

// RequireValue tries to receive a value and returns it if successful, or causes the test
// to fail and terminate immediately if it timed out.
func RequireValue[V any](t TestContext, ch <-chan V, timeout time.Duration) V {
	t.Helper()
	var empty V
	return RequireValueWithMessage(t, ch, timeout, "timed out waiting for value of type %T", empty)
}

// RequireValueWithMessage is the same as RequireValue, but allows customization of the failure message.
func RequireValueWithMessage[V any](
	t TestContext,
	ch <-chan V,
	timeout time.Duration,
	msgFormat string,
	msgArgs ...interface{},
) V {
	t.Helper()
	value, ok := TryReceive(ch, timeout)
	if !ok {
		t.Errorf(msgFormat, msgArgs...)
		t.FailNow()
	}
	return value
}

// RequireNoMoreValues fails the test and terminates it if a value arrives on ch within
// the timeout.
func RequireNoMoreValues[V any](t TestContext, ch <-chan V, timeout time.Duration) {
	t.Helper()
	var empty V
	RequireNoMoreValuesWithMessage(t, ch, timeout, "received unexpected extra value of type %T", empty)
}

// RequireNoMoreValuesWithMessage is the same as RequireNoMoreValues, but allows customization
// of the failure message.
func RequireNoMoreValuesWithMessage[V any](
	t TestContext,
	ch <-chan V,
	timeout time.Duration,
	msgFormat string,
	msgArgs ...interface{},
) {
	t.Helper()
	if _, ok := TryReceive(ch, timeout); ok {
		t.Errorf(msgFormat, msgArgs...)
		t.FailNow()
	}
}

// DrainValues returns every value that is immediately available on ch, without waiting.
func DrainValues[V any](ch <-chan V) []V {
	var ret []V
	for {
		select {
		case value, ok := <-ch:
			if !ok {
				return ret
			}
			ret = append(ret, value)
		default:
			return ret
		}
	}
}

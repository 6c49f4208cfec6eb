package ldtest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeharness/scopeharness/framework"
	"github.com/scopeharness/scopeharness/framework/isolation"
)

func errorMessages(errs []error) []string {
	ret := make([]string, 0, len(errs))
	for _, e := range errs {
		ret = append(ret, e.Error())
	}
	return ret
}

func TestDeferRunsInReverseOrderAtEndOfScope(t *testing.T) {
	var calls []string
	_ = Run(TestConfiguration{}, func(ldt *T) {
		ldt.Defer(func() { calls = append(calls, "root") })
		ldt.Run("class", func(ldt1 *T) {
			ldt1.Defer(func() { calls = append(calls, "class 1") })
			ldt1.Defer(func() { calls = append(calls, "class 2") })
			ldt1.Run("test", func(ldt2 *T) {
				ldt2.Defer(func() { calls = append(calls, "test") })
			})
			assert.Equal(t, []string{"test"}, calls)
		})
		assert.Equal(t, []string{"test", "class 2", "class 1"}, calls)
	})
	assert.Equal(t, []string{"test", "class 2", "class 1", "root"}, calls)
}

func TestDeferRunsAfterFailNowAndSkip(t *testing.T) {
	var calls []string
	result := Run(TestConfiguration{}, func(ldt *T) {
		ldt.Run("fails", func(ldt1 *T) {
			ldt1.Defer(func() { calls = append(calls, "fails") })
			ldt1.FailNow()
		})
		ldt.Run("skips", func(ldt1 *T) {
			ldt1.Defer(func() { calls = append(calls, "skips") })
			ldt1.Skip()
		})
	})
	assert.Equal(t, []string{"fails", "skips"}, calls)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, TestID{"fails"}, result.Failures[0].TestID)
	assert.Equal(t, []string{"test failed with no failure message"}, errorMessages(result.Failures[0].Errors))
}

func TestFailingCleanupFailsTheTest(t *testing.T) {
	result := Run(TestConfiguration{}, func(ldt *T) {
		ldt.Run("one failure", func(ldt1 *T) {
			ldt1.DeferErr(func() error { return errors.New("leaked fixture") })
		})
		ldt.Run("two failures", func(ldt1 *T) {
			ldt1.DeferErr(func() error { return errors.New("first registered") })
			ldt1.Defer(func() { panic("second registered") })
		})
		ldt.Run("fine", func(ldt1 *T) {
			ldt1.DeferErr(func() error { return nil })
		})
	})

	require.Len(t, result.Failures, 2)
	assert.Equal(t, TestID{"one failure"}, result.Failures[0].TestID)
	assert.Equal(t, []string{"cleanup failed: leaked fixture"}, errorMessages(result.Failures[0].Errors))

	assert.Equal(t, TestID{"two failures"}, result.Failures[1].TestID)
	errs := result.Failures[1].Errors
	require.Len(t, errs, 2)
	var pe *isolation.PanicError
	assert.ErrorAs(t, errs[0], &pe)
	assert.Equal(t, "cleanup failed: first registered", errs[1].Error())
}

func TestCleanupCanReportFailuresThroughTheTest(t *testing.T) {
	result := Run(TestConfiguration{}, func(ldt *T) {
		ldt.Run("test", func(ldt1 *T) {
			ldt1.Defer(func() {
				ldt1.Errorf("fixture was left %s", "dirty")
				ldt1.FailNow()
			})
		})
	})
	require.Len(t, result.Failures, 1)
	assert.Equal(t, []string{"fixture was left dirty"}, errorMessages(result.Failures[0].Errors))
}

func TestDeferFromWithinCleanupIsRejected(t *testing.T) {
	innerCalled := false
	result := Run(TestConfiguration{}, func(ldt *T) {
		ldt.Run("test", func(ldt1 *T) {
			ldt1.Defer(func() {
				ldt1.Defer(func() { innerCalled = true })
			})
		})
	})
	assert.False(t, innerCalled)
	require.Len(t, result.Failures, 1)
	errs := result.Failures[0].Errors
	require.Len(t, errs, 1)
	var ise *isolation.InvalidStateError
	assert.ErrorAs(t, errs[0], &ise)
}

func TestRunFromWithinCleanupIsRejected(t *testing.T) {
	ran := false
	result := Run(TestConfiguration{}, func(ldt *T) {
		ldt.Run("test", func(ldt1 *T) {
			ldt1.Defer(func() {
				ldt1.Run("too late", func(*T) { ran = true })
			})
		})
	})
	assert.False(t, ran)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, TestID{"test", "too late"}, result.Failures[0].TestID)
	assert.Contains(t, result.Failures[0].Errors[0].Error(), "cannot start subtest")
}

func TestRunWithSetup(t *testing.T) {
	t.Run("setup success", func(t *testing.T) {
		var calls []string
		result := Run(TestConfiguration{}, func(ldt *T) {
			ldt.RunWithSetup("class", func(setup *T) {
				setup.Defer(func() { calls = append(calls, "setup fixture") })
			}, func(ldt1 *T) {
				ldt1.Defer(func() { calls = append(calls, "body fixture") })
				calls = append(calls, "body")
			})
		})
		assert.True(t, result.OK())
		assert.Equal(t, []string{"body", "body fixture", "setup fixture"}, calls)
	})

	t.Run("setup failure unwinds immediately", func(t *testing.T) {
		var calls []string
		result := Run(TestConfiguration{}, func(ldt *T) {
			ldt.Defer(func() { calls = append(calls, "root fixture") })
			ldt.RunWithSetup("class", func(setup *T) {
				setup.Defer(func() { calls = append(calls, "fixture X") })
				setup.DeferErr(func() error { return errors.New("fixture Y would not close") })
				setup.Errorf("could not connect")
				setup.FailNow()
			}, func(ldt1 *T) {
				calls = append(calls, "body")
			})
			assert.Equal(t, []string{"fixture X"}, calls)
		})
		assert.Equal(t, []string{"fixture X", "root fixture"}, calls)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, TestID{"class"}, result.Failures[0].TestID)
		assert.Equal(t, []string{
			"could not connect",
			"cleanup failed: fixture Y would not close",
		}, errorMessages(result.Failures[0].Errors))
	})

	t.Run("setup panic", func(t *testing.T) {
		fixtureClosed := false
		result := Run(TestConfiguration{}, func(ldt *T) {
			ldt.RunWithSetup("class", func(setup *T) {
				setup.Defer(func() { fixtureClosed = true })
				panic("no database")
			}, func(*T) {})
		})
		assert.True(t, fixtureClosed)
		require.Len(t, result.Failures, 1)
		errs := result.Failures[0].Errors
		require.Len(t, errs, 1)
		assert.Equal(t, "setup failed: panic: no database", errs[0].Error())
	})

	t.Run("setup skip", func(t *testing.T) {
		fixtureClosed := false
		bodyRan := false
		result := Run(TestConfiguration{}, func(ldt *T) {
			ldt.RunWithSetup("class", func(setup *T) {
				setup.Defer(func() { fixtureClosed = true })
				setup.SkipWithReason("not today")
			}, func(*T) { bodyRan = true })
		})
		assert.True(t, fixtureClosed)
		assert.False(t, bodyRan)
		assert.True(t, result.OK())
		assert.Len(t, result.Tests, 1) // only the root
	})
}

func TestAssemblyScopeCleanupFailureIsReportedOnRoot(t *testing.T) {
	result := Run(TestConfiguration{}, func(ldt *T) {
		ldt.DeferErr(func() error { return errors.New("shared fixture leaked") })
		ldt.Run("test", func(*T) {})
	})
	require.Len(t, result.Failures, 1)
	assert.Nil(t, result.Failures[0].TestID)
	assert.Equal(t, []string{"cleanup failed: shared fixture leaked"}, errorMessages(result.Failures[0].Errors))
}

func TestNonCriticalFailure(t *testing.T) {
	result := Run(TestConfiguration{}, func(ldt *T) {
		ldt.Run("flaky", func(ldt1 *T) {
			ldt1.NonCritical("known issue")
			ldt1.Errorf("oops")
		})
	})
	assert.True(t, result.OK())
	require.Len(t, result.NonCriticalFailures, 1)
	assert.Equal(t, "known issue", result.NonCriticalFailures[0].Explanation)
	assert.True(t, result.NonCriticalFailures[0].NonCritical)
}

type scopeEventRecorder struct {
	events []string
}

func (r *scopeEventRecorder) SectionStart(name string)    { r.events = append(r.events, "+"+name) }
func (r *scopeEventRecorder) SectionEnd(name string)      { r.events = append(r.events, "-"+name) }
func (r *scopeEventRecorder) Line(string, ...interface{}) {}

var _ framework.SectionLogger = (*scopeEventRecorder)(nil)

func TestScopeLoggerSeesEveryScope(t *testing.T) {
	recorder := &scopeEventRecorder{}
	_ = Run(TestConfiguration{ScopeLogger: recorder, AssemblyScopeName: "all tests"}, func(ldt *T) {
		ldt.Run("a", func(ldt1 *T) {
			ldt1.Run("b", func(*T) {})
		})
	})
	assert.Equal(t, []string{"+all tests", "+a", "+a/b", "-a/b", "-a", "-all tests"}, recorder.events)
}

func TestDebugOutputIsCapturedPerTest(t *testing.T) {
	var finished []string
	logger := &recordingTestLogger{onFinished: func(id TestID, output framework.CapturedOutput) {
		for _, m := range output {
			finished = append(finished, id.String()+": "+m.Message)
		}
	}}
	_ = Run(TestConfiguration{TestLogger: logger}, func(ldt *T) {
		ldt.Debug("from root")
		ldt.Run("child", func(ldt1 *T) {
			ldt.Debug("from root during child")
			ldt1.Debug("from child")
		})
	})
	assert.Equal(t, []string{
		"child: from root",
		"child: from root during child",
		"child: from child",
	}, finished)
}

type recordingTestLogger struct {
	nullTestLogger
	onFinished func(TestID, framework.CapturedOutput)
}

func (r *recordingTestLogger) TestFinished(id TestID, _ TestResult, output framework.CapturedOutput) {
	r.onFinished(id, output)
}

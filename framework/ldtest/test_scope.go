package ldtest

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/scopeharness/scopeharness/framework"
	"github.com/scopeharness/scopeharness/framework/isolation"
)

// DefaultAssemblyScopeName is the name of the outermost isolation scope if
// TestConfiguration.AssemblyScopeName is not set.
const DefaultAssemblyScopeName = "assembly"

var (
	errSetupFailed  = errors.New("setup failed")
	errSetupSkipped = errors.New("setup skipped the test")
)

type environment struct {
	config  TestConfiguration
	results Results
	scopes  *isolation.Manager
}

// T represents a test scope. It is very similar to Go's testing.T type.
//
// Every T owns one isolation scope. Cleanup functions registered with Defer or DeferErr run
// when that scope ends, in reverse order, and any that fail cause the test to fail.
type T struct {
	env         *environment
	id          TestID
	context     interface{}
	debugLogger framework.CapturingLogger
	nonCritical string
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
	helperFns   []string
}

// TestConfiguration contains options for the entire test run.
type TestConfiguration struct {
	// Filter is an optional function for determining which tests to run based on their names.
	Filter Filter

	// TestLogger receives status information about each test.
	TestLogger TestLogger

	// ScopeLogger, if set, is notified whenever an isolation scope begins or ends.
	ScopeLogger framework.SectionLogger

	// AssemblyScopeName is the name of the root isolation scope. The default is
	// DefaultAssemblyScopeName.
	AssemblyScopeName string

	// Context is an optional value of any type defined by the application which can be accessed from tests.
	Context interface{}
}

// Run starts a top-level test scope. The root T runs inside the assembly scope, which
// ends after action returns.
func Run(
	config TestConfiguration,
	action func(*T),
) Results {
	if config.TestLogger == nil {
		config.TestLogger = nullTestLogger{}
	}
	if config.AssemblyScopeName == "" {
		config.AssemblyScopeName = DefaultAssemblyScopeName
	}
	scopeLogger := config.ScopeLogger
	if scopeLogger == nil {
		scopeLogger = framework.NullSectionLogger()
	}
	env := &environment{config: config}
	t := &T{env: env, context: config.Context}

	scopes, err := isolation.New(config.AssemblyScopeName, nil, isolation.WithLogger(scopeLogger))
	if err != nil {
		t.addError(fmt.Errorf("cannot start %s scope: %w", config.AssemblyScopeName, err))
		t.finish()
		return env.results
	}
	env.scopes = scopes
	t.run(action)
	return env.results
}

// run executes the test body in the scope that has already been begun for t, then ends
// that scope and records the result.
func (t *T) run(action func(*T)) TestResult {
	t.runAction(action)
	if err := t.env.scopes.EndScope(); err != nil {
		t.recordScopeErrors(err, false)
	}
	return t.finish()
}

func (t *T) runAction(action func(*T)) {
	defer func() {
		if r := recover(); r != nil {
			t.recoverFrom(r)
		}
	}()
	action(t)
}

func (t *T) recoverFrom(r interface{}) {
	if t.skipped {
		return
	}
	if _, ok := r.(*T); ok {
		t.failed = true
		return
	}
	t.addError(fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack())))
}

func (t *T) finish() TestResult {
	result := TestResult{TestID: t.id}
	if t.failed && len(t.errors) == 0 {
		t.addError(errors.New("test failed with no failure message"))
	}
	result.Errors = t.errors
	if t.skipped && !t.failed {
		return result
	}
	if t.failed {
		if t.nonCritical == "" {
			t.env.results.Failures = append(t.env.results.Failures, result)
		} else {
			result.Explanation = t.nonCritical
			result.NonCritical = true
			t.env.results.NonCriticalFailures = append(t.env.results.NonCriticalFailures, result)
		}
	}
	t.env.results.Tests = append(t.env.results.Tests, result)
	return result
}

// ID returns the full name of the current test.
func (t *T) ID() TestID {
	return t.id
}

// Run runs a subtest in its own scope.
//
// This is equivalent to Go's testing.T.Run.
func (t *T) Run(name string, action func(*T)) {
	t.RunWithSetup(name, nil, action)
}

// RunWithSetup runs a subtest in its own scope, like Run, but first calls setup as the
// initializer of that scope. Cleanup functions that setup registers belong to the subtest.
//
// If setup fails, by calling Errorf or FailNow or by panicking, the subtest's scope is
// unwound right away: whatever setup had already deferred is cleaned up, action is never
// called, and the subtest is reported as failed with every failure that occurred. If setup
// calls Skip, the cleanup still happens and the subtest is reported as skipped.
func (t *T) RunWithSetup(name string, setup func(*T), action func(*T)) {
	id := t.id.Plus(name)

	t.env.config.TestLogger.TestStarted(id)
	if t.env.config.Filter != nil && !t.env.config.Filter.Match(id) {
		t.env.config.TestLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}
	c1 := &T{
		id:      id,
		env:     t.env,
		context: t.context,
	}
	t.debugLogger.AddChildLogger(&c1.debugLogger) // see comments on t.DebugLogger()
	var result TestResult
	err := t.env.scopes.BeginScope(scopeNameFor(id), func(isolation.Registrar) error {
		return c1.runSetup(setup)
	})
	var agg *isolation.AggregateError
	switch {
	case err == nil:
		result = c1.run(action)
	case errors.As(err, &agg):
		c1.recordScopeErrors(err, true)
		result = c1.finish()
	default:
		// the scope manager refused to begin the scope at all, e.g. because this was
		// called from inside a cleanup function
		c1.addError(fmt.Errorf("cannot start subtest: %w", err))
		result = c1.finish()
	}
	t.debugLogger.RemoveChildLogger(&c1.debugLogger)
	if c1.skipped && !c1.failed {
		t.env.config.TestLogger.TestSkipped(id, c1.skipReason)
	} else {
		t.env.config.TestLogger.TestFinished(id, result, c1.debugLogger.Output())
	}
}

func scopeNameFor(id TestID) string {
	if name := id.String(); name != "" {
		return name
	}
	return "(unnamed)"
}

func (t *T) runSetup(setup func(*T)) (err error) {
	if setup == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(*T); !ok {
				panic(r) // the scope manager reports this as a *isolation.PanicError
			}
			if t.skipped {
				err = errSetupSkipped
			} else {
				t.failed = true
				err = errSetupFailed
			}
		}
	}()
	setup(t)
	if t.failed {
		return errSetupFailed
	}
	return nil
}

// recordScopeErrors turns an error from BeginScope or EndScope into test failures, one per
// underlying failure. When initializerFailed is true, the first failure is the one that
// made the scope's setup fail.
func (t *T) recordScopeErrors(err error, initializerFailed bool) {
	failures := []error{err}
	var agg *isolation.AggregateError
	if errors.As(err, &agg) {
		failures = agg.Errors
	}
	for i, f := range failures {
		switch {
		case errors.Is(f, errSetupFailed):
			t.failed = true
		case errors.Is(f, errSetupSkipped):
		case i == 0 && initializerFailed:
			t.addError(fmt.Errorf("setup failed: %w", f))
		default:
			t.addError(fmt.Errorf("cleanup failed: %w", f))
		}
	}
}

func (t *T) addError(err error) {
	t.failed = true
	t.errors = append(t.errors, err)
	t.env.config.TestLogger.TestError(t.id, err)
}

// NonCritical indicates that if this test fails, we would like to know about it but we're willing to
// live with it. It will be shown in the output as a non-critical failure, accompanied by the
// explanation that is specified here. Non-critical failures do not cause a non-zero exit code.
func (t *T) NonCritical(explanation string) {
	t.nonCritical = explanation
}

// Errorf reports a test failure. It is equivalent to Go's testing.T.Errorf. It does not cause the test
// to terminate, but adds the failure message to the output and marks the test as failed.
//
// You will rarely use this method directly; it is part of this type's implementation of the base
// interfaces testing.T and assert.TestingT, allowing it to be called from assertion helpers.
func (t *T) Errorf(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	stacktrace := getStacktrace(false, t.helperFns)
	t.addError(transformError(err, stacktrace))
}

// FailNow causes the test to immediately terminate and be marked as failed.
func (t *T) FailNow() {
	t.failed = true
	panic(t)
}

// Skip causes the test to immediately terminate and be marked as skipped.
func (t *T) Skip() {
	t.skipped = true
	panic(t)
}

// SkipWithReason is equivalent to Skip but provides a message.
func (t *T) SkipWithReason(reason string) {
	t.skipReason = reason
	t.Skip()
}

// Failed reports whether the test has failed so far.
func (t *T) Failed() bool {
	return t.failed
}

// Debug writes a message to the output for this test scope.
func (t *T) Debug(message string, args ...interface{}) {
	t.debugLogger.Printf(message, args...)
}

// DebugLogger returns a Logger instance for writing output for this test scope.
//
// The output that is captured for a test will be passed to TestLogger.TestFinished at the end of
// the test. The test runner can choose whether to display this or not based on command-line options.
//
// When a test has subtests, the logger for a subtest starts out with a copy of any output that
// was already logged for the parent test, and while the subtest runs, further output sent to
// the parent's logger goes to the subtest's logger instead.
func (t *T) DebugLogger() framework.Logger {
	return &t.debugLogger
}

// Defer schedules a cleanup function which is guaranteed to be called when the current
// isolation scope exits for any reason. Unlike a Go defer statement, Defer can be used from
// within helper functions.
//
// The current scope is the innermost one that is running, so a Defer issued on a parent T
// while one of its subtests is running belongs to the subtest.
func (t *T) Defer(cleanupFn func()) {
	t.Helper()
	t.DeferErr(func() error {
		cleanupFn()
		return nil
	})
}

// DeferErr is like Defer, but the cleanup function can report a failure by returning an error.
func (t *T) DeferErr(cleanupFn func() error) {
	t.Helper()
	err := t.env.scopes.AddCleanupAction(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(*T); !ok {
					panic(r)
				}
				// FailNow or Skip inside a cleanup; any message was already recorded
				t.failed = true
			}
		}()
		return cleanupFn()
	})
	if err != nil {
		t.addError(fmt.Errorf("cannot register cleanup: %w", err))
	}
}

// Context returns the application-defined context value, if any, that was specified in the
// TestConfiguration or with WithContext.
func (t *T) Context() interface{} {
	return t.context
}

// WithContext returns a copy of t whose Context is the given value. Subtests started from the
// copy inherit it.
func (t *T) WithContext(context interface{}) *T {
	copied := *t
	copied.context = context
	return &copied
}

// Helper marks the function that calls it as a test helper that shouldn't appear in stacktraces.
// Equivalent to Go's testing.T.Helper().
func (t *T) Helper() {
	pc, _, _, ok := runtime.Caller(1) // 0 is Helper() itself, 1 is who called it
	if !ok {
		return
	}
	f := runtime.FuncForPC(pc)
	if f == nil {
		return
	}
	t.helperFns = append(t.helperFns, f.Name())
}

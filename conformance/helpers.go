package conformance

import (
	"errors"
	"fmt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/scopeharness/scopeharness/framework"
	"github.com/scopeharness/scopeharness/framework/helpers"
	"github.com/scopeharness/scopeharness/framework/isolation"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

const callBufferSize = 100

// scopeFixture is a fresh scope manager plus a record of which of its cleanup actions ran.
// Actions run synchronously, so by the time EndScope returns every call is already in the
// channel; the timeout only matters if an action is broken.
type scopeFixture struct {
	config   Config
	manager  *isolation.Manager
	calls    chan string
	failures map[string]error
}

func newScopeFixture(t *ldtest.T) *scopeFixture {
	config := suiteConfig(t)
	manager, err := isolation.New(config.AssemblyScopeName, nil,
		isolation.WithLogger(framework.SectionsToLogger(t.DebugLogger())))
	require.NoError(t, err)
	f := &scopeFixture{
		config:   config,
		manager:  manager,
		calls:    make(chan string, callBufferSize+config.NestingDepth),
		failures: make(map[string]error),
	}
	t.Defer(f.close)
	return f
}

// close ends whatever scopes a test left open, so that a failed test cannot leave actions
// that were never run.
func (f *scopeFixture) close() {
	for f.manager.Depth() > 0 && f.manager.State() == isolation.Active {
		_ = f.manager.EndScope()
	}
}

// action returns a cleanup action that records name when it runs.
func (f *scopeFixture) action(name string) isolation.CleanupAction {
	return func() error {
		return f.record(name)
	}
}

func (f *scopeFixture) record(name string) error {
	if !helpers.NonBlockingSend(f.calls, name) {
		return fmt.Errorf("too many cleanup calls to record %q", name)
	}
	return nil
}

// failingAction returns a cleanup action that records name and then fails with
// f.failure(name).
func (f *scopeFixture) failingAction(name string) isolation.CleanupAction {
	err := f.failure(name)
	return func() error {
		if recErr := f.record(name); recErr != nil {
			return recErr
		}
		return err
	}
}

// failure returns the error that failingAction(name) fails with. The same error value is
// returned every time, so it can be compared by identity.
func (f *scopeFixture) failure(name string) error {
	if err, ok := f.failures[name]; ok {
		return err
	}
	err := fmt.Errorf("%s failed", name)
	f.failures[name] = err
	return err
}

func (f *scopeFixture) add(t *ldtest.T, actions ...isolation.CleanupAction) {
	t.Helper()
	for _, a := range actions {
		require.NoError(t, f.manager.AddCleanupAction(a))
	}
}

func (f *scopeFixture) begin(t *ldtest.T, name string, actions ...isolation.CleanupAction) {
	t.Helper()
	require.NoError(t, f.manager.BeginScope(name, nil))
	f.add(t, actions...)
}

// requireCalls verifies that exactly the named actions have run since the last check, in
// the given order.
func (f *scopeFixture) requireCalls(t *ldtest.T, names ...string) {
	t.Helper()
	var got []string
	for _, name := range names {
		got = append(got, helpers.RequireValueWithMessage(t, f.calls, f.config.ReceiveTimeout,
			"timed out waiting for cleanup action %q", name))
	}
	got = append(got, helpers.DrainValues(f.calls)...)
	matchers := make([]m.Matcher, 0, len(names))
	for _, name := range names {
		matchers = append(matchers, m.Equal(name))
	}
	m.In(t).Assert(got, m.Items(matchers...))
}

// requireNoCalls verifies that no action has run since the last check.
func (f *scopeFixture) requireNoCalls(t *ldtest.T) {
	t.Helper()
	assert.Empty(t, helpers.DrainValues(f.calls), "no cleanup action should have run")
}

func requireAggregate(t *ldtest.T, err error) *isolation.AggregateError {
	t.Helper()
	var agg *isolation.AggregateError
	require.True(t, errors.As(err, &agg), "expected *isolation.AggregateError, got %T: %v", err, err)
	return agg
}

func requireInvalidState(t *ldtest.T, err error, operation string, state isolation.State) {
	t.Helper()
	var ise *isolation.InvalidStateError
	require.True(t, errors.As(err, &ise), "expected *isolation.InvalidStateError, got %T: %v", err, err)
	m.In(t).Assert(ise.Operation, m.Equal(operation))
	m.In(t).Assert(ise.State, m.Equal(state))
}

package conformance

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/scopeharness/scopeharness/framework/isolation"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

func doReentrancyTests(t *ldtest.T) {
	t.Run("state is cleaning while actions run", func(t *ldtest.T) {
		f := newScopeFixture(t)
		var observed isolation.State
		f.begin(t, f.config.ClassScopeName, func() error {
			observed = f.manager.State()
			return nil
		})
		assert.NoError(t, f.manager.EndScope())
		m.In(t).Assert(observed, m.Equal(isolation.Cleaning))
		m.In(t).Assert(f.manager.State(), m.Equal(isolation.Active))
	})

	t.Run("adding a cleanup action during cleanup", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName, func() error {
			return f.manager.AddCleanupAction(f.action("late"))
		})
		err := f.manager.EndScope()
		requireInvalidState(t, err, isolation.OpAddCleanupAction, isolation.Cleaning)
		m.In(t).Assert(err.Error(), m.Equal("adding cleanup actions from within cleanup is not supported"))

		assert.NoError(t, f.manager.EndScope())
		f.requireNoCalls(t)
	})

	t.Run("beginning a scope during cleanup", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName, func() error {
			return f.manager.BeginScope(f.config.TestScopeName, nil)
		})
		requireInvalidState(t, f.manager.EndScope(), isolation.OpBeginScope, isolation.Cleaning)
		m.In(t).Assert(f.manager.ScopeNames(), m.Items(m.Equal(f.config.AssemblyScopeName)))
	})

	t.Run("ending a scope during cleanup", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.add(t, f.action("assembly"))
		f.begin(t, f.config.ClassScopeName, func() error {
			return f.manager.EndScope()
		})
		requireInvalidState(t, f.manager.EndScope(), isolation.OpEndScope, isolation.Cleaning)
		m.In(t).Assert(f.manager.Depth(), m.Equal(1))
		f.requireNoCalls(t)
	})

	t.Run("beginning a scope during initialization", func(t *ldtest.T) {
		f := newScopeFixture(t)
		var nestedErr error
		err := f.manager.BeginScope(f.config.ClassScopeName, func(isolation.Registrar) error {
			nestedErr = f.manager.BeginScope(f.config.TestScopeName, nil)
			return nestedErr
		})
		requireInvalidState(t, nestedErr, isolation.OpBeginScope, isolation.Initializing)

		agg := requireAggregate(t, err)
		m.In(t).Assert(agg.Errors, m.Items(m.Equal(nestedErr)))
		m.In(t).Assert(f.manager.ScopeNames(), m.Items(m.Equal(f.config.AssemblyScopeName)))
	})

	t.Run("ending a scope during initialization", func(t *ldtest.T) {
		f := newScopeFixture(t)
		var nestedErr error
		require.NoError(t, f.manager.BeginScope(f.config.ClassScopeName, func(isolation.Registrar) error {
			nestedErr = f.manager.EndScope()
			return nil
		}))
		requireInvalidState(t, nestedErr, isolation.OpEndScope, isolation.Initializing)
		m.In(t).Assert(f.manager.Depth(), m.Equal(2))
	})
}

package conformance

import (
	"errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/scopeharness/scopeharness/framework/isolation"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

func doInitializerFailureTests(t *ldtest.T) {
	t.Run("actions already registered run immediately", func(t *ldtest.T) {
		f := newScopeFixture(t)
		initErr := errors.New("fixture C could not start")
		err := f.manager.BeginScope(f.config.ClassScopeName, func(r isolation.Registrar) error {
			require.NoError(t, r.AddCleanupAction(f.action("fixture A")))
			require.NoError(t, r.AddCleanupAction(f.action("fixture B")))
			return initErr
		})
		f.requireCalls(t, "fixture B", "fixture A")

		agg := requireAggregate(t, err)
		m.In(t).Assert(agg.Errors, m.Items(m.Equal(initErr)))
		assert.True(t, errors.Is(err, initErr))
	})

	t.Run("the failed scope is never entered", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.add(t, f.action("assembly"))
		err := f.manager.BeginScope(f.config.ClassScopeName, func(isolation.Registrar) error {
			return errors.New("no")
		})
		require.Error(t, err)
		m.In(t).Assert(f.manager.ScopeNames(), m.Items(m.Equal(f.config.AssemblyScopeName)))
		m.In(t).Assert(f.manager.CurrentScopeName(), m.Equal(f.config.AssemblyScopeName))
		m.In(t).Assert(f.manager.State(), m.Equal(isolation.Active))
		f.requireNoCalls(t)

		// the manager is still usable
		f.begin(t, f.config.ClassScopeName, f.action("class"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "class")
	})

	t.Run("initializer failure comes first, followed by cleanup failures", func(t *ldtest.T) {
		f := newScopeFixture(t)
		initErr := errors.New("initializer failed")
		err := f.manager.BeginScope(f.config.ClassScopeName, func(r isolation.Registrar) error {
			require.NoError(t, r.AddCleanupAction(f.failingAction("X")))
			require.NoError(t, r.AddCleanupAction(f.action("Y")))
			require.NoError(t, r.AddCleanupAction(f.failingAction("Z")))
			return initErr
		})
		f.requireCalls(t, "Z", "Y", "X")

		agg := requireAggregate(t, err)
		m.In(t).Assert(agg.Errors, m.Items(
			m.Equal(initErr),
			m.Equal(f.failure("Z")),
			m.Equal(f.failure("X")),
		))
	})

	t.Run("initializer panic", func(t *ldtest.T) {
		f := newScopeFixture(t)
		err := f.manager.BeginScope(f.config.ClassScopeName, func(r isolation.Registrar) error {
			require.NoError(t, r.AddCleanupAction(f.action("fixture")))
			panic("initializer exploded")
		})
		f.requireCalls(t, "fixture")

		agg := requireAggregate(t, err)
		require.Len(t, agg.Errors, 1)
		var pe *isolation.PanicError
		require.True(t, errors.As(agg.Errors[0], &pe))
		m.In(t).Assert(pe.Value, m.Equal("initializer exploded"))
		m.In(t).Assert(f.manager.State(), m.Equal(isolation.Active))
	})
}

package conformance

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/scopeharness/scopeharness/framework/helpers"
	"github.com/scopeharness/scopeharness/framework/isolation"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

func doScopeLifecycleTests(t *ldtest.T) {
	t.Run("new manager has only the root scope", func(t *ldtest.T) {
		f := newScopeFixture(t)
		m.In(t).Assert(f.manager.Depth(), m.Equal(1))
		m.In(t).Assert(f.manager.ScopeNames(), m.Items(m.Equal(f.config.AssemblyScopeName)))
		m.In(t).Assert(f.manager.CurrentScopeName(), m.Equal(f.config.AssemblyScopeName))
		m.In(t).Assert(f.manager.State(), m.Equal(isolation.Active))
	})

	t.Run("no-op scope", func(t *ldtest.T) {
		f := newScopeFixture(t)
		require.NoError(t, f.manager.BeginScope(f.config.ClassScopeName, nil))
		m.In(t).Assert(f.manager.Depth(), m.Equal(2))
		m.In(t).Assert(f.manager.CurrentScopeName(), m.Equal(f.config.ClassScopeName))

		assert.NoError(t, f.manager.EndScope())
		m.In(t).Assert(f.manager.Depth(), m.Equal(1))
		m.In(t).Assert(f.manager.CurrentScopeName(), m.Equal(f.config.AssemblyScopeName))
		f.requireNoCalls(t)
	})

	t.Run("initializer that registers nothing", func(t *ldtest.T) {
		f := newScopeFixture(t)
		called := false
		require.NoError(t, f.manager.BeginScope(f.config.ClassScopeName, func(isolation.Registrar) error {
			called = true
			return nil
		}))
		assert.True(t, called)
		assert.NoError(t, f.manager.EndScope())
		f.requireNoCalls(t)
	})

	t.Run("cleanup can stop a background worker", func(t *ldtest.T) {
		f := newScopeFixture(t)
		var stopped atomic.Bool
		stop := make(chan struct{})
		go func() {
			<-stop
			stopped.Store(true)
		}()
		f.begin(t, f.config.ClassScopeName, func() error {
			close(stop)
			return nil
		})
		helpers.AssertNever(t, stopped.Load, f.config.ReceiveTimeout/10, time.Millisecond,
			"worker stopped before its scope ended")

		assert.NoError(t, f.manager.EndScope())
		helpers.RequireEventually(t, stopped.Load, f.config.ReceiveTimeout, time.Millisecond,
			"worker was not stopped when its scope ended")
	})

	t.Run("scope name must not be empty", func(t *ldtest.T) {
		f := newScopeFixture(t)
		err := f.manager.BeginScope("", nil)
		assert.True(t, errors.Is(err, isolation.ErrEmptyScopeName), "unexpected error: %v", err)
		m.In(t).Assert(f.manager.Depth(), m.Equal(1))
	})

	t.Run("nil cleanup action is rejected", func(t *ldtest.T) {
		f := newScopeFixture(t)
		err := f.manager.AddCleanupAction(nil)
		assert.True(t, errors.Is(err, isolation.ErrNilCleanupAction), "unexpected error: %v", err)
		assert.NoError(t, f.manager.EndScope())
	})

	t.Run("operations with an empty stack", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.add(t, f.action("root"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "root")
		m.In(t).Assert(f.manager.Depth(), m.Equal(0))
		m.In(t).Assert(f.manager.CurrentScopeName(), m.Equal(""))

		assert.True(t, errors.Is(f.manager.EndScope(), isolation.ErrNoActiveScope))
		assert.True(t, errors.Is(f.manager.AddCleanupAction(f.action("orphan")), isolation.ErrNoActiveScope))
		f.requireNoCalls(t)

		// a new root can be started after the old one ended
		f.begin(t, f.config.AssemblyScopeName, f.action("new root"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "new root")
	})

	t.Run("failing root initializer", func(t *ldtest.T) {
		config := suiteConfig(t)
		initErr := errors.New("cannot set up assembly")
		manager, err := isolation.New(config.AssemblyScopeName, func(isolation.Registrar) error {
			return initErr
		})
		require.NotNil(t, manager)
		agg := requireAggregate(t, err)
		m.In(t).Assert(agg.Errors, m.Items(m.Equal(initErr)))
		m.In(t).Assert(manager.Depth(), m.Equal(0))
		m.In(t).Assert(manager.State(), m.Equal(isolation.Active))
	})
}

package conformance

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/scopeharness/scopeharness/framework/isolation"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

func doIsolationTests(t *ldtest.T) {
	t.Run("ending an inner scope leaves outer actions pending", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.add(t, f.action("assembly"))
		f.begin(t, f.config.ClassScopeName, f.action("class"))
		f.begin(t, f.config.TestScopeName, f.action("test"))

		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "test")
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "class")
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "assembly")
	})

	t.Run("registration goes to the innermost scope", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName)
		f.begin(t, f.config.TestScopeName)
		m.In(t).Assert(f.manager.CurrentScopeName(), m.Equal(f.config.TestScopeName))
		f.add(t, f.action("registered in test"))

		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "registered in test")
		assert.NoError(t, f.manager.EndScope())
		f.requireNoCalls(t)
	})

	t.Run("registration after a pop goes to the parent", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName, f.action("class 1"))
		f.begin(t, f.config.TestScopeName, f.action("test"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "test")

		m.In(t).Assert(f.manager.CurrentScopeName(), m.Equal(f.config.ClassScopeName))
		f.add(t, f.action("class 2"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "class 2", "class 1")
	})

	t.Run("registration during initialization goes to the new scope", func(t *ldtest.T) {
		f := newScopeFixture(t)
		var nameDuringInit string
		require.NoError(t, f.manager.BeginScope(f.config.ClassScopeName, func(r isolation.Registrar) error {
			nameDuringInit = f.manager.CurrentScopeName()
			return r.AddCleanupAction(f.action("from initializer"))
		}))
		m.In(t).Assert(nameDuringInit, m.Equal(f.config.ClassScopeName))

		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "from initializer")
	})

	t.Run("sibling scopes do not share actions", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.TestScopeName+" 1", f.action("first"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "first")

		f.begin(t, f.config.TestScopeName+" 2", f.action("second"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "second")
	})
}

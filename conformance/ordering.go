package conformance

import (
	"fmt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/exp/slices"

	"github.com/scopeharness/scopeharness/framework/isolation"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

func doOrderingTests(t *ldtest.T) {
	t.Run("cleanup actions run in reverse order of registration", func(t *ldtest.T) {
		f := newScopeFixture(t)
		var names, reversed []string
		for i := 1; i <= 5; i++ {
			name := fmt.Sprintf("action %d", i)
			names = append(names, name)
			reversed = slices.Insert(reversed, 0, name)
		}
		f.begin(t, f.config.ClassScopeName)
		for _, name := range names {
			f.add(t, f.action(name))
		}
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, reversed...)
	})

	t.Run("actions registered by the initializer run after actions registered later", func(t *ldtest.T) {
		f := newScopeFixture(t)
		require.NoError(t, f.manager.BeginScope(f.config.ClassScopeName, func(r isolation.Registrar) error {
			if err := r.AddCleanupAction(f.action("setup 1")); err != nil {
				return err
			}
			return r.AddCleanupAction(f.action("setup 2"))
		}))
		f.add(t, f.action("body"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "body", "setup 2", "setup 1")
	})

	t.Run("each action runs exactly once", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName, f.action("a"), f.action("b"))
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "b", "a")

		assert.NoError(t, f.manager.EndScope()) // the root scope
		f.requireNoCalls(t)
	})

	t.Run("the same action can be registered more than once", func(t *ldtest.T) {
		f := newScopeFixture(t)
		shared := f.action("shared")
		f.begin(t, f.config.ClassScopeName, shared, f.action("other"), shared)
		assert.NoError(t, f.manager.EndScope())
		f.requireCalls(t, "shared", "other", "shared")
	})
}

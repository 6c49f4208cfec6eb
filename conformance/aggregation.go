package conformance

import (
	"errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/scopeharness/scopeharness/framework/isolation"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

func doAggregationTests(t *ldtest.T) {
	t.Run("single failure is returned as is", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName, f.action("ok 1"), f.failingAction("bad"), f.action("ok 2"))
		err := f.manager.EndScope()
		f.requireCalls(t, "ok 2", "bad", "ok 1")

		m.In(t).Assert(err, m.Equal(f.failure("bad")))
		var agg *isolation.AggregateError
		assert.False(t, errors.As(err, &agg), "a single failure should not be wrapped")
	})

	t.Run("multiple failures are aggregated", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName,
			f.failingAction("A"), f.action("ok"), f.failingAction("B"), f.failingAction("C"))
		err := f.manager.EndScope()
		f.requireCalls(t, "C", "B", "ok", "A")

		agg := requireAggregate(t, err)
		m.In(t).Assert(agg.Errors, m.ItemsInAnyOrder(
			m.Equal(f.failure("A")),
			m.Equal(f.failure("B")),
			m.Equal(f.failure("C")),
		))
		for _, name := range []string{"A", "B", "C"} {
			assert.True(t, errors.Is(err, f.failure(name)), "errors.Is should find %s", name)
		}
		m.In(t).Assert(f.manager.Depth(), m.Equal(1))
	})

	t.Run("a failure does not stop later actions", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName, f.action("first registered"), f.failingAction("last registered"))
		require.Error(t, f.manager.EndScope())
		f.requireCalls(t, "last registered", "first registered")
	})

	t.Run("panicking action is reported and the rest still run", func(t *ldtest.T) {
		f := newScopeFixture(t)
		f.begin(t, f.config.ClassScopeName, f.action("after panic"), func() error {
			panic("cleanup exploded")
		})
		err := f.manager.EndScope()
		f.requireCalls(t, "after panic")

		var pe *isolation.PanicError
		require.True(t, errors.As(err, &pe), "expected *isolation.PanicError, got %T: %v", err, err)
		m.In(t).Assert(pe.Value, m.Equal("cleanup exploded"))
		m.In(t).Assert(len(pe.Stack), m.Not(m.Equal(0)))
	})
}

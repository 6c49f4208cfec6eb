package conformance

import (
	"fmt"

	"github.com/stretchr/testify/assert"

	m "github.com/launchdarkly/go-test-helpers/v2/matchers"

	"github.com/scopeharness/scopeharness/framework/ldtest"
)

func doDepthTests(t *ldtest.T) {
	t.Run("balanced begin and end return to the original depth", func(t *ldtest.T) {
		f := newScopeFixture(t)
		depth := f.config.NestingDepth
		expectedNames := []m.Matcher{m.Equal(f.config.AssemblyScopeName)}
		for i := 1; i <= depth; i++ {
			name := nestedScopeName(f.config, i)
			f.begin(t, name, f.action(name))
			expectedNames = append(expectedNames, m.Equal(name))
			m.In(t).Assert(f.manager.Depth(), m.Equal(i+1))
		}
		m.In(t).Assert(f.manager.ScopeNames(), m.Items(expectedNames...))

		for i := depth; i >= 1; i-- {
			assert.NoError(t, f.manager.EndScope())
			f.requireCalls(t, nestedScopeName(f.config, i))
			m.In(t).Assert(f.manager.Depth(), m.Equal(i))
		}
		m.In(t).Assert(f.manager.CurrentScopeName(), m.Equal(f.config.AssemblyScopeName))
	})

	t.Run("failures do not unbalance the stack", func(t *ldtest.T) {
		f := newScopeFixture(t)
		for i := 1; i <= f.config.NestingDepth; i++ {
			name := nestedScopeName(f.config, i)
			f.begin(t, name, f.failingAction(name))
		}
		for i := f.config.NestingDepth; i >= 1; i-- {
			err := f.manager.EndScope()
			m.In(t).Assert(err, m.Equal(f.failure(nestedScopeName(f.config, i))))
			m.In(t).Assert(f.manager.Depth(), m.Equal(i))
		}
		f.requireCalls(t, reversedScopeNames(f.config)...)
	})
}

// nestedScopeName names level i above the root: the class scope, then the test scope, then
// numbered levels below that.
func nestedScopeName(config Config, level int) string {
	switch level {
	case 1:
		return config.ClassScopeName
	case 2:
		return config.TestScopeName
	default:
		return fmt.Sprintf("%s %d", config.TestScopeName, level-1)
	}
}

func reversedScopeNames(config Config) []string {
	names := make([]string, 0, config.NestingDepth)
	for i := config.NestingDepth; i >= 1; i-- {
		names = append(names, nestedScopeName(config, i))
	}
	return names
}

package conformance

import (
	"fmt"
	"os"

	"github.com/scopeharness/scopeharness/framework"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

// RunConformanceSuite runs every conformance test that filter selects and returns the
// results. Each test works with its own scope manager, so the suite has no shared state.
func RunConformanceSuite(
	config Config,
	filter ldtest.Filter,
	testLogger ldtest.TestLogger,
	scopeLogger framework.SectionLogger,
) ldtest.Results {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return ldtest.Results{
			Failures: []ldtest.TestResult{
				{Errors: []error{fmt.Errorf("invalid suite configuration: %w", err)}},
			},
		}
	}

	fmt.Println("Running scope isolation conformance suite")
	fmt.Println()
	if sdf, ok := filter.(ldtest.SelfDescribingFilter); ok {
		sdf.Describe(os.Stdout)
	}

	return ldtest.Run(ldtest.TestConfiguration{
		Filter:            filter,
		TestLogger:        testLogger,
		ScopeLogger:       scopeLogger,
		AssemblyScopeName: "conformance",
		Context:           config,
	}, doAllConformanceTests)
}

func doAllConformanceTests(t *ldtest.T) {
	t.Run("scope lifecycle", doScopeLifecycleTests)
	t.Run("ordering", doOrderingTests)
	t.Run("isolation", doIsolationTests)
	t.Run("re-entrancy", doReentrancyTests)
	t.Run("initializer failure", doInitializerFailureTests)
	t.Run("aggregation", doAggregationTests)
	t.Run("depth", doDepthTests)
}

func suiteConfig(t *ldtest.T) Config {
	if c, ok := t.Context().(Config); ok {
		return c
	}
	return DefaultConfig()
}

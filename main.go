package main

import (
	"bufio"
	_ "embed" // this is required in order for go:embed to work
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/scopeharness/scopeharness/conformance"
	"github.com/scopeharness/scopeharness/framework"
	"github.com/scopeharness/scopeharness/framework/ldtest"
)

const jUnitSuiteName = "scopeharness"

//go:embed VERSION
var versionString string // comes from the VERSION file which we update for each release

func main() {
	fmt.Printf("scopeharness v%s\n", strings.TrimSpace(versionString))

	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	results, err := run(params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !results.OK() {
		os.Exit(1)
	}
}

func run(params commandParams) (*ldtest.Results, error) {
	if params.skipFile != "" {
		if err := loadSuppressions(&params); err != nil {
			return nil, err
		}
	}

	suiteConfig := conformance.DefaultConfig()
	if params.configFile != "" {
		c, err := conformance.ReadConfigFile(params.configFile)
		if err != nil {
			return nil, err
		}
		suiteConfig = c
	}

	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(os.Stdout, "", log.LstdFlags)
	}
	scopeLogger := framework.SectionsToLogger(framework.LoggerWithPrefix(mainDebugLogger, "[scopes] "))
	if params.traceScopes {
		scopeLogger = framework.NewConsoleSectionLogger(os.Stdout)
	}

	var testLogger ldtest.TestLogger
	consoleLogger := ldtest.ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}
	if params.jUnitFile == "" {
		testLogger = consoleLogger
	} else {
		testLogger = &ldtest.MultiTestLogger{Loggers: []ldtest.TestLogger{
			consoleLogger,
			ldtest.NewJUnitTestLogger(params.jUnitFile, jUnitSuiteName, suiteProperties(suiteConfig), params.filters),
		}}
	}

	results := conformance.RunConformanceSuite(suiteConfig, params.filters, testLogger, scopeLogger)

	fmt.Println()
	if err := testLogger.EndLog(results); err != nil {
		return nil, fmt.Errorf("error writing log: %w", err)
	}

	if params.recordFailures != "" {
		if err := recordFailures(params.recordFailures, results); err != nil {
			return nil, err
		}
	}

	return &results, nil
}

func suiteProperties(c conformance.Config) map[string]string {
	return map[string]string{
		"version":                 strings.TrimSpace(versionString),
		"suite.assemblyScopeName": c.AssemblyScopeName,
		"suite.classScopeName":    c.ClassScopeName,
		"suite.testScopeName":     c.TestScopeName,
		"suite.nestingDepth":      fmt.Sprint(c.NestingDepth),
		"suite.receiveTimeout":    c.ReceiveTimeout.String(),
	}
}

// recordFailures writes the IDs of failed tests to path, one per line, in the format that
// -skip-from reads.
func recordFailures(path string, results ldtest.Results) error {
	f, err := os.Create(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("cannot create suppression file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, test := range results.Failures {
		_, _ = fmt.Fprintln(w, test.TestID)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot write suppression file: %w", err)
	}
	return f.Close()
}

func loadSuppressions(params *commandParams) error {
	file, err := os.Open(params.skipFile)
	if err != nil {
		return fmt.Errorf("cannot open provided suppression file: %w", err)
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		// Ignore blank lines
		if strings.TrimSpace(line) == "" {
			continue
		}
		escaped := regexp.QuoteMeta(line)
		if err := params.filters.MustNotMatch.Set(escaped); err != nil {
			return fmt.Errorf("cannot parse suppression: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("while processing suppression file: %w", err)
	}
	return nil
}

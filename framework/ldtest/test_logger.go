package ldtest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/scopeharness/scopeharness/framework"
)

var consoleTestErrorColor = color.New(color.FgYellow)              //nolint:gochecknoglobals
var consoleTestFailedColor = color.New(color.FgRed)                //nolint:gochecknoglobals
var consoleTestSkippedColor = color.New(color.Faint, color.FgBlue) //nolint:gochecknoglobals
var consoleDebugOutputColor = color.New(color.Faint)               //nolint:gochecknoglobals
var allTestsPassedColor = color.New(color.FgGreen)                 //nolint:gochecknoglobals

// TestLogger receives status information about each test as the run proceeds.
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput)
	TestSkipped(id TestID, reason string)
	EndLog(results Results) error
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(TestID)                                        {}
func (n nullTestLogger) TestError(TestID, error)                                   {}
func (n nullTestLogger) TestFinished(TestID, TestResult, framework.CapturedOutput) {}
func (n nullTestLogger) TestSkipped(TestID, string)                                {}
func (n nullTestLogger) EndLog(Results) error                                      { return nil }

// ConsoleTestLogger prints test progress to the terminal in colour.
type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool

	// Out is where output goes; the default is color.Output, which is standard output.
	Out io.Writer
}

func (c ConsoleTestLogger) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return color.Output
}

func (c ConsoleTestLogger) TestStarted(id TestID) {
	_, _ = fmt.Fprintf(c.out(), "[%s]\n", id)
}

func (c ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = consoleTestErrorColor.Fprintf(c.out(), "  %s\n", line)
	}
}

func (c ConsoleTestLogger) TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput) {
	failed := result.Failed()
	if failed {
		if result.NonCritical {
			_, _ = consoleTestFailedColor.Fprintf(c.out(), "  FAILED (non-critical): %s\n", id)
		} else {
			_, _ = consoleTestFailedColor.Fprintf(c.out(), "  FAILED: %s\n", id)
		}
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		_, _ = consoleDebugOutputColor.Fprintln(c.out(), debugOutput.ToString("    DEBUG "))
	}
}

func (c ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		_, _ = consoleTestSkippedColor.Fprintf(c.out(), "  SKIPPED: %s\n", id)
	} else {
		_, _ = consoleTestSkippedColor.Fprintf(c.out(), "  SKIPPED: %s (%s)\n", id, reason)
	}
}

func (c ConsoleTestLogger) EndLog(results Results) error {
	PrintResults(results)
	return nil
}

// MultiTestLogger forwards every notification to each of its Loggers in turn.
type MultiTestLogger struct {
	Loggers []TestLogger
}

func (m *MultiTestLogger) TestStarted(id TestID) {
	for _, l := range m.Loggers {
		l.TestStarted(id)
	}
}

func (m *MultiTestLogger) TestError(id TestID, err error) {
	for _, l := range m.Loggers {
		l.TestError(id, err)
	}
}

func (m *MultiTestLogger) TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput) {
	for _, l := range m.Loggers {
		l.TestFinished(id, result, debugOutput)
	}
}

func (m *MultiTestLogger) TestSkipped(id TestID, reason string) {
	for _, l := range m.Loggers {
		l.TestSkipped(id, reason)
	}
}

// EndLog calls EndLog on every logger, even if some fail, and returns all of their errors.
func (m *MultiTestLogger) EndLog(results Results) error {
	var errs []error
	for _, l := range m.Loggers {
		if err := l.EndLog(results); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PrintResults writes a summary of the results: a success line on standard output, or the
// list of failed tests on standard error.
func PrintResults(results Results) {
	if len(results.NonCriticalFailures) > 0 {
		_, _ = consoleTestFailedColor.Printf("NON-CRITICAL FAILURES (%d):\n", len(results.NonCriticalFailures))
		for _, f := range results.NonCriticalFailures {
			_, _ = consoleTestFailedColor.Printf("  * %s (%s)\n", f.TestID, f.Explanation)
		}
	}
	if results.OK() {
		_, _ = allTestsPassedColor.Println("All tests passed")
		return
	}
	_, _ = consoleTestFailedColor.Fprintf(os.Stderr, "FAILED TESTS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		_, _ = consoleTestFailedColor.Fprintf(os.Stderr, "  * %s\n", f.TestID)
	}
}

package ldtest

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/scopeharness/scopeharness/framework"
)

// JUnitTestLogger collects test status during the run and writes a JUnit XML report in
// EndLog. It is safe for concurrent use.
type JUnitTestLogger struct {
	filePath   string
	suiteName  string
	properties map[string]string
	filters    RegexFilters
	testIDs    []TestID // this slice preserves the order that the tests were run in
	tests      map[string]jUnitTestStatus
	lock       sync.Mutex
}

type jUnitTestStatus struct {
	failures    []error
	skipped     bool
	skipReason  string
	nonCritical bool
	output      string
	startTime   time.Time
	duration    time.Duration
}

// Struct definitions for the JUnit XML schema - see https://github.com/jstemmer/go-junit-report

type jUnitXMLDocument struct {
	XMLName xml.Name            `xml:"testsuites"`
	Suites  []jUnitXMLTestSuite `xml:"testsuite"`
}

type jUnitXMLTestSuite struct {
	XMLName    xml.Name           `xml:"testsuite"`
	Tests      int                `xml:"tests,attr"`
	Failures   int                `xml:"failures,attr"`
	Skipped    int                `xml:"skipped,attr"`
	Time       string             `xml:"time,attr"`
	Name       string             `xml:"name,attr"`
	Properties []jUnitXMLProperty `xml:"properties>property,omitempty"`
	TestCases  []jUnitXMLTestCase `xml:"testcase"`
}

type jUnitXMLTestCase struct {
	XMLName     xml.Name             `xml:"testcase"`
	Classname   string               `xml:"classname,attr"`
	Name        string               `xml:"name,attr"`
	Time        string               `xml:"time,attr"`
	SkipMessage *jUnitXMLSkipMessage `xml:"skipped,omitempty"`
	Failure     *jUnitXMLFailure     `xml:"failure,omitempty"`
}

type jUnitXMLSkipMessage struct {
	Message string `xml:"message,attr"`
}

type jUnitXMLProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type jUnitXMLFailure struct {
	Message  string `xml:"message,attr"`
	Type     string `xml:"type,attr"`
	Contents string `xml:",chardata"`
}

// NewJUnitTestLogger creates a JUnitTestLogger that will write to filePath. Each top-level
// test becomes a test suite named "<suiteName>: <test name>". The properties are copied into
// every suite, along with the filter settings.
func NewJUnitTestLogger(
	filePath string,
	suiteName string,
	properties map[string]string,
	filters RegexFilters,
) *JUnitTestLogger {
	return &JUnitTestLogger{
		filePath:   filePath,
		suiteName:  suiteName,
		properties: properties,
		filters:    filters,
		tests:      make(map[string]jUnitTestStatus),
	}
}

func (j *JUnitTestLogger) TestStarted(id TestID) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.testIDs = append(j.testIDs, id)
	j.tests[id.String()] = jUnitTestStatus{
		startTime: time.Now(),
	}
}

func (j *JUnitTestLogger) TestError(id TestID, err error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := j.tests[id.String()]
	status.failures = append(status.failures, err)
	j.tests[id.String()] = status
}

func (j *JUnitTestLogger) TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := j.tests[id.String()]
	status.output = debugOutput.ToString("")
	status.duration = time.Since(status.startTime)
	status.nonCritical = result.NonCritical
	j.tests[id.String()] = status
}

func (j *JUnitTestLogger) TestSkipped(id TestID, reason string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	status := j.tests[id.String()]
	status.skipped = true
	status.skipReason = reason
	j.tests[id.String()] = status
}

func (j *JUnitTestLogger) EndLog(results Results) error {
	fmt.Printf("Writing JUnit data to %s\n", j.filePath)

	data, err := j.render()
	if err != nil {
		return err
	}
	return os.WriteFile(j.filePath, data, 0644) //nolint:gosec
}

func (j *JUnitTestLogger) render() ([]byte, error) {
	j.lock.Lock()
	defer j.lock.Unlock()

	var doc jUnitXMLDocument
	properties := j.suiteProperties()

	for _, topLevelID := range getTopLevelIDs(j.testIDs) {
		suite := jUnitXMLTestSuite{
			Name:       fmt.Sprintf("%s: %s", j.suiteName, topLevelID),
			Properties: properties,
		}
		suiteTotalDuration := time.Duration(0)
		for _, testID := range j.testIDs {
			if len(testID) == 0 || testID[0] != topLevelID {
				continue
			}
			status := j.tests[testID.String()]

			suite.Tests++
			if len(status.failures) != 0 {
				suite.Failures++
			}
			suiteTotalDuration += status.duration

			testCase := jUnitXMLTestCase{
				Classname: topLevelID,
				Name:      testID.String(),
				Time:      jUnitDurationString(status.duration),
			}
			if status.nonCritical {
				testCase.Name += " (non-critical)"
			}
			if status.skipped {
				suite.Skipped++
				testCase.SkipMessage = &jUnitXMLSkipMessage{Message: status.skipReason}
			}
			if len(status.failures) != 0 {
				testCase.Failure = &jUnitXMLFailure{
					Message:  jUnitFailureMessage(status.failures),
					Contents: status.output,
				}
			}

			suite.TestCases = append(suite.TestCases, testCase)
		}
		suite.Time = jUnitDurationString(suiteTotalDuration)
		doc.Suites = append(doc.Suites, suite)
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (j *JUnitTestLogger) suiteProperties() []jUnitXMLProperty {
	ret := []jUnitXMLProperty{
		{Name: "tests.filter.mustMatch", Value: j.filters.MustMatch.String()},
		{Name: "tests.filter.mustNotMatch", Value: j.filters.MustNotMatch.String()},
	}
	for _, name := range sortedKeys(j.properties) {
		ret = append(ret, jUnitXMLProperty{Name: name, Value: j.properties[name]})
	}
	return ret
}

func jUnitFailureMessage(failures []error) string {
	messages := make([]string, 0, len(failures))
	for _, e := range failures {
		message := e.Error()
		if es, ok := e.(ErrorWithStacktrace); ok {
			message += "\n  Stacktrace:\n" + es.StacktraceString("    ")
		}
		messages = append(messages, message)
	}
	return strings.Join(messages, "\n")
}

func getTopLevelIDs(allIDs []TestID) []string {
	var ret []string
	seen := make(map[string]bool)
	for _, testID := range allIDs {
		if len(testID) != 0 && !seen[testID[0]] {
			ret = append(ret, testID[0])
			seen[testID[0]] = true
		}
	}
	return ret
}

func sortedKeys(m map[string]string) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

func jUnitDurationString(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

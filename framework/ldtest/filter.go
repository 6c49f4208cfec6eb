package ldtest

import (
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Filter determines whether to run a specific test or not.
type Filter interface {
	Match(id TestID) bool
}

// FilterFunc adapts a plain function to Filter.
type FilterFunc func(TestID) bool

func (f FilterFunc) Match(id TestID) bool { return f(id) }

// SelfDescribingFilter is a Filter that can explain itself at the start of a test run.
type SelfDescribingFilter interface {
	Filter
	Describe(out io.Writer)
}

// RegexFilters selects tests by matching the components of their IDs against
// slash-separated lists of regular expressions, as set by the -run and -skip options.
type RegexFilters struct {
	MustMatch    TestIDPatternList
	MustNotMatch TestIDPatternList
}

func (r RegexFilters) Match(id TestID) bool {
	return (!r.MustMatch.IsDefined() || r.MustMatch.AnyMatch(id, true)) &&
		!r.MustNotMatch.AnyMatch(id, false)
}

// Describe prints a summary of the filters, if any are defined.
func (r RegexFilters) Describe(out io.Writer) {
	if !r.MustMatch.IsDefined() && !r.MustNotMatch.IsDefined() {
		return
	}
	_, _ = fmt.Fprintln(out, "Some tests will be skipped based on the filter criteria for this test run:")
	if r.MustMatch.IsDefined() {
		_, _ = fmt.Fprintf(out, "  skip any not matching %s\n", r.MustMatch)
	}
	if r.MustNotMatch.IsDefined() {
		_, _ = fmt.Fprintf(out, "  skip any matching %s\n", r.MustNotMatch)
	}
	_, _ = fmt.Fprintln(out)
}

type TestIDPattern []*regexp.Regexp

// Match tests each component of id against the corresponding pattern component. If the
// pattern is longer than id, includeParents decides whether the ancestor id matches.
func (p TestIDPattern) Match(id TestID, includeParents bool) bool {
	if len(p) > len(id) && !includeParents {
		return false
	}
	for i := 0; i < len(p) && i < len(id); i++ {
		if !p[i].MatchString(id[i]) {
			return false
		}
	}
	return true
}

func (p TestIDPattern) String() string {
	ss := make([]string, 0, len(p))
	for _, c := range p {
		ss = append(ss, c.String())
	}
	return strings.Join(ss, "/")
}

func ParseTestIDPattern(s string) (TestIDPattern, error) {
	parts := strings.Split(s, "/")
	ret := make(TestIDPattern, 0, len(parts))
	for _, part := range parts {
		rx, err := regexp.Compile(part)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", part, err)
		}
		ret = append(ret, rx)
	}
	return ret, nil
}

type TestIDPatternList []TestIDPattern

func (l TestIDPatternList) String() string {
	ss := make([]string, 0, len(l))
	for _, p := range l {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Set is called by the command line parser
func (l *TestIDPatternList) Set(value string) error {
	p, err := ParseTestIDPattern(value)
	if err != nil {
		return err
	}
	*l = append(*l, p)
	return nil
}

func (l TestIDPatternList) IsDefined() bool {
	return len(l) != 0
}

func (l TestIDPatternList) AnyMatch(id TestID, includeParents bool) bool {
	for _, p := range l {
		if p.Match(id, includeParents) {
			return true
		}
	}
	return false
}

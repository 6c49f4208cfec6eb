package framework

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var sectionStartColor = color.New(color.FgCyan)            //nolint:gochecknoglobals
var sectionEndColor = color.New(color.Faint, color.FgCyan) //nolint:gochecknoglobals
var sectionLineColor = color.New(color.FgYellow)           //nolint:gochecknoglobals

// SectionLogger receives human-readable notifications about nested sections of work, such
// as the isolation scopes of a test run. Implementations must not fail; a SectionLogger is
// purely informational.
type SectionLogger interface {
	SectionStart(name string)
	SectionEnd(name string)
	Line(format string, args ...interface{})
}

type nullSectionLogger struct{}

func (nullSectionLogger) SectionStart(string)         {}
func (nullSectionLogger) SectionEnd(string)           {}
func (nullSectionLogger) Line(string, ...interface{}) {}

// NullSectionLogger returns a SectionLogger that discards everything.
func NullSectionLogger() SectionLogger { return nullSectionLogger{} }

// SectionsToLogger returns a SectionLogger that writes to a plain Logger, indenting lines
// by nesting depth.
func SectionsToLogger(logger Logger) SectionLogger {
	return &indentingSectionLogger{
		emit: func(depth int, kind, text string) {
			logger.Printf("%s%s%s", strings.Repeat("  ", depth), kind, text)
		},
	}
}

// ConsoleSectionLogger writes section boundaries to a terminal in colour.
type ConsoleSectionLogger struct {
	indentingSectionLogger
}

// NewConsoleSectionLogger creates a ConsoleSectionLogger writing to w.
func NewConsoleSectionLogger(w io.Writer) *ConsoleSectionLogger {
	c := &ConsoleSectionLogger{}
	c.emit = func(depth int, kind, text string) {
		indent := strings.Repeat("  ", depth)
		switch kind {
		case sectionStartMarker:
			_, _ = sectionStartColor.Fprintf(w, "%s%s%s\n", indent, kind, text)
		case sectionEndMarker:
			_, _ = sectionEndColor.Fprintf(w, "%s%s%s\n", indent, kind, text)
		default:
			_, _ = sectionLineColor.Fprintf(w, "%s%s\n", indent, text)
		}
	}
	return c
}

const (
	sectionStartMarker = "begin: "
	sectionEndMarker   = "end: "
)

type indentingSectionLogger struct {
	depth int
	emit  func(depth int, kind, text string)
}

func (s *indentingSectionLogger) SectionStart(name string) {
	s.emit(s.depth, sectionStartMarker, name)
	s.depth++
}

func (s *indentingSectionLogger) SectionEnd(name string) {
	if s.depth > 0 {
		s.depth--
	}
	s.emit(s.depth, sectionEndMarker, name)
}

func (s *indentingSectionLogger) Line(format string, args ...interface{}) {
	for _, line := range strings.Split(fmt.Sprintf(format, args...), "\n") {
		s.emit(s.depth, "", line)
	}
}

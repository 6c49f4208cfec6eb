package framework

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the minimal logging interface used throughout the framework. *log.Logger
// satisfies it.
type Logger interface {
	Println(args ...interface{})
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (nullLogger) Println(...interface{})        {}
func (nullLogger) Printf(string, ...interface{}) {}

// NullLogger returns a Logger that discards everything.
func NullLogger() Logger { return nullLogger{} }

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// ToString formats each message on its own line with a timestamp and the given prefix.
func (output CapturedOutput) ToString(prefix string) string {
	lines := make([]string, 0, len(output))
	for _, m := range output {
		lines = append(lines, fmt.Sprintf("%s[%s] %s", prefix, m.Time.Format(timestampFormat), m.Message))
	}
	return strings.Join(lines, "\n")
}

// CapturingLogger records everything written to it, so that a test's output can be shown
// when the test finishes.
//
// A logger can have child loggers attached (see ldtest.(*T).DebugLogger). A child starts
// with a copy of whatever its parent had already captured, and while any children are
// attached, new messages sent to the parent are forwarded to them instead of being kept.
type CapturingLogger struct {
	output   CapturedOutput
	children []*CapturingLogger
	lock     sync.Mutex
}

func (l *CapturingLogger) Println(args ...interface{}) {
	l.record(strings.TrimRight(fmt.Sprintln(args...), "\r\n"))
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.record(fmt.Sprintf(message, args...))
}

func (l *CapturingLogger) record(text string) {
	l.deliver(CapturedMessage{Time: time.Now(), Message: text})
}

func (l *CapturingLogger) deliver(m CapturedMessage) {
	l.lock.Lock()
	children := l.children
	if len(children) == 0 {
		l.output = append(l.output, m)
	} else {
		children = append([]*CapturingLogger(nil), children...)
	}
	l.lock.Unlock()
	for _, c := range children {
		c.deliver(m)
	}
}

// Output returns a copy of the captured messages.
func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append(CapturedOutput(nil), l.output...)
}

// AddChildLogger attaches child, seeding it with this logger's output so far.
func (l *CapturingLogger) AddChildLogger(child *CapturingLogger) {
	inherited := l.Output()
	l.lock.Lock()
	l.children = append(l.children, child)
	l.lock.Unlock()

	child.lock.Lock()
	child.output = append(inherited, child.output...)
	child.lock.Unlock()
}

// RemoveChildLogger detaches a child added with AddChildLogger.
func (l *CapturingLogger) RemoveChildLogger(child *CapturingLogger) {
	l.lock.Lock()
	defer l.lock.Unlock()
	for i, c := range l.children {
		if c == child {
			l.children = append(l.children[:i], l.children[i+1:]...)
			return
		}
	}
}

type prefixedLogger struct {
	base   Logger
	prefix string
}

// LoggerWithPrefix returns a Logger that prepends prefix to every message.
func LoggerWithPrefix(baseLogger Logger, prefix string) Logger {
	return prefixedLogger{base: baseLogger, prefix: prefix}
}

func (p prefixedLogger) Println(args ...interface{}) {
	p.base.Println(append([]interface{}{p.prefix}, args...)...)
}

func (p prefixedLogger) Printf(message string, args ...interface{}) {
	p.base.Printf(p.prefix+message, args...)
}

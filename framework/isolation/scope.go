package isolation

import (
	"runtime/debug"
)

// CleanupAction is a function registered to run once when its scope ends. A non-nil
// return value, or a panic, counts as a failure of that action.
type CleanupAction func() error

// scope is one nesting level: a name and the cleanup actions registered against it.
type scope struct {
	name    string
	pending []CleanupAction
}

func newScope(name string) *scope {
	return &scope{name: name}
}

func (s *scope) add(action CleanupAction) {
	s.pending = append(s.pending, action)
}

// unwind runs every pending action, most recently added first. A failing action never
// stops the rest from running. Actions are removed before they are called, so none of
// them can run twice.
func (s *scope) unwind() Failures {
	var failures Failures
	for len(s.pending) > 0 {
		last := len(s.pending) - 1
		action := s.pending[last]
		s.pending[last] = nil
		s.pending = s.pending[:last]
		if err := runCleanupAction(action); err != nil {
			failures = append(failures, err)
		}
	}
	s.pending = nil
	return failures
}

func runCleanupAction(action CleanupAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return action()
}

package isolation

import (
	"errors"
	"runtime/debug"

	"github.com/scopeharness/scopeharness/framework"
	"github.com/scopeharness/scopeharness/framework/helpers"
)

// State describes what a Manager is doing at the moment.
type State int

const (
	// Active means no initializer or cleanup is running.
	Active State = iota
	// Initializing means the initializer passed to BeginScope is running.
	Initializing
	// Cleaning means the cleanup actions of a scope are being run.
	Cleaning
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Initializing:
		return "initializing"
	case Cleaning:
		return "cleaning"
	default:
		return "unknown"
	}
}

// Operation names reported in InvalidStateError.
const (
	OpBeginScope       = "BeginScope"
	OpEndScope         = "EndScope"
	OpAddCleanupAction = "AddCleanupAction"
)

// Registrar is the part of the Manager that is exposed to scope initializers.
type Registrar interface {
	AddCleanupAction(action CleanupAction) error
}

// Initializer sets up a new scope. It can register cleanup actions for that scope through
// the Registrar. Returning an error, or panicking, makes BeginScope fail.
type Initializer func(Registrar) error

// Option is a configuration option for New.
type Option interface {
	helpers.ConfigOption[managerOptions]
}

type managerOptions struct {
	logger framework.SectionLogger
}

type loggerOption struct {
	logger framework.SectionLogger
}

func (o loggerOption) Configure(opts *managerOptions) error {
	if o.logger == nil {
		return errors.New("WithLogger requires a non-nil SectionLogger")
	}
	opts.logger = o.logger
	return nil
}

// WithLogger makes the Manager report scope boundaries and captured failures to the given
// sink. Logging has no effect on results.
func WithLogger(logger framework.SectionLogger) Option {
	return loggerOption{logger: logger}
}

// Manager owns a stack of nested scopes and the cleanup actions registered against them.
//
// The zero value is not usable; call New.
type Manager struct {
	stack   []*scope
	pending *scope
	state   State
	logger  framework.SectionLogger
}

// New creates a Manager and begins its root scope, exactly as BeginScope would on an empty
// stack. A nil initializer is treated as a no-op.
//
// If the initializer fails, the Manager is still returned, with an empty stack, along with
// the error that BeginScope would have returned.
func New(name string, initializer Initializer, options ...Option) (*Manager, error) {
	opts := managerOptions{logger: framework.NullSectionLogger()}
	if err := helpers.ApplyOptions(&opts, options...); err != nil {
		return nil, err
	}
	m := &Manager{logger: opts.logger}
	if err := m.BeginScope(name, initializer); err != nil {
		return m, err
	}
	return m, nil
}

// BeginScope enters a new nesting level named name and runs initializer for it. Cleanup
// actions registered while the initializer runs belong to the new scope.
//
// If the initializer succeeds, the new scope becomes current and stays on the stack until
// the matching EndScope. If it fails, the cleanup actions it had already registered are run
// immediately, in reverse order, and an *AggregateError is returned whose first element is
// the initializer's failure and whose remaining elements are the failures of that unwind.
// In that case the stack is left exactly as it was.
//
// BeginScope can only be called while the Manager is Active; calling it from an initializer
// or a cleanup action returns an *InvalidStateError.
func (m *Manager) BeginScope(name string, initializer Initializer) error {
	if name == "" {
		return ErrEmptyScopeName
	}
	if m.state != Active {
		return &InvalidStateError{Operation: OpBeginScope, State: m.state}
	}
	if initializer == nil {
		initializer = func(Registrar) error { return nil }
	}

	s := newScope(name)
	m.logger.SectionStart(name)
	m.pending = s
	m.state = Initializing
	err := runInitializer(initializer, m)
	m.pending = nil
	m.state = Active

	if err == nil {
		m.stack = append(m.stack, s)
		return nil
	}

	m.logger.Line("initialization of %q failed: %s", name, err)
	failures := m.unwind(s)
	m.logger.SectionEnd(name)
	return failures.WithCause(err)
}

// EndScope runs the cleanup actions of the current scope, most recently registered first,
// and then removes the scope from the stack. Every action runs even if earlier ones fail,
// and the scope is removed regardless of failures.
//
// It returns nil if all actions succeeded, the failure itself if exactly one failed, or an
// *AggregateError if several did.
func (m *Manager) EndScope() error {
	if m.state != Active {
		return &InvalidStateError{Operation: OpEndScope, State: m.state}
	}
	if len(m.stack) == 0 {
		return ErrNoActiveScope
	}
	top := len(m.stack) - 1
	s := m.stack[top]
	failures := m.unwind(s)
	m.stack[top] = nil
	m.stack = m.stack[:top]
	m.logger.SectionEnd(s.name)
	return failures.Err()
}

// AddCleanupAction registers an action with the current scope. While an initializer is
// running, the current scope is the one that initializer is setting up.
//
// It returns an *InvalidStateError if called while cleanup actions are running; the action
// is then discarded without being called.
func (m *Manager) AddCleanupAction(action CleanupAction) error {
	if action == nil {
		return ErrNilCleanupAction
	}
	if m.state == Cleaning {
		return &InvalidStateError{Operation: OpAddCleanupAction, State: m.state}
	}
	current := m.current()
	if current == nil {
		return ErrNoActiveScope
	}
	current.add(action)
	return nil
}

// Depth returns the number of fully initialized scopes on the stack.
func (m *Manager) Depth() int {
	return len(m.stack)
}

// State returns the current state.
func (m *Manager) State() State {
	return m.state
}

// CurrentScopeName returns the name of the scope that AddCleanupAction would register
// against, or "" if there is none.
func (m *Manager) CurrentScopeName() string {
	if s := m.current(); s != nil {
		return s.name
	}
	return ""
}

// ScopeNames returns the names of the scopes on the stack, outermost first.
func (m *Manager) ScopeNames() []string {
	ret := make([]string, 0, len(m.stack))
	for _, s := range m.stack {
		ret = append(ret, s.name)
	}
	return ret
}

func (m *Manager) current() *scope {
	if m.pending != nil {
		return m.pending
	}
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

func (m *Manager) unwind(s *scope) Failures {
	m.state = Cleaning
	failures := s.unwind()
	m.state = Active
	for _, f := range failures {
		m.logger.Line("cleanup of %q failed: %s", s.name, f)
	}
	return failures
}

func runInitializer(initializer Initializer, r Registrar) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()
	return initializer(r)
}

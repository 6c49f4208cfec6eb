package isolation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeharness/scopeharness/framework"
)

type callLog struct {
	calls []string
}

func (c *callLog) action(name string) CleanupAction {
	return func() error {
		c.calls = append(c.calls, name)
		return nil
	}
}

func (c *callLog) failingAction(name string, err error) CleanupAction {
	return func() error {
		c.calls = append(c.calls, name)
		return err
	}
}

func newManager(t *testing.T) *Manager {
	m, err := New("root", nil)
	require.NoError(t, err)
	return m
}

func TestNewCreatesRootScope(t *testing.T) {
	m := newManager(t)
	assert.Equal(t, 1, m.Depth())
	assert.Equal(t, Active, m.State())
	assert.Equal(t, "root", m.CurrentScopeName())
	assert.Equal(t, []string{"root"}, m.ScopeNames())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	m, err := New("root", nil, WithLogger(nil))
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestNewWithFailingInitializer(t *testing.T) {
	var log callLog
	initErr := errors.New("no root for you")
	m, err := New("root", func(r Registrar) error {
		require.NoError(t, r.AddCleanupAction(log.action("a")))
		return initErr
	})
	require.NotNil(t, m)
	assert.ErrorIs(t, err, initErr)
	assert.Equal(t, []string{"a"}, log.calls)
	assert.Equal(t, 0, m.Depth())
	assert.Equal(t, Active, m.State())
	assert.ErrorIs(t, m.AddCleanupAction(log.action("b")), ErrNoActiveScope)
	assert.ErrorIs(t, m.EndScope(), ErrNoActiveScope)
}

func TestNoOpScope(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.BeginScope("s", nil))
	assert.Equal(t, 2, m.Depth())
	assert.NoError(t, m.EndScope())
	assert.Equal(t, 1, m.Depth())
	assert.NoError(t, m.EndScope())
	assert.Equal(t, 0, m.Depth())
	assert.Equal(t, "", m.CurrentScopeName())
}

func TestBeginScopeRejectsEmptyName(t *testing.T) {
	m := newManager(t)
	assert.ErrorIs(t, m.BeginScope("", nil), ErrEmptyScopeName)
	assert.Equal(t, 1, m.Depth())

	_, err := New("", nil)
	assert.ErrorIs(t, err, ErrEmptyScopeName)
}

func TestCleanupActionsRunInReverseOrder(t *testing.T) {
	var log callLog
	m := newManager(t)
	require.NoError(t, m.BeginScope("s", nil))
	for _, name := range []string{"A", "B", "C"} {
		require.NoError(t, m.AddCleanupAction(log.action(name)))
	}
	assert.Len(t, log.calls, 0)
	require.NoError(t, m.EndScope())
	assert.Equal(t, []string{"C", "B", "A"}, log.calls)
}

func TestActionsRegisteredByInitializerBelongToNewScope(t *testing.T) {
	var log callLog
	m := newManager(t)
	require.NoError(t, m.AddCleanupAction(log.action("outer")))
	require.NoError(t, m.BeginScope("inner", func(r Registrar) error {
		assert.Equal(t, Initializing, m.State())
		assert.Equal(t, "inner", m.CurrentScopeName())
		assert.Equal(t, 1, m.Depth())
		return r.AddCleanupAction(log.action("from initializer"))
	}))
	require.NoError(t, m.AddCleanupAction(log.action("inner")))

	require.NoError(t, m.EndScope())
	assert.Equal(t, []string{"inner", "from initializer"}, log.calls)

	require.NoError(t, m.EndScope())
	assert.Equal(t, []string{"inner", "from initializer", "outer"}, log.calls)
}

func TestIsolationBetweenLevels(t *testing.T) {
	var log callLog
	m := newManager(t)
	require.NoError(t, m.BeginScope("class", nil))
	require.NoError(t, m.AddCleanupAction(log.action("class fixture")))
	require.NoError(t, m.BeginScope("test", nil))
	require.NoError(t, m.AddCleanupAction(log.action("test fixture")))

	require.NoError(t, m.EndScope())
	assert.Equal(t, []string{"test fixture"}, log.calls)

	require.NoError(t, m.EndScope())
	assert.Equal(t, []string{"test fixture", "class fixture"}, log.calls)
}

func TestRegistrationAfterPopGoesToOuterScope(t *testing.T) {
	var log callLog
	m := newManager(t)
	require.NoError(t, m.BeginScope("outer", nil))
	require.NoError(t, m.BeginScope("inner", nil))
	require.NoError(t, m.EndScope())

	require.NoError(t, m.AddCleanupAction(log.action("late")))
	assert.Equal(t, "outer", m.CurrentScopeName())
	assert.Len(t, log.calls, 0)

	require.NoError(t, m.EndScope())
	assert.Equal(t, []string{"late"}, log.calls)
}

func TestAddCleanupActionDuringCleanupIsRejected(t *testing.T) {
	var log callLog
	var registerErr error
	m := newManager(t)
	require.NoError(t, m.BeginScope("s", nil))
	require.NoError(t, m.AddCleanupAction(func() error {
		assert.Equal(t, Cleaning, m.State())
		registerErr = m.AddCleanupAction(log.action("never"))
		return nil
	}))

	assert.NoError(t, m.EndScope())
	var ise *InvalidStateError
	require.ErrorAs(t, registerErr, &ise)
	assert.Equal(t, Cleaning, ise.State)
	assert.Equal(t, "adding cleanup actions from within cleanup is not supported", ise.Error())
	assert.Len(t, log.calls, 0)

	// the rejected action must not have gone into the outer scope either
	require.NoError(t, m.EndScope())
	assert.Len(t, log.calls, 0)
}

func TestScopeOperationsDuringCleanupAreRejected(t *testing.T) {
	var beginErr, endErr error
	m := newManager(t)
	require.NoError(t, m.AddCleanupAction(func() error {
		beginErr = m.BeginScope("sneaky", nil)
		endErr = m.EndScope()
		return nil
	}))
	require.NoError(t, m.EndScope())

	var ise *InvalidStateError
	require.ErrorAs(t, beginErr, &ise)
	assert.Equal(t, OpBeginScope, ise.Operation)
	require.ErrorAs(t, endErr, &ise)
	assert.Equal(t, OpEndScope, ise.Operation)
	assert.Equal(t, 0, m.Depth())
}

func TestScopeOperationsDuringInitializationAreRejected(t *testing.T) {
	m := newManager(t)
	err := m.BeginScope("s", func(Registrar) error {
		var ise *InvalidStateError
		assert.ErrorAs(t, m.BeginScope("nested", nil), &ise)
		assert.ErrorAs(t, m.EndScope(), &ise)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"root", "s"}, m.ScopeNames())
}

func TestAddCleanupActionRejectsNil(t *testing.T) {
	m := newManager(t)
	assert.ErrorIs(t, m.AddCleanupAction(nil), ErrNilCleanupAction)
}

func TestInitializerFailureUnwindsImmediately(t *testing.T) {
	var log callLog
	initErr := errors.New("setup broke")
	m := newManager(t)
	require.NoError(t, m.AddCleanupAction(log.action("outer")))

	err := m.BeginScope("s", func(r Registrar) error {
		require.NoError(t, r.AddCleanupAction(log.action("X")))
		require.NoError(t, r.AddCleanupAction(log.action("Y")))
		return initErr
	})

	assert.Equal(t, []string{"Y", "X"}, log.calls)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []error{initErr}, agg.Errors)
	assert.Equal(t, []string{"root"}, m.ScopeNames())
	assert.Equal(t, Active, m.State())

	require.NoError(t, m.EndScope())
	assert.Equal(t, []string{"Y", "X", "outer"}, log.calls)
}

func TestInitializerFailureIsReportedWithUnwindFailures(t *testing.T) {
	var log callLog
	initErr := errors.New("setup broke")
	cleanupErr1 := errors.New("cleanup 1 broke")
	cleanupErr2 := errors.New("cleanup 2 broke")
	m := newManager(t)

	err := m.BeginScope("s", func(r Registrar) error {
		require.NoError(t, r.AddCleanupAction(log.failingAction("1", cleanupErr1)))
		require.NoError(t, r.AddCleanupAction(log.action("ok")))
		require.NoError(t, r.AddCleanupAction(log.failingAction("2", cleanupErr2)))
		return initErr
	})

	assert.Equal(t, []string{"2", "ok", "1"}, log.calls)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, []error{initErr, cleanupErr2, cleanupErr1}, agg.Errors)
	assert.ErrorIs(t, err, initErr)
	assert.ErrorIs(t, err, cleanupErr1)
	assert.ErrorIs(t, err, cleanupErr2)
	assert.Equal(t, 1, m.Depth())
}

func TestInitializerPanicIsReported(t *testing.T) {
	var log callLog
	m := newManager(t)
	err := m.BeginScope("s", func(r Registrar) error {
		require.NoError(t, r.AddCleanupAction(log.action("X")))
		panic("kaboom")
	})

	assert.Equal(t, []string{"X"}, log.calls)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, 1, m.Depth())
	assert.Equal(t, Active, m.State())
}

func TestSingleCleanupFailureIsReturnedUnwrapped(t *testing.T) {
	var log callLog
	cleanupErr := errors.New("bad")
	m := newManager(t)
	require.NoError(t, m.BeginScope("s", nil))
	require.NoError(t, m.AddCleanupAction(log.action("A")))
	require.NoError(t, m.AddCleanupAction(log.failingAction("B", cleanupErr)))
	require.NoError(t, m.AddCleanupAction(log.action("C")))

	err := m.EndScope()
	assert.Same(t, cleanupErr, err)
	assert.Equal(t, []string{"C", "B", "A"}, log.calls)
	assert.Equal(t, 1, m.Depth())
}

func TestMultipleCleanupFailuresAreAggregated(t *testing.T) {
	var log callLog
	ex1 := errors.New("ex1")
	ex2 := errors.New("ex2")
	m := newManager(t)
	require.NoError(t, m.BeginScope("s", nil))
	require.NoError(t, m.AddCleanupAction(log.failingAction("1", ex1)))
	require.NoError(t, m.AddCleanupAction(log.failingAction("2", ex2)))

	err := m.EndScope()
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.ElementsMatch(t, []error{ex1, ex2}, agg.Errors)
	assert.Equal(t, []error{ex2, ex1}, agg.Errors, "failures should be in the order they occurred")
	assert.Equal(t, []string{"2", "1"}, log.calls)
	assert.Equal(t, 1, m.Depth())
}

func TestPanickingCleanupActionDoesNotStopUnwind(t *testing.T) {
	var log callLog
	m := newManager(t)
	require.NoError(t, m.BeginScope("s", nil))
	require.NoError(t, m.AddCleanupAction(log.action("first registered")))
	require.NoError(t, m.AddCleanupAction(func() error { panic(fmt.Errorf("wrapped %w", ErrNoActiveScope)) }))

	err := m.EndScope()
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, ErrNoActiveScope)
	assert.Equal(t, []string{"first registered"}, log.calls)
	assert.Equal(t, Active, m.State())
	assert.Equal(t, 1, m.Depth())
}

func TestBalancedDepth(t *testing.T) {
	counts := make(map[string]int)
	m := newManager(t)
	before := m.Depth()

	const levels = 6
	for i := 0; i < levels; i++ {
		name := fmt.Sprintf("level %d", i)
		require.NoError(t, m.BeginScope(name, func(r Registrar) error {
			return r.AddCleanupAction(func() error {
				counts[name]++
				return nil
			})
		}))
		require.NoError(t, m.AddCleanupAction(func() error {
			counts[name+" body"]++
			return nil
		}))
	}
	assert.Equal(t, before+levels, m.Depth())
	for i := 0; i < levels; i++ {
		require.NoError(t, m.EndScope())
	}

	assert.Equal(t, before, m.Depth())
	assert.Len(t, counts, levels*2)
	for name, count := range counts {
		assert.Equal(t, 1, count, name)
	}
}

func TestEndScopeOnEmptyStack(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.EndScope())
	assert.ErrorIs(t, m.EndScope(), ErrNoActiveScope)
	assert.ErrorIs(t, m.AddCleanupAction(func() error { return nil }), ErrNoActiveScope)
	assert.Equal(t, Active, m.State())
}

type recordingSectionLogger struct {
	events []string
}

func (r *recordingSectionLogger) SectionStart(name string) {
	r.events = append(r.events, "start "+name)
}

func (r *recordingSectionLogger) SectionEnd(name string) {
	r.events = append(r.events, "end "+name)
}

func (r *recordingSectionLogger) Line(format string, args ...interface{}) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

var _ framework.SectionLogger = (*recordingSectionLogger)(nil)

func TestManagerReportsToSectionLogger(t *testing.T) {
	logger := &recordingSectionLogger{}
	m, err := New("root", nil, WithLogger(logger))
	require.NoError(t, err)

	_ = m.BeginScope("broken", func(Registrar) error { return errors.New("nope") })
	require.NoError(t, m.BeginScope("test", nil))
	require.NoError(t, m.AddCleanupAction(func() error { return errors.New("leak") }))
	_ = m.EndScope()

	assert.Equal(t, []string{
		"start root",
		"start broken",
		`initialization of "broken" failed: nope`,
		"end broken",
		"start test",
		`cleanup of "test" failed: leak`,
		"end test",
	}, logger.events)
}
